// Command diskvfs serves, mounts and manipulates a local-disk-backed virtual filesystem.
package main

import (
	"fmt"
	"io"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/diskvfs/diskvfs/pkg/api"
)

func main() {
	app := newApp(os.Stdin, os.Stdout, os.Stderr)
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "diskvfs: %v\n", err)
		os.Exit(1)
	}
}

// newApp builds the command tree. The streams are parameters so tests can drive it.
func newApp(stdin io.Reader, stdout, stderr io.Writer) *cli.App {
	st := &state{stdin: stdin}

	app := &cli.App{
		Name:            "diskvfs",
		Usage:           "local-disk-backed virtual filesystem",
		Version:         api.Version,
		Writer:          stdout,
		ErrWriter:       stderr,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "path to a YAML configuration file",
				EnvVars: []string{"DISKVFS_CONFIG"},
			},
			&cli.StringFlag{Name: "log-level", Usage: "override the configured log level"},
			&cli.StringFlag{Name: "root", Usage: "override the backing directory"},
			&cli.StringFlag{Name: "cwd", Usage: "working directory used to resolve relative paths"},
		},
		Before: st.setup,
		After:  st.teardown,
		Commands: []*cli.Command{
			{
				Name:      "serve",
				Usage:     "run the HTTP API with health probes and metrics",
				Flags:     []cli.Flag{&cli.StringFlag{Name: "address", Usage: "override the listen address"}},
				Action:    st.runServe,
				ArgsUsage: " ",
			},
			{
				Name:      "mount",
				Usage:     "mount the filesystem through FUSE",
				ArgsUsage: "<mountpoint>",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "read-only", Usage: "mount read-only"},
					&cli.BoolFlag{Name: "allow-other", Usage: "allow other users to access the mount"},
				},
				Action: st.runMount,
			},
			{
				Name:      "stat",
				Usage:     "print the status of a path, ownership included",
				ArgsUsage: "<path>",
				Action:    st.runStat,
			},
			{
				Name:      "ls",
				Usage:     "list a directory",
				ArgsUsage: "[path]",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "long", Aliases: []string{"l"}, Usage: "include ownership"},
					&cli.BoolFlag{Name: "human-readable", Aliases: []string{"H"}, Usage: "print sizes like 1.5 KB in long listings"},
				},
				Action: st.runList,
			},
			{
				Name:      "mkdir",
				Usage:     "create a directory and its missing parents",
				ArgsUsage: "<path>",
				Action:    st.runMkdir,
			},
			{
				Name:      "rm",
				Usage:     "delete a file or directory",
				ArgsUsage: "<path>",
				Flags:     []cli.Flag{&cli.BoolFlag{Name: "recursive", Aliases: []string{"r"}, Usage: "delete non-empty directories"}},
				Action:    st.runDelete,
			},
			{
				Name:      "mv",
				Usage:     "rename a file or directory",
				ArgsUsage: "<src> <dst>",
				Action:    st.runRename,
			},
			{
				Name:      "chown",
				Usage:     "change the owner and/or group of a path",
				ArgsUsage: "<path>",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "user", Aliases: []string{"u"}, Usage: "new owner"},
					&cli.StringFlag{Name: "group", Aliases: []string{"g"}, Usage: "new group"},
				},
				Action: st.runChown,
			},
			{
				Name:      "cat",
				Usage:     "write a file to standard output",
				ArgsUsage: "<path>",
				Action:    st.runCat,
			},
			{
				Name:      "put",
				Usage:     "write standard input to a file",
				ArgsUsage: "<path>",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "overwrite", Aliases: []string{"f"}, Usage: "replace an existing file"},
					&cli.BoolFlag{Name: "append", Aliases: []string{"a"}, Usage: "append to an existing file"},
				},
				Action: st.runPut,
			},
			{
				Name:      "cwd",
				Usage:     "print the working directory, or resolve and print a new one",
				ArgsUsage: "[path]",
				Action:    st.runCwd,
			},
		},
	}
	return app
}
