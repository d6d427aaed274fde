package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"

	"github.com/urfave/cli/v2"

	"github.com/diskvfs/diskvfs/internal/filesystem"
	"github.com/diskvfs/diskvfs/pkg/types"
	"github.com/diskvfs/diskvfs/pkg/utils"
)

func (s *state) runStat(c *cli.Context) error {
	if err := requireArgs(c, 1); err != nil {
		return err
	}
	st, err := s.session.StatResolved(c.Context, c.Args().Get(0))
	if err != nil {
		return err
	}
	enc := json.NewEncoder(c.App.Writer)
	enc.SetIndent("", "  ")
	return enc.Encode(st)
}

func (s *state) runList(c *cli.Context) error {
	path := "."
	switch c.NArg() {
	case 0:
	case 1:
		path = c.Args().Get(0)
	default:
		return requireArgs(c, 1)
	}

	list, err := s.session.ListStatus(c.Context, path)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(c.App.Writer, 0, 4, 1, ' ', 0)
	for _, st := range list {
		name := st.Path.Name()
		if st.IsDir {
			name += "/"
		}
		if !c.Bool("long") {
			fmt.Fprintln(w, name)
			continue
		}
		if loaded, err := s.fsys.LoadPermissionInfo(c.Context, st); err == nil {
			st = loaded
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			permissionColumn(st), ownerColumn(st.Owner()), ownerColumn(st.Group()),
			sizeColumn(int64(st.Length), c.Bool("human-readable")), st.ModTime.Format("2006-01-02 15:04"), name)
	}
	return w.Flush()
}

func permissionColumn(st types.FileStatus) string {
	prefix := "-"
	if st.IsDir {
		prefix = "d"
	}
	if perm, ok := st.Permission(); ok {
		return prefix + perm.String()
	}
	return prefix + "?????????"
}

func sizeColumn(length int64, human bool) string {
	if human {
		return utils.FormatBytes(length)
	}
	return strconv.FormatInt(length, 10)
}

func ownerColumn(name string, ok bool) string {
	if !ok || name == "" {
		return "?"
	}
	return name
}

func (s *state) runMkdir(c *cli.Context) error {
	if err := requireArgs(c, 1); err != nil {
		return err
	}
	ok, err := s.session.Mkdirs(c.Context, c.Args().Get(0))
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("mkdir %s: failed", c.Args().Get(0))
	}
	return nil
}

func (s *state) runDelete(c *cli.Context) error {
	if err := requireArgs(c, 1); err != nil {
		return err
	}
	ok, err := s.session.Delete(c.Context, c.Args().Get(0), c.Bool("recursive"))
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("rm %s: nothing deleted", c.Args().Get(0))
	}
	return nil
}

func (s *state) runRename(c *cli.Context) error {
	if err := requireArgs(c, 2); err != nil {
		return err
	}
	ok, err := s.session.Rename(c.Context, c.Args().Get(0), c.Args().Get(1))
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("mv %s %s: failed", c.Args().Get(0), c.Args().Get(1))
	}
	return nil
}

func (s *state) runChown(c *cli.Context) error {
	if err := requireArgs(c, 1); err != nil {
		return err
	}
	return s.session.SetOwner(c.Context, c.Args().Get(0), c.String("user"), c.String("group"))
}

func (s *state) runCat(c *cli.Context) error {
	if err := requireArgs(c, 1); err != nil {
		return err
	}
	rs, err := s.session.Open(c.Context, c.Args().Get(0), 0)
	if err != nil {
		return err
	}
	defer rs.Close()

	_, err = io.Copy(c.App.Writer, rs)
	return err
}

func (s *state) runPut(c *cli.Context) error {
	if err := requireArgs(c, 1); err != nil {
		return err
	}
	if c.Bool("append") && c.Bool("overwrite") {
		return fmt.Errorf("put: --append and --overwrite are mutually exclusive")
	}

	var (
		ws  *filesystem.WriteStream
		err error
	)
	if c.Bool("append") {
		ws, err = s.session.Append(c.Context, c.Args().Get(0), 0)
	} else {
		ws, err = s.session.Create(c.Context, c.Args().Get(0), filesystem.CreateOptions{Overwrite: c.Bool("overwrite")})
	}
	if err != nil {
		return err
	}

	if _, err := io.Copy(ws, s.stdin); err != nil {
		_ = ws.Close()
		return err
	}
	return ws.Close()
}

func (s *state) runCwd(c *cli.Context) error {
	switch c.NArg() {
	case 0:
	case 1:
		if err := s.session.SetWorkingDirectory(c.Context, c.Args().Get(0)); err != nil {
			return err
		}
	default:
		return requireArgs(c, 1)
	}
	_, err := fmt.Fprintln(c.App.Writer, s.session.WorkingDirectory().String())
	return err
}
