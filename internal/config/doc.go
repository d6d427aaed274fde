/*
Package config provides configuration management for diskvfs.

Configuration is assembled from three sources, later sources overriding earlier ones:

 1. Compiled-in defaults (NewDefault)
 2. A YAML file (LoadFromFile)
 3. DISKVFS_* environment variables (LoadFromEnv)

Command-line flags are applied by the caller after these. Validate must be called once the
configuration is complete; it reports the first invalid field as a CONFIG_INVALID error.

# Sections

	global      log level, log format and log file
	filesystem  virtual scheme and authority, backing root directory, initial working
	            directory, block and buffer sizes, default file and directory modes and the
	            owner string encoding ("posix" for user:group, "acl" for DOMAIN\NAME)
	api         HTTP listener address and timeouts
	metrics     Prometheus namespace and subsystem
	fuse        kernel mount options
	health      health tracker thresholds and probe interval

# Example

	global:
	  log_level: DEBUG
	  log_format: json
	filesystem:
	  scheme: xdfs
	  root: /srv/diskvfs
	  block_size: 64MB
	  owner_encoding: acl
	api:
	  address: 0.0.0.0:9870

Sizes accept human-readable suffixes (4KB, 32MB, 1GiB). Modes are octal strings.
*/
package config
