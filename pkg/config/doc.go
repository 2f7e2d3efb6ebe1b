/*
Package config loads and validates the daemon's YAML configuration: global
options (data directory, logging, metrics listener) plus one entry per sync
job.

	data_dir: /var/lib/gosync
	metrics_addr: ":9611"
	jobs:
	  docs:
	    directory: /home/user/Documents
	    server: https://pydio.example.com
	    workspace: my-files
	    frequency: 30          # seconds, or "02:30" for a daily run
	    direction: bi          # up | down | bi
	    solve: both            # local | remote | both
	    excludes: ["*.tmp"]

Validation happens entirely at load time: required fields, direction and
solve enums, glob syntax, frequency shape. A configuration that loads is
one every job can be assembled from; nothing is re-validated downstream.
*/
package config
