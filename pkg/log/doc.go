/*
Package log provides structured logging for gosync built on zerolog.

All components log through child loggers carrying identifying fields, so one
daemon's output can be filtered per job or per endpoint:

	logger := log.WithComponent("merger")
	logger.Info().Str("job", name).Msg("Sync completed")

# Configuration

Init is called once at startup, before any component is constructed:

	log.Init(log.Config{
		Level:      log.InfoLevel,
		JSONOutput: false,
		File:       "/var/log/gosync/gosync.log",
	})

Console output uses zerolog's ConsoleWriter with RFC3339 timestamps; JSON
output is a plain zerolog stream. When File is set, output goes through
lumberjack with size-based rotation and compressed backups, which is the
expected mode for an unattended daemon.

# Conventions

  - component: which subsystem emitted the line (watcher, index, merger, ...)
  - job: the configured job name the line belongs to
  - endpoint: local or remote, on lines about one side of a sync pair

Per-event debug logging in the watcher is chatty at debug level and silent
above it; a busy directory tree can emit thousands of events per second and
the filter decision for each one is only interesting when diagnosing filter
configuration.
*/
package log
