// Package logging sets up structured slog output for repoindex and reads it
// back for the logs command.
//
// By default logs go to stderr at info level. With --debug or a configured
// file, JSON lines are also written to ~/.repoindex/logs/repoindex.log and
// rotated by size.
package logging
