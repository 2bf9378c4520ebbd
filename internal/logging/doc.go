// Package logging configures structured JSON logging for contentindex and
// provides a viewer for the resulting log files.
//
// Long-running commands and --debug write to ~/.contentindex/logs/contentindex.log
// with size-based rotation; short commands log to stderr only.
package logging
