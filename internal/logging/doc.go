// Package logging provides file-based structured logging with rotation.
// The CLI is its only user in this module.
//
// The CLI always writes JSON-structured logs to ~/.vectordb/logs/vectordb.log
// and to stderr at info level; passing --debug lowers the level to debug
// for troubleshooting WAL, recovery, and compaction issues.
package logging
