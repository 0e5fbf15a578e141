// Package session persists agent run logs as append-only JSONL files.
//
// Each run gets one log file. The agent loop writes a run-start record
// before the first provider call and a run-end record after the run
// reaches a terminal state; everything in between is optional message
// detail. Logs are pruned by a retention-based cleanup loop.
package session
