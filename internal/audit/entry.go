package audit

import "time"

// Entry is one line of the audit log.
type Entry struct {
	Seq      uint64    `json:"seq"`
	Time     time.Time `json:"ts"`
	PrevHash string    `json:"prev_hash"`
	Session  string    `json:"session"`          // session id
	Remote   string    `json:"remote,omitempty"` // client address, empty for the local shell
	Line     string    `json:"line"`             // pipeline in canonical form
	Stages   []string  `json:"stages"`           // program name of each stage
	ExitCode int       `json:"exit_code"`        // status of the last stage
	Error    string    `json:"error,omitempty"`  // executor error, if any
	Duration float64   `json:"duration_ms"`      // execution time in milliseconds
	Cwd      string    `json:"cwd"`              // session working directory
	Hash     string    `json:"hash"`             // SHA-256 of this entry (with hash field empty)
}

// Record is what a caller knows about one executed pipeline.
type Record struct {
	Session  string
	Remote   string
	Line     string
	Stages   []string
	ExitCode int
	Error    string
	Duration time.Duration
	Cwd      string
}
