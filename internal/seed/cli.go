package seed

import "io"

// ShowHelp prints usage information for the seed tool.
func ShowHelp(w io.Writer) {
	_, _ = io.WriteString(w, `Pitch Seed Tool
===============

Writes synthetic users, experiences, friendships and groups to a SQLite
document store that the service can open with docstore_path.

Usage:
  go run ./cmd/seed [options]

Options:
  -db string
        SQLite document store path (default "pitch-docs.db")
  -users int
        Number of users (default 50)
  -experiences int
        Experiences per user (default 8)
  -friends int
        Friendships initiated per user (default 3)
  -groups int
        Number of groups (default 10)
  -group-size int
        Members per group (default 4)
  -workers int
        Concurrent writers (default 8)
  -seed uint
        Generator seed; equal seeds give equal datasets (default 1)
  -output string
        Also save the dataset as JSON to this file
  -log-format string
        text or json (default "text")
  -help
        Show this help message

Examples:
  # Seed with defaults
  go run ./cmd/seed

  # A bigger dataset next to the service config
  go run ./cmd/seed -db data/docs.db -users 500 -experiences 20 -output data/seed.json
`)
}
