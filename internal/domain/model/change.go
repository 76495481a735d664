package model

import "time"

// ChangeEvent reports that a collection was mutated remotely.
type ChangeEvent struct {
	EventID    string    // unique id for idempotency
	Collection string    // one of the Collection* names
	DocID      string    // optional id of the mutated document
	TS         time.Time // when the change was observed
}
