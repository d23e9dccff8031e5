package storage

import "time"

// Entry is one raw row of the key-value table.
type Entry struct {
	Key       string
	Value     []byte
	UpdatedAt time.Time
}

// TabTarget pairs a browser target identifier with its integer tab id.
type TabTarget struct {
	TabID    int
	TargetID string
}

// Stats holds aggregate statistics about the TabTidy database.
type Stats struct {
	Keys              int64
	TabTargets        int64
	LastWrite         time.Time
	DatabaseSizeBytes int64
	SchemaVersion     int
}
