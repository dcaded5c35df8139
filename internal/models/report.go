package models

import "time"

// Seed statuses reported after a run.
const (
	SeedStatusInserted = "inserted"
	SeedStatusSkipped  = "skipped"
	SeedStatusDisabled = "disabled"
)

// CollectionStats is a store-agnostic view of collection statistics.
type CollectionStats struct {
	Namespace      string `json:"ns"`
	Count          int64  `json:"count"`
	Size           int64  `json:"size"`
	StorageSize    int64  `json:"storageSize"`
	TotalIndexSize int64  `json:"totalIndexSize"`
	IndexCount     int64  `json:"nindexes"`
}

// SeedResult tells what happened to the seed user during a run.
type SeedResult struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Status   string `json:"status"`
}

// Report is the diagnostic output of one bootstrap run.
type Report struct {
	RunID          string           `json:"runId"`
	Driver         string           `json:"driver"`
	CreatedIndexes []string         `json:"createdIndexes"`
	Seed           SeedResult       `json:"seed"`
	Indexes        []IndexInfo      `json:"indexes"`
	Stats          *CollectionStats `json:"stats"`
	StartedAt      time.Time        `json:"startedAt"`
	FinishedAt     time.Time        `json:"finishedAt"`
}

// UserSeededEvent is published once the seed user has been inserted.
type UserSeededEvent struct {
	RunID    string    `json:"runId"`
	UserID   string    `json:"userId"`
	Username string    `json:"username"`
	Email    string    `json:"email"`
	Roles    []string  `json:"roles"`
	SeededAt time.Time `json:"seededAt"`
}
