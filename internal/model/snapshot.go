package model

const SnapshotVersion = 1

// Snapshot is the persisted chunk set of the last successful ingestion.
// Version 0 marks a snapshot migrated from the legacy array format.
type Snapshot struct {
	Version   int     `json:"version"`
	FolderID  string  `json:"folder_id"`
	CreatedAt int64   `json:"created_at"`
	Chunks    []Chunk `json:"chunks"`
}

func (s *Snapshot) IsEmpty() bool {
	return s == nil || len(s.Chunks) == 0
}
