package model

import "time"

type Match struct {
	Chunk Chunk   `json:"chunk"`
	Score float32 `json:"score"`
}

type Answer struct {
	Text    string  `json:"text"`
	Sources []Match `json:"sources"`
}

type IngestResult struct {
	FolderID string        `json:"folder_id"`
	Files    int           `json:"files"`
	Chunks   int           `json:"chunks"`
	Duration time.Duration `json:"duration"`
}

type Status struct {
	FolderID   string `json:"folder_id"`
	Chunks     int    `json:"chunks"`
	IngestedAt int64  `json:"ingested_at"`
	Ready      bool   `json:"ready"`
}
