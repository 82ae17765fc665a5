package model

// RemoteFile is an entry returned by a remote folder listing.
type RemoteFile struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	MIMEType string `json:"mime_type"`
}

// RawFile is a downloaded file waiting for text extraction.
type RawFile struct {
	ID          string
	Name        string
	ContentType string
	Data        []byte
}

type TextDocument struct {
	Text     string            `json:"text"`
	Metadata map[string]string `json:"metadata"`
}

type Chunk struct {
	Text     string            `json:"text"`
	Metadata map[string]string `json:"metadata"`
}

const (
	MetaSource = "source"
	MetaFileID = "file_id"
)
