package protocol

import "time"

// NarrationRequest asks the daemon to narrate Text into a video.
type NarrationRequest struct {
	JobID  string `json:"job_id,omitempty"`
	Text   string `json:"text"`
	Output string `json:"output,omitempty"`
	// Optional per-job overrides.
	ChunkMode      string `json:"chunk_mode,omitempty"`
	MaxChunkLength int    `json:"max_chunk_length,omitempty"`
	OverlapWords   int    `json:"overlap_words,omitempty"`
	Fade           *bool  `json:"fade,omitempty"`
}

// NarrationStatus is published as a job moves through the pipeline.
type NarrationStatus struct {
	JobID     string    `json:"job_id"`
	Status    string    `json:"status"`
	Output    string    `json:"output,omitempty"`
	Location  string    `json:"location,omitempty"`
	Chunks    int       `json:"chunks,omitempty"`
	DurationS float64   `json:"duration_s,omitempty"`
	Error     string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// NarrationAck is the reply to a request carrying a reply subject.
type NarrationAck struct {
	JobID    string `json:"job_id"`
	Accepted bool   `json:"accepted"`
	Error    string `json:"error,omitempty"`
}

const (
	SubjectNarrationRequest = "narrate.request"
	SubjectNarrationStatus  = "narrate.status"
)
