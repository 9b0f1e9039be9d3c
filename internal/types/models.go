package types

// JobStatus tracks where a job sits in the pipeline.
type JobStatus string

const (
	StatusQueued       JobStatus = "queued"
	StatusRunning      JobStatus = "running"
	StatusDownloading  JobStatus = "downloading"
	StatusTranscribing JobStatus = "transcribing"
	StatusSummarizing  JobStatus = "summarizing"
	StatusCompleted    JobStatus = "completed"
	StatusError        JobStatus = "error"
)

// Active reports whether a pipeline run currently owns the job.
func (s JobStatus) Active() bool {
	switch s {
	case StatusRunning, StatusDownloading, StatusTranscribing, StatusSummarizing:
		return true
	default:
		return false
	}
}

// Job is one end-to-end request to fetch, transcribe and summarize an
// audio source. Stage outputs are filled in as the pipeline advances.
type Job struct {
	ID           string    `json:"id"`
	URL          string    `json:"url"`
	ResolvedURL  string    `json:"resolved_url,omitempty"`
	FilePath     string    `json:"file_path,omitempty"`
	Transcript   string    `json:"transcript,omitempty"`
	Summary      string    `json:"summary,omitempty"`
	Title        string    `json:"title,omitempty"`
	MeetingDate  string    `json:"meeting_date,omitempty"`
	Status       JobStatus `json:"status"`
	Error        string    `json:"error,omitempty"`
	Logs         []string  `json:"logs"`
	CreatedAt    int64     `json:"created_at"`
	CreatedLabel string    `json:"created_label"`
	Path         string    `json:"path"`
}

// Clone returns a copy safe to hand out while the store keeps mutating.
func (j *Job) Clone() *Job {
	cp := *j
	cp.Logs = append([]string(nil), j.Logs...)
	return &cp
}

// Capabilities mirrors which external credentials are configured.
type Capabilities struct {
	TranscriptionEnabled bool `json:"transcription_enabled"`
	SummarizationEnabled bool `json:"summarization_enabled"`
}
