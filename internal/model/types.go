package model

// Job is one extraction request. It is consumed exactly once by a runner.
type Job struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

// ProgressEvent is one observation of a job. The JSON names match what the
// UI shell already consumes.
type ProgressEvent struct {
	JobID     string  `json:"id"`
	Status    Status  `json:"status"`
	Progress  float64 `json:"progress"`
	Speed     string  `json:"speed,omitempty"`
	ETA       string  `json:"eta,omitempty"`
	TotalSize string  `json:"total_size,omitempty"`
	Error     string  `json:"error,omitempty"`
}

// Item is a playlist entry as reported by yt-dlp.
type Item struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Duration  string `json:"duration,omitempty"`
	Thumbnail string `json:"thumbnail,omitempty"`
	URL       string `json:"url"`
}

func (i Item) Job() Job {
	return Job{ID: i.ID, URL: i.URL}
}

// BatchSummary is published once after every job of a batch is terminal.
type BatchSummary struct {
	BatchID   string `json:"batch_id"`
	Total     int    `json:"total"`
	Completed int    `json:"completed"`
	Failed    int    `json:"failed"`
	Cancelled int    `json:"cancelled"`
	Stopped   bool   `json:"stopped"`
}
