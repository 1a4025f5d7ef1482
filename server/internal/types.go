package internal

import "time"

type DownloadStatus int

const (
	StatusPending DownloadStatus = iota
	StatusDownloading
	StatusCompleted
	StatusErrored
	StatusStopped
)

func (s DownloadStatus) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusDownloading:
		return "downloading"
	case StatusCompleted:
		return "completed"
	case StatusErrored:
		return "errored"
	case StatusStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Progress of a single download. Durations are reported in milliseconds.
type DownloadProgress struct {
	Status     DownloadStatus `json:"process_status"`
	Bytes      int64          `json:"bytes"`
	ElapsedMs  int64          `json:"elapsed_ms"`
	DurationMs int64          `json:"duration_ms"`
	Percentage float64        `json:"percentage"`
}

type DownloadOutput struct {
	Path          string `json:"path"`
	SavedFilePath string `json:"saved_file_path"`
}

// struct representing the current status of a download,
// used for the api responses and for session persistence
type ProcessSnapshot struct {
	Id             string           `json:"id"`
	URL            string           `json:"url"`
	Title          string           `json:"title"`
	StreamURI      string           `json:"stream_uri"`
	Bitrate        int              `json:"bitrate"`
	Progress       DownloadProgress `json:"progress"`
	Output         DownloadOutput   `json:"output"`
	Error          string           `json:"error,omitempty"`
	CreatedAt      time.Time        `json:"created_at"`
	DownloaderName string           `json:"downloader_name"`
}

type DownloadRequest struct {
	Id   string `json:"id"`
	URL  string `json:"url"`
	Path string `json:"path"`
}
