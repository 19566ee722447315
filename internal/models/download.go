package models

import "time"

type DownloadStatus string

const (
	DownloadStatusDownloading DownloadStatus = "downloading"
	DownloadStatusCompleted   DownloadStatus = "completed"
)

// Download is a simulated file transfer
type Download struct {
	ID        string         `json:"id"`
	URL       string         `json:"url"`
	Filename  string         `json:"filename"`
	Status    DownloadStatus `json:"status"`
	Progress  float64        `json:"progress"`
	CreatedAt time.Time      `json:"createdAt"`
}

// StartDownloadRequest is the input accepted by the download simulator
type StartDownloadRequest struct {
	URL      string `json:"url" validate:"required"`
	Filename string `json:"filename"`
}

// AnalyzeRequest asks for the downloadable links on a page
type AnalyzeRequest struct {
	URL string `json:"url" validate:"required"`
}

// DownloadCandidate is a downloadable link found on a page
type DownloadCandidate struct {
	ID       string `json:"id"`
	URL      string `json:"url"`
	Filename string `json:"filename"`
	Size     string `json:"size"`
	Type     string `json:"type"`
}

func (d *Download) Clone() *Download {
	if d == nil {
		return nil
	}
	c := *d
	return &c
}

func (d *Download) GetID() string { return d.ID }
