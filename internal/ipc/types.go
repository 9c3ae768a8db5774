package ipc

import "labeldesk/internal/api"

// StartRequest starts dispatching.
type StartRequest struct{}

// StartResponse indicates whether the daemon was started.
type StartResponse struct {
	Started bool   `json:"started"`
	Message string `json:"message"`
}

// StopRequest stops dispatching.
type StopRequest struct{}

// StopResponse indicates stop result.
type StopResponse struct {
	Stopped bool `json:"stopped"`
}

// StatusRequest fetches daemon status.
type StatusRequest struct{}

// StatusResponse wraps the daemon status shared with the HTTP API.
type StatusResponse struct {
	Status api.DaemonStatus `json:"status"`
}

// ItemListRequest filters stored items by completion ("", "complete",
// "incomplete").
type ItemListRequest struct {
	Filter   string `json:"filter"`
	Detailed bool   `json:"detailed"`
}

// ItemListResponse contains stored item ids and, when requested, records.
type ItemListResponse = api.ItemListResponse

// AddFileRequest copies an image from disk into the upload directory.
type AddFileRequest struct {
	Path string `json:"path"`
}

// AddFileResponse describes the stored item.
type AddFileResponse struct {
	Item api.Item `json:"item"`
}

// TestNotificationRequest triggers a notification test.
type TestNotificationRequest struct{}

// TestNotificationResponse reports test result.
type TestNotificationResponse struct {
	Sent    bool   `json:"sent"`
	Message string `json:"message"`
}
