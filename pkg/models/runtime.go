package models

// RuntimeInfo describes the backend settings the frontend needs to reach the API.
type RuntimeInfo struct {
	HTTPBaseURL string `json:"http_base_url"`
	Port        int    `json:"port"`
	Model       string `json:"default_model"`
}
