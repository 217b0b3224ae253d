package client

import "time"

// StatusSummary mirrors the daemon's /status response.
type StatusSummary struct {
	Status       string `json:"status"`
	APIURL       string `json:"api_url,omitempty"`
	CliAvailable bool   `json:"cli_available"`
	LastError    string `json:"last_error,omitempty"`
}

// DebugSnapshot mirrors the daemon's /debug response.
type DebugSnapshot struct {
	Status           string    `json:"status"`
	CliPath          string    `json:"cli_path,omitempty"`
	DetectedPort     int       `json:"detected_port,omitempty"`
	APIPrefix        string    `json:"api_prefix,omitempty"`
	WorkingDirectory string    `json:"working_directory,omitempty"`
	StartCount       int       `json:"start_count"`
	RestartCount     int       `json:"restart_count"`
	LastStartAt      time.Time `json:"last_start_at,omitzero"`
	LastConnectedAt  time.Time `json:"last_connected_at,omitzero"`
	LastExitCode     *int      `json:"last_exit_code,omitempty"`
	LastError        string    `json:"last_error,omitempty"`
	Mode             string    `json:"mode,omitempty"`
	APIURL           string    `json:"api_url,omitempty"`
	PID              int       `json:"pid,omitempty"`
}

// EndpointOutcome mirrors one entry of the daemon's /doctor response.
type EndpointOutcome struct {
	Name       string `json:"name"`
	URL        string `json:"url"`
	OK         bool   `json:"ok"`
	HTTPStatus int    `json:"http_status,omitempty"`
	ElapsedMS  int64  `json:"elapsed_ms"`
	Summary    string `json:"summary"`
	Shape      string `json:"shape,omitempty"`
}
