package loadwatchsdk

// HealthResponse is returned by /livez and /readyz.
type HealthResponse struct {
	Status  string        `json:"status"`
	Uptime  string        `json:"uptime,omitempty"`
	Version string        `json:"version,omitempty"`
	Checks  *HealthChecks `json:"checks,omitempty"`
}

// HealthChecks is only present on /readyz.
type HealthChecks struct {
	Database string `json:"database"`
}

// JobResult describes one job invocation.
type JobResult struct {
	Job        string `json:"job"`
	Slot       string `json:"slot"`
	RunID      string `json:"run_id"`
	Recipients int    `json:"recipients"`
	Delivered  int    `json:"delivered"`
	Failed     int    `json:"failed"`

	// Skipped is true when the slot had already been claimed.
	Skipped bool `json:"skipped"`
}
