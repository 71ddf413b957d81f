package models

// QuotaUsage reports one subject's consumption against the per-subject limits
// enforced by the upload session manager.
type QuotaUsage struct {
	Subject        string `json:"subject"`
	ActiveSessions int    `json:"active_sessions"`
	CommitsToday   int    `json:"commits_today"`
	StoredBytes    int64  `json:"stored_bytes"`
}
