package models

// TickReport summarizes one scheduler invocation for logging and alerting.
// It is the only success-path output of a tick; failures additionally leave
// failed run and outbox rows behind as the persistent audit trail.
type TickReport struct {
	UsersConsidered       int `json:"users_considered"`
	SkippedConfig         int `json:"skipped_config"`
	SkippedAlreadyClaimed int `json:"skipped_already_claimed"`
	ClaimFailed           int `json:"claim_failed"`
	Claimed               int `json:"claimed"`
	GeneratedOK           int `json:"generated_ok"`
	GeneratedFailed       int `json:"generated_failed"`
	DeliveredOK           int `json:"delivered_ok"`
	DeliveredFailed       int `json:"delivered_failed"`
	StaleRuns             int `json:"stale_runs"`
}
