package models

import "time"

// SubscriptionStatus mirrors the backend's /subscription-status response.
type SubscriptionStatus struct {
	Success           bool   `json:"success"`
	Status            string `json:"status"` // "active", "trialing", "canceled", "none", ...
	HasSubscription   bool   `json:"has_subscription"`
	TrialEnd          int64  `json:"trial_end"` // Unix epoch seconds
	CancelAtPeriodEnd bool   `json:"cancel_at_period_end,omitempty"`
	CurrentPeriodEnd  int64  `json:"current_period_end,omitempty"`
	Message           string `json:"message,omitempty"`
}

// TrialEndTime returns TrialEnd as a time, or the zero time when unset.
func (s SubscriptionStatus) TrialEndTime() time.Time {
	if s.TrialEnd <= 0 {
		return time.Time{}
	}
	return time.Unix(s.TrialEnd, 0).UTC()
}

// ActionResult is the generic {success, message} envelope of auth and billing calls.
type ActionResult struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

// ChatAnswer is the AI assistant's reply.
type ChatAnswer struct {
	Success bool             `json:"success"`
	Answer  string           `json:"answer"`
	Queries []string         `json:"queries,omitempty"`
	Data    []map[string]any `json:"data,omitempty"`
	Error   string           `json:"error,omitempty"`
}

// Selection is the {selected: [...]} payload used by table filters and favorites.
type Selection struct {
	Selected []string `json:"selected"`
}
