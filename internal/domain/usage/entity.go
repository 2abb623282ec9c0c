package usage

import (
	"net/url"
	"time"
)

// Unlimited marks a record (or a remaining count) without a daily ceiling
const Unlimited = -1

// Record counts accepted concierge queries for one (user, scope) pair
// within the window that ends at ResetAt.
type Record struct {
	UserID      string    `json:"user_id"`
	ScopeID     string    `json:"scope_id"`
	QueriesUsed int       `json:"queries_used"`
	DailyLimit  int       `json:"daily_limit"` // Unlimited (-1) = no ceiling
	ResetAt     time.Time `json:"reset_at"`
	CreatedAt   time.Time `json:"created_at"`
}

// Key returns the store key for a (user, scope) pair. Both parts are
// query-escaped so a ':' inside an ID cannot collide with the separator.
func Key(userID, scopeID string) string {
	return "usage:" + url.QueryEscape(userID) + ":" + url.QueryEscape(scopeID)
}

// Owns reports whether the record belongs to the (user, scope) pair
func (r Record) Owns(userID, scopeID string) bool {
	return r.UserID == userID && r.ScopeID == scopeID
}

// Expired reports whether the window has ended at now
func (r Record) Expired(now time.Time) bool {
	return !now.Before(r.ResetAt)
}

// IsUnlimited reports whether the record carries no ceiling
func (r Record) IsUnlimited() bool {
	return r.DailyLimit == Unlimited
}

// Remaining returns how many queries are left, or Unlimited
func (r Record) Remaining() int {
	if r.IsUnlimited() {
		return Unlimited
	}
	if left := r.DailyLimit - r.QueriesUsed; left > 0 {
		return left
	}
	return 0
}

// NextMidnight returns the first midnight in loc strictly after t
func NextMidnight(t time.Time, loc *time.Location) time.Time {
	local := t.In(loc)
	y, m, d := local.Date()
	return time.Date(y, m, d+1, 0, 0, 0, 0, loc)
}
