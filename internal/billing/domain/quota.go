package domain

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// Quota is a remaining allowance: a non-negative count or Unlimited.
type Quota int

// Unlimited marks an allowance that can never be exhausted.
const Unlimited Quota = -1

const unlimitedJSON = "unlimited"

// RemainingQuota returns max(0, limit-used).
func RemainingQuota(limit, used int) Quota {
	if used >= limit {
		return 0
	}
	return Quota(limit - used)
}

// IsUnlimited reports whether q is unbounded.
func (q Quota) IsUnlimited() bool {
	return q == Unlimited
}

// Available reports whether at least one unit can be used.
func (q Quota) Available() bool {
	return q.IsUnlimited() || q > 0
}

func (q Quota) String() string {
	if q.IsUnlimited() {
		return unlimitedJSON
	}
	return strconv.Itoa(int(q))
}

// MarshalJSON encodes Unlimited as "unlimited" and counts as numbers.
func (q Quota) MarshalJSON() ([]byte, error) {
	if q.IsUnlimited() {
		return json.Marshal(unlimitedJSON)
	}
	return json.Marshal(int(q))
}

// UnmarshalJSON accepts either a number or "unlimited".
func (q *Quota) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		if s != unlimitedJSON {
			return fmt.Errorf("invalid quota %q", s)
		}
		*q = Unlimited
		return nil
	}
	var n int
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("invalid quota: %w", err)
	}
	if n < 0 {
		return fmt.Errorf("invalid quota %d", n)
	}
	*q = Quota(n)
	return nil
}
