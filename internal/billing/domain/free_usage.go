package domain

import (
	"strings"
	"time"
)

// MaxFingerprintLength bounds the opaque client fingerprint.
const MaxFingerprintLength = 256

// FreeCounter names a per-device free-tier counter.
type FreeCounter string

const (
	CounterAsk      FreeCounter = "ask_used"
	CounterDetail   FreeCounter = "detail_used"
	CounterSynastry FreeCounter = "synastry_used"
)

// IsValid reports whether c is a known counter.
func (c FreeCounter) IsValid() bool {
	return c == CounterAsk || c == CounterDetail || c == CounterSynastry
}

// FreeUsage holds the anonymous free-tier counters of one device.
// Counters only ever increase; rows are never deleted.
type FreeUsage struct {
	Fingerprint  string
	IPAddress    string
	AskUsed      int
	DetailUsed   int
	SynastryUsed int
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Used returns the value of counter c.
func (u *FreeUsage) Used(c FreeCounter) int {
	if u == nil {
		return 0
	}
	switch c {
	case CounterAsk:
		return u.AskUsed
	case CounterDetail:
		return u.DetailUsed
	case CounterSynastry:
		return u.SynastryUsed
	default:
		return 0
	}
}

// ValidateFingerprint checks a device fingerprint before it is used as a storage key.
func ValidateFingerprint(fingerprint string) error {
	if strings.TrimSpace(fingerprint) == "" || len(fingerprint) > MaxFingerprintLength {
		return ErrInvalidFingerprint
	}
	return nil
}
