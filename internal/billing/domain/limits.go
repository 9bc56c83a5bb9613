package domain

import "fmt"

// Limits are the externally configured free-tier and subscription allowances.
type Limits struct {
	FreeAsk                  int
	FreeDetail               int
	FreeSynastry             int
	MonthlySynastryAllowance int
}

// DefaultLimits returns the stock allowances.
func DefaultLimits() Limits {
	return Limits{
		FreeAsk:                  3,
		FreeDetail:               1,
		FreeSynastry:             1,
		MonthlySynastryAllowance: 3,
	}
}

// Validate rejects negative allowances.
func (l Limits) Validate() error {
	if l.FreeAsk < 0 || l.FreeDetail < 0 || l.FreeSynastry < 0 || l.MonthlySynastryAllowance < 0 {
		return fmt.Errorf("limits must not be negative: %+v", l)
	}
	return nil
}

// FreeLimit returns the free-tier limit guarding counter c.
func (l Limits) FreeLimit(c FreeCounter) int {
	switch c {
	case CounterAsk:
		return l.FreeAsk
	case CounterDetail:
		return l.FreeDetail
	case CounterSynastry:
		return l.FreeSynastry
	default:
		return 0
	}
}
