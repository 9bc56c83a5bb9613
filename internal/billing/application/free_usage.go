package application

import (
	"context"
	"fmt"

	"github.com/cosmiq-app/cosmiq/internal/billing/domain"
)

// GetFreeUsage returns the device's counters, or nil when it was never seen.
func (s *Service) GetFreeUsage(ctx context.Context, fingerprint string) (*domain.FreeUsage, error) {
	if err := domain.ValidateFingerprint(fingerprint); err != nil {
		return nil, err
	}
	usage, err := s.free.Get(ctx, fingerprint)
	if err != nil {
		return nil, fmt.Errorf("get free usage: %w", err)
	}
	return usage, nil
}

// GetOrCreateFreeUsage returns the device's counters, creating a zeroed row on first sight.
func (s *Service) GetOrCreateFreeUsage(ctx context.Context, fingerprint, ip string) (*domain.FreeUsage, error) {
	if err := domain.ValidateFingerprint(fingerprint); err != nil {
		return nil, err
	}
	usage, err := s.free.GetOrCreate(ctx, fingerprint, ip)
	if err != nil {
		return nil, fmt.Errorf("get or create free usage: %w", err)
	}
	return usage, nil
}

// consumeFreeUsage spends one free use of feature for the device.
func (s *Service) consumeFreeUsage(ctx context.Context, fingerprint string, feature domain.Feature, ip string) (bool, error) {
	counter, ok := feature.FreeCounter()
	if !ok {
		return false, nil
	}
	limit := s.limits.FreeLimit(counter)

	usage, err := s.GetOrCreateFreeUsage(ctx, fingerprint, ip)
	if err != nil {
		return false, err
	}
	if usage.Used(counter) >= limit {
		return false, nil
	}

	incremented, err := s.free.Increment(ctx, fingerprint, counter, limit)
	if err != nil {
		return false, fmt.Errorf("increment free usage: %w", err)
	}
	return incremented, nil
}
