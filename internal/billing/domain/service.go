package domain

import "context"

// FeatureRequest identifies who wants to use which feature.
// UserID is empty for anonymous callers.
type FeatureRequest struct {
	UserID            string
	Feature           Feature
	DeviceFingerprint string
	ReportType        string
	ClientIP          string
}

// EntitlementService arbitrates access to gated features.
type EntitlementService interface {
	GetEntitlements(ctx context.Context, userID, fingerprint string) (Entitlements, error)
	CanUseFeature(ctx context.Context, req FeatureRequest) (Decision, error)
	// ConsumeFeature debits at most one balance. False means the feature was not granted.
	ConsumeFeature(ctx context.Context, req FeatureRequest) (bool, error)
}
