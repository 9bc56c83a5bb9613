package api

import (
	"log/slog"
	"net"
	"net/http"

	"github.com/cosmiq-app/cosmiq/internal/billing/domain"
	"github.com/go-chi/chi/v5"
)

// Request headers set by the upstream auth layer and the client.
const (
	HeaderUserID            = "X-User-ID"
	HeaderDeviceFingerprint = "X-Device-Fingerprint"
	HeaderCorrelationID     = "X-Correlation-ID"
)

// ConsumeResponse is the body of a consumption attempt.
type ConsumeResponse struct {
	Allowed bool           `json:"allowed"`
	Feature domain.Feature `json:"feature"`
	Reason  string         `json:"reason,omitempty"`
}

// EntitlementHandler handles entitlement API requests.
type EntitlementHandler struct {
	service domain.EntitlementService
	logger  *slog.Logger
}

// NewEntitlementHandler creates a new entitlement handler.
func NewEntitlementHandler(service domain.EntitlementService, logger *slog.Logger) *EntitlementHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &EntitlementHandler{service: service, logger: logger}
}

// GetEntitlements handles GET /v1/entitlements
func (h *EntitlementHandler) GetEntitlements(w http.ResponseWriter, r *http.Request) {
	snapshot, err := h.service.GetEntitlements(r.Context(), r.Header.Get(HeaderUserID), r.Header.Get(HeaderDeviceFingerprint))
	if err != nil {
		h.fail(w, r, "get entitlements", err)
		return
	}
	writeJSON(w, http.StatusOK, snapshot)
}

// CheckFeature handles GET /v1/features/{feature}/access
func (h *EntitlementHandler) CheckFeature(w http.ResponseWriter, r *http.Request) {
	req, ok := h.featureRequest(w, r)
	if !ok {
		return
	}
	decision, err := h.service.CanUseFeature(r.Context(), req)
	if err != nil {
		h.fail(w, r, "check feature", err)
		return
	}
	writeJSON(w, http.StatusOK, decision)
}

// ConsumeFeature handles POST /v1/features/{feature}/consume
//
// A denial is a 200 with allowed=false. When the gating rules still allow the
// feature after a failed debit, a concurrent request spent the unit and the
// caller gets a 409 to retry.
func (h *EntitlementHandler) ConsumeFeature(w http.ResponseWriter, r *http.Request) {
	req, ok := h.featureRequest(w, r)
	if !ok {
		return
	}

	ok, err := h.service.ConsumeFeature(r.Context(), req)
	if err != nil {
		h.fail(w, r, "consume feature", err)
		return
	}
	if ok {
		writeJSON(w, http.StatusOK, ConsumeResponse{Allowed: true, Feature: req.Feature})
		return
	}

	decision, err := h.service.CanUseFeature(r.Context(), req)
	if err != nil {
		h.fail(w, r, "consume feature", err)
		return
	}
	decision, raced := domain.ExplainFailedConsume(req, decision)
	if raced {
		writeError(w, ErrConflict)
		return
	}
	writeJSON(w, http.StatusOK, ConsumeResponse{Feature: req.Feature, Reason: decision.Reason})
}

func (h *EntitlementHandler) fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	apiErr := errorFor(err)
	if apiErr.Status >= http.StatusInternalServerError {
		h.logger.ErrorContext(r.Context(), op+" failed", "error", err)
	}
	writeError(w, apiErr)
}

// featureRequest reads the request and writes a 400 when report_type is sent
// for a feature other than report.
func (h *EntitlementHandler) featureRequest(w http.ResponseWriter, r *http.Request) (domain.FeatureRequest, bool) {
	req := domain.FeatureRequest{
		UserID:            r.Header.Get(HeaderUserID),
		Feature:           domain.Feature(chi.URLParam(r, "feature")),
		DeviceFingerprint: r.Header.Get(HeaderDeviceFingerprint),
		ReportType:        r.URL.Query().Get("report_type"),
		ClientIP:          clientIP(r),
	}
	if req.ReportType != "" && req.Feature != domain.FeatureReport {
		writeError(w, ErrBadRequest)
		return req, false
	}
	return req, true
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
