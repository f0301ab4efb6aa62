// Package handler exposes the verification and notification-batch HTTP
// endpoints.
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"op-atlas/internal/identity/service"
	"op-atlas/internal/identity/token"
	dErrors "op-atlas/pkg/domain-errors"
	"op-atlas/pkg/platform/httputil"
	"op-atlas/pkg/platform/middleware/admin"
	"op-atlas/pkg/requestcontext"
)

// Service defines the lifecycle operations the handler dispatches to.
type Service interface {
	StartVerification(ctx context.Context, payload *token.Payload) (*service.VerificationLink, error)
	ProcessReminders(ctx context.Context, cutoff time.Time) (*service.BatchResult, error)
	ProcessApprovalNotifications(ctx context.Context) (*service.BatchResult, error)
}

// Handler handles verification-link and cron endpoints.
type Handler struct {
	logger     *slog.Logger
	service    Service
	codec      *token.Codec
	adminToken string
	// reminderWindow bounds how far back a reminder run looks. Records older
	// than this are presumed abandoned.
	reminderWindow time.Duration
}

func New(svc Service, codec *token.Codec, adminToken string, reminderWindow time.Duration, logger *slog.Logger) *Handler {
	if reminderWindow == 0 {
		reminderWindow = 30 * 24 * time.Hour
	}
	return &Handler{
		logger:         logger,
		service:        svc,
		codec:          codec,
		adminToken:     adminToken,
		reminderWindow: reminderWindow,
	}
}

// Register mounts the verification routes. The cron endpoints sit behind the
// admin token; the verify endpoint authenticates via the link token itself.
func (h *Handler) Register(r chi.Router) {
	r.Post("/api/verify/{token}", h.handleVerify)

	r.Group(func(cron chi.Router) {
		cron.Use(admin.RequireAdminToken(h.adminToken, h.logger))
		cron.Get("/api/cron/kyc-reminders", h.handleReminders)
		cron.Get("/api/cron/kyc-approvals", h.handleApprovals)
	})
}

type verifyResponse struct {
	Success     bool   `json:"success"`
	RedirectURL string `json:"redirectUrl"`
	InquiryID   string `json:"inquiryId,omitempty"`
}

// handleVerify exchanges a signed verification-link token for a one-time
// provider URL.
func (h *Handler) handleVerify(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	payload := h.codec.Verify(chi.URLParam(r, "token"))
	if payload == nil {
		// Expired and malformed tokens are indistinguishable to the caller:
		// both mean "request a fresh link".
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid or expired verification token"))
		return
	}

	link, err := h.service.StartVerification(ctx, payload)
	if err != nil {
		h.logger.WarnContext(ctx, "verification start failed",
			"request_id", requestcontext.RequestID(ctx),
			"entity_id", payload.EntityID,
			"error", err.Error(),
		)
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, verifyResponse{
		Success:     true,
		RedirectURL: link.URL,
		InquiryID:   link.InquiryID,
	})
}

type remindersResponse struct {
	RemindersSent int      `json:"remindersSent"`
	Errors        []string `json:"errors"`
}

type approvalsResponse struct {
	ApprovalsSent int      `json:"approvalsSent"`
	Errors        []string `json:"errors"`
}

// handleReminders runs the reminder batch. Always 200: per-record failures
// are reported in the body so the scheduler does not retry the whole batch.
func (h *Handler) handleReminders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	cutoff := requestcontext.Now(ctx).Add(-h.reminderWindow)

	result, err := h.service.ProcessReminders(ctx, cutoff)
	if err != nil {
		h.logger.ErrorContext(ctx, "reminder batch failed",
			"request_id", requestcontext.RequestID(ctx),
			"error", err.Error(),
		)
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, remindersResponse{
		RemindersSent: result.Sent,
		Errors:        result.Errors,
	})
}

func (h *Handler) handleApprovals(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	result, err := h.service.ProcessApprovalNotifications(ctx)
	if err != nil {
		h.logger.ErrorContext(ctx, "approval batch failed",
			"request_id", requestcontext.RequestID(ctx),
			"error", err.Error(),
		)
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, approvalsResponse{
		ApprovalsSent: result.Sent,
		Errors:        result.Errors,
	})
}
