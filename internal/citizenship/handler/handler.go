// Package handler exposes the citizenship registration endpoints. All routes
// require a resolved session; the acting user comes from request context,
// never from the request body.
package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"op-atlas/internal/citizenship/models"
	id "op-atlas/pkg/domain"
	dErrors "op-atlas/pkg/domain-errors"
	"op-atlas/pkg/platform/httputil"
	"op-atlas/pkg/requestcontext"
)

// Service defines the citizenship operations the handler dispatches to.
type Service interface {
	EvaluateEligibility(subject id.Subject, signals models.EligibilitySignals) models.Qualification
	Register(ctx context.Context, subject id.Subject, seasonID id.SeasonID, rawAddress string) (*models.CitizenRegistration, error)
	Resign(ctx context.Context, registrationID id.RegistrationID, actingUserID id.UserID) error
}

type Handler struct {
	logger  *slog.Logger
	service Service
}

func New(svc Service, logger *slog.Logger) *Handler {
	return &Handler{logger: logger, service: svc}
}

// Register mounts the citizenship routes. Session middleware is applied by
// the caller so the whole group shares one authentication path.
func (h *Handler) Register(r chi.Router) {
	r.Post("/api/citizenship/register", h.handleRegister)
	r.Post("/api/citizenship/resign", h.handleResign)
	r.Get("/api/citizenship/eligibility", h.handleEligibility)
}

type registerRequest struct {
	SubjectType       string `json:"subjectType"`
	SubjectID         string `json:"subjectId"`
	SeasonID          string `json:"seasonId"`
	GovernanceAddress string `json:"governanceAddress"`
	ContactEmail      string `json:"contactEmail"`
	DisplayName       string `json:"displayName"`
}

type registerResponse struct {
	Success        bool   `json:"success"`
	RegistrationID string `json:"registrationId"`
	AttestationID  string `json:"attestationId"`
}

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	subject, err := h.buildSubject(ctx, req.SubjectType, req.SubjectID, req.DisplayName, req.ContactEmail)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	seasonID, err := id.ParseSeasonID(req.SeasonID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	registration, err := h.service.Register(ctx, subject, seasonID, req.GovernanceAddress)
	if err != nil {
		h.logger.WarnContext(ctx, "citizen registration failed",
			"request_id", requestcontext.RequestID(ctx),
			"subject", subject.Key(),
			"season_id", seasonID,
			"error", err.Error(),
		)
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, registerResponse{
		Success:        true,
		RegistrationID: registration.ID.String(),
		AttestationID:  registration.AttestationID.String(),
	})
}

type resignRequest struct {
	RegistrationID string `json:"registrationId"`
}

func (h *Handler) handleResign(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req resignRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	registrationID, err := id.ParseRegistrationID(req.RegistrationID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	actingUserID := requestcontext.UserID(ctx)
	if actingUserID.IsZero() {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "session required"))
		return
	}

	if err := h.service.Resign(ctx, registrationID, actingUserID); err != nil {
		h.logger.WarnContext(ctx, "citizen resignation failed",
			"request_id", requestcontext.RequestID(ctx),
			"registration_id", registrationID,
			"error", err.Error(),
		)
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// handleEligibility evaluates the rules over caller-supplied signals. It
// reads everything from query parameters so the check stays a cheap GET.
func (h *Handler) handleEligibility(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()

	subject, err := h.buildSubject(ctx, q.Get("subjectType"), q.Get("subjectId"), "", "")
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	// A malformed address counts as no address on file, not an error: the
	// endpoint reports what the subject still needs.
	address, _ := id.ParseGovernanceAddress(q.Get("governanceAddress"))

	signals := models.EligibilitySignals{
		VerifiedEmail:     queryBool(q.Get("verifiedEmail")),
		GitHubLinked:      queryBool(q.Get("githubLinked")),
		NotADeveloper:     queryBool(q.Get("notADeveloper")),
		GovernanceAddress: address,
		PassportScore:     queryFloat(q.Get("passportScore")),
		WorldIDVerified:   queryBool(q.Get("worldIdVerified")),
		ContributionShare: queryFloat(q.Get("contributionShare")),
	}

	httputil.WriteJSON(w, http.StatusOK, h.service.EvaluateEligibility(subject, signals))
}

// buildSubject assembles the tagged union from wire fields. A user subject
// must match the session user: registering someone else is not a thing.
func (h *Handler) buildSubject(ctx context.Context, subjectType, subjectID, displayName, contactEmail string) (id.Subject, error) {
	kind, err := id.ParseSubjectType(subjectType)
	if err != nil {
		return id.Subject{}, err
	}

	switch kind {
	case id.SubjectTypeUser:
		userID, err := id.ParseUserID(subjectID)
		if err != nil {
			return id.Subject{}, err
		}
		if sessionUser := requestcontext.UserID(ctx); !sessionUser.IsZero() && sessionUser != userID {
			return id.Subject{}, dErrors.New(dErrors.CodeForbidden, "cannot act for another user")
		}
		return id.UserSubject(userID, displayName, contactEmail), nil
	case id.SubjectTypeOrganization:
		orgID, err := id.ParseOrganizationID(subjectID)
		if err != nil {
			return id.Subject{}, err
		}
		return id.OrganizationSubject(orgID, displayName, contactEmail), nil
	default:
		projectID, err := id.ParseProjectID(subjectID)
		if err != nil {
			return id.Subject{}, err
		}
		return id.ProjectSubject(projectID, displayName, contactEmail), nil
	}
}

func queryBool(s string) bool {
	v, _ := strconv.ParseBool(s)
	return v
}

func queryFloat(s string) float64 {
	v, _ := strconv.ParseFloat(s, 64)
	return v
}
