package handler

import (
	"context"
	"log/slog"
	"net/http"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"op-atlas/internal/citizenship/eligibility"
	"op-atlas/internal/citizenship/models"
	id "op-atlas/pkg/domain"
	dErrors "op-atlas/pkg/domain-errors"
	"op-atlas/pkg/requestcontext"
	"op-atlas/pkg/testutil"
)

type stubService struct {
	registration *models.CitizenRegistration
	registerErr  error
	resignErr    error

	gotSubject  id.Subject
	gotSeason   id.SeasonID
	gotAddress  string
	gotActing   id.UserID
	gotResignID id.RegistrationID
}

func (s *stubService) EvaluateEligibility(subject id.Subject, signals models.EligibilitySignals) models.Qualification {
	return eligibility.Evaluate(subject, signals)
}

func (s *stubService) Register(_ context.Context, subject id.Subject, seasonID id.SeasonID, rawAddress string) (*models.CitizenRegistration, error) {
	s.gotSubject = subject
	s.gotSeason = seasonID
	s.gotAddress = rawAddress
	if s.registerErr != nil {
		return nil, s.registerErr
	}
	return s.registration, nil
}

func (s *stubService) Resign(_ context.Context, registrationID id.RegistrationID, actingUserID id.UserID) error {
	s.gotResignID = registrationID
	s.gotActing = actingUserID
	return s.resignErr
}

func newRouter(stub *stubService, sessionUser id.UserID) http.Handler {
	h := New(stub, slog.Default())
	r := chi.NewRouter()
	if !sessionUser.IsZero() {
		r.Use(func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
				ctx := requestcontext.WithUserID(req.Context(), sessionUser)
				next.ServeHTTP(w, req.WithContext(ctx))
			})
		})
	}
	h.Register(r)
	return r
}

const testAttestationID = "0x" + "ab12cd34ef56ab12cd34ef56ab12cd34ef56ab12cd34ef56ab12cd34ef56ab12"

func TestHandleRegister(t *testing.T) {
	userID := id.UserID(uuid.New())
	registration := &models.CitizenRegistration{
		ID:            id.RegistrationID(uuid.New()),
		SeasonID:      "S7",
		Status:        models.StatusAttested,
		AttestationID: id.AttestationID(testAttestationID),
		CreatedAt:     time.Now(),
	}

	t.Run("registers the session user", func(t *testing.T) {
		stub := &stubService{registration: registration}
		router := newRouter(stub, userID)

		req := testutil.NewJSONRequest(t, http.MethodPost, "/api/citizenship/register", map[string]string{
			"subjectType":       "user",
			"subjectId":         userID.String(),
			"seasonId":          "S7",
			"governanceAddress": "0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed",
			"contactEmail":      "ada@example.com",
		})
		rr := testutil.DoRequest(router, req)

		require.Equal(t, http.StatusOK, rr.Code)
		var resp registerResponse
		testutil.DecodeJSON(t, rr, &resp)
		assert.True(t, resp.Success)
		assert.Equal(t, registration.ID.String(), resp.RegistrationID)
		assert.Equal(t, testAttestationID, resp.AttestationID)

		assert.Equal(t, id.SubjectTypeUser, stub.gotSubject.Kind)
		assert.Equal(t, userID, stub.gotSubject.UserID)
		assert.Equal(t, "ada@example.com", stub.gotSubject.ContactEmail)
		assert.Equal(t, id.SeasonID("S7"), stub.gotSeason)
	})

	t.Run("registering another user is forbidden", func(t *testing.T) {
		stub := &stubService{registration: registration}
		router := newRouter(stub, userID)

		req := testutil.NewJSONRequest(t, http.MethodPost, "/api/citizenship/register", map[string]string{
			"subjectType":       "user",
			"subjectId":         uuid.NewString(),
			"seasonId":          "S7",
			"governanceAddress": "0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed",
		})
		rr := testutil.DoRequest(router, req)

		assert.Equal(t, http.StatusForbidden, rr.Code)
	})

	t.Run("season limit maps to 409", func(t *testing.T) {
		stub := &stubService{registerErr: dErrors.New(dErrors.CodeLimitExceeded,
			"Citizen registration limit has been reached for this season")}
		router := newRouter(stub, userID)

		req := testutil.NewJSONRequest(t, http.MethodPost, "/api/citizenship/register", map[string]string{
			"subjectType":       "user",
			"subjectId":         userID.String(),
			"seasonId":          "S7",
			"governanceAddress": "0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed",
		})
		rr := testutil.DoRequest(router, req)

		assert.Equal(t, http.StatusConflict, rr.Code)
		assert.Contains(t, rr.Body.String(), "Citizen registration limit has been reached for this season")
	})

	t.Run("blocked subject maps to 403", func(t *testing.T) {
		stub := &stubService{registerErr: dErrors.New(dErrors.CodeBlocked, "subject is blocked from citizenship this season")}
		router := newRouter(stub, userID)

		req := testutil.NewJSONRequest(t, http.MethodPost, "/api/citizenship/register", map[string]string{
			"subjectType":       "user",
			"subjectId":         userID.String(),
			"seasonId":          "S7",
			"governanceAddress": "0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed",
		})
		rr := testutil.DoRequest(router, req)

		assert.Equal(t, http.StatusForbidden, rr.Code)
	})

	t.Run("invalid season id is rejected", func(t *testing.T) {
		stub := &stubService{registration: registration}
		router := newRouter(stub, userID)

		req := testutil.NewJSONRequest(t, http.MethodPost, "/api/citizenship/register", map[string]string{
			"subjectType":       "user",
			"subjectId":         userID.String(),
			"seasonId":          "",
			"governanceAddress": "0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed",
		})
		rr := testutil.DoRequest(router, req)

		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})
}

func TestHandleResign(t *testing.T) {
	userID := id.UserID(uuid.New())
	registrationID := id.RegistrationID(uuid.New())

	t.Run("resigns with the session user as actor", func(t *testing.T) {
		stub := &stubService{}
		router := newRouter(stub, userID)

		req := testutil.NewJSONRequest(t, http.MethodPost, "/api/citizenship/resign", map[string]string{
			"registrationId": registrationID.String(),
		})
		rr := testutil.DoRequest(router, req)

		require.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, registrationID, stub.gotResignID)
		assert.Equal(t, userID, stub.gotActing)
	})

	t.Run("missing session is unauthorized", func(t *testing.T) {
		stub := &stubService{}
		router := newRouter(stub, id.UserID{})

		req := testutil.NewJSONRequest(t, http.MethodPost, "/api/citizenship/resign", map[string]string{
			"registrationId": registrationID.String(),
		})
		rr := testutil.DoRequest(router, req)

		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	})

	t.Run("forbidden resign surfaces 403", func(t *testing.T) {
		stub := &stubService{resignErr: dErrors.New(dErrors.CodeForbidden, "only the registered user may resign")}
		router := newRouter(stub, userID)

		req := testutil.NewJSONRequest(t, http.MethodPost, "/api/citizenship/resign", map[string]string{
			"registrationId": registrationID.String(),
		})
		rr := testutil.DoRequest(router, req)

		assert.Equal(t, http.StatusForbidden, rr.Code)
	})
}

func TestHandleEligibility(t *testing.T) {
	userID := id.UserID(uuid.New())
	stub := &stubService{}
	router := newRouter(stub, userID)

	t.Run("eligible individual", func(t *testing.T) {
		req := testutil.NewRequest(t, http.MethodGet,
			"/api/citizenship/eligibility?subjectType=user&subjectId="+userID.String()+
				"&verifiedEmail=true&githubLinked=true&passportScore=25"+
				"&governanceAddress=0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed")
		rr := testutil.DoRequest(router, req)

		require.Equal(t, http.StatusOK, rr.Code)
		var q models.Qualification
		testutil.DecodeJSON(t, rr, &q)
		assert.True(t, q.Eligible)
	})

	t.Run("malformed governance address counts as missing", func(t *testing.T) {
		req := testutil.NewRequest(t, http.MethodGet,
			"/api/citizenship/eligibility?subjectType=user&subjectId="+userID.String()+
				"&verifiedEmail=true&githubLinked=true&passportScore=25"+
				"&governanceAddress=deadbeef")
		rr := testutil.DoRequest(router, req)

		require.Equal(t, http.StatusOK, rr.Code)
		var q models.Qualification
		testutil.DecodeJSON(t, rr, &q)
		assert.False(t, q.Eligible)
		assert.Equal(t, "a primary governance address is required", q.Reason)
	})

	t.Run("ineligible individual carries a reason", func(t *testing.T) {
		req := testutil.NewRequest(t, http.MethodGet,
			"/api/citizenship/eligibility?subjectType=user&subjectId="+userID.String()+
				"&verifiedEmail=false")
		rr := testutil.DoRequest(router, req)

		require.Equal(t, http.StatusOK, rr.Code)
		var q models.Qualification
		testutil.DecodeJSON(t, rr, &q)
		assert.False(t, q.Eligible)
		assert.NotEmpty(t, q.Reason)
	})
}
