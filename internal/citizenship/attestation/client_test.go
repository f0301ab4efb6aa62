package attestation

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "op-atlas/pkg/domain"
	dErrors "op-atlas/pkg/domain-errors"
)

const validAttestationID = "0x" + "ab12cd34ef56ab12cd34ef56ab12cd34ef56ab12cd34ef56ab12cd34ef56ab12"

func newServer(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL, "test-key", 5*time.Second)
}

func TestCreateCitizenAttestation(t *testing.T) {
	subject := id.UserSubject(id.UserID(uuid.New()), "Ada", "ada@example.com")
	address := id.GovernanceAddress("0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed")

	t.Run("issues and returns the attestation id", func(t *testing.T) {
		client := newServer(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodPost, r.Method)
			assert.Equal(t, "/citizen-attestations", r.URL.Path)
			assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

			var req createRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.True(t, strings.HasPrefix(req.SubjectKey, "user:"))
			assert.Equal(t, "user", req.SubjectType)
			assert.Equal(t, address.String(), req.GovernanceAddress)
			assert.Equal(t, "S7", req.SeasonID)

			json.NewEncoder(w).Encode(createResponse{AttestationID: validAttestationID})
		})

		got, err := client.CreateCitizenAttestation(context.Background(), subject, address, "S7")
		require.NoError(t, err)
		assert.Equal(t, id.AttestationID(validAttestationID), got)
	})

	t.Run("malformed id is a validation error", func(t *testing.T) {
		for _, bad := range []string{"", "0x1234", "ab12", "0x" + strings.Repeat("zz", 32)} {
			client := newServer(t, func(w http.ResponseWriter, _ *http.Request) {
				json.NewEncoder(w).Encode(createResponse{AttestationID: bad})
			})

			_, err := client.CreateCitizenAttestation(context.Background(), subject, address, "S7")
			require.Error(t, err, "id %q must be rejected", bad)
			assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
		}
	})

	t.Run("service failure is a provider error", func(t *testing.T) {
		client := newServer(t, func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})

		_, err := client.CreateCitizenAttestation(context.Background(), subject, address, "S7")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeProvider))
	})
}

func TestRevokeCitizenAttestation(t *testing.T) {
	t.Run("posts to the revoke endpoint", func(t *testing.T) {
		var gotPath string
		client := newServer(t, func(w http.ResponseWriter, r *http.Request) {
			gotPath = r.URL.Path
			w.WriteHeader(http.StatusNoContent)
		})

		err := client.RevokeCitizenAttestation(context.Background(), id.AttestationID(validAttestationID))
		require.NoError(t, err)
		assert.Equal(t, "/citizen-attestations/"+validAttestationID+"/revoke", gotPath)
	})

	t.Run("unknown attestation maps to not found", func(t *testing.T) {
		client := newServer(t, func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		})

		err := client.RevokeCitizenAttestation(context.Background(), id.AttestationID(validAttestationID))
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))
	})
}
