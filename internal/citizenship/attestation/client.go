// Package attestation wraps the external attestation service. Issuance is
// treated as irreversible and billable, so the returned id is validated
// strictly before anything is persisted against it, and callers check
// population limits before calling Issue.
package attestation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	id "op-atlas/pkg/domain"
	dErrors "op-atlas/pkg/domain-errors"
)

// Issuer is the attestation surface the registration engine needs.
type Issuer interface {
	CreateCitizenAttestation(ctx context.Context, subject id.Subject, address id.GovernanceAddress, seasonID id.SeasonID) (id.AttestationID, error)
	RevokeCitizenAttestation(ctx context.Context, attestationID id.AttestationID) error
}

// Client calls the attestation HTTP API with bearer auth and a bounded
// timeout. No retry loop: issuance must not be replayed blindly.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
	}
}

type createRequest struct {
	SubjectKey        string `json:"subject"`
	SubjectType       string `json:"subjectType"`
	GovernanceAddress string `json:"governanceAddress"`
	SeasonID          string `json:"seasonId"`
}

type createResponse struct {
	AttestationID string `json:"attestationId"`
}

// CreateCitizenAttestation issues a citizenship attestation and returns its
// id. A syntactically invalid id in the response is a validation error, not a
// provider error: the issuance may have happened, and the caller must not
// persist a malformed reference to it.
func (c *Client) CreateCitizenAttestation(ctx context.Context, subject id.Subject, address id.GovernanceAddress, seasonID id.SeasonID) (id.AttestationID, error) {
	var resp createResponse
	err := c.do(ctx, http.MethodPost, c.baseURL+"/citizen-attestations", createRequest{
		SubjectKey:        subject.Key(),
		SubjectType:       subject.Kind.String(),
		GovernanceAddress: address.String(),
		SeasonID:          seasonID.String(),
	}, &resp)
	if err != nil {
		return "", err
	}

	attestationID, err := id.ParseAttestationID(resp.AttestationID)
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeValidation, "attestation service returned a malformed id")
	}
	return attestationID, nil
}

// RevokeCitizenAttestation revokes a previously issued attestation.
func (c *Client) RevokeCitizenAttestation(ctx context.Context, attestationID id.AttestationID) error {
	return c.do(ctx, http.MethodPost, c.baseURL+"/citizen-attestations/"+attestationID.String()+"/revoke", nil, nil)
}

func (c *Client) do(ctx context.Context, method, endpoint string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "marshal attestation request")
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "build attestation request")
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeProvider, "attestation call failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return dErrors.New(dErrors.CodeNotFound, "attestation not found")
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return dErrors.New(dErrors.CodeProvider,
			fmt.Sprintf("attestation service returned %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet))))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return dErrors.Wrap(err, dErrors.CodeProvider, "malformed attestation response")
	}
	return nil
}
