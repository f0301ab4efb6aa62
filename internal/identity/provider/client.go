// Package provider wraps the external identity-verification service: case
// creation, inquiry creation, inquiry-to-case attachment, one-time links, and
// paginated case lookup.
//
// Retry policy: none. A failed call surfaces immediately as a typed error so
// interactive flows stay responsive; the caller decides whether to retry.
// Exception: FindExistingCaseAndInquiryByEmail degrades to "not found" on
// provider failure because lookup failure must not block the create-new-flow
// fallback.
package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	dErrors "op-atlas/pkg/domain-errors"
)

// CaseLookup is the result of the idempotent reuse lookup. Zero values mean
// "nothing found".
type CaseLookup struct {
	CaseID    string
	InquiryID string
}

// Inquiry is a created verification session.
type Inquiry struct {
	InquiryID   string
	ReferenceID string
	Status      string
}

// Client calls the provider HTTP API with bearer auth and bounded timeouts.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewClient builds a provider client. The timeout bounds every call; there is
// no retry loop behind it.
func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// emailFieldKey is the case form field holding the point-of-contact email,
// matched case-insensitively during lookup.
const emailFieldKey = "poc-email-address"

type caseListResponse struct {
	Data []struct {
		ID         string `json:"id"`
		Attributes struct {
			Fields map[string]struct {
				Value string `json:"value"`
			} `json:"fields"`
		} `json:"attributes"`
		Relationships struct {
			Inquiries struct {
				Data []struct {
					ID string `json:"id"`
				} `json:"data"`
			} `json:"inquiries"`
		} `json:"relationships"`
	} `json:"data"`
	Links struct {
		Next string `json:"next"`
	} `json:"links"`
}

// maxCasePages bounds the case listing walk. A provider that keeps handing
// back a cursor would otherwise spin this loop forever.
const maxCasePages = 20

// FindExistingCaseAndInquiryByEmail pages through provider cases following
// the next cursor and returns the first whose email form field matches. Any
// provider failure returns an empty lookup, never an error.
func (c *Client) FindExistingCaseAndInquiryByEmail(ctx context.Context, email string) CaseLookup {
	next := c.baseURL + "/cases?page[size]=100"
	for pages := 0; next != "" && pages < maxCasePages; pages++ {
		var page caseListResponse
		if err := c.do(ctx, http.MethodGet, next, nil, &page); err != nil {
			return CaseLookup{}
		}
		for _, item := range page.Data {
			field, ok := item.Attributes.Fields[emailFieldKey]
			if !ok || !strings.EqualFold(strings.TrimSpace(field.Value), strings.TrimSpace(email)) {
				continue
			}
			lookup := CaseLookup{CaseID: item.ID}
			if len(item.Relationships.Inquiries.Data) > 0 {
				lookup.InquiryID = item.Relationships.Inquiries.Data[0].ID
			}
			return lookup
		}
		next = page.Links.Next
		if next != "" && !strings.HasPrefix(next, "http") {
			next = c.baseURL + next
		}
	}
	return CaseLookup{}
}

// CreateCase opens a grouping container for a contact identified by email.
func (c *Client) CreateCase(ctx context.Context, pocEmail string) (string, error) {
	body := map[string]any{
		"data": map[string]any{
			"attributes": map[string]any{
				"fields": map[string]any{
					emailFieldKey: map[string]string{"value": pocEmail},
				},
			},
		},
	}
	var resp struct {
		Data struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if err := c.do(ctx, http.MethodPost, c.baseURL+"/cases", body, &resp); err != nil {
		return "", err
	}
	if resp.Data.ID == "" {
		return "", dErrors.New(dErrors.CodeProvider, "provider returned an empty case id")
	}
	return resp.Data.ID, nil
}

// CreateInquiry opens a verification session under a template, stamped with
// our stable reference id so provider records reconcile back to the entity.
func (c *Client) CreateInquiry(ctx context.Context, referenceID, templateID string) (Inquiry, error) {
	body := map[string]any{
		"data": map[string]any{
			"attributes": map[string]any{
				"inquiry-template-id": templateID,
				"reference-id":        referenceID,
			},
		},
	}
	var resp struct {
		Data struct {
			ID         string `json:"id"`
			Attributes struct {
				ReferenceID string `json:"reference-id"`
				Status      string `json:"status"`
			} `json:"attributes"`
		} `json:"data"`
	}
	if err := c.do(ctx, http.MethodPost, c.baseURL+"/inquiries", body, &resp); err != nil {
		return Inquiry{}, err
	}
	if resp.Data.ID == "" {
		return Inquiry{}, dErrors.New(dErrors.CodeProvider, "provider returned an empty inquiry id")
	}
	return Inquiry{
		InquiryID:   resp.Data.ID,
		ReferenceID: resp.Data.Attributes.ReferenceID,
		Status:      resp.Data.Attributes.Status,
	}, nil
}

// AttachInquiryToCase links an inquiry into its case.
func (c *Client) AttachInquiryToCase(ctx context.Context, inquiryID, caseID string) error {
	body := map[string]any{
		"data": []map[string]any{
			{"type": "inquiry", "id": inquiryID},
		},
	}
	endpoint := fmt.Sprintf("%s/cases/%s/relationships/inquiries", c.baseURL, url.PathEscape(caseID))
	return c.do(ctx, http.MethodPost, endpoint, body, nil)
}

// GenerateOneTimeLink mints a single-use verification URL for an inquiry.
func (c *Client) GenerateOneTimeLink(ctx context.Context, inquiryID string) (string, error) {
	endpoint := fmt.Sprintf("%s/inquiries/%s/generate-one-time-link", c.baseURL, url.PathEscape(inquiryID))
	var resp struct {
		Meta struct {
			OneTimeLink string `json:"one-time-link"`
		} `json:"meta"`
	}
	if err := c.do(ctx, http.MethodPost, endpoint, nil, &resp); err != nil {
		return "", err
	}
	if resp.Meta.OneTimeLink == "" {
		return "", dErrors.New(dErrors.CodeProvider, "provider returned an empty one-time link")
	}
	return resp.Meta.OneTimeLink, nil
}

// GetInquiry fetches current inquiry status for reconciliation.
func (c *Client) GetInquiry(ctx context.Context, inquiryID string) (Inquiry, error) {
	endpoint := fmt.Sprintf("%s/inquiries/%s", c.baseURL, url.PathEscape(inquiryID))
	var resp struct {
		Data struct {
			ID         string `json:"id"`
			Attributes struct {
				ReferenceID string `json:"reference-id"`
				Status      string `json:"status"`
			} `json:"attributes"`
		} `json:"data"`
	}
	if err := c.do(ctx, http.MethodGet, endpoint, nil, &resp); err != nil {
		return Inquiry{}, err
	}
	return Inquiry{
		InquiryID:   resp.Data.ID,
		ReferenceID: resp.Data.Attributes.ReferenceID,
		Status:      resp.Data.Attributes.Status,
	}, nil
}

func (c *Client) do(ctx context.Context, method, endpoint string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "marshal provider request")
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "build provider request")
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeProvider, "provider call failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return dErrors.New(dErrors.CodeNotFound, "provider record not found")
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		// Keep a bounded snippet of the provider payload for diagnostics;
		// httputil never exposes it to clients.
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return dErrors.New(dErrors.CodeProvider,
			fmt.Sprintf("provider returned %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet))))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return dErrors.Wrap(err, dErrors.CodeProvider, "malformed provider response")
	}
	return nil
}
