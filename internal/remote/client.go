// Package remote is a client for the email-marketing platform's list API.
//
// Every call is synchronous and issued once. There is no retry policy:
// a failed request is reported to the caller, which decides whether the
// unit of work (page, batch, address) is abandoned.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// HTTPDoer is the interface for executing HTTP requests.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client is the remote list API client
type Client struct {
	baseURL    string
	apiKey     string
	pageSize   int
	httpClient HTTPDoer
}

// NewClient creates a new remote list API client
func NewClient(config Config, timeout time.Duration) *Client {
	pageSize := config.PageSize
	if pageSize <= 0 {
		pageSize = 1000
	}
	return &Client{
		baseURL:    strings.TrimRight(config.BaseURL, "/"),
		apiKey:     config.APIKey,
		pageSize:   pageSize,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// SetHTTPClient sets a custom HTTP client (useful for testing)
func (c *Client) SetHTTPClient(client HTTPDoer) {
	c.httpClient = client
}

// doRequest performs an authenticated request and returns the status and body.
// Status interpretation is left to the caller.
func (c *Client) doRequest(ctx context.Context, method, endpoint string, body any) (int, []byte, error) {
	var reqBody io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return 0, nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		reqBody = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+endpoint, reqBody)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to create request: %w", err)
	}

	// API key as username, placeholder password
	req.SetBasicAuth(c.apiKey, "x")
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("failed to read response body: %w", err)
	}

	return resp.StatusCode, respBody, nil
}

func isSuccess(status int) bool {
	return status >= 200 && status < 300
}

// ========== Member Methods ==========

// FetchMembers returns the lowercased, trimmed addresses of every member of
// listID with the given status. Pages are read in order until the reported
// page count is reached. Any page failure aborts the whole fetch.
func (c *Client) FetchMembers(ctx context.Context, listID string, status MemberStatus) (map[string]struct{}, error) {
	endpoint := fmt.Sprintf("/lists/%s/%s.json", url.PathEscape(listID), status)
	members := make(map[string]struct{})

	for page := 1; ; page++ {
		params := url.Values{}
		params.Set("pagesize", strconv.Itoa(c.pageSize))
		params.Set("page", strconv.Itoa(page))

		code, respBody, err := c.doRequest(ctx, http.MethodGet, endpoint+"?"+params.Encode(), nil)
		if err != nil {
			return nil, fmt.Errorf("fetch %s members page %d: %w", status, page, err)
		}
		if !isSuccess(code) {
			return nil, fmt.Errorf("fetch %s members page %d: %w", status, page, &StatusError{StatusCode: code, Body: string(respBody)})
		}

		var response memberPage
		if err := json.Unmarshal(respBody, &response); err != nil {
			return nil, fmt.Errorf("fetch %s members page %d: failed to parse response: %w", status, page, err)
		}

		for _, r := range response.Results {
			if email := strings.ToLower(strings.TrimSpace(r.EmailAddress)); email != "" {
				members[email] = struct{}{}
			}
		}

		if page >= response.NumberOfPages {
			return members, nil
		}
	}
}

// ========== Subscriber Methods ==========

// ImportBatch upserts up to MaxBatchSize subscribers into listID.
//
// 200, 201 and 400 responses are parsed for counts and per-subscriber
// failures; a 400 may still report partial success. Any other status
// returns a *StatusError and no counts.
func (c *Client) ImportBatch(ctx context.Context, listID string, subs []Subscriber, resubscribe bool) (*ImportResult, error) {
	if len(subs) > MaxBatchSize {
		return nil, fmt.Errorf("import batch of %d exceeds limit of %d", len(subs), MaxBatchSize)
	}

	endpoint := fmt.Sprintf("/subscribers/%s/import.json", url.PathEscape(listID))
	code, respBody, err := c.doRequest(ctx, http.MethodPost, endpoint, importRequest{
		Subscribers: subs,
		Resubscribe: resubscribe,
	})
	if err != nil {
		return nil, err
	}

	switch code {
	case http.StatusOK, http.StatusCreated, http.StatusBadRequest:
	default:
		return nil, &StatusError{StatusCode: code, Body: string(respBody)}
	}

	return parseImportResponse(code, respBody)
}

func parseImportResponse(code int, body []byte) (*ImportResult, error) {
	var response importResponse
	if len(bytes.TrimSpace(body)) > 0 {
		if err := json.Unmarshal(body, &response); err != nil {
			return nil, fmt.Errorf("failed to parse import response (status %d): %w", code, err)
		}
	}

	counts := response.importCounts
	if response.ResultData != nil {
		counts = *response.ResultData
	}

	result := &ImportResult{
		StatusCode: code,
		New:        counts.TotalNewSubscribers,
		Existing:   counts.TotalExistingSubscribers,
		Duplicates: len(counts.DuplicateEmailsInSubmission),
		Failures:   counts.FailureDetails,
	}
	if code == http.StatusBadRequest {
		result.Message = response.Message
	}
	return result, nil
}

// Unsubscribe moves a single address to the list's unsubscribed state.
func (c *Client) Unsubscribe(ctx context.Context, listID, email string) error {
	endpoint := fmt.Sprintf("/subscribers/%s/unsubscribe.json", url.PathEscape(listID))

	code, respBody, err := c.doRequest(ctx, http.MethodPost, endpoint, unsubscribeRequest{EmailAddress: email})
	if err != nil {
		return err
	}
	if !isSuccess(code) {
		return &StatusError{StatusCode: code, Body: string(respBody)}
	}
	return nil
}

// ========== List Methods ==========

// ListDetails retrieves the list's title and settings.
func (c *Client) ListDetails(ctx context.Context, listID string) (*ListDetails, error) {
	endpoint := fmt.Sprintf("/lists/%s.json", url.PathEscape(listID))

	code, respBody, err := c.doRequest(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	if !isSuccess(code) {
		return nil, &StatusError{StatusCode: code, Body: string(respBody)}
	}

	var details ListDetails
	if err := json.Unmarshal(respBody, &details); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	return &details, nil
}
