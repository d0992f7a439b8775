// Package crewai is a thin protocol client for the remote asynchronous
// idea-generation service: submit a job, poll its status.
package crewai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Typed failures callers branch on. Transport errors and timeouts map onto
// these; a malformed result payload is a separate failure mode handled by the
// orchestrator.
var (
	ErrSubmissionFailed  = errors.New("crewai: submission failed")
	ErrStatusFetchFailed = errors.New("crewai: status fetch failed")
)

// Client talks to the generation service over HTTP with bearer-token auth.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

func New(baseURL, token string, timeout time.Duration) *Client {
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL: baseURL,
		token:   token,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

type kickoffRequest struct {
	Inputs kickoffInputs `json:"inputs"`
}

type kickoffInputs struct {
	Comments string `json:"comments"`
}

type kickoffResponse struct {
	KickoffID string `json:"kickoff_id"`
}

// StatusResponse carries the remote state plus the raw result payload. The
// result is itself a serialized JSON document and is only meaningful when the
// state indicates terminal success; parsing is the caller's concern.
type StatusResponse struct {
	State  string `json:"state"`
	Result string `json:"result"`
}

// Kickoff submits a serialized comment batch and returns the correlation id
// used to poll status.
func (c *Client) Kickoff(ctx context.Context, comments string) (string, error) {
	body, err := json.Marshal(kickoffRequest{Inputs: kickoffInputs{Comments: comments}})
	if err != nil {
		return "", fmt.Errorf("%w: marshal payload: %v", ErrSubmissionFailed, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/kickoff", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("%w: build request: %v", ErrSubmissionFailed, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrSubmissionFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("%w: status %d, body: %s", ErrSubmissionFailed, resp.StatusCode, string(respBody))
	}

	var out kickoffResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("%w: decode response: %v", ErrSubmissionFailed, err)
	}
	if out.KickoffID == "" {
		return "", fmt.Errorf("%w: response missing kickoff_id", ErrSubmissionFailed)
	}
	return out.KickoffID, nil
}

// Status fetches the current state for a correlation id.
func (c *Client) Status(ctx context.Context, kickoffID string) (StatusResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/status/"+kickoffID, nil)
	if err != nil {
		return StatusResponse{}, fmt.Errorf("%w: build request: %v", ErrStatusFetchFailed, err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return StatusResponse{}, fmt.Errorf("%w: %v", ErrStatusFetchFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return StatusResponse{}, fmt.Errorf("%w: status %d for kickoff %s", ErrStatusFetchFailed, resp.StatusCode, kickoffID)
	}

	var out StatusResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return StatusResponse{}, fmt.Errorf("%w: decode response: %v", ErrStatusFetchFailed, err)
	}
	return out, nil
}
