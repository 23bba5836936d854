//
// Tencent is pleased to support the open source community by making trpc-agent-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-agent-go is licensed under the Apache License Version 2.0.
//
//

// Package client provides an HTTP client for the Arcade tool API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Authorization statuses reported by Arcade.
const (
	StatusPending   = "pending"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

const (
	// formatOpenAI asks Arcade for OpenAI function definitions.
	formatOpenAI = "openai"
	// maxStatusWait is the longest long-poll the status endpoint accepts.
	maxStatusWait = 59 * time.Second
	// defaultPollInterval spaces status polls when the server answers early.
	defaultPollInterval = time.Second
)

// ErrAuthorizationFailed is returned when the user did not complete authorization.
var ErrAuthorizationFailed = errors.New("authorization failed")

// Client provides methods to interact with the Arcade API.
type Client struct {
	httpClient   *http.Client
	baseURL      string
	apiKey       string
	userAgent    string
	pollInterval time.Duration
}

// Option configures a Client.
type Option func(*Client)

// WithPollInterval sets the pause between authorization status polls.
func WithPollInterval(d time.Duration) Option {
	return func(c *Client) {
		c.pollInterval = d
	}
}

// New creates a new Arcade client with the provided configuration.
func New(baseURL, apiKey, userAgent string, httpClient *http.Client, opts ...Option) *Client {
	c := &Client{
		baseURL:      strings.TrimRight(baseURL, "/"),
		apiKey:       apiKey,
		userAgent:    userAgent,
		httpClient:   httpClient,
		pollInterval: defaultPollInterval,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// APIError is a non-2xx answer from Arcade.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("arcade API returned status %d", e.StatusCode)
	}
	return fmt.Sprintf("arcade API returned status %d: %s", e.StatusCode, e.Message)
}

// FormattedTool is a tool definition in OpenAI function format.
type FormattedTool struct {
	Type     string             `json:"type"`
	Function FunctionDefinition `json:"function"`
}

// FunctionDefinition describes a callable function.
type FunctionDefinition struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
}

// ToolList is one page of formatted tools.
type ToolList struct {
	Items      []FormattedTool `json:"items"`
	Limit      int             `json:"limit"`
	Offset     int             `json:"offset"`
	PageCount  int             `json:"page_count"`
	TotalCount int             `json:"total_count"`
}

// ListToolsRequest selects a page of a toolkit.
type ListToolsRequest struct {
	Toolkit string
	Limit   int
	Offset  int
}

// AuthorizeRequest asks Arcade to authorize a tool for a user.
type AuthorizeRequest struct {
	ToolName    string `json:"tool_name"`
	UserID      string `json:"user_id"`
	ToolVersion string `json:"tool_version,omitempty"`
}

// Authorization is the state of an authorization request.
type Authorization struct {
	ID         string       `json:"id"`
	Status     string       `json:"status"`
	URL        string       `json:"url,omitempty"`
	UserID     string       `json:"user_id,omitempty"`
	ProviderID string       `json:"provider_id,omitempty"`
	Scopes     []string     `json:"scopes,omitempty"`
	Context    *AuthContext `json:"context,omitempty"`
}

// AuthContext carries the token of a completed authorization.
type AuthContext struct {
	Token string `json:"token,omitempty"`
}

// Completed reports whether the authorization is done.
func (a *Authorization) Completed() bool {
	return a != nil && a.Status == StatusCompleted
}

// ExecuteRequest runs a tool on behalf of a user.
type ExecuteRequest struct {
	ToolName    string         `json:"tool_name"`
	UserID      string         `json:"user_id,omitempty"`
	Input       map[string]any `json:"input,omitempty"`
	ToolVersion string         `json:"tool_version,omitempty"`
}

// ExecuteResponse is the result of a tool execution.
type ExecuteResponse struct {
	ID          string         `json:"id"`
	ExecutionID string         `json:"execution_id"`
	Duration    float64        `json:"duration"`
	FinishedAt  string         `json:"finished_at"`
	Status      string         `json:"status"`
	Success     bool           `json:"success"`
	Output      *ExecuteOutput `json:"output,omitempty"`
}

// ExecuteOutput holds the value or the error of an execution.
type ExecuteOutput struct {
	Value         json.RawMessage `json:"value,omitempty"`
	Error         *ToolError      `json:"error,omitempty"`
	Authorization *Authorization  `json:"authorization,omitempty"`
	Logs          []ToolLog       `json:"logs,omitempty"`
}

// ToolError is the error a tool reported.
type ToolError struct {
	Message                 string `json:"message"`
	Kind                    string `json:"kind,omitempty"`
	DeveloperMessage        string `json:"developer_message,omitempty"`
	AdditionalPromptContent string `json:"additional_prompt_content,omitempty"`
	CanRetry                bool   `json:"can_retry,omitempty"`
	RetryAfterMs            int    `json:"retry_after_ms,omitempty"`
}

// ToolLog is a log line emitted during execution.
type ToolLog struct {
	Level   string `json:"level"`
	Message string `json:"message"`
}

// ListTools fetches one page of a toolkit's tools in OpenAI format.
func (c *Client) ListTools(ctx context.Context, req ListToolsRequest) (*ToolList, error) {
	if strings.TrimSpace(req.Toolkit) == "" {
		return nil, fmt.Errorf("toolkit cannot be empty")
	}
	q := url.Values{}
	q.Set("toolkit", req.Toolkit)
	q.Set("format", formatOpenAI)
	if req.Limit > 0 {
		q.Set("limit", strconv.Itoa(req.Limit))
	}
	if req.Offset > 0 {
		q.Set("offset", strconv.Itoa(req.Offset))
	}

	var list ToolList
	if err := c.do(ctx, http.MethodGet, "/v1/formatted_tools?"+q.Encode(), nil, &list); err != nil {
		return nil, err
	}
	return &list, nil
}

// GetTool fetches a single tool in OpenAI format.
func (c *Client) GetTool(ctx context.Context, name string) (*FormattedTool, error) {
	if strings.TrimSpace(name) == "" {
		return nil, fmt.Errorf("tool name cannot be empty")
	}
	q := url.Values{}
	q.Set("format", formatOpenAI)

	var ft FormattedTool
	path := "/v1/formatted_tools/" + url.PathEscape(name) + "?" + q.Encode()
	if err := c.do(ctx, http.MethodGet, path, nil, &ft); err != nil {
		return nil, err
	}
	return &ft, nil
}

// Authorize starts (or confirms) authorization of a tool for a user.
func (c *Client) Authorize(ctx context.Context, req AuthorizeRequest) (*Authorization, error) {
	if req.ToolName == "" || req.UserID == "" {
		return nil, fmt.Errorf("tool name and user id are required")
	}
	var auth Authorization
	if err := c.do(ctx, http.MethodPost, "/v1/tools/authorize", req, &auth); err != nil {
		return nil, err
	}
	return &auth, nil
}

// AuthStatus reads the status of an authorization, long-polling up to wait.
func (c *Client) AuthStatus(ctx context.Context, id string, wait time.Duration) (*Authorization, error) {
	if id == "" {
		return nil, fmt.Errorf("authorization id cannot be empty")
	}
	if wait > maxStatusWait {
		wait = maxStatusWait
	}
	q := url.Values{}
	q.Set("id", id)
	if secs := int(wait / time.Second); secs > 0 {
		q.Set("wait", strconv.Itoa(secs))
	}

	var auth Authorization
	if err := c.do(ctx, http.MethodGet, "/v1/auth/status?"+q.Encode(), nil, &auth); err != nil {
		return nil, err
	}
	return &auth, nil
}

// WaitForCompletion polls the authorization until it completes, fails or ctx ends.
// Transport errors and 5xx answers are retried with exponential backoff.
func (c *Client) WaitForCompletion(ctx context.Context, id string) (*Authorization, error) {
	for {
		var auth *Authorization
		op := func() error {
			a, err := c.AuthStatus(ctx, id, maxStatusWait)
			if err != nil {
				var apiErr *APIError
				if errors.As(err, &apiErr) && apiErr.StatusCode < http.StatusInternalServerError {
					return backoff.Permanent(err)
				}
				return err
			}
			auth = a
			return nil
		}
		if err := backoff.Retry(op, backoff.WithContext(backoff.NewExponentialBackOff(), ctx)); err != nil {
			return nil, fmt.Errorf("failed to wait for authorization %s: %w", id, err)
		}

		switch auth.Status {
		case StatusCompleted:
			return auth, nil
		case StatusFailed:
			return auth, fmt.Errorf("authorization %s: %w", id, ErrAuthorizationFailed)
		}

		select {
		case <-ctx.Done():
			return auth, ctx.Err()
		case <-time.After(c.pollInterval):
		}
	}
}

// Execute runs a tool.
func (c *Client) Execute(ctx context.Context, req ExecuteRequest) (*ExecuteResponse, error) {
	if req.ToolName == "" {
		return nil, fmt.Errorf("tool name cannot be empty")
	}
	var resp ExecuteResponse
	if err := c.do(ctx, http.MethodPost, "/v1/tools/execute", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// do performs a request against the API and decodes the JSON answer into out.
func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	// Set headers.
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to perform request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &APIError{StatusCode: resp.StatusCode, Message: errorMessage(data)}
	}

	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}

// errorMessage extracts a readable message from an error body.
func errorMessage(data []byte) string {
	var body struct {
		Message string `json:"message"`
		Error   string `json:"error"`
		Name    string `json:"name"`
	}
	if err := json.Unmarshal(data, &body); err == nil {
		switch {
		case body.Message != "":
			return body.Message
		case body.Error != "":
			return body.Error
		case body.Name != "":
			return body.Name
		}
	}
	return strings.TrimSpace(string(data))
}
