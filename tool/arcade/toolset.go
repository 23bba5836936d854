//
// Tencent is pleased to support the open source community by making trpc-agent-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-agent-go is licensed under the Apache License Version 2.0.
//
//

// Package arcade exposes the tools of hosted Arcade toolkits (Dropbox, Slack,
// Notion, ...) as agent tools. Tool definitions are fetched from the Arcade
// API, and every call is executed remotely on behalf of the session's user.
package arcade

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"trpc.group/trpc-go/trpc-agent-go/tool"

	"github.com/arcade-agents/trpc-agent-dropbox/log"
	"github.com/arcade-agents/trpc-agent-dropbox/tool/arcade/internal/client"
)

const (
	// DefaultBaseURL is the hosted Arcade API.
	DefaultBaseURL = "https://api.arcade.dev"
	// DefaultLimit caps the number of tool definitions fetched.
	DefaultLimit = 100
	// defaultUserAgent is the default user agent for HTTP requests.
	defaultUserAgent = "trpc-agent-dropbox/1.0"
	// defaultTimeout bounds a single API request. Status long-polls take up to a minute.
	defaultTimeout = 90 * time.Second
)

// Option is a functional option for configuring the tool set.
type Option func(*config)

type config struct {
	name          string
	baseURL       string
	apiKey        string
	userID        string
	userAgent     string
	httpClient    *http.Client
	toolkits      []string
	tools         []string
	limit         int
	artifactTools map[string]bool
	toolFilter    ToolFilter
	clientOpts    []client.Option
}

// WithName sets the tool set name.
func WithName(name string) Option {
	return func(c *config) {
		c.name = name
	}
}

// WithBaseURL sets the base URL for the Arcade API.
func WithBaseURL(baseURL string) Option {
	return func(c *config) {
		c.baseURL = baseURL
	}
}

// WithAPIKey sets the Arcade API key.
func WithAPIKey(key string) Option {
	return func(c *config) {
		c.apiKey = key
	}
}

// WithUserID sets the user tools run for when no session user is known.
func WithUserID(userID string) Option {
	return func(c *config) {
		c.userID = userID
	}
}

// WithUserAgent sets the user agent for HTTP requests.
func WithUserAgent(userAgent string) Option {
	return func(c *config) {
		c.userAgent = userAgent
	}
}

// WithHTTPClient sets the HTTP client to use.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *config) {
		c.httpClient = httpClient
	}
}

// WithToolkits sets the toolkits whose tools are all fetched.
func WithToolkits(toolkits ...string) Option {
	return func(c *config) {
		c.toolkits = toolkits
	}
}

// WithTools adds individual tools, e.g. "Slack.SendMessage", outside the toolkits.
func WithTools(tools ...string) Option {
	return func(c *config) {
		c.tools = tools
	}
}

// WithLimit caps the number of tool definitions fetched per toolkit.
func WithLimit(limit int) Option {
	return func(c *config) {
		c.limit = limit
	}
}

// WithArtifactTools names tools whose successful output is kept as a session artifact.
func WithArtifactTools(names ...string) Option {
	return func(c *config) {
		c.artifactTools = nameSet(names)
	}
}

// WithToolFilter sets a filter applied after fetching.
func WithToolFilter(f ToolFilter) Option {
	return func(c *config) {
		c.toolFilter = f
	}
}

// WithAuthPollInterval sets the pause between authorization status polls.
func WithAuthPollInterval(d time.Duration) Option {
	return func(c *config) {
		c.clientOpts = append(c.clientOpts, client.WithPollInterval(d))
	}
}

// ToolSet implements tool.ToolSet for Arcade toolkits.
type ToolSet struct {
	config config
	client *client.Client
	mu     sync.RWMutex
	tools  []tool.Tool
}

var _ tool.ToolSet = (*ToolSet)(nil)

// NewToolSet creates a new Arcade tool set with the provided options.
func NewToolSet(opts ...Option) *ToolSet {
	cfg := config{
		name:      "arcade",
		baseURL:   DefaultBaseURL,
		userAgent: defaultUserAgent,
		limit:     DefaultLimit,
		httpClient: &http.Client{
			Timeout: defaultTimeout,
		},
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.limit <= 0 {
		cfg.limit = DefaultLimit
	}

	return &ToolSet{
		config: cfg,
		client: client.New(cfg.baseURL, cfg.apiKey, cfg.userAgent, cfg.httpClient, cfg.clientOpts...),
	}
}

// Tools implements the ToolSet interface.
// The first successful fetch is cached; later failures keep the cached tools.
func (ts *ToolSet) Tools(ctx context.Context) []tool.Tool {
	ts.mu.RLock()
	cached := ts.tools
	ts.mu.RUnlock()
	if cached != nil {
		return cached
	}

	tools, err := ts.Load(ctx)
	if err != nil {
		log.Errorf("Failed to fetch Arcade tools: %v", err)
		return nil
	}
	return tools
}

// Load fetches the tool definitions and replaces the cache.
func (ts *ToolSet) Load(ctx context.Context) ([]tool.Tool, error) {
	var (
		tools []tool.Tool
		seen  = make(map[string]bool)
	)
	add := func(t *arcadeTool) {
		if seen[t.name] {
			return
		}
		seen[t.name] = true
		tools = append(tools, t)
	}

	for _, toolkit := range ts.config.toolkits {
		defs, err := ts.listToolkit(ctx, toolkit)
		if err != nil {
			return nil, err
		}
		for _, def := range defs {
			t, err := newArcadeTool(def, toolkit, ts)
			if err != nil {
				return nil, err
			}
			add(t)
		}
	}

	for _, name := range ts.config.tools {
		def, err := ts.client.GetTool(ctx, name)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch tool %s: %w", name, err)
		}
		t, err := newArcadeTool(*def, "", ts)
		if err != nil {
			return nil, err
		}
		t.qualifiedName = qualifiedName(name, "")
		add(t)
	}

	tools = ts.applyFilter(ctx, tools)
	log.Infof("Fetched %d Arcade tools", len(tools))

	if tools == nil {
		tools = []tool.Tool{}
	}
	ts.mu.Lock()
	ts.tools = tools
	ts.mu.Unlock()
	return tools, nil
}

// listToolkit pages through a toolkit until the limit is reached or no items remain.
func (ts *ToolSet) listToolkit(ctx context.Context, toolkit string) ([]client.FormattedTool, error) {
	var defs []client.FormattedTool
	for len(defs) < ts.config.limit {
		page, err := ts.client.ListTools(ctx, client.ListToolsRequest{
			Toolkit: toolkit,
			Limit:   ts.config.limit - len(defs),
			Offset:  len(defs),
		})
		if err != nil {
			return nil, fmt.Errorf("failed to list tools of toolkit %s: %w", toolkit, err)
		}
		defs = append(defs, page.Items...)
		if len(page.Items) == 0 || (page.TotalCount > 0 && len(defs) >= page.TotalCount) {
			break
		}
	}
	if len(defs) > ts.config.limit {
		defs = defs[:ts.config.limit]
	}
	log.Debugf("Toolkit %s returned %d tool definitions", toolkit, len(defs))
	return defs, nil
}

func (ts *ToolSet) applyFilter(ctx context.Context, tools []tool.Tool) []tool.Tool {
	if ts.config.toolFilter == nil {
		return tools
	}
	infos := make([]ToolInfo, len(tools))
	for i, t := range tools {
		decl := t.Declaration()
		infos[i] = ToolInfo{Name: decl.Name, Description: decl.Description}
	}
	keep := make(map[string]bool)
	for _, info := range ts.config.toolFilter.Filter(ctx, infos) {
		keep[info.Name] = true
	}
	var filtered []tool.Tool
	for _, t := range tools {
		if keep[t.Declaration().Name] {
			filtered = append(filtered, t)
		}
	}
	return filtered
}

// Close implements the ToolSet interface.
func (ts *ToolSet) Close() error {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	ts.tools = nil
	return nil
}

// Name implements the ToolSet interface.
func (ts *ToolSet) Name() string {
	return ts.config.name
}
