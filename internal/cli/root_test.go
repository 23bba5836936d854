//
// Tencent is pleased to support the open source community by making trpc-agent-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-agent-go is licensed under the Apache License Version 2.0.
//
//

package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/fatih/color"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arcade-agents/trpc-agent-dropbox/chat"
	"github.com/arcade-agents/trpc-agent-dropbox/config"
	"github.com/arcade-agents/trpc-agent-dropbox/tool/arcade"
)

var credentialEnv = []string{
	"ARCADE_API_KEY", "ARCADE_USER_ID", "ARCADE_BASE_URL", "ARCADE_TOOLKITS", "ARCADE_TOOLS",
	"OPENAI_API_KEY", "OPENAI_MODEL", "OPENAI_BASE_URL", "CONFIRM_TOOLS", "SESSION_BACKEND",
	"REDIS_URL", "STREAMING", "LOG_LEVEL",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, env := range credentialEnv {
		t.Setenv(env, "")
	}
}

// arcadeStub serves two Dropbox tools that are already authorized.
type arcadeStub struct {
	mu         sync.Mutex
	served     int
	authorized []string
}

func (s *arcadeStub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	switch r.URL.Path {
	case "/v1/formatted_tools":
		// The client omits offset on the first page.
		if o := r.URL.Query().Get("offset"); o != "" && o != "0" {
			_, _ = w.Write([]byte(`{"items":[],"total_count":2}`))
			return
		}
		s.mu.Lock()
		s.served++
		s.mu.Unlock()
		_, _ = w.Write([]byte(`{"items":[
			{"type":"function","function":{"name":"Dropbox_ListItemsInFolder","description":"List items",
				"parameters":{"type":"object","properties":{"folder_path":{"type":"string"}}}}},
			{"type":"function","function":{"name":"Dropbox_DownloadFile","description":"Download a file",
				"parameters":{"type":"object","properties":{"file_path":{"type":"string"}}}}}],
			"total_count":2}`))
	case "/v1/tools/authorize":
		var req struct {
			ToolName string `json:"tool_name"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		s.mu.Lock()
		s.authorized = append(s.authorized, req.ToolName)
		s.mu.Unlock()
		_, _ = w.Write([]byte(`{"id":"auth-1","status":"completed"}`))
	default:
		http.NotFound(w, r)
	}
}

func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	color.NoColor = true
	cmd := NewRootCmd()
	var out bytes.Buffer
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestRoot_MissingUserID(t *testing.T) {
	clearEnv(t)
	t.Setenv("ARCADE_API_KEY", "arc_key")
	t.Setenv("OPENAI_MODEL", "gpt-4o-mini")

	_, err := execute(t, "", "--env-file", "")
	assert.ErrorIs(t, err, config.ErrMissingUserID)
}

func TestRoot_ModelFlagSatisfiesConfig(t *testing.T) {
	clearEnv(t)
	t.Setenv("ARCADE_API_KEY", "arc_key")
	t.Setenv("ARCADE_USER_ID", "user@example.com")

	_, err := execute(t, "", "--env-file", "", "--model", "gpt-4o", "--limit=-1")
	require.Error(t, err)
	assert.NotErrorIs(t, err, config.ErrMissingModel)
	assert.ErrorContains(t, err, "tool limit must be positive")
}

func TestRoot_SetupThenExit(t *testing.T) {
	stub := &arcadeStub{}
	srv := httptest.NewServer(stub)
	defer srv.Close()

	clearEnv(t)
	t.Setenv("ARCADE_API_KEY", "arc_key")
	t.Setenv("ARCADE_USER_ID", "user@example.com")
	t.Setenv("ARCADE_BASE_URL", srv.URL)
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("OPENAI_MODEL", "openai/gpt-4o-mini")

	out, err := execute(t, "/artifacts\nexit\n", "--env-file", "", "--log-level", "error")
	require.NoError(t, err)
	require.Positive(t, stub.served, "no tool definitions were fetched")
	require.NotEmpty(t, stub.authorized, "no tool was loaded and authorized")
	assert.Equal(t, []string{"Dropbox.ListItemsInFolder", "Dropbox.DownloadFile"}, stub.authorized)
	assert.Contains(t, out, chat.Banner)
	assert.Contains(t, out, "No artifacts saved yet.")
	assert.Contains(t, out, chat.Goodbye)
}

func TestRoot_ExcludeToolFlag(t *testing.T) {
	stub := &arcadeStub{}
	srv := httptest.NewServer(stub)
	defer srv.Close()

	clearEnv(t)
	t.Setenv("ARCADE_API_KEY", "arc_key")
	t.Setenv("ARCADE_USER_ID", "user@example.com")
	t.Setenv("ARCADE_BASE_URL", srv.URL)
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("OPENAI_MODEL", "gpt-4o-mini")

	_, err := execute(t, "exit\n", "--env-file", "", "--log-level", "error",
		"--exclude-tool", "Dropbox.DownloadFile")
	require.NoError(t, err)
	require.Positive(t, stub.served)
	assert.Equal(t, []string{"Dropbox.ListItemsInFolder"}, stub.authorized)
}

func TestToolFilter(t *testing.T) {
	assert.Nil(t, toolFilter(&config.Config{}))

	infos := []arcade.ToolInfo{
		{Name: "Dropbox_ListItemsInFolder"},
		{Name: "Dropbox_SearchFilesAndFolders"},
		{Name: "Dropbox_DownloadFile"},
	}
	f := toolFilter(&config.Config{
		IncludeTools: []string{"Dropbox.ListItemsInFolder", "Dropbox.DownloadFile", "Dropbox.SearchFilesAndFolders"},
		ToolPatterns: []string{"^Dropbox_(List|Search)"},
		ExcludeTools: []string{"Dropbox_SearchFilesAndFolders"},
	})
	require.NotNil(t, f)
	got := f.Filter(context.Background(), infos)
	require.Len(t, got, 1)
	assert.Equal(t, "Dropbox_ListItemsInFolder", got[0].Name)
}

func TestRoot_ToolLoadFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"message":"invalid api key"}`, http.StatusUnauthorized)
	}))
	defer srv.Close()

	clearEnv(t)
	t.Setenv("ARCADE_API_KEY", "bad")
	t.Setenv("ARCADE_USER_ID", "user@example.com")
	t.Setenv("ARCADE_BASE_URL", srv.URL)
	t.Setenv("OPENAI_MODEL", "gpt-4o-mini")

	_, err := execute(t, "exit\n", "--env-file", "", "--log-level", "error")
	assert.ErrorContains(t, err, "failed to load Arcade tools")
}

func TestBindFlags_OnlyChangedFlags(t *testing.T) {
	cmd := NewRootCmd()
	require.NoError(t, cmd.ParseFlags([]string{
		"--model", "gpt-4.1", "--toolkit", "Dropbox,Slack", "--streaming", "--exclude-tool", "Dropbox.DownloadFile",
	}))

	v := viper.New()
	require.NoError(t, bindFlags(cmd, v))
	assert.Equal(t, "gpt-4.1", v.GetString("openai_model"))
	assert.Equal(t, []string{"Dropbox", "Slack"}, v.GetStringSlice("toolkits"))
	assert.True(t, v.GetBool("streaming"))
	assert.Equal(t, []string{"Dropbox.DownloadFile"}, v.GetStringSlice("exclude_tools"))
	assert.False(t, v.IsSet("tool_limit"))
}

func TestVersion(t *testing.T) {
	out, err := execute(t, "", "--version")
	require.NoError(t, err)
	assert.Equal(t, "dropbox-agent version "+version+"\n", out)
}
