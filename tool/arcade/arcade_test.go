//
// Tencent is pleased to support the open source community by making trpc-agent-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-agent-go is licensed under the Apache License Version 2.0.
//
//

package arcade

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"
)

// fakeArcade is an in-process stand-in for the Arcade API.
type fakeArcade struct {
	t *testing.T

	mu          sync.Mutex
	toolkits    map[string][]string // toolkit -> formatted tool names
	listCalls   int
	authStatus  map[string]string // qualified tool -> status returned by authorize
	statusSeq   []string          // statuses returned by /v1/auth/status in order
	authorized  []string
	executed    []map[string]any
	executeBody string
	executeCode int
}

func newFakeArcade(t *testing.T) *fakeArcade {
	return &fakeArcade{
		t: t,
		toolkits: map[string][]string{
			"Dropbox": {"Dropbox_ListItemsInFolder", "Dropbox_SearchFilesAndFolders", "Dropbox_DownloadFile"},
		},
		authStatus:  map[string]string{},
		executeCode: http.StatusOK,
		executeBody: `{"id":"e1","success":true,"status":"success","output":{"value":{"ok":true}}}`,
	}
}

func (f *fakeArcade) formatted(name string) map[string]any {
	return map[string]any{
		"type": "function",
		"function": map[string]any{
			"name":        name,
			"description": "Tool " + name,
			"parameters": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"folder_path": map[string]any{"type": []string{"string", "null"}, "description": "Path"},
				},
				"required": []string{},
			},
		},
	}
}

func (f *fakeArcade) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	w.Header().Set("Content-Type", "application/json")

	switch {
	case r.URL.Path == "/v1/formatted_tools":
		f.listCalls++
		names := f.toolkits[r.URL.Query().Get("toolkit")]
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
		// Serve pages of at most two items to exercise paging.
		end := offset + 2
		if limit > 0 && offset+limit < end {
			end = offset + limit
		}
		if end > len(names) {
			end = len(names)
		}
		items := []map[string]any{}
		if offset < len(names) {
			for _, n := range names[offset:end] {
				items = append(items, f.formatted(n))
			}
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"items": items, "offset": offset, "limit": limit, "total_count": len(names),
		})
	case strings.HasPrefix(r.URL.Path, "/v1/formatted_tools/"):
		name := strings.TrimPrefix(r.URL.Path, "/v1/formatted_tools/")
		if name == "Missing.Tool" {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"message":"tool not found"}`))
			return
		}
		_ = json.NewEncoder(w).Encode(f.formatted(strings.Replace(name, ".", "_", 1)))
	case r.URL.Path == "/v1/tools/authorize":
		var req map[string]string
		_ = json.NewDecoder(r.Body).Decode(&req)
		f.authorized = append(f.authorized, req["tool_name"])
		status := f.authStatus[req["tool_name"]]
		if status == "" {
			status = "completed"
		}
		fmt.Fprintf(w, `{"id":"auth-%s","status":%q,"url":"https://auth.example.com/%s"}`,
			req["tool_name"], status, req["tool_name"])
	case r.URL.Path == "/v1/auth/status":
		status := "completed"
		if len(f.statusSeq) > 0 {
			status, f.statusSeq = f.statusSeq[0], f.statusSeq[1:]
		}
		fmt.Fprintf(w, `{"id":%q,"status":%q}`, r.URL.Query().Get("id"), status)
	case r.URL.Path == "/v1/tools/execute":
		var req map[string]any
		_ = json.NewDecoder(r.Body).Decode(&req)
		f.executed = append(f.executed, req)
		w.WriteHeader(f.executeCode)
		_, _ = w.Write([]byte(f.executeBody))
	default:
		f.t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		w.WriteHeader(http.StatusNotFound)
	}
}

func (f *fakeArcade) start(opts ...Option) *ToolSet {
	server := httptest.NewServer(f)
	f.t.Cleanup(server.Close)
	base := []Option{
		WithBaseURL(server.URL),
		WithAPIKey("key"),
		WithUserID("user@example.com"),
		WithAuthPollInterval(time.Millisecond),
	}
	return NewToolSet(append(base, opts...)...)
}
