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
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync/atomic"

	"trpc.group/trpc-go/trpc-agent-go/agent"
	"trpc.group/trpc-go/trpc-agent-go/artifact"
	"trpc.group/trpc-go/trpc-agent-go/tool"

	"github.com/arcade-agents/trpc-agent-dropbox/log"
	"github.com/arcade-agents/trpc-agent-dropbox/tool/arcade/internal/client"
)

// ErrAuthorizationRequired is returned by a tool call the user has not authorized yet.
type ErrAuthorizationRequired struct {
	ToolName string
	URL      string
}

func (e *ErrAuthorizationRequired) Error() string {
	if e.URL == "" {
		return fmt.Sprintf("authorization required for tool %s", e.ToolName)
	}
	return fmt.Sprintf("authorization required for tool %s: please authorize in your browser %s", e.ToolName, e.URL)
}

// arcadeTool is a tool.CallableTool backed by Arcade tool execution.
type arcadeTool struct {
	name          string // model-facing name, e.g. Dropbox_ListItemsInFolder
	qualifiedName string // Arcade name, e.g. Dropbox.ListItemsInFolder
	description   string
	inputSchema   *tool.Schema
	client        *client.Client
	defaultUserID string
	saveArtifact  bool
	artifactSeq   atomic.Int64
}

func newArcadeTool(ft client.FormattedTool, toolkit string, ts *ToolSet) (*arcadeTool, error) {
	schema, err := convertSchema(ft.Function.Parameters)
	if err != nil {
		return nil, fmt.Errorf("tool %s: %w", ft.Function.Name, err)
	}
	name := normalizeName(ft.Function.Name)
	return &arcadeTool{
		name:          name,
		qualifiedName: qualifiedName(ft.Function.Name, toolkit),
		description:   ft.Function.Description,
		inputSchema:   schema,
		client:        ts.client,
		defaultUserID: ts.config.userID,
		saveArtifact:  ts.config.artifactTools[name],
	}, nil
}

// Declaration implements the Tool interface.
func (t *arcadeTool) Declaration() *tool.Declaration {
	return &tool.Declaration{
		Name:        t.name,
		Description: t.description,
		InputSchema: t.inputSchema,
	}
}

// QualifiedName is the name Arcade knows the tool by.
func (t *arcadeTool) QualifiedName() string {
	return t.qualifiedName
}

// Call implements the CallableTool interface.
// Failures are logged here because the framework skips after-tool callbacks for them.
func (t *arcadeTool) Call(ctx context.Context, jsonArgs []byte) (any, error) {
	result, err := t.call(ctx, jsonArgs)
	if err != nil {
		log.Warnf("Arcade tool %s failed: %v", t.qualifiedName, err)
	}
	return result, err
}

func (t *arcadeTool) call(ctx context.Context, jsonArgs []byte) (any, error) {
	log.Debugf("Calling Arcade tool %s", t.qualifiedName)

	input := make(map[string]any)
	if len(jsonArgs) > 0 {
		if err := json.Unmarshal(jsonArgs, &input); err != nil {
			return nil, fmt.Errorf("failed to parse tool arguments: %w", err)
		}
	}

	inv, _ := agent.InvocationFromContext(ctx)
	resp, err := t.client.Execute(ctx, client.ExecuteRequest{
		ToolName: t.qualifiedName,
		UserID:   t.userID(inv),
		Input:    input,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to execute tool %s: %w", t.qualifiedName, err)
	}
	if err := executionError(t.qualifiedName, resp); err != nil {
		return nil, err
	}

	var value json.RawMessage
	if resp.Output != nil && len(resp.Output.Value) > 0 {
		value = resp.Output.Value
	} else {
		value = json.RawMessage(`{"success":true}`)
	}

	if t.saveArtifact {
		t.storeArtifact(ctx, inv, value)
	}
	return value, nil
}

// userID prefers the user of the running session.
func (t *arcadeTool) userID(inv *agent.Invocation) string {
	if inv != nil && inv.Session != nil && inv.Session.UserID != "" {
		return inv.Session.UserID
	}
	return t.defaultUserID
}

// storeArtifact keeps a tool output in the session's artifact store.
// Failures are logged; the tool result is still returned to the model.
func (t *arcadeTool) storeArtifact(ctx context.Context, inv *agent.Invocation, value []byte) {
	if inv == nil || inv.ArtifactService == nil || inv.Session == nil {
		return
	}
	filename := fmt.Sprintf("%s-%d.json", t.name, t.artifactSeq.Add(1))
	info := artifact.SessionInfo{
		AppName:   inv.Session.AppName,
		UserID:    inv.Session.UserID,
		SessionID: inv.Session.ID,
	}
	version, err := inv.ArtifactService.SaveArtifact(ctx, info, filename, &artifact.Artifact{
		Data:     value,
		MimeType: "application/json",
		Name:     filename,
	})
	if err != nil {
		log.Warnf("failed to save artifact %s: %v", filename, err)
		return
	}
	log.Debugf("saved artifact %s version %d", filename, version)
}

// executionError turns an unsuccessful execution into an error.
func executionError(toolName string, resp *client.ExecuteResponse) error {
	out := resp.Output
	if out != nil && out.Authorization != nil && !out.Authorization.Completed() {
		return &ErrAuthorizationRequired{ToolName: toolName, URL: out.Authorization.URL}
	}
	if out != nil && out.Error != nil {
		msg := out.Error.Message
		if out.Error.AdditionalPromptContent != "" {
			msg = strings.TrimSpace(msg + " " + out.Error.AdditionalPromptContent)
		}
		return fmt.Errorf("tool %s failed: %s", toolName, msg)
	}
	if !resp.Success {
		return fmt.Errorf("tool %s failed with status %q", toolName, resp.Status)
	}
	return nil
}

// normalizeName maps an Arcade name to the model-facing form: Dropbox.DownloadFile -> Dropbox_DownloadFile.
func normalizeName(name string) string {
	return strings.ReplaceAll(name, ".", "_")
}

// qualifiedName restores the Arcade name from a formatted one.
// The toolkit prefix is used when known, since tool names may contain underscores.
func qualifiedName(formatted, toolkit string) string {
	if strings.Contains(formatted, ".") {
		return formatted
	}
	if toolkit != "" {
		prefix := toolkit + "_"
		if len(formatted) > len(prefix) && strings.EqualFold(formatted[:len(prefix)], prefix) {
			return formatted[:len(toolkit)] + "." + formatted[len(prefix):]
		}
	}
	if i := strings.Index(formatted, "_"); i > 0 {
		return formatted[:i] + "." + formatted[i+1:]
	}
	return formatted
}
