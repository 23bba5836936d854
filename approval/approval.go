//
// Tencent is pleased to support the open source community by making trpc-agent-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-agent-go is licensed under the Apache License Version 2.0.
//
//

// Package approval implements a human-in-the-loop check that runs before
// selected tools and lets the user veto the call.
package approval

import (
	"context"
	"fmt"
	"io"
	"strings"

	"trpc.group/trpc-go/trpc-agent-go/tool"

	"github.com/arcade-agents/trpc-agent-dropbox/internal/console"
	"github.com/arcade-agents/trpc-agent-dropbox/log"
)

// AllTools makes every tool require approval.
const AllTools = "*"

// DeniedResult is what the model sees when the user refuses a tool call.
type DeniedResult struct {
	Error string `json:"error"`
}

// Prompter asks the user a yes/no question.
type Prompter interface {
	Confirm(ctx context.Context, question string) (bool, error)
}

// Approver gates tool calls behind user confirmation.
type Approver struct {
	prompter Prompter
	all      bool
	tools    map[string]bool
}

// New returns an Approver for the named tools. Names may use either the
// Arcade form (Dropbox.DownloadFile) or the model form (Dropbox_DownloadFile).
func New(prompter Prompter, toolNames ...string) *Approver {
	a := &Approver{prompter: prompter, tools: make(map[string]bool)}
	for _, name := range toolNames {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		if name == AllTools {
			a.all = true
			continue
		}
		a.tools[normalize(name)] = true
	}
	return a
}

// Requires reports whether toolName needs approval.
func (a *Approver) Requires(toolName string) bool {
	return a.all || a.tools[normalize(toolName)]
}

// BeforeTool is a tool.BeforeToolCallback.
// A nil result lets the call run; a DeniedResult replaces it.
func (a *Approver) BeforeTool(
	ctx context.Context,
	toolName string,
	_ *tool.Declaration,
	jsonArgs *[]byte,
) (any, error) {
	if !a.Requires(toolName) {
		return nil, nil
	}
	args := "{}"
	if jsonArgs != nil && len(*jsonArgs) > 0 {
		args = string(*jsonArgs)
	}
	question := fmt.Sprintf("⚙️: Human in the loop required for tool call %s\n⚙️: Please approve the tool call %s\nDo you approve this tool call?", toolName, args)
	ok, err := a.prompter.Confirm(ctx, question)
	if err != nil {
		return nil, fmt.Errorf("failed to ask for approval of %s: %w", toolName, err)
	}
	if !ok {
		log.Infof("User denied tool call %s", toolName)
		return DeniedResult{Error: "tool call denied by user"}, nil
	}
	return nil, nil
}

// Callbacks returns tool callbacks with the approval check registered.
func (a *Approver) Callbacks() *tool.Callbacks {
	return tool.NewCallbacks().RegisterBeforeTool(a.BeforeTool)
}

func normalize(name string) string {
	return strings.ReplaceAll(name, ".", "_")
}

// ConsolePrompter asks questions on a terminal.
type ConsolePrompter struct {
	in  *console.Reader
	out io.Writer
}

// NewConsolePrompter reads answers from in and writes questions to out.
// in should be the reader the chat loop uses, so buffered input is not lost.
func NewConsolePrompter(in *console.Reader, out io.Writer) *ConsolePrompter {
	return &ConsolePrompter{in: in, out: out}
}

// Confirm implements Prompter. "y" and "yes" (any case) approve.
func (p *ConsolePrompter) Confirm(ctx context.Context, question string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	fmt.Fprintf(p.out, "%s (y/n): ", question)
	line, err := p.in.ReadLine(ctx)
	if err != nil && (err != io.EOF || line == "") {
		return false, err
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true, nil
	default:
		return false, nil
	}
}
