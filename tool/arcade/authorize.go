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
	"errors"
	"fmt"
	"io"
	"time"

	"trpc.group/trpc-go/trpc-agent-go/tool"

	"github.com/arcade-agents/trpc-agent-dropbox/log"
	"github.com/arcade-agents/trpc-agent-dropbox/tool/arcade/internal/client"
)

// ErrAuthorizationFailed is returned when the user did not grant access.
var ErrAuthorizationFailed = client.ErrAuthorizationFailed

// Authorizer asks Arcade to authorize tools for one user, pointing the user
// at the provider's consent page when needed.
type Authorizer struct {
	client  *client.Client
	userID  string
	out     io.Writer
	timeout time.Duration
}

// AuthorizerOption configures an Authorizer.
type AuthorizerOption func(*Authorizer)

// WithAuthTimeout bounds how long a single tool waits for the user. Zero waits forever.
func WithAuthTimeout(d time.Duration) AuthorizerOption {
	return func(a *Authorizer) {
		a.timeout = d
	}
}

// NewAuthorizer returns an Authorizer using the tool set's Arcade client.
// Prompts are written to out.
func NewAuthorizer(ts *ToolSet, userID string, out io.Writer, opts ...AuthorizerOption) *Authorizer {
	a := &Authorizer{
		client: ts.client,
		userID: userID,
		out:    out,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Authorize makes sure userID may call toolName, waiting for the user to
// finish the browser flow when Arcade reports the authorization pending.
func (a *Authorizer) Authorize(ctx context.Context, toolName string) error {
	qualified := qualifiedName(toolName, "")
	auth, err := a.client.Authorize(ctx, client.AuthorizeRequest{
		ToolName: qualified,
		UserID:   a.userID,
	})
	if err != nil {
		return fmt.Errorf("failed to authorize tool %s: %w", qualified, err)
	}
	if auth.Completed() {
		log.Debugf("Tool %s already authorized", qualified)
		return nil
	}
	if auth.Status == client.StatusFailed {
		return fmt.Errorf("tool %s: %w", qualified, ErrAuthorizationFailed)
	}

	fmt.Fprintf(a.out, "⚙️: Authorization required for tool call %s\n", toolName)
	fmt.Fprintf(a.out, "⚙️: Please authorize in your browser %s\n", auth.URL)
	fmt.Fprintln(a.out, "⚙️: Waiting for you to complete authorization...")

	waitCtx := ctx
	if a.timeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, a.timeout)
		defer cancel()
	}
	if _, err := a.client.WaitForCompletion(waitCtx, auth.ID); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("timed out waiting for authorization of %s: %w", qualified, err)
		}
		return fmt.Errorf("error waiting for authorization of %s: %w", qualified, err)
	}
	fmt.Fprintln(a.out, "⚙️: Authorization granted. Resuming execution...")
	return nil
}

// AuthorizeAll authorizes the tools one after another, stopping at the first failure.
func (a *Authorizer) AuthorizeAll(ctx context.Context, tools []tool.Tool) error {
	for _, t := range tools {
		name := t.Declaration().Name
		if q, ok := t.(interface{ QualifiedName() string }); ok {
			name = q.QualifiedName()
		}
		if err := a.Authorize(ctx, name); err != nil {
			return err
		}
	}
	return nil
}
