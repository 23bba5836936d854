//
// Tencent is pleased to support the open source community by making trpc-agent-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-agent-go is licensed under the Apache License Version 2.0.
//
//

// Package chat implements the interactive console loop in front of a runner.
package chat

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"trpc.group/trpc-go/trpc-agent-go/event"
	"trpc.group/trpc-go/trpc-agent-go/model"
	"trpc.group/trpc-go/trpc-agent-go/runner"

	"github.com/arcade-agents/trpc-agent-dropbox/internal/console"
	"github.com/arcade-agents/trpc-agent-dropbox/log"
)

// Console messages.
const (
	Banner  = "Welcome to the chatbot! Type 'exit' to quit."
	Prompt  = "User: "
	Goodbye = "Goodbye!"
)

// SessionCreator prepares a new session with the given id.
type SessionCreator func(ctx context.Context, sessionID string) error

// ArtifactLister returns the artifact keys of a session.
type ArtifactLister func(ctx context.Context, sessionID string) ([]string, error)

// Chat reads user turns from the console and prints the agent's replies.
type Chat struct {
	runner     runner.Runner
	in         *console.Reader
	out        io.Writer
	userID     string
	sessionID  string
	streaming  bool
	newSession SessionCreator
	artifacts  ArtifactLister

	infoColor *color.Color
	errColor  *color.Color
}

// Option configures a Chat.
type Option func(*Chat)

// WithInput sets the reader user input comes from. Share it with any other
// console prompt so that buffered input is not lost.
func WithInput(in *console.Reader) Option {
	return func(c *Chat) {
		c.in = in
	}
}

// WithOutput sets where the transcript is written.
func WithOutput(out io.Writer) Option {
	return func(c *Chat) {
		c.out = out
	}
}

// WithUserID sets the user the runner is invoked for.
func WithUserID(userID string) Option {
	return func(c *Chat) {
		c.userID = userID
	}
}

// WithSessionID sets the initial session.
func WithSessionID(sessionID string) Option {
	return func(c *Chat) {
		c.sessionID = sessionID
	}
}

// WithStreaming prints partial responses as they arrive.
func WithStreaming(streaming bool) Option {
	return func(c *Chat) {
		c.streaming = streaming
	}
}

// WithSessionCreator is called by /new before switching sessions.
func WithSessionCreator(fn SessionCreator) Option {
	return func(c *Chat) {
		c.newSession = fn
	}
}

// WithArtifactLister enables the /artifacts command.
func WithArtifactLister(fn ArtifactLister) Option {
	return func(c *Chat) {
		c.artifacts = fn
	}
}

// New creates a Chat driving r.
func New(r runner.Runner, opts ...Option) *Chat {
	c := &Chat{
		runner:    r,
		out:       os.Stdout,
		infoColor: color.New(color.FgCyan, color.Bold),
		errColor:  color.New(color.FgRed),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.in == nil {
		c.in = console.NewReader(os.Stdin)
	}
	if c.sessionID == "" {
		c.sessionID = uuid.New().String()
	}
	return c
}

// SessionID is the session turns are currently sent to.
func (c *Chat) SessionID() string {
	return c.sessionID
}

// Run loops until the user types exit, input ends or ctx is cancelled.
func (c *Chat) Run(ctx context.Context) error {
	c.infoColor.Fprintln(c.out, Banner)

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		fmt.Fprint(c.out, Prompt)

		line, readErr := c.in.ReadLine(ctx)
		if ctxErr := ctx.Err(); ctxErr != nil {
			fmt.Fprintln(c.out)
			return ctxErr
		}
		if readErr != nil && !errors.Is(readErr, io.EOF) {
			return fmt.Errorf("failed to read input: %w", readErr)
		}
		input := strings.TrimSpace(line)

		if input != "" {
			if done := c.handle(ctx, input); done {
				return nil
			}
		}
		if errors.Is(readErr, io.EOF) {
			fmt.Fprintln(c.out)
			return nil
		}
	}
}

// handle processes one line and reports whether the loop should end.
func (c *Chat) handle(ctx context.Context, input string) bool {
	switch strings.ToLower(input) {
	case "exit", "/exit":
		c.infoColor.Fprintln(c.out, Goodbye)
		return true
	case "/new":
		c.startNewSession(ctx)
		return false
	case "/artifacts":
		c.listArtifacts(ctx)
		return false
	}

	if err := c.send(ctx, input); err != nil {
		c.errColor.Fprintf(c.out, "Error: %v\n", err)
	}
	return false
}

func (c *Chat) startNewSession(ctx context.Context) {
	id := uuid.New().String()
	if c.newSession != nil {
		if err := c.newSession(ctx, id); err != nil {
			c.errColor.Fprintf(c.out, "Error: %v\n", err)
			return
		}
	}
	old := c.sessionID
	c.sessionID = id
	log.Debugf("switched session %s -> %s", old, id)
	fmt.Fprintf(c.out, "New session: %s\n", id)
}

func (c *Chat) listArtifacts(ctx context.Context) {
	if c.artifacts == nil {
		fmt.Fprintln(c.out, "Artifacts are not available.")
		return
	}
	keys, err := c.artifacts(ctx, c.sessionID)
	if err != nil {
		c.errColor.Fprintf(c.out, "Error: %v\n", err)
		return
	}
	if len(keys) == 0 {
		fmt.Fprintln(c.out, "No artifacts saved yet.")
		return
	}
	for _, key := range keys {
		fmt.Fprintf(c.out, "- %s\n", key)
	}
}

// send runs one turn and prints its events.
func (c *Chat) send(ctx context.Context, input string) error {
	events, err := c.runner.Run(ctx, c.userID, c.sessionID, model.NewUserMessage(input))
	if err != nil {
		return fmt.Errorf("failed to run agent: %w", err)
	}

	p := printer{out: c.out, streaming: c.streaming, errColor: c.errColor}
	for e := range events {
		p.print(e)
	}
	p.finish()
	return nil
}

// printer renders the events of one turn.
type printer struct {
	out       io.Writer
	streaming bool
	errColor  *color.Color
	// author whose partial output is currently being streamed.
	streamingAuthor string
}

func (p *printer) print(e *event.Event) {
	if e == nil || e.Response == nil {
		return
	}
	if e.Error != nil {
		p.finish()
		p.errColor.Fprintf(p.out, "Error: %s\n", e.Error.Message)
		return
	}
	if len(e.Choices) == 0 {
		return
	}
	choice := e.Choices[0]

	if e.IsPartial {
		if !p.streaming || choice.Delta.Content == "" {
			return
		}
		if p.streamingAuthor != e.Author {
			p.finish()
			fmt.Fprintf(p.out, "** %s: ", e.Author)
			p.streamingAuthor = e.Author
		}
		fmt.Fprint(p.out, choice.Delta.Content)
		return
	}

	msg := choice.Message
	if msg.Role == model.RoleTool || msg.Content == "" {
		return
	}
	if p.streamingAuthor != "" {
		// The complete message repeats what was streamed.
		p.finish()
		return
	}
	fmt.Fprintf(p.out, "** %s: %s\n", e.Author, msg.Content)
}

// finish terminates a streamed line.
func (p *printer) finish() {
	if p.streamingAuthor != "" {
		fmt.Fprintln(p.out)
		p.streamingAuthor = ""
	}
}
