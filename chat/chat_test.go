//
// Tencent is pleased to support the open source community by making trpc-agent-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-agent-go is licensed under the Apache License Version 2.0.
//
//

package chat

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"trpc.group/trpc-go/trpc-agent-go/agent"
	"trpc.group/trpc-go/trpc-agent-go/event"
	"trpc.group/trpc-go/trpc-agent-go/model"

	"github.com/arcade-agents/trpc-agent-dropbox/internal/console"
)

func TestMain(m *testing.M) {
	color.NoColor = true
	os.Exit(m.Run())
}

type runCall struct {
	userID    string
	sessionID string
	content   string
}

// fakeRunner replies to every message with a fixed list of events.
type fakeRunner struct {
	events []*event.Event
	err    error
	calls  []runCall
}

func (f *fakeRunner) Run(
	_ context.Context,
	userID string,
	sessionID string,
	message model.Message,
	_ ...agent.RunOption,
) (<-chan *event.Event, error) {
	f.calls = append(f.calls, runCall{userID: userID, sessionID: sessionID, content: message.Content})
	if f.err != nil {
		return nil, f.err
	}
	ch := make(chan *event.Event, len(f.events))
	for _, e := range f.events {
		ch <- e
	}
	close(ch)
	return ch, nil
}

func messageEvent(author string, role model.Role, content string) *event.Event {
	return event.NewResponseEvent("inv", author, &model.Response{
		Choices: []model.Choice{{Message: model.Message{Role: role, Content: content}}},
		Done:    true,
	})
}

func deltaEvent(author, delta string) *event.Event {
	return event.NewResponseEvent("inv", author, &model.Response{
		Choices:   []model.Choice{{Delta: model.Message{Role: model.RoleAssistant, Content: delta}}},
		IsPartial: true,
	})
}

func runChat(t *testing.T, r *fakeRunner, input string, opts ...Option) string {
	t.Helper()
	var out bytes.Buffer
	opts = append([]Option{
		WithInput(console.NewReader(strings.NewReader(input))),
		WithOutput(&out),
		WithUserID("user@example.com"),
		WithSessionID("s1"),
	}, opts...)
	c := New(r, opts...)
	require.NoError(t, c.Run(context.Background()))
	return out.String()
}

func TestRun_ExitPrintsGoodbye(t *testing.T) {
	r := &fakeRunner{}
	out := runChat(t, r, "EXIT\nhello\n")

	assert.True(t, strings.HasPrefix(out, Banner+"\n"+Prompt))
	assert.Contains(t, out, Goodbye)
	assert.Empty(t, r.calls, "nothing after exit is sent")
}

func TestRun_PrintsAuthorAndText(t *testing.T) {
	r := &fakeRunner{events: []*event.Event{
		messageEvent("google_agent", model.RoleAssistant, ""),
		messageEvent("google_agent", model.RoleTool, `{"entries":[]}`),
		messageEvent("google_agent", model.RoleAssistant, "Your folder is empty."),
	}}
	out := runChat(t, r, "list my files\nexit\n")

	require.Len(t, r.calls, 1)
	assert.Equal(t, runCall{userID: "user@example.com", sessionID: "s1", content: "list my files"}, r.calls[0])
	assert.Contains(t, out, "** google_agent: Your folder is empty.\n")
	assert.NotContains(t, out, "entries")
}

func TestRun_SkipsEmptyLines(t *testing.T) {
	r := &fakeRunner{}
	runChat(t, r, "\n   \nexit\n")
	assert.Empty(t, r.calls)
}

func TestRun_EOFEndsWithoutError(t *testing.T) {
	r := &fakeRunner{events: []*event.Event{messageEvent("a", model.RoleAssistant, "hi")}}
	out := runChat(t, r, "hello")

	require.Len(t, r.calls, 1)
	assert.Contains(t, out, "** a: hi")
	assert.NotContains(t, out, Goodbye)
}

func TestRun_RunnerErrorContinues(t *testing.T) {
	r := &fakeRunner{err: errors.New("boom")}
	out := runChat(t, r, "one\ntwo\nexit\n")

	assert.Len(t, r.calls, 2)
	assert.Contains(t, out, "Error: failed to run agent: boom")
	assert.Contains(t, out, Goodbye)
}

func TestRun_EventErrorIsPrinted(t *testing.T) {
	r := &fakeRunner{events: []*event.Event{
		event.NewErrorEvent("inv", "google_agent", model.ErrorTypeStreamError, "rate limited"),
	}}
	out := runChat(t, r, "hi\nexit\n")
	assert.Contains(t, out, "Error: rate limited")
}

func TestRun_Streaming(t *testing.T) {
	r := &fakeRunner{events: []*event.Event{
		deltaEvent("google_agent", "Hel"),
		deltaEvent("google_agent", "lo"),
		messageEvent("google_agent", model.RoleAssistant, "Hello"),
	}}
	out := runChat(t, r, "hi\nexit\n", WithStreaming(true))

	assert.Contains(t, out, "** google_agent: Hello\n")
	assert.Equal(t, 1, strings.Count(out, "Hello"))
}

func TestRun_NonStreamingIgnoresDeltas(t *testing.T) {
	r := &fakeRunner{events: []*event.Event{
		deltaEvent("google_agent", "Hel"),
		messageEvent("google_agent", model.RoleAssistant, "Hello"),
	}}
	out := runChat(t, r, "hi\nexit\n")

	assert.Contains(t, out, "** google_agent: Hello\n")
	assert.NotContains(t, out, "Hel\n")
}

func TestRun_NewSession(t *testing.T) {
	var created []string
	r := &fakeRunner{}
	out := runChat(t, r, "/new\nhello\nexit\n", WithSessionCreator(func(_ context.Context, id string) error {
		created = append(created, id)
		return nil
	}))

	require.Len(t, created, 1)
	require.Len(t, r.calls, 1)
	assert.Equal(t, created[0], r.calls[0].sessionID)
	assert.Contains(t, out, "New session: "+created[0])
}

func TestRun_NewSessionFailureKeepsSession(t *testing.T) {
	r := &fakeRunner{}
	out := runChat(t, r, "/new\nhello\nexit\n", WithSessionCreator(func(context.Context, string) error {
		return errors.New("store down")
	}))

	require.Len(t, r.calls, 1)
	assert.Equal(t, "s1", r.calls[0].sessionID)
	assert.Contains(t, out, "Error: store down")
}

func TestRun_Artifacts(t *testing.T) {
	r := &fakeRunner{}
	var gotSession string
	out := runChat(t, r, "/artifacts\nexit\n", WithArtifactLister(func(_ context.Context, sessionID string) ([]string, error) {
		gotSession = sessionID
		return []string{"Dropbox_DownloadFile-1.json"}, nil
	}))

	assert.Equal(t, "s1", gotSession)
	assert.Contains(t, out, "- Dropbox_DownloadFile-1.json\n")
}

func TestRun_ArtifactsUnavailable(t *testing.T) {
	out := runChat(t, &fakeRunner{}, "/artifacts\nexit\n")
	assert.Contains(t, out, "Artifacts are not available.")
}

func TestRun_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	c := New(&fakeRunner{}, WithInput(console.NewReader(strings.NewReader("hi\n"))), WithOutput(&bytes.Buffer{}))
	assert.ErrorIs(t, c.Run(ctx), context.Canceled)
}

func TestRun_CancelWhileWaitingForInput(t *testing.T) {
	pr, pw := io.Pipe()
	defer pw.Close()
	var out bytes.Buffer
	c := New(&fakeRunner{}, WithInput(console.NewReader(pr)), WithOutput(&out))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	time.Sleep(20 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestNew_GeneratesSessionID(t *testing.T) {
	c := New(&fakeRunner{}, WithOutput(&bytes.Buffer{}))
	assert.NotEmpty(t, c.SessionID())
}
