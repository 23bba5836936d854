//
// Tencent is pleased to support the open source community by making trpc-agent-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-agent-go is licensed under the Apache License Version 2.0.
//
//

package dropbox

import (
	"context"
	"fmt"

	"trpc.group/trpc-go/trpc-agent-go/agent"
	"trpc.group/trpc-go/trpc-agent-go/artifact"
	artifactinmemory "trpc.group/trpc-go/trpc-agent-go/artifact/inmemory"
	"trpc.group/trpc-go/trpc-agent-go/runner"
	"trpc.group/trpc-go/trpc-agent-go/session"
	"trpc.group/trpc-go/trpc-agent-go/session/inmemory"
	"trpc.group/trpc-go/trpc-agent-go/session/redis"

	"github.com/arcade-agents/trpc-agent-dropbox/config"
)

// StateUserID is the session state key holding the Arcade user id.
const StateUserID = "user_id"

// NewSessionService creates the session store selected by backend.
func NewSessionService(backend, redisURL string) (session.Service, error) {
	switch backend {
	case "", config.SessionInMemory:
		return inmemory.NewSessionService(), nil
	case config.SessionRedis:
		svc, err := redis.NewService(redis.WithRedisClientURL(redisURL))
		if err != nil {
			return nil, fmt.Errorf("failed to create redis session service: %w", err)
		}
		return svc, nil
	default:
		return nil, fmt.Errorf("invalid session service name: %s", backend)
	}
}

// App bundles the runner with the stores it was built on.
type App struct {
	AppName   string
	UserID    string
	Runner    runner.Runner
	Sessions  session.Service
	Artifacts artifact.Service
	// Session is the conversation created at startup.
	Session *session.Session
}

// NewApp wires a runner for ag and creates the first session for userID,
// with the user id recorded in the session state.
func NewApp(
	ctx context.Context,
	appName, userID string,
	ag agent.Agent,
	sessions session.Service,
) (*App, error) {
	artifacts := artifactinmemory.NewService()
	app := &App{
		AppName:   appName,
		UserID:    userID,
		Sessions:  sessions,
		Artifacts: artifacts,
		Runner: runner.NewRunner(
			appName,
			ag,
			runner.WithSessionService(sessions),
			runner.WithArtifactService(artifacts),
		),
	}
	sess, err := app.NewSession(ctx, "")
	if err != nil {
		return nil, err
	}
	app.Session = sess
	return app, nil
}

// NewSession creates a session; an empty id lets the store pick one.
func (a *App) NewSession(ctx context.Context, sessionID string) (*session.Session, error) {
	sess, err := a.Sessions.CreateSession(ctx, session.Key{
		AppName:   a.AppName,
		UserID:    a.UserID,
		SessionID: sessionID,
	}, session.StateMap{
		StateUserID: []byte(a.UserID),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	return sess, nil
}

// ArtifactKeys lists the artifacts saved in a session.
func (a *App) ArtifactKeys(ctx context.Context, sessionID string) ([]string, error) {
	return a.Artifacts.ListArtifactKeys(ctx, artifact.SessionInfo{
		AppName:   a.AppName,
		UserID:    a.UserID,
		SessionID: sessionID,
	})
}
