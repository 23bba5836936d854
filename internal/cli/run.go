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
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"trpc.group/trpc-go/trpc-agent-go/tool"

	"github.com/arcade-agents/trpc-agent-dropbox/approval"
	"github.com/arcade-agents/trpc-agent-dropbox/chat"
	"github.com/arcade-agents/trpc-agent-dropbox/config"
	"github.com/arcade-agents/trpc-agent-dropbox/dropbox"
	"github.com/arcade-agents/trpc-agent-dropbox/internal/console"
	"github.com/arcade-agents/trpc-agent-dropbox/log"
	"github.com/arcade-agents/trpc-agent-dropbox/tool/arcade"
)

// run loads the tools, authorizes them, builds the agent and starts the chat.
func run(cmd *cobra.Command, v *viper.Viper, opts *rootOptions) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	in := console.NewReader(cmd.InOrStdin())
	out := cmd.OutOrStdout()

	cfg, err := config.Load(
		config.WithEnvFile(opts.envFile),
		config.WithConfigFile(opts.configFile),
		config.WithViper(v),
	)
	if err != nil {
		return err
	}
	log.SetLevel(cfg.LogLevel)
	log.InstallFramework()

	toolSet := arcade.NewToolSet(
		arcade.WithName("arcade"),
		arcade.WithBaseURL(cfg.ArcadeBaseURL),
		arcade.WithAPIKey(cfg.ArcadeAPIKey),
		arcade.WithUserID(cfg.ArcadeUserID),
		arcade.WithToolkits(cfg.Toolkits...),
		arcade.WithTools(cfg.Tools...),
		arcade.WithLimit(cfg.ToolLimit),
		arcade.WithArtifactTools(cfg.ArtifactTools...),
		arcade.WithToolFilter(toolFilter(cfg)),
	)
	defer toolSet.Close()

	tools, err := toolSet.Load(ctx)
	if err != nil {
		return fmt.Errorf("failed to load Arcade tools: %w", err)
	}
	log.Infof("loaded %d Arcade tools from %v %v", len(tools), cfg.Toolkits, cfg.Tools)

	authorizer := arcade.NewAuthorizer(toolSet, cfg.ArcadeUserID, out, arcade.WithAuthTimeout(cfg.AuthTimeout))
	if err := authorizer.AuthorizeAll(ctx, tools); err != nil {
		return err
	}

	approver := approval.New(approval.NewConsolePrompter(in, out), cfg.ConfirmTools...)
	agent := dropbox.New(dropbox.AgentConfig{
		Name:        cfg.AgentName,
		Description: cfg.AgentDescription,
		Model:       dropbox.NewModel(cfg),
		Streaming:   cfg.Streaming,
		Tools:       tools,
		BeforeTool:  []tool.BeforeToolCallback{approver.BeforeTool},
	})

	sessions, err := dropbox.NewSessionService(cfg.Session, cfg.RedisURL)
	if err != nil {
		return err
	}
	app, err := dropbox.NewApp(ctx, cfg.AppName, cfg.ArcadeUserID, agent, sessions)
	if err != nil {
		return err
	}

	c := chat.New(app.Runner,
		chat.WithInput(in),
		chat.WithOutput(out),
		chat.WithUserID(cfg.ArcadeUserID),
		chat.WithSessionID(app.Session.ID),
		chat.WithStreaming(cfg.Streaming),
		chat.WithSessionCreator(func(ctx context.Context, sessionID string) error {
			_, err := app.NewSession(ctx, sessionID)
			return err
		}),
		chat.WithArtifactLister(app.ArtifactKeys),
	)
	return c.Run(ctx)
}

// toolFilter builds the filter selected by the include, exclude and pattern
// settings, or nil when none is set.
func toolFilter(cfg *config.Config) arcade.ToolFilter {
	var filters []arcade.ToolFilter
	if len(cfg.IncludeTools) > 0 {
		filters = append(filters, arcade.NewIncludeFilter(cfg.IncludeTools...))
	}
	if len(cfg.ToolPatterns) > 0 {
		filters = append(filters, arcade.NewPatternIncludeFilter(cfg.ToolPatterns...))
	}
	if len(cfg.ExcludeTools) > 0 {
		filters = append(filters, arcade.NewExcludeFilter(cfg.ExcludeTools...))
	}
	if len(filters) == 0 {
		return nil
	}
	return arcade.NewCompositeFilter(filters...)
}
