//
// Tencent is pleased to support the open source community by making trpc-agent-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-agent-go is licensed under the Apache License Version 2.0.
//
//

// Package cli provides the dropbox-agent command.
package cli

import (
	"context"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const version = "0.1.0"

// flagKeys maps command line flags to config keys.
var flagKeys = map[string]string{
	"model":        "openai_model",
	"toolkit":      "toolkits",
	"tool":         "tools",
	"limit":        "tool_limit",
	"include-tool": "include_tools",
	"exclude-tool": "exclude_tools",
	"tool-pattern": "tool_patterns",
	"confirm":      "confirm_tools",
	"session":      "session",
	"redis-url":    "redis_url",
	"streaming":    "streaming",
	"log-level":    "log_level",
}

type rootOptions struct {
	configFile string
	envFile    string
}

// NewRootCmd creates the dropbox-agent command.
func NewRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:   "dropbox-agent",
		Short: "Chat with an agent that manages your Dropbox through Arcade tools",
		Long: `dropbox-agent fetches the Dropbox toolkit from Arcade, asks you to
authorize each tool, and then starts a console chat with an OpenAI model
that can search, list and download your files.

Credentials are read from the environment or a .env file:
ARCADE_API_KEY, ARCADE_USER_ID, OPENAI_API_KEY and OPENAI_MODEL.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			v := viper.New()
			if err := bindFlags(cmd, v); err != nil {
				return err
			}
			return run(cmd, v, opts)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&opts.configFile, "config", "", "config file (yaml, json or toml)")
	flags.StringVar(&opts.envFile, "env-file", ".env", "dotenv file loaded before reading the environment")
	flags.String("model", "", "OpenAI model, overrides OPENAI_MODEL")
	flags.StringSlice("toolkit", nil, "Arcade toolkits to load (default Dropbox)")
	flags.StringSlice("tool", nil, "individual Arcade tools to load, e.g. Slack.SendMessage")
	flags.Int("limit", 0, "maximum number of tools fetched per toolkit (default 100)")
	flags.StringSlice("include-tool", nil, "keep only these tools, e.g. Dropbox.SearchFilesAndFolders")
	flags.StringSlice("exclude-tool", nil, "drop these tools, e.g. Dropbox.DownloadFile")
	flags.StringSlice("tool-pattern", nil, "keep only tools whose name matches one of these regular expressions")
	flags.StringSlice("confirm", nil, "tools that need approval before running, * for all")
	flags.String("session", "", "session backend: inmemory or redis")
	flags.String("redis-url", "", "redis URL for the redis session backend")
	flags.Bool("streaming", false, "stream model output")
	flags.String("log-level", "", "log level (debug, info, warn, error)")

	cmd.SetVersionTemplate(`{{with .Name}}{{printf "%s " .}}{{end}}{{printf "version %s" .Version}}
`)
	return cmd
}

// bindFlags binds the flags given on the command line, so that unset flags
// do not shadow the environment or the defaults.
func bindFlags(cmd *cobra.Command, v *viper.Viper) error {
	for name, key := range flagKeys {
		f := cmd.Flags().Lookup(name)
		if f == nil || !f.Changed {
			continue
		}
		if err := v.BindPFlag(key, f); err != nil {
			return err
		}
	}
	return nil
}

// Execute runs the root command until it returns or ctx is cancelled.
func Execute(ctx context.Context) error {
	return NewRootCmd().ExecuteContext(ctx)
}
