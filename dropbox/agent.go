//
// Tencent is pleased to support the open source community by making trpc-agent-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-agent-go is licensed under the Apache License Version 2.0.
//
//

// Package dropbox assembles the Dropbox file management agent: the model,
// the instruction prompt, the Arcade tools and the runner that drives them.
package dropbox

import (
	"context"
	"time"

	openaiopt "github.com/openai/openai-go/option"
	"trpc.group/trpc-go/trpc-agent-go/agent/llmagent"
	"trpc.group/trpc-go/trpc-agent-go/model"
	"trpc.group/trpc-go/trpc-agent-go/model/openai"
	"trpc.group/trpc-go/trpc-agent-go/tool"

	"github.com/arcade-agents/trpc-agent-dropbox/config"
	"github.com/arcade-agents/trpc-agent-dropbox/log"
)

// Instruction is the system prompt of the agent.
const Instruction = `# Introduction
Welcome to the Dropbox AI Agent! This agent is designed to assist you in managing your files on Dropbox efficiently. Whether you need to search for specific documents, list items in a folder, or download necessary files, the agent can streamline these tasks for you. By utilizing various tools, it can interact with your Dropbox storage seamlessly.

# Instructions
1. **Search for Files or Folders**: Use the search tool to find specific items based on keywords. 
2. **List Items in a Folder**: Browse the contents of a specific folder to see what files and folders are available.
3. **Download Files**: Download any file found using the previous workflows by providing either the file path or file ID.

# Workflows
## Workflow 1: Search for Files or Folders  
- **Tool**: ` + "`Dropbox_SearchFilesAndFolders`" + `  
- **Parameters**: 
  - ` + "`keywords`" + `: The terms you want to search for in your Dropbox.
  - ` + "`search_in_folder_path`" + `: Optional folder path for more specific searches.
  - ` + "`limit`" + `: Maximum number of items to return (default is 100). 
  
## Workflow 2: List Items in a Folder  
- **Tool**: ` + "`Dropbox_ListItemsInFolder`" + `  
- **Parameters**: 
  - ` + "`folder_path`" + `: Path to the folder you want to browse.
  - ` + "`limit`" + `: Maximum number of items to return (default is 100).  

## Workflow 3: Download a File  
- **Tool**: ` + "`Dropbox_DownloadFile`" + `  
- **Parameters**: 
  - ` + "`file_path`" + ` or ` + "`file_id`" + `: Provide the path or ID of the file you wish to download.  

By following these workflows, the agent can efficiently handle your Dropbox tasks, making file management easier and quicker.`

const defaultChannelBufferSize = 256

// AgentConfig describes the agent to build.
type AgentConfig struct {
	Name        string
	Description string
	Model       model.Model
	Streaming   bool
	// Tools are the already loaded and authorized Arcade tools.
	Tools []tool.Tool
	// BeforeTool callbacks run ahead of every tool call, e.g. approval prompts.
	BeforeTool []tool.BeforeToolCallback
}

// New builds the LLM agent.
func New(cfg AgentConfig) *llmagent.LLMAgent {
	callbacks := tool.NewCallbacks()
	for _, cb := range cfg.BeforeTool {
		callbacks.RegisterBeforeTool(cb)
	}
	callbacks.RegisterAfterTool(logToolResult)

	opts := []llmagent.Option{
		llmagent.WithDescription(cfg.Description),
		llmagent.WithInstruction(Instruction),
		llmagent.WithGenerationConfig(model.GenerationConfig{Stream: cfg.Streaming}),
		llmagent.WithChannelBufferSize(defaultChannelBufferSize),
		llmagent.WithToolCallbacks(callbacks),
	}
	if cfg.Model != nil {
		opts = append(opts, llmagent.WithModel(cfg.Model))
	}
	if len(cfg.Tools) > 0 {
		opts = append(opts, llmagent.WithTools(cfg.Tools))
	}
	return llmagent.New(cfg.Name, opts...)
}

// NewModel creates the OpenAI chat model described by cfg.
func NewModel(cfg *config.Config) *openai.Model {
	opts := []openai.Option{
		openai.WithChannelBufferSize(defaultChannelBufferSize),
		openai.WithOpenAIOptions(
			openaiopt.WithMaxRetries(cfg.OpenAIMaxRetries),
			openaiopt.WithRequestTimeout(2*time.Minute),
		),
	}
	if cfg.OpenAIAPIKey != "" {
		opts = append(opts, openai.WithAPIKey(cfg.OpenAIAPIKey))
	}
	if cfg.OpenAIBaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.OpenAIBaseURL))
	}
	return openai.New(cfg.ModelName(), opts...)
}

// logToolResult records successful tool calls without altering them.
// The framework only runs after-tool callbacks for calls that succeeded;
// failures are logged by the Arcade tools themselves.
func logToolResult(
	_ context.Context,
	toolName string,
	_ *tool.Declaration,
	jsonArgs []byte,
	result any,
	_ error,
) (any, error) {
	log.Debugf("tool %s finished, args=%s result=%v", toolName, string(jsonArgs), result)
	return nil, nil
}
