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
	"regexp"
)

// ToolFilter selects which acquired tools are handed to the agent.
type ToolFilter interface {
	Filter(ctx context.Context, tools []ToolInfo) []ToolInfo
}

// ToolInfo contains metadata about an Arcade tool.
type ToolInfo struct {
	// Name is the model-facing name, e.g. Dropbox_DownloadFile.
	Name string `json:"name"`
	// Description is a description of what the tool does.
	Description string `json:"description"`
}

// ToolFilterFunc is a function type that implements ToolFilter interface.
type ToolFilterFunc func(ctx context.Context, tools []ToolInfo) []ToolInfo

// Filter implements the ToolFilter interface.
func (f ToolFilterFunc) Filter(ctx context.Context, tools []ToolInfo) []ToolInfo {
	return f(ctx, tools)
}

type nameFilter struct {
	names   map[string]bool
	include bool
}

func (f *nameFilter) Filter(_ context.Context, tools []ToolInfo) []ToolInfo {
	if len(f.names) == 0 {
		return tools
	}
	var filtered []ToolInfo
	for _, t := range tools {
		if f.names[t.Name] == f.include {
			filtered = append(filtered, t)
		}
	}
	return filtered
}

// NewIncludeFilter keeps only the named tools. No names keeps everything.
func NewIncludeFilter(toolNames ...string) ToolFilter {
	return &nameFilter{names: nameSet(toolNames), include: true}
}

// NewExcludeFilter drops the named tools.
func NewExcludeFilter(toolNames ...string) ToolFilter {
	return &nameFilter{names: nameSet(toolNames), include: false}
}

// NewPatternIncludeFilter keeps tools whose name matches any of the patterns.
// Invalid patterns never match.
func NewPatternIncludeFilter(namePatterns ...string) ToolFilter {
	var res []*regexp.Regexp
	for _, p := range namePatterns {
		if re, err := regexp.Compile(p); err == nil {
			res = append(res, re)
		}
	}
	return ToolFilterFunc(func(_ context.Context, tools []ToolInfo) []ToolInfo {
		if len(namePatterns) == 0 {
			return tools
		}
		var filtered []ToolInfo
		for _, t := range tools {
			for _, re := range res {
				if re.MatchString(t.Name) {
					filtered = append(filtered, t)
					break
				}
			}
		}
		return filtered
	})
}

func nameSet(names []string) map[string]bool {
	set := make(map[string]bool, len(names))
	for _, n := range names {
		set[normalizeName(n)] = true
	}
	return set
}

type compositeFilter struct {
	filters []ToolFilter
}

func (f *compositeFilter) Filter(ctx context.Context, tools []ToolInfo) []ToolInfo {
	for _, filter := range f.filters {
		tools = filter.Filter(ctx, tools)
	}
	return tools
}

// NewCompositeFilter applies the filters in order; nil filters are skipped.
func NewCompositeFilter(filters ...ToolFilter) ToolFilter {
	var set []ToolFilter
	for _, f := range filters {
		if f != nil {
			set = append(set, f)
		}
	}
	return &compositeFilter{filters: set}
}
