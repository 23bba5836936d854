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
	"encoding/json"
	"fmt"
	"strings"

	"trpc.group/trpc-go/trpc-agent-go/tool"
)

// jsonSchema is the subset of JSON Schema Arcade emits for OpenAI tools.
// Type is either a string or a list such as ["string", "null"].
type jsonSchema struct {
	Type                 json.RawMessage        `json:"type"`
	Description          string                 `json:"description"`
	Required             []string               `json:"required"`
	Properties           map[string]*jsonSchema `json:"properties"`
	Items                *jsonSchema            `json:"items"`
	Enum                 []any                  `json:"enum"`
	AdditionalProperties any                    `json:"additionalProperties"`
}

// convertSchema turns raw OpenAI parameters into a tool.Schema.
// Empty input yields an empty object schema.
func convertSchema(raw json.RawMessage) (*tool.Schema, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return &tool.Schema{Type: "object", Properties: map[string]*tool.Schema{}}, nil
	}
	var js jsonSchema
	if err := json.Unmarshal(raw, &js); err != nil {
		return nil, fmt.Errorf("failed to parse tool parameters: %w", err)
	}
	s := toSchema(&js)
	if s.Type == "" {
		s.Type = "object"
	}
	return s, nil
}

func toSchema(js *jsonSchema) *tool.Schema {
	if js == nil {
		return nil
	}
	s := &tool.Schema{
		Type:                 schemaType(js.Type),
		Description:          js.Description,
		Required:             js.Required,
		AdditionalProperties: js.AdditionalProperties,
		Items:                toSchema(js.Items),
	}
	if len(js.Enum) > 0 {
		s.Description = appendEnum(s.Description, js.Enum)
	}
	if len(js.Properties) > 0 {
		s.Properties = make(map[string]*tool.Schema, len(js.Properties))
		for name, p := range js.Properties {
			s.Properties[name] = toSchema(p)
		}
	}
	return s
}

// schemaType picks the first non-null type.
func schemaType(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var single string
	if err := json.Unmarshal(raw, &single); err == nil {
		return single
	}
	var many []string
	if err := json.Unmarshal(raw, &many); err == nil {
		for _, t := range many {
			if t != "null" {
				return t
			}
		}
	}
	return ""
}

func appendEnum(desc string, enum []any) string {
	vals := make([]string, 0, len(enum))
	for _, v := range enum {
		vals = append(vals, fmt.Sprint(v))
	}
	hint := "One of: " + strings.Join(vals, ", ") + "."
	if desc == "" {
		return hint
	}
	return strings.TrimRight(desc, " ") + " " + hint
}
