package llms

import (
	"encoding/json"

	"github.com/cockroachdb/errors"
)

// part types on the wire
const (
	partTypeText         = "text"
	partTypeToolCall     = "tool_call"
	partTypeToolResponse = "tool_response"
)

// ContentPartJSON represents the JSON structure for content parts
type ContentPartJSON struct {
	Type         string            `json:"type"`
	Text         string            `json:"text,omitempty"`
	ToolCall     *ToolCall         `json:"tool_call,omitempty"`
	ToolResponse *ToolCallResponse `json:"tool_response,omitempty"`
}

type messageJSON struct {
	Role  Role              `json:"role"`
	Parts []ContentPartJSON `json:"parts"`
}

type contentChoiceJSON struct {
	Content        string            `json:"content"`
	Parts          []ContentPartJSON `json:"parts,omitempty"`
	StopReason     string            `json:"stop_reason"`
	GenerationInfo map[string]any    `json:"generation_info,omitempty"`
	ToolCalls      []ToolCall        `json:"tool_calls,omitempty"`
}

// MarshalJSON implements json.Marshaler for Message
func (m Message) MarshalJSON() ([]byte, error) {
	parts, err := partsToJSON(m.Parts)
	if err != nil {
		return nil, err
	}
	return json.Marshal(messageJSON{Role: m.Role, Parts: parts})
}

// UnmarshalJSON implements json.Unmarshaler for Message
func (m *Message) UnmarshalJSON(data []byte) error {
	var js messageJSON
	if err := json.Unmarshal(data, &js); err != nil {
		return errors.WithStack(err)
	}
	parts, err := partsFromJSON(js.Parts)
	if err != nil {
		return err
	}
	m.Role = js.Role
	m.Parts = parts
	return nil
}

// MarshalJSON implements json.Marshaler for ContentChoice
func (c ContentChoice) MarshalJSON() ([]byte, error) {
	parts, err := partsToJSON(c.Parts)
	if err != nil {
		return nil, err
	}
	return json.Marshal(contentChoiceJSON{
		Content:        c.Content,
		Parts:          parts,
		StopReason:     c.StopReason,
		GenerationInfo: c.GenerationInfo,
		ToolCalls:      c.ToolCalls,
	})
}

// UnmarshalJSON implements json.Unmarshaler for ContentChoice
func (c *ContentChoice) UnmarshalJSON(data []byte) error {
	var js contentChoiceJSON
	if err := json.Unmarshal(data, &js); err != nil {
		return errors.WithStack(err)
	}
	parts, err := partsFromJSON(js.Parts)
	if err != nil {
		return err
	}
	*c = ContentChoice{
		Content:        js.Content,
		Parts:          parts,
		StopReason:     js.StopReason,
		GenerationInfo: js.GenerationInfo,
		ToolCalls:      js.ToolCalls,
	}
	return nil
}

func partsToJSON(parts []ContentPart) ([]ContentPartJSON, error) {
	if len(parts) == 0 {
		return nil, nil
	}
	res := make([]ContentPartJSON, 0, len(parts))
	for _, p := range parts {
		switch typ := p.(type) {
		case TextContent:
			res = append(res, ContentPartJSON{Type: partTypeText, Text: typ.Text})
		case ToolCall:
			res = append(res, ContentPartJSON{Type: partTypeToolCall, ToolCall: &typ})
		case ToolCallResponse:
			res = append(res, ContentPartJSON{Type: partTypeToolResponse, ToolResponse: &typ})
		default:
			return nil, errors.Errorf("unsupported content part: %T", p)
		}
	}
	return res, nil
}

func partsFromJSON(parts []ContentPartJSON) ([]ContentPart, error) {
	if len(parts) == 0 {
		return nil, nil
	}
	res := make([]ContentPart, 0, len(parts))
	for _, p := range parts {
		switch p.Type {
		case partTypeText:
			res = append(res, TextContent{Text: p.Text})
		case partTypeToolCall:
			if p.ToolCall == nil {
				return nil, errors.New("missing tool_call")
			}
			res = append(res, *p.ToolCall)
		case partTypeToolResponse:
			if p.ToolResponse == nil {
				return nil, errors.New("missing tool_response")
			}
			res = append(res, *p.ToolResponse)
		default:
			return nil, errors.Errorf("unsupported content part type: %q", p.Type)
		}
	}
	return res, nil
}
