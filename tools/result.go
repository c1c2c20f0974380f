package tools

import (
	"encoding/json"
	"strings"
)

// NoContent is the result text of a tool that returned nothing.
const NoContent = "Tool executed successfully but returned no content."

// Content is an item of a tool result: TextContent or OpaqueContent.
type Content interface {
	isContent()
	// String returns the text of the item
	String() string
}

// TextContent is a text item.
type TextContent struct {
	Text string `json:"text"`
}

func (TextContent) isContent() {}

func (c TextContent) String() string {
	return c.Text
}

// OpaqueContent is an item without text, such as an image or a resource.
type OpaqueContent struct {
	Type string          `json:"type"`
	Raw  json.RawMessage `json:"raw,omitempty"`
}

func (OpaqueContent) isContent() {}

// String returns the raw JSON of the item, or its type when not available.
func (c OpaqueContent) String() string {
	if len(c.Raw) > 0 {
		return string(c.Raw)
	}
	return "[" + c.Type + "]"
}

// Result is the outcome of a tool invocation.
type Result struct {
	Content []Content `json:"content"`
}

// NewTextResult returns a result with a single text item.
func NewTextResult(text string) *Result {
	return &Result{Content: []Content{TextContent{Text: text}}}
}

// String returns the content items joined with a newline,
// or NoContent when the result is empty.
func (r *Result) String() string {
	if r == nil || len(r.Content) == 0 {
		return NoContent
	}
	items := make([]string, 0, len(r.Content))
	for _, c := range r.Content {
		items = append(items, c.String())
	}
	return strings.Join(items, "\n")
}
