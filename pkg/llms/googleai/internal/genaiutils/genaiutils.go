package genaiutils

import (
	"github.com/cockroachdb/errors"
	"github.com/effective-security/mcpchat/pkg/llms"
	"google.golang.org/genai"
)

// ConvertTools converts a list of llms tools to genai tools.
// All function declarations are grouped into a single genai.Tool,
// the parameters schema is passed to the API as is.
func ConvertTools(tools []llms.Tool) ([]*genai.Tool, error) {
	if len(tools) == 0 {
		return nil, nil
	}

	decls := make([]*genai.FunctionDeclaration, 0, len(tools))
	for i, tool := range tools {
		if tool.Type != "function" {
			return nil, errors.Errorf("tool [%d]: unsupported type %q, want 'function'", i, tool.Type)
		}
		if tool.Function == nil || tool.Function.Name == "" {
			return nil, errors.Errorf("tool [%d]: missing function definition", i)
		}

		decl := &genai.FunctionDeclaration{
			Name:        tool.Function.Name,
			Description: tool.Function.Description,
		}
		if tool.Function.Parameters != nil {
			decl.ParametersJsonSchema = tool.Function.Parameters
		}
		decls = append(decls, decl)
	}

	return []*genai.Tool{{FunctionDeclarations: decls}}, nil
}

// Float32Ptr returns a pointer to v, or nil for zero value.
func Float32Ptr(v float32) *float32 {
	if v == 0 {
		return nil
	}
	return &v
}

// Int32Ptr returns a pointer to v, or nil for zero value.
func Int32Ptr(v int32) *int32 {
	if v == 0 {
		return nil
	}
	return &v
}

// StringPtr returns a pointer to v, or nil for empty value.
func StringPtr(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}
