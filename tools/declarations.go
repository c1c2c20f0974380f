package tools

import "github.com/effective-security/mcpchat/pkg/llms"

// Declarations converts tool specs into function declarations for the model.
// The order is preserved and InputSchema is used as Parameters unchanged.
func Declarations(specs []Spec) []llms.Tool {
	if len(specs) == 0 {
		return nil
	}
	decls := make([]llms.Tool, 0, len(specs))
	for _, s := range specs {
		decls = append(decls, llms.Tool{
			Type: "function",
			Function: &llms.FunctionDefinition{
				Name:        s.Name,
				Description: s.Description,
				Parameters:  s.InputSchema,
			},
		})
	}
	return decls
}

// Names returns the names of the tools.
func Names(specs []Spec) []string {
	names := make([]string, 0, len(specs))
	for _, s := range specs {
		names = append(names, s.Name)
	}
	return names
}
