package llms

import "strings"

// ExtractText returns the text of the first choice.
// The aggregate Content is preferred, otherwise the text parts are joined
// with a newline in the order the model produced them.
// The second value is false when the response carries no text at all.
func ExtractText(resp *ContentResponse) (string, bool) {
	choice := resp.FirstChoice()
	if choice == nil {
		return "", false
	}
	if choice.Content != "" {
		return choice.Content, true
	}

	var texts []string
	for _, p := range choice.Parts {
		if tc, ok := p.(TextContent); ok && tc.Text != "" {
			texts = append(texts, tc.Text)
		}
	}
	if len(texts) == 0 {
		return "", false
	}
	return strings.Join(texts, "\n"), true
}
