package gemini

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"github.com/gemikid/tutor/pkg/core/types"
)

// wordListCount is how many words one spelling round uses.
const wordListCount = 10

// FetchWordList asks the fast model for spelling words pitched at the class
// level. The model replies with JSON; anything around the array is ignored.
func (p *Provider) FetchWordList(ctx context.Context, classLevel string) ([]types.SpellingWord, error) {
	if classLevel == "" {
		classLevel = "primary school"
	}
	prompt := fmt.Sprintf(
		"Give me %d spelling words suitable for a %s student. "+
			"Reply with only a JSON array of objects, each with the keys "+
			`"word", "translation" (a simple child-friendly meaning), and "hint". `+
			"No other text.",
		wordListCount, classLevel,
	)

	resp, err := p.client.Models.GenerateContent(ctx, modelWords, genai.Text(prompt), nil)
	if err != nil {
		return nil, fmt.Errorf("fetch word list: %w", err)
	}

	raw := extractJSONArray(resp.Text())
	if raw == "" {
		return nil, fmt.Errorf("fetch word list: no JSON array in response")
	}

	var words []types.SpellingWord
	if err := json.Unmarshal([]byte(raw), &words); err != nil {
		return nil, fmt.Errorf("fetch word list: decode response: %w", err)
	}
	return words, nil
}

// extractJSONArray returns the substring from the first '[' to the last ']'
// so fenced or prefixed model output still parses.
func extractJSONArray(s string) string {
	start := strings.Index(s, "[")
	end := strings.LastIndex(s, "]")
	if start < 0 || end <= start {
		return ""
	}
	return s[start : end+1]
}
