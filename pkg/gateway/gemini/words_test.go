package gemini

import (
	"encoding/json"
	"testing"

	"github.com/gemikid/tutor/pkg/core/types"
)

func TestExtractJSONArray(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"bare array", `[{"word":"cat"}]`, `[{"word":"cat"}]`},
		{"fenced", "```json\n[{\"word\":\"cat\"}]\n```", `[{"word":"cat"}]`},
		{"prefixed", `Here you go: [1, 2, 3] enjoy!`, `[1, 2, 3]`},
		{"no array", "sorry, I cannot do that", ""},
		{"empty", "", ""},
		{"unterminated", `[{"word":"cat"`, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := extractJSONArray(tc.in); got != tc.want {
				t.Errorf("extractJSONArray(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

func TestExtractJSONArray_DecodesWordList(t *testing.T) {
	raw := "```json\n" + `[
		{"word": "river", "translation": "flowing water", "hint": "starts with r"},
		{"word": "cloud", "translation": "white shape in the sky", "hint": "rhymes with loud"}
	]` + "\n```"

	var words []types.SpellingWord
	if err := json.Unmarshal([]byte(extractJSONArray(raw)), &words); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(words) != 2 {
		t.Fatalf("decoded %d words, want 2", len(words))
	}
	if words[0].Word != "river" || words[0].Translation != "flowing water" || words[0].Hint != "starts with r" {
		t.Errorf("first word = %+v", words[0])
	}
}
