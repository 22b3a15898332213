package ml

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	assert.Equal(t, "need led lighting safety helmets", Normalize("Need LED-lighting, & safety helmets!"))
	assert.Equal(t, "café", Normalize("Café"))
	assert.Equal(t, "", Normalize("  ...  "))
}

func TestFoldPlural(t *testing.T) {
	testCases := map[string]string{
		"helmets":   "helmet",
		"batteries": "battery",
		"boxes":     "box",
		"glasses":   "glass",
		"switches":  "switch",
		"glass":     "glass",
		"bus":       "bus",
		"cables":    "cable",
		"lighting":  "lighting",
		"gas":       "gas",
	}

	for in, expected := range testCases {
		t.Run(in, func(t *testing.T) {
			assert.Equal(t, expected, FoldPlural(in))
		})
	}
}

func TestTokenize(t *testing.T) {
	assert.Equal(t, []string{"need", "led", "lighting", "and", "safety", "helmet"},
		Tokenize("Need LED lighting and safety helmets"))
	assert.Nil(t, Tokenize(""))
	assert.Equal(t, []string{"led", "lighting", "safety", "helmet"},
		ContentTokens("Need LED lighting and safety helmets"))
}

func TestContainsPhrase(t *testing.T) {
	tokens := Tokenize("we need hard hats and safety boots")

	assert.True(t, ContainsPhrase(tokens, Tokenize("hard hat")))
	assert.True(t, ContainsPhrase(tokens, Tokenize("boots")))
	assert.False(t, ContainsPhrase(tokens, Tokenize("safety hat")))
	assert.False(t, ContainsPhrase(tokens, nil))
	assert.False(t, ContainsPhrase(tokens[:1], Tokenize("hard hat")))
}
