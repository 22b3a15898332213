package llm

import (
	"fmt"
	"strings"
)

// requirementSchema is the JSON schema every model response must satisfy.
const requirementSchema = `{
  "type": "object",
  "required": ["requirements"],
  "properties": {
    "requirements": {
      "type": "array",
      "maxItems": 50,
      "items": {
        "type": "object",
        "required": ["phrase"],
        "properties": {
          "phrase": {"type": "string", "minLength": 1, "maxLength": 200},
          "category": {"type": "string", "maxLength": 100}
        }
      }
    }
  }
}`

func buildSystemPrompt(categories []string) string {
	var b strings.Builder

	b.WriteString("You extract procurement requirements from a buyer's request for proposal.\n")
	b.WriteString("List every distinct item or capability the buyer asks for as a short noun phrase ")
	b.WriteString("taken from the request wording. Do not invent items that are not requested.\n")

	if len(categories) > 0 {
		b.WriteString("When a phrase clearly belongs to one of these catalog categories, set \"category\" to it exactly; ")
		b.WriteString("otherwise leave \"category\" empty.\n")
		fmt.Fprintf(&b, "Categories: %s\n", strings.Join(categories, ", "))
	}

	b.WriteString("Respond with a single JSON object and nothing else. It must validate against this schema:\n")
	b.WriteString(requirementSchema)
	b.WriteString("\n")

	return b.String()
}

func buildUserPrompt(text string, requirements []string) string {
	if len(requirements) == 0 {
		return text
	}

	var b strings.Builder
	b.WriteString(text)
	b.WriteString("\n\nListed requirements:\n")
	for _, r := range requirements {
		b.WriteString("- ")
		b.WriteString(r)
		b.WriteString("\n")
	}
	return b.String()
}

// stripCodeFences removes a markdown fence some models wrap JSON in.
func stripCodeFences(text string) string {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	return strings.TrimSpace(text)
}
