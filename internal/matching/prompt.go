package matching

import (
	"encoding/json"
	"fmt"
	"strings"
)

const resolveSystemPrompt = `You classify web form fields against a fixed list of memory intents.
For every form field name, pick the single intent whose remembered data belongs in that field, or null when no intent plausibly fits.

Rules:
- Only use intent names from the valid_intents list. Never invent an intent.
- The same intent may be picked for more than one field when it genuinely fits both.
- Prefer null over a forced, implausible match.

Reply with exactly one JSON object of the form {"matches":{"<field name>":"<intent>"}} where each value is an intent name or null. Cover every field exactly once. No other keys, no prose.`

const composeSystemPrompt = `You write the final text for one web form field on the user's behalf.
Be concise and sound like the user writing in their own authentic voice. Never pad the answer.
Output only the field text itself, with no surrounding quotes and no commentary.`

type resolvePayload struct {
	Fields       []string           `json:"fields"`
	ValidIntents []string           `json:"valid_intents"`
	Candidates   []candidatePayload `json:"candidates"`
}

type candidatePayload struct {
	Intent string `json:"intent"`
	Value  string `json:"value"`
	Kind   string `json:"kind"`
}

func buildResolveUserPrompt(payload resolvePayload) (string, error) {
	encoded, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode resolve payload: %w", err)
	}

	return string(encoded), nil
}

// composeSections are the ranked instruction sections for one generation call.
// Priority runs outline, then context, then the matched item's value.
type composeSections struct {
	outline       string
	context       string
	reference     string
	referenceRole string
}

func buildComposeUserPrompt(sections composeSections) string {
	var builder strings.Builder

	if sections.outline != "" {
		builder.WriteString("Primary instructions (user outline):\n")
		builder.WriteString(sections.outline)
		builder.WriteString("\n\n")
	}
	if sections.context != "" {
		builder.WriteString("Secondary input (form context):\n")
		builder.WriteString(sections.context)
		builder.WriteString("\n\n")
	}
	if sections.reference != "" {
		builder.WriteString("Supplementary reference (")
		builder.WriteString(sections.referenceRole)
		builder.WriteString("):\n")
		builder.WriteString(sections.reference)
		builder.WriteString("\n\n")
	}

	builder.WriteString(composeDirective(sections))

	return builder.String()
}

func composeDirective(sections composeSections) string {
	parts := make([]string, 0, 3)
	if sections.outline != "" {
		parts = append(parts, "Follow the primary instructions")
	} else if sections.referenceRole == referenceRoleTemplate {
		parts = append(parts, "Follow the supplementary template")
	}
	if sections.context != "" {
		parts = append(parts, "incorporate the form context where it helps")
	}
	if sections.outline != "" && sections.reference != "" {
		parts = append(parts, "use the supplementary reference only as supporting material")
	}

	return "Write the field text now. " + strings.Join(parts, "; ") + "."
}

const (
	referenceRoleTemplate = "template to apply"
	referenceRoleValue    = "remembered value"
)
