package analysis

import (
	"fmt"
	"strings"
)

// languageNames maps supported codes to the name used in prompts.
var languageNames = map[string]string{
	"en": "English",
	"es": "Spanish",
	"fr": "French",
	"de": "German",
	"pt": "Portuguese",
	"it": "Italian",
}

// buildDiagnosticPrompt creates the provider prompt for an analysis call.
// When strict is true the formatting instructions are repeated more
// forcefully; used for the single re-prompt after a parse failure.
func buildDiagnosticPrompt(req Request, strict bool) string {
	var sb strings.Builder

	sb.WriteString("You are an expert industrial-equipment service engineer diagnosing a machine problem.\n\n")
	sb.WriteString(fmt.Sprintf("Problem description: %s\n\n", req.Problem))

	if mc := req.Machine; mc != nil {
		if mc.Details != nil {
			sb.WriteString("Machine:\n")
			sb.WriteString(fmt.Sprintf("- Model: %s", mc.Details.Model))
			if mc.Details.Manufacturer != "" {
				sb.WriteString(fmt.Sprintf(" (%s)", mc.Details.Manufacturer))
			}
			sb.WriteString("\n")
			if mc.Details.OperatingHours > 0 {
				sb.WriteString(fmt.Sprintf("- Operating hours: %.0f\n", mc.Details.OperatingHours))
			}
			sb.WriteString("\n")
		}
		if len(mc.History) > 0 {
			sb.WriteString("Recent maintenance (newest first):\n")
			for _, entry := range mc.History {
				sb.WriteString(fmt.Sprintf("- %s [%s]: %s\n",
					entry.Date.Format("2006-01-02"), entry.Type, entry.Description))
			}
			sb.WriteString("\n")
		}
		if len(mc.Suggestions) > 0 {
			sb.WriteString("Outstanding preventive maintenance:\n")
			for _, s := range mc.Suggestions {
				sb.WriteString(fmt.Sprintf("- %s\n", s.Description))
			}
			sb.WriteString("\n")
		}
	}

	if len(req.PriorSteps) > 0 {
		sb.WriteString("Steps already attempted with the user's feedback:\n")
		for i, step := range req.PriorSteps {
			sb.WriteString(fmt.Sprintf("%d. %s\n", i+1, step.Instruction))
			if step.Feedback != "" {
				sb.WriteString(fmt.Sprintf("   User feedback (%s): %s\n", step.Outcome, step.Feedback))
			}
		}
		sb.WriteString("\nRe-diagnose taking the failed attempts into account and propose different remediation steps.\n\n")
	}

	if name, ok := languageNames[req.Language]; ok && req.Language != "en" {
		sb.WriteString(fmt.Sprintf("Write all user-facing text (causes, steps, warnings) in %s.\n\n", name))
	}

	sb.WriteString("Respond with a JSON object with exactly these fields:\n")
	sb.WriteString(`{"problem_category": "short category", ` +
		`"likely_causes": ["most likely first"], ` +
		`"confidence_level": "high|medium|low|very_low", ` +
		`"recommended_steps": [{"instruction": "ordered, actionable instruction", ` +
		`"expected_outcomes": ["observable result confirming the step worked"]}], ` +
		`"safety_warnings": ["only if hazards are involved"], ` +
		`"estimated_duration": 30, ` +
		`"requires_expert": false}`)
	sb.WriteString("\n")

	if strict {
		sb.WriteString("\nIMPORTANT: Respond with ONLY the JSON object. ")
		sb.WriteString("No markdown fences, no commentary, no text before or after the JSON. ")
		sb.WriteString("likely_causes must be a non-empty array of strings and recommended_steps ")
		sb.WriteString("a non-empty array of objects with instruction and expected_outcomes.\n")
	}

	return sb.String()
}
