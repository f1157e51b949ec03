package longconvo

import "fmt"

const userSummarizePrompt = `Summarize the following user message concisely while:
- Preserving ALL code blocks exactly as-is (do not modify or summarize code)
- Preserving direct quotes and specific requests
- Keeping technical details and requirements
- Maintaining the user's intent

Target length: approximately %.0f%% of original.

User message:
%s

Summary:`

const assistantSummarizePrompt = `Summarize the following assistant response aggressively to bullet points:
- Keep only key decisions ("I decided to...", "I'll use...")
- Keep only final conclusions and answers
- Remove explanations, elaborations, and filler
- Preserve any code that was provided

Target length: approximately %.0f%% of original.

Assistant response:
%s

Summary:`

// compressionPrompt renders the role-appropriate asymmetric compression
// prompt for a segment.
func compressionPrompt(role Role, content string, targetRatio float64) string {
	tmpl := assistantSummarizePrompt
	if role == RoleUser {
		tmpl = userSummarizePrompt
	}
	return fmt.Sprintf(tmpl, targetRatio*100, content)
}
