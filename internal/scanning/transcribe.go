package scanning

import "strings"

// transcriptionPrompt is shared by the model-backed engines. The extraction
// heuristics work line by line, so the layout of the bill has to survive.
const transcriptionPrompt = `You are reading a photo or scan of a bill or invoice. Transcribe every piece of printed or handwritten text exactly as it appears.

Rules:
- Keep the original line structure: one printed line per output line
- Keep table rows on a single line with their columns separated by spaces
- Copy numbers, currency symbols, dates and codes exactly; do not reformat or correct them
- Do not summarize, translate, explain or add any text that is not on the document
- Do not use markdown or code blocks
- If there is no readable text, return an empty response`

const transcriptionSystemPrompt = "You are an OCR engine. You output only the text visible in the image."

// cleanTranscription strips the markdown fences models tend to add despite
// being told not to
func cleanTranscription(text string) string {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "```") {
		return text
	}

	text = strings.TrimPrefix(text, "```")
	if i := strings.IndexByte(text, '\n'); i >= 0 {
		// drop an info string such as ```text
		if !strings.ContainsAny(strings.TrimSpace(text[:i]), " \t") {
			text = text[i+1:]
		}
	}
	text = strings.TrimSuffix(strings.TrimSpace(text), "```")
	return strings.TrimSpace(text)
}
