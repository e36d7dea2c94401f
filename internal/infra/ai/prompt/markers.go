package prompt

import (
	"fmt"
	"strings"

	"github.com/bryanwahyu/health-insight/internal/domain/exams"
)

// GetSystemPrompt provides strict directions and schema for JSON output.
func GetSystemPrompt() string {
	keys := make([]string, 0, len(exams.KnownMarkers))
	for _, k := range exams.KnownMarkers {
		keys = append(keys, string(k))
	}
	return `You are a clinical laboratory assistant. You must produce one valid JSON object only (no markdown, no commentary) that follows the schema below. Do not include code fences.

Requirements:
- Output must be a single JSON object.
- Marker keys must be taken from this list: ` + strings.Join(keys, ", ") + `.
- Include only markers that the exam actually reports.
- Numeric readings go in "value" with their "unit"; textual findings (such as an ECG rhythm) go in "text".
- "status" is "attention" when the reading falls outside "reference", otherwise "normal".
- Write "summary" and "recommendations" in Brazilian Portuguese.

Schema (example with empty values):
{
  "markers": {
    "<marker key>": {"value": 0, "text": "", "unit": "<string>", "status": "<normal|attention>", "reference": "<string>"}
  },
  "summary": "<string>",
  "recommendations": ["<string>"]
}`
}

// GetUserPrompt builds the user message around the exam being read.
func GetUserPrompt(examType, rawResults, fileRef string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Exam type: %s\n", examType)
	if fileRef != "" {
		fmt.Fprintf(&b, "File: %s\n", fileRef)
	}
	if strings.TrimSpace(rawResults) != "" {
		fmt.Fprintf(&b, "Reported results:\n%s\n", rawResults)
	} else {
		b.WriteString("No transcribed results were provided; report only what the exam type implies and keep every status normal.\n")
	}
	b.WriteString("Respond with the JSON per schema.")
	return b.String()
}

// MarkerReading is one entry of Response.Markers
type MarkerReading struct {
	Value     *float64 `json:"value"`
	Text      string   `json:"text"`
	Unit      string   `json:"unit"`
	Status    string   `json:"status"`
	Reference string   `json:"reference"`
}

// Response matches the schema used by the system prompt.
type Response struct {
	Markers         map[string]MarkerReading `json:"markers"`
	Summary         string                   `json:"summary"`
	Recommendations []string                 `json:"recommendations"`
}
