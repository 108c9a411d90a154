package grader

import "strings"

func systemPrompt() string {
	return "You are an academic grading assistant. Return only valid JSON with no markdown formatting."
}

// buildGradingPrompt builds the user prompt for one batch of subjective
// answers. The prompt pins the model to the rubric and to a strict JSON
// output schema keyed by the question ids from the request payload.
func buildGradingPrompt(payload string) string {
	b := strings.Builder{}
	b.WriteString("You are an automated academic grading engine.\n\n")
	b.WriteString("Below is a batch of free-text exam answers. Grade each item against its rubric and provide precise scores and feedback.\n\n")
	b.WriteString("DO NOT output any text outside a single strict JSON object. No markdown. No commentary outside the JSON.\n\n")
	b.WriteString("RULES:\n")
	b.WriteString("1) Assign between 0 and max_points for each item, never more.\n")
	b.WriteString("2) Compare the student's answer with the rubric. Award partial credit based on how well key concepts, terminology, and logic from the rubric are present.\n")
	b.WriteString("3) If the answer is missing, irrelevant, or contradicts the rubric, award 0.\n")
	b.WriteString("4) Only use the provided rubric for scoring. Do NOT invent additional criteria.\n")
	b.WriteString("5) Justify every score with evidence from the student's answer.\n")
	b.WriteString("6) Include every requested id exactly once.\n\n")
	b.WriteString("OUTPUT SCHEMA (JSON ONLY):\n")
	b.WriteString(`{"items": [{"id": <int>, "score": <number>, "rationale": "<concise evidence-based feedback>"}], "summary": "<one-paragraph overall summary>"}`)
	b.WriteString("\n\nBATCH:\n")
	b.WriteString(payload)
	return b.String()
}
