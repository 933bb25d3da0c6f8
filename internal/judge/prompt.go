package judge

import "fmt"

const judgeSystemPrompt = `You are an expert OpenAPI 3.0 specification evaluator. ` +
	`Your task is to evaluate the quality and completeness of an OpenAPI specification. ` +
	`Return a JSON object with: {"score": 0-100, "isValid": true/false, "issues": ["issue1", "issue2"], "recommendation": "retry" or "accept"}. ` +
	`Score criteria:
- 90-100: Excellent - Complete, accurate, well-structured
- 70-89: Good - Minor issues, mostly complete
- 50-69: Fair - Some missing endpoints or incomplete details
- 0-49: Poor - Major issues, incomplete, or invalid
Return ONLY valid JSON, no markdown, no code blocks.`

func buildJudgePrompt(sourceURL string, expectedCount int, specPreview string) string {
	return fmt.Sprintf(`Evaluate this OpenAPI 3.0 specification:

Source URL: %s
Expected endpoints: %d

OpenAPI spec (preview):
%s

Check for:
1. Completeness: Are all expected endpoints present?
2. Validity: Is the JSON valid and properly structured?
3. Detail: Do endpoints have proper descriptions, parameters, and responses?
4. Server URL: Is the server URL correctly extracted from documentation?
5. Schema definitions: Are request/response schemas properly defined?

Return JSON with score, isValid, issues array, and recommendation.`, sourceURL, expectedCount, specPreview)
}
