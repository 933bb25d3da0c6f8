package synth

import (
	"fmt"
	"strings"

	"github.com/yourorg/apispec/pkg/types"
)

const completeSystemPrompt = `You are an expert in OpenAPI 3.0 specification. ` +
	`Generate a COMPLETE, valid OpenAPI 3.0 specification in JSON format. ` +
	`Return ONLY valid JSON, no markdown, no code blocks.`

const chunkSystemPrompt = `You are an expert in OpenAPI 3.0 specification. ` +
	`You are generating a PART of a larger OpenAPI spec. ` +
	`Return ONLY the paths section for the endpoints provided. ` +
	`Return valid JSON with just the paths object: {"paths": {...}}. ` +
	`No openapi version, no info, no servers - just the paths.`

func buildCompletePrompt(endpoints []types.Endpoint, baseURL string) string {
	return fmt.Sprintf(`Generate a complete OpenAPI 3.0 specification for these %d API endpoints.

Base URL: %s

Endpoints:
%s

Requirements:
1. openapi: 3.0.0
2. info section with title and version
3. servers section with base URL: %s
4. paths section with all endpoints
5. components section with schemas

Return ONLY valid JSON.`, len(endpoints), baseURL, renderEndpoints(endpoints), baseURL)
}

func buildChunkPrompt(endpoints []types.Endpoint, baseURL string, chunkNum int) string {
	return fmt.Sprintf(`Generate the paths section for these %d API endpoints (chunk %d).

Base URL: %s

Endpoints:
%s

Requirements:
1. Return JSON with ONLY a 'paths' object
2. Include all endpoints with their methods, summary, description, parameters, and responses
3. Use proper OpenAPI 3.0 format
4. Example structure: {"paths": {"/users": {"get": {...}}}}

Return ONLY valid JSON with the paths object.`, len(endpoints), chunkNum, baseURL, renderEndpoints(endpoints))
}

// renderEndpoints flattens endpoints into the compact numbered list the
// prompts embed.
func renderEndpoints(endpoints []types.Endpoint) string {
	var b strings.Builder
	for i, ep := range endpoints {
		fmt.Fprintf(&b, "\n%d. %s %s", i+1, ep.Method, ep.Path)
		if ep.Summary != "" {
			fmt.Fprintf(&b, "\n   Summary: %s", ep.Summary)
		}
		if ep.Description != "" {
			fmt.Fprintf(&b, "\n   Description: %s", ep.Description)
		}
		if len(ep.Parameters) > 0 {
			b.WriteString("\n   Parameters:")
			for _, p := range ep.Parameters {
				req := "optional"
				if p.Required {
					req = "required"
				}
				fmt.Fprintf(&b, "\n     - %s (%s, %s): %s", p.Name, p.Type, req, p.Description)
			}
		}
	}
	return b.String()
}
