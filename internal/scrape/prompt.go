package scrape

import (
	"fmt"
	"net/url"
)

const discoverySystemPrompt = `You are an expert at analyzing API documentation. ` +
	`You have access to the source URL and can use it to better understand the API structure and base URL. ` +
	`Your task is to identify ALL API endpoints mentioned or documented on a page. ` +
	`Return a JSON array of objects with this structure: ` +
	`[{"method": "GET", "path": "/users", "name": "Get User", "url": "full_url_if_available"}]. ` +
	`Include ALL endpoints you can find. Use the source URL to construct complete paths. ` +
	`Return ONLY valid JSON, no markdown, no code blocks.`

const extractSystemPrompt = `You are an API documentation expert. Extract complete details about this specific API endpoint. ` +
	`Return a JSON object with: method, path, summary, description, and parameters array. ` +
	`For parameters: name, type, required (boolean), description. Return ONLY valid JSON.`

func buildDiscoveryPrompt(sourceURL, content string) string {
	return fmt.Sprintf(`Analyze this API documentation page and list ALL API endpoints you can find.

Source URL: %s
URL context: %s

Use the source URL to understand the base URL and API structure. If relative paths are mentioned in the content, combine them with the base URL from the source URL.

Page content:
%s

Return a JSON array of ALL API endpoints with their HTTP method, complete path, name and full documentation URL if available.`,
		sourceURL, urlContext(sourceURL), content)
}

func buildExtractPrompt(method, path, content string) string {
	return fmt.Sprintf(`Extract complete details for the API endpoint: %s %s

Page content:
%s

Return JSON with all available information about this endpoint.`, method, path, content)
}

func urlContext(sourceURL string) string {
	u, err := url.Parse(sourceURL)
	if err != nil || u.Host == "" {
		return "unknown host"
	}
	return fmt.Sprintf("host %s, scheme %s", u.Host, u.Scheme)
}
