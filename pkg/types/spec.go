package types

import "encoding/json"

// Specification is a merged OpenAPI 3.0 document. Path operations are kept
// as raw JSON because their shape is produced by the oracle and only the
// envelope is owned by this program.
type Specification struct {
	OpenAPI    string                     `json:"openapi"`
	Info       Info                       `json:"info"`
	Servers    []Server                   `json:"servers,omitempty"`
	Paths      map[string]json.RawMessage `json:"paths"`
	Components *Components                `json:"components,omitempty"`
}

// Info is the OpenAPI info section.
type Info struct {
	Title       string `json:"title"`
	Version     string `json:"version"`
	Description string `json:"description,omitempty"`
}

// Server is one base-URL entry.
type Server struct {
	URL string `json:"url"`
}

// Components is the OpenAPI components section.
type Components struct {
	Schemas map[string]json.RawMessage `json:"schemas"`
}

// PathCount returns the number of distinct path keys.
func (s *Specification) PathCount() int {
	if s == nil {
		return 0
	}
	return len(s.Paths)
}
