package oracle

import (
	"encoding/json"
	"errors"
	"strings"
)

// ErrUnrepairable is returned when truncated output cannot be closed into
// valid JSON.
var ErrUnrepairable = errors.New("oracle: output not repairable")

// Repair attempts a best-effort structural fix of truncated JSON output.
// It scans the text once, tracking delimiter nesting while skipping string
// literals. If the text ends inside an open string, it is cut back to the
// last comma outside any string, sacrificing the incomplete element. The
// missing closers are then appended in reverse nesting order and the result
// is validated by parsing.
func Repair(text string) (string, error) {
	s := strings.TrimSpace(text)
	if s == "" {
		return "", ErrUnrepairable
	}

	stack, inString, lastComma := scanDelimiters(s)
	if inString {
		if lastComma < 0 {
			return "", ErrUnrepairable
		}
		s = s[:lastComma]
		stack, inString, _ = scanDelimiters(s)
		if inString {
			return "", ErrUnrepairable
		}
	}

	s = strings.TrimRight(s, ", \t\r\n")
	if s == "" {
		return "", ErrUnrepairable
	}

	var b strings.Builder
	b.WriteString(s)
	for i := len(stack) - 1; i >= 0; i-- {
		switch stack[i] {
		case '{':
			b.WriteByte('}')
		case '[':
			b.WriteByte(']')
		}
	}

	repaired := b.String()
	if !json.Valid([]byte(repaired)) {
		return "", ErrUnrepairable
	}
	return repaired, nil
}

// scanDelimiters walks the text and returns the stack of unclosed openers,
// whether the scan ended inside a string literal, and the byte offset of the
// last comma seen outside any string.
func scanDelimiters(s string) (stack []byte, inString bool, lastComma int) {
	lastComma = -1
	escaped := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if escaped {
			escaped = false
			continue
		}
		if c == '\\' {
			escaped = true
			continue
		}
		if c == '"' {
			inString = !inString
			continue
		}
		if inString {
			continue
		}
		switch c {
		case '{', '[':
			stack = append(stack, c)
		case '}':
			if n := len(stack); n > 0 && stack[n-1] == '{' {
				stack = stack[:n-1]
			}
		case ']':
			if n := len(stack); n > 0 && stack[n-1] == '[' {
				stack = stack[:n-1]
			}
		case ',':
			lastComma = i
		}
	}
	return stack, inString, lastComma
}

// DecodeLoose unmarshals oracle output into v, stripping markdown fences
// first and falling back to truncation repair when the text does not parse.
func DecodeLoose(content string, v interface{}) error {
	text := StripCodeFence(content)
	if err := json.Unmarshal([]byte(text), v); err == nil {
		return nil
	}
	repaired, err := Repair(text)
	if err != nil {
		return err
	}
	return json.Unmarshal([]byte(repaired), v)
}
