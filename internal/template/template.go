// Package template renders the user-supplied JSON request template.
//
// Templates carry a {{prompt}} placeholder (case-insensitive, internal
// whitespace allowed) that gets replaced per prompt. Validation runs once
// at submission; Render runs per prompt and only has to escape correctly.
package template

import (
	"encoding/json"
	"errors"
	"regexp"
	"strings"
)

var (
	ErrEmptyTemplate      = errors.New("request template is empty")
	ErrMissingPlaceholder = errors.New("request template must contain a {{prompt}} placeholder")
	ErrInvalidJSON        = errors.New("request template is not valid JSON")
)

var placeholderRe = regexp.MustCompile(`(?i)\{\{\s*prompt\s*\}\}`)

// Validate checks a template at submission time. A valid template is
// non-blank, contains at least one placeholder and parses as JSON before
// substitution.
func Validate(tmpl string) error {
	if strings.TrimSpace(tmpl) == "" {
		return ErrEmptyTemplate
	}
	if !placeholderRe.MatchString(tmpl) {
		return ErrMissingPlaceholder
	}
	var v any
	if err := json.Unmarshal([]byte(tmpl), &v); err != nil {
		return ErrInvalidJSON
	}
	return nil
}

// Render replaces every placeholder occurrence with the JSON-string-escaped
// prompt. The escaping keeps the output valid JSON no matter what the
// prompt contains (quotes, backslashes, control characters).
func Render(tmpl, prompt string) string {
	return placeholderRe.ReplaceAllLiteralString(tmpl, escapeJSONString(prompt))
}

// escapeJSONString returns the prompt escaped for use inside a JSON string
// literal, without the surrounding quotes. json.Marshal does the escaping;
// the placeholder normally sits inside quotes in the template, so the
// quotes added by Marshal are stripped.
func escapeJSONString(s string) string {
	b, _ := json.Marshal(s) // marshaling a string cannot fail
	return string(b[1 : len(b)-1])
}
