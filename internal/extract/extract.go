// Package extract resolves a dot/bracket path expression against an
// arbitrary JSON response, e.g. choices[0].message.content.
package extract

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Error kinds, recorded verbatim into a job's prompt errors.
const (
	KindInvalidResponseBody = "invalid_response_body"
	KindPathNotFound        = "path_not_found"
	KindNotAString          = "not_a_string"
)

type Error struct {
	Kind    string
	Message string
}

func (e *Error) Error() string { return e.Message }

func pathNotFound(format string, args ...any) *Error {
	return &Error{Kind: KindPathNotFound, Message: fmt.Sprintf(format, args...)}
}

// ValidatePath checks the path grammar at submission time.
func ValidatePath(path string) error {
	if strings.TrimSpace(path) == "" {
		return fmt.Errorf("response key path is empty")
	}
	_, err := parsePath(path)
	return err
}

// Extract resolves path against the JSON document body and returns the
// terminal value as a string. Only scalar terminals (string, number, bool)
// are allowed; objects, arrays and null fail with NotAString so a wrong
// path never comes back silently stringified.
func Extract(body []byte, path string) (string, *Error) {
	segs, err := parsePath(path)
	if err != nil {
		return "", &Error{Kind: KindPathNotFound, Message: err.Error()}
	}

	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var current any
	if err := dec.Decode(&current); err != nil {
		return "", &Error{Kind: KindInvalidResponseBody, Message: "response body is not valid JSON: " + err.Error()}
	}

	for _, seg := range segs {
		if seg.isIndex {
			arr, ok := current.([]any)
			if !ok {
				return "", pathNotFound("segment [%d]: value is not an array", seg.index)
			}
			if seg.index < 0 || seg.index >= len(arr) {
				return "", pathNotFound("segment [%d]: index out of range (len %d)", seg.index, len(arr))
			}
			current = arr[seg.index]
			continue
		}

		obj, ok := current.(map[string]any)
		if !ok {
			return "", pathNotFound("segment %q: value is not an object", seg.key)
		}
		next, ok := obj[seg.key]
		if !ok {
			return "", pathNotFound("segment %q: key not found", seg.key)
		}
		current = next
	}

	switch v := current.(type) {
	case string:
		return v, nil
	case json.Number:
		return v.String(), nil
	case bool:
		return strconv.FormatBool(v), nil
	default:
		return "", &Error{Kind: KindNotAString, Message: "path resolves to a non-scalar value"}
	}
}

type segment struct {
	key     string
	index   int
	isIndex bool
}

// parsePath splits "choices[0].message.content" into key and index
// segments. Bare indexes on the root ("[0].id") are allowed; empty keys
// and malformed brackets are not.
func parsePath(path string) ([]segment, error) {
	var segs []segment

	for _, part := range strings.Split(path, ".") {
		rest := part
		first := true
		for rest != "" {
			br := strings.IndexByte(rest, '[')
			if br == -1 {
				if !first {
					return nil, fmt.Errorf("invalid path segment %q", part)
				}
				segs = append(segs, segment{key: rest})
				break
			}

			if br > 0 {
				if !first {
					return nil, fmt.Errorf("invalid path segment %q", part)
				}
				segs = append(segs, segment{key: rest[:br]})
			} else if first && br == 0 {
				// bare index segment like "[0]"
			}

			end := strings.IndexByte(rest[br:], ']')
			if end == -1 {
				return nil, fmt.Errorf("unclosed bracket in path segment %q", part)
			}
			idxText := rest[br+1 : br+end]
			idx, err := strconv.Atoi(idxText)
			if err != nil || idx < 0 {
				return nil, fmt.Errorf("invalid array index %q in path segment %q", idxText, part)
			}
			segs = append(segs, segment{index: idx, isIndex: true})

			rest = rest[br+end+1:]
			first = false
			if rest != "" && rest[0] != '[' {
				return nil, fmt.Errorf("invalid path segment %q", part)
			}
		}
		if part == "" {
			return nil, fmt.Errorf("empty segment in path %q", path)
		}
	}

	if len(segs) == 0 {
		return nil, fmt.Errorf("empty path")
	}
	return segs, nil
}
