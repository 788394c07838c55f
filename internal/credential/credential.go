// Package credential applies the configured api-key placement strategy to
// an outbound request.
package credential

import (
	"encoding/json"
	"fmt"
	"net/http"

	"bias-eval-service/internal/entity"
)

// Default field names for the placements that take one.
const (
	DefaultHeaderName = "x-api-key"
	DefaultQueryName  = "key"
	DefaultBodyField  = "api_key"
)

// Validate checks the placement config at submission time. Placements other
// than none require a key; the field name is always optional.
func Validate(placement entity.APIKeyPlacement, apiKey string) error {
	if !placement.Valid() {
		return fmt.Errorf("unknown api key placement %q", placement)
	}
	if placement.RequiresKey() && apiKey == "" {
		return fmt.Errorf("api key is required for placement %q", placement)
	}
	return nil
}

// Apply injects the api key into the request per the placement strategy and
// returns the (possibly rewritten) body. The request URL may be mutated for
// query_param; headers for auth_header/x_api_key; the body for body_field.
func Apply(req *http.Request, body []byte, placement entity.APIKeyPlacement, apiKey, fieldName string) ([]byte, error) {
	switch placement {
	case entity.PlacementNone, "":
		return body, nil

	case entity.PlacementAuthHeader:
		req.Header.Set("Authorization", "Bearer "+apiKey)
		return body, nil

	case entity.PlacementXAPIKey:
		name := fieldName
		if name == "" {
			name = DefaultHeaderName
		}
		req.Header.Set(name, apiKey)
		return body, nil

	case entity.PlacementQueryParam:
		name := fieldName
		if name == "" {
			name = DefaultQueryName
		}
		q := req.URL.Query()
		q.Set(name, apiKey)
		req.URL.RawQuery = q.Encode()
		return body, nil

	case entity.PlacementBodyField:
		name := fieldName
		if name == "" {
			name = DefaultBodyField
		}
		var doc map[string]any
		if err := json.Unmarshal(body, &doc); err != nil {
			return nil, fmt.Errorf("body_field placement needs a JSON object body: %w", err)
		}
		doc[name] = apiKey
		out, err := json.Marshal(doc)
		if err != nil {
			return nil, err
		}
		return out, nil

	default:
		return nil, fmt.Errorf("unknown api key placement %q", placement)
	}
}
