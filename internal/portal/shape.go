package portal

import (
	"fmt"
	"sync"

	"github.com/tidwall/gjson"
)

// Endpoint keys used by the shape validator and the fetcher.
const (
	endpointAPIKeys       = "portals/self/apiKeys"
	endpointSearch        = "search"
	endpointItem          = "content/items"
	endpointRegisteredApp = "registeredAppInfo"
)

// shapeExpectation names the fields a first response from an endpoint is
// expected to carry, optionally inside a nested element such as the first
// entry of a results array.
type shapeExpectation struct {
	elementPath string
	fields      []string
}

var shapeExpectations = map[string]shapeExpectation{
	endpointAPIKeys: {
		elementPath: "apiKeys.0",
		fields:      []string{"id", "created", "apiToken1ExpirationDate", "apiToken2ExpirationDate"},
	},
	endpointSearch: {
		elementPath: "results.0",
		fields:      []string{"id", "title", "type", "typeKeywords", "created"},
	},
	endpointItem: {
		fields: []string{"id", "owner", "title", "created"},
	},
	endpointRegisteredApp: {
		fields: []string{"itemId", "client_id", "privileges"},
	},
}

// shapeValidator audits the first response seen per endpoint against the
// expectation table. Observed gaps become advisory warnings, never errors;
// downstream consumers still receive credentials when validation warns.
// Repeat pages are not re-validated since shape does not change
// mid-pagination. Observe runs from concurrent search and enrichment
// goroutines, so the validator guards its own state.
type shapeValidator struct {
	mu       sync.Mutex
	seen     map[string]bool
	warnings []string
}

func newShapeValidator() *shapeValidator {
	return &shapeValidator{seen: make(map[string]bool)}
}

// Observe records structural warnings for the first response per endpoint
// key. Responses with no matching element (for example empty results) are
// skipped silently.
func (v *shapeValidator) Observe(endpointKey string, body gjson.Result) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.seen[endpointKey] {
		return
	}
	v.seen[endpointKey] = true

	exp, ok := shapeExpectations[endpointKey]
	if !ok {
		return
	}
	target := body
	if exp.elementPath != "" {
		target = body.Get(exp.elementPath)
		if !target.Exists() {
			return
		}
	}
	if !target.IsObject() {
		return
	}
	for _, field := range exp.fields {
		if !target.Get(field).Exists() {
			v.warnings = append(v.warnings, fmt.Sprintf("endpoint %s: response is missing expected field %q", endpointKey, field))
		}
	}
}

// Warnings returns a copy of the accumulated warning strings.
func (v *shapeValidator) Warnings() []string {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := make([]string, len(v.warnings))
	copy(out, v.warnings)
	return out
}
