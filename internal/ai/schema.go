package ai

import (
	"encoding/json"
	"fmt"

	"github.com/loanserve/backend/internal/core"
)

// FieldValue is one extracted value plus the model's confidence in it.
type FieldValue struct {
	Value      any     `json:"value"`
	Confidence float64 `json:"confidence"`
}

// FieldEvidence ties an extracted value to its source text.
type FieldEvidence struct {
	DocID       string     `json:"docId"`
	Page        int        `json:"page"`
	TextHash    string     `json:"textHash"`
	Snippet     string     `json:"snippet,omitempty"`
	BoundingBox []float64  `json:"boundingBox,omitempty"`
}

// Response is the validated shape of an extraction reply.
type Response struct {
	DocType       core.DocType             `json:"docType"`
	PromptVersion string                   `json:"promptVersion"`
	Data          map[string]FieldValue    `json:"data"`
	Evidence      map[string]FieldEvidence `json:"evidence"`
}

var topLevelKeys = map[string]bool{
	"docType":       true,
	"promptVersion": true,
	"data":          true,
	"evidence":      true,
}

var valueKeys = map[string]bool{
	"value":      true,
	"confidence": true,
}

var evidenceKeys = map[string]bool{
	"docId":       true,
	"page":        true,
	"textHash":    true,
	"snippet":     true,
	"boundingBox": true,
}

// ParseResponse decodes and strictly validates a model reply against the
// prompt pack. Unknown keys anywhere in the object are rejected, as are
// fields outside the pack's field list. Validation failures are permanent:
// retrying the same prompt buys nothing.
func ParseResponse(raw string, pack PromptPack) (*Response, error) {
	var top map[string]json.RawMessage
	if err := json.Unmarshal([]byte(raw), &top); err != nil {
		return nil, fmt.Errorf("response is not a JSON object: %w", err)
	}
	for k := range top {
		if !topLevelKeys[k] {
			return nil, fmt.Errorf("unknown response key %q", k)
		}
	}
	for _, required := range []string{"docType", "promptVersion", "data"} {
		if _, ok := top[required]; !ok {
			return nil, fmt.Errorf("response missing %q", required)
		}
	}

	var resp Response
	if err := json.Unmarshal([]byte(raw), &resp); err != nil {
		return nil, fmt.Errorf("malformed response: %w", err)
	}
	if resp.DocType != pack.DocType {
		return nil, fmt.Errorf("docType %q does not match expected %q", resp.DocType, pack.DocType)
	}

	allowed := make(map[string]bool, len(pack.Fields))
	for _, f := range pack.Fields {
		allowed[f] = true
	}

	var dataRaw map[string]map[string]json.RawMessage
	if err := json.Unmarshal(top["data"], &dataRaw); err != nil {
		return nil, fmt.Errorf("data is not an object of objects: %w", err)
	}
	for field, obj := range dataRaw {
		if !allowed[field] {
			return nil, fmt.Errorf("field %q is not in the %s schema", field, pack.DocType)
		}
		for k := range obj {
			if !valueKeys[k] {
				return nil, fmt.Errorf("field %q has unknown key %q", field, k)
			}
		}
		if _, ok := obj["value"]; !ok {
			return nil, fmt.Errorf("field %q missing value", field)
		}
	}

	if evRaw, ok := top["evidence"]; ok {
		var evMap map[string]map[string]json.RawMessage
		if err := json.Unmarshal(evRaw, &evMap); err != nil {
			return nil, fmt.Errorf("evidence is not an object of objects: %w", err)
		}
		for field, obj := range evMap {
			if !allowed[field] {
				return nil, fmt.Errorf("evidence field %q is not in the %s schema", field, pack.DocType)
			}
			for k := range obj {
				if !evidenceKeys[k] {
					return nil, fmt.Errorf("evidence for %q has unknown key %q", field, k)
				}
			}
		}
	}

	// Confidence outside [0,1] is a model artifact, not a reason to reject.
	for field, fv := range resp.Data {
		if fv.Confidence < 0 {
			fv.Confidence = 0
		}
		if fv.Confidence > 1 {
			fv.Confidence = 1
		}
		resp.Data[field] = fv
	}

	return &resp, nil
}
