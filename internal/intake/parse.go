package intake

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"io"
	"strings"

	"github.com/loanserve/backend/internal/core"
)

// ParseCSV reads the header plus the first data row into a raw key/value
// map with normalized headers.
func ParseCSV(data []byte) (map[string]any, error) {
	r := csv.NewReader(bytes.NewReader(data))
	header, err := r.Read()
	if err != nil {
		return nil, core.Validation(fmt.Errorf("csv header: %w", err))
	}
	row, err := r.Read()
	if err != nil {
		return nil, core.Validation(fmt.Errorf("csv first row: %w", err))
	}

	out := make(map[string]any, len(header))
	for i, h := range header {
		if i >= len(row) {
			break
		}
		key := NormalizeKey(h)
		if key == "" || strings.TrimSpace(row[i]) == "" {
			continue
		}
		out[key] = strings.TrimSpace(row[i])
	}
	return out, nil
}

// ParseJSON accepts an object or an array (first element) and returns the
// normalized key/value map.
func ParseJSON(data []byte) (map[string]any, error) {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, core.Validation(fmt.Errorf("parse json: %w", err))
	}

	if arr, ok := raw.([]any); ok {
		if len(arr) == 0 {
			return nil, core.Validation(fmt.Errorf("json array is empty"))
		}
		raw = arr[0]
	}
	obj, ok := raw.(map[string]any)
	if !ok {
		return nil, core.Validation(fmt.Errorf("json value is not an object"))
	}

	out := make(map[string]any, len(obj))
	for k, v := range obj {
		key := NormalizeKey(k)
		if key == "" || v == nil {
			continue
		}
		out[key] = v
	}
	return out, nil
}

// ParseMISMO walks a MISMO XML document and extracts the fixed canonical
// tag list. First occurrence wins per tag.
func ParseMISMO(data []byte) (map[string]any, error) {
	dec := xml.NewDecoder(bytes.NewReader(data))
	out := make(map[string]any)

	var current string
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, core.Validation(fmt.Errorf("parse mismo xml: %w", err))
		}
		switch t := tok.(type) {
		case xml.StartElement:
			current = t.Name.Local
		case xml.CharData:
			canonical, ok := mismoTags[current]
			if !ok {
				continue
			}
			text := strings.TrimSpace(string(t))
			if text == "" {
				continue
			}
			if _, exists := out[canonical]; !exists {
				out[canonical] = text
			}
		case xml.EndElement:
			current = ""
		}
	}

	if len(out) == 0 {
		return nil, core.Validation(fmt.Errorf("mismo document contained no recognized tags"))
	}
	return out, nil
}
