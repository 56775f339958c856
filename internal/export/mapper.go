// Package export renders canonical loan datapoints into investor delivery
// formats (Fannie/Freddie XML, custom CSV) driven by YAML mapper configs.
// Every emitted field carries a lineage comment tying it back to the source
// document.
package export

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	yaml "gopkg.in/yaml.v2"
)

// Template is one mapper definition loaded from YAML.
type Template struct {
	Name     string
	Format   string                       `yaml:"format"` // xml or csv
	Root     string                       `yaml:"root"`   // XML root element
	Required []string                     `yaml:"required"`
	Sections map[string]map[string]string `yaml:"sections"` // section -> canonicalKey -> element path
	CSV      CSVSpec                      `yaml:"csv"`
}

// CSVSpec declares the custom CSV layout. Row order equals header order.
type CSVSpec struct {
	Header  []string          `yaml:"header"`
	Mapping map[string]string `yaml:"mapping"` // header column -> canonicalKey
}

// Mapper loads and caches template definitions from a config directory.
type Mapper struct {
	dir     string
	version string
}

func NewMapper(dir, version string) *Mapper {
	return &Mapper{dir: dir, version: version}
}

func (m *Mapper) Version() string { return m.version }

// Load reads <dir>/<template>.yaml and validates its shape.
func (m *Mapper) Load(template string) (*Template, error) {
	path := filepath.Join(m.dir, template+".yaml")
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load mapper %s: %w", template, err)
	}

	var t Template
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("parse mapper %s: %w", template, err)
	}
	t.Name = template

	switch t.Format {
	case "xml":
		if t.Root == "" {
			return nil, fmt.Errorf("mapper %s: xml format requires a root element", template)
		}
		if len(t.Sections) == 0 {
			return nil, fmt.Errorf("mapper %s: xml format requires sections", template)
		}
	case "csv":
		if len(t.CSV.Header) == 0 {
			return nil, fmt.Errorf("mapper %s: csv format requires a header", template)
		}
	default:
		return nil, fmt.Errorf("mapper %s: unknown format %q", template, t.Format)
	}
	return &t, nil
}

// SectionNames returns the sections in stable order.
func (t *Template) SectionNames() []string {
	names := make([]string, 0, len(t.Sections))
	for name := range t.Sections {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// SectionKeys returns one section's canonical keys in stable order.
func (t *Template) SectionKeys(section string) []string {
	keys := make([]string, 0, len(t.Sections[section]))
	for k := range t.Sections[section] {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
