package yamaha

import (
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

//go:embed names.yaml
var defaultNamesYAML []byte

// DisplayNames maps input IDs to friendly labels.
type DisplayNames map[string]string

// LoadDisplayNames returns the built-in labels, overlaid with the YAML map at
// path when path is not empty.
func LoadDisplayNames(path string) (DisplayNames, error) {
	names := DisplayNames{}
	if err := yaml.Unmarshal(defaultNamesYAML, &names); err != nil {
		return nil, fmt.Errorf("parse built-in source names: %w", err)
	}
	if path == "" {
		return names, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read source names: %w", err)
	}
	overrides := DisplayNames{}
	if err := yaml.Unmarshal(data, &overrides); err != nil {
		return nil, fmt.Errorf("parse source names %s: %w", path, err)
	}
	for id, label := range overrides {
		names[id] = label
	}
	return names, nil
}

// Label returns the friendly name for id, falling back to id itself.
func (n DisplayNames) Label(id string) string {
	if label, ok := n[id]; ok && label != "" {
		return label
	}
	return id
}
