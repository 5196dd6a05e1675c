package docload

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/enactproject/enact/pkg/document"
)

// LoadYAML decodes a single YAML document into the document tree.
func LoadYAML(path string) (document.Value, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return document.Value{}, fmt.Errorf("read document: %w", err)
	}

	var decoded interface{}
	if err := yaml.Unmarshal(data, &decoded); err != nil {
		return document.Value{}, fmt.Errorf("yaml document %s: %w", path, err)
	}

	doc, err := document.FromGo(decoded)
	if err != nil {
		return document.Value{}, fmt.Errorf("yaml document %s: %w", path, err)
	}
	return doc, nil
}
