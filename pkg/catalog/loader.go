package catalog

import (
	_ "embed"
	"fmt"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed sample.yaml
var sampleRawData []byte

var sample struct {
	once sync.Once
	cat  *Catalog
	err  error
}

// Sample returns the built-in fallback catalog served when the real dataset
// cannot be loaded. The embedded YAML is parsed on first access.
func Sample() (*Catalog, error) {
	sample.once.Do(loadSample)
	if sample.err != nil {
		return nil, sample.err
	}
	return sample.cat, nil
}

// loadSample parses the embedded YAML sample data.
func loadSample() {
	var doc Document
	if err := yaml.Unmarshal(sampleRawData, &doc); err != nil {
		sample.err = fmt.Errorf("catalog: parse sample yaml: %w", err)
		return
	}
	sample.cat = FromDocument(doc)
}
