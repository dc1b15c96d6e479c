package templates

import (
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/haryshwa05/pharmasynapse/internal/models"
)

// LoadTemplateFromFile reads a YAML pipeline template from disk.
func LoadTemplateFromFile(path string) (*Template, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open template %s: %w", path, err)
	}
	defer f.Close()
	tpl, err := decodeTemplate(f)
	if err != nil {
		return nil, fmt.Errorf("decode template %s: %w", path, err)
	}
	return tpl, nil
}

// LoadTemplate parses a pipeline template from the provided reader.
func LoadTemplate(r io.Reader) (*Template, error) {
	tpl, err := decodeTemplate(r)
	if err != nil {
		return nil, fmt.Errorf("decode template: %w", err)
	}
	return tpl, nil
}

func decodeTemplate(r io.Reader) (*Template, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	var tpl Template
	if err := dec.Decode(&tpl); err != nil {
		return nil, err
	}
	if tpl.Category == "" && !tpl.Abstract {
		tpl.Category = models.Category(tpl.Name)
	}
	canonicalizeStages(&tpl)
	return &tpl, nil
}

// canonicalizeStages rewrites stage aliases such as "trials" or "ip" to
// their canonical IDs. Unknown IDs are left for validation to report.
func canonicalizeStages(tpl *Template) {
	canonical := func(id string) string {
		if s, err := models.ParseStageID(id); err == nil {
			return string(s)
		}
		return id
	}
	for i := range tpl.Stages {
		tpl.Stages[i].ID = canonical(tpl.Stages[i].ID)
		for j, dep := range tpl.Stages[i].DependsOn {
			tpl.Stages[i].DependsOn[j] = canonical(dep)
		}
	}
}
