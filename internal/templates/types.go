package templates

import (
	"time"

	"github.com/haryshwa05/pharmasynapse/internal/models"
)

// Template describes the pipeline run for one intent category.
type Template struct {
	Name        string           `yaml:"name"`
	Description string           `yaml:"description"`
	Version     string           `yaml:"version"`
	Category    models.Category  `yaml:"category"`
	Abstract    bool             `yaml:"abstract"`
	Extends     []string         `yaml:"extends"`
	Defaults    TemplateDefaults `yaml:"defaults"`
	Stages      []TemplateStage  `yaml:"stages"`
	Metadata    map[string]any   `yaml:"metadata"`
}

// TemplateDefaults apply to every stage that does not override them.
type TemplateDefaults struct {
	StageTimeout time.Duration `yaml:"stage_timeout"`
}

// TemplateStage is one stage of a pipeline template.
type TemplateStage struct {
	ID        string         `yaml:"id"`
	DependsOn []string       `yaml:"depends_on"`
	Timeout   time.Duration  `yaml:"timeout"`
	Metadata  map[string]any `yaml:"metadata"`
}

// StageByID returns a pointer to the stage with the supplied ID, if present.
func (t *Template) StageByID(id string) *TemplateStage {
	for i := range t.Stages {
		if t.Stages[i].ID == id {
			return &t.Stages[i]
		}
	}
	return nil
}

// StageIDs returns the template's stages as canonical IDs, in declared
// order. Unknown IDs are skipped; validation rejects them at load time.
func (t *Template) StageIDs() []models.StageID {
	out := make([]models.StageID, 0, len(t.Stages))
	for _, s := range t.Stages {
		id, err := models.ParseStageID(s.ID)
		if err != nil {
			continue
		}
		out = append(out, id)
	}
	return out
}
