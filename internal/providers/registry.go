package providers

import (
	"fmt"

	"github.com/haryshwa05/pharmasynapse/internal/models"
)

// Registry maps stages to providers. It is built once at start-up and is
// read-only afterwards.
type Registry struct {
	providers map[models.StageID]Provider
}

// NewRegistry registers ps. Each data stage may have at most one provider.
func NewRegistry(ps ...Provider) (*Registry, error) {
	r := &Registry{providers: make(map[models.StageID]Provider, len(ps))}
	for _, p := range ps {
		stage := p.Stage()
		if !stage.Valid() || stage.IsSynthesis() {
			return nil, fmt.Errorf("provider registered for invalid stage %q", stage)
		}
		if p.Kind() != stage.Kind() {
			return nil, fmt.Errorf("provider kind %q does not serve stage %q", p.Kind(), stage)
		}
		if _, dup := r.providers[stage]; dup {
			return nil, fmt.Errorf("duplicate provider for stage %q", stage)
		}
		r.providers[stage] = p
	}
	return r, nil
}

// Get returns the provider for stage.
func (r *Registry) Get(stage models.StageID) (Provider, bool) {
	if r == nil {
		return nil, false
	}
	p, ok := r.providers[stage]
	return p, ok
}

// Stages lists registered stages in canonical order.
func (r *Registry) Stages() []models.StageID {
	var out []models.StageID
	for _, s := range models.DataStages() {
		if _, ok := r.Get(s); ok {
			out = append(out, s)
		}
	}
	return out
}

// Len returns the number of registered providers.
func (r *Registry) Len() int {
	if r == nil {
		return 0
	}
	return len(r.providers)
}
