// Package planner turns a resolved intent into grouped execution stages.
package planner

import (
	"errors"
	"fmt"
	"strings"

	"github.com/haryshwa05/pharmasynapse/internal/models"
	"github.com/haryshwa05/pharmasynapse/internal/validation"
)

// ErrCyclicRules is returned when the dependency rules for a category
// cannot be layered.
var ErrCyclicRules = errors.New("stage dependency rules contain a cycle")

// DependencyRules supplies the declared stage dependencies per category.
// The template registry satisfies it.
type DependencyRules interface {
	Dependencies(c models.Category) map[models.StageID][]models.StageID
}

// Planner maps intents to execution plans. It holds no mutable state.
type Planner struct {
	rules DependencyRules
}

// New returns a planner using rules. A nil rules value treats every data
// stage as independent.
func New(rules DependencyRules) *Planner {
	return &Planner{rules: rules}
}

// Plan groups the intent's required stages. Data stages are layered by
// their declared dependencies, each layer in canonical stage order.
// Synthesis always runs alone in the final group, even when the intent
// does not list it.
func (p *Planner) Plan(intent models.QueryIntent) (models.ExecutionPlan, error) {
	var deps map[models.StageID][]models.StageID
	if p != nil && p.rules != nil {
		deps = p.rules.Dependencies(intent.Category())
	}

	var nodes []validation.Node
	for _, id := range intent.RequiredStages() {
		if id.IsSynthesis() {
			continue
		}
		node := validation.Node{ID: string(id)}
		for _, dep := range deps[id] {
			if !dep.IsSynthesis() {
				node.DependsOn = append(node.DependsOn, string(dep))
			}
		}
		nodes = append(nodes, node)
	}

	result := validation.Layer(nodes, func(id string) int { return models.StageID(id).Rank() })
	if result.HasCycle {
		return models.ExecutionPlan{}, fmt.Errorf("%w: %s: %s", ErrCyclicRules, intent.Category(), strings.Join(result.CyclePath, " -> "))
	}

	plan := models.ExecutionPlan{Category: intent.Category()}
	for _, layer := range result.Layers {
		group := models.StageGroup{Stages: make([]models.StageID, len(layer))}
		for i, id := range layer {
			group.Stages[i] = models.StageID(id)
		}
		plan.Groups = append(plan.Groups, group)
	}
	plan.Groups = append(plan.Groups, models.StageGroup{Stages: []models.StageID{models.StageSynthesis}})
	return plan, nil
}

// Validate checks that every category's rules can be layered.
func (p *Planner) Validate() error {
	if p == nil || p.rules == nil {
		return nil
	}
	for _, c := range models.Categories() {
		deps := p.rules.Dependencies(c)
		nodes := make([]validation.Node, 0, len(deps))
		for id, ds := range deps {
			n := validation.Node{ID: string(id)}
			for _, d := range ds {
				n.DependsOn = append(n.DependsOn, string(d))
			}
			nodes = append(nodes, n)
		}
		if err := validation.ValidateDependencies(nodes); err != nil {
			return fmt.Errorf("%w: %s: %v", ErrCyclicRules, c, err)
		}
	}
	return nil
}
