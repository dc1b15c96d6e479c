package models

// StageGroup is a set of mutually independent stages that may run
// concurrently.
type StageGroup struct {
	Stages []StageID `json:"stages"`
}

// Contains reports whether the group includes s.
func (g StageGroup) Contains(s StageID) bool {
	for _, id := range g.Stages {
		if id == s {
			return true
		}
	}
	return false
}

// ExecutionPlan is an ordered sequence of stage groups. Group N+1 starts
// only after every stage of group N has finished or timed out.
type ExecutionPlan struct {
	Category Category     `json:"category"`
	Groups   []StageGroup `json:"groups"`
}

// Stages flattens the plan in execution order.
func (p ExecutionPlan) Stages() []StageID {
	var out []StageID
	for _, g := range p.Groups {
		out = append(out, g.Stages...)
	}
	return out
}

// DataStages lists every planned stage except synthesis.
func (p ExecutionPlan) DataStages() []StageID {
	var out []StageID
	for _, id := range p.Stages() {
		if !id.IsSynthesis() {
			out = append(out, id)
		}
	}
	return out
}

// GroupOf returns the index of the group containing s, or -1.
func (p ExecutionPlan) GroupOf(s StageID) int {
	for i, g := range p.Groups {
		if g.Contains(s) {
			return i
		}
	}
	return -1
}
