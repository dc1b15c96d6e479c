package validation

import (
	"errors"
	"reflect"
	"testing"
)

func TestLayer_NoCycle(t *testing.T) {
	nodes := []Node{
		{ID: "a", DependsOn: []string{}},
		{ID: "b", DependsOn: []string{"a"}},
		{ID: "c", DependsOn: []string{"b"}},
	}

	result := Layer(nodes, nil)

	if result.HasCycle {
		t.Errorf("Expected no cycle, but cycle detected: %v", result.CyclePath)
	}
	want := [][]string{{"a"}, {"b"}, {"c"}}
	if !reflect.DeepEqual(result.Layers, want) {
		t.Errorf("Expected layers %v, got %v", want, result.Layers)
	}
}

func TestLayer_SimpleCycle(t *testing.T) {
	nodes := []Node{
		{ID: "a", DependsOn: []string{"c"}},
		{ID: "b", DependsOn: []string{"a"}},
		{ID: "c", DependsOn: []string{"b"}},
	}

	result := Layer(nodes, nil)

	if !result.HasCycle {
		t.Fatal("Expected cycle to be detected")
	}
	if len(result.CyclePath) == 0 {
		t.Error("Expected cycle path to be populated")
	}
	if result.ErrorMessage == "" {
		t.Error("Expected error message to be set")
	}
	if len(result.Layers) != 0 {
		t.Errorf("Expected no layers for a cyclic graph, got %v", result.Layers)
	}
}

func TestLayer_SelfDependencyIgnored(t *testing.T) {
	nodes := []Node{
		{ID: "a", DependsOn: []string{"a"}},
	}

	result := Layer(nodes, nil)

	if result.HasCycle {
		t.Error("Self-dependencies should be ignored")
	}
}

func TestLayer_Diamond(t *testing.T) {
	nodes := []Node{
		{ID: "a"},
		{ID: "b", DependsOn: []string{"a"}},
		{ID: "c", DependsOn: []string{"a"}},
		{ID: "d", DependsOn: []string{"b", "c"}},
	}

	result := Layer(nodes, nil)

	if result.HasCycle {
		t.Fatalf("Diamond dependency should not create cycle: %s", result.ErrorMessage)
	}
	want := [][]string{{"a"}, {"b", "c"}, {"d"}}
	if !reflect.DeepEqual(result.Layers, want) {
		t.Errorf("Expected layers %v, got %v", want, result.Layers)
	}
	if got := result.Order(); !reflect.DeepEqual(got, []string{"a", "b", "c", "d"}) {
		t.Errorf("Unexpected order %v", got)
	}
}

func TestLayer_RankOrdersWithinLayer(t *testing.T) {
	rank := map[string]int{"patent": 0, "market": 1, "trials": 2}
	nodes := []Node{
		{ID: "trials"},
		{ID: "market"},
		{ID: "patent"},
		{ID: "synthesis", DependsOn: []string{"trials", "market", "patent"}},
	}

	result := Layer(nodes, func(id string) int { return rank[id] })

	want := [][]string{{"patent", "market", "trials"}, {"synthesis"}}
	if !reflect.DeepEqual(result.Layers, want) {
		t.Errorf("Expected layers %v, got %v", want, result.Layers)
	}
}

func TestLayer_Deterministic(t *testing.T) {
	nodes := []Node{
		{ID: "e"}, {ID: "d"}, {ID: "c"}, {ID: "b"}, {ID: "a"},
		{ID: "z", DependsOn: []string{"a", "b", "c", "d", "e"}},
	}

	first := Layer(nodes, nil)
	for i := 0; i < 20; i++ {
		if got := Layer(nodes, nil); !reflect.DeepEqual(got, first) {
			t.Fatalf("Run %d produced %v, first run produced %v", i, got.Layers, first.Layers)
		}
	}
}

func TestLayer_TwoCycle(t *testing.T) {
	nodes := []Node{
		{ID: "a", DependsOn: []string{"b"}},
		{ID: "b", DependsOn: []string{"a"}},
	}

	result := Layer(nodes, nil)

	if !result.HasCycle {
		t.Error("Expected two-node cycle to be detected")
	}
}

func TestLayer_Empty(t *testing.T) {
	result := Layer(nil, nil)

	if result.HasCycle {
		t.Error("Empty graph should not have cycles")
	}
	if len(result.Layers) != 0 {
		t.Errorf("Expected empty layers, got %v", result.Layers)
	}
}

func TestLayer_UnknownDependencyIgnored(t *testing.T) {
	nodes := []Node{
		{ID: "synthesis", DependsOn: []string{"market", "patent"}},
		{ID: "market"},
	}

	result := Layer(nodes, nil)

	if result.HasCycle {
		t.Error("Unknown dependencies should be ignored, not treated as cycles")
	}
	want := [][]string{{"market"}, {"synthesis"}}
	if !reflect.DeepEqual(result.Layers, want) {
		t.Errorf("Expected layers %v, got %v", want, result.Layers)
	}
}

func TestValidateDependencies(t *testing.T) {
	valid := []Node{
		{ID: "a"},
		{ID: "b", DependsOn: []string{"a"}},
	}
	if err := ValidateDependencies(valid); err != nil {
		t.Errorf("Expected valid graph, got error: %v", err)
	}

	cyclic := []Node{
		{ID: "a", DependsOn: []string{"b"}},
		{ID: "b", DependsOn: []string{"a"}},
	}
	err := ValidateDependencies(cyclic)
	if err == nil {
		t.Fatal("Expected error for cyclic graph")
	}
	if !errors.Is(err, ErrCyclicDependency) {
		t.Errorf("Expected ErrCyclicDependency, got %v", err)
	}
}
