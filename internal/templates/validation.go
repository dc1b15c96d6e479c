package templates

import (
	"fmt"
	"sort"
	"strings"

	"github.com/haryshwa05/pharmasynapse/internal/models"
	"github.com/haryshwa05/pharmasynapse/internal/validation"
)

// ValidationIssue captures a single validation failure with a stable code for metrics.
type ValidationIssue struct {
	Code    string
	Message string
}

// ValidationError aggregates template validation failures.
type ValidationError struct {
	Issues []ValidationIssue
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if len(e.Issues) == 0 {
		return "template validation failed"
	}
	if len(e.Issues) == 1 {
		return e.Issues[0].Message
	}
	return fmt.Sprintf("%d validation errors: %s", len(e.Issues), strings.Join(e.Messages(), "; "))
}

// HasIssues reports whether any validation problems were captured.
func (e *ValidationError) HasIssues() bool {
	return e != nil && len(e.Issues) > 0
}

// Messages returns just the human-readable text for each issue.
func (e *ValidationError) Messages() []string {
	if e == nil {
		return nil
	}
	msgs := make([]string, len(e.Issues))
	for i, issue := range e.Issues {
		msgs[i] = issue.Message
	}
	return msgs
}

// ValidateTemplate performs structural checks and returns a ValidationError
// when problems exist. Templates that still carry extends are checked
// loosely; Finalize re-validates them after inheritance is resolved.
func ValidateTemplate(tpl *Template) error {
	if tpl == nil {
		return &ValidationError{Issues: []ValidationIssue{{Code: "template_nil", Message: "template is nil"}}}
	}

	var issues []ValidationIssue
	add := func(code, format string, args ...any) {
		issues = append(issues, ValidationIssue{Code: code, Message: fmt.Sprintf(format, args...)})
	}

	if strings.TrimSpace(tpl.Name) == "" {
		add("template_name_missing", "template name is required")
	}
	hasExtends := len(tpl.Extends) > 0
	if len(tpl.Stages) == 0 && !hasExtends && !tpl.Abstract {
		add("template_stages_empty", "at least one stage is required")
	}
	if !tpl.Abstract && !tpl.Category.Known() {
		add("category_unknown", "unknown category '%s'", tpl.Category)
	}
	if tpl.Defaults.StageTimeout < 0 {
		add("defaults_timeout_negative", "defaults.stage_timeout cannot be negative")
	}

	stages := make(map[string]*TemplateStage, len(tpl.Stages))
	for i := range tpl.Stages {
		stage := &tpl.Stages[i]
		if strings.TrimSpace(stage.ID) == "" {
			add("stage_id_missing", "stage at index %d is missing an id", i)
			continue
		}
		if _, err := models.ParseStageID(stage.ID); err != nil {
			add("stage_unknown", "unknown stage '%s'", stage.ID)
			continue
		}
		if _, exists := stages[stage.ID]; exists {
			add("stage_id_duplicate", "duplicate stage id '%s'", stage.ID)
			continue
		}
		stages[stage.ID] = stage
	}

	nodes := make([]validation.Node, 0, len(stages))
	for _, stage := range stages {
		if stage.Timeout < 0 {
			add("timeout_negative", "timeout cannot be negative at stage '%s'", stage.ID)
		}
		for _, dep := range stage.DependsOn {
			if dep == stage.ID {
				add("dependency_self", "stage '%s' cannot depend on itself", stage.ID)
				continue
			}
			depID, err := models.ParseStageID(dep)
			if err != nil {
				add("dependency_unknown", "stage '%s' depends on unknown stage '%s'", stage.ID, dep)
				continue
			}
			if depID.IsSynthesis() {
				add("synthesis_not_terminal", "stage '%s' cannot depend on synthesis", stage.ID)
			}
			if !hasExtends {
				if _, ok := stages[dep]; !ok {
					add("dependency_missing", "stage '%s' depends on '%s' which is not in the template", stage.ID, dep)
				}
			}
		}
		nodes = append(nodes, validation.Node{ID: stage.ID, DependsOn: stage.DependsOn})
	}

	if !hasExtends {
		if err := validation.ValidateDependencies(nodes); err != nil {
			add("graph_cycle", "%v", err)
		}
	}

	if len(issues) > 0 {
		sort.Slice(issues, func(i, j int) bool {
			if issues[i].Code == issues[j].Code {
				return issues[i].Message < issues[j].Message
			}
			return issues[i].Code < issues[j].Code
		})
		return &ValidationError{Issues: issues}
	}
	return nil
}
