package templates

import (
	"bytes"
	"crypto/sha256"
	"embed"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/haryshwa05/pharmasynapse/internal/metrics"
	"github.com/haryshwa05/pharmasynapse/internal/models"
)

//go:embed builtin/*.yaml
var builtinFS embed.FS

// catchAllStages is used when no template, not even the general one, is
// registered for a category.
var catchAllStages = []models.StageID{models.StageWebResearch, models.StageSynthesis}

// Registry maintains an in-memory catalogue of pipeline templates.
type Registry struct {
	mu         sync.RWMutex
	templates  map[string]Entry
	byCategory map[models.Category]string
}

// Entry captures a loaded template alongside bookkeeping data.
type Entry struct {
	Key         string
	Template    *Template
	SourcePath  string
	ContentHash string
	LoadedAt    time.Time
}

// TemplateSummary exposes lightweight information about a registered template.
type TemplateSummary struct {
	Name        string           `json:"name"`
	Version     string           `json:"version,omitempty"`
	Key         string           `json:"key"`
	Category    models.Category  `json:"category,omitempty"`
	Description string           `json:"description,omitempty"`
	Stages      []models.StageID `json:"stages"`
	Abstract    bool             `json:"abstract,omitempty"`
	ContentHash string           `json:"contentHash"`
	SourcePath  string           `json:"sourcePath"`
}

// NewRegistry constructs an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		templates:  make(map[string]Entry),
		byCategory: make(map[models.Category]string),
	}
}

// NewDefaultRegistry loads the built-in templates plus any YAML files under
// dir (which may be empty), then finalizes the registry.
func NewDefaultRegistry(dir string) (*Registry, error) {
	reg := NewRegistry()
	if err := reg.LoadBuiltin(); err != nil {
		return nil, err
	}
	if dir != "" {
		if err := reg.LoadDirectory(dir); err != nil {
			return nil, err
		}
	}
	if err := reg.Finalize(); err != nil {
		return nil, err
	}
	return reg, nil
}

// LoadBuiltin loads the templates compiled into the binary.
func (r *Registry) LoadBuiltin() error {
	sub, err := fs.Sub(builtinFS, "builtin")
	if err != nil {
		return fmt.Errorf("open builtin templates: %w", err)
	}
	return r.LoadFS(sub, "builtin")
}

// LoadDirectory loads every YAML template under the provided directory.
func (r *Registry) LoadDirectory(root string) error {
	info, err := os.Stat(root)
	if err != nil {
		return fmt.Errorf("stat template directory %s: %w", root, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("template path %s is not a directory", root)
	}
	return r.LoadFS(os.DirFS(root), root)
}

// LoadFS loads every YAML template in fsys. label prefixes source paths.
func (r *Registry) LoadFS(fsys fs.FS, label string) error {
	var failures []string
	walkFn := func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			failures = append(failures, fmt.Sprintf("%s: %v", p, walkErr))
			return nil
		}
		if d.IsDir() || !isYAML(p) {
			return nil
		}
		data, err := fs.ReadFile(fsys, p)
		if err != nil {
			failures = append(failures, fmt.Sprintf("%s: read file: %v", p, err))
			return nil
		}
		if err := r.load(data, path.Join(label, p)); err != nil {
			failures = append(failures, fmt.Sprintf("%s: %v", p, err))
		}
		return nil
	}

	if err := fs.WalkDir(fsys, ".", walkFn); err != nil {
		return fmt.Errorf("walk templates %s: %w", label, err)
	}
	if len(failures) > 0 {
		return &LoadError{Failures: failures}
	}
	return nil
}

func (r *Registry) load(data []byte, source string) error {
	tpl, err := LoadTemplate(bytes.NewReader(data))
	if err != nil {
		metrics.TemplateValidationErrors.WithLabelValues("decode").Inc()
		return err
	}

	if len(tpl.Extends) == 0 {
		if err := ValidateTemplate(tpl); err != nil {
			recordValidationError(err)
			return err
		}
	}

	key := MakeKey(tpl.Name, tpl.Version)

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.templates[key]; exists {
		metrics.TemplateValidationErrors.WithLabelValues("duplicate").Inc()
		return fmt.Errorf("duplicate template key '%s'", key)
	}

	hash := sha256.Sum256(data)
	r.templates[key] = Entry{
		Key:         key,
		Template:    tpl,
		SourcePath:  source,
		ContentHash: hex.EncodeToString(hash[:]),
		LoadedAt:    time.Now().UTC(),
	}
	metrics.TemplatesLoaded.WithLabelValues(tpl.Name).Inc()
	return nil
}

func recordValidationError(err error) {
	var vErr *ValidationError
	if errors.As(err, &vErr) {
		for _, issue := range vErr.Issues {
			metrics.TemplateValidationErrors.WithLabelValues(issue.Code).Inc()
		}
		return
	}
	metrics.TemplateValidationErrors.WithLabelValues("validate").Inc()
}

// MakeKey produces the canonical map key for a template name/version pair.
func MakeKey(name, version string) string {
	n := strings.TrimSpace(name)
	v := strings.TrimSpace(version)
	if v == "" {
		return n
	}
	return fmt.Sprintf("%s@%s", n, v)
}

func isYAML(p string) bool {
	ext := strings.ToLower(path.Ext(p))
	return ext == ".yaml" || ext == ".yml"
}

// Get returns the template entry that matches the supplied key.
func (r *Registry) Get(key string) (Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.templates[key]
	return entry, ok
}

// Find locates a template entry by name and optional version. When version
// is empty the highest version is returned.
func (r *Registry) Find(name, version string) (Entry, bool) {
	name = strings.TrimSpace(name)
	version = strings.TrimSpace(version)
	if name == "" {
		return Entry{}, false
	}
	if entry, ok := r.Get(MakeKey(name, version)); ok {
		return entry, true
	}
	if version != "" {
		return Entry{}, false
	}

	summaries := r.List()
	for i := len(summaries) - 1; i >= 0; i-- {
		if summaries[i].Name == name {
			if entry, ok := r.Get(summaries[i].Key); ok {
				return entry, true
			}
		}
	}
	return Entry{}, false
}

// List summaries of all currently loaded templates.
func (r *Registry) List() []TemplateSummary {
	r.mu.RLock()
	defer r.mu.RUnlock()

	summaries := make([]TemplateSummary, 0, len(r.templates))
	for _, entry := range r.templates {
		summaries = append(summaries, TemplateSummary{
			Name:        entry.Template.Name,
			Version:     entry.Template.Version,
			Key:         entry.Key,
			Category:    entry.Template.Category,
			Description: entry.Template.Description,
			Stages:      entry.Template.StageIDs(),
			Abstract:    entry.Template.Abstract,
			ContentHash: entry.ContentHash,
			SourcePath:  entry.SourcePath,
		})
	}
	sortSummaries(summaries)
	return summaries
}

// Pipelines lists the template serving each category, skipping abstract
// templates and shadowed versions.
func (r *Registry) Pipelines() []TemplateSummary {
	r.mu.RLock()
	active := make(map[string]bool, len(r.byCategory))
	for _, key := range r.byCategory {
		active[key] = true
	}
	r.mu.RUnlock()

	var out []TemplateSummary
	for _, s := range r.List() {
		if active[s.Key] {
			s.Stages = withSynthesis(s.Stages)
			out = append(out, s)
		}
	}
	return out
}

func sortSummaries(summaries []TemplateSummary) {
	if len(summaries) < 2 {
		return
	}
	sort.Slice(summaries, func(i, j int) bool {
		if summaries[i].Name == summaries[j].Name {
			return summaries[i].Version < summaries[j].Version
		}
		return summaries[i].Name < summaries[j].Name
	})
}

// ForCategory returns the template serving c. Unknown categories fall back
// to the general template.
func (r *Registry) ForCategory(c models.Category) (*Template, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	key, ok := r.byCategory[c]
	if !ok {
		key, ok = r.byCategory[models.CategoryGeneral]
	}
	if !ok {
		return nil, false
	}
	return cloneTemplate(r.templates[key].Template), true
}

// StagesFor returns the ordered stage list for c, always ending with
// synthesis and never empty.
func (r *Registry) StagesFor(c models.Category) []models.StageID {
	tpl, ok := r.ForCategory(c)
	if !ok {
		return append([]models.StageID(nil), catchAllStages...)
	}
	return withSynthesis(tpl.StageIDs())
}

// StageTimeout returns the template override for stage s in category c, or
// zero when the template does not set one.
func (r *Registry) StageTimeout(c models.Category, s models.StageID) time.Duration {
	tpl, ok := r.ForCategory(c)
	if !ok {
		return 0
	}
	if st := tpl.StageByID(string(s)); st != nil && st.Timeout > 0 {
		return st.Timeout
	}
	return tpl.Defaults.StageTimeout
}

// Dependencies returns the declared dependencies of each stage in the
// template serving c.
func (r *Registry) Dependencies(c models.Category) map[models.StageID][]models.StageID {
	tpl, ok := r.ForCategory(c)
	if !ok {
		return nil
	}
	out := make(map[models.StageID][]models.StageID, len(tpl.Stages))
	for _, st := range tpl.Stages {
		id, err := models.ParseStageID(st.ID)
		if err != nil {
			continue
		}
		for _, dep := range st.DependsOn {
			if depID, err := models.ParseStageID(dep); err == nil {
				out[id] = append(out[id], depID)
			}
		}
	}
	return out
}

func withSynthesis(stages []models.StageID) []models.StageID {
	out := make([]models.StageID, 0, len(stages)+1)
	for _, s := range stages {
		if !s.IsSynthesis() {
			out = append(out, s)
		}
	}
	return append(out, models.StageSynthesis)
}

// Finalize resolves template inheritance, re-validates the registry, and
// indexes templates by category. When several versions serve one category
// the highest key wins.
func (r *Registry) Finalize() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	resolved := make(map[string]*Template)
	visiting := make(map[string]bool)

	keys := make([]string, 0, len(r.templates))
	for key := range r.templates {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	byCategory := make(map[models.Category]string)
	for _, key := range keys {
		tpl, err := r.resolveTemplateLocked(key, resolved, visiting)
		if err != nil {
			return err
		}
		if err := ValidateTemplate(tpl); err != nil {
			recordValidationError(err)
			return fmt.Errorf("template %s validation failed after inheritance: %w", key, err)
		}
		entry := r.templates[key]
		entry.Template = tpl
		entry.Template.Extends = nil
		r.templates[key] = entry
		if !tpl.Abstract {
			byCategory[tpl.Category] = key
		}
	}
	r.byCategory = byCategory
	return nil
}

func (r *Registry) resolveTemplateLocked(key string, cache map[string]*Template, visiting map[string]bool) (*Template, error) {
	if tpl, ok := cache[key]; ok {
		return cloneTemplate(tpl), nil
	}
	if visiting[key] {
		return nil, fmt.Errorf("template inheritance cycle detected for '%s'", key)
	}
	entry, ok := r.templates[key]
	if !ok {
		return nil, fmt.Errorf("template '%s' not found", key)
	}

	visiting[key] = true
	child := cloneTemplate(entry.Template)
	parents := append([]string(nil), child.Extends...)
	child.Extends = nil

	var merged *Template
	for _, parentRef := range parents {
		parentKey, err := r.lookupTemplateKeyLocked(parentRef)
		if err != nil {
			return nil, err
		}
		parentTpl, err := r.resolveTemplateLocked(parentKey, cache, visiting)
		if err != nil {
			return nil, err
		}
		if merged == nil {
			merged = parentTpl
		} else {
			merged = mergeTemplates(merged, parentTpl)
		}
	}

	result := child
	if merged != nil {
		result = mergeTemplates(merged, child)
	}

	cache[key] = cloneTemplate(result)
	visiting[key] = false
	return result, nil
}

func (r *Registry) lookupTemplateKeyLocked(ref string) (string, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return "", fmt.Errorf("template extends reference cannot be empty")
	}
	if strings.Contains(ref, "@") {
		if _, ok := r.templates[ref]; ok {
			return ref, nil
		}
		return "", fmt.Errorf("template '%s' referenced by extends not found", ref)
	}

	var best string
	for key := range r.templates {
		if key == ref {
			return key, nil
		}
		if strings.HasPrefix(key, ref+"@") {
			if best == "" || key > best {
				best = key
			}
		}
	}
	if best != "" {
		return best, nil
	}
	return "", fmt.Errorf("template '%s' referenced by extends not found", ref)
}

// mergeTemplates overlays a child onto its parent. Identity fields come
// from the overlay; stages merge by ID with new stages appended.
func mergeTemplates(base, overlay *Template) *Template {
	result := cloneTemplate(base)
	result.Name = overlay.Name
	result.Version = overlay.Version
	result.Abstract = overlay.Abstract
	if overlay.Category != "" {
		result.Category = overlay.Category
	}
	if overlay.Description != "" {
		result.Description = overlay.Description
	}
	if overlay.Defaults.StageTimeout != 0 {
		result.Defaults.StageTimeout = overlay.Defaults.StageTimeout
	}

	if len(overlay.Metadata) > 0 {
		if result.Metadata == nil {
			result.Metadata = make(map[string]any, len(overlay.Metadata))
		}
		for k, v := range overlay.Metadata {
			result.Metadata[k] = v
		}
	}

	stageIndex := make(map[string]int, len(result.Stages))
	for i := range result.Stages {
		stageIndex[result.Stages[i].ID] = i
	}
	for _, stage := range overlay.Stages {
		if idx, ok := stageIndex[stage.ID]; ok {
			result.Stages[idx] = mergeTemplateStage(result.Stages[idx], stage)
		} else {
			result.Stages = append(result.Stages, cloneTemplateStage(stage))
		}
	}
	return result
}

func mergeTemplateStage(base, overlay TemplateStage) TemplateStage {
	merged := cloneTemplateStage(base)
	if len(overlay.DependsOn) > 0 {
		merged.DependsOn = cloneStringSlice(overlay.DependsOn)
	}
	if overlay.Timeout != 0 {
		merged.Timeout = overlay.Timeout
	}
	if len(overlay.Metadata) > 0 {
		if merged.Metadata == nil {
			merged.Metadata = make(map[string]any, len(overlay.Metadata))
		}
		for k, v := range overlay.Metadata {
			merged.Metadata[k] = v
		}
	}
	return merged
}

func cloneTemplate(tpl *Template) *Template {
	if tpl == nil {
		return nil
	}
	clone := *tpl
	clone.Extends = cloneStringSlice(tpl.Extends)
	clone.Metadata = cloneMetadata(tpl.Metadata)
	clone.Stages = make([]TemplateStage, len(tpl.Stages))
	for i := range tpl.Stages {
		clone.Stages[i] = cloneTemplateStage(tpl.Stages[i])
	}
	return &clone
}

func cloneTemplateStage(stage TemplateStage) TemplateStage {
	clone := stage
	clone.DependsOn = cloneStringSlice(stage.DependsOn)
	clone.Metadata = cloneMetadata(stage.Metadata)
	return clone
}

func cloneStringSlice(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	out := make([]string, len(values))
	copy(out, values)
	return out
}

func cloneMetadata(m map[string]any) map[string]any {
	if len(m) == 0 {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// LoadError aggregates template loading failures.
type LoadError struct {
	Failures []string
}

// Error implements the error interface.
func (e *LoadError) Error() string {
	if len(e.Failures) == 0 {
		return "template load failed"
	}
	return fmt.Sprintf("%d template(s) failed to load: %s", len(e.Failures), strings.Join(e.Failures, "; "))
}

// IsLoadError returns true when err represents aggregated template load failures.
func IsLoadError(err error) bool {
	var lErr *LoadError
	return errors.As(err, &lErr)
}
