package intent

import (
	"bytes"
	_ "embed"
	"fmt"
	"os"
	"regexp"
	"strings"
	"unicode"

	"gopkg.in/yaml.v3"

	"github.com/haryshwa05/pharmasynapse/internal/models"
)

//go:embed lexicon.yaml
var defaultLexicon []byte

// Lexicon holds the vocabulary used by rule-based resolution.
type Lexicon struct {
	Triggers          []Trigger `yaml:"triggers"`
	AnalysisMolecules []string  `yaml:"analysis_molecules"`
	Molecules         []string  `yaml:"molecules"`
	Diseases          []Term    `yaml:"diseases"`
	Geographies       []Term    `yaml:"geographies"`
}

// Trigger maps phrases to a category. Triggers are checked in order.
type Trigger struct {
	Category models.Category `yaml:"category"`
	Phrases  []string        `yaml:"phrases"`
}

// Term is a canonical name and the keywords that select it.
type Term struct {
	Name     string   `yaml:"name"`
	Keywords []string `yaml:"keywords"`
}

// LoadLexicon reads the lexicon at path, or the embedded default when path
// is empty.
func LoadLexicon(path string) (*Lexicon, error) {
	data := defaultLexicon
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read lexicon %s: %w", path, err)
		}
		data = raw
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	var lex Lexicon
	if err := dec.Decode(&lex); err != nil {
		return nil, fmt.Errorf("decode lexicon: %w", err)
	}
	for _, t := range lex.Triggers {
		if !t.Category.Known() {
			return nil, fmt.Errorf("lexicon trigger has unknown category %q", t.Category)
		}
	}
	return &lex, nil
}

// DefaultLexicon returns the embedded lexicon.
func DefaultLexicon() *Lexicon {
	lex, err := LoadLexicon("")
	if err != nil {
		panic(fmt.Sprintf("embedded lexicon is invalid: %v", err))
	}
	return lex
}

// normalize lower-cases text and turns every non-alphanumeric rune into a
// single space, padding both ends so phrases can be matched on word
// boundaries.
func normalize(text string) string {
	var b strings.Builder
	b.WriteByte(' ')
	space := true
	for _, r := range strings.ToLower(text) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			space = false
			continue
		}
		if !space {
			b.WriteByte(' ')
			space = true
		}
	}
	if !space {
		b.WriteByte(' ')
	}
	return b.String()
}

// contains reports whether normalized text holds phrase on word boundaries.
// A trailing * on phrase matches any word suffix.
func contains(text, phrase string) bool {
	stem := strings.HasSuffix(phrase, "*")
	p := strings.TrimSpace(normalize(strings.TrimSuffix(phrase, "*")))
	if p == "" {
		return false
	}
	if stem {
		return strings.Contains(text, " "+p)
	}
	return strings.Contains(text, " "+p+" ")
}

func containsAny(text string, phrases []string) bool {
	for _, p := range phrases {
		if contains(text, p) {
			return true
		}
	}
	return false
}

// Classify returns the category for the question using the ordered
// triggers, then the analysis molecules, then strategic_question.
func (l *Lexicon) Classify(question string) models.Category {
	text := normalize(question)
	for _, t := range l.Triggers {
		if containsAny(text, t.Phrases) {
			return t.Category
		}
	}
	if containsAny(text, l.AnalysisMolecules) {
		return models.CategoryMoleculeAnalysis
	}
	return models.CategoryStrategicQuestion
}

// Molecule returns the first listed molecule mentioned, capitalized.
func (l *Lexicon) Molecule(question string) string {
	text := normalize(question)
	for _, m := range l.Molecules {
		if contains(text, m) {
			return capitalize(m)
		}
	}
	return ""
}

func (l *Lexicon) Disease(question string) string {
	return firstTerm(normalize(question), l.Diseases)
}

func (l *Lexicon) Geography(question string) string {
	return firstTerm(normalize(question), l.Geographies)
}

// CanonicalDisease maps a free-form disease label onto the gazetteer name,
// or returns it trimmed when unknown.
func (l *Lexicon) CanonicalDisease(label string) string {
	if name := firstTerm(normalize(label), l.Diseases); name != "" {
		return name
	}
	return strings.TrimSpace(label)
}

func firstTerm(text string, terms []Term) string {
	for _, t := range terms {
		if containsAny(text, t.Keywords) {
			return t.Name
		}
	}
	return ""
}

var yearPattern = regexp.MustCompile(`\b(19|20)\d{2}\b`)

// Year returns the first four-digit year in question.
func Year(question string) string {
	return yearPattern.FindString(question)
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	r := []rune(s)
	r[0] = unicode.ToUpper(r[0])
	return string(r)
}
