package providers

import (
	"bytes"
	_ "embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/haryshwa05/pharmasynapse/internal/models"
)

//go:embed data/dataset.yaml
var defaultDataset []byte

// Dataset is the curated offline data set. Providers answer from it when
// no upstream is configured or the upstream is unreachable.
type Dataset struct {
	AsOf      string           `yaml:"as_of"`
	Markets   []MarketRecord   `yaml:"markets"`
	Trials    []TrialRecord    `yaml:"trials"`
	Patents   []PatentRecord   `yaml:"patents"`
	Trade     []TradeEntry     `yaml:"trade"`
	Research  []ResearchRecord `yaml:"research"`
	Documents []DocumentRecord `yaml:"documents"`
}

// MarketRecord is a therapy-area market snapshot and the molecules sold in it.
type MarketRecord struct {
	models.MarketSnapshot `yaml:",inline"`
	Molecules             []string `yaml:"molecules"`
}

type TrialRecord struct {
	Molecule              string `yaml:"molecule"`
	models.TrialLandscape `yaml:",inline"`
}

type PatentRecord struct {
	Molecule string          `yaml:"molecule"`
	Patents  []models.Patent `yaml:"patents"`
}

type TradeEntry struct {
	Molecule string               `yaml:"molecule"`
	Exports  []models.TradeRecord `yaml:"exports"`
	Imports  []models.TradeRecord `yaml:"imports"`
}

type ResearchRecord struct {
	Term       string        `yaml:"term"`
	Guidelines []models.Link `yaml:"guidelines"`
	RWE        []models.Link `yaml:"rwe"`
	News       []models.Link `yaml:"news"`
}

// DocumentRecord is an internal document tagged with the molecules and
// disease areas it covers.
type DocumentRecord struct {
	models.InternalDocument `yaml:",inline"`
	Molecules               []string `yaml:"molecules"`
	Diseases                []string `yaml:"diseases"`
}

// LoadDataset reads the dataset at path, or the embedded default when path
// is empty.
func LoadDataset(path string) (*Dataset, error) {
	data := defaultDataset
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read dataset %s: %w", path, err)
		}
		data = raw
	}
	return ParseDataset(data)
}

// ParseDataset decodes a YAML dataset. Unknown fields are rejected.
func ParseDataset(data []byte) (*Dataset, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	var ds Dataset
	if err := dec.Decode(&ds); err != nil {
		return nil, fmt.Errorf("decode dataset: %w", err)
	}
	return &ds, nil
}

// DefaultDataset returns the embedded dataset.
func DefaultDataset() *Dataset {
	ds, err := ParseDataset(defaultDataset)
	if err != nil {
		panic(fmt.Sprintf("embedded dataset is invalid: %v", err))
	}
	return ds
}

// Date returns the as-of date of the data set, or "" for a nil set.
func (d *Dataset) Date() string {
	if d == nil {
		return ""
	}
	return d.AsOf
}

func match(a, b string) bool {
	return a != "" && strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}

func containsFold(list []string, s string) bool {
	for _, v := range list {
		if match(s, v) {
			return true
		}
	}
	return false
}

// Market finds the snapshot for a disease area, falling back to the therapy
// that sells molecule.
func (d *Dataset) Market(disease, molecule string) (MarketRecord, bool) {
	if d == nil {
		return MarketRecord{}, false
	}
	for _, m := range d.Markets {
		if match(disease, m.Therapy) {
			return m, true
		}
	}
	for _, m := range d.Markets {
		if match(molecule, m.Therapy) || containsFold(m.Molecules, molecule) {
			return m, true
		}
	}
	return MarketRecord{}, false
}

func (d *Dataset) TrialsFor(molecule string) (TrialRecord, bool) {
	if d == nil {
		return TrialRecord{}, false
	}
	for _, t := range d.Trials {
		if match(molecule, t.Molecule) {
			return t, true
		}
	}
	return TrialRecord{}, false
}

func (d *Dataset) PatentsFor(molecule string) (PatentRecord, bool) {
	if d == nil {
		return PatentRecord{}, false
	}
	for _, p := range d.Patents {
		if match(molecule, p.Molecule) {
			return p, true
		}
	}
	return PatentRecord{}, false
}

func (d *Dataset) TradeFor(molecule string) (TradeEntry, bool) {
	if d == nil {
		return TradeEntry{}, false
	}
	for _, t := range d.Trade {
		if match(molecule, t.Molecule) {
			return t, true
		}
	}
	return TradeEntry{}, false
}

func (d *Dataset) ResearchFor(terms ...string) (ResearchRecord, bool) {
	if d == nil {
		return ResearchRecord{}, false
	}
	for _, term := range terms {
		for _, r := range d.Research {
			if match(term, r.Term) {
				return r, true
			}
		}
	}
	return ResearchRecord{}, false
}

// DocumentsFor returns documents tagged with molecule, or with disease when
// no molecule is given.
func (d *Dataset) DocumentsFor(molecule, disease string) []DocumentRecord {
	if d == nil {
		return nil
	}
	var out []DocumentRecord
	for _, doc := range d.Documents {
		switch {
		case molecule != "":
			if containsFold(doc.Molecules, molecule) {
				out = append(out, doc)
			}
		case disease != "":
			if containsFold(doc.Diseases, disease) {
				out = append(out, doc)
			}
		}
	}
	return out
}
