// Package providers implements the data-gathering stages of an analysis.
//
// Every provider shares one contract: given a normalized Query it returns a
// structured payload or a typed *Error. Providers are safe for concurrent
// use and honour context cancellation.
package providers

import (
	"context"
	"strconv"
	"strings"

	"github.com/haryshwa05/pharmasynapse/internal/models"
)

// Provider supplies one stage's data.
type Provider interface {
	Stage() models.StageID
	Kind() models.ProviderKind
	Invoke(ctx context.Context, q Query) (*models.Payload, error)
}

// Query is the normalized input handed to every provider.
type Query struct {
	RequestID  string
	Category   models.Category
	Molecule   string
	Disease    string
	Indication string
	Geography  string
	Year       int
	Question   string
	// Prior holds results from earlier groups. Providers must not rely on
	// it being populated.
	Prior models.View
}

// NewQuery builds the provider input from an intent and the results
// recorded so far.
func NewQuery(requestID string, intent models.QueryIntent, prior models.View) Query {
	q := Query{
		RequestID:  requestID,
		Category:   intent.Category(),
		Molecule:   strings.TrimSpace(intent.PrimaryEntity()),
		Disease:    intent.Attribute(models.AttrDiseaseArea),
		Indication: intent.Attribute(models.AttrIndication),
		Geography:  intent.Attribute(models.AttrGeography),
		Question:   intent.RawQuestion(),
		Prior:      prior,
	}
	if y, err := strconv.Atoi(intent.Attribute(models.AttrYear)); err == nil {
		q.Year = y
	}
	return q
}

// Term is the most specific search subject available: the molecule, then
// the indication, then the disease area, then the raw question.
func (q Query) Term() string {
	for _, s := range []string{q.Molecule, q.Indication, q.Disease, q.Question} {
		if s = strings.TrimSpace(s); s != "" {
			return s
		}
	}
	return ""
}

// Scope joins the molecule with the indication or disease, e.g.
// "metformin NAFLD".
func (q Query) Scope() string {
	condition := q.Indication
	if condition == "" {
		condition = q.Disease
	}
	if q.Molecule == "" {
		return q.Term()
	}
	if condition == "" {
		return q.Molecule
	}
	return q.Molecule + " " + condition
}

// CacheParts lists the query fields that determine a provider's answer.
func (q Query) CacheParts() []string {
	year := ""
	if q.Year > 0 {
		year = strconv.Itoa(q.Year)
	}
	return []string{q.Molecule, q.Disease, q.Indication, q.Geography, year, q.Term()}
}
