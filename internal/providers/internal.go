package providers

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/haryshwa05/pharmasynapse/internal/models"
)

const (
	sourceInternalDataset = "internal-knowledge"
	internalMaxDocs       = 3
)

// InternalProvider searches curated internal documents.
type InternalProvider struct {
	data   *Dataset
	logger *zap.Logger
}

func NewInternalProvider(data *Dataset, logger *zap.Logger) *InternalProvider {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &InternalProvider{data: data, logger: logger}
}

func (p *InternalProvider) Stage() models.StageID     { return models.StageInternalKnowledge }
func (p *InternalProvider) Kind() models.ProviderKind { return models.KindResearch }

func (p *InternalProvider) Invoke(ctx context.Context, q Query) (*models.Payload, error) {
	if err := ctx.Err(); err != nil {
		return nil, NewError(p.Stage(), models.ErrorTimeout, "documents", err)
	}
	subject := firstNonEmpty(q.Molecule, q.Disease)
	if subject == "" {
		return unavailable(sourceInternalDataset, p.data.Date(), "Internal knowledge search needs a molecule or disease area."), nil
	}

	var docs []models.InternalDocument
	for _, rec := range p.data.DocumentsFor(q.Molecule, q.Disease) {
		if q.Year > 0 && rec.Year != q.Year {
			continue
		}
		docs = append(docs, rec.InternalDocument)
	}
	if len(docs) == 0 {
		return unavailable(sourceInternalDataset, p.data.Date(), fmt.Sprintf("No internal documents found for %s.", subject)), nil
	}
	sort.SliceStable(docs, func(i, j int) bool { return docs[i].Year > docs[j].Year })
	if len(docs) > internalMaxDocs {
		docs = docs[:internalMaxDocs]
	}

	digest := models.InternalDigest{Documents: docs}
	var types []string
	seen := map[string]bool{}
	for _, d := range docs {
		digest.KeyTakeaways = append(digest.KeyTakeaways, d.KeyTakeaways...)
		if d.Type != "" && !seen[d.Type] {
			seen[d.Type] = true
			types = append(types, d.Type)
		}
	}
	summary := fmt.Sprintf("Internal insights for %s: %d doc(s)", subject, len(docs))
	if len(types) > 0 {
		summary += " covering " + strings.Join(types, ", ")
	}
	return &models.Payload{
		Source:    sourceInternalDataset,
		Summary:   summary + ".",
		AsOf:      p.data.Date(),
		Available: true,
		Internal:  &digest,
	}, nil
}
