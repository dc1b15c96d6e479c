package providers

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/haryshwa05/pharmasynapse/internal/models"
)

const (
	sourceResearchAPI     = "web-search"
	sourceResearchDataset = "research-dataset"

	defaultResearchResults = 6
)

// ResearchProvider gathers guidelines, real-world evidence and news from a
// JSON search endpoint: GET {base}?q=...&count=N returning
// {"results":[{"title","url","snippet"}]}.
type ResearchProvider struct {
	up         *upstream
	apiKey     string
	maxResults int
	data       *Dataset
	logger     *zap.Logger
}

func NewResearchProvider(opts HTTPOptions, maxResults int, data *Dataset, logger *zap.Logger) *ResearchProvider {
	if logger == nil {
		logger = zap.NewNop()
	}
	if maxResults <= 0 {
		maxResults = defaultResearchResults
	}
	p := &ResearchProvider{apiKey: opts.APIKey, maxResults: maxResults, data: data, logger: logger}
	if opts.Enabled() {
		p.up = newUpstream(models.StageWebResearch, opts, logger)
	}
	return p
}

func (p *ResearchProvider) Stage() models.StageID     { return models.StageWebResearch }
func (p *ResearchProvider) Kind() models.ProviderKind { return models.KindResearch }

type searchResponse struct {
	Results []models.Link `json:"results"`
}

// researchQueries returns the guideline, RWE and news queries for scope.
func researchQueries(scope string) [3]string {
	return [3]string{
		scope + " clinical practice guideline PDF",
		scope + " real world evidence study",
		"latest news " + scope + " drug",
	}
}

func (p *ResearchProvider) Invoke(ctx context.Context, q Query) (*models.Payload, error) {
	scope := q.Scope()
	if scope == "" {
		return nil, NewError(p.Stage(), models.ErrorInvalidInput, "search", fmt.Errorf("%w: empty search scope", ErrInvalidInput))
	}

	var online func() (*models.Payload, error)
	if p.up != nil {
		online = func() (*models.Payload, error) {
			var hits [3][]models.Link
			g, gctx := errgroup.WithContext(ctx)
			for i, query := range researchQueries(scope) {
				g.Go(func() error {
					params := url.Values{}
					params.Set("q", query)
					params.Set("count", strconv.Itoa(p.maxResults))
					var resp searchResponse
					if err := p.up.getJSON(gctx, "search", p.up.base, params, apiKeyHeader("X-Api-Key", p.apiKey), &resp); err != nil {
						return err
					}
					hits[i] = resp.Results
					return nil
				})
			}
			if err := g.Wait(); err != nil {
				return nil, err
			}
			digest := DedupeResearch(hits[0], hits[1], hits[2], p.maxResults)
			return researchPayload(sourceResearchAPI, "", scope, digest), nil
		}
	}
	return withFallback(ctx, p.Stage(), p.logger, online, func() *models.Payload {
		rec, ok := p.data.ResearchFor(q.Molecule, q.Indication, q.Disease)
		if !ok {
			return unavailable(sourceResearchDataset, p.data.Date(), fmt.Sprintf("No web intelligence found for %s.", scope))
		}
		digest := DedupeResearch(rec.Guidelines, rec.RWE, rec.News, p.maxResults)
		return researchPayload(sourceResearchDataset, p.data.Date(), scope, digest)
	})
}

// DedupeResearch drops links without a URL or already seen in an earlier
// topic, keeping at most limit per topic.
func DedupeResearch(guidelines, rwe, news []models.Link, limit int) models.ResearchDigest {
	seen := make(map[string]bool)
	pick := func(in []models.Link) []models.Link {
		out := []models.Link{}
		for _, l := range in {
			if l.URL == "" || seen[l.URL] {
				continue
			}
			seen[l.URL] = true
			out = append(out, l)
			if limit > 0 && len(out) == limit {
				break
			}
		}
		return out
	}
	return models.ResearchDigest{
		Guidelines:        pick(guidelines),
		RealWorldEvidence: pick(rwe),
		News:              pick(news),
	}
}

func researchPayload(source, asOf, scope string, d models.ResearchDigest) *models.Payload {
	summary := fmt.Sprintf("Web intelligence for %s: %d guidelines, %d rwe, %d news.",
		scope, len(d.Guidelines), len(d.RealWorldEvidence), len(d.News))
	return &models.Payload{
		Source:    source,
		Summary:   summary,
		AsOf:      asOf,
		Available: len(d.Guidelines)+len(d.RealWorldEvidence)+len(d.News) > 0,
		Research:  &d,
	}
}
