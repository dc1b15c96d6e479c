package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/haryshwa05/pharmasynapse/internal/models"
)

const (
	sourcePatentAPI     = "patentsview"
	sourcePatentDataset = "patent-dataset"

	patentTermYears = 20
	patentPageSize  = 20
)

var patentFields = []string{"patent_id", "patent_title", "patent_date", "patent_type", "assignees.assignee_organization"}

// PatentProvider searches the PatentsView patent endpoint by title.
type PatentProvider struct {
	up     *upstream
	apiKey string
	data   *Dataset
	logger *zap.Logger
	now    func() time.Time
}

func NewPatentProvider(opts HTTPOptions, data *Dataset, logger *zap.Logger) *PatentProvider {
	if logger == nil {
		logger = zap.NewNop()
	}
	p := &PatentProvider{apiKey: opts.APIKey, data: data, logger: logger, now: time.Now}
	if opts.Enabled() {
		p.up = newUpstream(models.StagePatent, opts, logger)
	}
	return p
}

func (p *PatentProvider) Stage() models.StageID     { return models.StagePatent }
func (p *PatentProvider) Kind() models.ProviderKind { return models.KindIP }

type patentsViewResponse struct {
	Error   bool `json:"error"`
	Patents []struct {
		ID        string `json:"patent_id"`
		Title     string `json:"patent_title"`
		Date      string `json:"patent_date"`
		Type      string `json:"patent_type"`
		Assignees []struct {
			Organization string `json:"assignee_organization"`
		} `json:"assignees"`
	} `json:"patents"`
}

var errNoPatents = fmt.Errorf("%w: no matching patents", ErrUpstreamUnavailable)

func (p *PatentProvider) Invoke(ctx context.Context, q Query) (*models.Payload, error) {
	term := firstNonEmpty(q.Molecule, q.Term())
	if term == "" {
		return nil, NewError(p.Stage(), models.ErrorInvalidInput, "patents", fmt.Errorf("%w: empty search term", ErrInvalidInput))
	}

	var online func() (*models.Payload, error)
	if p.up != nil {
		online = func() (*models.Payload, error) {
			params, err := patentParams(term)
			if err != nil {
				return nil, NewError(p.Stage(), models.ErrorInvalidInput, "patents", err)
			}
			var resp patentsViewResponse
			if err := p.up.getJSON(ctx, "patents", p.up.base+"/patent/", params, apiKeyHeader("X-Api-Key", p.apiKey), &resp); err != nil {
				return nil, err
			}
			// An error flag or an empty hit list is treated like an outage so
			// the curated set can answer.
			if resp.Error || len(resp.Patents) == 0 {
				return nil, NewError(p.Stage(), models.ErrorUpstreamUnavailable, "patents", errNoPatents)
			}
			patents := make([]models.Patent, 0, len(resp.Patents))
			for _, r := range resp.Patents {
				pt := models.Patent{
					Number:       r.ID,
					Title:        r.Title,
					Jurisdiction: "US",
					GrantDate:    r.Date,
				}
				if len(r.Assignees) > 0 {
					pt.Assignee = r.Assignees[0].Organization
				}
				pt.Status, pt.ExpiryDate = p.statusFromGrant(r.Date)
				patents = append(patents, pt)
			}
			return patentPayload(sourcePatentAPI, "", term, patents), nil
		}
	}
	return withFallback(ctx, p.Stage(), p.logger, online, func() *models.Payload {
		rec, ok := p.data.PatentsFor(q.Molecule)
		if !ok {
			return unavailable(sourcePatentDataset, p.data.Date(), fmt.Sprintf("No %s patent data found.", term))
		}
		return patentPayload(sourcePatentDataset, p.data.Date(), term, rec.Patents)
	})
}

func patentParams(term string) (url.Values, error) {
	query, err := json.Marshal(map[string]any{"_text_any": map[string]string{"patent_title": term}})
	if err != nil {
		return nil, err
	}
	fields, err := json.Marshal(patentFields)
	if err != nil {
		return nil, err
	}
	params := url.Values{}
	params.Set("q", string(query))
	params.Set("f", string(fields))
	params.Set("o", fmt.Sprintf(`{"size":%d}`, patentPageSize))
	return params, nil
}

// statusFromGrant estimates status from the grant date using a fixed term.
func (p *PatentProvider) statusFromGrant(grant string) (status, expiry string) {
	granted, err := time.Parse("2006-01-02", grant)
	if err != nil {
		return models.PatentUnknown, ""
	}
	expires := granted.AddDate(patentTermYears, 0, 0)
	if p.now().Year()-granted.Year() > patentTermYears {
		return models.PatentExpired, expires.Format("2006-01-02")
	}
	return models.PatentActive, expires.Format("2006-01-02")
}

// BuildPatentLandscape counts patents by status and finds the earliest
// expiry among active ones.
func BuildPatentLandscape(patents []models.Patent) models.PatentLandscape {
	l := models.PatentLandscape{Total: len(patents), Patents: patents}
	for _, pt := range patents {
		switch pt.Status {
		case models.PatentActive:
			l.Active++
			if pt.ExpiryDate != "" && (l.EarliestActiveExpiry == "" || pt.ExpiryDate < l.EarliestActiveExpiry) {
				l.EarliestActiveExpiry = pt.ExpiryDate
			}
		case models.PatentExpired:
			l.Expired++
		case models.PatentPending:
			l.Pending++
		}
	}
	return l
}

func patentPayload(source, asOf, term string, patents []models.Patent) *models.Payload {
	l := BuildPatentLandscape(patents)
	summary := fmt.Sprintf("Patent landscape for %s: %d relevant patents identified (%d active, %d expired, %d pending).",
		term, l.Total, l.Active, l.Expired, l.Pending)
	return &models.Payload{
		Source:    source,
		Summary:   summary,
		AsOf:      asOf,
		Available: true,
		Patents:   &l,
	}
}
