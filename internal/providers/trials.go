package providers

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/haryshwa05/pharmasynapse/internal/models"
)

const (
	sourceTrialsAPI     = "clinicaltrials.gov"
	sourceTrialsDataset = "trials-dataset"

	trialsPageSize = 20
)

// TrialsProvider queries the ClinicalTrials.gov v2 studies endpoint.
type TrialsProvider struct {
	up     *upstream
	data   *Dataset
	logger *zap.Logger
}

func NewTrialsProvider(opts HTTPOptions, data *Dataset, logger *zap.Logger) *TrialsProvider {
	if logger == nil {
		logger = zap.NewNop()
	}
	p := &TrialsProvider{data: data, logger: logger}
	if opts.Enabled() {
		p.up = newUpstream(models.StageClinicalTrials, opts, logger)
	}
	return p
}

func (p *TrialsProvider) Stage() models.StageID     { return models.StageClinicalTrials }
func (p *TrialsProvider) Kind() models.ProviderKind { return models.KindTrial }

type studiesResponse struct {
	TotalCount int     `json:"totalCount"`
	Studies    []study `json:"studies"`
}

type study struct {
	ProtocolSection struct {
		IdentificationModule struct {
			NCTID      string `json:"nctId"`
			BriefTitle string `json:"briefTitle"`
		} `json:"identificationModule"`
		StatusModule struct {
			OverallStatus   string `json:"overallStatus"`
			StartDateStruct struct {
				Date string `json:"date"`
			} `json:"startDateStruct"`
		} `json:"statusModule"`
		DesignModule struct {
			Phases []string `json:"phases"`
		} `json:"designModule"`
		SponsorCollaboratorsModule struct {
			LeadSponsor struct {
				Name string `json:"name"`
			} `json:"leadSponsor"`
		} `json:"sponsorCollaboratorsModule"`
		ConditionsModule struct {
			Conditions []string `json:"conditions"`
		} `json:"conditionsModule"`
	} `json:"protocolSection"`
}

func (p *TrialsProvider) Invoke(ctx context.Context, q Query) (*models.Payload, error) {
	term := q.Term()
	if term == "" {
		return nil, NewError(p.Stage(), models.ErrorInvalidInput, "studies", fmt.Errorf("%w: empty search term", ErrInvalidInput))
	}

	var online func() (*models.Payload, error)
	if p.up != nil {
		online = func() (*models.Payload, error) {
			params := url.Values{}
			if q.Molecule != "" {
				params.Set("query.intr", q.Molecule)
				if cond := firstNonEmpty(q.Indication, q.Disease); cond != "" {
					params.Set("query.cond", cond)
				}
			} else {
				params.Set("query.term", term)
			}
			params.Set("pageSize", strconv.Itoa(trialsPageSize))
			params.Set("countTotal", "true")

			var resp studiesResponse
			if err := p.up.getJSON(ctx, "studies", p.up.base+"/studies", params, nil, &resp); err != nil {
				return nil, err
			}
			return trialsPayload(sourceTrialsAPI, "", term, landscapeFromStudies(resp)), nil
		}
	}
	return withFallback(ctx, p.Stage(), p.logger, online, func() *models.Payload {
		rec, ok := p.data.TrialsFor(q.Molecule)
		if !ok {
			return unavailable(sourceTrialsDataset, p.data.Date(), fmt.Sprintf("No clinical trial data found for %s.", term))
		}
		return trialsPayload(sourceTrialsDataset, p.data.Date(), term, rec.TrialLandscape)
	})
}

func landscapeFromStudies(resp studiesResponse) models.TrialLandscape {
	l := models.TrialLandscape{Total: resp.TotalCount, ByPhase: map[string]int{}}
	for _, s := range resp.Studies {
		ps := s.ProtocolSection
		phase := formatPhases(ps.DesignModule.Phases)
		l.ByPhase[phase]++
		l.Trials = append(l.Trials, models.Trial{
			ID:         ps.IdentificationModule.NCTID,
			Title:      ps.IdentificationModule.BriefTitle,
			Phase:      phase,
			Status:     ps.StatusModule.OverallStatus,
			Sponsor:    ps.SponsorCollaboratorsModule.LeadSponsor.Name,
			Conditions: ps.ConditionsModule.Conditions,
			StartDate:  ps.StatusModule.StartDateStruct.Date,
		})
	}
	if l.Total < len(l.Trials) {
		l.Total = len(l.Trials)
	}
	return l
}

// formatPhases turns ["PHASE2","PHASE3"] into "Phase 2/Phase 3".
func formatPhases(phases []string) string {
	if len(phases) == 0 {
		return "N/A"
	}
	out := make([]string, 0, len(phases))
	for _, ph := range phases {
		switch up := strings.ToUpper(ph); {
		case up == "NA":
			out = append(out, "N/A")
		case up == "EARLY_PHASE1":
			out = append(out, "Early Phase 1")
		case strings.HasPrefix(up, "PHASE"):
			out = append(out, "Phase "+strings.TrimPrefix(up, "PHASE"))
		default:
			out = append(out, ph)
		}
	}
	return strings.Join(out, "/")
}

func trialsPayload(source, asOf, term string, l models.TrialLandscape) *models.Payload {
	phases := make([]string, 0, len(l.ByPhase))
	for ph, n := range l.ByPhase {
		phases = append(phases, fmt.Sprintf("%s: %d", ph, n))
	}
	sort.Strings(phases)
	summary := fmt.Sprintf("Clinical trials for %s: %d registered studies.", term, l.Total)
	if len(phases) > 0 {
		summary += " Phases: " + strings.Join(phases, ", ") + "."
	}
	return &models.Payload{
		Source:    source,
		Summary:   summary,
		AsOf:      asOf,
		Available: true,
		Trials:    &l,
	}
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
