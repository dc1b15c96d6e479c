package providers

import (
	"context"
	"fmt"
	"net/url"

	"go.uber.org/zap"

	"github.com/haryshwa05/pharmasynapse/internal/models"
)

const (
	sourceMarketAPI     = "market-api"
	sourceMarketDataset = "market-dataset"
)

// MarketProvider returns therapy-area sales data. The upstream serves
// GET {base}/market/{therapy} with a MarketSnapshot body.
type MarketProvider struct {
	up     *upstream
	apiKey string
	data   *Dataset
	logger *zap.Logger
}

func NewMarketProvider(opts HTTPOptions, data *Dataset, logger *zap.Logger) *MarketProvider {
	if logger == nil {
		logger = zap.NewNop()
	}
	p := &MarketProvider{apiKey: opts.APIKey, data: data, logger: logger}
	if opts.Enabled() {
		p.up = newUpstream(models.StageMarket, opts, logger)
	}
	return p
}

func (p *MarketProvider) Stage() models.StageID     { return models.StageMarket }
func (p *MarketProvider) Kind() models.ProviderKind { return models.KindMarket }

func (p *MarketProvider) Invoke(ctx context.Context, q Query) (*models.Payload, error) {
	therapy := q.Disease
	if therapy == "" {
		therapy = q.Molecule
	}
	if therapy == "" {
		return nil, NewError(p.Stage(), models.ErrorInvalidInput, "market", fmt.Errorf("%w: disease area or molecule required", ErrInvalidInput))
	}

	var online func() (*models.Payload, error)
	if p.up != nil {
		online = func() (*models.Payload, error) {
			var snap models.MarketSnapshot
			endpoint := p.up.base + "/market/" + url.PathEscape(therapy)
			if err := p.up.getJSON(ctx, "market", endpoint, nil, apiKeyHeader("X-Api-Key", p.apiKey), &snap); err != nil {
				return nil, err
			}
			if snap.Therapy == "" {
				snap.Therapy = therapy
			}
			return marketPayload(sourceMarketAPI, "", snap), nil
		}
	}
	return withFallback(ctx, p.Stage(), p.logger, online, func() *models.Payload {
		rec, ok := p.data.Market(q.Disease, q.Molecule)
		if !ok {
			return unavailable(sourceMarketDataset, p.data.Date(), fmt.Sprintf("No market data found for %s.", therapy))
		}
		return marketPayload(sourceMarketDataset, p.data.Date(), rec.MarketSnapshot)
	})
}

func marketPayload(source, asOf string, snap models.MarketSnapshot) *models.Payload {
	summary := fmt.Sprintf("Market for %s: $%.1fB total, %.1f%% YoY growth, %d top products.",
		snap.Therapy, snap.MarketSizeUSD/1e9, snap.GrowthPct, len(snap.TopProducts))
	return &models.Payload{
		Source:    source,
		Summary:   summary,
		AsOf:      asOf,
		Available: true,
		Market:    &snap,
	}
}
