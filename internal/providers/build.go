package providers

import (
	"time"

	"go.uber.org/zap"

	"github.com/haryshwa05/pharmasynapse/internal/cache"
	"github.com/haryshwa05/pharmasynapse/internal/models"
)

// Settings configures the provider set. Stages with no base URL answer from
// the offline dataset.
type Settings struct {
	Market             HTTPOptions   `mapstructure:"market"`
	Trials             HTTPOptions   `mapstructure:"clinical_trials"`
	Patent             HTTPOptions   `mapstructure:"patent"`
	Research           HTTPOptions   `mapstructure:"web_research"`
	ResearchMaxResults int           `mapstructure:"web_research_max_results"`
	DatasetPath        string        `mapstructure:"dataset_path"`
	CacheTTL           time.Duration `mapstructure:"cache_ttl"`
	// Disabled lists stages that are left unregistered; plans that include
	// them record the stage as skipped.
	Disabled []string `mapstructure:"disabled"`
}

// Build constructs every enabled provider and registers it. Providers are
// wrapped with pc when it is non-nil and CacheTTL is positive.
func Build(s Settings, data *Dataset, pc cache.PayloadCache, logger *zap.Logger) (*Registry, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	disabled := make(map[models.StageID]bool, len(s.Disabled))
	for _, name := range s.Disabled {
		id, err := models.ParseStageID(name)
		if err != nil {
			return nil, err
		}
		disabled[id] = true
	}

	all := []Provider{
		NewMarketProvider(s.Market, data, logger),
		NewTrialsProvider(s.Trials, data, logger),
		NewPatentProvider(s.Patent, data, logger),
		NewTradeProvider(data, logger),
		NewResearchProvider(s.Research, s.ResearchMaxResults, data, logger),
		NewInternalProvider(data, logger),
	}
	var enabled []Provider
	for _, p := range all {
		if disabled[p.Stage()] {
			logger.Info("Provider disabled", zap.String("stage", string(p.Stage())))
			continue
		}
		enabled = append(enabled, WithCache(p, pc, s.CacheTTL, logger))
	}
	return NewRegistry(enabled...)
}
