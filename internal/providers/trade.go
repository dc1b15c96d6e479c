package providers

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/haryshwa05/pharmasynapse/internal/models"
)

const (
	sourceTradeDataset = "exim-dataset"
	tradeTopN          = 5
)

// TradeProvider summarizes export and import flows from the curated EXIM
// data set.
type TradeProvider struct {
	data   *Dataset
	logger *zap.Logger
}

func NewTradeProvider(data *Dataset, logger *zap.Logger) *TradeProvider {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TradeProvider{data: data, logger: logger}
}

func (p *TradeProvider) Stage() models.StageID     { return models.StageTrade }
func (p *TradeProvider) Kind() models.ProviderKind { return models.KindTrade }

func (p *TradeProvider) Invoke(ctx context.Context, q Query) (*models.Payload, error) {
	if err := ctx.Err(); err != nil {
		return nil, NewError(p.Stage(), models.ErrorTimeout, "trade", err)
	}
	if q.Molecule == "" {
		return nil, NewError(p.Stage(), models.ErrorInvalidInput, "trade", fmt.Errorf("%w: molecule required", ErrInvalidInput))
	}
	entry, ok := p.data.TradeFor(q.Molecule)
	if !ok {
		return unavailable(sourceTradeDataset, p.data.Date(), fmt.Sprintf("No EXIM data found for %s.", q.Molecule)), nil
	}

	var countries []string
	if q.Geography != "" && !strings.EqualFold(q.Geography, "global") {
		countries = []string{q.Geography}
	}
	flows := BuildTradeFlows(entry.Exports, entry.Imports, q.Year, countries)
	return &models.Payload{
		Source:    sourceTradeDataset,
		Summary:   tradeSummary(q.Molecule, flows),
		AsOf:      p.data.Date(),
		Available: true,
		Trade:     &flows,
	}, nil
}

// BuildTradeFlows filters records by year and country (zero and empty
// match everything) and computes totals, leaders and import dependency.
func BuildTradeFlows(exports, imports []models.TradeRecord, year int, countries []string) models.TradeFlows {
	f := models.TradeFlows{
		Exports: filterTrade(exports, year, countries),
		Imports: filterTrade(imports, year, countries),
	}
	for _, r := range f.Exports {
		f.TotalExportValueMn += r.ValueUSDMn
		f.TotalExportVolumeT += r.VolumeTons
	}
	for _, r := range f.Imports {
		f.TotalImportValueMn += r.ValueUSDMn
		f.TotalImportVolumeT += r.VolumeTons
	}
	f.TopExporters = topByValue(f.Exports, tradeTopN)
	f.TopImporters = topByValue(f.Imports, tradeTopN)
	if f.TotalImportValueMn > 0 {
		for _, r := range f.TopImporters {
			f.ImportDependency = append(f.ImportDependency, models.DependencyShare{
				Country:  r.Country,
				Year:     r.Year,
				SharePct: math.Round(r.ValueUSDMn/f.TotalImportValueMn*1000) / 10,
			})
		}
	}
	return f
}

func filterTrade(records []models.TradeRecord, year int, countries []string) []models.TradeRecord {
	var out []models.TradeRecord
	for _, r := range records {
		if year > 0 && r.Year != year {
			continue
		}
		if len(countries) > 0 && !containsFold(countries, r.Country) {
			continue
		}
		out = append(out, r)
	}
	return out
}

func topByValue(records []models.TradeRecord, n int) []models.TradeRecord {
	out := make([]models.TradeRecord, len(records))
	copy(out, records)
	sort.SliceStable(out, func(i, j int) bool { return out[i].ValueUSDMn > out[j].ValueUSDMn })
	if len(out) > n {
		out = out[:n]
	}
	return out
}

func tradeSummary(molecule string, f models.TradeFlows) string {
	var b strings.Builder
	fmt.Fprintf(&b, "EXIM trends for %s: exports $%.1fM, imports $%.1fM.",
		molecule, f.TotalExportValueMn, f.TotalImportValueMn)
	if len(f.TopExporters) > 0 {
		top := f.TopExporters[0]
		fmt.Fprintf(&b, " Top exporter: %s ($%.1fM).", top.Country, top.ValueUSDMn)
	}
	if len(f.TopImporters) > 0 {
		top := f.TopImporters[0]
		fmt.Fprintf(&b, " Top importer: %s ($%.1fM).", top.Country, top.ValueUSDMn)
	}
	if len(f.ImportDependency) > 0 {
		dep := f.ImportDependency[0]
		fmt.Fprintf(&b, " %s accounts for %.1f%% of imports.", dep.Country, dep.SharePct)
	}
	return b.String()
}
