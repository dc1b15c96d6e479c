package models

// Payload is the structured record a provider returns. Exactly one of the
// typed sections is populated, matching the provider's kind.
type Payload struct {
	Source    string `json:"source"`
	Summary   string `json:"summary"`
	AsOf      string `json:"as_of,omitempty"`
	Available bool   `json:"available"`

	Market   *MarketSnapshot  `json:"market,omitempty"`
	Trials   *TrialLandscape  `json:"trials,omitempty"`
	Patents  *PatentLandscape `json:"patents,omitempty"`
	Trade    *TradeFlows      `json:"trade,omitempty"`
	Research *ResearchDigest  `json:"research,omitempty"`
	Internal *InternalDigest  `json:"internal,omitempty"`
}

// MarketSnapshot summarizes sales data for a therapy.
type MarketSnapshot struct {
	Therapy       string    `json:"therapy" yaml:"therapy"`
	Region        string    `json:"region,omitempty" yaml:"region"`
	MarketSizeUSD float64   `json:"total_market_size_usd" yaml:"total_market_size_usd"`
	GrowthPct     float64   `json:"yoy_growth_pct" yaml:"yoy_growth_pct"`
	TopProducts   []Product `json:"top_products,omitempty" yaml:"top_products"`
}

// Product is one branded or generic product in a market.
type Product struct {
	Name     string  `json:"product_name" yaml:"product_name"`
	Company  string  `json:"company,omitempty" yaml:"company"`
	SalesUSD float64 `json:"sales_usd,omitempty" yaml:"sales_usd"`
	SharePct float64 `json:"share_pct,omitempty" yaml:"share_pct"`
}

// TrialLandscape aggregates clinical trial registrations.
type TrialLandscape struct {
	Total   int            `json:"total_trials" yaml:"total_trials"`
	ByPhase map[string]int `json:"phase_distribution,omitempty" yaml:"phase_distribution"`
	Trials  []Trial        `json:"trials,omitempty" yaml:"trials"`
}

// Trial is a single registered study.
type Trial struct {
	ID         string   `json:"id" yaml:"id"`
	Title      string   `json:"title" yaml:"title"`
	Phase      string   `json:"phase,omitempty" yaml:"phase"`
	Status     string   `json:"status,omitempty" yaml:"status"`
	Sponsor    string   `json:"sponsor,omitempty" yaml:"sponsor"`
	Conditions []string `json:"conditions,omitempty" yaml:"conditions"`
	StartDate  string   `json:"start_date,omitempty" yaml:"start_date"`
}

// PatentLandscape captures freedom-to-operate inputs for a molecule.
type PatentLandscape struct {
	Total                int      `json:"total" yaml:"total"`
	Active               int      `json:"active_count" yaml:"active_count"`
	Expired              int      `json:"expired_count" yaml:"expired_count"`
	Pending              int      `json:"pending_count" yaml:"pending_count"`
	EarliestActiveExpiry string   `json:"earliest_active_expiry,omitempty" yaml:"earliest_active_expiry"`
	Patents              []Patent `json:"patents,omitempty" yaml:"patents"`
}

// Patent is one granted or pending patent.
type Patent struct {
	Number       string `json:"patent_number" yaml:"patent_number"`
	Title        string `json:"title" yaml:"title"`
	Assignee     string `json:"assignee,omitempty" yaml:"assignee"`
	Jurisdiction string `json:"jurisdiction,omitempty" yaml:"jurisdiction"`
	Status       string `json:"status" yaml:"status"`
	GrantDate    string `json:"grant_date,omitempty" yaml:"grant_date"`
	ExpiryDate   string `json:"expiry_date,omitempty" yaml:"expiry_date"`
}

// Patent status values.
const (
	PatentActive  = "active"
	PatentExpired = "expired"
	PatentPending = "pending"
	PatentUnknown = "unknown"
)

// TradeFlows summarizes export and import records for a molecule.
type TradeFlows struct {
	Exports            []TradeRecord     `json:"exports,omitempty" yaml:"exports"`
	Imports            []TradeRecord     `json:"imports,omitempty" yaml:"imports"`
	TotalExportValueMn float64           `json:"total_export_value_usd_mn"`
	TotalExportVolumeT float64           `json:"total_export_volume_tons"`
	TotalImportValueMn float64           `json:"total_import_value_usd_mn"`
	TotalImportVolumeT float64           `json:"total_import_volume_tons"`
	TopExporters       []TradeRecord     `json:"top_exporters,omitempty"`
	TopImporters       []TradeRecord     `json:"top_importers,omitempty"`
	ImportDependency   []DependencyShare `json:"import_dependency,omitempty"`
}

// TradeRecord is one country-year trade observation.
type TradeRecord struct {
	Country    string  `json:"country" yaml:"country"`
	Year       int     `json:"year" yaml:"year"`
	ValueUSDMn float64 `json:"value_usd_mn" yaml:"value_usd_mn"`
	VolumeTons float64 `json:"volume_tons" yaml:"volume_tons"`
}

// DependencyShare is a country's share of total imports.
type DependencyShare struct {
	Country  string  `json:"country"`
	Year     int     `json:"year"`
	SharePct float64 `json:"share_percent"`
}

// ResearchDigest groups public web evidence by topic.
type ResearchDigest struct {
	Guidelines        []Link `json:"guidelines"`
	RealWorldEvidence []Link `json:"rwe"`
	News              []Link `json:"news"`
}

// Link is a deduplicated search hit.
type Link struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet,omitempty"`
}

// InternalDigest holds matching internal documents.
type InternalDigest struct {
	Documents    []InternalDocument `json:"documents"`
	KeyTakeaways []string           `json:"key_takeaways,omitempty"`
}

// InternalDocument is a curated internal strategy or research document.
type InternalDocument struct {
	ID           string   `json:"id" yaml:"id"`
	Title        string   `json:"title" yaml:"title"`
	Type         string   `json:"type" yaml:"type"`
	Year         int      `json:"year,omitempty" yaml:"year"`
	Summary      string   `json:"summary" yaml:"summary"`
	KeyTakeaways []string `json:"key_takeaways,omitempty" yaml:"key_takeaways"`
}
