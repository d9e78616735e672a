// Package model defines the canonical record families produced by field
// mapping and consumed at the persistence boundary (spec.md section 3.1),
// grounded on the plain-struct-with-json-tags shape of
// packages/com.r3e.services.datafeeds/service/domain.go.
package model

import "time"

// DataSource identifies a third-party origin.
type DataSource string

// DataType classifies what a record represents.
type DataType string

const (
	DataTypeStockQuote         DataType = "stock_quote"
	DataTypeKLine              DataType = "kline"
	DataTypeFinancialIndicator DataType = "financial_indicator"
	DataTypeMoneyFlow          DataType = "money_flow"
	DataTypeNews               DataType = "news"
	DataTypeMacroIndicator     DataType = "macro_indicator"
	DataTypeOptionQuote        DataType = "option_quote"
	DataTypeFutureQuote        DataType = "future_quote"
	DataTypeESGRating          DataType = "esg_rating"
	DataTypeKGEntity           DataType = "kg_entity"
	DataTypeKGRelation         DataType = "kg_relation"
	DataTypeKGEvent            DataType = "kg_event"
	DataTypeFactorValue        DataType = "factor_value"
	DataTypeSocialMediaPost    DataType = "social_media_post"
)

// DataFrequency is the collection cadence.
type DataFrequency string

const (
	FrequencyTick      DataFrequency = "tick"
	Frequency1Min      DataFrequency = "1min"
	Frequency5Min      DataFrequency = "5min"
	Frequency15Min     DataFrequency = "15min"
	Frequency30Min     DataFrequency = "30min"
	Frequency60Min     DataFrequency = "60min"
	FrequencyDaily     DataFrequency = "daily"
	FrequencyWeekly    DataFrequency = "weekly"
	FrequencyMonthly   DataFrequency = "monthly"
	FrequencyQuarterly DataFrequency = "quarterly"
	FrequencyYearly    DataFrequency = "yearly"
)

// RecordMeta is embedded by every canonical record family: the natural key
// its TableConfig uses for conflict resolution, the capture timestamp, and
// the originating source.
type RecordMeta struct {
	NaturalKey map[string]string `json:"natural_key"`
	CapturedAt time.Time         `json:"captured_at"`
	Source     DataSource        `json:"source"`
}

// CanonicalRecord is the marker interface every record family implements.
// ToRecord converts the typed struct into the plain map the persistence
// engine's save pipeline operates on (spec.md section 4.9 step 3a).
type CanonicalRecord interface {
	ToRecord() map[string]interface{}
	Meta() RecordMeta
}

func mergeMeta(m RecordMeta, fields map[string]interface{}) map[string]interface{} {
	fields["captured_at"] = m.CapturedAt
	fields["source"] = string(m.Source)
	for k, v := range m.NaturalKey {
		if _, exists := fields[k]; !exists {
			fields[k] = v
		}
	}
	return fields
}

// StockQuote is a single real-time or end-of-day equity quote.
type StockQuote struct {
	RecordMeta
	Code      string    `json:"code"`
	Name      string    `json:"name"`
	TradeDate time.Time `json:"trade_date"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	PrevClose float64   `json:"prev_close"`
	ChangePct float64   `json:"change_pct"`
	Volume    int64     `json:"volume"`
	Amount    float64   `json:"amount"`
	Turnover  float64   `json:"turnover"`
	PE        float64   `json:"pe"`
	PB        float64   `json:"pb"`
	MarketCap float64   `json:"market_cap"`
}

func (q StockQuote) Meta() RecordMeta { return q.RecordMeta }
func (q StockQuote) ToRecord() map[string]interface{} {
	return mergeMeta(q.RecordMeta, map[string]interface{}{
		"code": q.Code, "name": q.Name, "trade_date": q.TradeDate,
		"open": q.Open, "high": q.High, "low": q.Low, "close": q.Close,
		"prev_close": q.PrevClose, "change_pct": q.ChangePct, "volume": q.Volume,
		"amount": q.Amount, "turnover": q.Turnover, "pe": q.PE, "pb": q.PB,
		"market_cap": q.MarketCap,
	})
}

// MoneyFlow is per-day aggregated main/retail capital flow for one code.
type MoneyFlow struct {
	RecordMeta
	Code          string    `json:"code"`
	TradeDate     time.Time `json:"trade_date"`
	MainNetInflow float64   `json:"main_net_inflow"`
	MainNetRatio  float64   `json:"main_net_ratio"`
	LargeNetIn    float64   `json:"large_net_inflow"`
	MediumNetIn   float64   `json:"medium_net_inflow"`
	SmallNetIn    float64   `json:"small_net_inflow"`
}

func (m MoneyFlow) Meta() RecordMeta { return m.RecordMeta }
func (m MoneyFlow) ToRecord() map[string]interface{} {
	return mergeMeta(m.RecordMeta, map[string]interface{}{
		"code": m.Code, "trade_date": m.TradeDate,
		"main_net_inflow": m.MainNetInflow, "main_net_ratio": m.MainNetRatio,
		"large_net_inflow": m.LargeNetIn, "medium_net_inflow": m.MediumNetIn,
		"small_net_inflow": m.SmallNetIn,
	})
}

// FinancialIndicator is one reporting-period fundamental metric set.
type FinancialIndicator struct {
	RecordMeta
	Code           string    `json:"code"`
	ReportDate     time.Time `json:"report_date"`
	EPS            float64   `json:"eps"`
	ROE            float64   `json:"roe"`
	GrossMargin    float64   `json:"gross_margin"`
	NetMargin      float64   `json:"net_margin"`
	DebtToAssets   float64   `json:"debt_to_assets"`
	RevenueYoY     float64   `json:"revenue_yoy"`
	NetProfitYoY   float64   `json:"net_profit_yoy"`
}

func (f FinancialIndicator) Meta() RecordMeta { return f.RecordMeta }
func (f FinancialIndicator) ToRecord() map[string]interface{} {
	return mergeMeta(f.RecordMeta, map[string]interface{}{
		"code": f.Code, "report_date": f.ReportDate, "eps": f.EPS, "roe": f.ROE,
		"gross_margin": f.GrossMargin, "net_margin": f.NetMargin,
		"debt_to_assets": f.DebtToAssets, "revenue_yoy": f.RevenueYoY,
		"net_profit_yoy": f.NetProfitYoY,
	})
}

// OptionQuote is a single options-contract quote.
type OptionQuote struct {
	RecordMeta
	ContractCode string    `json:"contract_code"`
	Underlying   string    `json:"underlying"`
	TradeDate    time.Time `json:"trade_date"`
	StrikePrice  float64   `json:"strike_price"`
	OptionType   string    `json:"option_type"`
	ExpiryDate   time.Time `json:"expiry_date"`
	Close        float64   `json:"close"`
	Volume       int64     `json:"volume"`
	OpenInterest int64     `json:"open_interest"`
	ImpliedVol   float64   `json:"implied_vol"`
}

func (o OptionQuote) Meta() RecordMeta { return o.RecordMeta }
func (o OptionQuote) ToRecord() map[string]interface{} {
	return mergeMeta(o.RecordMeta, map[string]interface{}{
		"contract_code": o.ContractCode, "underlying": o.Underlying,
		"trade_date": o.TradeDate, "strike_price": o.StrikePrice,
		"option_type": o.OptionType, "expiry_date": o.ExpiryDate,
		"close": o.Close, "volume": o.Volume, "open_interest": o.OpenInterest,
		"implied_vol": o.ImpliedVol,
	})
}

// FutureQuote is a single futures-contract quote.
type FutureQuote struct {
	RecordMeta
	ContractCode string    `json:"contract_code"`
	TradeDate    time.Time `json:"trade_date"`
	Close        float64   `json:"close"`
	SettlePrice  float64   `json:"settle_price"`
	Volume       int64     `json:"volume"`
	OpenInterest int64     `json:"open_interest"`
	DeliveryDate time.Time `json:"delivery_date"`
}

func (f FutureQuote) Meta() RecordMeta { return f.RecordMeta }
func (f FutureQuote) ToRecord() map[string]interface{} {
	return mergeMeta(f.RecordMeta, map[string]interface{}{
		"contract_code": f.ContractCode, "trade_date": f.TradeDate,
		"close": f.Close, "settle_price": f.SettlePrice, "volume": f.Volume,
		"open_interest": f.OpenInterest, "delivery_date": f.DeliveryDate,
	})
}

// NewsItem is a single ingested news article or announcement.
type NewsItem struct {
	RecordMeta
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Content     string    `json:"content"`
	PublishedAt time.Time `json:"published_at"`
	RelatedCodes []string `json:"related_codes"`
	Sentiment   float64   `json:"sentiment"`
}

func (n NewsItem) Meta() RecordMeta { return n.RecordMeta }
func (n NewsItem) ToRecord() map[string]interface{} {
	return mergeMeta(n.RecordMeta, map[string]interface{}{
		"id": n.ID, "title": n.Title, "content": n.Content,
		"published_at": n.PublishedAt, "related_codes": n.RelatedCodes,
		"sentiment": n.Sentiment,
	})
}

// MacroIndicator is a single macroeconomic series observation.
type MacroIndicator struct {
	RecordMeta
	IndicatorCode string    `json:"indicator_code"`
	Period        time.Time `json:"period"`
	Value         float64   `json:"value"`
	Unit          string    `json:"unit"`
}

func (m MacroIndicator) Meta() RecordMeta { return m.RecordMeta }
func (m MacroIndicator) ToRecord() map[string]interface{} {
	return mergeMeta(m.RecordMeta, map[string]interface{}{
		"indicator_code": m.IndicatorCode, "period": m.Period,
		"value": m.Value, "unit": m.Unit,
	})
}

// FactorValue is one quant-factor observation for one code on one date.
type FactorValue struct {
	RecordMeta
	Code       string    `json:"code"`
	FactorName string    `json:"factor_name"`
	TradeDate  time.Time `json:"trade_date"`
	Value      float64   `json:"value"`
}

func (f FactorValue) Meta() RecordMeta { return f.RecordMeta }
func (f FactorValue) ToRecord() map[string]interface{} {
	return mergeMeta(f.RecordMeta, map[string]interface{}{
		"code": f.Code, "factor_name": f.FactorName,
		"trade_date": f.TradeDate, "value": f.Value,
	})
}

// KGEntity is a knowledge-graph node (company, person, industry, ...).
type KGEntity struct {
	RecordMeta
	EntityID   string                 `json:"entity_id"`
	EntityType string                 `json:"entity_type"`
	Name       string                 `json:"name"`
	Properties map[string]interface{} `json:"properties"`
}

func (e KGEntity) Meta() RecordMeta { return e.RecordMeta }
func (e KGEntity) ToRecord() map[string]interface{} {
	return mergeMeta(e.RecordMeta, map[string]interface{}{
		"entity_id": e.EntityID, "entity_type": e.EntityType,
		"name": e.Name, "properties": e.Properties,
	})
}

// KGRelation is a directed, typed edge between two KGEntity nodes.
type KGRelation struct {
	RecordMeta
	RelationID   string                 `json:"relation_id"`
	SourceEntity string                 `json:"source_entity"`
	TargetEntity string                 `json:"target_entity"`
	RelationType string                 `json:"relation_type"`
	Properties   map[string]interface{} `json:"properties"`
}

func (r KGRelation) Meta() RecordMeta { return r.RecordMeta }
func (r KGRelation) ToRecord() map[string]interface{} {
	return mergeMeta(r.RecordMeta, map[string]interface{}{
		"relation_id": r.RelationID, "source_entity": r.SourceEntity,
		"target_entity": r.TargetEntity, "relation_type": r.RelationType,
		"properties": r.Properties,
	})
}

// KGEvent is a time-stamped occurrence linking one or more KGEntity nodes.
type KGEvent struct {
	RecordMeta
	EventID     string    `json:"event_id"`
	EventType   string    `json:"event_type"`
	OccurredAt  time.Time `json:"occurred_at"`
	EntityIDs   []string  `json:"entity_ids"`
	Description string    `json:"description"`
}

func (e KGEvent) Meta() RecordMeta { return e.RecordMeta }
func (e KGEvent) ToRecord() map[string]interface{} {
	return mergeMeta(e.RecordMeta, map[string]interface{}{
		"event_id": e.EventID, "event_type": e.EventType,
		"occurred_at": e.OccurredAt, "entity_ids": e.EntityIDs,
		"description": e.Description,
	})
}

// ESGRating is one rating agency's environmental/social/governance score
// for one code at one point in time.
type ESGRating struct {
	RecordMeta
	Code           string    `json:"code"`
	Agency         string    `json:"agency"`
	RatingDate     time.Time `json:"rating_date"`
	EnvironmentalScore float64 `json:"environmental_score"`
	SocialScore    float64   `json:"social_score"`
	GovernanceScore float64  `json:"governance_score"`
	OverallScore   float64   `json:"overall_score"`
	Grade          string    `json:"grade"`
}

func (e ESGRating) Meta() RecordMeta { return e.RecordMeta }
func (e ESGRating) ToRecord() map[string]interface{} {
	return mergeMeta(e.RecordMeta, map[string]interface{}{
		"code": e.Code, "agency": e.Agency, "rating_date": e.RatingDate,
		"environmental_score": e.EnvironmentalScore, "social_score": e.SocialScore,
		"governance_score": e.GovernanceScore, "overall_score": e.OverallScore,
		"grade": e.Grade,
	})
}

// SocialMediaPost is a single ingested social-media mention of a code.
type SocialMediaPost struct {
	RecordMeta
	PostID      string    `json:"post_id"`
	Platform    string    `json:"platform"`
	Code        string    `json:"code"`
	Content     string    `json:"content"`
	PostedAt    time.Time `json:"posted_at"`
	Sentiment   float64   `json:"sentiment"`
	EngagementCount int   `json:"engagement_count"`
}

func (p SocialMediaPost) Meta() RecordMeta { return p.RecordMeta }
func (p SocialMediaPost) ToRecord() map[string]interface{} {
	return mergeMeta(p.RecordMeta, map[string]interface{}{
		"post_id": p.PostID, "platform": p.Platform, "code": p.Code,
		"content": p.Content, "posted_at": p.PostedAt, "sentiment": p.Sentiment,
		"engagement_count": p.EngagementCount,
	})
}
