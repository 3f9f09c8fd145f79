package model

// Kind discriminates the two record tables.
type Kind string

const (
	KindFunnel   Kind = "funnel"
	KindCurrency Kind = "currency"
)

// KindOf routes a type cell: only the exact string "currency" selects the
// currency table; anything else, including an empty cell, is a funnel record.
func KindOf(typ Cell) Kind {
	if s, ok := typ.Str(); ok && s == string(KindCurrency) {
		return KindCurrency
	}
	return KindFunnel
}

// Record is one stored row, reassembled into its structured form.
type Record interface {
	Kind() Kind
	RecordID() Cell
	// Row returns the cells in column order.
	Row() []Cell
}

// FunnelColumns is the fixed column order of the Funnel table.
var FunnelColumns = []string{
	"id", "type", "date", "label", "signups",
	"kycRate", "startRate", "completeRate", "depositRate",
	"remitRate", "overallRate", "avgAmount", "feeRate", "savedAt",
}

// CurrencyColumns is the fixed column order of the Currency table.
var CurrencyColumns = []string{
	"id", "type", "date", "label", "currencyStartUsers",
	"jpyRatio", "jpyRate", "usdRatio", "usdRate",
	"eurRatio", "eurRate", "audRatio", "audRate",
	"cadRatio", "cadRate", "gbpRatio", "gbpRate",
	"weightedRate", "completedUsers", "avgAmount", "feeRate", "savedAt",
}

// FunnelRecord is a conversion-funnel snapshot (a row of the Funnel table).
// Field order matches FunnelColumns.
type FunnelRecord struct {
	ID           Cell `json:"id"`
	Type         Cell `json:"type"`
	Date         Cell `json:"date"`
	Label        Cell `json:"label"`
	Signups      Cell `json:"signups"`
	KYCRate      Cell `json:"kycRate"`
	StartRate    Cell `json:"startRate"`
	CompleteRate Cell `json:"completeRate"`
	DepositRate  Cell `json:"depositRate"`
	RemitRate    Cell `json:"remitRate"`
	OverallRate  Cell `json:"overallRate"`
	AvgAmount    Cell `json:"avgAmount"`
	FeeRate      Cell `json:"feeRate"`
	SavedAt      Cell `json:"savedAt"`
}

// Kind implements Record.
func (r *FunnelRecord) Kind() Kind { return KindFunnel }

// RecordID implements Record.
func (r *FunnelRecord) RecordID() Cell { return r.ID }

func (r *FunnelRecord) cells() []*Cell {
	return []*Cell{
		&r.ID, &r.Type, &r.Date, &r.Label, &r.Signups,
		&r.KYCRate, &r.StartRate, &r.CompleteRate, &r.DepositRate,
		&r.RemitRate, &r.OverallRate, &r.AvgAmount, &r.FeeRate, &r.SavedAt,
	}
}

// Row returns the record's cells in column order.
func (r *FunnelRecord) Row() []Cell { return collect(r.cells()) }

// FunnelFromRow reassembles a Funnel row. Short rows leave trailing fields empty.
func FunnelFromRow(row []Cell) *FunnelRecord {
	r := &FunnelRecord{}
	scatter(r.cells(), row)
	return r
}

// CurrencyRecord is a multi-currency conversion snapshot (a row of the Currency table).
// Field order matches CurrencyColumns.
type CurrencyRecord struct {
	ID                 Cell `json:"id"`
	Type               Cell `json:"type"`
	Date               Cell `json:"date"`
	Label              Cell `json:"label"`
	CurrencyStartUsers Cell `json:"currencyStartUsers"`
	JPYRatio           Cell `json:"jpyRatio"`
	JPYRate            Cell `json:"jpyRate"`
	USDRatio           Cell `json:"usdRatio"`
	USDRate            Cell `json:"usdRate"`
	EURRatio           Cell `json:"eurRatio"`
	EURRate            Cell `json:"eurRate"`
	AUDRatio           Cell `json:"audRatio"`
	AUDRate            Cell `json:"audRate"`
	CADRatio           Cell `json:"cadRatio"`
	CADRate            Cell `json:"cadRate"`
	GBPRatio           Cell `json:"gbpRatio"`
	GBPRate            Cell `json:"gbpRate"`
	WeightedRate       Cell `json:"weightedRate"`
	CompletedUsers     Cell `json:"completedUsers"`
	AvgAmount          Cell `json:"avgAmount"`
	FeeRate            Cell `json:"feeRate"`
	SavedAt            Cell `json:"savedAt"`
}

// Kind implements Record.
func (r *CurrencyRecord) Kind() Kind { return KindCurrency }

// RecordID implements Record.
func (r *CurrencyRecord) RecordID() Cell { return r.ID }

func (r *CurrencyRecord) cells() []*Cell {
	return []*Cell{
		&r.ID, &r.Type, &r.Date, &r.Label, &r.CurrencyStartUsers,
		&r.JPYRatio, &r.JPYRate, &r.USDRatio, &r.USDRate,
		&r.EURRatio, &r.EURRate, &r.AUDRatio, &r.AUDRate,
		&r.CADRatio, &r.CADRate, &r.GBPRatio, &r.GBPRate,
		&r.WeightedRate, &r.CompletedUsers, &r.AvgAmount, &r.FeeRate, &r.SavedAt,
	}
}

// Row returns the record's cells in column order.
func (r *CurrencyRecord) Row() []Cell { return collect(r.cells()) }

// CurrencyFromRow reassembles a Currency row. Short rows leave trailing fields empty.
func CurrencyFromRow(row []Cell) *CurrencyRecord {
	r := &CurrencyRecord{}
	scatter(r.cells(), row)
	return r
}

func collect(ptrs []*Cell) []Cell {
	row := make([]Cell, len(ptrs))
	for i, p := range ptrs {
		row[i] = *p
	}
	return row
}

func scatter(ptrs []*Cell, row []Cell) {
	for i := 0; i < len(ptrs) && i < len(row); i++ {
		*ptrs[i] = row[i]
	}
}

// fieldsInto fills record cells from a decoded object by exact column name.
func fieldsInto(ptrs []*Cell, columns []string, fields map[string]Cell) {
	for i, col := range columns {
		*ptrs[i] = fields[col]
	}
}
