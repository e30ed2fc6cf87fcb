// Package preset implements the Instrument Preset Table (component A): a
// process-wide, read-only mapping from symbol to contract metadata —
// multiplier, tick size, margin coefficients, fee schedule.
package preset

import (
	"strings"

	"github.com/shopspring/decimal"

	"qaultra-core/pkg/qtypes"
)

// Preset is the immutable per-symbol contract metadata record.
type Preset struct {
	Name         string
	Exchange     qtypes.ExchangeCode
	UnitTable    int64
	PriceTick    decimal.Decimal
	BuyFrozenCoeff  decimal.Decimal
	SellFrozenCoeff decimal.Decimal

	CommissionPerAmount      decimal.Decimal
	CommissionPerVolume      decimal.Decimal
	CommissionTodayPerAmount decimal.Decimal
	CommissionTodayPerVolume decimal.Decimal
}

// MarketValue is vol·price·unit_table.
func (p Preset) MarketValue(price, vol decimal.Decimal) decimal.Decimal {
	return vol.Mul(price).Mul(decimal.NewFromInt(p.UnitTable))
}

// FrozenMoney is the margin required to open vol at price.
func (p Preset) FrozenMoney(price, vol decimal.Decimal) decimal.Decimal {
	return p.MarketValue(price, vol).Mul(p.BuyFrozenCoeff)
}

// SellOpenMargin mirrors FrozenMoney for the short side.
func (p Preset) SellOpenMargin(price, vol decimal.Decimal) decimal.Decimal {
	return p.MarketValue(price, vol).Mul(p.SellFrozenCoeff)
}

// Commission is additive: per_volume·vol + per_amount·market_value
// additive, not either/or.
func (p Preset) Commission(price, vol decimal.Decimal) decimal.Decimal {
	return p.CommissionPerVolume.Mul(vol).Add(p.CommissionPerAmount.Mul(p.MarketValue(price, vol)))
}

// CommissionToday is the additive close-today fee schedule.
func (p Preset) CommissionToday(price, vol decimal.Decimal) decimal.Decimal {
	return p.CommissionTodayPerVolume.Mul(vol).Add(p.CommissionTodayPerAmount.Mul(p.MarketValue(price, vol)))
}

// closingTowards identifies towards codes that represent a sell-side
// disposal for tax purposes: stock generic sell (-1) and any CLOSE/
// CLOSETODAY leg regardless of sign, matching calc_tax's original check.
func closingTowards(towards qtypes.Towards) bool {
	switch towards {
	case qtypes.TowardsSell, qtypes.TowardsBuyClose, qtypes.TowardsSellClose,
		qtypes.TowardsBuyToday, qtypes.TowardsSellToday:
		return true
	default:
		return false
	}
}

// Tax is 0.1% of market value on a stock disposal, else zero.
func (p Preset) Tax(price, vol decimal.Decimal, towards qtypes.Towards) decimal.Decimal {
	if p.Exchange == qtypes.STOCK && closingTowards(towards) {
		return p.MarketValue(price, vol).Mul(decimal.NewFromFloat(0.001))
	}
	return decimal.Zero
}

// defaultStockPreset is returned for any symbol with no table entry
// (no match in the exchange-specific table).
func defaultStockPreset(code string) Preset {
	return Preset{
		Name:                     code,
		Exchange:                 qtypes.STOCK,
		UnitTable:                1,
		PriceTick:                decimal.NewFromFloat(0.01),
		BuyFrozenCoeff:           decimal.NewFromFloat(1.0),
		SellFrozenCoeff:          decimal.NewFromFloat(1.0),
		CommissionPerAmount:      decimal.NewFromFloat(0.00032),
		CommissionPerVolume:      decimal.Zero,
		CommissionTodayPerAmount: decimal.NewFromFloat(0.00032),
		CommissionTodayPerVolume: decimal.Zero,
	}
}

// Table is the process-wide preset map. Get and ByExchange only read it;
// Add and LoadFromFile write to it without locking, so concurrent reads
// are safe only while neither of those is running.
type Table struct {
	byCode map[string]Preset
}

// NewTable builds the default table, pre-populated with real-exchange
// instrument rows across SHFE, DCE, CZCE, CFFEX, INE, and GFEX.
func NewTable() *Table {
	t := &Table{byCode: make(map[string]Preset)}
	t.loadDefaults()
	return t
}

// extractSymbol keeps only alphabetic runes, stripping contract-month and
// expiry digits from a code like "RB2405" down to "RB".
func extractSymbol(code string) string {
	var b strings.Builder
	for _, r := range code {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Get resolves a symbol to its Preset. A continuous-contract suffix "L8"
// or "L9" is stripped first; the rest of the code then goes through
// extractSymbol and is uppercased to form the lookup key. Unknown symbols
// resolve to the default stock preset.
func (t *Table) Get(code string) Preset {
	stripped := code
	if len(code) >= 2 {
		if suffix := code[len(code)-2:]; suffix == "L8" || suffix == "L9" {
			stripped = code[:len(code)-2]
		}
	}
	symbol := strings.ToUpper(extractSymbol(stripped))
	if p, ok := t.byCode[symbol]; ok {
		return p
	}
	return defaultStockPreset(code)
}

// ByExchange returns every preset registered under the given exchange
// code.
func (t *Table) ByExchange(exchange qtypes.ExchangeCode) []Preset {
	var out []Preset
	for _, p := range t.byCode {
		if p.Exchange == exchange {
			out = append(out, p)
		}
	}
	return out
}

// Add registers or overwrites a preset, for tests and custom instruments.
func (t *Table) Add(code string, p Preset) {
	t.byCode[strings.ToUpper(code)] = p
}

func mk(name string, unit int64, tick, buyFrozen, sellFrozen float64, exchange qtypes.ExchangeCode, perAmt, perVol, todayPerAmt, todayPerVol float64) Preset {
	return Preset{
		Name:                     name,
		Exchange:                 exchange,
		UnitTable:                unit,
		PriceTick:                decimal.NewFromFloat(tick),
		BuyFrozenCoeff:           decimal.NewFromFloat(buyFrozen),
		SellFrozenCoeff:          decimal.NewFromFloat(sellFrozen),
		CommissionPerAmount:      decimal.NewFromFloat(perAmt),
		CommissionPerVolume:      decimal.NewFromFloat(perVol),
		CommissionTodayPerAmount: decimal.NewFromFloat(todayPerAmt),
		CommissionTodayPerVolume: decimal.NewFromFloat(todayPerVol),
	}
}

// loadDefaults seeds the real SHFE/DCE/CZCE/CFFEX/INE/GFEX instrument
// rows.
func (t *Table) loadDefaults() {
	shfe := qtypes.SHFE
	t.byCode["AG"] = mk("Silver", 15, 1.0, 0.1, 0.1, shfe, 5e-05, 0.0, 5e-05, 0.0)
	t.byCode["AL"] = mk("Aluminium", 5, 5.0, 0.1, 0.1, shfe, 0.0, 3.0, 0.0, 0.0)
	t.byCode["AU"] = mk("Gold", 1000, 0.02, 0.08, 0.08, shfe, 0.0, 10.0, 0.0, 0.0)
	t.byCode["BU"] = mk("Bitumen", 10, 2.0, 0.15, 0.15, shfe, 0.0001, 0.0, 0.0001, 0.0)
	t.byCode["CU"] = mk("Copper", 5, 10.0, 0.1, 0.1, shfe, 5e-05, 0.0, 0.0, 0.0)
	t.byCode["FU"] = mk("Fuel Oil", 10, 1.0, 0.15, 0.15, shfe, 5e-05, 0.0, 0.0, 0.0)
	t.byCode["HC"] = mk("Hot Rolled Coil", 10, 1.0, 0.09, 0.09, shfe, 0.0001, 0.0, 0.0001, 0.0)
	t.byCode["NI"] = mk("Nickel", 1, 10.0, 0.1, 0.1, shfe, 0.0, 6.0, 0.0, 6.0)
	t.byCode["PB"] = mk("Lead", 5, 5.0, 0.1, 0.1, shfe, 4e-05, 0.0, 0.0, 0.0)
	t.byCode["RB"] = mk("Rebar", 10, 1.0, 0.09, 0.09, shfe, 0.0001, 0.0, 0.0001, 0.0)
	t.byCode["RU"] = mk("Natural Rubber", 10, 5.0, 0.09, 0.09, shfe, 4.5e-05, 0.0, 4.5e-05, 0.0)
	t.byCode["SN"] = mk("Tin", 1, 10.0, 0.1, 0.1, shfe, 0.0, 1.0, 0.0, 0.0)
	t.byCode["SP"] = mk("Bleached Softwood Pulp", 10, 2.0, 0.08, 0.08, shfe, 5e-05, 0.0, 0.0, 0.0)
	t.byCode["WR"] = mk("Wire Rod", 10, 1.0, 0.09, 0.09, shfe, 4e-05, 0.0, 0.0, 0.0)
	t.byCode["ZN"] = mk("Zinc", 5, 5.0, 0.1, 0.1, shfe, 0.0, 3.0, 0.0, 0.0)
	t.byCode["SS"] = mk("Stainless Steel", 5, 5.0, 0.08, 0.08, shfe, 0.0001, 0.0, 0.0001, 0.0)
	t.byCode["AO"] = mk("Alumina", 20, 1.0, 0.2, 0.2, shfe, 0.000101, 0.0, 0.0, 0.0)
	t.byCode["BR"] = mk("Butadiene Rubber", 5, 1.0, 0.2, 0.2, shfe, 0.000101, 0.0, 0.000101, 0.0)

	dce := qtypes.DCE
	t.byCode["A"] = mk("Soybean No.1", 10, 1.0, 0.05, 0.05, dce, 0.0, 2.0, 0.0, 2.0)
	t.byCode["B"] = mk("Soybean No.2", 10, 1.0, 0.05, 0.05, dce, 0.0, 1.0, 0.0, 1.0)
	t.byCode["BB"] = mk("Fiberboard", 500, 0.05, 0.2, 0.2, dce, 0.0001, 0.0, 5e-05, 0.0)
	t.byCode["C"] = mk("Corn", 10, 1.0, 0.05, 0.05, dce, 0.0, 1.2, 0.0, 0.0)
	t.byCode["CS"] = mk("Corn Starch", 10, 1.0, 0.05, 0.05, dce, 0.0, 1.5, 0.0, 0.0)
	t.byCode["EG"] = mk("Ethylene Glycol", 10, 1.0, 0.06, 0.06, dce, 0.0, 4.0, 0.0, 0.0)
	t.byCode["FB"] = mk("Medium Density Fiberboard", 500, 0.05, 0.2, 0.2, dce, 0.0001, 0.0, 5e-05, 0.0)
	t.byCode["I"] = mk("Iron Ore", 100, 0.5, 0.08, 0.08, dce, 6e-05, 0.0, 6e-05, 0.0)
	t.byCode["J"] = mk("Coke", 100, 0.5, 0.08, 0.08, dce, 0.00018, 0.0, 0.00018, 0.0)
	t.byCode["JD"] = mk("Egg", 10, 1.0, 0.07, 0.07, dce, 0.00015, 0.0, 0.00015, 0.0)
	t.byCode["JM"] = mk("Coking Coal", 60, 0.5, 0.08, 0.08, dce, 0.00018, 0.0, 0.00018, 0.0)
	t.byCode["L"] = mk("Linear Low-Density Polyethylene", 5, 5.0, 0.05, 0.05, dce, 0.0, 2.0, 0.0, 0.0)
	t.byCode["M"] = mk("Soybean Meal", 10, 1.0, 0.05, 0.05, dce, 0.0, 1.5, 0.0, 0.0)
	t.byCode["P"] = mk("Palm Oil", 10, 2.0, 0.08, 0.08, dce, 0.0, 2.5, 0.0, 0.0)
	t.byCode["PP"] = mk("Polypropylene", 5, 1.0, 0.05, 0.05, dce, 6e-05, 0.0, 3e-05, 0.0)
	t.byCode["V"] = mk("PVC", 5, 5.0, 0.05, 0.05, dce, 0.0, 2.0, 0.0, 0.0)
	t.byCode["Y"] = mk("Soybean Oil", 10, 2.0, 0.05, 0.05, dce, 0.0, 2.5, 0.0, 0.0)
	t.byCode["EB"] = mk("Styrene", 5, 1.0, 0.05, 0.05, dce, 0.0001, 0.0, 0.0001, 0.0)
	t.byCode["RR"] = mk("Japonica Rice", 10, 1.0, 0.05, 0.05, dce, 0.0001, 0.0, 0.0001, 0.0)
	t.byCode["PG"] = mk("LPG", 20, 1.0, 0.05, 0.05, dce, 0.0001, 0.0, 0.0001, 0.0)
	t.byCode["LH"] = mk("Live Hog", 16, 1.0, 0.2, 0.2, dce, 0.000201, 0.0, 0.000201, 0.0)

	czce := qtypes.CZCE
	t.byCode["AP"] = mk("Apple", 10, 1.0, 0.08, 0.08, czce, 0.0, 5.0, 0.0, 5.0)
	t.byCode["CF"] = mk("Cotton No.1", 5, 5.0, 0.05, 0.05, czce, 0.0, 4.3, 0.0, 0.0)
	t.byCode["CY"] = mk("Cotton Yarn", 5, 5.0, 0.05, 0.05, czce, 0.0, 4.0, 0.0, 0.0)
	t.byCode["FG"] = mk("Glass", 20, 1.0, 0.05, 0.05, czce, 0.0, 3.0, 0.0, 6.0)
	t.byCode["JR"] = mk("Japonica Paddy", 20, 1.0, 0.05, 0.05, czce, 0.0, 3.0, 0.0, 3.0)
	t.byCode["LR"] = mk("Late Indica Rice", 20, 1.0, 0.05, 0.05, czce, 0.0, 3.0, 0.0, 3.0)
	t.byCode["MA"] = mk("Methanol", 10, 1.0, 0.07, 0.07, czce, 0.0, 2.0, 0.0, 6.0)
	t.byCode["OI"] = mk("Rapeseed Oil", 10, 1.0, 0.05, 0.05, czce, 0.0, 2.0, 0.0, 0.0)
	t.byCode["PM"] = mk("Premium Wheat", 50, 1.0, 0.05, 0.05, czce, 0.0, 5.0, 0.0, 5.0)
	t.byCode["RI"] = mk("Early Indica Rice", 20, 1.0, 0.05, 0.05, czce, 0.0, 2.5, 0.0, 2.5)
	t.byCode["RM"] = mk("Rapeseed Meal", 10, 1.0, 0.06, 0.06, czce, 0.0, 1.5, 0.0, 0.0)
	t.byCode["RS"] = mk("Rapeseed", 10, 1.0, 0.2, 0.2, czce, 0.0, 2.0, 0.0, 2.0)
	t.byCode["SF"] = mk("Ferrosilicon", 5, 2.0, 0.07, 0.07, czce, 0.0, 3.0, 0.0, 9.0)
	t.byCode["SM"] = mk("Manganese Silicon", 5, 2.0, 0.07, 0.07, czce, 0.0, 3.0, 0.0, 6.0)
	t.byCode["SR"] = mk("White Sugar", 10, 1.0, 0.05, 0.05, czce, 0.0, 3.0, 0.0, 0.0)
	t.byCode["TA"] = mk("PTA", 5, 2.0, 0.06, 0.06, czce, 0.0, 3.0, 0.0, 0.0)
	t.byCode["WH"] = mk("Strong Gluten Wheat", 20, 1.0, 0.2, 0.2, czce, 0.0, 2.5, 0.0, 0.0)
	t.byCode["ZC"] = mk("Thermal Coal", 100, 0.2, 0.06, 0.06, czce, 0.0, 4.0, 0.0, 4.0)
	t.byCode["SA"] = mk("Soda Ash", 20, 1.0, 0.05, 0.05, czce, 0.0001, 0.0, 0.0001, 0.0)
	t.byCode["CJ"] = mk("Red Date", 5, 5.0, 0.07, 0.07, czce, 0.0, 3.0, 0.0, 3.0)
	t.byCode["UR"] = mk("Urea", 20, 1.0, 0.05, 0.05, czce, 0.0001, 0.0, 0.0001, 0.0)
	t.byCode["PF"] = mk("Short Fiber", 5, 1.0, 0.2, 0.2, czce, 0.000001, 3.0, 0.000001, 3.0)
	t.byCode["PK"] = mk("Peanut Kernel", 5, 1.0, 0.2, 0.2, czce, 0.000001, 4.0, 0.0, 4.0)
	t.byCode["PX"] = mk("Paraxylene", 5, 1.0, 0.12, 0.12, czce, 0.000101, 0.0, 0.000101, 0.0)
	t.byCode["SH"] = mk("Caustic Soda", 30, 1.0, 0.12, 0.12, czce, 0.000101, 0.0, 0.000101, 0.0)

	cffex := qtypes.CFFEX
	t.byCode["IC"] = mk("CSI 500 Index", 200, 0.2, 0.12, 0.12, cffex, 2.301e-05, 0.0, 0.00023, 0.0)
	t.byCode["IM"] = mk("CSI 1000 Index", 200, 0.2, 0.12, 0.12, cffex, 2.301e-05, 0.0, 0.00023, 0.0)
	t.byCode["IF"] = mk("CSI 300 Index", 300, 0.2, 0.1, 0.1, cffex, 2.301e-05, 0.0, 0.00023, 0.0)
	t.byCode["IH"] = mk("SSE 50 Index", 300, 0.2, 0.05, 0.05, cffex, 2.301e-05, 0.0, 0.00023, 0.0)
	t.byCode["T"] = mk("10Y Treasury Bond", 10000, 0.005, 0.03, 0.03, cffex, 0.0, 3.0, 0.0, 3.0)
	t.byCode["TF"] = mk("5Y Treasury Bond", 10000, 0.005, 0.02, 0.02, cffex, 0.0, 3.0, 0.0, 3.0)
	t.byCode["TS"] = mk("2Y Treasury Bond", 20000, 0.002, 0.01, 0.01, cffex, 0.0, 3.0, 0.0, 3.0)
	t.byCode["TL"] = mk("30Y Treasury Bond", 10000, 0.01, 0.05, 0.05, cffex, 0.0, 3.0, 0.0, 3.0)

	ine := qtypes.INE
	t.byCode["SC"] = mk("Crude Oil", 1000, 0.1, 0.1, 0.1, ine, 0.0, 20.0, 0.0, 0.0)
	t.byCode["NR"] = mk("No.20 Rubber", 10, 5.0, 0.09, 0.09, ine, 0.0001, 0.0, 0.0001, 0.0)
	t.byCode["LU"] = mk("Low Sulfur Fuel Oil", 10, 1.0, 0.08, 0.08, ine, 0.0001, 0.0, 0.0001, 0.0)
	t.byCode["BC"] = mk("International Copper", 5, 1.0, 0.2, 0.2, ine, 0.000011, 0.01, 0.000011, 0.01)
	t.byCode["EC"] = mk("Container Shipping Index", 50, 1.0, 0.22, 0.22, ine, 0.000601, 0.0, 0.000601, 0.0)

	gfex := qtypes.GFEX
	t.byCode["SI"] = mk("Industrial Silicon", 5, 1.0, 0.2, 0.2, gfex, 0.000001, 0.0, 0.0, 0.0)
	t.byCode["LC"] = mk("Lithium Carbonate", 1, 1.0, 0.2, 0.2, gfex, 0.000081, 0.0, 0.000081, 0.0)
}
