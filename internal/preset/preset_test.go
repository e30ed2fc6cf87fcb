package preset

import (
	"testing"

	"github.com/shopspring/decimal"

	"qaultra-core/pkg/qtypes"
)

func TestGetStripsContractMonth(t *testing.T) {
	t.Parallel()
	table := NewTable()

	tests := []struct {
		code string
		want string
	}{
		{"AG2301", "AG"},
		{"rb2405", "RB"},
		{"IF2401", "IF"},
		{"SC2406L8", "SC"},
		{"CU2407L9", "CU"},
	}
	for _, tt := range tests {
		got := table.Get(tt.code)
		want := table.Get(tt.want)
		if got.Name != want.Name || got.Exchange != want.Exchange {
			t.Errorf("Get(%q) = %+v, want preset for %q = %+v", tt.code, got, tt.want, want)
		}
	}
}

func TestGetUnknownSymbolReturnsDefaultStockPreset(t *testing.T) {
	t.Parallel()
	table := NewTable()

	p := table.Get("600000")
	if p.Exchange != qtypes.STOCK {
		t.Fatalf("expected STOCK exchange, got %v", p.Exchange)
	}
	if p.UnitTable != 1 {
		t.Fatalf("expected unit_table 1, got %d", p.UnitTable)
	}
	if !p.CommissionPerAmount.Equal(decimal.NewFromFloat(0.00032)) {
		t.Fatalf("expected default commission 0.00032, got %s", p.CommissionPerAmount)
	}
}

func TestByExchange(t *testing.T) {
	t.Parallel()
	table := NewTable()

	shfe := table.ByExchange(qtypes.SHFE)
	if len(shfe) == 0 {
		t.Fatal("expected at least one SHFE preset")
	}
	for _, p := range shfe {
		if p.Exchange != qtypes.SHFE {
			t.Errorf("ByExchange(SHFE) returned non-SHFE preset %+v", p)
		}
	}
}

func TestCommissionIsAdditive(t *testing.T) {
	t.Parallel()
	table := NewTable()
	p := table.Get("IF2401")

	price := decimal.NewFromInt(4000)
	vol := decimal.NewFromInt(2)

	// IF: per_amount=2.301e-05, per_vol=0 -> additive formula still applies.
	want := p.CommissionPerVolume.Mul(vol).Add(p.CommissionPerAmount.Mul(p.MarketValue(price, vol)))
	got := p.Commission(price, vol)
	if !got.Equal(want) {
		t.Fatalf("Commission() = %s, want %s", got, want)
	}
}

func TestTaxOnlyAppliesToStockDisposal(t *testing.T) {
	t.Parallel()
	table := NewTable()
	stock := table.Get("600000")
	futures := table.Get("RB2405")

	price := decimal.NewFromInt(10)
	vol := decimal.NewFromInt(100)

	if tax := stock.Tax(price, vol, qtypes.TowardsSell); tax.IsZero() {
		t.Fatal("expected non-zero tax on stock sell")
	}
	if tax := stock.Tax(price, vol, qtypes.TowardsBuy); !tax.IsZero() {
		t.Fatalf("expected zero tax on stock buy, got %s", tax)
	}
	if tax := futures.Tax(price, vol, qtypes.TowardsSellClose); !tax.IsZero() {
		t.Fatalf("expected zero tax on futures close, got %s", tax)
	}
}

func TestFrozenMoney(t *testing.T) {
	t.Parallel()
	table := NewTable()
	p := table.Get("IF2401")

	price := decimal.NewFromInt(4000)
	vol := decimal.NewFromInt(2)

	want := p.MarketValue(price, vol).Mul(p.BuyFrozenCoeff)
	if got := p.FrozenMoney(price, vol); !got.Equal(want) {
		t.Fatalf("FrozenMoney() = %s, want %s", got, want)
	}
}
