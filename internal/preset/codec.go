package preset

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/shopspring/decimal"

	"qaultra-core/pkg/qtypes"
)

// jsonPreset is the on-disk representation of one Preset row. Decimal
// fields serialize as strings to avoid floating-point round-trip loss.
type jsonPreset struct {
	Code                     string `json:"code"`
	Name                     string `json:"name"`
	Exchange                 string `json:"exchange"`
	UnitTable                int64  `json:"unit_table"`
	PriceTick                string `json:"price_tick"`
	BuyFrozenCoeff           string `json:"buy_frozen_coeff"`
	SellFrozenCoeff          string `json:"sell_frozen_coeff"`
	CommissionPerAmount      string `json:"commission_per_amount"`
	CommissionPerVolume      string `json:"commission_per_volume"`
	CommissionTodayPerAmount string `json:"commission_today_per_amount"`
	CommissionTodayPerVolume string `json:"commission_today_per_volume"`
}

// LoadFromFile reads a JSON array of preset rows from path and registers
// each one, overwriting any default with the same code. Defaults not
// present in the file are left untouched.
func (t *Table) LoadFromFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read preset file: %w", err)
	}

	var rows []jsonPreset
	if err := json.Unmarshal(data, &rows); err != nil {
		return fmt.Errorf("unmarshal preset file: %w", err)
	}

	for _, r := range rows {
		p, err := r.toPreset()
		if err != nil {
			return fmt.Errorf("preset %q: %w", r.Code, err)
		}
		t.Add(r.Code, p)
	}
	return nil
}

// SaveToFile writes every registered preset to path as a JSON array,
// atomically (write to a .tmp file, then rename over the target).
func (t *Table) SaveToFile(path string) error {
	rows := make([]jsonPreset, 0, len(t.byCode))
	for code, p := range t.byCode {
		rows = append(rows, jsonPresetOf(code, p))
	}

	data, err := json.MarshalIndent(rows, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal preset table: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create preset dir: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write preset file: %w", err)
	}
	return os.Rename(tmp, path)
}

func jsonPresetOf(code string, p Preset) jsonPreset {
	return jsonPreset{
		Code:                     code,
		Name:                     p.Name,
		Exchange:                 string(p.Exchange),
		UnitTable:                p.UnitTable,
		PriceTick:                p.PriceTick.String(),
		BuyFrozenCoeff:           p.BuyFrozenCoeff.String(),
		SellFrozenCoeff:          p.SellFrozenCoeff.String(),
		CommissionPerAmount:      p.CommissionPerAmount.String(),
		CommissionPerVolume:      p.CommissionPerVolume.String(),
		CommissionTodayPerAmount: p.CommissionTodayPerAmount.String(),
		CommissionTodayPerVolume: p.CommissionTodayPerVolume.String(),
	}
}

func (r jsonPreset) toPreset() (Preset, error) {
	priceTick, err := decimal.NewFromString(r.PriceTick)
	if err != nil {
		return Preset{}, fmt.Errorf("price_tick: %w", err)
	}
	buyFrozen, err := decimal.NewFromString(r.BuyFrozenCoeff)
	if err != nil {
		return Preset{}, fmt.Errorf("buy_frozen_coeff: %w", err)
	}
	sellFrozen, err := decimal.NewFromString(r.SellFrozenCoeff)
	if err != nil {
		return Preset{}, fmt.Errorf("sell_frozen_coeff: %w", err)
	}
	perAmount, err := decimal.NewFromString(r.CommissionPerAmount)
	if err != nil {
		return Preset{}, fmt.Errorf("commission_per_amount: %w", err)
	}
	perVolume, err := decimal.NewFromString(r.CommissionPerVolume)
	if err != nil {
		return Preset{}, fmt.Errorf("commission_per_volume: %w", err)
	}
	todayPerAmount, err := decimal.NewFromString(r.CommissionTodayPerAmount)
	if err != nil {
		return Preset{}, fmt.Errorf("commission_today_per_amount: %w", err)
	}
	todayPerVolume, err := decimal.NewFromString(r.CommissionTodayPerVolume)
	if err != nil {
		return Preset{}, fmt.Errorf("commission_today_per_volume: %w", err)
	}

	return Preset{
		Name:                     r.Name,
		Exchange:                 qtypes.ExchangeCode(r.Exchange),
		UnitTable:                r.UnitTable,
		PriceTick:                priceTick,
		BuyFrozenCoeff:           buyFrozen,
		SellFrozenCoeff:          sellFrozen,
		CommissionPerAmount:      perAmount,
		CommissionPerVolume:      perVolume,
		CommissionTodayPerAmount: todayPerAmount,
		CommissionTodayPerVolume: todayPerVolume,
	}, nil
}
