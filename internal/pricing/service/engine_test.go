package service

import (
	"errors"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	consumptiondomain "github.com/smallbiznis/utilitybill/internal/consumption/domain"
	"github.com/smallbiznis/utilitybill/internal/pricing/domain"
	"github.com/smallbiznis/utilitybill/internal/pricing/formula"
	tariffdomain "github.com/smallbiznis/utilitybill/internal/tariff/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func decPtr(s string) *decimal.Decimal {
	d := dec(s)
	return &d
}

func usage(zones map[string]string) consumptiondomain.Consumption {
	c := consumptiondomain.Consumption{MeterID: snowflake.ID(1)}
	for _, name := range []string{"", "day", "night", "peak"} {
		if q, ok := zones[name]; ok {
			c.Zones = append(c.Zones, consumptiondomain.ZoneConsumption{Zone: name, Quantity: dec(q)})
		}
	}
	return c
}

func january() domain.Context {
	return domain.Context{
		PeriodStart: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		PeriodEnd:   time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC),
		Unit:        "kWh",
		ServiceName: "Electricity",
	}
}

func TestPriceFlat(t *testing.T) {
	cfg := tariffdomain.Configuration{Flat: &tariffdomain.FlatRate{Rate: dec("0.20"), Currency: "EUR"}}

	items, err := New().Price(cfg, usage(map[string]string{"": "50"}), january())
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.True(t, items[0].Quantity.Equal(dec("50")))
	assert.True(t, items[0].UnitPrice.Equal(dec("0.20")))
	assert.Equal(t, "10.00", items[0].Total.StringFixed(2))
	assert.Equal(t, "EUR", items[0].Currency)
	assert.Equal(t, "kWh", items[0].Unit)
}

func TestPriceRoundsLineTotalOnce(t *testing.T) {
	cfg := tariffdomain.Configuration{Flat: &tariffdomain.FlatRate{Rate: dec("0.125"), Currency: "USD"}}

	items, err := New().Price(cfg, usage(map[string]string{"": "33.3"}), january())
	require.NoError(t, err)
	// 33.3 * 0.125 = 4.1625
	assert.Equal(t, "4.16", items[0].Total.StringFixed(2))
}

func TestPriceTimeOfUse(t *testing.T) {
	cfg := tariffdomain.Configuration{TimeOfUse: &tariffdomain.TimeOfUse{
		Currency: "USD",
		Zones: []tariffdomain.Zone{
			{ID: "day", Start: "07:00", End: "23:00", Rate: dec("0.30")},
			{ID: "night", Start: "23:00", End: "07:00", Rate: dec("0.10")},
		},
		WeekendLogic: "night_rate",
	}}

	items, err := New().Price(cfg, usage(map[string]string{"day": "200", "night": "50"}), january())
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "day", items[0].Zone)
	assert.Equal(t, "60.00", items[0].Total.StringFixed(2))
	assert.Equal(t, "night", items[1].Zone)
	assert.Equal(t, "5.00", items[1].Total.StringFixed(2))
	assert.Equal(t, "night_rate", items[1].Details["weekend_logic"])

	_, err = New().Price(cfg, usage(map[string]string{"peak": "5"}), january())
	assert.True(t, errors.Is(err, domain.ErrUnpricedZone))

	cfg.TimeOfUse.Zones = append(cfg.TimeOfUse.Zones, tariffdomain.Zone{ID: tariffdomain.DefaultZone, Start: "00:00", End: "23:59", Rate: dec("0.20")})
	items, err = New().Price(cfg, usage(map[string]string{"peak": "5"}), january())
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "1.00", items[0].Total.StringFixed(2))
	assert.Equal(t, tariffdomain.DefaultZone, items[0].Details["tariff_zone"])
}

func TestPriceTieredGraduated(t *testing.T) {
	cfg := tariffdomain.Configuration{Tiered: &tariffdomain.Tiered{
		Currency: "USD",
		Tiers: []tariffdomain.Tier{
			{UpTo: decPtr("100"), Rate: dec("0.10")},
			{UpTo: decPtr("300"), Rate: dec("0.15")},
			{Rate: dec("0.20")},
		},
	}}

	items, err := New().Price(cfg, usage(map[string]string{"": "250"}), january())
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.True(t, items[0].Quantity.Equal(dec("100")))
	assert.Equal(t, "10.00", items[0].Total.StringFixed(2))
	assert.True(t, items[1].Quantity.Equal(dec("150")))
	assert.Equal(t, "22.50", items[1].Total.StringFixed(2))

	items, err = New().Price(cfg, usage(map[string]string{"": "450"}), january())
	require.NoError(t, err)
	require.Len(t, items, 3)
	assert.True(t, items[2].Quantity.Equal(dec("150")))
	assert.Equal(t, "30.00", items[2].Total.StringFixed(2))
}

func TestPriceTieredRejectsConsumptionAboveLastBound(t *testing.T) {
	cfg := tariffdomain.Configuration{Tiered: &tariffdomain.Tiered{
		Currency: "USD",
		Tiers: []tariffdomain.Tier{
			{UpTo: decPtr("100"), Rate: dec("0.10")},
			{UpTo: decPtr("300"), Rate: dec("0.20")},
		},
	}}

	items, err := New().Price(cfg, usage(map[string]string{"": "500"}), january())
	assert.ErrorIs(t, err, domain.ErrTiersExhausted)
	assert.Nil(t, items)

	items, err = New().Price(cfg, usage(map[string]string{"": "300"}), january())
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "40.00", items[1].Total.StringFixed(2))
}

func TestPriceFormula(t *testing.T) {
	cfg := tariffdomain.Configuration{Formula: &tariffdomain.Formula{
		Currency:   "USD",
		Expression: "consumption * rate + month",
		Variables:  map[string]decimal.Decimal{"rate": dec("0.2")},
	}}

	items, err := New().Price(cfg, usage(map[string]string{"": "50"}), january())
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "11.00", items[0].Total.StringFixed(2))
	assert.True(t, items[0].Quantity.Equal(dec("50")))
	assert.True(t, items[0].UnitPrice.Equal(dec("0.22")))

	pctx := january()
	pctx.FormulaOverride = "consumption * rate + surcharge"
	pctx.Variables = map[string]decimal.Decimal{"surcharge": dec("2.5"), "rate": dec("0.1")}
	items, err = New().Price(cfg, usage(map[string]string{"": "50"}), pctx)
	require.NoError(t, err)
	assert.Equal(t, "7.50", items[0].Total.StringFixed(2))
}

func TestPriceFormulaRejectsUnsafeExpression(t *testing.T) {
	cfg := tariffdomain.Configuration{Formula: &tariffdomain.Formula{Currency: "USD", Expression: "consumption"}}
	pctx := january()
	pctx.FormulaOverride = "eval(consumption)"

	_, err := New().Price(cfg, usage(map[string]string{"": "50"}), pctx)
	require.Error(t, err)
	assert.True(t, errors.Is(err, formula.ErrUnsafeFormula))
}

func TestPriceZeroConsumption(t *testing.T) {
	cfg := tariffdomain.Configuration{Flat: &tariffdomain.FlatRate{Rate: dec("0.20"), Currency: "USD"}}

	items, err := New().Price(cfg, usage(map[string]string{"": "0"}), january())
	require.NoError(t, err)
	assert.Empty(t, items)

	pctx := january()
	pctx.IncludeZeroConsumption = true
	items, err = New().Price(cfg, usage(map[string]string{"": "0"}), pctx)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.True(t, items[0].Total.IsZero())
}

func TestFixedCharge(t *testing.T) {
	engine := New()

	_, ok := engine.FixedCharge(january(), "USD")
	assert.False(t, ok)

	cases := []struct {
		name  string
		start time.Time
		end   time.Time
		want  string
	}{
		{"calendar month", time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC), "12.00"},
		{"month boundary to boundary", time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC), "12.00"},
		{"half month", time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), time.Date(2024, 1, 16, 0, 0, 0, 0, time.UTC), "5.81"},
		{"longer than a month", time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), time.Date(2024, 2, 20, 0, 0, 0, 0, time.UTC), "12.00"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			pctx := domain.Context{PeriodStart: tc.start, PeriodEnd: tc.end, FixedFee: decPtr("12"), ServiceName: "Water"}
			item, ok := engine.FixedCharge(pctx, "USD")
			require.True(t, ok)
			assert.Equal(t, tc.want, item.Total.StringFixed(2))
			assert.Equal(t, "Water monthly fee", item.Description)
		})
	}
}
