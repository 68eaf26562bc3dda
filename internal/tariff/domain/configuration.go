package domain

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/smallbiznis/utilitybill/internal/pricing/formula"
)

type Kind string

const (
	KindFlat      Kind = "flat"
	KindTimeOfUse Kind = "time_of_use"
	KindTiered    Kind = "tiered"
	KindFormula   Kind = "formula"
)

// DefaultZone prices meter zones that have no zone of their own in a
// time-of-use tariff.
const DefaultZone = "default"

type FlatRate struct {
	Rate     decimal.Decimal `json:"rate"`
	Currency string          `json:"currency"`
}

type Zone struct {
	ID    string          `json:"id"`
	Start string          `json:"start"`
	End   string          `json:"end"`
	Rate  decimal.Decimal `json:"rate"`
}

type TimeOfUse struct {
	Currency     string `json:"currency"`
	Zones        []Zone `json:"zones"`
	WeekendLogic string `json:"weekend_logic,omitempty"`
}

// ZoneRate returns the zone priced for meterZone, falling back to the
// default zone.
func (t *TimeOfUse) ZoneRate(meterZone string) (Zone, bool) {
	var fallback *Zone
	for i := range t.Zones {
		if t.Zones[i].ID == meterZone && meterZone != "" {
			return t.Zones[i], true
		}
		if t.Zones[i].ID == DefaultZone {
			fallback = &t.Zones[i]
		}
	}
	if fallback != nil {
		return *fallback, true
	}
	return Zone{}, false
}

// Tier is a band of consumption. UpTo is the inclusive upper bound of the
// band; nil means unbounded.
type Tier struct {
	UpTo *decimal.Decimal `json:"up_to,omitempty"`
	Rate decimal.Decimal  `json:"rate"`
}

type Tiered struct {
	Currency string `json:"currency"`
	Tiers    []Tier `json:"tiers"`
}

type Formula struct {
	Currency   string                     `json:"currency"`
	Expression string                     `json:"expression"`
	Variables  map[string]decimal.Decimal `json:"variables,omitempty"`
}

// Configuration is the pricing rule of a tariff. Exactly one case is set.
type Configuration struct {
	Flat      *FlatRate
	TimeOfUse *TimeOfUse
	Tiered    *Tiered
	Formula   *Formula
}

func (c Configuration) Kind() Kind {
	switch {
	case c.Flat != nil:
		return KindFlat
	case c.TimeOfUse != nil:
		return KindTimeOfUse
	case c.Tiered != nil:
		return KindTiered
	case c.Formula != nil:
		return KindFormula
	default:
		return ""
	}
}

func (c Configuration) Currency() string {
	switch c.Kind() {
	case KindFlat:
		return c.Flat.Currency
	case KindTimeOfUse:
		return c.TimeOfUse.Currency
	case KindTiered:
		return c.Tiered.Currency
	case KindFormula:
		return c.Formula.Currency
	default:
		return ""
	}
}

var (
	currencyPattern = regexp.MustCompile(`^[A-Z]{3}$`)
	clockPattern    = regexp.MustCompile(`^([01]\d|2[0-3]):[0-5]\d$`)
)

// Validate checks the configuration is internally consistent.
func (c Configuration) Validate() error {
	set := 0
	for _, ok := range []bool{c.Flat != nil, c.TimeOfUse != nil, c.Tiered != nil, c.Formula != nil} {
		if ok {
			set++
		}
	}
	if set != 1 {
		return invalidConfiguration("exactly one pricing rule must be set")
	}
	if !currencyPattern.MatchString(c.Currency()) {
		return invalidConfiguration("currency must be a 3-letter ISO code, got %q", c.Currency())
	}

	switch c.Kind() {
	case KindFlat:
		if c.Flat.Rate.IsNegative() {
			return invalidConfiguration("rate must not be negative")
		}
	case KindTimeOfUse:
		if len(c.TimeOfUse.Zones) == 0 {
			return invalidConfiguration("time of use tariff needs at least one zone")
		}
		seen := make(map[string]struct{}, len(c.TimeOfUse.Zones))
		for _, z := range c.TimeOfUse.Zones {
			if strings.TrimSpace(z.ID) == "" {
				return invalidConfiguration("zone id is required")
			}
			if _, dup := seen[z.ID]; dup {
				return invalidConfiguration("duplicate zone %q", z.ID)
			}
			seen[z.ID] = struct{}{}
			if !clockPattern.MatchString(z.Start) || !clockPattern.MatchString(z.End) {
				return invalidConfiguration("zone %q bounds must be HH:MM", z.ID)
			}
			if z.Rate.IsNegative() {
				return invalidConfiguration("zone %q rate must not be negative", z.ID)
			}
		}
	case KindTiered:
		tiers := c.Tiered.Tiers
		if len(tiers) == 0 {
			return invalidConfiguration("tiered tariff needs at least one tier")
		}
		prev := decimal.Zero
		for i, tier := range tiers {
			if tier.Rate.IsNegative() {
				return invalidConfiguration("tier %d rate must not be negative", i+1)
			}
			last := i == len(tiers)-1
			if tier.UpTo == nil {
				if !last {
					return invalidConfiguration("only the last tier may be open-ended")
				}
				continue
			}
			if last {
				return invalidConfiguration("the last tier must be open-ended")
			}
			if !tier.UpTo.GreaterThan(prev) {
				return invalidConfiguration("tier bounds must be ascending")
			}
			prev = *tier.UpTo
		}
	case KindFormula:
		if _, err := formula.Parse(c.Formula.Expression); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidConfiguration, err)
		}
	}
	return nil
}

func invalidConfiguration(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidConfiguration, fmt.Sprintf(format, args...))
}

type configurationEnvelope struct {
	Type Kind `json:"type"`
}

func (c Configuration) MarshalJSON() ([]byte, error) {
	var body any
	switch c.Kind() {
	case KindFlat:
		body = struct {
			Type Kind `json:"type"`
			*FlatRate
		}{KindFlat, c.Flat}
	case KindTimeOfUse:
		body = struct {
			Type Kind `json:"type"`
			*TimeOfUse
		}{KindTimeOfUse, c.TimeOfUse}
	case KindTiered:
		body = struct {
			Type Kind `json:"type"`
			*Tiered
		}{KindTiered, c.Tiered}
	case KindFormula:
		body = struct {
			Type Kind `json:"type"`
			*Formula
		}{KindFormula, c.Formula}
	default:
		return []byte("null"), nil
	}
	return json.Marshal(body)
}

func (c *Configuration) UnmarshalJSON(data []byte) error {
	*c = Configuration{}
	if string(data) == "null" {
		return nil
	}
	var env configurationEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return err
	}
	switch env.Type {
	case KindFlat:
		c.Flat = &FlatRate{}
		return json.Unmarshal(data, c.Flat)
	case KindTimeOfUse:
		c.TimeOfUse = &TimeOfUse{}
		return json.Unmarshal(data, c.TimeOfUse)
	case KindTiered:
		c.Tiered = &Tiered{}
		return json.Unmarshal(data, c.Tiered)
	case KindFormula:
		c.Formula = &Formula{}
		return json.Unmarshal(data, c.Formula)
	default:
		return fmt.Errorf("%w: unknown pricing type %q", ErrInvalidConfiguration, env.Type)
	}
}

// Value stores the configuration as JSON.
func (c Configuration) Value() (driver.Value, error) {
	b, err := c.MarshalJSON()
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (c *Configuration) Scan(value any) error {
	switch v := value.(type) {
	case nil:
		*c = Configuration{}
		return nil
	case []byte:
		return c.UnmarshalJSON(v)
	case string:
		return c.UnmarshalJSON([]byte(v))
	default:
		return errors.New("tariff configuration: unsupported scan type")
	}
}

// Snapshot returns the configuration as a generic map for embedding into
// invoice item snapshots.
func (c Configuration) Snapshot() map[string]any {
	b, err := c.MarshalJSON()
	if err != nil {
		return nil
	}
	var out map[string]any
	if err := json.Unmarshal(b, &out); err != nil {
		return nil
	}
	return out
}
