package config

import (
	"errors"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

const (
	ZeroConsumptionOmit    = "omit"
	ZeroConsumptionInclude = "include"
)

// BillingConfig holds the tunables of the billing pipeline.
type BillingConfig struct {
	MaxDailyConsumptionRate decimal.Decimal
	InvoiceDueDays          int
	ZeroConsumption         string
	DefaultCurrency         string
	InvoiceNumberTemplate   string
}

// IncludeZeroConsumption reports whether zero-quantity lines are kept on invoices.
func (c BillingConfig) IncludeZeroConsumption() bool {
	return c.ZeroConsumption == ZeroConsumptionInclude
}

func DefaultBillingConfig() BillingConfig {
	return BillingConfig{
		MaxDailyConsumptionRate: decimal.NewFromInt(1000),
		InvoiceDueDays:          14,
		ZeroConsumption:         ZeroConsumptionOmit,
		DefaultCurrency:         "USD",
		InvoiceNumberTemplate:   "INV-{SEQ6}",
	}
}

type BillingConfigHolder struct {
	current atomic.Value // holds BillingConfig
}

// NewStaticBillingConfigHolder returns a holder that never reloads.
func NewStaticBillingConfigHolder(cfg BillingConfig) *BillingConfigHolder {
	holder := &BillingConfigHolder{}
	holder.current.Store(cfg)
	return holder
}

func NewBillingConfigHolder(log *zap.Logger) (*BillingConfigHolder, error) {
	v := viper.New()

	v.SetConfigName("billing")
	v.SetConfigType("yml")
	v.AddConfigPath("/etc/utilitybill")
	v.AddConfigPath(".")

	v.SetEnvPrefix("UTILITYBILL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultBillingConfig()
	v.SetDefault("billing.max_daily_consumption_rate", defaults.MaxDailyConsumptionRate.String())
	v.SetDefault("billing.invoice_due_days", defaults.InvoiceDueDays)
	v.SetDefault("billing.zero_consumption", defaults.ZeroConsumption)
	v.SetDefault("billing.default_currency", defaults.DefaultCurrency)
	v.SetDefault("billing.invoice_number_template", defaults.InvoiceNumberTemplate)

	fileFound := true
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		fileFound = false
	}

	cfg, err := decodeBillingConfig(v)
	if err != nil {
		return nil, err
	}

	holder := NewStaticBillingConfigHolder(cfg)
	log = log.Named("billing.config")

	if fileFound && getenvBool("BILLING_CONFIG_WATCH", true) {
		v.WatchConfig()
		v.OnConfigChange(func(e fsnotify.Event) {
			updated, err := decodeBillingConfig(v)
			if err != nil {
				log.Warn("invalid billing config ignored", zap.String("file", e.Name), zap.Error(err))
				return
			}
			holder.current.Store(updated)
			log.Info("billing config reloaded", zap.String("file", e.Name))
		})
	}

	return holder, nil
}

func (h *BillingConfigHolder) Get() BillingConfig {
	return h.current.Load().(BillingConfig)
}

func decodeBillingConfig(v *viper.Viper) (BillingConfig, error) {
	// Leaf lookups so UTILITYBILL_BILLING_* env vars take precedence over the file.
	rate, err := decimal.NewFromString(strings.TrimSpace(v.GetString("billing.max_daily_consumption_rate")))
	if err != nil {
		return BillingConfig{}, fmt.Errorf("billing.max_daily_consumption_rate: %w", err)
	}
	cfg := BillingConfig{
		MaxDailyConsumptionRate: rate,
		InvoiceDueDays:          v.GetInt("billing.invoice_due_days"),
		ZeroConsumption:         strings.ToLower(strings.TrimSpace(v.GetString("billing.zero_consumption"))),
		DefaultCurrency:         strings.ToUpper(strings.TrimSpace(v.GetString("billing.default_currency"))),
		InvoiceNumberTemplate:   strings.TrimSpace(v.GetString("billing.invoice_number_template")),
	}
	if cfg.InvoiceNumberTemplate == "" {
		cfg.InvoiceNumberTemplate = DefaultBillingConfig().InvoiceNumberTemplate
	}
	if err := validateBillingConfig(cfg); err != nil {
		return BillingConfig{}, err
	}
	return cfg, nil
}

func validateBillingConfig(cfg BillingConfig) error {
	if !cfg.MaxDailyConsumptionRate.IsPositive() {
		return errors.New("billing.max_daily_consumption_rate must be positive")
	}
	if cfg.InvoiceDueDays < 0 {
		return errors.New("billing.invoice_due_days cannot be negative")
	}
	switch cfg.ZeroConsumption {
	case ZeroConsumptionOmit, ZeroConsumptionInclude:
	default:
		return fmt.Errorf("billing.zero_consumption must be %q or %q", ZeroConsumptionOmit, ZeroConsumptionInclude)
	}
	if len(cfg.DefaultCurrency) != 3 {
		return errors.New("billing.default_currency must be a 3-letter code")
	}
	if !strings.Contains(cfg.InvoiceNumberTemplate, "{SEQ") {
		return errors.New("billing.invoice_number_template must contain a {SEQ} token")
	}
	return nil
}
