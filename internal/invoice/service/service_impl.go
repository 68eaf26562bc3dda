package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	auditdomain "github.com/smallbiznis/utilitybill/internal/audit/domain"
	catalogdomain "github.com/smallbiznis/utilitybill/internal/catalog/domain"
	"github.com/smallbiznis/utilitybill/internal/clock"
	"github.com/smallbiznis/utilitybill/internal/config"
	consumptiondomain "github.com/smallbiznis/utilitybill/internal/consumption/domain"
	invoicedomain "github.com/smallbiznis/utilitybill/internal/invoice/domain"
	"github.com/smallbiznis/utilitybill/internal/invoice/format"
	meterdomain "github.com/smallbiznis/utilitybill/internal/meter/domain"
	"github.com/smallbiznis/utilitybill/internal/observability/logger"
	"github.com/smallbiznis/utilitybill/internal/observability/metrics"
	"github.com/smallbiznis/utilitybill/internal/observability/tracing"
	pricingdomain "github.com/smallbiznis/utilitybill/internal/pricing/domain"
	"github.com/smallbiznis/utilitybill/internal/pricing/formula"
	propertydomain "github.com/smallbiznis/utilitybill/internal/property/domain"
	serviceconfigdomain "github.com/smallbiznis/utilitybill/internal/serviceconfig/domain"
	tariffdomain "github.com/smallbiznis/utilitybill/internal/tariff/domain"
	"github.com/smallbiznis/utilitybill/pkg/validation"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB           *gorm.DB
	Log          *zap.Logger
	GenID        *snowflake.Node
	Clock        clock.Clock
	Repo         invoicedomain.Repository
	PropertyRepo propertydomain.Repository
	CatalogRepo  catalogdomain.Repository
	MeterRepo    meterdomain.Repository
	ConfigRepo   serviceconfigdomain.Repository
	Resolver     tariffdomain.Resolver
	Calculator   consumptiondomain.Calculator
	Engine       pricingdomain.Engine
	Billing      *config.BillingConfigHolder `optional:"true"`
	Metrics      *metrics.Metrics            `optional:"true"`
	Events       auditdomain.Emitter         `optional:"true"`
}

type Service struct {
	db           *gorm.DB
	log          *zap.Logger
	genID        *snowflake.Node
	clock        clock.Clock
	repo         invoicedomain.Repository
	propertyRepo propertydomain.Repository
	catalogRepo  catalogdomain.Repository
	meterRepo    meterdomain.Repository
	configRepo   serviceconfigdomain.Repository
	resolver     tariffdomain.Resolver
	calculator   consumptiondomain.Calculator
	engine       pricingdomain.Engine
	billing      *config.BillingConfigHolder
	metrics      *metrics.Metrics
	events       auditdomain.Emitter
}

func New(p Params) invoicedomain.Service {
	return &Service{
		db:           p.DB,
		log:          p.Log.Named("invoice.service"),
		genID:        p.GenID,
		clock:        p.Clock,
		repo:         p.Repo,
		propertyRepo: p.PropertyRepo,
		catalogRepo:  p.CatalogRepo,
		meterRepo:    p.MeterRepo,
		configRepo:   p.ConfigRepo,
		resolver:     p.Resolver,
		calculator:   p.Calculator,
		engine:       p.Engine,
		billing:      p.Billing,
		metrics:      p.Metrics,
		events:       p.Events,
	}
}

func (s *Service) GenerateInvoice(ctx context.Context, req invoicedomain.GenerateRequest) (_ *invoicedomain.Invoice, err error) {
	started := time.Now()
	ctx, span := tracing.Start(ctx, "invoice.generate",
		attribute.String("org_id", req.OrgID.String()),
		attribute.String("tenant_id", req.TenantID.String()),
	)
	defer func() { tracing.End(span, err) }()

	req.PerformedBy = strings.TrimSpace(req.PerformedBy)
	if err = validation.Struct(req); err != nil {
		return nil, err
	}
	periodStart := clock.DateOf(req.PeriodStart)
	periodEnd := clock.DateOf(req.PeriodEnd)
	if !periodEnd.After(periodStart) {
		return nil, invoicedomain.ErrInvalidPeriod
	}

	runID := uuid.NewString()
	log := logger.WithActor(logger.WithOrg(logger.WithContext(ctx, s.log), req.OrgID), req.PerformedBy).With(
		zap.String("run_id", runID),
		zap.String("tenant_id", req.TenantID.String()),
		zap.String("period", periodStart.Format(time.DateOnly)+".."+periodEnd.Format(time.DateOnly)),
	)
	billing := s.billingConfig()

	var (
		invoice *invoicedomain.Invoice
		items   []invoicedomain.InvoiceItem
	)
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		found, err := s.repo.LockTenant(ctx, tx, req.OrgID, req.TenantID)
		if err != nil {
			return err
		}
		if !found {
			return invoicedomain.ErrTenantNotFound
		}
		tenant, err := s.propertyRepo.FindTenantByID(ctx, tx, req.OrgID, req.TenantID)
		if err != nil {
			return err
		}
		if tenant == nil {
			return invoicedomain.ErrTenantNotFound
		}
		property, err := s.propertyRepo.FindPropertyByID(ctx, tx, req.OrgID, tenant.PropertyID)
		if err != nil {
			return err
		}
		if property == nil {
			return invoicedomain.ErrPropertyNotFound
		}

		lines, err := s.collectLines(ctx, tx, billRun{
			orgID:       req.OrgID,
			property:    property,
			periodStart: periodStart,
			periodEnd:   periodEnd,
			billing:     billing,
		})
		if err != nil {
			return err
		}

		currency, err := invoiceCurrency(lines, billing.DefaultCurrency)
		if err != nil {
			return err
		}
		total := lo.Reduce(lines, func(sum decimal.Decimal, l invoicedomain.InvoiceItem, _ int) decimal.Decimal {
			return sum.Add(l.Total)
		}, decimal.Zero)

		now := s.clock.Now().UTC()
		sequence, err := s.repo.NextSequence(ctx, tx, req.OrgID, now)
		if err != nil {
			return err
		}

		number, err := format.InvoiceNumber(billing.InvoiceNumberTemplate, periodEnd, sequence)
		if err != nil {
			return err
		}

		invoice = &invoicedomain.Invoice{
			ID:                 s.genID.Generate(),
			OrgID:              req.OrgID,
			TenantID:           tenant.ID,
			PropertyID:         property.ID,
			Sequence:           sequence,
			InvoiceNumber:      number,
			BillingPeriodStart: periodStart,
			BillingPeriodEnd:   periodEnd,
			DueDate:            periodEnd.AddDate(0, 0, billing.InvoiceDueDays),
			Status:             invoicedomain.InvoiceStatusDraft,
			TotalAmount:        total,
			Currency:           currency,
			Metadata: datatypes.JSONMap{
				"generation_run_id": runID,
				"generated_by":      req.PerformedBy,
			},
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := s.repo.CreateInvoice(ctx, tx, invoice); err != nil {
			return err
		}

		items = make([]invoicedomain.InvoiceItem, 0, len(lines))
		for _, l := range lines {
			item := l
			item.ID = s.genID.Generate()
			item.OrgID = req.OrgID
			item.InvoiceID = invoice.ID
			item.CreatedAt = now
			items = append(items, item)
		}
		return s.repo.CreateInvoiceItems(ctx, tx, items)
	})
	if err != nil {
		s.metrics.RecordInvoiceFailed(ctx, failureReason(err), time.Since(started))
		log.Warn("invoice generation failed", zap.Error(err))
		return nil, err
	}

	s.metrics.RecordInvoiceGenerated(ctx, len(items), time.Since(started))
	log.Info("invoice generated",
		zap.String("invoice_id", invoice.ID.String()),
		zap.String("invoice_number", invoice.InvoiceNumber),
		zap.Int("items", len(items)),
		zap.String("total", invoice.TotalAmount.StringFixed(2)),
		zap.String("currency", invoice.Currency),
	)

	evt := auditdomain.NewEvent(invoice.OrgID, auditdomain.ActionInvoiceGenerated, "invoice", invoice.ID, req.PerformedBy, invoice.CreatedAt)
	evt.After = invoiceState(invoice)
	evt.After["item_count"] = len(items)
	evt.After["generation_run_id"] = runID
	s.emit(ctx, evt)

	return invoice, nil
}

func (s *Service) FinalizeInvoice(ctx context.Context, orgID, invoiceID snowflake.ID, performedBy string) (*invoicedomain.Invoice, error) {
	if orgID == 0 {
		return nil, invoicedomain.ErrInvalidOrganization
	}
	performedBy = strings.TrimSpace(performedBy)

	var invoice *invoicedomain.Invoice
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		current, err := s.repo.FindInvoiceByID(ctx, tx, orgID, invoiceID, true)
		if err != nil {
			return err
		}
		if current == nil {
			return invoicedomain.ErrInvoiceNotFound
		}
		if current.Status != invoicedomain.InvoiceStatusDraft {
			return invoicedomain.ErrInvoiceNotDraft
		}

		now := s.clock.Now().UTC()
		if err := s.repo.MarkFinalized(ctx, tx, orgID, invoiceID, now); err != nil {
			return err
		}
		current.Status = invoicedomain.InvoiceStatusFinalized
		current.FinalizedAt = &now
		current.UpdatedAt = now
		invoice = current
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.WithActor(logger.WithOrg(s.log, orgID), performedBy).Info("invoice finalized",
		zap.String("invoice_id", invoice.ID.String()),
		zap.String("invoice_number", invoice.InvoiceNumber),
	)

	evt := auditdomain.NewEvent(orgID, auditdomain.ActionInvoiceFinalized, "invoice", invoice.ID, performedBy, *invoice.FinalizedAt)
	evt.Before = map[string]any{"status": string(invoicedomain.InvoiceStatusDraft)}
	evt.After = invoiceState(invoice)
	s.emit(ctx, evt)

	return invoice, nil
}

func (s *Service) GetInvoice(ctx context.Context, orgID, invoiceID snowflake.ID) (*invoicedomain.Invoice, error) {
	if orgID == 0 {
		return nil, invoicedomain.ErrInvalidOrganization
	}
	invoice, err := s.repo.FindInvoiceByID(ctx, s.db, orgID, invoiceID, false)
	if err != nil {
		return nil, err
	}
	if invoice == nil {
		return nil, invoicedomain.ErrInvoiceNotFound
	}
	return invoice, nil
}

func (s *Service) ListItems(ctx context.Context, orgID, invoiceID snowflake.ID) ([]invoicedomain.InvoiceItem, error) {
	if _, err := s.GetInvoice(ctx, orgID, invoiceID); err != nil {
		return nil, err
	}
	return s.repo.ListInvoiceItems(ctx, s.db, orgID, invoiceID)
}

func (s *Service) billingConfig() config.BillingConfig {
	if s.billing == nil {
		return config.DefaultBillingConfig()
	}
	return s.billing.Get()
}

func (s *Service) emit(ctx context.Context, evt auditdomain.Event) {
	if s.events == nil {
		return
	}
	if err := s.events.Emit(ctx, evt); err != nil {
		s.log.Warn("failed to emit event", zap.String("action", evt.Action), zap.Error(err))
	}
}

func invoiceCurrency(lines []invoicedomain.InvoiceItem, fallback string) (string, error) {
	currencies := lo.Uniq(lo.Map(lines, func(l invoicedomain.InvoiceItem, _ int) string {
		return l.Currency
	}))
	switch len(currencies) {
	case 0:
		return fallback, nil
	case 1:
		return currencies[0], nil
	default:
		return "", fmt.Errorf("%w: %s", invoicedomain.ErrCurrencyMismatch, strings.Join(currencies, ", "))
	}
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, consumptiondomain.ErrMissingMeterReading):
		return "missing_meter_reading"
	case errors.Is(err, consumptiondomain.ErrNegativeConsumption):
		return "negative_consumption"
	case errors.Is(err, tariffdomain.ErrNoTariffFound):
		return "no_tariff_found"
	case errors.Is(err, pricingdomain.ErrUnpricedZone):
		return "unpriced_zone"
	case errors.Is(err, pricingdomain.ErrTiersExhausted):
		return "tiers_exhausted"
	case errors.Is(err, formula.ErrUnsafeFormula), errors.Is(err, formula.ErrInvalidResult):
		return "formula"
	case errors.Is(err, invoicedomain.ErrCurrencyMismatch):
		return "currency_mismatch"
	case errors.Is(err, invoicedomain.ErrTenantNotFound), errors.Is(err, invoicedomain.ErrPropertyNotFound):
		return "not_found"
	default:
		return "internal"
	}
}

func invoiceState(invoice *invoicedomain.Invoice) map[string]any {
	return map[string]any{
		"invoice_number":       invoice.InvoiceNumber,
		"tenant_id":            invoice.TenantID.String(),
		"property_id":          invoice.PropertyID.String(),
		"status":               string(invoice.Status),
		"billing_period_start": invoice.BillingPeriodStart.Format(time.DateOnly),
		"billing_period_end":   invoice.BillingPeriodEnd.Format(time.DateOnly),
		"due_date":             invoice.DueDate.Format(time.DateOnly),
		"total_amount":         invoice.TotalAmount.StringFixed(2),
		"currency":             invoice.Currency,
	}
}
