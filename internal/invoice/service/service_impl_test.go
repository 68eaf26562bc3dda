package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	auditdomain "github.com/smallbiznis/utilitybill/internal/audit/domain"
	catalogdomain "github.com/smallbiznis/utilitybill/internal/catalog/domain"
	catalogrepo "github.com/smallbiznis/utilitybill/internal/catalog/repository"
	"github.com/smallbiznis/utilitybill/internal/clock"
	"github.com/smallbiznis/utilitybill/internal/config"
	consumptiondomain "github.com/smallbiznis/utilitybill/internal/consumption/domain"
	consumptionservice "github.com/smallbiznis/utilitybill/internal/consumption/service"
	invoicedomain "github.com/smallbiznis/utilitybill/internal/invoice/domain"
	"github.com/smallbiznis/utilitybill/internal/invoice/repository"
	meterdomain "github.com/smallbiznis/utilitybill/internal/meter/domain"
	meterrepo "github.com/smallbiznis/utilitybill/internal/meter/repository"
	"github.com/smallbiznis/utilitybill/internal/observability/metrics"
	pricingservice "github.com/smallbiznis/utilitybill/internal/pricing/service"
	propertydomain "github.com/smallbiznis/utilitybill/internal/property/domain"
	propertyrepo "github.com/smallbiznis/utilitybill/internal/property/repository"
	serviceconfigdomain "github.com/smallbiznis/utilitybill/internal/serviceconfig/domain"
	serviceconfigrepo "github.com/smallbiznis/utilitybill/internal/serviceconfig/repository"
	tariffdomain "github.com/smallbiznis/utilitybill/internal/tariff/domain"
	tariffrepo "github.com/smallbiznis/utilitybill/internal/tariff/repository"
	tariffservice "github.com/smallbiznis/utilitybill/internal/tariff/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type recordingEmitter struct {
	events []auditdomain.Event
}

func (r *recordingEmitter) Emit(_ context.Context, evt auditdomain.Event) error {
	r.events = append(r.events, evt)
	return nil
}

type fixture struct {
	db       *gorm.DB
	node     *snowflake.Node
	orgID    snowflake.ID
	tenant   *propertydomain.Tenant
	property *propertydomain.Property
	service  *catalogdomain.UtilityService
	provider *catalogdomain.Provider
	meter    *meterdomain.Meter
	events   *recordingEmitter
}

func setupInvoice(t *testing.T) *fixture {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(
		&propertydomain.Property{},
		&propertydomain.Tenant{},
		&catalogdomain.UtilityService{},
		&catalogdomain.Provider{},
		&meterdomain.Meter{},
		&meterdomain.MeterReading{},
		&serviceconfigdomain.ServiceConfiguration{},
		&tariffdomain.Tariff{},
		&invoicedomain.Invoice{},
		&invoicedomain.InvoiceSequence{},
		&invoicedomain.InvoiceItem{},
	))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	orgID := node.Generate()
	created := time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)

	property := &propertydomain.Property{ID: node.Generate(), OrgID: orgID, Name: "Elm Street 5", PropertyType: "residential", CreatedAt: created}
	tenant := &propertydomain.Tenant{ID: node.Generate(), OrgID: orgID, PropertyID: property.ID, Name: "Jordan Lee", LeaseStart: created, CreatedAt: created}
	service := &catalogdomain.UtilityService{
		ID:          node.Generate(),
		OrgID:       orgID,
		Code:        "electricity",
		Name:        "Electricity",
		ServiceType: catalogdomain.ServiceTypeElectricity,
		Unit:        "kWh",
		IsActive:    true,
		CreatedAt:   created,
	}
	provider := &catalogdomain.Provider{ID: node.Generate(), OrgID: orgID, Name: "City Power", ServiceType: catalogdomain.ServiceTypeElectricity, IsActive: true, CreatedAt: created}
	meter := &meterdomain.Meter{
		ID:           node.Generate(),
		OrgID:        orgID,
		PropertyID:   property.ID,
		SerialNumber: "EM-1001",
		Type:         catalogdomain.ServiceTypeElectricity,
		Active:       true,
		CreatedAt:    created,
		UpdatedAt:    created,
	}
	for _, row := range []any{property, tenant, service, provider, meter} {
		require.NoError(t, db.Create(row).Error)
	}

	return &fixture{
		db:       db,
		node:     node,
		orgID:    orgID,
		tenant:   tenant,
		property: property,
		service:  service,
		provider: provider,
		meter:    meter,
		events:   &recordingEmitter{},
	}
}

func (f *fixture) invoiceService(billing config.BillingConfig) invoicedomain.Service {
	log := zap.NewNop()
	meters := meterrepo.Provide()
	return New(Params{
		DB:           f.db,
		Log:          log,
		GenID:        f.node,
		Clock:        clock.NewFakeClock(time.Date(2024, 2, 2, 9, 0, 0, 0, time.UTC)),
		Repo:         repository.Provide(),
		PropertyRepo: propertyrepo.Provide(),
		CatalogRepo:  catalogrepo.Provide(),
		MeterRepo:    meters,
		ConfigRepo:   serviceconfigrepo.Provide(),
		Resolver:     tariffservice.NewResolver(log, tariffrepo.Provide(), metrics.NewNoop()),
		Calculator:   consumptionservice.New(meters),
		Engine:       pricingservice.New(),
		Billing:      config.NewStaticBillingConfigHolder(billing),
		Metrics:      metrics.NewNoop(),
		Events:       f.events,
	})
}

func (f *fixture) flatTariff(t *testing.T, rate string, from time.Time) *tariffdomain.Tariff {
	t.Helper()
	tariff := &tariffdomain.Tariff{
		ID:         f.node.Generate(),
		OrgID:      f.orgID,
		ProviderID: f.provider.ID,
		Code:       "residential",
		Name:       "Residential",
		Configuration: tariffdomain.Configuration{Flat: &tariffdomain.FlatRate{
			Rate:     decimal.RequireFromString(rate),
			Currency: "EUR",
		}},
		ActiveFrom: from,
		CreatedBy:  "admin@example.com",
		CreatedAt:  from,
		UpdatedAt:  from,
	}
	require.NoError(t, f.db.Create(tariff).Error)
	return tariff
}

func (f *fixture) configure(t *testing.T, model serviceconfigdomain.PricingModel, schedule map[string]any) *serviceconfigdomain.ServiceConfiguration {
	t.Helper()
	cfg := &serviceconfigdomain.ServiceConfiguration{
		ID:               f.node.Generate(),
		OrgID:            f.orgID,
		PropertyID:       f.property.ID,
		UtilityServiceID: f.service.ID,
		ProviderID:       f.provider.ID,
		TariffCode:       "residential",
		PricingModel:     model,
		RateSchedule:     schedule,
		EffectiveFrom:    day(2023, 12, 1),
		IsActive:         true,
		CreatedBy:        "manager@example.com",
		CreatedAt:        day(2023, 12, 1),
		UpdatedAt:        day(2023, 12, 1),
	}
	require.NoError(t, f.db.Create(cfg).Error)
	require.NoError(t, f.db.Model(&meterdomain.Meter{}).Where("id = ?", f.meter.ID).Update("service_configuration_id", cfg.ID).Error)
	return cfg
}

func (f *fixture) reading(t *testing.T, value string, date time.Time) {
	t.Helper()
	require.NoError(t, f.db.Create(&meterdomain.MeterReading{
		ID:          f.node.Generate(),
		OrgID:       f.orgID,
		MeterID:     f.meter.ID,
		ReadingDate: date,
		Value:       decimal.RequireFromString(value),
		EnteredBy:   "reader@example.com",
		CreatedAt:   date,
		UpdatedAt:   date,
	}).Error)
}

func (f *fixture) request(start, end time.Time) invoicedomain.GenerateRequest {
	return invoicedomain.GenerateRequest{
		OrgID:       f.orgID,
		TenantID:    f.tenant.ID,
		PeriodStart: start,
		PeriodEnd:   end,
		PerformedBy: "billing-run",
	}
}

func (f *fixture) count(t *testing.T, model any) int64 {
	t.Helper()
	var n int64
	require.NoError(t, f.db.Model(model).Count(&n).Error)
	return n
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func consumptionSchedule() map[string]any {
	return map[string]any{"unit_rate": 0.2}
}

func TestGenerateInvoiceFlatTariff(t *testing.T) {
	f := setupInvoice(t)
	tariff := f.flatTariff(t, "0.20", day(2023, 12, 1))
	cfg := f.configure(t, serviceconfigdomain.PricingConsumptionBased, consumptionSchedule())
	f.reading(t, "100.00", day(2024, 1, 1))
	f.reading(t, "150.00", day(2024, 2, 1))
	svc := f.invoiceService(config.DefaultBillingConfig())
	ctx := context.Background()

	invoice, err := svc.GenerateInvoice(ctx, f.request(day(2024, 1, 1), day(2024, 2, 1)))
	require.NoError(t, err)
	assert.Equal(t, invoicedomain.InvoiceStatusDraft, invoice.Status)
	assert.True(t, invoice.DueDate.Equal(day(2024, 2, 15)))
	assert.True(t, invoice.TotalAmount.Equal(decimal.RequireFromString("10.00")), invoice.TotalAmount.String())
	assert.Equal(t, "EUR", invoice.Currency)
	assert.Equal(t, "INV-000001", invoice.InvoiceNumber)
	assert.Equal(t, f.property.ID, invoice.PropertyID)
	assert.NotEmpty(t, invoice.Metadata["generation_run_id"])

	items, err := svc.ListItems(ctx, f.orgID, invoice.ID)
	require.NoError(t, err)
	require.Len(t, items, 1)
	item := items[0]
	assert.True(t, item.Quantity.Equal(decimal.NewFromInt(50)), item.Quantity.String())
	assert.True(t, item.UnitPrice.Equal(decimal.RequireFromString("0.20")), item.UnitPrice.String())
	assert.True(t, item.Total.Equal(decimal.RequireFromString("10.00")), item.Total.String())
	assert.Equal(t, "Electricity", item.Description)
	assert.Equal(t, "kWh", item.Unit)
	require.NotNil(t, item.MeterID)
	assert.Equal(t, f.meter.ID, *item.MeterID)
	require.NotNil(t, item.TariffID)
	assert.Equal(t, tariff.ID, *item.TariffID)
	assert.Equal(t, cfg.ID, item.ServiceConfigurationID)

	stored, err := svc.GetInvoice(ctx, f.orgID, invoice.ID)
	require.NoError(t, err)
	assert.True(t, stored.TotalAmount.Equal(invoice.TotalAmount))

	require.Len(t, f.events.events, 1)
	assert.Equal(t, auditdomain.ActionInvoiceGenerated, f.events.events[0].Action)
	assert.Equal(t, "10.00", f.events.events[0].After["total_amount"])

	f.reading(t, "180.00", day(2024, 3, 1))
	next, err := svc.GenerateInvoice(ctx, f.request(day(2024, 2, 1), day(2024, 3, 1)))
	require.NoError(t, err)
	assert.Equal(t, "INV-000002", next.InvoiceNumber)
	assert.True(t, next.TotalAmount.Equal(decimal.RequireFromString("6.00")), next.TotalAmount.String())
}

func TestGenerateInvoiceMissingReadingPersistsNothing(t *testing.T) {
	f := setupInvoice(t)
	f.flatTariff(t, "0.20", day(2023, 12, 1))
	f.configure(t, serviceconfigdomain.PricingConsumptionBased, consumptionSchedule())
	f.reading(t, "150.00", day(2024, 2, 1))
	svc := f.invoiceService(config.DefaultBillingConfig())

	_, err := svc.GenerateInvoice(context.Background(), f.request(day(2024, 1, 1), day(2024, 2, 1)))
	require.Error(t, err)
	assert.ErrorIs(t, err, consumptiondomain.ErrMissingMeterReading)
	assert.Contains(t, err.Error(), "meter "+f.meter.ID.String())

	var missing *consumptiondomain.MissingMeterReadingError
	require.True(t, errors.As(err, &missing))
	assert.Equal(t, f.meter.ID, missing.MeterID)
	assert.Equal(t, consumptiondomain.BoundaryStart, missing.Boundary)

	assert.Zero(t, f.count(t, &invoicedomain.Invoice{}))
	assert.Zero(t, f.count(t, &invoicedomain.InvoiceItem{}))
	assert.Empty(t, f.events.events)
}

func TestGenerateInvoiceWithoutTariffFails(t *testing.T) {
	f := setupInvoice(t)
	f.flatTariff(t, "0.20", day(2024, 3, 1))
	f.configure(t, serviceconfigdomain.PricingConsumptionBased, consumptionSchedule())
	f.reading(t, "100.00", day(2024, 1, 1))
	f.reading(t, "150.00", day(2024, 2, 1))
	svc := f.invoiceService(config.DefaultBillingConfig())

	_, err := svc.GenerateInvoice(context.Background(), f.request(day(2024, 1, 1), day(2024, 2, 1)))
	require.Error(t, err)
	assert.ErrorIs(t, err, tariffdomain.ErrNoTariffFound)
	assert.Zero(t, f.count(t, &invoicedomain.Invoice{}))
}

func TestInvoiceItemsKeepTheirRate(t *testing.T) {
	f := setupInvoice(t)
	tariff := f.flatTariff(t, "0.20", day(2023, 12, 1))
	f.configure(t, serviceconfigdomain.PricingConsumptionBased, consumptionSchedule())
	f.reading(t, "100.00", day(2024, 1, 1))
	f.reading(t, "150.00", day(2024, 2, 1))
	svc := f.invoiceService(config.DefaultBillingConfig())
	ctx := context.Background()

	invoice, err := svc.GenerateInvoice(ctx, f.request(day(2024, 1, 1), day(2024, 2, 1)))
	require.NoError(t, err)

	raised := tariffdomain.Configuration{Flat: &tariffdomain.FlatRate{Rate: decimal.RequireFromString("0.50"), Currency: "EUR"}}
	require.NoError(t, f.db.Model(&tariffdomain.Tariff{}).Where("id = ?", tariff.ID).Update("configuration", raised).Error)

	items, err := svc.ListItems(ctx, f.orgID, invoice.ID)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.True(t, items[0].UnitPrice.Equal(decimal.RequireFromString("0.20")))
	assert.True(t, items[0].Total.Equal(decimal.RequireFromString("10.00")))

	snapshot, ok := items[0].Snapshot["tariff"].(map[string]any)
	require.True(t, ok)
	configuration, ok := snapshot["configuration"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "flat", configuration["type"])
	assert.Equal(t, "0.2", configuration["rate"])

	readings, ok := items[0].Snapshot["readings"].([]any)
	require.True(t, ok)
	require.Len(t, readings, 1)
	assert.Equal(t, "100", readings[0].(map[string]any)["start_value"])
	assert.Equal(t, "150", readings[0].(map[string]any)["end_value"])

	stored, err := svc.GetInvoice(ctx, f.orgID, invoice.ID)
	require.NoError(t, err)
	assert.True(t, stored.TotalAmount.Equal(decimal.RequireFromString("10.00")))
}

func TestGenerateInvoiceWithNothingToBill(t *testing.T) {
	f := setupInvoice(t)
	svc := f.invoiceService(config.DefaultBillingConfig())

	invoice, err := svc.GenerateInvoice(context.Background(), f.request(day(2024, 1, 1), day(2024, 2, 1)))
	require.NoError(t, err)
	assert.True(t, invoice.TotalAmount.IsZero())
	assert.Equal(t, "USD", invoice.Currency)

	items, err := svc.ListItems(context.Background(), f.orgID, invoice.ID)
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestInvoiceNumbersAreSharedAcrossTenants(t *testing.T) {
	f := setupInvoice(t)
	svc := f.invoiceService(config.DefaultBillingConfig())
	ctx := context.Background()

	created := day(2023, 1, 1)
	other := &propertydomain.Property{ID: f.node.Generate(), OrgID: f.orgID, Name: "Elm Street 7", PropertyType: "residential", CreatedAt: created}
	neighbour := &propertydomain.Tenant{ID: f.node.Generate(), OrgID: f.orgID, PropertyID: other.ID, Name: "Sam Rivera", LeaseStart: created, CreatedAt: created}
	require.NoError(t, f.db.Create(other).Error)
	require.NoError(t, f.db.Create(neighbour).Error)

	forNeighbour := f.request(day(2024, 1, 1), day(2024, 2, 1))
	forNeighbour.TenantID = neighbour.ID

	first, err := svc.GenerateInvoice(ctx, f.request(day(2024, 1, 1), day(2024, 2, 1)))
	require.NoError(t, err)
	second, err := svc.GenerateInvoice(ctx, forNeighbour)
	require.NoError(t, err)
	third, err := svc.GenerateInvoice(ctx, f.request(day(2024, 2, 1), day(2024, 3, 1)))
	require.NoError(t, err)

	assert.Equal(t, "INV-000001", first.InvoiceNumber)
	assert.Equal(t, "INV-000002", second.InvoiceNumber)
	assert.Equal(t, neighbour.ID, second.TenantID)
	assert.Equal(t, "INV-000003", third.InvoiceNumber)

	var counter invoicedomain.InvoiceSequence
	require.NoError(t, f.db.Where("org_id = ?", f.orgID).First(&counter).Error)
	assert.EqualValues(t, 3, counter.LastValue)

	// a missing counter row resumes after the invoices already issued
	require.NoError(t, f.db.Exec("DELETE FROM invoice_sequences").Error)
	fourth, err := svc.GenerateInvoice(ctx, forNeighbour)
	require.NoError(t, err)
	assert.EqualValues(t, 4, fourth.Sequence)
}

func TestGenerateInvoiceZeroConsumptionPolicy(t *testing.T) {
	f := setupInvoice(t)
	f.flatTariff(t, "0.20", day(2023, 12, 1))
	f.configure(t, serviceconfigdomain.PricingConsumptionBased, consumptionSchedule())
	f.reading(t, "100.00", day(2024, 1, 1))
	f.reading(t, "100.00", day(2024, 2, 1))
	ctx := context.Background()

	omitted, err := f.invoiceService(config.DefaultBillingConfig()).GenerateInvoice(ctx, f.request(day(2024, 1, 1), day(2024, 2, 1)))
	require.NoError(t, err)
	assert.True(t, omitted.TotalAmount.IsZero())

	include := config.DefaultBillingConfig()
	include.ZeroConsumption = config.ZeroConsumptionInclude
	svc := f.invoiceService(include)
	included, err := svc.GenerateInvoice(ctx, f.request(day(2024, 1, 1), day(2024, 2, 1)))
	require.NoError(t, err)
	assert.Equal(t, "EUR", included.Currency)

	items, err := svc.ListItems(ctx, f.orgID, included.ID)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.True(t, items[0].Quantity.IsZero())
	assert.True(t, items[0].Total.IsZero())
}

func TestGenerateInvoiceAddsMonthlyFee(t *testing.T) {
	f := setupInvoice(t)
	f.flatTariff(t, "0.20", day(2023, 12, 1))
	f.configure(t, serviceconfigdomain.PricingHybrid, map[string]any{"unit_rate": 0.2, "fixed_fee": 12})
	f.reading(t, "100.00", day(2024, 1, 1))
	f.reading(t, "150.00", day(2024, 2, 1))
	svc := f.invoiceService(config.DefaultBillingConfig())

	invoice, err := svc.GenerateInvoice(context.Background(), f.request(day(2024, 1, 1), day(2024, 2, 1)))
	require.NoError(t, err)
	assert.True(t, invoice.TotalAmount.Equal(decimal.RequireFromString("22.00")), invoice.TotalAmount.String())

	items, err := svc.ListItems(context.Background(), f.orgID, invoice.ID)
	require.NoError(t, err)
	require.Len(t, items, 2)
	fee := items[1]
	assert.Equal(t, "Electricity monthly fee", fee.Description)
	assert.Nil(t, fee.MeterID)
	assert.True(t, fee.Total.Equal(decimal.NewFromInt(12)))
	assert.Equal(t, "EUR", fee.Currency)
}

func TestFinalizeInvoice(t *testing.T) {
	f := setupInvoice(t)
	svc := f.invoiceService(config.DefaultBillingConfig())
	ctx := context.Background()

	invoice, err := svc.GenerateInvoice(ctx, f.request(day(2024, 1, 1), day(2024, 2, 1)))
	require.NoError(t, err)

	finalized, err := svc.FinalizeInvoice(ctx, f.orgID, invoice.ID, "manager@example.com")
	require.NoError(t, err)
	assert.Equal(t, invoicedomain.InvoiceStatusFinalized, finalized.Status)
	require.NotNil(t, finalized.FinalizedAt)

	stored, err := svc.GetInvoice(ctx, f.orgID, invoice.ID)
	require.NoError(t, err)
	assert.Equal(t, invoicedomain.InvoiceStatusFinalized, stored.Status)

	_, err = svc.FinalizeInvoice(ctx, f.orgID, invoice.ID, "manager@example.com")
	assert.ErrorIs(t, err, invoicedomain.ErrInvoiceNotDraft)

	_, err = svc.FinalizeInvoice(ctx, f.orgID, f.node.Generate(), "manager@example.com")
	assert.ErrorIs(t, err, invoicedomain.ErrInvoiceNotFound)

	require.Len(t, f.events.events, 2)
	assert.Equal(t, auditdomain.ActionInvoiceFinalized, f.events.events[1].Action)
}

func TestGenerateInvoiceRejectsBadRequests(t *testing.T) {
	f := setupInvoice(t)
	svc := f.invoiceService(config.DefaultBillingConfig())
	ctx := context.Background()

	_, err := svc.GenerateInvoice(ctx, f.request(day(2024, 2, 1), day(2024, 2, 1)))
	assert.ErrorIs(t, err, invoicedomain.ErrInvalidPeriod)

	req := f.request(day(2024, 1, 1), day(2024, 2, 1))
	req.TenantID = f.node.Generate()
	_, err = svc.GenerateInvoice(ctx, req)
	assert.ErrorIs(t, err, invoicedomain.ErrTenantNotFound)
	assert.Zero(t, f.count(t, &invoicedomain.Invoice{}))
}
