package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/utilitybill/internal/audit"
	"github.com/smallbiznis/utilitybill/internal/catalog"
	"github.com/smallbiznis/utilitybill/internal/clock"
	"github.com/smallbiznis/utilitybill/internal/config"
	"github.com/smallbiznis/utilitybill/internal/consumption"
	"github.com/smallbiznis/utilitybill/internal/invoice"
	invoicedomain "github.com/smallbiznis/utilitybill/internal/invoice/domain"
	"github.com/smallbiznis/utilitybill/internal/meter"
	"github.com/smallbiznis/utilitybill/internal/migration"
	"github.com/smallbiznis/utilitybill/internal/observability"
	"github.com/smallbiznis/utilitybill/internal/pricing"
	"github.com/smallbiznis/utilitybill/internal/property"
	"github.com/smallbiznis/utilitybill/internal/serviceconfig"
	"github.com/smallbiznis/utilitybill/internal/tariff"
	"github.com/smallbiznis/utilitybill/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type runArgs struct {
	orgID    snowflake.ID
	tenantID snowflake.ID
	from     time.Time
	to       time.Time
	by       string
	finalize bool
}

func main() {
	args, err := parseArgs(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	var (
		invoices invoicedomain.Service
		log      *zap.Logger
	)
	app := fx.New(
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		migration.Module,

		audit.Module,
		catalog.Module,
		property.Module,
		meter.Module,
		tariff.Module,
		consumption.Module,
		pricing.Module,
		serviceconfig.Module,
		invoice.Module,

		fx.Populate(&invoices, &log),
		fx.NopLogger,
	)

	startCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := app.Start(startCtx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	runErr := run(context.Background(), invoices, log, args)

	stopCtx, cancelStop := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelStop()
	if err := app.Stop(stopCtx); err != nil {
		fmt.Fprintln(os.Stderr, err)
	}
	if runErr != nil {
		os.Exit(1)
	}
}

func run(ctx context.Context, invoices invoicedomain.Service, log *zap.Logger, args runArgs) error {
	inv, err := invoices.GenerateInvoice(ctx, invoicedomain.GenerateRequest{
		OrgID:       args.orgID,
		TenantID:    args.tenantID,
		PeriodStart: args.from,
		PeriodEnd:   args.to,
		PerformedBy: args.by,
	})
	if err != nil {
		log.Error("billing run failed", zap.Error(err))
		return err
	}

	if args.finalize {
		finalized, err := invoices.FinalizeInvoice(ctx, args.orgID, inv.ID, args.by)
		if err != nil {
			log.Error("finalize failed", zap.String("invoice_id", inv.ID.String()), zap.Error(err))
			return err
		}
		inv = finalized
	}

	fmt.Printf("%s %s %s %s due %s\n",
		inv.InvoiceNumber,
		inv.Status,
		inv.TotalAmount.StringFixed(2),
		inv.Currency,
		inv.DueDate.Format(time.DateOnly),
	)
	return nil
}

func parseArgs(argv []string) (runArgs, error) {
	fs := flag.NewFlagSet("billing-run", flag.ContinueOnError)
	org := fs.String("org", "", "organization id")
	tenant := fs.String("tenant", "", "tenant id")
	from := fs.String("from", "", "billing period start (YYYY-MM-DD)")
	to := fs.String("to", "", "billing period end (YYYY-MM-DD)")
	by := fs.String("by", "billing-run", "actor recorded on the invoice")
	finalize := fs.Bool("finalize", false, "finalize the invoice after generation")
	if err := fs.Parse(argv); err != nil {
		return runArgs{}, err
	}

	var (
		args runArgs
		err  error
	)
	if args.orgID, err = snowflake.ParseString(*org); err != nil {
		return runArgs{}, fmt.Errorf("invalid -org: %w", err)
	}
	if args.tenantID, err = snowflake.ParseString(*tenant); err != nil {
		return runArgs{}, fmt.Errorf("invalid -tenant: %w", err)
	}
	if args.from, err = time.Parse(time.DateOnly, *from); err != nil {
		return runArgs{}, fmt.Errorf("invalid -from: %w", err)
	}
	if args.to, err = time.Parse(time.DateOnly, *to); err != nil {
		return runArgs{}, fmt.Errorf("invalid -to: %w", err)
	}
	if !args.to.After(args.from) {
		return runArgs{}, errors.New("-to must be after -from")
	}
	args.by = *by
	args.finalize = *finalize
	return args, nil
}

func RegisterSnowflake(cfg config.Config) (*snowflake.Node, error) {
	return snowflake.NewNode(cfg.NodeID)
}
