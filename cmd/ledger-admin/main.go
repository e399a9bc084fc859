// Command ledger-admin is the operator tool for the ledger store.
//
//	ledger-admin add-owner -name Asha -email asha@example.com
//	ledger-admin limits
//	ledger-admin month-sum -owner <id> -category "Groceries & Vegetables" [-kind expense] [-date 2025-03-31]
//	ledger-admin schema-version
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"budgetledger/internal/backend"
	"budgetledger/internal/budget"
	"budgetledger/internal/cli"
	"budgetledger/internal/config"
	"budgetledger/internal/core"
	"budgetledger/internal/limits"
	applog "budgetledger/internal/log"
	"budgetledger/internal/storage"
)

var errUsage = errors.New("usage: ledger-admin <add-owner|limits|month-sum|schema-version> [flags]")

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(applog.ComponentApp)
	cfg := cli.LoadAndValidateConfig(logger.Logger)

	if err := run(context.Background(), cfg, os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, err)
		if errors.Is(err, errUsage) || errors.Is(err, flag.ErrHelp) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, args []string, out io.Writer) error {
	if len(args) == 0 {
		return errUsage
	}
	switch args[0] {
	case "add-owner":
		return addOwner(ctx, cfg, args[1:], out)
	case "limits":
		return printLimits(cfg, out)
	case "month-sum":
		return monthSum(ctx, cfg, args[1:], out)
	case "schema-version":
		return schemaVersion(cfg, out)
	default:
		return fmt.Errorf("unknown command %q: %w", args[0], errUsage)
	}
}

func openBackend(ctx context.Context, cfg *config.Config) (*backend.Opened, error) {
	bc, err := backend.ConfigFrom(cfg)
	if err != nil {
		return nil, err
	}
	return backend.NewFactory(nil).Open(ctx, bc)
}

func addOwner(ctx context.Context, cfg *config.Config, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("add-owner", flag.ContinueOnError)
	name := fs.String("name", "", "owner display name")
	email := fs.String("email", "", "address budget alerts are sent to")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *name == "" {
		return &core.ValidationError{Fields: []string{"name"}}
	}

	res, err := openBackend(ctx, cfg)
	if err != nil {
		return err
	}
	defer res.Close()

	owner, err := res.Backend.CreateOwner(ctx, *name, *email)
	if err != nil {
		return fmt.Errorf("create owner: %w", err)
	}
	fmt.Fprintln(out, owner.ID)
	return nil
}

func loadLimits(cfg *config.Config) (*limits.Table, error) {
	if cfg.LimitsFile == "" {
		return limits.Default(), nil
	}
	return limits.LoadFile(cfg.LimitsFile)
}

func printLimits(cfg *config.Config, out io.Writer) error {
	table, err := loadLimits(cfg)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "CATEGORY\tLIMIT\tWARN AT")
	for _, e := range table.Entries() {
		warn := "-"
		if e.MonthlyLimit.IsPositive() {
			warn = core.FormatAmount(cfg.CurrencySymbol, budget.WarnThreshold(e.MonthlyLimit))
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", e.Category, core.FormatAmount(cfg.CurrencySymbol, e.MonthlyLimit), warn)
	}
	return tw.Flush()
}

// monthSum prints the month-to-date total the pipeline would evaluate,
// with the budget state for expense categories that carry a limit.
func monthSum(ctx context.Context, cfg *config.Config, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("month-sum", flag.ContinueOnError)
	ownerID := fs.String("owner", "", "owner id")
	category := fs.String("category", "", "category name")
	kindFlag := fs.String("kind", "expense", "expense or income")
	dateFlag := fs.String("date", "", "as-of date (YYYY-MM-DD), defaults to today")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *ownerID == "" || *category == "" {
		return &core.ValidationError{Fields: []string{"owner", "category"}}
	}
	kind, err := core.ParseKind(*kindFlag)
	if err != nil {
		return err
	}
	asOf := core.DateOf(time.Now().UTC())
	if *dateFlag != "" {
		t, err := time.Parse("2006-01-02", *dateFlag)
		if err != nil {
			return &core.ValidationError{Fields: []string{"date"}, Reason: "date must be YYYY-MM-DD"}
		}
		asOf = core.DateOf(t)
	}

	res, err := openBackend(ctx, cfg)
	if err != nil {
		return err
	}
	defer res.Close()

	spent, err := res.Backend.MonthToDateSum(ctx, *ownerID, *category, kind, asOf)
	if err != nil {
		return fmt.Errorf("month to date sum: %w", err)
	}
	fmt.Fprintf(out, "%s %s %s..%s: %s\n", *category, kind,
		core.MonthStart(asOf).Format("2006-01-02"), asOf.Format("2006-01-02"),
		core.FormatAmount(cfg.CurrencySymbol, spent))

	if kind != core.KindExpense {
		return nil
	}
	table, err := loadLimits(cfg)
	if err != nil {
		return err
	}
	if limit, ok := table.LimitFor(*category); ok && limit.IsPositive() {
		r := budget.Evaluate(limit, spent)
		fmt.Fprintf(out, "limit %s, warn at %s, state %s\n",
			core.FormatAmount(cfg.CurrencySymbol, limit),
			core.FormatAmount(cfg.CurrencySymbol, r.WarnThreshold),
			r.State)
	}
	return nil
}

func schemaVersion(cfg *config.Config, out io.Writer) error {
	if backend.Kind(cfg.DataBackend) != backend.SQLite {
		return fmt.Errorf("schema-version reads the sqlite store only (DATA_BACKEND=%s)", cfg.DataBackend)
	}
	if err := storage.RunMigrations(cfg.SQLiteDBPath); err != nil {
		return err
	}
	v, dirty, err := storage.SchemaVersion(cfg.SQLiteDBPath)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "version %d dirty=%t\n", v, dirty)
	return nil
}
