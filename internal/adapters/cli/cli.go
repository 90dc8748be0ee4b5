package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"fuel-ledger/internal/app"
	"fuel-ledger/internal/core"
)

const usage = `Usage: app <command> [args]

  stock    <tank-id> [YYYY-MM-DD]           current stock, or closing stock of a day
  daily    <tank-id> <start> <end>          daily reconciliation of one tank
  losses   <org-id> <start> <end>           daily reconciliation of every tank
  report   <org-id> <start> <end>           financial report (JSON)
  bal      <org-id> [YYYY-MM-DD]            trial balance
  accounts <org-id>                         chart of accounts
  record                                    manual entry, JSON on stdin
  approve  <deposit|delivery|reading|tx> <id> <actor>
  close    <org-id> <year> <month> <actor>  transfer realtime P/L to retained earnings`

// Run executes a one-shot CLI command, writing results to out.
// args is os.Args[1:]; the first element is the subcommand name.
func Run(ctx context.Context, svc app.ApplicationService, args []string, in io.Reader, out io.Writer) error {
	if len(args) == 0 {
		return fmt.Errorf("missing command\n%s", usage)
	}

	switch args[0] {
	case "stock", "s":
		if len(args) < 2 {
			return usageError("stock <tank-id> [YYYY-MM-DD]")
		}
		tankID, err := parseID(args[1])
		if err != nil {
			return err
		}
		var level *core.StockLevel
		if len(args) > 2 {
			level, err = svc.GetStockAsOf(ctx, tankID, args[2])
		} else {
			level, err = svc.GetCurrentStock(ctx, tankID)
		}
		if err != nil {
			return err
		}
		printStock(out, level)

	case "daily", "d":
		if len(args) < 4 {
			return usageError("daily <tank-id> <start> <end>")
		}
		tankID, err := parseID(args[1])
		if err != nil {
			return err
		}
		report, err := svc.GetDailyReport(ctx, tankID, args[2], args[3])
		if err != nil {
			return err
		}
		printDailyReport(out, report)

	case "losses":
		if len(args) < 4 {
			return usageError("losses <org-id> <start> <end>")
		}
		orgID, err := parseID(args[1])
		if err != nil {
			return err
		}
		reports, err := svc.GetOrgDailyReports(ctx, orgID, args[2], args[3])
		if err != nil {
			return err
		}
		for i := range reports {
			printDailyReport(out, &reports[i])
		}

	case "report", "r":
		if len(args) < 4 {
			return usageError("report <org-id> <start> <end>")
		}
		orgID, err := parseID(args[1])
		if err != nil {
			return err
		}
		report, err := svc.GetFinancialReport(ctx, orgID, args[2], args[3])
		if err != nil {
			return err
		}
		return writeJSON(out, report)

	case "bal", "balances":
		if len(args) < 2 {
			return usageError("bal <org-id> [YYYY-MM-DD]")
		}
		orgID, err := parseID(args[1])
		if err != nil {
			return err
		}
		asOf := ""
		if len(args) > 2 {
			asOf = args[2]
		}
		result, err := svc.GetTrialBalance(ctx, orgID, asOf)
		if err != nil {
			return err
		}
		printTrialBalance(out, result)

	case "accounts", "coa":
		if len(args) < 2 {
			return usageError("accounts <org-id>")
		}
		orgID, err := parseID(args[1])
		if err != nil {
			return err
		}
		accounts, err := svc.ListAccounts(ctx, orgID)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "%-6s %-40s %-10s %s\n", "ID", "NAME", "CATEGORY", "STATUS")
		for _, a := range accounts {
			fmt.Fprintf(out, "%-6d %-40s %-10s %s\n", a.ID, a.Name, a.Category, a.Status)
		}

	case "record":
		var req app.RecordTransactionRequest
		if err := json.NewDecoder(in).Decode(&req); err != nil {
			return fmt.Errorf("invalid JSON: %w", err)
		}
		tx, err := svc.RecordTransaction(ctx, req)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Transaction %d recorded (%s).\n", tx.ID, tx.Status)

	case "approve":
		if len(args) < 4 {
			return usageError("approve <deposit|delivery|reading|tx> <id> <actor>")
		}
		return approve(ctx, svc, args[1], args[2], args[3], out)

	case "close":
		if len(args) < 5 {
			return usageError("close <org-id> <year> <month> <actor>")
		}
		orgID, err := parseID(args[1])
		if err != nil {
			return err
		}
		year, err := strconv.Atoi(args[2])
		if err != nil {
			return fmt.Errorf("invalid year %q", args[2])
		}
		month, err := strconv.Atoi(args[3])
		if err != nil {
			return fmt.Errorf("invalid month %q", args[3])
		}
		tx, err := svc.CloseMonth(ctx, orgID, year, month, args[4])
		if err != nil {
			return err
		}
		if tx == nil {
			fmt.Fprintln(out, "Nothing to close.")
			return nil
		}
		fmt.Fprintf(out, "Closing transaction %d posted.\n", tx.ID)

	default:
		return fmt.Errorf("unknown command: %s\n%s", args[0], usage)
	}
	return nil
}

func approve(ctx context.Context, svc app.ApplicationService, kind, rawID, actor string, out io.Writer) error {
	id, err := parseID(rawID)
	if err != nil {
		return err
	}
	switch kind {
	case "deposit":
		s, err := svc.ApproveDeposit(ctx, id, actor)
		if err != nil {
			return err
		}
		return writeJSON(out, s)
	case "delivery":
		tx, err := svc.ApproveDelivery(ctx, id, actor)
		if err != nil {
			return err
		}
		return writeJSON(out, tx)
	case "reading":
		r, err := svc.ApproveTankReading(ctx, id, actor)
		if err != nil {
			return err
		}
		return writeJSON(out, r)
	case "tx":
		if err := svc.ApproveTransaction(ctx, id, actor); err != nil {
			return err
		}
		fmt.Fprintf(out, "Transaction %d approved.\n", id)
		return nil
	}
	return fmt.Errorf("unknown approval kind %q", kind)
}

func usageError(form string) error {
	return fmt.Errorf("usage: app %s", form)
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id %q", s)
	}
	return id, nil
}

func writeJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printStock(out io.Writer, level *core.StockLevel) {
	fmt.Fprintf(out, "Tank %d on %s: %s L (%s)\n",
		level.TankID, level.AsOf.Format(core.DateLayout), level.Liters.StringFixed(2), level.Source)
	if level.Warning != nil {
		fmt.Fprintf(out, "  warning: %s\n", level.Warning.Error())
	}
}

func printDailyReport(out io.Writer, report *core.TankDailyReport) {
	fmt.Fprintln(out)
	fmt.Fprintln(out, strings.Repeat("=", 96))
	fmt.Fprintf(out, "  TANK %d  %s  %s .. %s\n", report.Tank.ID, report.Tank.Name,
		report.Period.Start.Format(core.DateLayout), report.Period.End.Format(core.DateLayout))
	fmt.Fprintln(out, strings.Repeat("=", 96))
	fmt.Fprintf(out, "  %-10s %11s %11s %11s %9s %11s %11s %9s %12s\n",
		"DATE", "OPENING", "DELIVERED", "SOLD", "TEST", "CLOSING", "PHYSICAL", "VARIANCE", "LOSS")
	fmt.Fprintln(out, strings.Repeat("-", 96))
	for _, rec := range report.Records {
		physical, variance := "-", "-"
		if rec.PhysicalReading != nil {
			physical = rec.PhysicalReading.StringFixed(2)
		}
		if rec.Variance != nil {
			variance = rec.Variance.StringFixed(2)
		}
		fmt.Fprintf(out, "  %-10s %11s %11s %11s %9s %11s %11s %9s %12s\n",
			rec.Date.Format(core.DateLayout),
			rec.OpeningStock.StringFixed(2),
			rec.Deliveries.StringFixed(2),
			rec.Sales.StringFixed(2),
			rec.PumpTest.StringFixed(2),
			rec.CalculatedClosing.StringFixed(2),
			physical, variance,
			rec.EstimatedLoss.StringFixed(2))
	}
	fmt.Fprintln(out, strings.Repeat("-", 96))
	fmt.Fprintf(out, "  %-84s %9s\n", "TOTAL ESTIMATED LOSS", report.TotalLoss().StringFixed(2))
	for _, w := range report.Warnings {
		fmt.Fprintf(out, "  warning: %s\n", w.Error())
	}
}

func printTrialBalance(out io.Writer, result *app.TrialBalanceResult) {
	fmt.Fprintln(out)
	fmt.Fprintln(out, strings.Repeat("=", 78))
	fmt.Fprintf(out, "  %-74s\n", "TRIAL BALANCE")
	fmt.Fprintf(out, "  Org   : %d\n", result.OrgID)
	fmt.Fprintf(out, "  As of : %s\n", result.AsOf.Format(core.DateLayout))
	fmt.Fprintln(out, strings.Repeat("=", 78))
	fmt.Fprintf(out, "  %-34s %-9s %15s %15s\n", "ACCOUNT", "CATEGORY", "DEBIT", "CREDIT")
	fmt.Fprintln(out, strings.Repeat("-", 78))
	for _, l := range result.Accounts {
		fmt.Fprintf(out, "  %-34s %-9s %15s %15s\n",
			l.Account.Name, l.Account.Category, l.Debit.StringFixed(2), l.Credit.StringFixed(2))
	}
	fmt.Fprintln(out, strings.Repeat("-", 78))
	fmt.Fprintf(out, "  %-44s %15s %15s\n", "TOTAL", result.TotalDebit.StringFixed(2), result.TotalCredit.StringFixed(2))
	fmt.Fprintln(out, strings.Repeat("=", 78))
}
