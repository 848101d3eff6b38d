package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"payslip/internal/domain/auth"
	"payslip/internal/domain/payroll"
	"payslip/internal/domain/payslip"
	"payslip/internal/platform/config"
	"payslip/internal/platform/crypto"
	"payslip/internal/platform/sheet"
)

// Execute runs the payslip command line with the process environment.
func Execute() {
	if err := NewRootCommand(config.Load()).Execute(); err != nil {
		os.Exit(1)
	}
}

func NewRootCommand(cfg config.Config) *cobra.Command {
	var verbose bool
	root := &cobra.Command{
		Use:          "payslip",
		Short:        "Compute payroll and render payslips from a spreadsheet",
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			level := slog.LevelInfo
			if verbose {
				level = slog.LevelDebug
			}
			slog.SetDefault(slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level})))
		},
	}
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log at debug level")
	root.AddCommand(newRunCommand(cfg), newTaxCommand(cfg), newTokenCommand(cfg))
	return root
}

type runFlags struct {
	input    string
	template string
	out      string
	schedule string
	pdf      bool
	failFast bool
	workers  int
	timeout  time.Duration
}

func newRunCommand(cfg config.Config) *cobra.Command {
	flags := runFlags{
		out:      cfg.OutputDir,
		schedule: cfg.Schedule,
		failFast: cfg.FailFast,
		workers:  cfg.RenderWorkers,
		timeout:  cfg.RenderTimeout,
	}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Process a payroll spreadsheet and write one payslip per employee",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runPayroll(cmd.Context(), cmd.OutOrStdout(), cfg, flags)
		},
	}
	cmd.Flags().StringVarP(&flags.input, "input", "i", "", "payroll spreadsheet (.xlsx, .xls or .csv)")
	cmd.Flags().StringVarP(&flags.template, "template", "t", "", "payslip template (.txt or .html); built-in layout when empty")
	cmd.Flags().StringVarP(&flags.out, "out", "o", flags.out, "output directory")
	cmd.Flags().StringVar(&flags.schedule, "schedule", flags.schedule, "built-in schedule name or YAML schedule file")
	cmd.Flags().BoolVar(&flags.pdf, "pdf", flags.pdf, "also write a PDF payslip per employee")
	cmd.Flags().BoolVar(&flags.failFast, "fail-fast", flags.failFast, "abort on the first invalid row")
	cmd.Flags().IntVar(&flags.workers, "workers", flags.workers, "concurrent payslip renders")
	cmd.Flags().DurationVar(&flags.timeout, "timeout", flags.timeout, "time limit per payslip")
	_ = cmd.MarkFlagRequired("input")
	return cmd
}

func runPayroll(ctx context.Context, out io.Writer, cfg config.Config, flags runFlags) error {
	table, err := sheet.ReadFile(flags.input)
	if err != nil {
		return err
	}
	schedule, err := loadSchedule(flags.schedule, cfg.ContributionRate)
	if err != nil {
		return err
	}
	tmpl, err := loadTemplate(flags.template, table)
	if err != nil {
		return err
	}
	cryptoSvc, err := crypto.New(cfg.EncryptionKey)
	if err != nil {
		return err
	}

	policy := payroll.PolicyPartial
	if flags.failFast {
		policy = payroll.PolicyFailFast
	}
	svc := payroll.NewService(payroll.NewMemoryStore(), nil, cfg.PayrollWorkers)
	run, result, err := svc.Run(ctx, payroll.RunRequest{
		Source:   filepath.Base(flags.input),
		Table:    table,
		Schedule: schedule,
		Policy:   policy,
	})
	if err != nil {
		return err
	}

	renderer := payslip.NewRenderer(payslip.Options{
		OutputDir: flags.out,
		Template:  tmpl,
		PDF:       flags.pdf,
		Workers:   flags.workers,
		Timeout:   flags.timeout,
		Table:     schedule.Table,
	}, cryptoSvc, nil)
	summary, err := payslip.RenderRun(ctx, svc, run.ID, renderer, result.Records)
	if err != nil {
		return err
	}

	workbook := filepath.Join(flags.out, sheet.OutputFileName+".xlsx")
	if err := sheet.WriteFile(workbook, payroll.OutputTable(table, result)); err != nil {
		return fmt.Errorf("write %s: %w", workbook, err)
	}

	totals := result.Totals()
	fmt.Fprintf(out, "schedule %s: %d rows, %d derived, %d rejected\n", schedule.Name, run.RowCount, len(result.Records), len(result.Failures))
	for _, f := range result.Failures {
		fmt.Fprintf(out, "  skipped %s\n", f.Message())
	}
	fmt.Fprintf(out, "payslips: %d written, %d failed\n", summary.Rendered, summary.Failed)
	for _, res := range summary.Results {
		if res.Err != nil {
			fmt.Fprintf(out, "  %v\n", res.Err)
		}
	}
	fmt.Fprintf(out, "gross %s  PAYE %s  net %s\n",
		payroll.FormatAmount(totals.GrossPay), payroll.FormatAmount(totals.Tax), payroll.FormatAmount(totals.NetPay))
	fmt.Fprintf(out, "wrote %s\n", workbook)
	return nil
}

func loadSchedule(name, contributionRate string) (payroll.Schedule, error) {
	schedule, err := payroll.LoadSchedule(name)
	if err != nil {
		return payroll.Schedule{}, err
	}
	return schedule.WithContributionRate(contributionRate)
}

func loadTemplate(path string, table payroll.Table) (*payslip.Template, error) {
	if path == "" {
		return payslip.ParseTemplate("payslip.txt", []byte(payslip.DefaultTemplate), nil)
	}
	body, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	tmpl, err := payslip.ParseTemplate(filepath.Base(path), body, payroll.StandardPlaceholders)
	if err != nil {
		return nil, err
	}
	available := append(append([]string{}, payroll.StandardPlaceholders...), table.Columns...)
	if err := tmpl.Validate(available); err != nil {
		return nil, err
	}
	return tmpl, nil
}

func newTaxCommand(cfg config.Config) *cobra.Command {
	scheduleName := cfg.Schedule
	var breakdown bool
	cmd := &cobra.Command{
		Use:   "tax <taxable-income>",
		Short: "Compute PAYE for one monthly taxable income",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			taxable, err := decimal.NewFromString(args[0])
			if err != nil {
				return fmt.Errorf("%w: taxable income %q is not a number", payroll.ErrInvalidInput, args[0])
			}
			schedule, err := loadSchedule(scheduleName, cfg.ContributionRate)
			if err != nil {
				return err
			}
			tax, err := payroll.CalculateTax(schedule.Table, taxable)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if breakdown {
				lines, err := payroll.TaxBreakdown(schedule.Table, taxable)
				if err != nil {
					return err
				}
				for _, line := range lines {
					fmt.Fprintf(out, "band %d  %s @ %s%%  %s\n", line.Band,
						payroll.FormatAmount(line.Amount), line.Rate.Shift(2).String(), line.Tax.StringFixed(4))
				}
			}
			fmt.Fprintln(out, payroll.FormatAmount(tax))
			return nil
		},
	}
	cmd.Flags().StringVar(&scheduleName, "schedule", scheduleName, "built-in schedule name or YAML schedule file")
	cmd.Flags().BoolVar(&breakdown, "breakdown", false, "print the amount taxed in each band")
	return cmd
}

func newTokenCommand(cfg config.Config) *cobra.Command {
	var subject, role string
	var ttl time.Duration
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Print a signed API token for local use",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if cfg.JWTSecret == "" {
				return errors.New("JWT_SECRET is not set")
			}
			if _, ok := auth.RolePermissions[role]; !ok {
				return fmt.Errorf("unknown role %q", role)
			}
			token, err := auth.GenerateToken(cfg.JWTSecret, subject, role, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "local", "token subject")
	cmd.Flags().StringVar(&role, "role", auth.RolePayroll, "viewer, payroll or admin")
	cmd.Flags().DurationVar(&ttl, "ttl", 12*time.Hour, "token lifetime")
	return cmd
}
