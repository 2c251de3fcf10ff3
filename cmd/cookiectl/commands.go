package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/leojscalabrin/glorpinia-AI/config"
	"github.com/leojscalabrin/glorpinia-AI/db"
	"github.com/leojscalabrin/glorpinia-AI/ledger"
)

const defaultHouse = "glorpinia"

type app struct {
	dsn     string
	house   string
	verbose bool
	logger  *slog.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:           "cookiectl",
		Short:         "Inspect and adjust the Glorpinia cookie ledger",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			lvl := slog.LevelWarn
			if a.verbose {
				lvl = slog.LevelDebug
			}
			a.logger = slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: lvl}))
			slog.SetDefault(a.logger)
		},
	}
	root.PersistentFlags().StringVar(&a.dsn, "dsn", "", "database DSN (default DB_DSN or "+db.DefaultDSN+")")
	root.PersistentFlags().StringVar(&a.house, "house", "", "house account (default TWITCH_BOT_USERNAME or "+defaultHouse+")")
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "debug logging")

	root.AddCommand(
		newBalanceCmd(a),
		newGiveCmd(a),
		newTakeCmd(a),
		newTopCmd(a),
		newHistoryCmd(a),
		newSupplyCmd(a),
		newBonusCmd(a),
		newMigrateCmd(a),
		newHealthCmd(),
	)
	return root
}

// openDB opens the configured database without touching the schema.
func (a *app) openDB() (*db.DB, *config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	dsn := a.dsn
	if dsn == "" {
		dsn = cfg.DBDsn
	}
	dbx, err := db.Open(dsn)
	if err != nil {
		return nil, nil, err
	}
	return dbx, cfg, nil
}

// openLedger opens and migrates the database and builds the ledger with the same
// forbidden list and house account the bot uses.
func (a *app) openLedger() (*ledger.Ledger, func(), error) {
	dbx, cfg, err := a.openDB()
	if err != nil {
		return nil, nil, err
	}
	if err := db.RunMigrations(dbx); err != nil {
		_ = dbx.Close()
		return nil, nil, err
	}
	house := a.house
	if house == "" {
		house = cfg.TwitchBotUsername
	}
	if house == "" {
		house = defaultHouse
	}
	l := ledger.New(ledger.NewStore(dbx), ledger.NewValidator(cfg.Forbidden()...), house, a.logger)
	return l, func() { _ = dbx.Close() }, nil
}

func parseAmount(s string) (int64, error) {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("amount must be a positive integer, got %q", s)
	}
	return n, nil
}

func newBalanceCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "balance <principal>",
		Short: "Show a balance",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			l, closeFn, err := a.openLedger()
			if err != nil {
				return err
			}
			defer closeFn()
			p, err := l.Validator().Validate(args[0])
			if err != nil {
				return fmt.Errorf("%q: %w", args[0], err)
			}
			bal, err := l.Store().Balance(cmd.Context(), p)
			if err != nil {
				return err
			}
			printInfo(cmd.OutOrStdout(), "%s: %d 🍪", p, bal)
			return nil
		},
	}
}

func newGiveCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "give <principal> <amount>",
		Short: "Grant cookies (recorded as admin_grant)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			amount, err := parseAmount(args[1])
			if err != nil {
				return err
			}
			l, closeFn, err := a.openLedger()
			if err != nil {
				return err
			}
			defer closeFn()
			p, err := l.Validator().Validate(args[0])
			if err != nil {
				return fmt.Errorf("%q: %w", args[0], err)
			}
			ctx := ledger.WithReason(cmd.Context(), ledger.ReasonAdminGrant)
			if !l.AddCookies(ctx, p, amount) {
				return errors.New("grant failed; rerun with -v for details")
			}
			printSuccess(cmd.OutOrStdout(), "%s %s 🍪 (balance %d)", p, signed(amount), l.GetBalance(cmd.Context(), p))
			return nil
		},
	}
}

func newTakeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "take <principal> <amount>",
		Short: "Move cookies into the house account (recorded as admin_take)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			amount, err := parseAmount(args[1])
			if err != nil {
				return err
			}
			l, closeFn, err := a.openLedger()
			if err != nil {
				return err
			}
			defer closeFn()
			p, err := l.Validator().Validate(args[0])
			if err != nil {
				return fmt.Errorf("%q: %w", args[0], err)
			}
			if p == l.House() {
				return ledger.ErrHouseAccount
			}
			ctx := ledger.WithReason(cmd.Context(), ledger.ReasonAdminTake)
			moved := l.RemoveCookies(ctx, p, amount)
			out := cmd.OutOrStdout()
			if moved < amount {
				printWarn(out, "only %d of %d available", moved, amount)
			}
			printSuccess(out, "%s %s 🍪 (balance %d)", p, signed(-moved), l.GetBalance(cmd.Context(), p))
			return nil
		},
	}
}

func newTopCmd(a *app) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "top",
		Short: "Show the leaderboard",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			l, closeFn, err := a.openLedger()
			if err != nil {
				return err
			}
			defer closeFn()
			out := cmd.OutOrStdout()
			entries := l.GetLeaderboard(cmd.Context(), limit)
			if len(entries) == 0 {
				printWarn(out, "no accounts yet")
				return nil
			}
			for i, e := range entries {
				_, _ = accent.Fprintf(out, "%2d. ", i+1)
				printInfo(out, "%s (%d)", e.Principal, e.Balance)
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "number of rows")
	return cmd
}

func newHistoryCmd(a *app) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history <principal>",
		Short: "Show the newest transaction log rows for an account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			l, closeFn, err := a.openLedger()
			if err != nil {
				return err
			}
			defer closeFn()
			p := ledger.Normalize(args[0])
			rows, err := l.Store().History(cmd.Context(), p, limit)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(rows) == 0 {
				printWarn(out, "no history for %s", p)
				return nil
			}
			for _, r := range rows {
				line := fmt.Sprintf("%s  %6s  %-15s %s", r.CreatedAt.Format(time.DateTime), signed(r.Delta), r.Reason, r.GroupID)
				if r.Delta < 0 {
					printError(out, "%s", line)
				} else {
					printSuccess(out, "%s", line)
				}
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of rows")
	return cmd
}

func newSupplyCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "supply",
		Short: "Show the total number of cookies in circulation",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			l, closeFn, err := a.openLedger()
			if err != nil {
				return err
			}
			defer closeFn()
			total, err := l.Store().TotalSupply(cmd.Context())
			if err != nil {
				return err
			}
			printInfo(cmd.OutOrStdout(), "total supply: %d 🍪", total)
			return nil
		},
	}
}

func newBonusCmd(a *app) *cobra.Command {
	var amount int64
	cmd := &cobra.Command{
		Use:   "bonus",
		Short: "Apply the daily bonus to every account now",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if amount <= 0 {
				return fmt.Errorf("amount must be positive, got %d", amount)
			}
			l, closeFn, err := a.openLedger()
			if err != nil {
				return err
			}
			defer closeFn()
			n, err := l.Store().ApplyBonus(cmd.Context(), amount)
			if err != nil {
				return err
			}
			printSuccess(cmd.OutOrStdout(), "credited %d 🍪 to %d accounts", amount, n)
			return nil
		},
	}
	cmd.Flags().Int64Var(&amount, "amount", 5, "cookies per account")
	return cmd
}

func newMigrateCmd(a *app) *cobra.Command {
	m := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the database schema",
	}
	run := func(fn func(cmd *cobra.Command, dbx *db.DB) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, _ []string) error {
			dbx, _, err := a.openDB()
			if err != nil {
				return err
			}
			defer func() { _ = dbx.Close() }()
			return fn(cmd, dbx)
		}
	}
	m.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Apply all pending migrations",
			Args:  cobra.NoArgs,
			RunE: run(func(cmd *cobra.Command, dbx *db.DB) error {
				if err := db.RunMigrations(dbx); err != nil {
					return err
				}
				return printVersion(cmd, dbx)
			}),
		},
		&cobra.Command{
			Use:   "down",
			Short: "Roll back the most recent migration (drops data)",
			Args:  cobra.NoArgs,
			RunE: run(func(cmd *cobra.Command, dbx *db.DB) error {
				if err := db.MigrateDown(dbx); err != nil {
					return err
				}
				return printVersion(cmd, dbx)
			}),
		},
		&cobra.Command{
			Use:   "version",
			Short: "Print the current schema version",
			Args:  cobra.NoArgs,
			RunE:  run(printVersion),
		},
	)
	return m
}

func printVersion(cmd *cobra.Command, dbx *db.DB) error {
	v, dirty, err := db.MigrationVersion(dbx)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if dirty {
		printError(out, "schema version %d (dirty)", v)
		return nil
	}
	printInfo(out, "schema version %d", v)
	return nil
}

func newHealthCmd() *cobra.Command {
	var (
		url     string
		timeout time.Duration
	)
	cmd := &cobra.Command{
		Use:   "health",
		Short: "Check the bot's /healthz endpoint (exit status 1 when unhealthy)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
			if err != nil {
				return err
			}
			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				return err
			}
			defer func() { _ = resp.Body.Close() }()
			if resp.StatusCode != http.StatusOK {
				return fmt.Errorf("unhealthy: %s", resp.Status)
			}
			printSuccess(cmd.OutOrStdout(), "healthy")
			return nil
		},
	}
	cmd.Flags().StringVar(&url, "url", "http://localhost:8080/healthz", "health endpoint")
	cmd.Flags().DurationVar(&timeout, "timeout", 3*time.Second, "request timeout")
	return cmd
}
