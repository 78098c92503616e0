package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/crypto/bcrypt"

	"github.com/iho/gobank/internal/adapter/http/dto"
	"github.com/iho/gobank/internal/infrastructure/postgres"
)

var (
	baseURL string
	token   string
	timeout time.Duration

	bcryptGenerate = bcrypt.GenerateFromPassword
	runMigrations  = postgres.RunMigrations
	rollback       = postgres.RunMigrationsDown
)

// errInconsistent makes the process exit non-zero when the ledger is off.
var errInconsistent = errors.New("ledger is inconsistent")

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "gobank-cli",
		Short:         "GoBank CLI tool",
		Long:          `A command line interface for operating a GoBank deployment.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&baseURL, "url", "http://localhost:8080", "Base URL of the GoBank API")
	rootCmd.PersistentFlags().StringVar(&token, "token", os.Getenv("GOBANK_TOKEN"), "Bearer token (defaults to $GOBANK_TOKEN)")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 10*time.Second, "Request timeout")

	ledgerCmd := &cobra.Command{
		Use:   "ledger",
		Short: "Ledger operations",
	}
	ledgerCmd.AddCommand(&cobra.Command{
		Use:   "consistency",
		Short: "Check that every balance matches its audit trail",
		RunE:  checkConsistency,
	})

	interestCmd := &cobra.Command{
		Use:   "interest",
		Short: "Interest operations",
	}
	interestCmd.AddCommand(&cobra.Command{
		Use:   "post",
		Short: "Credit monthly interest to all savings accounts",
		RunE:  postInterest,
	})

	historyCmd := &cobra.Command{
		Use:   "history",
		Short: "Account history",
	}
	historyCmd.AddCommand(exportCmd())

	rootCmd.AddCommand(ledgerCmd, interestCmd, historyCmd, hashPasswordCmd(), migrateCmd())
	return rootCmd
}

func checkConsistency(cmd *cobra.Command, _ []string) error {
	var report dto.ConsistencyResponse
	if err := call(cmd.Context(), http.MethodGet, "/api/v1/admin/consistency", &report); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Accounts:    %d (%d reconciled)\n", report.TotalAccounts, report.ReconciledAccounts)
	fmt.Fprintf(out, "Balances:    %s\n", report.TotalBalance)
	fmt.Fprintf(out, "Recorded:    %s\n", report.TotalRecorded)
	for _, d := range report.Discrepancies {
		fmt.Fprintf(out, "  %s stored=%s calculated=%s diff=%s\n",
			d.AccountNumber, d.StoredBalance, d.CalculatedBalance, d.Difference)
	}

	if !report.LedgerConsistent {
		fmt.Fprintln(out, "Consistency check FAILED")
		return errInconsistent
	}
	fmt.Fprintln(out, "Consistency check PASSED")
	return nil
}

func postInterest(cmd *cobra.Command, _ []string) error {
	var report dto.InterestReportResponse
	if err := call(cmd.Context(), http.MethodPost, "/api/v1/admin/interest", &report); err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), report)
}

func exportCmd() *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "export <account-number>",
		Short: "Download an account's transactions as CSV",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := send(cmd.Context(), http.MethodGet, "/api/v1/accounts/"+args[0]+"/transactions.csv")
			if err != nil {
				return err
			}
			defer resp.Body.Close()

			var w io.Writer = cmd.OutOrStdout()
			if output != "" {
				f, err := os.Create(output)
				if err != nil {
					return err
				}
				defer f.Close()
				w = f
			}

			_, err = io.Copy(w, resp.Body)
			return err
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "Write to file instead of stdout")
	return cmd
}

func hashPasswordCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "hash-password <password>",
		Short: "Print a bcrypt hash, e.g. for seeding an admin user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			hash, err := bcryptGenerate([]byte(args[0]), bcrypt.DefaultCost)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(hash))
			return nil
		},
	}
}

func migrateCmd() *cobra.Command {
	var databaseURL, path string

	cmd := &cobra.Command{
		Use:       "migrate <up|down>",
		Short:     "Apply or roll back database migrations",
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{"up", "down"},
		RunE: func(cmd *cobra.Command, args []string) error {
			if databaseURL == "" {
				return errors.New("--database-url or $DATABASE_URL is required")
			}
			if args[0] == "down" {
				return rollback(databaseURL, path)
			}
			return runMigrations(databaseURL, path)
		},
	}

	cmd.Flags().StringVar(&databaseURL, "database-url", os.Getenv("DATABASE_URL"), "PostgreSQL URL")
	cmd.Flags().StringVar(&path, "path", "migrations", "Migrations directory")
	return cmd
}

// send performs an authenticated request and turns error responses into errors.
func send(ctx context.Context, method, path string) (*http.Response, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	req, err := http.NewRequestWithContext(ctx, method, baseURL+path, nil)
	if err != nil {
		return nil, err
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	client := &http.Client{Timeout: timeout}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		defer resp.Body.Close()
		var apiErr dto.ErrorResponse
		body, _ := io.ReadAll(resp.Body)
		if json.Unmarshal(body, &apiErr) == nil && apiErr.Error != "" {
			return nil, fmt.Errorf("%s (status %d): %s", apiErr.Error, resp.StatusCode, apiErr.Message)
		}
		return nil, fmt.Errorf("status %d: %s", resp.StatusCode, truncate(string(body), 200))
	}

	return resp, nil
}

func call(ctx context.Context, method, path string, out any) error {
	resp, err := send(ctx, method, path)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
