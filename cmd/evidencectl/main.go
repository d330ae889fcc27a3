package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/jmerrifield20/EvidenceLedger/pkg/client"
	"github.com/jmerrifield20/EvidenceLedger/pkg/evidence"
)

// version is overridden via -ldflags "-X main.version=...".
var version = "dev"

var (
	cfgFile   string
	ledgerURL string
	timeout   time.Duration
	retries   int
	rps       float64
	format    string
	verbose   bool
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(exitCode(err))
	}
}

var rootCmd = &cobra.Command{
	Use:   "evidencectl",
	Short: "Evidence ledger CLI",
	Long: `evidencectl submits digital evidence to an evidence ledger and reads back
its custody records.

Every submission appends a new immutable version for the evidence identifier.
The four digests (MD5, SHA-1, SHA-256, SHA-512) are computed locally and
compared with the ones the ledger reports.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if cfgFile != "" {
			viper.SetConfigFile(cfgFile)
		} else {
			home, _ := os.UserHomeDir()
			viper.AddConfigPath(filepath.Join(home, ".evidencectl"))
			viper.SetConfigName("config")
			viper.SetConfigType("yaml")
		}
		viper.SetEnvPrefix("evidencectl")
		viper.AutomaticEnv()
		_ = viper.ReadInConfig()

		if ledgerURL == "" {
			ledgerURL = viper.GetString("ledger_url")
		}
		if ledgerURL == "" {
			ledgerURL = "http://localhost:9099"
		}
	},
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "", "config file (default ~/.evidencectl/config.yaml)")
	pf.StringVar(&ledgerURL, "ledger", "", "evidence ledger base URL (default http://localhost:9099)")
	pf.DurationVar(&timeout, "timeout", 30*time.Second, "per-request timeout")
	pf.IntVar(&retries, "retries", 3, "attempts for read operations on transport or 5xx failures")
	pf.Float64Var(&rps, "rps", 0, "client-side request rate limit; 0 disables")
	pf.StringVar(&format, "format", "text", "output format: text or json")
	pf.BoolVarP(&verbose, "verbose", "v", false, "log every ledger exchange to stderr")

	rootCmd.AddCommand(submitCmd, getCmd, historyCmd, listCmd, verifyCmd, versionCmd)
}

// newAPI builds the ledger client wrapped in the retry policy from flags.
func newAPI() (client.API, error) {
	logger := zap.NewNop()
	if verbose {
		logger, _ = zap.NewDevelopment()
	}

	opts := []client.Option{
		client.WithTimeout(timeout),
		client.WithLogger(logger),
		client.WithUserAgent("evidencectl/" + version),
	}
	if rps > 0 {
		opts = append(opts, client.WithRateLimit(rps, 1))
	}
	c, err := client.New(ledgerURL, opts...)
	if err != nil {
		return nil, err
	}

	r := client.NewRetrying(c, client.RetryPolicy{MaxAttempts: retries})
	r.SetLogger(logger)
	return r, nil
}

// ── submit ───────────────────────────────────────────────────────────────────

var (
	subID          string
	subFile        string
	subTimestamp   string
	subCollector   string
	subDescription string
)

var submitCmd = &cobra.Command{
	Use:   "submit",
	Short: "Submit a file as a new version of an evidence item",
	Example: `  evidencectl submit --id CASE-7-DISK --file disk.img \
      --collector "J. Doe" --description "acquired from suspect laptop"`,
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(subFile)
		if err != nil {
			return fmt.Errorf("read evidence file: %w", err)
		}
		if subTimestamp == "" {
			subTimestamp = time.Now().UTC().Format(time.RFC3339)
		}

		api, err := newAPI()
		if err != nil {
			return err
		}
		ack, err := api.Submit(cmd.Context(), client.SubmitRequest{
			EvidenceID:  subID,
			File:        data,
			FileName:    filepath.Base(subFile),
			Timestamp:   subTimestamp,
			Collector:   subCollector,
			Description: subDescription,
		})
		if err != nil {
			return err
		}
		return printAck(os.Stdout, ack)
	},
}

func init() {
	f := submitCmd.Flags()
	f.StringVar(&subID, "id", "", "evidence identifier (required)")
	f.StringVar(&subFile, "file", "", "path of the evidence file (required)")
	f.StringVar(&subTimestamp, "timestamp", "", "collection time (default now, RFC3339)")
	f.StringVar(&subCollector, "collector", "", "who collected the evidence (required)")
	f.StringVar(&subDescription, "description", "", "free-text description (required)")
	_ = submitCmd.MarkFlagRequired("id")
	_ = submitCmd.MarkFlagRequired("file")
	_ = submitCmd.MarkFlagRequired("collector")
	_ = submitCmd.MarkFlagRequired("description")
}

// ── get / history / list ─────────────────────────────────────────────────────

var getCmd = &cobra.Command{
	Use:   "get <evidence-id>",
	Short: "Show the latest version of an evidence item",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		api, err := newAPI()
		if err != nil {
			return err
		}
		rec, err := api.QueryEvidence(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return printRecord(os.Stdout, rec)
	},
}

var historyCmd = &cobra.Command{
	Use:   "history <evidence-id>",
	Short: "Show every version of an evidence item, oldest first",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		api, err := newAPI()
		if err != nil {
			return err
		}
		hist, err := api.QueryHistory(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return printRecords(os.Stdout, hist)
	},
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List the latest version of every evidence item",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		api, err := newAPI()
		if err != nil {
			return err
		}
		all, err := api.QueryAll(cmd.Context())
		if err != nil {
			return err
		}
		return printRecords(os.Stdout, all)
	},
}

// ── verify ───────────────────────────────────────────────────────────────────

var verifyFile string

var verifyCmd = &cobra.Command{
	Use:   "verify <evidence-id> --file <path>",
	Short: "Check a local file against the latest ledger record",
	Long: `verify recomputes the four digests of a local file and compares them with
the latest version recorded by the ledger. It exits non-zero on any mismatch.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(verifyFile)
		if err != nil {
			return fmt.Errorf("read evidence file: %w", err)
		}
		local, err := evidence.ComputeHashes(bytes.NewReader(data))
		if err != nil {
			return err
		}

		api, err := newAPI()
		if err != nil {
			return err
		}
		rec, err := api.QueryEvidence(cmd.Context(), args[0])
		if err != nil {
			return err
		}

		mismatches := printVerify(os.Stdout, rec, local)
		if mismatches > 0 {
			return &client.Error{
				Kind:    client.KindIntegrity,
				Op:      "verify",
				Message: fmt.Sprintf("%d of %d digests differ from version %s", mismatches, len(evidence.Algorithms), rec.Version),
			}
		}
		return nil
	},
}

func init() {
	verifyCmd.Flags().StringVar(&verifyFile, "file", "", "path of the local copy (required)")
	_ = verifyCmd.MarkFlagRequired("file")
}

// ── version ──────────────────────────────────────────────────────────────────

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the CLI version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("evidencectl", version)
	},
}

// exitCode reports the error on stderr and maps its kind to a process exit
// status: 2 for caller mistakes, 3 for confirmed absence, 4 for integrity
// failures and 1 for everything else.
func exitCode(err error) int {
	kind := client.KindOf(err)
	label := "error"
	if kind != 0 {
		label = kind.String()
	}
	fmt.Fprintf(os.Stderr, "%s %s: %v\n", color.RedString("✗"), label, err)

	switch {
	case kind == client.KindValidation:
		return 2
	case kind == client.KindNotFound, kind == client.KindEmptyHistory:
		return 3
	case kind == client.KindIntegrity:
		return 4
	case errors.Is(err, context.DeadlineExceeded):
		return 5
	default:
		return 1
	}
}
