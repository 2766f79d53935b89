package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Ramsey-B/clover/pkg/fingerprint"
	"github.com/Ramsey-B/clover/pkg/logger"
	"github.com/Ramsey-B/clover/pkg/matching"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/policies"
)

type cliOptions struct {
	policy         string
	policyFile     string
	candidatesPath string
	referencesPath string
	threshold      float64
	workers        int
	logLevel       string
}

// Report is the JSON document written to stdout
type Report struct {
	Policy                 string                   `json:"policy"`
	Threshold              float64                  `json:"threshold"`
	Candidates             int                      `json:"candidates"`
	References             int                      `json:"references"`
	DuplicatesWithExisting []models.ClassifiedMatch `json:"duplicates_with_existing"`
	DuplicatesInBatch      []models.ClassifiedPair  `json:"duplicates_in_batch"`
	HasExactMatch          bool                     `json:"has_exact_match"`
	BatchFingerprint       string                   `json:"batch_fingerprint"`
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "clover: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var opts cliOptions

	root := &cobra.Command{
		Use:           "clover --candidates FILE [--references FILE]",
		Short:         "Find likely duplicates in a CSV batch",
		Long:          "Compares incoming CSV records with each other and with existing records, and prints ranked, explained matches as JSON.",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			opts.policy = strings.TrimSpace(opts.policy)
			opts.candidatesPath = strings.TrimSpace(opts.candidatesPath)
			opts.referencesPath = strings.TrimSpace(opts.referencesPath)
			return run(cmd.Context(), opts, cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&opts.policyFile, "policy-file", "", "YAML file with additional or overriding policies")
	flags.IntVar(&opts.workers, "workers", 0, "Parallel comparison workers (0 compares sequentially)")
	flags.StringVar(&opts.logLevel, "log-level", "warn", "Log level written to stderr")

	root.Flags().StringVar(&opts.policy, "policy", policies.GuestPolicy, "Policy used to compare records")
	root.Flags().StringVar(&opts.candidatesPath, "candidates", "", "CSV file of incoming records")
	root.Flags().StringVar(&opts.referencesPath, "references", "", "CSV file of existing records; each row needs an id")
	root.Flags().Float64Var(&opts.threshold, "threshold", -1, "Minimum score to report (default: the policy's potential threshold)")
	_ = root.MarkFlagRequired("candidates")

	root.AddCommand(&cobra.Command{
		Use:   "policies",
		Short: "Print the available policies as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			log := logger.NewWithWriter(opts.logLevel, false, cmd.ErrOrStderr())
			catalog, err := policies.Load(opts.policyFile, matching.WithLogger(log))
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), catalog.Policies())
		},
	})

	return root
}

func run(ctx context.Context, opts cliOptions, stdout, stderr io.Writer) error {
	log := logger.NewWithWriter(opts.logLevel, false, stderr)
	defer func() {
		_ = log.Sync()
	}()

	catalog, err := policies.Load(opts.policyFile, matching.WithLogger(log), matching.WithWorkers(opts.workers))
	if err != nil {
		return err
	}

	engine, ok := catalog.Get(opts.policy)
	if !ok {
		return fmt.Errorf("unknown policy '%s' (available: %s)", opts.policy, strings.Join(catalog.Names(), ", "))
	}

	candidates, err := readRecordsFile(opts.candidatesPath)
	if err != nil {
		return fmt.Errorf("reading candidates: %w", err)
	}
	var references []models.Record
	if opts.referencesPath != "" {
		if references, err = readRecordsFile(opts.referencesPath); err != nil {
			return fmt.Errorf("reading references: %w", err)
		}
	}

	threshold := opts.threshold
	if threshold < 0 {
		threshold = engine.Policy().Thresholds.Potential
	}

	log.Info("Resolving batch",
		zap.String("policy", opts.policy),
		zap.Int("candidates", len(candidates)),
		zap.Int("references", len(references)),
		zap.Float64("threshold", threshold),
	)

	result, err := engine.ResolveWithThreshold(ctx, candidates, references, threshold)
	if err != nil {
		return err
	}

	classified := engine.Classified(result)
	return writeJSON(stdout, Report{
		Policy:                 opts.policy,
		Threshold:              threshold,
		Candidates:             len(candidates),
		References:             len(references),
		DuplicatesWithExisting: classified,
		DuplicatesInBatch:      engine.ClassifiedPairs(result),
		HasExactMatch:          matching.HasExactMatch(classified),
		BatchFingerprint:       fingerprint.Batch(engine.Digest(), threshold, candidates, references),
	})
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
