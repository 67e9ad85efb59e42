package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/headline-goat/funnel-goat/internal/experiment"
	"github.com/headline-goat/funnel-goat/internal/store"
)

// policySpec is one experiment as written in a policy file or on the command line.
type policySpec struct {
	Page                string   `yaml:"page"`
	TestID              string   `yaml:"test_id"`
	Variants            []string `yaml:"variants"`
	MinEntersPerVariant *int     `yaml:"min_enters_per_variant"`
	MinAbsLift          *float64 `yaml:"min_abs_lift"`
	LockEnabled         bool     `yaml:"lock_enabled"`
	LockTTLHours        *int     `yaml:"lock_ttl_hours"`
	Active              *bool    `yaml:"active"` // defaults to true
}

type policyFile struct {
	Policies []policySpec `yaml:"policies"`
}

func (p policySpec) experiment() (*store.Experiment, error) {
	page := experiment.NormalizePage(p.Page)
	if page == "" {
		return nil, errors.New("page is required")
	}
	if p.TestID == "" {
		return nil, fmt.Errorf("%s: test_id is required", page)
	}

	variants := experiment.NormalizeVariants(p.Variants)
	if len(variants) < 2 {
		return nil, fmt.Errorf("%s: need at least 2 variants. Example: --variants \"a,b\"", page)
	}
	encoded, err := json.Marshal(variants)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to encode variants: %w", page, err)
	}

	active := true
	if p.Active != nil {
		active = *p.Active
	}

	return &store.Experiment{
		Page:                page,
		TestID:              p.TestID,
		Variants:            string(encoded),
		MinEntersPerVariant: p.MinEntersPerVariant,
		MinAbsLift:          p.MinAbsLift,
		LockEnabled:         p.LockEnabled,
		LockTTLHours:        p.LockTTLHours,
		Active:              active,
	}, nil
}

// parsePolicyFile decodes a YAML document with a top-level policies list.
func parsePolicyFile(r io.Reader) ([]policySpec, error) {
	var f policyFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("policy file is empty")
		}
		return nil, fmt.Errorf("failed to parse policy file: %w", err)
	}
	if len(f.Policies) == 0 {
		return nil, errors.New("policy file has no policies")
	}
	return f.Policies, nil
}

// savePolicies validates every entry before writing any of them.
func savePolicies(ctx context.Context, s store.ExperimentStore, w io.Writer, specs []policySpec) error {
	exps := make([]*store.Experiment, 0, len(specs))
	for _, spec := range specs {
		exp, err := spec.experiment()
		if err != nil {
			return err
		}
		exps = append(exps, exp)
	}

	for _, exp := range exps {
		saved, err := s.UpsertExperiment(ctx, exp)
		if err != nil {
			return err
		}
		p := experiment.NormalizePolicy(saved)
		fmt.Fprintf(w, "Saved policy '%s' (%s) with %d variants: %v\n", p.Page, p.TestID, len(p.Variants), p.Variants)
	}
	return nil
}

func printPolicies(ctx context.Context, s store.ExperimentStore, w io.Writer) error {
	exps, err := s.ListExperiments(ctx)
	if err != nil {
		return err
	}

	if len(exps) == 0 {
		fmt.Fprintln(w, "No policies yet.")
		fmt.Fprintln(w)
		fmt.Fprintln(w, "Create one with:")
		fmt.Fprintln(w, "  funnel-goat policy set sleep --test-id sleep-cta-1 --variants a,b --lock")
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "PAGE\tTEST ID\tSTATUS\tVARIANTS\tMIN ENTERS\tMIN LIFT\tLOCK\tUPDATED")

	for _, exp := range exps {
		p := experiment.NormalizePolicy(exp)

		status := "ACTIVE"
		if !exp.Active {
			status = "DISABLED"
		}

		lock := "off"
		if p.LockEnabled {
			lock = "indefinite"
			if p.LockTTLHours != nil {
				lock = strconv.Itoa(*p.LockTTLHours) + "h"
			}
		}

		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%s\t%s\t%s\n",
			p.Page,
			p.TestID,
			status,
			len(p.Variants),
			p.MinEntersPerVariant,
			formatPercent(p.MinAbsLift),
			lock,
			exp.UpdatedAt.Format("2006-01-02"),
		)
	}

	return tw.Flush()
}

func init() {
	rootCmd.AddCommand(newPolicyCmd())
}

func newPolicyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "policy",
		Short: "Manage per-page experiment policies",
	}

	cmd.AddCommand(newPolicySetCmd(), newPolicyListCmd(), newPolicyApplyCmd(), newPolicyDisableCmd())
	return cmd
}

func newPolicySetCmd() *cobra.Command {
	var (
		spec      policySpec
		variants  []string
		minEnters int
		minLift   float64
		ttlHours  int
		disabled  bool
	)

	cmd := &cobra.Command{
		Use:   "set <page>",
		Short: "Create or replace the policy for a page",
		Long: `Create or replace the experiment policy for a page.

Thresholds left unset fall back to the defaults (50 enters per variant,
2% absolute lift). Without --ttl-hours a lock never expires.

Examples:
  funnel-goat policy set sleep --test-id sleep-cta-1 --variants a,b
  funnel-goat policy set joint --test-id joint-cta-2 --variants a,b,c --min-enters 100 --min-lift 0.03 --lock --ttl-hours 72`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			spec.Page = args[0]
			spec.Variants = variants
			if cmd.Flags().Changed("min-enters") {
				spec.MinEntersPerVariant = &minEnters
			}
			if cmd.Flags().Changed("min-lift") {
				spec.MinAbsLift = &minLift
			}
			if cmd.Flags().Changed("ttl-hours") {
				spec.LockTTLHours = &ttlHours
			}
			active := !disabled
			spec.Active = &active

			return withStore(func(s *store.SQLStore) error {
				return savePolicies(cmd.Context(), s, cmd.OutOrStdout(), []policySpec{spec})
			})
		},
	}

	cmd.Flags().StringVar(&spec.TestID, "test-id", "", "experiment identifier (required)")
	cmd.Flags().StringSliceVarP(&variants, "variants", "v", nil, "comma-separated variant keys (required)")
	cmd.Flags().IntVar(&minEnters, "min-enters", experiment.DefaultMinEntersPerVariant, "minimum entering sessions per variant")
	cmd.Flags().Float64Var(&minLift, "min-lift", experiment.DefaultMinAbsLift, "minimum absolute click-rate lift")
	cmd.Flags().BoolVar(&spec.LockEnabled, "lock", false, "lock the winner once selected")
	cmd.Flags().IntVar(&ttlHours, "ttl-hours", 0, "lock lifetime in hours (0 = indefinite)")
	cmd.Flags().BoolVar(&disabled, "disabled", false, "save the policy without activating it")
	cmd.MarkFlagRequired("test-id")
	cmd.MarkFlagRequired("variants")

	return cmd
}

func newPolicyListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all policies",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(func(s *store.SQLStore) error {
				return printPolicies(cmd.Context(), s, cmd.OutOrStdout())
			})
		},
	}
}

func newPolicyApplyCmd() *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "apply",
		Short: "Upsert policies from a YAML file",
		Long: `Upsert every policy in a YAML file. Nothing is written if any entry is invalid.

Example file:
  policies:
    - page: sleep
      test_id: sleep-cta-1
      variants: [a, b]
      lock_enabled: true
      lock_ttl_hours: 72
    - page: joint
      test_id: joint-cta-1
      variants: [a, b, c]
      min_enters_per_variant: 100

Example:
  funnel-goat policy apply -f policies.yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(file)
			if err != nil {
				return fmt.Errorf("failed to open policy file: %w", err)
			}
			defer f.Close()

			specs, err := parsePolicyFile(f)
			if err != nil {
				return err
			}

			return withStore(func(s *store.SQLStore) error {
				return savePolicies(cmd.Context(), s, cmd.OutOrStdout(), specs)
			})
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "policy file (required)")
	cmd.MarkFlagRequired("file")

	return cmd
}

func newPolicyDisableCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "disable <page>",
		Short: "Deactivate the policy for a page",
		Long: `Deactivate the policy for a page. The winner endpoint reports
NO_ACTIVE_EXPERIMENT for it until the policy is set again.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			page := experiment.NormalizePage(args[0])
			return withStore(func(s *store.SQLStore) error {
				if err := s.SetExperimentActive(cmd.Context(), page, false); err != nil {
					if errors.Is(err, store.ErrNotFound) {
						return fmt.Errorf("no policy for page '%s'", page)
					}
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Disabled policy for page '%s'\n", page)
				return nil
			})
		},
	}
}
