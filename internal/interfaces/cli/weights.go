package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"github.com/turtacn/PriorityCraft/pkg/types/decision"
)

// NewWeightsCmd groups the weight-vector lifecycle commands.
func NewWeightsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "weights",
		Short: "Submit comparisons and manage weight vectors",
	}

	cmd.AddCommand(
		newWeightsSubmitCmd(),
		newWeightsApproveCmd(),
		newWeightsShowCmd(),
	)
	return cmd
}

func newWeightsSubmitCmd() *cobra.Command {
	var (
		stakeholder string
		file        string
	)

	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Submit pairwise comparisons and derive a weight vector",
		Long: "Reads a JSON array of judgments ({left, right, preference}) from\n" +
			"--file (or stdin with --file -) and submits it for weight derivation.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cliCtx, err := getCLIContext(cmd)
			if err != nil {
				return err
			}

			judgments, err := readJudgments(cmd, file)
			if err != nil {
				return err
			}

			result, err := cliCtx.Client.SubmitComparisons(cmd.Context(), stakeholder, judgments)
			if err != nil {
				return err
			}

			if !result.Accepted {
				fmt.Fprintln(cmd.ErrOrStderr(), "rejected: comparisons are too inconsistent; worst pairs:")
				for _, p := range result.WorstPairs {
					fmt.Fprintf(cmd.ErrOrStderr(), "  %s vs %s = %.2f (deviation %.2f)\n",
						p.Left, p.Right, p.Value, p.Deviation)
				}
				return fmt.Errorf("submission rejected")
			}

			if cliCtx.Output == "json" {
				return printResult(cmd, result)
			}
			return printResult(cmd, formatWeightVector(result.WeightVector))
		},
	}

	cmd.Flags().StringVar(&stakeholder, "stakeholder", "", "stakeholder ID [REQUIRED]")
	cmd.Flags().StringVarP(&file, "file", "f", "-", "judgments JSON file, - for stdin")
	cmd.MarkFlagRequired("stakeholder")
	return cmd
}

func newWeightsApproveCmd() *cobra.Command {
	var approver string

	cmd := &cobra.Command{
		Use:   "approve <vector-id>",
		Short: "Record a stakeholder sign-off on a weight vector",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cliCtx, err := getCLIContext(cmd)
			if err != nil {
				return err
			}

			result, err := cliCtx.Client.ApproveWeights(cmd.Context(), args[0], approver)
			if err != nil {
				return err
			}

			if cliCtx.Output == "json" {
				return printResult(cmd, result)
			}
			if result.Approved {
				return printResult(cmd, fmt.Sprintf("vector %s approved (quorum reached)", args[0]))
			}
			return printResult(cmd, fmt.Sprintf("approval recorded for vector %s (quorum pending)", args[0]))
		},
	}

	cmd.Flags().StringVar(&approver, "approver", "", "approving stakeholder ID [REQUIRED]")
	cmd.MarkFlagRequired("approver")
	return cmd
}

func newWeightsShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show [vector-id]",
		Short: "Show a weight vector (latest approved when no ID given)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cliCtx, err := getCLIContext(cmd)
			if err != nil {
				return err
			}

			var wv decision.WeightVector
			if len(args) == 1 {
				wv, err = cliCtx.Client.GetWeights(cmd.Context(), args[0])
			} else {
				wv, err = cliCtx.Client.LatestApprovedWeights(cmd.Context())
			}
			if err != nil {
				return err
			}

			if cliCtx.Output == "json" {
				return printResult(cmd, wv)
			}
			return printResult(cmd, formatWeightVector(&wv))
		},
	}
	return cmd
}

// readJudgments loads the judgment array from a file or stdin.
func readJudgments(cmd *cobra.Command, file string) ([]decision.Judgment, error) {
	var r io.Reader
	if file == "-" || file == "" {
		r = cmd.InOrStdin()
	} else {
		f, err := os.Open(file)
		if err != nil {
			return nil, fmt.Errorf("open judgments file: %w", err)
		}
		defer f.Close()
		r = f
	}

	var judgments []decision.Judgment
	if err := json.NewDecoder(r).Decode(&judgments); err != nil {
		return nil, fmt.Errorf("decode judgments: %w", err)
	}
	if len(judgments) == 0 {
		return nil, fmt.Errorf("no judgments provided")
	}
	return judgments, nil
}

// formatWeightVector renders a vector as a criterion/weight table with the
// consistency summary.
func formatWeightVector(wv *decision.WeightVector) string {
	if wv == nil {
		return "no weight vector"
	}

	ids := make([]string, 0, len(wv.Weights))
	for id := range wv.Weights {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return wv.Weights[ids[i]] > wv.Weights[ids[j]] })

	rows := make([][]string, 0, len(ids))
	for _, id := range ids {
		rows = append(rows, []string{id, fmt.Sprintf("%.4f", wv.Weights[id])})
	}

	return fmt.Sprintf("vector %s (version %d, stakeholder %s)\nCR=%.4f verdict=%s approved=%t\n\n%s",
		wv.ID, wv.Version, wv.StakeholderID,
		wv.ConsistencyRatio, wv.Verdict, wv.Approved,
		formatTable([]string{"CRITERION", "WEIGHT"}, rows))
}
