package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/turtacn/PriorityCraft/pkg/types/common"
	"github.com/turtacn/PriorityCraft/pkg/types/decision"
)

// NewCalcCmd groups the calculation run commands.
func NewCalcCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "calc",
		Short: "Run and inspect prioritization calculations",
	}

	cmd.AddCommand(
		newCalcRunCmd(),
		newCalcStatusCmd(),
		newCalcResultCmd(),
		newCalcCancelCmd(),
	)
	return cmd
}

func newCalcRunCmd() *cobra.Command {
	var (
		enhance  bool
		filter   string
		items    []string
		weights  string
		wait     bool
		interval time.Duration
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start a calculation run",
		Long: "Starts an asynchronous run against the latest approved weights,\n" +
			"or against a specific approved vector with --weights.\n" +
			"With --wait the command polls until the run reaches a terminal state.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cliCtx, err := getCLIContext(cmd)
			if err != nil {
				return err
			}

			opts := decision.CalculationOptions{
				EnableEnhancement: enhance,
				Filter:            filter,
				ChangedItemIDs:    items,
				WeightVectorID:    common.ID(weights),
			}
			status, err := cliCtx.Client.StartCalculation(cmd.Context(), opts)
			if err != nil {
				return err
			}

			if !wait {
				if cliCtx.Output == "json" {
					return printResult(cmd, status)
				}
				return printResult(cmd, fmt.Sprintf("run %s started (%s)", status.RunID, status.State))
			}

			final, err := pollRun(cmd, cliCtx, status.RunID, interval)
			if err != nil {
				return err
			}
			if cliCtx.Output == "json" {
				return printResult(cmd, final)
			}
			return printResult(cmd, fmt.Sprintf("run %s finished: %s (%d/%d items)",
				final.RunID, final.State, final.ScoredItems, final.TotalItems))
		},
	}

	cmd.Flags().BoolVar(&enhance, "enhance", false, "apply the enhancement chain to scores")
	cmd.Flags().StringVar(&filter, "filter", "", "item store filter expression")
	cmd.Flags().StringSliceVar(&items, "items", nil, "changed item IDs for incremental recalculation")
	cmd.Flags().StringVar(&weights, "weights", "", "pin the run to a specific approved weight vector ID")
	cmd.Flags().BoolVar(&wait, "wait", false, "block until the run finishes")
	cmd.Flags().DurationVar(&interval, "poll-interval", 2*time.Second, "status poll interval with --wait")
	return cmd
}

func newCalcStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status <run-id>",
		Short: "Show a run's state and progress",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cliCtx, err := getCLIContext(cmd)
			if err != nil {
				return err
			}

			status, err := cliCtx.Client.CalculationStatus(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			if cliCtx.Output == "json" {
				return printResult(cmd, status)
			}
			line := fmt.Sprintf("run %s: %s %.0f%% (%d/%d items)",
				status.RunID, status.State, status.Progress*100, status.ScoredItems, status.TotalItems)
			if status.Error != "" {
				line += " error: " + status.Error
			}
			return printResult(cmd, line)
		},
	}
	return cmd
}

func newCalcResultCmd() *cobra.Command {
	var top int

	cmd := &cobra.Command{
		Use:   "result <run-id>",
		Short: "Show a finished run's ranking",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cliCtx, err := getCLIContext(cmd)
			if err != nil {
				return err
			}

			result, err := cliCtx.Client.CalculationResult(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			if cliCtx.Output == "json" {
				return printResult(cmd, result)
			}
			return printResult(cmd, formatRanking(result, top))
		},
	}

	cmd.Flags().IntVar(&top, "top", 0, "limit output to the top N items (0 = all)")
	return cmd
}

func newCalcCancelCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cancel <run-id>",
		Short: "Request cooperative cancellation of a run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cliCtx, err := getCLIContext(cmd)
			if err != nil {
				return err
			}
			if err := cliCtx.Client.CancelCalculation(cmd.Context(), args[0]); err != nil {
				return err
			}
			return printResult(cmd, fmt.Sprintf("cancellation requested for run %s", args[0]))
		},
	}
	return cmd
}

// pollRun polls the run status until a terminal state or context cancellation.
func pollRun(cmd *cobra.Command, cliCtx *CLIContext, runID string, interval time.Duration) (decision.RunStatus, error) {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		status, err := cliCtx.Client.CalculationStatus(cmd.Context(), runID)
		if err != nil {
			return decision.RunStatus{}, err
		}
		switch status.State {
		case decision.RunStateCompleted, decision.RunStateFailed, decision.RunStateCancelled:
			return status, nil
		}

		select {
		case <-cmd.Context().Done():
			return decision.RunStatus{}, cmd.Context().Err()
		case <-ticker.C:
		}
	}
}

// formatRanking renders a ranking table with score and confidence columns.
func formatRanking(result decision.CalculationResult, top int) string {
	items := result.RankedItems
	if top > 0 && top < len(items) {
		items = items[:top]
	}

	rows := make([][]string, 0, len(items))
	for _, ri := range items {
		rows = append(rows, []string{
			fmt.Sprintf("%d", ri.Rank),
			ri.ItemID,
			fmt.Sprintf("%.4f", ri.Score.Total),
			fmt.Sprintf("%.2f", ri.Score.Confidence),
		})
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "run %s: %d items", result.RunID, len(result.RankedItems))
	if result.Partial {
		sb.WriteString(" (partial)")
	}
	sb.WriteString("\n\n")
	sb.WriteString(formatTable([]string{"RANK", "ITEM", "SCORE", "CONFIDENCE"}, rows))
	return sb.String()
}
