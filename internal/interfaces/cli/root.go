// Package cli implements the prioritycraft command-line interface, a thin
// client over the engine's HTTP API.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/turtacn/PriorityCraft/pkg/client"
)

// Build-time variables injected via ldflags.
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// RootOptions holds the global flags shared by every subcommand.
type RootOptions struct {
	ServerAddr string
	APIKey     string
	Output     string
	Timeout    time.Duration
}

type cliContextKey struct{}

// CLIContext carries the initialized API client through the command tree.
type CLIContext struct {
	Client *client.Client
	Output string
}

// NewRootCommand builds the root command with global flags and subcommands.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "prioritycraft",
		Short: "PriorityCraft CLI — multi-criteria work-item prioritization",
		Long: "PriorityCraft derives criterion weights from pairwise stakeholder\n" +
			"comparisons and ranks work items against the approved weights.",
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", Version, GitCommit, BuildDate),
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return initContext(cmd, opts)
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := cmd.PersistentFlags()
	pf.StringVar(&opts.ServerAddr, "server", "http://localhost:8080", "engine API address")
	pf.StringVar(&opts.APIKey, "api-key", "", "bearer token for the engine API")
	pf.StringVarP(&opts.Output, "output", "o", "text", "output format (text, json)")
	pf.DurationVar(&opts.Timeout, "timeout", 30*time.Second, "request timeout")

	cmd.AddCommand(
		NewWeightsCmd(),
		NewCalcCmd(),
	)

	return cmd
}

func initContext(cmd *cobra.Command, opts *RootOptions) error {
	apiClient, err := client.NewClient(opts.ServerAddr, opts.APIKey, client.WithTimeout(opts.Timeout))
	if err != nil {
		return fmt.Errorf("client initialization failed: %w", err)
	}

	cliCtx := &CLIContext{Client: apiClient, Output: strings.ToLower(opts.Output)}
	cmd.SetContext(context.WithValue(cmd.Context(), cliContextKey{}, cliCtx))
	return nil
}

// getCLIContext extracts the CLIContext installed by PersistentPreRunE.
func getCLIContext(cmd *cobra.Command) (*CLIContext, error) {
	ctx := cmd.Context()
	if ctx == nil {
		return nil, fmt.Errorf("command context is nil")
	}
	cliCtx, ok := ctx.Value(cliContextKey{}).(*CLIContext)
	if !ok || cliCtx == nil {
		return nil, fmt.Errorf("CLI context not initialized")
	}
	return cliCtx, nil
}

// printResult renders data in the selected output format.
func printResult(cmd *cobra.Command, data interface{}) error {
	cliCtx, err := getCLIContext(cmd)
	if err == nil && cliCtx.Output == "json" {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(data)
	}

	switch v := data.(type) {
	case string:
		fmt.Fprintln(cmd.OutOrStdout(), v)
	case fmt.Stringer:
		fmt.Fprintln(cmd.OutOrStdout(), v.String())
	default:
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(data)
	}
	return nil
}

// formatTable renders headers and rows as an aligned ASCII table.
func formatTable(headers []string, rows [][]string) string {
	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = len(h)
	}
	for _, row := range rows {
		for i := 0; i < len(row) && i < len(widths); i++ {
			if len(row[i]) > widths[i] {
				widths[i] = len(row[i])
			}
		}
	}

	var sb strings.Builder
	writeRow := func(cells []string) {
		for i := range headers {
			if i > 0 {
				sb.WriteString("  ")
			}
			val := ""
			if i < len(cells) {
				val = cells[i]
			}
			sb.WriteString(val)
			sb.WriteString(strings.Repeat(" ", widths[i]-len(val)))
		}
		sb.WriteString("\n")
	}

	writeRow(headers)
	for i, w := range widths {
		if i > 0 {
			sb.WriteString("  ")
		}
		sb.WriteString(strings.Repeat("-", w))
	}
	sb.WriteString("\n")
	for _, row := range rows {
		writeRow(row)
	}
	return sb.String()
}

// Execute runs the CLI and returns the terminal error, if any.
func Execute() error {
	rootCmd := NewRootCommand()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(rootCmd.ErrOrStderr(), "Error: %s\n", err.Error())
		return err
	}
	return nil
}
