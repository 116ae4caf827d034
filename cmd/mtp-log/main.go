// Command mtp-log is a tool for viewing and analyzing MTP protocol log
// files.
//
// Log files are written by mtpctl with the --protocol-log flag.
//
// Usage:
//
//	mtp-log <command> [flags] <file.mtplog>
//
// Commands:
//
//	view     View log file in human-readable format
//	export   Export log file to JSON lines or CSV
//	filter   Filter log file and write to new file
//	stats    Show statistics about the log file
//
// Examples:
//
//	# View only transaction events
//	mtp-log view --layer protocol session.mtplog
//
//	# View every GetObjectHandles call
//	mtp-log view --operation GetObjectHandles session.mtplog
//
//	# Export to CSV
//	mtp-log export --format csv -o session.csv session.mtplog
//
//	# Keep one session's events
//	mtp-log filter --session 1f0c2a9e -o one.mtplog session.mtplog
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/luck-mtp/mtp-go/cmd/mtp-log/commands"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "mtp-log",
		Short:         "MTP protocol log analyzer",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.CompletionOptions.DisableDefaultCmd = true
	root.AddCommand(
		newViewCommand(),
		newExportCommand(),
		newFilterCommand(),
		newStatsCommand(),
	)
	return root
}

// addFilterFlags registers the event selection flags on cmd.
func addFilterFlags(cmd *cobra.Command, opts *commands.FilterOptions) {
	f := cmd.Flags()
	f.StringVar(&opts.SessionID, "session", "", "Filter by session ID")
	f.StringVar(&opts.Device, "device", "", "Filter by device (vvvv:pppp)")
	f.StringVar(&opts.TimeStart, "time-start", "", "Filter by start time (RFC3339)")
	f.StringVar(&opts.TimeEnd, "time-end", "", "Filter by end time (RFC3339)")
	f.StringVar(&opts.Layer, "layer", "", "Filter by layer (transport, protocol, session)")
	f.StringVar(&opts.Direction, "direction", "", "Filter by direction (in, out)")
	f.StringVar(&opts.Category, "category", "", "Filter by category (message, control, state, error, transfer)")
	f.StringVar(&opts.Operation, "operation", "", "Filter by operation name or code")
}

func newViewCommand() *cobra.Command {
	var opts commands.FilterOptions
	cmd := &cobra.Command{
		Use:   "view [flags] <file.mtplog>",
		Short: "View log file in human-readable format",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			filter, err := opts.Filter()
			if err != nil {
				return err
			}
			return commands.RunView(args[0], filter, cmd.OutOrStdout())
		},
	}
	addFilterFlags(cmd, &opts)
	return cmd
}

func newExportCommand() *cobra.Command {
	var opts commands.FilterOptions
	var format, output string
	cmd := &cobra.Command{
		Use:   "export [flags] <file.mtplog>",
		Short: "Export log file to JSON lines or CSV",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			filter, err := opts.Filter()
			if err != nil {
				return err
			}
			return commands.RunExport(args[0], format, output, filter, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&format, "format", "jsonl", "Output format (jsonl, csv)")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Output file (default: stdout)")
	addFilterFlags(cmd, &opts)
	return cmd
}

func newFilterCommand() *cobra.Command {
	var opts commands.FilterOptions
	var output string
	cmd := &cobra.Command{
		Use:   "filter [flags] <file.mtplog>",
		Short: "Filter log file and write to new file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			filter, err := opts.Filter()
			if err != nil {
				return err
			}
			return commands.RunFilter(args[0], output, filter, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "Output file")
	_ = cmd.MarkFlagRequired("output")
	addFilterFlags(cmd, &opts)
	return cmd
}

func newStatsCommand() *cobra.Command {
	var opts commands.FilterOptions
	cmd := &cobra.Command{
		Use:   "stats [flags] <file.mtplog>",
		Short: "Show statistics about the log file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			filter, err := opts.Filter()
			if err != nil {
				return err
			}
			return commands.RunStats(args[0], filter, cmd.OutOrStdout())
		},
	}
	addFilterFlags(cmd, &opts)
	return cmd
}
