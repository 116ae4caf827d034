// Command mtpctl talks to MTP devices over USB.
//
// Every device operation is a subcommand; "shell" runs them interactively
// against one session.
//
// Usage:
//
//	mtpctl [flags] <command> [args]
//
// Examples:
//
//	# List attached devices
//	mtpctl devices
//
//	# Upload to the Music folder of the second storage
//	mtpctl storage 0x00020001
//	mtpctl put song.mp3 /Music
//
//	# Try the commands without hardware
//	mtpctl --simulate default shell
//
//	# Record the protocol exchange for mtp-log
//	mtpctl --protocol-log session.mtplog ls /DCIM
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// run executes one mtpctl invocation and returns the exit status.
func run(ctx context.Context, args []string, out, errOut io.Writer) int {
	a := newApp(out, errOut)
	return a.run(ctx, args)
}

func (a *app) run(ctx context.Context, args []string) int {
	root := newRootCommand(a)
	root.SetArgs(args)
	root.SetOut(a.out)
	root.SetErr(a.errOut)

	err := root.ExecuteContext(ctx)
	if cerr := a.close(); cerr != nil && err == nil {
		err = cerr
	}
	if err != nil {
		fmt.Fprintf(a.errOut, "Error: %v\n", err)
	}
	return exitCode(err)
}

func newRootCommand(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "mtpctl",
		Short:         "MTP device client",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(cmd)
		},
	}
	root.CompletionOptions.DisableDefaultCmd = true

	f := root.PersistentFlags()
	f.StringVar(&a.flags.configPath, "config", "", "Config file (default: user config dir)")
	f.Uint16Var(&a.flags.vendorID, "vendor", 0, "USB vendor id to connect to (0 = any)")
	f.Uint16Var(&a.flags.productID, "product", 0, "USB product id to connect to (0 = any)")
	f.StringVar(&a.flags.simulate, "simulate", "", `Use a simulated device: "default" or a fixture file`)
	f.StringVar(&a.flags.protocolLog, "protocol-log", "", "Write a protocol log to this file")
	f.DurationVar(&a.flags.wait, "wait", 0, "Wait up to this long for a device to appear")
	f.IntVar(&a.flags.chunkSize, "chunk-size", 0, "Transfer chunk size in bytes")
	f.StringVar(&a.flags.busyPolicy, "busy-policy", "", "Concurrent call policy (block, fail-fast)")
	f.BoolVar(&a.flags.strict, "strict-names", false, "Fail on duplicate names instead of using the first match")
	f.StringVar(&a.flags.logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	f.StringVar(&a.flags.stateFile, "state-file", "", "File remembering storage and folder per device")
	f.BoolVar(&a.flags.noState, "no-state", false, "Do not read or write the state file")
	f.BoolVarP(&a.flags.quiet, "quiet", "q", false, "Do not draw transfer progress")

	for _, op := range operations {
		root.AddCommand(op.command(a))
	}
	root.AddCommand(newShellCommand(a))
	return root
}
