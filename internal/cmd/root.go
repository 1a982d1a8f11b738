package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	cliflag "github.com/tomasbasham/cli-runtime/flag"
	"github.com/tomasbasham/cli-runtime/iooption"
	"github.com/tomasbasham/cli-runtime/printer"
	"github.com/tomasbasham/cli-runtime/templates"
)

var (
	rootLong = templates.LongDesc(`
		smem is an always-on screen-capture memory engine: it periodically
		captures the screen, gates each capture against a privacy policy,
		summarizes it, and appends the result to an append-only log.`)

	rootExamples = templates.Examples(`
		# Run a session every 30s for 8 hours, writing into ./memory
		smem run --every 30s --for 8h --output-dir ./memory/captures --context-path ./memory/context.md`)

	// Injected at build time using ldflags.
	version = ""
	commit  = ""
)

// RootOptions defines the options for the `smem` command.
type RootOptions struct {
	iooption.IOStreams
}

// NewRootOptions provides an initialised RootOptions instance.
func NewRootOptions(streams iooption.IOStreams) *RootOptions {
	return &RootOptions{
		IOStreams: streams,
	}
}

// NewRootCommand creates the `smem` command with default arguments.
func NewRootCommand() *cobra.Command {
	options := NewRootOptions(iooption.IOStreams{
		In:     os.Stdin,
		Out:    os.Stdout,
		ErrOut: os.Stderr,
	})

	return NewRootCommandWithArgs(options)
}

// NewRootCommandWithArgs creates the `smem` command and its nested
// children.
func NewRootCommandWithArgs(o *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:                   "smem [command]",
		Version:               versionInfo(),
		DisableFlagsInUseLine: true,
		Short:                 "Always-on screen-capture memory engine",
		Long:                  rootLong,
		Example:               rootExamples,
		SilenceErrors:         true,
		SilenceUsage:          true,
	}

	printerOpts := printer.WarningPrinterOptions{Color: true}
	warningPrinter := printer.NewWarningPrinter(o.ErrOut, printerOpts)
	cmd.SetGlobalNormalizationFunc(cliflag.WarnWordSepNormalizeFunc(warningPrinter))

	cmd.AddCommand(NewRunCommand(NewRunOptions(o.IOStreams)))

	// The global normalisation function ensures that all flags specified meet
	// the desired format, changing users' input if necessary.
	cmd.SetGlobalNormalizationFunc(cliflag.WordSepNormalizeFunc())

	return cmd
}

func versionInfo() string {
	if version == "" {
		return ""
	}
	return fmt.Sprintf("%s (commit: %s)", version, commit)
}
