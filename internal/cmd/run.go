package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/tomasbasham/cli-runtime/iooption"
	"github.com/tomasbasham/cli-runtime/templates"

	"github.com/kestrelsoft/screenmemory/internal/analyzer"
	cfgfile "github.com/kestrelsoft/screenmemory/internal/config"
	"github.com/kestrelsoft/screenmemory/internal/contextlog"
	"github.com/kestrelsoft/screenmemory/internal/diskguard"
	"github.com/kestrelsoft/screenmemory/internal/engine"
	"github.com/kestrelsoft/screenmemory/internal/eventbus"
	"github.com/kestrelsoft/screenmemory/internal/privacy"
	"github.com/kestrelsoft/screenmemory/internal/screenshot"
	"github.com/kestrelsoft/screenmemory/internal/session"
	"github.com/kestrelsoft/screenmemory/internal/statusserver"
	"github.com/kestrelsoft/screenmemory/internal/watchdog"
)

// RunOptions defines the options for the `smem run` command.
type RunOptions struct {
	Every           time.Duration
	For             time.Duration
	OutputDir       string
	ContextPath     string
	FilenamePrefix  string
	CaptureStride   uint32
	MinFreeBytes    uint64
	MaxSessionBytes uint64
	Analyze         bool
	Model           string
	Prompt          string
	PrivacyPath     string
	ConfigPath      string
	UseMock         bool
	StatusAddr      string
	OpenAIEndpoint  string
	LogLevel        string

	cfg session.Config

	iooption.IOStreams
}

var (
	runLong = templates.LongDesc(`
		Start a capture session: a screenshot is attempted on a fixed
		cadence, gated by the privacy policy and disk guard, optionally
		summarized, and appended to the context log.`)

	runExample = templates.Examples(`
		# Run a mock session for quick local testing
		smem run --use-mock --every 200ms --for 2s --output-dir ./tmp/captures --context-path ./tmp/context.md

		# Run a real session for 8 hours with analysis enabled
		smem run --every 30s --for 8h --analyze --model gpt-4o-mini \
			--output-dir ~/Memory/captures --context-path ~/Memory/context.md`)
)

// NewRunOptions provides an initialised RunOptions instance.
func NewRunOptions(streams iooption.IOStreams) *RunOptions {
	return &RunOptions{IOStreams: streams}
}

// NewRunCommand creates the `run` command.
func NewRunCommand(o *RunOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:                   "run",
		DisableFlagsInUseLine: true,
		Short:                 "Start a capture session",
		Long:                  runLong,
		Example:               runExample,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := o.Complete(cmd, args); err != nil {
				return err
			}
			if err := o.Validate(); err != nil {
				return err
			}
			return o.Run()
		},
	}

	flags := cmd.Flags()
	flags.DurationVar(&o.Every, "every", 0, "Capture cadence (overrides config.toml)")
	flags.DurationVar(&o.For, "for", 0, "Total session duration (overrides config.toml)")
	flags.StringVar(&o.OutputDir, "output-dir", "", "Directory captures are written to (required)")
	flags.StringVar(&o.ContextPath, "context-path", "", "Path to the append-only context log (required)")
	flags.StringVar(&o.FilenamePrefix, "prefix", "smem", "Filename prefix for capture PNGs")
	flags.Uint32Var(&o.CaptureStride, "capture-stride", 0, "Only capture every Nth tick (overrides config.toml)")
	flags.Uint64Var(&o.MinFreeBytes, "min-free-bytes", 0, "Minimum free disk space to maintain (overrides config.toml)")
	flags.Uint64Var(&o.MaxSessionBytes, "max-session-bytes", 0, "Hard cap on total bytes written this session (0 = unbounded)")
	flags.BoolVar(&o.Analyze, "analyze", false, "Summarize each capture with a vision model")
	flags.StringVar(&o.Model, "model", "", "Analyzer model name")
	flags.StringVar(&o.Prompt, "prompt", "", "Analyzer prompt")
	flags.StringVar(&o.PrivacyPath, "privacy-path", "privacy.toml", "Path to the privacy policy file")
	flags.StringVar(&o.ConfigPath, "config-path", "config.toml", "Path to the optional session-defaults file")
	flags.BoolVar(&o.UseMock, "use-mock", false, "Use a deterministic mock screenshot provider and disable watchdogs")
	flags.StringVar(&o.StatusAddr, "status-addr", "", "Address to serve /status and /events on (empty disables the server)")
	flags.StringVar(&o.OpenAIEndpoint, "openai-endpoint", "https://api.openai.com/v1/chat/completions", "Analyzer HTTP endpoint")
	flags.StringVar(&o.LogLevel, "log-level", "info", "Log level: debug, info, warn, error")

	return cmd
}

func (o *RunOptions) Complete(cmd *cobra.Command, args []string) error {
	return nil
}

func (o *RunOptions) Validate() error {
	if o.OutputDir == "" {
		return fmt.Errorf("--output-dir is required")
	}
	if o.ContextPath == "" {
		return fmt.Errorf("--context-path is required")
	}

	o.cfg = session.Config{
		SessionID:       uuid.New().String(),
		Every:           o.Every,
		For:             o.For,
		OutputDir:       o.OutputDir,
		ContextPath:     o.ContextPath,
		FilenamePrefix:  o.FilenamePrefix,
		CaptureStride:   o.CaptureStride,
		MinFreeBytes:    o.MinFreeBytes,
		Analyze:         o.Analyze,
		Model:           o.Model,
		Prompt:          o.Prompt,
		UseMock:         o.UseMock,
		LogLevel:        o.LogLevel,
	}
	if o.MaxSessionBytes > 0 {
		o.cfg.MaxSessionBytes = &o.MaxSessionBytes
	}

	defaults, err := cfgfile.Load(o.ConfigPath)
	if err != nil {
		return fmt.Errorf("config_invalid: %w", err)
	}
	defaults.ApplyTo(&o.cfg)

	if o.cfg.CaptureStride == 0 {
		o.cfg.CaptureStride = 1
	}

	if err := o.cfg.Validate(); err != nil {
		return fmt.Errorf("config_invalid: %w", err)
	}
	return nil
}

func (o *RunOptions) Run() error {
	log := newLogger(o.LogLevel, o.ErrOut)

	policy, err := privacy.Load(o.PrivacyPath)
	if err != nil {
		fmt.Fprintf(o.ErrOut, "failed to load privacy policy: %v\n", err)
		os.Exit(2)
	}
	o.cfg.Privacy = policy

	var reloader *privacy.Reloader
	if !o.UseMock {
		reloader, err = privacy.NewReloader(o.PrivacyPath, log)
		if err != nil {
			log.Warn("run: failed to start privacy policy watcher", "error", err)
		} else {
			defer reloader.Close()
		}
	}

	disk := diskguard.New(o.cfg.OutputDir, o.cfg.MinFreeBytes, o.cfg.MaxSessionBytes, log)
	if err := disk.EnsureDir(); err != nil {
		fmt.Fprintf(o.ErrOut, "failed to create output directory: %v\n", err)
		os.Exit(2)
	}

	ctxlog, err := contextlog.Open(o.cfg.ContextPath)
	if err != nil {
		fmt.Fprintf(o.ErrOut, "failed to open context log: %v\n", err)
		os.Exit(2)
	}
	defer ctxlog.Close()

	var shotProvider screenshot.Provider
	if o.UseMock {
		shotProvider = screenshot.NewMock()
	} else {
		shotProvider = screenshot.WithWatchdog(screenshot.NewDesktop())
	}

	var an analyzer.Analyzer
	apiKey := os.Getenv("OPENAI_API_KEY")
	switch {
	case !o.cfg.Analyze:
		an = analyzer.NewLocal()
	case apiKey == "":
		log.Warn("run: --analyze set but OPENAI_API_KEY is empty; using local metadata summaries")
		an = analyzer.NewLocal()
	default:
		an = analyzer.NewHTTP(o.OpenAIEndpoint, apiKey)
	}

	bus := eventbus.New()
	defer bus.Close()

	eng, err := engine.New(o.cfg, time.Now(), engine.Deps{
		Bus:         bus,
		Gate:        privacy.NewGate(stubDetector{}),
		Disk:        disk,
		Screenshots: shotProvider,
		Analyzer:    an,
		ContextLog:  ctxlog,
		Reloader:    reloader,
		Log:         log,
	})
	if err != nil {
		fmt.Fprintf(o.ErrOut, "failed to start engine: %v\n", err)
		os.Exit(2)
	}

	watchdogCtx, cancelWatchdogs := context.WithCancel(context.Background())
	defer cancelWatchdogs()
	if !o.UseMock {
		startWatchdogs(watchdogCtx, eng, log)
	}

	if o.StatusAddr != "" {
		srv := statusserver.New(eng, bus)
		go func() {
			if err := srv.ListenAndServe(o.StatusAddr); err != nil {
				log.Warn("run: status server stopped", "error", err)
			}
		}()
	}

	sigCtx, stopSignals := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stopSignals()
	go func() {
		<-sigCtx.Done()
		eng.Stop()
	}()

	fmt.Fprintf(o.Out, "session %s starting: every=%s for=%s\n", o.cfg.SessionID, o.cfg.Every, o.cfg.For)
	result := eng.Run(context.Background())
	fmt.Fprintf(o.Out, "session ended: state=%s captures=%d skipped=%d failures=%d\n",
		result.State, result.Counters.Captures, result.Counters.Skipped, result.Counters.Failures)

	// os.Exit bypasses the deferred Close calls above; that's fine here
	// since the process is terminating and every ContextLog write is
	// already fsynced individually.
	os.Exit(mapExitCode(result))
	return nil
}

// mapExitCode is a pure function from a completed run's Result to the
// process exit code, per spec.md §6.4: 0 for a normal Done, 2 for Error,
// 130 for a user-initiated Stop.
func mapExitCode(result engine.Result) int {
	if result.StoppedByUser {
		return 130
	}
	if result.State == session.Error {
		return 2
	}
	return 0
}

func newLogger(level string, out io.Writer) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(out, &slog.HandlerOptions{Level: lvl}))
}

// startWatchdogs launches the three independent pollers of spec.md §4.7,
// using stub probes (always Unknown) since concrete OS introspection is
// outside this repo's scope — the same posture as the real screenshot call.
func startWatchdogs(ctx context.Context, eng *engine.Engine, log *slog.Logger) {
	activity := watchdog.StubActivityProbe{}
	permission := watchdog.StubPermissionProbe{}

	go watchdog.NewPermissionWatch(permission, eng.Signals(), log).Run(ctx)
	go watchdog.NewDisplaySleepWatch(activity, eng.Signals(), log).Run(ctx)
	go watchdog.NewScreenLockWatch(activity, eng.Signals(), log).Run(ctx)
}

// stubDetector never denies; concrete foreground/private-window
// introspection is an external collaborator outside this repo's scope (see
// internal/privacy.Detector).
type stubDetector struct{}

func (stubDetector) Probe(ctx context.Context) (privacy.Probe, error) {
	return privacy.Probe{}, nil
}
