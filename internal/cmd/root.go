// Package cmd provides the rum command line.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/steveyegge/rum/internal/config"
	"github.com/steveyegge/rum/internal/controller"
	"github.com/steveyegge/rum/internal/exitcode"
	"github.com/steveyegge/rum/internal/run"
	"github.com/steveyegge/rum/internal/style"
	"github.com/steveyegge/rum/internal/supervisor"
	"github.com/steveyegge/rum/internal/ui"
	"golang.org/x/sys/unix"
)

// Operation flags. At most one may be given.
var operationFlags = []string{"list", "info", "interrupt", "terminate", "kill", "view", "remove"}

// app holds the state of one rum invocation.
type app struct {
	// flags
	list      bool
	info      string
	interrupt string
	terminate string
	kill      string
	view      string
	remove    bool
	label     string
	yes       bool
	json      bool
	noFollow  bool
	logLevel  string
	cfgFile   string

	cfg   *config.Config
	store *run.Store
	ctl   *controller.Controller
	log   *logrus.Logger

	// interactive is set when stdout and stdin are the user's terminal.
	interactive bool

	// executable overrides the supervisor binary.
	executable string
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "rum [flags] <command> [args...]",
		Short: "Run commands detached from the terminal and manage them later",
		Long: `rum starts a command so that it keeps running after the terminal closes,
records how it ends, and keeps its output. Runs are addressed by any
unambiguous prefix of their id.

  rum make -j8                 start a run, print its id
  rum -L nightly ./backup.sh   start a run with a label
  rum -l                       list runs, newest first
  rum -i 3f2a                  show one run
  rum -v 3f2a                  replay and follow its output
  rum -c 3f2a                  interrupt it (SIGINT to its process group)
  rum -r 3f2a 9b1               remove finished runs`,
		Version:           versionString(),
		Args:              cobra.ArbitraryArgs,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.setup,
		RunE:              a.dispatch,
	}

	f := root.Flags()
	// Flags end at the command so it keeps its own flags.
	f.SetInterspersed(false)

	f.BoolVarP(&a.list, "list", "l", false, "List runs, newest first")
	f.StringVarP(&a.info, "info", "i", "", "Show details of the run matching `prefix`")
	f.StringVarP(&a.interrupt, "interrupt", "c", "", "Send SIGINT to the process group of the run matching `prefix`")
	f.StringVarP(&a.terminate, "terminate", "t", "", "Send SIGTERM to the process group of the run matching `prefix`")
	f.StringVarP(&a.kill, "kill", "K", "", "Send SIGKILL to the process group of the run matching `prefix`")
	f.StringVarP(&a.view, "view", "v", "", "Replay and follow the output of the run matching `prefix`")
	f.BoolVarP(&a.remove, "remove", "r", false, "Remove the finished runs matching the given prefixes (-y may follow them)")

	f.StringVarP(&a.label, "label", "L", "", "Label for a new run")
	f.BoolVarP(&a.yes, "yes", "y", false, "Do not ask before removing runs")
	f.BoolVar(&a.json, "json", false, "Print machine-readable JSON (list, info, start)")
	f.BoolVar(&a.noFollow, "no-follow", false, "With --view, print the output so far and exit")
	f.StringVar(&a.logLevel, "log-level", config.DefaultLogLevel,
		"Diagnostic log level ("+strings.Join(logLevels(), ", ")+")")
	f.StringVar(&a.cfgFile, "config", "", "Config file (default $XDG_CONFIG_HOME/rum/config.toml)")

	root.MarkFlagsMutuallyExclusive(operationFlags...)

	root.SetFlagErrorFunc(func(c *cobra.Command, err error) error {
		return exitcode.Wrap(exitcode.ErrUsage, "invalid flags", err)
	})
	return root
}

// setup loads configuration and opens the run store.
func (a *app) setup(cmd *cobra.Command, args []string) error {
	var ops []string
	for _, name := range operationFlags {
		if cmd.Flags().Changed(name) {
			ops = append(ops, "--"+name)
		}
	}
	if len(ops) > 1 {
		return exitcode.Newf(exitcode.ErrUsage, "%s cannot be used together", strings.Join(ops, ", "))
	}

	cfg, err := config.Load(a.cfgFile)
	if err != nil {
		return exitcode.Wrap(exitcode.ErrUsage, "configuration", err)
	}
	a.cfg = cfg

	levelName := cfg.LogLevel
	if cmd.Flags().Changed("log-level") {
		levelName = a.logLevel
	}
	level, err := logrus.ParseLevel(levelName)
	if err != nil {
		return exitcode.Newf(exitcode.ErrUsage, "invalid log level %q: %v", levelName, err)
	}
	a.log.SetLevel(level)
	a.log.WithField("runs_dir", cfg.RunsDir).Debug("Loaded configuration")

	store, err := run.NewStore(cfg.RunsDir)
	if err != nil {
		return err
	}
	a.store = store
	a.ctl = controller.New(store, controller.Options{PollInterval: cfg.PollInterval.Duration})
	return nil
}

// dispatch runs the single operation selected by the flags.
func (a *app) dispatch(cmd *cobra.Command, args []string) error {
	flags := cmd.Flags()
	op := ""
	for _, name := range operationFlags {
		if flags.Changed(name) {
			op = name
		}
	}
	if op != "" && op != "remove" && len(args) > 0 {
		return exitcode.Newf(exitcode.ErrUsage, "--%s does not take a command (got %q)", op, args[0])
	}

	ctx, stop := signal.NotifyContext(context.Background(), unix.SIGINT, unix.SIGTERM)
	defer stop()

	switch op {
	case "list":
		return a.runList(ctx, cmd)
	case "info":
		return a.runInfo(ctx, cmd, a.info)
	case "interrupt":
		return a.runSignal(ctx, cmd, a.interrupt, controller.Interrupt)
	case "terminate":
		return a.runSignal(ctx, cmd, a.terminate, controller.Terminate)
	case "kill":
		return a.runSignal(ctx, cmd, a.kill, controller.Kill)
	case "view":
		return a.runView(ctx, cmd, a.view)
	case "remove":
		return a.runRemove(ctx, cmd, args)
	}

	if len(args) == 0 {
		return exitcode.New(exitcode.ErrUsage, "no command given\n\nRun 'rum --help' for usage")
	}
	return a.runStart(ctx, cmd, args)
}

// Execute runs rum with the process arguments and returns an exit code.
// The caller (main) should call os.Exit with this code.
func Execute() int {
	return Main(os.Args[1:], os.Stdin, os.Stdout, os.Stderr)
}

// Main runs rum with explicit arguments and streams.
func Main(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	if len(args) > 0 && args[0] == supervisor.Command {
		return runSupervisor(args[1:], stderr)
	}

	log := logrus.New()
	log.SetOutput(stderr)
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	a := &app{
		log:         log,
		interactive: stdout == io.Writer(os.Stdout) && ui.ShouldUseViewer(),
	}
	root := newRootCmd(a)
	root.SetArgs(args)
	root.SetIn(stdin)
	root.SetOut(stdout)
	root.SetErr(stderr)

	err := root.Execute()
	if err == nil {
		return exitcode.Success
	}
	var reported *reportedError
	if errors.As(err, &reported) {
		return reported.code
	}
	err = codedError(err)
	fmt.Fprintf(stderr, "%s %v\n", style.ErrorPrefix, err)
	return exitcode.Code(err)
}

func logLevels() []string {
	levels := make([]string, 0, len(logrus.AllLevels))
	for _, level := range logrus.AllLevels {
		levels = append(levels, level.String())
	}
	return levels
}
