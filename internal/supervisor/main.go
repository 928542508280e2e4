package supervisor

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
	"github.com/steveyegge/rum/internal/run"
	"golang.org/x/sys/unix"
)

// Command is the hidden argv[1] that turns the rum binary into a supervisor.
const Command = "__supervise"

// ReadyFD is the descriptor the launcher passes the readiness pipe on
// (the first of exec.Cmd.ExtraFiles).
const ReadyFD = 3

// Invocation is a parsed supervisor command line.
type Invocation struct {
	RunsDir string
	ReadyFD int
	ID      string
}

// Args returns the arguments, after the executable and Command, that start
// a supervisor for run id.
func Args(runsDir, id string, readyFD int) []string {
	return []string{"--runs-dir", runsDir, "--ready-fd", fmt.Sprint(readyFD), id}
}

// ParseArgs parses the arguments produced by Args.
func ParseArgs(args []string) (Invocation, error) {
	inv := Invocation{ReadyFD: -1}
	fs := pflag.NewFlagSet(Command, pflag.ContinueOnError)
	fs.StringVar(&inv.RunsDir, "runs-dir", "", "runs directory")
	fs.IntVar(&inv.ReadyFD, "ready-fd", -1, "readiness pipe descriptor")
	if err := fs.Parse(args); err != nil {
		return inv, err
	}
	if fs.NArg() != 1 {
		return inv, fmt.Errorf("%s: expected exactly one run id, got %d", Command, fs.NArg())
	}
	if inv.RunsDir == "" {
		return inv, fmt.Errorf("%s: --runs-dir is required", Command)
	}
	inv.ID = fs.Arg(0)
	return inv, nil
}

// Main is the body of a supervisor process.
func Main(inv Invocation) error {
	// Terminal-generated signals belong to the child's process group. They
	// are caught rather than ignored so the child gets default handlers.
	sigs := make(chan os.Signal, 8)
	signal.Notify(sigs, unix.SIGHUP, unix.SIGINT, unix.SIGTERM, unix.SIGQUIT)
	defer signal.Stop(sigs)

	ready := openReadyPipe(inv.ReadyFD)

	store, err := run.NewStore(inv.RunsDir)
	if err != nil {
		return err
	}

	logFile, err := os.OpenFile(store.LogPath(inv.ID), os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0644)
	if err != nil {
		err = fmt.Errorf("opening supervisor log: %w", err)
		_, _ = Abandon(store, inv.ID, err)
		return err
	}
	defer logFile.Close()
	log := NewLogger(logFile)

	go func() {
		for sig := range sigs {
			log.WithField("signal", sig.String()).Info("Ignoring signal")
		}
	}()

	s := New(store, log, ready)
	if _, err := s.Supervise(context.Background(), inv.ID); err != nil {
		log.WithError(err).Error("Supervisor failed")
		if changed, aerr := Abandon(store, inv.ID, err); aerr != nil {
			log.WithError(aerr).Error("Recording supervisor failure")
		} else if changed {
			log.Warn("Run marked as failed before start")
		}
		return err
	}
	return nil
}

// NewLogger returns the supervisor's file logger.
func NewLogger(out *os.File) *logrus.Logger {
	log := logrus.New()
	log.SetOutput(out)
	log.SetLevel(logrus.InfoLevel)
	log.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
		DisableColors: true,
	})
	return log
}

// openReadyPipe adopts the inherited readiness descriptor and keeps it out
// of the child, so the launcher sees EOF as soon as the supervisor is done
// with it.
func openReadyPipe(fd int) *os.File {
	if fd < 0 {
		return nil
	}
	if _, err := unix.FcntlInt(uintptr(fd), unix.F_GETFD, 0); err != nil {
		return nil
	}
	unix.CloseOnExec(fd)
	return os.NewFile(uintptr(fd), "ready")
}
