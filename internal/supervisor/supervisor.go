package supervisor

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"syscall"
	"time"

	"go.uber.org/zap"

	"stockbars/internal/metrics"
)

// Config holds supervisor tuning.
type Config struct {
	// Command is the child argv. Empty defaults to re-invoking this
	// executable with the collect subcommand.
	Command []string

	// Timeout is the maximum silence allowed between a collecting marker
	// and its saved marker before the child is treated as stuck.
	Timeout time.Duration

	// RestartDelay is the pause before spawning a fresh child.
	RestartDelay time.Duration

	// GracePeriod separates the graceful stop signal from the force kill.
	GracePeriod time.Duration

	// MaxRestarts aborts the supervisor when exceeded; 0 means unlimited.
	MaxRestarts int

	// PollInterval bounds the wait on the line queue so timeouts fire
	// during silence.
	PollInterval time.Duration
}

// DefaultConfig returns the production tuning.
func DefaultConfig() Config {
	return Config{
		Timeout:      4 * time.Minute,
		RestartDelay: 15 * time.Second,
		GracePeriod:  time.Second,
		PollInterval: time.Second,
	}
}

// Supervisor runs the collector as a child process, infers its liveness
// from streamed output and kills/restarts it when it appears stuck. It
// carries no state across restarts beyond the restart counter; resumption
// is entirely the child's checkpoint.
type Supervisor struct {
	cfg        Config
	classifier *Classifier
	logger     *zap.Logger
	metrics    *metrics.Collector
	out        io.Writer

	restarts int
}

// New creates a Supervisor. out receives the child's merged output
// verbatim; metricsCollector may be nil.
func New(cfg Config, classifier *Classifier, metricsCollector *metrics.Collector, logger *zap.Logger, out io.Writer) *Supervisor {
	if classifier == nil {
		classifier = NewClassifier()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	return &Supervisor{
		cfg:        cfg,
		classifier: classifier,
		logger:     logger,
		metrics:    metricsCollector,
		out:        out,
	}
}

// Restarts returns the number of kill-and-restart cycles performed.
func (s *Supervisor) Restarts() int {
	return s.restarts
}

// Run supervises children until the batch completes, the context is
// cancelled or the restart cap is exceeded.
func (s *Supervisor) Run(ctx context.Context) error {
	argv, err := s.childArgv()
	if err != nil {
		return err
	}

	for {
		s.logger.Info("starting child",
			zap.Strings("command", argv),
			zap.Duration("timeout", s.cfg.Timeout),
			zap.Int("restarts", s.restarts),
		)

		done, err := s.runOnce(ctx, argv)
		if err != nil {
			// Cancellation: child already killed, no restart.
			return err
		}
		if done {
			s.logger.Info("child finished batch, supervisor exiting")
			return nil
		}

		s.restarts++
		if s.metrics != nil {
			s.metrics.IncRestart()
		}
		if s.cfg.MaxRestarts > 0 && s.restarts > s.cfg.MaxRestarts {
			return fmt.Errorf("restart limit exceeded (%d)", s.cfg.MaxRestarts)
		}

		s.logger.Info("restarting child",
			zap.Duration("delay", s.cfg.RestartDelay),
			zap.Int("restarts", s.restarts),
		)
		select {
		case <-time.After(s.cfg.RestartDelay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (s *Supervisor) childArgv() ([]string, error) {
	if len(s.cfg.Command) > 0 {
		return s.cfg.Command, nil
	}
	self, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("resolve own executable: %w", err)
	}
	return []string{self, "collect"}, nil
}

// runOnce runs one child to its end. done is true only for a zero exit
// code observed while no item was in flight; every other outcome means
// restart. A non-nil error is cancellation and is fatal to the supervisor.
func (s *Supervisor) runOnce(ctx context.Context, argv []string) (bool, error) {
	cmd := exec.Command(argv[0], argv[1:]...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return false, fmt.Errorf("create stdout pipe: %w", err)
	}
	// Merge stderr into the same stream; liveness is inferred from one
	// line-oriented stream only.
	cmd.Stderr = cmd.Stdout

	if err := cmd.Start(); err != nil {
		return false, fmt.Errorf("start child: %w", err)
	}

	// The only goroutine that blocks on the child's stream. Lines cross
	// to the control loop over this channel; close signals EOF.
	lines := make(chan string, 64)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(stdout)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	m := &machine{}

	for {
		select {
		case line, ok := <-lines:
			if !ok {
				// Child closed its stream: it is exiting.
				err := cmd.Wait()
				exitedZero := err == nil
				if exitedZero && m.idle() {
					return true, nil
				}
				s.logger.Warn("child exited abnormally",
					zap.Bool("exit_zero", exitedZero),
					zap.Bool("idle", m.idle()),
					zap.Error(err),
				)
				return false, nil
			}

			// Transparent passthrough before interpretation.
			fmt.Fprintln(s.out, line)

			ev := s.classifier.Classify(line)
			m.observe(ev, time.Now())
			if ev.Kind == EventCollecting {
				s.logger.Debug("liveness timer armed",
					zap.Int("index", ev.Index),
					zap.Int("total", ev.Total),
				)
			}

		case <-time.After(s.cfg.PollInterval):
			// Silence; fall through to the stuck check below.

		case <-ctx.Done():
			s.logger.Info("interrupt received, stopping child")
			s.kill(cmd)
			s.reap(cmd, lines)
			return false, ctx.Err()
		}

		if m.stuck(time.Now(), s.cfg.Timeout) {
			s.logger.Warn("child unresponsive, killing",
				zap.Duration("timeout", s.cfg.Timeout),
			)
			s.kill(cmd)
			s.reap(cmd, lines)
			return false, nil
		}
	}
}

// kill stops the child: graceful signal, grace period, then force kill.
func (s *Supervisor) kill(cmd *exec.Cmd) {
	if cmd.Process == nil {
		return
	}
	if err := cmd.Process.Signal(syscall.SIGTERM); err == nil {
		time.Sleep(s.cfg.GracePeriod)
	}
	_ = cmd.Process.Kill()
}

// reap drains the reader and collects the exit status so neither the
// goroutine nor the process lingers.
func (s *Supervisor) reap(cmd *exec.Cmd, lines <-chan string) {
	go func() {
		for range lines {
		}
	}()
	_ = cmd.Wait()
}
