// Package runner assembles and executes the rclone size invocation,
// drives the output parser over the live stream and maintains the
// single-line terminal status.
package runner

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"time"

	rsize "github.com/tomhaynes/rsize"
	"github.com/tomhaynes/rsize/parse"
)

const (
	fastListFlag   = "--fast-list"
	driveDeltaFlag = "--drive-list-chunk"
	driveBackend   = "drive"

	// statusWidth is the fixed width of the live status line; padding
	// to it wipes leftovers from a previously longer status.
	statusWidth = 60
)

// LineLogger receives every raw output line for the durable transcript.
// history.Writer satisfies it.
type LineLogger interface {
	WriteLine(string)
}

// Runner executes measurement runs. It never touches the size cache:
// the caller decides what to do with a usable byte total.
type Runner struct {
	binary  string
	policy  rsize.FastListPolicy
	resolve func(remote string) string
	out     io.Writer
	logger  *slog.Logger
	history LineLogger
}

// Option configures a Runner.
type Option func(*Runner)

// WithPolicy sets the fast-list injection policy.
func WithPolicy(p rsize.FastListPolicy) Option {
	return func(r *Runner) {
		r.policy = p
	}
}

// WithResolver sets the backend-type resolver used by the auto policy.
func WithResolver(resolve func(remote string) string) Option {
	return func(r *Runner) {
		r.resolve = resolve
	}
}

// WithOutput redirects the live status line (default os.Stdout).
func WithOutput(out io.Writer) Option {
	return func(r *Runner) {
		r.out = out
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Runner) {
		r.logger = logger
	}
}

// WithHistory sets the transcript sink for raw output lines.
func WithHistory(h LineLogger) Option {
	return func(r *Runner) {
		r.history = h
	}
}

// New creates a Runner for the given rclone binary.
func New(binary string, opts ...Option) *Runner {
	r := &Runner{
		binary: binary,
		policy: rsize.FastListAuto,
		out:    os.Stdout,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Args assembles the full rclone argument list for measuring
// remote:folder. Base invocation first, then the caller's extra args,
// then the policy-driven fast-list flag and, for drive with fast-list
// enabled, the delta-listing flag.
func (r *Runner) Args(remote, folder string, extra []string) []string {
	args := []string{"size", remote + ":" + folder, "--progress", "--stats", "1s"}

	if r.policy == rsize.FastListOff {
		extra = without(extra, fastListFlag)
	}
	args = append(args, extra...)

	backend := ""
	if r.resolve != nil {
		backend = r.resolve(remote)
	}

	enabled := contains(extra, fastListFlag)
	switch r.policy {
	case rsize.FastListOn:
		if !enabled {
			args = append(args, fastListFlag)
			enabled = true
		}
	case rsize.FastListAuto:
		if !enabled && backend == driveBackend {
			args = append(args, fastListFlag)
			enabled = true
		}
	}

	if enabled && backend == driveBackend && !contains(extra, driveDeltaFlag) {
		args = append(args, driveDeltaFlag, "0")
	}
	return args
}

// CommandDisplay renders the invocation as a shell-safely-quoted string
// so the user can audit exactly what will run.
func (r *Runner) CommandDisplay(args []string) string {
	parts := make([]string, 0, len(args)+1)
	parts = append(parts, shellQuote(r.binary))
	for _, a := range args {
		parts = append(parts, shellQuote(a))
	}
	return strings.Join(parts, " ")
}

// Run executes the measurement subprocess with combined stdout/stderr,
// feeds every line to the parser and the transcript sink, and redraws
// the status line on each progress change. A non-zero exit aborts the
// run with no byte total; the caller still finalizes the history entry
// so failures stay auditable.
func (r *Runner) Run(ctx context.Context, remote, folder string, extra []string) (rsize.RunResult, error) {
	target := remote + ":" + folder
	args := r.Args(remote, folder, extra)

	cmd := exec.CommandContext(ctx, r.binary, args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return rsize.RunResult{}, fmt.Errorf("creating output pipe: %w", err)
	}
	cmd.Stderr = cmd.Stdout

	start := time.Now()
	if err := cmd.Start(); err != nil {
		return rsize.RunResult{}, fmt.Errorf("starting %s: %w", r.binary, err)
	}

	p := parse.New()
	scanner := bufio.NewScanner(stdout)
	scanner.Split(parse.ScanCRLines)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	drawn := false
	for scanner.Scan() {
		line := scanner.Text()
		if r.history != nil {
			r.history.WriteLine(line)
		}
		if ev, ok := p.Line(line); ok {
			fmt.Fprintf(r.out, "\r%-*.*s", statusWidth, statusWidth, parse.FormatStatus(ev))
			drawn = true
		}
	}
	scanErr := scanner.Err()
	waitErr := cmd.Wait()

	if drawn {
		fmt.Fprintf(r.out, "\r%*s\r", statusWidth, "")
	}
	if waitErr != nil {
		if r.history != nil {
			r.history.WriteLine(fmt.Sprintf("measurement failed: %v", waitErr))
		}
		return rsize.RunResult{}, fmt.Errorf("measuring %s: %w", target, waitErr)
	}
	if scanErr != nil {
		return rsize.RunResult{}, fmt.Errorf("reading %s output: %w", r.binary, scanErr)
	}

	res := p.Result(fmt.Sprintf("%.1fs", time.Since(start).Seconds()))
	if !res.HasBytes {
		r.logger.Warn("output carried no total size, cache will not be updated", "target", target)
	}
	return res, nil
}

func contains(args []string, flag string) bool {
	for _, a := range args {
		if a == flag {
			return true
		}
	}
	return false
}

func without(args []string, flag string) []string {
	out := make([]string, 0, len(args))
	for _, a := range args {
		if a == flag {
			continue
		}
		out = append(out, a)
	}
	return out
}

// shellQuote quotes a single argument for display in a POSIX shell.
func shellQuote(s string) string {
	if s == "" {
		return "''"
	}
	if !strings.ContainsAny(s, " \t\n\"'\\$&|;<>()*?[]#~`!{}") {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
