// Command rsize is an interactive terminal front-end for rclone size:
// browse remotes, pick a top-level folder, measure its size with live
// progress, cache the byte total and keep a Markdown log of every run.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/google/uuid"
	"github.com/lmittmann/tint"

	rsize "github.com/tomhaynes/rsize"
	"github.com/tomhaynes/rsize/history"
	"github.com/tomhaynes/rsize/picker"
	"github.com/tomhaynes/rsize/rclone"
	"github.com/tomhaynes/rsize/runindex"
	"github.com/tomhaynes/rsize/runner"
	"github.com/tomhaynes/rsize/sizecache"
)

const extraArgsEnv = "RSIZE_EXTRA_ARGS"

// wholeRemote is the menu entry for measuring a remote's root.
const wholeRemote = "(whole remote)"

type cli struct {
	CacheFile   string `help:"Size cache file (default: ~/.config/rsize/cache.txt)." placeholder:"PATH"`
	HistoryFile string `help:"Markdown run log (default: ~/.config/rsize/history.md)." placeholder:"PATH"`
	IndexFile   string `help:"Run index database (default: ~/.config/rsize/runs.db)." placeholder:"PATH"`
	RcloneBin   string `help:"rclone binary to invoke." default:"rclone"`
	FastList    string `help:"Fast-list injection policy." enum:"auto,on,off" default:"auto"`
	ExtraArgs   string `help:"Extra rclone arguments, space separated (also read from $RSIZE_EXTRA_ARGS)."`
	LogLevel    string `help:"Log level." enum:"debug,info,warn,error" default:"info"`
	NoColor     bool   `help:"Disable colored log output."`

	Browse  browseCmd  `cmd:"" default:"1" help:"Browse remotes and folders interactively."`
	Measure measureCmd `cmd:"" help:"Measure one folder without the menu."`
	Cache   cacheCmd   `cmd:"" help:"Inspect or clear the size cache."`
	Runs    runsCmd    `cmd:"" help:"List recorded measurement runs."`
}

type browseCmd struct{}

type measureCmd struct {
	Remote string   `arg:"" help:"Remote name."`
	Folder string   `arg:"" optional:"" help:"Top-level folder; omit to measure the whole remote."`
	Args   []string `arg:"" optional:"" passthrough:"" help:"Extra arguments passed through to rclone."`
}

type cacheCmd struct {
	List     cacheListCmd     `cmd:"" default:"1" help:"Show cached sizes."`
	Clear    cacheClearCmd    `cmd:"" help:"Drop cached sizes for one remote."`
	ClearAll cacheClearAllCmd `cmd:"" name:"clear-all" help:"Drop all cached sizes."`
}

type cacheListCmd struct{}

type cacheClearCmd struct {
	Remote string `arg:"" help:"Remote whose entries to drop."`
}

type cacheClearAllCmd struct{}

type runsCmd struct {
	Remote string `help:"Only show runs against this remote." short:"r"`
	Limit  int    `help:"Maximum number of runs to show." default:"20"`
}

// app carries the wired components to the command Run methods.
type app struct {
	ctx    context.Context
	cli    *cli
	logger *slog.Logger
	cache  *sizecache.Store
	hist   *history.Writer
	index  *runindex.DB
	client *rclone.Client
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var flags cli
	ktx := kong.Parse(&flags,
		kong.Name("rsize"),
		kong.Description("Interactive remote folder size browser built on rclone."),
		kong.UsageOnError(),
	)

	logger, err := newLogger(flags.LogLevel, flags.NoColor)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	if err := fillDefaultPaths(&flags); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cache, err := sizecache.Open(flags.CacheFile, sizecache.WithLogger(logger))
	if err != nil {
		return fmt.Errorf("opening size cache: %w", err)
	}
	index, err := runindex.Open(flags.IndexFile, runindex.WithLogger(logger))
	if err != nil {
		return fmt.Errorf("opening run index: %w", err)
	}
	defer func() { _ = index.Close() }()

	a := &app{
		ctx:    ctx,
		cli:    &flags,
		logger: logger,
		cache:  cache,
		hist:   history.New(flags.HistoryFile, history.WithLogger(logger)),
		index:  index,
		client: rclone.New(rclone.WithBinary(flags.RcloneBin), rclone.WithLogger(logger)),
	}
	return ktx.Run(a)
}

func newLogger(level string, noColor bool) (*slog.Logger, error) {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "info":
		lvl = slog.LevelInfo
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		return nil, fmt.Errorf("invalid log level: %s", level)
	}
	if noColor {
		return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})), nil
	}
	return slog.New(tint.NewHandler(os.Stderr, &tint.Options{Level: lvl})), nil
}

func fillDefaultPaths(flags *cli) error {
	if flags.CacheFile != "" && flags.HistoryFile != "" && flags.IndexFile != "" {
		return nil
	}
	base, err := os.UserConfigDir()
	if err != nil {
		return fmt.Errorf("resolving config directory: %w", err)
	}
	dir := filepath.Join(base, "rsize")
	if flags.CacheFile == "" {
		flags.CacheFile = filepath.Join(dir, "cache.txt")
	}
	if flags.HistoryFile == "" {
		flags.HistoryFile = filepath.Join(dir, "history.md")
	}
	if flags.IndexFile == "" {
		flags.IndexFile = filepath.Join(dir, "runs.db")
	}
	return nil
}

// extraArgs merges the environment override, the --extra-args flag and
// any per-command passthrough, in that order.
func (a *app) extraArgs(passthrough []string) []string {
	var out []string
	out = append(out, strings.Fields(os.Getenv(extraArgsEnv))...)
	out = append(out, strings.Fields(a.cli.ExtraArgs)...)
	out = append(out, passthrough...)
	return out
}

// measure runs one measurement end to end: show the exact command,
// stream progress, record the run, and cache a usable byte total.
func (a *app) measure(remote, folder string, passthrough []string) error {
	dump, err := a.client.ConfigDump(a.ctx)
	if err != nil {
		// Missing backend info downgrades to "no special-casing".
		a.logger.Warn("could not read remote config, fast-list auto disabled", "error", err)
		dump = nil
	}

	r := runner.New(a.cli.RcloneBin,
		runner.WithPolicy(rsize.FastListPolicy(a.cli.FastList)),
		runner.WithResolver(func(name string) string { return rclone.ResolveType(dump, name) }),
		runner.WithHistory(a.hist),
		runner.WithLogger(a.logger),
	)

	extra := a.extraArgs(passthrough)
	display := r.CommandDisplay(r.Args(remote, folder, extra))
	fmt.Printf("Running: %s\n", display)

	runID := uuid.NewString()
	started := time.Now()
	a.hist.StartEntry(remote, folder, display, runID)
	res, runErr := r.Run(a.ctx, remote, folder, extra)
	a.hist.EndEntry()

	rec := &runindex.Record{
		ID:       runID,
		Remote:   remote,
		Folder:   folder,
		Command:  display,
		Bytes:    res.Bytes,
		HasBytes: res.HasBytes,
		Objects:  res.Objects,
		Elapsed:  res.Elapsed,
		Started:  started,
		Success:  runErr == nil,
	}
	if err := a.index.Put(rec); err != nil {
		a.logger.Warn("could not record run", "error", err)
	}

	if runErr != nil {
		return runErr
	}

	if res.HasBytes {
		if err := a.cache.Upsert(remote, folder, strconv.FormatUint(res.Bytes, 10)); err != nil {
			a.logger.Warn("could not cache result", "error", err)
		}
		fmt.Printf("Total size: %s (%s Byte)\n", res.HumanSize, rsize.GroupDigits(res.Bytes))
	}
	if res.Objects != "" {
		fmt.Println(res.Objects)
	}
	fmt.Printf("Elapsed: %s\n", res.Elapsed)
	return nil
}

func (c *measureCmd) Run(a *app) error {
	if err := a.client.Available(a.ctx); err != nil {
		return err
	}
	return a.measure(c.Remote, c.Folder, c.Args)
}

func (c *browseCmd) Run(a *app) error {
	if err := a.client.Available(a.ctx); err != nil {
		return err
	}
	for {
		remotes, err := a.client.Remotes(a.ctx)
		if err != nil {
			return err
		}
		if len(remotes) == 0 {
			return fmt.Errorf("no remotes configured, run `rclone config` first")
		}
		remote, err := picker.Select("Pick a remote", remotes)
		if errors.Is(err, picker.ErrAborted) {
			return nil
		}
		if err != nil {
			return err
		}
		if err := a.browseRemote(remote); err != nil {
			return err
		}
	}
}

func (a *app) browseRemote(remote string) error {
	for {
		folders, err := a.client.ListFolders(a.ctx, remote)
		if err != nil {
			return err
		}
		options := append([]string{wholeRemote}, folders...)
		choice, err := picker.Select("Pick a folder in "+remote+":", options)
		if errors.Is(err, picker.ErrAborted) {
			return nil
		}
		if err != nil {
			return err
		}
		folder := choice
		if choice == wholeRemote {
			folder = ""
		}
		if err := a.browseFolder(remote, folder); err != nil {
			return err
		}
	}
}

func (a *app) browseFolder(remote, folder string) error {
	target := remote + ":" + folder

	const (
		actionMeasure   = "Measure now"
		actionRemeasure = "Measure again"
		actionClear     = "Clear cached sizes for this remote"
		actionBack      = "Back"
	)
	actions := []string{actionMeasure, actionBack}
	if bytes, ok := a.cache.Lookup(remote, folder); ok {
		fmt.Printf("%s: %s (%s Byte) cached\n", target, rsize.FormatBytes(bytes), rsize.GroupDigits(bytes))
		actions = []string{actionRemeasure, actionClear, actionBack}
	}

	choice, err := picker.Select(target, actions)
	if errors.Is(err, picker.ErrAborted) {
		return nil
	}
	if err != nil {
		return err
	}

	switch choice {
	case actionMeasure, actionRemeasure:
		if err := a.measure(remote, folder, nil); err != nil {
			// Report and return to the menu; the user may retry.
			a.logger.Error("measurement failed", "target", target, "error", err)
		}
	case actionClear:
		n, err := a.cache.Clear(remote)
		if err != nil {
			return fmt.Errorf("clearing cache: %w", err)
		}
		fmt.Printf("dropped %d cached size(s) for %s\n", n, remote)
	}
	return nil
}

func (c *cacheListCmd) Run(a *app) error {
	entries := a.cache.Entries()
	if len(entries) == 0 {
		fmt.Println("size cache is empty")
		return nil
	}
	for _, e := range entries {
		target := e.Remote + ":" + e.Folder
		fmt.Printf("%-40s %12s  (%s Byte)\n", target, rsize.FormatBytes(e.Bytes), rsize.GroupDigits(e.Bytes))
	}
	return nil
}

func (c *cacheClearCmd) Run(a *app) error {
	n, err := a.cache.Clear(c.Remote)
	if err != nil {
		return err
	}
	fmt.Printf("dropped %d cached size(s) for %s\n", n, c.Remote)
	return nil
}

func (c *cacheClearAllCmd) Run(a *app) error {
	if err := a.cache.ClearAll(); err != nil {
		return err
	}
	fmt.Println("size cache cleared")
	return nil
}

func (c *runsCmd) Run(a *app) error {
	recs, err := a.index.Recent(c.Limit, c.Remote)
	if err != nil {
		return err
	}
	if len(recs) == 0 {
		fmt.Println("no recorded runs")
		return nil
	}
	for _, rec := range recs {
		status := "ok"
		size := "-"
		if !rec.Success {
			status = "FAIL"
		}
		if rec.HasBytes {
			size = rsize.FormatBytes(rec.Bytes)
		}
		fmt.Printf("%s  %-4s %-40s %12s  %s\n",
			rec.Started.Local().Format("2006-01-02 15:04"), status, rec.Target(), size, rec.Elapsed)
	}
	return nil
}
