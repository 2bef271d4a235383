// Package rclone shells out to the rclone binary for remote metadata:
// the availability probe, the remote/backend configuration dump and
// top-level folder listings. The measurement run itself lives in the
// runner package.
package rclone

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os/exec"
	"sort"
	"strings"
)

// ErrUnavailable is returned when the rclone binary cannot be executed.
var ErrUnavailable = fmt.Errorf("rclone: binary unavailable")

// maxResolveHops bounds alias/crypt indirection when resolving the
// concrete backend type of a remote.
const maxResolveHops = 5

// RemoteConfig is the slice of an rclone config section the tool cares
// about: the backend type and, for alias/crypt remotes, the target they
// point at.
type RemoteConfig struct {
	Type   string `json:"type"`
	Remote string `json:"remote"`
}

// Client invokes the rclone binary.
type Client struct {
	bin    string
	logger *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithBinary overrides the rclone binary path.
func WithBinary(bin string) Option {
	return func(c *Client) {
		c.bin = bin
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// New creates a Client for the rclone binary on PATH.
func New(opts ...Option) *Client {
	c := &Client{
		bin:    "rclone",
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Binary returns the configured rclone binary path.
func (c *Client) Binary() string {
	return c.bin
}

// Available verifies that the rclone binary can be executed. This is
// the one fatal pre-run check: without rclone the program must not
// proceed past startup.
func (c *Client) Available(ctx context.Context) error {
	cmd := exec.CommandContext(ctx, c.bin, "version", "--check=false")
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%w: %q: %v", ErrUnavailable, c.bin, err)
	}
	return nil
}

// ConfigDump returns the configured remotes keyed by name, from
// `rclone config dump`.
func (c *Client) ConfigDump(ctx context.Context) (map[string]RemoteConfig, error) {
	out, err := c.run(ctx, "config", "dump")
	if err != nil {
		return nil, err
	}
	remotes := make(map[string]RemoteConfig)
	if err := json.Unmarshal(out, &remotes); err != nil {
		return nil, fmt.Errorf("decoding config dump: %w", err)
	}
	return remotes, nil
}

// Remotes returns the configured remote names, sorted.
func (c *Client) Remotes(ctx context.Context) ([]string, error) {
	remotes, err := c.ConfigDump(ctx)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(remotes))
	for name := range remotes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// ListFolders returns the top-level folder names of a remote, from
// `rclone lsf --dirs-only`.
func (c *Client) ListFolders(ctx context.Context, remote string) ([]string, error) {
	out, err := c.run(ctx, "lsf", "--dirs-only", remote+":")
	if err != nil {
		return nil, err
	}
	return parseFolderList(string(out)), nil
}

func (c *Client) run(ctx context.Context, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, c.bin, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	c.logger.Debug("running rclone", "args", args)
	if err := cmd.Run(); err != nil {
		if stderr.Len() > 0 {
			return nil, fmt.Errorf("rclone %s: %v (%s)", args[0], err, strings.TrimSpace(stderr.String()))
		}
		return nil, fmt.Errorf("rclone %s: %w", args[0], err)
	}
	return stdout.Bytes(), nil
}

// parseFolderList splits lsf output into folder names, dropping the
// trailing slashes lsf prints for directories.
func parseFolderList(out string) []string {
	var folders []string
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		folders = append(folders, strings.TrimSuffix(line, "/"))
	}
	return folders
}

// ResolveType follows alias/crypt indirection to find the concrete
// backend type underlying a remote. An unknown name or an unresolved
// chain yields an empty type, not an error: the caller treats missing
// info as "no special-casing".
func ResolveType(remotes map[string]RemoteConfig, name string) string {
	for hops := 0; hops <= maxResolveHops; hops++ {
		rc, ok := remotes[name]
		if !ok {
			return ""
		}
		if rc.Type != "alias" && rc.Type != "crypt" {
			return rc.Type
		}
		// The target looks like "other-remote:optional/path".
		target, _, _ := strings.Cut(rc.Remote, ":")
		if target == "" {
			return ""
		}
		name = target
	}
	return ""
}
