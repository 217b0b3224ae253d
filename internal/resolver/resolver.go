package resolver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/opsup/opsup/internal/probe"
)

// ErrDetectionFailed means neither an output-line signal nor a fallback
// port probe produced a serving endpoint before the deadline.
var ErrDetectionFailed = errors.New("detection failed")

// Endpoint is the resolved address of the CLI's API. Prefix is empty when
// the API is served at the root.
type Endpoint struct {
	Port   int    `json:"port"`
	Prefix string `json:"prefix"`
}

// URL renders the base API URL, always with a trailing slash.
func (e Endpoint) URL() string {
	return fmt.Sprintf("http://localhost:%d%s/", e.Port, e.Prefix)
}

// Config bounds detection. Defaults are applied by New.
type Config struct {
	// Deadline caps the whole resolve, line watching and fallback included.
	Deadline time.Duration `mapstructure:"deadline"`
	// FallbackPorts is the ordered list probed when no output line matched.
	// Older CLI builds print no parseable address, which is the only reason
	// this list exists; empty disables the fallback.
	FallbackPorts []int `mapstructure:"fallback_ports"`
	// PrefixCandidates are tried in order after the root prefix. The CLI's
	// routing convention has moved between versions, so the prefix must be
	// discovered, not assumed.
	PrefixCandidates []string      `mapstructure:"prefix_candidates"`
	ProbeTimeout     time.Duration `mapstructure:"probe_timeout"`
}

func (c *Config) applyDefaults() {
	if c.Deadline <= 0 {
		c.Deadline = 15 * time.Second
	}
	if c.PrefixCandidates == nil {
		c.PrefixCandidates = []string{"/api"}
	}
	if c.ProbeTimeout <= 0 {
		c.ProbeTimeout = 1 * time.Second
	}
}

// Resolver determines the port and API prefix a running CLI actually bound
// to, preferring output-line parsing over speculative network calls.
type Resolver struct {
	cfg    Config
	prober *probe.Prober
	logger *slog.Logger
}

func New(logger *slog.Logger, prober *probe.Prober, cfg Config) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	cfg.applyDefaults()
	return &Resolver{cfg: cfg, prober: prober, logger: logger}
}

// Output-line signals observed across CLI versions, most specific first.
var (
	urlPattern  = regexp.MustCompile(`https?://(?:localhost|127\.0\.0\.1|0\.0\.0\.0):(\d{2,5})(/\S*)?`)
	portPattern = regexp.MustCompile(`(?i)listening(?:\s+on)?(?:\s+port)?\D*?(\d{2,5})`)
)

// ParseLine extracts a port (and, for URL-shaped lines, a prefix hint) from
// one line of CLI output.
func ParseLine(line string) (port int, prefix string, ok bool) {
	if m := urlPattern.FindStringSubmatch(line); m != nil {
		p, err := strconv.Atoi(m[1])
		if err != nil || p <= 0 || p > 65535 {
			return 0, "", false
		}
		return p, normalizePrefix(m[2]), true
	}
	if m := portPattern.FindStringSubmatch(line); m != nil {
		p, err := strconv.Atoi(m[1])
		if err != nil || p <= 0 || p > 65535 {
			return 0, "", false
		}
		return p, "", true
	}
	return 0, "", false
}

func normalizePrefix(p string) string {
	p = strings.TrimSpace(p)
	p = strings.TrimRight(p, "/")
	if p == "" || p == "/" {
		return ""
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return p
}

// Resolve watches lines for a listening signal until the configured
// deadline, falling back to the candidate port list, then discovers the API
// prefix for the found port. The returned context error is ctx's own when
// the caller cancelled; everything else is ErrDetectionFailed.
func (r *Resolver) Resolve(ctx context.Context, lines <-chan string) (Endpoint, error) {
	dctx, cancel := context.WithTimeout(ctx, r.cfg.Deadline)
	defer cancel()

	port, hint, err := r.watchLines(dctx, lines)
	if err == nil {
		return r.finish(dctx, port, hint)
	}
	if ctx.Err() != nil {
		return Endpoint{}, ctx.Err()
	}

	ep, scanErr := r.scanFallbackPorts(dctx)
	if scanErr != nil {
		if ctx.Err() != nil {
			return Endpoint{}, ctx.Err()
		}
		return Endpoint{}, fmt.Errorf("%w: no port signal within %s and no fallback port responded", ErrDetectionFailed, r.cfg.Deadline)
	}
	return ep, nil
}

// watchLines consumes output until a port signal appears, the stream closes,
// or the deadline fires.
func (r *Resolver) watchLines(ctx context.Context, lines <-chan string) (int, string, error) {
	for {
		select {
		case line, open := <-lines:
			if !open {
				// Process output ended; only the fallback can help now.
				return 0, "", ErrDetectionFailed
			}
			if port, hint, ok := ParseLine(line); ok {
				r.logger.Debug("port signal in output", "port", port, "prefix_hint", hint, "line", line)
				return port, hint, nil
			}
		case <-ctx.Done():
			return 0, "", ErrDetectionFailed
		}
	}
}

// finish validates the detected port by discovering its prefix. A prefix
// hint from a URL-shaped line is tried first.
func (r *Resolver) finish(ctx context.Context, port int, hint string) (Endpoint, error) {
	prefix, err := r.discoverPrefix(ctx, port, hint)
	if err != nil {
		return Endpoint{}, err
	}
	return Endpoint{Port: port, Prefix: prefix}, nil
}

// discoverPrefix issues a lightweight request per candidate prefix, root
// first, and accepts the first well-formed JSON response.
func (r *Resolver) discoverPrefix(ctx context.Context, port int, hint string) (string, error) {
	candidates := make([]string, 0, len(r.cfg.PrefixCandidates)+2)
	if hint != "" {
		candidates = append(candidates, hint)
	}
	candidates = append(candidates, "")
	for _, c := range r.cfg.PrefixCandidates {
		c = normalizePrefix(c)
		if c != "" && c != hint {
			candidates = append(candidates, c)
		}
	}

	for _, prefix := range candidates {
		if ctx.Err() != nil {
			return "", fmt.Errorf("%w: prefix discovery interrupted", ErrDetectionFailed)
		}
		u := Endpoint{Port: port, Prefix: prefix}.URL()
		if r.prober.IsJSON(ctx, u, r.cfg.ProbeTimeout) {
			return prefix, nil
		}
	}
	return "", fmt.Errorf("%w: port %d found but no candidate prefix served JSON", ErrDetectionFailed, port)
}

// scanFallbackPorts tries historically-used ports in order when no output
// signal was observed.
func (r *Resolver) scanFallbackPorts(ctx context.Context) (Endpoint, error) {
	for _, port := range r.cfg.FallbackPorts {
		if ctx.Err() != nil {
			break
		}
		r.logger.Debug("probing fallback port", "port", port)
		if ep, err := r.finish(ctx, port, ""); err == nil {
			return ep, nil
		}
	}
	return Endpoint{}, ErrDetectionFailed
}
