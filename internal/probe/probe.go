package probe

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/opsup/opsup/internal/metrics"
)

// DefaultTimeout bounds a probe when the caller does not supply one.
const DefaultTimeout = 2 * time.Second

// maxBodyBytes caps how much of a response body is read for shape hints.
const maxBodyBytes = 64 << 10

// Result is the outcome of a single probe. It is ephemeral: produced per
// invocation and consumed immediately by the caller. All failure modes are
// folded into OK=false with a descriptive Summary; Probe never returns an
// error.
type Result struct {
	OK         bool   `json:"ok"`
	HTTPStatus int    `json:"http_status,omitempty"`
	ElapsedMS  int64  `json:"elapsed_ms"`
	Summary    string `json:"summary"`
	Shape      string `json:"shape,omitempty"`
}

// Prober issues bounded-timeout HTTP requests against local API endpoints.
type Prober struct {
	client *http.Client
	logger *slog.Logger
}

// New creates a Prober. The underlying client carries no global timeout;
// every request is bounded per call instead.
func New(logger *slog.Logger) *Prober {
	if logger == nil {
		logger = slog.Default()
	}
	return &Prober{
		client: &http.Client{Transport: &http.Transport{}},
		logger: logger,
	}
}

// Probe issues a GET against url bounded by timeout and classifies the
// response. A timeout is reported as "timeout after <t>ms", distinct from a
// connection-refused or DNS failure. A 2xx response with a body yields a
// bounded JSON shape hint.
func (p *Prober) Probe(ctx context.Context, url string, timeout time.Duration) Result {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	pctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	req, err := http.NewRequestWithContext(pctx, http.MethodGet, url, nil)
	if err != nil {
		return Result{Summary: "invalid url: " + err.Error(), ElapsedMS: time.Since(start).Milliseconds()}
	}
	req.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(req)
	elapsed := time.Since(start)
	if err != nil {
		return Result{
			Summary:   p.classifyError(ctx, pctx, err, timeout),
			ElapsedMS: elapsed.Milliseconds(),
		}
	}
	defer func() { _ = resp.Body.Close() }()

	body, readErr := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	res := Result{
		HTTPStatus: resp.StatusCode,
		ElapsedMS:  elapsed.Milliseconds(),
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		res.Summary = fmt.Sprintf("HTTP %d", resp.StatusCode)
		return res
	}
	if readErr != nil {
		res.Summary = "body read failed: " + readErr.Error()
		return res
	}
	res.OK = true
	res.Shape = DescribeJSON(body)
	res.Summary = fmt.Sprintf("HTTP %d %s", resp.StatusCode, res.Shape)
	return res
}

func (p *Prober) classifyError(parent, pctx context.Context, err error, timeout time.Duration) string {
	switch {
	case parent.Err() != nil:
		return "cancelled"
	case errors.Is(err, context.DeadlineExceeded) || pctx.Err() != nil:
		return fmt.Sprintf("timeout after %dms", timeout.Milliseconds())
	default:
		p.logger.Debug("probe connection failed", "error", err)
		return "connection failed: " + err.Error()
	}
}

// IsJSON reports whether a GET of url within timeout returns a well-formed
// JSON body. Used by prefix discovery, where only the shape matters.
func (p *Prober) IsJSON(ctx context.Context, url string, timeout time.Duration) bool {
	res := p.Probe(ctx, url, timeout)
	return res.OK && res.Shape != ShapeParseError && res.Shape != ShapeEmpty
}

// observe records probe metrics under the given endpoint label.
func observe(endpoint string, res Result) {
	metrics.ObserveProbeDuration(endpoint, float64(res.ElapsedMS)/1000)
	if !res.OK {
		metrics.IncProbeFailure(endpoint)
	}
}
