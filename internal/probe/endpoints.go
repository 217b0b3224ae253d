package probe

import (
	"context"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"
)

// EndpointSpec declares one named diagnostic endpoint. Timeout zero falls
// back to DefaultTimeout; IncludeWorkDir appends the working directory as a
// ?directory= query parameter.
type EndpointSpec struct {
	Name           string        `mapstructure:"name"`
	Path           string        `mapstructure:"path"`
	IncludeWorkDir bool          `mapstructure:"include_work_dir"`
	Timeout        time.Duration `mapstructure:"timeout"`
}

// DefaultEndpoints is the diagnostic endpoint table. The agents endpoint gets
// a longer timeout: agent listing walks the full provider config and is slow
// under large configurations, and a false timeout there misleads diagnosis.
func DefaultEndpoints() []EndpointSpec {
	return []EndpointSpec{
		{Name: "config", Path: "/config", IncludeWorkDir: true},
		{Name: "providers", Path: "/config/providers", IncludeWorkDir: true},
		{Name: "agents", Path: "/agent", IncludeWorkDir: true, Timeout: 10 * time.Second},
		{Name: "commands", Path: "/command", IncludeWorkDir: true},
		{Name: "project", Path: "/project/current", IncludeWorkDir: true},
		{Name: "path", Path: "/path", IncludeWorkDir: true},
		{Name: "sessionStatus", Path: "/session/status", IncludeWorkDir: true},
	}
}

// EndpointResult pairs an endpoint name and probed URL with its Result.
type EndpointResult struct {
	Name string `json:"name"`
	URL  string `json:"url"`
	Result
}

// BuildURL joins base and spec.Path, optionally appending the working
// directory query parameter.
func BuildURL(base string, spec EndpointSpec, workDir string) string {
	u := strings.TrimRight(base, "/") + spec.Path
	if spec.IncludeWorkDir && workDir != "" {
		u += "?directory=" + url.QueryEscape(workDir)
	}
	return u
}

// Diagnose probes every endpoint concurrently, each bounded by its own
// timeout, and collects the results sorted by endpoint name. A hanging
// endpoint never stalls the others, and a failure is isolated to its own
// result entry.
func (p *Prober) Diagnose(ctx context.Context, base, workDir string, specs []EndpointSpec) []EndpointResult {
	if len(specs) == 0 {
		specs = DefaultEndpoints()
	}
	results := make([]EndpointResult, len(specs))

	var wg sync.WaitGroup
	for i, spec := range specs {
		wg.Add(1)
		go func(i int, spec EndpointSpec) {
			defer wg.Done()
			u := BuildURL(base, spec, workDir)
			res := p.Probe(ctx, u, spec.Timeout)
			observe(spec.Name, res)
			results[i] = EndpointResult{Name: spec.Name, URL: u, Result: res}
		}(i, spec)
	}
	wg.Wait()

	sort.Slice(results, func(i, j int) bool { return results[i].Name < results[j].Name })
	return results
}
