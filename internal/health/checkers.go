package health

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/mbd888/tokensafe/internal/circuitbreaker"
)

// PingChecker reports healthy when ping succeeds. Used for the RPC
// endpoint registry.
func PingChecker(name string, ping func(ctx context.Context) error) Checker {
	return func(ctx context.Context) Status {
		if err := ping(ctx); err != nil {
			return Status{Name: name, Healthy: false, Detail: err.Error()}
		}
		return Status{Name: name, Healthy: true}
	}
}

// HTTPChecker reports healthy when url answers with any status below 500.
// A 4xx still proves the upstream is reachable.
func HTTPChecker(name string, client *http.Client, url string) Checker {
	if client == nil {
		client = http.DefaultClient
	}
	return func(ctx context.Context) Status {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return Status{Name: name, Healthy: false, Detail: err.Error()}
		}
		resp, err := client.Do(req)
		if err != nil {
			return Status{Name: name, Healthy: false, Detail: err.Error()}
		}
		resp.Body.Close()
		if resp.StatusCode >= http.StatusInternalServerError {
			return Status{Name: name, Healthy: false, Detail: fmt.Sprintf("upstream returned %d", resp.StatusCode)}
		}
		return Status{Name: name, Healthy: true}
	}
}

// BreakerChecker reports unhealthy while any circuit is open, naming the
// open keys.
func BreakerChecker(name string, b *circuitbreaker.Breaker) Checker {
	return func(_ context.Context) Status {
		var open []string
		for _, ks := range b.Snapshot() {
			if ks.State == circuitbreaker.StateOpen.String() {
				open = append(open, ks.Key)
			}
		}
		if len(open) == 0 {
			return Status{Name: name, Healthy: true}
		}
		return Status{Name: name, Healthy: false, Detail: "open: " + strings.Join(open, ", ")}
	}
}
