package store

import (
	"context"
	"fmt"
	"math/rand/v2"
	"os"
	"regexp"
	"time"

	"github.com/jonwraymond/plancache/observe"
)

// Reconnect backoff bounds. Attempts are unbounded: the store never
// gives up on its backing service permanently.
const (
	reconnectInitialDelay = 1 * time.Second
	reconnectMaxDelay     = 30 * time.Second
)

// monitor probes liveness until the store is closed. A failed probe
// flips the store unavailable and hands control to the reconnect loop;
// while reconnecting, the regular probe ticker is paused.
func (s *RedisStore) monitor(ctx context.Context) {
	defer close(s.probeDone)

	ticker := time.NewTicker(s.cfg.ProbeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		if err := s.ping(ctx); err != nil {
			wasHealthy := s.healthy.Swap(false)
			s.unresponsive.Add(1)
			if wasHealthy {
				s.logger.Warn(ctx, "redis unresponsive, entering reconnect loop",
					observe.Field{Key: "error", Value: err.Error()})
			}
			if !s.reconnect(ctx) {
				return
			}
		} else {
			s.healthy.Store(true)
		}
	}
}

// reconnect retries the connection with jittered exponential backoff
// until it succeeds or the store is closed. Returns false on shutdown.
func (s *RedisStore) reconnect(ctx context.Context) bool {
	delay := reconnectInitialDelay

	for attempt := 1; ; attempt++ {
		timer := time.NewTimer(jittered(delay))
		select {
		case <-ctx.Done():
			timer.Stop()
			return false
		case <-timer.C:
		}

		if err := s.ping(ctx); err == nil {
			s.healthy.Store(true)
			s.reconnects.Add(1)
			s.logger.Info(ctx, "redis reconnected",
				observe.Field{Key: "attempts", Value: attempt})
			return true
		}

		delay *= 2
		if delay > reconnectMaxDelay {
			delay = reconnectMaxDelay
		}
	}
}

func (s *RedisStore) ping(ctx context.Context) error {
	pingCtx, cancel := context.WithTimeout(ctx, s.cfg.DialTimeout)
	defer cancel()
	return s.client.Ping(pingCtx).Err()
}

// jittered adds up to 25% random variance so fleet nodes do not probe a
// recovering service in lockstep.
func jittered(d time.Duration) time.Duration {
	if d <= 0 {
		return d
	}
	// #nosec G404 -- jitter is non-cryptographic timing variance.
	return d + time.Duration(rand.Int64N(int64(d/4)))
}

var credentialVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// expandCredential expands ${VAR} references against the environment.
// A referenced variable that is missing is an error rather than an empty
// string, so a misconfigured deployment fails loudly at startup.
func expandCredential(s string) (string, error) {
	var missing []string
	expanded := credentialVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		name := match[2 : len(match)-1]
		value, ok := os.LookupEnv(name)
		if !ok {
			missing = append(missing, name)
		}
		return value
	})
	if len(missing) > 0 {
		return "", fmt.Errorf("missing environment variables: %v", missing)
	}
	return expanded, nil
}
