package httpapi

import (
	"time"

	"github.com/totcainc/knowledge-shadows/internal/infrastructure/config"
)

// sleepResponseDelay applies the configured artificial latency so client
// retry/backoff and polling behavior can be exercised against the stub.
func sleepResponseDelay(cfg config.Config) {
	if cfg.ResponseDelayMinMs > 0 && cfg.ResponseDelayMaxMs > 0 {
		delta := cfg.ResponseDelayMaxMs - cfg.ResponseDelayMinMs
		if delta < 0 {
			delta = 0
		}
		// pseudo-randomness from the clock is plenty for a dev stub
		n := time.Now().UnixNano()
		rnd := int(n % int64(delta+1))
		time.Sleep(time.Duration(cfg.ResponseDelayMinMs+rnd) * time.Millisecond)
		return
	}
	if cfg.ResponseDelayMs > 0 {
		time.Sleep(time.Duration(cfg.ResponseDelayMs) * time.Millisecond)
	}
}
