package defaults

import "time"

const minPingInterval = 500 * time.Millisecond

// DefaultPingInterval is the ping-loop period from spec §4.5: "every 30 s
// (configurable)".
const DefaultPingInterval = 30 * time.Second

// PingInterval resolves the ping-loop interval to use: the configured value
// if positive, clamped to a small usability minimum, otherwise the default.
func PingInterval(configured time.Duration) time.Duration {
	if configured <= 0 {
		return DefaultPingInterval
	}
	if configured < minPingInterval {
		return minPingInterval
	}
	return configured
}
