package defaults

import "time"

// MaxReconnectAttempts is the default ceiling on reconnect attempts (spec §4.5).
const MaxReconnectAttempts = 10

// ReconnectDelay returns the wait before reconnect attempt k (1-indexed): the
// first attempt is immediate, subsequent attempts back off as
// 1000*2^(k-2) ms (1s, 2s, 4s, 8s, ...), per spec §4.5.
func ReconnectDelay(k int) time.Duration {
	if k <= 1 {
		return 0
	}
	return time.Duration(1000<<(k-2)) * time.Millisecond
}
