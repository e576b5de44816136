// Package config holds the tunables the source (Lab13's tcp_stack) bakes
// in as C macros: MSS, the default window sizes, the retransmit and
// time-wait durations, and the per-wake segment processing cap connect.go
// enforces as maxSegmentsPerWake. Lifting them into a struct lets tests and
// the demo CLI exercise non-default values without touching the core.
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/zxysbsbzxy/usertcp/tcpip/header"
)

// Config holds the tunables for a tcp.Conn.
type Config struct {
	// MSS is the maximum segment size assumed for outbound data, since
	// this core doesn't negotiate options beyond it (spec.md section 1).
	MSS int

	// RecvWindow is the initial advertised receive window, in bytes.
	RecvWindow int

	// RetransmitTimeout is the delay before an unacknowledged send-buffer
	// head is retransmitted (spec.md section 4.6).
	RetransmitTimeout time.Duration

	// TimeWaitDuration is how long a connection dwells in TIME_WAIT /
	// LAST_ACK before the timer transitions it to CLOSED (spec.md
	// section 4.6, invariant 5).
	TimeWaitDuration time.Duration

	// MaxSegmentsPerWake caps how many queued segments a connection's
	// actor loop processes before yielding, matching connect.go's
	// maxSegmentsPerWake.
	MaxSegmentsPerWake int
}

// Default returns the configuration this core uses absent any override.
func Default() Config {
	return Config{
		MSS:                header.DefaultMSS,
		RecvWindow:         64 * 1024,
		RetransmitTimeout:  time.Second,
		TimeWaitDuration:   2 * time.Minute,
		MaxSegmentsPerWake: 100,
	}
}

// FromEnv returns Default with any of TCPCORE_MSS, TCPCORE_RECV_WINDOW,
// TCPCORE_RETRANSMIT_TIMEOUT, TCPCORE_TIME_WAIT_DURATION,
// TCPCORE_MAX_SEGMENTS_PER_WAKE overridden from the environment, in the
// plain os.Getenv-plus-parse style of tinyrange-cc/examples/shared/config.go
// (this repo has no dependency with an actual call site for binding env
// vars into a struct, so no library is introduced for it).
func FromEnv() Config {
	cfg := Default()
	cfg.MSS = getEnvInt("TCPCORE_MSS", cfg.MSS)
	cfg.RecvWindow = getEnvInt("TCPCORE_RECV_WINDOW", cfg.RecvWindow)
	cfg.RetransmitTimeout = getEnvDuration("TCPCORE_RETRANSMIT_TIMEOUT", cfg.RetransmitTimeout)
	cfg.TimeWaitDuration = getEnvDuration("TCPCORE_TIME_WAIT_DURATION", cfg.TimeWaitDuration)
	cfg.MaxSegmentsPerWake = getEnvInt("TCPCORE_MAX_SEGMENTS_PER_WAKE", cfg.MaxSegmentsPerWake)
	return cfg
}

func getEnvInt(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultValue
}
