package logger

import (
	"fmt"
	"net/url"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	mu     sync.Mutex
	global *zap.SugaredLogger
	level  = zap.NewAtomicLevelAt(zapcore.InfoLevel)
)

// Init builds the process-wide logger at the given level. It may be called
// more than once; the last call wins.
func Init(lvl string) error {
	parsed, err := ParseLevel(lvl)
	if err != nil {
		return err
	}
	level.SetLevel(parsed)

	cfg := zap.NewDevelopmentConfig()
	cfg.Level = level
	cfg.DisableStacktrace = true
	cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	cfg.EncoderConfig.EncodeCaller = nil
	cfg.EncoderConfig.TimeKey = ""

	z, err := cfg.Build()
	if err != nil {
		return fmt.Errorf("building logger: %w", err)
	}

	mu.Lock()
	global = z.Sugar()
	mu.Unlock()
	return nil
}

// Logger returns the process-wide logger, or a no-op logger before Init.
func Logger() *zap.SugaredLogger {
	mu.Lock()
	defer mu.Unlock()
	if global == nil {
		return zap.NewNop().Sugar()
	}
	return global
}

// ParseLevel maps the CLI level names onto zap levels. Empty means info.
func ParseLevel(lvl string) (zapcore.Level, error) {
	switch strings.ToLower(strings.TrimSpace(lvl)) {
	case "", "info":
		return zapcore.InfoLevel, nil
	case "debug":
		return zapcore.DebugLevel, nil
	case "warn", "warning":
		return zapcore.WarnLevel, nil
	case "error":
		return zapcore.ErrorLevel, nil
	default:
		return zapcore.InfoLevel, fmt.Errorf("invalid log level %q (expected debug|info|warn|error)", lvl)
	}
}

// RedactURL strips credentials and the query string from a download URL.
// Pre-authenticated vendor links carry their token in the query.
func RedactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" {
		return raw
	}
	if u.User != nil {
		u.User = url.User("redacted")
	}
	if u.RawQuery != "" {
		u.RawQuery = "redacted"
	}
	u.Fragment = ""
	return u.String()
}
