// logging/logging.go
package logging

import (
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// BootstrapLogger returns an info-level development logger for the startup
// phase before config is loaded. Never fails; degrades to a no-op logger.
func BootstrapLogger() *zap.Logger {
	logger, err := baseConfig("dev", zap.InfoLevel).Build()
	if err != nil {
		return zap.NewNop()
	}
	return logger
}

// BuildLogger constructs the configured logger: JSON encoding when env is
// "prod", console otherwise. Level is one of debug, info, warn, error,
// dpanic, panic, fatal (case-insensitive); anything else falls back to info
// with a warning on stderr.
func BuildLogger(level, env string) (*zap.Logger, error) {
	lvl := zap.InfoLevel
	if err := lvl.UnmarshalText([]byte(strings.ToLower(level))); err != nil {
		_, _ = os.Stderr.WriteString("WARNING: invalid log level \"" + level +
			"\"; valid levels are: debug, info, warn, error, dpanic, panic, fatal. Defaulting to \"info\".\n")
		lvl = zap.InfoLevel
	}
	return baseConfig(env, lvl).Build()
}

// MustBuildLogger is BuildLogger for main(): exits on failure.
func MustBuildLogger(level, env string) *zap.Logger {
	logger, err := BuildLogger(level, env)
	if err != nil {
		_, _ = os.Stderr.WriteString("failed to build logger: " + err.Error() + "\n")
		os.Exit(1)
	}
	return logger
}

func baseConfig(env string, lvl zapcore.Level) zap.Config {
	var cfg zap.Config
	if env == "prod" {
		cfg = zap.NewProductionConfig()
		cfg.Encoding = "json"
	} else {
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.OutputPaths = []string{"stderr"}
	cfg.ErrorOutputPaths = []string{"stderr"}
	return cfg
}
