package logging

import (
	"io"
	"log/slog"
	"strings"
)

// SubSystem tags a log line with the component that produced it.
type SubSystem string

const (
	Consensus  SubSystem = "consensus"
	Masking    SubSystem = "masking"
	Chain      SubSystem = "chain"
	Network    SubSystem = "network"
	Training   SubSystem = "training"
	Simulation SubSystem = "simulation"
	Storage    SubSystem = "storage"
	API        SubSystem = "api"
)

// ParseLevel maps a config string to a slog level. Unknown values mean info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Setup installs a JSON handler writing to w as the default logger.
func Setup(w io.Writer, level string) {
	slog.SetDefault(slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: ParseLevel(level)})))
}

func setNoopLogger() {
	var logLevel slog.LevelVar
	logLevel.Set(slog.Level(100))
	slog.SetDefault(slog.New(slog.NewJSONHandler(io.Discard, &slog.HandlerOptions{Level: &logLevel})))
}

// WithNoopLogger runs action with logging silenced.
func WithNoopLogger(action func()) {
	current := slog.Default()
	defer slog.SetDefault(current)
	setNoopLogger()
	action()
}

func Warn(msg string, subSystem SubSystem, keyvals ...interface{}) {
	slog.Warn(msg, append([]interface{}{"subsystem", subSystem}, keyvals...)...)
}

func Info(msg string, subSystem SubSystem, keyvals ...interface{}) {
	slog.Info(msg, append([]interface{}{"subsystem", subSystem}, keyvals...)...)
}

func Error(msg string, subSystem SubSystem, keyvals ...interface{}) {
	slog.Error(msg, append([]interface{}{"subsystem", subSystem}, keyvals...)...)
}

func Debug(msg string, subSystem SubSystem, keyvals ...interface{}) {
	slog.Debug(msg, append([]interface{}{"subsystem", subSystem}, keyvals...)...)
}
