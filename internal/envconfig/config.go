package envconfig

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/born-ml/graphrt/internal/logutil"
)

var (
	// Set via GRAPHRT_NUM_THREADS in the environment
	NumThreads int
	// Set via GRAPHRT_LOG_LEVEL in the environment
	LogLevel slog.Level
	// Set via GRAPHRT_CODE_BUFFER_SIZE in the environment
	CodeBufferSize int
	// Set via GRAPHRT_DISABLE_CODEGEN in the environment
	DisableCodeGen bool
)

// DefaultCodeBufferSize is the code cache size used when none is configured.
const DefaultCodeBufferSize = 16384

type EnvVar struct {
	Name        string
	Value       any
	Description string
}

func AsMap() map[string]EnvVar {
	return map[string]EnvVar{
		"GRAPHRT_NUM_THREADS":      {"GRAPHRT_NUM_THREADS", NumThreads, "Worker threads for the default pool (default: number of CPUs)"},
		"GRAPHRT_LOG_LEVEL":        {"GRAPHRT_LOG_LEVEL", LogLevel, "Log level: trace, debug, info, warn or error (default info)"},
		"GRAPHRT_CODE_BUFFER_SIZE": {"GRAPHRT_CODE_BUFFER_SIZE", CodeBufferSize, "Initial code cache size in bytes (default 16384)"},
		"GRAPHRT_DISABLE_CODEGEN":  {"GRAPHRT_DISABLE_CODEGEN", DisableCodeGen, "Build operator programs on the heap instead of the code cache"},
	}
}

func Values() map[string]string {
	vals := make(map[string]string)
	for k, v := range AsMap() {
		vals[k] = fmt.Sprintf("%v", v.Value)
	}
	return vals
}

// Clean quotes and spaces from the value
func clean(key string) string {
	return strings.Trim(os.Getenv(key), "\"' ")
}

func init() {
	LoadConfig()
}

// ParseLevel maps a level name to a slog level.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "trace":
		return logutil.LevelTrace, nil
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("unknown log level %q", s)
}

func LoadConfig() {
	NumThreads = 0
	LogLevel = slog.LevelInfo
	CodeBufferSize = DefaultCodeBufferSize
	DisableCodeGen = false

	if nt := clean("GRAPHRT_NUM_THREADS"); nt != "" {
		val, err := strconv.Atoi(nt)
		if err != nil || val <= 0 {
			slog.Error("invalid setting must be greater than zero", "GRAPHRT_NUM_THREADS", nt, "error", err)
		} else {
			NumThreads = val
		}
	}

	if lvl := clean("GRAPHRT_LOG_LEVEL"); lvl != "" {
		l, err := ParseLevel(lvl)
		if err != nil {
			slog.Error("invalid setting, ignoring", "GRAPHRT_LOG_LEVEL", lvl, "error", err)
		} else {
			LogLevel = l
		}
	}

	if size := clean("GRAPHRT_CODE_BUFFER_SIZE"); size != "" {
		val, err := strconv.Atoi(size)
		if err != nil || val <= 0 {
			slog.Error("invalid setting must be greater than zero", "GRAPHRT_CODE_BUFFER_SIZE", size, "error", err)
		} else {
			CodeBufferSize = val
		}
	}

	if dc := clean("GRAPHRT_DISABLE_CODEGEN"); dc != "" {
		d, err := strconv.ParseBool(dc)
		if err == nil {
			DisableCodeGen = d
		} else {
			DisableCodeGen = true
		}
	}
}
