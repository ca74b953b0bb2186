package envutil

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/yungbote/lessonforge-backend/internal/pkg/logger"
)

// String returns the trimmed value of key, or def when unset or blank.
func String(key, def string, log *logger.Logger) string {
	v, ok := lookup(key)
	if !ok {
		if log != nil {
			log.Debug("Environment variable not found, using default", "env_var", key, "default", def)
		}
		return def
	}
	if log != nil {
		log.Debug("Environment variable found", "env_var", key, "length", len(v))
	}
	return v
}

func Int(key string, def int, log *logger.Logger) int {
	v, ok := lookup(key)
	if !ok {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		if log != nil {
			log.Warn("Environment variable could not be parsed as int, using default", "env_var", key, "provided", v, "default", def, "error", err)
		}
		return def
	}
	return i
}

func Float(key string, def float64, log *logger.Logger) float64 {
	v, ok := lookup(key)
	if !ok {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		if log != nil {
			log.Warn("Environment variable could not be parsed as float, using default", "env_var", key, "provided", v, "default", def, "error", err)
		}
		return def
	}
	return f
}

func Bool(key string, def bool) bool {
	v, ok := lookup(key)
	if !ok {
		return def
	}
	switch strings.ToLower(v) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return def
	}
}

// Seconds reads an integer number of seconds. Negative values clamp to zero.
func Seconds(key string, defSeconds int, log *logger.Logger) time.Duration {
	n := Int(key, defSeconds, log)
	if n < 0 {
		n = 0
	}
	return time.Duration(n) * time.Second
}

func Millis(key string, defMillis int, log *logger.Logger) time.Duration {
	n := Int(key, defMillis, log)
	if n < 0 {
		n = 0
	}
	return time.Duration(n) * time.Millisecond
}

func lookup(key string) (string, bool) {
	v, ok := os.LookupEnv(key)
	if !ok {
		return "", false
	}
	v = strings.TrimSpace(v)
	if v == "" {
		return "", false
	}
	return v, true
}
