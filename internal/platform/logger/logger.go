package logger

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"
)

type Logger struct {
	SugaredLogger *zap.SugaredLogger
}

// New builds a zap logger for mode: "production" logs JSON at info, "test" logs warnings
// only, anything else is the development console at debug.
func New(mode string) (*Logger, error) {
	cfg, level := zap.NewDevelopmentConfig(), zap.DebugLevel
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case "prod", "production":
		cfg, level = zap.NewProductionConfig(), zap.InfoLevel
	case "test":
		level = zap.WarnLevel
	}
	cfg.Level = zap.NewAtomicLevelAt(level)
	z, err := cfg.Build()
	if err != nil {
		return nil, err
	}
	return &Logger{SugaredLogger: z.Sugar()}, nil
}

// Nop returns a logger that discards everything.
func Nop() *Logger {
	return &Logger{SugaredLogger: zap.NewNop().Sugar()}
}

func (l *Logger) Sync() {
	_ = l.SugaredLogger.Sync()
}

func (l *Logger) Debug(msg string, kv ...interface{}) { l.SugaredLogger.Debugw(msg, sanitizeKVs(kv)...) }
func (l *Logger) Info(msg string, kv ...interface{})  { l.SugaredLogger.Infow(msg, sanitizeKVs(kv)...) }
func (l *Logger) Warn(msg string, kv ...interface{})  { l.SugaredLogger.Warnw(msg, sanitizeKVs(kv)...) }
func (l *Logger) Error(msg string, kv ...interface{}) { l.SugaredLogger.Errorw(msg, sanitizeKVs(kv)...) }
func (l *Logger) Fatal(msg string, kv ...interface{}) { l.SugaredLogger.Fatalw(msg, sanitizeKVs(kv)...) }

func (l *Logger) With(kv ...interface{}) *Logger {
	return &Logger{SugaredLogger: l.SugaredLogger.With(sanitizeKVs(kv)...)}
}

// Field names whose values never reach the log. Matching is by substring on the
// lowercased key, so "postgres_password" and "x-auth-token" are covered.
var redactedKeyParts = []string{"token", "authorization", "password", "secret", "signature", "dsn"}

// Field names whose values are logged as a short salted digest. Subscribe URLs embed a
// confirmation token in the query string but are still useful to correlate.
var hashedKeyParts = []string{"subscribe_url", "unsubscribe_url"}

type redaction struct {
	enabled bool
	salt    string
}

var (
	redactionOnce sync.Once
	redactionCfg  redaction
)

func currentRedaction() redaction {
	redactionOnce.Do(func() {
		redactionCfg.enabled = true
		switch strings.ToLower(strings.TrimSpace(os.Getenv("LOG_REDACTION_ENABLED"))) {
		case "0", "false", "no", "off":
			redactionCfg.enabled = false
		}
		redactionCfg.salt = strings.TrimSpace(os.Getenv("LOG_HASH_SALT"))
	})
	return redactionCfg
}

func sanitizeKVs(kv []interface{}) []interface{} {
	if len(kv) == 0 || !currentRedaction().enabled {
		return kv
	}
	out := make([]interface{}, len(kv))
	copy(out, kv)
	for i := 0; i+1 < len(out); i += 2 {
		key := toString(out[i])
		out[i] = key
		out[i+1] = sanitizeValue(normalizeKey(key), out[i+1])
	}
	return out
}

func sanitizeValue(key string, val interface{}) interface{} {
	switch {
	case key == "":
		return val
	case containsAny(key, redactedKeyParts):
		return "[REDACTED]"
	case containsAny(key, hashedKeyParts):
		return digest(val)
	}
	if m, ok := val.(map[string]interface{}); ok {
		out := make(map[string]interface{}, len(m))
		for k, v := range m {
			out[k] = sanitizeValue(normalizeKey(k), v)
		}
		return out
	}
	return val
}

func normalizeKey(k string) string {
	return strings.ToLower(strings.TrimSpace(k))
}

func containsAny(key string, parts []string) bool {
	for _, p := range parts {
		if strings.Contains(key, p) {
			return true
		}
	}
	return false
}

func digest(val interface{}) string {
	raw := toString(val)
	if raw == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(currentRedaction().salt + raw))
	return "hash:" + hex.EncodeToString(sum[:])[:12]
}

func toString(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case []byte:
		return string(t)
	default:
		return strings.TrimSpace(fmt.Sprint(v))
	}
}
