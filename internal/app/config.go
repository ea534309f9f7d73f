package app

import (
	"time"

	"github.com/yungbote/atlas-ingest/internal/platform/envutil"
)

type Config struct {
	Port        string
	LogMode     string
	ServiceName string
	Environment string
	Version     string

	// VerifySignatures turns relay signature checks on. Only local stacks disable it.
	VerifySignatures bool
	CertHostPattern  string

	DispatchTimeout time.Duration
	ShutdownTimeout time.Duration
	MaxBodyBytes    int64
}

func LoadConfig() Config {
	return Config{
		Port:             envutil.String("PORT", "8080"),
		LogMode:          envutil.String("LOG_MODE", "development"),
		ServiceName:      envutil.String("OTEL_SERVICE_NAME", "atlas-ingest"),
		Environment:      envutil.String("APP_ENV", "development"),
		Version:          envutil.String("APP_VERSION", ""),
		VerifySignatures: envutil.Bool("SNS_SIGNATURE_VERIFICATION", true),
		CertHostPattern:  envutil.String("SNS_CERT_HOST_PATTERN", ""),
		DispatchTimeout:  envutil.Seconds("VALIDATION_DISPATCH_TIMEOUT_SECONDS", 30),
		ShutdownTimeout:  envutil.Seconds("SHUTDOWN_TIMEOUT_SECONDS", 20),
		MaxBodyBytes:     int64(envutil.Int("MAX_BODY_BYTES", 1<<20)),
	}
}
