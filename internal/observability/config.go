package observability

import (
	"os"
	"strconv"
	"strings"

	"github.com/smallbiznis/inspira/internal/config"
)

// Config holds observability configuration derived from environment variables.
type Config struct {
	ServiceName string
	Environment string
	Version     string

	LogLevel  string
	LogFormat string

	OtelEnabled          bool
	OtelExporterEndpoint string
	OtelExporterProtocol string
	OtelSamplingRatio    float64
}

// LoadConfig layers the standard OTEL_* variables over the application config.
// Development environments default to debug console logs and full sampling.
func LoadConfig(cfg config.Config) Config {
	environment := firstNonEmpty(os.Getenv("DEPLOYMENT_ENV"), cfg.Environment, "development")
	dev := isDevEnv(environment)

	out := Config{
		ServiceName:          firstNonEmpty(os.Getenv("OTEL_SERVICE_NAME"), cfg.AppName, "inspira"),
		Environment:          environment,
		Version:              firstNonEmpty(os.Getenv("SERVICE_VERSION"), cfg.AppVersion),
		LogLevel:             "info",
		LogFormat:            "json",
		OtelEnabled:          cfg.IsProduction(),
		OtelExporterEndpoint: firstNonEmpty(os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"), cfg.OTLPEndpoint),
		OtelExporterProtocol: "grpc",
		OtelSamplingRatio:    0.1,
	}
	if dev {
		out.LogLevel = "debug"
		out.LogFormat = "console"
		out.OtelSamplingRatio = 1
	}

	if v := lower(os.Getenv("LOG_LEVEL")); v != "" {
		out.LogLevel = v
	}
	if v := lower(os.Getenv("LOG_FORMAT")); v != "" {
		out.LogFormat = v
	}
	if v := lower(firstNonEmpty(os.Getenv("OTEL_EXPORTER_OTLP_TRACES_PROTOCOL"), os.Getenv("OTEL_EXPORTER_OTLP_PROTOCOL"))); v != "" {
		out.OtelExporterProtocol = v
	}
	if v, err := strconv.ParseFloat(strings.TrimSpace(os.Getenv("OTEL_TRACES_SAMPLER_ARG")), 64); err == nil {
		out.OtelSamplingRatio = v
	}
	if v, err := strconv.ParseBool(strings.TrimSpace(os.Getenv("OTEL_ENABLED"))); err == nil {
		out.OtelEnabled = v
	}
	// OTEL_SDK_DISABLED wins over OTEL_ENABLED.
	if v, err := strconv.ParseBool(strings.TrimSpace(os.Getenv("OTEL_SDK_DISABLED"))); err == nil && v {
		out.OtelEnabled = false
	}

	return out
}

func (c Config) Debug() bool {
	if lower(c.LogLevel) == "debug" {
		return true
	}
	return isDevEnv(c.Environment)
}

func isDevEnv(env string) bool {
	switch lower(env) {
	case "dev", "development", "local", "test":
		return true
	default:
		return false
	}
}

func lower(value string) string {
	return strings.ToLower(strings.TrimSpace(value))
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			return trimmed
		}
	}
	return ""
}
