package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Resolver modes select how source identifiers are turned into resources.
const (
	ResolverItem  = "item"
	ResolverGraph = "graph"
)

// Archive destinations for failure records.
const (
	ArchiveNone  = "none"
	ArchiveLocal = "local"
	ArchiveS3    = "s3"
)

// Config holds runtime configuration for the pipeline watcher.
type Config struct {
	Env         string
	LogLevel    string
	MetricsAddr string
	Namespace   string
	Kubeconfig  string

	GreenZoneLabel string
	CoreZoneLabel  string

	MetadataService string
	GraphService    string
	DataOpsService  string
	ResolverMode    string
	HTTPTimeout     time.Duration

	// Diagnostic makes the watcher return the first per-event error instead of logging it.
	Diagnostic bool

	ArchiveDestination string
	ArchiveDir         string
	ArchiveS3Bucket    string
	ArchiveS3Region    string
	ArchiveS3Endpoint  string
	ArchiveS3PathStyle bool
	ArchiveS3AccessKey string
	ArchiveS3SecretKey string
}

// Load reads configuration from environment variables with defaults for local development.
func Load() Config {
	return Config{
		Env:                getEnv("ENV", "dev"),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		MetricsAddr:        getEnv("METRICS_ADDR", ":6063"),
		Namespace:          getEnv("K8S_NAMESPACE", "greenroom"),
		Kubeconfig:         getEnv("KUBECONFIG", ""),
		GreenZoneLabel:     getEnv("GREEN_ZONE_LABEL", "Greenroom"),
		CoreZoneLabel:      getEnv("CORE_ZONE_LABEL", "Core"),
		MetadataService:    trimURL(getEnv("METADATA_SERVICE", "")),
		GraphService:       trimURL(getEnv("NEO4J_SERVICE", "")),
		DataOpsService:     trimURL(getEnv("DATAOPS_SERVICE", "")),
		ResolverMode:       strings.ToLower(getEnv("RESOLVER_MODE", ResolverItem)),
		HTTPTimeout:        getEnvDuration("HTTP_TIMEOUT", 0),
		Diagnostic:         getEnvBool("WATCHER_DIAGNOSTIC", false),
		ArchiveDestination: strings.ToLower(getEnv("ARCHIVE_DESTINATION", ArchiveNone)),
		ArchiveDir:         getEnv("ARCHIVE_DIR", "./failures"),
		ArchiveS3Bucket:    getEnv("ARCHIVE_S3_BUCKET", ""),
		ArchiveS3Region:    getEnv("ARCHIVE_S3_REGION", "us-east-1"),
		ArchiveS3Endpoint:  getEnv("ARCHIVE_S3_ENDPOINT", ""),
		ArchiveS3PathStyle: getEnvBool("ARCHIVE_S3_PATH_STYLE", false),
		ArchiveS3AccessKey: getEnv("ARCHIVE_S3_ACCESS_KEY", ""),
		ArchiveS3SecretKey: getEnv("ARCHIVE_S3_SECRET_KEY", ""),
	}
}

// Validate reports configuration the watcher cannot start with.
func (c Config) Validate() error {
	var errs []error
	if c.Namespace == "" {
		errs = append(errs, errors.New("K8S_NAMESPACE is required"))
	}
	if c.GreenZoneLabel == "" || c.CoreZoneLabel == "" {
		errs = append(errs, errors.New("GREEN_ZONE_LABEL and CORE_ZONE_LABEL are required"))
	}
	if c.DataOpsService == "" {
		errs = append(errs, errors.New("DATAOPS_SERVICE is required"))
	}
	switch strings.ToLower(c.ResolverMode) {
	case ResolverItem:
		if c.MetadataService == "" {
			errs = append(errs, errors.New("METADATA_SERVICE is required for resolver mode item"))
		}
	case ResolverGraph:
		if c.GraphService == "" {
			errs = append(errs, errors.New("NEO4J_SERVICE is required for resolver mode graph"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown RESOLVER_MODE %q", c.ResolverMode))
	}
	switch strings.ToLower(c.ArchiveDestination) {
	case ArchiveNone, "":
	case ArchiveLocal:
		if c.ArchiveDir == "" {
			errs = append(errs, errors.New("ARCHIVE_DIR is required for local archive"))
		}
	case ArchiveS3:
		if c.ArchiveS3Bucket == "" {
			errs = append(errs, errors.New("ARCHIVE_S3_BUCKET is required for s3 archive"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown ARCHIVE_DESTINATION %q", c.ArchiveDestination))
	}
	return errors.Join(errs...)
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func trimURL(u string) string {
	return strings.TrimRight(u, "/")
}
