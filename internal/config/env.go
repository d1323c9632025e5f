package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// EnvPrefix prefixes every environment variable read by parseEnv.
const EnvPrefix = "SOCIALSYNC_"

// envFile returns the dotenv file to load: SOCIALSYNC_ENV_FILE when set,
// otherwise .env in the working directory.
func envFile() string {
	if p := os.Getenv(EnvPrefix + "ENV_FILE"); p != "" {
		return p
	}
	return ".env"
}

// parseEnv loads the dotenv file, if any, into the process environment and
// overlays cfg with SOCIALSYNC_* variables. Variables already set in the
// environment win over the file.
func parseEnv(cfg *Config) error {
	path := envFile()
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load %s: %w", path, err)
	}

	str := func(key string, dst *string) {
		if v, ok := os.LookupEnv(EnvPrefix + key); ok {
			*dst = v
		}
	}
	str("REMOTE_DSN", &cfg.RemoteDSN)
	str("LOCAL_DB_PATH", &cfg.LocalDBPath)
	str("JWT_SECRET", &cfg.JWTSecret)
	str("ACCESS_TOKEN", &cfg.AccessToken)
	str("S3_ENDPOINT", &cfg.S3Endpoint)
	str("S3_REGION", &cfg.S3Region)
	str("S3_ACCESS_KEY", &cfg.S3AccessKey)
	str("S3_SECRET_KEY", &cfg.S3SecretKey)
	str("S3_PUBLIC_BASE_URL", &cfg.S3PublicBaseURL)
	str("MEDIA_BUCKET", &cfg.MediaBucket)
	str("BAG_BUCKET", &cfg.BagBucket)
	str("HEALTH_ADDR", &cfg.HealthAddr)
	str("LOG_FORMAT", &cfg.LogFormat)
	str("LOG_LEVEL", &cfg.LogLevel)

	if v, ok := os.LookupEnv(EnvPrefix + "VAULT_QUOTA_BYTES"); ok {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("%sVAULT_QUOTA_BYTES: %w", EnvPrefix, err)
		}
		cfg.VaultQuotaBytes = n
	}
	if v, ok := os.LookupEnv(EnvPrefix + "VAULT_UNLIMITED_OWNERS"); ok {
		cfg.VaultUnlimitedOwners = splitList(v)
	}
	if v, ok := os.LookupEnv(EnvPrefix + "FEED_PAGE_SIZE"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%sFEED_PAGE_SIZE: %w", EnvPrefix, err)
		}
		cfg.FeedPageSize = n
	}
	for key, dst := range map[string]*time.Duration{
		"REMOTE_TIMEOUT":        &cfg.RemoteTimeout,
		"ONLINE_CHECK_INTERVAL": &cfg.OnlineCheckInterval,
	} {
		v, ok := os.LookupEnv(EnvPrefix + key)
		if !ok {
			continue
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%s%s: %w", EnvPrefix, key, err)
		}
		*dst = d
	}
	return nil
}

// splitList splits a comma separated list, dropping blanks.
func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
