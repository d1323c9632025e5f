package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/dmitrijs2005/socialsync/internal/flagx"
	"github.com/dmitrijs2005/socialsync/internal/timex"
)

// JsonConfig is the on-disk shape of the config file. Durations accept
// either "3s" strings or integer nanoseconds. Only keys present in the file
// override earlier sources.
type JsonConfig struct {
	RemoteDSN            *string         `json:"remote_dsn"`
	LocalDBPath          *string         `json:"local_db_path"`
	JWTSecret            *string         `json:"jwt_secret"`
	AccessToken          *string         `json:"access_token"`
	S3Endpoint           *string         `json:"s3_endpoint"`
	S3Region             *string         `json:"s3_region"`
	S3AccessKey          *string         `json:"s3_access_key"`
	S3SecretKey          *string         `json:"s3_secret_key"`
	S3PublicBaseURL      *string         `json:"s3_public_base_url"`
	MediaBucket          *string         `json:"media_bucket"`
	BagBucket            *string         `json:"bag_bucket"`
	VaultQuotaBytes      *int64          `json:"vault_quota_bytes"`
	VaultUnlimitedOwners []string        `json:"vault_unlimited_owners"`
	RemoteTimeout        *timex.Duration `json:"remote_timeout"`
	OnlineCheckInterval  *timex.Duration `json:"online_check_interval"`
	HealthAddr           *string         `json:"health_addr"`
	FeedPageSize         *int            `json:"feed_page_size"`
	LogFormat            *string         `json:"log_format"`
	LogLevel             *string         `json:"log_level"`
}

// parseJSON overlays cfg with the file named by -c/-config in args, falling
// back to SOCIALSYNC_CONFIG. No path means no file.
func parseJSON(cfg *Config, args []string) error {
	path := flagx.ConfigPath(args, EnvPrefix+"CONFIG")
	if path == "" {
		return nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	var jc JsonConfig
	if err := json.Unmarshal(data, &jc); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	jc.apply(cfg)
	return nil
}

func (jc *JsonConfig) apply(cfg *Config) {
	setString(&cfg.RemoteDSN, jc.RemoteDSN)
	setString(&cfg.LocalDBPath, jc.LocalDBPath)
	setString(&cfg.JWTSecret, jc.JWTSecret)
	setString(&cfg.AccessToken, jc.AccessToken)
	setString(&cfg.S3Endpoint, jc.S3Endpoint)
	setString(&cfg.S3Region, jc.S3Region)
	setString(&cfg.S3AccessKey, jc.S3AccessKey)
	setString(&cfg.S3SecretKey, jc.S3SecretKey)
	setString(&cfg.S3PublicBaseURL, jc.S3PublicBaseURL)
	setString(&cfg.MediaBucket, jc.MediaBucket)
	setString(&cfg.BagBucket, jc.BagBucket)
	setString(&cfg.HealthAddr, jc.HealthAddr)
	setString(&cfg.LogFormat, jc.LogFormat)
	setString(&cfg.LogLevel, jc.LogLevel)
	if jc.VaultQuotaBytes != nil {
		cfg.VaultQuotaBytes = *jc.VaultQuotaBytes
	}
	if jc.VaultUnlimitedOwners != nil {
		cfg.VaultUnlimitedOwners = jc.VaultUnlimitedOwners
	}
	if jc.RemoteTimeout != nil {
		cfg.RemoteTimeout = jc.RemoteTimeout.Duration
	}
	if jc.OnlineCheckInterval != nil {
		cfg.OnlineCheckInterval = jc.OnlineCheckInterval.Duration
	}
	if jc.FeedPageSize != nil {
		cfg.FeedPageSize = *jc.FeedPageSize
	}
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}
