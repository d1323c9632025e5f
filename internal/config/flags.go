package config

import (
	"flag"
	"fmt"
	"io"
	"time"

	"github.com/dmitrijs2005/socialsync/internal/flagx"
)

// flagNames lists the short flags parseFlags owns.
var flagNames = []string{"-r", "-l", "-s", "-k", "-e", "-g", "-u", "-p", "-m", "-b", "-q", "-o", "-t", "-i", "-a", "-n", "-f"}

// parseFlags overlays cfg with command-line flags.
//
// Supported flags (short forms):
//
//	-r string   remote PostgreSQL DSN
//	-l string   local mirror SQLite path
//	-s string   JWT HS256 secret
//	-k string   access token of the signed-in user
//	-e string   S3 endpoint
//	-g string   S3 region
//	-u string   S3 access key
//	-p string   S3 secret key
//	-m string   media bucket
//	-b string   bag bucket
//	-q int      vault quota, bytes
//	-o string   comma separated owners exempt from the quota
//	-t int      remote timeout, seconds
//	-i int      online check interval, seconds
//	-a string   health endpoint address
//	-n int      feed page size
//	-f string   log format (json|text)
//
// args is filtered with flagx.FilterArgs first so flags owned by other
// components do not fail the parse.
func parseFlags(cfg *Config, args []string) error {
	args = flagx.FilterArgs(args, flagNames)

	fs := flag.NewFlagSet("socialsync", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	fs.StringVar(&cfg.RemoteDSN, "r", cfg.RemoteDSN, "remote database DSN")
	fs.StringVar(&cfg.LocalDBPath, "l", cfg.LocalDBPath, "local mirror path")
	fs.StringVar(&cfg.JWTSecret, "s", cfg.JWTSecret, "jwt secret")
	fs.StringVar(&cfg.AccessToken, "k", cfg.AccessToken, "access token")
	fs.StringVar(&cfg.S3Endpoint, "e", cfg.S3Endpoint, "S3 endpoint")
	fs.StringVar(&cfg.S3Region, "g", cfg.S3Region, "S3 region")
	fs.StringVar(&cfg.S3AccessKey, "u", cfg.S3AccessKey, "S3 access key")
	fs.StringVar(&cfg.S3SecretKey, "p", cfg.S3SecretKey, "S3 secret key")
	fs.StringVar(&cfg.MediaBucket, "m", cfg.MediaBucket, "media bucket")
	fs.StringVar(&cfg.BagBucket, "b", cfg.BagBucket, "bag bucket")
	fs.Int64Var(&cfg.VaultQuotaBytes, "q", cfg.VaultQuotaBytes, "vault quota (in bytes)")
	unlimited := fs.String("o", "", "owners exempt from the vault quota")
	timeout := fs.Int("t", int(cfg.RemoteTimeout.Seconds()), "remote timeout (in seconds)")
	interval := fs.Int("i", int(cfg.OnlineCheckInterval.Seconds()), "online check interval (in seconds)")
	fs.StringVar(&cfg.HealthAddr, "a", cfg.HealthAddr, "health endpoint address")
	fs.IntVar(&cfg.FeedPageSize, "n", cfg.FeedPageSize, "feed page size")
	fs.StringVar(&cfg.LogFormat, "f", cfg.LogFormat, "log format")
	fs.StringVar(&cfg.LogLevel, "v", cfg.LogLevel, "log level")

	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("parse flags: %w", err)
	}

	set := map[string]bool{}
	fs.Visit(func(f *flag.Flag) { set[f.Name] = true })
	if set["o"] {
		cfg.VaultUnlimitedOwners = splitList(*unlimited)
	}
	if set["t"] {
		cfg.RemoteTimeout = time.Duration(*timeout) * time.Second
	}
	if set["i"] {
		cfg.OnlineCheckInterval = time.Duration(*interval) * time.Second
	}
	return nil
}
