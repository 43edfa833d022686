package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/hupe1980/imgcache/bitmap"
	"github.com/hupe1980/imgcache/blobstore"
	"github.com/hupe1980/imgcache/blobstore/minio"
	"github.com/hupe1980/imgcache/blobstore/s3"
	"github.com/hupe1980/imgcache/cache"
)

// Config is read from IMGCACHE_* environment variables.
type Config struct {
	Dir            string        `env:"DIR"`
	DiskBytes      int64         `env:"DISK_BYTES" envDefault:"20971520"`
	MemoryFraction int           `env:"MEMORY_FRACTION" envDefault:"4"`
	Format         bitmap.Format `env:"FORMAT" envDefault:"jpeg"`
	Quality        int           `env:"QUALITY" envDefault:"70"`

	Width   int `env:"WIDTH" envDefault:"256"`
	Height  int `env:"HEIGHT" envDefault:"256"`
	Workers int `env:"WORKERS" envDefault:"2"`

	FetchTimeout time.Duration `env:"FETCH_TIMEOUT" envDefault:"2m"`
	RateLimit    int64         `env:"RATE_LIMIT"`
	UserAgent    string        `env:"USER_AGENT"`

	LogLevel    slog.Level `env:"LOG_LEVEL" envDefault:"info"`
	MetricsAddr string     `env:"METRICS_ADDR"`

	BlobDir string      `env:"BLOB_DIR"`
	S3      S3Config    `envPrefix:"S3_"`
	MinIO   MinIOConfig `envPrefix:"MINIO_"`
}

// S3Config selects an S3 bucket for blob sources. Credentials come from the
// default AWS chain.
type S3Config struct {
	Bucket string `env:"BUCKET"`
	Prefix string `env:"PREFIX"`
}

// MinIOConfig selects a MinIO bucket for blob sources.
type MinIOConfig struct {
	Endpoint  string `env:"ENDPOINT"`
	AccessKey string `env:"ACCESS_KEY"`
	SecretKey string `env:"SECRET_KEY"`
	Secure    bool   `env:"SECURE" envDefault:"true"`
	Bucket    string `env:"BUCKET"`
	Prefix    string `env:"PREFIX"`
}

// loadConfig parses the environment. A nil environ reads the process
// environment.
func loadConfig(environ map[string]string) (Config, error) {
	opts := env.Options{Prefix: "IMGCACHE_", Environment: environ}
	cfg, err := env.ParseAsWithOptions[Config](opts)
	if err != nil {
		return Config{}, err
	}
	if cfg.Dir == "" {
		base, err := os.UserCacheDir()
		if err != nil {
			return Config{}, fmt.Errorf("IMGCACHE_DIR is unset and no user cache dir: %w", err)
		}
		cfg.Dir = filepath.Join(base, "imgcache")
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return Config{}, errors.New("IMGCACHE_WIDTH and IMGCACHE_HEIGHT must be positive")
	}
	return cfg, cfg.Params().Validate()
}

// Params derives the cache parameters.
func (c Config) Params() cache.Params {
	p := cache.DefaultParams(c.Dir).WithMemoryFraction(c.MemoryFraction)
	p.DiskBytes = c.DiskBytes
	p.Format = c.Format
	p.Quality = c.Quality
	return p
}

// BlobStore opens the configured blob store, or returns nil if none is.
func (c Config) BlobStore(ctx context.Context) (blobstore.Store, error) {
	switch {
	case c.S3.Bucket != "":
		return s3.New(ctx, c.S3.Bucket, c.S3.Prefix)
	case c.MinIO.Endpoint != "":
		return minio.Dial(minio.Config{
			Endpoint:  c.MinIO.Endpoint,
			AccessKey: c.MinIO.AccessKey,
			SecretKey: c.MinIO.SecretKey,
			Secure:    c.MinIO.Secure,
			Bucket:    c.MinIO.Bucket,
			Prefix:    c.MinIO.Prefix,
		})
	case c.BlobDir != "":
		return blobstore.NewLocalStore(c.BlobDir), nil
	default:
		return nil, nil
	}
}
