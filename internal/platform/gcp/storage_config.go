package gcp

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/yungbote/lessonforge-backend/internal/pkg/envutil"
	"github.com/yungbote/lessonforge-backend/internal/pkg/logger"
)

type StorageMode string

const (
	StorageModeGCS         StorageMode = "gcs"
	StorageModeGCSEmulator StorageMode = "gcs_emulator"
)

// AssetStoreConfig locates the bucket lesson images are uploaded to.
type AssetStoreConfig struct {
	Bucket        string
	CDNDomain     string
	Mode          StorageMode
	EmulatorHost  string
	PublicBaseURL string
	// Credentials is inline service account JSON or a path to one.
	Credentials string
}

func (c AssetStoreConfig) Enabled() bool { return strings.TrimSpace(c.Bucket) != "" }

// AssetStoreConfigFromEnv reads ASSET_GCS_BUCKET_NAME and friends. The mode
// defaults to the emulator whenever STORAGE_EMULATOR_HOST is set.
func AssetStoreConfigFromEnv(log *logger.Logger) (AssetStoreConfig, error) {
	cfg := AssetStoreConfig{
		Bucket:        envutil.String("ASSET_GCS_BUCKET_NAME", "", log),
		CDNDomain:     envutil.String("ASSET_CDN_DOMAIN", "", log),
		EmulatorHost:  strings.TrimRight(envutil.String("STORAGE_EMULATOR_HOST", "", log), "/"),
		PublicBaseURL: strings.TrimRight(envutil.String("OBJECT_STORAGE_PUBLIC_BASE_URL", "", log), "/"),
		Credentials:   credentialsFromEnv(log),
	}
	switch mode := StorageMode(strings.ToLower(envutil.String("OBJECT_STORAGE_MODE", "", log))); mode {
	case "":
		cfg.Mode = StorageModeGCS
		if cfg.EmulatorHost != "" {
			cfg.Mode = StorageModeGCSEmulator
		}
	case StorageModeGCS, StorageModeGCSEmulator:
		cfg.Mode = mode
	default:
		return cfg, fmt.Errorf("invalid OBJECT_STORAGE_MODE=%q (allowed: %q, %q)", mode, StorageModeGCS, StorageModeGCSEmulator)
	}
	return cfg, cfg.Validate()
}

func (c AssetStoreConfig) Validate() error {
	if c.PublicBaseURL != "" && !isAbsoluteURL(c.PublicBaseURL) {
		return fmt.Errorf("invalid OBJECT_STORAGE_PUBLIC_BASE_URL=%q; expected absolute URL like http://localhost:4443", c.PublicBaseURL)
	}
	if c.Mode != StorageModeGCSEmulator {
		return nil
	}
	if c.EmulatorHost == "" {
		return fmt.Errorf("OBJECT_STORAGE_MODE=%q requires STORAGE_EMULATOR_HOST to be set", StorageModeGCSEmulator)
	}
	if !isAbsoluteURL(c.EmulatorHost) {
		return fmt.Errorf("invalid STORAGE_EMULATOR_HOST=%q; expected absolute URL like http://fake-gcs:4443", c.EmulatorHost)
	}
	return nil
}

func isAbsoluteURL(raw string) bool {
	u, err := url.Parse(raw)
	return err == nil && u.Scheme != "" && u.Host != ""
}

// PublicURL maps an object key to the URL browsers load it from.
func (c AssetStoreConfig) PublicURL(key string) string {
	key = strings.TrimLeft(strings.TrimSpace(key), "/")
	if c.CDNDomain != "" {
		return fmt.Sprintf("https://%s/%s", c.CDNDomain, key)
	}
	if c.Mode == StorageModeGCSEmulator {
		base := c.PublicBaseURL
		if base == "" {
			base = c.EmulatorHost
		}
		return fmt.Sprintf("%s/storage/v1/b/%s/o/%s?alt=media", base, url.PathEscape(c.Bucket), url.PathEscape(key))
	}
	if c.PublicBaseURL != "" {
		return fmt.Sprintf("%s/%s/%s", c.PublicBaseURL, c.Bucket, key)
	}
	return fmt.Sprintf("https://storage.googleapis.com/%s/%s", c.Bucket, key)
}
