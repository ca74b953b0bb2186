package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/yungbote/lessonforge-backend/internal/modules/lessongen/visuals"
	"github.com/yungbote/lessonforge-backend/internal/pkg/logger"
	"github.com/yungbote/lessonforge-backend/internal/platform/gcp"
)

var newAssetStore = func(ctx context.Context, log *logger.Logger, cfg gcp.AssetStoreConfig) (assetStore, error) {
	return gcp.NewAssetStore(ctx, log, cfg)
}

type assetStore interface {
	visuals.AssetStore
	Close() error
}

type StorageProviderBootstrapErrorCode string

const (
	StorageProviderBootstrapErrorInvalidConfig StorageProviderBootstrapErrorCode = "invalid_config"
	StorageProviderBootstrapErrorConnectFailed StorageProviderBootstrapErrorCode = "connect_failed"
)

type StorageProviderBootstrapError struct {
	Code   StorageProviderBootstrapErrorCode
	Mode   string
	Bucket string
	Cause  error
}

func (e *StorageProviderBootstrapError) Error() string {
	if e == nil {
		return "asset storage bootstrap failed"
	}
	return fmt.Sprintf("asset storage bootstrap failed (code=%s mode=%q bucket=%q): %v", e.Code, e.Mode, e.Bucket, e.Cause)
}

func (e *StorageProviderBootstrapError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// resolveAssetStore returns nil, nil when no bucket is configured; images
// are then embedded as data URLs.
func resolveAssetStore(ctx context.Context, log *logger.Logger, cfg gcp.AssetStoreConfig) (assetStore, error) {
	if !cfg.Enabled() {
		log.Info("Asset storage disabled; generated images stay inline")
		return nil, nil
	}
	log.Info("Selecting asset storage provider", "mode", cfg.Mode, "bucket", cfg.Bucket, "emulator_host", cfg.EmulatorHost)

	store, err := newAssetStore(ctx, log, cfg)
	if err != nil {
		classified := classifyStorageProviderBootstrapError(cfg, err)
		log.Error("Asset storage bootstrap failed",
			"mode", cfg.Mode,
			"bucket", cfg.Bucket,
			"error_code", storageProviderBootstrapErrorCode(classified),
			"error", classified,
		)
		return nil, classified
	}
	return store, nil
}

func classifyStorageProviderBootstrapError(cfg gcp.AssetStoreConfig, err error) error {
	var existing *StorageProviderBootstrapError
	if errors.As(err, &existing) {
		return err
	}
	code := StorageProviderBootstrapErrorConnectFailed
	if cfg.Validate() != nil {
		code = StorageProviderBootstrapErrorInvalidConfig
	}
	return &StorageProviderBootstrapError{Code: code, Mode: string(cfg.Mode), Bucket: cfg.Bucket, Cause: err}
}

func storageProviderBootstrapErrorCode(err error) StorageProviderBootstrapErrorCode {
	var bootstrapErr *StorageProviderBootstrapError
	if errors.As(err, &bootstrapErr) && bootstrapErr.Code != "" {
		return bootstrapErr.Code
	}
	return StorageProviderBootstrapErrorConnectFailed
}
