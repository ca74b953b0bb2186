package gcp

import (
	"strings"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"

	"github.com/yungbote/lessonforge-backend/internal/pkg/envutil"
	"github.com/yungbote/lessonforge-backend/internal/pkg/logger"
)

// credentialsFromEnv returns GOOGLE_APPLICATION_CREDENTIALS_JSON, falling back
// to GOOGLE_APPLICATION_CREDENTIALS. Either may hold inline JSON or a path.
func credentialsFromEnv(log *logger.Logger) string {
	if creds := envutil.String("GOOGLE_APPLICATION_CREDENTIALS_JSON", "", nil); creds != "" {
		return creds
	}
	return envutil.String("GOOGLE_APPLICATION_CREDENTIALS", "", log)
}

// clientOptions builds the storage client options for c. The emulator needs
// no credentials; real GCS uses explicit credentials when configured and
// application default credentials otherwise.
func (c AssetStoreConfig) clientOptions() []option.ClientOption {
	if c.Mode == StorageModeGCSEmulator {
		return []option.ClientOption{
			option.WithoutAuthentication(),
			option.WithEndpoint(c.EmulatorHost + "/storage/v1/"),
		}
	}
	opts := []option.ClientOption{option.WithScopes(storage.ScopeReadWrite)}
	switch creds := strings.TrimSpace(c.Credentials); {
	case creds == "":
	case strings.HasPrefix(creds, "{"):
		opts = append(opts, option.WithCredentialsJSON([]byte(creds)))
	default:
		opts = append(opts, option.WithCredentialsFile(creds))
	}
	return opts
}
