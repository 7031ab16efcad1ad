// Package config resolves filestore settings from a .env file, the
// environment, an optional YAML config file and command-line flags.
package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/flashbackbot/filestore"
	"github.com/flashbackbot/filestore/internal/auth"
	"github.com/flashbackbot/filestore/internal/remote"
)

// Keys in the viper registry.
const (
	KeyBackend          = "backend"
	KeyBasePath         = "base_path"
	KeyUseCache         = "use_cache"
	KeyBucket           = "bucket"
	KeyRegion           = "region"
	KeyEndpoint         = "endpoint"
	KeyLimitS3          = "limit_s3"
	KeyS3RequestLimit   = "s3_request_limit"
	KeyDropboxAppKey    = "dropbox.app_key"
	KeyDropboxAppSecret = "dropbox.app_secret"
	KeyDropboxRefresh   = "dropbox.refresh_token"
	KeyDropboxTokenFile = "dropbox.token_file"
	KeyUploadLimit      = "upload_limit"
	KeyChunkSize        = "chunk_size"
	KeyFlushConcurrency = "flush_concurrency"
	KeyLogLevel         = "log_level"
)

// envNames lists the environment variables read for each key, the
// historical name first.
var envNames = map[string][]string{
	KeyBackend:          {"FILE_STORAGE", "FILESTORE_BACKEND"},
	KeyBasePath:         {"BASE_PATH", "FILESTORE_BASE_PATH"},
	KeyUseCache:         {"USE_CACHE", "FILESTORE_USE_CACHE"},
	KeyBucket:           {"BUCKET_NAME", "FILESTORE_BUCKET"},
	KeyRegion:           {"BUCKET_REGION", "FILESTORE_REGION"},
	KeyEndpoint:         {"FILESTORE_ENDPOINT"},
	KeyLimitS3:          {"SHOULD_LIMIT_S3", "FILESTORE_LIMIT_S3"},
	KeyS3RequestLimit:   {"NUM_LIMIT_S3_REQUESTS", "FILESTORE_S3_REQUEST_LIMIT"},
	KeyDropboxAppKey:    {"DROPBOX_APP_KEY"},
	KeyDropboxAppSecret: {"DROPBOX_APP_SECRET"},
	KeyDropboxRefresh:   {"DROPBOX_REFRESH_TOKEN"},
	KeyDropboxTokenFile: {"FILESTORE_DROPBOX_TOKEN_FILE"},
	KeyUploadLimit:      {"FILESTORE_UPLOAD_LIMIT"},
	KeyChunkSize:        {"FILESTORE_CHUNK_SIZE"},
	KeyFlushConcurrency: {"FILESTORE_FLUSH_CONCURRENCY"},
	KeyLogLevel:         {"FILESTORE_LOG_LEVEL"},
}

// New returns a viper instance with defaults and environment bindings.
func New() *viper.Viper {
	v := viper.New()
	v.SetDefault(KeyBackend, filestore.BackendLocal)
	v.SetDefault(KeyUseCache, true)
	v.SetDefault(KeyLimitS3, true)
	v.SetDefault(KeyS3RequestLimit, filestore.DefaultS3RequestLimit)
	v.SetDefault(KeyDropboxTokenFile, auth.DefaultTokenFile)
	v.SetDefault(KeyUploadLimit, remote.DefaultUploadLimit)
	v.SetDefault(KeyChunkSize, remote.DefaultChunkSize)
	v.SetDefault(KeyFlushConcurrency, remote.DefaultFlushConcurrency)
	v.SetDefault(KeyLogLevel, "info")

	for key, names := range envNames {
		_ = v.BindEnv(append([]string{key}, names...)...)
	}
	return v
}

// LoadDotEnv loads variables from the given files, or .env when none are
// named. Missing files are ignored; variables already set win.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
	}
	return nil
}

// ReadFile reads file, or config.yaml from the default directory when file
// is empty. A missing default file is not an error.
func ReadFile(v *viper.Viper, file string) error {
	if file != "" {
		v.SetConfigFile(file)
		return v.ReadInConfig()
	}
	v.AddConfigPath(Dir())
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	err := v.ReadInConfig()
	var notFound viper.ConfigFileNotFoundError
	if errors.As(err, &notFound) {
		return nil
	}
	return err
}

// Dir is the default config directory.
func Dir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "filestore")
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".config", "filestore")
	}
	return ".filestore"
}

// Storage builds the backend configuration from v.
func Storage(v *viper.Viper) filestore.Config {
	return filestore.Config{
		Backend:        v.GetString(KeyBackend),
		BasePath:       v.GetString(KeyBasePath),
		UseCache:       v.GetBool(KeyUseCache),
		Bucket:         v.GetString(KeyBucket),
		Region:         v.GetString(KeyRegion),
		Endpoint:       v.GetString(KeyEndpoint),
		LimitS3:        v.GetBool(KeyLimitS3),
		S3RequestLimit: v.GetInt(KeyS3RequestLimit),
		Dropbox: filestore.DropboxConfig{
			AppKey:       v.GetString(KeyDropboxAppKey),
			AppSecret:    v.GetString(KeyDropboxAppSecret),
			RefreshToken: v.GetString(KeyDropboxRefresh),
			TokenFile:    v.GetString(KeyDropboxTokenFile),
		},
		UploadLimit:      v.GetInt64(KeyUploadLimit),
		ChunkSize:        v.GetInt64(KeyChunkSize),
		FlushConcurrency: v.GetInt(KeyFlushConcurrency),
	}
}
