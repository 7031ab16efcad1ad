package filestore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/flashbackbot/filestore/internal/auth"
	"github.com/flashbackbot/filestore/internal/backup"
	"github.com/flashbackbot/filestore/internal/dropbox"
	"github.com/flashbackbot/filestore/internal/metrics"
	"github.com/flashbackbot/filestore/internal/remote"
	"github.com/flashbackbot/filestore/internal/s3store"
	"github.com/flashbackbot/filestore/internal/storage"
)

// Backend names accepted in Config.Backend, case-insensitively.
const (
	BackendLocal   = "local"
	BackendDropbox = "dropbox"
	BackendAWS     = "aws"
)

// DefaultS3RequestLimit is the free-tier PUT request budget.
const DefaultS3RequestLimit = 2000

// Config selects and configures a backend.
type Config struct {
	Backend  string
	BasePath string // root directory of the local backend
	UseCache bool

	Bucket   string
	Region   string
	Endpoint string // S3-compatible endpoint; empty uses AWS

	// LimitS3 checks the bucket's PUT request count before using S3 and
	// falls back to Dropbox at or above S3RequestLimit, or when the count
	// is unknown.
	LimitS3        bool
	S3RequestLimit int

	Dropbox DropboxConfig

	UploadLimit      int64
	ChunkSize        int64
	FlushConcurrency int
}

// DropboxConfig holds the long-lived Dropbox credentials.
type DropboxConfig struct {
	AppKey       string
	AppSecret    string
	RefreshToken string
	TokenFile    string // default db_token.json
}

// Open builds the backend named by cfg.Backend and initialises it. An
// unknown backend name falls back to local storage with a warning.
func Open(ctx context.Context, cfg Config, opts ...OpenOption) (Storage, error) {
	o := resolveOptions(opts)
	logger := o.Logger
	if logger == nil {
		logger = storage.DiscardLogger()
	}

	var (
		st  storage.Storage
		err error
	)
	switch backend := strings.ToLower(strings.TrimSpace(cfg.Backend)); backend {
	case BackendLocal, "":
		st, err = storage.NewLocal(cfg.BasePath)
	case BackendDropbox:
		st, err = openDropbox(cfg, o, logger)
	case BackendAWS, "s3":
		st, err = openAWS(ctx, cfg, o, logger)
	default:
		logger.Warn("unknown storage type, falling back to local storage", "backend", cfg.Backend)
		st, err = storage.NewLocal(cfg.BasePath)
	}
	if err != nil {
		return nil, err
	}

	env := storage.Env{Logger: logger, Observer: o.Observer, QuietSuffixes: o.QuietSuffixes}
	if env.Observer == nil && o.Registry != nil {
		m, err := metrics.NewStorageMetrics(o.Registry, backendName(st))
		if err != nil {
			return nil, err
		}
		env.Observer = m
	}
	if err := st.Init(env); err != nil {
		return nil, err
	}
	return st, nil
}

// Run opens a backend, calls fn and always runs Cleanup afterwards, also
// when fn panics. The errors of fn and Cleanup are joined.
func Run(ctx context.Context, cfg Config, fn func(Storage) error, opts ...OpenOption) (err error) {
	st, err := Open(ctx, cfg, opts...)
	if err != nil {
		return err
	}
	logger := resolveOptions(opts).Logger
	if logger == nil {
		logger = storage.DiscardLogger()
	}
	cleanupCtx := context.WithoutCancel(ctx)
	defer func() {
		if r := recover(); r != nil {
			if cerr := st.Cleanup(cleanupCtx); cerr != nil {
				logger.Error("cleanup after panic failed, buffered writes may be lost", "err", cerr)
			}
			panic(r)
		}
		err = errors.Join(err, st.Cleanup(cleanupCtx))
	}()
	return fn(st)
}

type (
	BackupOptions = backup.Options
	BackupStats   = backup.Stats
)

// Backup mirrors the remote backend named by cfg into a local directory.
// The local backend has nothing to mirror and returns ErrUnsupported.
func Backup(ctx context.Context, cfg Config, bo BackupOptions, opts ...OpenOption) (BackupStats, error) {
	o := resolveOptions(opts)
	logger := o.Logger
	if logger == nil {
		logger = storage.DiscardLogger()
	}
	if bo.Logger == nil {
		bo.Logger = logger
	}

	var src backup.Source
	switch strings.ToLower(strings.TrimSpace(cfg.Backend)) {
	case BackendDropbox:
		tokens, err := dropboxTokens(cfg, o, logger)
		if err != nil {
			return BackupStats{}, err
		}
		src = dropbox.New(tokens, o.dropboxFactory)
	case BackendAWS, "s3":
		api, err := s3API(ctx, cfg, o)
		if err != nil {
			return BackupStats{}, err
		}
		src = s3store.New(api, cfg.Bucket)
	default:
		return BackupStats{}, fmt.Errorf("%w: backup needs a remote backend, got %q", ErrUnsupported, cfg.Backend)
	}
	return backup.Mirror(ctx, src, bo)
}

func openDropbox(cfg Config, o *OpenOptions, logger *slog.Logger) (*remote.Adapter, error) {
	tokens, err := dropboxTokens(cfg, o, logger)
	if err != nil {
		return nil, err
	}
	client := dropbox.New(tokens, o.dropboxFactory)
	return remote.New(client, adapterOptions(cfg, remote.WithTokenSource(tokens))...), nil
}

func dropboxTokens(cfg Config, o *OpenOptions, logger *slog.Logger) (remote.TokenSource, error) {
	if o.tokens != nil {
		return o.tokens, nil
	}
	creds := auth.Credentials{
		AppKey:       cfg.Dropbox.AppKey,
		AppSecret:    cfg.Dropbox.AppSecret,
		RefreshToken: cfg.Dropbox.RefreshToken,
	}
	ropts := []auth.Option{auth.WithLogger(logger)}
	if o.HTTPClient != nil {
		ropts = append(ropts, auth.WithHTTPClient(o.HTTPClient))
	}
	return auth.NewRefresher(creds, auth.FileTokenStore{Path: cfg.Dropbox.TokenFile}, ropts...)
}

func openAWS(ctx context.Context, cfg Config, o *OpenOptions, logger *slog.Logger) (storage.Storage, error) {
	if cfg.LimitS3 {
		limit := cfg.S3RequestLimit
		if limit <= 0 {
			limit = DefaultS3RequestLimit
		}
		cw, err := metricsAPI(ctx, cfg, o)
		used := -1.0
		if err == nil {
			used, err = s3store.RequestsUsed(ctx, cw, cfg.Bucket, s3store.PutRequests)
		}
		logger.Info("s3 requests used", "bucket", cfg.Bucket, "count", used, "limit", limit)
		if err != nil || used < 0 || used >= float64(limit) {
			logger.Warn("s3 request count unavailable or above limit, falling back to dropbox", "err", err)
			return openDropbox(cfg, o, logger)
		}
	}
	api, err := s3API(ctx, cfg, o)
	if err != nil {
		return nil, err
	}
	return remote.New(s3store.New(api, cfg.Bucket), adapterOptions(cfg)...), nil
}

func adapterOptions(cfg Config, extra ...remote.Option) []remote.Option {
	opts := []remote.Option{
		remote.WithCache(cfg.UseCache),
		remote.WithUploadLimit(cfg.UploadLimit),
		remote.WithChunkSize(cfg.ChunkSize),
		remote.WithFlushConcurrency(cfg.FlushConcurrency),
	}
	return append(opts, extra...)
}

func loadAWSConfig(ctx context.Context, cfg Config) (aws.Config, error) {
	var lopts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		lopts = append(lopts, awsconfig.WithRegion(cfg.Region))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, lopts...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("%w: load aws config: %v", ErrCredential, err)
	}
	return awsCfg, nil
}

func s3API(ctx context.Context, cfg Config, o *OpenOptions) (s3store.API, error) {
	if o.s3API != nil {
		return o.s3API, nil
	}
	if cfg.Bucket == "" {
		return nil, errors.New("filestore: bucket name is required for s3")
	}
	awsCfg, err := loadAWSConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return s3.NewFromConfig(awsCfg, func(so *s3.Options) {
		if cfg.Endpoint != "" {
			so.BaseEndpoint = aws.String(cfg.Endpoint)
			so.UsePathStyle = true
		}
	}), nil
}

func metricsAPI(ctx context.Context, cfg Config, o *OpenOptions) (s3store.MetricsAPI, error) {
	if o.metricsAPI != nil {
		return o.metricsAPI, nil
	}
	awsCfg, err := loadAWSConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return cloudwatch.NewFromConfig(awsCfg), nil
}

// backendName labels metrics.
func backendName(st storage.Storage) string {
	if n, ok := st.(interface{ Name() string }); ok {
		return n.Name()
	}
	return BackendLocal
}
