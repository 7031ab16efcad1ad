package filestore

import (
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/flashbackbot/filestore/internal/dropbox"
	"github.com/flashbackbot/filestore/internal/remote"
	"github.com/flashbackbot/filestore/internal/s3store"
)

// OpenOptions carries the runtime dependencies of Open. The backend choice
// itself lives in Config.
type OpenOptions struct {
	Logger        *slog.Logger
	Observer      Observer
	Registry      *prometheus.Registry
	QuietSuffixes []string
	HTTPClient    *http.Client

	// Test seams for the SDK clients.
	s3API          s3store.API
	metricsAPI     s3store.MetricsAPI
	dropboxFactory dropbox.Factory
	tokens         remote.TokenSource
}

// OpenOption is a functional option for configuring Open.
type OpenOption func(*OpenOptions)

func resolveOptions(opts []OpenOption) *OpenOptions {
	o := &OpenOptions{}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// WithLogger sets the logger handed to the backend.
func WithLogger(l *slog.Logger) OpenOption {
	return func(o *OpenOptions) { o.Logger = l }
}

// WithObserver receives one notification per backend round trip.
func WithObserver(obs Observer) OpenOption {
	return func(o *OpenOptions) { o.Observer = obs }
}

// WithMetrics registers Prometheus storage metrics on reg. It is ignored
// when WithObserver is also given.
func WithMetrics(reg *prometheus.Registry) OpenOption {
	return func(o *OpenOptions) { o.Registry = reg }
}

// WithQuietSuffixes replaces the path suffixes excluded from per-path
// logging. The default is ".log".
func WithQuietSuffixes(suffixes ...string) OpenOption {
	return func(o *OpenOptions) { o.QuietSuffixes = suffixes }
}

// WithHTTPClient sets the client used for token refresh requests.
func WithHTTPClient(c *http.Client) OpenOption {
	return func(o *OpenOptions) { o.HTTPClient = c }
}
