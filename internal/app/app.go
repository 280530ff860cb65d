package app

import (
	"context"
	"net/http"
	"strings"

	"codepad/internal/common/cache"
	"codepad/internal/common/mq"
	"codepad/internal/common/storage"
	"codepad/internal/playground/draft"
	"codepad/internal/playground/notify"
	"codepad/internal/playground/observer"
	"codepad/internal/playground/reporter"
	"codepad/internal/playground/runtime"
	"codepad/internal/playground/scoring"
	"codepad/internal/playground/validator"
	"codepad/internal/playground/view"
	appErr "codepad/pkg/errors"
	"codepad/pkg/utils/logger"

	"go.uber.org/zap"
)

// Options are the process-level inputs to Build.
type Options struct {
	Metrics    observer.Recorder
	Probe      runtime.ProbeEnv
	HTTPClient *http.Client
}

// Components are the long-lived collaborators built from a Config.
type Components struct {
	cfg Config

	Host    runtime.HostKind
	Loader  *runtime.Loader
	Scorer  scoring.Scorer
	Metrics observer.Recorder
	// Cache is nil when no redis address is configured.
	Cache cache.Cache

	closers []func() error
	checks  map[string]func(context.Context) error
}

// Checks returns a liveness probe per connected backend.
func (c *Components) Checks() map[string]func(context.Context) error {
	return c.checks
}

// Build resolves the host kind and bootstrap source and connects the
// configured backends. cfg must have had ApplyDefaults called.
func Build(ctx context.Context, cfg Config, opts Options) (*Components, error) {
	c := &Components{cfg: cfg, Metrics: opts.Metrics, checks: make(map[string]func(context.Context) error)}
	if c.Metrics == nil {
		c.Metrics = observer.Nop{}
	}

	host, err := resolveHost(cfg.Runtime.Host, opts.Probe)
	if err != nil {
		return nil, err
	}
	c.Host = host

	srcCfg := cfg.Runtime.SourceConfig
	if host == runtime.HostPackaged && srcCfg.BundlePath == "" {
		srcCfg.BundlePath = runtime.PackagedBundleDir(opts.Probe)
	}
	var objects storage.ObjectStorage
	if strings.HasPrefix(srcCfg.RemoteURL, "s3://") {
		minioStorage, err := storage.NewMinIOStorage(cfg.MinIO)
		if err != nil {
			return nil, appErr.Wrapf(err, appErr.StorageError, "init object storage failed")
		}
		objects = minioStorage
	}
	source, err := runtime.SelectSource(srcCfg, host, objects, opts.HTTPClient)
	if err != nil {
		return nil, err
	}
	c.Loader = runtime.NewLoader(source, runtime.LoaderConfig{
		LoadTimeout: cfg.Runtime.LoadTimeout,
		State:       cfg.Runtime.State,
		Metrics:     c.Metrics,
	})
	logger.Info(ctx, "runtime source selected",
		zap.String("host", string(host)),
		zap.String("source", source.Describe()),
	)

	if cfg.Redis.Addr != "" {
		redisCache, err := cache.NewRedisCache(ctx, cfg.Redis)
		if err != nil {
			c.Close()
			return nil, appErr.Wrapf(err, appErr.CacheError, "init redis failed")
		}
		c.Cache = redisCache
		c.closers = append(c.closers, redisCache.Close)
		c.checks["redis"] = redisCache.Ping
	}

	switch cfg.Scoring.Backend {
	case ScoringHTTP:
		c.Scorer = scoring.NewHTTPScorer(cfg.Scoring.URL, cfg.Scoring.Timeout)
	case ScoringKafka:
		producer, err := mq.NewKafkaProducer(cfg.Kafka)
		if err != nil {
			c.Close()
			return nil, appErr.Wrapf(err, appErr.MessageQueueError, "init kafka failed")
		}
		c.closers = append(c.closers, producer.Close)
		c.checks["kafka"] = producer.Ping
		c.Scorer = scoring.NewMQScorer(producer, cfg.Scoring.Topic)
	default:
		c.Scorer = scoring.NopScorer{}
	}
	return c, nil
}

func resolveHost(value string, probe runtime.ProbeEnv) (runtime.HostKind, error) {
	if strings.EqualFold(strings.TrimSpace(value), "auto") || value == "" {
		return runtime.DetectHost(probe), nil
	}
	kind, ok := runtime.ParseHost(value)
	if !ok {
		return "", appErr.Newf(appErr.InvalidValue, "unknown runtime host %q", value)
	}
	return kind, nil
}

// Drafts returns the draft store for one editor. A non-empty suffix gives
// each server session its own key.
func (c *Components) Drafts(suffix string) draft.Store {
	key := c.cfg.Draft.Key
	if key == "" {
		key = draft.DefaultKey
	}
	if suffix != "" {
		key = key + ":" + suffix
	}
	switch c.cfg.Draft.Backend {
	case DraftFile:
		return draft.NewFileStore(c.cfg.Draft.Path, key)
	case DraftRedis:
		if c.Cache != nil {
			return draft.NewRedisStore(c.Cache, key)
		}
	}
	return &draft.Memory{}
}

// Reporter builds a reporter that scores through the configured backend.
func (c *Components) Reporter(notifier notify.Notifier, celebrator reporter.Celebrator) *reporter.Reporter {
	return reporter.New(reporter.Config{
		Scorer:       c.Scorer,
		Notifier:     notifier,
		Celebrator:   celebrator,
		Metrics:      c.Metrics,
		ScoreTimeout: c.cfg.Scoring.Timeout,
	})
}

// ViewConfig returns the view settings shared by every editor.
func (c *Components) ViewConfig(id string, drafts draft.Store, rep *reporter.Reporter, listener view.Listener) view.Config {
	return view.Config{
		ID:             id,
		Loader:         c.Loader,
		Reporter:       rep,
		Drafts:         drafts,
		Validator:      validator.Validator{MaxBytes: c.cfg.Runtime.MaxSourceBytes},
		ExecTimeout:    c.cfg.Runtime.ExecTimeout,
		MaxOutputBytes: c.cfg.Runtime.MaxOutputBytes,
		Listener:       listener,
	}
}

// Close releases the backend connections.
func (c *Components) Close() {
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](); err != nil {
			logger.Warn(context.Background(), "close component failed", zap.Error(err))
		}
	}
	c.closers = nil
}
