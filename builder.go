package authflow

import (
	"errors"
	"log/slog"

	"github.com/MrEthical07/authflow/internal/limiters"
	"github.com/MrEthical07/authflow/session"
	"github.com/MrEthical07/authflow/storage"
	"github.com/redis/go-redis/v9"
)

// Builder assembles a [Client]. A Builder can be used for exactly one Build.
type Builder struct {
	config Config
	redis  redis.UniversalClient
	kv     storage.KV

	service    IdentityService
	navigator  Navigator
	challenges ChallengeFactory

	auditSink AuditSink
	logger    *slog.Logger
	onError   ErrorHandler

	built bool
}

// New returns a Builder seeded with [DefaultConfig].
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

// WithConfig replaces the configuration.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithIdentityService sets the external identity authority. Required.
func (b *Builder) WithIdentityService(svc IdentityService) *Builder {
	b.service = svc
	return b
}

// WithStorage sets the key-value store for the persisted session. It takes
// precedence over WithRedis for session storage.
func (b *Builder) WithStorage(kv storage.KV) *Builder {
	b.kv = kv
	return b
}

// WithRedis sets the Redis client used for session storage (when no
// explicit storage is given) and for the reset target throttle.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithNavigator sets the screen navigator. Required.
func (b *Builder) WithNavigator(nav Navigator) *Builder {
	b.navigator = nav
	return b
}

// WithChallengeFactory sets the human-verification factory used by phone
// reset submissions.
func (b *Builder) WithChallengeFactory(f ChallengeFactory) *Builder {
	b.challenges = f
	return b
}

// WithAuditSink sets the audit sink. Audit must also be enabled in config.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithLogger sets the structured logger. Logs are discarded by default.
func (b *Builder) WithLogger(logger *slog.Logger) *Builder {
	b.logger = logger
	return b
}

// WithErrorHandler sets the callback for errors raised while handling
// identity-service notifications.
func (b *Builder) WithErrorHandler(fn ErrorHandler) *Builder {
	b.onError = fn
	return b
}

// WithMetricsEnabled toggles in-process metrics.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// WithLatencyHistograms toggles the sync latency histogram.
func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates configuration and wires a Client.
//
// Session storage is chosen in order: WithStorage, WithRedis, a file store
// when Storage FilePath is set, otherwise process memory.
func (b *Builder) Build() (*Client, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if b.service == nil {
		return nil, errors.New("identity service required")
	}
	if b.navigator == nil {
		return nil, errors.New("navigator required")
	}
	if cfg.Reset.EnableTargetThrottle && b.redis == nil {
		return nil, errors.New("Reset EnableTargetThrottle requires redis client")
	}

	// -------- SESSION STORAGE --------
	kv := b.kv
	switch {
	case kv != nil:
	case b.redis != nil:
		kv = storage.NewRedisStore(b.redis, cfg.Storage.RedisPrefix)
	case cfg.Storage.FilePath != "":
		fs, err := storage.OpenFileStore(cfg.Storage.FilePath)
		if err != nil {
			return nil, err
		}
		kv = fs
	default:
		kv = storage.NewMemoryStore()
	}

	logger := b.logger
	if logger == nil {
		logger = discardLogger()
	}

	client := &Client{
		config:     cloneConfig(cfg),
		service:    b.service,
		navigator:  b.navigator,
		challenges: b.challenges,
		store:      session.NewStore(kv, cfg.Session.UserTokenKey, cfg.Session.UserInfoKey),
		logger:     logger,
		onError:    b.onError,
		metrics:    NewMetrics(cfg.Metrics),
		audit:      newAuditDispatcher(cfg.Audit, b.auditSink),
	}

	if cfg.Reset.EnableTargetThrottle {
		client.limiter = limiters.NewResetDispatchLimiter(b.redis, limiters.ResetDispatchConfig{
			Prefix:      cfg.Storage.RedisPrefix,
			MaxRequests: cfg.Reset.MaxRequests,
			Window:      cfg.Reset.Cooldown,
		})
	}

	client.flows = client.buildFlows()
	client.sync = newSessionSync(client)

	b.built = true

	return client, nil
}
