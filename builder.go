package authflow

import (
	"errors"
	"time"

	"github.com/MrEthical07/authflow/internal/limiters"
	"github.com/MrEthical07/authflow/internal/otp"
	"github.com/MrEthical07/authflow/jwt"
	"github.com/MrEthical07/authflow/mailer"
	"github.com/MrEthical07/authflow/password"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Builder assembles an Engine. A Builder can be built once.
type Builder struct {
	config Config
	store  Store
	redis  redis.UniversalClient
	sender mailer.Sender
	logger *zap.Logger

	built bool
}

// New returns a Builder holding DefaultConfig.
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

// WithConfig replaces the whole configuration.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithSigningKey sets the HS256 secret.
func (b *Builder) WithSigningKey(key []byte) *Builder {
	b.config.Token.SigningKey = cloneBytes(key)
	return b
}

// WithStore sets the persistence layer. It is required.
func (b *Builder) WithStore(store Store) *Builder {
	b.store = store
	return b
}

// WithRedis enables the failed-attempt limiter.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithMailSender sets where verification emails go. Without one, emails are
// written to the logger.
func (b *Builder) WithMailSender(sender mailer.Sender) *Builder {
	b.sender = sender
	return b
}

// WithLogger sets the logger. The default discards everything.
func (b *Builder) WithLogger(logger *zap.Logger) *Builder {
	b.logger = logger
	return b
}

// WithMetricsEnabled toggles the engine counters.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// WithLatencyHistograms toggles the ValidateToken latency histogram.
func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration and returns a ready Engine.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if b.store == nil {
		return nil, errors.New("store required")
	}

	logger := b.logger
	if logger == nil {
		logger = zap.NewNop()
	}

	engine := &Engine{
		config:    cfg,
		store:     b.store,
		metrics:   NewMetrics(cfg.Metrics),
		validator: newInputValidator(),
		logger:    logger,
		now:       time.Now,
	}

	jm, err := jwt.NewManager(jwt.Config{
		SigningKey: cloneBytes(cfg.Token.SigningKey),
		Issuer:     cfg.Token.Issuer,
		Leeway:     cfg.Token.Leeway,
	})
	if err != nil {
		return nil, err
	}
	engine.jwtManager = jm

	ph, err := password.NewArgon2(password.Config{
		Memory:      cfg.Password.Memory,
		Time:        cfg.Password.Time,
		Parallelism: cfg.Password.Parallelism,
		SaltLength:  cfg.Password.SaltLength,
		KeyLength:   cfg.Password.KeyLength,
		MinLength:   cfg.Password.MinLength,
	})
	if err != nil {
		return nil, err
	}
	engine.passwordHash = ph

	tm, err := otp.NewManager(otp.Config{
		Issuer:     cfg.MFA.Issuer,
		Period:     cfg.MFA.Period,
		Skew:       cfg.MFA.Skew,
		SecretSize: cfg.MFA.SecretSize,
		QRSize:     cfg.MFA.QRSize,
	})
	if err != nil {
		return nil, err
	}
	engine.totp = tm

	engine.limiter = limiters.NewAttemptLimiter(b.redis, limiters.Config{
		MaxAttempts: cfg.Limiter.MaxAttempts,
		Window:      cfg.Limiter.Window,
		KeyPrefix:   cfg.Limiter.KeyPrefix,
	})

	if cfg.Mail.Enabled {
		sender := b.sender
		if sender == nil {
			sender = mailer.NewLogSender(logger)
		}
		engine.mail = mailer.NewDispatcher(mailer.Config{
			BufferSize:  cfg.Mail.BufferSize,
			SendTimeout: cfg.Mail.SendTimeout,
		}, sender, logger.Named("mailer"))
	}

	b.built = true

	return engine, nil
}
