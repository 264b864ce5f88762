package main

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/MrEthical07/authflow"
	"github.com/MrEthical07/authflow/kratos"
	"github.com/MrEthical07/authflow/navigation"
	"github.com/MrEthical07/authflow/session"
	"github.com/MrEthical07/authflow/storage"
	"github.com/redis/go-redis/v9"
)

const redisPingTimeout = 3 * time.Second

// runtime is the wiring shared by every command.
type runtime struct {
	svc    *kratos.Service
	client *authflow.Client
	store  *session.Store
	nav    *navigation.Stack
	rdb    *redis.Client
}

func newRuntime(ctx context.Context, out io.Writer, challenges authflow.ChallengeFactory) (*runtime, error) {
	svc, err := kratos.New(cfg.Kratos, logger)
	if err != nil {
		return nil, err
	}

	nav := navigation.NewStack(authflow.ScreenLogin, authflow.ScreenVerifyOTP)
	nav.OnNavigate(func(e navigation.Entry) {
		fmt.Fprintf(out, "-> %s%s\n", e.Screen, formatParams(e.Params))
	})

	b := authflow.New().
		WithConfig(cfg.Client).
		WithIdentityService(svc).
		WithNavigator(nav).
		WithLogger(logger).
		WithErrorHandler(func(ctx context.Context, err error) {
			logger.WarnContext(ctx, "session sync error", "error", err)
		})
	if challenges != nil {
		b = b.WithChallengeFactory(challenges)
	}
	if cfg.Client.Audit.Enabled {
		b = b.WithAuditSink(authflow.NewSlogSink(logger))
	}

	rt := &runtime{svc: svc, nav: nav}

	var kv storage.KV
	if cfg.Redis.Addr != "" {
		rt.rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		rs := storage.NewRedisStore(rt.rdb, cfg.Client.Storage.RedisPrefix)
		pingCtx, cancel := context.WithTimeout(ctx, redisPingTimeout)
		err := rs.Ping(pingCtx)
		cancel()
		if err != nil {
			rt.closeRedis()
			return nil, fmt.Errorf("redis %s: %w", cfg.Redis.Addr, err)
		}
		b = b.WithRedis(rt.rdb)
		kv = rs
	} else {
		fs, err := storage.OpenFileStore(cfg.Client.Storage.FilePath)
		if err != nil {
			return nil, err
		}
		logger.Debug("using file session store", "path", fs.Path())
		b = b.WithStorage(fs)
		kv = fs
	}
	rt.store = session.NewStore(kv, cfg.Client.Session.UserTokenKey, cfg.Client.Session.UserInfoKey)

	client, err := b.Build()
	if err != nil {
		rt.closeRedis()
		return nil, err
	}
	rt.client = client
	return rt, nil
}

func (r *runtime) Close() {
	if r.client != nil {
		r.client.Close()
	}
	r.closeRedis()
}

func (r *runtime) closeRedis() {
	if r.rdb != nil {
		_ = r.rdb.Close()
	}
}

func formatParams(params map[string]string) string {
	if len(params) == 0 {
		return ""
	}
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+params[k])
	}
	return " " + strings.Join(parts, " ")
}
