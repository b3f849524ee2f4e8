package app

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"go.uber.org/zap"

	"github.com/xenking/prefab-storefront/internal/domain/upload"
	"github.com/xenking/prefab-storefront/internal/kv"
	"github.com/xenking/prefab-storefront/internal/storage/pebble"
	"github.com/xenking/prefab-storefront/internal/storage/redis"
	"github.com/xenking/prefab-storefront/internal/storage/s3"
	"github.com/xenking/prefab-storefront/pkg/health"
	"github.com/xenking/prefab-storefront/pkg/httpmiddleware"
)

// stores are the optional backends. Each falls back to a process-local
// implementation when it is not configured.
type stores struct {
	snapshots kv.Store
	consent   kv.Store
	objects   upload.ObjectStore
	// limiter counts API requests, login counts login attempts and
	// admission counts new sessions.
	limiter   httpmiddleware.Limiter
	login     httpmiddleware.Limiter
	admission httpmiddleware.Limiter
	// sweeps run background expiry until ctx is done.
	sweeps []func(ctx context.Context)

	closers []func() error
}

func (s *stores) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		_ = s.closers[i]()
	}
}

func openStores(ctx context.Context, lg *zap.Logger, cfg *Config, hc *health.Health) (_ *stores, rerr error) {
	st := &stores{}
	defer func() {
		if rerr != nil {
			st.Close()
		}
	}()

	if cfg.Redis.URL != "" {
		client, err := redis.NewClient(cfg.Redis.URL)
		if err != nil {
			return nil, errors.Wrap(err, "create redis client")
		}
		st.closers = append(st.closers, client.Close)

		snapshots := redis.NewStore(client, cfg.Redis.Prefix+"session:")
		hc.AddReadinessCheck("redis", 2*time.Second, health.PingCheck(snapshots))
		st.snapshots = snapshots
		limiter := func(name string, max int) httpmiddleware.Limiter {
			return httpmiddleware.NewRedisLimiter(client, cfg.Redis.Prefix+"ratelimit:"+name+":", max, cfg.RateLimit.Window)
		}
		st.limiter = limiter("api", cfg.RateLimit.Max)
		st.login = limiter("login", cfg.RateLimit.Login)
		st.admission = limiter("session", cfg.RateLimit.Sessions)
	} else {
		lg.Info("Redis not configured, sessions and rate limits are process-local")
		st.snapshots = kv.NewMemory()
		limiter := func(max int) httpmiddleware.Limiter {
			l := httpmiddleware.NewMemoryLimiter(max, cfg.RateLimit.Window)
			st.sweeps = append(st.sweeps, l.Run)
			return l
		}
		st.limiter = limiter(cfg.RateLimit.Max)
		st.login = limiter(cfg.RateLimit.Login)
		st.admission = limiter(cfg.RateLimit.Sessions)
	}

	if cfg.Pebble.Dir != "" {
		db, err := pebble.Open(cfg.Pebble.Dir)
		if err != nil {
			return nil, errors.Wrap(err, "open pebble")
		}
		st.closers = append(st.closers, db.Close)
		st.consent = db
		st.sweeps = append(st.sweeps, func(ctx context.Context) {
			purgeLoop(ctx, lg.Named("pebble"), db, time.Hour)
		})
	} else {
		st.consent = kv.NewMemory()
	}

	if cfg.S3.Endpoint != "" {
		objects, err := s3.New(ctx, s3.Config{
			Endpoint:     cfg.S3.Endpoint,
			Region:       cfg.S3.Region,
			AccessKey:    cfg.S3.AccessKey,
			SecretKey:    cfg.S3.SecretKey,
			Bucket:       cfg.S3.Bucket,
			UsePathStyle: cfg.S3.UsePathStyle,
			PublicURL:    cfg.S3.PublicURL,
		}, s3.WithLogger(lg.Named("s3")))
		if err != nil {
			return nil, errors.Wrap(err, "create object storage")
		}
		if err := objects.EnsureBucket(ctx); err != nil {
			return nil, errors.Wrap(err, "ensure bucket")
		}
		st.objects = objects
	} else {
		lg.Info("Object storage not configured, uploads are disabled")
	}

	return st, nil
}

func purgeLoop(ctx context.Context, lg *zap.Logger, db *pebble.Store, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := db.Purge(ctx)
			if err != nil {
				lg.Warn("Purge failed", zap.Error(err))
				continue
			}
			if n > 0 {
				lg.Debug("Purged expired keys", zap.Int("count", n))
			}
		}
	}
}
