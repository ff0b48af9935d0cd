// Package providers wires configuration into the running services. Every
// service is a lazy container binding, so the CLI commands only build what
// they touch: migrate opens the database and nothing else.
package providers

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/uvci/resto/app/jobs"
	"github.com/uvci/resto/app/repositories"
	"github.com/uvci/resto/app/repositories/rest"
	"github.com/uvci/resto/app/services"
	"github.com/uvci/resto/config"
	"github.com/uvci/resto/pkg/auth"
	"github.com/uvci/resto/pkg/broker"
	"github.com/uvci/resto/pkg/cache"
	"github.com/uvci/resto/pkg/container"
	"github.com/uvci/resto/pkg/database"
	"github.com/uvci/resto/pkg/event"
	grpcsrv "github.com/uvci/resto/pkg/grpc"
	"github.com/uvci/resto/pkg/logger"
	"github.com/uvci/resto/pkg/metrics"
	"github.com/uvci/resto/pkg/middleware"
	"github.com/uvci/resto/pkg/queue"
	"github.com/uvci/resto/pkg/schedule"
	"github.com/uvci/resto/pkg/session"
	"github.com/uvci/resto/pkg/storage"
	"github.com/uvci/resto/pkg/workerpool"
	"github.com/uvci/resto/pkg/ws"
)

// Binding names.
const (
	KeyDB        = "db"
	KeyRedis     = "redis"
	KeyCache     = "cache"
	KeyBus       = "bus"
	KeyBridge    = "bridge"
	KeyChanges   = "changes"
	KeyGateway   = "gateway"
	KeyAuth      = "auth"
	KeyIdentity  = "identity"
	KeyCatalog   = "catalog"
	KeyCarts     = "carts"
	KeyBroker    = "broker"
	KeyQueueDrv  = "queue.driver"
	KeyQueue     = "queue"
	KeyJobs      = "jobs"
	KeyCheckout  = "checkout"
	KeyHistory   = "history"
	KeyStorage   = "storage"
	KeyAdmin     = "admin"
	KeyHub       = "hub"
	KeySessions  = "sessions"
	KeyLimiter   = "limiter"
	KeyGRPC      = "grpc"
	KeyScheduler = "scheduler"
)

const (
	breakerThreshold = 3
	breakerCooldown  = 30 * time.Second
	refreshWorkers   = 2
	orphanAge        = 2 * time.Minute
	bridgeChannel    = "resto:changes"
)

// Register binds every service of the application on c. ctx bounds the
// connection attempts made while building.
func Register(ctx context.Context, c *container.Container) {
	c.Provide(KeyDB, func(c *container.Container) (any, error) {
		db, err := database.Open(config.DatabaseDriver(), config.DatabaseDSN(), database.Options{})
		if err != nil {
			return nil, err
		}
		c.OnClose(KeyDB, func() error { return database.Close(db) })
		return db, nil
	})

	// A nil client means Redis is unreachable; callers fall back to memory.
	c.Provide(KeyRedis, func(c *container.Container) (any, error) {
		rdb, err := cache.Connect(ctx, config.RedisAddr(), config.RedisPassword())
		if err != nil {
			logger.Warn("providers: redis unavailable, using in-memory stores", "addr", config.RedisAddr(), "error", err)
			return (*redis.Client)(nil), nil
		}
		c.OnClose(KeyRedis, rdb.Close)
		return rdb, nil
	})

	c.Provide(KeyCache, func(c *container.Container) (any, error) {
		rdb, err := container.Make[*redis.Client](c, KeyRedis)
		if err != nil {
			return nil, err
		}
		if rdb == nil {
			return cache.Store(cache.NewMemory()), nil
		}
		return cache.Store(cache.NewRedis(rdb, "resto:")), nil
	})

	c.Provide(KeyBus, func(*container.Container) (any, error) { return event.New(), nil })

	// nil without Redis.
	c.Provide(KeyBridge, func(c *container.Container) (any, error) {
		rdb, err := container.Make[*redis.Client](c, KeyRedis)
		if err != nil || rdb == nil {
			return (*event.Bridge)(nil), err
		}
		return event.NewBridge(rdb, container.MustMake[*event.Bus](c, KeyBus), bridgeChannel), nil
	})

	// Writes publish through Redis when it is up so every instance sees them.
	c.Provide(KeyChanges, func(c *container.Container) (any, error) {
		bridge, err := container.Make[*event.Bridge](c, KeyBridge)
		if err != nil {
			return nil, err
		}
		if bridge == nil {
			return event.Publisher(container.MustMake[*event.Bus](c, KeyBus)), nil
		}
		return event.Publisher(bridge), nil
	})

	c.Provide(KeyGateway, func(c *container.Container) (any, error) {
		changes, err := container.Make[event.Publisher](c, KeyChanges)
		if err != nil {
			return nil, err
		}
		if config.GatewayDriver() == "rest" {
			if config.UsingFallbackBackend() && config.IsProduction() {
				logger.Warn("providers: BACKEND_URL/BACKEND_ANON_KEY not set, using the built-in backend credentials")
			}
			return rest.NewGateway(config.BackendURL(), config.BackendAnonKey(), changes), nil
		}
		db, err := container.Make[*gorm.DB](c, KeyDB)
		if err != nil {
			return nil, err
		}
		return repositories.NewSQLGateway(db, changes), nil
	})

	c.Provide(KeyAuth, func(c *container.Container) (any, error) {
		gw, err := container.Make[repositories.Gateway](c, KeyGateway)
		if err != nil {
			return nil, err
		}
		store, err := container.Make[cache.Store](c, KeyCache)
		if err != nil {
			return nil, err
		}
		issuer := auth.NewIssuer(config.JWTSecret(), config.JWTTTL())
		return services.NewAuthService(gw.Users, issuer, store, container.MustMake[*event.Bus](c, KeyBus), services.AuthConfig{
			InstitutionDomain: config.InstitutionDomain(),
			AdminEmails:       config.AdminEmails(),
		}), nil
	})

	c.Provide(KeyIdentity, func(c *container.Container) (any, error) {
		authSvc, err := container.Make[*services.AuthService](c, KeyAuth)
		if err != nil {
			return nil, err
		}
		gw := container.MustMake[repositories.Gateway](c, KeyGateway)
		return services.NewIdentityResolver(authSvc, gw.Users, container.MustMake[*event.Bus](c, KeyBus),
			config.SessionTimeout(), config.RoleLookupTimeout()), nil
	})

	c.Provide(KeyCatalog, func(c *container.Container) (any, error) {
		gw, err := container.Make[repositories.Gateway](c, KeyGateway)
		if err != nil {
			return nil, err
		}
		pool := workerpool.New(refreshWorkers)
		c.OnClose(KeyCatalog, func() error { pool.Shutdown(); return nil })

		catalog := services.NewCatalog(services.NewLiveSource(gw.Menu), services.NewBreaker(breakerThreshold, breakerCooldown), pool)
		probe := container.MustMake[*grpcsrv.Server](c, KeyGRPC)
		catalog.OnSource = func(source string) {
			probe.SetServing(grpcsrv.ServiceCatalog, source == services.SourceLive)
		}
		subs := catalog.Watch(container.MustMake[*event.Bus](c, KeyBus))
		c.OnClose(KeyCatalog, unsubscribe(subs))
		return catalog, nil
	})

	c.Provide(KeyCarts, func(c *container.Container) (any, error) {
		store, err := container.Make[cache.Store](c, KeyCache)
		if err != nil {
			return nil, err
		}
		return services.NewCartStore(store, session.DefaultOptions().TTL), nil
	})

	c.Provide(KeyBroker, func(c *container.Container) (any, error) {
		pub, err := broker.New(ctx, broker.Config{
			Driver:       config.BrokerDriver(),
			KafkaBrokers: config.KafkaBrokers(),
			KafkaTopic:   config.KafkaTopic(),
			AMQPURL:      config.AMQPURL(),
			AMQPExchange: config.AMQPExchange(),
		})
		if err != nil {
			logger.Warn("providers: broker unavailable, order events are only logged", "driver", config.BrokerDriver(), "error", err)
			return broker.Publisher(broker.LogPublisher{}), nil
		}
		c.OnClose(KeyBroker, pub.Close)
		return pub, nil
	})

	c.Provide(KeyQueueDrv, func(c *container.Container) (any, error) {
		if config.QueueDriver() != "redis" {
			return queue.Driver(queue.NewMemoryDriver()), nil
		}
		rdb, err := container.Make[*redis.Client](c, KeyRedis)
		if err != nil {
			return nil, err
		}
		if rdb == nil {
			logger.Warn("providers: QUEUE_DRIVER=redis without redis, using memory queue")
			return queue.Driver(queue.NewMemoryDriver()), nil
		}
		return queue.Driver(queue.NewRedisDriver(rdb)), nil
	})

	c.Provide(KeyQueue, func(c *container.Container) (any, error) {
		driver, err := container.Make[queue.Driver](c, KeyQueueDrv)
		if err != nil {
			return nil, err
		}
		opts := queue.Options{MaxRetry: 3, Backoff: time.Second}
		if db, err := container.Make[*gorm.DB](c, KeyDB); err == nil {
			opts.DB = db
		} else {
			logger.Warn("providers: failed jobs kept in memory only", "error", err)
		}
		return queue.New(driver, opts), nil
	})

	c.Provide(KeyJobs, func(c *container.Container) (any, error) {
		q, err := container.Make[*queue.Manager](c, KeyQueue)
		if err != nil {
			return nil, err
		}
		pub, err := container.Make[broker.Publisher](c, KeyBroker)
		if err != nil {
			return nil, err
		}
		return jobs.Register(q, pub), nil
	})

	c.Provide(KeyCheckout, func(c *container.Container) (any, error) {
		identity, err := container.Make[*services.IdentityResolver](c, KeyIdentity)
		if err != nil {
			return nil, err
		}
		catalog, err := container.Make[*services.Catalog](c, KeyCatalog)
		if err != nil {
			return nil, err
		}
		carts, err := container.Make[*services.CartStore](c, KeyCarts)
		if err != nil {
			return nil, err
		}
		dispatcher, err := container.Make[*jobs.Dispatcher](c, KeyJobs)
		if err != nil {
			return nil, err
		}
		return services.NewCheckout(identity, container.MustMake[repositories.Gateway](c, KeyGateway), catalog, carts,
			services.NewPayment(config.WaveBaseURL()), dispatcher), nil
	})

	c.Provide(KeyHistory, func(c *container.Container) (any, error) {
		gw, err := container.Make[repositories.Gateway](c, KeyGateway)
		if err != nil {
			return nil, err
		}
		return services.NewHistory(gw.Orders), nil
	})

	c.Provide(KeyStorage, func(*container.Container) (any, error) {
		return storage.New(ctx, storage.Config{
			Default:   config.StorageDefault(),
			LocalRoot: config.StorageLocalRoot(),
			LocalURL:  config.StorageURL(),
			S3: storage.S3Config{
				Bucket:   config.StorageS3Bucket(),
				Region:   config.StorageS3Region(),
				Key:      config.StorageS3Key(),
				Secret:   config.StorageS3Secret(),
				Endpoint: config.StorageS3Endpoint(),
				URL:      config.StorageS3URL(),
			},
		})
	})

	c.Provide(KeyAdmin, func(c *container.Container) (any, error) {
		catalog, err := container.Make[*services.Catalog](c, KeyCatalog)
		if err != nil {
			return nil, err
		}
		dispatcher, err := container.Make[*jobs.Dispatcher](c, KeyJobs)
		if err != nil {
			return nil, err
		}
		var disk storage.Disk
		if disks, err := container.Make[*storage.Manager](c, KeyStorage); err == nil {
			disk = disks.Default()
		} else {
			logger.Warn("providers: image uploads disabled", "error", err)
		}
		admin := services.NewAdmin(container.MustMake[repositories.Gateway](c, KeyGateway), catalog, disk, dispatcher, config.AdminEmails())
		c.OnClose(KeyAdmin, unsubscribe(admin.Watch(container.MustMake[*event.Bus](c, KeyBus))))
		return admin, nil
	})

	c.Provide(KeyHub, func(*container.Container) (any, error) {
		hub := ws.NewHub()
		hub.OnCountChange = func(n int) {
			metrics.RealtimeSubscribers.WithLabelValues("ws").Set(float64(n))
		}
		return hub, nil
	})

	c.Provide(KeySessions, func(c *container.Container) (any, error) {
		store, err := container.Make[cache.Store](c, KeyCache)
		if err != nil {
			return nil, err
		}
		opts := session.DefaultOptions()
		opts.Secure = config.IsProduction()
		return session.NewManager(store, opts), nil
	})

	c.Provide(KeyLimiter, func(*container.Container) (any, error) {
		return middleware.NewLimiter(config.RateLimit(), time.Minute), nil
	})

	c.Provide(KeyGRPC, func(*container.Container) (any, error) { return grpcsrv.New(), nil })

	c.Provide(KeyScheduler, func(c *container.Container) (any, error) {
		checkout, err := container.Make[*services.Checkout](c, KeyCheckout)
		if err != nil {
			return nil, err
		}
		catalog := container.MustMake[*services.Catalog](c, KeyCatalog)
		s := schedule.New()
		s.Every(time.Minute).Name("orders:sweep-orphans").WithoutOverlapping().Run(func(ctx context.Context) {
			n, err := checkout.SweepOrphans(ctx, orphanAge)
			if err != nil {
				logger.WithCtx(ctx).Error("schedule: orphan sweep failed", "error", err)
				return
			}
			if n > 0 {
				logger.WithCtx(ctx).Info("schedule: orphan orders removed", "count", n)
			}
		})
		s.Every(breakerCooldown).Name("catalog:probe").WithoutOverlapping().Run(catalog.Probe)
		if db, err := container.Make[*gorm.DB](c, KeyDB); err == nil {
			srv := container.MustMake[*grpcsrv.Server](c, KeyGRPC)
			s.Every(15 * time.Second).Name("health:database").Run(func(ctx context.Context) {
				srv.SetServing(grpcsrv.ServiceDatabase, database.Healthy(ctx, db) == nil)
			})
		}
		return s, nil
	})
}

func unsubscribe(subs []*event.Subscription) func() error {
	return func() error {
		for _, s := range subs {
			s.Unsubscribe()
		}
		return nil
	}
}

// AttachLogSink fans logs out to MongoDB when LOG_MONGO_URI is set. The
// returned func flushes and disconnects.
func AttachLogSink() (func(), error) {
	uri := config.LogMongoURI()
	if uri == "" {
		return func() {}, nil
	}
	w, err := logger.DialMongo(uri, config.LogMongoDB(), config.LogMongoCollection())
	if err != nil {
		return func() {}, fmt.Errorf("providers: log sink: %w", err)
	}
	level := slog.LevelDebug
	if config.IsProduction() {
		level = slog.LevelInfo
	}
	sink := logger.NewSink(w, level)
	logger.Attach(sink)
	return func() {
		sink.Close()
		w.Disconnect()
	}, nil
}
