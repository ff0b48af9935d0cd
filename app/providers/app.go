package providers

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"gorm.io/gorm"

	"github.com/uvci/resto/app/jobs"
	"github.com/uvci/resto/app/routes"
	"github.com/uvci/resto/app/services"
	"github.com/uvci/resto/config"
	"github.com/uvci/resto/pkg/app"
	"github.com/uvci/resto/pkg/container"
	"github.com/uvci/resto/pkg/database"
	"github.com/uvci/resto/pkg/event"
	grpcsrv "github.com/uvci/resto/pkg/grpc"
	"github.com/uvci/resto/pkg/logger"
	"github.com/uvci/resto/pkg/middleware"
	"github.com/uvci/resto/pkg/queue"
	"github.com/uvci/resto/pkg/router"
	"github.com/uvci/resto/pkg/schedule"
	"github.com/uvci/resto/pkg/session"
	"github.com/uvci/resto/pkg/storage"
	"github.com/uvci/resto/pkg/ws"
)

// App is the booted application.
type App struct {
	C *container.Container

	mu   sync.Mutex
	subs []*event.Subscription
	wg   sync.WaitGroup
}

// Boot registers every binding. Nothing connects until first use.
func Boot(ctx context.Context) (*App, error) {
	if err := config.Load(); err != nil {
		return nil, err
	}
	c := container.New()
	Register(ctx, c)
	return &App{C: c}, nil
}

// DB resolves the database connection.
func (a *App) DB() (*gorm.DB, error) { return container.Make[*gorm.DB](a.C, KeyDB) }

// Deps resolves what the HTTP routes need.
func (a *App) Deps() (routes.Deps, error) {
	var d routes.Deps
	var err error
	if d.Auth, err = container.Make[*services.AuthService](a.C, KeyAuth); err != nil {
		return d, err
	}
	if d.Identity, err = container.Make[*services.IdentityResolver](a.C, KeyIdentity); err != nil {
		return d, err
	}
	if d.Catalog, err = container.Make[*services.Catalog](a.C, KeyCatalog); err != nil {
		return d, err
	}
	if d.Carts, err = container.Make[*services.CartStore](a.C, KeyCarts); err != nil {
		return d, err
	}
	if d.Checkout, err = container.Make[*services.Checkout](a.C, KeyCheckout); err != nil {
		return d, err
	}
	if d.History, err = container.Make[*services.History](a.C, KeyHistory); err != nil {
		return d, err
	}
	if d.Admin, err = container.Make[*services.Admin](a.C, KeyAdmin); err != nil {
		return d, err
	}
	d.Hub = container.MustMake[*ws.Hub](a.C, KeyHub)
	d.Bus = container.MustMake[*event.Bus](a.C, KeyBus)
	if db, err := a.DB(); err == nil {
		d.Health = func(ctx context.Context) error { return database.Healthy(ctx, db) }
	}
	return d, nil
}

// Kernel builds the HTTP application with the global middleware stack.
func (a *App) Kernel() (*app.Application, error) {
	deps, err := a.Deps()
	if err != nil {
		return nil, err
	}
	sessions, err := container.Make[*session.Manager](a.C, KeySessions)
	if err != nil {
		return nil, err
	}
	k := app.New().
		Sessions(sessions).
		RateLimit(container.MustMake[*middleware.Limiter](a.C, KeyLimiter)).
		CORS(config.CORSOrigins()).
		Routes(func(r *router.Router) error {
			subs, err := routes.RegisterAPI(r, deps)
			if err != nil {
				return err
			}
			a.mu.Lock()
			a.subs = append(a.subs, subs...)
			a.mu.Unlock()
			return nil
		}).
		Routes(a.storageRoutes)
	return k, nil
}

// storageRoutes serves uploaded menu images when the default disk is local.
func (a *App) storageRoutes(r *router.Router) error {
	disks, err := container.Make[*storage.Manager](a.C, KeyStorage)
	if err != nil {
		logger.Warn("providers: storage routes skipped", "error", err)
		return nil
	}
	local, ok := disks.Default().(*storage.Local)
	if !ok {
		return nil
	}
	prefix := "/" + strings.Trim(urlPath(config.StorageURL()), "/") + "/"
	r.Handle(prefix+"*", "storage", http.StripPrefix(prefix, http.FileServer(http.Dir(local.Root()))))
	return nil
}

// urlPath keeps the path part of an absolute STORAGE_URL.
func urlPath(u string) string {
	if i := strings.Index(u, "://"); i >= 0 {
		rest := u[i+3:]
		if j := strings.Index(rest, "/"); j >= 0 {
			return rest[j:]
		}
		return "/storage"
	}
	if u == "" {
		return "/storage"
	}
	return u
}

// GRPC resolves the probe server.
func (a *App) GRPC() *grpcsrv.Server { return container.MustMake[*grpcsrv.Server](a.C, KeyGRPC) }

// Background starts the long-running loops of a serving process: realtime
// hub, Redis bridge, limiter janitor, queue workers and the scheduler.
func (a *App) Background(ctx context.Context) error {
	hub := container.MustMake[*ws.Hub](a.C, KeyHub)
	a.goRun(func() { hub.Run(ctx) })

	bridge, err := container.Make[*event.Bridge](a.C, KeyBridge)
	if err != nil {
		return err
	}
	if bridge != nil {
		a.goRun(func() {
			if err := bridge.Run(ctx, nil); err != nil {
				logger.Error("providers: change bridge stopped", "error", err)
			}
		})
	}

	limiter := container.MustMake[*middleware.Limiter](a.C, KeyLimiter)
	a.goRun(func() { limiter.Janitor(ctx) })

	if err := a.StartWorkers(ctx, config.QueueWorkers()); err != nil {
		return err
	}

	s, err := container.Make[*schedule.Scheduler](a.C, KeyScheduler)
	if err != nil {
		return err
	}
	s.Start(ctx)
	a.goRun(s.Wait)
	return nil
}

// StartWorkers runs n queue workers, plus the delayed-job promoter on Redis.
func (a *App) StartWorkers(ctx context.Context, n int) error {
	q, err := container.Make[*queue.Manager](a.C, KeyQueue)
	if err != nil {
		return err
	}
	// Registers the job handlers on q.
	if _, err := container.Make[*jobs.Dispatcher](a.C, KeyJobs); err != nil {
		return err
	}
	if rd, ok := container.MustMake[queue.Driver](a.C, KeyQueueDrv).(*queue.RedisDriver); ok {
		a.goRun(func() { rd.PromoteDelayed(ctx, time.Second) })
	}
	q.Start(ctx, n)
	a.goRun(q.Wait)
	return nil
}

func (a *App) goRun(fn func()) {
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		fn()
	}()
}

// Wait blocks until every background loop has returned.
func (a *App) Wait() { a.wg.Wait() }

// Close releases subscriptions and every resolved resource.
func (a *App) Close() error {
	a.mu.Lock()
	for _, s := range a.subs {
		s.Unsubscribe()
	}
	a.subs = nil
	a.mu.Unlock()
	return a.C.Close()
}
