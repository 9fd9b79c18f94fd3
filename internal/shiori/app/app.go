// Package app wires Shiori's components together and runs them.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/bdobrica/shiori/common/retry"
	"github.com/bdobrica/shiori/internal/shiori/bot"
	"github.com/bdobrica/shiori/internal/shiori/config"
	"github.com/bdobrica/shiori/internal/shiori/directory"
	"github.com/bdobrica/shiori/internal/shiori/distribution"
	"github.com/bdobrica/shiori/internal/shiori/handlers"
	"github.com/bdobrica/shiori/internal/shiori/identity"
	"github.com/bdobrica/shiori/internal/shiori/intents"
	"github.com/bdobrica/shiori/internal/shiori/matrix"
	"github.com/bdobrica/shiori/internal/shiori/message"
	"github.com/bdobrica/shiori/internal/shiori/nlu"
	"github.com/bdobrica/shiori/internal/shiori/store"
)

// App is the Shiori application
type App struct {
	config   *config.Config
	store    *store.Store
	matrix   *matrix.Client
	identity *identity.Holder
	cache    *distribution.Cache
	router   *intents.Router
	bot      *bot.Bot
	health   *HealthServer
}

// New creates the application. It loads the bot identity from the directory,
// so the directory must be reachable.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	st, err := store.New(cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize store: %w", err)
	}
	a := &App{config: cfg, store: st}

	a.matrix, err = matrix.New(&matrix.Config{
		Homeserver:  cfg.Matrix.Homeserver,
		UserID:      cfg.Matrix.UserID,
		AccessToken: cfg.Matrix.AccessToken,
		Rooms:       cfg.Matrix.Rooms,
		State:       st,
	})
	if err != nil {
		st.Close()
		return nil, err
	}

	a.identity, err = LoadIdentity(ctx, cfg)
	if err != nil {
		st.Close()
		return nil, err
	}
	a.identity.OnChange(a.syncDisplayName)

	seed := uint64(time.Now().UnixNano())
	a.router = intents.NewRouter(handlers.New(a.identity, rand.New(rand.NewPCG(seed, seed>>1))).Routes()...)
	a.cache = distribution.NewCache(a.matrix)

	a.bot = bot.New(bot.Deps{
		SelfID:   cfg.Matrix.UserID,
		Identity: a.identity,
		Resolver: a.cache,
		NLU:      newGateway(cfg.NLU, a.router.Keys),
		Router:   a.router,
		Sender:   a.matrix,
		Recorder: st,
	})

	if cfg.HealthAddr != "" {
		a.health = NewHealthServer(cfg.HealthAddr, a)
	}

	slog.Info("application initialised",
		"identity", a.identity.Current().FullName(),
		"intents", a.router.Keys(),
		"nlu", cfg.NLU.Backend,
	)
	return a, nil
}

// LoadIdentity fetches the bot's identity from the configured directory.
func LoadIdentity(ctx context.Context, cfg *config.Config) (*identity.Holder, error) {
	dir := directory.New(directory.Config{
		BaseURL: cfg.Directory.BaseURL,
		Token:   cfg.Directory.Token,
		Timeout: cfg.Directory.Timeout,
		Retry:   retry.DefaultPolicy,
	})
	holder, err := identity.Load(ctx, dir, cfg.Directory.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to load identity: %w", err)
	}
	return holder, nil
}

func newGateway(cfg config.NLUConfig, catalogue func() []string) nlu.Gateway {
	if cfg.Backend == config.BackendOpenAI {
		return nlu.NewOpenAI(nlu.OpenAIConfig{
			APIKey:  cfg.OpenAI.APIKey,
			BaseURL: cfg.OpenAI.BaseURL,
			Model:   cfg.OpenAI.Model,
			Timeout: cfg.OpenAI.Timeout,
		}, catalogue)
	}
	return nlu.NewDialogflow(nlu.DialogflowConfig{
		Token:   cfg.Dialogflow.Token,
		BaseURL: cfg.Dialogflow.BaseURL,
		Version: cfg.Dialogflow.Version,
		Lang:    cfg.Dialogflow.Lang,
		Timeout: cfg.Dialogflow.Timeout,
	})
}

// Run starts the Matrix sync and the health server and blocks until ctx is
// cancelled, SIGINT/SIGTERM arrives or one of them fails.
func (a *App) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	if a.health != nil {
		g.Go(func() error {
			if err := a.health.Serve(ctx); err != nil {
				slog.Warn("health server failed; continuing without it", "err", err)
			}
			return nil
		})
	}

	g.Go(func() error {
		slog.Info("starting Matrix sync")
		if err := a.matrix.Start(ctx, matrix.Handlers{
			OnMessage:     a.onMessage,
			OnTrustChange: a.onTrustChange,
		}); err != nil {
			return fmt.Errorf("failed to start Matrix client: %w", err)
		}
		a.syncDisplayName(ctx, a.identity.Current())

		<-ctx.Done()
		slog.Info("stopping Matrix client")
		a.matrix.Stop()
		return nil
	})

	slog.Info("Shiori is running; press Ctrl+C to stop")
	err := g.Wait()
	slog.Info("shutting down")
	return err
}

// Close releases the database.
func (a *App) Close() error {
	slog.Info("closing database")
	return a.store.Close()
}

// Failures are logged and recorded by the bot.
func (a *App) onMessage(ctx context.Context, msg message.Incoming) {
	_ = a.bot.HandleMessage(ctx, msg)
}

func (a *App) onTrustChange(ctx context.Context, tc message.TrustChange) {
	_ = a.bot.HandleTrustChange(ctx, tc)
}

// syncDisplayName mirrors the directory name onto the Matrix profile.
func (a *App) syncDisplayName(ctx context.Context, id identity.Identity) {
	name := id.FullName()
	if name == "" {
		return
	}
	if err := a.matrix.SetDisplayName(ctx, name); err != nil {
		slog.Warn("failed to update Matrix display name", "name", name, "err", err)
	}
}

// ExchangeCount implements StatusProvider.
func (a *App) ExchangeCount(ctx context.Context) (int, error) {
	return a.store.ExchangeCount(ctx)
}

// CacheSize implements StatusProvider.
func (a *App) CacheSize() int {
	return a.cache.Len()
}

// Identity implements StatusProvider.
func (a *App) Identity() identity.Identity {
	return a.identity.Current()
}
