// Package server initializes and runs the main application process: it opens
// the database, runs schema migrations, builds the session services, and
// hosts the background expiry sweeper until shutdown.
package server

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/dmitrijs2005/sessionkeeper/internal/logging"
	"github.com/dmitrijs2005/sessionkeeper/internal/server/auth"
	"github.com/dmitrijs2005/sessionkeeper/internal/server/config"
	"github.com/dmitrijs2005/sessionkeeper/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/sessionkeeper/internal/server/services"
	"github.com/dmitrijs2005/sessionkeeper/internal/server/token"
	_ "github.com/jackc/pgx/v5/stdlib"
)

type App struct {
	config         *config.Config
	logger         logging.Logger
	db             *sql.DB
	userService    *services.UserService
	sessionService *services.SessionService
}

// NewApp wires the application together: database, migrations, hasher,
// issuer, and services. The returned App owns the db handle.
func NewApp(ctx context.Context, cfg *config.Config) (*App, error) {

	logger := logging.NewSlogLogger(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	db, err := sql.Open("pgx", cfg.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db open error: %w", err)
	}

	repos := repomanager.NewPostgresRepositoryManager()
	if err := repos.RunMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migration error: %w", err)
	}

	hasher := auth.NewBcryptHasher(cfg.BcryptCost)
	issuer := token.NewIssuer([]byte(cfg.SecretKey))

	us := services.NewUserService(db, repos, hasher, logger)
	ss, err := services.NewSessionService(db, repos, hasher, issuer, logger, cfg)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("session service init error: %w", err)
	}

	return &App{config: cfg, logger: logger, db: db, userService: us, sessionService: ss}, nil
}

// Users exposes the user service to the API layer hosting this core.
func (app *App) Users() *services.UserService { return app.userService }

// Sessions exposes the session service to the API layer hosting this core.
func (app *App) Sessions() *services.SessionService { return app.sessionService }

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

// Run blocks hosting the expiry sweeper until a termination signal arrives
// or ctx is cancelled.
func (app *App) Run(ctx context.Context) {

	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...")

	app.initSignalHandler(cancelFunc)

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		app.sessionService.RunSweeper(ctx)
	}()

	wg.Wait()

	if err := app.db.Close(); err != nil {
		app.logger.Error(ctx, "db close error", "error", err.Error())
	}
}
