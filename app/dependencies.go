package app

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/zap"

	"github.com/shinobiwanshin/Sweetify/clerk"
	"github.com/shinobiwanshin/Sweetify/config"
	"github.com/shinobiwanshin/Sweetify/internal/observability"
	"github.com/shinobiwanshin/Sweetify/middleware"
	"github.com/shinobiwanshin/Sweetify/repositories"
	"github.com/shinobiwanshin/Sweetify/repositories/memory"
	"github.com/shinobiwanshin/Sweetify/repositories/postgres"
	"github.com/shinobiwanshin/Sweetify/services"
)

// Dependencies holds all application dependencies.
// This is the central wiring point for dependency injection.
type Dependencies struct {
	// Infrastructure
	Config  *config.Config
	DB      *postgres.DB
	Logger  *zap.Logger
	Metrics *observability.Metrics

	// Repository Factory, nil for the memory driver
	RepoFactory *postgres.RepositoryFactory

	// Repositories
	Users     repositories.UserRepository
	Sweets    repositories.SweetRepository
	Purchases repositories.PurchaseRepository
	TxManager repositories.TransactionManager

	// Auth
	Verifier       *clerk.Verifier
	Identity       *services.IdentityService
	Credentials    *services.CredentialService
	Webhooks       *services.WebhookService
	AuthMiddleware *middleware.AuthMiddleware

	// Shop
	SweetService    *services.SweetService
	PurchaseService *services.PurchaseService
}

// NewDependencies creates and wires up all application dependencies.
func NewDependencies(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Dependencies, error) {
	deps := &Dependencies{
		Config: cfg,
		Logger: logger,
	}

	if cfg.Observability.MetricsEnabled {
		deps.Metrics = observability.NewMetrics()
	}

	if err := deps.initStore(ctx, cfg); err != nil {
		return nil, fmt.Errorf("failed to initialize store: %w", err)
	}

	if err := deps.initAuth(cfg); err != nil {
		return nil, fmt.Errorf("failed to initialize auth: %w", err)
	}

	deps.initShop()

	logger.Info("all dependencies initialized successfully",
		zap.String("store", cfg.Store.Driver),
		zap.Bool("metrics", deps.Metrics != nil))
	return deps, nil
}

// initStore opens the configured persistence backend
func (d *Dependencies) initStore(ctx context.Context, cfg *config.Config) error {
	switch cfg.Store.Driver {
	case config.StoreDriverMemory:
		d.Logger.Warn("using in-memory store, data is lost on restart")
		d.setRepositories(memory.NewRepositories(), memory.NewTransactionManager())
		return nil
	case config.StoreDriverPostgres:
		return d.initDatabase(ctx, cfg)
	default:
		return fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
}

// initDatabase initializes the PostgreSQL database connection and factory
func (d *Dependencies) initDatabase(ctx context.Context, cfg *config.Config) error {
	factory, err := postgres.NewRepositoryFactory(cfg, d.Logger)
	if err != nil {
		return fmt.Errorf("failed to create repository factory: %w", err)
	}

	d.RepoFactory = factory
	d.DB = factory.GetDB()

	if err := d.DB.HealthCheck(ctx); err != nil {
		_ = factory.Close()
		return err
	}

	d.setRepositories(factory.NewRepositories(), factory.GetTransactionManager())
	d.Logger.Info("repositories initialized")
	return nil
}

func (d *Dependencies) setRepositories(repos *repositories.Repositories, tm repositories.TransactionManager) {
	d.Users = repos.Users
	d.Sweets = repos.Sweets
	d.Purchases = repos.Purchases
	d.TxManager = tm
}

// initAuth wires the verifier, the reconciler and the local credential path.
// Without CLERK_JWKS_URI external tokens are decoded without verification.
func (d *Dependencies) initAuth(cfg *config.Config) error {
	localKey := clerk.LocalKey{
		ID:     cfg.LocalAuth.KeyID,
		Secret: []byte(cfg.LocalAuth.Secret),
		Issuer: cfg.LocalAuth.Issuer,
	}

	var resolver clerk.KeyResolver
	issuer := ""
	if cfg.Clerk.JWKSURI != "" {
		jwks := clerk.NewJWKSResolver(cfg.Clerk.JWKSURI, cfg.Clerk.HTTPTimeout, d.Logger)
		resolver = jwks
		issuer = jwks.Issuer()
	} else {
		d.Logger.Warn("CLERK_JWKS_URI not set, external tokens will not be signature checked (not safe for production)")
	}
	d.Verifier = clerk.NewVerifier(resolver, issuer, localKey, d.Logger)

	d.Identity = services.NewIdentityService(d.Users, d.Logger)

	issuerSvc, err := services.NewTokenIssuer(localKey, cfg.LocalAuth.Expiration)
	if err != nil {
		return err
	}
	d.Credentials = services.NewCredentialService(d.Users, services.NewBcryptHasher(cfg.LocalAuth.BcryptCost), issuerSvc, d.Logger)

	verifier, err := services.NewWebhookVerifier(cfg.Clerk.WebhookSecret)
	if err != nil {
		return err
	}
	d.Webhooks = services.NewWebhookService(verifier, d.Identity, d.Logger)

	var users middleware.UserLookup
	if d.Users != nil {
		users = d.Users
	}
	d.AuthMiddleware = middleware.NewAuthMiddleware(d.Verifier, d.Identity, users, d.Metrics, d.Logger)

	d.Logger.Info("auth initialized",
		zap.Bool("jwks", resolver != nil),
		zap.Bool("webhook_verification", verifier.Enabled()))
	return nil
}

func (d *Dependencies) initShop() {
	d.SweetService = services.NewSweetService(d.Sweets, d.Logger)
	d.PurchaseService = services.NewPurchaseService(d.Sweets, d.Purchases, d.TxManager, d.Logger)
}

// SQLDB returns the raw pool for health checks, or nil for the memory driver
func (d *Dependencies) SQLDB() *sql.DB {
	if d.DB == nil {
		return nil
	}
	return d.DB.DB
}

// Close gracefully shuts down all dependencies
func (d *Dependencies) Close(ctx context.Context) error {
	d.Logger.Info("shutting down dependencies")

	var errs []error

	// Close database connection
	if d.RepoFactory != nil {
		if err := d.RepoFactory.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close database: %w", err))
		} else {
			d.Logger.Info("database connection closed")
		}
	}

	// Sync logger
	if d.Logger != nil {
		_ = d.Logger.Sync()
	}

	if len(errs) > 0 {
		return fmt.Errorf("errors during shutdown: %v", errs)
	}

	return nil
}
