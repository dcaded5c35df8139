package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	_ "github.com/sbilibin2017/user-bootstrap/docs"
	"github.com/sbilibin2017/user-bootstrap/internal/facades"
	"github.com/sbilibin2017/user-bootstrap/internal/grpcserver"
	"github.com/sbilibin2017/user-bootstrap/internal/handlers"
	"github.com/sbilibin2017/user-bootstrap/internal/jwt"
	"github.com/sbilibin2017/user-bootstrap/internal/logger"
	"github.com/sbilibin2017/user-bootstrap/internal/middlewares"
	"github.com/sbilibin2017/user-bootstrap/internal/models"
	"github.com/sbilibin2017/user-bootstrap/internal/repositories"
	"github.com/sbilibin2017/user-bootstrap/internal/services"

	_ "github.com/jackc/pgx/v5/stdlib"
	httpSwagger "github.com/swaggo/http-swagger"
)

// Build info variables, set via ldflags at build time.
var (
	buildVersion = "N/A" // Version of the service
	buildDate    = "N/A" // Build date
	buildCommit  = "N/A" // Git commit hash
)

// Supported DB_DRIVER values.
const (
	driverMongo    = "mongo"
	driverPostgres = "postgres"
)

var errUnknownDriver = errors.New("unknown db driver")

// config holds everything parseConfig reads from the environment.
type config struct {
	AppHost  string
	AppPort  string
	LogLevel string
	Serve    bool
	GRPCPort string

	DBDriver string

	MongoURI        string
	MongoDB         string
	MongoCollection string

	PGHost         string
	PGPort         int
	PGUser         string
	PGPassword     string
	PGDB           string
	PGTable        string
	PGMaxOpenConns int
	PGMaxIdleConns int

	LockEnabled   bool
	RedisHost     string
	RedisPort     int
	RedisDB       int
	RedisPassword string
	LockTTL       time.Duration
	LockWait      time.Duration

	KafkaBrokers []string
	KafkaTopic   string

	Seed services.SeedConfig

	JWTSecretKey    string
	JWTSecretBase64 bool
}

// @title user-bootstrap API
// @version 1.0.0
// @description Bootstrap of the User collection: indexes, seed user and diagnostics
// @host localhost:8080
// @BasePath /
// @schemes http
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
func main() {
	printBuildInfo()
	configPath := parseFlags()

	cfg, err := parseConfig(configPath)
	if err != nil {
		log.Fatalf("failed to parse config: %v", err)
	}

	if err := run(context.Background(), cfg); err != nil {
		log.Fatalf("bootstrap stopped with error: %v", err)
	}
}

// printBuildInfo prints the build version, commit hash, and build date.
func printBuildInfo() {
	fmt.Printf("Starting user-bootstrap version %s, commit %s, build %s\n", buildVersion, buildCommit, buildDate)
}

// parseFlags parses command-line flags and returns the config file path.
func parseFlags() string {
	c := flag.String("c", "config.env", "Path to configuration file")
	flag.Parse()
	return *c
}

// parseConfig loads environment variables from a file and returns the
// application, store, lock, event, seed and JWT configuration.
func parseConfig(path string) (cfg config, err error) {
	_ = godotenv.Load(path)

	getEnv := func(key, defaultValue string) string {
		if val, ok := os.LookupEnv(key); ok && val != "" {
			return val
		}
		return defaultValue
	}

	// Application config
	cfg.AppHost = getEnv("APP_HOST", "") // all interfaces
	cfg.AppPort = getEnv("APP_PORT", "8080")
	cfg.LogLevel = getEnv("APP_LOG_LEVEL", "info")
	if cfg.Serve, err = strconv.ParseBool(getEnv("APP_SERVE", "false")); err != nil {
		return cfg, fmt.Errorf("APP_SERVE: %w", err)
	}
	cfg.GRPCPort = getEnv("GRPC_PORT", "50051")

	// Store config
	cfg.DBDriver = strings.ToLower(getEnv("DB_DRIVER", driverMongo))
	if cfg.DBDriver != driverMongo && cfg.DBDriver != driverPostgres {
		return cfg, fmt.Errorf("%w: %q", errUnknownDriver, cfg.DBDriver)
	}

	cfg.MongoURI = getEnv("MONGO_URI", "mongodb://localhost:27017")
	cfg.MongoDB = getEnv("MONGO_DB", "backendProject")
	cfg.MongoCollection = getEnv("MONGO_COLLECTION", "User")

	cfg.PGHost = getEnv("POSTGRES_HOST", "localhost")
	cfg.PGUser = getEnv("POSTGRES_USER", "user")
	cfg.PGPassword = getEnv("POSTGRES_PASSWORD", "password")
	cfg.PGDB = getEnv("POSTGRES_DB", "database")
	cfg.PGTable = getEnv("POSTGRES_TABLE", "users")
	if cfg.PGPort, err = strconv.Atoi(getEnv("POSTGRES_PORT", "5432")); err != nil {
		return cfg, fmt.Errorf("POSTGRES_PORT: %w", err)
	}
	if cfg.PGMaxOpenConns, err = strconv.Atoi(getEnv("POSTGRES_MAX_OPEN_CONNS", "16")); err != nil {
		return cfg, fmt.Errorf("POSTGRES_MAX_OPEN_CONNS: %w", err)
	}
	if cfg.PGMaxIdleConns, err = strconv.Atoi(getEnv("POSTGRES_MAX_IDLE_CONNS", "8")); err != nil {
		return cfg, fmt.Errorf("POSTGRES_MAX_IDLE_CONNS: %w", err)
	}

	// Lock config
	if cfg.LockEnabled, err = strconv.ParseBool(getEnv("LOCK_ENABLED", "false")); err != nil {
		return cfg, fmt.Errorf("LOCK_ENABLED: %w", err)
	}
	cfg.RedisHost = getEnv("REDIS_HOST", "localhost")
	if cfg.RedisPort, err = strconv.Atoi(getEnv("REDIS_PORT", "6379")); err != nil {
		return cfg, fmt.Errorf("REDIS_PORT: %w", err)
	}
	if cfg.RedisDB, err = strconv.Atoi(getEnv("REDIS_DB", "0")); err != nil {
		return cfg, fmt.Errorf("REDIS_DB: %w", err)
	}
	cfg.RedisPassword = getEnv("REDIS_PASSWORD", "")

	lockTTL, err := strconv.Atoi(getEnv("LOCK_TTL_SECOND", "30"))
	if err != nil {
		return cfg, fmt.Errorf("LOCK_TTL_SECOND: %w", err)
	}
	cfg.LockTTL = time.Duration(lockTTL) * time.Second

	lockWait, err := strconv.Atoi(getEnv("LOCK_WAIT_SECOND", "60"))
	if err != nil {
		return cfg, fmt.Errorf("LOCK_WAIT_SECOND: %w", err)
	}
	cfg.LockWait = time.Duration(lockWait) * time.Second

	// Event config
	cfg.KafkaBrokers = splitList(getEnv("KAFKA_BROKERS", ""))
	cfg.KafkaTopic = getEnv("KAFKA_TOPIC", "user-bootstrap")

	// Seed config
	if cfg.Seed.Enabled, err = strconv.ParseBool(getEnv("SEED_ENABLED", "true")); err != nil {
		return cfg, fmt.Errorf("SEED_ENABLED: %w", err)
	}
	if cfg.Seed.Mode, err = services.ParseSeedMode(getEnv("SEED_MODE", string(services.SeedModeSkip))); err != nil {
		return cfg, err
	}
	cfg.Seed.Username = getEnv("SEED_ADMIN_USERNAME", "admin")
	cfg.Seed.Email = getEnv("SEED_ADMIN_EMAIL", "admin@example.com")
	cfg.Seed.Password = getEnv("SEED_ADMIN_PASSWORD", "admin123")
	cfg.Seed.PasswordHash = getEnv("SEED_ADMIN_PASSWORD_HASH", "")
	cfg.Seed.Roles = splitList(getEnv("SEED_ADMIN_ROLES", models.RoleAdmin+","+models.RoleUser))

	// JWT config
	cfg.JWTSecretKey = getEnv("JWT_SECRET_KEY", "my_super_secret_key")
	if cfg.JWTSecretBase64, err = strconv.ParseBool(getEnv("JWT_SECRET_BASE64", "false")); err != nil {
		return cfg, fmt.Errorf("JWT_SECRET_BASE64: %w", err)
	}

	return cfg, nil
}

// splitList splits a comma separated value, dropping blanks.
func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// userStore is the full repository contract the bootstrap needs.
type userStore interface {
	services.IndexManager
	services.UserReader
	services.UserWriter
	services.StatsReader
	middlewares.RoleFinder
}

// openStore connects to the configured store. The returned func releases the connection.
func openStore(ctx context.Context, cfg config) (userStore, func(), error) {
	switch cfg.DBDriver {
	case driverMongo:
		logger.Log.Infow("connecting to MongoDB", "db", cfg.MongoDB, "collection", cfg.MongoCollection)

		client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.MongoURI))
		if err != nil {
			return nil, nil, fmt.Errorf("mongo connect: %w", err)
		}
		closeFn := func() {
			disconnectCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := client.Disconnect(disconnectCtx); err != nil {
				logger.Log.Errorw("MongoDB disconnect error", "error", err)
			}
		}
		if err := client.Ping(ctx, readpref.Primary()); err != nil {
			closeFn()
			return nil, nil, fmt.Errorf("mongo ping: %w", err)
		}
		return repositories.NewUserMongoRepository(client.Database(cfg.MongoDB), cfg.MongoCollection), closeFn, nil

	case driverPostgres:
		dsn := fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
			cfg.PGUser, cfg.PGPassword, cfg.PGHost, cfg.PGPort, cfg.PGDB)
		logger.Log.Infow("connecting to PostgreSQL", "host", cfg.PGHost, "port", cfg.PGPort, "db", cfg.PGDB)

		db, err := sqlx.ConnectContext(ctx, "pgx", dsn)
		if err != nil {
			return nil, nil, fmt.Errorf("postgres connect: %w", err)
		}
		db.SetMaxOpenConns(cfg.PGMaxOpenConns)
		db.SetMaxIdleConns(cfg.PGMaxIdleConns)
		closeFn := func() {
			if err := db.Close(); err != nil {
				logger.Log.Errorw("PostgreSQL close error", "error", err)
			}
		}
		return repositories.NewUserPostgresRepository(db, cfg.PGTable), closeFn, nil

	default:
		return nil, nil, fmt.Errorf("%w: %q", errUnknownDriver, cfg.DBDriver)
	}
}

// namespace names the bootstrapped collection or table.
func namespace(cfg config) string {
	if cfg.DBDriver == driverPostgres {
		return cfg.PGDB + "." + cfg.PGTable
	}
	return cfg.MongoDB + "." + cfg.MongoCollection
}

// printReport writes the report as indented JSON.
func printReport(w io.Writer, report *models.Report) error {
	out, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(out))
	return err
}

// run initializes the logger, the store, the optional lock and event
// publisher, runs the bootstrap and prints its report. In serve mode it then
// keeps the HTTP and gRPC health servers up until a shutdown signal.
func run(ctx context.Context, cfg config) error {
	runID := uuid.NewString()

	// Initialize logger
	if err := logger.Initialize(cfg.LogLevel, "run_id", runID); err != nil {
		fmt.Println("failed to initialize logger:", err)
		return err
	}
	defer logger.Log.Sync()
	logger.Log.Infof("Logger initialized with level %s", cfg.LogLevel)

	store, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		logger.Log.Errorw("store connection error", "driver", cfg.DBDriver, "error", err)
		return err
	}
	defer closeStore()

	opts := []services.Option{services.WithRunID(runID)}

	// Connect to Redis
	if cfg.LockEnabled {
		rdb := redis.NewClient(&redis.Options{
			Addr:     fmt.Sprintf("%s:%d", cfg.RedisHost, cfg.RedisPort),
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			logger.Log.Errorw("Redis connection error", "error", err)
			return fmt.Errorf("redis ping: %w", err)
		}
		lockRepo := repositories.NewBootstrapLockRepository(rdb, cfg.LockTTL)
		opts = append(opts, services.WithLocker(lockRepo, "bootstrap:lock:"+namespace(cfg), cfg.LockWait))
	}

	// Connect to Kafka
	if len(cfg.KafkaBrokers) > 0 {
		writer := facades.NewKafkaWriter(cfg.KafkaBrokers, cfg.KafkaTopic)
		defer func() {
			if err := writer.Close(); err != nil {
				logger.Log.Errorw("Kafka writer close error", "error", err)
			}
		}()
		opts = append(opts, services.WithEventPublisher(facades.NewUserEventsKafkaFacade(writer)))
	}

	svc := services.NewBootstrapService(cfg.DBDriver, store, store, store, store, cfg.Seed, opts...)

	if !cfg.Serve {
		report, err := svc.Run(ctx)
		if err != nil {
			return err
		}
		return printReport(os.Stdout, report)
	}

	return serve(ctx, cfg, svc, store)
}

// newRouter builds the serve-mode HTTP routes around the report source.
// The ADMIN role of a /report caller is looked up in the user store.
func newRouter(cfg config, reports handlers.ReportGetter, roles middlewares.RoleFinder) http.Handler {
	secret := jwt.WithSecretKey(cfg.JWTSecretKey)
	if cfg.JWTSecretBase64 {
		secret = jwt.WithBase64SecretKey(cfg.JWTSecretKey)
	}
	tokener := jwt.New(secret)

	// Setup router
	r := chi.NewRouter()
	r.Use(chimiddleware.Recoverer)
	r.Use(middlewares.LoggingMiddleware(logger.Log))

	// Public routes
	r.Get("/healthz", handlers.NewHealthHandler(reports))

	// Protected routes with JWT middleware
	r.Group(func(r chi.Router) {
		r.Use(middlewares.AuthMiddleware(tokener))
		r.Use(middlewares.RequireRole(models.RoleAdmin, roles))
		r.Get("/report", handlers.NewReportHandler(reports))
	})

	r.Get("/swagger/*", httpSwagger.Handler(
		httpSwagger.URL("/swagger/doc.json"),
	))

	return r
}

// serve starts the HTTP and gRPC servers, runs the bootstrap and blocks
// until a shutdown signal or a server failure.
func serve(ctx context.Context, cfg config, svc *services.BootstrapService, roles middlewares.RoleFinder) error {
	srv := &http.Server{
		Addr:    net.JoinHostPort(cfg.AppHost, cfg.AppPort),
		Handler: newRouter(cfg, svc, roles),
	}

	grpcAddr := net.JoinHostPort(cfg.AppHost, cfg.GRPCPort)
	lis, err := net.Listen("tcp", grpcAddr)
	if err != nil {
		return fmt.Errorf("gRPC listen on %s: %w", grpcAddr, err)
	}
	grpcSrv := grpcserver.New()

	// Graceful shutdown
	errChan := make(chan error, 2)
	ctxShutdown, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM, syscall.SIGQUIT)
	defer stop()

	go func() {
		logger.Log.Infof("HTTP server listening on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- fmt.Errorf("HTTP server failed: %w", err)
		}
	}()

	go func() {
		if err := grpcSrv.Serve(lis); err != nil {
			errChan <- fmt.Errorf("gRPC server failed: %w", err)
		}
	}()

	var runErr error
	report, err := svc.Run(ctxShutdown)
	if err != nil {
		runErr = err
	} else if err := printReport(os.Stdout, report); err != nil {
		runErr = err
	} else {
		grpcSrv.SetServing()

		select {
		case <-ctxShutdown.Done():
			logger.Log.Info("Shutdown signal received, stopping servers...")
		case runErr = <-errChan:
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Log.Errorw("HTTP server shutdown error", "error", err)
	}
	if err := grpcSrv.Shutdown(shutdownCtx); err != nil {
		logger.Log.Errorw("gRPC server shutdown error", "error", err)
	}

	logger.Log.Info("servers stopped")
	return runErr
}
