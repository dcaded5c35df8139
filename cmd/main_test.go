package main

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	gojwt "github.com/golang-jwt/jwt/v5"
	"github.com/jmoiron/sqlx"
	"github.com/sbilibin2017/user-bootstrap/internal/jwt"
	"github.com/sbilibin2017/user-bootstrap/internal/models"
	"github.com/sbilibin2017/user-bootstrap/internal/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// resetFlags resets the global flag.CommandLine to avoid "flag redefined" panic
func resetFlags() {
	flag.CommandLine = flag.NewFlagSet(os.Args[0], flag.ExitOnError)
}

// resetEnv clears env vars used by parseConfig
func resetEnv() {
	os.Clearenv()
}

func TestParseFlags_Default(t *testing.T) {
	resetFlags()
	oldArgs := os.Args
	defer func() { os.Args = oldArgs }()

	os.Args = []string{"cmd"}
	configPath := parseFlags()
	expected := "config.env"

	if configPath != expected {
		t.Errorf("expected %s, got %s", expected, configPath)
	}
}

func TestParseFlags_Custom(t *testing.T) {
	resetFlags()
	oldArgs := os.Args
	defer func() { os.Args = oldArgs }()

	os.Args = []string{"cmd", "-c", "myconfig.env"}
	configPath := parseFlags()
	expected := "myconfig.env"

	if configPath != expected {
		t.Errorf("expected %s, got %s", expected, configPath)
	}
}

// captureStdout runs fn and returns what it wrote to os.Stdout.
func captureStdout(t *testing.T, fn func()) string {
	t.Helper()

	oldStdout := os.Stdout
	r, w, err := os.Pipe()
	require.NoError(t, err)
	os.Stdout = w
	defer func() { os.Stdout = oldStdout }()

	done := make(chan string)
	go func() {
		var buf bytes.Buffer
		_, _ = buf.ReadFrom(r)
		done <- buf.String()
	}()

	fn()
	w.Close()
	return <-done
}

func TestPrintBuildInfo_Output(t *testing.T) {
	buildVersion = "v1.0.0"
	buildCommit = "abcd1234"
	buildDate = "2025-09-26"

	output := captureStdout(t, printBuildInfo)

	assert.Contains(t, output, "version v1.0.0")
	assert.Contains(t, output, "commit abcd1234")
	assert.Contains(t, output, "build 2025-09-26")
}

func TestParseConfig_Defaults(t *testing.T) {
	resetEnv()

	cfg, err := parseConfig("nonexistent.env")
	require.NoError(t, err)

	// Application
	assert.Empty(t, cfg.AppHost)
	assert.Equal(t, "8080", cfg.AppPort)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.False(t, cfg.Serve)
	assert.Equal(t, "50051", cfg.GRPCPort)

	// Store
	assert.Equal(t, driverMongo, cfg.DBDriver)
	assert.Equal(t, "mongodb://localhost:27017", cfg.MongoURI)
	assert.Equal(t, "backendProject", cfg.MongoDB)
	assert.Equal(t, "User", cfg.MongoCollection)
	assert.Equal(t, "localhost", cfg.PGHost)
	assert.Equal(t, 5432, cfg.PGPort)
	assert.Equal(t, "user", cfg.PGUser)
	assert.Equal(t, "password", cfg.PGPassword)
	assert.Equal(t, "database", cfg.PGDB)
	assert.Equal(t, "users", cfg.PGTable)
	assert.Equal(t, 16, cfg.PGMaxOpenConns)
	assert.Equal(t, 8, cfg.PGMaxIdleConns)

	// Lock
	assert.False(t, cfg.LockEnabled)
	assert.Equal(t, "localhost", cfg.RedisHost)
	assert.Equal(t, 6379, cfg.RedisPort)
	assert.Equal(t, 0, cfg.RedisDB)
	assert.Empty(t, cfg.RedisPassword)
	assert.Equal(t, 30*time.Second, cfg.LockTTL)
	assert.Equal(t, 60*time.Second, cfg.LockWait)

	// Events
	assert.Empty(t, cfg.KafkaBrokers)
	assert.Equal(t, "user-bootstrap", cfg.KafkaTopic)

	// Seed
	assert.Equal(t, services.SeedConfig{
		Enabled:  true,
		Mode:     services.SeedModeSkip,
		Username: "admin",
		Email:    "admin@example.com",
		Password: "admin123",
		Roles:    []string{models.RoleAdmin, models.RoleUser},
	}, cfg.Seed)

	// JWT
	assert.Equal(t, "my_super_secret_key", cfg.JWTSecretKey)
	assert.False(t, cfg.JWTSecretBase64)
}

func TestParseConfig_CustomEnv(t *testing.T) {
	resetEnv()
	os.Setenv("APP_HOST", "127.0.0.1")
	os.Setenv("APP_PORT", "9090")
	os.Setenv("APP_LOG_LEVEL", "debug")
	os.Setenv("APP_SERVE", "true")
	os.Setenv("GRPC_PORT", "50052")

	os.Setenv("DB_DRIVER", "Postgres")
	os.Setenv("POSTGRES_HOST", "pg.example.com")
	os.Setenv("POSTGRES_PORT", "5433")
	os.Setenv("POSTGRES_USER", "admin")
	os.Setenv("POSTGRES_PASSWORD", "secret")
	os.Setenv("POSTGRES_DB", "mydb")
	os.Setenv("POSTGRES_TABLE", "accounts")
	os.Setenv("POSTGRES_MAX_OPEN_CONNS", "20")
	os.Setenv("POSTGRES_MAX_IDLE_CONNS", "10")

	os.Setenv("LOCK_ENABLED", "1")
	os.Setenv("REDIS_HOST", "redis.example.com")
	os.Setenv("REDIS_PORT", "6380")
	os.Setenv("REDIS_DB", "2")
	os.Setenv("REDIS_PASSWORD", "redispass")
	os.Setenv("LOCK_TTL_SECOND", "10")
	os.Setenv("LOCK_WAIT_SECOND", "5")

	os.Setenv("KAFKA_BROKERS", "kafka-1:9092, kafka-2:9092,")
	os.Setenv("KAFKA_TOPIC", "bootstrap-events")

	os.Setenv("SEED_MODE", "STRICT")
	os.Setenv("SEED_ADMIN_USERNAME", "root")
	os.Setenv("SEED_ADMIN_EMAIL", "root@example.com")
	os.Setenv("SEED_ADMIN_PASSWORD_HASH", "$2a$12$hash")
	os.Setenv("SEED_ADMIN_ROLES", "ADMIN")

	os.Setenv("JWT_SECRET_KEY", "supersecret")
	os.Setenv("JWT_SECRET_BASE64", "true")

	cfg, err := parseConfig("nonexistent.env")
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1", cfg.AppHost)
	assert.Equal(t, "9090", cfg.AppPort)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.True(t, cfg.Serve)
	assert.Equal(t, "50052", cfg.GRPCPort)

	assert.Equal(t, driverPostgres, cfg.DBDriver)
	assert.Equal(t, "pg.example.com", cfg.PGHost)
	assert.Equal(t, 5433, cfg.PGPort)
	assert.Equal(t, "admin", cfg.PGUser)
	assert.Equal(t, "secret", cfg.PGPassword)
	assert.Equal(t, "mydb", cfg.PGDB)
	assert.Equal(t, "accounts", cfg.PGTable)
	assert.Equal(t, 20, cfg.PGMaxOpenConns)
	assert.Equal(t, 10, cfg.PGMaxIdleConns)
	assert.Equal(t, "mydb.accounts", namespace(cfg))

	assert.True(t, cfg.LockEnabled)
	assert.Equal(t, "redis.example.com", cfg.RedisHost)
	assert.Equal(t, 6380, cfg.RedisPort)
	assert.Equal(t, 2, cfg.RedisDB)
	assert.Equal(t, "redispass", cfg.RedisPassword)
	assert.Equal(t, 10*time.Second, cfg.LockTTL)
	assert.Equal(t, 5*time.Second, cfg.LockWait)

	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, "bootstrap-events", cfg.KafkaTopic)

	assert.Equal(t, services.SeedModeStrict, cfg.Seed.Mode)
	assert.Equal(t, "root", cfg.Seed.Username)
	assert.Equal(t, "root@example.com", cfg.Seed.Email)
	assert.Equal(t, "$2a$12$hash", cfg.Seed.PasswordHash)
	assert.Equal(t, []string{"ADMIN"}, cfg.Seed.Roles)

	assert.Equal(t, "supersecret", cfg.JWTSecretKey)
	assert.True(t, cfg.JWTSecretBase64)
}

func TestParseConfig_FromFile(t *testing.T) {
	resetEnv()

	path := t.TempDir() + "/config.env"
	content := "MONGO_DB=fromfile\nMONGO_COLLECTION=FromFile\nSEED_ENABLED=false\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	// Real environment wins over the file.
	os.Setenv("MONGO_COLLECTION", "People")

	cfg, err := parseConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "fromfile", cfg.MongoDB)
	assert.Equal(t, "People", cfg.MongoCollection)
	assert.False(t, cfg.Seed.Enabled)
	assert.Equal(t, "fromfile.People", namespace(cfg))
}

func TestParseConfig_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{"bad postgres port", "POSTGRES_PORT", "abc"},
		{"bad redis db", "REDIS_DB", "x"},
		{"bad lock ttl", "LOCK_TTL_SECOND", "1.5"},
		{"bad serve flag", "APP_SERVE", "maybe"},
		{"bad seed enabled", "SEED_ENABLED", "yes please"},
		{"bad seed mode", "SEED_MODE", "overwrite"},
		{"bad driver", "DB_DRIVER", "sqlite"},
		{"bad jwt base64 flag", "JWT_SECRET_BASE64", "maybe"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resetEnv()
			os.Setenv(tt.key, tt.value)

			_, err := parseConfig("nonexistent.env")
			assert.Error(t, err)
		})
	}
}

func TestParseConfig_InvalidSeedModeIsTyped(t *testing.T) {
	resetEnv()
	os.Setenv("SEED_MODE", "overwrite")

	_, err := parseConfig("nonexistent.env")
	assert.ErrorIs(t, err, services.ErrInvalidSeedMode)
}

func TestSplitList(t *testing.T) {
	assert.Nil(t, splitList(""))
	assert.Nil(t, splitList(" , "))
	assert.Equal(t, []string{"a", "b"}, splitList("a, b"))
}

func TestPrintReport(t *testing.T) {
	report := &models.Report{
		RunID:  "run-1",
		Driver: driverMongo,
		Seed:   models.SeedResult{Username: "admin", Email: "admin@example.com", Status: models.SeedStatusInserted},
		Indexes: []models.IndexInfo{
			{Name: "_id_", Keys: []models.IndexKey{{Field: "_id", Direction: 1}}},
		},
		Stats: &models.CollectionStats{Namespace: "backendProject.User", Count: 1},
	}

	var buf bytes.Buffer
	require.NoError(t, printReport(&buf, report))

	var decoded models.Report
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, "run-1", decoded.RunID)
	assert.Equal(t, models.SeedStatusInserted, decoded.Seed.Status)
	assert.Equal(t, "backendProject.User", decoded.Stats.Namespace)
	assert.Contains(t, buf.String(), "\n  \"runId\"")
}

func TestRun_InvalidLogLevel(t *testing.T) {
	err := run(context.Background(), config{LogLevel: "loud", DBDriver: driverMongo})
	assert.Error(t, err)
}

func TestRun_UnknownDriver(t *testing.T) {
	err := run(context.Background(), config{LogLevel: "info", DBDriver: "sqlite"})
	assert.ErrorIs(t, err, errUnknownDriver)
}

type stubReports struct {
	report *models.Report
}

func (s *stubReports) LastReport() *models.Report {
	return s.report
}

type stubRoles map[string][]string

func (s stubRoles) FindRolesByUsername(_ context.Context, username string) ([]string, error) {
	roles, ok := s[username]
	if !ok {
		return nil, models.ErrUserNotFound
	}
	return roles, nil
}

func TestNewRouter(t *testing.T) {
	cfg := config{AppHost: "localhost", AppPort: "8080", JWTSecretKey: "router-secret"}
	reports := &stubReports{}
	roles := stubRoles{
		"admin": {models.RoleAdmin, models.RoleUser},
		"alice": {models.RoleUser},
	}
	router := newRouter(cfg, reports, roles)

	tokener := jwt.New(jwt.WithSecretKey(cfg.JWTSecretKey))
	adminToken, err := tokener.Generate(context.Background(), "admin", models.RoleAdmin)
	require.NoError(t, err)
	userToken, err := tokener.Generate(context.Background(), "alice", models.RoleUser)
	require.NoError(t, err)
	subjectOnlyToken, err := tokener.Generate(context.Background(), "admin")
	require.NoError(t, err)
	forgedToken, err := tokener.Generate(context.Background(), "alice", models.RoleAdmin)
	require.NoError(t, err)
	strangerToken, err := tokener.Generate(context.Background(), "mallory", models.RoleAdmin)
	require.NoError(t, err)

	do := func(path, token string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)
		return rr
	}

	// Before the bootstrap completes.
	assert.Equal(t, http.StatusServiceUnavailable, do("/healthz", "").Code)
	assert.Equal(t, http.StatusServiceUnavailable, do("/report", adminToken).Code)

	reports.report = &models.Report{RunID: "run-7", Driver: driverMongo}

	rr := do("/healthz", "")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "run-7")
	assert.NotEmpty(t, rr.Header().Get("X-Request-ID"))

	assert.Equal(t, http.StatusUnauthorized, do("/report", "").Code)
	assert.Equal(t, http.StatusForbidden, do("/report", userToken).Code)
	assert.Equal(t, http.StatusForbidden, do("/report", forgedToken).Code)
	assert.Equal(t, http.StatusForbidden, do("/report", strangerToken).Code)
	assert.Equal(t, http.StatusOK, do("/report", subjectOnlyToken).Code)

	rr = do("/report", adminToken)
	assert.Equal(t, http.StatusOK, rr.Code)
	var got models.Report
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &got))
	assert.Equal(t, "run-7", got.RunID)

	rr = do("/swagger/doc.json", "")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "/report")
}

func TestNewRouter_Base64Secret(t *testing.T) {
	secret := []byte("0123456789abcdef0123456789abcdef")
	cfg := config{
		JWTSecretKey:    base64.StdEncoding.EncodeToString(secret),
		JWTSecretBase64: true,
	}
	reports := &stubReports{report: &models.Report{RunID: "run-8"}}
	router := newRouter(cfg, reports, stubRoles{"admin": {models.RoleAdmin}})

	// Issued elsewhere with the raw key and only the subject claim.
	token, err := gojwt.NewWithClaims(gojwt.SigningMethodHS256, gojwt.RegisteredClaims{
		Subject:   "admin",
		ExpiresAt: gojwt.NewNumericDate(time.Now().Add(time.Hour)),
	}).SignedString(secret)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/report", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "run-8")
}

// ------------------ Full integration test ------------------
func TestRun_Mongo(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "mongo:7",
		ExposedPorts: []string{"27017/tcp"},
		WaitingFor:   wait.ForListeningPort("27017/tcp"),
	}
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{ContainerRequest: req, Started: true})
	require.NoError(t, err)
	defer container.Terminate(ctx)

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "27017")
	require.NoError(t, err)
	uri := "mongodb://" + host + ":" + port.Port()

	cfg := config{
		LogLevel:        "debug",
		DBDriver:        driverMongo,
		MongoURI:        uri,
		MongoDB:         "backendProject",
		MongoCollection: "User",
		Seed: services.SeedConfig{
			Enabled:  true,
			Mode:     services.SeedModeSkip,
			Username: "admin",
			Email:    "admin@example.com",
			Password: "admin123",
			Roles:    []string{models.RoleAdmin, models.RoleUser},
		},
	}

	testCtx, cancel := context.WithTimeout(ctx, 60*time.Second)
	defer cancel()

	var runErr error
	output := captureStdout(t, func() { runErr = run(testCtx, cfg) })
	require.NoError(t, runErr)

	var report models.Report
	require.NoError(t, json.Unmarshal([]byte(output), &report))
	assert.Equal(t, models.SeedStatusInserted, report.Seed.Status)
	assert.Len(t, report.Indexes, 5)
	assert.Equal(t, "backendProject.User", report.Stats.Namespace)

	// Second run in skip mode is a no-op.
	output = captureStdout(t, func() { runErr = run(testCtx, cfg) })
	require.NoError(t, runErr)
	require.NoError(t, json.Unmarshal([]byte(output), &report))
	assert.Equal(t, models.SeedStatusSkipped, report.Seed.Status)

	// Strict mode fails on the existing seed user.
	cfg.Seed.Mode = services.SeedModeStrict
	_ = captureStdout(t, func() { runErr = run(testCtx, cfg) })
	assert.ErrorIs(t, runErr, services.ErrSeedUserExists)

	client, err := mongo.Connect(testCtx, options.Client().ApplyURI(uri))
	require.NoError(t, err)
	defer client.Disconnect(testCtx)

	count, err := client.Database("backendProject").Collection("User").CountDocuments(testCtx, bson.D{})
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestRun_Postgres(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "postgres:15-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "user",
			"POSTGRES_PASSWORD": "password",
			"POSTGRES_DB":       "database",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{ContainerRequest: req, Started: true})
	require.NoError(t, err)
	defer container.Terminate(ctx)

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5432")
	require.NoError(t, err)

	cfg := config{
		LogLevel:       "debug",
		DBDriver:       driverPostgres,
		PGHost:         host,
		PGPort:         port.Int(),
		PGUser:         "user",
		PGPassword:     "password",
		PGDB:           "database",
		PGTable:        "users",
		PGMaxOpenConns: 4,
		PGMaxIdleConns: 2,
		Seed: services.SeedConfig{
			Enabled:  true,
			Mode:     services.SeedModeSkip,
			Username: "admin",
			Email:    "admin@example.com",
			Password: "admin123",
			Roles:    []string{models.RoleAdmin, models.RoleUser},
		},
	}

	testCtx, cancel := context.WithTimeout(ctx, 60*time.Second)
	defer cancel()

	var runErr error
	output := captureStdout(t, func() { runErr = run(testCtx, cfg) })
	require.NoError(t, runErr)

	var report models.Report
	require.NoError(t, json.Unmarshal([]byte(output), &report))
	assert.Equal(t, models.SeedStatusInserted, report.Seed.Status)
	assert.Len(t, report.Indexes, 5)
	assert.Equal(t, "public.users", report.Stats.Namespace)

	// Second run in skip mode is a no-op.
	output = captureStdout(t, func() { runErr = run(testCtx, cfg) })
	require.NoError(t, runErr)
	require.NoError(t, json.Unmarshal([]byte(output), &report))
	assert.Equal(t, models.SeedStatusSkipped, report.Seed.Status)

	// Strict mode fails on the existing seed user.
	cfg.Seed.Mode = services.SeedModeStrict
	_ = captureStdout(t, func() { runErr = run(testCtx, cfg) })
	assert.ErrorIs(t, runErr, services.ErrSeedUserExists)

	db, err := sqlx.Connect("pgx", fmt.Sprintf(
		"host=%s port=%d user=user password=password dbname=database sslmode=disable",
		host, port.Int(),
	))
	require.NoError(t, err)
	defer db.Close()

	var count int
	require.NoError(t, db.GetContext(testCtx, &count, "SELECT COUNT(*) FROM users"))
	assert.Equal(t, 1, count)
}
