package services

//go:generate mockgen -source=bootstrap.go -destination=mock_bootstrap.go -package=services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sbilibin2017/user-bootstrap/internal/logger"
	"github.com/sbilibin2017/user-bootstrap/internal/models"
	"golang.org/x/crypto/bcrypt"
)

// SeedPasswordCost is the bcrypt cost used when hashing the seed password.
const SeedPasswordCost = 12

// Error variables
var (
	ErrSeedUserExists    = errors.New("seed user already exists")
	ErrBootstrapLocked   = errors.New("bootstrap lock is held by another instance")
	ErrInvalidSeedMode   = errors.New("invalid seed mode")
	ErrEmptySeedPassword = errors.New("seed password or password hash is required")
)

// SeedMode controls what happens when the seed user is already present.
type SeedMode string

const (
	// SeedModeSkip leaves an existing seed user untouched.
	SeedModeSkip SeedMode = "skip"
	// SeedModeStrict inserts unconditionally and fails on a duplicate.
	SeedModeStrict SeedMode = "strict"
)

// ParseSeedMode converts a config value into a SeedMode.
func ParseSeedMode(s string) (SeedMode, error) {
	switch mode := SeedMode(strings.ToLower(strings.TrimSpace(s))); mode {
	case SeedModeSkip, SeedModeStrict:
		return mode, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidSeedMode, s)
	}
}

// SeedConfig describes the seed user.
type SeedConfig struct {
	Enabled      bool
	Mode         SeedMode
	Username     string
	Email        string
	Password     string
	PasswordHash string // used as is when set
	Roles        []string
}

// IndexManager defines collection and index operations.
type IndexManager interface {
	EnsureCollection(ctx context.Context) error
	EnsureIndexes(ctx context.Context, specs []models.IndexSpec) ([]string, error)
	ListIndexes(ctx context.Context) ([]models.IndexInfo, error)
}

// UserReader defines read-only operations for users.
type UserReader interface {
	ExistsByUsernameOrEmail(ctx context.Context, username, email string) (bool, error)
}

// UserWriter defines write operations for users.
type UserWriter interface {
	Insert(ctx context.Context, user *models.User) error
}

// StatsReader defines collection statistics retrieval.
type StatsReader interface {
	Stats(ctx context.Context) (*models.CollectionStats, error)
}

// Locker defines a single-holder lock.
type Locker interface {
	Acquire(ctx context.Context, key string) (string, bool, error)
	Release(ctx context.Context, key, token string) error
}

// EventPublisher defines publishing of bootstrap events.
type EventPublisher interface {
	PublishUserSeeded(ctx context.Context, event models.UserSeededEvent) error
}

// Option configures a BootstrapService.
type Option func(*BootstrapService)

// WithLocker serializes runs across instances through the locker.
func WithLocker(locker Locker, key string, wait time.Duration) Option {
	return func(svc *BootstrapService) {
		svc.locker = locker
		svc.lockKey = key
		svc.lockWait = wait
	}
}

// WithLockRetryInterval sets the delay between lock attempts.
func WithLockRetryInterval(d time.Duration) Option {
	return func(svc *BootstrapService) {
		svc.lockRetry = d
	}
}

// WithEventPublisher announces the seed insertion through the publisher.
func WithEventPublisher(publisher EventPublisher) Option {
	return func(svc *BootstrapService) {
		svc.publisher = publisher
	}
}

// WithRunID overrides the generated run id.
func WithRunID(runID string) Option {
	return func(svc *BootstrapService) {
		svc.runID = runID
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(svc *BootstrapService) {
		svc.now = now
	}
}

// BootstrapService creates the User collection indexes and the seed user.
type BootstrapService struct {
	driver  string
	indexes IndexManager
	reader  UserReader
	writer  UserWriter
	stats   StatsReader
	seed    SeedConfig

	locker    Locker
	lockKey   string
	lockWait  time.Duration
	lockRetry time.Duration
	publisher EventPublisher
	runID     string
	now       func() time.Time

	mu   sync.RWMutex
	last *models.Report
}

// NewBootstrapService creates a new BootstrapService instance.
func NewBootstrapService(
	driver string,
	indexes IndexManager,
	reader UserReader,
	writer UserWriter,
	stats StatsReader,
	seed SeedConfig,
	opts ...Option,
) *BootstrapService {
	svc := &BootstrapService{
		driver:    driver,
		indexes:   indexes,
		reader:    reader,
		writer:    writer,
		stats:     stats,
		seed:      seed,
		lockRetry: 500 * time.Millisecond,
		runID:     uuid.NewString(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

// RunID returns the id attached to this service's runs.
func (svc *BootstrapService) RunID() string {
	return svc.runID
}

// LastReport returns the report of the last successful run, or nil.
func (svc *BootstrapService) LastReport() *models.Report {
	svc.mu.RLock()
	defer svc.mu.RUnlock()
	return svc.last
}

// Run applies the index plan, seeds the admin user and collects the report.
func (svc *BootstrapService) Run(ctx context.Context) (*models.Report, error) {
	report := &models.Report{
		RunID:     svc.runID,
		Driver:    svc.driver,
		StartedAt: svc.now().UTC(),
	}
	logger.Log.Infow("bootstrap started", "driver", svc.driver)

	if svc.locker != nil {
		token, err := svc.acquireLock(ctx)
		if err != nil {
			logger.Log.Errorw("failed to acquire bootstrap lock", "key", svc.lockKey, "err", err)
			return nil, err
		}
		defer svc.releaseLock(ctx, token)
	}

	if err := svc.indexes.EnsureCollection(ctx); err != nil {
		logger.Log.Errorw("failed to ensure collection", "err", err)
		return nil, fmt.Errorf("ensure collection: %w", err)
	}

	created, err := svc.indexes.EnsureIndexes(ctx, models.UserIndexes)
	if err != nil {
		logger.Log.Errorw("failed to ensure indexes", "err", err)
		return nil, fmt.Errorf("ensure indexes: %w", err)
	}
	report.CreatedIndexes = created

	seed, err := svc.seedUser(ctx)
	if err != nil {
		return nil, err
	}
	report.Seed = seed

	indexes, err := svc.indexes.ListIndexes(ctx)
	if err != nil {
		logger.Log.Errorw("failed to list indexes", "err", err)
		return nil, fmt.Errorf("list indexes: %w", err)
	}
	report.Indexes = indexes

	stats, err := svc.stats.Stats(ctx)
	if err != nil {
		logger.Log.Errorw("failed to get collection stats", "err", err)
		return nil, fmt.Errorf("collection stats: %w", err)
	}
	report.Stats = stats
	report.FinishedAt = svc.now().UTC()

	svc.mu.Lock()
	svc.last = report
	svc.mu.Unlock()

	logger.Log.Infow("bootstrap completed",
		"indexes", len(indexes),
		"seed", seed.Status,
		"duration", report.FinishedAt.Sub(report.StartedAt),
	)
	return report, nil
}

func (svc *BootstrapService) seedUser(ctx context.Context) (models.SeedResult, error) {
	result := models.SeedResult{Username: svc.seed.Username, Email: svc.seed.Email}

	if !svc.seed.Enabled {
		result.Status = models.SeedStatusDisabled
		return result, nil
	}

	if svc.seed.Mode != SeedModeStrict {
		exists, err := svc.reader.ExistsByUsernameOrEmail(ctx, svc.seed.Username, svc.seed.Email)
		if err != nil {
			logger.Log.Errorw("failed to check seed user exists", "err", err)
			return result, fmt.Errorf("check seed user: %w", err)
		}
		if exists {
			logger.Log.Infow("seed user already exists, skipping", "username", svc.seed.Username, "email", svc.seed.Email)
			result.Status = models.SeedStatusSkipped
			return result, nil
		}
	}

	user, err := BuildSeedUser(svc.seed, svc.now())
	if err != nil {
		logger.Log.Errorw("failed to build seed user", "err", err)
		return result, err
	}

	if err := svc.writer.Insert(ctx, user); err != nil {
		if errors.Is(err, models.ErrDuplicateUser) {
			if svc.seed.Mode == SeedModeStrict {
				logger.Log.Errorw("seed user already exists", "username", user.Username, "email", user.Email)
				return result, fmt.Errorf("%w: %v", ErrSeedUserExists, err)
			}
			// Inserted by a concurrent run between the check and the insert.
			result.Status = models.SeedStatusSkipped
			return result, nil
		}
		logger.Log.Errorw("failed to insert seed user", "err", err)
		return result, fmt.Errorf("insert seed user: %w", err)
	}
	logger.Log.Infow("seed user inserted", "username", user.Username, "email", user.Email, "roles", user.Roles)

	svc.publishSeeded(ctx, user)

	result.Status = models.SeedStatusInserted
	return result, nil
}

func (svc *BootstrapService) publishSeeded(ctx context.Context, user *models.User) {
	if svc.publisher == nil {
		return
	}

	event := models.UserSeededEvent{
		RunID:    svc.runID,
		UserID:   user.UserID,
		Username: user.Username,
		Email:    user.Email,
		Roles:    user.Roles,
		SeededAt: user.CreatedAt,
	}
	if err := svc.publisher.PublishUserSeeded(ctx, event); err != nil {
		logger.Log.Errorw("failed to publish user seeded event", "username", user.Username, "err", err)
	}
}

func (svc *BootstrapService) acquireLock(ctx context.Context) (string, error) {
	waitCtx, cancel := context.WithTimeout(ctx, svc.lockWait)
	defer cancel()

	for {
		token, ok, err := svc.locker.Acquire(waitCtx, svc.lockKey)
		if err != nil {
			// The wait deadline may expire inside Acquire.
			if waitCtx.Err() != nil && ctx.Err() == nil {
				return "", ErrBootstrapLocked
			}
			return "", fmt.Errorf("acquire lock: %w", err)
		}
		if ok {
			logger.Log.Infow("bootstrap lock acquired", "key", svc.lockKey)
			return token, nil
		}

		logger.Log.Infow("bootstrap lock busy, waiting", "key", svc.lockKey, "retry", svc.lockRetry)
		select {
		case <-waitCtx.Done():
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			return "", ErrBootstrapLocked
		case <-time.After(svc.lockRetry):
		}
	}
}

func (svc *BootstrapService) releaseLock(ctx context.Context, token string) {
	releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	if err := svc.locker.Release(releaseCtx, svc.lockKey, token); err != nil {
		logger.Log.Errorw("failed to release bootstrap lock", "key", svc.lockKey, "err", err)
		return
	}
	logger.Log.Infow("bootstrap lock released", "key", svc.lockKey)
}

// BuildSeedUser builds the seed document. The password is hashed with bcrypt
// unless cfg.PasswordHash is set.
func BuildSeedUser(cfg SeedConfig, now time.Time) (*models.User, error) {
	hash := cfg.PasswordHash
	if hash == "" {
		if cfg.Password == "" {
			return nil, ErrEmptySeedPassword
		}
		hashed, err := bcrypt.GenerateFromPassword([]byte(cfg.Password), SeedPasswordCost)
		if err != nil {
			return nil, err
		}
		hash = string(hashed)
	}

	roles := cfg.Roles
	if len(roles) == 0 {
		roles = []string{models.RoleUser}
	}

	// BSON dates keep millisecond precision.
	now = now.UTC().Truncate(time.Millisecond)

	return &models.User{
		UserID:    models.NewUserID(cfg.Username, cfg.Email),
		Username:  cfg.Username,
		Email:     cfg.Email,
		Password:  hash,
		Roles:     roles,
		CreatedAt: now,
		UpdatedAt: now,
		AuditDateTime: models.AuditDateTime{
			CreatedAt: now,
			UpdatedAt: now,
		},
		CreatedBy: "system",
		UpdatedBy: "system",
	}, nil
}
