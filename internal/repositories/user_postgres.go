package repositories

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jmoiron/sqlx"
	"github.com/sbilibin2017/user-bootstrap/internal/logger"
	"github.com/sbilibin2017/user-bootstrap/internal/models"
)

// uniqueViolation is the SQLSTATE of a unique constraint violation.
const uniqueViolation = "23505"

// columnByField maps document field names to table columns.
var columnByField = map[string]string{
	"userId":        "user_id",
	"username":      "username",
	"email":         "email",
	"password":      "password",
	"roles":         "roles",
	"profilePicUrl": "profile_pic_url",
	"createdAt":     "created_at",
	"updatedAt":     "updated_at",
	"createdBy":     "created_by",
	"updatedBy":     "updated_by",
	"deletedBy":     "deleted_by",
}

// UserPostgresRepository manages the users table in PostgreSQL.
type UserPostgresRepository struct {
	db    *sqlx.DB
	name  string // raw table name
	table string // quoted table identifier
}

func NewUserPostgresRepository(db *sqlx.DB, table string) *UserPostgresRepository {
	return &UserPostgresRepository{
		db:    db,
		name:  table,
		table: pgx.Identifier{table}.Sanitize(),
	}
}

// EnsureCollection creates the users table if it does not exist.
func (r *UserPostgresRepository) EnsureCollection(ctx context.Context) error {
	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id UUID PRIMARY KEY,
			user_id TEXT NOT NULL,
			username TEXT NOT NULL,
			email TEXT NOT NULL,
			password TEXT NOT NULL,
			roles JSONB NOT NULL DEFAULT '["USER"]',
			profile_pic_url TEXT,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			audit_created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			audit_updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			audit_deleted_at TIMESTAMPTZ,
			created_by TEXT NOT NULL DEFAULT 'system',
			updated_by TEXT NOT NULL DEFAULT 'system',
			deleted_by TEXT
		)
	`, r.table)

	_, err := r.db.ExecContext(ctx, query)
	logQuery(query, nil, nil, err)

	return err
}

// EnsureIndexes creates the indexes in a single transaction. Each index is
// named "<table>_<field>_1[...]" and created with IF NOT EXISTS.
func (r *UserPostgresRepository) EnsureIndexes(ctx context.Context, specs []models.IndexSpec) ([]string, error) {
	statements := make([]string, 0, len(specs))
	names := make([]string, 0, len(specs))
	for _, spec := range specs {
		columns := make([]string, 0, len(spec.Fields))
		for _, field := range spec.Fields {
			column, ok := columnByField[field]
			if !ok {
				return nil, fmt.Errorf("unknown index field %q", field)
			}
			columns = append(columns, pgx.Identifier{column}.Sanitize())
		}

		unique := ""
		if spec.Unique {
			unique = "UNIQUE "
		}
		name := r.name + "_" + spec.Name()
		statements = append(statements, fmt.Sprintf(
			"CREATE %sINDEX IF NOT EXISTS %s ON %s (%s)",
			unique, pgx.Identifier{name}.Sanitize(), r.table, strings.Join(columns, ", "),
		))
		names = append(names, name)
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		logger.Log.Errorw("failed to begin transaction", "error", err)
		return nil, err
	}

	for _, stmt := range statements {
		_, err := tx.ExecContext(ctx, stmt)
		logQuery(stmt, nil, nil, err)
		if err != nil {
			_ = tx.Rollback()
			return nil, fmt.Errorf("failed to create indexes: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		logger.Log.Errorw("failed to commit transaction", "error", err)
		return nil, err
	}

	return names, nil
}

// ExistsByUsernameOrEmail reports whether any user has the username or the email.
func (r *UserPostgresRepository) ExistsByUsernameOrEmail(ctx context.Context, username, email string) (bool, error) {
	query := fmt.Sprintf(`SELECT EXISTS (SELECT 1 FROM %s WHERE username = $1 OR email = $2)`, r.table)
	args := []any{username, email}

	var exists bool
	err := r.db.GetContext(ctx, &exists, query, args...)
	logQuery(query, args, exists, err)

	return exists, err
}

// Insert stores the user, generating a UUID primary key when ID is empty.
// A unique index violation yields models.ErrDuplicateUser.
func (r *UserPostgresRepository) Insert(ctx context.Context, user *models.User) error {
	roles, err := json.Marshal(user.Roles)
	if err != nil {
		return err
	}

	id := user.ID
	if id == "" {
		id = uuid.New().String()
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (
			id, user_id, username, email, password, roles, profile_pic_url,
			created_at, updated_at, audit_created_at, audit_updated_at, audit_deleted_at,
			created_by, updated_by, deleted_by
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`, r.table)
	args := []any{
		id, user.UserID, user.Username, user.Email, user.Password, string(roles), user.ProfilePicURL,
		user.CreatedAt, user.UpdatedAt, user.AuditDateTime.CreatedAt, user.AuditDateTime.UpdatedAt, user.AuditDateTime.DeletedAt,
		user.CreatedBy, user.UpdatedBy, user.DeletedBy,
	}

	res, err := r.db.ExecContext(ctx, query, args...)
	var rowsAffected int64
	if res != nil {
		rowsAffected, _ = res.RowsAffected()
	}
	// Never log the password hash.
	logQuery(query, []any{id, user.Username, user.Email}, rowsAffected, err)

	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return fmt.Errorf("%w: %s", models.ErrDuplicateUser, pgErr.ConstraintName)
		}
		return err
	}

	user.ID = id
	return nil
}

// FindRolesByUsername returns the roles granted to the user.
func (r *UserPostgresRepository) FindRolesByUsername(ctx context.Context, username string) ([]string, error) {
	query := fmt.Sprintf(`SELECT roles FROM %s WHERE username = $1`, r.table)
	args := []any{username}

	var raw []byte
	err := r.db.GetContext(ctx, &raw, query, args...)
	logQuery(query, args, string(raw), err)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}

	var roles []string
	if err := json.Unmarshal(raw, &roles); err != nil {
		return nil, fmt.Errorf("decode roles of %q: %w", username, err)
	}
	return roles, nil
}

type pgIndex struct {
	Name       string `db:"indexname"`
	Definition string `db:"indexdef"`
}

// ListIndexes returns every index on the table, including the primary key.
func (r *UserPostgresRepository) ListIndexes(ctx context.Context) ([]models.IndexInfo, error) {
	const query = `
		SELECT indexname, indexdef
		FROM pg_indexes
		WHERE schemaname = current_schema() AND tablename = $1
		ORDER BY indexname
	`

	var raw []pgIndex
	err := r.db.SelectContext(ctx, &raw, query, r.name)
	logQuery(query, []any{r.name}, len(raw), err)
	if err != nil {
		return nil, err
	}

	indexes := make([]models.IndexInfo, 0, len(raw))
	for _, idx := range raw {
		indexes = append(indexes, parseIndexDefinition(idx.Name, idx.Definition))
	}
	return indexes, nil
}

type pgTableStats struct {
	Namespace      string `db:"ns"`
	Count          int64  `db:"count"`
	Size           int64  `db:"size"`
	StorageSize    int64  `db:"storage_size"`
	TotalIndexSize int64  `db:"total_index_size"`
	IndexCount     int64  `db:"nindexes"`
}

// Stats reports row count and on-disk sizes of the table.
func (r *UserPostgresRepository) Stats(ctx context.Context) (*models.CollectionStats, error) {
	query := fmt.Sprintf(`
		SELECT
			current_schema() || '.' || $1::text AS ns,
			(SELECT COUNT(*) FROM %s) AS count,
			pg_relation_size($2::text::regclass) AS size,
			pg_total_relation_size($2::text::regclass) AS storage_size,
			pg_indexes_size($2::text::regclass) AS total_index_size,
			(SELECT COUNT(*) FROM pg_indexes WHERE schemaname = current_schema() AND tablename = $1) AS nindexes
	`, r.table)
	args := []any{r.name, r.table}

	var raw pgTableStats
	err := r.db.GetContext(ctx, &raw, query, args...)
	logQuery(query, args, raw, err)
	if err != nil {
		return nil, err
	}

	return &models.CollectionStats{
		Namespace:      raw.Namespace,
		Count:          raw.Count,
		Size:           raw.Size,
		StorageSize:    raw.StorageSize,
		TotalIndexSize: raw.TotalIndexSize,
		IndexCount:     raw.IndexCount,
	}, nil
}

// parseIndexDefinition extracts uniqueness and key columns from a pg_indexes
// definition such as
// `CREATE UNIQUE INDEX users_username_1 ON public.users USING btree (username)`.
func parseIndexDefinition(name, def string) models.IndexInfo {
	info := models.IndexInfo{
		Name:   name,
		Unique: strings.HasPrefix(def, "CREATE UNIQUE INDEX"),
	}

	open, end := strings.LastIndex(def, "("), strings.LastIndex(def, ")")
	if open < 0 || end <= open {
		return info
	}

	for _, part := range strings.Split(def[open+1:end], ",") {
		part = strings.TrimSpace(part)
		direction := 1
		if strings.HasSuffix(part, " DESC") {
			direction = -1
			part = strings.TrimSuffix(part, " DESC")
		}
		column := strings.Trim(part, `"`)
		info.Keys = append(info.Keys, models.IndexKey{Field: fieldForColumn(column), Direction: direction})
	}
	return info
}

func fieldForColumn(column string) string {
	for field, c := range columnByField {
		if c == column {
			return field
		}
	}
	return column
}

// logQuery logs the query on a single line with its args, result and error.
func logQuery(query string, args []any, result any, err error) {
	logger.Log.Infow(
		"query",
		"query", strings.Join(strings.Fields(query), " "),
		"args", args,
		"result", result,
		"error", err,
	)
}
