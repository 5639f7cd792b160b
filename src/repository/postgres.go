package repository

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"

	app "memcap/src/app"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const uniqueViolation = "23505"

// PostgresDB stores photos and accounts in PostgreSQL (DB_DRIVER=postgres).
type PostgresDB struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

// Connect opens a pool and pings the server.
func Connect(ctx context.Context, dsn string, log *logrus.Entry) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	log.WithFields(logrus.Fields{
		"host":     poolCfg.ConnConfig.Host,
		"database": poolCfg.ConnConfig.Database,
	}).Info("connected to postgres")
	return pool, nil
}

// Migrate applies the embedded migrations.
func Migrate(dsn string, log *logrus.Entry) error {
	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("open migrations: %w", err)
	}
	m, err := migrate.NewWithSourceInstance("iofs", source, migrationURL(dsn))
	if err != nil {
		return fmt.Errorf("init migrations: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", err)
	}
	version, dirty, _ := m.Version()
	log.WithFields(logrus.Fields{"version": version, "dirty": dirty}).Info("migrations applied")
	return nil
}

// migrationURL rewrites a postgres:// DSN to the pgx5:// scheme of the migrate driver.
func migrationURL(dsn string) string {
	for _, scheme := range []string{"postgres://", "postgresql://"} {
		if strings.HasPrefix(dsn, scheme) {
			return "pgx5://" + strings.TrimPrefix(dsn, scheme)
		}
	}
	return dsn
}

// OpenPostgres connects, migrates and returns the store.
func OpenPostgres(ctx context.Context, dsn string, log *logrus.Entry) (*PostgresDB, error) {
	if err := Migrate(dsn, log); err != nil {
		return nil, err
	}
	pool, err := Connect(ctx, dsn, log)
	if err != nil {
		return nil, err
	}
	return NewPostgresDB(pool), nil
}

func NewPostgresDB(pool *pgxpool.Pool) *PostgresDB {
	return &PostgresDB{pool: pool, now: time.Now}
}

func (p *PostgresDB) Insert(ctx context.Context, rec *app.PhotoRecord) (*app.PhotoRecord, error) {
	stored := *rec
	stored.ID = uuid.NewString()
	stored.CreatedAt = p.now().UTC()
	_, err := p.pool.Exec(ctx,
		`INSERT INTO photos (id, user_id, file_path, created_at, album_id, status) VALUES ($1, $2, $3, $4, $5, $6)`,
		stored.ID, stored.UserID, stored.StoragePath, stored.CreatedAt, stored.AlbumID, stored.Status)
	if err != nil {
		return nil, fmt.Errorf("insert photo: %w", err)
	}
	return &stored, nil
}

const photoColumns = `id, user_id, file_path, created_at, album_id, status`

func (p *PostgresDB) ListByUser(ctx context.Context, userID string) ([]*app.PhotoRecord, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT `+photoColumns+` FROM photos WHERE user_id = $1 ORDER BY created_at DESC, id DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("list photos: %w", err)
	}
	defer rows.Close()

	result := make([]*app.PhotoRecord, 0)
	for rows.Next() {
		rec, err := scanPhoto(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, rec)
	}
	return result, rows.Err()
}

func (p *PostgresDB) GetOwned(ctx context.Context, id, userID string) (*app.PhotoRecord, error) {
	row := p.pool.QueryRow(ctx,
		`SELECT `+photoColumns+` FROM photos WHERE id = $1 AND user_id = $2`, id, userID)
	rec, err := scanPhoto(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, app.ErrNotFound
	}
	return rec, err
}

func (p *PostgresDB) SetStatus(ctx context.Context, id, status string) error {
	tag, err := p.pool.Exec(ctx, `UPDATE photos SET status = $2 WHERE id = $1`, id, status)
	if err != nil {
		return fmt.Errorf("update photo status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return app.ErrNotFound
	}
	return nil
}

func (p *PostgresDB) Delete(ctx context.Context, id, userID string) error {
	tag, err := p.pool.Exec(ctx, `DELETE FROM photos WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return fmt.Errorf("delete photo: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return app.ErrNotFound
	}
	return nil
}

func (p *PostgresDB) ExistsByPath(ctx context.Context, storagePath string) (bool, error) {
	var exists bool
	err := p.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM photos WHERE file_path = $1)`, storagePath).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("lookup photo path: %w", err)
	}
	return exists, nil
}

func (p *PostgresDB) CreateAccount(ctx context.Context, acc *app.Account) (*app.Account, error) {
	stored := *acc
	stored.ID = uuid.NewString()
	stored.Email = strings.ToLower(acc.Email)
	stored.CreatedAt = p.now().UTC()
	_, err := p.pool.Exec(ctx,
		`INSERT INTO users (id, email, password_hash, display_name, created_at) VALUES ($1, $2, $3, $4, $5)`,
		stored.ID, stored.Email, stored.PasswordHash, stored.DisplayName, stored.CreatedAt)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return nil, app.ErrAccountExists
	}
	if err != nil {
		return nil, fmt.Errorf("insert account: %w", err)
	}
	return &stored, nil
}

const accountColumns = `id, email, password_hash, display_name, created_at`

func (p *PostgresDB) AccountByEmail(ctx context.Context, email string) (*app.Account, error) {
	row := p.pool.QueryRow(ctx, `SELECT `+accountColumns+` FROM users WHERE email = $1`, strings.ToLower(email))
	return scanAccount(row)
}

func (p *PostgresDB) AccountByID(ctx context.Context, id string) (*app.Account, error) {
	row := p.pool.QueryRow(ctx, `SELECT `+accountColumns+` FROM users WHERE id = $1`, id)
	return scanAccount(row)
}

func (p *PostgresDB) Close() error {
	p.pool.Close()
	return nil
}

// scanner is the Scan half of pgx.Row and *sql.Row.
type scanner interface {
	Scan(dest ...any) error
}

func scanPhoto(row scanner) (*app.PhotoRecord, error) {
	rec := &app.PhotoRecord{}
	if err := row.Scan(&rec.ID, &rec.UserID, &rec.StoragePath, &rec.CreatedAt, &rec.AlbumID, &rec.Status); err != nil {
		return nil, err
	}
	return rec, nil
}

func scanAccount(row scanner) (*app.Account, error) {
	acc := &app.Account{}
	err := row.Scan(&acc.ID, &acc.Email, &acc.PasswordHash, &acc.DisplayName, &acc.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, app.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan account: %w", err)
	}
	return acc, nil
}
