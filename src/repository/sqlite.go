package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mattn/go-sqlite3"

	app "memcap/src/app"
)

// SQLiteDB is the single-file store (DB_DRIVER=sqlite).
type SQLiteDB struct {
	db  *sql.DB
	now func() time.Time
}

func OpenSQLite(path string) (*SQLiteDB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(time.Hour)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}
	if err := createTables(db); err != nil {
		db.Close()
		return nil, err
	}
	return &SQLiteDB{db: db, now: time.Now}, nil
}

func createTables(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		email TEXT NOT NULL UNIQUE,
		password_hash TEXT NOT NULL,
		display_name TEXT NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS photos (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		file_path TEXT NOT NULL,
		created_at DATETIME NOT NULL,
		album_id TEXT,
		status TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_photos_user ON photos(user_id, created_at);
	CREATE INDEX IF NOT EXISTS idx_photos_path ON photos(file_path);
	`
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create tables: %w", err)
	}
	return nil
}

func (s *SQLiteDB) Insert(ctx context.Context, rec *app.PhotoRecord) (*app.PhotoRecord, error) {
	stored := *rec
	stored.ID = uuid.NewString()
	stored.CreatedAt = s.now().UTC()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO photos (id, user_id, file_path, created_at, album_id, status) VALUES (?, ?, ?, ?, ?, ?)`,
		stored.ID, stored.UserID, stored.StoragePath, stored.CreatedAt, stored.AlbumID, stored.Status)
	if err != nil {
		return nil, fmt.Errorf("insert photo: %w", err)
	}
	return &stored, nil
}

func (s *SQLiteDB) ListByUser(ctx context.Context, userID string) ([]*app.PhotoRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+photoColumns+` FROM photos WHERE user_id = ? ORDER BY created_at DESC, rowid DESC`, userID)
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

func (s *SQLiteDB) GetOwned(ctx context.Context, id, userID string) (*app.PhotoRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+photoColumns+` FROM photos WHERE id = ? AND user_id = ?`, id, userID)
	rec, err := scanPhoto(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, app.ErrNotFound
	}
	return rec, err
}

func (s *SQLiteDB) SetStatus(ctx context.Context, id, status string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE photos SET status = ? WHERE id = ?`, status, id)
	if err != nil {
		return fmt.Errorf("update photo status: %w", err)
	}
	return affectedOne(res)
}

func (s *SQLiteDB) Delete(ctx context.Context, id, userID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM photos WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return fmt.Errorf("delete photo: %w", err)
	}
	return affectedOne(res)
}

func affectedOne(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return app.ErrNotFound
	}
	return nil
}

func (s *SQLiteDB) ExistsByPath(ctx context.Context, storagePath string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM photos WHERE file_path = ?)`, storagePath).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("lookup photo path: %w", err)
	}
	return exists, nil
}

func (s *SQLiteDB) CreateAccount(ctx context.Context, acc *app.Account) (*app.Account, error) {
	stored := *acc
	stored.ID = uuid.NewString()
	stored.Email = strings.ToLower(acc.Email)
	stored.CreatedAt = s.now().UTC()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users (id, email, password_hash, display_name, created_at) VALUES (?, ?, ?, ?, ?)`,
		stored.ID, stored.Email, stored.PasswordHash, stored.DisplayName, stored.CreatedAt)
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique {
		return nil, app.ErrAccountExists
	}
	if err != nil {
		return nil, fmt.Errorf("insert account: %w", err)
	}
	return &stored, nil
}

func (s *SQLiteDB) AccountByEmail(ctx context.Context, email string) (*app.Account, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+accountColumns+` FROM users WHERE email = ?`, strings.ToLower(email))
	return sqliteAccount(row)
}

func (s *SQLiteDB) AccountByID(ctx context.Context, id string) (*app.Account, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+accountColumns+` FROM users WHERE id = ?`, id)
	return sqliteAccount(row)
}

func sqliteAccount(row *sql.Row) (*app.Account, error) {
	acc, err := scanAccount(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, app.ErrNotFound
	}
	return acc, err
}

func (s *SQLiteDB) Close() error {
	return s.db.Close()
}
