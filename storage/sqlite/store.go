package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/crypto/bcrypt"
	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"

	"github.com/giantswarm/oauth-login/instrumentation"
	"github.com/giantswarm/oauth-login/storage"
	"github.com/giantswarm/oauth-login/storage/sqlite/migrations"
)

// storageType is reported in span attributes
const storageType = "sqlite"

const accountColumns = `id, username, real_name, email, email_verified, approved,
	last_active, created_at, password_hash, provider_name, provider_user_id, provider_email`

// Store persists accounts in SQLite.
type Store struct {
	db     *sql.DB
	now    func() time.Time
	logger *slog.Logger

	instrumentation *instrumentation.Instrumentation
	tracer          trace.Tracer
}

// Compile-time interface checks
var (
	_ storage.AccountStore   = (*Store)(nil)
	_ storage.AccountCreator = (*Store)(nil)
)

// Open opens the database at path and applies the embedded migrations.
func Open(ctx context.Context, path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	dsn := filepath.Clean(path) + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// one writer keeps CreateAccount's check and insert serialized
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := applyMigrations(ctx, db, migrations.FS); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &Store{
		db:     db,
		now:    time.Now,
		logger: slog.Default(),
	}, nil
}

// Close closes the database handle.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// SetLogger sets a custom logger
func (s *Store) SetLogger(logger *slog.Logger) {
	if logger != nil {
		s.logger = logger
	}
}

// SetClock replaces the clock used for CreatedAt
func (s *Store) SetClock(now func() time.Time) {
	s.now = now
}

// SetInstrumentation enables spans and storage metrics.
func (s *Store) SetInstrumentation(inst *instrumentation.Instrumentation) {
	s.instrumentation = inst
	if inst != nil {
		s.tracer = inst.Tracer("storage")
	}
}

func toMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UTC().UnixMilli()
}

func fromMillis(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccount(row rowScanner) (*storage.Account, error) {
	var (
		acc                   storage.Account
		verified, approved    int
		lastActive, createdAt int64
	)
	err := row.Scan(
		&acc.ID, &acc.Username, &acc.RealName, &acc.Email, &verified, &approved,
		&lastActive, &createdAt, &acc.PasswordHash,
		&acc.Linkage.ProviderName, &acc.Linkage.ProviderUserID, &acc.Linkage.ProviderEmail,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrAccountNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan account: %w", err)
	}
	acc.EmailVerified = verified != 0
	acc.Approved = approved != 0
	acc.LastActive = fromMillis(lastActive)
	acc.CreatedAt = fromMillis(createdAt)
	return &acc, nil
}

// isConstraintError reports a UNIQUE or PRIMARY KEY violation.
func isConstraintError(err error) bool {
	var sqliteErr *msqlite.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	code := sqliteErr.Code()
	return code == sqlite3lib.SQLITE_CONSTRAINT_UNIQUE || code == sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY
}

// constraintError maps a constraint violation onto the storage sentinels.
func constraintError(err error) error {
	if !isConstraintError(err) {
		return err
	}
	if strings.Contains(err.Error(), "provider_name") {
		return storage.ErrIdentityAlreadyLinked
	}
	return storage.ErrAccountExists
}

func (s *Store) queryOne(ctx context.Context, operation, where string, args ...any) (acc *storage.Account, err error) {
	ctx, span := s.startStorageSpan(ctx, operation)
	defer span.End()
	defer func(start time.Time) { s.recordStorageOperation(ctx, span, operation, err, start) }(time.Now())

	row := s.db.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE `+where+` ORDER BY id LIMIT 1`, args...)
	return scanAccount(row)
}

// Find returns the account with id.
func (s *Store) Find(ctx context.Context, id string) (*storage.Account, error) {
	return s.queryOne(ctx, "find_account", `id = ?`, id)
}

// FindByProviderIdentity returns the account linked to (provider, providerUserID).
func (s *Store) FindByProviderIdentity(ctx context.Context, provider, providerUserID string) (*storage.Account, error) {
	if provider == "" || providerUserID == "" {
		return nil, storage.ErrAccountNotFound
	}
	return s.queryOne(ctx, "find_by_provider_identity",
		`provider_name = ? AND provider_user_id = ?`, provider, providerUserID)
}

// FindByEmail returns the account with email, ignoring case.
func (s *Store) FindByEmail(ctx context.Context, email string) (*storage.Account, error) {
	if email == "" {
		return nil, storage.ErrAccountNotFound
	}
	return s.queryOne(ctx, "find_by_email", `email = ?`, email)
}

// FindByUsername returns the account with username, ignoring case.
func (s *Store) FindByUsername(ctx context.Context, username string) (*storage.Account, error) {
	if username == "" {
		return nil, storage.ErrAccountNotFound
	}
	return s.queryOne(ctx, "find_by_username", `username = ?`, username)
}

func (s *Store) update(ctx context.Context, operation, id, set string, args ...any) (err error) {
	ctx, span := s.startStorageSpan(ctx, operation)
	defer span.End()
	defer func(start time.Time) { s.recordStorageOperation(ctx, span, operation, err, start) }(time.Now())

	res, err := s.db.ExecContext(ctx, `UPDATE accounts SET `+set+` WHERE id = ?`, append(args, id)...)
	if err != nil {
		return constraintError(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return storage.ErrAccountNotFound
	}
	return nil
}

// SetLinkage replaces the provider linkage of an account.
func (s *Store) SetLinkage(ctx context.Context, id string, linkage storage.Linkage) error {
	return s.update(ctx, "set_linkage", id,
		`provider_name = ?, provider_user_id = ?, provider_email = ?`,
		linkage.ProviderName, linkage.ProviderUserID, linkage.ProviderEmail)
}

// SetLastActive records the last login time.
func (s *Store) SetLastActive(ctx context.Context, id string, at time.Time) error {
	return s.update(ctx, "set_last_active", id, `last_active = ?`, toMillis(at))
}

// SetEmail updates the account email.
func (s *Store) SetEmail(ctx context.Context, id, email string) error {
	return s.update(ctx, "set_email", id, `email = ?`, email)
}

// AddAccount inserts acc as is. It is meant for seeding and imports.
func (s *Store) AddAccount(ctx context.Context, acc *storage.Account) error {
	if acc == nil || acc.ID == "" || acc.Username == "" {
		return fmt.Errorf("account id and username are required")
	}
	return s.insert(ctx, s.db, acc, "")
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *Store) insert(ctx context.Context, db execer, acc *storage.Account, comments string) error {
	_, err := db.ExecContext(ctx,
		`INSERT INTO accounts (`+accountColumns+`, comments)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		acc.ID, acc.Username, acc.RealName, acc.Email,
		boolToInt(acc.EmailVerified), boolToInt(acc.Approved),
		toMillis(acc.LastActive), toMillis(acc.CreatedAt), acc.PasswordHash,
		acc.Linkage.ProviderName, acc.Linkage.ProviderUserID, acc.Linkage.ProviderEmail,
		comments,
	)
	if err != nil {
		return constraintError(err)
	}
	return nil
}

// CreateAccount stores a new account with a bcrypt password hash.
// Usernames are unique by index; emails are checked in the same transaction.
func (s *Store) CreateAccount(ctx context.Context, na storage.NewAccount) (acc *storage.Account, err error) {
	ctx, span := s.startStorageSpan(ctx, "create_account")
	defer span.End()
	defer func(start time.Time) { s.recordStorageOperation(ctx, span, "create_account", err, start) }(time.Now())

	if na.Username == "" {
		return nil, fmt.Errorf("username cannot be empty")
	}

	var hash []byte
	if na.Password != "" {
		hash, err = bcrypt.GenerateFromPassword([]byte(na.Password), bcrypt.DefaultCost)
		if err != nil {
			return nil, fmt.Errorf("failed to hash password: %w", err)
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if na.Email != "" {
		var taken int
		if err := tx.QueryRowContext(ctx, `SELECT COUNT(1) FROM accounts WHERE email = ?`, na.Email).Scan(&taken); err != nil {
			return nil, fmt.Errorf("check email: %w", err)
		}
		if taken > 0 {
			return nil, storage.ErrAccountExists
		}
	}

	acc = &storage.Account{
		ID:            uuid.NewString(),
		Username:      na.Username,
		RealName:      na.RealName,
		Email:         na.Email,
		EmailVerified: na.Verified,
		Approved:      na.Approved,
		CreatedAt:     s.now().UTC().Truncate(time.Millisecond),
		PasswordHash:  string(hash),
		Linkage:       na.Linkage,
	}
	if err := s.insert(ctx, tx, acc, na.Comments); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}

	s.logger.Info("Created account", "account_id", acc.ID, "approved", acc.Approved)
	return acc, nil
}

// RegistrationComments returns the comments column of account id.
func (s *Store) RegistrationComments(ctx context.Context, id string) (comments string, err error) {
	ctx, span := s.startStorageSpan(ctx, "registration_comments")
	defer span.End()
	defer func(start time.Time) {
		s.recordStorageOperation(ctx, span, "registration_comments", err, start)
	}(time.Now())

	err = s.db.QueryRowContext(ctx, `SELECT comments FROM accounts WHERE id = ?`, id).Scan(&comments)
	if errors.Is(err, sql.ErrNoRows) {
		return "", storage.ErrAccountNotFound
	}
	if err != nil {
		return "", fmt.Errorf("query comments: %w", err)
	}
	return comments, nil
}

func (s *Store) startStorageSpan(ctx context.Context, operation string) (context.Context, trace.Span) {
	if s.tracer == nil {
		return ctx, trace.SpanFromContext(context.Background())
	}
	ctx, span := s.tracer.Start(ctx, "storage."+operation)
	instrumentation.AddStorageAttributes(span, operation, storageType)
	return ctx, span
}

func (s *Store) recordStorageOperation(ctx context.Context, span trace.Span, operation string, err error, startTime time.Time) {
	if s.instrumentation == nil {
		return
	}

	result := "success"
	switch {
	case err == nil:
		instrumentation.SetSpanSuccess(span)
	case errors.Is(err, storage.ErrAccountNotFound):
		result = "not_found"
		instrumentation.SetSpanSuccess(span)
	default:
		result = "error"
		instrumentation.RecordError(span, err)
	}

	s.instrumentation.Metrics().RecordStorageOperation(ctx, operation, result, float64(time.Since(startTime).Microseconds())/1000.0)
}
