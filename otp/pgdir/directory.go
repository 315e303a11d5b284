// Package pgdir stores storefront accounts in PostgreSQL.
package pgdir

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/aircare/otpauth/identity"
	"github.com/aircare/otpauth/otp"
	"github.com/aircare/otpauth/otp/pgdir/migrations"
)

const uniqueViolation = "23505"

// DBTX is satisfied by *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Directory implements otp.Directory on a users table.
type Directory struct {
	db DBTX
}

var _ otp.Directory = (*Directory)(nil)

func New(db DBTX) *Directory {
	return &Directory{db: db}
}

// Open connects through the pgx stdlib driver and pings the server.
func Open(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("db open: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return db, nil
}

// Migrate applies the embedded schema.
func Migrate(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations.Migrations)
	if err := goose.SetDialect("postgres"); err != nil {
		return err
	}
	if err := goose.UpContext(ctx, db, "."); err != nil {
		return fmt.Errorf("db migrate: %w", err)
	}
	return nil
}

func (d *Directory) FindByPhone(ctx context.Context, phone string) (identity.Identity, error) {
	query :=
		`SELECT id, name, role, email, phone FROM users
		 WHERE phone = $1
		 `

	var (
		id    identity.Identity
		role  string
		email sql.NullString
	)
	err := d.db.QueryRowContext(ctx, query, phone).Scan(&id.ID, &id.Name, &role, &email, &id.Phone)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return identity.Identity{}, otp.ErrUserNotFound
		}
		return identity.Identity{}, fmt.Errorf("db error: %w", err)
	}

	id.Role, err = identity.ParseRole(role)
	if err != nil {
		return identity.Identity{}, fmt.Errorf("db error: %w", err)
	}
	id.Email = email.String
	return id, nil
}

func (d *Directory) Create(ctx context.Context, id identity.Identity) (identity.Identity, error) {
	if err := id.Validate(); err != nil {
		return identity.Identity{}, err
	}

	query :=
		`INSERT INTO users (id, name, role, email, phone)
		 VALUES ($1, $2, $3, $4, $5)
		 `

	email := sql.NullString{String: id.Email, Valid: id.Email != ""}
	if _, err := d.db.ExecContext(ctx, query, id.ID, id.Name, id.Role.String(), email, id.Phone); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return identity.Identity{}, otp.ErrPhoneTaken
		}
		return identity.Identity{}, fmt.Errorf("db error: %w", err)
	}
	return id, nil
}
