package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/edermartinez/bienesraices/app/entity"

	"github.com/go-sql-driver/mysql"
)

const mysqlDuplicateEntry = 1062

// IsDuplicateEntry reports whether err is a MySQL unique constraint
// violation. Duplicate registrations are detected this way instead of a
// find-then-create sequence, so there is no race window.
func IsDuplicateEntry(err error) bool {
	var mysqlErr *mysql.MySQLError
	return errors.As(err, &mysqlErr) && mysqlErr.Number == mysqlDuplicateEntry
}

type UserRepository struct {
	db *sql.DB
}

func NewUserRepository(db *sql.DB) *UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) Create(ctx context.Context, user *entity.User) error {
	query := `
		INSERT INTO usuarios (nombre, email, password_hash, confirmado, token, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	result, err := r.db.ExecContext(ctx, query,
		user.Nombre,
		user.Email,
		user.PasswordHash,
		user.Confirmado,
		user.Token,
		user.CreatedAt,
		user.UpdatedAt,
	)
	if err != nil {
		return err
	}

	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	user.ID = uint64(id)
	return nil
}

func (r *UserRepository) FindByEmail(ctx context.Context, email string) (*entity.User, error) {
	query := `
		SELECT id, nombre, email, password_hash, confirmado, token, created_at, updated_at
		FROM usuarios WHERE email = ?
	`
	return r.scanUser(r.db.QueryRowContext(ctx, query, email))
}

func (r *UserRepository) FindByToken(ctx context.Context, token string) (*entity.User, error) {
	query := `
		SELECT id, nombre, email, password_hash, confirmado, token, created_at, updated_at
		FROM usuarios WHERE token = ?
	`
	return r.scanUser(r.db.QueryRowContext(ctx, query, token))
}

// ConfirmByToken marks the account holding token as confirmed and consumes
// the token in a single statement. It returns false when no row matched.
func (r *UserRepository) ConfirmByToken(ctx context.Context, token string) (bool, error) {
	query := `UPDATE usuarios SET confirmado = 1, token = NULL, updated_at = ? WHERE token = ?`
	result, err := r.db.ExecContext(ctx, query, time.Now(), token)
	if err != nil {
		return false, err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows > 0, nil
}

// AssignToken stores a fresh pending-action token on the account with the
// given email. It returns false when the email belongs to no account.
func (r *UserRepository) AssignToken(ctx context.Context, email, token string) (bool, error) {
	query := `UPDATE usuarios SET token = ?, updated_at = ? WHERE email = ?`
	result, err := r.db.ExecContext(ctx, query, token, time.Now(), email)
	if err != nil {
		return false, err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows > 0, nil
}

// SetPasswordByToken replaces the password hash and consumes the reset token
// in a single statement. It returns false when the token matched no row,
// which covers tokens already consumed by a concurrent request.
func (r *UserRepository) SetPasswordByToken(ctx context.Context, token, passwordHash string) (bool, error) {
	query := `UPDATE usuarios SET password_hash = ?, token = NULL, updated_at = ? WHERE token = ?`
	result, err := r.db.ExecContext(ctx, query, passwordHash, time.Now(), token)
	if err != nil {
		return false, err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows > 0, nil
}

func (r *UserRepository) scanUser(row *sql.Row) (*entity.User, error) {
	user := &entity.User{}
	err := row.Scan(
		&user.ID,
		&user.Nombre,
		&user.Email,
		&user.PasswordHash,
		&user.Confirmado,
		&user.Token,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return user, nil
}
