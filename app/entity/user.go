package entity

import (
	"database/sql"
	"time"
)

// User is a row in the usuarios table. Token holds the pending
// email-confirmation or password-reset token; it is NULL whenever no
// action is pending.
type User struct {
	ID           uint64
	Nombre       string
	Email        string
	PasswordHash string
	Confirmado   bool
	Token        sql.NullString
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type Property struct {
	ID          uint64
	Titulo      string
	Descripcion string
	Precio      string
	Publicado   bool
	UsuarioID   uint64
	CreatedAt   time.Time
}
