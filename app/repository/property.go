package repository

import (
	"context"
	"database/sql"

	"github.com/edermartinez/bienesraices/app/entity"
)

type PropertyRepository struct {
	db *sql.DB
}

func NewPropertyRepository(db *sql.DB) *PropertyRepository {
	return &PropertyRepository{db: db}
}

func (r *PropertyRepository) Create(ctx context.Context, property *entity.Property) error {
	query := `
		INSERT INTO propiedades (titulo, descripcion, precio, publicado, usuario_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`
	result, err := r.db.ExecContext(ctx, query,
		property.Titulo,
		property.Descripcion,
		property.Precio,
		property.Publicado,
		property.UsuarioID,
		property.CreatedAt,
	)
	if err != nil {
		return err
	}

	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	property.ID = uint64(id)
	return nil
}

func (r *PropertyRepository) ListByOwner(ctx context.Context, usuarioID uint64) ([]entity.Property, error) {
	query := `
		SELECT id, titulo, descripcion, precio, publicado, usuario_id, created_at
		FROM propiedades WHERE usuario_id = ? ORDER BY created_at DESC
	`
	rows, err := r.db.QueryContext(ctx, query, usuarioID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var properties []entity.Property
	for rows.Next() {
		var p entity.Property
		if err := rows.Scan(
			&p.ID,
			&p.Titulo,
			&p.Descripcion,
			&p.Precio,
			&p.Publicado,
			&p.UsuarioID,
			&p.CreatedAt,
		); err != nil {
			return nil, err
		}
		properties = append(properties, p)
	}
	return properties, rows.Err()
}
