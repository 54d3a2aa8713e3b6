package catalog

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/reelboard/reelboard-agent/internal/gateway"
)

type Repository interface {
	CreateModel(ctx context.Context, m *Model) error
	UpdateModel(ctx context.Context, m *Model) error
	GetModel(ctx context.Context, id string) (*Model, error)
	ListModels(ctx context.Context) ([]*Model, error)
	DeleteModel(ctx context.Context, id string) error
	SetModelSheet(ctx context.Context, id string, sheet gateway.ImageBlob) error

	CreateProduct(ctx context.Context, p *Product) error
	GetProduct(ctx context.Context, id string) (*Product, error)
	ListProducts(ctx context.Context) ([]*Product, error)
	DeleteProduct(ctx context.Context, id string) error

	CountModels(ctx context.Context) (int, error)
	CountProducts(ctx context.Context) (int, error)

	GetConfig(ctx context.Context, key string) (string, error)
	SetConfig(ctx context.Context, key, value string) error
}

type SQLiteRepository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func (r *SQLiteRepository) CreateModel(ctx context.Context, m *Model) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var sheetData []byte
	var sheetMime sql.NullString
	if m.Sheet != nil && !m.Sheet.IsZero() {
		sheetData = m.Sheet.Data
		sheetMime = sql.NullString{String: m.Sheet.MIMEType, Valid: true}
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO models (id, name, description, sheet_data, sheet_mime, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, m.ID, m.Name, m.Description, sheetData, sheetMime,
		m.CreatedAt.Format(time.RFC3339), m.UpdatedAt.Format(time.RFC3339))
	if err != nil {
		return err
	}

	if err := insertModelImages(ctx, tx, m.ID, m.ReferenceImages); err != nil {
		return err
	}

	return tx.Commit()
}

func (r *SQLiteRepository) UpdateModel(ctx context.Context, m *Model) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE models SET name = ?, description = ?, updated_at = ? WHERE id = ?
	`, m.Name, m.Description, time.Now().Format(time.RFC3339), m.ID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return sql.ErrNoRows
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM model_images WHERE model_id = ?`, m.ID); err != nil {
		return err
	}
	if err := insertModelImages(ctx, tx, m.ID, m.ReferenceImages); err != nil {
		return err
	}

	return tx.Commit()
}

func insertModelImages(ctx context.Context, tx *sql.Tx, modelID string, images []gateway.ImageBlob) error {
	for i, img := range images {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO model_images (model_id, position, data, mime)
			VALUES (?, ?, ?, ?)
		`, modelID, i, img.Data, img.MIMEType)
		if err != nil {
			return fmt.Errorf("failed to insert reference image %d: %w", i, err)
		}
	}
	return nil
}

func (r *SQLiteRepository) GetModel(ctx context.Context, id string) (*Model, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, name, description, sheet_data, sheet_mime, created_at, updated_at
		FROM models WHERE id = ?
	`, id)

	m, err := scanModel(row)
	if err != nil || m == nil {
		return m, err
	}

	if err := r.loadReferenceImages(ctx, m); err != nil {
		return nil, err
	}
	return m, nil
}

func (r *SQLiteRepository) ListModels(ctx context.Context) ([]*Model, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, name, description, sheet_data, sheet_mime, created_at, updated_at
		FROM models ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var models []*Model
	for rows.Next() {
		m, err := scanModelRows(rows)
		if err != nil {
			return nil, err
		}
		models = append(models, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, m := range models {
		if err := r.loadReferenceImages(ctx, m); err != nil {
			return nil, err
		}
	}
	return models, nil
}

func (r *SQLiteRepository) loadReferenceImages(ctx context.Context, m *Model) error {
	rows, err := r.db.QueryContext(ctx, `
		SELECT data, mime FROM model_images WHERE model_id = ? ORDER BY position
	`, m.ID)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var img gateway.ImageBlob
		if err := rows.Scan(&img.Data, &img.MIMEType); err != nil {
			return err
		}
		m.ReferenceImages = append(m.ReferenceImages, img)
	}
	return rows.Err()
}

func scanModel(row *sql.Row) (*Model, error) {
	var m Model
	var sheetData []byte
	var sheetMime sql.NullString
	var createdAt, updatedAt string

	err := row.Scan(&m.ID, &m.Name, &m.Description, &sheetData, &sheetMime, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	applyModelScan(&m, sheetData, sheetMime, createdAt, updatedAt)
	return &m, nil
}

func scanModelRows(rows *sql.Rows) (*Model, error) {
	var m Model
	var sheetData []byte
	var sheetMime sql.NullString
	var createdAt, updatedAt string

	if err := rows.Scan(&m.ID, &m.Name, &m.Description, &sheetData, &sheetMime, &createdAt, &updatedAt); err != nil {
		return nil, err
	}

	applyModelScan(&m, sheetData, sheetMime, createdAt, updatedAt)
	return &m, nil
}

func applyModelScan(m *Model, sheetData []byte, sheetMime sql.NullString, createdAt, updatedAt string) {
	if len(sheetData) > 0 && sheetMime.Valid {
		m.Sheet = &gateway.ImageBlob{Data: sheetData, MIMEType: sheetMime.String}
	}
	m.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	m.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
}

func (r *SQLiteRepository) DeleteModel(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM models WHERE id = ?`, id)
	return err
}

func (r *SQLiteRepository) SetModelSheet(ctx context.Context, id string, sheet gateway.ImageBlob) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE models SET sheet_data = ?, sheet_mime = ?, updated_at = ? WHERE id = ?
	`, sheet.Data, sheet.MIMEType, time.Now().Format(time.RFC3339), id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (r *SQLiteRepository) CreateProduct(ctx context.Context, p *Product) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO products (id, name, data, mime, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, p.ID, p.Name, p.Image.Data, p.Image.MIMEType, p.CreatedAt.Format(time.RFC3339))
	return err
}

func (r *SQLiteRepository) GetProduct(ctx context.Context, id string) (*Product, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, name, data, mime, created_at FROM products WHERE id = ?
	`, id)

	var p Product
	var createdAt string
	err := row.Scan(&p.ID, &p.Name, &p.Image.Data, &p.Image.MIMEType, &createdAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	p.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return &p, nil
}

func (r *SQLiteRepository) ListProducts(ctx context.Context) ([]*Product, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, name, data, mime, created_at FROM products ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var products []*Product
	for rows.Next() {
		var p Product
		var createdAt string
		if err := rows.Scan(&p.ID, &p.Name, &p.Image.Data, &p.Image.MIMEType, &createdAt); err != nil {
			return nil, err
		}
		p.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		products = append(products, &p)
	}
	return products, rows.Err()
}

func (r *SQLiteRepository) DeleteProduct(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM products WHERE id = ?`, id)
	return err
}

func (r *SQLiteRepository) CountModels(ctx context.Context) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM models`).Scan(&count)
	return count, err
}

func (r *SQLiteRepository) CountProducts(ctx context.Context) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM products`).Scan(&count)
	return count, err
}

func (r *SQLiteRepository) GetConfig(ctx context.Context, key string) (string, error) {
	var value string
	err := r.db.QueryRowContext(ctx, `SELECT value FROM config WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return value, err
}

func (r *SQLiteRepository) SetConfig(ctx context.Context, key, value string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO config (key, value, updated_at) VALUES (?, ?, datetime('now'))
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = datetime('now')
	`, key, value)
	return err
}
