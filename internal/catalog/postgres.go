// internal/catalog/postgres.go
package catalog

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/memeleague/memeleague/internal/models"
)

// PostgresCatalog reads templates from a meme_templates table:
//
//	id text primary key, name text, image_url text,
//	text_input_count int, tags text[]
type PostgresCatalog struct {
	pool *pgxpool.Pool
}

// NewPostgresCatalog connects a pool for the given URL and pings it.
func NewPostgresCatalog(ctx context.Context, databaseURL string) (*PostgresCatalog, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("create catalog pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping catalog database: %w", err)
	}
	return &PostgresCatalog{pool: pool}, nil
}

// Close releases the underlying pool.
func (c *PostgresCatalog) Close() {
	c.pool.Close()
}

func (c *PostgresCatalog) FilterByTags(ctx context.Context, tags []string) ([]models.Template, error) {
	q := `
		SELECT id, name, image_url, text_input_count, tags
		FROM meme_templates
	`
	args := []interface{}{}
	if len(tags) > 0 {
		q += ` WHERE tags && $1`
		args = append(args, tags)
	}

	rows, err := c.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query templates: %w", err)
	}
	defer rows.Close()

	var templates []models.Template
	for rows.Next() {
		var t models.Template
		if err := rows.Scan(&t.ID, &t.Name, &t.ImageURL, &t.TextInputCount, &t.Tags); err != nil {
			return nil, fmt.Errorf("scan template: %w", err)
		}
		templates = append(templates, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read templates: %w", err)
	}
	return templates, nil
}
