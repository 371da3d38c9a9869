package store

import (
	"fmt"
)

// Category is an immutable content category referenced by videos.
type Category struct {
	ID   string
	Name string
}

// UpsertCategories inserts any categories not already present. Existing rows
// are left untouched: categories are immutable once created.
func (d *DB) UpsertCategories(categories []Category) error {
	if len(categories) == 0 {
		return nil
	}

	tx, err := d.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning category insert: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`INSERT INTO categories (id, name) VALUES (?, ?) ON CONFLICT(id) DO NOTHING`)
	if err != nil {
		return fmt.Errorf("preparing category insert: %w", err)
	}
	defer stmt.Close()

	for _, c := range categories {
		if _, err := stmt.Exec(c.ID, c.Name); err != nil {
			return fmt.Errorf("inserting category %s: %w", c.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing category insert: %w", err)
	}
	return nil
}

// CategoryByID retrieves a category. Returns nil, nil when absent.
func (d *DB) CategoryByID(id string) (*Category, error) {
	rows, err := d.db.Query(`SELECT id, name FROM categories WHERE id = ?`, id)
	if err != nil {
		return nil, fmt.Errorf("querying category: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, rows.Err()
	}
	var c Category
	if err := rows.Scan(&c.ID, &c.Name); err != nil {
		return nil, fmt.Errorf("scanning category: %w", err)
	}
	return &c, nil
}
