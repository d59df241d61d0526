package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Collection is a user-defined table of items.
type Collection struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	// DateField names the field plotted on the calendar; empty when the
	// collection has no date field.
	DateField  string    `json:"date_field"`
	TitleField string    `json:"title_field"`
	CreatedAt  time.Time `json:"created_at"`
}

// CreateCollection inserts a collection with a generated ID.
func (s *Store) CreateCollection(name, dateField, titleField string) (*Collection, error) {
	if name == "" {
		return nil, errors.New("create collection: name is empty")
	}
	return s.EnsureCollection(uuid.NewString(), name, dateField, titleField)
}

// EnsureCollection inserts the collection unless id already exists, then
// returns the stored row.
func (s *Store) EnsureCollection(id, name, dateField, titleField string) (*Collection, error) {
	if titleField == "" {
		titleField = "title"
	}
	if name == "" {
		name = id
	}
	_, err := s.db.Exec(
		`INSERT OR IGNORE INTO collections (id, name, date_field, title_field, created_at) VALUES (?, ?, ?, ?, ?)`,
		id, name, dateField, titleField, time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return nil, fmt.Errorf("ensure collection %s: %w", id, err)
	}
	return s.GetCollection(id)
}

func (s *Store) GetCollection(id string) (*Collection, error) {
	c := &Collection{}
	var createdAt string
	err := s.db.QueryRow(
		`SELECT id, name, date_field, title_field, created_at FROM collections WHERE id = ?`, id,
	).Scan(&c.ID, &c.Name, &c.DateField, &c.TitleField, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("collection %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get collection %s: %w", id, err)
	}
	c.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return c, nil
}

func (s *Store) ListCollections() ([]Collection, error) {
	rows, err := s.db.Query(
		`SELECT id, name, date_field, title_field, created_at FROM collections ORDER BY created_at, name`,
	)
	if err != nil {
		return nil, fmt.Errorf("list collections: %w", err)
	}
	defer rows.Close()

	var out []Collection
	for rows.Next() {
		var c Collection
		var createdAt string
		if err := rows.Scan(&c.ID, &c.Name, &c.DateField, &c.TitleField, &createdAt); err != nil {
			return nil, fmt.Errorf("scan collection: %w", err)
		}
		c.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		out = append(out, c)
	}
	return out, rows.Err()
}

// DeleteCollection removes a collection and all of its items.
func (s *Store) DeleteCollection(id string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM items WHERE collection_id = ?`, id); err != nil {
		return fmt.Errorf("delete items of %s: %w", id, err)
	}
	res, err := tx.Exec(`DELETE FROM collections WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete collection %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("collection %s: %w", id, ErrNotFound)
	}
	return tx.Commit()
}
