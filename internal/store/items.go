package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/bytedance/sonic"

	"dbcal/internal/model"
)

const itemColumns = `id, collection_id, fields, recurrence_rule, recurrence_end_date,
	recurrence_days, end_date_time, is_all_day, feed_id, created_at`

// row is the column form of an item.
type row struct {
	fields    string
	rule      string
	recEnd    sql.NullString
	recDays   sql.NullString
	end       sql.NullString
	allDay    int
	feedID    sql.NullString
	createdAt string
}

// execer is satisfied by *sql.DB and *sql.Tx.
type execer interface {
	Exec(query string, args ...any) (sql.Result, error)
}

// AddItem stores it in the collection and returns the stored item.
func (s *Store) AddItem(collectionID string, it model.Item) (model.Item, error) {
	id, err := insertItem(s.db, collectionID, it, "")
	if err != nil {
		return nil, err
	}
	return s.GetItem(collectionID, id)
}

func insertItem(db execer, collectionID string, it model.Item, feedID string) (int64, error) {
	r, err := toRow(it)
	if err != nil {
		return 0, err
	}
	if feedID != "" {
		r.feedID = sql.NullString{String: feedID, Valid: true}
	}
	res, err := db.Exec(
		`INSERT INTO items (collection_id, fields, recurrence_rule, recurrence_end_date, recurrence_days,
			end_date_time, is_all_day, feed_id, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		collectionID, r.fields, r.rule, r.recEnd, r.recDays, r.end, r.allDay, r.feedID, r.createdAt,
	)
	if err != nil {
		return 0, fmt.Errorf("insert item into %s: %w", collectionID, err)
	}
	return res.LastInsertId()
}

func (s *Store) GetItem(collectionID string, id int64) (model.Item, error) {
	rows, err := s.db.Query(
		`SELECT `+itemColumns+` FROM items WHERE collection_id = ? AND id = ?`, collectionID, id,
	)
	if err != nil {
		return nil, fmt.Errorf("get item %d: %w", id, err)
	}
	items, err := scanItems(rows)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, fmt.Errorf("item %d: %w", id, ErrNotFound)
	}
	return items[0], nil
}

// ListItems returns the items of a collection in insertion order.
func (s *Store) ListItems(collectionID string) ([]model.Item, error) {
	rows, err := s.db.Query(
		`SELECT `+itemColumns+` FROM items WHERE collection_id = ? ORDER BY id`, collectionID,
	)
	if err != nil {
		return nil, fmt.Errorf("list items of %s: %w", collectionID, err)
	}
	return scanItems(rows)
}

// UpdateItem overlays patch on the stored item. Keys set to nil are
// cleared.
func (s *Store) UpdateItem(collectionID string, id int64, patch model.Item) (model.Item, error) {
	cur, err := s.GetItem(collectionID, id)
	if err != nil {
		return nil, err
	}
	for k, v := range patch {
		if v == nil {
			delete(cur, k)
			continue
		}
		cur[k] = v
	}

	r, err := toRow(cur)
	if err != nil {
		return nil, err
	}
	_, err = s.db.Exec(
		`UPDATE items SET fields = ?, recurrence_rule = ?, recurrence_end_date = ?, recurrence_days = ?,
			end_date_time = ?, is_all_day = ?
		 WHERE collection_id = ? AND id = ?`,
		r.fields, r.rule, r.recEnd, r.recDays, r.end, r.allDay, collectionID, id,
	)
	if err != nil {
		return nil, fmt.Errorf("update item %d: %w", id, err)
	}
	return s.GetItem(collectionID, id)
}

func (s *Store) DeleteItem(collectionID string, id int64) error {
	res, err := s.db.Exec(`DELETE FROM items WHERE collection_id = ? AND id = ?`, collectionID, id)
	if err != nil {
		return fmt.Errorf("delete item %d: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("item %d: %w", id, ErrNotFound)
	}
	return nil
}

// ReplaceFeedItems swaps every item previously imported from feedID for
// items, in one transaction.
func (s *Store) ReplaceFeedItems(collectionID, feedID string, items []model.Item) error {
	if feedID == "" {
		return errors.New("replace feed items: feed id is empty")
	}
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM items WHERE collection_id = ? AND feed_id = ?`, collectionID, feedID); err != nil {
		return fmt.Errorf("clear feed %s: %w", feedID, err)
	}
	for _, it := range items {
		if _, err := insertItem(tx, collectionID, it, feedID); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// CalendarItems flattens items of every collection that has a date field
// into the shape of the global calendar: the date value under "date", the
// title under "title", plus the collection id and name. Items without a
// date value are left out.
func (s *Store) CalendarItems() ([]model.Item, error) {
	colls, err := s.ListCollections()
	if err != nil {
		return nil, err
	}

	var out []model.Item
	for _, c := range colls {
		if c.DateField == "" {
			continue
		}
		items, err := s.ListItems(c.ID)
		if err != nil {
			return nil, err
		}
		for _, it := range items {
			date, ok := it.Lookup(c.DateField)
			if !ok {
				continue
			}
			flat := model.Item{
				model.FieldID:             it[model.FieldID],
				model.FieldCollectionID:   c.ID,
				model.FieldCollectionName: c.Name,
				model.FieldTitle:          it.Title(c.TitleField),
				model.FieldDate:           date,
			}
			for _, k := range []string{model.FieldRecurrenceRule, model.FieldRecurrenceEnd,
				model.FieldRecurrenceDays, model.FieldEnd, model.FieldAllDay} {
				if v, ok := it[k]; ok {
					flat[k] = v
				}
			}
			out = append(out, flat)
		}
	}
	return out, nil
}

// toRow splits an item into its JSON field blob and built-in columns.
func toRow(it model.Item) (row, error) {
	r := row{
		rule:      string(model.ParseRule(it.String(model.FieldRecurrenceRule))),
		createdAt: it.String(model.FieldCreatedAt),
	}
	if r.createdAt == "" {
		r.createdAt = time.Now().UTC().Format(time.RFC3339)
	}
	if v := it.String(model.FieldRecurrenceEnd); v != "" {
		r.recEnd = sql.NullString{String: v, Valid: true}
	}
	if v, ok := it.Lookup(model.FieldRecurrenceDays); ok {
		if days, isStr := v.(string); isStr {
			r.recDays = sql.NullString{String: days, Valid: true}
		} else {
			r.recDays = sql.NullString{String: model.FormatWeekdays(model.ParseWeekdays(v)), Valid: true}
		}
	}
	if v := it.String(model.FieldEnd); v != "" {
		r.end = sql.NullString{String: v, Valid: true}
	}
	if it.Bool(model.FieldAllDay) {
		r.allDay = 1
	}

	fields := make(map[string]any, len(it))
	for k, v := range it {
		switch k {
		case model.FieldID, model.FieldCreatedAt, model.FieldCollectionID, model.FieldCollectionName,
			model.FieldRecurrenceRule, model.FieldRecurrenceEnd, model.FieldRecurrenceDays,
			model.FieldEnd, model.FieldAllDay, model.FieldFeedID:
			continue
		}
		fields[k] = v
	}
	data, err := sonic.Marshal(fields)
	if err != nil {
		return row{}, fmt.Errorf("encode item fields: %w", err)
	}
	r.fields = string(data)
	return r, nil
}

func scanItems(rows *sql.Rows) ([]model.Item, error) {
	defer rows.Close()

	var out []model.Item
	for rows.Next() {
		var (
			id           int64
			collectionID string
			r            row
		)
		if err := rows.Scan(&id, &collectionID, &r.fields, &r.rule, &r.recEnd, &r.recDays,
			&r.end, &r.allDay, &r.feedID, &r.createdAt); err != nil {
			return nil, fmt.Errorf("scan item: %w", err)
		}

		it := model.Item{}
		if err := sonic.Unmarshal([]byte(r.fields), &it); err != nil {
			return nil, fmt.Errorf("decode item %d fields: %w", id, err)
		}
		it[model.FieldID] = id
		it[model.FieldCollectionID] = collectionID
		it[model.FieldCreatedAt] = r.createdAt
		it[model.FieldRecurrenceRule] = r.rule
		it[model.FieldAllDay] = r.allDay
		if r.recEnd.Valid {
			it[model.FieldRecurrenceEnd] = r.recEnd.String
		}
		if r.recDays.Valid {
			it[model.FieldRecurrenceDays] = r.recDays.String
		}
		if r.end.Valid {
			it[model.FieldEnd] = r.end.String
		}
		if r.feedID.Valid {
			it[model.FieldFeedID] = r.feedID.String
		}
		out = append(out, it)
	}
	return out, rows.Err()
}
