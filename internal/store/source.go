package store

import "dbcal/internal/model"

// Source is the item set behind a calendar: one collection, or every
// dated collection flattened into the global calendar.
type Source struct {
	Items    []model.Item
	DateKey  string
	TitleKey string
	Name     string
	// Global is set for the flattened calendar, whose items carry their
	// collection id and name.
	Global bool
}

// CalendarSource loads the items of collectionID, or the global calendar
// when collectionID is empty. fallbackDateKey is used for collections
// without a date field.
func (s *Store) CalendarSource(collectionID, fallbackDateKey string) (Source, error) {
	if collectionID == "" {
		items, err := s.CalendarItems()
		if err != nil {
			return Source{}, err
		}
		return Source{
			Items:    items,
			DateKey:  model.FieldDate,
			TitleKey: model.FieldTitle,
			Name:     "All collections",
			Global:   true,
		}, nil
	}

	c, err := s.GetCollection(collectionID)
	if err != nil {
		return Source{}, err
	}
	items, err := s.ListItems(c.ID)
	if err != nil {
		return Source{}, err
	}
	dateKey := c.DateField
	if dateKey == "" {
		dateKey = fallbackDateKey
	}
	return Source{Items: items, DateKey: dateKey, TitleKey: c.TitleField, Name: c.Name}, nil
}
