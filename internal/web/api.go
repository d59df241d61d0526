package web

import (
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/bytedance/sonic"

	"dbcal/internal/model"
	"dbcal/internal/store"
)

const maxBodyBytes = 1 << 20

type createCollectionRequest struct {
	Name       string `json:"name"`
	DateField  string `json:"date_field"`
	TitleField string `json:"title_field"`
}

func (s *Server) handleListCollections(w http.ResponseWriter, _ *http.Request) {
	colls, err := s.store.ListCollections()
	if err != nil {
		writeStoreError(w, err)
		return
	}
	if colls == nil {
		colls = []store.Collection{}
	}
	writeJSON(w, http.StatusOK, colls)
}

func (s *Server) handleCreateCollection(w http.ResponseWriter, r *http.Request) {
	var req createCollectionRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}
	c, err := s.store.CreateCollection(req.Name, req.DateField, req.TitleField)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	s.Invalidate()
	writeJSON(w, http.StatusCreated, c)
}

func (s *Server) handleDeleteCollection(w http.ResponseWriter, r *http.Request) {
	if err := s.store.DeleteCollection(r.PathValue("id")); err != nil {
		writeStoreError(w, err)
		return
	}
	s.Invalidate()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListItems(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, err := s.store.GetCollection(id); err != nil {
		writeStoreError(w, err)
		return
	}
	items, err := s.store.ListItems(id)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	if items == nil {
		items = []model.Item{}
	}
	writeJSON(w, http.StatusOK, items)
}

func (s *Server) handleAddItem(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, err := s.store.GetCollection(id); err != nil {
		writeStoreError(w, err)
		return
	}
	var it model.Item
	if err := decodeBody(w, r, &it); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := validateItem(it); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	created, err := s.store.AddItem(id, it)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	s.Invalidate()
	writeJSON(w, http.StatusCreated, created)
}

func (s *Server) handleUpdateItem(w http.ResponseWriter, r *http.Request) {
	itemID, ok := parseItemID(w, r)
	if !ok {
		return
	}
	var patch model.Item
	if err := decodeBody(w, r, &patch); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := validateItem(patch); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	updated, err := s.store.UpdateItem(r.PathValue("id"), itemID, patch)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	s.Invalidate()
	writeJSON(w, http.StatusOK, updated)
}

func (s *Server) handleDeleteItem(w http.ResponseWriter, r *http.Request) {
	itemID, ok := parseItemID(w, r)
	if !ok {
		return
	}
	if err := s.store.DeleteItem(r.PathValue("id"), itemID); err != nil {
		writeStoreError(w, err)
		return
	}
	s.Invalidate()
	w.WriteHeader(http.StatusNoContent)
}

// validateItem rejects recurrence rules the calendar cannot expand.
func validateItem(it model.Item) error {
	if _, ok := it.Lookup(model.FieldRecurrenceRule); !ok {
		return nil
	}
	if rule := model.ParseRule(it.String(model.FieldRecurrenceRule)); !rule.Known() {
		return fmt.Errorf("unsupported recurrence_rule %q", rule)
	}
	return nil
}

func parseItemID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("item"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid item id")
		return 0, false
	}
	return id, true
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		return err
	}
	return sonic.Unmarshal(data, v)
}
