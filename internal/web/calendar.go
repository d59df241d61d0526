package web

import (
	"bytes"
	"fmt"
	"net/http"
	"strings"
	"time"

	"dbcal/internal/calendar"
	"dbcal/internal/ics"
	"dbcal/internal/layout"
	appLog "dbcal/internal/log"
	"dbcal/internal/model"
	"dbcal/internal/render"
	"dbcal/internal/store"
)

// viewRequest holds the query parameters shared by the calendar routes.
type viewRequest struct {
	mode       calendar.Mode
	date       time.Time
	collection string
	filter     []string
}

func (v viewRequest) key() string {
	return strings.Join([]string{string(v.mode), v.date.Format("2006-01-02"), v.collection, strings.Join(v.filter, ",")}, "|")
}

type cachedView struct {
	view   calendar.View
	source store.Source
	at     time.Time
}

// Invalidate drops every cached view, including views still being built.
func (s *Server) Invalidate() {
	s.viewMu.Lock()
	s.views = make(map[string]cachedView)
	s.viewGen++
	s.viewMu.Unlock()
}

// lookupView returns the cached view for key, if still fresh, and the
// current cache generation.
func (s *Server) lookupView(key string, now time.Time) (cachedView, uint64, bool) {
	s.viewMu.RLock()
	defer s.viewMu.RUnlock()
	cv, ok := s.views[key]
	return cv, s.viewGen, ok && now.Sub(cv.at) < ViewCacheTTL
}

// storeView caches cv unless an invalidation happened after gen was read.
// Expired entries are evicted on the way.
func (s *Server) storeView(key string, gen uint64, cv cachedView) bool {
	s.viewMu.Lock()
	defer s.viewMu.Unlock()
	if s.viewGen != gen {
		return false
	}
	for k, old := range s.views {
		if cv.at.Sub(old.at) >= ViewCacheTTL {
			delete(s.views, k)
		}
	}
	s.views[key] = cv
	return true
}

func (s *Server) parseViewRequest(r *http.Request) (viewRequest, error) {
	q := r.URL.Query()

	mode := q.Get("mode")
	if mode == "" {
		mode = s.cfg.Calendar.DefaultMode
	}
	m, err := calendar.ParseMode(mode)
	if err != nil {
		return viewRequest{}, err
	}

	date := s.now().In(s.loc)
	if raw := q.Get("date"); raw != "" {
		date, err = time.ParseInLocation("2006-01-02", raw, s.loc)
		if err != nil {
			return viewRequest{}, fmt.Errorf("invalid date %q", raw)
		}
	}

	var filter []string
	for _, id := range strings.Split(q.Get("filter"), ",") {
		if id = strings.TrimSpace(id); id != "" {
			filter = append(filter, id)
		}
	}
	return viewRequest{mode: m, date: date, collection: q.Get("collection"), filter: filter}, nil
}

func (s *Server) loadSource(collection string) (store.Source, error) {
	return s.store.CalendarSource(collection, s.cfg.Calendar.DateField)
}

func (s *Server) view(req viewRequest) (calendar.View, store.Source, error) {
	key := req.key()
	now := s.now()

	cv, gen, fresh := s.lookupView(key, now)
	if fresh {
		return cv.view, cv.source, nil
	}

	src, err := s.loadSource(req.collection)
	if err != nil {
		return calendar.View{}, store.Source{}, err
	}
	opts := calendar.Options{
		DateKey:   src.DateKey,
		TitleKey:  src.TitleKey,
		WeekStart: calendar.ParseWeekStart(s.cfg.WeekStart),
	}
	if src.Global {
		opts.Filter = calendar.CollectionFilter(req.filter)
	}
	v := calendar.Build(req.mode, req.date, src.Items, opts)
	if len(v.Truncated) > 0 {
		appLog.Warn("recurrence expansion hit the step ceiling", "items", strings.Join(v.Truncated, ","))
	}

	s.storeView(key, gen, cachedView{view: v, source: src, at: now})
	return v, src, nil
}

func (s *Server) scale() layout.Scale {
	return layout.Scale{
		PixelsPerHour: s.cfg.Calendar.PixelsPerHour,
		MinHeight:     s.cfg.Calendar.MinEventHeight,
	}
}

type calendarResponse struct {
	Mode       string    `json:"mode"`
	Title      string    `json:"title"`
	Date       string    `json:"date"`
	RangeStart time.Time `json:"range_start"`
	RangeEnd   time.Time `json:"range_end"`
	Timezone   string    `json:"timezone"`
	WeekStart  string    `json:"week_start"`
	Days       []dayDTO  `json:"days"`
	Truncated  []string  `json:"truncated,omitempty"`
}

type dayDTO struct {
	Date        string          `json:"date"`
	InMonth     bool            `json:"in_month"`
	Occurrences []occurrenceDTO `json:"occurrences"`
	Columns     int             `json:"columns,omitempty"`
	Events      []eventDTO      `json:"events,omitempty"`
}

type occurrenceDTO struct {
	Label string     `json:"label"`
	Date  time.Time  `json:"date"`
	Item  model.Item `json:"item"`
}

type eventDTO struct {
	Label     string     `json:"label"`
	Time      string     `json:"time"`
	StartHour float64    `json:"start_hour"`
	EndHour   float64    `json:"end_hour"`
	Column    int        `json:"column"`
	Columns   int        `json:"columns"`
	Box       layout.Box `json:"box"`
	Item      model.Item `json:"item"`
}

func (s *Server) handleCalendarJSON(w http.ResponseWriter, r *http.Request) {
	req, err := s.parseViewRequest(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	v, src, err := s.view(req)
	if err != nil {
		writeStoreError(w, err)
		return
	}

	resp := calendarResponse{
		Mode:       string(v.Mode),
		Title:      v.Title,
		Date:       v.Base.Format("2006-01-02"),
		RangeStart: v.Window.Start,
		RangeEnd:   v.Window.End,
		Timezone:   s.loc.String(),
		WeekStart:  s.cfg.WeekStart,
		Days:       make([]dayDTO, 0, len(v.Days)),
		Truncated:  v.Truncated,
	}
	scale := s.scale()
	for _, d := range v.Days {
		day := dayDTO{
			Date:        string(d.Key),
			InMonth:     d.InMonth,
			Occurrences: make([]occurrenceDTO, 0, len(d.Occurrences)),
		}
		for _, o := range d.Occurrences {
			day.Occurrences = append(day.Occurrences, occurrenceDTO{
				Label: render.Label(o.Item, src.TitleKey, src.Global),
				Date:  o.Date,
				Item:  o.Item,
			})
		}
		if v.Mode.Timeline() {
			day.Columns = d.Columns()
			for _, p := range d.Packed {
				day.Events = append(day.Events, eventDTO{
					Label:     render.Label(p.Occurrence.Item, src.TitleKey, src.Global),
					Time:      layout.FormatHour(p.StartHour) + " - " + layout.FormatHour(p.EndHour),
					StartHour: p.StartHour,
					EndHour:   p.EndHour,
					Column:    p.Column,
					Columns:   p.Columns,
					Box:       layout.Place(p, scale),
					Item:      p.Occurrence.Item,
				})
			}
		}
		resp.Days = append(resp.Days, day)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleCalendarItems(w http.ResponseWriter, _ *http.Request) {
	items, err := s.store.CalendarItems()
	if err != nil {
		writeStoreError(w, err)
		return
	}
	if items == nil {
		items = []model.Item{}
	}
	writeJSON(w, http.StatusOK, items)
}

func (s *Server) handleCalendarHTML(w http.ResponseWriter, r *http.Request) {
	req, err := s.parseViewRequest(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	v, src, err := s.view(req)
	if err != nil {
		writeStoreError(w, err)
		return
	}

	q := r.URL.Query()
	q.Del("mode")
	q.Del("date")
	page := render.NewPage(v, render.Options{
		Scale:     s.scale(),
		WeekStart: calendar.ParseWeekStart(s.cfg.WeekStart),
		DateKey:   src.DateKey,
		Global:    src.Global,
		Today:     s.now().In(s.loc),
		Path:      r.URL.Path,
		Query:     q,
	})

	var buf bytes.Buffer
	if err := render.HTML(&buf, page); err != nil {
		appLog.Error("render calendar failed", err)
		http.Error(w, "render failed", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}

func (s *Server) handleCalendarICS(w http.ResponseWriter, r *http.Request) {
	src, err := s.loadSource(r.URL.Query().Get("collection"))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	body := ics.Export(src.Items, ics.ExportOptions{
		DateKey:  src.DateKey,
		TitleKey: src.TitleKey,
		Location: s.loc,
		Name:     src.Name,
	})
	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	_, _ = w.Write([]byte(body))
}
