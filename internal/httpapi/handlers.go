package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/eduardojeem/repairboard/internal/board"
	"github.com/eduardojeem/repairboard/internal/otel"
	"github.com/eduardojeem/repairboard/internal/store"
	"github.com/eduardojeem/repairboard/pkg/models"
)

func (a *App) publish(r *http.Request, typ models.EventType, order models.RepairOrder, prev *models.RepairOrder) {
	otel.RecordOrderOp(r.Context(), string(typ), string(order.Stage))
	a.Hub.Publish(models.OrderEvent{Type: typ, Order: order, Previous: prev, At: a.now().UTC()})
}

func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: invalid json: %v", store.ErrInvalid, err)
	}
	return nil
}

func (a *App) handleListOrders(w http.ResponseWriter, r *http.Request) {
	opts := store.ListOptions{Stage: models.Stage(r.URL.Query().Get("stage"))}
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			writeJSONError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		opts.Limit = n
	}
	orders, err := a.Store.ListOrders(r.Context(), opts)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, orders)
}

func (a *App) handleCreateOrder(w http.ResponseWriter, r *http.Request) {
	var in models.NewOrder
	if err := decodeBody(r, &in); err != nil {
		writeStoreError(w, err)
		return
	}
	o, err := a.Store.CreateOrder(r.Context(), in)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	a.publish(r, models.EventInsert, o, nil)
	writeJSON(w, http.StatusCreated, o)
}

func (a *App) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	o, err := a.Store.GetOrder(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

func (a *App) handleUpdateOrder(w http.ResponseWriter, r *http.Request) {
	var patch models.OrderPatch
	if err := decodeBody(r, &patch); err != nil {
		writeStoreError(w, err)
		return
	}
	prev, o, err := a.Store.UpdateOrder(r.Context(), chi.URLParam(r, "id"), patch)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	if !reflect.DeepEqual(prev, o) {
		a.publish(r, models.EventUpdate, o, &prev)
	}
	writeJSON(w, http.StatusOK, o)
}

func (a *App) handleDeleteOrder(w http.ResponseWriter, r *http.Request) {
	o, err := a.Store.DeleteOrder(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	a.publish(r, models.EventDelete, o, nil)
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (a *App) handleSetStage(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Stage models.Stage `json:"stage"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeStoreError(w, err)
		return
	}
	if body.Stage == "" {
		writeJSONError(w, http.StatusBadRequest, "stage required")
		return
	}
	ch, err := a.Store.SetOrderStage(r.Context(), chi.URLParam(r, "id"), body.Stage)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	if ch.Changed {
		prev := ch.Previous
		a.publish(r, models.EventUpdate, ch.Order, &prev)
	}
	writeJSON(w, http.StatusOK, ch.Order)
}

func (a *App) handleBoard(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f, err := ParseFilters(q)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	orders, err := a.Store.FetchOrders(r.Context())
	if err != nil {
		writeStoreError(w, err)
		return
	}
	settings := a.BoardSettings()
	opts := board.Options{Now: a.now(), Definitions: settings.Definitions}
	if ranked, _ := strconv.ParseBool(q.Get("ranked")); ranked {
		opts.Scoring = &settings.Scorer
	}
	b, err := board.Derive(orders, f, opts)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, b.Model())
}

// ParseFilters reads board filters from GET /board query parameters.
func ParseFilters(q url.Values) (board.Filters, error) {
	f := board.Filters{
		SearchTerm:   strings.TrimSpace(q.Get("q")),
		TechnicianID: q.Get("technician"),
		DeviceType:   q.Get("device_type"),
	}
	var err error
	if f.MinUrgency, err = intParam(q, "min_urgency"); err != nil {
		return board.Filters{}, err
	}
	if f.MaxUrgency, err = intParam(q, "max_urgency"); err != nil {
		return board.Filters{}, err
	}
	if f.ShowOverdueOnly, err = boolParam(q, "overdue"); err != nil {
		return board.Filters{}, err
	}
	if f.ShowUrgentOnly, err = boolParam(q, "urgent"); err != nil {
		return board.Filters{}, err
	}
	from, err := timeParam(q, "from")
	if err != nil {
		return board.Filters{}, err
	}
	to, err := timeParam(q, "to")
	if err != nil {
		return board.Filters{}, err
	}
	if !from.IsZero() || !to.IsZero() {
		f.DateRange = &board.DateRange{From: from, To: to}
	}
	return f, f.Validate()
}

func intParam(q url.Values, name string) (int, error) {
	s := q.Get(name)
	if s == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be an integer", board.ErrInvalidFilters, name)
	}
	return n, nil
}

func boolParam(q url.Values, name string) (bool, error) {
	s := q.Get(name)
	if s == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(s)
	if err != nil {
		return false, fmt.Errorf("%w: %s must be a boolean", board.ErrInvalidFilters, name)
	}
	return b, nil
}

func timeParam(q url.Values, name string) (time.Time, error) {
	s := q.Get(name)
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %s must be RFC3339", board.ErrInvalidFilters, name)
	}
	return t, nil
}

type preference struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

func (a *App) handleGetPreference(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	v, ok, err := a.Store.LoadPreference(r.Context(), key)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	if !ok {
		writeJSONError(w, http.StatusNotFound, "preference not set")
		return
	}
	writeJSON(w, http.StatusOK, preference{Key: key, Value: v})
}

func (a *App) handlePutPreference(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	var body preference
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if body.Key != "" && body.Key != key {
		writeJSONError(w, http.StatusBadRequest, "key in body does not match path")
		return
	}
	if err := a.Store.SavePreference(r.Context(), key, body.Value); err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, preference{Key: key, Value: body.Value})
}
