package http

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"

	mongoadapter "github.com/bookgrid/availability-engine/internal/adapters/mongo"
	"github.com/bookgrid/availability-engine/internal/adapters/pg"
	redisadapter "github.com/bookgrid/availability-engine/internal/adapters/redis"
	"github.com/bookgrid/availability-engine/internal/config"
	"github.com/bookgrid/availability-engine/internal/domain"
	"github.com/bookgrid/availability-engine/internal/idempotency"
	"github.com/bookgrid/availability-engine/internal/scheduling"
)

type Handlers struct {
	cfg     *config.Config
	repo    *pg.Repository
	holds   *scheduling.HoldManager
	checker *scheduling.Checker
	finder  *scheduling.Finder
	sweeper *scheduling.Sweeper
	cache   *redisadapter.Cache
	idemp   *idempotency.Idempotency
	audit   *mongoadapter.AuditLogger
}

func NewHandlers(cfg *config.Config, repo *pg.Repository, holds *scheduling.HoldManager, checker *scheduling.Checker, finder *scheduling.Finder, sweeper *scheduling.Sweeper, cache *redisadapter.Cache, idemp *idempotency.Idempotency, audit *mongoadapter.AuditLogger) *Handlers {
	return &Handlers{
		cfg:     cfg,
		repo:    repo,
		holds:   holds,
		checker: checker,
		finder:  finder,
		sweeper: sweeper,
		cache:   cache,
		idemp:   idemp,
		audit:   audit,
	}
}

const dateLayout = "2006-01-02"

func parseDates(raw []string) ([]time.Time, error) {
	dates := make([]time.Time, 0, len(raw))
	for _, s := range raw {
		d, err := time.Parse(dateLayout, s)
		if err != nil {
			return nil, errors.Wrapf(domain.ErrValidation, "bad date %q", s)
		}
		dates = append(dates, d)
	}
	return dates, nil
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) []byte {
	data, _ := json.Marshal(body)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(data)
	return data
}

func writeError(w http.ResponseWriter, err error) {
	var partial *domain.PartialFailureError
	if errors.As(err, &partial) {
		failed := make([]map[string]string, 0, len(partial.Failed))
		for _, f := range partial.Failed {
			failed = append(failed, map[string]string{
				"date":  f.Date.Format(dateLayout),
				"error": f.Err.Error(),
			})
		}
		writeJSON(w, http.StatusConflict, map[string]interface{}{
			"error":     partial.Error(),
			"succeeded": formatDates(partial.Succeeded),
			"failed":    failed,
		})
		return
	}
	switch {
	case errors.Is(err, domain.ErrValidation):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, domain.ErrNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, domain.ErrExpiredHold):
		http.Error(w, err.Error(), http.StatusGone)
	case errors.Is(err, domain.ErrStateConflict):
		http.Error(w, err.Error(), http.StatusConflict)
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func formatDates(dates []time.Time) []string {
	out := make([]string, 0, len(dates))
	for _, d := range dates {
		out = append(out, d.Format(dateLayout))
	}
	return out
}

func (h *Handlers) AcquireHold(w http.ResponseWriter, r *http.Request) {
	key := r.Header.Get("Idempotency-Key")
	if existing, err := h.idemp.Get(r.Context(), key); err == nil && existing != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(existing.Status)
		w.Write(existing.Result)
		return
	}

	var req struct {
		ResourceID uuid.UUID `json:"resource_id"`
		Dates      []string  `json:"dates"`
		HolderID   uuid.UUID `json:"holder_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	dates, err := parseDates(req.Dates)
	if err != nil {
		writeError(w, err)
		return
	}

	// Advisory fast path: reject obviously contended dates before the
	// conditional write. The grid update below remains the authority.
	for _, d := range dates {
		ok, gerr := h.cache.SetHoldGuard(r.Context(), req.ResourceID, d, req.HolderID, h.holds.TTL())
		if gerr == nil && !ok {
			writeError(w, errors.Wrapf(domain.ErrStateConflict, "date %s contended", d.Format(dateLayout)))
			return
		}
	}

	held, err := h.holds.AcquireHold(r.Context(), req.ResourceID, dates, req.HolderID)
	if err != nil {
		writeError(w, err)
		return
	}
	h.audit.LogHoldAcquired(r.Context(), req.ResourceID, req.HolderID, held)

	data := writeJSON(w, http.StatusCreated, map[string]interface{}{
		"held_dates": formatDates(held),
		"ttl":        h.holds.TTL().String(),
	})
	h.idemp.Set(r.Context(), key, idempotency.Response{Status: http.StatusCreated, Result: data})
}

func (h *Handlers) ConfirmHold(w http.ResponseWriter, r *http.Request) {
	key := r.Header.Get("Idempotency-Key")
	if existing, err := h.idemp.Get(r.Context(), key); err == nil && existing != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(existing.Status)
		w.Write(existing.Result)
		return
	}

	var req struct {
		ResourceID uuid.UUID `json:"resource_id"`
		Dates      []string  `json:"dates"`
		HolderID   uuid.UUID `json:"holder_id"`
		BookingRef uuid.UUID `json:"booking_ref"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	dates, err := parseDates(req.Dates)
	if err != nil {
		writeError(w, err)
		return
	}

	if err := h.holds.ConfirmHold(r.Context(), req.ResourceID, dates, req.HolderID, req.BookingRef); err != nil {
		writeError(w, err)
		return
	}
	h.audit.LogHoldConfirmed(r.Context(), req.ResourceID, req.HolderID, req.BookingRef, dates)
	for _, d := range dates {
		h.cache.DropHoldGuard(r.Context(), req.ResourceID, d)
	}

	data := writeJSON(w, http.StatusOK, map[string]interface{}{
		"booking_ref": req.BookingRef,
		"status":      domain.StatusBooked,
	})
	h.idemp.Set(r.Context(), key, idempotency.Response{Status: http.StatusOK, Result: data})
}

func (h *Handlers) ReleaseHold(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ResourceID uuid.UUID `json:"resource_id"`
		Dates      []string  `json:"dates"`
		HolderID   uuid.UUID `json:"holder_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	dates, err := parseDates(req.Dates)
	if err != nil {
		writeError(w, err)
		return
	}

	released, err := h.holds.ReleaseHold(r.Context(), req.ResourceID, dates, req.HolderID)
	if err != nil {
		writeError(w, err)
		return
	}
	for _, d := range dates {
		h.cache.DropHoldGuard(r.Context(), req.ResourceID, d)
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"released": released})
}

func (h *Handlers) CancelBooking(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ResourceID uuid.UUID `json:"resource_id"`
		BookingRef uuid.UUID `json:"booking_ref"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	days, err := h.holds.CancelBooking(r.Context(), req.ResourceID, req.BookingRef)
	if err != nil {
		writeError(w, err)
		return
	}
	h.audit.LogBookingCancelled(r.Context(), req.ResourceID, req.BookingRef, days)
	writeJSON(w, http.StatusOK, map[string]interface{}{"days": days})
}

func (h *Handlers) CheckSlot(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	resourceID, err := uuid.Parse(q.Get("resource_id"))
	if err != nil {
		http.Error(w, "invalid resource_id", http.StatusBadRequest)
		return
	}
	start, err1 := time.Parse(time.RFC3339, q.Get("start"))
	end, err2 := time.Parse(time.RFC3339, q.Get("end"))
	if err1 != nil || err2 != nil {
		http.Error(w, "start and end must be RFC3339", http.StatusBadRequest)
		return
	}

	req := scheduling.CheckRequest{ResourceID: resourceID, Start: start, End: end}
	if s := q.Get("holder_id"); s != "" {
		holder, err := uuid.Parse(s)
		if err != nil {
			http.Error(w, "invalid holder_id", http.StatusBadRequest)
			return
		}
		req.Holder = &holder
	}

	res, err := h.checker.CheckSlot(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handlers) GetTimeline(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	resourceID, err := uuid.Parse(q.Get("resource_id"))
	if err != nil {
		http.Error(w, "invalid resource_id", http.StatusBadRequest)
		return
	}
	from, err1 := time.Parse(time.RFC3339, q.Get("from"))
	to, err2 := time.Parse(time.RFC3339, q.Get("to"))
	if err1 != nil || err2 != nil || !to.After(from) {
		http.Error(w, "from and to must be RFC3339 with to after from", http.StatusBadRequest)
		return
	}

	events, err := h.repo.GetEvents(r.Context(), resourceID, from, to)
	if err != nil {
		writeError(w, err)
		return
	}
	type eventOut struct {
		Time       time.Time         `json:"time"`
		Type       domain.EventType  `json:"type"`
		BookingRef uuid.UUID         `json:"booking_ref"`
		ActorRef   uuid.UUID         `json:"actor_ref"`
		Metadata   map[string]string `json:"metadata,omitempty"`
	}
	out := make([]eventOut, 0, len(events))
	for _, ev := range events {
		out = append(out, eventOut{Time: ev.Time, Type: ev.Type, BookingRef: ev.BookingRef, ActorRef: ev.ActorRef, Metadata: ev.Metadata})
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"events": out})
}

func (h *Handlers) FindNext(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	resourceID, err := uuid.Parse(q.Get("resource_id"))
	if err != nil {
		http.Error(w, "invalid resource_id", http.StatusBadRequest)
		return
	}
	from, err := time.Parse(time.RFC3339, q.Get("from"))
	if err != nil {
		http.Error(w, "from must be RFC3339", http.StatusBadRequest)
		return
	}
	durationHours := intParam(q.Get("duration_hours"), 24)
	horizonDays := intParam(q.Get("horizon_days"), 30)

	start, err := h.finder.FindNext(r.Context(), resourceID, from, durationHours, horizonDays)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"start": start.Format(time.RFC3339),
		"end":   start.Add(time.Duration(durationHours) * time.Hour).Format(time.RFC3339),
	})
}

// UpsertDays opens, blocks or annotates day records. Administrative:
// the hold lifecycle never passes through here.
func (h *Handlers) UpsertDays(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ResourceID       uuid.UUID          `json:"resource_id"`
		Dates            []string           `json:"dates"`
		Status           domain.DayStatus   `json:"status"`
		Reason           string             `json:"reason"`
		AvailableHours   []domain.HourRange `json:"available_hours"`
		UnavailableHours []domain.HourRange `json:"unavailable_hours"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	switch req.Status {
	case domain.StatusAvailable, domain.StatusBlocked, domain.StatusUnavailable:
	default:
		http.Error(w, "status must be available, blocked or unavailable", http.StatusBadRequest)
		return
	}
	dates, err := parseDates(req.Dates)
	if err != nil {
		writeError(w, err)
		return
	}
	for _, hr := range append(append([]domain.HourRange{}, req.AvailableHours...), req.UnavailableHours...) {
		if _, err := domain.NewHourRange(hr.Start, hr.End); err != nil {
			writeError(w, err)
			return
		}
	}

	for _, d := range dates {
		day := domain.AvailabilityDay{
			ResourceID:       req.ResourceID,
			Date:             d,
			Status:           req.Status,
			Reason:           req.Reason,
			AvailableHours:   req.AvailableHours,
			UnavailableHours: req.UnavailableHours,
		}
		if err := h.repo.UpsertDay(r.Context(), day); err != nil {
			writeError(w, err)
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"updated": len(dates)})
}

func (h *Handlers) InsertBlock(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ResourceID uuid.UUID `json:"resource_id"`
		Start      time.Time `json:"start"`
		End        time.Time `json:"end"`
		ActorRef   uuid.UUID `json:"actor_ref"`
		Note       string    `json:"note"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if !req.End.After(req.Start) {
		writeError(w, errors.Wrap(domain.ErrValidation, "end must be after start"))
		return
	}

	ref, err := h.repo.InsertBlock(r.Context(), req.ResourceID, req.Start, req.End, req.ActorRef, req.Note)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]interface{}{"block_ref": ref})
}

// ExpireHolds is the administrative sweep trigger; the sweep-worker runs
// the same operation on its interval.
func (h *Handlers) ExpireHolds(w http.ResponseWriter, r *http.Request) {
	cleaned, err := h.sweeper.ExpireHolds(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"cleaned_count": cleaned})
}

func (h *Handlers) Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func (h *Handlers) Readyz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("Ready"))
}

func intParam(s string, def int) int {
	if s == "" {
		return def
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return v
}
