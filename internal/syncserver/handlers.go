package syncserver

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/rcliao/hydrosync/internal/hydration"
	"github.com/rcliao/hydrosync/internal/model"
	"github.com/rcliao/hydrosync/internal/store"
	"github.com/rcliao/hydrosync/internal/transport"
)

func (s *Server) unit(ctx context.Context) model.UnitSystem {
	u, err := s.state.Unit(ctx)
	if err != nil {
		s.log.Warn("read unit", "error", err)
	}
	return u
}

// dateParam returns the day named by ?date=, or today when absent.
func (s *Server) dateParam(r *http.Request) (time.Time, bool, error) {
	raw := r.URL.Query().Get("date")
	if raw == "" {
		return s.tracker.Now(), true, nil
	}
	day, err := hydration.ParseDay(raw, s.tracker.Location())
	if err != nil {
		return time.Time{}, false, err
	}
	today := model.StartOfDay(s.tracker.Now(), s.tracker.Location())
	return day, day.Equal(today), nil
}

// numberParam parses a required finite number.
func numberParam(r *http.Request, name string) (float64, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, fmt.Errorf("missing %s parameter", name)
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("invalid %s %q", name, raw)
	}
	return v, nil
}

func (s *Server) report(path transport.Path, res transport.Result) {
	switch res.Kind {
	case transport.Success:
	case transport.NoNodesFound, transport.APINotAvailable:
		s.log.Debug("companions not reached", "path", path, "result", res.String())
	default:
		s.log.Warn("send to companions", "path", path, "result", res.String())
	}
}

func (s *Server) getHydration(w http.ResponseWriter, r *http.Request) {
	day, isToday, err := s.dateParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var total float64
	if isToday {
		total = s.tracker.Today(r.Context())
	} else {
		total = s.tracker.DayTotal(r.Context(), day)
	}
	unit := s.unit(r.Context())
	writeSuccess(w, unit, map[string]any{"hydration": unit.ToDisplay(total)})
}

func (s *Server) postHydration(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	amount, err := numberParam(r, "hydration")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if amount < 0 {
		writeError(w, http.StatusBadRequest, "hydration must not be negative")
		return
	}
	day, isToday, err := s.dateParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	unit := s.unit(ctx)
	total, err := s.tracker.AddOn(ctx, day, unit.FromDisplay(amount), model.SourceHTTP)
	switch {
	case errors.Is(err, hydration.ErrFutureDate), errors.Is(err, store.ErrNegativeAmount):
		writeError(w, http.StatusBadRequest, err.Error())
		return
	case err != nil:
		s.log.Error("record intake", "error", err)
		writeError(w, http.StatusInternalServerError, "could not record intake")
		return
	}

	if isToday && s.peers != nil {
		s.report(transport.PushIntake, s.peers.PushIntake(ctx))
	}
	writeSuccess(w, unit, map[string]any{"hydration": unit.ToDisplay(total)})
}

func (s *Server) getGoal(w http.ResponseWriter, r *http.Request) {
	goal, err := s.state.Goal(r.Context())
	if err != nil {
		s.log.Error("read goal", "error", err)
		writeError(w, http.StatusInternalServerError, "could not read goal")
		return
	}
	unit := s.unit(r.Context())
	writeSuccess(w, unit, map[string]any{"goal": unit.ToDisplay(goal)})
}

func (s *Server) postGoal(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	goal, err := numberParam(r, "goal")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if goal <= 0 {
		writeError(w, http.StatusBadRequest, "goal must be positive")
		return
	}

	unit := s.unit(ctx)
	if err := s.state.SetGoal(ctx, unit.FromDisplay(goal)); err != nil {
		s.log.Error("store goal", "error", err)
		writeError(w, http.StatusInternalServerError, "could not store goal")
		return
	}
	if s.peers != nil {
		s.report(transport.PushGoal, s.peers.PushGoal(ctx))
	}
	writeSuccess(w, unit, map[string]any{"goal": goal})
}

func (s *Server) getHistory(w http.ResponseWriter, r *http.Request) {
	day, _, err := s.dateParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	unit := s.unit(r.Context())
	month := s.tracker.Month(r.Context(), day)
	history := make(map[string]float64, len(month))
	for k, v := range month {
		history[k] = unit.ToDisplay(v)
	}
	writeSuccess(w, unit, map[string]any{"history": history})
}

func (s *Server) getUnit(w http.ResponseWriter, r *http.Request) {
	writeSuccess(w, s.unit(r.Context()), nil)
}

func (s *Server) getQuickAdd(w http.ResponseWriter, r *http.Request) {
	q := s.tracker.QuickAdd(r.Context())
	writeSuccess(w, s.unit(r.Context()), map[string]any{
		"small":  q.Small,
		"medium": q.Medium,
		"large":  q.Large,
	})
}

func (s *Server) getStreaks(w http.ResponseWriter, r *http.Request) {
	st, err := s.tracker.Streaks(r.Context())
	if err != nil {
		s.log.Error("compute streaks", "error", err)
		writeError(w, http.StatusInternalServerError, "could not compute streaks")
		return
	}
	writeSuccess(w, s.unit(r.Context()), map[string]any{
		"longestStreak": st.Longest,
		"currentStreak": st.Current,
	})
}
