package web

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/darkace1998/FlowSentry/internal/analysis"
	"github.com/darkace1998/FlowSentry/internal/filter"
	"github.com/darkace1998/FlowSentry/internal/logging"
	"github.com/darkace1998/FlowSentry/internal/model"
)

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Default().Named("web").Warn("encoding response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// --- Flows ---

// FlowsResponse is the filtered flow view.
type FlowsResponse struct {
	Flows      []model.FlowRecord `json:"flows"`
	Total      int                `json:"total"` // flows in the store
	Shown      int                `json:"shown"` // flows matching the filters
	Filters    map[string]string  `json:"filters"`
	Page       int                `json:"page,omitempty"`
	TotalPages int                `json:"totalPages,omitempty"`
}

// parseFilters builds a filter state from query parameters named after the
// filterable fields, e.g. ?Src=10.0.0.1&DestPort=80.
func parseFilters(r *http.Request) (filter.State, error) {
	var st filter.State
	q := r.URL.Query()
	for _, f := range filter.Fields {
		if !q.Has(f.String()) {
			continue
		}
		v, err := f.ParseValue(q.Get(f.String()))
		if err != nil {
			return st, err
		}
		st.Set(f, v)
	}
	return st, nil
}

func (s *Server) handleFlows(w http.ResponseWriter, r *http.Request) {
	st, err := parseFilters(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	all := s.sess.Store().Flows()
	matched := filter.Apply(st, all)

	resp := FlowsResponse{
		Flows:   matched,
		Total:   len(all),
		Shown:   len(matched),
		Filters: make(map[string]string),
	}
	for _, f := range st.Active() {
		v, _ := st.Get(f)
		resp.Filters[f.String()] = v.String()
	}

	if pageSize := s.cfg.PageSize; pageSize > 0 {
		page, _ := strconv.Atoi(r.URL.Query().Get("page"))
		if page < 1 {
			page = 1
		}
		totalPages := (len(matched) + pageSize - 1) / pageSize
		if totalPages < 1 {
			totalPages = 1
		}
		if page > totalPages {
			page = totalPages
		}
		start := (page - 1) * pageSize
		end := start + pageSize
		if end > len(matched) {
			end = len(matched)
		}
		resp.Flows = matched[start:end]
		resp.Page = page
		resp.TotalPages = totalPages
	}

	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleFlow(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid flow id")
		return
	}
	f, ok := s.sess.Store().Get(id)
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Sprintf("flow %d not found", id))
		return
	}
	writeJSON(w, http.StatusOK, f)
}

// --- Facets ---

// FacetResponse lists the distinct values of one field over the whole store.
type FacetResponse struct {
	Field  string         `json:"field"`
	Values []filter.Value `json:"values"`
}

func (s *Server) handleFacet(w http.ResponseWriter, r *http.Request) {
	field, err := filter.ParseField(mux.Vars(r)["field"])
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, FacetResponse{
		Field:  field.String(),
		Values: filter.DistinctValues(field, s.sess.Store().Flows()),
	})
}

func (s *Server) handleAllFacets(w http.ResponseWriter, r *http.Request) {
	flows := s.sess.Store().Flows()
	out := make(map[string][]filter.Value, len(filter.Fields))
	for _, f := range filter.Fields {
		out[f.String()] = filter.DistinctValues(f, flows)
	}
	writeJSON(w, http.StatusOK, out)
}

// --- Status and actions ---

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.sess.Snapshot())
}

// handleAction runs a user action and answers with the resulting session
// snapshot. A backend failure yields 502 with the user-facing message.
func (s *Server) handleAction(action func(ctx context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := action(r.Context()); err != nil {
			s.log.Warn("%s %s: %v", r.Method, r.URL.Path, err)
			msg := s.sess.Snapshot().Error
			if msg == "" {
				msg = err.Error()
			}
			writeError(w, http.StatusBadGateway, msg)
			return
		}
		writeJSON(w, http.StatusOK, s.sess.Snapshot())
	}
}

// --- Alerts ---

func (s *Server) handleAlerts(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.alerts.Active())
}

func (s *Server) handleDismissAlert(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if !s.alerts.Dismiss(id) {
		writeError(w, http.StatusNotFound, fmt.Sprintf("alert %q not found", id))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- Analytics ---

// ipStatsSourceHeader tells clients whether /api/ip-stats came from the
// backend or from the local store.
const ipStatsSourceHeader = "X-IP-Stats-Source"

func (s *Server) handleIPStats(w http.ResponseWriter, r *http.Request) {
	n := 0
	if raw := r.URL.Query().Get("top"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 0 {
			writeError(w, http.StatusBadRequest, "top must be a non-negative integer")
			return
		}
		n = v
	}
	if s.ipStats != nil {
		st, err := s.ipStats.FetchIPStats(r.Context())
		if err == nil {
			w.Header().Set(ipStatsSourceHeader, "backend")
			writeJSON(w, http.StatusOK, analysis.TopIPStats(st, n))
			return
		}
		s.log.Warn("ip-stats from backend failed, using local flows: %v", err)
	}
	w.Header().Set(ipStatsSourceHeader, "local")
	writeJSON(w, http.StatusOK, analysis.BuildIPStats(s.sess.Store().Flows(), n))
}

// AboutInfo describes the running process.
type AboutInfo struct {
	Version        string `json:"version"`
	Uptime         string `json:"uptime"`
	StartTime      string `json:"startTime"`
	Backend        string `json:"backend"`
	StatusInterval string `json:"statusInterval"`
	FlowsInterval  string `json:"flowsInterval"`
	DoSThreshold   int    `json:"dosThreshold"`
}

func (s *Server) handleAbout(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, AboutInfo{
		Version:        s.version,
		Uptime:         time.Since(s.startTime).Truncate(time.Second).String(),
		StartTime:      s.startTime.Format(time.RFC3339),
		Backend:        s.fullCfg.Backend.BaseURL,
		StatusInterval: s.fullCfg.Poll.StatusInterval.String(),
		FlowsInterval:  s.fullCfg.Poll.FlowsInterval.String(),
		DoSThreshold:   s.fullCfg.Analysis.DoSThreshold,
	})
}

// --- Debug ---

func (s *Server) handleLogLevel(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("level")
	if raw == "" {
		fmt.Fprintf(w, "current log level: %s\n", logging.Default().Level())
		return
	}
	lvl := logging.ParseLevel(raw)
	logging.Default().SetLevel(lvl)
	fmt.Fprintf(w, "log level set to %s\n", lvl)
}
