package courts

import (
	"context"
	"database/sql"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"courtfinder-backend/lib/timezone"
	"courtfinder-backend/services/courts/db"

	"github.com/cockroachdb/errors"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// NewHandler mounts the REST surface. All payloads are JSON.
func NewHandler(service *Service) http.Handler {
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.Recoverer)
	router.Use(corsMiddleware)

	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	router.Route("/api", func(r chi.Router) {
		r.Get("/availability", service.handleAvailability)
		r.Get("/facilities", service.handleFacilities)
		r.Post("/scrape", service.handleScrape)
		r.Post("/scrape-all", service.handleScrapeAll)
		r.Get("/facility/{name}/stats", service.handleStats)
	})

	return router
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

type slotPayload struct {
	Date        string  `json:"date"`
	DayName     string  `json:"day_name"`
	StartTime   string  `json:"start_time"`
	EndTime     string  `json:"end_time"`
	CourtNumber *string `json:"court_number"`
	ScrapedAt   string  `json:"scraped_at"`
}

func slotPayloads(slots []db.Slot) []slotPayload {
	out := make([]slotPayload, 0, len(slots))
	for _, s := range slots {
		p := slotPayload{
			Date:      s.Date,
			DayName:   s.DayName,
			StartTime: s.StartTime,
			EndTime:   s.EndTime,
			ScrapedAt: time.Unix(s.ScrapedAt, 0).In(timezone.Location).Format(time.RFC3339),
		}
		if s.CourtNumber.Valid {
			court := s.CourtNumber.String
			p.CourtNumber = &court
		}
		out = append(out, p)
	}
	return out
}

func (s *Service) handleAvailability(w http.ResponseWriter, r *http.Request) {
	facility := r.URL.Query().Get("facility")
	if facility == "" {
		writeError(w, http.StatusBadRequest, "facility query parameter is required")
		return
	}

	availability, err := s.GetAvailability(r.Context(), facility, AvailabilityQuery{
		Date:      r.URL.Query().Get("date"),
		StartTime: r.URL.Query().Get("start_time"),
		EndTime:   r.URL.Query().Get("end_time"),
	})
	if errors.Is(err, sql.ErrNoRows) {
		writeError(w, http.StatusNotFound, "Facility not found")
		return
	}
	if err != nil {
		writeInternalError(w, r.Context(), err)
		return
	}

	data := slotPayloads(availability.Slots)
	writeJSON(w, http.StatusOK, struct {
		Facility string        `json:"facility"`
		Count    int           `json:"count"`
		Data     []slotPayload `json:"data"`
		Cached   bool          `json:"cached"`
	}{
		Facility: availability.Facility,
		Count:    len(data),
		Data:     data,
		Cached:   true,
	})
}

func (s *Service) handleFacilities(w http.ResponseWriter, r *http.Request) {
	names, err := s.FacilityNames(r.Context())
	if err != nil {
		writeInternalError(w, r.Context(), err)
		return
	}
	updated, err := s.FacilitiesLastUpdated(r.Context())
	if err != nil {
		writeInternalError(w, r.Context(), err)
		return
	}

	lastUpdated := make(map[string]*string, len(updated))
	for name, at := range updated {
		lastUpdated[name] = nil
		if at != nil {
			iso := time.Unix(*at, 0).In(timezone.Location).Format(time.RFC3339)
			lastUpdated[name] = &iso
		}
	}
	writeJSON(w, http.StatusOK, struct {
		Facilities  []string           `json:"facilities"`
		LastUpdated map[string]*string `json:"last_updated"`
	}{Facilities: names, LastUpdated: lastUpdated})
}

func (s *Service) handleScrape(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Facility string `json:"facility"`
	}
	err := json.NewDecoder(r.Body).Decode(&body)
	if err != nil || body.Facility == "" {
		writeError(w, http.StatusBadRequest, "body must be JSON with a facility field")
		return
	}

	result, err := s.ScrapeFacility(r.Context(), body.Facility)
	if err != nil {
		slog.ErrorContext(r.Context(), "scrape request failed", "err", err)
		writeJSON(w, http.StatusInternalServerError, struct {
			Error    string        `json:"error"`
			Facility string        `json:"facility"`
			Cached   bool          `json:"cached"`
			Data     []slotPayload `json:"data"`
		}{Error: err.Error(), Facility: body.Facility, Cached: true, Data: slotPayloads(result.Data)})
		return
	}
	writeJSON(w, http.StatusOK, struct {
		ScrapeResult
		Data []slotPayload `json:"data"`
	}{ScrapeResult: result, Data: slotPayloads(result.Data)})
}

func (s *Service) handleScrapeAll(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Exclude []string `json:"exclude"`
		Wait    bool     `json:"wait"`
	}
	if r.Body != nil {
		// an empty body means defaults
		_ = json.NewDecoder(r.Body).Decode(&body)
	}

	if body.Wait {
		report, err := s.ScrapeAll(r.Context(), body.Exclude)
		if err != nil {
			writeInternalError(w, r.Context(), err)
			return
		}
		writeJSON(w, http.StatusOK, report)
		return
	}

	toRun, excluded := s.ScrapePlan(body.Exclude)
	if len(toRun) == 0 {
		writeJSON(w, http.StatusOK, struct {
			Status   string   `json:"status"`
			Excluded []string `json:"excluded"`
		}{Status: "no_facilities", Excluded: excluded})
		return
	}

	// the full run takes minutes because of the inter facility delay, so
	// it detaches from the request
	go func() {
		_, err := s.ScrapeAll(context.Background(), body.Exclude)
		if err != nil {
			slog.Error("background scrape-all failed", "err", err)
		}
	}()
	writeJSON(w, http.StatusAccepted, struct {
		Status     string   `json:"status"`
		Facilities []string `json:"facilities"`
		Excluded   []string `json:"excluded"`
	}{Status: "scrape-all started", Facilities: toRun, Excluded: excluded})
}

func (s *Service) handleStats(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	stats, err := s.FacilityStats(r.Context(), name)
	if errors.Is(err, sql.ErrNoRows) {
		writeError(w, http.StatusNotFound, "Facility not found")
		return
	}
	if err != nil {
		writeInternalError(w, r.Context(), err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	err := json.NewEncoder(w).Encode(body)
	if err != nil {
		slog.Error("failed to encode response", "err", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func writeInternalError(w http.ResponseWriter, ctx context.Context, err error) {
	slog.ErrorContext(ctx, "request failed", "err", err)
	writeError(w, http.StatusInternalServerError, err.Error())
}
