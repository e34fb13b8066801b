package courts

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func doRequest(t *testing.T, handler http.Handler, method, target, body string) (*httptest.ResponseRecorder, map[string]any) {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	decoded := map[string]any{}
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &decoded))
	}
	return rec, decoded
}

func TestHealth(t *testing.T) {
	f, _ := setupFixture(t, DefaultLimits())
	handler := NewHandler(f.service)

	rec, body := doRequest(t, handler, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "ok", body["status"])
}

func TestAvailabilityRequiresFacility(t *testing.T) {
	f, _ := setupFixture(t, DefaultLimits())
	handler := NewHandler(f.service)

	rec, body := doRequest(t, handler, http.MethodGet, "/api/availability", "")
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Contains(t, body["error"], "facility")
}

func TestAvailabilityUnknownFacility(t *testing.T) {
	f, _ := setupFixture(t, DefaultLimits())
	handler := NewHandler(f.service)

	rec, body := doRequest(t, handler, http.MethodGet,
		"/api/availability?facility=nowhere", "")
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Equal(t, "Facility not found", body["error"])
}

func TestScrapeThenAvailability(t *testing.T) {
	f, _ := setupFixture(t, DefaultLimits())
	handler := NewHandler(f.service)

	rec, body := doRequest(t, handler, http.MethodPost, "/api/scrape",
		`{"facility": "Hill Roads Sport and Tennis Centre"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, true, body["scraped"])
	require.Equal(t, false, body["cached"])
	require.Equal(t, float64(2), body["slot_count"])
	require.Len(t, body["data"], 2)

	// a rescrape inside the freshness window serves the cache, data and all
	rec, body = doRequest(t, handler, http.MethodPost, "/api/scrape",
		`{"facility": "Hill Roads Sport and Tennis Centre"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, false, body["scraped"])
	require.Equal(t, true, body["cached"])
	require.Len(t, body["data"], 2)

	rec, body = doRequest(t, handler, http.MethodGet,
		"/api/availability?facility=Hill+Roads+Sport+and+Tennis+Centre&start_time=18%3A30", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, true, body["cached"])
	require.Equal(t, float64(1), body["count"])

	data := body["data"].([]any)
	require.Len(t, data, 1)
	slot := data[0].(map[string]any)
	require.Equal(t, "19:00", slot["start_time"])
	require.Nil(t, slot["court_number"])
	require.NotEmpty(t, slot["scraped_at"])
}

func TestScrapeRejectsBadBody(t *testing.T) {
	f, _ := setupFixture(t, DefaultLimits())
	handler := NewHandler(f.service)

	rec, _ := doRequest(t, handler, http.MethodPost, "/api/scrape", `{}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestFacilitiesEndpoint(t *testing.T) {
	f, _ := setupFixture(t, DefaultLimits())
	handler := NewHandler(f.service)

	rec, body := doRequest(t, handler, http.MethodGet, "/api/facilities", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, []any{testFacility}, body["facilities"])

	// never scraped, so the timestamp is an explicit null
	updated := body["last_updated"].(map[string]any)
	require.Contains(t, updated, testFacility)
	require.Nil(t, updated[testFacility])

	_, scrape := doRequest(t, handler, http.MethodPost, "/api/scrape",
		`{"facility": "Hill Roads Sport and Tennis Centre"}`)
	require.Equal(t, true, scrape["scraped"])

	_, body = doRequest(t, handler, http.MethodGet, "/api/facilities", "")
	updated = body["last_updated"].(map[string]any)
	require.NotNil(t, updated[testFacility])
}

func TestStatsEndpoint(t *testing.T) {
	f, _ := setupFixture(t, DefaultLimits())
	handler := NewHandler(f.service)

	rec, _ := doRequest(t, handler, http.MethodGet,
		"/api/facility/nowhere/stats", "")
	require.Equal(t, http.StatusNotFound, rec.Code)

	_, body := doRequest(t, handler, http.MethodPost, "/api/scrape",
		`{"facility": "Hill Roads Sport and Tennis Centre"}`)
	require.Equal(t, true, body["scraped"])

	rec, body = doRequest(t, handler, http.MethodGet,
		"/api/facility/Hill%20Roads%20Sport%20and%20Tennis%20Centre/stats", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, float64(2), body["cached_slots"])
	require.Equal(t, false, body["circuit_breaker_active"])
}

func TestScrapeAllEndpointSync(t *testing.T) {
	f, _ := setupFixture(t, DefaultLimits())
	handler := NewHandler(f.service)

	rec, body := doRequest(t, handler, http.MethodPost, "/api/scrape-all",
		`{"wait": true}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotEmpty(t, body["run_id"])
	require.Len(t, body["results"], 1)
}

func TestScrapeAllEndpointDetached(t *testing.T) {
	f, _ := setupFixture(t, DefaultLimits())
	handler := NewHandler(f.service)

	rec, body := doRequest(t, handler, http.MethodPost, "/api/scrape-all", `{}`)
	require.Equal(t, http.StatusAccepted, rec.Code)
	require.Equal(t, []any{testFacility}, body["facilities"])
}

func TestScrapeAllEndpointNothingToRun(t *testing.T) {
	f, _ := setupFixture(t, DefaultLimits())
	handler := NewHandler(f.service)

	rec, body := doRequest(t, handler, http.MethodPost, "/api/scrape-all",
		`{"exclude": ["Hill Roads Sport and Tennis Centre"]}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "no_facilities", body["status"])
	require.Equal(t, []any{testFacility}, body["excluded"])
}
