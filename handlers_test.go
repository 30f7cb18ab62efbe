package main

import (
	"bytes"
	"encoding/json"
	"image/png"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/kwv/noisemesh/acoustic"
	"github.com/paulmach/orb/geojson"
)

// ---------------------------------------------------------------------------
// helpers
// ---------------------------------------------------------------------------

func newTestServer(t *testing.T) (http.Handler, *acoustic.Engine) {
	t.Helper()
	settings := acoustic.DefaultSettings()
	settings.Heatmap.GridSize = 10
	engine := acoustic.NewEngine(settings, acoustic.NewRecordingBackend())
	return newHTTPServer(engine), engine
}

func doRequest(h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func placeTraffic(t *testing.T, engine *acoustic.Engine) string {
	t.Helper()
	id, err := engine.PlaceSource(acoustic.Vec3{}, acoustic.TypeTraffic)
	if err != nil {
		t.Fatalf("PlaceSource: %v", err)
	}
	return id
}

// ---------------------------------------------------------------------------
// health and sources
// ---------------------------------------------------------------------------

func TestHealthEndpoint(t *testing.T) {
	h, engine := newTestServer(t)
	placeTraffic(t, engine)

	rec := doRequest(h, http.MethodGet, "/health", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var body map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if body["status"] != "ok" || body["sources"] != 1.0 || body["enabled"] != true {
		t.Errorf("unexpected health body: %v", body)
	}
}

func TestSourcesEndpoint_Empty(t *testing.T) {
	h, _ := newTestServer(t)

	rec := doRequest(h, http.MethodGet, "/sources", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if strings.TrimSpace(rec.Body.String()) != "[]" {
		t.Errorf("body = %s, want []", rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %s", ct)
	}
}

func TestPlaceSource(t *testing.T) {
	h, engine := newTestServer(t)

	rec := doRequest(h, http.MethodPost, "/sources",
		`{"type":"construction","position":{"x":5,"y":0,"z":-5},"name":"Crane","radius":40}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201: %s", rec.Code, rec.Body.String())
	}

	var src acoustic.NoiseSource
	if err := json.Unmarshal(rec.Body.Bytes(), &src); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if src.Name != "Crane" || src.Radius != 40 || src.Intensity != 85 {
		t.Errorf("unexpected source: %+v", src)
	}
	if rec.Header().Get("Location") != "/sources/"+src.ID {
		t.Errorf("Location = %s", rec.Header().Get("Location"))
	}
	if len(engine.Sources()) != 1 {
		t.Errorf("engine has %d sources, want 1", len(engine.Sources()))
	}
}

func TestPlaceSource_Errors(t *testing.T) {
	tests := []struct {
		name string
		body string
		want int
	}{
		{"unknown type", `{"type":"jet","position":{"x":0,"y":0,"z":0}}`, http.StatusBadRequest},
		{"bad json", `{"type":`, http.StatusBadRequest},
		{"negative radius", `{"type":"traffic","radius":-3}`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, _ := newTestServer(t)
			rec := doRequest(h, http.MethodPost, "/sources", tt.body)
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d: %s", rec.Code, tt.want, rec.Body.String())
			}
		})
	}
}

func TestPlaceSource_SimulationDisabled(t *testing.T) {
	h, engine := newTestServer(t)
	engine.SetEnabled(false)

	rec := doRequest(h, http.MethodPost, "/sources", `{"type":"traffic"}`)
	if rec.Code != http.StatusConflict {
		t.Errorf("status = %d, want 409", rec.Code)
	}
}

func TestGetSource(t *testing.T) {
	h, engine := newTestServer(t)
	id := placeTraffic(t, engine)

	rec := doRequest(h, http.MethodGet, "/sources/"+id, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var src acoustic.NoiseSource
	if err := json.Unmarshal(rec.Body.Bytes(), &src); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if src.ID != id {
		t.Errorf("ID = %s, want %s", src.ID, id)
	}

	rec = doRequest(h, http.MethodGet, "/sources/missing", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestPatchSource(t *testing.T) {
	h, engine := newTestServer(t)
	id := placeTraffic(t, engine)

	rec := doRequest(h, http.MethodPatch, "/sources/"+id, `{"intensity":40,"isActive":false}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	src, _ := engine.Source(id)
	if src.Intensity != 40 || src.IsActive {
		t.Errorf("patch not applied: %+v", src)
	}

	rec = doRequest(h, http.MethodPatch, "/sources/"+id, `{"radius":0}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400 for invalid radius", rec.Code)
	}

	rec = doRequest(h, http.MethodPatch, "/sources/missing", `{"intensity":1}`)
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestDeleteSource(t *testing.T) {
	h, engine := newTestServer(t)
	id := placeTraffic(t, engine)

	rec := doRequest(h, http.MethodDelete, "/sources/"+id, "")
	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", rec.Code)
	}
	if len(engine.Sources()) != 0 {
		t.Error("source not removed")
	}

	rec = doRequest(h, http.MethodDelete, "/sources/"+id, "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("second delete status = %d, want 404", rec.Code)
	}
}

func TestClearSources(t *testing.T) {
	h, engine := newTestServer(t)
	placeTraffic(t, engine)
	placeTraffic(t, engine)

	rec := doRequest(h, http.MethodDelete, "/sources", "")
	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", rec.Code)
	}
	if len(engine.Sources()) != 0 {
		t.Error("sources not cleared")
	}
}

func TestMethodNotAllowed(t *testing.T) {
	h, _ := newTestServer(t)
	rec := doRequest(h, http.MethodPut, "/sources", "")
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want 405", rec.Code)
	}
}

// ---------------------------------------------------------------------------
// noise outputs
// ---------------------------------------------------------------------------

func TestNoiseEndpoint(t *testing.T) {
	h, engine := newTestServer(t)
	placeTraffic(t, engine)

	rec := doRequest(h, http.MethodGet, "/noise", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var data acoustic.NoiseData
	if err := json.Unmarshal(rec.Body.Bytes(), &data); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if len(data.Sources) != 1 || data.TotalNoise <= 0 {
		t.Errorf("unexpected noise data: %+v", data)
	}
}

func TestHeatmapPNG(t *testing.T) {
	h, engine := newTestServer(t)
	placeTraffic(t, engine)

	rec := doRequest(h, http.MethodGet, "/heatmap.png", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "image/png" {
		t.Errorf("Content-Type = %s, want image/png", ct)
	}
	if _, err := png.Decode(bytes.NewReader(rec.Body.Bytes())); err != nil {
		t.Errorf("body is not a PNG: %v", err)
	}
}

func TestHeatmapSVG(t *testing.T) {
	h, engine := newTestServer(t)
	placeTraffic(t, engine)

	rec := doRequest(h, http.MethodGet, "/heatmap.svg", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "image/svg+xml" {
		t.Errorf("Content-Type = %s", ct)
	}
	if !strings.Contains(rec.Body.String(), "<svg") {
		t.Error("body is not an SVG")
	}
}

func TestHeatmapJSON(t *testing.T) {
	h, engine := newTestServer(t)
	placeTraffic(t, engine)

	rec := doRequest(h, http.MethodGet, "/heatmap.json", "")
	var grid acoustic.ColorGrid
	if err := json.Unmarshal(rec.Body.Bytes(), &grid); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if grid.Size != 10 || len(grid.Bands) != 100 {
		t.Errorf("unexpected grid size %d with %d bands", grid.Size, len(grid.Bands))
	}
	if !strings.Contains(rec.Body.String(), `"exceeded"`) {
		t.Error("bands should be encoded by name")
	}
}

func TestNoiseGeoJSON(t *testing.T) {
	h, engine := newTestServer(t)
	placeTraffic(t, engine)

	rec := doRequest(h, http.MethodGet, "/noise.geojson", "")
	if ct := rec.Header().Get("Content-Type"); ct != "application/geo+json" {
		t.Errorf("Content-Type = %s", ct)
	}
	fc, err := geojson.UnmarshalFeatureCollection(rec.Body.Bytes())
	if err != nil {
		t.Fatalf("invalid GeoJSON: %v", err)
	}
	if len(fc.Features) == 0 {
		t.Error("expected features")
	}
}

// ---------------------------------------------------------------------------
// settings and listener
// ---------------------------------------------------------------------------

func TestSettingsEndpoint(t *testing.T) {
	h, engine := newTestServer(t)

	rec := doRequest(h, http.MethodGet, "/settings", "")
	var settings acoustic.Settings
	if err := json.Unmarshal(rec.Body.Bytes(), &settings); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if settings.Threshold != 50 {
		t.Errorf("Threshold = %v, want 50", settings.Threshold)
	}

	rec = doRequest(h, http.MethodPut, "/settings", `{"threshold":65,"globalVolume":0.8,"audioEnabled":true}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	got := engine.Settings()
	if got.Threshold != 65 || got.GlobalVolume != 0.8 || !got.AudioEnabled {
		t.Errorf("settings not applied: %+v", got)
	}

	rec = doRequest(h, http.MethodPut, "/settings", `{"threshold":-2}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestSettingsEndpoint_Disable(t *testing.T) {
	h, engine := newTestServer(t)
	placeTraffic(t, engine)

	rec := doRequest(h, http.MethodPut, "/settings", `{"enabled":false}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if engine.Settings().Enabled || len(engine.Sources()) != 0 {
		t.Error("disabling should clear sources")
	}
}

func TestListenerEndpoint(t *testing.T) {
	h, engine := newTestServer(t)
	engine.SetAudioEnabled(true)

	rec := doRequest(h, http.MethodPost, "/listener",
		`{"position":{"x":1,"y":2,"z":3},"forward":{"x":0,"y":0,"z":-1},"up":{"x":0,"y":1,"z":0}}`)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", rec.Code)
	}
	if !engine.TickListener() {
		t.Error("pose should reach the backend on the next tick")
	}

	rec = doRequest(h, http.MethodPost, "/listener", `{"position":{"x":1e999}}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400 for invalid pose", rec.Code)
	}
}
