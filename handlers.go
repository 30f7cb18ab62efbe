package main

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/kwv/noisemesh/acoustic"
)

// maxBodyBytes bounds request bodies accepted by the API
const maxBodyBytes = 1 << 20

// placeRequest is the body of POST /sources. Fields other than position and
// type override the preset.
type placeRequest struct {
	acoustic.SourceConfig
}

// settingsRequest is the body of PUT /settings. Nil fields are left unchanged.
type settingsRequest struct {
	Threshold    *float64 `json:"threshold,omitempty"`
	AudioEnabled *bool    `json:"audioEnabled,omitempty"`
	GlobalVolume *float64 `json:"globalVolume,omitempty"`
	Enabled      *bool    `json:"enabled,omitempty"`
}

// newHTTPServer creates an HTTP server with all endpoints
func newHTTPServer(engine *acoustic.Engine) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		log.Printf("[HTTP] /health request from %s", r.RemoteAddr)
		settings := engine.Settings()
		writeJSON(w, http.StatusOK, struct {
			Status       string    `json:"status"`
			Timestamp    time.Time `json:"timestamp"`
			Sources      int       `json:"sources"`
			Enabled      bool      `json:"enabled"`
			AudioEnabled bool      `json:"audioEnabled"`
		}{
			Status:       "ok",
			Timestamp:    time.Now(),
			Sources:      len(engine.Sources()),
			Enabled:      settings.Enabled,
			AudioEnabled: engine.AudioEnabled(),
		})
	})

	mux.HandleFunc("GET /sources", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, engine.Sources())
	})

	mux.HandleFunc("POST /sources", func(w http.ResponseWriter, r *http.Request) {
		var req placeRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		src, ok := req.Source()
		if !ok {
			http.Error(w, "unknown source type: "+string(req.Type), http.StatusBadRequest)
			return
		}
		id, err := engine.AddSource(src)
		if err != nil {
			writeError(w, err)
			return
		}
		log.Printf("[HTTP] placed %s source %s", src.Type, id)
		created, _ := engine.Source(id)
		w.Header().Set("Location", "/sources/"+id)
		writeJSON(w, http.StatusCreated, created)
	})

	mux.HandleFunc("DELETE /sources", func(w http.ResponseWriter, r *http.Request) {
		engine.ClearSources()
		w.WriteHeader(http.StatusNoContent)
	})

	mux.HandleFunc("GET /sources/{id}", func(w http.ResponseWriter, r *http.Request) {
		src, ok := engine.Source(r.PathValue("id"))
		if !ok {
			http.Error(w, "source not found", http.StatusNotFound)
			return
		}
		writeJSON(w, http.StatusOK, src)
	})

	mux.HandleFunc("PATCH /sources/{id}", func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		var patch acoustic.SourcePatch
		if !decodeJSON(w, r, &patch) {
			return
		}
		if err := engine.UpdateSource(id, patch); err != nil {
			writeError(w, err)
			return
		}
		src, _ := engine.Source(id)
		writeJSON(w, http.StatusOK, src)
	})

	mux.HandleFunc("DELETE /sources/{id}", func(w http.ResponseWriter, r *http.Request) {
		if err := engine.RemoveSource(r.PathValue("id")); err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})

	mux.HandleFunc("GET /noise", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, engine.Snapshot())
	})

	mux.HandleFunc("GET /heatmap.png", func(w http.ResponseWriter, r *http.Request) {
		renderer := acoustic.NewHeatmapRenderer(engine.Heatmap(), engine.Sources())
		w.Header().Set("Content-Type", "image/png")
		w.Header().Set("Cache-Control", "no-cache")
		if err := renderer.Encode(w); err != nil {
			log.Printf("[HTTP] error encoding heatmap PNG: %v", err)
		}
	})

	mux.HandleFunc("GET /heatmap.svg", func(w http.ResponseWriter, r *http.Request) {
		renderer := acoustic.NewVectorRenderer(engine.Heatmap(), engine.Sources())
		w.Header().Set("Content-Type", "image/svg+xml")
		w.Header().Set("Cache-Control", "no-cache")
		if err := renderer.RenderToSVG(w); err != nil {
			log.Printf("[HTTP] error rendering heatmap SVG: %v", err)
		}
	})

	mux.HandleFunc("GET /heatmap.json", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, engine.Heatmap())
	})

	mux.HandleFunc("GET /noise.geojson", func(w http.ResponseWriter, r *http.Request) {
		fc := acoustic.ExportGeoJSON(engine.Snapshot(), acoustic.DefaultGeoJSONOptions())
		w.Header().Set("Content-Type", "application/geo+json")
		if err := json.NewEncoder(w).Encode(fc); err != nil {
			log.Printf("[HTTP] error encoding geojson: %v", err)
		}
	})

	mux.HandleFunc("GET /settings", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, engine.Settings())
	})

	mux.HandleFunc("PUT /settings", func(w http.ResponseWriter, r *http.Request) {
		var req settingsRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		if req.Threshold != nil {
			if err := engine.SetThreshold(*req.Threshold); err != nil {
				writeError(w, err)
				return
			}
		}
		if req.Enabled != nil {
			engine.SetEnabled(*req.Enabled)
		}
		if req.GlobalVolume != nil {
			engine.SetGlobalVolume(*req.GlobalVolume)
		}
		if req.AudioEnabled != nil {
			engine.SetAudioEnabled(*req.AudioEnabled)
		}
		writeJSON(w, http.StatusOK, engine.Settings())
	})

	mux.HandleFunc("POST /listener", func(w http.ResponseWriter, r *http.Request) {
		var pose acoustic.ListenerPose
		if !decodeJSON(w, r, &pose) {
			return
		}
		if !engine.SetCameraPose(pose) {
			http.Error(w, "pose components must be finite", http.StatusBadRequest)
			return
		}
		w.WriteHeader(http.StatusAccepted)
	})

	return mux
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		http.Error(w, "invalid JSON body: "+err.Error(), http.StatusBadRequest)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("[HTTP] error encoding response: %v", err)
	}
}

// writeError maps engine errors to HTTP status codes
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, acoustic.ErrSourceNotFound):
		status = http.StatusNotFound
	case errors.Is(err, acoustic.ErrInvalidParameter), errors.Is(err, acoustic.ErrUnknownType):
		status = http.StatusBadRequest
	case errors.Is(err, acoustic.ErrSimulationDisabled):
		status = http.StatusConflict
	}
	http.Error(w, err.Error(), status)
}
