package main

import (
	"bytes"
	"encoding/json"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/go-audio/wav"
	"github.com/kwv/noisemesh/acoustic"
	"github.com/paulmach/orb/geojson"
)

// ---------------------------------------------------------------------------
// helpers
// ---------------------------------------------------------------------------

const testConfigYAML = `simulation:
  noiseThreshold: 50
  gridSize: 20
  sampleCount: 10
audio:
  sampleRate: 8000
sources:
  - type: traffic
    position: {x: 0, y: 0, z: 0}
  - type: industrial
    name: Pump
    position: {x: 40, y: 0, z: 10}
`

// newTestApp returns an App reading testConfigYAML from a temp dir
func newTestApp(t *testing.T) (*App, *bytes.Buffer, string) {
	t.Helper()
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(configPath, []byte(testConfigYAML), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	for _, k := range []string{"MQTT_BROKER", "MQTT_CLIENT_ID", "MQTT_USERNAME", "MQTT_PASSWORD", "MQTT_PUBLISH_PREFIX"} {
		t.Setenv(k, "")
	}

	var out bytes.Buffer
	app := NewApp(&out)
	app.ApplyOptions(AppOptions{
		ConfigFile:    configPath,
		RenderFormat:  "raster",
		VectorFormat:  "svg",
		GridSpacing:   25,
		AudioDuration: 100 * time.Millisecond,
	})
	return app, &out, dir
}

// ---------------------------------------------------------------------------
// construction
// ---------------------------------------------------------------------------

func TestNewApp(t *testing.T) {
	app := NewApp(nil)
	if app == nil {
		t.Fatal("NewApp returned nil")
		return
	}
	if app.Out == nil {
		t.Error("Out should default to a discarding writer")
	}
}

func TestApplyOptions(t *testing.T) {
	app := NewApp(nil)
	opts := AppOptions{
		ConfigFile:    "test-config.yaml",
		OutputFile:    "out.png",
		RenderFormat:  "both",
		VectorFormat:  "png",
		GridSpacing:   10,
		JSONOutput:    true,
		AudioOutput:   "a.wav",
		AudioDuration: 3 * time.Second,
		GeoJSONOutput: "g.geojson",
		MqttMode:      true,
		HttpMode:      true,
		HttpPort:      9000,
	}

	app.ApplyOptions(opts)

	if app.ConfigFile != "test-config.yaml" || app.OutputFile != "out.png" {
		t.Errorf("file options not applied: %+v", app)
	}
	if app.RenderFormat != "both" || app.VectorFormat != "png" || app.GridSpacing != 10 {
		t.Errorf("render options not applied: %+v", app)
	}
	if !app.JSONOutput || app.AudioOutput != "a.wav" || app.AudioDuration != 3*time.Second {
		t.Errorf("output options not applied: %+v", app)
	}
	if app.GeoJSONOutput != "g.geojson" || !app.MqttMode || !app.HttpMode || app.HttpPort != 9000 {
		t.Errorf("service options not applied: %+v", app)
	}
}

func TestLoadConfig_MissingFileUsesDefaults(t *testing.T) {
	t.Setenv("MQTT_BROKER", "")
	app := NewApp(nil)
	app.ConfigFile = filepath.Join(t.TempDir(), "absent.yaml")

	config, err := app.loadConfig()
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if config.Simulation.NoiseThreshold != 50 || len(config.Sources) != 0 {
		t.Errorf("expected defaults, got %+v", config)
	}
}

func TestLoadConfig_InvalidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("audio:\n  backend: speakers\n"), 0644); err != nil {
		t.Fatal(err)
	}
	app := NewApp(nil)
	app.ConfigFile = path
	if _, err := app.loadConfig(); err == nil {
		t.Error("expected validation error")
	}
}

// ---------------------------------------------------------------------------
// one-shot commands
// ---------------------------------------------------------------------------

func TestRunInitConfig(t *testing.T) {
	t.Setenv("MQTT_BROKER", "")
	path := filepath.Join(t.TempDir(), "new.yaml")
	var out bytes.Buffer
	app := NewApp(&out)
	app.ConfigFile = path

	if err := app.RunInitConfig(); err != nil {
		t.Fatalf("RunInitConfig: %v", err)
	}
	cfg, err := acoustic.LoadConfig(path)
	if err != nil {
		t.Fatalf("written config does not load: %v", err)
	}
	if len(cfg.Sources) != 2 {
		t.Errorf("expected 2 sample sources, got %d", len(cfg.Sources))
	}
	if !strings.Contains(out.String(), "Wrote default config") {
		t.Errorf("unexpected output: %s", out.String())
	}

	if err := app.RunInitConfig(); err == nil {
		t.Error("expected refusal to overwrite existing config")
	}
}

func TestRunSummary_Text(t *testing.T) {
	app, out, _ := newTestApp(t)

	if err := app.RunSummary(); err != nil {
		t.Fatalf("RunSummary: %v", err)
	}
	text := out.String()
	for _, want := range []string{"Noise Summary", "Sources:         2", "Traffic Noise", "Pump", "Heatmap cells:", "exceeded"} {
		if !strings.Contains(text, want) {
			t.Errorf("summary missing %q:\n%s", want, text)
		}
	}
}

func TestRunSummary_JSON(t *testing.T) {
	app, out, _ := newTestApp(t)
	app.JSONOutput = true

	if err := app.RunSummary(); err != nil {
		t.Fatalf("RunSummary: %v", err)
	}
	var data acoustic.NoiseData
	if err := json.Unmarshal(out.Bytes(), &data); err != nil {
		t.Fatalf("summary is not JSON: %v\n%s", err, out.String())
	}
	if len(data.Sources) != 2 {
		t.Errorf("expected 2 sources, got %d", len(data.Sources))
	}
	if data.TotalNoise <= 50 {
		t.Errorf("TotalNoise = %v, want above threshold", data.TotalNoise)
	}
}

func TestRunRender_Raster(t *testing.T) {
	app, _, dir := newTestApp(t)
	app.OutputFile = filepath.Join(dir, "heatmap.png")

	if err := app.RunRender(); err != nil {
		t.Fatalf("RunRender: %v", err)
	}
	f, err := os.Open(app.OutputFile)
	if err != nil {
		t.Fatalf("output missing: %v", err)
	}
	defer f.Close()
	if _, err := png.Decode(f); err != nil {
		t.Errorf("output is not a PNG: %v", err)
	}
}

func TestRunRender_Vector(t *testing.T) {
	app, _, dir := newTestApp(t)
	app.OutputFile = filepath.Join(dir, "heatmap.png")
	app.RenderFormat = "vector"

	if err := app.RunRender(); err != nil {
		t.Fatalf("RunRender: %v", err)
	}
	data, err := os.ReadFile(filepath.Join(dir, "heatmap.svg"))
	if err != nil {
		t.Fatalf("svg output missing: %v", err)
	}
	if !bytes.Contains(data, []byte("<svg")) {
		t.Error("output is not an SVG")
	}
}

func TestRunRender_BothWithPNGVector(t *testing.T) {
	app, _, dir := newTestApp(t)
	app.OutputFile = filepath.Join(dir, "heatmap.png")
	app.RenderFormat = "both"
	app.VectorFormat = "png"

	if err := app.RunRender(); err != nil {
		t.Fatalf("RunRender: %v", err)
	}
	for _, name := range []string{"heatmap.png", "heatmap-vector.png"} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			t.Errorf("expected %s: %v", name, err)
		}
	}
}

func TestRunRender_InvalidFormat(t *testing.T) {
	app, _, dir := newTestApp(t)
	app.OutputFile = filepath.Join(dir, "x.png")

	app.RenderFormat = "gif"
	if err := app.RunRender(); err == nil {
		t.Error("expected error for invalid format")
	}

	app.RenderFormat = "vector"
	app.VectorFormat = "pdf"
	if err := app.RunRender(); err == nil {
		t.Error("expected error for invalid vector format")
	}
}

func TestRunRenderAudio(t *testing.T) {
	app, out, dir := newTestApp(t)
	app.AudioOutput = filepath.Join(dir, "mix.wav")

	if err := app.RunRenderAudio(); err != nil {
		t.Fatalf("RunRenderAudio: %v", err)
	}
	f, err := os.Open(app.AudioOutput)
	if err != nil {
		t.Fatalf("wav output missing: %v", err)
	}
	defer f.Close()
	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		t.Fatal("output is not a valid WAV")
	}
	if dec.SampleRate != 8000 {
		t.Errorf("SampleRate = %d, want 8000", dec.SampleRate)
	}
	if !strings.Contains(out.String(), "Mixing 2 voices") {
		t.Errorf("unexpected output: %s", out.String())
	}
}

func TestRunRenderAudio_InvalidDuration(t *testing.T) {
	app, _, dir := newTestApp(t)
	app.AudioOutput = filepath.Join(dir, "mix.wav")
	app.AudioDuration = 0
	if err := app.RunRenderAudio(); err == nil {
		t.Error("expected error for zero duration")
	}
}

func TestRunGeoJSON(t *testing.T) {
	app, _, dir := newTestApp(t)
	app.GeoJSONOutput = filepath.Join(dir, "noise.geojson")

	if err := app.RunGeoJSON(); err != nil {
		t.Fatalf("RunGeoJSON: %v", err)
	}
	data, err := os.ReadFile(app.GeoJSONOutput)
	if err != nil {
		t.Fatalf("geojson output missing: %v", err)
	}
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		t.Fatalf("output is not GeoJSON: %v", err)
	}
	sources := 0
	for _, f := range fc.Features {
		if f.Properties["kind"] == acoustic.FeatureSource {
			sources++
		}
	}
	if sources != 2 {
		t.Errorf("expected 2 source features, got %d", sources)
	}
}

// ---------------------------------------------------------------------------
// service
// ---------------------------------------------------------------------------

func TestRunService_NothingToServe(t *testing.T) {
	app, _, _ := newTestApp(t)
	if err := app.RunService(); err == nil {
		t.Error("expected error when neither --mqtt nor --http is set")
	}
}

func TestRunService_MQTTWithoutBroker(t *testing.T) {
	app, _, _ := newTestApp(t)
	app.MqttMode = true
	err := app.RunService()
	if err == nil || !strings.Contains(err.Error(), "broker not configured") {
		t.Errorf("expected broker error, got %v", err)
	}
}

func TestPublishNoise(t *testing.T) {
	app, _, _ := newTestApp(t)
	config, err := app.loadConfig()
	if err != nil {
		t.Fatal(err)
	}
	engine, err := app.buildEngine(config, nil)
	if err != nil {
		t.Fatal(err)
	}

	mockClient := acoustic.NewMockClient()
	mockClient.SetConnected(true)
	app.Publisher = acoustic.NewPublisher(mockClient, "test")
	engine.OnNoiseChange(app.publishNoise)

	if _, err := engine.PlaceSource(acoustic.Vec3{X: -30}, acoustic.TypeResidential); err != nil {
		t.Fatalf("PlaceSource: %v", err)
	}

	msg, ok := mockClient.LastOn("test/noise")
	if !ok {
		t.Fatal("no noise summary published")
	}
	var summary acoustic.NoiseSummary
	if err := json.Unmarshal(msg.Payload, &summary); err != nil {
		t.Fatalf("payload: %v", err)
	}
	if summary.SourceCount != 3 {
		t.Errorf("SourceCount = %d, want 3", summary.SourceCount)
	}
	if _, ok := mockClient.LastOn("test/audio"); !ok {
		t.Error("no audio status published")
	}
}

func TestPublishNoise_AudioFromSnapshot(t *testing.T) {
	mockClient := acoustic.NewMockClient()
	mockClient.SetConnected(true)
	app := NewApp(nil)
	app.Publisher = acoustic.NewPublisher(mockClient, "test")

	// No engine is wired: the audio status travels with the snapshot.
	app.publishNoise(acoustic.NoiseData{Audio: acoustic.AudioStatus{Enabled: true, Voices: 2}})

	msg, ok := mockClient.LastOn("test/audio")
	if !ok {
		t.Fatal("no audio status published")
	}
	var status acoustic.AudioStatus
	if err := json.Unmarshal(msg.Payload, &status); err != nil {
		t.Fatalf("payload: %v", err)
	}
	if !status.Enabled || status.Voices != 2 {
		t.Errorf("audio status = %+v, want enabled with 2 voices", status)
	}
}

func TestPublishNoise_NoPublisher(t *testing.T) {
	app := NewApp(nil)
	// Must not panic without MQTT wiring.
	app.publishNoise(acoustic.NoiseData{})
}
