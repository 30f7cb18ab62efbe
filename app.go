package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/kwv/noisemesh/acoustic"
)

// App encapsulates the application state and dependencies
type App struct {
	Config     *acoustic.Config
	Engine     *acoustic.Engine
	MQTTClient *acoustic.MQTTClient
	Publisher  *acoustic.Publisher
	Out        io.Writer

	// CLI Flags (effectively dependencies)
	ConfigFile    string
	OutputFile    string
	RenderFormat  string
	VectorFormat  string
	GridSpacing   float64
	JSONOutput    bool
	AudioOutput   string
	AudioDuration time.Duration
	GeoJSONOutput string
	HttpPort      int
	MqttMode      bool
	HttpMode      bool
}

// NewApp creates a new App writing user-facing output to out
func NewApp(out io.Writer) *App {
	if out == nil {
		out = io.Discard
	}
	return &App{Out: out}
}

// ApplyOptions applies CLI options to the App instance
func (a *App) ApplyOptions(opts AppOptions) {
	a.ConfigFile = opts.ConfigFile
	a.OutputFile = opts.OutputFile
	a.RenderFormat = opts.RenderFormat
	a.VectorFormat = opts.VectorFormat
	a.GridSpacing = opts.GridSpacing
	a.JSONOutput = opts.JSONOutput
	a.AudioOutput = opts.AudioOutput
	a.AudioDuration = opts.AudioDuration
	a.GeoJSONOutput = opts.GeoJSONOutput
	a.HttpPort = opts.HttpPort
	a.MqttMode = opts.MqttMode
	a.HttpMode = opts.HttpMode
}

// loadConfig reads --config, falling back to defaults when the file does not
// exist.
func (a *App) loadConfig() (*acoustic.Config, error) {
	if a.Config != nil {
		return a.Config, nil
	}
	if _, err := os.Stat(a.ConfigFile); errors.Is(err, fs.ErrNotExist) {
		log.Printf("Config %s not found, using defaults", a.ConfigFile)
		a.Config = acoustic.DefaultConfigFromEnv()
		return a.Config, nil
	}
	config, err := acoustic.LoadConfig(a.ConfigFile)
	if err != nil {
		return nil, fmt.Errorf("loading config %s: %w", a.ConfigFile, err)
	}
	log.Printf("Loaded config from %s", a.ConfigFile)
	a.Config = config
	return config, nil
}

// buildEngine creates the engine for config with backend and loads the
// configured initial sources.
func (a *App) buildEngine(config *acoustic.Config, backend acoustic.SpatialAudioBackend) (*acoustic.Engine, error) {
	engine := acoustic.NewEngine(config.Settings(), backend)
	ids, err := acoustic.LoadSources(engine, config.Sources)
	if err != nil {
		return nil, fmt.Errorf("loading sources: %w", err)
	}
	if len(ids) > 0 {
		log.Printf("[ENGINE] loaded %d sources from config", len(ids))
	}
	a.Engine = engine
	return engine, nil
}

// liveBackend selects the audio backend for service mode. A device that
// cannot be opened leaves the service silent rather than failing it.
func liveBackend(cfg acoustic.AudioConfig) acoustic.SpatialAudioBackend {
	switch cfg.Backend {
	case acoustic.BackendOto:
		b, err := acoustic.NewOtoBackend(cfg.SampleRate)
		if err != nil {
			log.Printf("[AUDIO] %v; continuing without sound", err)
			return nil
		}
		return b
	case acoustic.BackendWAV:
		// Voices are tracked but never played; useful for headless hosts.
		return acoustic.NewWAVBackend(cfg.SampleRate)
	default:
		return nil
	}
}

// RunInitConfig writes the default configuration to --config
func (a *App) RunInitConfig() error {
	if _, err := os.Stat(a.ConfigFile); err == nil {
		return fmt.Errorf("refusing to overwrite existing config %s", a.ConfigFile)
	}
	config := acoustic.DefaultConfig()
	config.Sources = []acoustic.SourceConfig{
		{Type: acoustic.TypeTraffic, Position: acoustic.Vec3{X: -40}},
		{Type: acoustic.TypeIndustrial, Position: acoustic.Vec3{X: 30, Z: 20}},
	}
	if err := acoustic.SaveConfig(a.ConfigFile, config); err != nil {
		return err
	}
	fmt.Fprintf(a.Out, "Wrote default config to %s\n", a.ConfigFile)
	return nil
}

// RunRender renders the heatmap of the configured sources
func (a *App) RunRender() error {
	config, err := a.loadConfig()
	if err != nil {
		return err
	}
	engine, err := a.buildEngine(config, nil)
	if err != nil {
		return err
	}

	format := a.RenderFormat
	if format != "raster" && format != "vector" && format != "both" {
		return fmt.Errorf("invalid format: %s (must be raster, vector, or both)", format)
	}
	if a.VectorFormat != "svg" && a.VectorFormat != "png" {
		return fmt.Errorf("invalid vector format: %s (must be svg or png)", a.VectorFormat)
	}

	grid := engine.Heatmap()
	sources := engine.Sources()
	fmt.Fprintf(a.Out, "Rendering %d sources on a %dx%d grid...\n", len(sources), grid.Size, grid.Size)

	if format == "raster" || format == "both" {
		outputPath := a.OutputFile
		if format == "both" && !strings.HasSuffix(outputPath, ".png") {
			outputPath = strings.TrimSuffix(outputPath, filepath.Ext(outputPath)) + ".png"
		}
		if err := acoustic.NewHeatmapRenderer(grid, sources).SavePNG(outputPath); err != nil {
			return fmt.Errorf("rendering raster: %w", err)
		}
		fmt.Fprintf(a.Out, "Created raster: %s\n", outputPath)
	}

	if format == "vector" || format == "both" {
		vr := acoustic.NewVectorRenderer(grid, sources)
		vr.GridSpacing = a.GridSpacing

		outputPath := a.OutputFile
		ext := "." + a.VectorFormat
		if format == "both" || filepath.Ext(outputPath) != ext {
			outputPath = strings.TrimSuffix(outputPath, filepath.Ext(outputPath)) + ext
			if format == "both" && a.VectorFormat == "png" {
				outputPath = strings.TrimSuffix(outputPath, ext) + "-vector" + ext
			}
		}

		if err := writeFile(outputPath, func(w io.Writer) error {
			if a.VectorFormat == "svg" {
				return vr.RenderToSVG(w)
			}
			return vr.RenderToPNG(w)
		}); err != nil {
			return fmt.Errorf("rendering vector %s: %w", a.VectorFormat, err)
		}
		fmt.Fprintf(a.Out, "Created vector %s: %s\n", strings.ToUpper(a.VectorFormat), outputPath)
	}

	fmt.Fprintln(a.Out, "Done!")
	return nil
}

// RunSummary prints the noise statistics of the configured sources
func (a *App) RunSummary() error {
	config, err := a.loadConfig()
	if err != nil {
		return err
	}
	engine, err := a.buildEngine(config, nil)
	if err != nil {
		return err
	}
	data := engine.Snapshot()

	if a.JSONOutput {
		enc := json.NewEncoder(a.Out)
		enc.SetIndent("", "  ")
		return enc.Encode(data)
	}

	printSummary(a.Out, data, engine.Heatmap())
	return nil
}

func printSummary(out io.Writer, data acoustic.NoiseData, grid acoustic.ColorGrid) {
	fmt.Fprintln(out, "\nNoise Summary")
	fmt.Fprintln(out, "=============")
	fmt.Fprintf(out, "Sources:         %d\n", len(data.Sources))
	for _, src := range data.Sources {
		state := "active"
		if !src.IsActive {
			state = "inactive"
		}
		cone := ""
		if src.Cone != nil {
			cone = fmt.Sprintf(", cone %.0f°", src.Cone.ConeAngle)
		}
		fmt.Fprintf(out, "  - %-24s %-12s (%.1f, %.1f, %.1f) %.0f dB r=%.0fm %s%s\n",
			src.Name, src.Type, src.Position.X, src.Position.Y, src.Position.Z,
			src.Intensity, src.Radius, state, cone)
	}
	fmt.Fprintf(out, "Threshold:       %.1f\n", data.Threshold)
	fmt.Fprintf(out, "Peak level:      %.2f\n", data.TotalNoise)
	fmt.Fprintf(out, "Affected points: %d\n", len(data.AffectedAreas))
	fmt.Fprintf(out, "Affected area:   %.1f m²\n", data.AffectedRegion.Area)

	counts := grid.BandCounts()
	bands := make([]acoustic.Band, 0, len(counts))
	for b := range counts {
		bands = append(bands, b)
	}
	sort.Slice(bands, func(i, j int) bool { return bands[i] > bands[j] })
	fmt.Fprintln(out, "Heatmap cells:")
	for _, b := range bands {
		fmt.Fprintf(out, "  %-9s %d\n", b, counts[b])
	}
}

// RunRenderAudio mixes the configured sources offline into a WAV file
func (a *App) RunRenderAudio() error {
	if a.AudioDuration <= 0 {
		return fmt.Errorf("invalid duration %v", a.AudioDuration)
	}
	config, err := a.loadConfig()
	if err != nil {
		return err
	}

	backend := acoustic.NewWAVBackend(config.Audio.SampleRate)
	engine, err := a.buildEngine(config, backend)
	if err != nil {
		return err
	}
	if !engine.SetAudioEnabled(true) {
		return fmt.Errorf("audio synthesis could not be enabled")
	}

	fmt.Fprintf(a.Out, "Mixing %d voices for %v at %d Hz...\n", engine.VoiceCount(), a.AudioDuration, backend.SampleRate())
	if err := backend.RenderFile(a.AudioOutput, a.AudioDuration); err != nil {
		return fmt.Errorf("rendering audio: %w", err)
	}
	fmt.Fprintf(a.Out, "Created audio: %s\n", a.AudioOutput)
	return nil
}

// RunGeoJSON exports sources and the affected region as GeoJSON
func (a *App) RunGeoJSON() error {
	config, err := a.loadConfig()
	if err != nil {
		return err
	}
	engine, err := a.buildEngine(config, nil)
	if err != nil {
		return err
	}

	fc := acoustic.ExportGeoJSON(engine.Snapshot(), acoustic.DefaultGeoJSONOptions())
	payload, err := json.MarshalIndent(fc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling geojson: %w", err)
	}
	if err := os.WriteFile(a.GeoJSONOutput, payload, 0644); err != nil {
		return fmt.Errorf("writing geojson: %w", err)
	}
	fmt.Fprintf(a.Out, "Created GeoJSON with %d features: %s\n", len(fc.Features), a.GeoJSONOutput)
	return nil
}

// RunService runs the long-lived engine with MQTT and/or HTTP transports
// until SIGINT or SIGTERM.
func (a *App) RunService() error {
	if !a.MqttMode && !a.HttpMode {
		return fmt.Errorf("nothing to serve: enable --mqtt and/or --http")
	}

	config, err := a.loadConfig()
	if err != nil {
		return err
	}
	backend := liveBackend(config.Audio)
	engine, err := a.buildEngine(config, backend)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if a.MqttMode {
		mqttClient, err := acoustic.InitMQTT(config, engine)
		if err != nil {
			return fmt.Errorf("initializing MQTT: %w", err)
		}
		if mqttClient == nil {
			return fmt.Errorf("MQTT broker not configured (set mqtt.broker or MQTT_BROKER)")
		}
		a.MQTTClient = mqttClient
		a.Publisher = acoustic.NewPublisher(mqttClient.GetClient(), config.MQTT.PublishPrefix)
		engine.OnNoiseChange(a.publishNoise)
		fmt.Fprintln(a.Out, "MQTT noise publisher initialized")
	}

	go engine.RunListener(ctx, config.Audio.ListenerInterval)

	var server *http.Server
	if a.HttpMode {
		server = &http.Server{
			Addr:              fmt.Sprintf("0.0.0.0:%d", a.HttpPort),
			Handler:           newHTTPServer(engine),
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			log.Printf("[HTTP] Starting server on %s", server.Addr)
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Printf("[HTTP] Server error: %v", err)
				stop()
			}
		}()
	}

	a.printServiceInfo(config)

	<-ctx.Done()

	fmt.Fprintln(a.Out, "\nShutting down service...")
	if server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("[HTTP] shutdown: %v", err)
		}
	}
	engine.SetAudioEnabled(false)
	if oto, ok := backend.(*acoustic.OtoBackend); ok {
		if err := oto.Suspend(); err != nil {
			log.Printf("[AUDIO] suspend: %v", err)
		}
	}
	if a.MQTTClient != nil {
		a.MQTTClient.Disconnect()
	}
	fmt.Fprintln(a.Out, "Service stopped")
	return nil
}

// publishNoise forwards every engine snapshot to MQTT
func (a *App) publishNoise(data acoustic.NoiseData) {
	if a.Publisher == nil {
		return
	}
	if err := a.Publisher.PublishNoise(data, data.Audio); err != nil {
		log.Printf("[MQTT] noise update not published: %v", err)
	}
}

func (a *App) printServiceInfo(config *acoustic.Config) {
	fmt.Fprintln(a.Out, "\nService Running")
	fmt.Fprintln(a.Out, "===============")

	if a.MqttMode {
		prefix := strings.TrimSuffix(config.MQTT.PublishPrefix, "/")
		if prefix == "" {
			prefix = "noisemesh"
		}
		fmt.Fprintln(a.Out, "\nMQTT:")
		fmt.Fprintf(a.Out, "  Subscribed: %s/place, %s/camera, %s/remove\n", prefix, prefix, prefix)
		fmt.Fprintf(a.Out, "  Publishing: %s/noise, %s/sources, %s/audio\n", prefix, prefix, prefix)
	}

	if a.HttpMode {
		fmt.Fprintf(a.Out, "\nHTTP endpoints (port %d):\n", a.HttpPort)
		fmt.Fprintln(a.Out, "  GET    /health           - Health check")
		fmt.Fprintln(a.Out, "  GET    /sources          - List sources (POST to place, DELETE to clear)")
		fmt.Fprintln(a.Out, "  GET    /sources/{id}     - One source (PATCH to edit, DELETE to remove)")
		fmt.Fprintln(a.Out, "  GET    /noise            - Latest noise statistics")
		fmt.Fprintln(a.Out, "  GET    /heatmap.png      - Raster heatmap (.svg and .json also available)")
		fmt.Fprintln(a.Out, "  GET    /noise.geojson    - Sources and affected region")
		fmt.Fprintln(a.Out, "  GET    /settings         - Engine settings (PUT to change)")
		fmt.Fprintln(a.Out, "  POST   /listener         - Camera pose for spatial audio")
	}

	fmt.Fprintf(a.Out, "\nAudio: backend=%s enabled=%v\n", config.Audio.Backend, a.Engine.AudioEnabled())
	fmt.Fprintln(a.Out, "\nPress Ctrl+C to stop")
}

// writeFile creates path and streams render into it
func writeFile(path string, render func(w io.Writer) error) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()
	return render(f)
}
