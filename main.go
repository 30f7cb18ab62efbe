package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"time"
)

// Version is set at build time via -ldflags
var Version = "dev"

// AppOptions carries the parsed command line
type AppOptions struct {
	ConfigFile    string
	InitConfig    bool
	RenderOnly    bool
	OutputFile    string
	RenderFormat  string
	VectorFormat  string
	GridSpacing   float64
	SummaryOnly   bool
	JSONOutput    bool
	AudioOutput   string
	AudioDuration time.Duration
	GeoJSONOutput string
	MqttMode      bool
	HttpMode      bool
	HttpPort      int
}

// Application is the set of commands run dispatches to
type Application interface {
	ApplyOptions(opts AppOptions)
	RunInitConfig() error
	RunRender() error
	RunSummary() error
	RunRenderAudio() error
	RunGeoJSON() error
	RunService() error
}

func main() {
	app := NewApp(os.Stdout)
	if err := run(os.Args[1:], os.Stdout, app); err != nil {
		if err == flag.ErrHelp {
			os.Exit(0)
		}
		log.Fatalf("Error: %v", err)
	}
}

// run parses args and executes exactly one command. One-shot commands take
// precedence over service mode in the order listed by --help.
func run(args []string, out io.Writer, app Application) error {
	fs := flag.NewFlagSet("noisemesh", flag.ContinueOnError)
	fs.SetOutput(out)

	var opts AppOptions
	fs.StringVar(&opts.ConfigFile, "config", "config.yaml", "Path to configuration file")
	fs.BoolVar(&opts.InitConfig, "init-config", false, "Write a default configuration to --config and exit")
	fs.BoolVar(&opts.RenderOnly, "render", false, "Render the heatmap of the configured sources and exit")
	fs.StringVar(&opts.OutputFile, "output", "heatmap.png", "Output file for --render mode")
	fs.StringVar(&opts.RenderFormat, "format", "raster", "Render format: raster, vector, or both")
	fs.StringVar(&opts.VectorFormat, "vector-format", "svg", "Vector output format: svg or png")
	fs.Float64Var(&opts.GridSpacing, "grid-spacing", 25, "Vector grid line spacing in meters (0 disables)")
	fs.BoolVar(&opts.SummaryOnly, "summary", false, "Print noise statistics of the configured sources and exit")
	fs.BoolVar(&opts.JSONOutput, "json", false, "Print --summary output as JSON")
	fs.StringVar(&opts.AudioOutput, "render-audio", "", "Mix the configured sources offline into this WAV file and exit")
	fs.DurationVar(&opts.AudioDuration, "duration", 5*time.Second, "Length of --render-audio output")
	fs.StringVar(&opts.GeoJSONOutput, "geojson", "", "Export sources and affected region as GeoJSON to this file and exit")
	fs.BoolVar(&opts.MqttMode, "mqtt", false, "Run MQTT service mode (placement and camera topics)")
	fs.BoolVar(&opts.HttpMode, "http", false, "Enable HTTP API server")
	fs.IntVar(&opts.HttpPort, "http-port", 8080, "HTTP server port (default 8080)")

	if err := fs.Parse(args); err != nil {
		return err
	}

	app.ApplyOptions(opts)
	fmt.Fprintf(out, "noisemesh version: %s\n", Version)

	switch {
	case opts.InitConfig:
		return app.RunInitConfig()
	case opts.RenderOnly:
		return app.RunRender()
	case opts.SummaryOnly:
		return app.RunSummary()
	case opts.AudioOutput != "":
		return app.RunRenderAudio()
	case opts.GeoJSONOutput != "":
		return app.RunGeoJSON()
	}

	fmt.Fprintln(out, "noisemesh service starting...")
	return app.RunService()
}
