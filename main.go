// ABOUTME: Entry point for the dubcast player
// ABOUTME: Parses CLI flags and starts the player in TUI or headless mode
package main

import (
	"fmt"
	"os"

	"github.com/dubcast/dubcast-go/internal/config"
	"github.com/dubcast/dubcast-go/internal/version"
	"github.com/spf13/cobra"
)

var (
	configPath  string
	source      string
	lang        string
	backendURL  string
	transportID string
	docID       string
	decoderID   string
	volume      int
	noTUI       bool
	logLevel    string
	logFile     string
	metricsAddr string
)

var rootCmd = &cobra.Command{
	Use:          "dubcast",
	Short:        "Plays translated audio as it streams from a dubcast backend",
	Version:      version.Version,
	SilenceUsage: true,
	RunE:         run,
}

func init() {
	flags := rootCmd.Flags()
	flags.StringVar(&configPath, "config", "", "YAML config file")
	flags.StringVar(&source, "source", "", "Source audio URL or path to translate")
	flags.StringVar(&lang, "lang", "", "Target language (headless mode plays only this one)")
	flags.StringVar(&backendURL, "backend", "", "Backend base URL (empty browses mDNS)")
	flags.StringVar(&transportID, "transport", "", "Transport: http or ws")
	flags.StringVar(&docID, "doc-id", "", "Document id sent with each request (default: random per stream)")
	flags.StringVar(&decoderID, "decoder", "", "Segment decoder: auto or opus")
	flags.IntVar(&volume, "volume", 0, "Initial volume 0-100")
	flags.BoolVar(&noTUI, "no-tui", false, "Disable TUI, play the default language and log to the console")
	flags.StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error")
	flags.StringVar(&logFile, "log-file", "", "Rotating JSON log file (TUI mode defaults to dubcast.log)")
	flags.StringVar(&metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// applyFlags overrides cfg with every flag set on the command line
func applyFlags(cmd *cobra.Command, cfg *config.Config) error {
	changed := cmd.Flags().Changed
	if changed("source") {
		cfg.Player.Source = source
	}
	if changed("lang") {
		cfg.Player.DefaultLanguage = lang
		if !cfg.Player.HasLanguage(lang) {
			cfg.Player.Languages = append(cfg.Player.Languages, lang)
		}
	}
	if changed("backend") {
		cfg.Player.Backend = backendURL
	}
	if changed("transport") {
		cfg.Player.Transport = transportID
	}
	if changed("doc-id") {
		cfg.Player.DocumentID = docID
	}
	if changed("decoder") {
		cfg.Player.Decoder = decoderID
	}
	if changed("volume") {
		cfg.Player.Volume = volume
	}
	if changed("log-level") {
		cfg.Logging.Level = logLevel
	}
	if changed("log-file") {
		cfg.Logging.File = logFile
	}
	if changed("metrics-addr") {
		cfg.Metrics.Addr = metricsAddr
	}
	return cfg.Validate()
}
