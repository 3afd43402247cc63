// ABOUTME: Player wiring: backend resolution, audio output and the session
// ABOUTME: Runs either the interactive TUI or a headless single-language stream
package main

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os/signal"
	"strings"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/dubcast/dubcast-go/internal/config"
	"github.com/dubcast/dubcast-go/internal/discovery"
	"github.com/dubcast/dubcast-go/internal/logger"
	"github.com/dubcast/dubcast-go/internal/metrics"
	"github.com/dubcast/dubcast-go/internal/ui"
	"github.com/dubcast/dubcast-go/internal/version"
	"github.com/dubcast/dubcast-go/pkg/audio"
	"github.com/dubcast/dubcast-go/pkg/audio/decode"
	"github.com/dubcast/dubcast-go/pkg/audio/output"
	"github.com/dubcast/dubcast-go/pkg/dubcast"
	"github.com/dubcast/dubcast-go/pkg/transport"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// defaultTUILogFile keeps logs off the terminal while the TUI draws
const defaultTUILogFile = "dubcast.log"

func run(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if err := applyFlags(cmd, cfg); err != nil {
		return err
	}
	if cfg.Player.Source == "" {
		return errors.New("no source: pass --source or set DUBCAST_SOURCE")
	}

	useTUI := !noTUI
	if useTUI && cfg.Logging.File == "" {
		cfg.Logging.File = defaultTUILogFile
	}

	log, err := logger.New(logger.Config{
		Level:      cfg.Logging.Level,
		Console:    !useTUI,
		File:       cfg.Logging.File,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAgeDays: cfg.Logging.MaxAgeDays,
		Compress:   cfg.Logging.Compress,
	})
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	log.Info("starting dubcast player",
		zap.String("version", version.Version),
		zap.String("source", cfg.Player.Source),
		zap.Bool("tui", useTUI))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	streamer, backendName, err := resolveStreamer(ctx, cfg.Player, log)
	if err != nil {
		return err
	}

	dec, err := newDecoder(cfg.Player)
	if err != nil {
		return err
	}

	device, err := output.OpenDevice(cfg.Player.SampleRate, cfg.Player.Channels, log)
	if err != nil {
		return err
	}
	defer device.Close()

	mixer := device.Mixer()
	mixer.SetVolume(cfg.Player.Volume)

	var (
		session *dubcast.Session
		prog    *tea.Program
	)
	session = dubcast.New(dubcast.Config{
		Streamer:     streamer,
		Clock:        mixer,
		Decoder:      dec,
		SafetyMargin: cfg.Player.SafetyMargin,
		MaxChunkSize: cfg.Player.MaxChunkSize,
		DocumentID:   cfg.Player.DocumentID,
		Logger:       log,
		OnStatus: func(st dubcast.Status) {
			logStatus(log, st)
			if prog != nil {
				prog.Send(ui.StatusMsg{Status: st, Active: session.Active(), Queued: session.Queued()})
			}
		},
	})
	defer session.Close()

	if cfg.Metrics.Addr != "" {
		reg := prometheus.NewRegistry()
		if err := metrics.RegisterSession(reg, session); err != nil {
			return err
		}
		metricsServer, err := metrics.Serve(cfg.Metrics.Addr, reg, log)
		if err != nil {
			return err
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			_ = metricsServer.Shutdown(shutdownCtx)
		}()
	}

	if !useTUI {
		return runHeadless(ctx, session, cfg.Player, log)
	}

	controls := ui.NewControls()
	prog = ui.New(ui.Options{
		Source:    cfg.Player.Source,
		Backend:   backendName,
		Languages: cfg.Player.Languages,
		Volume:    cfg.Player.Volume,
	}, controls)
	return runTUI(ctx, prog, controls, session, mixer, cfg.Player, log)
}

// resolveStreamer picks the transport and its endpoint, browsing mDNS when
// no backend is configured
func resolveStreamer(ctx context.Context, cfg config.PlayerConfig, log *zap.Logger) (transport.Streamer, string, error) {
	var httpURL, wsURL, name string

	if cfg.Backend == "" {
		log.Info("browsing for a backend over mDNS", zap.Duration("wait", cfg.DiscoveryWait))
		info, err := discovery.Find(ctx, cfg.DiscoveryWait, log)
		if err != nil {
			return nil, "", fmt.Errorf("backend discovery failed: %w", err)
		}
		httpURL, wsURL, name = info.HTTPURL(), info.WSURL(), info.Name
		log.Info("discovered backend", zap.String("name", info.Name), zap.String("url", info.BaseURL()))
	} else {
		var err error
		httpURL, wsURL, err = endpoints(cfg.Backend)
		if err != nil {
			return nil, "", err
		}
		name = cfg.Backend
	}

	if cfg.Transport == "ws" {
		return &transport.WebSocket{Endpoint: wsURL}, name, nil
	}
	return &transport.HTTP{Endpoint: httpURL, UserAgent: version.UserAgent()}, name, nil
}

// endpoints derives the HTTP and WebSocket stream URLs from a base URL
func endpoints(base string) (httpURL, wsURL string, err error) {
	u, err := url.Parse(base)
	if err != nil || u.Host == "" {
		return "", "", fmt.Errorf("invalid backend url %q", base)
	}

	root := strings.TrimRight(u.Path, "/")
	h := *u
	h.Path = root + transport.DefaultPath

	w := *u
	w.Path = root + transport.DefaultWSPath
	switch u.Scheme {
	case "https":
		w.Scheme = "wss"
	case "http":
		w.Scheme = "ws"
	default:
		return "", "", fmt.Errorf("backend url %q must be http or https", base)
	}

	return h.String(), w.String(), nil
}

// newDecoder builds the segment decoder. Opus packets carry no header, so
// their layout comes from config.
func newDecoder(cfg config.PlayerConfig) (decode.Decoder, error) {
	if cfg.Decoder == "opus" {
		return decode.New(audio.Format{Codec: "opus", SampleRate: 48000, Channels: cfg.Channels, BitDepth: 16})
	}
	return decode.New(audio.Format{Codec: "auto"})
}

func logStatus(log *zap.Logger, st dubcast.Status) {
	fields := []zap.Field{
		zap.String("state", string(st.State)),
		zap.String("language", st.Language),
		zap.String("doc_id", st.SessionID),
		zap.Int64("chunks", st.Stats.Chunks),
		zap.Int64("scheduled", st.Stats.Scheduled),
	}
	if st.Err != nil {
		log.Warn("stream status", append(fields, zap.Error(st.Err))...)
		return
	}
	log.Info("stream status", fields...)
}

// runHeadless plays the default language once and returns when playback
// has drained or a signal arrives
func runHeadless(ctx context.Context, session *dubcast.Session, cfg config.PlayerConfig, log *zap.Logger) error {
	if err := session.Start(cfg.Source, cfg.DefaultLanguage); err != nil {
		return err
	}

	select {
	case <-ctx.Done():
		log.Info("interrupted")
		return nil
	case <-session.Done():
	}

	if st := session.Status(); st.State == dubcast.StateError {
		return fmt.Errorf("stream failed: %w", st.Err)
	}

	// The stream is complete; let the scheduled tail play out
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	for session.Active() > 0 {
		select {
		case <-ctx.Done():
			log.Info("interrupted")
			return nil
		case <-ticker.C:
		}
	}

	log.Info("playback finished")
	return nil
}

// runTUI drives the session from TUI actions until the user quits
func runTUI(ctx context.Context, prog *tea.Program, controls *ui.Controls, session *dubcast.Session, mixer *output.Mixer, cfg config.PlayerConfig, log *zap.Logger) error {
	done := make(chan struct{})
	defer close(done)

	go handleActions(done, prog, controls, session, mixer, cfg.Source, log)
	go statusLoop(done, prog, session)
	go func() {
		select {
		case <-ctx.Done():
			prog.Quit()
		case <-done:
		}
	}()

	if _, err := prog.Run(); err != nil {
		return fmt.Errorf("TUI failed: %w", err)
	}
	log.Info("player stopped")
	return nil
}

// handleActions applies TUI actions to the session and the mixer
func handleActions(done <-chan struct{}, prog *tea.Program, controls *ui.Controls, session *dubcast.Session, mixer *output.Mixer, src string, log *zap.Logger) {
	for {
		select {
		case <-done:
			return
		case a := <-controls.Actions:
			switch a.Kind {
			case ui.ActionPlay:
				log.Info("play requested", zap.String("language", a.Language))
				if err := session.Start(src, a.Language); err != nil {
					prog.Send(ui.StatusMsg{Status: dubcast.Status{State: dubcast.StateError, Language: a.Language, Err: err}})
				}
			case ui.ActionStop:
				log.Info("stop requested")
				session.Stop()
			case ui.ActionVolume:
				log.Debug("volume change", zap.Int("volume", a.Volume), zap.Bool("muted", a.Muted))
				mixer.SetVolume(a.Volume)
				mixer.SetMuted(a.Muted)
			case ui.ActionQuit:
				session.Stop()
				return
			}
		}
	}
}

// statusLoop refreshes playback counters between state transitions
func statusLoop(done <-chan struct{}, prog *tea.Program, session *dubcast.Session) {
	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			prog.Send(ui.StatusMsg{Status: session.Status(), Active: session.Active(), Queued: session.Queued()})
		}
	}
}
