package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/glebovdev/livetv-cli/internal/api"
	"github.com/glebovdev/livetv-cli/internal/cache"
	"github.com/glebovdev/livetv-cli/internal/config"
	"github.com/glebovdev/livetv-cli/internal/engine"
	"github.com/glebovdev/livetv-cli/internal/media"
	"github.com/glebovdev/livetv-cli/internal/metrics"
	"github.com/glebovdev/livetv-cli/internal/player"
	"github.com/glebovdev/livetv-cli/internal/service"
	"github.com/glebovdev/livetv-cli/internal/ui"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var (
	versionFlag = flag.Bool("version", false, "Show version information")
	debugFlag   = flag.Bool("debug", false, "Enable debug logging")
	catalogFlag = flag.String("catalog", "", "Channel catalog URL or file path (overrides config)")
	metricsFlag = flag.String("metrics-addr", "", "Serve Prometheus metrics on this address, e.g. :9090")
)

func init() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "%s v%s - %s\n\n", config.AppName, config.AppVersion, config.AppDescription)
		fmt.Fprintf(os.Stderr, "Usage: %s [options]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()

		configPath, err := config.GetConfigPath()
		if err == nil {
			if _, statErr := os.Stat(configPath); statErr == nil {
				fmt.Fprintf(os.Stderr, "\nConfig file: %s\n", configPath)
			} else {
				fmt.Fprintf(os.Stderr, "\nConfig file will be created on first use.\n")
			}
		}
	}
}

func setupLogging() {
	if !*debugFlag {
		// Anything written to the terminal would corrupt the TUI.
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
		logFile, err := os.OpenFile(os.DevNull, os.O_WRONLY, 0644)
		if err == nil {
			log.Logger = log.Output(logFile)
		}
		return
	}

	zerolog.SetGlobalLevel(zerolog.DebugLevel)

	cacheDir, err := cache.GetCacheDir()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not get cache dir: %v\n", err)
		cacheDir = os.TempDir()
	}
	if err := os.MkdirAll(cacheDir, 0755); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not create log dir: %v\n", err)
	}
	logPath := filepath.Join(cacheDir, "debug.log")
	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not create log file: %v\n", err)
		logFile = os.Stderr
	}
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: logFile, TimeFormat: "15:04:05"})
	fmt.Printf("Debug log: %s\n", logPath)
	log.Info().Msgf("Starting %s v%s (debug mode)", config.AppName, config.AppVersion)

	if configPath, err := config.GetConfigPath(); err == nil {
		log.Debug().Msgf("Config: %s", configPath)
	}
	log.Debug().Msgf("Cache: %s", cacheDir)
}

// newOutput picks the media output. The external player is preferred; the
// built-in decoder is used when configured or when the player is missing.
// The second value is non-nil when the output supports volume control.
func newOutput(pb config.Playback, volume int) (media.Output, *media.AudioOutput) {
	if pb.Output == config.OutputProcess {
		proc := media.NewProcessOutput(media.ProcessOptions{
			Command:        pb.PlayerCommand,
			Args:           pb.PlayerArgs,
			NativeTypes:    pb.NativeTypes,
			StallThreshold: pb.StallThreshold,
		})
		if proc.Available() {
			log.Info().Str("command", pb.PlayerCommand).Msg("Using external player")
			return proc, nil
		}
		log.Warn().Str("command", pb.PlayerCommand).Msg("External player not found, using built-in decoder")
	}

	audio := media.NewAudioOutput(volume)
	return audio, audio
}

// adaptivePlayback reports whether HLS streams go through the engine. The
// built-in decoder only plays MP3, so it cannot consume engine segments.
func adaptivePlayback(pb config.Playback, builtinDecoder bool) bool {
	if !pb.Adaptive {
		return false
	}
	if builtinDecoder {
		log.Warn().Msg("Built-in decoder cannot play HLS streams, adaptive playback disabled")
		return false
	}
	return true
}

func main() {
	flag.Parse()

	if *versionFlag {
		fmt.Printf("%s v%s\n", config.AppName, config.AppVersion)
		fmt.Println(config.AppDescription)
		os.Exit(0)
	}

	setupLogging()

	cfg, err := config.Load()
	if err != nil {
		log.Warn().Err(err).Msg("Failed to load config, using defaults")
		cfg = config.DefaultConfig()
	}
	catalogSource := cfg.CatalogURL
	if *catalogFlag != "" {
		catalogSource = *catalogFlag
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if *metricsFlag != "" {
		go func() {
			if err := metrics.Serve(ctx, *metricsFlag); err != nil {
				log.Error().Err(err).Msg("Metrics endpoint failed")
			}
		}()
	}

	output, audio := newOutput(cfg.Playback, cfg.Volume)

	opts := player.Options{
		Output:      output,
		Buffer:      engine.NewBufferConfig(cfg.Buffer),
		LoadTimeout: cfg.Playback.LoadTimeout,
	}
	if adaptivePlayback(cfg.Playback, audio != nil) {
		opts.Engines = engine.NewHLSFactory()
	}

	var volume ui.VolumeControl
	if audio != nil {
		volume = audio
	}

	channelService := service.NewChannelService(api.NewCatalogClient(catalogSource))
	liveUI := ui.NewUI(cfg, channelService, opts, volume)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	uiDone := make(chan error, 1)

	go func() {
		<-sigChan
		log.Info().Msg("Received shutdown signal, cleaning up...")
		liveUI.Shutdown()
	}()

	log.Info().Str("catalog", catalogSource).Msg("Starting UI...")

	// Run UI in a goroutine so we can handle signals properly
	go func() {
		uiDone <- liveUI.Run()
	}()

	runErr := <-uiDone

	liveUI.Close()
	if closer, ok := output.(interface{ Close() }); ok {
		closer.Close()
	}
	cancel()

	if runErr != nil {
		log.Error().Err(runErr).Msg("Error running UI")
		os.Exit(1)
	}
	log.Info().Msgf("%s stopped", config.AppName)
}
