package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/pflag"

	"github.com/petems/voxgate/internal/app"
	"github.com/petems/voxgate/internal/config"
	"github.com/petems/voxgate/internal/hotkey"
	"github.com/petems/voxgate/internal/inject"
	"github.com/petems/voxgate/internal/logging"
	"github.com/petems/voxgate/internal/observe"
	"github.com/petems/voxgate/internal/permissions"
	"github.com/petems/voxgate/internal/recorder"
)

var (
	// Version is set via ldflags at build time
	Version = "dev"
	// Commit is set via ldflags at build time
	Commit = "unknown"
)

const usage = `Usage: voxgate [command] [flags]

Commands:
  record    record one utterance and transcribe it (default)
  listen    keep recording utterances until interrupted
  devices   list input devices
  version   print version information

While recording, type a command and press enter:
  <enter>   start when waiting, otherwise stop
  s         start
  x         stop
  c         cancel

Flags:
`

func main() {
	flags := pflag.NewFlagSet("voxgate", pflag.ExitOnError)
	flags.Usage = func() {
		fmt.Fprint(os.Stderr, usage)
		flags.PrintDefaults()
	}
	config.RegisterFlags(flags)
	_ = flags.Parse(os.Args[1:])

	cmd := "record"
	if flags.NArg() > 0 {
		cmd = flags.Arg(0)
	}
	if cmd == "version" {
		fmt.Printf("voxgate %s (%s)\n", Version, Commit)
		return
	}

	cfg, err := config.Load(flags)
	if err != nil {
		log := logging.New("")
		log.Fatal().Err(err).Msg("Failed to load config")
	}
	log := logging.New(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cmd, cfg, log); err != nil {
		log.Error().Err(err).Str("command", cmd).Msg("Command failed")
		stop()
		os.Exit(1)
	}
}

func run(ctx context.Context, cmd string, cfg *config.Config, log zerolog.Logger) error {
	backend, err := app.NewBackend(cfg.Capture, log)
	if err != nil {
		return err
	}

	if cmd == "devices" {
		devices, err := backend.Devices(ctx)
		if err != nil {
			return err
		}
		for _, d := range devices {
			marker := " "
			if d.Default {
				marker = "*"
			}
			fmt.Printf("%s %2d  %s (%d ch)\n", marker, d.Index, d.Name, d.Channels)
		}
		return nil
	}
	if cmd != "record" && cmd != "listen" {
		return fmt.Errorf("unknown command %q", cmd)
	}

	var metrics *observe.Metrics
	if cfg.Metrics.Addr != "" {
		registry, shutdown, err := observe.InitProvider()
		if err != nil {
			return fmt.Errorf("init metrics: %w", err)
		}
		defer func() { _ = shutdown(context.Background()) }()
		metrics = observe.Default()
		go func() {
			if err := observe.Serve(ctx, cfg.Metrics.Addr, registry, log); err != nil {
				log.Error().Err(err).Msg("Metrics server stopped")
			}
		}()
	}

	stt, closeSTT, err := app.NewTranscriber(ctx, cfg.Transcribe, log)
	if err != nil {
		return fmt.Errorf("init transcription: %w", err)
	}
	defer func() {
		if err := closeSTT(); err != nil {
			log.Warn().Err(err).Msg("Failed to release transcriber")
		}
	}()

	replier, err := app.NewReplier(cfg.Reply)
	if err != nil {
		return fmt.Errorf("init reply: %w", err)
	}

	var injector inject.Injector
	if cfg.Output.Clipboard {
		injector = inject.NewClipboard()
	}

	term := hotkey.NewTerminal(os.Stdin, log)
	go func() {
		if err := term.Run(ctx); err != nil {
			log.Warn().Err(err).Msg("Control input closed")
		}
	}()

	a := app.New(app.Config{
		Config:      cfg,
		Backend:     backend,
		Transcriber: stt,
		Replier:     replier,
		Injector:    injector,
		Controls:    term,
		Permissions: permissions.EnsureMicrophone,
		Metrics:     metrics,
		Logger:      log,
		Out:         os.Stdout,
	})

	log.Info().
		Str("version", Version).
		Str("backend", backend.Name()).
		Str("engine", cfg.Transcribe.Engine).
		Msg("voxgate starting")

	if cmd == "listen" {
		return a.Listen(ctx)
	}

	res, err := a.Once(ctx)
	if err != nil {
		return err
	}
	switch res.Outcome.Kind {
	case recorder.Rejected:
		return res.Outcome.Rejection
	case recorder.Cancelled:
		log.Info().Msg("Recording cancelled")
	}
	return nil
}
