package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	cli "github.com/spf13/pflag"

	log "log/slog"

	openai "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"friday/internal/assistant"
	"friday/internal/bus"
	"friday/internal/config"
	"friday/internal/ipc"
	"friday/internal/logging"
	"friday/internal/metrics"
	"friday/internal/persona"
	"friday/internal/proxy"
	"friday/internal/tools"
	"friday/internal/transcript"
)

const httpTimeout = 120 * time.Second

func main() {
	envFile := cli.StringP("env", "e", ".env", "Env file path")
	proxyAddr := cli.StringP("proxy", "p", "", "Socks proxy address (overrides SOCKS_PROXY)")
	logLevel := cli.StringP("log", "l", "", "Log level (overrides LOG_LEVEL)")
	socket := cli.StringP("socket", "s", ipc.DefaultSocketPath, "Control socket path")
	dialed := cli.String("dialed", "", "Dialed number recorded with the session")
	cli.Parse()

	cfg := config.Load(*envFile)
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}
	if *proxyAddr != "" {
		cfg.SocksProxy = *proxyAddr
	}

	logging.Setup(os.Stdout, cfg.LogLevel)
	log.Info("Booting up")

	if err := cfg.Validate(); err != nil {
		log.Error("Invalid configuration", "err", err)
		os.Exit(1)
	}

	httpClient, err := proxy.NewClient(cfg.SocksProxy, httpTimeout)
	if err != nil {
		log.Error("Failed to dial socks proxy", "proxy", cfg.SocksProxy, "err", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if cfg.MetricsAddr != "" {
		go serveMetrics(cfg.MetricsAddr)
	}

	var (
		sink       transcript.Sink = transcript.NewFileSink(cfg.TranscriptPath)
		speaker    assistant.Speaker
		utterances <-chan string
	)

	if cfg.BusURL != "" {
		hub, err := bus.Dial(ctx, cfg.BusURL, "friday")
		if err != nil {
			log.Error("Failed to connect to bus", "url", cfg.BusURL, "err", err)
			os.Exit(1)
		}
		defer hub.Close()

		sink = transcript.Tee(sink, hub)
		speaker = hub
		utterances = hub.Utterances(ctx)
	} else {
		speaker = assistant.NewConsole(os.Stdout)
		utterances = assistant.Lines(ctx, os.Stdin)
	}

	recorder := transcript.New(sink, transcript.WithQueueSize(cfg.TranscriptQueueSize))
	log.Debug("Transcript logger ready", "path", cfg.TranscriptPath)

	client := openai.NewClient(
		option.WithAPIKey(cfg.OpenAIKey),
		option.WithHTTPClient(httpClient),
	)

	agent := assistant.NewAgent(client, assistant.AgentConfig{
		Model:        cfg.Model,
		Temperature:  cfg.Temperature,
		Instructions: persona.FallbackInstruction,
		Tools:        tools.New(httpClient),
	})

	fetcher := persona.NewFetcher(cfg.PromptURL, cfg.PromptTimeout, httpClient)

	sess := assistant.NewSession(agent, fetcher, recorder, speaker, assistant.Options{
		DialedNumber: *dialed,
	})

	injected := make(chan string, 16)
	ctl, err := ipc.StartServer(*socket, func(msg ipc.ControlMessage) {
		switch msg.Cmd {
		case ipc.CmdSay:
			select {
			case injected <- msg.Text:
			case <-ctx.Done():
			}
		case ipc.CmdStop:
			log.Info("Stop requested")
			cancel()
		default:
			log.Warn("Unknown command", "cmd", msg.Cmd)
		}
	})
	if err != nil {
		log.Error("Failed ipc server", "err", err)
		os.Exit(1)
	}
	defer ctl.Close()

	id, err := sess.Start(ctx)
	if err != nil {
		log.Error("Failed to start session", "err", err)
		os.Exit(1)
	}
	log.Info("Boot up - successful", "session", id, "transcript", cfg.TranscriptPath)

	sess.Run(ctx, assistant.Merge(ctx, utterances, injected))

	if err := sess.Close(); err != nil {
		log.Warn("Transcript not fully flushed", "err", err)
	}
	log.Info("Shut down")
}

func serveMetrics(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())

	log.Info("Serving metrics", "addr", addr)
	if err := http.ListenAndServe(addr, mux); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error("Metrics server stopped", "err", err)
	}
}
