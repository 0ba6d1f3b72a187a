package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/itohio/spotcheck/pkg/button"
	"github.com/itohio/spotcheck/pkg/config"
	"github.com/itohio/spotcheck/pkg/debounce"
	"github.com/itohio/spotcheck/pkg/display"
	"github.com/itohio/spotcheck/pkg/relay"
	"github.com/itohio/spotcheck/pkg/session"
	"github.com/itohio/spotcheck/pkg/trigger"
	"github.com/itohio/spotcheck/pkg/watchdog"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	var (
		portFlag     = flag.String("p", "", "Serial port override (e.g., /dev/ttyS0 or COM3)")
		configFlag   = flag.String("config", "config.yaml", "Configuration file path")
		modeFlag     = flag.String("mode", "", "Trigger mode override: periodic or button")
		mockFlag     = flag.Bool("mock", false, "Print lists to stdout instead of sending them to the display")
		logLevelFlag = flag.String("log-level", "", "Log level override (debug, info, warn, error)")
		portsFlag    = flag.Bool("ports", false, "List available serial ports and exit")
	)
	flag.Parse()

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	if *portsFlag {
		listPorts()
		return
	}

	// Load configuration
	cfg, err := config.Load(*configFlag)
	if err != nil {
		log.Fatal().Err(err).Str("path", *configFlag).Msg("failed to load configuration")
	}

	// Command line overrides
	if *portFlag != "" {
		cfg.Display.Serial.Port = *portFlag
		cfg.Display.Transport = config.TransportSerial
	}
	if *modeFlag != "" {
		cfg.Trigger.Mode = *modeFlag
	}
	if *logLevelFlag != "" {
		cfg.Log.Level = *logLevelFlag
	}

	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}

	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Log.Level))
	if err != nil {
		log.Fatal().Err(err).Str("level", cfg.Log.Level).Msg("invalid log level")
	}
	zerolog.SetGlobalLevel(level)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, *mockFlag); err != nil {
		stop()
		log.Fatal().Err(err).Msg("relay stopped")
	}
	log.Info().Msg("shutting down")
}

func run(ctx context.Context, cfg *config.Config, mock bool) error {
	counter := &trigger.Counter{}
	tr, tickPeriod, err := newTrigger(ctx, cfg, counter)
	if err != nil {
		return err
	}
	go trigger.Clock{Period: tickPeriod}.Run(ctx, counter)

	wd := watchdog.New(cfg.Watchdog.Enabled)

	associator, err := session.NewTCPAssociator(cfg.Network.BaseURL, cfg.Network.ConnectRetries, cfg.Network.ConnectTimeout)
	if err != nil {
		return err
	}
	associator.Heartbeat = wd.Feed
	sess := session.New(
		session.NewHTTPFactory(cfg.Network.BaseURL, cfg.Network.Timeout),
		associator,
		session.NewAllocator(cfg.Fetch.MaxBodyBytes),
	)
	// A failed first attempt is retried by the relay on the next trigger.
	if err := sess.EnsureSession(ctx); err != nil {
		log.Error().Err(err).Msg("network not ready at startup")
	}

	link, err := newLink(cfg, mock)
	if err != nil {
		return err
	}
	if err := link.Connect(); err != nil {
		log.Error().Err(err).Msg("display link not ready at startup")
	}

	wd.Ready()
	defer wd.Stopping()

	r := relay.New(tr, sess, link, wd, relay.Options{
		BaseURL:      cfg.Network.BaseURL,
		Endpoints:    [2]string{cfg.Fetch.Endpoints[0], cfg.Fetch.Endpoints[1]},
		Days:         cfg.Fetch.Days,
		Spot:         cfg.Fetch.Spot,
		Field:        cfg.Fetch.DataField,
		PollInterval: cfg.Trigger.PollInterval,
	})

	log.Info().
		Str("mode", cfg.Trigger.Mode).
		Str("transport", transportName(cfg, mock)).
		Str("base_url", cfg.Network.BaseURL).
		Msg("spotcheck started")
	return r.Run(ctx)
}

// newTrigger returns the fetch trigger and the period its counter ticks at.
// In button mode the counter is the debounce timer, so it ticks once per
// debounce period.
func newTrigger(ctx context.Context, cfg *config.Config, counter *trigger.Counter) (trigger.Trigger, time.Duration, error) {
	switch cfg.Trigger.Mode {
	case config.ModeButton:
		sig := &debounce.Signal{}
		btn, err := button.Open(button.Config{
			Pin:    cfg.Button.Pin,
			Pull:   cfg.Button.Pull,
			Invert: cfg.Button.Invert,
		}, sig)
		if err != nil {
			return nil, 0, err
		}
		go func() {
			btn.Run(ctx)
			if err := btn.Close(); err != nil {
				log.Warn().Err(err).Msg("error releasing button pin")
			}
		}()
		return trigger.NewButton(sig, counter), cfg.Trigger.DebouncePeriod, nil
	default:
		return trigger.NewPeriodic(counter, cfg.Trigger.Threshold), cfg.Trigger.TickPeriod, nil
	}
}

func newLink(cfg *config.Config, mock bool) (display.Link, error) {
	if mock {
		log.Info().Msg("using mocked display")
		return display.NewMock(os.Stdout), nil
	}

	switch cfg.Display.Transport {
	case config.TransportMQTT:
		return display.NewMQTT(cfg.Display.MQTT.BrokerURL, cfg.Display.MQTT.Topic, cfg.Display.MQTT.ClientID)
	default:
		return display.NewSerial(cfg.Display.Serial.Port, cfg.Display.Serial.BaudRate), nil
	}
}

func transportName(cfg *config.Config, mock bool) string {
	if mock {
		return "mock"
	}
	return cfg.Display.Transport
}

func listPorts() {
	ports, err := display.Ports()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to list serial ports")
	}
	if len(ports) == 0 {
		fmt.Println("No serial ports found")
		return
	}
	for _, p := range ports {
		fmt.Println(p.Name)
	}
}
