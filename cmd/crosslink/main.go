package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v3"

	"github.com/miladsoleymani/crosslink/config"

	// Import plugins to trigger self-registration via init()
	_ "github.com/miladsoleymani/crosslink/plugins/kafka"
	_ "github.com/miladsoleymani/crosslink/plugins/memory"
	_ "github.com/miladsoleymani/crosslink/plugins/nats"
	_ "github.com/miladsoleymani/crosslink/plugins/rabbitmq"
)

const Version = "0.1.0"

func main() {
	app := &cli.Command{
		Name:    "crosslink",
		Usage:   "Cross-server messaging for game server networks",
		Version: Version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Settings file (defaults to ./crosslink.yaml when present)",
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "Log level (debug, info, warn, error); overrides log_level",
			},
		},
		Commands: []*cli.Command{
			{
				Name:  "run",
				Usage: "Connect and log cross-server traffic until interrupted",
				Flags: []cli.Flag{
					&cli.StringSliceFlag{
						Name:    "player",
						Aliases: []string{"p"},
						Usage:   "Online player name (can be specified multiple times)",
					},
					&cli.IntFlag{
						Name:  "connect-attempts",
						Usage: "How many times to try connecting before giving up",
						Value: 1,
					},
					&cli.DurationFlag{
						Name:  "retry-delay",
						Usage: "Base delay between connect attempts",
						Value: 2 * time.Second,
					},
				},
				Action: runNode,
			},
			{
				Name:  "send",
				Usage: "Send a single message",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "type",
						Aliases:  []string{"t"},
						Usage:    "Message type, e.g. REQUEST_USER_LIST",
						Required: true,
					},
					&cli.StringFlag{
						Name:  "target",
						Usage: "Server or player name, or TARGET_ALL",
						Value: "TARGET_ALL",
					},
					&cli.StringFlag{
						Name:  "target-type",
						Usage: "SERVER or PLAYER",
						Value: "SERVER",
					},
					&cli.StringFlag{
						Name:  "text",
						Usage: "Text payload",
					},
					&cli.StringFlag{
						Name:  "sender",
						Usage: "Name of the sending user",
					},
				},
				Action: sendMessage,
			},
			{
				Name:      "test",
				Usage:     "Check the broker is enabled, of the expected type and connected",
				ArgsUsage: "[broker-type]",
				Action:    testBroker,
			},
		},
	}

	if err := app.Run(context.Background(), os.Args); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

// setup loads settings and builds the process logger. The global zerolog
// logger is replaced so plugin defaults pick up the same output.
func setup(c *cli.Command) (*config.Settings, zerolog.Logger, error) {
	s, err := config.Load(c.String("config"))
	if err != nil {
		return nil, zerolog.Nop(), err
	}
	if lvl := c.String("log-level"); lvl != "" {
		s.LogLevel = lvl
	}
	if err := s.Validate(); err != nil {
		return nil, zerolog.Nop(), err
	}

	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		Level(s.Level()).
		With().
		Timestamp().
		Str("server", s.ServerName).
		Logger()
	log.Logger = logger
	return s, logger, nil
}
