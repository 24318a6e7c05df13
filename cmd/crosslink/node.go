package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/avast/retry-go"
	"github.com/rs/zerolog"
	"github.com/samber/lo"
	"github.com/urfave/cli/v3"

	"github.com/miladsoleymani/crosslink"
	"github.com/miladsoleymani/crosslink/broker"
	"github.com/miladsoleymani/crosslink/core"
	"github.com/miladsoleymani/crosslink/core/middleware"
	"github.com/miladsoleymani/crosslink/ops"
)

// node is one server process on the network.
type node struct {
	serverName string
	roster     *core.LocalRoster
	logger     zerolog.Logger
	stats      *stats
	router     *core.Router

	mu     sync.Mutex
	broker core.Broker
}

func newNode(serverName string, roster *core.LocalRoster, logger zerolog.Logger) *node {
	n := &node{
		serverName: serverName,
		roster:     roster,
		logger:     logger,
		stats:      newStats(),
	}

	r := core.NewRouter(serverName, roster)
	r.SetLogger(logger)
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.Logging(logger))
	r.Use(middleware.Metrics(n.stats))

	r.Handle(core.TypePing, n.onPing)
	r.Handle(core.TypeRequestUserList, n.onRequestUserList)
	r.Handle(core.TypeUpdateUserList, n.onUpdateUserList)
	r.HandleDefault(n.onMessage)

	n.router = r
	return n
}

func (n *node) setBroker(b core.Broker) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.broker = b
}

func (n *node) currentBroker() core.Broker {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.broker
}

func (n *node) onPing(c core.Context) error {
	n.logger.Info().Str("from", c.Message().SourceServer()).Msg("Ping received")
	return nil
}

// onRequestUserList answers with this server's online players, addressed
// to the requesting server.
func (n *node) onRequestUserList(c core.Context) error {
	b := n.currentBroker()
	if b == nil {
		return core.ErrNotConnected
	}

	target := c.Message().SourceServer()
	if target == "" {
		target = core.TargetAll
	}
	reply, err := core.NewMessage(core.TypeUpdateUserList, target, core.TargetServer,
		core.WithSourceServer(n.serverName),
		core.WithPayload(core.Payload{Names: n.roster.Names()}))
	if err != nil {
		return err
	}
	reply.Send(c.Context(), b, nil)
	return nil
}

func (n *node) onUpdateUserList(c core.Context) error {
	var names []string
	if p := c.Payload(); p != nil {
		names = p.Names
	}
	n.logger.Info().
		Str("from", c.Message().SourceServer()).
		Strs("players", names).
		Msg("Remote user list")
	return nil
}

func (n *node) onMessage(c core.Context) error {
	ev := n.logger.Info().
		Str("id", c.Message().ID()).
		Str("type", string(c.Type())).
		Str("from", c.Message().SourceServer())
	if u := c.Receiver(); u != nil {
		ev = ev.Str("receiver", u.Name())
	}
	if p := c.Payload(); p != nil && p.Text != "" {
		ev = ev.Str("text", p.Text)
	}
	ev.Msg("Received message")
	return nil
}

// connect creates and initializes the configured broker, retrying
// connection failures up to attempts times.
func connect(ctx context.Context, cfg broker.Config, r *core.Router, logger zerolog.Logger, attempts int, delay time.Duration) (core.Broker, error) {
	if attempts < 1 {
		attempts = 1
	}

	var b core.Broker
	err := retry.Do(
		func() error {
			created, err := crosslink.Connect(ctx, cfg, r)
			if err != nil {
				return err
			}
			b = created
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(uint(attempts)),
		retry.Delay(delay),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool {
			var cerr *core.ConnectionError
			return errors.As(err, &cerr)
		}),
		retry.OnRetry(func(n uint, err error) {
			if int(n)+1 < attempts {
				logger.Warn().Err(err).Uint("attempt", n+1).Int("of", attempts).Msg("Failed to connect, retrying")
			}
		}),
	)
	if err != nil {
		return nil, err
	}
	return b, nil
}

func runNode(ctx context.Context, c *cli.Command) error {
	s, logger, err := setup(c)
	if err != nil {
		return err
	}
	if !s.CrossServer.Enabled {
		return core.ErrCrossServerDisabled
	}

	players := lo.Map(c.StringSlice("player"), func(name string, _ int) core.User { return core.Player(name) })
	n := newNode(s.ServerName, core.NewLocalRoster(players...), logger)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	b, err := connect(ctx, s.BrokerConfig(&logger), n.router, logger, int(c.Int("connect-attempts")), c.Duration("retry-delay"))
	if err != nil {
		return err
	}
	n.setBroker(b)
	defer b.Close()

	logger.Info().
		Str("broker", string(b.Type())).
		Str("channel", broker.ChannelName(s.CrossServer.ClusterID)).
		Strs("players", n.roster.Names()).
		Msg("Cross-server messaging ready")

	<-ctx.Done()
	logger.Warn().Msg("Shutdown signal received, stopping...")
	n.stats.log(logger)
	return nil
}

// buildMessage turns command-line values into a message from serverName.
func buildMessage(serverName, typ, target, targetType, text, sender string) (*core.Message, error) {
	opts := []core.MessageOption{core.WithSourceServer(serverName)}
	if text != "" {
		opts = append(opts, core.WithPayload(core.Payload{Text: text}))
	}
	if sender != "" {
		opts = append(opts, core.WithSender(sender))
	}
	return core.NewMessage(
		core.MessageType(strings.ToUpper(typ)),
		target,
		core.TargetType(strings.ToUpper(targetType)),
		opts...,
	)
}

func sendMessage(ctx context.Context, c *cli.Command) error {
	s, logger, err := setup(c)
	if err != nil {
		return err
	}
	if !s.CrossServer.Enabled {
		return core.ErrCrossServerDisabled
	}

	msg, err := buildMessage(s.ServerName, c.String("type"), c.String("target"), c.String("target-type"), c.String("text"), c.String("sender"))
	if err != nil {
		return err
	}

	b, err := connect(ctx, s.BrokerConfig(&logger), core.NewRouter(s.ServerName, nil), logger, 1, 0)
	if err != nil {
		return err
	}
	defer b.Close()

	var sender core.User
	if name := c.String("sender"); name != "" {
		sender = core.Player(name)
	}
	msg.Send(ctx, b, sender)
	fmt.Printf("Sent %s (%s) to %s %s\n", msg.Type(), msg.ID(), msg.TargetType(), msg.Target())
	return nil
}

func testBroker(ctx context.Context, c *cli.Command) error {
	s, logger, err := setup(c)
	if err != nil {
		return err
	}

	want := s.BrokerType()
	if arg := c.Args().First(); arg != "" {
		want = core.BrokerType(strings.ToLower(arg))
	}

	var active core.Broker
	if s.CrossServer.Enabled && s.BrokerType() == want {
		b, err := connect(ctx, s.BrokerConfig(&logger), core.NewRouter(s.ServerName, nil), logger, 1, 0)
		if err != nil {
			return err
		}
		defer b.Close()
		active = b
	}

	if err := ops.TestBroker(ctx, s.CrossServer.Enabled, s.BrokerType(), active, want); err != nil {
		return fmt.Errorf("%s broker test failed: %w", want, err)
	}
	fmt.Printf("%s broker test succeeded: PING sent to all servers\n", want)
	return nil
}
