package main

import (
	"context"
	"errors"
	"math"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/gosuda/partysync/partysync"
	"github.com/gosuda/partysync/partysync/core/common"
	"github.com/gosuda/partysync/partysync/core/proto"
)

var joinCmd = &cobra.Command{
	Use:   "join <secret>",
	Short: "Join a party as a bot that walks in a circle",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runJoin,
}

var (
	flagSecret   string
	flagHostKey  string
	flagURL      string
	flagSecure   bool
	flagAnnounce string
	flagRadius   float64
	flagDuration time.Duration
)

func init() {
	flags := joinCmd.Flags()
	flags.StringVar(&flagSecret, "secret", envOrDefault("PARTY_SECRET", ""), "join secret when not given as an argument (env: PARTY_SECRET)")
	flags.StringVar(&flagHostKey, "host-key", os.Getenv("PARTY_HOST_KEY"), "operator key in hex (env: PARTY_HOST_KEY)")
	flags.StringVar(&flagURL, "url", "", "websocket URL overriding the address in the secret")
	flags.BoolVar(&flagSecure, "secure", false, "dial wss:// instead of ws://")
	flags.StringVar(&flagAnnounce, "scene", "", "scene to announce after joining")
	flags.Float64Var(&flagRadius, "radius", 2, "radius of the walked circle in meters")
	flags.DurationVar(&flagDuration, "duration", 0, "leave after this long; zero stays until interrupted")
}

func runJoin(cmd *cobra.Command, args []string) error {
	text := flagSecret
	if len(args) > 0 {
		text = args[0]
	}
	if text == "" {
		return errors.New("a join secret is required")
	}
	secret, err := proto.ParseJoinSecret(text)
	if err != nil {
		return err
	}

	cfg := partysync.DefaultClientConfig()
	cfg.Logger = log.Logger
	cfg.Renderer = newLogRenderer(time.Second)
	if flagHostKey != "" {
		k, err := proto.ParseKey32(flagHostKey)
		if err != nil {
			return err
		}
		cfg.HostKey = &k
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if flagDuration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, flagDuration)
		defer cancel()
	}

	dialer := partysync.WebSocketDialer{
		URL:    flagURL,
		Secure: flagSecure,
		Config: partysync.WebSocketConfig{Logger: log.Logger},
	}
	client, err := partysync.Connect(ctx, dialer, secret, cfg)
	if err != nil {
		return err
	}
	defer client.Close()

	return runBot(ctx, client, secret.TickPeriod)
}

func runBot(ctx context.Context, client *partysync.Client, period time.Duration) error {
	frames := time.NewTicker(period)
	defer frames.Stop()
	pings := time.NewTicker(common.PingInterval)
	defer pings.Stop()

	start := time.Now()
	announced := flagAnnounce == ""
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("[bot] leaving party")
			return nil
		case <-pings.C:
			if err := client.Ping(); err != nil {
				return err
			}
		case now := <-frames.C:
			if err := client.Poll(); err != nil {
				return err
			}
			err := client.SendPose(circlePose(now.Sub(start), float32(flagRadius)))
			if errors.Is(err, common.ErrNotSynced) {
				continue
			}
			if err != nil {
				return err
			}
			if !announced {
				if err := client.SendScene(flagAnnounce); err != nil {
					return err
				}
				announced = true
			}
			client.Render()
		}
	}
}

// circlePose walks the head around the origin once every ten seconds,
// facing the direction of travel.
func circlePose(elapsed time.Duration, radius float32) proto.Pose {
	theta := 2 * math.Pi * elapsed.Seconds() / 10
	sin, cos := math.Sincos(theta)
	half := -theta / 2
	rot := proto.Quat{Y: float32(math.Sin(half)), W: float32(math.Cos(half))}

	at := func(dx, dy float32) proto.Transform {
		return proto.Transform{
			Position: proto.Vec3{
				X: radius*float32(cos) + dx*float32(sin),
				Y: dy,
				Z: radius*float32(sin) - dx*float32(cos),
			},
			Rotation: rot,
		}
	}
	return proto.Pose{
		Head:      at(0, 1.7),
		LeftHand:  at(-0.3, 1.1),
		RightHand: at(0.3, 1.1),
	}
}

// logRenderer logs applied poses, at most once per interval per player.
type logRenderer struct {
	interval time.Duration
	last     map[common.Identity]time.Time
}

func newLogRenderer(interval time.Duration) *logRenderer {
	return &logRenderer{interval: interval, last: make(map[common.Identity]time.Time)}
}

func (r *logRenderer) ApplyPose(id common.Identity, pose proto.Pose) {
	now := time.Now()
	if now.Sub(r.last[id]) < r.interval {
		return
	}
	r.last[id] = now
	p := pose.Head.Position
	log.Debug().
		Uint8("id", uint8(id)).
		Float32("x", p.X).
		Float32("y", p.Y).
		Float32("z", p.Z).
		Msg("[bot] remote head")
}

func (r *logRenderer) RemovePlayer(id common.Identity) {
	delete(r.last, id)
	log.Info().Uint8("id", uint8(id)).Msg("[bot] player left")
}
