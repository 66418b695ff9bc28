package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/netip"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/gosuda/partysync/partysync"
	"github.com/gosuda/partysync/partysync/core/common"
	"github.com/gosuda/partysync/partysync/core/proto"
	"github.com/gosuda/partysync/partysync/store"
)

var rootCmd = &cobra.Command{
	Use:   "party-server",
	Short: "Authoritative pose synchronization server for small multiplayer parties",
	RunE:  runServer,
}

var (
	flagListen       string
	flagPublicAddr   string
	flagMaxPlayers   int
	flagTickRate     int
	flagScene        string
	flagAllowReload  bool
	flagAllowChange  bool
	flagDataDir      string
	flagAdminKey     string
	flagLogLevel     string
	flagLobby        bool
	flagLobbyPort    int
	flagLobbyName    string
	flagBootstraps   []string
	flagPollInterval time.Duration
)

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&flagListen, "listen", envOrDefault("PARTY_ADDR", ":7777"), "HTTP listen address (env: PARTY_ADDR)")
	flags.StringVar(&flagPublicAddr, "public-addr", os.Getenv("PARTY_PUBLIC_ADDR"), "address published in the join secret, ip:port (env: PARTY_PUBLIC_ADDR)")
	flags.IntVar(&flagMaxPlayers, "max-players", envInt("PARTY_MAX_PLAYERS", common.DefaultMaxPlayers), "player limit, 1-255 (env: PARTY_MAX_PLAYERS)")
	flags.IntVar(&flagTickRate, "tick-rate", envInt("PARTY_TICK_RATE", common.DefaultTickRate), "broadcast ticks per second (env: PARTY_TICK_RATE)")
	flags.StringVar(&flagScene, "scene", envOrDefault("PARTY_SCENE", "lobby"), "initial scene name (env: PARTY_SCENE)")
	flags.BoolVar(&flagAllowReload, "allow-scene-reload", false, "let players announce a reload of the current scene")
	flags.BoolVar(&flagAllowChange, "allow-scene-change", false, "let players announce a different scene")
	flags.StringVar(&flagDataDir, "data-dir", os.Getenv("PARTY_DATA_DIR"), "directory persisting keys across restarts; empty keeps them in memory (env: PARTY_DATA_DIR)")
	flags.StringVar(&flagAdminKey, "admin-key", os.Getenv("PARTY_ADMIN_KEY"), "bearer token for /secret; empty disables it (env: PARTY_ADMIN_KEY)")
	flags.StringVar(&flagLogLevel, "log-level", envOrDefault("PARTY_LOG_LEVEL", "info"), "log level (env: PARTY_LOG_LEVEL)")
	flags.BoolVar(&flagLobby, "lobby", false, "advertise the join secret on the libp2p lobby")
	flags.IntVar(&flagLobbyPort, "lobby-port", 4001, "libp2p listen port for the lobby")
	flags.StringVar(&flagLobbyName, "name", envOrDefault("PARTY_NAME", ""), "party name shown in the lobby (env: PARTY_NAME)")
	flags.StringSliceVar(&flagBootstraps, "bootstrap", nil, "lobby bootstrap multiaddrs with /p2p/")
	flags.DurationVar(&flagPollInterval, "poll-interval", 0, "event poll interval; defaults to a quarter tick")
}

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339})
	if err := rootCmd.Execute(); err != nil {
		log.Fatal().Err(err).Msg("execute root command")
	}
}

func runServer(cmd *cobra.Command, args []string) error {
	level, err := zerolog.ParseLevel(flagLogLevel)
	if err != nil {
		return err
	}
	zerolog.SetGlobalLevel(level)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if flagMaxPlayers < 1 || flagMaxPlayers > common.MaxPartySize {
		return common.ErrInvalidCapacity
	}
	publicAddr, err := resolvePublicAddr(flagPublicAddr, flagListen)
	if err != nil {
		return err
	}

	cfg := partysync.DefaultServerConfig()
	cfg.MaxPlayers = uint8(flagMaxPlayers)
	cfg.TickRate = flagTickRate
	cfg.AllowSceneReload = flagAllowReload
	cfg.AllowSceneChange = flagAllowChange
	cfg.InitialScene = flagScene
	cfg.PublicAddr = publicAddr
	cfg.Logger = log.Logger

	var keys *store.KeyStore
	if flagDataDir != "" {
		keys, err = store.Open(flagDataDir, store.Options{Logger: log.Logger})
		if err != nil {
			return err
		}
		defer keys.Close()
		if err := loadPersisted(keys, &cfg); err != nil {
			return err
		}
	}

	transport := partysync.NewWebSocketTransport(partysync.WebSocketConfig{
		OriginPatterns: []string{"*"},
		Logger:         log.Logger,
	})
	server, err := partysync.NewServer(transport, cfg)
	if err != nil {
		return err
	}

	httpCfg := partysync.HTTPConfig{AdminKey: flagAdminKey, Logger: log.Logger}
	if keys != nil {
		httpCfg.OnRotate = func(secret proto.JoinSecret) {
			if err := keys.SetJoinKey(secret.Key); err != nil {
				log.Error().Err(err).Msg("[server] Failed to persist rotated join key")
			}
		}
	}
	httpSrv := &http.Server{
		Addr:              flagListen,
		Handler:           partysync.NewHTTPHandler(server, transport, httpCfg),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Info().Str("addr", flagListen).Msg("[server] http listening")
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("[server] http server error")
			stop()
		}
	}()

	secret := server.JoinSecret()
	hostKey := server.HostKey()
	log.Info().
		Str("secret", secret.String()).
		Str("host_key", hostKey.Hex()).
		Str("public_addr", publicAddr.String()).
		Msg("[server] join secret")

	if flagLobby {
		closeLobby, err := startLobby(ctx, server)
		if err != nil {
			return err
		}
		defer closeLobby()
	}

	if err := server.Run(ctx, flagPollInterval); err != nil {
		log.Error().Err(err).Msg("[server] close transport")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("[server] http server shutdown error")
	}
	log.Info().Msg("[server] shutdown complete")
	return nil
}

// loadPersisted fills cfg from the key store and records scene changes
// back into it.
func loadPersisted(keys *store.KeyStore, cfg *partysync.ServerConfig) error {
	hostKey, err := keys.HostKey()
	if err != nil {
		return err
	}
	joinKey, err := keys.JoinKey()
	if err != nil {
		return err
	}
	cfg.HostKey = &hostKey
	cfg.JoinKey = &joinKey

	if scene, ok, err := keys.Scene(); err != nil {
		return err
	} else if ok {
		cfg.InitialScene = scene
	}
	cfg.Hooks = sceneRecorder{keys: keys}
	return nil
}

type sceneRecorder struct {
	partysync.NopHooks
	keys *store.KeyStore
}

func (r sceneRecorder) SceneChanged(name string, _ common.Identity) {
	if err := r.keys.SetScene(name); err != nil {
		log.Warn().Err(err).Str("scene", name).Msg("[server] Failed to persist scene")
	}
}

// resolvePublicAddr picks the address advertised to clients. Without an
// explicit value it uses the listen port on loopback.
func resolvePublicAddr(public, listen string) (netip.AddrPort, error) {
	if public != "" {
		ap, err := netip.ParseAddrPort(public)
		if err != nil {
			return netip.AddrPort{}, fmt.Errorf("parse public address %q: %w", public, err)
		}
		return ap, nil
	}
	host, port, err := net.SplitHostPort(listen)
	if err != nil {
		return netip.AddrPort{}, fmt.Errorf("parse listen address %q: %w", listen, err)
	}
	p, err := strconv.ParseUint(port, 10, 16)
	if err != nil {
		return netip.AddrPort{}, fmt.Errorf("parse listen port %q: %w", port, err)
	}
	addr := netip.AddrFrom4([4]byte{127, 0, 0, 1})
	if ip, err := netip.ParseAddr(host); err == nil && !ip.IsUnspecified() {
		addr = ip
	}
	return netip.AddrPortFrom(addr, uint16(p)), nil
}

func envOrDefault(key, fallback string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	return v
}

func envInt(key string, fallback int) int {
	v, err := strconv.Atoi(strings.TrimSpace(os.Getenv(key)))
	if err != nil {
		return fallback
	}
	return v
}
