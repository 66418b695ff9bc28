package lobby

import (
	"context"
	"fmt"

	"github.com/libp2p/go-libp2p"
	pubsub "github.com/libp2p/go-libp2p-pubsub"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/network"
	"github.com/libp2p/go-libp2p/core/peer"
	ma "github.com/multiformats/go-multiaddr"
	"github.com/rs/zerolog"
)

// MakeHost starts a libp2p host listening on port over TCP and QUIC.
func MakeHost(port int) (host.Host, error) {
	addrs := []string{
		fmt.Sprintf("/ip4/0.0.0.0/tcp/%d", port),
		fmt.Sprintf("/ip4/0.0.0.0/udp/%d/quic-v1", port),
		fmt.Sprintf("/ip6/::/tcp/%d", port),
		fmt.Sprintf("/ip6/::/udp/%d/quic-v1", port),
	}
	return libp2p.New(
		libp2p.ListenAddrStrings(addrs...),
		libp2p.DefaultTransports,
		libp2p.NATPortMap(),
		libp2p.EnableHolePunching(),
		libp2p.DefaultSecurity,
		libp2p.DefaultMuxers,
	)
}

// NewPubSub creates the host's gossipsub router. Create one per host and
// share it between an Advertiser and a Browser.
func NewPubSub(ctx context.Context, h host.Host) (*pubsub.PubSub, error) {
	return pubsub.NewGossipSub(ctx, h, pubsub.WithMessageSigning(true))
}

// ConnectBootstraps dials each bootstrap multiaddr once per peer and returns
// how many peers are connected afterwards.
func ConnectBootstraps(ctx context.Context, h host.Host, addrs []string, logger zerolog.Logger) int {
	seen := make(map[peer.ID]struct{}, len(addrs))
	connected := 0
	for _, s := range addrs {
		ai, err := parseBootstrap(s)
		if err != nil {
			logger.Warn().Err(err).Str("addr", s).Msg("[lobby] Bad bootstrap address")
			continue
		}
		if _, ok := seen[ai.ID]; ok {
			continue
		}
		seen[ai.ID] = struct{}{}

		if h.Network().Connectedness(ai.ID) == network.Connected {
			connected++
			continue
		}
		if err := h.Connect(ctx, *ai); err != nil {
			logger.Warn().Err(err).Str("peer", ai.ID.String()).Msg("[lobby] Bootstrap connect failed")
			continue
		}
		connected++
	}
	return connected
}

func parseBootstrap(s string) (*peer.AddrInfo, error) {
	m, err := ma.NewMultiaddr(s)
	if err != nil {
		return nil, err
	}
	ai, err := peer.AddrInfoFromP2pAddr(m)
	if err != nil {
		return nil, fmt.Errorf("missing /p2p/ component: %w", err)
	}
	return ai, nil
}
