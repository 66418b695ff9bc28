package lobby

import (
	"encoding/json"
	"net/netip"
	"testing"
	"time"

	"github.com/cockroachdb/crlib/testutils/require"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/rs/zerolog"

	"github.com/gosuda/partysync/partysync/core/common"
	"github.com/gosuda/partysync/partysync/core/proto"
)

func testSecret() proto.JoinSecret {
	return proto.JoinSecret{
		Version:    common.ProtocolVersion,
		Addr:       netip.MustParseAddrPort("198.51.100.4:7777"),
		Key:        proto.NewKey32(),
		TickPeriod: 50 * time.Millisecond,
		MaxPlayers: 8,
	}
}

func encode(t *testing.T, ad Advert) []byte {
	data, err := json.Marshal(ad)
	require.NoError(t, err)
	return data
}

func TestBrowserObserve(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	b := newBrowser(zerolog.Nop())
	b.now = func() time.Time { return now }

	secret := testSecret()
	ok := b.observe(encode(t, Advert{Peer: "spoofed", Name: "den", Secret: secret.String(), Size: 2, Max: 8}), "peerA")
	require.True(t, ok)

	parties := b.Parties()
	require.Equal(t, 1, len(parties))
	require.Equal(t, "peerA", parties[0].Advert.Peer)
	require.Equal(t, "den", parties[0].Advert.Name)
	require.Equal(t, secret.PartyID(), parties[0].PartyID)

	got, err := parties[0].Advert.JoinSecret()
	require.NoError(t, err)
	require.Equal(t, secret, got)
}

func TestBrowserRejectsBadAdverts(t *testing.T) {
	b := newBrowser(zerolog.Nop())
	require.False(t, b.observe([]byte("{not json"), "peerA"))
	require.False(t, b.observe(encode(t, Advert{Secret: "!!"}), "peerA"))
	require.Equal(t, 0, len(b.Parties()))
}

func TestBrowserExpiry(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	b := newBrowser(zerolog.Nop())
	b.now = func() time.Time { return now }

	secret := testSecret().String()
	b.observe(encode(t, Advert{Secret: secret, TTL: 5}), "short")
	b.observe(encode(t, Advert{Secret: secret}), "default")

	now = now.Add(6 * time.Second)
	b.observe(encode(t, Advert{Secret: secret}), "fresh")
	parties := b.Parties()
	require.Equal(t, 2, len(parties))
	require.Equal(t, "fresh", parties[0].Advert.Peer)
	require.Equal(t, "default", parties[1].Advert.Peer)

	now = now.Add(DefaultTTL)
	require.Equal(t, 1, len(b.Parties()))
	now = now.Add(7 * time.Second)
	require.Equal(t, 0, len(b.Parties()))
}

func TestAdvertiserFillsIdentity(t *testing.T) {
	self, err := peer.Decode("QmNnooDu7bfjPFoTZYxMNLWUQJyrVwtbZg5gBMjTezGAJN")
	require.NoError(t, err)
	secret := testSecret().String()
	a := &Advertiser{
		self: self,
		cfg: AdvertiserConfig{
			Name: "den",
			TTL:  20 * time.Second,
			Snapshot: func() Advert {
				return Advert{Secret: secret, Size: 3, Max: 8}
			},
		},
	}
	now := time.Unix(1_700_000_000, 0)
	ad := a.advert(now)
	require.Equal(t, self.String(), ad.Peer)
	require.Equal(t, "den", ad.Name)
	require.Equal(t, 20, ad.TTL)
	require.Equal(t, 3, ad.Size)
	require.True(t, ad.TS.Equal(now))
}

func TestParseBootstrap(t *testing.T) {
	ai, err := parseBootstrap("/ip4/127.0.0.1/tcp/4001/p2p/QmNnooDu7bfjPFoTZYxMNLWUQJyrVwtbZg5gBMjTezGAJN")
	require.NoError(t, err)
	require.Equal(t, "QmNnooDu7bfjPFoTZYxMNLWUQJyrVwtbZg5gBMjTezGAJN", ai.ID.String())
	require.Equal(t, 1, len(ai.Addrs))

	_, err = parseBootstrap("/ip4/127.0.0.1/tcp/4001")
	require.True(t, err != nil)
	_, err = parseBootstrap("not-a-multiaddr")
	require.True(t, err != nil)
}
