package lobby

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	pubsub "github.com/libp2p/go-libp2p-pubsub"
	"github.com/rs/zerolog"
)

type BrowserConfig struct {
	Topic  string
	Logger zerolog.Logger
}

// Browser collects adverts from the lobby topic and forgets parties whose
// adverts stop arriving.
type Browser struct {
	logger zerolog.Logger
	sub    *pubsub.Subscription
	stop   context.CancelFunc
	now    func() time.Time

	mu      sync.Mutex
	parties map[string]Entry
}

func newBrowser(logger zerolog.Logger) *Browser {
	return &Browser{
		logger:  logger,
		now:     time.Now,
		parties: make(map[string]Entry),
	}
}

func NewBrowser(ctx context.Context, ps *pubsub.PubSub, cfg BrowserConfig) (*Browser, error) {
	if cfg.Topic == "" {
		cfg.Topic = DefaultTopic
	}
	t, err := ps.Join(cfg.Topic)
	if err != nil {
		return nil, err
	}
	sub, err := t.Subscribe()
	if err != nil {
		return nil, err
	}

	b := newBrowser(cfg.Logger)
	b.sub = sub
	ctx, b.stop = context.WithCancel(ctx)
	go b.collect(ctx)
	return b, nil
}

func (b *Browser) collect(ctx context.Context) {
	for {
		msg, err := b.sub.Next(ctx)
		if err != nil {
			return
		}
		b.observe(msg.Data, msg.GetFrom().String())
	}
}

// observe records an advert from peer. The signed sender overrides the
// advertised peer ID.
func (b *Browser) observe(data []byte, from string) bool {
	var ad Advert
	if err := json.Unmarshal(data, &ad); err != nil {
		b.logger.Debug().Err(err).Str("peer", from).Msg("[lobby] Bad advert")
		return false
	}
	secret, err := ad.JoinSecret()
	if err != nil {
		b.logger.Debug().Err(err).Str("peer", from).Msg("[lobby] Advert with invalid secret")
		return false
	}
	ad.Peer = from

	b.mu.Lock()
	_, existed := b.parties[from]
	b.parties[from] = Entry{Advert: ad, PartyID: secret.PartyID(), LastSeen: b.now()}
	b.mu.Unlock()

	if !existed {
		b.logger.Info().Str("peer", from).Str("name", ad.Name).Msg("[lobby] Discovered party")
	}
	return true
}

// Parties returns live adverts, most recently seen first, and drops expired
// ones.
func (b *Browser) Parties() []Entry {
	now := b.now()
	b.mu.Lock()
	defer b.mu.Unlock()
	list := make([]Entry, 0, len(b.parties))
	for k, e := range b.parties {
		if now.Sub(e.LastSeen) > e.Advert.ttl() {
			delete(b.parties, k)
			continue
		}
		list = append(list, e)
	}
	sort.SliceStable(list, func(i, j int) bool {
		if !list[i].LastSeen.Equal(list[j].LastSeen) {
			return list[i].LastSeen.After(list[j].LastSeen)
		}
		return list[i].Advert.Peer < list[j].Advert.Peer
	})
	return list
}

func (b *Browser) Close() error {
	if b.stop != nil {
		b.stop()
	}
	if b.sub != nil {
		b.sub.Cancel()
	}
	return nil
}
