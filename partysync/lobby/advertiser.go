package lobby

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	pubsub "github.com/libp2p/go-libp2p-pubsub"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/rs/zerolog"
)

type AdvertiserConfig struct {
	Topic string
	Every time.Duration
	Name  string
	TTL   time.Duration
	// Snapshot reports the current secret and occupancy. Peer, Name, TS and
	// TTL are filled in by the advertiser.
	Snapshot func() Advert
	Logger   zerolog.Logger
}

// Advertiser periodically publishes a party's advert.
type Advertiser struct {
	cfg   AdvertiserConfig
	self  peer.ID
	topic *pubsub.Topic
	stop  context.CancelFunc
	wg    sync.WaitGroup
}

func NewAdvertiser(ctx context.Context, self peer.ID, ps *pubsub.PubSub, cfg AdvertiserConfig) (*Advertiser, error) {
	if cfg.Topic == "" {
		cfg.Topic = DefaultTopic
	}
	if cfg.Every <= 0 {
		cfg.Every = 5 * time.Second
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	t, err := ps.Join(cfg.Topic)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(ctx)
	a := &Advertiser{cfg: cfg, self: self, topic: t, stop: cancel}
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		a.loop(ctx)
	}()
	return a, nil
}

func (a *Advertiser) loop(ctx context.Context) {
	ticker := time.NewTicker(a.cfg.Every)
	defer ticker.Stop()
	for {
		a.publish(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (a *Advertiser) advert(now time.Time) Advert {
	ad := a.cfg.Snapshot()
	ad.Peer = a.self.String()
	ad.Name = a.cfg.Name
	ad.TS = now.UTC()
	ad.TTL = int(a.cfg.TTL / time.Second)
	return ad
}

func (a *Advertiser) publish(ctx context.Context) {
	payload, err := json.Marshal(a.advert(time.Now()))
	if err != nil {
		a.cfg.Logger.Error().Err(err).Msg("[lobby] Encode advert")
		return
	}
	if err := a.topic.Publish(ctx, payload); err != nil && ctx.Err() == nil {
		a.cfg.Logger.Warn().Err(err).Msg("[lobby] Publish advert")
	}
}

func (a *Advertiser) Close() error {
	a.stop()
	a.wg.Wait()
	return a.topic.Close()
}
