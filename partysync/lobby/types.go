// Package lobby advertises running parties over libp2p gossipsub so players
// can discover a join secret without exchanging it by hand.
package lobby

import (
	"time"

	"github.com/gosuda/partysync/partysync/core/proto"
)

const (
	DefaultTopic = "partysync.lobby"
	DefaultTTL   = 30 * time.Second
)

// Advert is the JSON payload a party publishes on the lobby topic.
type Advert struct {
	Peer   string    `json:"peer"`
	Name   string    `json:"name,omitempty"`
	Secret string    `json:"secret"`
	Size   int       `json:"size"`
	Max    int       `json:"max"`
	TS     time.Time `json:"ts"`
	// TTL in seconds; zero means DefaultTTL.
	TTL int `json:"ttl,omitempty"`
}

// JoinSecret decodes the advertised secret.
func (a Advert) JoinSecret() (proto.JoinSecret, error) {
	return proto.ParseJoinSecret(a.Secret)
}

func (a Advert) ttl() time.Duration {
	if a.TTL > 0 {
		return time.Duration(a.TTL) * time.Second
	}
	return DefaultTTL
}

// Entry is an advert as seen by a browser.
type Entry struct {
	Advert   Advert
	PartyID  proto.PartyID
	LastSeen time.Time
}
