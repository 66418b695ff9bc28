// Package store persists party credentials and session state in pebble so a
// restarted server keeps its join secret and operator key.
package store

import (
	"errors"
	"fmt"

	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/vfs"
	"github.com/rs/zerolog"

	"github.com/gosuda/partysync/partysync/core/proto"
)

var ErrCorrupt = errors.New("store: corrupt value")

var (
	hostKeyKey = []byte("keys/host")
	joinKeyKey = []byte("keys/join")
	sceneKey   = []byte("session/scene")
)

type Options struct {
	// FS overrides the filesystem; tests pass vfs.NewMem().
	FS     vfs.FS
	Logger zerolog.Logger
}

// KeyStore is a small pebble database holding the server's keys.
type KeyStore struct {
	db     *pebble.DB
	logger zerolog.Logger
}

func Open(dir string, opts Options) (*KeyStore, error) {
	po := &pebble.Options{}
	if opts.FS != nil {
		po.FS = opts.FS
	}
	db, err := pebble.Open(dir, po)
	if err != nil {
		return nil, fmt.Errorf("open store %s: %w", dir, err)
	}
	opts.Logger.Debug().Str("dir", dir).Msg("[store] Opened")
	return &KeyStore{db: db, logger: opts.Logger}, nil
}

func (s *KeyStore) get(key []byte) ([]byte, bool, error) {
	v, closer, err := s.db.Get(key)
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	defer closer.Close()
	return append([]byte(nil), v...), true, nil
}

func (s *KeyStore) loadKey(key []byte) (proto.Key32, bool, error) {
	var k proto.Key32
	v, ok, err := s.get(key)
	if err != nil || !ok {
		return k, false, err
	}
	if len(v) != len(k) {
		return k, false, fmt.Errorf("%w: %s has %d bytes", ErrCorrupt, key, len(v))
	}
	copy(k[:], v)
	return k, true, nil
}

func (s *KeyStore) saveKey(key []byte, k proto.Key32) error {
	return s.db.Set(key, k[:], pebble.Sync)
}

// loadOrCreate returns the stored key or generates and stores a new one.
func (s *KeyStore) loadOrCreate(key []byte) (proto.Key32, error) {
	k, ok, err := s.loadKey(key)
	if err != nil {
		return k, err
	}
	if ok {
		return k, nil
	}
	k = proto.NewKey32()
	if err := s.saveKey(key, k); err != nil {
		return k, err
	}
	s.logger.Info().Str("key", string(key)).Msg("[store] Generated new key")
	return k, nil
}

// HostKey returns the operator key, creating it on first use.
func (s *KeyStore) HostKey() (proto.Key32, error) {
	return s.loadOrCreate(hostKeyKey)
}

// JoinKey returns the access key, creating it on first use.
func (s *KeyStore) JoinKey() (proto.Key32, error) {
	return s.loadOrCreate(joinKeyKey)
}

// SetJoinKey records a rotated access key.
func (s *KeyStore) SetJoinKey(k proto.Key32) error {
	return s.saveKey(joinKeyKey, k)
}

// Scene returns the last scene recorded, if any.
func (s *KeyStore) Scene() (string, bool, error) {
	v, ok, err := s.get(sceneKey)
	return string(v), ok, err
}

func (s *KeyStore) SetScene(name string) error {
	return s.db.Set(sceneKey, []byte(name), pebble.NoSync)
}

func (s *KeyStore) Close() error {
	return s.db.Close()
}
