package main

import (
	"net/netip"
	"testing"

	"github.com/cockroachdb/pebble/vfs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gosuda/partysync/partysync"
	"github.com/gosuda/partysync/partysync/store"
)

func TestResolvePublicAddr(t *testing.T) {
	tests := []struct {
		public, listen string
		want           string
	}{
		{"", ":7777", "127.0.0.1:7777"},
		{"", "0.0.0.0:9000", "127.0.0.1:9000"},
		{"", "10.1.2.3:9000", "10.1.2.3:9000"},
		{"", "[::1]:9000", "[::1]:9000"},
		{"203.0.113.9:443", ":7777", "203.0.113.9:443"},
	}
	for _, tt := range tests {
		t.Run(tt.public+"|"+tt.listen, func(t *testing.T) {
			got, err := resolvePublicAddr(tt.public, tt.listen)
			require.NoError(t, err)
			assert.Equal(t, netip.MustParseAddrPort(tt.want), got)
		})
	}

	_, err := resolvePublicAddr("nope", ":1")
	require.Error(t, err)
	_, err = resolvePublicAddr("", "no-port")
	require.Error(t, err)
}

func TestEnvInt(t *testing.T) {
	t.Setenv("PARTY_TEST_INT", "12")
	assert.Equal(t, 12, envInt("PARTY_TEST_INT", 3))
	t.Setenv("PARTY_TEST_INT", "x")
	assert.Equal(t, 3, envInt("PARTY_TEST_INT", 3))
}

func TestLoadPersisted(t *testing.T) {
	keys, err := store.Open("data", store.Options{FS: vfs.NewMem()})
	require.NoError(t, err)
	defer keys.Close()

	cfg := partysync.DefaultServerConfig()
	require.NoError(t, loadPersisted(keys, &cfg))
	require.NotNil(t, cfg.HostKey)
	require.NotNil(t, cfg.JoinKey)
	assert.Equal(t, "", cfg.InitialScene)

	cfg.Hooks.SceneChanged("forest", 0)

	again := partysync.DefaultServerConfig()
	require.NoError(t, loadPersisted(keys, &again))
	assert.Equal(t, *cfg.HostKey, *again.HostKey)
	assert.Equal(t, *cfg.JoinKey, *again.JoinKey)
	assert.Equal(t, "forest", again.InitialScene)
}
