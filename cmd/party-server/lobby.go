package main

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/gosuda/partysync/partysync"
	"github.com/gosuda/partysync/partysync/lobby"
)

// startLobby publishes the server's join secret on the libp2p lobby until
// the returned func is called.
func startLobby(ctx context.Context, server *partysync.Server) (func(), error) {
	h, err := lobby.MakeHost(flagLobbyPort)
	if err != nil {
		return nil, fmt.Errorf("start lobby host: %w", err)
	}
	n := lobby.ConnectBootstraps(ctx, h, flagBootstraps, log.Logger)
	log.Info().Str("peer", h.ID().String()).Int("bootstraps", n).Msg("[lobby] host started")

	ps, err := lobby.NewPubSub(ctx, h)
	if err != nil {
		h.Close()
		return nil, err
	}
	adv, err := lobby.NewAdvertiser(ctx, h.ID(), ps, lobby.AdvertiserConfig{
		Name: flagLobbyName,
		Snapshot: func() lobby.Advert {
			st := server.Status()
			return lobby.Advert{
				Secret: server.JoinSecret().String(),
				Size:   st.Size,
				Max:    st.MaxPlayers,
			}
		},
		Logger: log.Logger,
	})
	if err != nil {
		h.Close()
		return nil, err
	}

	return func() {
		_ = adv.Close()
		_ = h.Close()
	}, nil
}
