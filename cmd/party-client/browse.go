package main

import (
	"context"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/gosuda/partysync/partysync/lobby"
)

var browseCmd = &cobra.Command{
	Use:   "browse",
	Short: "List parties advertised on the libp2p lobby",
	RunE:  runBrowse,
}

var (
	flagLobbyPort  int
	flagBootstraps []string
	flagWait       time.Duration
)

func init() {
	flags := browseCmd.Flags()
	flags.IntVar(&flagLobbyPort, "port", 0, "libp2p listen port; zero picks one")
	flags.StringSliceVar(&flagBootstraps, "bootstrap", nil, "lobby bootstrap multiaddrs with /p2p/")
	flags.DurationVar(&flagWait, "wait", 10*time.Second, "how long to collect adverts")
}

func runBrowse(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), flagWait+5*time.Second)
	defer cancel()

	h, err := lobby.MakeHost(flagLobbyPort)
	if err != nil {
		return err
	}
	defer h.Close()
	if n := lobby.ConnectBootstraps(ctx, h, flagBootstraps, log.Logger); n == 0 {
		log.Warn().Msg("[lobby] no bootstrap peers connected")
	}

	ps, err := lobby.NewPubSub(ctx, h)
	if err != nil {
		return err
	}
	browser, err := lobby.NewBrowser(ctx, ps, lobby.BrowserConfig{Logger: log.Logger})
	if err != nil {
		return err
	}
	defer browser.Close()

	select {
	case <-time.After(flagWait):
	case <-ctx.Done():
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tPARTY\tPLAYERS\tSEEN\tSECRET")
	for _, e := range browser.Parties() {
		fmt.Fprintf(w, "%s\t%s\t%d/%d\t%s\t%s\n",
			e.Advert.Name, e.PartyID, e.Advert.Size, e.Advert.Max,
			time.Since(e.LastSeen).Round(time.Second), e.Advert.Secret)
	}
	return w.Flush()
}
