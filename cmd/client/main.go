package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"

	"github.com/dkeye/Mesh/internal/config"
	"github.com/dkeye/Mesh/internal/domain"
	"github.com/dkeye/Mesh/internal/peer"
	"github.com/dkeye/Mesh/internal/protocol"
	"github.com/dkeye/Mesh/internal/sdp"
)

// Headless mesh participant: joins a channel, negotiates audio with every
// co-member and logs what it sees. Useful for soak testing a hub without a
// browser.
func main() {
	url := pflag.String("url", "ws://localhost:8080/api/ws/signal", "hub signaling endpoint")
	channel := pflag.String("channel", "main", "channel to join")
	name := pflag.String("name", "", "display name")
	pflag.Parse()

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.DebugLevel)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	policy := func(desc string) string {
		return sdp.ApplyBitratePolicy(desc, cfg.AudioBitrate, cfg.MaxPlaybackRate)
	}
	engines := func() (peer.Engine, error) {
		return peer.NewPionEngine(peer.EngineConfig{STUNServers: cfg.STUNServers})
	}

	client, err := peer.Dial(ctx, *url, engines, policy)
	if err != nil {
		log.Fatal().Err(err).Str("url", *url).Msg("failed to reach hub")
	}
	defer client.Close()

	client.Roster().OnTrack(func(id domain.ConnID, t peer.Track) {
		log.Info().Str("peer", string(id)).Str("kind", t.Kind).Str("stream", t.StreamID).Msg("remote media available")
	})
	client.Roster().OnStateChange(func(id domain.ConnID, s peer.State) {
		log.Info().Str("peer", string(id)).Str("state", s.String()).Msg("peer session state")
	})
	client.OnChat(func(m protocol.ChatMessage) {
		log.Info().Str("from", m.DisplayName).Str("text", m.Text).Msg("chat")
	})
	client.OnRoster(func(r protocol.Roster) {
		log.Info().Str("channel", string(r.Channel)).Int("members", len(r.Members)).Msg("roster snapshot")
	})

	if err := client.Join(domain.ChannelName(*channel), *name); err != nil {
		log.Fatal().Err(err).Msg("join failed")
	}
	log.Info().Str("channel", *channel).Msg("joined, waiting for peers")

	select {
	case <-ctx.Done():
		_ = client.Part(domain.ChannelName(*channel))
	case <-client.Done():
		log.Warn().Msg("hub connection lost")
	}
}
