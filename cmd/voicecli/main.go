// voicecli joins a room as a demo participant and prints the conversation
// as it unfolds. Ctrl-C disconnects and exits.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	lk "github.com/voicelab/voicebridge/internal/adapters/livekit"
	"github.com/voicelab/voicebridge/internal/audio"
	"github.com/voicelab/voicebridge/internal/config"
	"github.com/voicelab/voicebridge/internal/convo"
	"github.com/voicelab/voicebridge/internal/domain"
	"github.com/voicelab/voicebridge/internal/session"
	"github.com/voicelab/voicebridge/internal/token"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	room := flag.String("room", cfg.LiveKit.Room, "room to join")
	identity := flag.String("identity", cfg.LiveKit.Identity, "participant identity")
	mic := flag.Bool("mic", true, "publish microphone after connecting")
	wav := flag.String("wav", "", "skip the realtime session and send this recording through the REST path")
	capture := flag.Duration("capture", 3*time.Second, "how long to capture in REST mode")
	flag.Parse()

	cl := convo.New()
	cl.OnChange(func() {
		entries := cl.Entries()
		last := entries[len(entries)-1]
		fmt.Printf("[%s] %s\n", last.Sender, last.Text)
	})

	if *wav != "" {
		runREST(ctx, cfg, cl, *wav, *capture)
		return
	}

	mgr := session.NewManager(
		lk.New(cfg.LiveKit.URL),
		cl,
		session.Config{
			Tokens:        token.NewHTTPProvider(cfg.Token.Endpoint, cfg.Token.Timeout),
			FallbackToken: cfg.Token.Fallback,
			TokenTimeout:  cfg.Token.Timeout,
		},
	)
	mgr.OnStateChange(func(s domain.ConnectionState) {
		log.Info().Str("state", s.String()).Msg("connection state")
	})

	err = mgr.Connect(ctx, *room, *identity, session.ConnectOptions{EnableMicrophone: *mic})
	if err != nil {
		log.Fatal().Err(err).Str("room", *room).Msg("connect failed")
	}

	<-ctx.Done()
	mgr.Disconnect()
	log.Info().Msg("left the room")
}

// runREST is the request/response sibling path: record from the source,
// ship it to the processing endpoint and fetch the synthesized reply.
func runREST(ctx context.Context, cfg *config.Config, cl *convo.Log, wav string, captureFor time.Duration) {
	rec := audio.NewRecorder(audio.NewFileDevice(wav, 32*1024), cfg.Audio.ChunkInterval)
	if err := rec.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("capture failed to start")
	}

	select {
	case <-time.After(captureFor):
	case <-ctx.Done():
	}

	blob, err := rec.Stop()
	if err != nil {
		log.Fatal().Err(err).Msg("nothing captured")
	}

	client := audio.NewClient(cfg.API.BaseURL, cfg.API.Timeout, cl, audio.NewFilePlayer(os.TempDir()))
	if err := client.Health(ctx); err != nil {
		log.Warn().Err(err).Msg("processing backend unreachable")
	}
	if _, err := client.Process(ctx, blob); err != nil {
		log.Fatal().Err(err).Msg("processing failed")
	}
	cl.FinishReveal()
}
