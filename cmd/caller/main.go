// Command caller is a headless call client: it connects to the signaling
// server as one user, streams media from files and places or answers a
// single call.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"

	"github.com/dkeye/Huddle/internal/adapters/media"
	"github.com/dkeye/Huddle/internal/adapters/rtc"
	"github.com/dkeye/Huddle/internal/call"
	"github.com/dkeye/Huddle/internal/core"
	"github.com/dkeye/Huddle/internal/domain"
	"github.com/dkeye/Huddle/internal/signalclient"
)

func main() {
	var (
		server   = pflag.String("server", "ws://localhost:8080/api/ws/signal", "signaling endpoint")
		user     = pflag.String("user", "", "user id to connect as")
		name     = pflag.String("name", "", "display name sent with offers")
		peer     = pflag.String("call", "", "user id to call once connected; empty waits for calls")
		accept   = pflag.Bool("accept", true, "answer incoming calls")
		video    = pflag.String("video", "", "IVF (VP8) file to stream")
		audio    = pflag.String("audio", "", "Ogg (Opus) file to stream")
		loop     = pflag.Bool("loop", true, "restart media files when they end")
		ring     = pflag.Duration("ring-timeout", call.DefaultRingTimeout, "give up on unanswered calls after this long, 0 waits forever")
		duration = pflag.Duration("duration", 0, "hang up after this long in a call, 0 keeps the call open")
		cookie   = pflag.String("cookie", "", "session cookie header value, e.g. HuddleSessions=...")
		record   = pflag.String("record", "", "directory to record the peer's media into")
		debug    = pflag.Bool("debug", false, "debug logging")
	)
	pflag.Parse()

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if *debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
	if *user == "" {
		log.Fatal().Msg("--user is required")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	peers, err := rtc.NewFactory(rtc.DefaultWebRTCConfig())
	if err != nil {
		log.Fatal().Err(err).Msg("webrtc setup")
	}

	header := http.Header{}
	if *cookie != "" {
		header.Set("Cookie", *cookie)
	}
	client, err := signalclient.NewClient(*server, domain.UserID(*user), signalclient.Handler{}, signalclient.Options{Header: header})
	if err != nil {
		log.Fatal().Err(err).Msg("signal client")
	}

	self := domain.UserInfo{ID: domain.UserID(*user), FullName: *name}
	if self.FullName == "" {
		self.FullName = *user
	}

	api, err := signalclient.APIBase(*server)
	if err != nil {
		log.Fatal().Err(err).Msg("api url")
	}
	// the block API needs a session; without one only the server-side
	// relay check applies
	var blocks call.BlockChecker
	if *cookie != "" {
		blocks = signalclient.NewBlockChecker(api, header, &http.Client{Timeout: 10 * time.Second})
	} else {
		log.Warn().Str("module", "caller").Msg("no --cookie, skipping block check before calls")
	}

	var machine *call.Machine
	var hangup *time.Timer
	machine = call.NewMachine(call.Options{
		Self:        self,
		Capturer:    &media.FileCapturer{VideoPath: *video, AudioPath: *audio, Loop: *loop},
		Peers:       peers,
		Signaler:    client,
		Blocks:      blocks,
		RingTimeout: *ring,
		OnChange: func(s call.Status) {
			log.Info().Str("module", "caller").Str("state", s.State.String()).Str("peer", string(s.Peer)).Str("reason", s.Reason).Msg("call")
			switch s.State {
			case call.Receiving:
				if !*accept {
					_ = machine.Reject()
					return
				}
				go func() {
					if err := machine.Accept(ctx); err != nil {
						log.Error().Err(err).Str("module", "caller").Msg("accept")
					}
				}()
			case call.Ongoing:
				if *duration > 0 {
					hangup = time.AfterFunc(*duration, func() { _ = machine.EndCall() })
				}
			case call.Idle:
				if hangup != nil {
					hangup.Stop()
				}
				if *peer != "" {
					cancel()
				}
			}
		},
		OnTrack: func(from domain.UserID, track *webrtc.TrackRemote) {
			go receive(ctx, *record, from, track)
		},
	})

	client.SetHandler(signalclient.Bind(signalclient.Handler{
		OnPresence: func(online []domain.UserID) {
			log.Debug().Str("module", "caller").Int("online", len(online)).Msg("presence")
		},
		OnError: func(p domain.ErrorPayload) {
			log.Warn().Str("module", "caller").Str("error", p.Error).Str("on", p.On).Msg("server error")
		},
		OnEvent: func(env core.Envelope) {
			log.Debug().Str("module", "caller").Str("type", env.Type).Msg("event")
		},
	}, machine))

	if err := client.Connect(ctx); err != nil {
		log.Fatal().Err(err).Msg("connect")
	}
	defer client.Close()
	log.Info().Str("module", "caller").Str("user", *user).Str("server", *server).Msg("connected")

	if *peer != "" {
		if err := machine.StartCall(ctx, domain.UserID(*peer)); err != nil {
			log.Error().Err(err).Str("module", "caller").Str("peer", *peer).Msg("start call")
			return
		}
	}

	select {
	case <-ctx.Done():
	case <-client.Done():
		log.Warn().Str("module", "caller").Msg("signaling connection lost")
	}
	_ = machine.EndCall()
}

// receive reads a remote track until it ends, recording it when dir is set.
func receive(ctx context.Context, dir string, from domain.UserID, track *webrtc.TrackRemote) {
	kind := track.Kind().String()
	log.Info().Str("module", "caller").Str("from", string(from)).Str("kind", kind).Str("codec", track.Codec().MimeType).Msg("receiving track")

	r := rtc.NewReceiver(track, kind)
	if dir != "" {
		w, path, err := rtc.NewRecorder(dir, string(from)+"-"+kind, track.Codec())
		if err != nil {
			log.Warn().Err(err).Str("module", "caller").Str("kind", kind).Msg("not recording")
		} else {
			r.AddSink(path, w)
			log.Info().Str("module", "caller").Str("file", path).Msg("recording")
		}
	}
	r.Run(ctx)

	st := r.Stats()
	log.Info().Str("module", "caller").Str("kind", kind).Uint64("packets", st.Packets).Uint64("bytes", st.Bytes).Uint64("lost", st.Lost).Msg("track ended")
}
