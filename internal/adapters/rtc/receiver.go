package rtc

import (
	"context"
	"fmt"
	"maps"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/pion/interceptor"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media/ivfwriter"
	"github.com/pion/webrtc/v4/pkg/media/oggwriter"
	"github.com/rs/zerolog/log"
)

// RTPSource is satisfied by *webrtc.TrackRemote.
type RTPSource interface {
	ReadRTP() (*rtp.Packet, interceptor.Attributes, error)
}

// RTPSink consumes the packets of one remote track. The ivf and ogg
// writers from pion satisfy it.
type RTPSink interface {
	WriteRTP(pkt *rtp.Packet) error
	Close() error
}

type SinkState int32

const (
	SinkOk SinkState = iota
	SinkMuted
	SinkDelete
)

type sink struct {
	w     RTPSink
	state atomic.Int32
}

func (s *sink) get() SinkState   { return SinkState(s.state.Load()) }
func (s *sink) set(st SinkState) { s.state.Store(int32(st)) }

type Stats struct {
	Packets uint64
	Bytes   uint64
	// Lost counts sequence numbers skipped between received packets.
	Lost uint64
}

// Receiver reads one remote track and fans its packets out to sinks.
type Receiver struct {
	src  RTPSource
	kind string

	mu    sync.RWMutex
	sinks map[string]*sink

	statsMu sync.Mutex
	stats   Stats
	lastSeq uint16
	started bool
}

func NewReceiver(src RTPSource, kind string) *Receiver {
	return &Receiver{src: src, kind: kind, sinks: make(map[string]*sink)}
}

func (r *Receiver) AddSink(name string, w RTPSink) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sinks[name] = &sink{w: w}
}

// Mute pauses or resumes delivery to a sink.
func (r *Receiver) Mute(name string, muted bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sinks[name]
	if !ok {
		return
	}
	if muted {
		s.set(SinkMuted)
	} else {
		s.set(SinkOk)
	}
}

func (r *Receiver) Stats() Stats {
	r.statsMu.Lock()
	defer r.statsMu.Unlock()
	return r.stats
}

// Run reads until the source fails or ctx is done, then closes every sink.
func (r *Receiver) Run(ctx context.Context) {
	defer r.closeAll()
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		pkt, _, err := r.src.ReadRTP()
		if err != nil {
			log.Info().Err(err).Str("module", "rtc").Str("kind", r.kind).Msg("receiver stopped")
			return
		}
		r.observe(pkt)
		r.forward(pkt)
	}
}

func (r *Receiver) observe(pkt *rtp.Packet) {
	r.statsMu.Lock()
	defer r.statsMu.Unlock()
	if r.started {
		if gap := pkt.SequenceNumber - r.lastSeq; gap > 1 && gap < 1<<15 {
			r.stats.Lost += uint64(gap - 1)
		}
	}
	r.started = true
	r.lastSeq = pkt.SequenceNumber
	r.stats.Packets++
	r.stats.Bytes += uint64(len(pkt.Payload))
}

func (r *Receiver) forward(pkt *rtp.Packet) {
	r.mu.RLock()
	snapshot := maps.Clone(r.sinks)
	r.mu.RUnlock()

	var dirty []string
	for name, s := range snapshot {
		switch s.get() {
		case SinkDelete:
			dirty = append(dirty, name)
		case SinkMuted:
		case SinkOk:
			if err := s.w.WriteRTP(pkt); err != nil {
				log.Error().Err(err).Str("module", "rtc").Str("sink", name).Msg("sink write error, dropping sink")
				s.set(SinkDelete)
				dirty = append(dirty, name)
			}
		}
	}
	if len(dirty) > 0 {
		r.remove(dirty)
	}
}

func (r *Receiver) remove(names []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, name := range names {
		if s, ok := r.sinks[name]; ok {
			_ = s.w.Close()
			delete(r.sinks, name)
		}
	}
}

func (r *Receiver) closeAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for name, s := range r.sinks {
		if err := s.w.Close(); err != nil {
			log.Warn().Err(err).Str("module", "rtc").Str("sink", name).Msg("close sink")
		}
		delete(r.sinks, name)
	}
}

// NewRecorder opens a file sink for a track codec: IVF for VP8, Ogg for
// Opus. The file is named after prefix with the matching extension.
func NewRecorder(dir, prefix string, codec webrtc.RTPCodecParameters) (RTPSink, string, error) {
	switch strings.ToLower(codec.MimeType) {
	case strings.ToLower(webrtc.MimeTypeVP8):
		path := filepath.Join(dir, prefix+".ivf")
		w, err := ivfwriter.New(path)
		return w, path, err
	case strings.ToLower(webrtc.MimeTypeOpus):
		path := filepath.Join(dir, prefix+".ogg")
		channels := codec.Channels
		if channels == 0 {
			channels = 2
		}
		w, err := oggwriter.New(path, codec.ClockRate, channels)
		return w, path, err
	default:
		return nil, "", fmt.Errorf("no recorder for %s", codec.MimeType)
	}
}
