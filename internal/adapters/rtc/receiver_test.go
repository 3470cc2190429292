package rtc

import (
	"context"
	"errors"
	"io"
	"os"
	"testing"

	"github.com/pion/interceptor"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
)

type packets struct {
	seqs []uint16
	i    int
}

func (p *packets) ReadRTP() (*rtp.Packet, interceptor.Attributes, error) {
	if p.i >= len(p.seqs) {
		return nil, nil, io.EOF
	}
	pkt := &rtp.Packet{Header: rtp.Header{SequenceNumber: p.seqs[p.i]}, Payload: []byte{1, 2, 3}}
	p.i++
	return pkt, nil, nil
}

type recordSink struct {
	seqs   []uint16
	fail   bool
	closed int
}

func (s *recordSink) WriteRTP(pkt *rtp.Packet) error {
	if s.fail {
		return errors.New("disk full")
	}
	s.seqs = append(s.seqs, pkt.SequenceNumber)
	return nil
}

func (s *recordSink) Close() error {
	s.closed++
	return nil
}

func TestReceiver_FanOutAndStats(t *testing.T) {
	r := NewReceiver(&packets{seqs: []uint16{65534, 65535, 0, 3, 4}}, "audio")
	good, muted, broken := &recordSink{}, &recordSink{}, &recordSink{fail: true}
	r.AddSink("good", good)
	r.AddSink("muted", muted)
	r.AddSink("broken", broken)
	r.Mute("muted", true)
	r.Mute("unknown", true)

	r.Run(context.Background())

	if len(good.seqs) != 5 {
		t.Fatalf("good sink got %v", good.seqs)
	}
	if len(muted.seqs) != 0 {
		t.Fatalf("muted sink got %v", muted.seqs)
	}
	if broken.closed != 1 || good.closed != 1 || muted.closed != 1 {
		t.Fatalf("closes: broken %d good %d muted %d", broken.closed, good.closed, muted.closed)
	}
	st := r.Stats()
	if st.Packets != 5 || st.Bytes != 15 || st.Lost != 2 {
		t.Fatalf("stats = %+v", st)
	}
}

func TestReceiver_StopsOnCancel(t *testing.T) {
	r := NewReceiver(&packets{seqs: []uint16{1, 2, 3}}, "video")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	r.Run(ctx)
	if r.Stats().Packets != 0 {
		t.Fatalf("read after cancel: %+v", r.Stats())
	}
}

func TestNewRecorder(t *testing.T) {
	dir := t.TempDir()
	w, path, err := NewRecorder(dir, "bob-video", webrtc.RTPCodecParameters{RTPCodecCapability: webrtc.RTPCodecCapability{MimeType: "video/vp8", ClockRate: 90000}})
	if err != nil {
		t.Fatal(err)
	}
	_ = w.Close()
	if _, err := os.Stat(path); err != nil {
		t.Fatal(err)
	}

	w, _, err = NewRecorder(dir, "bob-audio", webrtc.RTPCodecParameters{RTPCodecCapability: webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus, ClockRate: 48000, Channels: 2}})
	if err != nil {
		t.Fatal(err)
	}
	_ = w.Close()

	if _, _, err := NewRecorder(dir, "x", webrtc.RTPCodecParameters{RTPCodecCapability: webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeH264}}); err == nil {
		t.Fatal("expected error for H264")
	}
}
