// Package media captures local call media from files: an IVF file for
// VP8 video and an Ogg file for Opus audio. Either may be omitted, not both.
package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/dkeye/Huddle/internal/call"
	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"
	"github.com/pion/webrtc/v4/pkg/media/ivfreader"
	"github.com/pion/webrtc/v4/pkg/media/oggreader"
	"github.com/rs/zerolog/log"
)

const oggPageDuration = 20 * time.Millisecond

var ErrNoSource = errors.New("no media source configured")

type FileCapturer struct {
	VideoPath string
	AudioPath string
	// Loop restarts a file when it ends.
	Loop bool
}

type capture struct {
	tracks []webrtc.TrackLocal
	cancel context.CancelFunc
	wg     sync.WaitGroup
	once   sync.Once
}

func (c *capture) Tracks() []webrtc.TrackLocal { return c.tracks }

// Stop ends the file readers and waits for them.
func (c *capture) Stop() {
	c.once.Do(func() {
		c.cancel()
		c.wg.Wait()
	})
}

func (f *FileCapturer) Capture(ctx context.Context) (call.LocalMedia, error) {
	if f.VideoPath == "" && f.AudioPath == "" {
		return nil, ErrNoSource
	}
	// files are opened up front so a missing device fails the call setup
	for _, p := range []string{f.VideoPath, f.AudioPath} {
		if p == "" {
			continue
		}
		if _, err := os.Stat(p); err != nil {
			return nil, fmt.Errorf("media source: %w", err)
		}
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	c := &capture{cancel: cancel}
	stream := "huddle-" + uuid.NewString()

	if f.VideoPath != "" {
		track, err := webrtc.NewTrackLocalStaticSample(webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8}, "video", stream)
		if err != nil {
			cancel()
			return nil, err
		}
		c.tracks = append(c.tracks, track)
		c.wg.Add(1)
		go func() {
			defer c.wg.Done()
			f.run(runCtx, "video", func() error { return streamIVF(runCtx, f.VideoPath, track) })
		}()
	}
	if f.AudioPath != "" {
		track, err := webrtc.NewTrackLocalStaticSample(webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus}, "audio", stream)
		if err != nil {
			cancel()
			c.wg.Wait()
			return nil, err
		}
		c.tracks = append(c.tracks, track)
		c.wg.Add(1)
		go func() {
			defer c.wg.Done()
			f.run(runCtx, "audio", func() error { return streamOgg(runCtx, f.AudioPath, track) })
		}()
	}
	return c, nil
}

func (f *FileCapturer) run(ctx context.Context, kind string, play func() error) {
	for {
		err := play()
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			log.Error().Err(err).Str("module", "media").Str("kind", kind).Msg("playback failed")
			return
		}
		if !f.Loop {
			log.Info().Str("module", "media").Str("kind", kind).Msg("playback finished")
			return
		}
	}
}

func streamIVF(ctx context.Context, path string, track *webrtc.TrackLocalStaticSample) error {
	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()

	reader, header, err := ivfreader.NewWith(file)
	if err != nil {
		return fmt.Errorf("ivf header: %w", err)
	}
	frameDuration, err := ivfFrameDuration(header)
	if err != nil {
		return err
	}

	ticker := time.NewTicker(frameDuration)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
		frame, _, err := reader.ParseNextFrame()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("ivf frame: %w", err)
		}
		if err := track.WriteSample(media.Sample{Data: frame, Duration: frameDuration}); err != nil {
			return err
		}
	}
}

// ivfFrameDuration is one tick of the file's timebase. A ticker cannot
// run on a zero or negative period.
func ivfFrameDuration(header *ivfreader.IVFFileHeader) (time.Duration, error) {
	if header.TimebaseDenominator == 0 {
		return 0, fmt.Errorf("ivf header: zero timebase denominator")
	}
	d := time.Duration(float64(header.TimebaseNumerator) / float64(header.TimebaseDenominator) * float64(time.Second))
	if d <= 0 {
		return 0, fmt.Errorf("ivf header: timebase %d/%d gives no frame duration", header.TimebaseNumerator, header.TimebaseDenominator)
	}
	return d, nil
}

func streamOgg(ctx context.Context, path string, track *webrtc.TrackLocalStaticSample) error {
	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()

	reader, _, err := oggreader.NewWith(file)
	if err != nil {
		return fmt.Errorf("ogg header: %w", err)
	}

	var lastGranule uint64
	ticker := time.NewTicker(oggPageDuration)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
		page, header, err := reader.ParseNextPage()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("ogg page: %w", err)
		}
		// granule position counts 48kHz samples
		count := header.GranulePosition - lastGranule
		lastGranule = header.GranulePosition
		duration := time.Duration(float64(count)/48000*1000) * time.Millisecond
		if err := track.WriteSample(media.Sample{Data: page, Duration: duration}); err != nil {
			return err
		}
	}
}
