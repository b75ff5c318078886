package session

import (
	"image"
	"image/draw"
	"log/slog"
	"sync"
	"time"

	"github.com/arledge/webrd/internal/config"
	"github.com/arledge/webrd/internal/desktop"
	"github.com/arledge/webrd/internal/protocol"
	"github.com/arledge/webrd/internal/workerpool"
)

// framePipeline produces one frame response per request: capture, resize to
// the client viewport, diff against the last transmitted image, apply the
// repaint budget, encode. It owns the session's reference image and streak
// counters and is driven only by the producer goroutine.
type framePipeline struct {
	capturer desktop.ScreenCapturer
	cfg      *config.Config
	pool     *workerpool.Pool
	metrics  *StreamMetrics
	log      *slog.Logger

	lastSent      *image.RGBA
	partialStreak int
	emptyStreak   int

	// The viewport is written by the producer and read by the reader for
	// input coordinate scaling.
	vpMu      sync.Mutex
	viewportW int
	viewportH int
}

func newFramePipeline(capturer desktop.ScreenCapturer, cfg *config.Config, pool *workerpool.Pool, metrics *StreamMetrics, log *slog.Logger) *framePipeline {
	return &framePipeline{
		capturer: capturer,
		cfg:      cfg,
		pool:     pool,
		metrics:  metrics,
		log:      log,
	}
}

// Produce services one frame request. Capture and encode failures degrade to
// an empty frame so the 1-for-1 request/response pairing is preserved.
func (p *framePipeline) Produce(req protocol.FrameRequest) protocol.FrameResponse {
	vw, vh := int(req.ViewportW), int(req.ViewportH)

	start := time.Now()
	src, err := p.capturer.Capture()
	if err != nil {
		p.log.Warn("capture failed", "error", err)
		return p.emptyFrame(req)
	}
	p.metrics.RecordCapture(time.Since(start))

	// A viewport change invalidates the reference image: the next frame is
	// necessarily full.
	p.vpMu.Lock()
	if vw != p.viewportW || vh != p.viewportH {
		p.lastSent = nil
		p.viewportW, p.viewportH = vw, vh
	}
	p.vpMu.Unlock()

	cur := desktop.Resize(src, vw, vh)
	quality := clampInt(int(req.Quality), p.cfg.MinQuality, p.cfg.MaxQuality)

	delta := desktop.Diff(p.lastSent, cur)

	// Repaint budget: JPEG is lossy, so partial rectangles stack encoder
	// artifacts against an already-lossy reference, and a long empty run
	// risks silent divergence from the client's view. Both streaks force a
	// periodic full repaint.
	switch delta.Kind {
	case desktop.DeltaNone:
		if p.emptyStreak+1 >= p.cfg.EmptyStreakLimit {
			delta.Kind = desktop.DeltaFull
		}
	case desktop.DeltaRect:
		if p.partialStreak+1 >= p.cfg.PartialStreakLimit {
			delta.Kind = desktop.DeltaFull
		}
	}

	switch delta.Kind {
	case desktop.DeltaFull:
		blob, err := p.encode(cur, quality)
		if err != nil {
			p.log.Warn("encode failed", "error", err)
			return p.emptyFrame(req)
		}
		p.lastSent = cur
		p.partialStreak, p.emptyStreak = 0, 0
		return protocol.FrameResponse{
			Type:    protocol.FrameFull,
			RemoteW: req.ViewportW,
			RemoteH: req.ViewportH,
			JPEG:    blob,
		}

	case desktop.DeltaRect:
		blob, err := p.encodeRegion(cur, delta.Rect, quality)
		if err != nil {
			p.log.Warn("encode failed", "rect", delta.Rect, "error", err)
			return p.emptyFrame(req)
		}
		// Patch the reference image so it matches what the client now shows.
		draw.Draw(p.lastSent, delta.Rect, cur, delta.Rect.Min, draw.Src)
		p.partialStreak++
		p.emptyStreak = 0
		return protocol.FrameResponse{
			Type:    protocol.FramePartial,
			RemoteW: req.ViewportW,
			RemoteH: req.ViewportH,
			CropX:   uint16(delta.Rect.Min.X),
			CropY:   uint16(delta.Rect.Min.Y),
			JPEG:    blob,
		}

	default:
		p.emptyStreak++
		p.partialStreak = 0
		return p.emptyFrameKeepStreak(req)
	}
}

func (p *framePipeline) emptyFrame(req protocol.FrameRequest) protocol.FrameResponse {
	p.emptyStreak++
	p.partialStreak = 0
	return p.emptyFrameKeepStreak(req)
}

func (p *framePipeline) emptyFrameKeepStreak(req protocol.FrameRequest) protocol.FrameResponse {
	return protocol.FrameResponse{
		Type:    protocol.FrameEmpty,
		RemoteW: req.ViewportW,
		RemoteH: req.ViewportH,
	}
}

// encode runs a JPEG encode on the shared worker pool, falling back to an
// inline encode when the pool is saturated.
func (p *framePipeline) encode(img *image.RGBA, quality int) ([]byte, error) {
	return p.offload(func() ([]byte, error) {
		return desktop.EncodeJPEG(img, quality)
	})
}

func (p *framePipeline) encodeRegion(img *image.RGBA, rect image.Rectangle, quality int) ([]byte, error) {
	return p.offload(func() ([]byte, error) {
		return desktop.EncodeRegion(img, rect, quality)
	})
}

type encodeResult struct {
	blob []byte
	err  error
}

func (p *framePipeline) offload(encode func() ([]byte, error)) ([]byte, error) {
	start := time.Now()
	resultCh := make(chan encodeResult, 1)
	submitted := p.pool != nil && p.pool.Submit(func() {
		blob, err := encode()
		resultCh <- encodeResult{blob, err}
	})

	var res encodeResult
	if submitted {
		res = <-resultCh
	} else {
		res.blob, res.err = encode()
	}
	if res.err == nil {
		p.metrics.RecordEncode(time.Since(start), len(res.blob))
	}
	return res.blob, res.err
}

// Viewport returns the most recently negotiated client viewport, or zeros
// before the first frame request.
func (p *framePipeline) Viewport() (w, h int) {
	p.vpMu.Lock()
	defer p.vpMu.Unlock()
	return p.viewportW, p.viewportH
}

func clampInt(v, min, max int) int {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}
