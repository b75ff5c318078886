package session

import (
	"errors"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"github.com/arledge/webrd/internal/desktop"
	"github.com/arledge/webrd/internal/protocol"
)

// dispatcher applies decoded input batches to the OS synthesizer, gated by
// the session role and a token-bucket rate limit.
type dispatcher struct {
	synth   desktop.InputSynthesizer
	limiter *rate.Limiter
	metrics *StreamMetrics
	log     *slog.Logger
}

func newDispatcher(synth desktop.InputSynthesizer, maxIPS int, metrics *StreamMetrics, log *slog.Logger) *dispatcher {
	if maxIPS < 1 {
		maxIPS = 1
	}
	return &dispatcher{
		synth:   synth,
		limiter: rate.NewLimiter(rate.Limit(maxIPS), maxIPS),
		metrics: metrics,
		log:     log,
	}
}

// Dispatch applies a batch in receipt order. Viewer batches are dropped
// silently. Events over the rate budget are dropped oldest-first within the
// batch, so the freshest input wins. Per-event synthesizer failures drop the
// event and continue; they never abort the batch.
func (d *dispatcher) Dispatch(role Role, events []protocol.InputEvent, viewportW, viewportH, displayW, displayH int) {
	if role != RoleController || len(events) == 0 {
		return
	}

	kept := events
	now := time.Now()
	if avail := int(d.limiter.TokensAt(now)); avail < len(kept) {
		if avail < 0 {
			avail = 0
		}
		kept = kept[len(kept)-avail:]
	}
	d.metrics.RecordInput(0, len(events)-len(kept))
	if len(kept) == 0 {
		return
	}
	d.limiter.AllowN(now, len(kept))

	for _, ev := range kept {
		if err := d.apply(ev, viewportW, viewportH, displayW, displayH); err != nil {
			if errors.Is(err, desktop.ErrUnknownKey) {
				d.log.Debug("dropping event with unknown key", "key", ev.Key)
			} else {
				d.log.Warn("input synthesis failed", "event", ev.Kind.String(), "error", err)
			}
			continue
		}
		d.metrics.RecordInput(1, 0)
	}
}

func (d *dispatcher) apply(ev protocol.InputEvent, vw, vh, dw, dh int) error {
	x := scaleCoord(ev.X, vw, dw)
	y := scaleCoord(ev.Y, vh, dh)

	switch ev.Kind {
	case protocol.EventMouseMove:
		return d.synth.MouseMove(x, y)
	case protocol.EventMouseDown:
		return d.synth.MouseDown(x, y, ev.Button)
	case protocol.EventMouseUp:
		return d.synth.MouseUp(x, y, ev.Button)
	case protocol.EventMouseScroll:
		return d.synth.Scroll(x, y, ev.Delta)
	case protocol.EventKeyDown:
		return d.synth.KeyDown(ev.Key)
	case protocol.EventKeyUp:
		return d.synth.KeyUp(ev.Key)
	}
	return nil
}

// scaleCoord maps a client-viewport coordinate onto the host display:
// linear scaling, rounded to nearest, clamped to the display bounds.
func scaleCoord(v, viewport, display int) int {
	if viewport <= 0 || display <= 0 {
		return 0
	}
	scaled := (v*display + viewport/2) / viewport
	if scaled < 0 {
		return 0
	}
	if scaled >= display {
		return display - 1
	}
	return scaled
}
