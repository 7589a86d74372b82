package collect

import (
	"errors"
	"fmt"
	"io"
	"log"
	"testing"

	"github.com/ThalesMMS/BTC-20M-Countdown/estimate"
	"github.com/ThalesMMS/BTC-20M-Countdown/testutil"
)

// harness drives a Collector through poll cycles synchronously, with
// scriptable feeds and a fake clock.
type harness struct {
	c       *Collector
	now     int64
	samples []Sample
	primErr error
	height  int64
	fallErr error
}

func newHarness(target int64) *harness {
	h := &harness{now: 1700000000}
	cfg := Config{
		PollPeriod:       30,
		Mode:             estimate.Empirical,
		NominalBlockTime: 600,
		Target:           target,
		GetSamples: func() ([]Sample, error) {
			if h.primErr != nil {
				return nil, h.primErr
			}
			return h.samples, nil
		},
		GetHeight: func() (int64, error) {
			if h.fallErr != nil {
				return 0, h.fallErr
			}
			return h.height, nil
		},
		TimeNow: func() int64 { return h.now },
		Logger:  log.New(io.Discard, "", 0),
	}
	h.c = NewCollector(cfg)
	return h
}

// poll runs one cycle the way the run loop does.
func (h *harness) poll() error {
	h.c.seq++
	return h.c.apply(h.c.poll(h.c.seq))
}

// window builds a batch of n consecutive blocks ending at top, spaced by
// the given block interval, most recent last to exercise the sort.
func window(top, n, spacing int64) []Sample {
	var batch []Sample
	for i := n - 1; i >= 0; i-- {
		batch = append(batch, Sample{
			Height: top - i,
			Time:   1700000000 - i*spacing,
		})
	}
	return batch
}

func TestPrimaryPoll(t *testing.T) {
	h := newHarness(1000)
	h.samples = window(900, 10, 600)

	if err := h.poll(); err != nil {
		t.Fatal(err)
	}
	state := h.c.State()
	if state == nil {
		t.Fatal("no state after successful poll")
	}
	if err := testutil.CheckEqual(state.Height, int64(900)); err != nil {
		t.Error(err)
	}
	if err := testutil.CheckEqual(state.Remaining(), int64(100)); err != nil {
		t.Error(err)
	}
	if err := testutil.CheckEqual(state.Anchor, int64(1700000000)); err != nil {
		t.Error(err)
	}
	if err := testutil.CheckEqual(state.Rate, float64(600)); err != nil {
		t.Error(err)
	}
	if err := testutil.CheckEqual(state.ETA, int64(1700000000+100*600)); err != nil {
		t.Error(err)
	}
	if err := testutil.CheckEqual(state.Reached(), false); err != nil {
		t.Error(err)
	}
	if h.c.LastErr() != nil {
		t.Error("unexpected feed error:", h.c.LastErr())
	}
}

// An unchanged height with a new rate batch moves the projected instant but
// not the height-derived fields.
func TestRateChangeOnly(t *testing.T) {
	h := newHarness(1000)
	h.samples = window(900, 10, 600)
	if err := h.poll(); err != nil {
		t.Fatal(err)
	}
	first := h.c.State()

	// Same top block, deeper samples now 300s apart.
	h.samples = window(900, 10, 600)
	for i := range h.samples {
		s := &h.samples[i]
		s.Time = 1700000000 - (900-s.Height)*300
	}
	if err := h.poll(); err != nil {
		t.Fatal(err)
	}
	second := h.c.State()

	if err := testutil.CheckEqual(second.Height, first.Height); err != nil {
		t.Error(err)
	}
	if err := testutil.CheckEqual(second.Anchor, first.Anchor); err != nil {
		t.Error(err)
	}
	if err := testutil.CheckEqual(second.Rate, float64(300)); err != nil {
		t.Error(err)
	}
	if err := testutil.CheckEqual(second.ETA, int64(1700000000+100*300)); err != nil {
		t.Error(err)
	}
	if second.ETA == first.ETA {
		t.Error("projection did not move with the rate")
	}
}

// A poll that changes nothing material must not shift the projected date.
func TestNoJitterOnUnchangedPoll(t *testing.T) {
	h := newHarness(1000)
	h.samples = window(900, 10, 600)
	if err := h.poll(); err != nil {
		t.Fatal(err)
	}
	first := h.c.State()

	h.now += 30
	if err := h.poll(); err != nil {
		t.Fatal(err)
	}
	second := h.c.State()

	if err := testutil.CheckEqual(second.ETA, first.ETA); err != nil {
		t.Error(err)
	}
	if err := testutil.CheckEqual(second.Anchor, first.Anchor); err != nil {
		t.Error(err)
	}
	// Last-poll time still advances.
	if err := testutil.CheckEqual(second.Time, first.Time+30); err != nil {
		t.Error(err)
	}
}

// Primary fails, fallback has a new height: the anchor becomes the
// wall-clock now and the previously active rate is retained.
func TestFallbackPoll(t *testing.T) {
	h := newHarness(1000)
	h.samples = window(900, 10, 540)
	if err := h.poll(); err != nil {
		t.Fatal(err)
	}

	h.primErr = errors.New("connection refused")
	h.height = 901
	h.now += 120
	if err := h.poll(); err != nil {
		t.Fatal(err)
	}
	state := h.c.State()

	if err := testutil.CheckEqual(state.Height, int64(901)); err != nil {
		t.Error(err)
	}
	if err := testutil.CheckEqual(state.Anchor, h.now); err != nil {
		t.Error(err)
	}
	if err := testutil.CheckEqual(state.Rate, float64(540)); err != nil {
		t.Error(err)
	}
	if err := testutil.CheckEqual(state.ETA, h.now+99*540); err != nil {
		t.Error(err)
	}
	if h.c.LastErr() != nil {
		t.Error("fallback success must clear the feed error")
	}
}

// Fallback with an unchanged height keeps the existing anchor and
// projection.
func TestFallbackUnchangedHeight(t *testing.T) {
	h := newHarness(1000)
	h.samples = window(900, 10, 600)
	if err := h.poll(); err != nil {
		t.Fatal(err)
	}
	first := h.c.State()

	h.primErr = errors.New("HTTP 502")
	h.height = 900
	h.now += 60
	if err := h.poll(); err != nil {
		t.Fatal(err)
	}
	second := h.c.State()

	if err := testutil.CheckEqual(second.Anchor, first.Anchor); err != nil {
		t.Error(err)
	}
	if err := testutil.CheckEqual(second.ETA, first.ETA); err != nil {
		t.Error(err)
	}
	if err := testutil.CheckEqual(second.Time, h.now); err != nil {
		t.Error(err)
	}
}

// Both feeds fail: the error is surfaced and the stale state is left
// untouched, never cleared.
func TestTotalFeedFailure(t *testing.T) {
	h := newHarness(1000)
	h.samples = window(900, 10, 600)
	if err := h.poll(); err != nil {
		t.Fatal(err)
	}
	first := h.c.State()

	h.primErr = errors.New("timeout")
	h.fallErr = errors.New("down")
	h.now += 60
	if err := h.poll(); err == nil {
		t.Fatal("expected a poll error")
	}
	if h.c.LastErr() == nil {
		t.Error("feed error not surfaced")
	}
	if err := testutil.CheckEqual(h.c.State(), first); err != nil {
		t.Error("state changed on total failure:", err)
	}

	// Recovery clears the error condition.
	h.primErr, h.fallErr = nil, nil
	if err := h.poll(); err != nil {
		t.Fatal(err)
	}
	if h.c.LastErr() != nil {
		t.Error("feed error not cleared on recovery")
	}
}

// An unusable sample window (all-equal timestamps) retains the previously
// active rate; on the first poll that is the nominal rate.
func TestUnusableWindowKeepsRate(t *testing.T) {
	h := newHarness(1000)
	h.samples = window(900, 5, 0)
	if err := h.poll(); err != nil {
		t.Fatal(err)
	}
	if err := testutil.CheckEqual(h.c.State().Rate, float64(600)); err != nil {
		t.Error(err)
	}

	// A good window establishes an empirical rate...
	h.samples = window(901, 5, 450)
	if err := h.poll(); err != nil {
		t.Fatal(err)
	}
	if err := testutil.CheckEqual(h.c.State().Rate, float64(450)); err != nil {
		t.Error(err)
	}

	// ...which survives a later unusable window.
	h.samples = window(902, 5, 0)
	if err := h.poll(); err != nil {
		t.Fatal(err)
	}
	if err := testutil.CheckEqual(h.c.State().Rate, float64(450)); err != nil {
		t.Error(err)
	}
}

// Switching modes reprojects immediately from the existing anchor.
func TestSetMode(t *testing.T) {
	h := newHarness(1000)
	h.samples = window(900, 10, 450)
	if err := h.poll(); err != nil {
		t.Fatal(err)
	}
	anchor := h.c.State().Anchor

	if err := h.c.SetMode(estimate.Nominal); err != nil {
		t.Fatal(err)
	}
	state := h.c.State()
	if err := testutil.CheckEqual(state.Mode, estimate.Nominal); err != nil {
		t.Error(err)
	}
	if err := testutil.CheckEqual(state.Rate, float64(600)); err != nil {
		t.Error(err)
	}
	if err := testutil.CheckEqual(state.Anchor, anchor); err != nil {
		t.Error(err)
	}
	if err := testutil.CheckEqual(state.ETA, anchor+100*600); err != nil {
		t.Error(err)
	}

	if err := h.c.SetMode(estimate.Empirical); err != nil {
		t.Fatal(err)
	}
	if err := testutil.CheckEqual(h.c.State().Rate, float64(450)); err != nil {
		t.Error(err)
	}

	if err := h.c.SetMode(estimate.Mode("bogus")); err == nil {
		t.Error("invalid mode accepted")
	}
}

// A slow poll that completes after a newer one is discarded.
func TestStalePollDiscarded(t *testing.T) {
	h := newHarness(1000)

	h.samples = window(900, 10, 600)
	h.c.seq++
	stale := h.c.poll(h.c.seq)

	h.samples = window(902, 10, 600)
	h.c.seq++
	fresh := h.c.poll(h.c.seq)

	if err := h.c.apply(fresh); err != nil {
		t.Fatal(err)
	}
	if err := h.c.apply(stale); err != nil {
		t.Fatal(err)
	}
	if err := testutil.CheckEqual(h.c.State().Height, int64(902)); err != nil {
		t.Error("stale poll rolled back state:", err)
	}
}

// At or past the target, the projection collapses to the anchor.
func TestTargetReached(t *testing.T) {
	h := newHarness(1000)
	h.samples = window(1000, 10, 600)
	if err := h.poll(); err != nil {
		t.Fatal(err)
	}
	state := h.c.State()
	if err := testutil.CheckEqual(state.Reached(), true); err != nil {
		t.Error(err)
	}
	if err := testutil.CheckEqual(state.Remaining(), int64(0)); err != nil {
		t.Error(err)
	}
	if err := testutil.CheckEqual(state.ETA, state.Anchor); err != nil {
		t.Error(err)
	}
}

func TestEmptyBatchFallsBack(t *testing.T) {
	h := newHarness(1000)
	h.samples = nil // primary "succeeds" with an empty payload
	h.height = 890
	if err := h.poll(); err != nil {
		t.Fatal(err)
	}
	if err := testutil.CheckEqual(h.c.State().Height, int64(890)); err != nil {
		t.Error(err)
	}
	if err := testutil.CheckEqual(h.c.State().Anchor, h.now); err != nil {
		t.Error(err)
	}
}

// Exercise the full Run/Trigger/Stop lifecycle once.
func TestRunStop(t *testing.T) {
	h := newHarness(1000)
	h.samples = window(900, 10, 600)

	if err := h.c.Run(); err != nil {
		t.Fatal(err)
	}
	errc := make(chan error, 16)
	go func() {
		for err := range h.c.E {
			errc <- err
		}
		close(errc)
	}()

	if h.c.State() == nil {
		t.Fatal("no state after Run")
	}
	h.c.Trigger()
	h.c.Stop()
	for err := range errc {
		t.Error("unexpected collector error:", err)
	}
}

func TestRunBothFeedsDown(t *testing.T) {
	h := newHarness(1000)
	h.primErr = fmt.Errorf("unreachable")
	h.fallErr = fmt.Errorf("unreachable")
	if err := h.c.Run(); err == nil {
		t.Fatal("Run succeeded with both feeds down")
	}
}
