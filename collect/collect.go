/*
Package collect polls the block feeds and maintains the countdown estimate:
the latest chain height, the active block rate, and the projected instant at
which the supply target height is reached.
*/
package collect

import (
	"fmt"
	"log"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/ThalesMMS/BTC-20M-Countdown/estimate"
)

// Sample is a single primary-feed record: a block height and its timestamp
// in Unix seconds.
type Sample struct {
	Height int64 `json:"height"`
	Time   int64 `json:"time"`
}

// SampleBatchGetter returns a batch of recent block samples from the
// primary feed. The batch need not be ordered.
type SampleBatchGetter func() ([]Sample, error)

// HeightGetter returns the current block height from the fallback feed.
type HeightGetter func() (int64, error)

// Unix time in seconds
type UnixNow func() int64

type Config struct {
	PollPeriod       int           `yaml:"pollperiod" json:"pollperiod"`
	Mode             estimate.Mode `yaml:"mode" json:"mode"`
	NominalBlockTime int64         `yaml:"nominalblocktime" json:"nominalblocktime"`

	// Target is the height at which the supply target is reached; resolved
	// from the issuance schedule at startup.
	Target int64 `yaml:"-" json:"target"`

	GetSamples SampleBatchGetter `yaml:"-" json:"-"`
	GetHeight  HeightGetter      `yaml:"-" json:"-"`
	TimeNow    UnixNow           `yaml:"-" json:"-"`
	Logger     *log.Logger       `yaml:"-" json:"-"`
}

// Estimate is the countdown state derived from the most recent successful
// poll. It is an immutable snapshot; the Collector replaces it wholesale on
// success and never edits it in place, so a reader always sees anchor and
// projection from the same poll.
type Estimate struct {
	Height int64         `json:"height"`
	Target int64         `json:"target"`
	Mode   estimate.Mode `json:"mode"`
	Rate   float64       `json:"rate"`   // seconds per block
	Anchor int64         `json:"anchor"` // Unix seconds of the trusted height
	ETA    int64         `json:"eta"`    // projected completion, Unix seconds
	Time   int64         `json:"time"`   // last successful poll, Unix seconds
}

// Remaining returns the number of blocks until the target, clamped at zero.
func (e *Estimate) Remaining() int64 {
	r := e.Target - e.Height
	if r < 0 {
		r = 0
	}
	return r
}

// Reached reports whether the target height has been reached. When true,
// ETA equals Anchor and should be rendered as "reached", not a countdown.
func (e *Estimate) Reached() bool {
	return e.Height >= e.Target
}

// NOTE: The E channel must be serviced.
type Collector struct {
	E <-chan error

	state     *Estimate
	lastErr   error
	mode      estimate.Mode
	empirical float64 // last successfully computed trailing average; 0 if none yet
	seq       uint64  // sequence of the most recently started poll

	// applied is the sequence of the most recently applied poll. It is
	// touched only by apply, which runs on a single goroutine.
	applied uint64

	cfg     Config
	trigger chan struct{}
	done    chan struct{}
	mux     sync.RWMutex
}

func NewCollector(cfg Config) *Collector {
	if cfg.TimeNow == nil {
		cfg.TimeNow = func() int64 { return time.Now().Unix() }
	}
	if cfg.Logger == nil {
		cfg.Logger = log.New(os.Stderr, "", log.LstdFlags)
	}
	c := &Collector{
		cfg:     cfg,
		mode:    cfg.Mode,
		trigger: make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
	return c
}

// State returns the latest estimate snapshot. It is nil until the first
// successful poll, and stays at its last value across feed failures.
func (c *Collector) State() *Estimate {
	c.mux.RLock()
	defer c.mux.RUnlock()
	return c.state
}

// LastErr returns the feed-error condition from the most recent poll, or
// nil if it succeeded.
func (c *Collector) LastErr() error {
	c.mux.RLock()
	defer c.mux.RUnlock()
	return c.lastErr
}

// Mode returns the active rate mode.
func (c *Collector) Mode() estimate.Mode {
	c.mux.RLock()
	defer c.mux.RUnlock()
	return c.mode
}

// SetMode switches the active rate mode and immediately reprojects from the
// existing anchor. No feed poll is performed.
func (c *Collector) SetMode(m estimate.Mode) error {
	if !m.Valid() {
		return fmt.Errorf("invalid rate mode %q", m)
	}
	c.mux.Lock()
	defer c.mux.Unlock()
	c.mode = m
	if c.state == nil {
		return nil
	}
	rate := c.rateFor(m)
	next := *c.state
	next.Mode = m
	next.Rate = rate
	next.ETA = estimate.Project(next.Remaining(), next.Anchor, rate)
	c.state = &next
	return nil
}

// Trigger requests an immediate out-of-band poll, coalescing with any
// request already pending.
func (c *Collector) Trigger() {
	select {
	case c.trigger <- struct{}{}:
	default:
	}
}

// Run performs the initial poll synchronously, so that startup fails fast
// when both feeds are down, then starts the poll loop.
func (c *Collector) Run() error {
	c.seq++
	res := c.poll(c.seq)
	if res.err != nil {
		return res.err
	}
	if err := c.apply(res); err != nil {
		return err
	}

	ec := make(chan error)
	c.E = ec
	go c.run(ec)
	return nil
}

func (c *Collector) Stop() {
	if err := c.closeDone(); err != nil {
		return
	}
	// Block until the err chan is closed when run terminates.
	for range c.E {
	}
}

// pollResult is the outcome of one poll cycle. samples is nil on the
// fallback path; err is set only when both feeds failed.
type pollResult struct {
	seq     uint64
	samples []Sample
	height  int64
	now     int64
	err     error
}

func (c *Collector) run(ec chan<- error) {
	defer close(ec)

	ticker := time.NewTicker(time.Duration(c.cfg.PollPeriod) * time.Second)
	defer ticker.Stop()

	results := make(chan pollResult, 1)
	start := func() {
		c.mux.Lock()
		c.seq++
		seq := c.seq
		c.mux.Unlock()
		go func() {
			res := c.poll(seq)
			select {
			case results <- res:
			case <-c.done:
			}
		}()
	}

	for {
		select {
		case <-ticker.C:
			start()
		case <-c.trigger:
			start()
		case res := <-results:
			if err := c.apply(res); err != nil {
				select {
				case ec <- err:
				case <-c.done:
					return
				}
			}
		case <-c.done:
			return
		}
	}
}

// poll runs a single cycle: primary feed first, fallback on any primary
// failure. No retries; the next scheduled poll is the retry mechanism.
func (c *Collector) poll(seq uint64) pollResult {
	res := pollResult{seq: seq}

	samples, err := c.cfg.GetSamples()
	if err == nil && len(samples) == 0 {
		err = fmt.Errorf("empty sample batch")
	}
	if err == nil {
		sort.Slice(samples, func(i, j int) bool {
			return samples[i].Height > samples[j].Height
		})
		res.samples = samples
		res.height = samples[0].Height
		res.now = c.cfg.TimeNow()
		return res
	}
	c.cfg.Logger.Printf("[DEBUG] Primary feed: %v; trying fallback.", err)

	height, ferr := c.cfg.GetHeight()
	if ferr != nil {
		res.err = fmt.Errorf("primary feed: %v; fallback feed: %v", err, ferr)
		return res
	}
	res.height = height
	res.now = c.cfg.TimeNow()
	return res
}

// apply folds a poll result into the estimate state. Results from a poll
// that was superseded by a newer one are discarded, so a slow response can
// never roll the state back.
func (c *Collector) apply(res pollResult) error {
	if res.seq <= c.applied {
		c.cfg.Logger.Printf("[DEBUG] Poll %d superseded by %d; discarding.", res.seq, c.applied)
		return nil
	}
	c.applied = res.seq

	if res.err != nil {
		c.setErr(res.err)
		return res.err
	}
	if res.samples != nil {
		c.applyPrimary(res)
	} else {
		c.applyFallback(res)
	}
	return nil
}

func (c *Collector) applyPrimary(res pollResult) {
	times := make([]int64, len(res.samples))
	for i, s := range res.samples {
		times[i] = s.Time
	}
	if avg, err := estimate.AvgInterval(times); err == nil {
		c.setEmpirical(avg)
	} else {
		// Keep the previously active rate.
		c.cfg.Logger.Printf("[DEBUG] Rate estimator: %v", err)
	}
	c.refresh(res.height, res.samples[0].Time, res.now)
}

// applyFallback has no sample batch: rate estimation is skipped, the
// active rate stays, and the anchor is the wall-clock time of the response.
func (c *Collector) applyFallback(res pollResult) {
	c.mux.Lock()
	defer c.mux.Unlock()
	if c.state != nil && c.state.Height == res.height {
		c.touch(res.now)
		return
	}
	c.replace(res.height, res.now, res.now)
}

// refresh replaces the snapshot, recomputing the projection only when the
// height, anchor, rate or mode changed; otherwise the projected date is
// carried over so it does not jitter on every poll.
func (c *Collector) refresh(height, anchor, now int64) {
	c.mux.Lock()
	defer c.mux.Unlock()
	rate := c.rateFor(c.mode)
	prev := c.state
	if prev != nil && prev.Height == height && prev.Anchor == anchor &&
		prev.Mode == c.mode && prev.Rate == rate {
		c.touch(now)
		return
	}
	c.replace(height, anchor, now)
}

// replace installs a freshly projected snapshot. Callers hold mux.
func (c *Collector) replace(height, anchor, now int64) {
	e := &Estimate{
		Height: height,
		Target: c.cfg.Target,
		Mode:   c.mode,
		Rate:   c.rateFor(c.mode),
		Anchor: anchor,
		Time:   now,
	}
	e.ETA = estimate.Project(e.Remaining(), anchor, e.Rate)
	c.state = e
	c.lastErr = nil
}

// touch records a successful poll that changed nothing material. Callers
// hold mux.
func (c *Collector) touch(now int64) {
	next := *c.state
	next.Time = now
	c.state = &next
	c.lastErr = nil
}

// rateFor resolves a mode to seconds per block. Empirical mode falls back
// to the nominal block time until a trailing average has been computed.
// Callers hold mux.
func (c *Collector) rateFor(m estimate.Mode) float64 {
	if m == estimate.Empirical && c.empirical > 0 {
		return c.empirical
	}
	return float64(c.cfg.NominalBlockTime)
}

func (c *Collector) setEmpirical(avg float64) {
	c.mux.Lock()
	defer c.mux.Unlock()
	c.empirical = avg
}

func (c *Collector) setErr(err error) {
	c.mux.Lock()
	defer c.mux.Unlock()
	c.lastErr = err
}

// closeDone closes c.done in a concurrent-safe way.
func (c *Collector) closeDone() error {
	c.mux.Lock()
	defer c.mux.Unlock()
	select {
	case <-c.done: // Already closed
		return fmt.Errorf("Collector.done already closed")
	default:
		close(c.done)
		return nil
	}
}
