package main

import (
	"errors"
	"fmt"
	"log"
	"os"
	"sync"

	col "github.com/ThalesMMS/BTC-20M-Countdown/collect"
	est "github.com/ThalesMMS/BTC-20M-Countdown/estimate"
	"github.com/ThalesMMS/BTC-20M-Countdown/issuance"
)

var errNoEstimate = errors.New("no estimate available yet")

type Countdown struct {
	collector *col.Collector
	target    int64 // target height, resolved once at startup
	cfg       CountdownConfig

	done chan struct{}
	wg   sync.WaitGroup
	mux  sync.Mutex
}

type CountdownConfig struct {
	Collect      col.Config        `yaml:"collect" json:"collect"`
	Schedule     issuance.Schedule `yaml:"schedule" json:"schedule"`
	TargetSupply int64             `yaml:"targetsupply" json:"targetsupply"` // satoshis

	logger *log.Logger `yaml:"-" json:"-"`
}

// NewCountdown resolves the target height from the issuance schedule. An
// unreachable supply target is a configuration error and fails startup.
func NewCountdown(cfg CountdownConfig) (*Countdown, error) {
	if cfg.TargetSupply <= 0 {
		return nil, fmt.Errorf("targetsupply must be positive, got %d", cfg.TargetSupply)
	}
	if cfg.Collect.PollPeriod <= 0 {
		return nil, fmt.Errorf("pollperiod must be positive, got %d", cfg.Collect.PollPeriod)
	}
	if cfg.Collect.NominalBlockTime <= 0 {
		return nil, fmt.Errorf("nominalblocktime must be positive, got %d", cfg.Collect.NominalBlockTime)
	}
	if !cfg.Collect.Mode.Valid() {
		return nil, fmt.Errorf("invalid rate mode %q", cfg.Collect.Mode)
	}
	if cfg.logger == nil {
		cfg.logger = log.New(os.Stderr, "", log.LstdFlags)
	}

	target, err := cfg.Schedule.HeightForSupply(cfg.TargetSupply)
	if err != nil {
		return nil, err
	}

	cfg.Collect.Target = target
	cfg.Collect.Logger = cfg.logger
	c := &Countdown{
		collector: col.NewCollector(cfg.Collect),
		target:    target,
		cfg:       cfg,
		done:      make(chan struct{}),
	}
	return c, nil
}

func (s *Countdown) Run() error {
	logger := s.cfg.logger
	s.wg.Add(1)
	defer logger.Println("Countdown all stopped.")
	defer s.wg.Wait()
	defer s.wg.Done()

	logger.Printf("Countdown v%s starting up..", version)
	logger.Printf("Supply target %s BTC is reached at height %d.",
		fmtBTC(s.cfg.TargetSupply), s.target)

	if err := s.collector.Run(); err != nil {
		return err
	}
	defer s.collector.Stop()
	logger.Println("Countdown startup complete.")

	for {
		select {
		case err := <-s.collector.E:
			logger.Println("[ERROR] Collector:", err)
		case <-s.done:
			return nil
		}
	}
}

func (s *Countdown) Stop() {
	s.closeDone()
	s.wg.Wait()
}

// closeDone closes s.done in a concurrent-safe way.
func (s *Countdown) closeDone() {
	s.mux.Lock()
	defer s.mux.Unlock()
	select {
	case <-s.done: // Already closed
	default:
		close(s.done)
	}
}

// EstimateResult is the countdown output surface: everything the
// presentation layer needs to render the countdown, derived from the
// latest estimate snapshot.
type EstimateResult struct {
	Height          int64    `json:"height"`
	TargetHeight    int64    `json:"targetheight"`
	BlocksRemaining int64    `json:"blocksremaining"`
	Supply          int64    `json:"supply"`          // satoshis issued so far
	TargetSupply    int64    `json:"targetsupply"`    // satoshis
	SupplyRemaining int64    `json:"supplyremaining"` // satoshis
	Progress        float64  `json:"progress"`        // fraction of target issued
	Reached         bool     `json:"reached"`
	ETA             int64    `json:"eta"` // Unix seconds; equals the anchor once reached
	Mode            est.Mode `json:"mode"`
	Rate            float64  `json:"rate"` // seconds per block
	LastPoll        int64    `json:"lastpoll"`
	FeedError       string   `json:"feederror,omitempty"`
}

// Estimate returns the current output surface. It recomputes the derived
// supply fields from the snapshot on every call; the snapshot itself only
// moves when the collector decides a refresh is justified. Returns an
// error only before the first successful poll ever.
func (s *Countdown) Estimate() (*EstimateResult, error) {
	state := s.collector.State()
	if state == nil {
		return nil, errNoEstimate
	}

	supply := s.cfg.Schedule.CumulativeAt(state.Height)
	remaining := s.cfg.TargetSupply - supply
	if remaining < 0 {
		remaining = 0
	}
	progress := float64(supply) / float64(s.cfg.TargetSupply)
	if progress > 1 {
		progress = 1
	}

	r := &EstimateResult{
		Height:          state.Height,
		TargetHeight:    state.Target,
		BlocksRemaining: state.Remaining(),
		Supply:          supply,
		TargetSupply:    s.cfg.TargetSupply,
		SupplyRemaining: remaining,
		Progress:        progress,
		Reached:         state.Reached(),
		ETA:             state.ETA,
		Mode:            state.Mode,
		Rate:            state.Rate,
		LastPoll:        state.Time,
	}
	if err := s.collector.LastErr(); err != nil {
		r.FeedError = err.Error()
	}
	return r, nil
}

func (s *Countdown) Status() map[string]string {
	status := make(map[string]string)

	if err := s.collector.LastErr(); err != nil {
		status["feed"] = err.Error()
	} else {
		status["feed"] = "OK"
	}

	if state := s.collector.State(); state == nil {
		status["estimate"] = "Estimate not available."
	} else {
		status["estimate"] = "OK"
	}

	status["mode"] = string(s.collector.Mode())
	return status
}

func (s *Countdown) State() *col.Estimate {
	return s.collector.State()
}

func (s *Countdown) Target() (height, supply int64) {
	return s.target, s.cfg.TargetSupply
}

func (s *Countdown) Mode() est.Mode {
	return s.collector.Mode()
}

func (s *Countdown) SetMode(m est.Mode) error {
	if err := s.collector.SetMode(m); err != nil {
		return err
	}
	s.cfg.logger.Printf("Rate mode set to %s.", m)
	return nil
}

// Poll forces an immediate out-of-band feed poll, e.g. when a consumer
// becomes visible again.
func (s *Countdown) Poll() {
	s.collector.Trigger()
}

func fmtBTC(satoshis int64) string {
	return fmt.Sprintf("%.8f", float64(satoshis)/float64(issuance.Coin))
}
