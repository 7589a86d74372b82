// Package webapi implements the feed getters in package collect using
// public web REST APIs: a mempool.space-style recent-blocks list as the
// primary feed, and a blockchain.info-style bare block count as the
// fallback.
package webapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"strconv"
	"time"

	col "github.com/ThalesMMS/BTC-20M-Countdown/collect"
)

type Config struct {
	PrimaryURL  string `yaml:"primaryurl" json:"primaryurl"`
	FallbackURL string `yaml:"fallbackurl" json:"fallbackurl"`

	// HTTP timeout in seconds
	Timeout int `yaml:"timeout" json:"timeout"`
}

// Getters returns the primary and fallback feed getters for the collector.
func Getters(cfg Config) (col.SampleBatchGetter, col.HeightGetter) {
	c := newClient(cfg)
	getSamples := func() ([]col.Sample, error) {
		return c.getSamples()
	}
	getHeight := func() (int64, error) {
		return c.getHeight()
	}
	return getSamples, getHeight
}

// blockRecord is one entry of the primary feed's block list.
type blockRecord struct {
	Height    int64 `json:"height"`
	Timestamp int64 `json:"timestamp"`
}

type client struct {
	httpclient *http.Client
	cfg        Config
}

func newClient(cfg Config) *client {
	c := &http.Client{Timeout: time.Duration(cfg.Timeout) * time.Second}
	return &client{cfg: cfg, httpclient: c}
}

// getSamples fetches the recent-blocks list. An empty or malformed payload
// is an error; the caller treats any error as a cue to try the fallback.
func (c *client) getSamples() ([]col.Sample, error) {
	body, err := c.get(c.cfg.PrimaryURL)
	if err != nil {
		return nil, err
	}

	var records []blockRecord
	if err := json.Unmarshal(body, &records); err != nil {
		return nil, fmt.Errorf("malformed block list: %v", err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("empty block list")
	}

	samples := make([]col.Sample, len(records))
	for i, r := range records {
		if r.Height < 0 {
			return nil, fmt.Errorf("negative block height %d", r.Height)
		}
		samples[i] = col.Sample{Height: r.Height, Time: r.Timestamp}
	}
	return samples, nil
}

// getHeight fetches the bare block count.
func (c *client) getHeight() (int64, error) {
	body, err := c.get(c.cfg.FallbackURL)
	if err != nil {
		return 0, err
	}

	v, err := strconv.ParseFloat(string(bytes.TrimSpace(body)), 64)
	if err != nil {
		return 0, fmt.Errorf("malformed block count: %v", err)
	}
	if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return 0, fmt.Errorf("bad block count %v", v)
	}
	return int64(v), nil
}

func (c *client) get(url string) ([]byte, error) {
	resp, err := c.httpclient.Get(url)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP %d from %s", resp.StatusCode, url)
	}
	return body, nil
}
