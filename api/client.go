// Package api provides a client for accessing the countdown daemon through
// its JSON-RPC API.
package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"time"

	jsonrpc "github.com/gorilla/rpc/json"

	col "github.com/ThalesMMS/BTC-20M-Countdown/collect"
)

type Config struct {
	Host    string
	Port    string
	Timeout int
}

type Client struct {
	httpclient *http.Client
	cfg        Config
}

func NewClient(cfg Config) *Client {
	httpclient := &http.Client{Timeout: time.Duration(cfg.Timeout) * time.Second}
	return &Client{httpclient: httpclient, cfg: cfg}
}

func (c *Client) Stop() error {
	_, err := c.doRPC("Service.Stop", nil)
	return err
}

func (c *Client) Status() (map[string]string, error) {
	r, err := c.doRPC("Service.Status", nil)
	if err != nil {
		return nil, err
	}

	var result map[string]string
	if err := json.Unmarshal(r, &result); err != nil {
		return nil, err
	}
	return result, nil
}

// EstimateResult mirrors the daemon's countdown output surface.
type EstimateResult struct {
	Height          int64   `json:"height"`
	TargetHeight    int64   `json:"targetheight"`
	BlocksRemaining int64   `json:"blocksremaining"`
	Supply          int64   `json:"supply"`
	TargetSupply    int64   `json:"targetsupply"`
	SupplyRemaining int64   `json:"supplyremaining"`
	Progress        float64 `json:"progress"`
	Reached         bool    `json:"reached"`
	ETA             int64   `json:"eta"`
	Mode            string  `json:"mode"`
	Rate            float64 `json:"rate"`
	LastPoll        int64   `json:"lastpoll"`
	FeedError       string  `json:"feederror"`
}

func (c *Client) Estimate() (*EstimateResult, error) {
	r, err := c.doRPC("Service.Estimate", nil)
	if err != nil {
		return nil, err
	}

	result := new(EstimateResult)
	if err := json.Unmarshal(r, result); err != nil {
		return nil, err
	}
	return result, nil
}

func (c *Client) Height() (int64, error) {
	r, err := c.doRPC("Service.Height", nil)
	if err != nil {
		return 0, err
	}

	var height int64
	if err := json.Unmarshal(r, &height); err != nil {
		return 0, err
	}
	return height, nil
}

func (c *Client) Target() (height, supply int64, err error) {
	r, err := c.doRPC("Service.Target", nil)
	if err != nil {
		return 0, 0, err
	}

	var result struct {
		Height int64 `json:"height"`
		Supply int64 `json:"supply"`
	}
	if err := json.Unmarshal(r, &result); err != nil {
		return 0, 0, err
	}
	return result.Height, result.Supply, nil
}

func (c *Client) Mode() (string, error) {
	r, err := c.doRPC("Service.Mode", nil)
	if err != nil {
		return "", err
	}

	var mode string
	if err := json.Unmarshal(r, &mode); err != nil {
		return "", err
	}
	return mode, nil
}

func (c *Client) SetMode(mode string) error {
	_, err := c.doRPC("Service.SetMode", mode)
	return err
}

func (c *Client) Poll() error {
	_, err := c.doRPC("Service.Poll", nil)
	return err
}

func (c *Client) SetDebug(d bool) error {
	_, err := c.doRPC("Service.SetDebug", d)
	return err
}

func (c *Client) Config() (map[string]interface{}, error) {
	r, err := c.doRPC("Service.Config", nil)
	if err != nil {
		return nil, err
	}

	v := make(map[string]interface{})
	if err := json.Unmarshal(r, &v); err != nil {
		return nil, err
	}
	return v, nil
}

func (c *Client) Metrics() (map[string]interface{}, error) {
	r, err := c.doRPC("Service.Metrics", nil)
	if err != nil {
		return nil, err
	}

	v := make(map[string]interface{})
	if err := json.Unmarshal(r, &v); err != nil {
		return nil, err
	}
	return v, nil
}

func (c *Client) State() (*col.Estimate, error) {
	r, err := c.doRPC("Service.State", nil)
	if err != nil {
		return nil, err
	}

	state := new(col.Estimate)
	if err := json.Unmarshal(r, state); err != nil {
		return nil, err
	}
	return state, nil
}

func (c *Client) doRPC(method string, args interface{}) (json.RawMessage, error) {
	b, err := jsonrpc.EncodeClientRequest(method, args)
	if err != nil {
		return nil, fmt.Errorf("jsonrpc.EncodeClientRequest: %v", err)
	}

	url := "http://" + net.JoinHostPort(c.cfg.Host, c.cfg.Port)
	req, err := http.NewRequest("POST", url, bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpclient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var m json.RawMessage
	if err := jsonrpc.DecodeClientResponse(resp.Body, &m); err != nil {
		return nil, fmt.Errorf("jsonrpc.DecodeClientResponse: %v", err)
	}
	return m, nil
}
