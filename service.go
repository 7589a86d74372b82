package main

import (
	"net"
	"net/http"

	"github.com/gorilla/rpc"
	jsonrpc "github.com/gorilla/rpc/json"
	"github.com/rcrowley/go-metrics"

	col "github.com/ThalesMMS/BTC-20M-Countdown/collect"
	est "github.com/ThalesMMS/BTC-20M-Countdown/estimate"
)

type Service struct {
	Countdown *Countdown
	DLog      *DebugLog
	Cfg       config
}

func (s *Service) ListenAndServe() error {
	srv := rpc.NewServer()
	srv.RegisterCodec(jsonrpc.NewCodec(), "application/json")
	if err := srv.RegisterService(s, ""); err != nil {
		return err
	}
	http.Handle("/", srv)
	addr := net.JoinHostPort(s.Cfg.AppRPC.Host, s.Cfg.AppRPC.Port)
	s.DLog.Logger.Println("RPC server listening on", addr)
	return http.ListenAndServe(addr, nil)
}

func (s *Service) Stop(r *http.Request, args *struct{}, reply *struct{}) error {
	go s.Countdown.Stop()
	return nil
}

func (s *Service) Status(r *http.Request, args *struct{}, reply *map[string]string) error {
	*reply = s.Countdown.Status()
	return nil
}

func (s *Service) Estimate(r *http.Request, args *struct{}, reply **EstimateResult) error {
	result, err := s.Countdown.Estimate()
	if err != nil {
		return err
	}
	*reply = result
	return nil
}

func (s *Service) Height(r *http.Request, args *struct{}, reply *int64) error {
	state := s.Countdown.State()
	if state == nil {
		return errNoEstimate
	}
	*reply = state.Height
	return nil
}

type TargetReply struct {
	Height int64 `json:"height"`
	Supply int64 `json:"supply"` // satoshis
}

func (s *Service) Target(r *http.Request, args *struct{}, reply *TargetReply) error {
	height, supply := s.Countdown.Target()
	*reply = TargetReply{Height: height, Supply: supply}
	return nil
}

func (s *Service) Mode(r *http.Request, args *struct{}, reply *string) error {
	*reply = string(s.Countdown.Mode())
	return nil
}

func (s *Service) SetMode(r *http.Request, args *string, reply *string) error {
	if err := s.Countdown.SetMode(est.Mode(*args)); err != nil {
		return err
	}
	*reply = *args
	return nil
}

func (s *Service) Poll(r *http.Request, args *struct{}, reply *struct{}) error {
	s.Countdown.Poll()
	return nil
}

func (s *Service) SetDebug(r *http.Request, args *bool, reply *bool) error {
	s.DLog.SetDebug(*args)
	*reply = *args
	return nil
}

func (s *Service) Config(r *http.Request, args *struct{}, reply *interface{}) error {
	*reply = s.Cfg
	return nil
}

func (s *Service) Metrics(r *http.Request, args *struct{}, reply *metrics.Registry) error {
	*reply = metrics.DefaultRegistry
	return nil
}

func (s *Service) State(r *http.Request, args *struct{}, reply **col.Estimate) error {
	state := s.Countdown.State()
	if state == nil {
		return errNoEstimate
	}
	*reply = state
	return nil
}
