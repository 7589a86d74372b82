package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/rcrowley/go-metrics"

	"github.com/ThalesMMS/BTC-20M-Countdown/api"
	col "github.com/ThalesMMS/BTC-20M-Countdown/collect"
	"github.com/ThalesMMS/BTC-20M-Countdown/collect/webapi"
)

const usage = `
countdown [-c CONFIGFILE] [-d DATADIR] COMMAND [-h | -help] [args...]

Commands:
	start    (start the countdown daemon)
	stop     (terminate the daemon)
	version  (show app version)
	status   (show application status)
	estimate (show the projected date the supply target is reached)
	height   (show the current block height)
	target   (show the target height and supply)
	mode     (show the active rate mode)
	setmode  (set the rate mode: empirical or nominal)
	poll     (force an immediate feed poll)
	setdebug (turn on/off debug-level logging)
	metrics  (show app metrics)
	config   (show app config settings)

`

const version = "0.1.0"

func main() {
	var (
		configFile, dataDir string
	)
	flag.CommandLine.Usage = func() {
		fmt.Fprintf(os.Stderr, usage)
		flag.CommandLine.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\n")
	}
	flag.StringVar(&configFile, "c", "",
		fmt.Sprintf("Path to config file (alternatively, use %s env var).", configFileEnv))
	flag.StringVar(&dataDir, "d", "",
		fmt.Sprintf("Path to data directory (alternatively, use %s env var).", dataDirEnv))
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		flag.CommandLine.Usage()
		os.Exit(1)
	}

	cfg, err := loadConfig(configFile, dataDir)
	if err != nil {
		log.Fatal(err)
	}

	apiclient := api.NewClient(api.Config{
		Host:    cfg.AppRPC.Host,
		Port:    cfg.AppRPC.Port,
		Timeout: 15,
	})

	switch args[0] {
	case "start":
		runCountdown(args, cfg)
	case "version":
		fmt.Println(version)
	case "stop":
		stop(args, apiclient)
	case "status":
		status(args, apiclient)
	case "estimate":
		showEstimate(args, apiclient)
	case "height":
		showHeight(args, apiclient)
	case "target":
		showTarget(args, apiclient)
	case "mode":
		showMode(args, apiclient)
	case "setmode":
		setMode(args, apiclient)
	case "poll":
		poll(args, apiclient)
	case "setdebug":
		setDebug(args, apiclient)
	case "metrics":
		appMetrics(args, apiclient)
	case "config":
		appConfig(args, apiclient)
	default:
		log.Fatalf("Invalid command '%s'", args[0])
	}
}

func runCountdown(args []string, cfg config) {
	const usage = `
countdown start

Start the daemon. The daemon polls the block feeds and keeps a running
estimate of when the supply target will be reached.

Use countdown estimate to view the projection, and countdown status to check
the feed status.
`
	f := flag.NewFlagSet(args[0], flag.ExitOnError)
	f.Usage = func() {
		fmt.Fprintf(os.Stderr, usage)
		f.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\n")
	}
	if err := f.Parse(args[1:]); err != nil {
		log.Fatal(err)
	}

	collectConfig, err := loadCollectorConfig(cfg)
	if err != nil {
		log.Fatal(fmt.Errorf("loadCollectorConfig: %v", err))
	}

	// Setup the logger
	var dLog *DebugLog
	logFileMode := os.O_WRONLY | os.O_CREATE | os.O_APPEND
	if f, err := os.OpenFile(cfg.LogFile, logFileMode, 0666); err != nil {
		log.Fatal(fmt.Errorf("opening logfile: %v", err))
	} else {
		dLog = NewDebugLog(f, "", log.LstdFlags)
	}

	countdownConfig := CountdownConfig{
		Collect:      collectConfig,
		Schedule:     cfg.Schedule,
		TargetSupply: cfg.TargetSupply,
		logger:       dLog.Logger,
	}
	countdown, err := NewCountdown(countdownConfig)
	if err != nil {
		log.Fatal(fmt.Errorf("NewCountdown: %v", err))
	}
	service := &Service{Countdown: countdown, DLog: dLog, Cfg: cfg}

	os.Stdout.Close()
	os.Stderr.Close()
	os.Stdin.Close()

	errc := make(chan error)
	go func() { errc <- countdown.Run() }()
	go func() { errc <- service.ListenAndServe() }()

	// Signal handling
	sigc := make(chan os.Signal, 3)
	signal.Notify(sigc, os.Interrupt, syscall.SIGTERM, syscall.SIGHUP)
	go func() {
		<-sigc
		countdown.Stop()
	}()

	err = <-errc
	// Blocks until it is safely shutdown. It is idempotent, so no harm if
	// the countdown is already stopped.
	countdown.Stop()
	if err != nil {
		dLog.Logger.Fatal(err)
	}
}

func loadCollectorConfig(cfg config) (col.Config, error) {
	getSamples, getHeight := webapi.Getters(cfg.Feeds)

	// Wrap the primary getter with a timer
	reservoirSize := 60 / cfg.Collect.PollPeriod * 60 * 24 // About one day's worth
	getSamplesTimer := metrics.NewCustomTimer(metrics.NewHistogram(
		metrics.NewExpDecaySample(reservoirSize, 0.015)), metrics.NewMeter())
	timedGetSamples := func() ([]col.Sample, error) {
		start := time.Now()
		defer getSamplesTimer.UpdateSince(start)
		return getSamples()
	}
	name := "getsamples" + strconv.Itoa(reservoirSize)
	metrics.Register(name, getSamplesTimer)

	// Count fallback polls; a growing counter means the primary feed is
	// unhealthy.
	fallbackCounter := metrics.NewCounter()
	metrics.Register("fallbackpolls", fallbackCounter)
	countedGetHeight := func() (int64, error) {
		fallbackCounter.Inc(1)
		return getHeight()
	}

	c := cfg.Collect
	c.GetSamples = timedGetSamples
	c.GetHeight = countedGetHeight
	return c, nil
}
