package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/ThalesMMS/BTC-20M-Countdown/api"
)

func stop(args []string, c *api.Client) {
	const usage = `
countdown stop

Stop the daemon.
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
	if err := c.Stop(); err != nil {
		log.Fatal(err)
	}
}

func status(args []string, c *api.Client) {
	const usage = `
countdown status

Show application status:

	feed    : Whether the last feed poll succeeded, or its error.
	estimate: Whether a countdown estimate is available.
	mode    : The active rate mode.

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

	result, err := c.Status()
	if err != nil {
		log.Fatal(err)
	}

	for _, k := range []string{"feed", "estimate", "mode"} {
		fmt.Printf("%-8s: %s\n", k, result[k])
	}
}

func showEstimate(args []string, c *api.Client) {
	const usage = `
countdown estimate

Show the countdown estimate: current and target height, supply issued and
remaining, progress, the active rate, and the projected date at which the
supply target is reached.

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

	r, err := c.Estimate()
	if err != nil {
		log.Fatal(err)
	}

	if r.FeedError != "" {
		fmt.Printf("%-16s: %s (stale data)\n", "feed error", r.FeedError)
	}
	fmt.Printf("%-16s: %d\n", "height", r.Height)
	fmt.Printf("%-16s: %d\n", "target height", r.TargetHeight)
	fmt.Printf("%-16s: %d\n", "blocks left", r.BlocksRemaining)
	fmt.Printf("%-16s: %s BTC\n", "supply", fmtBTC(r.Supply))
	fmt.Printf("%-16s: %s BTC\n", "target supply", fmtBTC(r.TargetSupply))
	fmt.Printf("%-16s: %s BTC\n", "supply left", fmtBTC(r.SupplyRemaining))
	fmt.Printf("%-16s: %.4f%%\n", "progress", r.Progress*100)
	fmt.Printf("%-16s: %s (%.1f s/block)\n", "rate mode", r.Mode, r.Rate)
	if r.Reached {
		fmt.Printf("%-16s: supply target reached\n", "eta")
	} else {
		fmt.Printf("%-16s: %s\n", "eta", time.Unix(r.ETA, 0).Format(time.RFC1123))
	}
	fmt.Printf("%-16s: %s\n", "last poll", time.Unix(r.LastPoll, 0).Format(time.RFC1123))
}

func showHeight(args []string, c *api.Client) {
	const usage = `
countdown height

Show the current block height.

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

	height, err := c.Height()
	if err != nil {
		log.Fatal(err)
	}
	fmt.Println(height)
}

func showTarget(args []string, c *api.Client) {
	const usage = `
countdown target

Show the target height and the supply target that defines it.

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

	height, supply, err := c.Target()
	if err != nil {
		log.Fatal(err)
	}
	fmt.Printf("%-8s: %d\n", "height", height)
	fmt.Printf("%-8s: %s BTC (%d satoshis)\n", "supply",
		fmtBTC(supply), supply)
}

func showMode(args []string, c *api.Client) {
	const usage = `
countdown mode

Show the active rate mode.

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

	mode, err := c.Mode()
	if err != nil {
		log.Fatal(err)
	}
	fmt.Println(mode)
}

func setMode(args []string, c *api.Client) {
	const usage = `
countdown setmode MODE

Set the rate mode. MODE is either "empirical" (trailing average block time
from the feed) or "nominal" (the schedule's nominal block time). The
projection is recomputed immediately from the existing anchor.

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
	mode := f.Arg(0)
	if mode == "" {
		f.Usage()
		os.Exit(1)
	}
	if err := c.SetMode(mode); err != nil {
		log.Fatal(err)
	}
}

func poll(args []string, c *api.Client) {
	const usage = `
countdown poll

Force an immediate out-of-band feed poll.

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

	if err := c.Poll(); err != nil {
		log.Fatal(err)
	}
}

func setDebug(args []string, c *api.Client) {
	const usage = `
countdown setdebug BOOL

Turn on debug-level logging with "true"; turn off with "false".

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
	on, err := strconv.ParseBool(f.Arg(0))
	if err != nil {
		log.Fatal(err)
	}
	if err := c.SetDebug(on); err != nil {
		log.Fatal(err)
	}
}

func appConfig(args []string, c *api.Client) {
	const usage = `
countdown config

Show app config settings.

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

	result, err := c.Config()
	if err != nil {
		log.Fatal(err)
	}

	b, err := json.MarshalIndent(result, "", "\t")
	if err != nil {
		log.Fatal(err)
	}
	fmt.Println(string(b))
}

func appMetrics(args []string, c *api.Client) {
	const usage = `
countdown metrics

Show app metrics.

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

	result, err := c.Metrics()
	if err != nil {
		log.Fatal(err)
	}

	b, err := json.MarshalIndent(result, "", "\t")
	if err != nil {
		log.Fatal(err)
	}
	fmt.Println(string(b))
}
