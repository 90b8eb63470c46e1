// Command gblurd queues blur jobs on Redis streams and runs workers that
// process them.
//
// Usage:
//
//	gblurd -mode submit -in a.tga -out b.png -sigma 3
//	gblurd -mode worker -device gpu -consumer node-1
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gogpu/blur"
	"github.com/gogpu/blur/internal/cli"
	"github.com/gogpu/blur/internal/queue"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		if !errors.Is(err, flag.ErrHelp) {
			fmt.Fprintf(os.Stdout, "gblurd: %v\n", err)
		}
		os.Exit(1)
	}
}

type config struct {
	mode      string
	addr      string
	in, out   string
	sigma     float64
	consumer  string
	device    string
	workers   int
	claimIdle time.Duration
	maxTries  int
	block     time.Duration
	verbose   bool
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	host, _ := os.Hostname()

	var cfg config
	fs := flag.NewFlagSet("gblurd", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&cfg.mode, "mode", "worker", "submit or worker")
	fs.StringVar(&cfg.addr, "redis", "localhost:6379", "Redis address")
	fs.StringVar(&cfg.in, "in", "", "input image path (submit)")
	fs.StringVar(&cfg.out, "out", "", "output image path (submit)")
	fs.Float64Var(&cfg.sigma, "sigma", 0, "Gaussian standard deviation (submit)")
	fs.StringVar(&cfg.consumer, "consumer", fmt.Sprintf("%s-%d", host, os.Getpid()), "consumer name (worker)")
	fs.StringVar(&cfg.device, "device", cli.DeviceAuto, "compute device: "+strings.Join(cli.DeviceKinds, ", "))
	fs.IntVar(&cfg.workers, "workers", 0, "cpu device worker count (0 = GOMAXPROCS)")
	fs.DurationVar(&cfg.claimIdle, "claim-idle", time.Minute, "claim jobs pending longer than this (0 disables)")
	fs.IntVar(&cfg.maxTries, "max-deliveries", 5, "acknowledge a job failing on the device after this many deliveries (0 = never)")
	fs.DurationVar(&cfg.block, "block", 5*time.Second, "how long one stream read blocks")
	fs.BoolVar(&cfg.verbose, "v", false, "verbose logging on stderr")
	if err := fs.Parse(args); err != nil {
		return err
	}

	log := cli.NewLogger(stderr, cfg.verbose)
	blur.SetLogger(log)

	switch cfg.mode {
	case "submit", "worker":
	default:
		return fmt.Errorf("unknown mode %q (want submit or worker)", cfg.mode)
	}

	client, err := queue.NewClient(ctx, cfg.addr)
	if err != nil {
		return fmt.Errorf("connect to redis: %w", err)
	}
	defer client.Close()

	if err := client.EnsureGroups(ctx); err != nil {
		return err
	}

	if cfg.mode == "submit" {
		job := &queue.Job{
			ID:     fmt.Sprintf("%s-%d", host, time.Now().UnixNano()),
			Input:  cfg.in,
			Output: cfg.out,
			Sigma:  cfg.sigma,
		}
		id, err := client.Submit(ctx, job)
		if err != nil {
			return fmt.Errorf("submit job: %w", err)
		}
		fmt.Fprintf(stdout, "Submitted job %s as %s\n", job.ID, id)
		return nil
	}

	dev, err := cli.OpenDevice(cfg.device, cfg.workers, log)
	if err != nil {
		return fmt.Errorf("open device: %w", err)
	}
	defer dev.Close()

	w := &worker{
		queue:     client,
		pipeline:  blur.New(dev),
		consumer:  cfg.consumer,
		block:     cfg.block,
		claimIdle: cfg.claimIdle,
		maxTries:  cfg.maxTries,
		log:       log,
	}
	log.Info("gblurd: worker started", "consumer", cfg.consumer, "device", dev.Name())
	return w.loop(ctx)
}
