// Command server runs the reference echo-file server application over
// this transport. Usage: server [-metrics <addr>] [-tos <n>] <port> <folder>;
// flags must come before the positional arguments.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"rudp"
	"rudp/ccb"
	"rudp/demux"
	"rudp/echofile"
	"rudp/metrics"
)

func main() {
	if err := run(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func run() error {
	metricsAddr := flag.String("metrics", "", "address to serve Prometheus /metrics on; disabled if empty")
	tos := flag.Int("tos", 0, "IPv4 type-of-service/DSCP byte to set on the listening socket; 0 disables")
	flag.Parse()
	args := flag.Args()
	if len(args) != 2 {
		flag.Usage()
		return fmt.Errorf("usage: server <port> <folder>")
	}
	port, err := strconv.ParseUint(args[0], 10, 16)
	if err != nil {
		return fmt.Errorf("invalid port %q: %w", args[0], err)
	}
	folder := args[1]
	if info, err := os.Stat(folder); err != nil || !info.IsDir() {
		return fmt.Errorf("folder %q is not a directory", folder)
	}

	log := slog.New(slog.NewTextHandler(os.Stderr, nil))

	var collectors *metrics.Collectors
	if *metricsAddr != "" {
		reg := prometheus.NewRegistry()
		collectors = metrics.New(reg)
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		go func() {
			if err := http.ListenAndServe(*metricsAddr, mux); err != nil {
				log.Error("metrics server stopped", slog.Any("err", err))
			}
		}()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	d := demux.New(demux.Config{
		ListenAddr: fmt.Sprintf("127.0.0.1:%d", port),
		Log:        log,
		Metrics:    collectors,
		TOS:        *tos,
		Accept: func(c *ccb.CCB, tuple rudp.Tuple) {
			echofile.Serve(c, tuple, folder, log)
		},
	})
	if err := d.Bind(ctx); err != nil {
		return fmt.Errorf("bind: %w", err)
	}
	log.Info("listening", slog.String("addr", d.LocalAddr().String()))

	sigCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() { errCh <- d.Serve(sigCtx) }()

	select {
	case <-sigCtx.Done():
		return nil
	case err := <-errCh:
		if sigCtx.Err() != nil {
			return nil
		}
		return err
	}
}
