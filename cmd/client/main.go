// Command client opens a connection to a server on this host and pipes
// stdin to the connection, printing whatever comes back on stdout.
// Usage: client <src_port> <dst_port>.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/netip"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"rudp/appio"
	"rudp/ccb"
	"rudp/demux"
)

func main() {
	if err := run(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func run() error {
	flag.Parse()
	args := flag.Args()
	if len(args) != 2 {
		flag.Usage()
		return fmt.Errorf("usage: client <src_port> <dst_port>")
	}
	srcPort, err := strconv.ParseUint(args[0], 10, 16)
	if err != nil {
		return fmt.Errorf("invalid src_port %q: %w", args[0], err)
	}
	dstPort, err := strconv.ParseUint(args[1], 10, 16)
	if err != nil {
		return fmt.Errorf("invalid dst_port %q: %w", args[1], err)
	}

	log := slog.New(slog.NewTextHandler(os.Stderr, nil))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	d := demux.New(demux.Config{
		ListenAddr: fmt.Sprintf("127.0.0.1:%d", srcPort),
		Log:        log,
	})
	if err := d.Bind(sigCtx); err != nil {
		return fmt.Errorf("bind: %w", err)
	}
	go d.Serve(sigCtx)

	remote := netip.AddrPortFrom(netip.MustParseAddr("127.0.0.1"), uint16(dstPort))
	c := d.Open(remote)
	c.Events() <- ccb.SendSyn()

	conn := appio.New(c)

	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			if err := conn.WriteMessage(scanner.Bytes()); err != nil {
				return
			}
		}
	}()

	for {
		msg, err := conn.ReadMessage()
		if err != nil {
			return nil
		}
		os.Stdout.Write(msg)
		os.Stdout.Write([]byte("\n"))
	}
}
