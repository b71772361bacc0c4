package main

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"sync/atomic"
	"time"

	"github.com/danmuck/ingressd/internal/config"
	"github.com/danmuck/ingressd/internal/protocol/frame"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

type swarmOptions struct {
	Target      string
	Count       int
	Interval    time.Duration
	Hold        time.Duration
	DialTimeout time.Duration
	Send        bool
	Header      uint8
	PayloadSize int
}

type swarmResult struct {
	Connected int64
	Rejected  int64
}

func defaultSwarmOptions() swarmOptions {
	return swarmOptions{
		Target:      "127.0.0.1:1883",
		Count:       config.DefaultSettings().MaxConnections,
		Interval:    50 * time.Millisecond,
		Hold:        time.Hour,
		DialTimeout: 5 * time.Second,
		Header:      0x30,
		PayloadSize: 16,
	}
}

// runSwarm opens opts.Count connections and returns once every client has
// finished holding or ctx is done. Individual dial failures are counted, not
// returned.
func runSwarm(ctx context.Context, opts swarmOptions) (swarmResult, error) {
	var msg []byte
	if opts.Send {
		var err error
		msg, err = frame.Encode(opts.Header, bytes.Repeat([]byte{'x'}, max(opts.PayloadSize, 0)))
		if err != nil {
			return swarmResult{}, fmt.Errorf("swarm: build frame: %w", err)
		}
	}

	var connected, rejected atomic.Int64
	dialer := net.Dialer{Timeout: opts.DialTimeout}
	g, gctx := errgroup.WithContext(ctx)

	for i := 1; i <= opts.Count; i++ {
		if i > 1 && opts.Interval > 0 {
			select {
			case <-time.After(opts.Interval):
			case <-ctx.Done():
			}
		}
		if ctx.Err() != nil {
			break
		}

		client := i
		g.Go(func() error {
			conn, err := dialer.DialContext(gctx, "tcp", opts.Target)
			if err != nil {
				rejected.Add(1)
				log.Warn().Int("client", client).Err(err).Msg("rejected")
				return nil
			}
			defer conn.Close()
			connected.Add(1)
			log.Info().Int("client", client).Msg("connected, holding")

			if msg != nil {
				if _, err := conn.Write(msg); err != nil {
					log.Warn().Int("client", client).Err(err).Msg("send failed")
					return nil
				}
			}

			timer := time.NewTimer(opts.Hold)
			defer timer.Stop()
			select {
			case <-timer.C:
			case <-gctx.Done():
			}
			return nil
		})
	}

	err := g.Wait()
	return swarmResult{Connected: connected.Load(), Rejected: rejected.Load()}, err
}
