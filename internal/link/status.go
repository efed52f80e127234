// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package link

import (
	"context"
	"log/slog"
	"net"
	"sync/atomic"
	"time"

	"github.com/Thermoquad/canopy/internal/bridge"
	"github.com/Thermoquad/canopy/pkg/ndjson"
)

// Runner executes fn on the goroutine that owns the bridge state
type Runner interface {
	Do(ctx context.Context, fn func(*bridge.State)) error
}

// Network tracks whether the HTTP side is reachable
type Network struct {
	listening atomic.Bool
	lookup    func() string
}

// NewNetwork returns a Network that resolves its address with LocalIPv4
func NewNetwork() *Network {
	return &Network{lookup: LocalIPv4}
}

// SetListening records whether the HTTP listener is up
func (n *Network) SetListening(up bool) {
	n.listening.Store(up)
}

// Status returns the connectivity flag and the address clients should use.
// The address is 0.0.0.0 while not listening.
func (n *Network) Status() (bool, string) {
	if !n.listening.Load() {
		return false, bridge.DefaultPeerIP
	}
	return true, n.lookup()
}

// LocalIPv4 returns the first non-loopback IPv4 address of the host, or 0.0.0.0
func LocalIPv4() string {
	ifaces, err := net.Interfaces()
	if err != nil {
		return bridge.DefaultPeerIP
	}
	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, addr := range addrs {
			ipnet, ok := addr.(*net.IPNet)
			if !ok {
				continue
			}
			if ip4 := ipnet.IP.To4(); ip4 != nil && !ip4.IsLoopback() {
				return ip4.String()
			}
		}
	}
	return bridge.DefaultPeerIP
}

// StatusReporter writes {"type":"status","ip":...} to the peer whenever the
// network state or address changes, and again after every reconnect.
type StatusReporter struct {
	runner   Runner
	network  func() (bool, string)
	interval time.Duration
	logger   *slog.Logger

	// only touched inside runner.Do
	reported  bool
	peerUp    bool
	connected bool
	ip        string
}

// NewStatusReporter creates a reporter that polls network every interval
func NewStatusReporter(runner Runner, network func() (bool, string), interval time.Duration, logger *slog.Logger) *StatusReporter {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &StatusReporter{
		runner:   runner,
		network:  network,
		interval: interval,
		logger:   logger,
	}
}

// Run checks immediately and then on every tick until ctx is cancelled
func (r *StatusReporter) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		if err := r.Check(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// Check sends a status line if anything changed since the last one
func (r *StatusReporter) Check(ctx context.Context) error {
	connected, ip := r.network()
	if !connected {
		ip = bridge.DefaultPeerIP
	}

	return r.runner.Do(ctx, func(st *bridge.State) {
		if !st.Connected() {
			r.peerUp = false
			return
		}
		if r.reported && r.peerUp && r.connected == connected && r.ip == ip {
			return
		}

		if err := st.SendRawLine(string(ndjson.NewStatusLine(ip))); err != nil {
			r.logger.Warn("failed to send status", "ip", ip, "error", err)
			r.reported = false
			return
		}
		r.logger.Info("status sent", "connected", connected, "ip", ip)
		r.reported = true
		r.peerUp = true
		r.connected = connected
		r.ip = ip
	})
}
