// SPDX-License-Identifier: Apache-2.0

// Package daemon drives the update cycle on a cadence, reacting to
// shutdown and reload signals and persisting outcomes to history.
package daemon

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/charmbracelet/log"

	"github.com/arbor-embedded/otad/pkg/config"
	"github.com/arbor-embedded/otad/pkg/history"
	"github.com/arbor-embedded/otad/pkg/installer"
	"github.com/arbor-embedded/otad/pkg/lock"
)

// Daemon is the long-lived process driving periodic update cycles.
// It uniquely owns the mutable history in memory.
type Daemon struct {
	mu  sync.Mutex
	cfg *config.Config

	configPath string
	hist       *history.History

	shutdown chan struct{}
	reload   chan struct{}
	done     chan struct{}
}

// New builds a Daemon bound to the config file at configPath. cfg is the
// already-loaded initial snapshot.
func New(configPath string, cfg *config.Config) *Daemon {
	return &Daemon{
		cfg:        cfg,
		configPath: configPath,
		hist:       history.Load(cfg.HistoryPath()),
		shutdown:   make(chan struct{}),
		reload:     make(chan struct{}, 1),
		done:       make(chan struct{}),
	}
}

// Run drives the main loop until Shutdown is called or a termination
// signal arrives. Each tick executes one update cycle, then sleeps for
// check_interval, interruptibly.
func (d *Daemon) Run(ctx context.Context) error {
	defer close(d.done)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT, syscall.SIGHUP)
	defer signal.Stop(sigCh)

	l, err := lock.Acquire(d.snapshot().LockFile)
	if err != nil {
		log.Warnf("daemon: could not acquire lock file, continuing without it: %v", err)
	} else {
		defer l.Release()
	}

	go d.watchSignals(sigCh)

	for {
		cycleCtx, cancel := context.WithCancel(ctx)
		go func() {
			select {
			case <-d.shutdown:
				cancel()
			case <-cycleCtx.Done():
			}
		}()

		cfg := d.snapshot()
		log.Infof("daemon: starting update cycle")
		start := time.Now()
		rec, ok := RunCycle(cycleCtx, cfg, d.hist)
		cancel()

		if !ok {
			log.Infof("daemon: cycle cancelled after %s, nothing recorded", time.Since(start))
		} else {
			log.Infof("daemon: cycle finished in %s, outcome=%s", time.Since(start), rec.Outcome)
			if err := d.hist.Append(rec); err != nil {
				log.Errorf("daemon: failed to persist history: %v", err)
			}
		}

		if d.isShuttingDown() {
			log.Infof("daemon: shutdown requested, exiting loop")
			return nil
		}

		if !d.interruptibleSleep(cfg.CheckInterval) {
			log.Infof("daemon: shutdown requested during sleep, exiting loop")
			return nil
		}
	}
}

func (d *Daemon) watchSignals(sigCh <-chan os.Signal) {
	for {
		select {
		case sig, ok := <-sigCh:
			if !ok {
				return
			}
			switch sig {
			case syscall.SIGTERM, syscall.SIGINT:
				log.Infof("daemon: received %s, shutting down", sig)
				d.Shutdown()
				return
			case syscall.SIGHUP:
				log.Infof("daemon: received SIGHUP, reloading config")
				d.Reload()
			}
		case <-d.done:
			return
		}
	}
}

// Shutdown requests the loop exit at its next safe point. Idempotent.
func (d *Daemon) Shutdown() {
	d.mu.Lock()
	defer d.mu.Unlock()
	select {
	case <-d.shutdown:
	default:
		close(d.shutdown)
	}
}

func (d *Daemon) isShuttingDown() bool {
	select {
	case <-d.shutdown:
		return true
	default:
		return false
	}
}

// Reload re-reads the config file. On success the live snapshot is
// replaced, taking effect at the next tick; on failure the prior
// snapshot is kept and the error is logged, never fatal. Shutdown
// dominates a concurrent reload.
func (d *Daemon) Reload() {
	if d.isShuttingDown() {
		return
	}
	cfg, err := config.Load(d.configPath)
	if err != nil {
		log.Errorf("daemon: reload failed, keeping previous config: %v", err)
		return
	}
	d.mu.Lock()
	d.cfg = cfg
	d.mu.Unlock()
	select {
	case d.reload <- struct{}{}:
	default:
	}
	log.Infof("daemon: config reloaded")
}

func (d *Daemon) snapshot() *config.Config {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.cfg
}

// interruptibleSleep sleeps for d, waking early on shutdown or after a
// successful reload. Returns false if the sleep was interrupted by
// shutdown.
func (d *Daemon) interruptibleSleep(dur time.Duration) bool {
	timer := time.NewTimer(dur)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-d.reload:
		return true
	case <-d.shutdown:
		return false
	}
}

// CurrentVersion reports the version the daemon currently considers
// installed, per the in-memory history.
func (d *Daemon) CurrentVersion() string {
	return installer.CurrentVersion(d.hist)
}
