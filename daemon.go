// Package audiopolicy wires the audio channel registry, the offload
// coordinators, the child status socket and the status web server into one
// daemon driven by a single coordinating goroutine.
package audiopolicy

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/bmndc/nokia-leo-sub000/internal/audiochannel"
	"github.com/bmndc/nokia-leo-sub000/internal/config"
	"github.com/bmndc/nokia-leo-sub000/internal/dispatch"
	"github.com/bmndc/nokia-leo-sub000/internal/events"
	"github.com/bmndc/nokia-leo-sub000/internal/ipc"
	"github.com/bmndc/nokia-leo-sub000/internal/logging"
	"github.com/bmndc/nokia-leo-sub000/internal/offload"
)

const shutdownTimeout = 5 * time.Second

var ErrDaemonRunning = errors.New("audiopolicy: daemon already running")

// Daemon owns every long-lived component. Registry state is only touched
// from tasks running on the loop.
type Daemon struct {
	cfg      *config.Config
	loop     *dispatch.Loop
	notifier *audiochannel.Notifier
	registry *audiochannel.Registry
	ipc      *ipc.Server
	events   *events.Broadcaster
	factory  offload.BackendFactory
	logger   *zerolog.Logger

	started atomic.Bool
}

// NewDaemon builds a stopped daemon from cfg. factory provides offload
// backends; a nil factory disables offload entirely.
func NewDaemon(cfg *config.Config, factory offload.BackendFactory) (*Daemon, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	defaultKind, err := audiochannel.ParseKind(cfg.DefaultChannel)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", config.DefaultChannel, err)
	}
	grants, err := audiochannel.ParseGrants(cfg.ChannelGrants)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", config.ChannelGrants, err)
	}

	d := &Daemon{
		cfg:      cfg,
		loop:     dispatch.NewLoop("audiopolicy", cfg.LoopQueueSize),
		notifier: audiochannel.NewNotifier(cfg.NotifyQueueSize),
		events:   events.NewBroadcaster(cfg.EventTimeout),
		factory:  factory,
		logger:   logging.GetSubsystemLogger("daemon"),
	}
	d.registry = audiochannel.NewRegistry(audiochannel.Policy{
		DefaultKind: defaultKind,
		Permissions: grants,
	}, d.notifier)
	d.notifier.Subscribe(d.events)
	if cfg.IPCSocketPath != "" {
		d.ipc = ipc.NewServer(cfg.IPCSocketPath, d.registry, d.loop, cfg.IPCWriteTimeout)
		d.notifier.Subscribe(d.ipc)
	}
	return d, nil
}

// Capabilities reports what this daemon can offload.
func (d *Daemon) Capabilities() offload.Capabilities {
	if d.factory == nil {
		return offload.Capabilities{}
	}
	return offload.Capabilities{Audio: d.cfg.OffloadAudio, Video: d.cfg.OffloadVideo}
}

// Events returns the websocket status broadcaster.
func (d *Daemon) Events() *events.Broadcaster { return d.events }

// Do runs fn against the registry on the coordinating goroutine and waits
// for it.
func (d *Daemon) Do(ctx context.Context, fn func(r *audiochannel.Registry) error) error {
	return d.loop.Call(ctx, func() error {
		return fn(d.registry)
	})
}

// ControlRPC runs a control method on the coordinating goroutine.
func (d *Daemon) ControlRPC(ctx context.Context, method string, params map[string]interface{}) (interface{}, error) {
	var result interface{}
	err := d.Do(ctx, func(r *audiochannel.Registry) error {
		var err error
		result, err = handleControlRPC(r, method, params)
		return err
	})
	return result, err
}

// Snapshot returns a consistent view of the registry.
func (d *Daemon) Snapshot(ctx context.Context) (audiochannel.Snapshot, error) {
	var snapshot audiochannel.Snapshot
	err := d.Do(ctx, func(r *audiochannel.Registry) error {
		snapshot = r.Snapshot()
		return nil
	})
	return snapshot, err
}

// Run starts every component and blocks until ctx is cancelled or a
// component fails. Components are stopped before Run returns.
func (d *Daemon) Run(ctx context.Context) error {
	if !d.started.CompareAndSwap(false, true) {
		return ErrDaemonRunning
	}

	if err := d.loop.Start(); err != nil {
		return fmt.Errorf("start loop: %w", err)
	}
	defer d.loop.Stop()

	if err := d.notifier.Start(); err != nil {
		return fmt.Errorf("start notifier: %w", err)
	}
	defer d.notifier.Stop()

	if d.ipc != nil {
		if err := d.ipc.Start(); err != nil {
			return fmt.Errorf("start ipc server: %w", err)
		}
		defer d.ipc.Stop()
	}

	d.logger.Info().
		Str("default_channel", d.cfg.DefaultChannel).
		Str("ipc_socket", d.cfg.IPCSocketPath).
		Str("http_address", d.cfg.HTTPAddress).
		Interface("offload", d.Capabilities()).
		Msg("audio policy daemon started")

	g, gctx := errgroup.WithContext(ctx)

	if d.cfg.HTTPAddress != "" {
		srv := &http.Server{
			Addr:              d.cfg.HTTPAddress,
			Handler:           d.Router(),
			ReadHeaderTimeout: 10 * time.Second,
		}
		g.Go(func() error {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("http server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	if d.cfg.SweepInterval > 0 {
		g.Go(func() error {
			d.sweepWindows(gctx)
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		d.logger.Info().Msg("audio policy daemon shutting down")
		return nil
	})

	return g.Wait()
}

func (d *Daemon) sweepWindows(ctx context.Context) {
	ticker := time.NewTicker(d.cfg.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			var snapshot audiochannel.Snapshot
			err := d.Do(ctx, func(r *audiochannel.Registry) error {
				r.Sweep()
				snapshot = r.Snapshot()
				return nil
			})
			if err != nil {
				d.logger.Warn().Err(err).Msg("window sweep failed")
				continue
			}
			// websocket writes stay off the coordinating goroutine
			if d.events.Subscribers() > 0 {
				d.events.BroadcastSnapshot(snapshot)
			}
		}
	}
}
