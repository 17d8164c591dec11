package service

import (
	"context"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/CatastropheArena/Catastrophe-Genesis/core"
	"github.com/CatastropheArena/Catastrophe-Genesis/metrics"
	"github.com/CatastropheArena/Catastrophe-Genesis/ports"
)

// Refresh cadences and the staleness bound the guard enforces.
const (
	CheckpointInterval = 10 * time.Second
	GasPriceInterval   = 60 * time.Second
	LineageInterval    = 30 * time.Minute

	// AllowedStaleness is how old the chain view may be before requests
	// are refused.
	AllowedStaleness = 2 * time.Minute
)

// Freshness is the process-wide chain snapshot: single writer per value,
// lock-free readers. Values are initialized before the server accepts
// traffic and refreshed forever after.
type Freshness struct {
	chain      ports.ChainReader
	servicePkg core.Address

	checkpointMs atomic.Uint64
	gasPrice     atomic.Uint64
	lineage      atomic.Pointer[ports.PackageLineage]

	now func() time.Time
}

// NewFreshness builds an unstarted snapshot holder. servicePkg is this
// server's own registered package, whose lineage is tracked on the slow
// cadence.
func NewFreshness(chain ports.ChainReader, servicePkg core.Address) *Freshness {
	return &Freshness{
		chain:      chain,
		servicePkg: servicePkg,
		now:        time.Now,
	}
}

// Start performs the initial fetch of every value and then spawns one
// updater goroutine per value. A failed initial fetch aborts startup; the
// server must never come up with an empty chain view.
func (f *Freshness) Start(ctx context.Context) error {
	if err := f.refreshCheckpoint(ctx); err != nil {
		return err
	}
	if err := f.refreshGasPrice(ctx); err != nil {
		return err
	}
	if err := f.refreshLineage(ctx); err != nil {
		return err
	}

	go f.run(ctx, "checkpoint_timestamp", CheckpointInterval, f.refreshCheckpoint)
	go f.run(ctx, "reference_gas_price", GasPriceInterval, f.refreshGasPrice)
	go f.run(ctx, "package_lineage", LineageInterval, f.refreshLineage)
	return nil
}

// run refreshes one value forever. Sleeping after each attempt (instead of
// a fixed ticker) means a slow upstream call delays the next tick rather
// than piling up catch-up calls. Failures keep the previous snapshot and
// retry on the next tick.
func (f *Freshness) run(ctx context.Context, name string, interval time.Duration, refresh func(context.Context) error) {
	timer := time.NewTimer(interval)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		started := f.now()
		err := refresh(ctx)
		metrics.ObserveRefresh(name, started, err)
		if err != nil {
			log.WithError(err).WithField("value", name).Warn("snapshot refresh failed")
		}
		timer.Reset(interval)
	}
}

func (f *Freshness) refreshCheckpoint(ctx context.Context) error {
	ts, err := f.chain.LatestCheckpointTimestamp(ctx)
	if err != nil {
		return err
	}
	f.checkpointMs.Store(ts)

	nowMs := uint64(f.now().UnixMilli())
	if nowMs > ts {
		metrics.CheckpointDelay.Set(float64(nowMs-ts) / 1000)
	} else {
		metrics.CheckpointDelay.Set(0)
	}
	return nil
}

func (f *Freshness) refreshGasPrice(ctx context.Context) error {
	price, err := f.chain.ReferenceGasPrice(ctx)
	if err != nil {
		return err
	}
	f.gasPrice.Store(price)
	return nil
}

func (f *Freshness) refreshLineage(ctx context.Context) error {
	lineage, err := f.chain.PackageLineage(ctx, f.servicePkg)
	if err != nil {
		return err
	}
	f.lineage.Store(&lineage)
	return nil
}

// CheckpointTimestampMs returns the snapshot checkpoint timestamp.
func (f *Freshness) CheckpointTimestampMs() uint64 {
	return f.checkpointMs.Load()
}

// GasPrice returns the snapshot reference gas price.
func (f *Freshness) GasPrice() uint64 {
	return f.gasPrice.Load()
}

// ServiceLineage returns the snapshot lineage of this server's own package.
func (f *Freshness) ServiceLineage() ports.PackageLineage {
	if l := f.lineage.Load(); l != nil {
		return *l
	}
	return ports.PackageLineage{}
}

// Guard refuses the request when the chain view is older than the allowed
// staleness bound. Fail closed: a stale view means no access decisions.
func (f *Freshness) Guard() error {
	nowMs := uint64(f.now().UnixMilli())
	ts := f.checkpointMs.Load()
	if ts > nowMs {
		return nil
	}
	if time.Duration(nowMs-ts)*time.Millisecond > AllowedStaleness {
		return core.ErrSuiClientNotFresh
	}
	return nil
}
