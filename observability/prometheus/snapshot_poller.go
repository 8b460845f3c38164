package prometheus

import (
	"context"
	"sync"
	"time"

	"github.com/Swind/go-attach-pool/core"
	prom "github.com/prometheus/client_golang/prometheus"
)

// PoolSnapshotProvider provides current pool stats snapshots.
type PoolSnapshotProvider interface {
	Stats() core.PoolStats
}

// BootstrapSnapshotProvider provides current bootstrap stats snapshots.
// *attachpool.PoolBuilder implements it.
type BootstrapSnapshotProvider interface {
	Stats() core.BootstrapStats
}

// SnapshotPoller periodically exports pool and bootstrap Stats() snapshots into Prometheus gauges.
type SnapshotPoller struct {
	interval time.Duration

	poolsMu sync.RWMutex
	pools   map[string]PoolSnapshotProvider

	bootstrapsMu sync.RWMutex
	bootstraps   map[string]BootstrapSnapshotProvider

	poolQueued  *prom.GaugeVec
	poolActive  *prom.GaugeVec
	poolWorkers *prom.GaugeVec
	poolLive    *prom.GaugeVec
	poolStolen  *prom.GaugeVec
	poolRunning *prom.GaugeVec

	bootstrapWaiting   *prom.GaugeVec
	bootstrapDelivered *prom.GaugeVec
	bootstrapState     *prom.GaugeVec

	stateMu sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

var bootstrapStates = []string{"idle", "building", "built", "failed", "closed"}

// NewSnapshotPoller creates a snapshot poller and registers its collectors.
func NewSnapshotPoller(reg prom.Registerer, interval time.Duration) (*SnapshotPoller, error) {
	if reg == nil {
		reg = prom.DefaultRegisterer
	}
	if interval <= 0 {
		interval = time.Second
	}

	gauge := func(name, help string, labels ...string) *prom.GaugeVec {
		return prom.NewGaugeVec(prom.GaugeOpts{
			Namespace: "attachpool",
			Name:      name,
			Help:      help,
		}, labels)
	}

	p := &SnapshotPoller{
		interval:   interval,
		pools:      make(map[string]PoolSnapshotProvider),
		bootstraps: make(map[string]BootstrapSnapshotProvider),

		poolQueued:  gauge("pool_queued", "Queued tasks per pool.", "pool"),
		poolActive:  gauge("pool_active", "Active tasks per pool.", "pool"),
		poolWorkers: gauge("pool_workers", "Declared worker count per pool.", "pool"),
		poolLive:    gauge("pool_live_workers", "Workers inside their run loop per pool.", "pool"),
		poolStolen:  gauge("pool_stolen", "Stolen task count snapshot per pool.", "pool"),
		poolRunning: gauge("pool_running", "Pool running state (1=running, 0=stopped).", "pool"),

		bootstrapWaiting:   gauge("bootstrap_waiting_workers", "Workers parked on the handoff channel.", "bootstrap"),
		bootstrapDelivered: gauge("bootstrap_delivered", "Entry tasks received by workers.", "bootstrap"),
		bootstrapState:     gauge("bootstrap_state", "Bootstrap state (1 for the current state).", "bootstrap", "state"),
	}

	var err error
	for _, g := range []**prom.GaugeVec{
		&p.poolQueued, &p.poolActive, &p.poolWorkers, &p.poolLive, &p.poolStolen, &p.poolRunning,
		&p.bootstrapWaiting, &p.bootstrapDelivered, &p.bootstrapState,
	} {
		if *g, err = registerCollector(reg, *g); err != nil {
			return nil, err
		}
	}
	return p, nil
}

// AddPool adds or replaces a pool snapshot provider by name.
func (p *SnapshotPoller) AddPool(name string, provider PoolSnapshotProvider) {
	if p == nil || provider == nil {
		return
	}
	name = normalizeLabel(name, "pool")
	p.poolsMu.Lock()
	p.pools[name] = provider
	p.poolsMu.Unlock()
}

// AddBootstrap adds or replaces a bootstrap snapshot provider by name.
func (p *SnapshotPoller) AddBootstrap(name string, provider BootstrapSnapshotProvider) {
	if p == nil || provider == nil {
		return
	}
	name = normalizeLabel(name, "bootstrap")
	p.bootstrapsMu.Lock()
	p.bootstraps[name] = provider
	p.bootstrapsMu.Unlock()
}

// Start begins periodic polling; repeated calls are no-ops.
func (p *SnapshotPoller) Start(ctx context.Context) {
	if p == nil {
		return
	}

	p.stateMu.Lock()
	if p.running {
		p.stateMu.Unlock()
		return
	}
	pollCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.done = make(chan struct{})
	p.running = true
	p.stateMu.Unlock()

	go p.loop(pollCtx)
}

// Stop stops periodic polling; repeated calls are safe.
func (p *SnapshotPoller) Stop() {
	if p == nil {
		return
	}

	p.stateMu.Lock()
	if !p.running {
		p.stateMu.Unlock()
		return
	}
	cancel := p.cancel
	done := p.done
	p.stateMu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}

	p.stateMu.Lock()
	p.running = false
	p.cancel = nil
	p.done = nil
	p.stateMu.Unlock()
}

func (p *SnapshotPoller) loop(ctx context.Context) {
	defer close(p.done)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.collectOnce()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.collectOnce()
		}
	}
}

func boolGauge(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

func (p *SnapshotPoller) collectOnce() {
	p.poolsMu.RLock()
	for name, provider := range p.pools {
		stats := provider.Stats()
		p.poolQueued.WithLabelValues(name).Set(float64(stats.Queued))
		p.poolActive.WithLabelValues(name).Set(float64(stats.Active))
		p.poolWorkers.WithLabelValues(name).Set(float64(stats.Workers))
		p.poolLive.WithLabelValues(name).Set(float64(stats.Live))
		p.poolStolen.WithLabelValues(name).Set(float64(stats.Stolen))
		p.poolRunning.WithLabelValues(name).Set(boolGauge(stats.Running))
	}
	p.poolsMu.RUnlock()

	p.bootstrapsMu.RLock()
	for name, provider := range p.bootstraps {
		stats := provider.Stats()
		p.bootstrapWaiting.WithLabelValues(name).Set(float64(stats.Waiting))
		p.bootstrapDelivered.WithLabelValues(name).Set(float64(stats.Delivered))
		for _, s := range bootstrapStates {
			p.bootstrapState.WithLabelValues(name, s).Set(boolGauge(s == stats.State))
		}
	}
	p.bootstrapsMu.RUnlock()
}
