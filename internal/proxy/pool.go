package proxy

import (
	"log/slog"
	"math"
	"sort"
	"strings"
	"sync"
	"time"
)

// Tier orders the proxy fallback chain. Lower priority values are
// preferred.
type Tier string

const (
	TierResidential Tier = "residential"
	TierDatacenter  Tier = "datacenter"
	TierDirect      Tier = "direct"
)

func (t Tier) priority() int {
	switch t {
	case TierResidential:
		return 0
	case TierDatacenter:
		return 1
	case TierDirect:
		return 2
	}
	return 99
}

// Health score adjustments per reported outcome.
const (
	healthSuccessDelta = 0.1
	healthFailureDelta = 0.2
	reactivationHealth = 0.3
)

// A Proxy is a single upstream endpoint with health tracking. All mutable
// fields are guarded by the owning Pool's mutex; proxies are never
// removed, only deactivated and reactivated.
type Proxy struct {
	Address  string
	Tier     Tier
	Provider string

	HealthScore  float64
	SuccessCount int
	FailureCount int
	LastUsedAt   time.Time
	Active       bool
}

// TotalRequests is the number of outcomes reported for this proxy.
func (p *Proxy) TotalRequests() int {
	return p.SuccessCount + p.FailureCount
}

// IsDirect reports whether this is the no-proxy sentinel.
func (p *Proxy) IsDirect() bool {
	return p == Direct
}

// Direct is the sentinel for a connection without a proxy. It is never
// held in a pool and reporting outcomes against it is a no-op.
var Direct = &Proxy{
	Address:     "DIRECT",
	Tier:        TierDirect,
	Provider:    "none",
	HealthScore: 1.0,
	Active:      true,
}

// Config seeds a pool from external configuration: either a single
// API-gateway style endpoint (treated as residential) or a comma-less
// list of raw proxy endpoints (treated as datacenter). With neither, the
// pool is empty and every Select falls back to Direct.
type Config struct {
	GatewayURL string
	Endpoints  []string
}

// Pool manages rotating proxies with tiered, health-scored selection.
// All health mutation and cursor movement happens under one mutex.
type Pool struct {
	mu      sync.Mutex
	proxies []*Proxy
	cursor  int
	logger  *slog.Logger
}

// NewPool builds a pool from configuration.
func NewPool(cfg Config, logger *slog.Logger) *Pool {
	if logger == nil {
		logger = slog.Default()
	}
	p := &Pool{logger: logger.With("component", "proxy_pool")}

	if cfg.GatewayURL != "" {
		p.proxies = append(p.proxies, newProxy(cfg.GatewayURL, TierResidential, "gateway"))
		p.logger.Info("loaded gateway proxy configuration")
	} else {
		for _, addr := range cfg.Endpoints {
			addr = strings.TrimSpace(addr)
			if addr == "" {
				continue
			}
			p.proxies = append(p.proxies, newProxy(addr, TierDatacenter, "raw"))
		}
		if len(p.proxies) > 0 {
			p.logger.Info("loaded raw proxy list", "count", len(p.proxies))
		}
	}

	if len(p.proxies) == 0 {
		p.logger.Warn("no proxies configured, scraping will use direct connections")
	}
	return p
}

func newProxy(address string, tier Tier, provider string) *Proxy {
	return &Proxy{
		Address:     address,
		Tier:        tier,
		Provider:    provider,
		HealthScore: 1.0,
		Active:      true,
	}
}

// Add appends a proxy to the pool.
func (p *Pool) Add(address string, tier Tier, provider string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.proxies = append(p.proxies, newProxy(address, tier, provider))
}

// Size is the total number of proxies, active or not.
func (p *Pool) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.proxies)
}

// ActiveCount is the number of currently active proxies.
func (p *Pool) ActiveCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, prx := range p.proxies {
		if prx.Active {
			n++
		}
	}
	return n
}

// Select returns the next proxy to use. Candidates are the active
// proxies of the best tier present, ordered by health score; the
// rotation cursor round-robins among them so load spreads instead of
// hammering the single healthiest endpoint. With no active proxies it
// returns the Direct sentinel.
func (p *Pool) Select() *Proxy {
	p.mu.Lock()
	defer p.mu.Unlock()

	var active []*Proxy
	for _, prx := range p.proxies {
		if prx.Active {
			active = append(active, prx)
		}
	}
	if len(active) == 0 {
		if len(p.proxies) > 0 {
			p.logger.Warn("all proxies exhausted, falling back to direct connection")
		}
		return Direct
	}

	sort.SliceStable(active, func(i, j int) bool {
		if active[i].Tier.priority() != active[j].Tier.priority() {
			return active[i].Tier.priority() < active[j].Tier.priority()
		}
		return active[i].HealthScore > active[j].HealthScore
	})

	// Never hand out a lower tier while a higher one has active proxies.
	top := active[:0:0]
	for _, prx := range active {
		if prx.Tier == active[0].Tier {
			top = append(top, prx)
		}
	}

	selected := top[p.cursor%len(top)]
	p.cursor++
	return selected
}

// ReportSuccess credits a proxy: health +0.1 capped at 1.0. Reporting on
// the Direct sentinel is a no-op.
func (p *Pool) ReportSuccess(prx *Proxy) {
	if prx == nil || prx.IsDirect() {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	prx.SuccessCount++
	prx.LastUsedAt = time.Now()
	prx.HealthScore = clampHealth(prx.HealthScore + healthSuccessDelta)
}

// ReportFailure debits a proxy: health −0.2 floored at 0.0, deactivating
// it when the floor is hit. Reporting on the Direct sentinel is a no-op.
func (p *Pool) ReportFailure(prx *Proxy) {
	if prx == nil || prx.IsDirect() {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	prx.FailureCount++
	prx.LastUsedAt = time.Now()
	prx.HealthScore = clampHealth(prx.HealthScore - healthFailureDelta)
	if prx.HealthScore <= 0.0 {
		prx.Active = false
		p.logger.Warn("proxy deactivated", "address", prx.Address)
	}
}

// ReactivateAll resets every inactive proxy to active with a tentative
// health score. It is meant as a periodic external recovery sweep; the
// pool never invokes it itself. Returns the number reactivated.
func (p *Pool) ReactivateAll() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	reactivated := 0
	for _, prx := range p.proxies {
		if !prx.Active {
			prx.Active = true
			prx.HealthScore = reactivationHealth
			reactivated++
		}
	}
	if reactivated > 0 {
		p.logger.Info("reactivated proxies", "count", reactivated)
	}
	return reactivated
}

// Summary is a point-in-time view of pool health.
type Summary struct {
	Total         int     `json:"total"`
	Active        int     `json:"active"`
	AvgHealth     float64 `json:"avg_health"`
	TotalRequests int     `json:"total_requests"`
}

// Health summarizes the pool for diagnostics.
func (p *Pool) Health() Summary {
	p.mu.Lock()
	defer p.mu.Unlock()

	s := Summary{Total: len(p.proxies)}
	var healthSum float64
	for _, prx := range p.proxies {
		if prx.Active {
			s.Active++
		}
		healthSum += prx.HealthScore
		s.TotalRequests += prx.TotalRequests()
	}
	if s.Total > 0 {
		s.AvgHealth = healthSum / float64(s.Total)
	}
	return s
}

// clampHealth bounds a score to [0, 1] and rounds away accumulated
// floating-point drift so repeated deltas land on exact boundaries.
func clampHealth(score float64) float64 {
	score = math.Round(score*1e9) / 1e9
	return min(1.0, max(0.0, score))
}
