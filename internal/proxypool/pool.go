// Package proxypool keeps the shared set of egress proxies. Proxies are
// held in an arena keyed by id and only mutated through Checkout and
// Release, so at most one claim attempt holds a given proxy at a time.
package proxypool

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/zulandar/dripyard/internal/logger"
)

// ErrPoolExhausted means no healthy proxy is free right now. Callers retry.
var ErrPoolExhausted = errors.New("proxypool: pool exhausted")

// ErrNotCheckedOut is returned by Release for an id that is not in use.
var ErrNotCheckedOut = errors.New("proxypool: proxy not checked out")

// DefaultFailureThreshold is the consecutive-failure count that demotes a
// proxy to unhealthy.
const DefaultFailureThreshold = 3

// Result is what a checkout holder reports back on Release.
type Result int

const (
	// ResultOK returns the proxy healthy and resets its failure streak.
	ResultOK Result = iota
	// ResultFailed counts a failure against the proxy.
	ResultFailed
)

func (r Result) String() string {
	if r == ResultFailed {
		return "failed"
	}
	return "ok"
}

type record struct {
	Proxy
	healthy bool
	inUse   bool
}

func (r *record) view() Proxy {
	p := r.Proxy
	switch {
	case r.inUse:
		p.Status = StatusInUse
	case r.healthy:
		p.Status = StatusHealthy
	default:
		p.Status = StatusUnhealthy
	}
	return p
}

// Options configures a Pool.
type Options struct {
	FailureThreshold int
	Sources          []Source
	Prober           Prober
	ProbeConcurrency int
}

// Pool is safe for concurrent use.
type Pool struct {
	mu      sync.Mutex
	records map[string]*record
	order   []string // round-robin order of ids
	next    int
	wake    chan struct{}

	threshold        int
	sources          []Source
	prober           Prober
	probeConcurrency int
	now              func() time.Time
	log              zerolog.Logger
}

// New returns an empty pool.
func New(opts Options) *Pool {
	if opts.FailureThreshold <= 0 {
		opts.FailureThreshold = DefaultFailureThreshold
	}
	if opts.ProbeConcurrency <= 0 {
		opts.ProbeConcurrency = 10
	}
	return &Pool{
		records:          make(map[string]*record),
		wake:             make(chan struct{}),
		threshold:        opts.FailureThreshold,
		sources:          opts.Sources,
		prober:           opts.Prober,
		probeConcurrency: opts.ProbeConcurrency,
		now:              time.Now,
		log:              logger.WithComponent("proxypool"),
	}
}

// signal wakes every goroutine blocked on a channel from Wait. Caller holds mu.
func (p *Pool) signal() {
	close(p.wake)
	p.wake = make(chan struct{})
}

// Wait returns a channel that is closed the next time a proxy may have
// become available.
func (p *Pool) Wait() <-chan struct{} {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.wake
}

// insert adds px when its id is new. Caller holds mu.
func (p *Pool) insert(px Proxy) bool {
	if _, ok := p.records[px.ID]; ok {
		return false
	}
	p.records[px.ID] = &record{Proxy: px, healthy: true}
	p.order = append(p.order, px.ID)
	return true
}

// Add inserts proxies given as URLs or host:port. Nothing is added if any
// entry fails to parse. Returns the number of new proxies.
func (p *Pool) Add(raw ...string) (int, error) {
	parsed := make([]Proxy, 0, len(raw))
	for _, r := range raw {
		px, err := Parse(r, "http")
		if err != nil {
			return 0, err
		}
		px.Source = "manual"
		parsed = append(parsed, px)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	added := 0
	for _, px := range parsed {
		if p.insert(px) {
			added++
		}
	}
	if added > 0 {
		p.signal()
	}
	return added, nil
}

// Checkout hands out one healthy proxy that is not in use, marking it in
// use. Selection rotates through the pool so load spreads across proxies.
func (p *Pool) Checkout() (Proxy, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	n := len(p.order)
	for i := 0; i < n; i++ {
		idx := (p.next + i) % n
		r := p.records[p.order[idx]]
		if r.healthy && !r.inUse {
			r.inUse = true
			p.next = (idx + 1) % n
			return r.view(), nil
		}
	}
	return Proxy{}, ErrPoolExhausted
}

// Release returns a checked-out proxy. A failed result increments the
// proxy's consecutive-failure count and demotes it once the threshold is
// reached; an ok result resets the count.
func (p *Pool) Release(id string, result Result) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	r, ok := p.records[id]
	if !ok || !r.inUse {
		return fmt.Errorf("%w: %s", ErrNotCheckedOut, id)
	}
	r.inUse = false

	if result == ResultFailed {
		r.Failures++
		if r.Failures >= p.threshold {
			if r.healthy {
				p.log.Warn().Str("proxy", id).Int("failures", r.Failures).Msg("proxy demoted to unhealthy")
			}
			r.healthy = false
			return nil
		}
	} else {
		r.Failures = 0
	}
	if r.healthy {
		p.signal()
	}
	return nil
}

// Refresh pulls every source concurrently and merges the result into the
// pool. New ids join as healthy; existing records, including checked-out
// ones, are kept. Unhealthy idle proxies that no source lists anymore are
// dropped. Returns the resulting pool size.
func (p *Pool) Refresh(ctx context.Context) (int, error) {
	if len(p.sources) == 0 {
		return p.Len(), nil
	}

	type fetched struct {
		source  string
		proxies []Proxy
		err     error
	}
	results := make(chan fetched, len(p.sources))
	var wg sync.WaitGroup
	for _, src := range p.sources {
		wg.Add(1)
		go func(src Source) {
			defer wg.Done()
			list, err := src.Fetch(ctx)
			results <- fetched{source: src.Name(), proxies: list, err: err}
		}(src)
	}
	wg.Wait()
	close(results)

	var errs []error
	listed := make(map[string]Proxy)
	for res := range results {
		if res.err != nil {
			p.log.Warn().Err(res.err).Str("source", res.source).Msg("proxy source failed")
			errs = append(errs, res.err)
			continue
		}
		p.log.Info().Str("source", res.source).Int("count", len(res.proxies)).Msg("fetched proxies")
		for _, px := range res.proxies {
			if _, dup := listed[px.ID]; !dup {
				listed[px.ID] = px
			}
		}
	}
	if len(errs) == len(p.sources) {
		return p.Len(), fmt.Errorf("proxypool: refresh: every source failed: %w", errors.Join(errs...))
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	added, dropped := 0, 0
	kept := p.order[:0]
	for _, id := range p.order {
		r := p.records[id]
		if _, ok := listed[id]; !ok && !r.healthy && !r.inUse {
			delete(p.records, id)
			dropped++
			continue
		}
		kept = append(kept, id)
	}
	p.order = kept
	if p.next >= len(p.order) {
		p.next = 0
	}

	ids := make([]string, 0, len(listed))
	for id := range listed {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		if p.insert(listed[id]) {
			added++
		}
	}
	if added > 0 {
		p.signal()
	}

	p.log.Info().Int("added", added).Int("dropped", dropped).Int("total", len(p.records)).Msg("proxy pool refreshed")
	return len(p.records), nil
}

// Recheck probes every idle unhealthy proxy and promotes those that pass.
// Returns the number promoted.
func (p *Pool) Recheck(ctx context.Context) (int, error) {
	if p.prober == nil {
		return 0, nil
	}

	p.mu.Lock()
	var candidates []Proxy
	for _, id := range p.order {
		r := p.records[id]
		if !r.healthy && !r.inUse {
			candidates = append(candidates, r.Proxy)
		}
	}
	p.mu.Unlock()

	if len(candidates) == 0 {
		return 0, nil
	}

	type probed struct {
		id  string
		err error
	}
	results := make(chan probed, len(candidates))
	sem := make(chan struct{}, p.probeConcurrency)
	var wg sync.WaitGroup
	for _, px := range candidates {
		wg.Add(1)
		go func(px Proxy) {
			defer wg.Done()
			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				results <- probed{id: px.ID, err: ctx.Err()}
				return
			}
			defer func() { <-sem }()
			results <- probed{id: px.ID, err: p.prober.Probe(ctx, px)}
		}(px)
	}
	wg.Wait()
	close(results)

	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.now()
	promoted := 0
	for res := range results {
		r, ok := p.records[res.id]
		if !ok || r.inUse {
			continue
		}
		r.LastChecked = now
		if res.err != nil {
			continue
		}
		if !r.healthy {
			r.healthy = true
			r.Failures = 0
			promoted++
		}
	}
	if promoted > 0 {
		p.signal()
		p.log.Info().Int("promoted", promoted).Int("checked", len(candidates)).Msg("proxies passed recheck")
	}
	if err := ctx.Err(); err != nil {
		return promoted, fmt.Errorf("proxypool: recheck: %w", err)
	}
	return promoted, nil
}

// Counts is a per-status tally of the pool.
type Counts struct {
	Total     int `json:"total"`
	Healthy   int `json:"healthy"`
	Unhealthy int `json:"unhealthy"`
	InUse     int `json:"in_use"`
}

// Snapshot is a point-in-time copy of the pool.
type Snapshot struct {
	Counts
	Proxies []Proxy `json:"proxies"`
}

// Snapshot copies every record under one lock acquisition.
func (p *Pool) Snapshot() Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()

	s := Snapshot{Proxies: make([]Proxy, 0, len(p.order))}
	for _, id := range p.order {
		v := p.records[id].view()
		s.Proxies = append(s.Proxies, v)
		s.tally(v.Status)
	}
	return s
}

// Counts tallies the pool without copying records.
func (p *Pool) Counts() Counts {
	p.mu.Lock()
	defer p.mu.Unlock()

	var c Counts
	for _, r := range p.records {
		c.tally(r.view().Status)
	}
	return c
}

func (c *Counts) tally(s Status) {
	c.Total++
	switch s {
	case StatusHealthy:
		c.Healthy++
	case StatusUnhealthy:
		c.Unhealthy++
	case StatusInUse:
		c.InUse++
	}
}

// Len returns the number of proxies in the pool.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.records)
}
