package proxypool

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"
)

// cronParser uses standard 5-field cron expressions (minute, hour, dom, month, dow).
var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// Maintainer runs Refresh and Recheck on cron schedules.
type Maintainer struct {
	pool   *Pool
	cron   *cron.Cron
	ctx    context.Context
	cancel context.CancelFunc
}

// StartMaintenance schedules pool refreshes and rechecks. An empty spec
// disables that job. Jobs that overrun their interval are skipped rather
// than stacked.
func StartMaintenance(pool *Pool, refreshSpec, recheckSpec string) (*Maintainer, error) {
	ctx, cancel := context.WithCancel(context.Background())
	m := &Maintainer{
		pool:   pool,
		ctx:    ctx,
		cancel: cancel,
		cron: cron.New(
			cron.WithParser(cronParser),
			cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)),
		),
	}

	if refreshSpec != "" {
		if _, err := m.cron.AddFunc(refreshSpec, m.refresh); err != nil {
			cancel()
			return nil, fmt.Errorf("proxypool: schedule refresh %q: %w", refreshSpec, err)
		}
	}
	if recheckSpec != "" {
		if _, err := m.cron.AddFunc(recheckSpec, m.recheck); err != nil {
			cancel()
			return nil, fmt.Errorf("proxypool: schedule recheck %q: %w", recheckSpec, err)
		}
	}
	m.cron.Start()
	return m, nil
}

func (m *Maintainer) refresh() {
	if _, err := m.pool.Refresh(m.ctx); err != nil {
		m.pool.log.Warn().Err(err).Msg("scheduled refresh failed")
	}
}

func (m *Maintainer) recheck() {
	if _, err := m.pool.Recheck(m.ctx); err != nil {
		m.pool.log.Warn().Err(err).Msg("scheduled recheck failed")
	}
}

// Stop cancels running jobs and waits for them to return.
func (m *Maintainer) Stop() {
	m.cancel()
	<-m.cron.Stop().Done()
}
