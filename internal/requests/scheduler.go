package requests

import (
	"context"

	"github.com/robfig/cron/v3"

	"github.com/anthill-platform/anthill-social/internal/logging"
)

// Scheduler periodically sweeps expired request rows (§4.1).
type Scheduler struct {
	cron   *cron.Cron
	ledger *Ledger
	log    *logging.Logger
}

// NewScheduler wires a cron job that runs SweepExpired on spec; spec
// is a standard cron expression, e.g. "@every 1h".
func NewScheduler(ledger *Ledger, log *logging.Logger, spec string) (*Scheduler, error) {
	c := cron.New()
	s := &Scheduler{cron: c, ledger: ledger, log: log}

	_, err := c.AddFunc(spec, s.runSweep)
	if err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Scheduler) runSweep() {
	n, err := s.ledger.SweepExpired(context.Background())
	if err != nil {
		s.log.WithField("error", err).Warn("request ledger expiry sweep failed")
		return
	}
	if n > 0 {
		s.log.WithField("count", n).Info("swept expired requests")
	}
}

func (s *Scheduler) Start() { s.cron.Start() }
func (s *Scheduler) Stop()  { s.cron.Stop() }
