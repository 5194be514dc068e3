package report

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/liamAduDonkor/adesua-sub000/core"
)

const (
	defaultWorkers      = 4
	defaultPollInterval = 5 * time.Second
)

// Pool runs generation workers that poll the queue.
type Pool struct {
	svc      *Service
	gen      *Generator
	logger   core.Logger
	workers  int
	interval time.Duration
}

func NewPool(svc *Service, gen *Generator, logger core.Logger, conf *core.Config) *Pool {
	p := &Pool{svc: svc, gen: gen, logger: logger, workers: defaultWorkers, interval: defaultPollInterval}
	if conf != nil {
		if conf.Reports.Workers > 0 {
			p.workers = conf.Reports.Workers
		}
		if conf.Reports.PollInterval > 0 {
			p.interval = conf.Reports.PollInterval
		}
	}
	return p
}

// Run blocks until ctx is done.
func (p *Pool) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < p.workers; i++ {
		worker := i
		g.Go(func() error { return p.work(ctx, worker) })
	}
	p.logger.Info(fmt.Sprintf("report pool started with %d workers", p.workers))
	return g.Wait()
}

func (p *Pool) work(ctx context.Context, worker int) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		// drain the queue before sleeping
		for ctx.Err() == nil {
			found, err := p.RunOnce(ctx)
			if err != nil {
				p.logger.Error("report worker", err, core.Fields{"worker": worker})
			}
			if !found {
				break
			}
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// RunOnce claims and generates one queued instance. It reports whether one was found.
func (p *Pool) RunOnce(ctx context.Context) (found bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Errorf("report worker panicked: %v", r)
		}
	}()

	inst, ok, err := p.svc.ClaimNext(ctx)
	if err != nil || !ok {
		return false, err
	}
	_, err = p.gen.Generate(ctx, inst)
	return true, err
}

// Drain generates queued instances until the queue is empty and returns how many were processed.
func (p *Pool) Drain(ctx context.Context) (int, error) {
	var n int
	for ctx.Err() == nil {
		found, err := p.RunOnce(ctx)
		if err != nil {
			return n, err
		}
		if !found {
			break
		}
		n++
	}
	return n, nil
}
