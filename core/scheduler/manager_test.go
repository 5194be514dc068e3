package scheduler_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/liamAduDonkor/adesua-sub000/core/report"
	"github.com/liamAduDonkor/adesua-sub000/core/schedule"
	"github.com/liamAduDonkor/adesua-sub000/core/scheduler"
	testutil "github.com/liamAduDonkor/adesua-sub000/tests"
)

var ctx = context.Background()

type recordingPublisher struct {
	mu     sync.Mutex
	events []scheduler.Event
}

func (p *recordingPublisher) Publish(_ context.Context, ev scheduler.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return nil
}

func (p *recordingPublisher) Events() []scheduler.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]scheduler.Event(nil), p.events...)
}

var firstRun = time.Date(2023, time.January, 31, 6, 0, 0, 0, time.UTC)

func scheduled(t *testing.T, s *testutil.Stack, freq schedule.Frequency, enabled bool) report.Definition {
	t.Helper()
	nd := testutil.StudentReport()
	nd.Schedule = &report.ScheduleInput{Frequency: freq, FirstRunAt: firstRun, Enabled: &enabled}
	d, err := s.Service.CreateDefinition(ctx, testutil.HeadOf42, nd)
	require.NoError(t, err)
	return d
}

func newManager(s *testutil.Stack, pub scheduler.Publisher) *scheduler.Manager {
	return scheduler.NewManager(scheduler.Deps{
		Repo:      s.Repo,
		Service:   s.Service,
		Publisher: pub,
		Logger:    s.Logger,
	})
}

func TestManager_Tick_monthlyEndOfMonth(t *testing.T) {
	s := testutil.NewStack(t)
	pub := &recordingPublisher{}
	m := newManager(s, pub)
	d := scheduled(t, s, schedule.Monthly, true)

	res, err := m.Tick(ctx, firstRun.Add(-time.Second))
	require.NoError(t, err)
	assert.Equal(t, scheduler.TickResult{}, res)

	res, err = m.Tick(ctx, firstRun)
	require.NoError(t, err)
	assert.Equal(t, scheduler.TickResult{Due: 1, Submitted: 1}, res)

	stored, err := s.Repo.GetDefinition(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2023, time.February, 28, 6, 0, 0, 0, time.UTC), stored.Schedule.NextRunAt)
	assert.Equal(t, firstRun, stored.Schedule.LastRunAt)

	insts, err := s.Service.Instances(ctx, d.ID)
	require.NoError(t, err)
	require.Len(t, insts, 1)
	assert.Equal(t, report.StatusQueued, insts[0].Status)

	events := pub.Events()
	require.Len(t, events, 1)
	assert.Equal(t, report.EventDue, events[0].Type)
	assert.Equal(t, insts[0].ID, events[0].InstanceID)
	assert.Equal(t, firstRun, events[0].ScheduledFor)

	// the same slot is never submitted twice
	res, err = m.Tick(ctx, firstRun.Add(time.Hour))
	require.NoError(t, err)
	assert.Zero(t, res.Due)

	// and the anchor comes back in March
	_, err = m.Tick(ctx, time.Date(2023, time.February, 28, 6, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	stored, err = s.Repo.GetDefinition(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2023, time.March, 31, 6, 0, 0, 0, time.UTC), stored.Schedule.NextRunAt)
}

func TestManager_Tick_skipsWhileGenerating(t *testing.T) {
	s := testutil.NewStack(t)
	m := newManager(s, nil)
	d := scheduled(t, s, schedule.Daily, true)

	_, err := m.Tick(ctx, firstRun)
	require.NoError(t, err)
	inst, ok, err := s.Service.ClaimNext(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	next := firstRun.AddDate(0, 0, 1)
	res, err := m.Tick(ctx, next)
	require.NoError(t, err)
	assert.Equal(t, scheduler.TickResult{Due: 1, Skipped: 1}, res)

	stored, err := s.Repo.GetDefinition(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, next.AddDate(0, 0, 1), stored.Schedule.NextRunAt)

	insts, err := s.Service.Instances(ctx, d.ID)
	require.NoError(t, err)
	require.Len(t, insts, 1)
	assert.Equal(t, inst.ID, insts[0].ID)
}

func TestManager_Tick_concurrentDrivers(t *testing.T) {
	s := testutil.NewStack(t)
	d := scheduled(t, s, schedule.Weekly, true)

	const drivers = 6
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		submitted int
		start     = make(chan struct{})
	)
	for i := 0; i < drivers; i++ {
		m := newManager(s, nil)
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			res, err := m.Tick(ctx, firstRun)
			assert.NoError(t, err)
			mu.Lock()
			submitted += res.Submitted
			mu.Unlock()
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(t, 1, submitted)
	insts, err := s.Service.Instances(ctx, d.ID)
	require.NoError(t, err)
	assert.Len(t, insts, 1)
}

func TestManager_DueDefinitions(t *testing.T) {
	s := testutil.NewStack(t)
	m := newManager(s, nil)

	due := scheduled(t, s, schedule.Daily, true)
	scheduled(t, s, schedule.Daily, false)
	deleted := scheduled(t, s, schedule.Daily, true)
	require.NoError(t, s.Service.DeleteDefinition(ctx, testutil.HeadOf42, deleted.ID))
	_, err := s.Service.CreateDefinition(ctx, testutil.HeadOf42, testutil.StudentReport())
	require.NoError(t, err)

	defs, err := m.DueDefinitions(ctx, firstRun)
	require.NoError(t, err)
	require.Len(t, defs, 1)
	assert.Equal(t, due.ID, defs[0].ID)
}

func TestDriver_Run(t *testing.T) {
	s := testutil.NewStack(t)
	d := scheduled(t, s, schedule.Daily, true)

	drv := scheduler.NewDriver(newManager(s, nil), s.Logger, s.Conf).WithClock(func() time.Time { return firstRun })

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() { done <- drv.Run(runCtx) }()

	assert.Eventually(t, func() bool {
		insts, err := s.Service.Instances(ctx, d.ID)
		return err == nil && len(insts) == 1
	}, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("driver did not stop")
	}

	// the clock never moved: one slot, one instance
	insts, err := s.Service.Instances(ctx, d.ID)
	require.NoError(t, err)
	assert.Len(t, insts, 1)
}
