package report_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/liamAduDonkor/adesua-sub000/core/report"
	testutil "github.com/liamAduDonkor/adesua-sub000/tests"
)

func TestPool_Run(t *testing.T) {
	s := testutil.NewStack(t)
	testutil.SeedStudents(t, s.Store)
	d, err := s.Service.CreateDefinition(ctx, testutil.HeadOf42, testutil.StudentReport())
	require.NoError(t, err)

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() { done <- s.Pool.Run(runCtx) }()

	ids := make([]string, 0, 5)
	for i := 0; i < 5; i++ {
		inst, err := s.Service.SubmitDefinition(ctx, d.ID)
		require.NoError(t, err)
		ids = append(ids, inst.ID)
	}

	assert.Eventually(t, func() bool {
		insts, err := s.Service.Instances(ctx, d.ID, report.StatusCompleted)
		return err == nil && len(insts) == len(ids)
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("pool did not stop")
	}

	// every instance was generated exactly once
	assert.Equal(t, len(ids), s.Renderer.Calls())
	for _, id := range ids {
		inst, err := s.Service.Get(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, 1, inst.Attempts)
	}
}
