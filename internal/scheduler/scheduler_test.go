package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignatzorin/orderdesk-backend/internal/service"
)

type fakeLedger struct {
	calls  int
	err    error
	report service.ReconcileReport
	panic  bool
}

func (f *fakeLedger) ReconcileAll(ctx context.Context) (service.ReconcileReport, error) {
	f.calls++
	if f.panic {
		panic("boom")
	}
	return f.report, f.err
}

type fakePurger struct {
	at time.Time
	n  int64
}

func (f *fakePurger) PurgeExpiredAttachments(ctx context.Context, now time.Time) (int64, error) {
	f.at = now
	return f.n, nil
}

func TestNew_RejectsInvalidSchedule(t *testing.T) {
	_, err := New(Config{ReconcileSchedule: "every day please"}, &fakeLedger{}, &fakePurger{})
	assert.Error(t, err)

	_, err = New(Config{PurgeSchedule: "* * *"}, &fakeLedger{}, &fakePurger{})
	assert.Error(t, err)
}

func TestNew_RegistersConfiguredJobs(t *testing.T) {
	s, err := New(Config{ReconcileSchedule: "0 0 3 * * *", PurgeSchedule: "0 30 * * * *"}, &fakeLedger{}, &fakePurger{})
	require.NoError(t, err)
	assert.Len(t, s.cron.Entries(), 2)

	s, err = New(Config{ReconcileSchedule: "0 0 3 * * *"}, &fakeLedger{}, &fakePurger{})
	require.NoError(t, err)
	assert.Len(t, s.cron.Entries(), 1)
}

func TestReconcileBalances(t *testing.T) {
	ledger := &fakeLedger{report: service.ReconcileReport{Processed: 3}}
	s, err := New(Config{}, ledger, &fakePurger{})
	require.NoError(t, err)

	s.ReconcileBalances()
	assert.Equal(t, 1, ledger.calls)

	ledger.err = errors.New("db down")
	assert.NotPanics(t, s.ReconcileBalances)

	ledger.panic = true
	assert.NotPanics(t, s.ReconcileBalances)
	assert.Equal(t, 3, ledger.calls)
}

func TestPurgeAttachments_UsesCurrentTime(t *testing.T) {
	purger := &fakePurger{n: 2}
	s, err := New(Config{}, &fakeLedger{}, purger)
	require.NoError(t, err)

	now := time.Date(2026, 10, 26, 9, 30, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	s.PurgeAttachments()
	assert.Equal(t, now, purger.at)
}
