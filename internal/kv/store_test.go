// Vigia de Dados - Real-time editorial radar for hard-news monitoring
// Copyright 2026 Vigia de Dados contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vigiadados/radar

package kv

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open("")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestFetchLockExclusive(t *testing.T) {
	s := newTestStore(t)

	require.NoError(t, s.AcquireFetchLock("src-1", time.Minute))
	err := s.AcquireFetchLock("src-1", time.Minute)
	assert.ErrorIs(t, err, ErrLockHeld)

	require.NoError(t, s.ReleaseFetchLock("src-1"))
	assert.NoError(t, s.AcquireFetchLock("src-1", time.Minute))
}

func TestReleaseAbsentLockIsNoop(t *testing.T) {
	s := newTestStore(t)
	assert.NoError(t, s.ReleaseFetchLock("never-locked"))
}

func TestValidatorsRoundTrip(t *testing.T) {
	s := newTestStore(t)

	v, err := s.GetValidators("https://example.gov.br/feed")
	require.NoError(t, err)
	assert.Empty(t, v.ETag)

	want := Validators{ETag: `"abc123"`, LastModified: "Mon, 24 Aug 2026 12:00:00 GMT"}
	require.NoError(t, s.SetValidators("https://example.gov.br/feed", want))

	got, err := s.GetValidators("https://example.gov.br/feed")
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestBreakerSnapshotRoundTrip(t *testing.T) {
	s := newTestStore(t)

	_, found, err := s.GetBreakerSnapshot("src-9")
	require.NoError(t, err)
	assert.False(t, found)

	snap := BreakerSnapshot{State: "open", Failures: 5, UpdatedAt: time.Now().UTC().Truncate(time.Second)}
	require.NoError(t, s.SetBreakerSnapshot("src-9", snap))

	got, found, err := s.GetBreakerSnapshot("src-9")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, snap.State, got.State)
	assert.Equal(t, snap.Failures, got.Failures)
}

func TestVelocityWindow(t *testing.T) {
	s := newTestStore(t)
	now := time.Date(2026, 8, 25, 14, 30, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		require.NoError(t, s.BumpVelocity("evt-1", now, 48*time.Hour))
	}
	require.NoError(t, s.BumpVelocity("evt-1", now.Add(-2*time.Hour), 48*time.Hour))
	// Outside a 1h window but inside 6h.
	require.NoError(t, s.BumpVelocity("evt-2", now, 48*time.Hour))

	got, err := s.Velocity("evt-1", now, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 3, got)

	got, err = s.Velocity("evt-1", now, 6*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 4, got)
}

func TestNextSeqMonotonePerEvent(t *testing.T) {
	s := newTestStore(t)

	for want := uint64(1); want <= 5; want++ {
		got, err := s.NextSeq("evt-1")
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}

	got, err := s.NextSeq("evt-2")
	require.NoError(t, err)
	assert.Equal(t, uint64(1), got, "sequences are per event")
}

func TestAlertCooldown(t *testing.T) {
	s := newTestStore(t)

	in, err := s.InAlertCooldown("evt-1")
	require.NoError(t, err)
	assert.False(t, in)

	require.NoError(t, s.SetAlertCooldown("evt-1", time.Minute))
	in, err = s.InAlertCooldown("evt-1")
	require.NoError(t, err)
	assert.True(t, in)
}

func TestSnooze(t *testing.T) {
	s := newTestStore(t)

	snoozed, err := s.Snoozed("evt-1")
	require.NoError(t, err)
	assert.False(t, snoozed)

	require.NoError(t, s.Snooze("evt-1", time.Hour))
	snoozed, err = s.Snoozed("evt-1")
	require.NoError(t, err)
	assert.True(t, snoozed)
}
