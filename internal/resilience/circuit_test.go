package resilience

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassBreaker_TripsAtThreshold(t *testing.T) {
	b := NewClassBreaker(1)

	require.False(t, b.IsTripped("enrichment_challenge"))
	tripped := b.RecordFailure("enrichment_challenge")
	assert.True(t, tripped)
	assert.True(t, b.IsTripped("enrichment_challenge"))
}

func TestClassBreaker_ThresholdAboveOne(t *testing.T) {
	b := NewClassBreaker(3)

	b.RecordFailure("enrichment_challenge")
	b.RecordFailure("enrichment_challenge")
	assert.False(t, b.IsTripped("enrichment_challenge"))

	b.RecordFailure("enrichment_challenge")
	assert.True(t, b.IsTripped("enrichment_challenge"))
}

func TestClassBreaker_SuccessResetsCounterButNotTrip(t *testing.T) {
	b := NewClassBreaker(2)

	b.RecordFailure("enrichment_challenge")
	b.RecordSuccess("enrichment_challenge")
	failures, tripped := b.Counters("enrichment_challenge")
	assert.Equal(t, 0, failures)
	assert.False(t, tripped)

	// Trip, then verify success cannot un-trip.
	b.RecordFailure("enrichment_challenge")
	b.RecordFailure("enrichment_challenge")
	require.True(t, b.IsTripped("enrichment_challenge"))
	b.RecordSuccess("enrichment_challenge")
	assert.True(t, b.IsTripped("enrichment_challenge"))
}

func TestClassBreaker_ClassesAreIndependent(t *testing.T) {
	b := NewClassBreaker(1)

	b.RecordFailure("enrichment_challenge")
	assert.True(t, b.IsTripped("enrichment_challenge"))
	assert.False(t, b.IsTripped("profile_fetch"))
}

func TestClassBreaker_OnTripFiresOnce(t *testing.T) {
	var trips []string
	b := NewClassBreaker(1, WithOnTrip(func(class string) {
		trips = append(trips, class)
	}))

	b.RecordFailure("enrichment_challenge")
	b.RecordFailure("enrichment_challenge")
	assert.Equal(t, []string{"enrichment_challenge"}, trips)
}

func TestClassBreaker_ZeroThresholdUsesDefault(t *testing.T) {
	b := NewClassBreaker(0)
	b.RecordFailure("x")
	assert.True(t, b.IsTripped("x"))
}
