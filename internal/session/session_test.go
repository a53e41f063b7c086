package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewSessionIsLoading(t *testing.T) {
	s := New()
	assert.False(t, s.ModelReady())
	assert.Empty(t, s.LastQuestion())
	assert.Equal(t, Status{Text: "Loading", Indicator: IndicatorLoading}, s.Status())
	assert.Zero(t, s.Pending())
}

func TestReadyIsSticky(t *testing.T) {
	s := New()
	s.MarkReady()
	s.Progress("Downloading model: 40%")
	s.Failed()
	assert.True(t, s.ModelReady())
}

func TestAskOverwritesLastQuestion(t *testing.T) {
	s := New()
	s.MarkReady()

	s.Ask("Where does he work?")
	s.Ask("What did he study?")
	assert.Equal(t, "What did he study?", s.LastQuestion())
	assert.Equal(t, 2, s.Pending())
	assert.Equal(t, IndicatorWorking, s.Status().Indicator)

	s.Answered()
	assert.Equal(t, 1, s.Pending())
	assert.Equal(t, Status{Text: "Ready", Indicator: IndicatorReady}, s.Status())
}

func TestFailedDependsOnLoadState(t *testing.T) {
	loading := New()
	loading.Failed()
	assert.Equal(t, IndicatorError, loading.Status().Indicator)
	assert.False(t, loading.ModelReady())

	ready := New()
	ready.MarkReady()
	ready.Ask("q")
	ready.Failed()
	assert.Equal(t, IndicatorReady, ready.Status().Indicator)
	assert.Zero(t, ready.Pending())
}

func TestAnsweredNeverGoesNegative(t *testing.T) {
	s := New()
	s.Answered()
	assert.Zero(t, s.Pending())
}

func TestIndicatorString(t *testing.T) {
	assert.Equal(t, "loading", IndicatorLoading.String())
	assert.Equal(t, "working", IndicatorWorking.String())
	assert.Equal(t, "ready", IndicatorReady.String())
	assert.Equal(t, "error", IndicatorError.String())
	assert.Equal(t, "unknown", Indicator(9).String())
}
