package mock

import (
	"context"
	"errors"
	"testing"

	"github.com/MeKo-Tech/cardrectify/internal/detector"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScriptReplaysAndRepeatsLast(t *testing.T) {
	boom := errors.New("boom")
	d := New(Step{Result: detector.Result{Confidence: 0.9}}, Step{Err: boom})

	res, err := d.Detect(context.Background(), nil)
	require.NoError(t, err)
	assert.InDelta(t, 0.9, res.Confidence, 1e-12)

	for range 3 {
		_, err = d.Detect(context.Background(), nil)
		assert.ErrorIs(t, err, boom)
	}
	assert.Equal(t, 4, d.Calls())
}

func TestEmptyScriptIsNoCard(t *testing.T) {
	_, err := New().Detect(context.Background(), nil)
	assert.ErrorIs(t, err, detector.ErrNoCard)
}

func TestReturningAndClose(t *testing.T) {
	d := Returning(detector.Result{Confidence: 0.7})
	res, err := d.Detect(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, Backend, res.Backend)

	assert.False(t, d.Closed())
	require.NoError(t, detector.Close(d))
	assert.True(t, d.Closed())
}

func TestFailingHonoursContext(t *testing.T) {
	d := Failing(detector.ErrNoCard)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := d.Detect(ctx, nil)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, d.Calls())
}
