package upstream

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTracker_Record(t *testing.T) {
	tr := NewTracker("registrar")
	assert.Equal(t, "registrar", tr.Name())
	assert.True(t, tr.Health().Healthy)

	tr.Record(errors.New("status 502"))
	h := tr.Health()
	assert.False(t, h.Healthy)
	assert.Equal(t, "status 502", h.LastError)
	assert.Equal(t, 1, h.Failures)

	tr.Record(nil)
	h = tr.Health()
	assert.True(t, h.Healthy)
	assert.Empty(t, h.LastError)
	assert.Equal(t, 1, h.Failures)
}

func TestRegistry_Unhealthy(t *testing.T) {
	reg := NewRegistry()
	a, b, c := NewTracker("tensor"), NewTracker("registrar"), NewTracker("solana-rpc")
	reg.Register(a)
	reg.Register(b)
	reg.Register(c)

	assert.Empty(t, reg.Unhealthy())

	a.Record(errors.New("boom"))
	b.Record(errors.New("boom"))
	assert.Equal(t, []string{"registrar", "tensor"}, reg.Unhealthy())
	assert.Len(t, reg.Snapshot(), 3)
}
