package core_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ravel-lang/ravel/core"
)

func TestRegisterScalarRoundTrips(t *testing.T) {
	var r core.Register

	core.RegisterSet(&r, int64(-7))
	assert.Equal(t, int64(-7), core.RegisterGet[int64](&r))

	core.RegisterSet(&r, uint64(42))
	assert.Equal(t, uint64(42), core.RegisterGet[uint64](&r))

	core.RegisterSet(&r, float32(3.5))
	assert.Equal(t, float32(3.5), core.RegisterGet[float32](&r))

	core.RegisterSet(&r, true)
	assert.True(t, core.RegisterGet[bool](&r))
	core.RegisterSet(&r, false)
	assert.False(t, core.RegisterGet[bool](&r))
}

func TestRegisterIncDec(t *testing.T) {
	var r core.Register
	core.RegisterSet(&r, uint64(10))
	r.Inc(5)
	assert.Equal(t, uint64(15), core.RegisterGet[uint64](&r))
	r.Dec(3)
	assert.Equal(t, uint64(12), core.RegisterGet[uint64](&r))
}
