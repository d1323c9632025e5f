package remote

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type pingFunc func(context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

func TestMonitor_Check(t *testing.T) {
	var fail bool
	m := NewMonitor(pingFunc(func(context.Context) error {
		if fail {
			return errors.New("down")
		}
		return nil
	}), time.Second, time.Second, nil)

	assert.False(t, m.Online())
	assert.True(t, m.Check(context.Background()))
	assert.True(t, m.Online())

	fail = true
	assert.False(t, m.Check(context.Background()))
	assert.False(t, m.Online())
}
