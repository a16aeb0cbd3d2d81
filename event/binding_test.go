package event

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBinding(t *testing.T) {
	d := newTestDispatcher()
	b := Bind(d)
	assert.Same(t, d, b.Dispatcher())

	rec := &recorder{}
	h := rec.handler("bound")

	got, err := b.Subscribe(h, "click")
	require.NoError(t, err)
	assert.Same(t, h, got)

	on, err := b.On("click", func(any) { rec.calls = append(rec.calls, "on") })
	require.NoError(t, err)

	require.NoError(t, d.Publish("click", nil))
	assert.Equal(t, []string{"bound", "on"}, rec.Calls())

	_, err = b.Unsubscribe(h, "click")
	require.NoError(t, err)
	_, err = b.Unsubscribe(on, "click")
	require.NoError(t, err)
	assert.Equal(t, 0, d.Count("click"))

	_, err = b.Subscribe(h, "")
	assert.True(t, IsInvalidArgument(err))
	_, err = b.On("click", nil)
	assert.True(t, IsInvalidArgument(err))
}
