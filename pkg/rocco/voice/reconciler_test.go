package voice

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReconciler_InvalidSpec(t *testing.T) {
	_, err := NewReconciler(newTestManager(&fakeTransport{}), "every now and then", testLogger())
	assert.Error(t, err)
}

func TestReconciler_DropsDeadSessions(t *testing.T) {
	tr := &fakeTransport{}
	m := newTestManager(tr, "a.mp3")
	require.NoError(t, m.Play(context.Background(), "guild", "voice", "user"))
	tr.all()[0].dead.Store(true)

	r, err := NewReconciler(m, "@every 1s", testLogger())
	require.NoError(t, err)
	r.Start()
	defer r.Stop()

	assert.Eventually(t, func() bool {
		_, ok := m.Store().Get("guild")
		return !ok
	}, 5*time.Second, 50*time.Millisecond)
}
