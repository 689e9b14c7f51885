package notify

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fentz26/tripassist/internal/models"
	"github.com/fentz26/tripassist/internal/sessionstore"
)

func TestDirWatcher_DeliversForeignWrites(t *testing.T) {
	dir := t.TempDir()
	local, err := sessionstore.NewFileStore(dir)
	require.NoError(t, err)
	// a second store over the same directory plays the other process
	remote, err := sessionstore.NewFileStore(dir)
	require.NoError(t, err)

	hub := NewHub()
	w, err := NewDirWatcher(dir, hub, local)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = w.Run(ctx) }()

	ch, unsubscribe := hub.Subscribe("abc")
	defer unsubscribe()

	require.NoError(t, remote.Create(ctx, "abc"))
	select {
	case r := <-ch:
		t.Fatalf("pending write must not wake listeners, got %v", r)
	case <-time.After(100 * time.Millisecond):
	}

	itinerary := json.RawMessage(`{"destination":"Oslo","days":[]}`)
	require.NoError(t, remote.Complete(ctx, "abc", itinerary))

	r := receive(t, ch)
	assert.Equal(t, models.SessionStatusCompleted, r.Status)
	assert.JSONEq(t, string(itinerary), string(r.Itinerary))
}
