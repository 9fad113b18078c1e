package main

import (
	"context"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shopping-lists/internal/shopping"
	"shopping-lists/internal/storage"
)

func TestRunSavesSnapshotWhenListenFails(t *testing.T) {
	ctx := context.Background()
	a := newTestApp(t, storage.BackendMemory)
	a.cfg.MemorySnapshotPath = filepath.Join(t.TempDir(), "data", "snap.json")

	store, err := a.openStore()
	require.NoError(t, err)
	_, err = store.CreateUser(ctx, shopping.NewUser{Username: "ana", Password: "hash"})
	require.NoError(t, err)

	// Hold the port so the server cannot bind it.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	srv := &http.Server{Addr: ln.Addr().String(), Handler: http.NotFoundHandler()}
	err = a.run(srv, store, make(chan os.Signal))
	require.Error(t, err)
	assert.ErrorContains(t, err, "server failed")

	restarted, err := a.openStore()
	require.NoError(t, err)
	u, err := restarted.GetUserByUsername(ctx, "ana")
	require.NoError(t, err)
	assert.NotNil(t, u)
}

func TestRunSavesSnapshotOnQuit(t *testing.T) {
	a := newTestApp(t, storage.BackendMemory)
	a.cfg.MemorySnapshotPath = filepath.Join(t.TempDir(), "snap.json")

	store, err := a.openStore()
	require.NoError(t, err)

	quit := make(chan os.Signal, 1)
	quit <- os.Interrupt
	srv := &http.Server{Addr: "127.0.0.1:0", Handler: http.NotFoundHandler(), ReadHeaderTimeout: time.Second}
	require.NoError(t, a.run(srv, store, quit))

	_, err = os.Stat(a.cfg.MemorySnapshotPath)
	assert.NoError(t, err)
}
