package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackstack/hack/pkg/types"
)

// serveUnix runs handler on a unix socket until the test ends.
func serveUnix(t *testing.T, handler http.Handler) string {
	t.Helper()
	socket := filepath.Join(t.TempDir(), "hackd.sock")
	listener, err := net.Listen("unix", socket)
	require.NoError(t, err)

	server := &http.Server{Handler: handler}
	go server.Serve(listener)
	t.Cleanup(func() { server.Close() })
	return socket
}

func TestStatusOverUnixSocket(t *testing.T) {
	socket := serveUnix(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/status", r.URL.Path)
		json.NewEncoder(w).Encode(types.StatusSnapshot{Version: 7})
	}))

	snap, err := New(socket).Status(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, uint64(7), snap.Version)
}

func TestStatusIncludeAll(t *testing.T) {
	socket := serveUnix(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "true", r.URL.Query().Get("all"))
		json.NewEncoder(w).Encode(types.StatusSnapshot{Version: 1})
	}))

	_, err := New(socket).Status(context.Background(), true)
	require.NoError(t, err)
}

func TestErrorEnvelopeBecomesCodedError(t *testing.T) {
	socket := serveUnix(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, `{"code":"unknown-token","message":"no such token"}`)
	}))

	err := New(socket).RevokeToken(context.Background(), "missing")
	require.Error(t, err)
	assert.Equal(t, types.CodeUnknownToken, types.CodeOf(err))
}

func TestPingFailsWhenSocketAbsent(t *testing.T) {
	c := New(filepath.Join(t.TempDir(), "nope.sock"))
	assert.False(t, c.Ping(context.Background(), 200*time.Millisecond))
}

func TestPingSucceeds(t *testing.T) {
	socket := serveUnix(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(types.StatusSnapshot{Version: 1})
	}))

	assert.True(t, New(socket).Ping(context.Background(), time.Second))
}

func TestMintToken(t *testing.T) {
	socket := serveUnix(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "ci", req["label"])
		assert.Equal(t, "write", req["scope"])

		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(MintedToken{
			Token:  &types.GatewayToken{ID: "t1", Scope: types.ScopeWrite},
			Secret: "s3cret",
		})
	}))

	minted, err := New(socket).MintToken(context.Background(), "ci", types.ScopeWrite, "")
	require.NoError(t, err)
	assert.Equal(t, "t1", minted.Token.ID)
	assert.Equal(t, "s3cret", minted.Secret)
}
