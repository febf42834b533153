package valkeytest

import (
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"
	"github.com/valkey-io/valkey-go"
)

// Start runs an in-process Valkey compatible server for the duration of the
// test and returns a client connected to it together with the server handle,
// which tests use to move the clock forward.
func Start(t *testing.T) (valkey.Client, *miniredis.Miniredis) {
	t.Helper()

	srv := miniredis.RunT(t)

	// miniredis does not speak the client tracking protocol.
	client, err := valkey.NewClient(valkey.ClientOption{
		InitAddress:  []string{srv.Addr()},
		DisableCache: true,
	})
	require.NoError(t, err, "initialising a valkey client")
	t.Cleanup(client.Close)

	return client, srv
}
