package server

import (
	"context"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/noirtty/noirtty/internal/config"
	"github.com/noirtty/noirtty/internal/protocol"
	"github.com/noirtty/noirtty/internal/transport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	if _, err := os.Stat("/bin/sh"); err != nil {
		t.Skip("/bin/sh not available")
	}
	cfg := config.Default()
	cfg.HTTPAddr = "127.0.0.1:0"
	cfg.TCPAddr = "127.0.0.1:0"
	cfg.QUICAddr = "127.0.0.1:0"
	cfg.Shell = "/bin/sh"
	cfg.Env = []string{"PS1=$ "}
	return cfg
}

func TestServer_AllSubstratesShareSessions(t *testing.T) {
	srv := New(testConfig(t))
	require.NoError(t, srv.Listen())
	addrs := srv.Addrs()
	require.Len(t, addrs, 3)

	ctx, cancel := context.WithCancel(context.Background())
	served := make(chan error, 1)
	go func() { served <- srv.Serve(ctx) }()

	endpoints := []string{
		"ws://" + addrs["http"].String(),
		"tcp://" + addrs["tcp"].String(),
		"quic://" + addrs["quic"].String(),
	}
	var channels []*transport.Channel
	for _, ep := range endpoints {
		ch, err := transport.Connect(context.Background(), ep, "shared", 40, 10, transport.Options{Insecure: true})
		require.NoError(t, err, ep)
		defer ch.Close()
		channels = append(channels, ch)
	}
	assert.Equal(t, 1, srv.Registry().Len())

	require.NoError(t, channels[1].Send(&protocol.Key{Data: []byte("echo shared\r")}))
	for i, ch := range channels {
		require.Eventually(t, func() bool {
			for {
				msg, ok := ch.TryReceive()
				if !ok {
					return false
				}
				if f, isFrame := msg.(*protocol.Frame); isFrame && strings.Contains(f.Snapshot().Text(), "\nshared") {
					return true
				}
			}
		}, 10*time.Second, 20*time.Millisecond, endpoints[i])
	}

	cancel()
	select {
	case err := <-served:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("Serve did not return")
	}
	assert.Equal(t, 0, srv.Registry().Len())
	for _, ch := range channels {
		select {
		case <-ch.Done():
		case <-time.After(5 * time.Second):
			t.Fatal("viewer still connected after shutdown")
		}
	}
}

func TestServer_Routes(t *testing.T) {
	srv := New(testConfig(t))

	for _, path := range []string{"/health", "/v1/sessions", "/swagger/doc.json"} {
		resp, err := srv.App().Test(httptest.NewRequest("GET", path, nil))
		require.NoError(t, err, path)
		assert.Equal(t, 200, resp.StatusCode, path)
	}
}

func TestServer_ListenFailureReleasesAddresses(t *testing.T) {
	cfg := testConfig(t)
	cfg.QUICAddr = ""
	cfg.TCPAddr = "not-an-address"

	srv := New(cfg)
	require.Error(t, srv.Listen())

	// The http address bound before the failure is released again.
	require.NotNil(t, srv.httpLn)
	_, err := srv.httpLn.Accept()
	assert.Error(t, err)
}
