package wstransport

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSendReceiveRoundTrip(t *testing.T) {
	echoed := make(chan struct{})

	server := NewServer(func(ctx context.Context, conn *Transport) {
		buf := make([]byte, 4096)
		n, err := conn.Receive(buf)
		if err != nil {
			return
		}
		_ = conn.Send(buf[:n])
		close(echoed)
	})
	httpServer := httptest.NewServer(server.Handler())
	defer httpServer.Close()

	wsURL := "ws" + strings.TrimPrefix(httpServer.URL, "http")
	client, err := Dial(context.Background(), wsURL)
	require.NoError(t, err)
	defer client.Close()

	require.NoError(t, client.Send([]byte("GET_VERSION")))
	<-echoed

	buf := make([]byte, 4096)
	n, err := client.Receive(buf)
	require.NoError(t, err)
	assert.Equal(t, "GET_VERSION", string(buf[:n]))
}

func TestReceiveRejectsOversizedBuffer(t *testing.T) {
	server := NewServer(func(ctx context.Context, conn *Transport) {
		_ = conn.Send([]byte("this response does not fit in the caller's tiny buffer"))
	})
	httpServer := httptest.NewServer(server.Handler())
	defer httpServer.Close()

	wsURL := "ws" + strings.TrimPrefix(httpServer.URL, "http")
	client, err := Dial(context.Background(), wsURL)
	require.NoError(t, err)
	defer client.Close()

	tiny := make([]byte, 4)
	_, err = client.Receive(tiny)
	require.Error(t, err)
}
