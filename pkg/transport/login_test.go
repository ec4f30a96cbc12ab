package transport

import (
	"bufio"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClientServerLoginRoundTrip(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	type serverResult struct {
		myID, otherID uint32
		err           error
	}
	resultCh := make(chan serverResult, 1)
	go func() {
		myID, otherID, err := serverLogin(server)
		resultCh <- serverResult{myID, otherID, err}
	}()

	require.NoError(t, clientLogin(client, 3, 2))

	select {
	case res := <-resultCh:
		require.NoError(t, res.err)
		assert.Equal(t, uint32(2), res.myID)
		assert.Equal(t, uint32(3), res.otherID)
	case <-time.After(time.Second):
		t.Fatal("server login did not complete")
	}
}

func TestClientLoginRejectsBadReply(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	go func() {
		r := bufio.NewReader(server)
		r.ReadString('\n') // "ndbd"
		r.ReadString('\n') // "ndbd passwd"
		server.Write([]byte("nope\n"))
	}()

	err := clientLogin(client, 1, 2)
	assert.Error(t, err)
}
