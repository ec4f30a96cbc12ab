package transport

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pipeSendNode(t *testing.T, conn net.Conn, pool *Pool) *SendNode {
	t.Helper()
	n := NewSendNode(1, 1, 2, Endpoint{Hostname: "a", Port: 1}, Endpoint{Hostname: "b", Port: 2}, true, pool, time.Millisecond)
	n.conn = conn
	n.state = StateLoggedIn
	return n
}

func TestEnqueueDeliversMessageThroughReceiveWorker(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	pool := NewPool()
	sender := pipeSendNode(t, client, pool)

	thread := NewApplicationThread(0)
	rw := NewReceiveWorker(pool, newAdaptiveRegistry())
	rw.BindBucket(0, thread)
	rw.Attach(&ReceiveNode{Conn: server})

	h := Header{MessageNumber: 7, ReceiverModule: 0}
	words, err := EncodeMessage(h, []uint32{123}, nil, false)
	require.NoError(t, err)

	page := pool.Get()
	copy(page.Words[:], words)
	page.Used = len(words)

	require.NoError(t, sender.Enqueue([]*Page{page}, true))

	select {
	case <-thread.signal:
	case <-time.After(time.Second):
		t.Fatal("receive worker never signalled the application thread")
	}

	thread.mu.Lock()
	defer thread.mu.Unlock()
	require.Len(t, thread.queue, 1)
	assert.Equal(t, uint32(7), thread.queue[0].Header.MessageNumber)
	assert.Equal(t, []uint32{123}, thread.queue[0].Main)
}

func TestEnqueueOnNodeDownReturnsError(t *testing.T) {
	pool := NewPool()
	n := NewSendNode(1, 1, 2, Endpoint{}, Endpoint{}, true, pool, time.Millisecond)
	n.state = StateNodeDown

	page := pool.Get()
	page.Used = 3
	err := n.Enqueue([]*Page{page}, true)
	assert.Error(t, err)
}

func TestTakeUpToRespectsBufferAndByteLimits(t *testing.T) {
	queue := make([]*Page, 5)
	for i := range queue {
		p := &Page{Used: 10}
		queue[i] = p
	}

	head, rest := takeUpTo(queue, 2, 1_000_000)
	assert.Len(t, head, 2)
	assert.Len(t, rest, 3)
}
