package transport

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeMessageRoundTrip(t *testing.T) {
	h := Header{
		MessageNumber:  42,
		TraceNumber:    3,
		SenderModule:   7,
		ReceiverModule: 9,
	}
	main := []uint32{1, 2, 3}
	segments := [][]uint32{{10, 11}, {20}}

	words, err := EncodeMessage(h, main, segments, true)
	require.NoError(t, err)

	gotHeader, gotMain, gotSegments, err := DecodeMessage(words)
	require.NoError(t, err)

	assert.Equal(t, h.MessageNumber, gotHeader.MessageNumber)
	assert.Equal(t, h.TraceNumber, gotHeader.TraceNumber)
	assert.Equal(t, h.SenderModule, gotHeader.SenderModule)
	assert.Equal(t, h.ReceiverModule, gotHeader.ReceiverModule)
	assert.True(t, gotHeader.HasChecksum)
	assert.Equal(t, 2, gotHeader.SegmentCount)
	assert.Equal(t, main, gotMain)
	assert.Equal(t, segments, gotSegments)
}

func TestDecodeMessageRejectsBadChecksum(t *testing.T) {
	h := Header{MessageNumber: 1}
	words, err := EncodeMessage(h, []uint32{1}, nil, true)
	require.NoError(t, err)

	words[len(words)-1] ^= 0xFF // corrupt the checksum word

	_, _, _, err = DecodeMessage(words)
	require.Error(t, err)
}

func TestDecodeMessageNormalizesForeignByteOrder(t *testing.T) {
	h := Header{MessageNumber: 5, SenderModule: 1, ReceiverModule: 2}
	words, err := EncodeMessage(h, []uint32{99}, nil, false)
	require.NoError(t, err)

	// A sender of the other byte order writes the other marker value, then
	// every word arrives byte-swapped.
	words[0] &^= 1<<bitByteOrderLow | 1<<bitByteOrderB1 | 1<<bitByteOrderB2 | 1<<bitByteOrderHigh
	swapped := make([]uint32, len(words))
	for i, w := range words {
		swapped[i] = swapWord(w)
	}

	gotHeader, gotMain, _, err := DecodeMessage(swapped)
	require.NoError(t, err)
	assert.Equal(t, h.MessageNumber, gotHeader.MessageNumber)
	assert.Equal(t, []uint32{99}, gotMain)
}

func TestEncodeMessageRejectsOversizedMain(t *testing.T) {
	main := make([]uint32, maxMainWords+1)
	_, err := EncodeMessage(Header{}, main, nil, false)
	require.Error(t, err)
}

func TestEncodeMessageRejectsTooManySegments(t *testing.T) {
	segments := make([][]uint32, maxSegments+1)
	_, err := EncodeMessage(Header{}, nil, segments, false)
	require.Error(t, err)
}
