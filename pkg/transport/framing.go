package transport

import (
	"github.com/iClaustron/iclaustron-sub000/pkg/icerr"
)

// Bit layout of word 0 (spec §3.7).
const (
	bitByteOrderLow  = 0
	bitFragmentation = 1
	bitMessageIDFlag = 2
	bitChecksumFlag  = 4
	priorityShift    = 5
	priorityMask     = 0x3
	totalSizeShift   = 8
	totalSizeMask    = 0xFFFF
	mainSizeShift    = 26
	mainSizeMask     = 0x1F
	bitByteOrderB1   = 7
	bitByteOrderB2   = 24
	bitByteOrderHigh = 31

	maxMainWords = 25
	maxSegments  = 3
)

// Header is the framing header of spec §3.7: three mandatory words plus an
// optional message-id word when negotiated on the link.
type Header struct {
	TotalWords    int // total size in 32-bit words, including header
	MainWords     int // main-part size in words, <= maxMainWords
	Fragmented    bool
	HasMessageID  bool
	HasChecksum   bool
	Priority      uint32
	MessageNumber uint32 // bits 0-19 of word 1
	TraceNumber   uint32 // bits 20-25 of word 1
	SegmentCount  int    // bits 26-27 of word 1, <= maxSegments
	SenderModule  uint16
	ReceiverModule uint16
	MessageID     uint32 // optional word 3
}

// localByteOrderBit is the value this host writes into each of word 0's
// four byte-order marker bits (0, 7, 24, 31); Go's binary.BigEndian
// packing below is a fixed choice so this is always 1, but the field
// stays named for reference against the marker on ingress.
const localByteOrderBit = 1

// EncodeMessage frames one message per spec §3.7: header, main payload,
// segment-length table, segment payloads, optional checksum word. Segments
// longer than maxSegments entries are a caller error and return
// icerr.ProtocolError.
func EncodeMessage(h Header, main []uint32, segments [][]uint32, withChecksum bool) ([]uint32, error) {
	if len(main) > maxMainWords {
		return nil, icerr.New(icerr.ProtocolError, "main part %d words exceeds maximum %d", len(main), maxMainWords)
	}
	if len(segments) > maxSegments {
		return nil, icerr.New(icerr.ProtocolError, "%d segments exceeds maximum %d", len(segments), maxSegments)
	}

	headerWords := 3
	if h.HasMessageID {
		headerWords++
	}
	segWordCount := 0
	for _, seg := range segments {
		segWordCount += len(seg)
	}
	total := headerWords + len(main) + len(segments) + segWordCount
	if withChecksum {
		total++
	}
	if total > totalSizeMask {
		return nil, icerr.New(icerr.ProtocolError, "message of %d words exceeds wire size field", total)
	}

	word0 := uint32(localByteOrderBit) << bitByteOrderLow
	word0 |= uint32(localByteOrderBit) << bitByteOrderB1
	word0 |= uint32(localByteOrderBit) << bitByteOrderB2
	word0 |= uint32(localByteOrderBit) << bitByteOrderHigh
	if h.Fragmented {
		word0 |= 1 << bitFragmentation
	}
	if h.HasMessageID {
		word0 |= 1 << bitMessageIDFlag
	}
	if withChecksum {
		word0 |= 1 << bitChecksumFlag
	}
	word0 |= (h.Priority & priorityMask) << priorityShift
	word0 |= uint32(total&totalSizeMask) << totalSizeShift
	word0 |= uint32(len(main)&mainSizeMask) << mainSizeShift

	word1 := h.MessageNumber & 0xFFFFF
	word1 |= (h.TraceNumber & 0x3F) << 20
	word1 |= uint32(len(segments)&0x3) << 26

	word2 := uint32(h.SenderModule) | uint32(h.ReceiverModule)<<16

	words := make([]uint32, 0, total)
	words = append(words, word0, word1, word2)
	if h.HasMessageID {
		words = append(words, h.MessageID)
	}
	words = append(words, main...)
	for _, seg := range segments {
		words = append(words, uint32(len(seg)))
	}
	for _, seg := range segments {
		words = append(words, seg...)
	}
	if withChecksum {
		words = append(words, xorAll(words))
	}
	return words, nil
}

// DecodeMessage reverses EncodeMessage. It normalizes byte order on ingress
// if the low bit of word 0 disagrees with this host's marker, and verifies
// the checksum word when the checksum-present bit is set.
func DecodeMessage(words []uint32) (Header, []uint32, [][]uint32, error) {
	if len(words) < 3 {
		return Header{}, nil, nil, icerr.New(icerr.ProtocolError, "message shorter than the mandatory 3-word header")
	}

	word0 := words[0]
	if word0&1 != localByteOrderBit {
		words = swapByteOrder(words)
		word0 = words[0]
	}

	total := int((word0 >> totalSizeShift) & totalSizeMask)
	mainWords := int((word0 >> mainSizeShift) & mainSizeMask)
	if total > len(words) {
		return Header{}, nil, nil, icerr.New(icerr.ProtocolError, "declared size %d exceeds %d available words", total, len(words))
	}
	words = words[:total]

	h := Header{
		TotalWords:   total,
		MainWords:    mainWords,
		Fragmented:   word0&(1<<bitFragmentation) != 0,
		HasMessageID: word0&(1<<bitMessageIDFlag) != 0,
		HasChecksum:  word0&(1<<bitChecksumFlag) != 0,
		Priority:     (word0 >> priorityShift) & priorityMask,
	}

	word1 := words[1]
	h.MessageNumber = word1 & 0xFFFFF
	h.TraceNumber = (word1 >> 20) & 0x3F
	h.SegmentCount = int((word1 >> 26) & 0x3)

	word2 := words[2]
	h.SenderModule = uint16(word2 & 0xFFFF)
	h.ReceiverModule = uint16(word2 >> 16)

	idx := 3
	if h.HasMessageID {
		if idx >= len(words) {
			return Header{}, nil, nil, icerr.New(icerr.ProtocolError, "truncated before message-id word")
		}
		h.MessageID = words[idx]
		idx++
	}

	if h.HasChecksum {
		want := xorAll(words[:len(words)-1])
		got := words[len(words)-1]
		if want != got {
			return Header{}, nil, nil, icerr.New(icerr.ProtocolError, "checksum mismatch: computed %#x, wire %#x", want, got)
		}
		words = words[:len(words)-1]
	}

	if idx+mainWords > len(words) {
		return Header{}, nil, nil, icerr.New(icerr.ProtocolError, "truncated main part")
	}
	main := append([]uint32(nil), words[idx:idx+mainWords]...)
	idx += mainWords

	segLens := make([]int, h.SegmentCount)
	for i := range segLens {
		if idx >= len(words) {
			return Header{}, nil, nil, icerr.New(icerr.ProtocolError, "truncated segment-length table")
		}
		segLens[i] = int(words[idx])
		idx++
	}

	segments := make([][]uint32, h.SegmentCount)
	for i, n := range segLens {
		if idx+n > len(words) {
			return Header{}, nil, nil, icerr.New(icerr.ProtocolError, "truncated segment %d payload", i)
		}
		segments[i] = append([]uint32(nil), words[idx:idx+n]...)
		idx += n
	}

	return h, main, segments, nil
}

// bytesToWords unpacks a big-endian byte slice (length divisible by 4)
// into 32-bit words, the inverse of wordsToBytes in sendpath.go.
func bytesToWords(b []byte) []uint32 {
	out := make([]uint32, len(b)/4)
	for i := range out {
		out[i] = uint32(b[i*4])<<24 | uint32(b[i*4+1])<<16 | uint32(b[i*4+2])<<8 | uint32(b[i*4+3])
	}
	return out
}

// headerTotal extracts the total-word count from a possibly foreign-endian
// word 0, without mutating the caller's copy (spec §4.F.4 step 2).
func headerTotal(word0 uint32) int {
	if word0&1 != localByteOrderBit {
		word0 = swapWord(word0)
	}
	return int((word0 >> totalSizeShift) & totalSizeMask)
}

func swapWord(w uint32) uint32 {
	return (w>>24)&0xFF | (w>>8)&0xFF00 | (w<<8)&0xFF0000 | (w<<24)&0xFF000000
}

func xorAll(words []uint32) uint32 {
	var x uint32
	for _, w := range words {
		x ^= w
	}
	return x
}

// swapByteOrder reverses the byte order of every word; used when the
// sender's marker disagrees with this host's (spec §4.F.4 step 2).
func swapByteOrder(words []uint32) []uint32 {
	out := make([]uint32, len(words))
	for i, w := range words {
		out[i] = swapWord(w)
	}
	return out
}
