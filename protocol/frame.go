// Package protocol implements the framed command protocol spoken between
// the RC firmware and host tools. It is the Klipper wire format: VLQ encoded
// arguments inside CRC protected blocks.
package protocol

import "errors"

// Block layout: len seq payload... crc_hi crc_lo sync
const (
	MessageHeaderSize  = 2
	MessageTrailerSize = 3
	MessageLengthMin   = MessageHeaderSize + MessageTrailerSize
	MessageLengthMax   = 64
	MessagePositionLen = 0
	MessagePositionSeq = 1
	MessageTrailerCRC  = 3
	MessageTrailerSync = 1
	MessageValueSync   = 0x7E
	MessageDest        = 0x10
	MessageSeqMask     = 0x0F

	// MessageMax bounds a ScratchOutput; it holds several blocks
	MessageMax = 256
)

var ErrMessageTooLong = errors.New("message exceeds maximum block length")

// Message is one decoded block
type Message struct {
	Sequence uint8
	Payload  []byte // Data between header and trailer
}

// NextSequence returns the sequence that follows seq
func NextSequence(seq uint8) uint8 {
	return ((seq + 1) & MessageSeqMask) | MessageDest
}

// EncodeBlock appends a complete block carrying payload to output
func EncodeBlock(output OutputBuffer, seq uint8, payload []byte) error {
	total := MessageHeaderSize + len(payload) + MessageTrailerSize
	if total > MessageLengthMax {
		return ErrMessageTooLong
	}
	start := output.CurPosition()
	output.Output([]byte{uint8(total), seq})
	output.Output(payload)
	crc := CRC16(output.DataSince(start))
	output.Output([]byte{uint8(crc >> 8), uint8(crc), MessageValueSync})
	return nil
}

// scanResult tells the caller what scanBlock found
type scanResult uint8

const (
	scanNeedMore scanResult = iota // Incomplete block, wait for more data
	scanFound                      // A valid block was returned
	scanCorrupt                    // Bad length, sync or CRC; resynchronise
)

// scanBlock looks for one block at the start of data. Leading sync bytes
// must already be stripped. On scanFound, n is the block length.
func scanBlock(data []byte) (msg Message, n int, result scanResult) {
	if len(data) < MessageLengthMin {
		return msg, 0, scanNeedMore
	}

	msgLen := int(data[MessagePositionLen])
	if msgLen < MessageLengthMin || msgLen > MessageLengthMax {
		return msg, 0, scanCorrupt
	}
	if len(data) < msgLen {
		return msg, 0, scanNeedMore
	}
	if data[msgLen-MessageTrailerSync] != MessageValueSync {
		return msg, 0, scanCorrupt
	}

	frameCRC := uint16(data[msgLen-MessageTrailerCRC])<<8 |
		uint16(data[msgLen-MessageTrailerCRC+1])
	if frameCRC != CRC16(data[:msgLen-MessageTrailerSize]) {
		return msg, 0, scanCorrupt
	}

	msg.Sequence = data[MessagePositionSeq]
	msg.Payload = data[MessageHeaderSize : msgLen-MessageTrailerSize]
	return msg, msgLen, scanFound
}

// skipToSync drops everything up to and including the next sync byte.
// ok is false when no sync byte was found.
func skipToSync(data []byte) (rest []byte, ok bool) {
	for i, b := range data {
		if b == MessageValueSync {
			return data[i+1:], true
		}
	}
	return nil, false
}
