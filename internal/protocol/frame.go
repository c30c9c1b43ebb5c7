// Package protocol implements the gate and lobby wire framing (spec
// §4.A): a length-prefixed binary envelope around an opcode and a
// payload, plus the full-width text encoding bridge some titles require.
package protocol

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/iwango/iwango-server/internal/constants"
)

// GateFrame is one decoded gate-protocol frame: len(2)|opcode(2)|payload.
type GateFrame struct {
	Opcode  uint16
	Payload []byte
}

// ReadGateFrame reads one frame from r into buf, returning a GateFrame
// whose Payload aliases buf. buf must be at least constants.MaxFrameSize.
func ReadGateFrame(r io.Reader, buf []byte) (GateFrame, error) {
	var header [4]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return GateFrame{}, fmt.Errorf("reading gate frame header: %w", err)
	}

	totalLen := int(binary.LittleEndian.Uint16(header[:2]))
	opcode := binary.LittleEndian.Uint16(header[2:4])

	if totalLen < 2 {
		return GateFrame{}, fmt.Errorf("malformed gate frame: length %d too small", totalLen)
	}
	payloadLen := totalLen - 2
	if payloadLen > constants.MaxFrameSize {
		return GateFrame{}, fmt.Errorf("malformed gate frame: payload %d exceeds limit %d", payloadLen, constants.MaxFrameSize)
	}
	if payloadLen > len(buf) {
		return GateFrame{}, fmt.Errorf("malformed gate frame: payload %d exceeds buffer %d", payloadLen, len(buf))
	}

	payload := buf[:payloadLen]
	if payloadLen > 0 {
		if _, err := io.ReadFull(r, payload); err != nil {
			return GateFrame{}, fmt.Errorf("reading gate frame payload: %w", err)
		}
	}

	return GateFrame{Opcode: opcode, Payload: payload}, nil
}

// WriteGateFrame writes opcode and payload as one gate frame to w.
func WriteGateFrame(w io.Writer, opcode uint16, payload []byte) error {
	if len(payload) > constants.MaxFrameSize {
		return fmt.Errorf("gate frame payload %d exceeds limit %d", len(payload), constants.MaxFrameSize)
	}

	buf := make([]byte, 4+len(payload))
	binary.LittleEndian.PutUint16(buf[0:2], uint16(2+len(payload)))
	binary.LittleEndian.PutUint16(buf[2:4], opcode)
	copy(buf[4:], payload)

	if _, err := w.Write(buf); err != nil {
		return fmt.Errorf("writing gate frame: %w", err)
	}
	return nil
}

// LobbyFrame is one decoded lobby-protocol frame:
// len(2)|reserved(2)|seq(2)|reserved(2)|opcode(2)|payload.
type LobbyFrame struct {
	Seq     uint16
	Opcode  uint16
	Payload []byte
}

// ReadLobbyFrame reads one frame from r into buf.
func ReadLobbyFrame(r io.Reader, buf []byte) (LobbyFrame, error) {
	var header [10]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return LobbyFrame{}, fmt.Errorf("reading lobby frame header: %w", err)
	}

	totalLen := int(binary.LittleEndian.Uint16(header[0:2]))
	seq := binary.LittleEndian.Uint16(header[4:6])
	opcode := binary.LittleEndian.Uint16(header[8:10])

	if totalLen < 8 {
		return LobbyFrame{}, fmt.Errorf("malformed lobby frame: length %d too small", totalLen)
	}
	payloadLen := totalLen - 8
	if payloadLen > constants.MaxFrameSize {
		return LobbyFrame{}, fmt.Errorf("malformed lobby frame: payload %d exceeds limit %d", payloadLen, constants.MaxFrameSize)
	}
	if payloadLen > len(buf) {
		return LobbyFrame{}, fmt.Errorf("malformed lobby frame: payload %d exceeds buffer %d", payloadLen, len(buf))
	}

	payload := buf[:payloadLen]
	if payloadLen > 0 {
		if _, err := io.ReadFull(r, payload); err != nil {
			return LobbyFrame{}, fmt.Errorf("reading lobby frame payload: %w", err)
		}
	}

	return LobbyFrame{Seq: seq, Opcode: opcode, Payload: payload}, nil
}

// WriteLobbyFrame writes one lobby frame to w. seq is the caller's
// monotonically increasing send sequence number; reserved fields are
// zero, matching the original protocol's unused halves.
func WriteLobbyFrame(w io.Writer, seq, opcode uint16, payload []byte) error {
	if len(payload) > constants.MaxFrameSize {
		return fmt.Errorf("lobby frame payload %d exceeds limit %d", len(payload), constants.MaxFrameSize)
	}

	buf := make([]byte, 10+len(payload))
	binary.LittleEndian.PutUint16(buf[0:2], uint16(8+len(payload)))
	binary.LittleEndian.PutUint16(buf[2:4], 0)
	binary.LittleEndian.PutUint16(buf[4:6], seq)
	binary.LittleEndian.PutUint16(buf[6:8], 0)
	binary.LittleEndian.PutUint16(buf[8:10], opcode)
	copy(buf[10:], payload)

	if _, err := w.Write(buf); err != nil {
		return fmt.Errorf("writing lobby frame: %w", err)
	}
	return nil
}
