package control

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/example/rnicsim/internal/engine"
)

// maxFrameSize bounds both the length prefix and the encoded payload of a
// single control-channel frame.
const maxFrameSize = 4096

var (
	// ErrFrameTooLarge is returned when an encoded frame, or a peer's declared
	// frame length, falls outside (0, maxFrameSize].
	ErrFrameTooLarge = errors.New("control: frame length outside (0, 4096] bytes")
	// ErrUnknownMsgType is returned when a decoded type byte does not match
	// any known MsgType.
	ErrUnknownMsgType = errors.New("control: unknown message type byte")
)

// qpFixedLen is the byte width of a QPValue's wire-encoded scalar fields, in
// the declared field order, each at its native little-endian width: qp_num
// u32, dest_qp_num u32, lid u16, remote_lid u16, port_num u8,
// qp_access_flags u32, psn u32, remote_psn u32, gid 16B, remote_gid 16B,
// mtu u32, state u8.
const qpFixedLen = 4 + 4 + 2 + 2 + 1 + 4 + 4 + 4 + 16 + 16 + 4 + 1

// msgFixedLen is qpFixedLen plus the type byte, the accept byte, and the
// error_len u32 prefix that precede the variable-length error string.
const msgFixedLen = 1 + qpFixedLen + 1 + 4

// encodeMsg serializes m into a tightly packed frame with no struct padding.
func encodeMsg(m Msg) ([]byte, error) {
	errBytes := []byte(m.Err)
	buf := make([]byte, msgFixedLen, msgFixedLen+len(errBytes))
	buf[0] = byte(m.Type)
	i := 1

	q := &m.QPInfo
	binary.LittleEndian.PutUint32(buf[i:], q.QPNum)
	i += 4
	binary.LittleEndian.PutUint32(buf[i:], q.DestQPNum)
	i += 4
	binary.LittleEndian.PutUint16(buf[i:], q.LID)
	i += 2
	binary.LittleEndian.PutUint16(buf[i:], q.RemoteLID)
	i += 2
	buf[i] = q.PortNum
	i++
	binary.LittleEndian.PutUint32(buf[i:], q.AccessFlags)
	i += 4
	binary.LittleEndian.PutUint32(buf[i:], q.PSN)
	i += 4
	binary.LittleEndian.PutUint32(buf[i:], q.RemotePSN)
	i += 4
	copy(buf[i:], q.GID[:])
	i += 16
	copy(buf[i:], q.RemoteGID[:])
	i += 16
	binary.LittleEndian.PutUint32(buf[i:], q.MTU)
	i += 4
	buf[i] = byte(q.State)
	i++

	if m.Accept {
		buf[i] = 1
	}
	i++

	binary.LittleEndian.PutUint32(buf[i:], uint32(len(errBytes)))
	i += 4

	buf = append(buf, errBytes...)
	if len(buf) > maxFrameSize {
		return nil, ErrFrameTooLarge
	}
	return buf, nil
}

// decodeMsg parses a frame produced by encodeMsg.
func decodeMsg(data []byte) (Msg, error) {
	if len(data) < msgFixedLen {
		return Msg{}, fmt.Errorf("control: truncated frame (%d of %d fixed bytes)", len(data), msgFixedLen)
	}

	var m Msg
	switch MsgType(data[0]) {
	case MsgConnectRequest, MsgConnectResponse, MsgReady, MsgError:
		m.Type = MsgType(data[0])
	default:
		return Msg{}, ErrUnknownMsgType
	}
	i := 1

	q := &m.QPInfo
	q.QPNum = binary.LittleEndian.Uint32(data[i:])
	i += 4
	q.DestQPNum = binary.LittleEndian.Uint32(data[i:])
	i += 4
	q.LID = binary.LittleEndian.Uint16(data[i:])
	i += 2
	q.RemoteLID = binary.LittleEndian.Uint16(data[i:])
	i += 2
	q.PortNum = data[i]
	i++
	q.AccessFlags = binary.LittleEndian.Uint32(data[i:])
	i += 4
	q.PSN = binary.LittleEndian.Uint32(data[i:])
	i += 4
	q.RemotePSN = binary.LittleEndian.Uint32(data[i:])
	i += 4
	copy(q.GID[:], data[i:i+16])
	i += 16
	copy(q.RemoteGID[:], data[i:i+16])
	i += 16
	q.MTU = binary.LittleEndian.Uint32(data[i:])
	i += 4
	q.State = engine.QPState(data[i])
	i++

	m.Accept = data[i] != 0
	i++

	errLen := binary.LittleEndian.Uint32(data[i:])
	i += 4
	if uint32(len(data)-i) < errLen {
		return Msg{}, fmt.Errorf("control: truncated error string (want %d, have %d)", errLen, len(data)-i)
	}
	m.Err = string(data[i : i+int(errLen)])
	return m, nil
}

// writeFrame writes a big-endian length prefix followed by payload. The
// deadline covers the whole write.
func writeFrame(conn net.Conn, payload []byte, deadline time.Time) error {
	if len(payload) == 0 || len(payload) > maxFrameSize {
		return ErrFrameTooLarge
	}
	if !deadline.IsZero() {
		if err := conn.SetWriteDeadline(deadline); err != nil {
			return err
		}
	}
	var header [4]byte
	binary.BigEndian.PutUint32(header[:], uint32(len(payload)))
	if _, err := conn.Write(header[:]); err != nil {
		return err
	}
	_, err := conn.Write(payload)
	return err
}

// readFrame reads a big-endian length prefix and the payload it announces.
// The deadline spans both the header and the body read.
func readFrame(conn net.Conn, deadline time.Time) ([]byte, error) {
	if !deadline.IsZero() {
		if err := conn.SetReadDeadline(deadline); err != nil {
			return nil, err
		}
	}
	var header [4]byte
	if _, err := io.ReadFull(conn, header[:]); err != nil {
		return nil, err
	}
	length := binary.BigEndian.Uint32(header[:])
	if length == 0 || length > maxFrameSize {
		return nil, ErrFrameTooLarge
	}
	payload := make([]byte, length)
	if _, err := io.ReadFull(conn, payload); err != nil {
		return nil, err
	}
	return payload, nil
}

// sendMessage encodes and writes m as a single framed write.
func sendMessage(conn net.Conn, m Msg, timeout time.Duration) error {
	payload, err := encodeMsg(m)
	if err != nil {
		return err
	}
	var deadline time.Time
	if timeout > 0 {
		deadline = time.Now().Add(timeout)
	}
	return writeFrame(conn, payload, deadline)
}

// receiveMessage reads and decodes a single frame.
func receiveMessage(conn net.Conn, timeout time.Duration) (Msg, error) {
	var deadline time.Time
	if timeout > 0 {
		deadline = time.Now().Add(timeout)
	}
	payload, err := readFrame(conn, deadline)
	if err != nil {
		return Msg{}, err
	}
	return decodeMsg(payload)
}
