package ipc

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
)

// maxFrameSize caps one IPC frame. Output drains are the largest payloads
// and are themselves bounded by the output buffer limits.
const maxFrameSize = 10 * 1024 * 1024

// ErrFrameTooLarge is returned when a frame's declared length exceeds
// maxFrameSize.
var ErrFrameTooLarge = errors.New("IPC frame exceeds size limit")

// WriteFrame writes one length-prefixed JSON frame: a 4-byte little-endian
// payload length, then the payload.
func WriteFrame(w io.Writer, v any) error {
	payload, marshalErr := json.Marshal(v)
	if marshalErr != nil {
		return fmt.Errorf("failed to encode IPC frame: %w", marshalErr)
	}
	if len(payload) > maxFrameSize {
		return fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, len(payload))
	}

	frame := make([]byte, 4+len(payload))
	binary.LittleEndian.PutUint32(frame[:4], uint32(len(payload)))
	copy(frame[4:], payload)

	if _, writeErr := w.Write(frame); writeErr != nil {
		return fmt.Errorf("failed to write IPC frame: %w", writeErr)
	}
	return nil
}

// ReadFrame reads one length-prefixed JSON frame into v. A clean io.EOF
// before the first length byte is returned unchanged so callers can tell a
// closed peer from a torn frame.
func ReadFrame(r io.Reader, v any) error {
	var header [4]byte
	if _, readErr := io.ReadFull(r, header[:]); readErr != nil {
		if errors.Is(readErr, io.EOF) {
			return io.EOF
		}
		return fmt.Errorf("failed to read IPC frame header: %w", readErr)
	}

	length := binary.LittleEndian.Uint32(header[:])
	if length > maxFrameSize {
		return fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, length)
	}

	payload := make([]byte, length)
	if _, readErr := io.ReadFull(r, payload); readErr != nil {
		return fmt.Errorf("failed to read IPC frame payload: %w", readErr)
	}

	if unmarshalErr := json.Unmarshal(payload, v); unmarshalErr != nil {
		return fmt.Errorf("failed to decode IPC frame: %w", unmarshalErr)
	}
	return nil
}

// Listen creates the host's unix socket. A stale socket file from a dead
// host is removed; a live one is an error (another host owns it).
func Listen(socketPath string) (net.Listener, error) {
	if mkdirErr := os.MkdirAll(filepath.Dir(socketPath), 0o700); mkdirErr != nil {
		return nil, fmt.Errorf("failed to create socket directory: %w", mkdirErr)
	}

	if _, statErr := os.Stat(socketPath); statErr == nil {
		conn, dialErr := net.Dial("unix", socketPath)
		if dialErr == nil {
			conn.Close()
			return nil, fmt.Errorf("socket %s is already in use by a running daemon", socketPath)
		}
		if removeErr := os.Remove(socketPath); removeErr != nil {
			return nil, fmt.Errorf("failed to remove stale socket: %w", removeErr)
		}
	}

	listener, listenErr := net.Listen("unix", socketPath)
	if listenErr != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", socketPath, listenErr)
	}

	// The socket is a control channel into a debugger; owner-only.
	if chmodErr := os.Chmod(socketPath, 0o600); chmodErr != nil {
		listener.Close()
		return nil, fmt.Errorf("failed to restrict socket permissions: %w", chmodErr)
	}

	return listener, nil
}

// Dial connects to the host's unix socket.
func Dial(socketPath string) (net.Conn, error) {
	conn, dialErr := net.Dial("unix", socketPath)
	if dialErr != nil {
		return nil, dialErr
	}
	return conn, nil
}
