package dap

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/google/go-dap"
)

// maxMessageSize caps a single DAP message body. 100MB is far beyond anything
// a real adapter produces; larger values indicate a corrupted length field.
const maxMessageSize = 100 * 1024 * 1024

// Framing errors. Each decode failure mode is a distinct error kind so that
// callers can tell a garbled header from a stream that died mid-body.
var (
	// ErrMalformedHeader is returned when a header line has no "Name: value" shape.
	ErrMalformedHeader = errors.New("malformed DAP header line")

	// ErrMissingContentLength is returned when the header block ends without a
	// Content-Length header.
	ErrMissingContentLength = errors.New("missing Content-Length header")

	// ErrInvalidContentLength is returned when the Content-Length value is not
	// a non-negative integer.
	ErrInvalidContentLength = errors.New("invalid Content-Length value")

	// ErrMessageTooLarge is returned when the declared body length exceeds maxMessageSize.
	ErrMessageTooLarge = errors.New("DAP message exceeds size limit")

	// ErrTruncatedBody is returned when the stream ends before the declared
	// number of body bytes arrived.
	ErrTruncatedBody = errors.New("truncated DAP message body")
)

// ReadMessage reads one Content-Length framed DAP message from the reader and
// decodes it into a typed go-dap message. An io.EOF before the first header
// byte is returned unchanged so callers can distinguish a cleanly closed
// stream from a framing failure.
func ReadMessage(r *bufio.Reader) (dap.Message, error) {
	body, readErr := readRawMessage(r)
	if readErr != nil {
		return nil, readErr
	}

	msg, decodeErr := dap.DecodeProtocolMessage(body)
	if decodeErr != nil {
		return nil, fmt.Errorf("failed to decode DAP message: %w", decodeErr)
	}

	return msg, nil
}

// readRawMessage reads the header block and the exact body length it declares.
func readRawMessage(r *bufio.Reader) ([]byte, error) {
	contentLength := -1
	sawHeader := false

	for {
		line, readErr := r.ReadString('\n')
		if readErr != nil {
			if errors.Is(readErr, io.EOF) && !sawHeader && line == "" {
				// Clean end of stream between messages.
				return nil, io.EOF
			}
			return nil, fmt.Errorf("%w: stream ended inside header block", ErrTruncatedBody)
		}

		// Blank line terminates the header block.
		if line == "\r\n" || line == "\n" {
			break
		}
		sawHeader = true

		name, value, found := strings.Cut(strings.TrimRight(line, "\r\n"), ":")
		if !found {
			return nil, fmt.Errorf("%w: %q", ErrMalformedHeader, strings.TrimSpace(line))
		}

		if strings.EqualFold(strings.TrimSpace(name), "Content-Length") {
			n, parseErr := strconv.Atoi(strings.TrimSpace(value))
			if parseErr != nil || n < 0 {
				return nil, fmt.Errorf("%w: %q", ErrInvalidContentLength, strings.TrimSpace(value))
			}
			contentLength = n
		}
		// Other headers (e.g. Content-Type) are permitted and ignored.
	}

	if contentLength < 0 {
		return nil, ErrMissingContentLength
	}
	if contentLength > maxMessageSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrMessageTooLarge, contentLength)
	}

	body := make([]byte, contentLength)
	if _, readErr := io.ReadFull(r, body); readErr != nil {
		return nil, fmt.Errorf("%w: wanted %d bytes: %v", ErrTruncatedBody, contentLength, readErr)
	}

	return body, nil
}

// WriteMessage frames and writes one DAP message: a Content-Length header, a
// blank line, then the JSON body. The codec does not interpret the payload.
func WriteMessage(w io.Writer, msg dap.Message) error {
	body, marshalErr := json.Marshal(msg)
	if marshalErr != nil {
		return fmt.Errorf("failed to marshal DAP message: %w", marshalErr)
	}

	var buf bytes.Buffer
	fmt.Fprintf(&buf, "Content-Length: %d\r\n\r\n", len(body))
	buf.Write(body)

	if _, writeErr := w.Write(buf.Bytes()); writeErr != nil {
		return fmt.Errorf("failed to write DAP message: %w", writeErr)
	}

	return nil
}

// IsFramingError reports whether err is one of the codec's framing error
// kinds. Framing errors are fatal to the single decode attempt, not to the
// transport.
func IsFramingError(err error) bool {
	return errors.Is(err, ErrMalformedHeader) ||
		errors.Is(err, ErrMissingContentLength) ||
		errors.Is(err, ErrInvalidContentLength) ||
		errors.Is(err, ErrMessageTooLarge) ||
		errors.Is(err, ErrTruncatedBody)
}
