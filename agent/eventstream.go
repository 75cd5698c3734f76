package agent

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws/protocol/eventstream"
)

const bedrockExceptionType = "exception"

// BedrockEventScanner decodes AWS binary event-stream frames from Bedrock's
// invoke-with-response-stream endpoint. Each frame's payload is JSON like
// {"bytes":"<base64>"} where the decoded bytes are a Claude messages-API
// event such as content_block_delta or message_stop.
type BedrockEventScanner struct {
	decoder *eventstream.Decoder
	reader  io.Reader
	buf     []byte
	data    string
	err     error
}

// bedrockChunkPayload is the JSON payload inside each binary event frame.
type bedrockChunkPayload struct {
	Bytes string `json:"bytes"`
}

// NewBedrockEventScanner creates a scanner over a response-stream body.
func NewBedrockEventScanner(r io.Reader) *BedrockEventScanner {
	return &BedrockEventScanner{
		decoder: eventstream.NewDecoder(),
		reader:  r,
		buf:     make([]byte, 0, 4096), //nolint:mnd // initial buffer capacity
	}
}

// Scan reads the next event-stream frame. Returns true if a data event was
// decoded, false on EOF or error. Frames without a decodable payload are
// skipped rather than surfaced.
func (s *BedrockEventScanner) Scan() bool {
	for {
		msg, err := s.decoder.Decode(s.reader, s.buf)
		if err != nil {
			if err != io.EOF {
				s.err = fmt.Errorf("failed to decode event-stream frame: %w", err)
			}
			return false
		}

		if isExceptionFrame(msg) {
			s.err = fmt.Errorf("bedrock stream exception: %s", string(msg.Payload))
			return false
		}

		data, ok := s.decodePayload(msg)
		if !ok {
			if s.err != nil {
				return false
			}
			continue
		}
		s.data = data
		return true
	}
}

// isExceptionFrame reports whether the frame carries a modeled exception.
// Bedrock marks these on the :event-type or :message-type header.
func isExceptionFrame(msg eventstream.Message) bool {
	for _, name := range []string{":event-type", ":message-type"} {
		val := msg.Headers.Get(name)
		if val == nil {
			continue
		}
		if str, ok := val.(eventstream.StringValue); ok && string(str) == bedrockExceptionType {
			return true
		}
	}
	return false
}

// decodePayload extracts the Claude JSON event from a frame. Returns the
// decoded string and true, or false to skip the frame.
func (s *BedrockEventScanner) decodePayload(msg eventstream.Message) (string, bool) {
	var payload bedrockChunkPayload
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		return "", false
	}
	if payload.Bytes == "" {
		return "", false
	}

	decoded, err := base64.StdEncoding.DecodeString(payload.Bytes)
	if err != nil {
		s.err = fmt.Errorf("failed to decode base64 payload: %w", err)
		return "", false
	}
	return string(decoded), true
}

// Data returns the decoded Claude JSON event from the last scanned frame.
func (s *BedrockEventScanner) Data() string {
	return s.data
}

// Err returns any error encountered during scanning.
func (s *BedrockEventScanner) Err() error {
	return s.err
}
