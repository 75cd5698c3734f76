package transport

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
)

// Wire events on a media stream connection.
const (
	wireEventConnected = "connected"
	wireEventStart     = "start"
	wireEventMedia     = "media"
	wireEventMark      = "mark"
	wireEventDTMF      = "dtmf"
	wireEventStop      = "stop"
	wireEventClear     = "clear"
)

// Frame directions for transport events.
const (
	directionIn  = "in"
	directionOut = "out"
)

// frame is one JSON message on the media stream, in either direction.
// Sections are pointers so absent ones stay absent on encode.
type frame struct {
	Event     string      `json:"event"`
	StreamSID string      `json:"streamSid,omitempty"`
	Start     *startFrame `json:"start,omitempty"`
	Media     *mediaFrame `json:"media,omitempty"`
	Mark      *markFrame  `json:"mark,omitempty"`
	Stop      *stopFrame  `json:"stop,omitempty"`
	DTMF      *dtmfFrame  `json:"dtmf,omitempty"`
}

// startFrame carries the stream metadata sent once per connection.
type startFrame struct {
	StreamSID        string            `json:"streamSid"`
	AccountSID       string            `json:"accountSid"`
	CallSID          string            `json:"callSid"`
	Tracks           []string          `json:"tracks"`
	MediaFormat      mediaFormat       `json:"mediaFormat"`
	CustomParameters map[string]string `json:"customParameters"`
}

type mediaFormat struct {
	Encoding   string `json:"encoding"`
	SampleRate int    `json:"sampleRate"`
	Channels   int    `json:"channels"`
}

// mediaFrame carries one base64 chunk of wire audio.
type mediaFrame struct {
	Track     string `json:"track,omitempty"`
	Chunk     string `json:"chunk,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
	Payload   string `json:"payload"`
}

type markFrame struct {
	Name string `json:"name"`
}

type stopFrame struct {
	AccountSID string `json:"accountSid"`
	CallSID    string `json:"callSid"`
}

type dtmfFrame struct {
	Track string `json:"track,omitempty"`
	Digit string `json:"digit"`
}

// decodeFrame parses one inbound message.
func decodeFrame(data []byte) (*frame, error) {
	var f frame
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("malformed frame: %w", err)
	}
	if f.Event == "" {
		return nil, fmt.Errorf("frame missing event")
	}
	return &f, nil
}

// decodeMediaPayload extracts the raw wire audio from a media frame.
func (f *frame) decodeMediaPayload() ([]byte, error) {
	if f.Media == nil || f.Media.Payload == "" {
		return nil, fmt.Errorf("media frame missing payload")
	}
	payload, err := base64.StdEncoding.DecodeString(f.Media.Payload)
	if err != nil {
		return nil, fmt.Errorf("malformed media payload: %w", err)
	}
	return payload, nil
}

// encodeMedia builds an outbound media message.
func encodeMedia(streamSID string, payload []byte) ([]byte, error) {
	return json.Marshal(&frame{
		Event:     wireEventMedia,
		StreamSID: streamSID,
		Media:     &mediaFrame{Payload: base64.StdEncoding.EncodeToString(payload)},
	})
}

// encodeClear builds the message telling the far end to drop any audio it
// has queued but not yet played.
func encodeClear(streamSID string) ([]byte, error) {
	return json.Marshal(&frame{Event: wireEventClear, StreamSID: streamSID})
}

// callerParam extracts the caller's number from the start frame's custom
// parameters. The voice webhook forwards it under callerParamName; the
// fallbacks cover hand-written TwiML.
func callerParam(params map[string]string) string {
	for _, key := range []string{callerParamName, "from", "From"} {
		if v := params[key]; v != "" {
			return v
		}
	}
	return ""
}
