package recording

import (
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AltairaLabs/CareBridge/audio"
)

// testPCM builds a deterministic 16-bit PCM ramp of the given sample count.
func testPCM(samples int) []byte {
	pcm := make([]byte, samples*2)
	for i := 0; i < samples; i++ {
		binary.LittleEndian.PutUint16(pcm[i*2:], uint16(int16(i%2000-1000)))
	}
	return pcm
}

func readFrameLog(t *testing.T, path string) []frameRecord {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var records []frameRecord
	for i, line := range strings.Split(strings.TrimSpace(string(data)), "\n") {
		var rec frameRecord
		require.NoError(t, json.Unmarshal([]byte(line), &rec), "line %d", i+1)
		records = append(records, rec)
	}
	return records
}

func TestRecorderCapture(t *testing.T) {
	dir := t.TempDir()
	rec, err := NewRecorder(dir)
	require.NoError(t, err)

	capture, err := rec.Begin("CA0123456789", "MZ0123456789")
	require.NoError(t, err)

	pcm := testPCM(160)
	capture.CallerAudio("session-1", pcm)
	capture.CallerAudio("session-1", pcm)
	require.NoError(t, capture.Close())

	t.Run("wav holds the caller audio", func(t *testing.T) {
		data, err := os.ReadFile(filepath.Join(dir, "CA0123456789.wav"))
		require.NoError(t, err)

		got, info, err := audio.ParseWAV(data)
		require.NoError(t, err)
		assert.Equal(t, audio.DefaultWireSampleRate, info.SampleRate)
		assert.Equal(t, 1, info.Channels)
		assert.Equal(t, 16, info.BitsPerSample)

		want := append(append([]byte{}, pcm...), pcm...)
		assert.Equal(t, want, got)
	})

	t.Run("wav header sizes are patched", func(t *testing.T) {
		data, err := os.ReadFile(filepath.Join(dir, "CA0123456789.wav"))
		require.NoError(t, err)
		require.GreaterOrEqual(t, len(data), 44)

		dataSize := binary.LittleEndian.Uint32(data[40:44])
		riffSize := binary.LittleEndian.Uint32(data[4:8])
		assert.Equal(t, uint32(len(pcm)*2), dataSize)
		assert.Equal(t, dataSize+36, riffSize)
	})

	t.Run("frame log brackets media with start and stop", func(t *testing.T) {
		records := readFrameLog(t, filepath.Join(dir, "CA0123456789.frames.jsonl"))
		require.Len(t, records, 4)

		assert.Equal(t, frameEventStart, records[0].Event)
		assert.Equal(t, "CA0123456789", records[0].CallSID)
		assert.Equal(t, "MZ0123456789", records[0].StreamSID)

		wire, err := audio.EncodeMuLaw(pcm)
		require.NoError(t, err)
		for _, rec := range records[1:3] {
			assert.Equal(t, frameEventMedia, rec.Event)
			payload, err := base64.StdEncoding.DecodeString(rec.Payload)
			require.NoError(t, err)
			assert.Equal(t, wire, payload)
		}

		assert.Equal(t, frameEventStop, records[3].Event)
		assert.False(t, records[3].Timestamp.Before(records[0].Timestamp))
	})

	t.Run("manifest records the call", func(t *testing.T) {
		entries, err := LoadManifest(dir)
		require.NoError(t, err)
		require.Len(t, entries, 1)

		entry := entries[0]
		assert.Equal(t, "CA0123456789", entry.CallSID)
		assert.Equal(t, "MZ0123456789", entry.StreamSID)
		assert.Equal(t, "CA0123456789.wav", entry.AudioFile)
		assert.Equal(t, "CA0123456789.frames.jsonl", entry.FrameFile)
		assert.Equal(t, int64(len(pcm)*2), entry.AudioBytes)
		assert.Zero(t, entry.DroppedFrames)
		assert.False(t, entry.EndedAt.Before(entry.StartedAt))
		assert.Equal(t, entry.EndedAt.Sub(entry.StartedAt), entry.Duration)
	})
}

func TestCaptureNoAudio(t *testing.T) {
	dir := t.TempDir()
	rec, err := NewRecorder(dir)
	require.NoError(t, err)

	capture, err := rec.Begin("CAempty", "")
	require.NoError(t, err)
	require.NoError(t, capture.Close())

	data, err := os.ReadFile(filepath.Join(dir, "CAempty.wav"))
	require.NoError(t, err)
	assert.Len(t, data, 44)
	assert.Zero(t, binary.LittleEndian.Uint32(data[40:44]))

	records := readFrameLog(t, filepath.Join(dir, "CAempty.frames.jsonl"))
	require.Len(t, records, 2)
	assert.Equal(t, frameEventStart, records[0].Event)
	assert.Equal(t, frameEventStop, records[1].Event)

	entries, err := LoadManifest(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Zero(t, entries[0].AudioBytes)
}

func TestCaptureAfterClose(t *testing.T) {
	dir := t.TempDir()
	rec, err := NewRecorder(dir)
	require.NoError(t, err)

	capture, err := rec.Begin("CAlate", "")
	require.NoError(t, err)

	pcm := testPCM(160)
	capture.CallerAudio("session-1", pcm)
	require.NoError(t, capture.Close())

	// Late frames and repeat closes are no-ops.
	capture.CallerAudio("session-1", pcm)
	require.NoError(t, capture.Close())

	entries, err := LoadManifest(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, int64(len(pcm)), entries[0].AudioBytes)
}

func TestBeginValidation(t *testing.T) {
	rec, err := NewRecorder(t.TempDir())
	require.NoError(t, err)

	_, err = rec.Begin("", "MZ1")
	assert.Error(t, err)
}

func TestNewRecorderCreatesDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "calls", "2026-08")
	rec, err := NewRecorder(dir)
	require.NoError(t, err)
	assert.Equal(t, dir, rec.Dir())

	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestNewRecorderEmptyDir(t *testing.T) {
	_, err := NewRecorder("")
	assert.Error(t, err)
}

func TestSanitizeName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"CA0123456789abcdef", "CA0123456789abcdef"},
		{"../../etc/passwd", "______etc_passwd"},
		{"CA 01/02", "CA_01_02"},
		{"call-sid_ok", "call-sid_ok"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, sanitizeName(tt.in), "input %q", tt.in)
	}
}

func TestManifestConcurrentAppends(t *testing.T) {
	dir := t.TempDir()
	rec, err := NewRecorder(dir)
	require.NoError(t, err)

	const calls = 8
	pcm := testPCM(160)

	var wg sync.WaitGroup
	for i := 0; i < calls; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			capture, err := rec.Begin(fmt.Sprintf("CA%03d", i), "")
			if !assert.NoError(t, err) {
				return
			}
			capture.CallerAudio("session", pcm)
			assert.NoError(t, capture.Close())
		}(i)
	}
	wg.Wait()

	// Every line parses, so concurrent appends never tore a line.
	entries, err := LoadManifest(dir)
	require.NoError(t, err)
	require.Len(t, entries, calls)

	sids := make(map[string]bool, calls)
	for _, e := range entries {
		sids[e.CallSID] = true
	}
	assert.Len(t, sids, calls)
}

func TestLoadManifestMissing(t *testing.T) {
	entries, err := LoadManifest(t.TempDir())
	require.NoError(t, err)
	assert.Nil(t, entries)
}

func TestLoadManifestBadLine(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, manifestName)
	require.NoError(t, os.WriteFile(path, []byte("{\"call_sid\":\"CA1\"}\nnot json\n"), 0o600))

	_, err := LoadManifest(dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "line 2")
}
