package audio

import (
	"bytes"
	"encoding/binary"
	"math"
	"testing"
)

// buildWAV assembles a minimal 16-bit PCM mono WAV in memory.
func buildWAV(samples []int16, sampleRate int, extraChunk bool) []byte {
	var buf bytes.Buffer
	dataSize := len(samples) * 2

	buf.WriteString("RIFF")
	binary.Write(&buf, binary.LittleEndian, uint32(36+dataSize))
	buf.WriteString("WAVE")

	buf.WriteString("fmt ")
	binary.Write(&buf, binary.LittleEndian, uint32(16))
	binary.Write(&buf, binary.LittleEndian, uint16(1)) // PCM
	binary.Write(&buf, binary.LittleEndian, uint16(1)) // mono
	binary.Write(&buf, binary.LittleEndian, uint32(sampleRate))
	binary.Write(&buf, binary.LittleEndian, uint32(sampleRate*2))
	binary.Write(&buf, binary.LittleEndian, uint16(2))
	binary.Write(&buf, binary.LittleEndian, uint16(16))

	if extraChunk {
		buf.WriteString("LIST")
		binary.Write(&buf, binary.LittleEndian, uint32(5))
		buf.Write([]byte{1, 2, 3, 4, 5, 0}) // odd size, padded
	}

	buf.WriteString("data")
	binary.Write(&buf, binary.LittleEndian, uint32(dataSize))
	for _, s := range samples {
		binary.Write(&buf, binary.LittleEndian, s)
	}
	return buf.Bytes()
}

func TestReadWAV(t *testing.T) {
	raw := buildWAV([]int16{0, 16384, -32768, 32767}, 16000, false)
	samples, rate, err := ReadWAV(bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("ReadWAV: %v", err)
	}
	if rate != 16000 {
		t.Errorf("rate = %d, want 16000", rate)
	}
	if len(samples) != 4 {
		t.Fatalf("len = %d, want 4", len(samples))
	}
	if samples[0] != 0 {
		t.Errorf("samples[0] = %f, want 0", samples[0])
	}
	if math.Abs(samples[1]-0.5) > 1e-9 {
		t.Errorf("samples[1] = %f, want 0.5", samples[1])
	}
	if samples[2] != -1.0 {
		t.Errorf("samples[2] = %f, want -1.0", samples[2])
	}
}

func TestReadWAVSkipsUnknownChunks(t *testing.T) {
	raw := buildWAV([]int16{100, 200}, 8000, true)
	samples, rate, err := ReadWAV(bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("ReadWAV: %v", err)
	}
	if rate != 8000 || len(samples) != 2 {
		t.Errorf("rate = %d, len = %d; want 8000, 2", rate, len(samples))
	}
}

func TestReadWAVErrors(t *testing.T) {
	if _, _, err := ReadWAV(bytes.NewReader([]byte("not a wav file......"))); err == nil {
		t.Error("expected error for a non-RIFF stream")
	}

	// Stereo is rejected.
	raw := buildWAV([]int16{1, 2}, 16000, false)
	raw[22] = 2 // channel count in the fmt chunk
	if _, _, err := ReadWAV(bytes.NewReader(raw)); err == nil {
		t.Error("expected error for stereo input")
	}

	// Missing data chunk.
	raw = buildWAV(nil, 16000, false)
	if _, _, err := ReadWAV(bytes.NewReader(raw[:36])); err == nil {
		t.Error("expected error for truncated file without data chunk")
	}
}
