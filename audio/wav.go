package audio

import (
	"encoding/binary"
	"io"
	"os"

	"github.com/pkg/errors"
)

// ReadWAV reads 16-bit PCM mono WAV data and returns normalized float64
// samples in [-1, 1] together with the sample rate.
func ReadWAV(r io.Reader) ([]float64, int, error) {
	var hdr [12]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, 0, errors.Wrap(err, "audio: read RIFF header")
	}
	if string(hdr[0:4]) != "RIFF" || string(hdr[8:12]) != "WAVE" {
		return nil, 0, errors.New("audio: not a RIFF/WAVE file")
	}

	var (
		sampleRate int
		channels   int
		bits       int
		fmtSeen    bool
	)
	for {
		var chunk [8]byte
		if _, err := io.ReadFull(r, chunk[:]); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				return nil, 0, errors.New("audio: no data chunk")
			}
			return nil, 0, errors.Wrap(err, "audio: read chunk header")
		}
		size := binary.LittleEndian.Uint32(chunk[4:8])

		switch string(chunk[0:4]) {
		case "fmt ":
			body := make([]byte, size)
			if _, err := io.ReadFull(r, body); err != nil {
				return nil, 0, errors.Wrap(err, "audio: read fmt chunk")
			}
			if format := binary.LittleEndian.Uint16(body[0:2]); format != 1 {
				return nil, 0, errors.Errorf("audio: unsupported WAV format %d (want PCM)", format)
			}
			channels = int(binary.LittleEndian.Uint16(body[2:4]))
			sampleRate = int(binary.LittleEndian.Uint32(body[4:8]))
			bits = int(binary.LittleEndian.Uint16(body[14:16]))
			if channels != 1 {
				return nil, 0, errors.Errorf("audio: %d channels, only mono supported", channels)
			}
			if bits != 16 {
				return nil, 0, errors.Errorf("audio: %d bits per sample, only 16 supported", bits)
			}
			fmtSeen = true

		case "data":
			if !fmtSeen {
				return nil, 0, errors.New("audio: data chunk before fmt chunk")
			}
			raw := make([]byte, size)
			if _, err := io.ReadFull(r, raw); err != nil {
				return nil, 0, errors.Wrap(err, "audio: read data chunk")
			}
			n := int(size) / 2
			samples := make([]float64, n)
			for i := 0; i < n; i++ {
				v := int16(binary.LittleEndian.Uint16(raw[2*i : 2*i+2]))
				samples[i] = float64(v) / 32768.0
			}
			return samples, sampleRate, nil

		default:
			// Skip unknown chunks (word aligned).
			skip := int64(size)
			if size%2 == 1 {
				skip++
			}
			if _, err := io.CopyN(io.Discard, r, skip); err != nil {
				return nil, 0, errors.Wrap(err, "audio: skip chunk")
			}
		}
	}
}

// ReadWAVFile reads a WAV file from disk.
func ReadWAVFile(path string) ([]float64, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, errors.Wrapf(err, "audio: open %s", path)
	}
	defer f.Close()
	return ReadWAV(f)
}
