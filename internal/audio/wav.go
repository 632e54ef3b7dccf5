package audio

import (
	"bytes"
	"encoding/binary"
	stderrors "errors"
	"fmt"
	"io"

	"github.com/hpungsan/scribe/internal/fileio"
)

const (
	pcmFormat        = 1
	extensibleFormat = 0xFFFE
	bitsPerSample    = 16
	bytesPerSample   = bitsPerSample / 8
	headerSize       = 44

	// maxFmtChunk covers WAVE_FORMAT_EXTENSIBLE (40 bytes) with room for
	// vendor extensions.
	maxFmtChunk = 256

	// Streaming writers leave the data size at 0 or all ones; the samples
	// then run to the end of the stream.
	dataSizeUnknown = 0xFFFFFFFF
)

// ErrNotWAV is returned by DecodeWAV for input that is not a PCM16 RIFF/WAVE stream.
var ErrNotWAV = stderrors.New("not a 16-bit PCM WAV stream")

// EncodeWAV wraps mono PCM16 samples in a canonical 44-byte-header WAV container.
func EncodeWAV(samples []int16, sampleRate int) []byte {
	dataLen := len(samples) * bytesPerSample

	var buf bytes.Buffer
	buf.Grow(headerSize + dataLen)

	buf.WriteString("RIFF")
	binary.Write(&buf, binary.LittleEndian, uint32(36+dataLen))
	buf.WriteString("WAVE")

	buf.WriteString("fmt ")
	binary.Write(&buf, binary.LittleEndian, uint32(16))
	binary.Write(&buf, binary.LittleEndian, uint16(pcmFormat))
	binary.Write(&buf, binary.LittleEndian, uint16(1))
	binary.Write(&buf, binary.LittleEndian, uint32(sampleRate))
	binary.Write(&buf, binary.LittleEndian, uint32(sampleRate*bytesPerSample))
	binary.Write(&buf, binary.LittleEndian, uint16(bytesPerSample))
	binary.Write(&buf, binary.LittleEndian, uint16(bitsPerSample))

	// data chunk
	buf.WriteString("data")
	binary.Write(&buf, binary.LittleEndian, uint32(dataLen))
	binary.Write(&buf, binary.LittleEndian, samples)

	return buf.Bytes()
}

// WriteWAVFile atomically writes samples as a WAV file at path.
func WriteWAVFile(path string, samples []int16, sampleRate int) error {
	return fileio.WriteAtomic(path, EncodeWAV(samples, sampleRate), 0600)
}

// CreateWAVFile writes samples as a new WAV file at path. It fails with an
// error satisfying os.IsExist when path already exists.
func CreateWAVFile(path string, samples []int16, sampleRate int) error {
	return fileio.WriteExclusive(path, EncodeWAV(samples, sampleRate), 0600)
}

// ReadWAVFile decodes the WAV file at path.
func ReadWAVFile(path string) ([]int16, int, error) {
	data, err := fileio.ReadFile(path)
	if err != nil {
		return nil, 0, err
	}
	return DecodeWAV(bytes.NewReader(data))
}

type fmtChunk struct {
	Format        uint16
	Channels      uint16
	SampleRate    uint32
	ByteRate      uint32
	BlockAlign    uint16
	BitsPerSample uint16
}

// DecodeWAV reads a 16-bit PCM WAV stream. Multi-channel audio is
// down-mixed to mono by averaging channels.
func DecodeWAV(r io.Reader) ([]int16, int, error) {
	var riff [12]byte
	if _, err := io.ReadFull(r, riff[:]); err != nil {
		return nil, 0, fmt.Errorf("%w: %v", ErrNotWAV, err)
	}
	if string(riff[0:4]) != "RIFF" || string(riff[8:12]) != "WAVE" {
		return nil, 0, ErrNotWAV
	}

	var (
		format  *fmtChunk
		samples []int16
	)
	for {
		var hdr [8]byte
		if _, err := io.ReadFull(r, hdr[:]); err != nil {
			if stderrors.Is(err, io.EOF) {
				break
			}
			return nil, 0, fmt.Errorf("%w: truncated chunk header", ErrNotWAV)
		}
		id := string(hdr[0:4])
		size := binary.LittleEndian.Uint32(hdr[4:8])

		switch id {
		case "fmt ":
			if size < 16 {
				return nil, 0, fmt.Errorf("%w: fmt chunk too small", ErrNotWAV)
			}
			if size > maxFmtChunk {
				return nil, 0, fmt.Errorf("%w: fmt chunk of %d bytes", ErrNotWAV, size)
			}
			body := make([]byte, size)
			if _, err := io.ReadFull(r, body); err != nil {
				return nil, 0, fmt.Errorf("%w: truncated fmt chunk", ErrNotWAV)
			}
			var f fmtChunk
			if err := binary.Read(bytes.NewReader(body[:16]), binary.LittleEndian, &f); err != nil {
				return nil, 0, err
			}
			if (f.Format != pcmFormat && f.Format != extensibleFormat) || f.BitsPerSample != bitsPerSample || f.Channels == 0 {
				return nil, 0, fmt.Errorf("%w: format=%d bits=%d channels=%d", ErrNotWAV, f.Format, f.BitsPerSample, f.Channels)
			}
			format = &f
		case "data":
			if format == nil {
				return nil, 0, fmt.Errorf("%w: data before fmt", ErrNotWAV)
			}
			raw, err := readPCM(r, size)
			if err != nil {
				return nil, 0, err
			}
			samples = downmix(raw, int(format.Channels))
			return samples, int(format.SampleRate), nil
		default:
			if _, err := io.CopyN(io.Discard, r, int64(size)); err != nil {
				return nil, 0, fmt.Errorf("%w: truncated %q chunk", ErrNotWAV, id)
			}
		}

		// chunks are word-aligned
		if size%2 == 1 {
			if _, err := io.CopyN(io.Discard, r, 1); err != nil && !stderrors.Is(err, io.EOF) {
				return nil, 0, err
			}
		}
	}

	return nil, 0, fmt.Errorf("%w: no data chunk", ErrNotWAV)
}

// readPCM reads a data chunk of size bytes. Memory grows with the bytes
// actually present, never with the declared size.
func readPCM(r io.Reader, size uint32) ([]int16, error) {
	toEOF := size == 0 || size == dataSizeUnknown
	src := r
	if !toEOF {
		src = io.LimitReader(r, int64(size))
	}

	raw, err := io.ReadAll(src)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotWAV, err)
	}
	if !toEOF && int64(len(raw)) < int64(size) {
		return nil, fmt.Errorf("%w: truncated data chunk (%d of %d bytes)", ErrNotWAV, len(raw), size)
	}

	samples := make([]int16, len(raw)/bytesPerSample)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(raw[i*bytesPerSample:]))
	}
	return samples, nil
}

func downmix(interleaved []int16, channels int) []int16 {
	if channels == 1 {
		return interleaved
	}
	frames := len(interleaved) / channels
	out := make([]int16, frames)
	for i := 0; i < frames; i++ {
		var sum int
		for c := 0; c < channels; c++ {
			sum += int(interleaved[i*channels+c])
		}
		out[i] = int16(sum / channels)
	}
	return out
}

// ToFloat32 normalizes PCM16 samples to [-1, 1).
func ToFloat32(samples []int16) []float32 {
	out := make([]float32, len(samples))
	for i, s := range samples {
		out[i] = float32(s) / 32768
	}
	return out
}

// FromFloat32 converts normalized samples back to PCM16, clipping out-of-range values.
func FromFloat32(samples []float32) []int16 {
	out := make([]int16, len(samples))
	for i, s := range samples {
		v := s * 32768
		switch {
		case v > 32767:
			out[i] = 32767
		case v < -32768:
			out[i] = -32768
		default:
			out[i] = int16(v)
		}
	}
	return out
}
