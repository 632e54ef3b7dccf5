package audio

import (
	"bytes"
	"encoding/binary"
	stderrors "errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeWAV(t *testing.T) {
	samples := []int16{0, 1, -1, 32767, -32768, 1234}

	data := EncodeWAV(samples, 16000)
	if len(data) != headerSize+len(samples)*2 {
		t.Errorf("len(data) = %d, want %d", len(data), headerSize+len(samples)*2)
	}
	if string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		t.Errorf("header = %q, want RIFF....WAVE", data[0:12])
	}

	got, rate, err := DecodeWAV(bytes.NewReader(data))
	require.NoError(t, err)
	require.Equal(t, 16000, rate)
	require.Equal(t, samples, got)
}

func TestEncodeWAV_Empty(t *testing.T) {
	data := EncodeWAV(nil, 16000)

	got, rate, err := DecodeWAV(bytes.NewReader(data))
	require.NoError(t, err)
	require.Equal(t, 16000, rate)
	require.Empty(t, got)
}

func TestDecodeWAV_SkipsUnknownChunksAndDownmixes(t *testing.T) {
	var buf bytes.Buffer
	buf.WriteString("RIFF")
	binary.Write(&buf, binary.LittleEndian, uint32(0)) // size unchecked
	buf.WriteString("WAVE")

	// odd-sized LIST chunk with pad byte
	buf.WriteString("LIST")
	binary.Write(&buf, binary.LittleEndian, uint32(3))
	buf.Write([]byte{1, 2, 3, 0})

	buf.WriteString("fmt ")
	binary.Write(&buf, binary.LittleEndian, uint32(16))
	binary.Write(&buf, binary.LittleEndian, fmtChunk{
		Format: pcmFormat, Channels: 2, SampleRate: 44100,
		ByteRate: 44100 * 4, BlockAlign: 4, BitsPerSample: 16,
	})

	buf.WriteString("data")
	binary.Write(&buf, binary.LittleEndian, uint32(8))
	binary.Write(&buf, binary.LittleEndian, []int16{100, 200, -50, -150})

	got, rate, err := DecodeWAV(&buf)
	require.NoError(t, err)
	require.Equal(t, 44100, rate)
	require.Equal(t, []int16{150, -100}, got)
}

func TestDecodeWAV_Rejects(t *testing.T) {
	valid := EncodeWAV([]int16{1, 2, 3}, 8000)

	eightBit := append([]byte(nil), valid...)
	binary.LittleEndian.PutUint16(eightBit[34:36], 8)

	tests := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"not riff", []byte("this is not a wav file at all")},
		{"8-bit", eightBit},
		{"truncated data", valid[:len(valid)-3]},
		{"no data chunk", valid[:36]},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := DecodeWAV(bytes.NewReader(tt.data))
			if !stderrors.Is(err, ErrNotWAV) {
				t.Errorf("DecodeWAV() error = %v, want ErrNotWAV", err)
			}
		})
	}
}

func TestDecodeWAV_OversizedHeaders(t *testing.T) {
	valid := EncodeWAV([]int16{1, 2, 3}, 16000)

	hugeData := append([]byte(nil), valid...)
	binary.LittleEndian.PutUint32(hugeData[40:44], 0xFFFFFFFE)

	hugeFmt := append([]byte(nil), valid...)
	binary.LittleEndian.PutUint32(hugeFmt[16:20], 0xFFFFFFF0)

	tests := []struct {
		name string
		data []byte
	}{
		{"data size", hugeData},
		{"fmt size", hugeFmt},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var before, after runtime.MemStats
			runtime.ReadMemStats(&before)

			_, _, err := DecodeWAV(bytes.NewReader(tt.data))

			runtime.ReadMemStats(&after)
			if !stderrors.Is(err, ErrNotWAV) {
				t.Errorf("DecodeWAV() error = %v, want ErrNotWAV", err)
			}
			if grew := after.TotalAlloc - before.TotalAlloc; grew > 1<<20 {
				t.Errorf("DecodeWAV() allocated %d bytes for a %d-byte input", grew, len(tt.data))
			}
		})
	}
}

func TestDecodeWAV_StreamingDataSize(t *testing.T) {
	samples := []int16{1, 2, 3}

	for _, size := range []uint32{0, 0xFFFFFFFF} {
		t.Run(fmt.Sprintf("%#x", size), func(t *testing.T) {
			data := EncodeWAV(samples, 16000)
			binary.LittleEndian.PutUint32(data[40:44], size)

			got, rate, err := DecodeWAV(bytes.NewReader(data))
			require.NoError(t, err)
			require.Equal(t, 16000, rate)
			require.Equal(t, samples, got)
		})
	}
}

func TestCreateWAVFile_Exclusive(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session_20240101_120000.wav")
	require.NoError(t, CreateWAVFile(path, []int16{1, 2}, 16000))

	err := CreateWAVFile(path, []int16{9, 9, 9}, 16000)
	if !os.IsExist(err) {
		t.Errorf("CreateWAVFile() over existing file error = %v, want IsExist", err)
	}

	got, _, err := ReadWAVFile(path)
	require.NoError(t, err)
	require.Equal(t, []int16{1, 2}, got)
}

func TestWriteReadWAVFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session_20240101_120000.wav")
	samples := []int16{5, 4, 3, 2, 1}

	require.NoError(t, WriteWAVFile(path, samples, 16000))

	got, rate, err := ReadWAVFile(path)
	require.NoError(t, err)
	require.Equal(t, 16000, rate)
	require.Equal(t, samples, got)
}

func TestToFloat32(t *testing.T) {
	got := ToFloat32([]int16{0, 16384, -32768})
	want := []float32{0, 0.5, -1}
	require.Equal(t, want, got)
}

func TestFromFloat32_Clips(t *testing.T) {
	got := FromFloat32([]float32{0, 0.5, 2, -2})
	want := []int16{0, 16384, 32767, -32768}
	require.Equal(t, want, got)
}
