// Package wavfile reads and writes 32-bit IEEE float WAV files.
//
// Files carry an 18-byte fmt chunk (cbSize 0), a fact chunk and a data
// chunk, for a fixed 58-byte header.
package wavfile

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
)

// HeaderSize is the length of the header written by Encode.
const HeaderSize = 58

const (
	formatIEEEFloat = 3
	bitsPerSample   = 32
	bytesPerSample  = bitsPerSample / 8
)

// Errors returned by this package.
var (
	ErrInvalidFormat = errors.New("wavfile: invalid format")
	ErrUnsupported   = errors.New("wavfile: unsupported encoding")
)

// Header describes a float WAV stream.
type Header struct {
	SampleRate int
	Channels   int
	Frames     int
}

// Encode writes interleaved float32 samples as a WAV stream.
func Encode(w io.Writer, sampleRate, channels int, interleaved []float32) error {
	if sampleRate <= 0 || channels <= 0 {
		return fmt.Errorf("%w: sample rate %d, channels %d", ErrInvalidFormat, sampleRate, channels)
	}

	if len(interleaved)%channels != 0 {
		return fmt.Errorf("%w: %d samples do not fill %d channels", ErrInvalidFormat, len(interleaved), channels)
	}

	dataSize := len(interleaved) * bytesPerSample
	blockAlign := channels * bytesPerSample

	hdr := new(bytes.Buffer)
	hdr.Grow(HeaderSize)

	hdr.WriteString("RIFF")
	put(hdr, uint32(HeaderSize-8+dataSize))
	hdr.WriteString("WAVE")

	hdr.WriteString("fmt ")
	put(hdr, uint32(18))
	put(hdr, uint16(formatIEEEFloat))
	put(hdr, uint16(channels))
	put(hdr, uint32(sampleRate))
	put(hdr, uint32(sampleRate*blockAlign))
	put(hdr, uint16(blockAlign))
	put(hdr, uint16(bitsPerSample))
	put(hdr, uint16(0)) // cbSize

	hdr.WriteString("fact")
	put(hdr, uint32(4))
	put(hdr, uint32(len(interleaved)/channels))

	hdr.WriteString("data")
	put(hdr, uint32(dataSize))

	bw := bufio.NewWriter(w)
	if _, err := bw.Write(hdr.Bytes()); err != nil {
		return fmt.Errorf("wavfile: write header: %w", err)
	}

	if err := binary.Write(bw, binary.LittleEndian, interleaved); err != nil {
		return fmt.Errorf("wavfile: write samples: %w", err)
	}

	if err := bw.Flush(); err != nil {
		return fmt.Errorf("wavfile: flush: %w", err)
	}

	return nil
}

// put writes v little-endian into a bytes.Buffer, which cannot fail.
func put(buf *bytes.Buffer, v any) {
	_ = binary.Write(buf, binary.LittleEndian, v)
}

// EncodeMono writes a single float64 channel, narrowed to float32.
func EncodeMono(w io.Writer, sampleRate int, samples []float64) error {
	narrowed := make([]float32, len(samples))
	for i, v := range samples {
		narrowed[i] = float32(v)
	}

	return Encode(w, sampleRate, 1, narrowed)
}

// WriteMono creates path and writes a mono float WAV file into it.
func WriteMono(path string, sampleRate int, samples []float64) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("wavfile: %w", err)
	}

	defer func() {
		if cerr := f.Close(); err == nil && cerr != nil {
			err = fmt.Errorf("wavfile: %w", cerr)
		}
	}()

	return EncodeMono(f, sampleRate, samples)
}

// Decode reads a float WAV stream written by Encode or any other writer of
// 32-bit IEEE float WAV. Unknown chunks are skipped.
func Decode(r io.Reader) (Header, []float32, error) {
	var riff [12]byte
	if _, err := io.ReadFull(r, riff[:]); err != nil {
		return Header{}, nil, fmt.Errorf("%w: %w", ErrInvalidFormat, err)
	}

	if string(riff[0:4]) != "RIFF" || string(riff[8:12]) != "WAVE" {
		return Header{}, nil, fmt.Errorf("%w: not a RIFF/WAVE stream", ErrInvalidFormat)
	}

	var (
		hdr    Header
		gotFmt bool
	)

	for {
		var chunk struct {
			ID   [4]byte
			Size uint32
		}

		if err := binary.Read(r, binary.LittleEndian, &chunk); err != nil {
			return Header{}, nil, fmt.Errorf("%w: missing data chunk: %w", ErrInvalidFormat, err)
		}

		switch string(chunk.ID[:]) {
		case "fmt ":
			if chunk.Size < 16 {
				return Header{}, nil, fmt.Errorf("%w: fmt chunk of %d bytes", ErrInvalidFormat, chunk.Size)
			}

			var f struct {
				Format        uint16
				Channels      uint16
				SampleRate    uint32
				ByteRate      uint32
				BlockAlign    uint16
				BitsPerSample uint16
			}
			if err := binary.Read(r, binary.LittleEndian, &f); err != nil {
				return Header{}, nil, fmt.Errorf("%w: %w", ErrInvalidFormat, err)
			}

			if f.Format != formatIEEEFloat || f.BitsPerSample != bitsPerSample {
				return Header{}, nil, fmt.Errorf("%w: format %d with %d bits", ErrUnsupported, f.Format, f.BitsPerSample)
			}

			if f.Channels == 0 {
				return Header{}, nil, fmt.Errorf("%w: zero channels", ErrInvalidFormat)
			}

			hdr.SampleRate = int(f.SampleRate)
			hdr.Channels = int(f.Channels)
			gotFmt = true

			if err := skip(r, int64(chunk.Size)-16); err != nil {
				return Header{}, nil, err
			}
		case "data":
			if !gotFmt {
				return Header{}, nil, fmt.Errorf("%w: data before fmt", ErrInvalidFormat)
			}

			samples := make([]float32, chunk.Size/bytesPerSample)
			if err := binary.Read(r, binary.LittleEndian, samples); err != nil {
				return Header{}, nil, fmt.Errorf("%w: truncated data: %w", ErrInvalidFormat, err)
			}

			hdr.Frames = len(samples) / hdr.Channels

			return hdr, samples, nil
		default:
			if err := skip(r, int64(chunk.Size)+int64(chunk.Size&1)); err != nil {
				return Header{}, nil, err
			}
		}
	}
}

func skip(r io.Reader, n int64) error {
	if n <= 0 {
		return nil
	}

	if _, err := io.CopyN(io.Discard, r, n); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidFormat, err)
	}

	return nil
}
