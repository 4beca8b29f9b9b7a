package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"speechdesk/internal/domain"
)

const wavFormatPCM = 1

// WriteClip encodes interleaved s16le PCM as a WAV file at path and returns
// the clip. A trailing partial frame is dropped.
func WriteClip(path string, pcm []byte, format domain.PCMFormat) (domain.AudioClip, error) {
	if format.SampleWidth != 2 {
		return domain.AudioClip{}, fmt.Errorf("unsupported sample width %d", format.SampleWidth)
	}
	if format.Channels <= 0 || format.SampleRate <= 0 {
		return domain.AudioClip{}, fmt.Errorf("invalid clip format %+v", format)
	}

	frameSize := format.FrameSize()
	usable := len(pcm) - len(pcm)%frameSize

	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return domain.AudioClip{}, fmt.Errorf("create recordings dir: %w", err)
		}
	}

	file, err := os.Create(path)
	if err != nil {
		return domain.AudioClip{}, fmt.Errorf("create clip: %w", err)
	}

	samples := make([]int, usable/2)
	for i := range samples {
		samples[i] = int(int16(binary.LittleEndian.Uint16(pcm[i*2:])))
	}
	buffer := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: format.Channels, SampleRate: format.SampleRate},
		Data:           samples,
		SourceBitDepth: 16,
	}

	enc := wav.NewEncoder(file, format.SampleRate, 16, format.Channels, wavFormatPCM)
	if err := enc.Write(buffer); err != nil {
		_ = file.Close()
		return domain.AudioClip{}, fmt.Errorf("write wav: %w", err)
	}
	if err := enc.Close(); err != nil {
		_ = file.Close()
		return domain.AudioClip{}, fmt.Errorf("close wav encoder: %w", err)
	}
	if err := file.Close(); err != nil {
		return domain.AudioClip{}, fmt.Errorf("close clip: %w", err)
	}

	return domain.AudioClip{
		Path:      path,
		Format:    format,
		Frames:    usable / frameSize,
		CreatedAt: time.Now(),
	}, nil
}

// ClipReader reads PCM frames from a WAV clip.
type ClipReader struct {
	file     *os.File
	decoder  *wav.Decoder
	format   domain.PCMFormat
	bitDepth int
	frames   int
}

// OpenClip opens a WAV file and positions the reader at the PCM data. Files
// that are not PCM WAV fail with domain.ErrFormatMismatch.
func OpenClip(path string) (*ClipReader, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open clip: %w", err)
	}

	decoder := wav.NewDecoder(file)
	decoder.ReadInfo()
	if err := decoder.Err(); err != nil {
		_ = file.Close()
		return nil, fmt.Errorf("%w: %s is not a WAV file: %v", domain.ErrFormatMismatch, filepath.Base(path), err)
	}
	if decoder.WavAudioFormat != wavFormatPCM || decoder.NumChans == 0 || decoder.BitDepth == 0 || decoder.BitDepth%8 != 0 {
		_ = file.Close()
		return nil, fmt.Errorf("%w: %s is not linear PCM", domain.ErrFormatMismatch, filepath.Base(path))
	}
	if err := decoder.FwdToPCM(); err != nil {
		_ = file.Close()
		return nil, fmt.Errorf("%w: %s has no PCM data: %v", domain.ErrFormatMismatch, filepath.Base(path), err)
	}

	format := domain.PCMFormat{
		Channels:    int(decoder.NumChans),
		SampleWidth: int(decoder.BitDepth) / 8,
		SampleRate:  int(decoder.SampleRate),
	}
	return &ClipReader{
		file:     file,
		decoder:  decoder,
		format:   format,
		bitDepth: int(decoder.BitDepth),
		frames:   int(decoder.PCMSize) / format.FrameSize(),
	}, nil
}

// Format returns the clip's sample layout as stored in the file.
func (r *ClipReader) Format() domain.PCMFormat {
	return r.format
}

// Frames returns the number of frames in the data chunk.
func (r *ClipReader) Frames() int {
	return r.frames
}

// ReadFrames reads up to n frames and returns them as interleaved s16le bytes.
// Samples of other widths are rescaled to 16 bits. It returns io.EOF once
// the data is exhausted.
func (r *ClipReader) ReadFrames(n int) ([]byte, error) {
	if n <= 0 {
		return nil, nil
	}
	buffer := &goaudio.IntBuffer{
		Format: &goaudio.Format{NumChannels: r.format.Channels, SampleRate: r.format.SampleRate},
		Data:   make([]int, n*r.format.Channels),
	}
	read, err := r.decoder.PCMBuffer(buffer)
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("read pcm: %w", err)
	}
	read -= read % r.format.Channels
	if read == 0 {
		return nil, io.EOF
	}

	out := make([]byte, read*2)
	for i, sample := range buffer.Data[:read] {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(to16Bit(sample, r.bitDepth)))
	}
	return out, nil
}

// Close releases the underlying file.
func (r *ClipReader) Close() error {
	return r.file.Close()
}

// InspectClip reads the header of the WAV file at path.
func InspectClip(path string) (domain.AudioClip, error) {
	reader, err := OpenClip(path)
	if err != nil {
		return domain.AudioClip{}, err
	}
	defer reader.Close()

	clip := domain.AudioClip{Path: path, Format: reader.Format(), Frames: reader.Frames()}
	if info, err := os.Stat(path); err == nil {
		clip.CreatedAt = info.ModTime()
	}
	return clip, nil
}

// ReadPCM16 loads a whole clip as interleaved s16le bytes. The returned
// format always has a two-byte sample width.
func ReadPCM16(path string) ([]byte, domain.PCMFormat, error) {
	reader, err := OpenClip(path)
	if err != nil {
		return nil, domain.PCMFormat{}, err
	}
	defer reader.Close()

	format := reader.Format()
	format.SampleWidth = 2

	var pcm []byte
	for {
		chunk, err := reader.ReadFrames(4096)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, domain.PCMFormat{}, err
		}
		pcm = append(pcm, chunk...)
	}
	return pcm, format, nil
}

func to16Bit(sample int, bitDepth int) int16 {
	switch bitDepth {
	case 8:
		return int16((sample - 128) << 8)
	case 16:
		return int16(sample)
	default:
		return int16(sample >> (bitDepth - 16))
	}
}
