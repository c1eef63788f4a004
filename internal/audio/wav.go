package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

const (
	bitDepth      = 16
	wavFormatPCM  = 1
	bytesPerInt16 = 2
)

// WAVWriter encodes s16le PCM as a RIFF/WAVE file. The chunk sizes in the
// header are written on Close, so the destination must be seekable.
type WAVWriter struct {
	enc    *wav.Encoder
	format Format
	carry  []byte
	buf    *goaudio.IntBuffer
	header bool
}

func NewWAVWriter(w io.WriteSeeker, f Format) *WAVWriter {
	return &WAVWriter{
		enc:    wav.NewEncoder(w, f.SampleRate, bitDepth, f.Channels, wavFormatPCM),
		format: f,
		buf: &goaudio.IntBuffer{
			Format:         &goaudio.Format{NumChannels: f.Channels, SampleRate: f.SampleRate},
			SourceBitDepth: bitDepth,
		},
	}
}

// Write accepts any number of bytes. A trailing odd byte is held until the
// next write completes the sample.
func (w *WAVWriter) Write(p []byte) (int, error) {
	data := p
	if len(w.carry) > 0 {
		data = append(w.carry, p...)
		w.carry = nil
	}

	whole := len(data) - len(data)%bytesPerInt16
	if whole < len(data) {
		w.carry = append([]byte(nil), data[whole:]...)
	}
	if whole == 0 {
		return len(p), nil
	}

	samples := w.buf.Data[:0]
	for i := 0; i < whole; i += bytesPerInt16 {
		samples = append(samples, int(int16(binary.LittleEndian.Uint16(data[i:]))))
	}
	w.buf.Data = samples

	if err := w.enc.Write(w.buf); err != nil {
		return 0, fmt.Errorf("failed to encode wav samples: %w", err)
	}
	w.header = true
	return len(p), nil
}

// Close finalises the header. An incomplete trailing sample is dropped.
func (w *WAVWriter) Close() error {
	if len(w.carry) > 0 {
		slog.Warn("dropping incomplete trailing sample", "bytes", len(w.carry))
		w.carry = nil
	}
	if !w.header {
		// The encoder only emits its header on the first write.
		w.buf.Data = w.buf.Data[:0]
		if err := w.enc.Write(w.buf); err != nil {
			return fmt.Errorf("failed to write wav header: %w", err)
		}
	}
	return w.enc.Close()
}

var _ io.WriteCloser = (*WAVWriter)(nil)

// WAVFile is a WAVWriter backed by a file on disk.
type WAVFile struct {
	*WAVWriter
	file *os.File
}

// CreateWAV creates (or truncates) path and returns a sink recording to it.
func CreateWAV(path string, f Format) (*WAVFile, error) {
	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create wav file: %w", err)
	}
	return &WAVFile{WAVWriter: NewWAVWriter(file, f), file: file}, nil
}

func (w *WAVFile) Close() error {
	return errors.Join(w.WAVWriter.Close(), w.file.Close())
}

func (w *WAVFile) Path() string {
	return w.file.Name()
}

var _ Recording = (*WAVFile)(nil)
