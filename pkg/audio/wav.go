package audio

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/go-audio/wav"
)

// WriteWAV encodes 16-bit PCM in format f as a RIFF/WAVE stream.
func WriteWAV(w io.WriteSeeker, pcm []byte, f Format) error {
	enc := wav.NewEncoder(w, f.SampleRate, 16, f.Channels, 1)
	if err := enc.Write(intBuffer(pcm, f)); err != nil {
		enc.Close()
		return fmt.Errorf("audio: encode wav: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("audio: finalize wav: %w", err)
	}
	return nil
}

// DumpWAV writes pcm to dir/name.wav, creating dir if needed, and returns
// the file path.
func DumpWAV(dir, name string, pcm []byte, f Format) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("audio: create dump dir: %w", err)
	}
	path := filepath.Join(dir, name+".wav")
	file, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("audio: create %s: %w", path, err)
	}
	if err := WriteWAV(file, pcm, f); err != nil {
		file.Close()
		os.Remove(path)
		return "", err
	}
	if err := file.Close(); err != nil {
		return "", fmt.Errorf("audio: close %s: %w", path, err)
	}
	return path, nil
}
