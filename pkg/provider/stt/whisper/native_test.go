package whisper_test

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/MrWong99/pushtalk/pkg/provider/stt"
	"github.com/MrWong99/pushtalk/pkg/provider/stt/whisper"
)

// testModelPath returns the path to a whisper model for integration tests.
// It reads from the WHISPER_MODEL_PATH environment variable. If unset the
// test is skipped.
func testModelPath(t *testing.T) string {
	t.Helper()
	p := os.Getenv("WHISPER_MODEL_PATH")
	if p == "" {
		t.Skip("WHISPER_MODEL_PATH not set; skipping native whisper test")
	}
	return p
}

func TestNewNative_EmptyPath_ReturnsError(t *testing.T) {
	if _, err := whisper.NewNative(""); err == nil {
		t.Fatal("expected error for empty model path, got nil")
	}
}

func TestNewNative_InvalidPath_ReturnsError(t *testing.T) {
	if _, err := whisper.NewNative("/nonexistent/path/to/model.bin"); err == nil {
		t.Fatal("expected error for invalid model path, got nil")
	}
}

func TestNativeRecognizer_SilenceIsEmpty(t *testing.T) {
	e, err := whisper.NewNative(testModelPath(t), whisper.WithNativeLanguage("en"), whisper.WithThreads(2))
	if err != nil {
		t.Fatalf("NewNative: %v", err)
	}
	defer e.Close()

	r, err := e.NewRecognizer(context.Background())
	if err != nil {
		t.Fatalf("NewRecognizer: %v", err)
	}
	defer r.Close()

	// One second of digital silence.
	if err := r.AcceptWaveform(make([]byte, 32000)); err != nil {
		t.Fatalf("AcceptWaveform: %v", err)
	}
	tr, err := r.FinalResult(context.Background())
	if err != nil {
		t.Fatalf("FinalResult: %v", err)
	}
	if tr.AudioDuration.Seconds() != 1 {
		t.Errorf("AudioDuration = %s, want 1s", tr.AudioDuration)
	}
	if _, err := r.FinalResult(context.Background()); err == nil {
		t.Error("second FinalResult should fail")
	}
}

func TestNativeRecognizer_ClosedRejectsAudio(t *testing.T) {
	e, err := whisper.NewNative(testModelPath(t))
	if err != nil {
		t.Fatalf("NewNative: %v", err)
	}
	defer e.Close()

	r, err := e.NewRecognizer(context.Background())
	if err != nil {
		t.Fatalf("NewRecognizer: %v", err)
	}
	r.Close()
	if err := r.AcceptWaveform([]byte{0, 0}); err != stt.ErrRecognizerClosed {
		t.Errorf("AcceptWaveform after Close = %v, want ErrRecognizerClosed", err)
	}
}

func TestNativeEngine_CancelledContext(t *testing.T) {
	e, err := whisper.NewNative(testModelPath(t))
	if err != nil {
		t.Fatalf("NewNative: %v", err)
	}
	defer e.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := e.NewRecognizer(ctx); err == nil {
		t.Error("expected error for cancelled context")
	}
}

func TestNativeEngine_ReadyUntilClosed(t *testing.T) {
	e, err := whisper.NewNative(testModelPath(t))
	if err != nil {
		t.Fatalf("NewNative: %v", err)
	}
	if err := e.Ready(context.Background()); err != nil {
		t.Fatalf("Ready on a loaded model: %v", err)
	}
	if err := e.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := e.Ready(context.Background()); !errors.Is(err, stt.ErrEngineClosed) {
		t.Errorf("Ready after Close = %v, want ErrEngineClosed", err)
	}
	if _, err := e.NewRecognizer(context.Background()); !errors.Is(err, stt.ErrEngineClosed) {
		t.Errorf("NewRecognizer after Close = %v, want ErrEngineClosed", err)
	}
}
