package ocr

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/sercha-ask/internal/core/ports/driven/mocks"
)

func TestTesseract_Available(t *testing.T) {
	t.Run("disabled", func(t *testing.T) {
		engine := NewTesseract(TesseractConfig{Enabled: false})
		assert.False(t, engine.Available())
	})

	t.Run("binary missing", func(t *testing.T) {
		engine := NewTesseract(TesseractConfig{Enabled: true})
		engine.lookPath = func(string) bool { return false }
		assert.False(t, engine.Available())
	})

	t.Run("binary present", func(t *testing.T) {
		lookups := 0
		engine := NewTesseract(TesseractConfig{Enabled: true, Path: "/opt/tesseract"})
		engine.lookPath = func(p string) bool {
			lookups++
			return p == "/opt/tesseract"
		}
		assert.True(t, engine.Available())
		assert.True(t, engine.Available())
		assert.Equal(t, 1, lookups)
	})
}

func TestTesseract_Recognize(t *testing.T) {
	runner := &mocks.MockCommandRunner{
		RunFn: func(name string, args []string) ([]byte, error) {
			return []byte("  Invoice 42\n"), nil
		},
	}
	engine := NewTesseract(TesseractConfig{Enabled: true, Language: "eng", Runner: runner})

	text, err := engine.Recognize(context.Background(), "/tmp/page.png")
	require.NoError(t, err)
	assert.Equal(t, "Invoice 42", text)

	calls := runner.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, []string{"tesseract", "/tmp/page.png", "stdout", "-l", "eng"}, calls[0])
}

func TestTesseract_RecognizeError(t *testing.T) {
	runner := &mocks.MockCommandRunner{
		RunFn: func(string, []string) ([]byte, error) {
			return nil, errors.New("tesseract failed")
		},
	}
	engine := NewTesseract(TesseractConfig{Enabled: true, Runner: runner})

	_, err := engine.Recognize(context.Background(), "/tmp/page.png")
	assert.Error(t, err)
}

func TestExecRunner_Defaults(t *testing.T) {
	assert.Equal(t, DefaultCommandTimeout, NewExecRunner(0).Timeout)
}
