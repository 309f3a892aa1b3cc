package logging

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testStringer string

func (s testStringer) String() string { return string(s) }

func TestInitAndLoggingToFile(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "nested", "train.log")

	require.NoError(t, Init(logPath))
	t.Cleanup(func() { _ = Close() })

	LogEvent("hello %s", "world")
	LogFields("epoch", Fields{"loss": 0.5, "epoch": 2})
	require.NoError(t, Close())

	data, err := os.ReadFile(logPath)
	require.NoError(t, err)
	content := string(data)
	assert.Contains(t, content, "hello world")
	assert.Contains(t, content, "epoch epoch=2 loss=0.5000")
}

func TestCloseWithoutInit(t *testing.T) {
	require.NoError(t, Close())
}

func TestFormatFields(t *testing.T) {
	msg := formatFields(" eval ", Fields{
		"top1":  12.5,
		"name":  "a b",
		"empty": " ",
		"meter": testStringer("0.1 (0.2)"),
		"none":  nil,
		"step":  7,
	})
	assert.Equal(t, `eval empty="" meter=0.1 (0.2) name="a b" none=null step=7 top1=12.5000`, msg)

	assert.Equal(t, "k=1", formatFields("", Fields{"k": 1}))
}
