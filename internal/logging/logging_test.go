package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWriter_RespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	l, err := NewWriter(&buf, "warn")
	require.NoError(t, err)

	l.Infof("reading %s accepted", "r1")
	l.Warnf("sensor %s inactive", "s1")

	assert.NotContains(t, buf.String(), "r1")
	assert.Contains(t, buf.String(), "sensor s1 inactive")
}

func TestNewWriter_RejectsUnknownLevel(t *testing.T) {
	_, err := NewWriter(&bytes.Buffer{}, "chatty")
	assert.Error(t, err)
}

func TestWithRequest(t *testing.T) {
	var buf bytes.Buffer
	l, err := NewWriter(&buf, "debug")
	require.NoError(t, err)

	l.WithRequest("req-42").Info("handled")

	assert.Contains(t, buf.String(), "request_id=req-42")
}

func TestNew_CreatesLogFile(t *testing.T) {
	dir := t.TempDir()
	l, err := New(dir, "info")
	require.NoError(t, err)

	l.Info("started")
	require.NoError(t, l.Close())

	_, err = os.Stat(filepath.Join(dir, "emission-service.log"))
	assert.NoError(t, err)
}
