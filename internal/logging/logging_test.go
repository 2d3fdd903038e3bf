package logging

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_WritesToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bridge.log")
	log, closeFn, err := New(Options{Level: "debug", Format: "json", File: path})
	require.NoError(t, err)

	log.WithField("order_id", "A1").Debug("hello")
	require.NoError(t, closeFn())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"order_id":"A1"`)
	assert.Contains(t, string(data), `"msg":"hello"`)
	assert.Equal(t, logrus.DebugLevel, log.GetLevel())
}

func TestNew_Defaults(t *testing.T) {
	log, closeFn, err := New(Options{})
	require.NoError(t, err)
	assert.NoError(t, closeFn())
	assert.Equal(t, logrus.InfoLevel, log.GetLevel())
	assert.IsType(t, &logrus.JSONFormatter{}, log.Formatter)
}

func TestNew_Invalid(t *testing.T) {
	_, _, err := New(Options{Level: "loud"})
	assert.Error(t, err)
	_, _, err = New(Options{Format: "xml"})
	assert.Error(t, err)
}
