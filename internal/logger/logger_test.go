package logger

import (
	"bytes"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormat(t *testing.T) {
	entry := &logrus.Entry{
		Time:    time.Date(2024, 3, 1, 10, 30, 0, 0, time.UTC),
		Level:   logrus.WarnLevel,
		Message: "Could not remove attachment",
		Data:    logrus.Fields{"url": "http://x/a.png", "bucket": "images"},
	}

	data, err := new(logFormatter).Format(entry)
	require.NoError(t, err)
	assert.Equal(t, "[2024-03-01T10:30:00Z] WARNING: Could not remove attachment (bucket=images, url=http://x/a.png)\n", string(data))

	entry.Data = nil
	data, err = new(logFormatter).Format(entry)
	require.NoError(t, err)
	assert.Equal(t, "[2024-03-01T10:30:00Z] WARNING: Could not remove attachment\n", string(data))
}

func TestFileHook(t *testing.T) {
	var buf bytes.Buffer

	l := New("")
	l.SetOutput(&bytes.Buffer{})
	l.Hooks.Add(&fileHook{rotate: &buf, formatter: new(logFormatter)})

	l.WithField("collection", "events").Info("Reloaded")
	assert.Contains(t, buf.String(), " INFO: Reloaded (collection=events)\n")
}

func TestNew_File(t *testing.T) {
	l := New(filepath.Join(t.TempDir(), "unionboard.log"))
	assert.Len(t, l.Hooks[logrus.InfoLevel], 1)
}
