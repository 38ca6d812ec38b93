package logger

import (
	"bytes"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetLevel(t *testing.T) {
	l := GetLogger()
	defer l.SetLevel(logrus.InfoLevel)

	require.NoError(t, SetLevel("debug"))
	assert.Equal(t, logrus.DebugLevel, l.GetLevel())

	require.NoError(t, SetLevel(""))
	assert.Equal(t, logrus.DebugLevel, l.GetLevel(), "empty level keeps the current one")

	require.NoError(t, SetLevel("WARN"))
	assert.Equal(t, logrus.WarnLevel, l.GetLevel())

	assert.Error(t, SetLevel("chatty"))
}

func TestOutputRedirect(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	defer SetOutput(&bytes.Buffer{})

	GetLogger().WithField("count", 3).Info("sent")
	assert.Contains(t, buf.String(), "count=3")
	assert.Contains(t, buf.String(), "sent")
}
