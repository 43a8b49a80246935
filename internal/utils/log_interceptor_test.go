package utils

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogInterceptor_PrefixesCompleteLines(t *testing.T) {
	var out bytes.Buffer
	li := NewLogInterceptor(&out)
	li.now = func() time.Time { return time.Date(2020, 6, 1, 0, 0, 0, 0, time.UTC) }

	n, err := li.Write([]byte("level=INFO msg=one\nlevel=INFO msg=tw"))
	require.NoError(t, err)
	assert.Equal(t, len("level=INFO msg=one\nlevel=INFO msg=tw"), n)
	assert.Equal(t, "line=1 time=2020-06-01T00:00:00Z level=INFO msg=one\n", out.String())

	_, err = li.Write([]byte("o\r\n"))
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSuffix(out.String(), "\n"), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "line=2 time=2020-06-01T00:00:00Z level=INFO msg=two", lines[1])
}

func TestLogInterceptor_CloseFlushesRemainder(t *testing.T) {
	var out bytes.Buffer
	li := NewLogInterceptor(&out)

	_, err := li.Write([]byte("dangling"))
	require.NoError(t, err)
	assert.Empty(t, out.String())

	require.NoError(t, li.Close())
	assert.Contains(t, out.String(), "line=1 ")
	assert.True(t, strings.HasSuffix(out.String(), "dangling\n"))
}
