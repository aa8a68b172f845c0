package mime

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	pngHeader  = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'}
	jpegHeader = []byte{0xff, 0xd8, 0xff, 0xe0}
)

func TestSniffContentType(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want string
	}{
		{"png", pngHeader, "image/png"},
		{"jpeg", jpegHeader, "image/jpeg"},
		{"text", []byte("hello world"), "text/plain"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := SniffContentType(bytes.NewReader(tt.data))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSniffSeeksBack(t *testing.T) {
	reader := bytes.NewReader(pngHeader)

	_, err := SniffContentType(reader)
	require.NoError(t, err)

	// The stream must be positioned at the start for the subsequent save.
	data, err := io.ReadAll(reader)
	require.NoError(t, err)
	assert.Equal(t, pngHeader, data)
}
