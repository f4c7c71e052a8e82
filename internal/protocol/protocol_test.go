package protocol

import (
	"bytes"
	"io"
	"strings"
	"testing"

	"chunkserve/internal/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSentinel(t *testing.T) {
	s := Sentinel()
	assert.Equal(t, []byte{'$', 0x00}, s)
	assert.True(t, IsSentinel(s))

	// Mutating the returned copy must not change the marker
	s[0] = 'x'
	assert.True(t, IsSentinel([]byte{'$', 0x00}))

	assert.False(t, IsSentinel([]byte{'$'}))
	assert.False(t, IsSentinel([]byte{'$', 0x00, 'a'}))
	assert.False(t, IsSentinel(nil))
}

func TestNeedsSentinel(t *testing.T) {
	assert.False(t, NeedsSentinel(0))
	assert.False(t, NeedsSentinel(DataSize))
	assert.True(t, NeedsSentinel(DataSize+1))
}

func TestEncodeChunk(t *testing.T) {
	assert.Len(t, EncodeChunk(make([]byte, ChunkSize)), DataSize)
	assert.Len(t, EncodeChunk(make([]byte, 10)), 10)
}

func TestReadChunk(t *testing.T) {
	content := bytes.Repeat([]byte("abcdefgh"), 300) // 2400 bytes
	r := bytes.NewReader(content)
	buf := make([]byte, ChunkSize)

	var sizes []int
	var got []byte
	for {
		n, err := ReadChunk(r, buf)
		got = append(got, buf[:n]...)
		if n > 0 {
			sizes = append(sizes, n)
		}
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
	}

	assert.Equal(t, []int{DataSize, DataSize, 2400 - 2*DataSize}, sizes)
	assert.Equal(t, content, got)
}

func TestReadChunk_Empty(t *testing.T) {
	n, err := ReadChunk(bytes.NewReader(nil), make([]byte, ChunkSize))
	assert.Equal(t, 0, n)
	assert.Equal(t, io.EOF, err)
}

func TestParseRequest(t *testing.T) {
	tests := []struct {
		name    string
		input   []byte
		want    string
		wantErr bool
	}{
		{name: "plain", input: []byte("report.pdf"), want: "report.pdf"},
		{name: "nul terminated", input: []byte("report.pdf\x00"), want: "report.pdf"},
		{name: "garbage after nul", input: []byte("a.txt\x00junk"), want: "a.txt"},
		{name: "line ending", input: []byte("notes.md\r\n"), want: "notes.md"},
		{name: "nested path", input: []byte("docs/a b.txt"), want: "docs/a b.txt"},
		{name: "empty", input: []byte{}, wantErr: true},
		{name: "only nul", input: []byte{0}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseRequest(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, errors.ErrProtocol)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEncodeRequest(t *testing.T) {
	p, err := EncodeRequest("data.bin")
	require.NoError(t, err)
	assert.Equal(t, []byte("data.bin"), p)

	_, err = EncodeRequest("")
	assert.ErrorIs(t, err, errors.ErrValidation)

	_, err = EncodeRequest("bad\x00name")
	assert.ErrorIs(t, err, errors.ErrValidation)

	_, err = EncodeRequest(strings.Repeat("n", MaxRequestSize+1))
	assert.ErrorIs(t, err, errors.ErrValidation)
}

func TestReadRequest(t *testing.T) {
	name, err := ReadRequest(strings.NewReader("movie.mkv"))
	require.NoError(t, err)
	assert.Equal(t, "movie.mkv", name)

	_, err = ReadRequest(strings.NewReader(""))
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrProtocol)
	assert.ErrorIs(t, err, io.EOF)
}
