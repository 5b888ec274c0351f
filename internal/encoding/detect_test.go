package encoding_test

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/encoding/unicode"

	"github.com/MrJamesThe3rd/timebank/internal/encoding"
)

const roster = "user_id;name\n5f0c6a52-8f2e-4b6b-9a51-2f7d3c1a9e10;João Conceição\n"

func readAll(t *testing.T, input []byte) (string, encoding.Charset) {
	t.Helper()

	r, cs, err := encoding.NewUTF8Reader(bytes.NewReader(input))
	require.NoError(t, err)

	got, err := io.ReadAll(r)
	require.NoError(t, err)

	return string(got), cs
}

func TestNewUTF8Reader(t *testing.T) {
	utf16le, err := unicode.UTF16(unicode.LittleEndian, unicode.UseBOM).NewEncoder().Bytes([]byte(roster))
	require.NoError(t, err)

	utf16be, err := unicode.UTF16(unicode.BigEndian, unicode.UseBOM).NewEncoder().Bytes([]byte(roster))
	require.NoError(t, err)

	tests := []struct {
		name    string
		input   []byte
		want    string
		charset encoding.Charset
	}{
		{
			name:    "UTF8Passthrough",
			input:   []byte(roster),
			want:    roster,
			charset: encoding.UTF8,
		},
		{
			name:    "UTF8BOMStripped",
			input:   append([]byte{0xEF, 0xBB, 0xBF}, roster...),
			want:    roster,
			charset: encoding.UTF8BOM,
		},
		{
			name:    "UTF16LE",
			input:   utf16le,
			want:    roster,
			charset: encoding.UTF16LE,
		},
		{
			name:    "UTF16BE",
			input:   utf16be,
			want:    roster,
			charset: encoding.UTF16BE,
		},
		{
			// "Conceição" in Windows-1252: ç = 0xE7, ã = 0xE3.
			name:  "Windows1252",
			input: []byte{'C', 'o', 'n', 'c', 'e', 'i', 0xE7, 0xE3, 'o', '\n'},
			want:  "Conceição\n",
		},
		{
			name:    "Empty",
			input:   nil,
			want:    "",
			charset: encoding.UTF8,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, cs := readAll(t, tt.input)
			assert.Equal(t, tt.want, got)

			// Single byte guesses may land on any Latin charset that
			// decodes the sample identically.
			if tt.charset != "" {
				assert.Equal(t, tt.charset, cs)
			}
		})
	}
}

func TestDetect_LargeInputUsesSample(t *testing.T) {
	// Valid UTF-8 beyond the sampled prefix does not change the decision.
	input := append(bytes.Repeat([]byte("a"), 8192), "ção\n"...)

	got, cs := readAll(t, input)
	assert.Equal(t, encoding.UTF8, cs)
	assert.Equal(t, string(input), got)
}
