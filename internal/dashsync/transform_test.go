package dashsync

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFloat(t *testing.T) {
	tests := []struct {
		name    string
		in      any
		want    any
		wantErr bool
	}{
		{name: "dot decimal", in: "4.3", want: 4.3},
		{name: "german comma", in: "1.234,5", want: 1234.5},
		{name: "comma only", in: "12,5", want: 12.5},
		{name: "plain int string", in: "42", want: 42.0},
		{name: "float passthrough", in: 3.14, want: 3.14},
		{name: "int passthrough", in: 7, want: 7.0},
		{name: "empty string", in: "", want: nil},
		{name: "whitespace", in: "  ", want: nil},
		{name: "garbage", in: "n/a", wantErr: true},
		{name: "bool", in: true, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseFloat(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRound(t *testing.T) {
	got, err := Round(3)(0.123456)
	require.NoError(t, err)
	assert.Equal(t, 0.123, got)

	got, err = Round(0)(2.5)
	require.NoError(t, err)
	assert.Equal(t, 3.0, got)

	_, err = Round(2)("not a float")
	require.Error(t, err)
}

func TestNullIf(t *testing.T) {
	got, err := NullIf(-999)(-999.0)
	require.NoError(t, err)
	assert.Nil(t, got)

	got, err = NullIf(-999)(4.3)
	require.NoError(t, err)
	assert.Equal(t, 4.3, got)

	// non-floats pass through untouched
	got, err = NullIf(-999)("text")
	require.NoError(t, err)
	assert.Equal(t, "text", got)
}

func TestParseDate(t *testing.T) {
	got, err := ParseDate("20060102")("20240315")
	require.NoError(t, err)
	assert.Equal(t, "2024-03-15", got)

	// multiple candidate layouts
	got, err = ParseDate("02.01.2006", "2006-01-02")("15.03.2024")
	require.NoError(t, err)
	assert.Equal(t, "2024-03-15", got)

	_, err = ParseDate("20060102")("2024-03-15")
	require.Error(t, err)

	_, err = ParseDate("20060102")(42)
	require.Error(t, err)
}

func TestChain(t *testing.T) {
	tr := Chain(ParseFloat, NullIf(-999), Round(1))

	got, err := tr("4.26")
	require.NoError(t, err)
	assert.Equal(t, 4.3, got)

	// nil short-circuits the rest of the chain
	got, err = tr("-999")
	require.NoError(t, err)
	assert.Nil(t, got)

	_, err = tr("garbage")
	require.Error(t, err)
}
