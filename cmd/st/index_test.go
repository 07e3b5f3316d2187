package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseOldest(t *testing.T) {
	tests := []struct {
		in      string
		want    *int
		wantErr bool
	}{
		{in: "", want: nil},
		{in: "1820", want: intp(1820)},
		{in: " 1500 ", want: intp(1500)},
		{in: "1820 BC", want: intp(-1820)},
		{in: "1820 bc", want: intp(-1820)},
		{in: "?", wantErr: true},
		{in: "twelve", wantErr: true},
	}
	for _, tt := range tests {
		got, err := parseOldest(tt.in)
		if tt.wantErr {
			assert.Error(t, err, "parseOldest(%q)", tt.in)
			continue
		}
		require.NoError(t, err, "parseOldest(%q)", tt.in)
		if tt.want == nil {
			assert.Nil(t, got, "parseOldest(%q)", tt.in)
		} else {
			require.NotNil(t, got, "parseOldest(%q)", tt.in)
			assert.Equal(t, *tt.want, *got, "parseOldest(%q)", tt.in)
		}
	}
}

func intp(v int) *int { return &v }
