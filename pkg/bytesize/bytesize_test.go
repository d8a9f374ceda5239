package bytesize

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	tests := []struct {
		in      string
		want    int64
		wantErr bool
	}{
		{in: "1024", want: 1024},
		{in: "0", want: 0},
		{in: "1KB", want: KB},
		{in: "1.5 GB", want: GB + GB/2},
		{in: "10mi", want: 10 * MB},
		{in: " 2 tb ", want: 2 * TB},
		{in: "", wantErr: true},
		{in: "-1MB", wantErr: true},
		{in: "5 parsecs", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := Parse(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFormat(t *testing.T) {
	assert.Equal(t, "0 B", Format(0))
	assert.Equal(t, "512 B", Format(512))
	assert.Equal(t, "1.00 KB", Format(KB))
	assert.Equal(t, "1.50 MB", Format(MB+MB/2))
	assert.Equal(t, "3.00 TB", Format(3*TB))
}
