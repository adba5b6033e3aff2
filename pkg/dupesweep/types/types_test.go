package types

import (
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashDistance(t *testing.T) {
	tests := []struct {
		name string
		a, b uint64
		want int
	}{
		{"identical", 0xdeadbeef, 0xdeadbeef, 0},
		{"one bit", 0b1000, 0b0000, 1},
		{"all bits", 0, ^uint64(0), 64},
		{"mixed", 0b1010, 0b0101, 4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := Hash{Bits: tt.a, Width: HashWidth, Algorithm: AlgorithmPHash}
			b := Hash{Bits: tt.b, Width: HashWidth, Algorithm: AlgorithmPHash}
			assert.Equal(t, tt.want, a.Distance(b))
			assert.Equal(t, tt.want, b.Distance(a))
		})
	}
}

func TestHashDistance_NarrowWidthIgnoresHighBits(t *testing.T) {
	a := Hash{Bits: 0xff00, Width: 8, Algorithm: AlgorithmAHash}
	b := Hash{Bits: 0x0000, Width: 8, Algorithm: AlgorithmAHash}
	assert.Equal(t, 0, a.Distance(b))
}

func TestHashCompatible(t *testing.T) {
	p := Hash{Width: 64, Algorithm: AlgorithmPHash}

	assert.True(t, p.Compatible(Hash{Width: 64, Algorithm: AlgorithmPHash}))
	assert.False(t, p.Compatible(Hash{Width: 32, Algorithm: AlgorithmPHash}))
	assert.False(t, p.Compatible(Hash{Width: 64, Algorithm: AlgorithmDHash}))
	assert.False(t, Hash{}.Compatible(Hash{}))
}

func TestAlgorithmValid(t *testing.T) {
	for _, a := range Algorithms {
		assert.True(t, a.Valid(), a)
	}
	assert.False(t, Algorithm("md5").Valid())
}

func TestParseSize(t *testing.T) {
	tests := []struct {
		in      string
		want    uint64
		wantErr bool
	}{
		{"1024", 1024, false},
		{"512MiB", 512 * MiB, false},
		{"1 GiB", GiB, false},
		{"2GB", 2_000_000_000, false},
		{"", 0, true},
		{"-5M", 0, true},
		{"lots", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseSize(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrInvalidSize)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNewDecodeFailure(t *testing.T) {
	df := NewDecodeFailure("/a.jpg", io.ErrUnexpectedEOF)
	assert.Equal(t, "/a.jpg", df.Path)
	assert.ErrorIs(t, df, io.ErrUnexpectedEOF)
	assert.Contains(t, df.Error(), "/a.jpg")

	// Wrapping an existing failure keeps it and fills in a missing path.
	inner := &DecodeFailure{Reason: "empty image"}
	wrapped := NewDecodeFailure("/b.png", inner)
	assert.Equal(t, "/b.png", wrapped.Path)
	assert.Equal(t, "empty image", wrapped.Reason)

	var target *DecodeFailure
	assert.True(t, errors.As(error(wrapped), &target))
}

func TestReportReclaimableBytes(t *testing.T) {
	r := &Report{
		Scores: map[string][]SelectionScore{
			"a": {
				{Record: ImageRecord{Size: 100}, Action: ActionKeep},
				{Record: ImageRecord{Size: 40}, Action: ActionDelete},
			},
			"b": {
				{Record: ImageRecord{Size: 7}, Action: ActionDelete},
			},
		},
	}
	assert.Equal(t, uint64(47), r.ReclaimableBytes())
}

func TestScanProgressFraction(t *testing.T) {
	assert.Zero(t, ScanProgress{}.Fraction())
	assert.InDelta(t, 0.25, ScanProgress{FilesTotal: 8, FilesDone: 2}.Fraction(), 1e-9)
	assert.InDelta(t, 1.0, ScanProgress{FilesTotal: 2, FilesDone: 3}.Fraction(), 1e-9)
}
