// Package fingerprint computes perceptual hashes of decoded images.
//
// A Computer is bound to one algorithm for its lifetime so every hash it
// produces in a run has the same width and can be compared. Computing is a
// pure function of the pixels: the same image always yields the same hash.
package fingerprint

import (
	"errors"
	"fmt"
	"image"

	"github.com/artyom/phash"
	"github.com/corona10/goimagehash"
	"github.com/disintegration/imaging"

	"github.com/jamesainslie/dupesweep/pkg/dupesweep/types"
)

var (
	// ErrEmptyImage is the reason reported for nil or zero-area images.
	ErrEmptyImage = errors.New("image has no pixels")

	// ErrIncompatible is returned when comparing hashes of different
	// widths or algorithms.
	ErrIncompatible = errors.New("hashes are not comparable")
)

// Computer hashes images with a fixed algorithm.
type Computer struct {
	algorithm types.Algorithm
	hashFn    func(image.Image) (uint64, error)
}

// New returns a Computer for algorithm, or a ConfigurationError when the
// algorithm is not supported.
func New(algorithm types.Algorithm) (*Computer, error) {
	c := &Computer{algorithm: algorithm}

	switch algorithm {
	case types.AlgorithmPHash:
		c.hashFn = imageHash(goimagehash.PerceptionHash)
	case types.AlgorithmDHash:
		c.hashFn = imageHash(goimagehash.DifferenceHash)
	case types.AlgorithmAHash:
		c.hashFn = imageHash(goimagehash.AverageHash)
	case types.AlgorithmDCT:
		c.hashFn = dctHash
	default:
		return nil, &types.ConfigurationError{
			Field:  "hash.algorithm",
			Value:  algorithm,
			Reason: fmt.Sprintf("must be one of %v", types.Algorithms),
		}
	}

	return c, nil
}

// Algorithm returns the algorithm this computer uses.
func (c *Computer) Algorithm() types.Algorithm {
	return c.algorithm
}

// Compute hashes img. It fails with a *types.DecodeFailure when img is nil,
// has no pixels, or is rejected by the hash implementation.
func (c *Computer) Compute(img image.Image) (hash types.Hash, err error) {
	if img == nil || img.Bounds().Empty() {
		return types.Hash{}, &types.DecodeFailure{Reason: ErrEmptyImage.Error(), Err: ErrEmptyImage}
	}

	// Some decoders hand back images whose At panics on malformed strides.
	defer func() {
		if r := recover(); r != nil {
			hash = types.Hash{}
			err = &types.DecodeFailure{Reason: fmt.Sprintf("malformed pixel buffer: %v", r)}
		}
	}()

	bits, err := c.hashFn(img)
	if err != nil {
		return types.Hash{}, &types.DecodeFailure{Reason: err.Error(), Err: err}
	}

	return types.Hash{Bits: bits, Width: types.HashWidth, Algorithm: c.algorithm}, nil
}

// Distance returns the Hamming distance between a and b.
func Distance(a, b types.Hash) (int, error) {
	if !a.Compatible(b) {
		return 0, fmt.Errorf("%w: %s/%d vs %s/%d", ErrIncompatible, a.Algorithm, a.Width, b.Algorithm, b.Width)
	}
	return a.Distance(b), nil
}

func imageHash(fn func(image.Image) (*goimagehash.ImageHash, error)) func(image.Image) (uint64, error) {
	return func(img image.Image) (uint64, error) {
		h, err := fn(img)
		if err != nil {
			return 0, err
		}
		return h.GetHash(), nil
	}
}

func dctHash(img image.Image) (uint64, error) {
	return phash.Get(img, func(img image.Image, w, h int) image.Image {
		return imaging.Resize(img, w, h, imaging.Lanczos)
	})
}
