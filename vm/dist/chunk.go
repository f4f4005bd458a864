// Package dist packages compiled Kecaknoah images as content-addressed
// chunks. A chunk carries the source text, its content hash and the
// encoded image, so a receiver (or the compile cache) can check that the
// image belongs to the source it claims to.
package dist

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"

	"github.com/chazu/kecaknoah/vm"
)

// ChunkType identifies the kind of content in a Chunk.
type ChunkType uint8

const (
	ChunkImage  ChunkType = 1 // source plus compiled image
	ChunkSource ChunkType = 2 // source only; the receiver compiles it
)

// Chunk is the unit of distribution and caching.
type Chunk struct {
	Hash    [32]byte  `cbor:"1,keyasint"`
	Type    ChunkType `cbor:"2,keyasint"`
	Version uint16    `cbor:"3,keyasint"` // image format version
	Source  string    `cbor:"4,keyasint"`
	Image   []byte    `cbor:"5,keyasint,omitempty"`
	Names   []string  `cbor:"6,keyasint,omitempty"` // top-level classes and methods
}

// HashSource returns the content hash of source under the current image
// format version. A format bump changes every hash.
func HashSource(source string) [32]byte {
	h := sha256.New()
	var v [2]byte
	binary.LittleEndian.PutUint16(v[:], vm.ImageVersion)
	h.Write(v[:])
	h.Write([]byte(source))
	var sum [32]byte
	copy(sum[:], h.Sum(nil))
	return sum
}

// NewImageChunk encodes img and wraps it with its source.
func NewImageChunk(source string, img *vm.Image) (*Chunk, error) {
	data, err := vm.NewImageWriter().Encode(img)
	if err != nil {
		return nil, fmt.Errorf("dist: encode image: %w", err)
	}
	return &Chunk{
		Hash:    HashSource(source),
		Type:    ChunkImage,
		Version: vm.ImageVersion,
		Source:  source,
		Image:   append([]byte(nil), data...),
		Names:   imageNames(img),
	}, nil
}

// NewSourceChunk wraps source alone.
func NewSourceChunk(source string) *Chunk {
	return &Chunk{
		Hash:    HashSource(source),
		Type:    ChunkSource,
		Version: vm.ImageVersion,
		Source:  source,
	}
}

// DecodeImage verifies c and decodes its image.
func (c *Chunk) DecodeImage() (*vm.Image, error) {
	if err := Verify(c); err != nil {
		return nil, err
	}
	if c.Type != ChunkImage {
		return nil, fmt.Errorf("dist: chunk %x carries no image", c.Hash[:8])
	}
	return vm.NewImageReaderFromBytes(c.Image).ReadImage()
}

// Verify checks the chunk's version and that its hash matches its source.
func Verify(c *Chunk) error {
	if c.Version != vm.ImageVersion {
		return fmt.Errorf("dist: %w: chunk has %d, want %d", vm.ErrVersionMismatch, c.Version, vm.ImageVersion)
	}
	if computed := HashSource(c.Source); computed != c.Hash {
		return fmt.Errorf("dist: hash mismatch: declared %x, computed %x", c.Hash, computed)
	}
	return nil
}

func imageNames(img *vm.Image) []string {
	names := make([]string, 0, len(img.Classes)+len(img.Methods))
	for _, c := range img.Classes {
		names = append(names, c.Name)
	}
	for _, m := range img.Methods {
		names = append(names, m.Name)
	}
	return names
}
