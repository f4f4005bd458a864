package dist

import (
	"errors"
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// ErrBadChunk reports a chunk whose encoding decodes but is not a valid
// Kecaknoah chunk.
var ErrBadChunk = errors.New("dist: malformed chunk")

// Encoding is canonical so one image under one source always produces the
// same bytes. Decoding is strict: unknown keys, duplicate keys and
// indefinite-length items are rejected.
var (
	chunkEnc cbor.EncMode
	chunkDec cbor.DecMode
)

// maxNames bounds the Names array of a decoded chunk.
const maxNames = 1 << 16

func init() {
	var err error
	if chunkEnc, err = cbor.CanonicalEncOptions().EncMode(); err != nil {
		panic(fmt.Sprintf("dist: chunk encoder: %v", err))
	}
	chunkDec, err = cbor.DecOptions{
		DupMapKey:         cbor.DupMapKeyEnforcedAPF,
		IndefLength:       cbor.IndefLengthForbidden,
		ExtraReturnErrors: cbor.ExtraDecErrorUnknownField,
		MaxArrayElements:  maxNames,
	}.DecMode()
	if err != nil {
		panic(fmt.Sprintf("dist: chunk decoder: %v", err))
	}
}

// MarshalChunk encodes c. Only image and source chunks are encodable.
func MarshalChunk(c *Chunk) ([]byte, error) {
	if err := checkType(c); err != nil {
		return nil, err
	}
	return chunkEnc.Marshal(c)
}

// UnmarshalChunk decodes a chunk produced by MarshalChunk. It does not
// verify the hash; DecodeImage and Verify do.
func UnmarshalChunk(data []byte) (*Chunk, error) {
	var c Chunk
	if err := chunkDec.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadChunk, err)
	}
	if err := checkType(&c); err != nil {
		return nil, err
	}
	return &c, nil
}

func checkType(c *Chunk) error {
	switch c.Type {
	case ChunkImage:
		if len(c.Image) == 0 {
			return fmt.Errorf("%w: image chunk %x has no image", ErrBadChunk, c.Hash[:8])
		}
	case ChunkSource:
		if len(c.Image) != 0 {
			return fmt.Errorf("%w: source chunk %x carries an image", ErrBadChunk, c.Hash[:8])
		}
	default:
		return fmt.Errorf("%w: unknown chunk type %d", ErrBadChunk, c.Type)
	}
	return nil
}
