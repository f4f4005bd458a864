package vm

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
)

// ---------------------------------------------------------------------------
// ImageReader: Deserializes the bytecode container
// ---------------------------------------------------------------------------

// ImageReader decodes an Image. Any malformed input is fatal to the read.
type ImageReader struct {
	data []byte
	pos  int
}

// NewImageReader reads all of r and prepares to decode it.
func NewImageReader(r io.Reader) (*ImageReader, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read image data: %w", err)
	}
	return NewImageReaderFromBytes(data), nil
}

// NewImageReaderFromBytes prepares to decode data.
func NewImageReaderFromBytes(data []byte) *ImageReader {
	return &ImageReader{data: data}
}

// LoadImage decodes an image from in.
func LoadImage(in io.Reader) (*Image, error) {
	ir, err := NewImageReader(in)
	if err != nil {
		return nil, err
	}
	return ir.ReadImage()
}

// LoadImageFile decodes an image file.
func LoadImageFile(path string) (*Image, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return NewImageReaderFromBytes(data).ReadImage()
}

// ReadImage decodes the header and every block.
func (ir *ImageReader) ReadImage() (*Image, error) {
	magic, err := ir.readBytes(len(ImageMagic))
	if err != nil {
		return nil, err
	}
	if magic[0] != ImageMagic[0] || magic[1] != ImageMagic[1] {
		return nil, fmt.Errorf("%w: got %q", ErrInvalidMagic, magic)
	}
	version, err := ir.readUint16()
	if err != nil {
		return nil, err
	}
	if version != ImageVersion {
		return nil, fmt.Errorf("%w: expected %d, got %d", ErrVersionMismatch, ImageVersion, version)
	}

	count, err := ir.readCount()
	if err != nil {
		return nil, fmt.Errorf("failed to read block count: %w", err)
	}
	img := &Image{}
	for i := 0; i < count; i++ {
		tag, err := ir.readByte()
		if err != nil {
			return nil, fmt.Errorf("failed to read block %d: %w", i, err)
		}
		switch tag {
		case blockClass:
			c, err := ir.readClass()
			if err != nil {
				return nil, fmt.Errorf("failed to read class block %d: %w", i, err)
			}
			img.Classes = append(img.Classes, c)
		case blockMethod:
			m, err := ir.readMethod()
			if err != nil {
				return nil, fmt.Errorf("failed to read method block %d: %w", i, err)
			}
			img.Methods = append(img.Methods, m)
		default:
			return nil, fmt.Errorf("%w: 0x%02X at top level", ErrUnknownBlock, tag)
		}
	}
	if ir.pos != len(ir.data) {
		return nil, fmt.Errorf("%w: %d trailing bytes", ErrCorruptData, len(ir.data)-ir.pos)
	}
	return img, nil
}

func (ir *ImageReader) readClass() (*Class, error) {
	name, err := ir.readString()
	if err != nil {
		return nil, err
	}
	c := NewClass(name)
	count, err := ir.readCount()
	if err != nil {
		return nil, err
	}
	for i := 0; i < count; i++ {
		tag, err := ir.readByte()
		if err != nil {
			return nil, err
		}
		switch tag {
		case blockInnerClass:
			inner, err := ir.readClass()
			if err != nil {
				return nil, err
			}
			if err := c.AddInnerClass(inner); err != nil {
				return nil, err
			}
		case blockInstanceMethod:
			m, err := ir.readMethod()
			if err != nil {
				return nil, err
			}
			c.Methods = append(c.Methods, m)
		case blockClassMethod:
			m, err := ir.readMethod()
			if err != nil {
				return nil, err
			}
			c.ClassMethods = append(c.ClassMethods, m)
		case blockFieldName:
			f, err := ir.readString()
			if err != nil {
				return nil, err
			}
			c.Fields = append(c.Fields, &Field{Name: f})
		default:
			return nil, fmt.Errorf("%w: 0x%02X in class %s", ErrUnknownBlock, tag, name)
		}
	}
	return c, nil
}

func (ir *ImageReader) readMethod() (*ScriptMethod, error) {
	name, err := ir.readString()
	if err != nil {
		return nil, err
	}
	params, err := ir.readCount()
	if err != nil {
		return nil, err
	}
	flag, err := ir.readByte()
	if err != nil {
		return nil, err
	}
	n, err := ir.readCount()
	if err != nil {
		return nil, err
	}
	m := &ScriptMethod{Name: name, Params: params, Vararg: flag != 0, Code: make(Code, 0, n)}
	for i := 0; i < n; i++ {
		in, err := ir.readInstruction()
		if err != nil {
			return nil, fmt.Errorf("method %s instruction %d: %w", name, i, err)
		}
		m.Code = append(m.Code, in)
	}
	if err := validateCode(m.Code); err != nil {
		return nil, fmt.Errorf("method %s: %w", name, err)
	}
	return m, nil
}

// validateCode rejects operands the interpreter cannot execute: jump
// targets outside [0, len(code)] and negative counts.
func validateCode(code Code) error {
	for i, in := range code {
		switch {
		case in.Op.IsJump() && (in.Int < 0 || in.Int > int64(len(code))):
			return fmt.Errorf("%w: instruction %d: %s target %d outside [0, %d]",
				ErrCorruptData, i, in.Op.Name(), in.Int, len(code))
		case in.Op.IsCounted() && in.Int < 0:
			return fmt.Errorf("%w: instruction %d: %s count %d",
				ErrCorruptData, i, in.Op.Name(), in.Int)
		}
	}
	return nil
}

func (ir *ImageReader) readInstruction() (Instruction, error) {
	b, err := ir.readByte()
	if err != nil {
		return Instruction{}, err
	}
	op := Opcode(b)
	if !op.Valid() {
		return Instruction{}, fmt.Errorf("%w: 0x%02X", ErrUnknownOpcode, b)
	}
	in := Instruction{Op: op}
	switch op.Shape() {
	case ShapeInt:
		in.Int, err = ir.readInt64()
	case ShapeFloat:
		var bits uint64
		bits, err = ir.readUint64()
		in.Float = math.Float64frombits(bits)
	case ShapeString:
		in.String, err = ir.readString()
	case ShapeBool:
		var v byte
		v, err = ir.readByte()
		in.Bool = v != 0
	case ShapeNameCount:
		in.String, err = ir.readString()
		if err == nil {
			in.Int, err = ir.readInt64()
		}
	}
	return in, err
}

// ---------------------------------------------------------------------------
// Low-level reading helpers
// ---------------------------------------------------------------------------

func (ir *ImageReader) readByte() (byte, error) {
	if ir.pos >= len(ir.data) {
		return 0, ErrUnexpectedEOF
	}
	b := ir.data[ir.pos]
	ir.pos++
	return b, nil
}

func (ir *ImageReader) readBytes(n int) ([]byte, error) {
	if n < 0 || ir.pos+n > len(ir.data) {
		return nil, ErrUnexpectedEOF
	}
	b := ir.data[ir.pos : ir.pos+n]
	ir.pos += n
	return b, nil
}

func (ir *ImageReader) readUint16() (uint16, error) {
	b, err := ir.readBytes(2)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b), nil
}

// readCount reads an int32 count. Negative counts and counts larger than
// the remaining input are corrupt.
func (ir *ImageReader) readCount() (int, error) {
	b, err := ir.readBytes(4)
	if err != nil {
		return 0, err
	}
	n := int32(binary.LittleEndian.Uint32(b))
	if n < 0 || int(n) > len(ir.data)-ir.pos {
		return 0, fmt.Errorf("%w: count %d", ErrCorruptData, n)
	}
	return int(n), nil
}

func (ir *ImageReader) readUint64() (uint64, error) {
	b, err := ir.readBytes(8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}

func (ir *ImageReader) readInt64() (int64, error) {
	v, err := ir.readUint64()
	return int64(v), err
}

func (ir *ImageReader) readString() (string, error) {
	n, size := binary.Uvarint(ir.data[ir.pos:])
	if size <= 0 {
		return "", ErrUnexpectedEOF
	}
	ir.pos += size
	if n > uint64(len(ir.data)-ir.pos) {
		return "", ErrUnexpectedEOF
	}
	b, err := ir.readBytes(int(n))
	if err != nil {
		return "", err
	}
	return string(b), nil
}
