package vm

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
)

// ---------------------------------------------------------------------------
// ImageWriter: Serializes an Image to the bytecode container
// ---------------------------------------------------------------------------

// ImageWriter serializes compiled classes and methods. All multi-byte
// fields are little-endian; strings are uvarint length-prefixed UTF-8.
// Field initializers are not written.
type ImageWriter struct {
	buf *bytes.Buffer
}

// NewImageWriter creates a new image writer.
func NewImageWriter() *ImageWriter {
	return &ImageWriter{buf: bytes.NewBuffer(nil)}
}

// Encode serializes img and returns the bytes. The result does not share
// storage with the writer, so the writer can be reused.
func (w *ImageWriter) Encode(img *Image) ([]byte, error) {
	w.buf.Reset()
	w.buf.Write(ImageMagic[:])
	w.writeUint16(ImageVersion)

	w.writeInt32(len(img.Classes) + len(img.Methods))
	for _, c := range img.Classes {
		w.buf.WriteByte(blockClass)
		if err := w.writeClass(c); err != nil {
			return nil, err
		}
	}
	for _, m := range img.Methods {
		w.buf.WriteByte(blockMethod)
		w.writeMethod(m)
	}
	return bytes.Clone(w.buf.Bytes()), nil
}

// WriteTo serializes img to out.
func (w *ImageWriter) WriteTo(out io.Writer, img *Image) error {
	data, err := w.Encode(img)
	if err != nil {
		return err
	}
	_, err = out.Write(data)
	return err
}

// SaveImage writes img to out.
func SaveImage(out io.Writer, img *Image) error {
	return NewImageWriter().WriteTo(out, img)
}

// SaveImageFile writes img to a file.
func SaveImageFile(path string, img *Image) error {
	data, err := NewImageWriter().Encode(img)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

func (w *ImageWriter) writeClass(c *Class) error {
	w.writeString(c.Name)
	w.writeInt32(len(c.InnerClasses) + len(c.Methods) + len(c.ClassMethods) + len(c.Fields))

	for _, inner := range c.InnerClasses {
		w.buf.WriteByte(blockInnerClass)
		if err := w.writeClass(inner); err != nil {
			return err
		}
	}
	for _, m := range c.Methods {
		sm, ok := m.(*ScriptMethod)
		if !ok {
			return fmt.Errorf("%w: %s.%s is native", ErrNotSerializable, c.Name, m.MethodName())
		}
		w.buf.WriteByte(blockInstanceMethod)
		w.writeMethod(sm)
	}
	for _, m := range c.ClassMethods {
		sm, ok := m.(*ScriptMethod)
		if !ok {
			return fmt.Errorf("%w: %s.%s is native", ErrNotSerializable, c.Name, m.MethodName())
		}
		w.buf.WriteByte(blockClassMethod)
		w.writeMethod(sm)
	}
	for _, f := range c.Fields {
		w.buf.WriteByte(blockFieldName)
		w.writeString(f.Name)
	}
	return nil
}

func (w *ImageWriter) writeMethod(m *ScriptMethod) {
	w.writeString(m.Name)
	w.writeInt32(m.Params)
	if m.Vararg {
		w.buf.WriteByte(1)
	} else {
		w.buf.WriteByte(0)
	}
	w.writeInt32(len(m.Code))
	for _, in := range m.Code {
		w.writeInstruction(in)
	}
}

// writeInstruction writes the opcode tag and the operand fields its shape
// names.
func (w *ImageWriter) writeInstruction(in Instruction) {
	w.buf.WriteByte(byte(in.Op))
	switch in.Op.Shape() {
	case ShapeInt:
		w.writeInt64(in.Int)
	case ShapeFloat:
		w.writeUint64(math.Float64bits(in.Float))
	case ShapeString:
		w.writeString(in.String)
	case ShapeBool:
		if in.Bool {
			w.buf.WriteByte(1)
		} else {
			w.buf.WriteByte(0)
		}
	case ShapeNameCount:
		w.writeString(in.String)
		w.writeInt64(in.Int)
	}
}

// ---------------------------------------------------------------------------
// Low-level writing helpers
// ---------------------------------------------------------------------------

func (w *ImageWriter) writeUint16(v uint16) {
	var buf [2]byte
	binary.LittleEndian.PutUint16(buf[:], v)
	w.buf.Write(buf[:])
}

func (w *ImageWriter) writeInt32(v int) {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], uint32(int32(v)))
	w.buf.Write(buf[:])
}

func (w *ImageWriter) writeInt64(v int64) {
	w.writeUint64(uint64(v))
}

func (w *ImageWriter) writeUint64(v uint64) {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], v)
	w.buf.Write(buf[:])
}

func (w *ImageWriter) writeString(s string) {
	var buf [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(buf[:], uint64(len(s)))
	w.buf.Write(buf[:n])
	w.buf.WriteString(s)
}
