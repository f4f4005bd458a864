package vm

import (
	"errors"
	"fmt"
	"strings"
)

// ---------------------------------------------------------------------------
// Image: a compiled program
// ---------------------------------------------------------------------------

// Image is the compiled form of a program: top-level classes and
// top-level methods (including generated lambda bodies).
type Image struct {
	Classes []*Class
	Methods []*ScriptMethod
}

// Method returns the top-level method with the given name, or nil.
func (img *Image) Method(name string) *ScriptMethod {
	for _, m := range img.Methods {
		if m.Name == name {
			return m
		}
	}
	return nil
}

// Class returns the top-level class with the given name, or nil.
func (img *Image) Class(name string) *Class {
	for _, c := range img.Classes {
		if c.Name == name {
			return c
		}
	}
	return nil
}

// ---------------------------------------------------------------------------
// Image Format Constants
// ---------------------------------------------------------------------------

// ImageMagic identifies a Kecaknoah bytecode file.
var ImageMagic = [2]byte{'K', 'C'}

// ImageVersion is the container format version.
// v1: initial format
const ImageVersion uint16 = 1

// Block tags. Top-level blocks are classes or methods; class bodies hold
// inner classes, instance methods, class methods and field names.
const (
	blockClass          byte = 0x01
	blockMethod         byte = 0x02
	blockInnerClass     byte = 0x11
	blockInstanceMethod byte = 0x12
	blockClassMethod    byte = 0x13
	blockFieldName      byte = 0x14
)

// ---------------------------------------------------------------------------
// Image Error Types
// ---------------------------------------------------------------------------

var (
	ErrInvalidMagic    = errors.New("invalid magic number: expected KC")
	ErrVersionMismatch = errors.New("image version mismatch")
	ErrUnknownOpcode   = errors.New("unknown opcode tag")
	ErrUnknownBlock    = errors.New("unknown block tag")
	ErrUnexpectedEOF   = errors.New("unexpected end of image data")
	ErrCorruptData     = errors.New("corrupt image data")
	ErrNotSerializable = errors.New("method cannot be serialized")
)

// ---------------------------------------------------------------------------
// Listing
// ---------------------------------------------------------------------------

// DisassembleImage renders every method of img with its code.
func DisassembleImage(img *Image) string {
	var sb strings.Builder
	for _, c := range img.Classes {
		disassembleClass(&sb, c, "")
	}
	for _, m := range img.Methods {
		disassembleMethod(&sb, m, "")
	}
	return strings.TrimRight(sb.String(), "\n")
}

func disassembleClass(sb *strings.Builder, c *Class, indent string) {
	fmt.Fprintf(sb, "%sclass %s\n", indent, c.Name)
	inner := indent + "  "
	for _, f := range c.Fields {
		fmt.Fprintf(sb, "%sfield %s\n", inner, f.Name)
	}
	for _, ic := range c.InnerClasses {
		disassembleClass(sb, ic, inner)
	}
	for _, m := range c.Methods {
		if sm, ok := m.(*ScriptMethod); ok {
			disassembleMethod(sb, sm, inner)
		}
	}
	for _, m := range c.ClassMethods {
		if sm, ok := m.(*ScriptMethod); ok {
			fmt.Fprintf(sb, "%sstatic\n", inner)
			disassembleMethod(sb, sm, inner)
		}
	}
}

func disassembleMethod(sb *strings.Builder, m *ScriptMethod, indent string) {
	vararg := ""
	if m.Vararg {
		vararg = " ..."
	}
	fmt.Fprintf(sb, "%smethod %s/%d%s\n", indent, m.Name, m.Params, vararg)
	for pc := range m.Code {
		fmt.Fprintf(sb, "%s  %s\n", indent, DisassembleInstruction(m.Code, pc))
	}
}
