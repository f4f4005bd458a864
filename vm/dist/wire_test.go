package dist

import (
	"bytes"
	"errors"
	"testing"

	"github.com/fxamacker/cbor/v2"
	"github.com/google/go-cmp/cmp"

	"github.com/chazu/kecaknoah/vm"
)

func sampleImage() *vm.Image {
	b := vm.NewILBuilder()
	b.EmitInt(vm.OpPushInteger, 42)
	b.Emit(vm.OpReturn)
	return &vm.Image{Methods: []*vm.ScriptMethod{{Name: "main", Code: b.Build()}}}
}

func TestChunk_CBORRoundTrip(t *testing.T) {
	c, err := NewImageChunk("func main\n return 42\nendfunc", sampleImage())
	if err != nil {
		t.Fatalf("NewImageChunk: %v", err)
	}

	data, err := MarshalChunk(c)
	if err != nil {
		t.Fatalf("MarshalChunk: %v", err)
	}
	got, err := UnmarshalChunk(data)
	if err != nil {
		t.Fatalf("UnmarshalChunk: %v", err)
	}
	if diff := cmp.Diff(c, got); diff != "" {
		t.Errorf("chunk mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"main"}, got.Names); diff != "" {
		t.Errorf("Names mismatch (-want +got):\n%s", diff)
	}
}

func TestChunk_CanonicalEncoding(t *testing.T) {
	a, _ := MarshalChunk(NewSourceChunk("func f\nendfunc"))
	b, _ := MarshalChunk(NewSourceChunk("func f\nendfunc"))
	if !bytes.Equal(a, b) {
		t.Error("equal chunks should encode to equal bytes")
	}
}

func TestChunk_DecodeImage(t *testing.T) {
	c, err := NewImageChunk("src", sampleImage())
	if err != nil {
		t.Fatalf("NewImageChunk: %v", err)
	}
	img, err := c.DecodeImage()
	if err != nil {
		t.Fatalf("DecodeImage: %v", err)
	}
	m := img.Method("main")
	if m == nil {
		t.Fatal("main missing from decoded image")
	}
	if m.Code[0].Int != 42 {
		t.Errorf("operand = %d, want 42", m.Code[0].Int)
	}
}

func TestVerify_HashMismatch(t *testing.T) {
	c := NewSourceChunk("one")
	c.Source = "two"
	if err := Verify(c); err == nil {
		t.Error("tampered source should fail verification")
	}
}

func TestVerify_VersionMismatch(t *testing.T) {
	c := NewSourceChunk("one")
	c.Version = vm.ImageVersion + 1
	if err := Verify(c); !errors.Is(err, vm.ErrVersionMismatch) {
		t.Errorf("Verify = %v, want ErrVersionMismatch", err)
	}
}

func TestDecodeImage_SourceChunk(t *testing.T) {
	if _, err := NewSourceChunk("x").DecodeImage(); err == nil {
		t.Error("source chunk should not decode to an image")
	}
}

func TestHashSource_Distinct(t *testing.T) {
	if HashSource("a") == HashSource("b") {
		t.Error("different sources should hash differently")
	}
}

func TestUnmarshalChunk_Rejects(t *testing.T) {
	encode := func(m map[int]any) []byte {
		data, err := cbor.Marshal(m)
		if err != nil {
			t.Fatal(err)
		}
		return data
	}
	tests := map[string][]byte{
		"garbage":              {0xff, 0x00},
		"unknown key":          encode(map[int]any{2: 2, 3: vm.ImageVersion, 4: "src", 99: "extra"}),
		"unknown type":         encode(map[int]any{2: 9, 3: vm.ImageVersion, 4: "src"}),
		"image chunk no image": encode(map[int]any{2: 1, 3: vm.ImageVersion, 4: "src"}),
		"source chunk image":   encode(map[int]any{2: 2, 3: vm.ImageVersion, 4: "src", 5: []byte{1}}),
	}
	for name, data := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := UnmarshalChunk(data); !errors.Is(err, ErrBadChunk) {
				t.Errorf("UnmarshalChunk = %v, want ErrBadChunk", err)
			}
		})
	}
}

func TestMarshalChunk_RejectsUnknownType(t *testing.T) {
	c := NewSourceChunk("x")
	c.Type = 7
	if _, err := MarshalChunk(c); !errors.Is(err, ErrBadChunk) {
		t.Errorf("MarshalChunk = %v, want ErrBadChunk", err)
	}
}
