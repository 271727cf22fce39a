package reid

import (
	"encoding/binary"

	"github.com/x448/float16"
)

var f16LookupTable [65536]float32

func init() {
	// precompute float16 lookup table for faster conversion to float32
	for i := range f16LookupTable {
		f16LookupTable[i] = float16.Frombits(uint16(i)).Float32()
	}
}

// DecodeFloat16 converts little endian IEEE 754 half precision values, as
// produced by networks run with an FP16 target, into float32
func DecodeFloat16(raw []byte) []float32 {

	out := make([]float32, len(raw)/2)

	for i := range out {
		out[i] = f16LookupTable[binary.LittleEndian.Uint16(raw[i*2:])]
	}

	return out
}

// EncodeFloat16 packs a float32 vector into little endian half precision
// bytes.  Used to store embeddings compactly.
func EncodeFloat16(v []float32) []byte {

	out := make([]byte, len(v)*2)

	for i, x := range v {
		binary.LittleEndian.PutUint16(out[i*2:], float16.Fromfloat32(x).Bits())
	}

	return out
}
