package player

import (
	"encoding/binary"
	"math"
)

// floatSamplesToBytes packs interleaved float32 samples into their
// little-endian IEEE-754 byte representation for storage in the ring
// buffer, which only deals in bytes.
func floatSamplesToBytes(samples []float32, out []byte) {
	for i, s := range samples {
		binary.LittleEndian.PutUint32(out[i*4:i*4+4], math.Float32bits(s))
	}
}

// bytesToFloatSamples unpacks little-endian IEEE-754 bytes back into
// interleaved float32 samples.
func bytesToFloatSamples(in []byte, out []float32) {
	for i := range out {
		bits := binary.LittleEndian.Uint32(in[i*4 : i*4+4])
		out[i] = math.Float32frombits(bits)
	}
}
