// ABOUTME: Binary codec for embedding vectors stored in BLOB columns
// ABOUTME: Layout is a uint32 dimension header followed by little-endian float32 values
package sqlite

import (
	"encoding/binary"
	"fmt"
	"math"
)

// vectorToBlob encodes a vector; nil or empty encodes to nil (SQL NULL)
func vectorToBlob(vector []float64) []byte {
	if len(vector) == 0 {
		return nil
	}
	blob := make([]byte, 4+len(vector)*4)
	binary.LittleEndian.PutUint32(blob[0:4], uint32(len(vector)))
	for i, v := range vector {
		binary.LittleEndian.PutUint32(blob[4+i*4:], math.Float32bits(float32(v)))
	}
	return blob
}

// blobToVector decodes a vector written by vectorToBlob
func blobToVector(blob []byte) ([]float64, error) {
	if len(blob) == 0 {
		return nil, nil
	}
	if len(blob) < 4 {
		return nil, fmt.Errorf("vector blob too short: %d bytes", len(blob))
	}
	dim := int(binary.LittleEndian.Uint32(blob[0:4]))
	if len(blob) != 4+dim*4 {
		return nil, fmt.Errorf("vector blob size %d does not match dimension %d", len(blob), dim)
	}
	vector := make([]float64, dim)
	for i := 0; i < dim; i++ {
		vector[i] = float64(math.Float32frombits(binary.LittleEndian.Uint32(blob[4+i*4:])))
	}
	return vector, nil
}
