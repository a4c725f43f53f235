// ABOUTME: Embedding dimension checks shared by everything that stores vectors
// ABOUTME: Used by the leaf subgraph and the extract pipeline
package models

import "fmt"

// ValidateDimension checks that a vector is non-empty and has the expected size
func ValidateDimension(vector []float64, expectedDim int) error {
	if len(vector) == 0 {
		return fmt.Errorf("embedding vector cannot be empty")
	}
	if len(vector) != expectedDim {
		return fmt.Errorf("embedding dimension mismatch: got %d, expected %d", len(vector), expectedDim)
	}
	return nil
}
