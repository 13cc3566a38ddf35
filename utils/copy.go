package utils

import (
	clone "github.com/huandu/go-clone"
)

// DeepCopy creates a structurally independent copy of input with reflection.
// Unexported fields and the dynamic types inside interface values are preserved.
func DeepCopy[T any](input T) (T, error) {

	var output T
	cloned := clone.Clone(input)
	if cloned == nil {
		return output, nil
	}

	return cloned.(T), nil
}
