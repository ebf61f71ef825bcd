package swm

import "iter"

// CollectParts drains a multi-part response sequence into a slice.
// It stops at the first error and returns the parts received so far
// alongside it.
func CollectParts(parts iter.Seq2[*Response, error]) ([]*Response, error) {
	var collected []*Response

	for part, err := range parts {
		if err != nil {
			return collected, err
		}

		collected = append(collected, part)
	}

	return collected, nil
}

// FirstPart consumes a response sequence and returns only its first
// part, abandoning the rest. Equivalent to SendMessage for sequences
// known to be single-part.
func FirstPart(parts iter.Seq2[*Response, error]) (*Response, error) {
	for part, err := range parts {
		return part, err
	}

	return nil, nil
}
