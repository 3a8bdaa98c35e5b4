package core

import (
	"fmt"
	"math/rand"
	"sort"
	"sync"
	"time"

	"gonum.org/v1/gonum/floats"
)

const (
	// AmplificationFactor scales every scalar of a malicious node's delta.
	AmplificationFactor = 10.0
	// MaskOffsetMin and MaskOffsetMax bound the integer offset added to each scalar.
	MaskOffsetMin = 1
	MaskOffsetMax = 10
)

// OffsetSource draws integers in [0, n).
type OffsetSource interface {
	Intn(n int) int
}

// UpdateMasker applies the poisoning transform and additive masking to a delta.
//
// The masking is an obfuscation only: the offsets are small, bounded and independent,
// so anyone who sees enough updates or knows the range can strip them.
type UpdateMasker struct {
	mu  sync.Mutex
	src OffsetSource
}

// NewUpdateMasker returns a masker drawing offsets from src, or from a time-seeded
// math/rand source when src is nil.
func NewUpdateMasker(src OffsetSource) *UpdateMasker {
	if src == nil {
		src = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &UpdateMasker{src: src}
}

// Mask flattens each tensor, amplifies it when malicious is set, and adds an offset
// in [MaskOffsetMin, MaskOffsetMax] to every scalar. The input delta is not modified.
func (m *UpdateMasker) Mask(delta ParameterDelta, malicious bool) (MaskedUpdate, error) {
	names := make([]string, 0, len(delta))
	for name, t := range delta {
		if err := t.check(); err != nil {
			return nil, fmt.Errorf("parameter %q: %w", name, err)
		}
		names = append(names, name)
	}
	sort.Strings(names)

	m.mu.Lock()
	defer m.mu.Unlock()

	out := make(MaskedUpdate, len(delta))
	for _, name := range names {
		flat := make([]float64, len(delta[name].Data))
		if malicious {
			floats.ScaleTo(flat, AmplificationFactor, delta[name].Data)
		} else {
			copy(flat, delta[name].Data)
		}
		for i := range flat {
			flat[i] += float64(MaskOffsetMin + m.src.Intn(MaskOffsetMax-MaskOffsetMin+1))
		}
		out[name] = flat
	}
	return out, nil
}
