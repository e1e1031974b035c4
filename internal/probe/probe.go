// Package probe builds coordinator probes: keys hashed from blackboard
// entries or bitsets, and goal predicates.
package probe

import (
	"encoding/binary"
	"fmt"

	"github.com/cespare/xxhash/v2"
	btmod "github.com/joeycumines/plancoord/internal/bt"
	"github.com/joeycumines/plancoord/internal/coordinator"
)

// Signature hashes the named blackboard entries, in the given order. A
// missing key hashes differently from a present nil value. Values are
// hashed by their %T and %v formatting, so only types with a stable
// formatting make sense here.
func Signature(bb *btmod.Blackboard, keys ...string) uint64 {
	d := xxhash.New()
	for _, key := range keys {
		_, _ = d.WriteString(key)
		var v any
		ok := false
		if bb != nil {
			v, ok = bb.Lookup(key)
		}
		if ok {
			_, _ = fmt.Fprintf(d, "\x00%T\x00%v", v, v)
		}
		_, _ = d.Write([]byte{0xff})
	}
	return d.Sum64()
}

// Bits hashes a sequence of bitsets.
func Bits(values ...uint64) uint64 {
	buf := make([]byte, 8*len(values))
	for i, v := range values {
		binary.LittleEndian.PutUint64(buf[8*i:], v)
	}
	return xxhash.Sum64(buf)
}

// Masked is the invalidation key of a bitset world that only cares about
// the bits in mask.
func Masked(state, mask uint64) uint64 {
	return state & mask
}

// BitsGoal returns the predicate (state & goal) == goal.
func BitsGoal(goal uint64) func(state uint64) bool {
	return func(state uint64) bool { return state&goal == goal }
}

// BlackboardSignature is an InvalidationKey or CacheKey probe over the
// frame's blackboard.
func BlackboardSignature[W any](keys ...string) func(coordinator.Frame[W]) uint64 {
	keys = append([]string(nil), keys...)
	return func(f coordinator.Frame[W]) uint64 {
		return Signature(f.Blackboard, keys...)
	}
}
