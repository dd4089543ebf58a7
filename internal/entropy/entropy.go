// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package entropy derives stable substream keys for per-node random
// number generation. Keys are assigned from authoring scopes rather
// than arena indexes, so the substream a node draws from does not
// depend on the order in which branches and iterations happened to
// materialize.
package entropy

import "hash/fnv"

// Mix64 finalizes x with the SplitMix64 avalanche rounds.
func Mix64(x uint64) uint64 {
	x += 0x9E3779B97F4A7C15
	x = (x ^ (x >> 30)) * 0xBF58476D1CE4E5B9
	x = (x ^ (x >> 27)) * 0x94D049BB133111EB
	return x ^ (x >> 31)
}

// Combine mixes two keys into one.
func Combine(a, b uint64) uint64 {
	return Mix64(a ^ Mix64(b))
}

// HashString hashes s into a mixed 64-bit key.
func HashString(s string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(s))
	return Mix64(h.Sum64())
}
