// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package data

import (
	"crypto/md5"
	"encoding/binary"
)

// TopLabel labels the example that spans the whole buffer.
var TopLabel = CalcLabel("top")

// CalcLabel derives a stable 64-bit label from a name.
func CalcLabel(name string) uint64 {
	sum := md5.Sum([]byte(name))
	return binary.BigEndian.Uint64(sum[:8])
}

// CombineLabels mixes several labels into one, order-sensitively.
func CombineLabels(labels ...uint64) uint64 {
	var label uint64
	for _, l := range labels {
		label <<= 1
		label ^= l
	}
	return label
}
