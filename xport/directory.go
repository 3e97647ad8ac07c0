/*
 * Copyright (c) 2024, Sandia National Laboratories.
 */
package xport

import (
	"github.com/OneOfOne/xxhash"

	"github.com/sandialabs/kelpie/cmn"
)

// StaticDirectory resolves (bucket, key) to a node index by hashing
// the object's own addressing bytes — bucket_hex followed by the
// packed key — over a fixed node count (SPEC_FULL.md §4.10: "no
// gossip/membership protocol"). Node membership changes require a new
// StaticDirectory, same as the teacher's smap is swapped wholesale on
// membership change rather than mutated in place.
type StaticDirectory struct {
	numNodes int
}

// NewStaticDirectory builds a directory over numNodes, indices
// [0,numNodes).
func NewStaticDirectory(numNodes int) *StaticDirectory {
	if numNodes <= 0 {
		numNodes = 1
	}
	return &StaticDirectory{numNodes: numNodes}
}

func (d *StaticDirectory) Resolve(bucket cmn.Bucket, key cmn.Key) int {
	h := xxhash.ChecksumString32(bucket.Hex() + key.Pup())
	return int(h % uint32(d.numNodes))
}

var _ DirectoryService = (*StaticDirectory)(nil)
