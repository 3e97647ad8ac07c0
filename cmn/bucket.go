/*
 * Copyright (c) 2024, Sandia National Laboratories.
 */
package cmn

import (
	"fmt"
	"strconv"
)

// Bucket is a 32-bit tenant identifier (spec.md §3). Equality and
// ordering are numeric.
type Bucket uint32

// NewBucket derives a Bucket from a tenant string via the djb2 hash.
func NewBucket(name string) Bucket { return Bucket(djb2(name)) }

// ParseBucket accepts either a bare tenant name (hashed via djb2) or a
// hex literal of the form "0x...." and returns the corresponding
// Bucket.
func ParseBucket(s string) (Bucket, error) {
	if len(s) > 2 && (s[:2] == "0x" || s[:2] == "0X") {
		v, err := strconv.ParseUint(s[2:], 16, 32)
		if err != nil {
			return 0, fmt.Errorf("cmn: invalid bucket literal %q: %w", s, err)
		}
		return Bucket(v), nil
	}
	return NewBucket(s), nil
}

// Hex renders the bucket as the lowercase 8-hex-digit string form
// ("bucket_hex") used as the row-name prefix and in on-disk paths.
func (b Bucket) Hex() string { return fmt.Sprintf("%08x", uint32(b)) }

func (b Bucket) String() string { return b.Hex() }

func (b Bucket) Less(o Bucket) bool { return b < o }
