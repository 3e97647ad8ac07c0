/*
 * Copyright (c) 2024, Sandia National Laboratories.
 */
package cmn

// DO on-disk/wire header (SPEC_FULL.md §3.1): 16 bytes, little-endian.
// spec.md treats the header as an externally-specified, opaque preamble;
// this concrete layout resolves that into something every IOM backend
// and dataobj.DO.WriteTo/ReadFrom can agree on byte-for-byte.
const (
	HeaderSize = 16
	HeaderMagic = uint32(0x4b454c50) // "KELP"

	MaxMetaSize = 64 * 1024        // 64 KiB, spec.md §3
	MaxDataSize = 4 * 1024 * 1024 * 1024 // 4 GiB, spec.md §3
)

// Flags bits carried in the header's flags field.
const (
	FlagCompressedLZ4 uint16 = 1 << 0
)
