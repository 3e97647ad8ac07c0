/*
 * Copyright (c) 2024, Sandia National Laboratories.
 */
package dataobj

import (
	"encoding/binary"
	"io"
	"os"

	"github.com/sandialabs/kelpie/cmn"
)

// header is the concrete 16-byte preamble (SPEC_FULL.md §3.1):
// magic(u32) || type_id(u16) || flags(u16) || meta_size(u32) || data_size(u32).
func encodeHeader(d DO) []byte {
	h := make([]byte, cmn.HeaderSize)
	binary.LittleEndian.PutUint32(h[0:4], cmn.HeaderMagic)
	binary.LittleEndian.PutUint16(h[4:6], d.TypeID())
	binary.LittleEndian.PutUint16(h[6:8], d.Flags())
	binary.LittleEndian.PutUint32(h[8:12], uint32(d.MetaSize()))
	binary.LittleEndian.PutUint32(h[12:16], uint32(d.DataSize()))
	return h
}

type decodedHeader struct {
	typeID, flags      uint16
	metaSize, dataSize uint32
}

func decodeHeader(h []byte) (decodedHeader, error) {
	if len(h) != cmn.HeaderSize {
		return decodedHeader{}, cmn.NewErr(cmn.InvalidArg, "short header: %d bytes", len(h))
	}
	if binary.LittleEndian.Uint32(h[0:4]) != cmn.HeaderMagic {
		return decodedHeader{}, cmn.NewErr(cmn.InvalidArg, "bad header magic")
	}
	return decodedHeader{
		typeID:   binary.LittleEndian.Uint16(h[4:6]),
		flags:    binary.LittleEndian.Uint16(h[6:8]),
		metaSize: binary.LittleEndian.Uint32(h[8:12]),
		dataSize: binary.LittleEndian.Uint32(h[12:16]),
	}, nil
}

// HeaderInfo is the decoded form of the 16-byte preamble, exported so
// backends can learn an object's user size from just the header bytes
// without reading its payload (spec.md §4.3 "Info is stat(2) minus the
// header size" generalizes to "Info reads only the header" for backends
// that keep the header separately indexed).
type HeaderInfo struct {
	TypeID, Flags      uint16
	MetaSize, DataSize uint32
}

// DecodeHeaderBytes parses a standalone cmn.HeaderSize-byte buffer.
func DecodeHeaderBytes(h []byte) (HeaderInfo, error) {
	dh, err := decodeHeader(h)
	if err != nil {
		return HeaderInfo{}, err
	}
	return HeaderInfo{TypeID: dh.typeID, Flags: dh.flags, MetaSize: dh.metaSize, DataSize: dh.dataSize}, nil
}

// WriteTo serializes header||meta||data verbatim, exactly as every IOM
// backend and the per-file on-disk format expect (spec.md §4.1, §6).
func (d DO) WriteTo(w io.Writer) (int64, error) {
	n, err := w.Write(encodeHeader(d))
	total := int64(n)
	if err != nil {
		return total, err
	}
	n, err = w.Write(d.MetaBytes())
	total += int64(n)
	if err != nil {
		return total, err
	}
	n, err = w.Write(d.DataBytes())
	total += int64(n)
	return total, err
}

// ReadFrom reconstructs a DO from header||meta||data exactly as written
// by WriteTo.
func ReadFrom(r io.Reader) (DO, error) {
	hdr := make([]byte, cmn.HeaderSize)
	if _, err := io.ReadFull(r, hdr); err != nil {
		return DO{}, cmn.WrapErr(cmn.IOError, err, "read header")
	}
	dh, err := decodeHeader(hdr)
	if err != nil {
		return DO{}, err
	}
	meta := make([]byte, dh.metaSize)
	if _, err := io.ReadFull(r, meta); err != nil {
		return DO{}, cmn.WrapErr(cmn.IOError, err, "read meta")
	}
	data := make([]byte, dh.dataSize)
	if _, err := io.ReadFull(r, data); err != nil {
		return DO{}, cmn.WrapErr(cmn.IOError, err, "read data")
	}
	d, err := New(dh.typeID, meta, data, Lazy)
	if err != nil {
		return DO{}, err
	}
	d.SetFlags(dh.flags)
	return d, nil
}

// WriteToFile serializes the DO to path, creating or overwriting it.
func (d DO) WriteToFile(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return cmn.WrapErr(cmn.IOError, err, "create %s", path)
	}
	defer f.Close()
	if _, err := d.WriteTo(f); err != nil {
		return cmn.WrapErr(cmn.IOError, err, "write %s", path)
	}
	return nil
}

// ReadFromFile reconstructs a DO previously written by WriteToFile.
func ReadFromFile(path string) (DO, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DO{}, cmn.WrapErr(cmn.NotFound, err, "open %s", path)
		}
		return DO{}, cmn.WrapErr(cmn.IOError, err, "open %s", path)
	}
	defer f.Close()
	return ReadFrom(f)
}

// FileInfoSize returns the on-disk size of a serialized DO, minus the
// header, i.e. UserSize() without reading the payload (spec.md §4.3
// "Info is stat(2) minus the header size").
func FileInfoSize(path string) (int64, error) {
	fi, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, cmn.WrapErr(cmn.NotFound, err, "stat %s", path)
		}
		return 0, cmn.WrapErr(cmn.IOError, err, "stat %s", path)
	}
	return fi.Size() - cmn.HeaderSize, nil
}
