// Package fileiom is the per-file persistence backend (spec.md §4.3.1):
// one file per DO, named by its punycode-escaped packed key, one
// subdirectory per bucket.
/*
 * Copyright (c) 2024, Sandia National Laboratories.
 */
package fileiom

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/karrick/godirwalk"
	"github.com/pierrec/lz4/v3"
	"golang.org/x/sys/unix"

	"github.com/sandialabs/kelpie/cmn"
	"github.com/sandialabs/kelpie/dataobj"
	"github.com/sandialabs/kelpie/iom"
)

var recognizedSettings = []iom.SettingDescriptor{
	{Name: "dir", Description: "root directory this backend owns"},
	{Name: "compress", Description: `"true" to LZ4-compress every object on write`},
}

func init() {
	iom.RegisterFactory("file", newBackend)
}

// Backend stores one file per object under dir/<bucket_hex>/<punycode(pup)>.do.
type Backend struct {
	iom.BaseBackend
	dir      string
	compress bool
}

func newBackend(name string, settings map[string]string) (iom.Backend, error) {
	filtered := iom.FilterSettings(settings, recognizedSettings)
	dir, ok := filtered["dir"]
	if !ok {
		return nil, cmn.NewErr(cmn.InvalidArg, "file iom %q: missing required setting \"dir\"", name)
	}
	if err := ensureDir(dir); err != nil {
		return nil, err
	}
	return &Backend{
		BaseBackend: iom.NewBaseBackend(name, filtered),
		dir:         dir,
		compress:    filtered["compress"] == "true",
	}, nil
}

// ensureDir creates the root directory, retrying a few times: network
// mounts occasionally return a transient error (EBUSY, stale handle) on
// the very first MkdirAll right after being attached.
func ensureDir(dir string) error {
	var lastErr error
	for attempt := 0; attempt < 3; attempt++ {
		if err := os.MkdirAll(dir, 0o755); err == nil {
			return nil
		} else {
			lastErr = err
		}
		time.Sleep(time.Second)
	}
	return cmn.WrapErr(cmn.IOError, lastErr, "create iom root dir %s", dir)
}

func bucketDir(root string, bucket cmn.Bucket) string { return filepath.Join(root, bucket.Hex()) }

func objectPath(root string, bucket cmn.Bucket, key cmn.Key) string {
	return filepath.Join(bucketDir(root, bucket), cmn.MakePunycode(key.Pup())+".do")
}

func (b *Backend) WriteObject(bucket cmn.Bucket, key cmn.Key, do dataobj.DO) error {
	dir := bucketDir(b.dir, bucket)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return cmn.WrapErr(cmn.IOError, err, "mkdir %s", dir)
	}
	path := objectPath(b.dir, bucket, key)
	if !b.compress {
		return do.WriteToFile(path)
	}
	return b.writeCompressed(path, do)
}

func (b *Backend) writeCompressed(path string, do dataobj.DO) error {
	f, err := os.Create(path)
	if err != nil {
		return cmn.WrapErr(cmn.IOError, err, "create %s", path)
	}
	defer f.Close()
	zw := lz4.NewWriter(f)
	if _, err := do.WriteTo(zw); err != nil {
		return cmn.WrapErr(cmn.IOError, err, "write %s", path)
	}
	if err := zw.Close(); err != nil {
		return cmn.WrapErr(cmn.IOError, err, "flush %s", path)
	}
	return nil
}

func (b *Backend) WriteObjects(bucket cmn.Bucket, kvs []iom.KeyVal) error {
	var lastErr error
	for _, kv := range kvs {
		if err := b.WriteObject(bucket, kv.Key, kv.DO); err != nil {
			lastErr = err
		}
	}
	return lastErr
}

func (b *Backend) ReadObject(bucket cmn.Bucket, key cmn.Key) (dataobj.DO, error) {
	path := objectPath(b.dir, bucket, key)
	if !b.compress {
		return dataobj.ReadFromFile(path)
	}
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return dataobj.DO{}, cmn.WrapErr(cmn.NotFound, err, "open %s", path)
		}
		return dataobj.DO{}, cmn.WrapErr(cmn.IOError, err, "open %s", path)
	}
	defer f.Close()
	return dataobj.ReadFrom(lz4.NewReader(f))
}

func (b *Backend) ReadObjects(bucket cmn.Bucket, keys []cmn.Key) ([]iom.KeyVal, []cmn.Key, cmn.Kind) {
	var found []iom.KeyVal
	var missing []cmn.Key
	for _, k := range keys {
		do, err := b.ReadObject(bucket, k)
		if err != nil {
			missing = append(missing, k)
			continue
		}
		found = append(found, iom.KeyVal{Key: k, DO: do})
	}
	if len(missing) > 0 {
		return found, missing, cmn.Recheck
	}
	return found, missing, cmn.Ok
}

// GetInfo uses the stat(2)-only shortcut when objects are stored
// uncompressed (the file size minus the header IS the user size); a
// compressed backend must decompress to learn the true user size, since
// stat(2) only reports the compressed size on disk.
func (b *Backend) GetInfo(bucket cmn.Bucket, key cmn.Key) (iom.ObjectInfo, error) {
	if !b.compress {
		size, err := dataobj.FileInfoSize(objectPath(b.dir, bucket, key))
		if err != nil {
			return iom.ObjectInfo{}, err
		}
		return iom.ObjectInfo{Availability: iom.InDisk, UserBytes: size}, nil
	}
	do, err := b.ReadObject(bucket, key)
	if err != nil {
		return iom.ObjectInfo{}, err
	}
	return iom.ObjectInfo{Availability: iom.InDisk, UserBytes: int64(do.UserSize())}, nil
}

// List walks the bucket's flat directory and matches each file's
// unpacked key against pattern (spec.md §4.3's "backends that can
// enumerate override [List]").
func (b *Backend) List(bucket cmn.Bucket, pattern cmn.Key) (iom.ObjectCapacities, error) {
	dir := bucketDir(b.dir, bucket)
	names, err := godirwalk.ReadDirnames(dir, nil)
	if err != nil {
		if os.IsNotExist(err) {
			return iom.ObjectCapacities{}, nil
		}
		return iom.ObjectCapacities{}, cmn.WrapErr(cmn.IOError, err, "list %s", dir)
	}

	var out iom.ObjectCapacities
	for _, name := range names {
		if !strings.HasSuffix(name, ".do") {
			continue
		}
		packed, perr := cmn.ExpandPunycode(strings.TrimSuffix(name, ".do"))
		if perr != nil {
			continue
		}
		key, kerr := cmn.UnpackPup(packed)
		if kerr != nil || !pattern.Matches(key) {
			continue
		}
		info, ierr := b.GetInfo(bucket, key)
		if ierr != nil {
			continue
		}
		out.Keys = append(out.Keys, key)
		out.Capacities = append(out.Capacities, info.UserBytes)
	}
	return out, nil
}

// Settings reports the live free-byte count alongside the static,
// configured settings (golang.org/x/sys/unix.Statfs).
func (b *Backend) Settings() map[string]string {
	out := b.BaseBackend.Settings()
	if fb, err := freeBytes(b.dir); err == nil {
		out["free_bytes"] = strconv.FormatUint(fb, 10)
	}
	return out
}

func (b *Backend) Setting(name string) (string, bool) {
	if name == "free_bytes" {
		fb, err := freeBytes(b.dir)
		if err != nil {
			return "", false
		}
		return strconv.FormatUint(fb, 10), true
	}
	return b.BaseBackend.Setting(name)
}

func freeBytes(dir string) (uint64, error) {
	var st unix.Statfs_t
	if err := unix.Statfs(dir, &st); err != nil {
		return 0, err
	}
	return st.Bavail * uint64(st.Bsize), nil
}

func (b *Backend) Close() error { return nil }
