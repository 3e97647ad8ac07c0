// Package buntiom is the embedded ordered-KV persistence backend
// (spec.md §4.3.2), storing each object as an ".info" record (8-byte
// type/meta_size/data_size header, matching the original ldo_info_struct)
// plus a ".buffer" record (meta||data, no header) in one tidwall/buntdb
// database per bucket.
/*
 * Copyright (c) 2024, Sandia National Laboratories.
 */
package buntiom

import (
	"encoding/binary"
	"strconv"
	"strings"
	"sync"

	"github.com/tidwall/buntdb"

	"github.com/sandialabs/kelpie/cmn"
	"github.com/sandialabs/kelpie/dataobj"
	"github.com/sandialabs/kelpie/iom"
)

var recognizedSettings = []iom.SettingDescriptor{
	{Name: "path", Description: `database directory prefix, or ":memory:" for in-memory instances; each bucket gets its own database at "<path><bucket_hex>"`},
}

func init() {
	iom.RegisterFactory("buntdb", newBackend)
}

// infoSize is the width of the dedicated ".info" record: u16 type,
// u16 meta_size, u32 data_size — no magic, no flags.
const infoSize = 8

func encodeInfo(typeID uint16, metaSize, dataSize uint32) []byte {
	buf := make([]byte, infoSize)
	binary.LittleEndian.PutUint16(buf[0:2], typeID)
	binary.LittleEndian.PutUint16(buf[2:4], uint16(metaSize))
	binary.LittleEndian.PutUint32(buf[4:8], dataSize)
	return buf
}

func decodeInfo(raw string) (typeID uint16, metaSize, dataSize uint32, err error) {
	if len(raw) != infoSize {
		return 0, 0, 0, cmn.NewErr(cmn.IOError, "corrupt .info record: want %d bytes, got %d", infoSize, len(raw))
	}
	b := []byte(raw)
	typeID = binary.LittleEndian.Uint16(b[0:2])
	metaSize = uint32(binary.LittleEndian.Uint16(b[2:4]))
	dataSize = binary.LittleEndian.Uint32(b[4:8])
	return typeID, metaSize, dataSize, nil
}

// Backend caches one buntdb.DB per bucket, opened lazily on first
// touch and kept for the lifetime of the process — mirroring the
// original bucketToDB()/bmap_ cache.
type Backend struct {
	iom.BaseBackend
	pathPrefix string
	mu         sync.Mutex
	dbs        map[cmn.Bucket]*buntdb.DB
}

func newBackend(name string, settings map[string]string) (iom.Backend, error) {
	filtered := iom.FilterSettings(settings, recognizedSettings)
	path, ok := filtered["path"]
	if !ok {
		path = ":memory:"
	}
	return &Backend{
		BaseBackend: iom.NewBaseBackend(name, filtered),
		pathPrefix:  path,
		dbs:         map[cmn.Bucket]*buntdb.DB{},
	}, nil
}

// bucketDB returns the buntdb.DB for bucket, opening it on first touch.
func (b *Backend) bucketDB(bucket cmn.Bucket) (*buntdb.DB, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if db, ok := b.dbs[bucket]; ok {
		return db, nil
	}
	path := b.pathPrefix
	if path != ":memory:" {
		path = path + bucket.Hex()
	}
	db, err := buntdb.Open(path)
	if err != nil {
		return nil, cmn.WrapErr(cmn.IOError, err, "open buntdb %q for bucket %s", path, bucket)
	}
	b.dbs[bucket] = db
	return db, nil
}

func recordKeys(key cmn.Key) (infoKey, bufKey string) {
	base := key.Pup()
	return base + ".info", base + ".buffer"
}

func (b *Backend) WriteObject(bucket cmn.Bucket, key cmn.Key, do dataobj.DO) error {
	db, err := b.bucketDB(bucket)
	if err != nil {
		return err
	}
	infoKey, bufKey := recordKeys(key)
	info := encodeInfo(do.TypeID(), uint32(do.MetaSize()), uint32(do.DataSize()))
	payload := string(do.MetaBytes()) + string(do.DataBytes())
	return db.Update(func(tx *buntdb.Tx) error {
		if _, _, err := tx.Set(infoKey, string(info), nil); err != nil {
			return err
		}
		_, _, err := tx.Set(bufKey, payload, nil)
		return err
	})
}

func (b *Backend) WriteObjects(bucket cmn.Bucket, kvs []iom.KeyVal) error {
	db, err := b.bucketDB(bucket)
	if err != nil {
		return err
	}
	return db.Update(func(tx *buntdb.Tx) error {
		for _, kv := range kvs {
			infoKey, bufKey := recordKeys(kv.Key)
			info := encodeInfo(kv.DO.TypeID(), uint32(kv.DO.MetaSize()), uint32(kv.DO.DataSize()))
			if _, _, err := tx.Set(infoKey, string(info), nil); err != nil {
				return err
			}
			payload := string(kv.DO.MetaBytes()) + string(kv.DO.DataBytes())
			if _, _, err := tx.Set(bufKey, payload, nil); err != nil {
				return err
			}
		}
		return nil
	})
}

func (b *Backend) ReadObject(bucket cmn.Bucket, key cmn.Key) (dataobj.DO, error) {
	db, err := b.bucketDB(bucket)
	if err != nil {
		return dataobj.DO{}, err
	}
	infoKey, bufKey := recordKeys(key)
	var infoRaw, bufRaw string
	err = db.View(func(tx *buntdb.Tx) error {
		v, err := tx.Get(infoKey)
		if err != nil {
			return err
		}
		infoRaw = v
		v, err = tx.Get(bufKey)
		if err != nil {
			return err
		}
		bufRaw = v
		return nil
	})
	if err == buntdb.ErrNotFound {
		return dataobj.DO{}, cmn.WrapErr(cmn.NotFound, err, "no such object %v in bucket %s", key, bucket)
	}
	if err != nil {
		return dataobj.DO{}, cmn.WrapErr(cmn.IOError, err, "read %v", key)
	}
	typeID, metaSize, _, derr := decodeInfo(infoRaw)
	if derr != nil {
		return dataobj.DO{}, derr
	}
	if uint32(len(bufRaw)) < metaSize {
		return dataobj.DO{}, cmn.NewErr(cmn.IOError, "corrupt .buffer record for %v: shorter than meta_size", key)
	}
	meta := []byte(bufRaw[:metaSize])
	data := []byte(bufRaw[metaSize:])
	return dataobj.New(typeID, meta, data, dataobj.Lazy)
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

// GetInfo reads only the ".info" record (spec.md §9 resolves this Open
// Question: the embedded-KV backend never touches ".buffer" for Info).
func (b *Backend) GetInfo(bucket cmn.Bucket, key cmn.Key) (iom.ObjectInfo, error) {
	db, err := b.bucketDB(bucket)
	if err != nil {
		return iom.ObjectInfo{}, err
	}
	infoKey, _ := recordKeys(key)
	var raw string
	err = db.View(func(tx *buntdb.Tx) error {
		v, err := tx.Get(infoKey)
		if err != nil {
			return err
		}
		raw = v
		return nil
	})
	if err == buntdb.ErrNotFound {
		return iom.ObjectInfo{}, cmn.WrapErr(cmn.NotFound, err, "no such object %v in bucket %s", key, bucket)
	}
	if err != nil {
		return iom.ObjectInfo{}, cmn.WrapErr(cmn.IOError, err, "read info %v", key)
	}
	_, metaSize, dataSize, derr := decodeInfo(raw)
	if derr != nil {
		return iom.ObjectInfo{}, derr
	}
	return iom.ObjectInfo{Availability: iom.InDisk, UserBytes: int64(metaSize) + int64(dataSize)}, nil
}

// List walks every ".info" key of the bucket with buntdb's AscendKeys
// and keeps those whose unpacked cmn.Key matches pattern; the wildcard
// match is done here, not by buntdb's glob (spec.md §9 resolves this
// Open Question).
func (b *Backend) List(bucket cmn.Bucket, pattern cmn.Key) (iom.ObjectCapacities, error) {
	db, err := b.bucketDB(bucket)
	if err != nil {
		return iom.ObjectCapacities{}, err
	}
	var out iom.ObjectCapacities
	err = db.View(func(tx *buntdb.Tx) error {
		return tx.AscendKeys("*.info", func(k, v string) bool {
			rest := strings.TrimSuffix(k, ".info")
			key, perr := cmn.UnpackPup(rest)
			if perr != nil || !pattern.Matches(key) {
				return true
			}
			_, metaSize, dataSize, ierr := decodeInfo(v)
			if ierr != nil {
				return true
			}
			out.Keys = append(out.Keys, key)
			out.Capacities = append(out.Capacities, int64(metaSize)+int64(dataSize))
			return true
		})
	})
	if err != nil {
		return iom.ObjectCapacities{}, cmn.WrapErr(cmn.IOError, err, "list bucket %s", bucket)
	}
	return out, nil
}

func (b *Backend) Settings() map[string]string {
	out := b.BaseBackend.Settings()
	b.mu.Lock()
	count := len(b.dbs)
	b.mu.Unlock()
	out["num_buckets"] = strconv.Itoa(count)
	return out
}

func (b *Backend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	var firstErr error
	for bucket, db := range b.dbs {
		if err := db.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(b.dbs, bucket)
	}
	return firstErr
}

var _ iom.Backend = (*Backend)(nil)
