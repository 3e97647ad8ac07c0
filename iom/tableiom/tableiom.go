// Package tableiom is the remote tabular persistence backend (spec.md
// §4.3.3): one row per object in a Cassandra-compatible cluster, reached
// through gocql.
/*
 * Copyright (c) 2024, Sandia National Laboratories.
 */
package tableiom

import (
	"strings"
	"time"

	"github.com/gocql/gocql"

	"github.com/sandialabs/kelpie/cmn"
	"github.com/sandialabs/kelpie/dataobj"
	"github.com/sandialabs/kelpie/iom"
)

var recognizedSettings = []iom.SettingDescriptor{
	{Name: "hosts", Description: "comma-separated Cassandra contact points"},
	{Name: "keyspace", Description: "keyspace holding the objects table"},
	{Name: "table", Description: `table name, default "objects"`},
	{Name: "teardown", Description: `"true" drops the table on Close (test/ephemeral clusters)`},
}

func init() {
	iom.RegisterFactory("cassandra", newBackend)
}

// Backend stores objects in a single wide table keyed by (bucket, key),
// where key is the packed K1/K2 pup, reached over a gocql session.
type Backend struct {
	iom.BaseBackend
	session  *gocql.Session
	table    string
	teardown bool
}

func newBackend(name string, settings map[string]string) (iom.Backend, error) {
	filtered := iom.FilterSettings(settings, recognizedSettings)
	hostsRaw, ok := filtered["hosts"]
	if !ok {
		return nil, cmn.NewErr(cmn.InvalidArg, "cassandra iom %q: missing required setting \"hosts\"", name)
	}
	keyspace, ok := filtered["keyspace"]
	if !ok {
		return nil, cmn.NewErr(cmn.InvalidArg, "cassandra iom %q: missing required setting \"keyspace\"", name)
	}
	table := filtered["table"]
	if table == "" {
		table = "objects"
	}

	cluster := gocql.NewCluster(strings.Split(hostsRaw, ",")...)
	cluster.Keyspace = keyspace
	cluster.Consistency = gocql.Quorum
	cluster.Timeout = 10 * time.Second

	session, err := cluster.CreateSession()
	if err != nil {
		return nil, cmn.WrapErr(cmn.IOError, err, "connect to cassandra cluster %q", hostsRaw)
	}
	if err := session.Query(createTableDDL(table)).Exec(); err != nil {
		session.Close()
		return nil, cmn.WrapErr(cmn.IOError, err, "create table %s", table)
	}

	return &Backend{
		BaseBackend: iom.NewBaseBackend(name, filtered),
		session:     session,
		table:       table,
		teardown:    filtered["teardown"] == "true",
	}, nil
}

func createTableDDL(table string) string {
	return "CREATE TABLE IF NOT EXISTS " + table + " (" +
		"bucket text, key text, type tinyint, meta_size bigint, data_size bigint, payload blob, " +
		"PRIMARY KEY (bucket, key))"
}

func insertDML(table string) string {
	return "INSERT INTO " + table + " (bucket, key, type, meta_size, data_size, payload) VALUES (?, ?, ?, ?, ?, ?)"
}

func selectOneDML(table string) string {
	return "SELECT type, meta_size, data_size, payload FROM " + table + " WHERE bucket = ? AND key = ?"
}

func selectBucketDML(table string) string {
	return "SELECT key, type, meta_size, data_size, payload FROM " + table + " WHERE bucket = ? ALLOW FILTERING"
}

func (b *Backend) WriteObject(bucket cmn.Bucket, key cmn.Key, do dataobj.DO) error {
	payload := append(append([]byte{}, do.MetaBytes()...), do.DataBytes()...)
	q := b.session.Query(insertDML(b.table), bucket.Hex(), key.Pup(), int8(do.TypeID()), int64(do.MetaSize()), int64(do.DataSize()), payload)
	if err := q.Exec(); err != nil {
		return cmn.WrapErr(cmn.IOError, err, "insert %v", key)
	}
	return nil
}

// WriteObjects batches every insert into a single logged gocql.Batch.
func (b *Backend) WriteObjects(bucket cmn.Bucket, kvs []iom.KeyVal) error {
	batch := b.session.NewBatch(gocql.LoggedBatch)
	for _, kv := range kvs {
		payload := append(append([]byte{}, kv.DO.MetaBytes()...), kv.DO.DataBytes()...)
		batch.Query(insertDML(b.table), bucket.Hex(), kv.Key.Pup(),
			int8(kv.DO.TypeID()), int64(kv.DO.MetaSize()), int64(kv.DO.DataSize()), payload)
	}
	if err := b.session.ExecuteBatch(batch); err != nil {
		return cmn.WrapErr(cmn.IOError, err, "batch write %d objects", len(kvs))
	}
	return nil
}

func splitPayload(payload []byte, metaSize int64) (meta, data []byte) {
	if metaSize < 0 || metaSize > int64(len(payload)) {
		metaSize = 0
	}
	return payload[:metaSize], payload[metaSize:]
}

func (b *Backend) ReadObject(bucket cmn.Bucket, key cmn.Key) (dataobj.DO, error) {
	var typeID int8
	var metaSize, dataSize int64
	var payload []byte
	err := b.session.Query(selectOneDML(b.table), bucket.Hex(), key.Pup()).Scan(&typeID, &metaSize, &dataSize, &payload)
	if err == gocql.ErrNotFound {
		return dataobj.DO{}, cmn.WrapErr(cmn.NotFound, err, "no such object %v in bucket %s", key, bucket)
	}
	if err != nil {
		return dataobj.DO{}, cmn.WrapErr(cmn.IOError, err, "select %v", key)
	}
	meta, data := splitPayload(payload, metaSize)
	return dataobj.New(uint16(typeID), meta, data, dataobj.Lazy)
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

// GetInfo consults only the row iterator's first row rather than a
// second, separate query path (spec.md §9's resolution of the
// "does a row-store need a lighter Info path" Open Question: there is no
// cheaper column-size query available over CQL than selecting the row).
func (b *Backend) GetInfo(bucket cmn.Bucket, key cmn.Key) (iom.ObjectInfo, error) {
	iter := b.session.Query(selectOneDML(b.table), bucket.Hex(), key.Pup()).Iter()
	var typeID int8
	var metaSize, dataSize int64
	var payload []byte
	ok := iter.Scan(&typeID, &metaSize, &dataSize, &payload)
	if err := iter.Close(); err != nil {
		return iom.ObjectInfo{}, cmn.WrapErr(cmn.IOError, err, "info %v", key)
	}
	if !ok {
		return iom.ObjectInfo{}, cmn.NewErr(cmn.NotFound, "no such object %v in bucket %s", key, bucket)
	}
	return iom.ObjectInfo{Availability: iom.InDisk, UserBytes: metaSize + dataSize}, nil
}

// List scans the bucket's partition with ALLOW FILTERING: Cassandra has
// no native prefix index on a clustering column, so matching is done
// client-side against the full partition (spec.md §4.3 "may be slower;
// backends may document this").
func (b *Backend) List(bucket cmn.Bucket, pattern cmn.Key) (iom.ObjectCapacities, error) {
	iter := b.session.Query(selectBucketDML(b.table), bucket.Hex()).Iter()
	var out iom.ObjectCapacities
	var packedKey string
	var typeID int8
	var metaSize, dataSize int64
	var payload []byte
	for iter.Scan(&packedKey, &typeID, &metaSize, &dataSize, &payload) {
		key, perr := cmn.UnpackPup(packedKey)
		if perr != nil {
			continue
		}
		if pattern.Matches(key) {
			out.Keys = append(out.Keys, key)
			out.Capacities = append(out.Capacities, metaSize+dataSize)
		}
	}
	if err := iter.Close(); err != nil {
		return iom.ObjectCapacities{}, cmn.WrapErr(cmn.IOError, err, "list bucket %s", bucket)
	}
	return out, nil
}

func (b *Backend) Close() error {
	if b.teardown {
		if err := b.session.Query("DROP TABLE IF EXISTS " + b.table).Exec(); err != nil {
			b.session.Close()
			return cmn.WrapErr(cmn.IOError, err, "drop table %s", b.table)
		}
	}
	b.session.Close()
	return nil
}

var _ iom.Backend = (*Backend)(nil)
