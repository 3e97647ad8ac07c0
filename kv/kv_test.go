package kv

import (
	"sync"
	"testing"

	"github.com/sandialabs/kelpie/cmn"
	"github.com/sandialabs/kelpie/dataobj"
	"github.com/sandialabs/kelpie/iom"
)

func mustDO(t *testing.T, typeID uint16, meta, data string) dataobj.DO {
	t.Helper()
	do, err := dataobj.New(typeID, []byte(meta), []byte(data), dataobj.Lazy)
	if err != nil {
		t.Fatalf("dataobj.New: %v", err)
	}
	return do
}

type recordingNotifier struct {
	mu  sync.Mutex
	ids []string
}

func (n *recordingNotifier) Notify(mailboxID string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.ids = append(n.ids, mailboxID)
}

func (n *recordingNotifier) notified(id string) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, got := range n.ids {
		if got == id {
			return true
		}
	}
	return false
}

type fakeBackend struct {
	iom.BaseBackend
	mu      sync.Mutex
	objects map[cmn.Key]dataobj.DO
	list    iom.ObjectCapacities
}

func newFakeBackend(name string) *fakeBackend {
	return &fakeBackend{BaseBackend: iom.NewBaseBackend(name, nil), objects: map[cmn.Key]dataobj.DO{}}
}

func (f *fakeBackend) WriteObject(_ cmn.Bucket, key cmn.Key, do dataobj.DO) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[key] = do.Clone()
	return nil
}

func (f *fakeBackend) WriteObjects(bucket cmn.Bucket, kvs []iom.KeyVal) error {
	for _, kv := range kvs {
		if err := f.WriteObject(bucket, kv.Key, kv.DO); err != nil {
			return err
		}
	}
	return nil
}

func (f *fakeBackend) ReadObject(_ cmn.Bucket, key cmn.Key) (dataobj.DO, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	do, ok := f.objects[key]
	if !ok {
		return dataobj.DO{}, cmn.NewErr(cmn.NotFound, "no such object %v", key)
	}
	return do.Clone(), nil
}

func (f *fakeBackend) ReadObjects(bucket cmn.Bucket, keys []cmn.Key) ([]iom.KeyVal, []cmn.Key, cmn.Kind) {
	var found []iom.KeyVal
	var missing []cmn.Key
	for _, k := range keys {
		if do, err := f.ReadObject(bucket, k); err == nil {
			found = append(found, iom.KeyVal{Key: k, DO: do})
		} else {
			missing = append(missing, k)
		}
	}
	if len(missing) > 0 {
		return found, missing, cmn.Recheck
	}
	return found, missing, cmn.Ok
}

func (f *fakeBackend) GetInfo(_ cmn.Bucket, key cmn.Key) (iom.ObjectInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	do, ok := f.objects[key]
	if !ok {
		return iom.ObjectInfo{}, cmn.NewErr(cmn.NotFound, "no such object %v", key)
	}
	return iom.ObjectInfo{Availability: iom.InDisk, UserBytes: int64(do.UserSize())}, nil
}

func (f *fakeBackend) List(cmn.Bucket, cmn.Key) (iom.ObjectCapacities, error) { return f.list, nil }

func (f *fakeBackend) Close() error { return nil }

var bucket = cmn.NewBucket("test-bucket")

func TestPutGetRoundTrip(t *testing.T) {
	table := Init()
	key := cmn.NewKey("row1", "col1")
	do := mustDO(t, 1, "meta", "data")

	info, kind, err := table.Put(bucket, key, do, false, false, nil, nil)
	if err != nil || kind != cmn.Ok {
		t.Fatalf("Put: kind=%v err=%v", kind, err)
	}
	if info.ColAvailability != InLocalMemory || info.RowNumColumns != 1 {
		t.Fatalf("unexpected info: %+v", info)
	}

	got, kind := table.Get(bucket, key)
	if kind != cmn.Ok {
		t.Fatalf("Get kind=%v", kind)
	}
	if !got.Equal(do) {
		t.Fatalf("round-tripped DO differs")
	}
}

func TestPutExistsWithoutOverwrite(t *testing.T) {
	table := Init()
	key := cmn.NewKey("row1", "col1")
	do1 := mustDO(t, 1, "m1", "d1")
	do2 := mustDO(t, 1, "m2", "d2")

	if _, kind, _ := table.Put(bucket, key, do1, false, false, nil, nil); kind != cmn.Ok {
		t.Fatalf("first put: %v", kind)
	}
	if _, kind, _ := table.Put(bucket, key, do2, false, false, nil, nil); kind != cmn.Exists {
		t.Fatalf("second put without overwrite: got %v, want Exists", kind)
	}
	got, _ := table.Get(bucket, key)
	if !got.Equal(do1) {
		t.Fatalf("value was overwritten despite enableOverwrites=false")
	}
}

func TestPutOverwrite(t *testing.T) {
	table := Init()
	key := cmn.NewKey("row1", "col1")
	do1 := mustDO(t, 1, "m1", "d1")
	do2 := mustDO(t, 1, "m2", "d2")

	table.Put(bucket, key, do1, true, false, nil, nil)
	if _, kind, _ := table.Put(bucket, key, do2, true, false, nil, nil); kind != cmn.Ok {
		t.Fatalf("overwrite put: %v", kind)
	}
	got, _ := table.Get(bucket, key)
	if !got.Equal(do2) {
		t.Fatalf("overwrite did not take effect")
	}
}

func TestGetMissingReturnsNotFound(t *testing.T) {
	table := Init()
	if _, kind := table.Get(bucket, cmn.NewKey("nope", "nope")); kind != cmn.NotFound {
		t.Fatalf("got %v, want NotFound", kind)
	}
}

func TestWantLocalFirstThenWaitingThenTriggered(t *testing.T) {
	table := Init()
	key := cmn.NewKey("row1", "col1")

	var mu sync.Mutex
	var delivered []dataobj.DO
	cb := func(_ cmn.Key, do dataobj.DO, _ ObjectInfo) {
		mu.Lock()
		defer mu.Unlock()
		delivered = append(delivered, do)
	}

	if kind := table.WantLocal(bucket, key, true, cb); kind != cmn.NotFound {
		t.Fatalf("first want: got %v, want NotFound", kind)
	}
	if kind := table.WantLocal(bucket, key, true, cb); kind != cmn.Waiting {
		t.Fatalf("second want: got %v, want Waiting", kind)
	}

	do := mustDO(t, 1, "meta", "data")
	table.Put(bucket, key, do, false, false, nil, nil)

	mu.Lock()
	defer mu.Unlock()
	if len(delivered) != 2 {
		t.Fatalf("expected both waiters triggered, got %d", len(delivered))
	}
}

func TestGetForOpParksMailboxThenNotifiedOnPut(t *testing.T) {
	table := Init()
	key := cmn.NewKey("row1", "col1")
	notifier := &recordingNotifier{}

	_, kind, err := table.GetForOp(bucket, key, "mbox-1", nil, false, notifier)
	if err != nil || kind != cmn.NotFound {
		t.Fatalf("getForOp on miss: kind=%v err=%v", kind, err)
	}

	do := mustDO(t, 1, "meta", "data")
	table.Put(bucket, key, do, false, false, nil, notifier)

	if !notifier.notified("mbox-1") {
		t.Fatalf("mailbox was never notified")
	}
}

func TestGetForOpConsultsIOMAndCachesWhenReadToRemote(t *testing.T) {
	table := Init()
	key := cmn.NewKey("row1", "col1")
	backend := newFakeBackend("disk")
	do := mustDO(t, 1, "meta", "data")
	backend.objects[key] = do

	got, kind, err := table.GetForOp(bucket, key, "", backend, true, nil)
	if err != nil || kind != cmn.Ok {
		t.Fatalf("getForOp via iom: kind=%v err=%v", kind, err)
	}
	if !got.Equal(do) {
		t.Fatalf("returned DO does not match iom contents")
	}
	// second call must be satisfied purely from memory now.
	if _, kind := table.Get(bucket, key); kind != cmn.Ok {
		t.Fatalf("expected cell cached in memory after ReadToRemote, got %v", kind)
	}
}

func TestDropExactKey(t *testing.T) {
	table := Init()
	key := cmn.NewKey("row1", "col1")
	table.Put(bucket, key, mustDO(t, 1, "m", "d"), false, false, nil, nil)

	if kind := table.Drop(bucket, key); kind != cmn.Ok {
		t.Fatalf("drop: %v", kind)
	}
	if _, kind := table.Get(bucket, key); kind != cmn.NotFound {
		t.Fatalf("key survived drop")
	}
	if kind := table.Drop(bucket, key); kind != cmn.NotFound {
		t.Fatalf("second drop: got %v, want NotFound", kind)
	}
}

func TestDropRowWildcardRemovesOnlyMatchingRows(t *testing.T) {
	table := Init()
	table.Put(bucket, cmn.NewKey("prefix-a", "c"), mustDO(t, 1, "", "1"), false, false, nil, nil)
	table.Put(bucket, cmn.NewKey("prefix-b", "c"), mustDO(t, 1, "", "2"), false, false, nil, nil)
	table.Put(bucket, cmn.NewKey("other", "c"), mustDO(t, 1, "", "3"), false, false, nil, nil)

	if kind := table.Drop(bucket, cmn.NewKey("prefix*", "c")); kind != cmn.Ok {
		t.Fatalf("wildcard drop: %v", kind)
	}
	if _, kind := table.Get(bucket, cmn.NewKey("prefix-a", "c")); kind != cmn.NotFound {
		t.Fatalf("prefix-a survived")
	}
	if _, kind := table.Get(bucket, cmn.NewKey("prefix-b", "c")); kind != cmn.NotFound {
		t.Fatalf("prefix-b survived")
	}
	if _, kind := table.Get(bucket, cmn.NewKey("other", "c")); kind != cmn.Ok {
		t.Fatalf("unrelated row was dropped")
	}
}

func TestColSingleSortsFirstInWildcardList(t *testing.T) {
	table := Init()
	table.Put(bucket, cmn.NewKey("row1", ""), mustDO(t, 1, "", "unnamed"), false, false, nil, nil)
	table.Put(bucket, cmn.NewKey("row1", "a"), mustDO(t, 1, "", "a-val"), false, false, nil, nil)

	caps, kind := table.List(bucket, cmn.NewKey("row1", "*"), nil)
	if kind != cmn.Ok {
		t.Fatalf("list: %v", kind)
	}
	if len(caps.Keys) != 2 {
		t.Fatalf("expected 2 results, got %d", len(caps.Keys))
	}
	if caps.Keys[0].K2 != "" || caps.Keys[1].K2 != "a" {
		t.Fatalf("unnamed column did not sort first: %+v", caps.Keys)
	}
}

func TestListMergesIOMWithoutDuplicates(t *testing.T) {
	table := Init()
	inMemKey := cmn.NewKey("row1", "a")
	table.Put(bucket, inMemKey, mustDO(t, 1, "", "in-mem"), false, false, nil, nil)

	backend := newFakeBackend("disk")
	backend.list = iom.ObjectCapacities{
		Keys:       []cmn.Key{inMemKey, cmn.NewKey("row1", "b")},
		Capacities: []int64{999, 42},
	}

	caps, kind := table.List(bucket, cmn.NewKey("row1", "*"), backend)
	if kind != cmn.Ok {
		t.Fatalf("list: %v", kind)
	}
	if len(caps.Keys) != 2 {
		t.Fatalf("expected merged result to de-duplicate, got %d entries: %+v", len(caps.Keys), caps.Keys)
	}
}

func TestGetAvailableRejectsRowWildcard(t *testing.T) {
	table := Init()
	if _, err := table.GetAvailable(bucket, cmn.NewKey("row*", "c")); err == nil {
		t.Fatalf("expected error for row-wildcard getAvailable")
	}
}

func TestGetAvailableReturnsOnlyInMemoryColumns(t *testing.T) {
	table := Init()
	table.Put(bucket, cmn.NewKey("row1", "a"), mustDO(t, 1, "", "a"), false, false, nil, nil)
	table.WantLocal(bucket, cmn.NewKey("row1", "b"), true, func(cmn.Key, dataobj.DO, ObjectInfo) {})

	out, err := table.GetAvailable(bucket, cmn.NewKey("row1", "*"))
	if err != nil {
		t.Fatalf("getAvailable: %v", err)
	}
	if len(out) != 1 {
		t.Fatalf("expected only the in-memory column, got %d", len(out))
	}
	if _, ok := out[cmn.NewKey("row1", "a")]; !ok {
		t.Fatalf("missing expected column a")
	}
}
