package fileiom

import (
	"testing"

	"github.com/sandialabs/kelpie/cmn"
	"github.com/sandialabs/kelpie/dataobj"
	"github.com/sandialabs/kelpie/iom"
)

func mustDO(t *testing.T, data string) dataobj.DO {
	t.Helper()
	do, err := dataobj.New(1, nil, []byte(data), dataobj.Lazy)
	if err != nil {
		t.Fatalf("dataobj.New: %v", err)
	}
	return do
}

func TestWriteReadRoundTrip(t *testing.T) {
	for _, compress := range []bool{false, true} {
		backend, err := newBackend("t", map[string]string{"dir": t.TempDir(), "compress": boolStr(compress)})
		if err != nil {
			t.Fatalf("newBackend(compress=%v): %v", compress, err)
		}
		bucket := cmn.NewBucket("b")
		key := cmn.NewKey("row", "col")
		do := mustDO(t, "hello world")

		if err := backend.WriteObject(bucket, key, do); err != nil {
			t.Fatalf("WriteObject: %v", err)
		}
		got, err := backend.ReadObject(bucket, key)
		if err != nil {
			t.Fatalf("ReadObject: %v", err)
		}
		if !got.Equal(do) {
			t.Fatalf("round-tripped object differs (compress=%v)", compress)
		}

		info, err := backend.GetInfo(bucket, key)
		if err != nil {
			t.Fatalf("GetInfo: %v", err)
		}
		if info.UserBytes != int64(do.UserSize()) {
			t.Fatalf("GetInfo size = %d, want %d", info.UserBytes, do.UserSize())
		}
	}
}

func boolStr(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

func TestReadMissingIsNotFound(t *testing.T) {
	backend, err := newBackend("t", map[string]string{"dir": t.TempDir()})
	if err != nil {
		t.Fatalf("newBackend: %v", err)
	}
	_, err = backend.ReadObject(cmn.NewBucket("b"), cmn.NewKey("nope", "nope"))
	if cmn.KindOf(err) != cmn.NotFound {
		t.Fatalf("got %v, want NotFound", cmn.KindOf(err))
	}
}

func TestListMatchesWildcard(t *testing.T) {
	backend, err := newBackend("t", map[string]string{"dir": t.TempDir()})
	if err != nil {
		t.Fatalf("newBackend: %v", err)
	}
	bucket := cmn.NewBucket("b")
	backend.WriteObject(bucket, cmn.NewKey("row1", "a"), mustDO(t, "1"))
	backend.WriteObject(bucket, cmn.NewKey("row1", "b"), mustDO(t, "2"))
	backend.WriteObject(bucket, cmn.NewKey("row2", "a"), mustDO(t, "3"))

	caps, err := backend.List(bucket, cmn.NewKey("row1", "*"))
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(caps.Keys) != 2 {
		t.Fatalf("expected 2 matches, got %d: %+v", len(caps.Keys), caps.Keys)
	}
}

func TestFreeBytesSetting(t *testing.T) {
	backend, err := newBackend("t", map[string]string{"dir": t.TempDir()})
	if err != nil {
		t.Fatalf("newBackend: %v", err)
	}
	if _, ok := backend.Setting("free_bytes"); !ok {
		t.Fatalf("expected free_bytes setting to be reported")
	}
}

var _ iom.Backend = (*Backend)(nil)
