package status

import (
	"testing"

	"github.com/valyala/fasthttp"

	"github.com/sandialabs/kelpie/cmn"
	"github.com/sandialabs/kelpie/dataobj"
	"github.com/sandialabs/kelpie/iom"
	"github.com/sandialabs/kelpie/kv"
)

func mustDO(t *testing.T, data string) dataobj.DO {
	t.Helper()
	do, err := dataobj.New(1, []byte("m"), []byte(data), dataobj.Lazy)
	if err != nil {
		t.Fatalf("dataobj.New: %v", err)
	}
	return do
}

func doRequest(t *testing.T, h fasthttp.RequestHandler, path string) *fasthttp.RequestCtx {
	t.Helper()
	var req fasthttp.Request
	req.SetRequestURI(path)
	var ctx fasthttp.RequestCtx
	ctx.Init(&req, nil, nil)
	h(&ctx)
	return &ctx
}

func TestServeRowsListsPublishedRows(t *testing.T) {
	local := kv.Init()
	bucket := cmn.NewBucket("tenant")
	local.Put(bucket, cmn.NewKey("row1", "a"), mustDO(t, "x"), true, false, nil, nil)

	s := New(local, nil)
	ctx := doRequest(t, s.Handler(), "/status/rows")
	body := string(ctx.Response.Body())
	if !contains(body, "row1") {
		t.Fatalf("expected row1 in output: %s", body)
	}
}

func TestServeRowReturns404ForUnknownRow(t *testing.T) {
	s := New(kv.Init(), nil)
	ctx := doRequest(t, s.Handler(), "/status/row/nope")
	if ctx.Response.StatusCode() != fasthttp.StatusNotFound {
		t.Fatalf("expected 404, got %d", ctx.Response.StatusCode())
	}
}

func TestServeRowListsColumnsForKnownRow(t *testing.T) {
	local := kv.Init()
	bucket := cmn.NewBucket("tenant")
	local.Put(bucket, cmn.NewKey("row1", "colA"), mustDO(t, "x"), true, false, nil, nil)

	s := New(local, nil)
	ctx := doRequest(t, s.Handler(), "/status/row/row1")
	body := string(ctx.Response.Body())
	if !contains(body, "colA") {
		t.Fatalf("expected colA in output: %s", body)
	}
}

func TestServeIOMsListsRegisteredBackends(t *testing.T) {
	registry := iom.NewRegistry()
	registry.Register("mem", &namedBackend{iom.NewBaseBackend("mem", map[string]string{"k": "v"})})

	s := New(kv.Init(), registry)
	ctx := doRequest(t, s.Handler(), "/status/ioms")
	body := string(ctx.Response.Body())
	if !contains(body, "mem") || !contains(body, "k=v") {
		t.Fatalf("expected iom listing in output: %s", body)
	}
}

func TestUnknownRouteReturns404(t *testing.T) {
	s := New(kv.Init(), nil)
	ctx := doRequest(t, s.Handler(), "/nope")
	if ctx.Response.StatusCode() != fasthttp.StatusNotFound {
		t.Fatalf("expected 404, got %d", ctx.Response.StatusCode())
	}
}

type namedBackend struct {
	iom.BaseBackend
}

func (b *namedBackend) WriteObject(cmn.Bucket, cmn.Key, dataobj.DO) error      { return nil }
func (b *namedBackend) WriteObjects(cmn.Bucket, []iom.KeyVal) error            { return nil }
func (b *namedBackend) ReadObject(cmn.Bucket, cmn.Key) (dataobj.DO, error)     { return dataobj.DO{}, cmn.NewErr(cmn.NotFound, "") }
func (b *namedBackend) ReadObjects(cmn.Bucket, []cmn.Key) ([]iom.KeyVal, []cmn.Key, cmn.Kind) {
	return nil, nil, cmn.Ok
}
func (b *namedBackend) GetInfo(cmn.Bucket, cmn.Key) (iom.ObjectInfo, error) {
	return iom.ObjectInfo{}, cmn.NewErr(cmn.NotFound, "")
}
func (b *namedBackend) Close() error { return nil }

func contains(s, substr string) bool {
	for i := 0; i+len(substr) <= len(s); i++ {
		if s[i:i+len(substr)] == substr {
			return true
		}
	}
	return false
}

var _ iom.Backend = (*namedBackend)(nil)
