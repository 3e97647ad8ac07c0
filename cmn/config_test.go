package cmn

import (
	"os"
	"path/filepath"
	"testing"
)

func TestParseKVSkipsBlankAndCommentLines(t *testing.T) {
	c := ParseKV([]string{
		"# a comment",
		"",
		"kelpie.type=nonet",
		"  default.kelpie.ioms = mem ",
	})
	if v, ok := c.Get("kelpie.type"); !ok || v != "nonet" {
		t.Fatalf("kelpie.type = %q, %v", v, ok)
	}
	if v, ok := c.Get("default.kelpie.ioms"); !ok || v != "mem" {
		t.Fatalf("default.kelpie.ioms = %q, %v", v, ok)
	}
}

func TestGetEnvIndirection(t *testing.T) {
	old := envLookup
	defer func() { envLookup = old }()
	envLookup = func(name string) (string, bool) {
		if name == "KELPIE_S3_BUCKET" {
			return "my-bucket", true
		}
		return "", false
	}
	c := ParseKV([]string{"default.kelpie.iom.s3.s3_bucket.env_name=KELPIE_S3_BUCKET"})
	v, ok := c.Get("default.kelpie.iom.s3.s3_bucket")
	if !ok || v != "my-bucket" {
		t.Fatalf("env indirection: got %q, %v", v, ok)
	}
}

func TestIOMNamesAndSettings(t *testing.T) {
	c := ParseKV([]string{
		"default.kelpie.ioms=mem;disk",
		"default.kelpie.iom.mem.type=buntdb",
		"default.kelpie.iom.mem.path=:memory:",
		"default.kelpie.iom.disk.type=file",
		"default.kelpie.iom.disk.dir=/tmp/kelpie",
	})
	names := c.IOMNames("default.kelpie")
	if len(names) != 2 || names[0] != "mem" || names[1] != "disk" {
		t.Fatalf("IOMNames = %v", names)
	}
	typ, ok := c.IOMType("default.kelpie", "mem")
	if !ok || typ != "buntdb" {
		t.Fatalf("IOMType = %q, %v", typ, ok)
	}
	settings := c.IOMSettings("default.kelpie", "disk")
	if settings["dir"] != "/tmp/kelpie" {
		t.Fatalf("IOMSettings = %v", settings)
	}
	if _, ok := settings["type"]; ok {
		t.Fatalf("IOMSettings must exclude the reserved \"type\" key")
	}
}

func TestLoadConfigReadsFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "kelpie.conf")
	if err := os.WriteFile(path, []byte("kelpie.type=nonet\nkelpie.lkv.debug=true\n"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	c, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if v, _ := c.Get("kelpie.type"); v != "nonet" {
		t.Fatalf("kelpie.type = %q", v)
	}
	if !c.DebugEnabled("lkv") {
		t.Fatalf("expected kelpie.lkv.debug=true to enable debug")
	}
}

func TestLoadConfigMissingFileIsIOError(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "does-not-exist.conf"))
	if KindOf(err) != IOError {
		t.Fatalf("expected IOError, got %v", KindOf(err))
	}
}
