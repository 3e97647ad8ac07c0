package s3iom

import (
	"testing"

	"github.com/sandialabs/kelpie/cmn"
)

func TestObjectKeyWithAndWithoutPrefix(t *testing.T) {
	bucket := cmn.NewBucket("tenant")
	key := cmn.NewKey("row1", "col1")

	b := &Backend{}
	withoutPrefix := b.objectKey(bucket, key)
	if withoutPrefix == "" {
		t.Fatalf("empty object key")
	}

	b.prefix = "kelpie/objects/"
	withPrefix := b.objectKey(bucket, key)
	if withPrefix == withoutPrefix {
		t.Fatalf("prefix had no effect")
	}
	wantPrefix := "kelpie/objects/" + bucket.Hex() + "/"
	if len(withPrefix) <= len(wantPrefix) || withPrefix[:len(wantPrefix)] != wantPrefix {
		t.Fatalf("objectKey %q does not start with %q", withPrefix, wantPrefix)
	}
}

func TestNewBackendRequiresS3Bucket(t *testing.T) {
	if _, err := newBackend("t", map[string]string{}); err == nil {
		t.Fatalf("expected error with no settings")
	}
	if cmn.KindOf(mustErr(t, map[string]string{})) != cmn.InvalidArg {
		t.Fatalf("expected InvalidArg kind")
	}
}

func mustErr(t *testing.T, settings map[string]string) error {
	t.Helper()
	_, err := newBackend("t", settings)
	if err == nil {
		t.Fatalf("expected error")
	}
	return err
}
