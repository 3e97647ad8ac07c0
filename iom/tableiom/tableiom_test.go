package tableiom

import "testing"

func TestCreateTableDDLNamesTable(t *testing.T) {
	ddl := createTableDDL("objects")
	if ddl == "" {
		t.Fatalf("empty DDL")
	}
	wantSubstrings := []string{"objects", "PRIMARY KEY (bucket, key)", "type tinyint", "meta_size bigint", "data_size bigint", "payload blob"}
	for _, s := range wantSubstrings {
		if !contains(ddl, s) {
			t.Fatalf("DDL missing %q: %s", s, ddl)
		}
	}
}

func TestInsertAndSelectDMLNameTable(t *testing.T) {
	if !contains(insertDML("myobjs"), "INSERT INTO myobjs") {
		t.Fatalf("insertDML did not reference table name")
	}
	if !contains(selectOneDML("myobjs"), "FROM myobjs") {
		t.Fatalf("selectOneDML did not reference table name")
	}
	if !contains(selectBucketDML("myobjs"), "ALLOW FILTERING") {
		t.Fatalf("selectBucketDML missing ALLOW FILTERING")
	}
}

func TestNewBackendRequiresHostsAndKeyspace(t *testing.T) {
	if _, err := newBackend("t", map[string]string{}); err == nil {
		t.Fatalf("expected error with no settings")
	}
	if _, err := newBackend("t", map[string]string{"hosts": "localhost"}); err == nil {
		t.Fatalf("expected error with missing keyspace")
	}
}

func contains(s, substr string) bool {
	for i := 0; i+len(substr) <= len(s); i++ {
		if s[i:i+len(substr)] == substr {
			return true
		}
	}
	return false
}
