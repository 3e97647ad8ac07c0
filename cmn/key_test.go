package cmn

import "testing"

func TestKeyWildcards(t *testing.T) {
	cases := []struct {
		key        Key
		rowWild    bool
		colWild    bool
		rowPrefix  string
		colPrefix  string
	}{
		{NewKey("mybigitem", "0"), false, false, "mybigitem", "0"},
		{NewKey("Something*", "*"), true, true, "Something", ""},
		{NewKey("x", ""), false, false, "x", ""},
	}
	for _, c := range cases {
		if got := c.key.IsRowWildcard(); got != c.rowWild {
			t.Errorf("%v: IsRowWildcard=%v want %v", c.key, got, c.rowWild)
		}
		if got := c.key.IsColWildcard(); got != c.colWild {
			t.Errorf("%v: IsColWildcard=%v want %v", c.key, got, c.colWild)
		}
		if got := c.key.RowPrefix(); got != c.rowPrefix {
			t.Errorf("%v: RowPrefix=%q want %q", c.key, got, c.rowPrefix)
		}
		if got := c.key.ColPrefix(); got != c.colPrefix {
			t.Errorf("%v: ColPrefix=%q want %q", c.key, got, c.colPrefix)
		}
	}
}

func TestKeyMatches(t *testing.T) {
	pattern := NewKey("Something_1", "Other_2")
	if !pattern.Matches(NewKey("Something_1", "Other_2")) {
		t.Fatal("exact match expected")
	}
	if pattern.Matches(NewKey("Something_1", "Other_3")) {
		t.Fatal("exact mismatch on K2 must not match")
	}
	wc := NewKey("Something_*", "Other_X*")
	if wc.Matches(NewKey("Something_1", "Other_2")) {
		t.Fatal("prefix mismatch on K2 must not match")
	}
	if !wc.Matches(NewKey("Something_1", "Other_X99")) {
		t.Fatal("prefix match expected")
	}
}

func TestPupRoundTrip(t *testing.T) {
	cases := []Key{
		NewKey("mybigitem", "0"),
		NewKey("", ""),
		NewKey("has:colons,and,commas", "3:weird"),
		NewKey("row/with/slashes", "col"),
	}
	for _, k := range cases {
		packed := k.Pup()
		got, err := UnpackPup(packed)
		if err != nil {
			t.Fatalf("UnpackPup(%q): %v", packed, err)
		}
		if got != k {
			t.Errorf("round trip mismatch: %v => %q => %v", k, packed, got)
		}
	}
}

func TestPunycodeRoundTrip(t *testing.T) {
	cases := []string{
		"plainASCII123",
		"has spaces",
		"slashes/and\\backslashes",
		"unicode-\xe2\x98\x83-snowman",
		"",
		"%already%escaped%",
	}
	for _, s := range cases {
		enc := MakePunycode(s)
		for i := 0; i < len(enc); i++ {
			if !isPunySafe(enc[i]) && enc[i] != '%' {
				t.Fatalf("MakePunycode(%q) produced unsafe byte %q in %q", s, enc[i], enc)
			}
		}
		dec, err := ExpandPunycode(enc)
		if err != nil {
			t.Fatalf("ExpandPunycode(%q): %v", enc, err)
		}
		if dec != s {
			t.Errorf("round trip mismatch: %q => %q => %q", s, enc, dec)
		}
	}
}

func TestBucketHexAndParse(t *testing.T) {
	b := NewBucket("my_bucket2")
	hex := b.Hex()
	if len(hex) != 8 {
		t.Fatalf("expected 8 hex digits, got %q", hex)
	}
	parsed, err := ParseBucket("0x" + hex)
	if err != nil {
		t.Fatal(err)
	}
	if parsed != b {
		t.Errorf("ParseBucket round trip: got %v want %v", parsed, b)
	}
	same := NewBucket("my_bucket2")
	if same != b {
		t.Error("hashing the same string twice must be stable")
	}
}
