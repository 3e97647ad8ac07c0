package main

import (
	"flag"
	"testing"

	"github.com/urfave/cli"

	"github.com/sandialabs/kelpie/cmn"
)

func newContext(t *testing.T, args []string, jsonSet bool) *cli.Context {
	t.Helper()
	set := flag.NewFlagSet("test", flag.ContinueOnError)
	set.Bool(jsonFlag.Name, jsonSet, "")
	if err := set.Parse(args); err != nil {
		t.Fatalf("parse: %v", err)
	}
	return cli.NewContext(cli.NewApp(), set, nil)
}

func TestBucketArgParsesHexLiteral(t *testing.T) {
	c := newContext(t, []string{"0x2a", "row", "col"}, false)
	b, err := bucketArg(c, 0)
	if err != nil {
		t.Fatalf("bucketArg: %v", err)
	}
	if b != cmn.Bucket(0x2a) {
		t.Fatalf("bucketArg = %v, want 0x2a", b)
	}
}

func TestBucketArgRejectsMissingArgument(t *testing.T) {
	c := newContext(t, nil, false)
	if _, err := bucketArg(c, 0); cmn.KindOf(err) != cmn.InvalidArg {
		t.Fatalf("expected InvalidArg, got %v", err)
	}
}

func TestPrintResultPlainByDefault(t *testing.T) {
	c := newContext(t, nil, false)
	called := false
	if err := printResult(c, map[string]string{"a": "b"}, func() { called = true }); err != nil {
		t.Fatalf("printResult: %v", err)
	}
	if !called {
		t.Fatalf("expected plain renderer to run when --json is unset")
	}
}

func TestPrintResultJSONSkipsPlainRenderer(t *testing.T) {
	c := newContext(t, nil, true)
	called := false
	if err := printResult(c, map[string]string{"a": "b"}, func() { called = true }); err != nil {
		t.Fatalf("printResult: %v", err)
	}
	if called {
		t.Fatalf("expected plain renderer to be skipped when --json is set")
	}
}
