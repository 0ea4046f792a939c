package memorydb

import (
	"bytes"
	"testing"

	"github.com/radiation-octopus/octopus-trade/typedb"
)

func TestMemoryDB(t *testing.T) {
	db := New()
	key, val := []byte("SmartAccountAddress"), []byte("0x01")

	if err := db.Put(key, val); err != nil {
		t.Fatal(err)
	}
	val[0] = 'x'
	got, err := db.Get(key)
	if err != nil || !bytes.Equal(got, []byte("0x01")) {
		t.Fatalf("got %q, %v: stored value must be a copy", got, err)
	}
	if ok, _ := db.Has(key); !ok {
		t.Fatal("key missing")
	}
	if err := db.Delete(key); err != nil {
		t.Fatal(err)
	}
	if _, err := db.Get(key); err != typedb.ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := db.Delete(key); err != nil {
		t.Fatalf("deleting a missing key: %v", err)
	}
	db.Close()
	if _, err := db.Get(key); err != errMemorydbClosed {
		t.Fatalf("expected closed error, got %v", err)
	}
}
