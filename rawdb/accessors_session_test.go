package rawdb

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/radiation-octopus/octopus-trade/typedb/memorydb"
)

func TestSmartAccountAddressStorage(t *testing.T) {
	db := memorydb.New()

	if addr := ReadSmartAccountAddress(db); addr != nil {
		t.Fatalf("non existent address returned: %v", addr)
	}
	want := common.HexToAddress("0x1dbbbd0dbb1c4f89e88cc6c12bf9b37ac4c32a09")
	WriteSmartAccountAddress(db, want)
	if addr := ReadSmartAccountAddress(db); addr == nil || *addr != want {
		t.Fatalf("stored address mismatch: have %v, want %v", addr, want)
	}
	if raw, _ := db.Get(smartAccountAddressKey); string(raw) != want.Hex() {
		t.Fatalf("address must be stored as hex string, got %q", raw)
	}
	DeleteSmartAccountAddress(db)
	if addr := ReadSmartAccountAddress(db); addr != nil {
		t.Fatalf("deleted address returned: %v", addr)
	}
	if db.Len() != 0 {
		t.Fatalf("store not empty after delete: %d", db.Len())
	}
}

func TestMalformedSmartAccountAddress(t *testing.T) {
	db := memorydb.New()
	db.Put(smartAccountAddressKey, []byte("not-an-address"))
	if addr := ReadSmartAccountAddress(db); addr != nil {
		t.Fatalf("malformed record returned: %v", addr)
	}
}
