package crypto

import (
	"bytes"
	"testing"

	"github.com/ethereum/go-ethereum/common"
)

const testKeyHex = "289c2857d4598e37fb9647507e47a309d6133539bf21a8b9cb6df88fd5232032"

func TestKeccak256Hash(t *testing.T) {
	//空输入的keccak256是固定值
	want := common.HexToHash("c5d2460186f7233c927e7db2dcc703c0e500b653ca82273b7bfad8045d85a470")
	if got := Keccak256Hash(); got != want {
		t.Errorf("keccak256 of empty input mismatch: got %x want %x", got, want)
	}
	if !bytes.Equal(Keccak256(), want.Bytes()) {
		t.Errorf("Keccak256 and Keccak256Hash disagree")
	}
}

func TestCreateAddress2(t *testing.T) {
	// EIP-1014 示例1
	factory := common.HexToAddress("0x0000000000000000000000000000000000000000")
	var salt [32]byte
	initCode := common.FromHex("0x00")
	want := common.HexToAddress("0x4D1A2e2bB4F88F0250f26Ffff098B0b30B26BF38")
	if got := CreateAddress2(factory, salt, Keccak256(initCode)); got != want {
		t.Errorf("create2 address mismatch: got %s want %s", got.Hex(), want.Hex())
	}
}

func TestHexToECDSA(t *testing.T) {
	key, err := HexToECDSA("0x" + testKeyHex)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := common.HexToAddress("0x970E8128AB834E8EAC17Ab8E3812F010678CF791")
	if addr := PubkeyToAddress(key.PublicKey); addr != want {
		t.Errorf("address mismatch: got %s want %s", addr.Hex(), want.Hex())
	}
	if _, err := HexToECDSA("zz"); err == nil {
		t.Error("expected error for invalid hex")
	}
	if _, err := HexToECDSA("0102"); err == nil {
		t.Error("expected error for short key")
	}
	if _, err := ToECDSA(make([]byte, 32)); err == nil {
		t.Error("expected error for zero key")
	}
}

func TestSignTextRecover(t *testing.T) {
	key, _ := HexToECDSA(testKeyHex)
	msg := []byte("octopus")
	sig, err := SignText(msg, key)
	if err != nil {
		t.Fatalf("sign failed: %v", err)
	}
	if len(sig) != SignatureLength || (sig[64] != 27 && sig[64] != 28) {
		t.Fatalf("unexpected signature shape: %x", sig)
	}
	addr, err := RecoverText(msg, sig)
	if err != nil {
		t.Fatalf("recover failed: %v", err)
	}
	if addr != PubkeyToAddress(key.PublicKey) {
		t.Errorf("recovered %s, want %s", addr.Hex(), PubkeyToAddress(key.PublicKey).Hex())
	}
}
