package mimir

import (
	"bytes"
	"errors"
	"testing"
)

const (
	aliceHex      = "0xd43593c715fdd31c61141abd04a99fd6822c8558854ccde39a5684e7a56da27d"
	aliceGeneric  = "5GrwvaEF5zXb26Fz9rcQpDWS57CtERHpNehXCPcNoHGKutQY"
	alicePolkadot = "15oF4uVJwmo4TdGW7VfQxNLavjCXviqxT9S1MgbjMNHr6Sp5"
	aliceKusama   = "HNZata7iMYWmk5RvZRTiAsSDhV8366zq2YGb3tLH5Upf74F"
)

func testAddress(b byte) Address {
	return Address(bytes.Repeat([]byte{b}, PublicKeyLength))
}

func TestDecodeKnownAddresses(t *testing.T) {
	alice := MustAddress(aliceHex)

	for _, tc := range []struct {
		input  string
		format uint16
	}{
		{aliceGeneric, 42},
		{alicePolkadot, 0},
		{aliceKusama, 2},
	} {
		addr, format, err := DecodeSS58(tc.input)
		if err != nil {
			t.Fatal(tc.input, err)
		}

		if addr != alice {
			t.Errorf("%s decoded to %s", tc.input, addr.Hex())
		}

		if format != tc.format {
			t.Errorf("%s format = %d, want %d", tc.input, format, tc.format)
		}

		if got := alice.Encode(tc.format); got != tc.input {
			t.Errorf("encode format %d = %s, want %s", tc.format, got, tc.input)
		}
	}

	if alice.String() != aliceGeneric {
		t.Errorf("String() = %s", alice.String())
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	raw := testAddress(7).Bytes()

	for _, format := range []uint16{0, 2, 42, 63, 64, 255, 1284, 16383} {
		s, err := Encode(raw, format)
		if err != nil {
			t.Fatal(format, err)
		}

		addr, got, err := DecodeSS58(s)
		if err != nil {
			t.Fatal(format, err)
		}

		if !bytes.Equal(addr.Bytes(), raw) || got != format {
			t.Errorf("format %d: round trip gave %s / %d", format, addr.Hex(), got)
		}
	}

	if _, err := Encode(raw, 16384); err == nil {
		t.Error("format above 16383 must fail")
	}
}

func TestDecodeRejectsInvalid(t *testing.T) {
	corrupted := []byte(aliceGeneric)
	corrupted[len(corrupted)-1] = 'X'

	for _, input := range []string{
		"",
		"not an address",
		string(corrupted),
		"0x1234",
		"5Grwva",
	} {
		_, err := Decode(input)

		var addrErr *InvalidAddressError
		if !errors.As(err, &addrErr) {
			t.Errorf("Decode(%q) error = %v, want InvalidAddressError", input, err)
		}
	}
}

func TestEVMAddress(t *testing.T) {
	addr, err := Decode("0x52908400098527886e0f7030069857d2e4169ee7")
	if err != nil {
		t.Fatal(err)
	}

	if !addr.IsEVM() {
		t.Fatal("expected an evm address")
	}

	if got := addr.String(); got != "0x52908400098527886E0F7030069857D2E4169EE7" {
		t.Errorf("String() = %s", got)
	}

	if !Equal(addr.String(), "0x52908400098527886e0f7030069857d2e4169ee7") {
		t.Error("checksummed and lower case forms must be equal")
	}
}

func TestEqualAcrossFormats(t *testing.T) {
	if !Equal(aliceGeneric, alicePolkadot) {
		t.Error("same key in two formats must be equal")
	}

	if !Equal(aliceHex, aliceKusama) {
		t.Error("hex and ss58 forms must be equal")
	}

	if Equal(aliceGeneric, testAddress(1).String()) {
		t.Error("different keys must not be equal")
	}

	if Equal("garbage", "garbage") {
		t.Error("undecodable inputs are never equal")
	}
}

func TestAddressText(t *testing.T) {
	alice := MustAddress(aliceHex)

	b, err := alice.MarshalText()
	if err != nil {
		t.Fatal(err)
	}

	var got Address
	if err := got.UnmarshalText(b); err != nil {
		t.Fatal(err)
	}

	if got != alice {
		t.Errorf("got %s", got.Hex())
	}

	if err := got.UnmarshalText([]byte(alicePolkadot)); err != nil || got != alice {
		t.Errorf("unmarshal of another format: %v", err)
	}
}

func TestDeriveMultisigAddress(t *testing.T) {
	a, b, c := testAddress(1), testAddress(2), testAddress(3)

	addr, err := DeriveMultisigAddress([]Address{a, b, c}, 2)
	if err != nil {
		t.Fatal(err)
	}

	if len(addr) != PublicKeyLength {
		t.Fatalf("derived address has %d bytes", len(addr))
	}

	shuffled, err := DeriveMultisigAddress([]Address{c, a, b, a}, 2)
	if err != nil {
		t.Fatal(err)
	}

	if shuffled != addr {
		t.Error("member order and duplicates must not change the address")
	}

	other, err := DeriveMultisigAddress([]Address{a, b, c}, 3)
	if err != nil {
		t.Fatal(err)
	}

	if other == addr {
		t.Error("threshold must change the address")
	}

	if _, err := DeriveMultisigAddress([]Address{a, b}, 3); !errors.Is(err, ErrInvalidThreshold) {
		t.Errorf("threshold above members: %v", err)
	}

	if _, err := DeriveMultisigAddress([]Address{a, b}, 0); !errors.Is(err, ErrInvalidThreshold) {
		t.Errorf("zero threshold: %v", err)
	}

	if _, err := DeriveMultisigAddress(nil, 1); !errors.Is(err, ErrEmptyMembers) {
		t.Errorf("no members: %v", err)
	}
}

func TestSortAddresses(t *testing.T) {
	in := []Address{testAddress(3), testAddress(1), testAddress(3), testAddress(2)}
	out := SortAddresses(in)

	want := []Address{testAddress(1), testAddress(2), testAddress(3)}
	if len(out) != len(want) {
		t.Fatalf("got %d addresses", len(out))
	}

	for i := range want {
		if out[i] != want[i] {
			t.Errorf("out[%d] = %s", i, out[i].Hex())
		}
	}

	if in[0] != testAddress(3) {
		t.Error("input must not be modified")
	}
}
