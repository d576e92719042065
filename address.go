package mimir

import (
	"bytes"
	"encoding/binary"
	"sort"
	"strings"

	"github.com/centrifuge/go-substrate-rpc-client/v4/types"
	"github.com/centrifuge/go-substrate-rpc-client/v4/types/codec"
	"github.com/ethereum/go-ethereum/common"
	"github.com/mr-tron/base58"
	"golang.org/x/crypto/blake2b"
)

const (
	PublicKeyLength  = 32
	EVMAddressLength = 20

	// GenericFormat is the substrate generic ss58 prefix.
	GenericFormat uint16 = 42
	maxFormat     uint16 = 16383

	checksumLength = 2
)

var (
	ss58Salt       = []byte("SS58PRE")
	multisigSalt   = []byte("modlpy/utilisuba")
	zeroAddress    Address
	emptyAddresses []Address
)

// Address holds the raw account bytes: a 32 byte public key or a 20 byte
// evm account. Two addresses are equal iff their raw bytes are equal.
type Address string

func NewAddress(raw []byte) (Address, error) {
	switch len(raw) {
	case PublicKeyLength, EVMAddressLength:
		return Address(raw), nil
	default:
		return zeroAddress, invalidAddress(codec.HexEncodeToString(raw), "unsupported length %d", len(raw))
	}
}

func MustAddress(s string) Address {
	addr, err := Decode(s)
	if err != nil {
		panic(err)
	}

	return addr
}

func (a Address) Bytes() []byte {
	return []byte(a)
}

func (a Address) IsZero() bool {
	return a == zeroAddress
}

func (a Address) IsEVM() bool {
	return len(a) == EVMAddressLength
}

func (a Address) Hex() string {
	return codec.HexEncodeToString([]byte(a))
}

// Encode returns the display form of the address, ss58 with the given
// prefix for public keys and checksummed hex for evm accounts.
func (a Address) Encode(format uint16) string {
	s, err := Encode(a.Bytes(), format)
	if err != nil {
		return a.Hex()
	}

	return s
}

func (a Address) String() string {
	return a.Encode(GenericFormat)
}

func (a Address) MarshalText() ([]byte, error) {
	if a.IsZero() {
		return []byte{}, nil
	}

	return []byte(a.String()), nil
}

func (a *Address) UnmarshalText(text []byte) error {
	if len(text) == 0 {
		*a = zeroAddress
		return nil
	}

	addr, err := Decode(string(text))
	if err != nil {
		return err
	}

	*a = addr
	return nil
}

// Encode encodes raw account bytes with the ss58 format.
func Encode(raw []byte, format uint16) (string, error) {
	switch len(raw) {
	case EVMAddressLength:
		return common.BytesToAddress(raw).Hex(), nil
	case PublicKeyLength:
	default:
		return "", invalidAddress(codec.HexEncodeToString(raw), "unsupported length %d", len(raw))
	}

	if format > maxFormat {
		return "", invalidAddress(codec.HexEncodeToString(raw), "ss58 format %d out of range", format)
	}

	var prefix []byte
	if format < 64 {
		prefix = []byte{byte(format)}
	} else {
		prefix = []byte{
			byte((format&0x00fc)>>2) | 0x40,
			byte(format>>8) | byte((format&0x0003)<<6),
		}
	}

	payload := make([]byte, 0, len(prefix)+len(raw)+checksumLength)
	payload = append(payload, prefix...)
	payload = append(payload, raw...)
	sum := ss58Checksum(payload)
	payload = append(payload, sum[:checksumLength]...)

	return base58.Encode(payload), nil
}

// Decode parses an ss58 string, a 0x prefixed 32 byte public key or a
// 0x prefixed evm account.
func Decode(s string) (Address, error) {
	addr, _, err := DecodeSS58(s)
	return addr, err
}

// DecodeSS58 is Decode that also reports the ss58 format of the input.
// Hex inputs report GenericFormat.
func DecodeSS58(s string) (Address, uint16, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return zeroAddress, 0, invalidAddress(s, "empty")
	}

	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		if common.IsHexAddress(s) {
			return Address(common.HexToAddress(s).Bytes()), GenericFormat, nil
		}

		b, err := codec.HexDecodeString(s)
		if err != nil {
			return zeroAddress, 0, invalidAddress(s, "bad hex: %v", err)
		}

		if len(b) != PublicKeyLength {
			return zeroAddress, 0, invalidAddress(s, "unsupported length %d", len(b))
		}

		return Address(b), GenericFormat, nil
	}

	data, err := base58.Decode(s)
	if err != nil {
		return zeroAddress, 0, invalidAddress(s, "bad base58: %v", err)
	}

	if len(data) < 2 {
		return zeroAddress, 0, invalidAddress(s, "too short")
	}

	var (
		format    uint16
		prefixLen int
	)

	switch b0 := data[0]; {
	case b0 < 64:
		format, prefixLen = uint16(b0), 1
	case b0 < 128:
		lower := (b0 << 2) | (data[1] >> 6)
		upper := data[1] & 0x3f
		format, prefixLen = uint16(lower)|uint16(upper)<<8, 2
	default:
		return zeroAddress, 0, invalidAddress(s, "unsupported ss58 prefix byte %d", b0)
	}

	if len(data) != prefixLen+PublicKeyLength+checksumLength {
		return zeroAddress, 0, invalidAddress(s, "unsupported length %d", len(data))
	}

	body := data[:len(data)-checksumLength]
	sum := ss58Checksum(body)
	if !bytes.Equal(sum[:checksumLength], data[len(data)-checksumLength:]) {
		return zeroAddress, 0, invalidAddress(s, "checksum mismatch")
	}

	return Address(body[prefixLen:]), format, nil
}

func ss58Checksum(payload []byte) [64]byte {
	b := make([]byte, 0, len(ss58Salt)+len(payload))
	b = append(b, ss58Salt...)
	b = append(b, payload...)
	return blake2b.Sum512(b)
}

// Equal reports whether a and b decode to the same account, whatever
// their display encoding. Undecodable inputs are never equal.
func Equal(a, b string) bool {
	x, err := Decode(a)
	if err != nil {
		return false
	}

	y, err := Decode(b)
	if err != nil {
		return false
	}

	return x == y
}

func IsAddress(s string) bool {
	_, err := Decode(s)
	return err == nil
}

// SortAddresses returns a sorted copy of addrs without duplicates.
func SortAddresses(addrs []Address) []Address {
	if len(addrs) == 0 {
		return emptyAddresses
	}

	sorted := make([]Address, len(addrs))
	copy(sorted, addrs)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i] < sorted[j]
	})

	out := sorted[:1]
	for _, addr := range sorted[1:] {
		if addr != out[len(out)-1] {
			out = append(out, addr)
		}
	}

	return out
}

func containsAddress(addrs []Address, addr Address) bool {
	for _, a := range addrs {
		if a == addr {
			return true
		}
	}

	return false
}

// DeriveMultisigAddress computes the address of the multisig account made of
// members and threshold, the same way the multisig pallet does.
func DeriveMultisigAddress(members []Address, threshold uint16) (Address, error) {
	sorted := SortAddresses(members)
	if len(sorted) == 0 {
		return zeroAddress, ErrEmptyMembers
	}

	if threshold == 0 || int(threshold) > len(sorted) {
		return zeroAddress, ErrInvalidThreshold
	}

	var buf bytes.Buffer
	buf.Write(multisigSalt)

	n, err := codec.Encode(types.NewUCompactFromUInt(uint64(len(sorted))))
	if err != nil {
		return zeroAddress, err
	}

	buf.Write(n)
	for _, m := range sorted {
		if len(m) != PublicKeyLength {
			return zeroAddress, invalidAddress(m.Hex(), "multisig member must be a %d byte public key", PublicKeyLength)
		}

		buf.WriteString(string(m))
	}

	buf.Write(binary.LittleEndian.AppendUint16(nil, threshold))

	sum := blake2b.Sum256(buf.Bytes())
	return Address(sum[:]), nil
}
