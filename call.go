package mimir

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/centrifuge/go-substrate-rpc-client/v4/types/codec"
	"github.com/spf13/cast"
	"golang.org/x/crypto/blake2b"
)

// Call is a decoded extrinsic call. Args holds the decoded arguments keyed
// by name; nested calls may be *Call, Call or their decoded json object.
type Call struct {
	Section string         `json:"section"`
	Method  string         `json:"method"`
	Args    map[string]any `json:"args,omitempty"`
	// Data is the hex encoded call, when known.
	Data string `json:"data,omitempty"`
}

func NewCall(section, method string, args map[string]any) *Call {
	return &Call{
		Section: section,
		Method:  method,
		Args:    args,
	}
}

func (c *Call) Name() string {
	return c.Section + "." + c.Method
}

func (c *Call) Is(section, method string) bool {
	return normalizeName(c.Section) == normalizeName(section) &&
		normalizeName(c.Method) == normalizeName(method)
}

// Arg looks an argument up ignoring case and underscores, so both
// forceProxyType and force_proxy_type match.
func (c *Call) Arg(name string) (any, bool) {
	if v, ok := c.Args[name]; ok {
		return v, true
	}

	want := normalizeName(name)
	for k, v := range c.Args {
		if normalizeName(k) == want {
			return v, true
		}
	}

	return nil, false
}

// Hash returns the blake2-256 call hash of Data.
func (c *Call) Hash() (string, error) {
	if c.Data == "" {
		return "", errors.New("call data unknown")
	}

	b, err := codec.HexDecodeString(c.Data)
	if err != nil {
		return "", fmt.Errorf("decode call data: %w", err)
	}

	return CallHash(b), nil
}

func CallHash(data []byte) string {
	sum := blake2b.Sum256(data)
	return codec.HexEncodeToString(sum[:])
}

func normalizeName(s string) string {
	return strings.ToLower(strings.ReplaceAll(s, "_", ""))
}

// CallKind enumerates the wrapper calls the resolver knows how to unwrap.
type CallKind uint8

const (
	CallTerminal CallKind = iota
	CallProxy
	CallProxyAnnounced
	CallAsMulti
	CallAsMultiThreshold1
)

var callKinds = map[string]CallKind{
	"proxy.proxy":                CallProxy,
	"proxy.proxyannounced":       CallProxyAnnounced,
	"multisig.asmulti":           CallAsMulti,
	"multisig.asmultithreshold1": CallAsMultiThreshold1,
}

func KindOf(c *Call) CallKind {
	if c == nil {
		return CallTerminal
	}

	return callKinds[normalizeName(c.Section)+"."+normalizeName(c.Method)]
}

func (k CallKind) String() string {
	switch k {
	case CallProxy:
		return "proxy"
	case CallProxyAnnounced:
		return "proxy_announced"
	case CallAsMulti:
		return "as_multi"
	case CallAsMultiThreshold1:
		return "as_multi_threshold_1"
	default:
		return "terminal"
	}
}

func (k CallKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

func (k *CallKind) UnmarshalText(b []byte) error {
	switch string(b) {
	case "terminal", "":
		*k = CallTerminal
	case "proxy":
		*k = CallProxy
	case "proxy_announced":
		*k = CallProxyAnnounced
	case "as_multi":
		*k = CallAsMulti
	case "as_multi_threshold_1":
		*k = CallAsMultiThreshold1
	default:
		return fmt.Errorf("unknown call kind %q", b)
	}

	return nil
}

func malformed(c *Call, arg string, err error) error {
	return &MalformedCallError{
		Section: c.Section,
		Method:  c.Method,
		Arg:     arg,
		Err:     err,
	}
}

func argCall(c *Call, name string) (*Call, error) {
	v, ok := c.Arg(name)
	if !ok || v == nil {
		return nil, malformed(c, name, errors.New("missing inner call"))
	}

	inner, err := asCall(v)
	if err != nil {
		return nil, malformed(c, name, err)
	}

	return inner, nil
}

func asCall(v any) (*Call, error) {
	switch x := v.(type) {
	case *Call:
		if x == nil {
			return nil, errors.New("nil call")
		}

		return x, nil
	case Call:
		return &x, nil
	case map[string]any, json.RawMessage:
		b, err := json.Marshal(x)
		if err != nil {
			return nil, err
		}

		var call Call
		if err := json.Unmarshal(b, &call); err != nil {
			return nil, err
		}

		if call.Section == "" || call.Method == "" {
			return nil, errors.New("inner call without section or method")
		}

		return &call, nil
	default:
		return nil, fmt.Errorf("unexpected inner call type %T", v)
	}
}

func argAddress(c *Call, name string) (Address, error) {
	v, ok := c.Arg(name)
	if !ok || v == nil {
		return zeroAddress, malformed(c, name, errors.New("missing address"))
	}

	addr, err := asAddress(v)
	if err != nil {
		return zeroAddress, malformed(c, name, err)
	}

	return addr, nil
}

// asAddress accepts Address values, display strings and MultiAddress
// objects in their {"id": "..."} json form.
func asAddress(v any) (Address, error) {
	switch x := v.(type) {
	case Address:
		if x.IsZero() {
			return zeroAddress, errors.New("empty address")
		}

		return x, nil
	case map[string]any:
		for k, inner := range x {
			if normalizeName(k) == "id" {
				return asAddress(inner)
			}
		}

		return zeroAddress, errors.New("unsupported multi address")
	default:
		s, err := cast.ToStringE(v)
		if err != nil {
			return zeroAddress, err
		}

		return Decode(s)
	}
}

func argAddresses(c *Call, name string) ([]Address, error) {
	v, ok := c.Arg(name)
	if !ok {
		return nil, malformed(c, name, errors.New("missing addresses"))
	}

	if addrs, ok := v.([]Address); ok {
		return addrs, nil
	}

	items, err := cast.ToSliceE(v)
	if err != nil {
		if ss, ok := v.([]string); ok {
			items = make([]any, 0, len(ss))
			for _, s := range ss {
				items = append(items, s)
			}
		} else {
			return nil, malformed(c, name, err)
		}
	}

	addrs := make([]Address, 0, len(items))
	for _, item := range items {
		addr, err := asAddress(item)
		if err != nil {
			return nil, malformed(c, name, err)
		}

		addrs = append(addrs, addr)
	}

	return addrs, nil
}

func argUint16(c *Call, name string) (uint16, error) {
	v, ok := c.Arg(name)
	if !ok || v == nil {
		return 0, malformed(c, name, errors.New("missing number"))
	}

	n, err := cast.ToUint16E(v)
	if err != nil {
		return 0, malformed(c, name, err)
	}

	return n, nil
}

func argString(c *Call, name string) string {
	v, ok := c.Arg(name)
	if !ok || v == nil {
		return ""
	}

	return cast.ToString(v)
}
