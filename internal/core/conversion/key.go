package conversion

import (
	"strings"

	"github.com/weisyn/sandbox/internal/core/infrastructure/crypto/address"
	"github.com/weisyn/sandbox/pkg/types"
)

// ParseKey 解析账本键的 JSON 形式
//
//	{"account": "<address>"}
//	{"code": "<sha256 hex>"}
//	{"instance": "<contract address>"}
//	{"data": {"contract": "<address>", "key": <tagged value | symbol string>, "durability": "persistent|temporary"}}
func ParseKey(repr any) (types.LedgerKey, error) {
	p := path{position: NoPosition, segments: []string{"key"}}
	obj, ok := repr.(map[string]any)
	if !ok || len(obj) != 1 {
		return types.LedgerKey{}, shapeError(p, "object with one of account/code/instance/data", repr)
	}
	for kind, body := range obj {
		kp := p.field(kind)
		switch kind {
		case "account":
			a, err := encode(body, types.Scalar(types.TypeAddress), kp)
			if err != nil {
				return types.LedgerKey{}, err
			}
			addr, _ := a.AsAddress()
			return types.AccountKey(addr), nil

		case "code":
			s, ok := body.(string)
			if !ok {
				return types.LedgerKey{}, shapeError(kp, "code hash hex", body)
			}
			h, err := types.ParseHash(s)
			if err != nil {
				return types.LedgerKey{}, shapeError(kp, "32-byte code hash hex", body)
			}
			return types.CodeKey(h), nil

		case "instance":
			addr, err := parseContract(body, kp)
			if err != nil {
				return types.LedgerKey{}, err
			}
			return types.InstanceKey(addr), nil

		case "data":
			fields, ok := body.(map[string]any)
			if !ok {
				return types.LedgerKey{}, shapeError(kp, "object {contract, key, durability}", body)
			}
			for name := range fields {
				if name != "contract" && name != "key" && name != "durability" {
					return types.LedgerKey{}, shapeError(kp.field(name), "no field", fields[name])
				}
			}
			addr, err := parseContract(fields["contract"], kp.field("contract"))
			if err != nil {
				return types.LedgerKey{}, err
			}
			var dataKey types.TypedValue
			switch k := fields["key"].(type) {
			case string:
				dataKey, err = encode(k, types.Scalar(types.TypeSymbol), kp.field("key"))
			default:
				dataKey, err = encodeTagged(k, kp.field("key"))
			}
			if err != nil {
				return types.LedgerKey{}, err
			}
			durability, err := parseDurability(fields["durability"], kp.field("durability"))
			if err != nil {
				return types.LedgerKey{}, err
			}
			return types.DataKey(addr, dataKey, durability), nil
		}
	}
	return types.LedgerKey{}, shapeError(p, "object with one of account/code/instance/data", repr)
}

// ParseKeyJSON 解析原始 JSON 形式的账本键
func ParseKeyJSON(raw []byte) (types.LedgerKey, error) {
	repr, err := ParseJSON(raw)
	if err != nil {
		return types.LedgerKey{}, err
	}
	return ParseKey(repr)
}

// KeyJSON 账本键的 JSON 形式，ParseKey 的逆
func KeyJSON(k types.LedgerKey) any {
	switch k.Kind {
	case types.EntryAccount:
		return map[string]any{"account": address.Encode(k.Account)}
	case types.EntryContractCode:
		return map[string]any{"code": k.CodeHash.Hex()}
	default:
		if sym, ok := k.DataKey.AsSymbol(); ok && sym == types.InstanceKeySymbol && k.Durability == types.DurabilityPersistent {
			return map[string]any{"instance": address.Encode(k.Contract)}
		}
		return map[string]any{"data": map[string]any{
			"contract":   address.Encode(k.Contract),
			"key":        DecodeTagged(k.DataKey),
			"durability": k.Durability.String(),
		}}
	}
}

// EntryJSON 账本条目的 JSON 形式
func EntryJSON(e *types.LedgerEntry) map[string]any {
	out := map[string]any{
		"key":           KeyJSON(e.Key),
		"value":         DecodeTagged(e.Value),
		"last_modified": e.LastModified,
	}
	if e.LiveUntil != 0 {
		out["live_until"] = e.LiveUntil
	}
	return out
}

func parseContract(v any, p path) (types.Address, error) {
	a, err := encode(v, types.Scalar(types.TypeAddress), p)
	if err != nil {
		return types.Address{}, err
	}
	addr, _ := a.AsAddress()
	if addr.Kind != types.AddressContract {
		return types.Address{}, &ConversionError{
			Kind:     KindInvalidAddress,
			Path:     p.String(),
			Position: p.position,
			Expected: "contract address",
			Actual:   "account address",
		}
	}
	return addr, nil
}

func parseDurability(v any, p path) (types.Durability, error) {
	if v == nil {
		return types.DurabilityPersistent, nil
	}
	s, ok := v.(string)
	if !ok {
		return 0, shapeError(p, `"persistent" or "temporary"`, v)
	}
	switch strings.ToLower(s) {
	case "persistent":
		return types.DurabilityPersistent, nil
	case "temporary":
		return types.DurabilityTemporary, nil
	default:
		return 0, shapeError(p, `"persistent" or "temporary"`, v)
	}
}
