package scripted

import (
	"math/big"

	"github.com/weisyn/sandbox/internal/core/engines/host"
	"github.com/weisyn/sandbox/pkg/types"
)

// Builtins 内置脚本合约
//
//   - token: 基于账户余额的转账
//   - counter: 持久计数器
//   - kv: 符号键到字符串的存取
func Builtins() map[string]*Script {
	return map[string]*Script{
		"token":   tokenScript(),
		"counter": counterScript(),
		"kv":      kvScript(),
	}
}

func param(name string, kind types.TypeKind) types.FunctionParam {
	return types.FunctionParam{Name: name, Type: types.Scalar(kind)}
}

func tokenScript() *Script {
	return &Script{
		Spec: types.ContractSpec{Functions: []types.FunctionSpec{
			{
				Name:     "balance",
				Params:   []types.FunctionParam{param("id", types.TypeAddress)},
				Returns:  types.Scalar(types.TypeI128),
				ReadOnly: true,
				Doc:      "Balance of an account, 0 when the account does not exist",
			},
			{
				Name: "transfer",
				Params: []types.FunctionParam{
					param("from", types.TypeAddress),
					param("to", types.TypeAddress),
					param("amount", types.TypeU32),
				},
				Returns: types.Scalar(types.TypeVoid),
				Doc:     "Move amount from the invoker's account to another account",
			},
		}},
		Funcs: map[string]Func{
			"balance":  tokenBalance,
			"transfer": tokenTransfer,
		},
	}
}

func readBalance(env host.Env, a types.Address) (*big.Int, uint64, bool, error) {
	v, ok, err := env.Get(types.AccountKey(a))
	if err != nil || !ok {
		return big.NewInt(0), 0, false, err
	}
	bal, seq, ok := types.AccountBalance(v)
	if !ok {
		return nil, 0, false, env.Fail("malformed account entry")
	}
	return bal, seq, true, nil
}

func tokenBalance(env host.Env, args []types.TypedValue) (types.TypedValue, error) {
	a, _ := args[0].AsAddress()
	bal, _, _, err := readBalance(env, a)
	if err != nil {
		return types.TypedValue{}, err
	}
	v, ok := types.I128FromBig(bal)
	if !ok {
		return types.TypedValue{}, env.Fail("balance overflow")
	}
	return v, nil
}

func tokenTransfer(env host.Env, args []types.TypedValue) (types.TypedValue, error) {
	from, _ := args[0].AsAddress()
	to, _ := args[1].AsAddress()
	amount, _ := args[2].AsU32()

	if from != env.Invoker() {
		return types.TypedValue{}, env.Fail("transfer source must be the invoker")
	}
	fromBal, fromSeq, exists, err := readBalance(env, from)
	if err != nil {
		return types.TypedValue{}, err
	}
	if !exists {
		return types.TypedValue{}, env.Fail("source account does not exist")
	}
	toBal, toSeq, _, err := readBalance(env, to)
	if err != nil {
		return types.TypedValue{}, err
	}

	amt := new(big.Int).SetUint64(uint64(amount))
	if fromBal.Cmp(amt) < 0 {
		return types.TypedValue{}, env.Fail("insufficient balance")
	}
	if from == to {
		return types.Void(), nil
	}

	newFrom, err := types.AccountValue(new(big.Int).Sub(fromBal, amt), fromSeq+1)
	if err != nil {
		return types.TypedValue{}, env.Fail(err.Error())
	}
	newTo, err := types.AccountValue(new(big.Int).Add(toBal, amt), toSeq)
	if err != nil {
		return types.TypedValue{}, env.Fail(err.Error())
	}
	if err := env.Put(types.AccountKey(from), newFrom); err != nil {
		return types.TypedValue{}, err
	}
	if err := env.Put(types.AccountKey(to), newTo); err != nil {
		return types.TypedValue{}, err
	}
	return types.Void(), env.Emit("transfer", types.Vec(args[0], args[1], args[2]))
}

var countKey = types.MustSymbol("count")

func counterScript() *Script {
	return &Script{
		Spec: types.ContractSpec{Functions: []types.FunctionSpec{
			{Name: "increment", Returns: types.Scalar(types.TypeU64)},
			{Name: "get", Returns: types.Scalar(types.TypeU64), ReadOnly: true},
		}},
		Funcs: map[string]Func{
			"increment": func(env host.Env, _ []types.TypedValue) (types.TypedValue, error) {
				n, err := readCount(env)
				if err != nil {
					return types.TypedValue{}, err
				}
				next := types.U64(n + 1)
				if err := env.Put(types.DataKey(env.Contract(), countKey, types.DurabilityPersistent), next); err != nil {
					return types.TypedValue{}, err
				}
				return next, nil
			},
			"get": func(env host.Env, _ []types.TypedValue) (types.TypedValue, error) {
				n, err := readCount(env)
				return types.U64(n), err
			},
		},
	}
}

func readCount(env host.Env) (uint64, error) {
	v, ok, err := env.Get(types.DataKey(env.Contract(), countKey, types.DurabilityPersistent))
	if err != nil || !ok {
		return 0, err
	}
	n, _ := v.AsU64()
	return n, nil
}

func kvScript() *Script {
	key := param("key", types.TypeSymbol)
	return &Script{
		Spec: types.ContractSpec{Functions: []types.FunctionSpec{
			{Name: "put", Params: []types.FunctionParam{key, param("value", types.TypeString)}, Returns: types.Scalar(types.TypeVoid)},
			{Name: "get", Params: []types.FunctionParam{key}, Returns: types.OptionOf(types.Scalar(types.TypeString)), ReadOnly: true},
			{Name: "del", Params: []types.FunctionParam{key}, Returns: types.Scalar(types.TypeVoid)},
		}},
		Funcs: map[string]Func{
			"put": func(env host.Env, args []types.TypedValue) (types.TypedValue, error) {
				return types.Void(), env.Put(types.DataKey(env.Contract(), args[0], types.DurabilityPersistent), args[1])
			},
			"get": func(env host.Env, args []types.TypedValue) (types.TypedValue, error) {
				v, ok, err := env.Get(types.DataKey(env.Contract(), args[0], types.DurabilityPersistent))
				if err != nil || !ok {
					return types.Void(), err
				}
				return v, nil
			},
			"del": func(env host.Env, args []types.TypedValue) (types.TypedValue, error) {
				return types.Void(), env.Delete(types.DataKey(env.Contract(), args[0], types.DurabilityPersistent))
			},
		},
	}
}
