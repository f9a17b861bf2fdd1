package main

import (
	"encoding/json"
	"errors"

	"github.com/weisyn/sandbox/client"
	"github.com/weisyn/sandbox/internal/api/jsonrpc/methods"
	"github.com/weisyn/sandbox/internal/core/conversion"
	"github.com/weisyn/sandbox/internal/core/sandbox"
	"github.com/weisyn/sandbox/pkg/types"
)

// defaultEndpoint watch 未给出 --endpoint 时连接的地址
const defaultEndpoint = "127.0.0.1:8080"

var errRemoteSpecSource = errors.New("--endpoint 模式下 spec 只支持 --contract")

// remote 是否经由运行中的 serve 进程执行
func remote() bool {
	return globalFlags.Endpoint != ""
}

func remoteClient() *client.Client {
	return client.New(client.RPCURL(globalFlags.Endpoint))
}

// invokeParams 把本地请求转成 invoke 方法参数
func invokeParams(req *sandbox.InvokeRequest) (*methods.InvokeParams, error) {
	p := &methods.InvokeParams{
		Contract:    invokeContract,
		Function:    req.Function,
		Args:        req.Args,
		ArgsEncoded: invokeArgsEncoded,
		Invoker:     invokeInvoker,
		Simulate:    req.Simulate,
	}
	if req.Budget != (types.Budget{}) {
		budget := req.Budget
		p.Budget = &budget
	}
	var err error
	if p.ReadOnly, err = keysJSON(req.ReadOnly); err != nil {
		return nil, err
	}
	if p.ReadWrite, err = keysJSON(req.ReadWrite); err != nil {
		return nil, err
	}
	return p, nil
}

func keysJSON(keys []types.LedgerKey) ([]json.RawMessage, error) {
	out := make([]json.RawMessage, 0, len(keys))
	for _, k := range keys {
		raw, err := json.Marshal(conversion.KeyJSON(k))
		if err != nil {
			return nil, err
		}
		out = append(out, raw)
	}
	return out, nil
}
