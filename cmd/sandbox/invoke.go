package main

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/weisyn/sandbox/internal/api/jsonrpc/methods"
	"github.com/weisyn/sandbox/internal/core/conversion"
	"github.com/weisyn/sandbox/internal/core/infrastructure/crypto/address"
	"github.com/weisyn/sandbox/internal/core/sandbox"
	"github.com/weisyn/sandbox/pkg/types"
)

var (
	invokeContract     string
	invokeFunction     string
	invokeArgs         []string
	invokeArgsJSON     string
	invokeArgsEncoded  string
	invokeInvoker      string
	invokeRead         []string
	invokeWrite        []string
	invokeSimulate     bool
	invokeInstructions uint64
	invokeMemory       uint64
)

// invokeCmd 调用合约函数
var invokeCmd = &cobra.Command{
	Use:   "invoke",
	Short: "调用合约函数",
	Long: `按函数描述转换参数并调用合约。

参数可以逐个给出 (--arg，每个值按 JSON 解析，解析失败视为字符串)，
也可以整体给出 (--args-json 数组或对象，--args-encoded 规范编码的 base64)。

足迹键 (--read / --write) 为 JSON 键，或直接写账户地址表示该账户条目。

示例:
  sandbox invoke -c <token> --fn transfer --arg <from> --arg <to> --arg 30 --invoker <from> --write <to>
  sandbox invoke -c <token> --fn balance --arg <addr>`,
	RunE: func(cmd *cobra.Command, args []string) error {
		req, err := buildInvokeRequest()
		if err != nil {
			return err
		}
		if remote() {
			params, err := invokeParams(req)
			if err != nil {
				return err
			}
			res, err := remoteClient().Invoke(cmd.Context(), params)
			if err != nil {
				return err
			}
			return printInvocation(res)
		}
		return withService(cmd, func(ctx context.Context, svc *sandbox.Service) error {
			resp, err := svc.Invoke(ctx, req)
			if err != nil {
				return describeConversionError(err)
			}
			return printInvocation(methods.NewInvokeResult(resp))
		})
	},
}

func init() {
	f := invokeCmd.Flags()
	f.StringVarP(&invokeContract, "contract", "c", "", "合约地址")
	f.StringVar(&invokeFunction, "fn", "", "函数名")
	f.StringArrayVar(&invokeArgs, "arg", nil, "按位置的参数，可重复")
	f.StringVar(&invokeArgsJSON, "args-json", "", "参数 JSON (数组或对象)")
	f.StringVar(&invokeArgsEncoded, "args-encoded", "", "参数 Vec 规范编码的 base64")
	f.StringVar(&invokeInvoker, "invoker", "", "调用者账户地址")
	f.StringArrayVar(&invokeRead, "read", nil, "额外的只读足迹键，可重复")
	f.StringArrayVar(&invokeWrite, "write", nil, "声明的读写足迹键，可重复")
	f.BoolVar(&invokeSimulate, "simulate", false, "只执行不提交")
	f.Uint64Var(&invokeInstructions, "instructions", 0, "指令预算 (0 使用默认值)")
	f.Uint64Var(&invokeMemory, "memory", 0, "内存预算字节数 (0 使用默认值)")
	_ = invokeCmd.MarkFlagRequired("contract")
	_ = invokeCmd.MarkFlagRequired("fn")
	invokeCmd.MarkFlagsMutuallyExclusive("arg", "args-json", "args-encoded")
}

func buildInvokeRequest() (*sandbox.InvokeRequest, error) {
	contract, err := address.Parse(invokeContract)
	if err != nil {
		return nil, fmt.Errorf("合约地址无效: %w", err)
	}
	req := &sandbox.InvokeRequest{
		Contract: contract,
		Function: invokeFunction,
		Simulate: invokeSimulate,
		Budget:   types.Budget{InstructionLimit: invokeInstructions, MemoryLimitBytes: invokeMemory},
	}

	switch {
	case invokeArgsEncoded != "":
		if req.EncodedArgs, err = base64.StdEncoding.DecodeString(invokeArgsEncoded); err != nil {
			return nil, fmt.Errorf("--args-encoded 不是 base64: %w", err)
		}
	case invokeArgsJSON != "":
		if !json.Valid([]byte(invokeArgsJSON)) {
			return nil, fmt.Errorf("--args-json 不是合法 JSON")
		}
		req.Args = json.RawMessage(invokeArgsJSON)
	default:
		req.Args = positionalArgs(invokeArgs)
	}

	if invokeInvoker != "" {
		if req.Invoker, err = address.Parse(invokeInvoker); err != nil {
			return nil, fmt.Errorf("调用者地址无效: %w", err)
		}
	}
	if req.ReadOnly, err = parseKeyFlags(invokeRead); err != nil {
		return nil, err
	}
	if req.ReadWrite, err = parseKeyFlags(invokeWrite); err != nil {
		return nil, err
	}
	return req, nil
}

// positionalArgs 每个值先按 JSON 解析，失败时作为字符串
func positionalArgs(values []string) json.RawMessage {
	items := make([]json.RawMessage, 0, len(values))
	for _, v := range values {
		if json.Valid([]byte(v)) {
			items = append(items, json.RawMessage(v))
			continue
		}
		quoted, _ := json.Marshal(v)
		items = append(items, quoted)
	}
	raw, _ := json.Marshal(items)
	return raw
}

// parseKeyFlags 非 JSON 对象的值视为账户地址
func parseKeyFlags(values []string) ([]types.LedgerKey, error) {
	keys := make([]types.LedgerKey, 0, len(values))
	for _, v := range values {
		k, err := parseKeyFlag(v)
		if err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, nil
}

func parseKeyFlag(v string) (types.LedgerKey, error) {
	v = strings.TrimSpace(v)
	if !strings.HasPrefix(v, "{") {
		a, err := address.Parse(v)
		if err != nil {
			return types.LedgerKey{}, fmt.Errorf("账本键 %q 无效: %w", v, err)
		}
		return types.AccountKey(a), nil
	}
	k, err := conversion.ParseKeyJSON([]byte(v))
	if err != nil {
		return types.LedgerKey{}, fmt.Errorf("账本键 %q 无效: %w", v, err)
	}
	return k, nil
}

func printInvocation(res *methods.InvokeResult) error {
	var failed error
	if res.Status != string(types.StatusSuccess) {
		failed = &statusError{status: res.Status}
	}
	if globalFlags.JSON {
		if err := printJSON(res); err != nil {
			return err
		}
		return failed
	}

	if failed == nil {
		pterm.Success.Println(jsonString(res.Result))
	} else {
		pterm.Error.Printf("%s: %s\n", res.Status, res.TrapReason)
	}
	rows := [][]string{
		{"request", res.RequestID},
		{"engine", res.Engine},
		{"base version", fmt.Sprint(res.BaseVersion)},
	}
	switch {
	case res.Simulated:
		rows = append(rows, []string{"committed", "no (simulated)"})
	case res.CommittedVersion > 0:
		rows = append(rows, []string{"committed", fmt.Sprintf("version %d", res.CommittedVersion)})
	}
	if res.Retried {
		rows = append(rows, []string{"footprint retry", "yes"})
	}
	rows = append(rows, []string{"resources", fmt.Sprintf("instructions=%d memory=%d host_calls=%d",
		res.Resources.Instructions, res.Resources.MemoryHighWater, res.Resources.HostCalls)})
	for _, v := range res.Violations {
		mode := "read"
		if v.Write {
			mode = "write"
		}
		rows = append(rows, []string{"violation", mode + " " + jsonString(v.Key)})
	}
	if err := printKV(rows); err != nil {
		return err
	}

	if len(res.Changes) > 0 {
		pterm.DefaultSection.Println("ledger changes")
		for _, c := range res.Changes {
			pterm.Println(jsonString(c))
		}
	}
	if len(res.Diagnostics) > 0 {
		pterm.DefaultSection.Println("diagnostics")
		data := pterm.TableData{{"#", "type", "message"}}
		for _, d := range res.Diagnostics {
			msg := d.Message
			if d.Key != nil {
				msg = strings.TrimSpace(msg + " " + jsonString(d.Key))
			}
			if d.Data != nil {
				msg = strings.TrimSpace(msg + " " + jsonString(d.Data))
			}
			data = append(data, []string{fmt.Sprint(d.Seq), d.Type, msg})
		}
		if err := pterm.DefaultTable.WithHasHeader().WithData(data).Render(); err != nil {
			return err
		}
	}
	return failed
}
