package main

import (
	"context"
	"fmt"
	"os"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/weisyn/sandbox/client"
	"github.com/weisyn/sandbox/internal/core/engines/scripted"
	"github.com/weisyn/sandbox/internal/core/infrastructure/crypto/address"
	"github.com/weisyn/sandbox/internal/core/sandbox"
	"github.com/weisyn/sandbox/pkg/types"
)

var (
	deployWasm    string
	deployBuiltin string
	deploySalt    string
)

// deployCmd 部署合约
var deployCmd = &cobra.Command{
	Use:   "deploy",
	Short: "部署合约",
	Long: `安装合约代码并创建实例，地址由代码哈希与盐值派生。

示例:
  sandbox deploy --wasm token.wasm
  sandbox deploy --builtin token --salt second`,
	RunE: func(cmd *cobra.Command, args []string) error {
		code, err := loadCode(deployWasm, deployBuiltin)
		if err != nil {
			return err
		}
		if remote() {
			res, err := remoteClient().Deploy(cmd.Context(), code, []byte(deploySalt))
			if err != nil {
				return err
			}
			return printDeploy(res)
		}
		return withService(cmd, func(ctx context.Context, svc *sandbox.Service) error {
			res, err := svc.Deploy(ctx, code, []byte(deploySalt))
			if err != nil {
				return err
			}
			return printDeploy(&client.DeployResult{
				Address:  address.Encode(res.Address),
				CodeHash: res.CodeHash.Hex(),
				Version:  res.Version,
				Spec:     res.Spec,
			})
		})
	},
}

func printDeploy(res *client.DeployResult) error {
	if globalFlags.JSON {
		return printJSON(res)
	}
	pterm.Success.Printf("合约已部署: %s\n", res.Address)
	if err := printKV([][]string{
		{"code hash", res.CodeHash},
		{"version", fmt.Sprint(res.Version)},
	}); err != nil {
		return err
	}
	return printSpec(res.Spec)
}

func init() {
	deployCmd.Flags().StringVar(&deployWasm, "wasm", "", "WASM 合约文件")
	deployCmd.Flags().StringVar(&deployBuiltin, "builtin", "", "内置脚本合约: token|counter|kv")
	deployCmd.Flags().StringVar(&deploySalt, "salt", "", "地址派生盐值")
	deployCmd.MarkFlagsOneRequired("wasm", "builtin")
	deployCmd.MarkFlagsMutuallyExclusive("wasm", "builtin")
}

func loadCode(wasmFile, builtin string) ([]byte, error) {
	if builtin != "" {
		return scripted.Code(builtin), nil
	}
	code, err := os.ReadFile(wasmFile)
	if err != nil {
		return nil, fmt.Errorf("读取合约文件失败: %w", err)
	}
	return code, nil
}

func printSpec(spec *types.ContractSpec) error {
	if spec == nil {
		return nil
	}
	data := pterm.TableData{{"function", "params", "returns", "mode"}}
	for _, fn := range spec.Functions {
		params := ""
		for i, p := range fn.Params {
			if i > 0 {
				params += ", "
			}
			params += p.Name + ": " + p.Type.String()
		}
		mode := "write"
		if fn.ReadOnly {
			mode = "read-only"
		}
		data = append(data, []string{fn.Name, params, fn.Returns.String(), mode})
	}
	return pterm.DefaultTable.WithHasHeader().WithData(data).Render()
}
