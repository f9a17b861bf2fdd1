package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/weisyn/sandbox/client"
	"github.com/weisyn/sandbox/internal/core/conversion"
	"github.com/weisyn/sandbox/internal/core/infrastructure/crypto/address"
	"github.com/weisyn/sandbox/internal/core/sandbox"
	"github.com/weisyn/sandbox/pkg/types"
)

var readKey string

// readCmd 读取账本条目
var readCmd = &cobra.Command{
	Use:   "read",
	Short: "读取账本条目",
	Long: `按键读取账本条目。键为 JSON，或直接写账户地址。

示例:
  sandbox read --key <account-address>
  sandbox read --key '{"data":{"contract":"<addr>","key":"count","durability":"persistent"}}'`,
	RunE: func(cmd *cobra.Command, args []string) error {
		key, err := parseKeyFlag(readKey)
		if err != nil {
			return err
		}
		if remote() {
			raw, err := json.Marshal(conversion.KeyJSON(key))
			if err != nil {
				return err
			}
			res, err := remoteClient().ReadEntry(cmd.Context(), raw)
			if err != nil {
				return err
			}
			return printEntry(res)
		}
		return withService(cmd, func(ctx context.Context, svc *sandbox.Service) error {
			e, version, ok := svc.ReadEntry(ctx, key)
			res := &client.ReadEntryResult{Version: version, Found: ok, Key: conversion.KeyJSON(key)}
			if ok {
				res.Entry = conversion.EntryJSON(e)
			}
			return printEntry(res)
		})
	},
}

func printEntry(res *client.ReadEntryResult) error {
	if globalFlags.JSON {
		return printJSON(res)
	}
	if !res.Found {
		pterm.Warning.Printf("条目不存在 (ledger version %d)\n", res.Version)
		return nil
	}
	rows := [][]string{
		{"key", jsonString(res.Entry["key"])},
		{"value", jsonString(res.Entry["value"])},
		{"last modified", jsonString(res.Entry["last_modified"])},
	}
	if lu, ok := res.Entry["live_until"]; ok {
		rows = append(rows, []string{"live until", jsonString(lu)})
	}
	rows = append(rows, []string{"ledger version", fmt.Sprint(res.Version)})
	return printKV(rows)
}

// specCmd 查看合约描述
var specCmd = &cobra.Command{
	Use:   "spec",
	Short: "查看合约函数描述",
	Long: `从合约代码文件、内置合约名或已部署的合约地址读取函数描述。

示例:
  sandbox spec --wasm token.wasm
  sandbox spec --contract <addr>`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if remote() {
			if specContract == "" {
				return errRemoteSpecSource
			}
			spec, err := remoteClient().ContractSpec(cmd.Context(), specContract)
			if err != nil {
				return err
			}
			if globalFlags.JSON {
				return printJSON(spec)
			}
			return printSpec(spec)
		}
		return withService(cmd, func(ctx context.Context, svc *sandbox.Service) error {
			spec, err := resolveSpec(ctx, svc)
			if err != nil {
				return err
			}
			if globalFlags.JSON {
				return printJSON(spec)
			}
			return printSpec(spec)
		})
	},
}

func resolveSpec(ctx context.Context, svc *sandbox.Service) (*types.ContractSpec, error) {
	if specContract != "" {
		a, err := address.Parse(specContract)
		if err != nil {
			return nil, fmt.Errorf("合约地址无效: %w", err)
		}
		return svc.ContractSpec(ctx, a)
	}
	code, err := loadCode(specWasm, specBuiltin)
	if err != nil {
		return nil, err
	}
	return svc.InspectCode(ctx, code)
}

var (
	specWasm     string
	specBuiltin  string
	specContract string
)

func init() {
	readCmd.Flags().StringVar(&readKey, "key", "", "账本键")
	_ = readCmd.MarkFlagRequired("key")

	specCmd.Flags().StringVar(&specWasm, "wasm", "", "WASM 合约文件")
	specCmd.Flags().StringVar(&specBuiltin, "builtin", "", "内置脚本合约名")
	specCmd.Flags().StringVarP(&specContract, "contract", "c", "", "已部署的合约地址")
	specCmd.MarkFlagsOneRequired("wasm", "builtin", "contract")
	specCmd.MarkFlagsMutuallyExclusive("wasm", "builtin", "contract")
}
