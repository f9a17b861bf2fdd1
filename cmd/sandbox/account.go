package main

import (
	"context"
	"fmt"
	"math/big"
	"os"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/weisyn/sandbox/internal/core/infrastructure/crypto/address"
	"github.com/weisyn/sandbox/internal/core/sandbox"
)

var accountNewBalance string

// accountCmd 账户相关命令
var accountCmd = &cobra.Command{
	Use:   "account",
	Short: "账户管理",
}

// accountNewCmd 生成账户
var accountNewCmd = &cobra.Command{
	Use:   "new",
	Short: "生成 secp256k1 账户",
	Long: `生成新的账户密钥对并输出地址。

给出 --balance 时同时在账本中创建该账户。私钥只在终端输出或 --json 时打印。`,
	RunE: func(cmd *cobra.Command, args []string) error {
		acct, err := address.GenerateAccount()
		if err != nil {
			return err
		}
		addr := address.Encode(acct.Address)
		out := map[string]any{"address": addr, "public_key": acct.PublicKeyHex()}
		if globalFlags.JSON || term.IsTerminal(int(os.Stdout.Fd())) {
			out["private_key"] = acct.PrivateKeyHex()
		}

		if accountNewBalance != "" {
			balance, err := parseBalance(accountNewBalance)
			if err != nil {
				return err
			}
			version, err := setBalance(cmd, addr, balance)
			if err != nil {
				return err
			}
			out["balance"] = balance.String()
			out["version"] = version
		}

		if globalFlags.JSON {
			return printJSON(out)
		}
		pterm.Success.Printf("账户地址: %s\n", addr)
		rows := [][]string{{"public key", acct.PublicKeyHex()}}
		if pk, ok := out["private_key"].(string); ok {
			rows = append(rows, []string{"private key", pk})
		}
		if b, ok := out["balance"].(string); ok {
			rows = append(rows, []string{"balance", b}, []string{"version", fmt.Sprint(out["version"])})
		}
		return printKV(rows)
	},
}

// accountSetCmd 设置余额
var accountSetCmd = &cobra.Command{
	Use:   "set <address> <balance>",
	Short: "设置账户余额",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := address.Parse(args[0])
		if err != nil {
			return fmt.Errorf("账户地址无效: %w", err)
		}
		balance, err := parseBalance(args[1])
		if err != nil {
			return err
		}
		addr := address.Encode(a)
		version, err := setBalance(cmd, addr, balance)
		if err != nil {
			return err
		}
		if globalFlags.JSON {
			return printJSON(map[string]any{"address": addr, "balance": balance.String(), "version": version})
		}
		pterm.Success.Printf("%s 余额已设置为 %s (version %d)\n", addr, balance, version)
		return nil
	},
}

func init() {
	accountNewCmd.Flags().StringVar(&accountNewBalance, "balance", "", "同时以该余额创建账户")
	accountCmd.AddCommand(accountNewCmd)
	accountCmd.AddCommand(accountSetCmd)
}

// setBalance 写入账户余额，返回提交后的账本版本
func setBalance(cmd *cobra.Command, addr string, balance *big.Int) (uint64, error) {
	if remote() {
		return remoteClient().SetAccount(cmd.Context(), addr, balance.String())
	}
	a, err := address.Parse(addr)
	if err != nil {
		return 0, err
	}
	var version uint64
	err = withService(cmd, func(ctx context.Context, svc *sandbox.Service) error {
		version, err = svc.SetAccount(ctx, a, balance)
		return err
	})
	return version, err
}

func parseBalance(s string) (*big.Int, error) {
	b, ok := new(big.Int).SetString(s, 10)
	if !ok || b.Sign() < 0 {
		return nil, fmt.Errorf("余额必须是非负整数: %q", s)
	}
	return b, nil
}
