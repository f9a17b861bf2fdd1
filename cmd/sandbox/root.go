package main

import (
	"context"
	"fmt"
	"os"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/weisyn/sandbox/internal/app"
	"github.com/weisyn/sandbox/internal/core/sandbox"
	"github.com/weisyn/sandbox/pkg/types"
)

// GlobalFlags 全局标志
type GlobalFlags struct {
	ConfigFile string // 配置文件
	LedgerFile string // 账本快照文件
	Backend    string // 账本后端: file | badger
	BadgerPath string // badger 数据目录
	Engine     string // 执行引擎: wasm | scripted
	LogLevel   string // 日志级别
	JSON       bool   // JSON 输出
	Endpoint   string // 运行中 serve 进程的地址，给出时经 JSON-RPC 执行
}

var globalFlags GlobalFlags

// rootCmd 根命令
var rootCmd = &cobra.Command{
	Use:   "sandbox",
	Short: "本地智能合约沙箱",
	Long: `sandbox - 单机智能合约执行沙箱

在持久化的本地账本上部署合约、调用函数、读取条目：
- serve    启动 JSON-RPC / WebSocket 服务
- deploy   部署合约代码
- invoke   调用合约函数（只读函数与 --simulate 不提交）
- read     读取账本条目
- account  创建与设置账户
- spec     查看合约函数描述
- watch    订阅运行中沙箱的事件

serve 运行时请给其余命令加 --endpoint，避免两个进程同时写一个账本文件。`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		// 非终端输出或 --json 时关闭样式，便于脚本处理
		if globalFlags.JSON || !term.IsTerminal(int(os.Stdout.Fd())) {
			pterm.DisableStyling()
		}
	},
}

// Execute 执行根命令
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		pterm.Error.WithWriter(os.Stderr).Println(err.Error())
		os.Exit(exitCode(err))
	}
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&globalFlags.ConfigFile, "config", "", "配置文件路径 (也可用 SANDBOX_CONFIG_PATH)")
	pf.StringVar(&globalFlags.LedgerFile, "ledger-file", "", "账本快照文件 (默认: ledger.json)")
	pf.StringVar(&globalFlags.Backend, "backend", "", "账本存储后端: file|badger")
	pf.StringVar(&globalFlags.BadgerPath, "badger-path", "", "badger 数据目录")
	pf.StringVar(&globalFlags.Engine, "engine", "", "执行引擎: wasm|scripted")
	pf.StringVar(&globalFlags.LogLevel, "log-level", "", "日志级别: debug|info|warn|error")
	pf.BoolVar(&globalFlags.JSON, "json", false, "以 JSON 输出结果")
	pf.StringVar(&globalFlags.Endpoint, "endpoint", "", "经运行中的 serve 执行，如 127.0.0.1:8080")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(invokeCmd)
	rootCmd.AddCommand(deployCmd)
	rootCmd.AddCommand(readCmd)
	rootCmd.AddCommand(accountCmd)
	rootCmd.AddCommand(specCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(requestsCmd)
	rootCmd.AddCommand(versionCmd)
}

// appOptions 由全局标志生成应用选项；未给出的标志保留配置文件中的值
func appOptions(extra ...app.Option) []app.Option {
	opts := []app.Option{
		app.WithConfigFile(globalFlags.ConfigFile),
		app.WithOverride(func(c *types.AppConfig) {
			if globalFlags.LedgerFile != "" || globalFlags.Backend != "" || globalFlags.BadgerPath != "" {
				if c.Storage == nil {
					c.Storage = &types.UserStorageConfig{}
				}
				setString(&c.Storage.LedgerFile, globalFlags.LedgerFile)
				setString(&c.Storage.Backend, globalFlags.Backend)
				setString(&c.Storage.BadgerPath, globalFlags.BadgerPath)
			}
			if globalFlags.Engine != "" {
				if c.Sandbox == nil {
					c.Sandbox = &types.UserSandboxConfig{}
				}
				setString(&c.Sandbox.Engine, globalFlags.Engine)
			}
			if c.Log == nil {
				c.Log = &types.UserLogConfig{}
			}
			setString(&c.Log.Level, globalFlags.LogLevel)
		}),
	}
	return append(opts, extra...)
}

func setString(dst **string, v string) {
	if v != "" {
		*dst = &v
	}
}

// withService 在本地账本上启动不带 API 的沙箱，执行 fn 后关闭
func withService(cmd *cobra.Command, fn func(ctx context.Context, svc *sandbox.Service) error) error {
	quiet := app.WithOverride(func(c *types.AppConfig) {
		if c.Log.Level == nil {
			setString(&c.Log.Level, "warn")
		}
	})
	a, err := app.Start(appOptions(app.WithoutAPI(), quiet)...)
	if err != nil {
		return err
	}
	runErr := fn(cmd.Context(), a.Service())
	if err := a.Stop(); err != nil && runErr == nil {
		return fmt.Errorf("关闭沙箱失败: %w", err)
	}
	return runErr
}
