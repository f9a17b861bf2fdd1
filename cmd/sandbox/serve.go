package main

import (
	"fmt"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/weisyn/sandbox/internal/app"
	"github.com/weisyn/sandbox/internal/app/version"
	"github.com/weisyn/sandbox/pkg/types"
)

var (
	serveHost     string
	servePort     int
	serveReadOnly bool
	serveNoWS     bool
)

// serveCmd 启动服务
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "启动沙箱 JSON-RPC 服务",
	Long: `在本地账本上启动沙箱服务。

端点:
  POST /rpc      JSON-RPC 2.0
  GET  /ws       WebSocket 订阅 (commits / invocations)
  GET  /metrics  Prometheus 指标
  GET  /health   健康检查

示例:
  sandbox serve --port 8080 --ledger-file ledger.json`,
	RunE: func(cmd *cobra.Command, args []string) error {
		override := app.WithOverride(func(c *types.AppConfig) {
			if c.API == nil {
				c.API = &types.UserAPIConfig{}
			}
			if cmd.Flags().Changed("host") {
				c.API.Host = &serveHost
			}
			if cmd.Flags().Changed("port") {
				c.API.Port = &servePort
			}
			if serveNoWS {
				disabled := false
				c.API.EnableWebSocket = &disabled
			}
			if serveReadOnly {
				if c.Sandbox == nil {
					c.Sandbox = &types.UserSandboxConfig{}
				}
				c.Sandbox.ReadOnly = &serveReadOnly
			}
		})
		a, err := app.Start(appOptions(override)...)
		if err != nil {
			return err
		}

		info := a.Service().LedgerInfo()
		mode := "读写"
		if info.ReadOnly {
			mode = "只读"
		}
		addr := a.APIAddr()
		pterm.DefaultBox.WithTitle("合约沙箱 " + version.Version).Println(fmt.Sprintf(
			"JSON-RPC : http://%s/rpc\nWebSocket: ws://%s/ws\n账本版本 : %d (%d 条目)\n模式     : %s",
			addr, addr, info.Version, info.Entries, mode))
		pterm.Info.Println("按 Ctrl+C 停止")

		app.WaitForSignal()
		pterm.Info.Println("正在停止，等待进行中的提交完成...")
		return a.Stop()
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveHost, "host", "127.0.0.1", "监听地址")
	serveCmd.Flags().IntVar(&servePort, "port", 8080, "监听端口")
	serveCmd.Flags().BoolVar(&serveReadOnly, "read-only", false, "只读模式，拒绝所有提交")
	serveCmd.Flags().BoolVar(&serveNoWS, "no-websocket", false, "关闭 WebSocket 订阅")
}

// versionCmd 版本信息
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "显示版本信息",
	RunE: func(cmd *cobra.Command, args []string) error {
		if globalFlags.JSON {
			return printJSON(version.GetBuildInfo())
		}
		pterm.Println(version.GetFullVersion())
		return nil
	},
}
