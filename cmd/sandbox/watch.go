package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/weisyn/sandbox/client"
	"github.com/weisyn/sandbox/internal/core/sandbox"
)

var watchResume string

// watchCmd 订阅运行中沙箱的事件
var watchCmd = &cobra.Command{
	Use:       "watch [commits|invocations]",
	Short:     "订阅账本提交或调用完成事件",
	ValidArgs: []string{"commits", "invocations"},
	Args:      cobra.MatchAll(cobra.MaximumNArgs(1), cobra.OnlyValidArgs),
	Long: `连接 serve 的 WebSocket 端点并逐行输出事件，Ctrl+C 退出。

commits 订阅可用 --resume 指定上次收到的版本，先补发其后仍保留在历史中的提交。`,
	RunE: func(cmd *cobra.Command, args []string) error {
		subType := "commits"
		if len(args) == 1 {
			subType = args[0]
		}
		endpoint := globalFlags.Endpoint
		if endpoint == "" {
			endpoint = defaultEndpoint
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		w, err := client.Watch(ctx, client.WSURL(endpoint), subType, watchResume)
		if err != nil {
			return err
		}
		defer func() { _ = w.Close(context.Background()) }()
		if !globalFlags.JSON {
			pterm.Info.Printf("已订阅 %s @ %s\n", subType, client.WSURL(endpoint))
		}
		for {
			select {
			case <-ctx.Done():
				return nil
			case ev, ok := <-w.Events():
				if !ok {
					return w.Err()
				}
				if globalFlags.JSON {
					fmt.Println(string(ev.Result))
					continue
				}
				if ev.ResumeToken != "" {
					pterm.Printf("[%s] %s\n", ev.ResumeToken, string(ev.Result))
				} else {
					pterm.Println(string(ev.Result))
				}
			}
		}
	},
}

// requestsCmd 查看运行中沙箱的请求状态
var requestsCmd = &cobra.Command{
	Use:   "requests",
	Short: "查看进行中与最近完成的请求",
	RunE: func(cmd *cobra.Command, args []string) error {
		endpoint := globalFlags.Endpoint
		if endpoint == "" {
			endpoint = defaultEndpoint
		}
		active, recent, err := client.New(client.RPCURL(endpoint)).Requests(cmd.Context())
		if err != nil {
			return err
		}
		if globalFlags.JSON {
			return printJSON(map[string]any{"active": active, "recent": recent})
		}
		data := pterm.TableData{{"id", "kind", "target", "state", "outcome"}}
		for _, group := range [][]sandbox.RequestInfo{active, recent} {
			for _, r := range group {
				target := r.Contract
				if r.Function != "" {
					target += "." + r.Function
				}
				outcome := r.Outcome
				if r.Error != "" {
					outcome = r.Error
				}
				data = append(data, []string{r.ID, r.Kind, target, string(r.State), outcome})
			}
		}
		return pterm.DefaultTable.WithHasHeader().WithData(data).Render()
	},
}

func init() {
	watchCmd.Flags().StringVar(&watchResume, "resume", "", "从该账本版本之后继续 (仅 commits)")
}
