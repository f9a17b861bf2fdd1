package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/weisyn/sandbox/configs"
)

var configInitForce bool

// configCmd 配置文件相关命令
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "配置文件管理",
}

// configInitCmd 写出示例配置
var configInitCmd = &cobra.Command{
	Use:   "init [path]",
	Short: "写出带默认值的示例配置文件",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := "sandbox.json"
		if len(args) == 1 {
			path = args[0]
		}
		if _, err := os.Stat(path); err == nil && !configInitForce {
			return fmt.Errorf("%s 已存在，使用 --force 覆盖", path)
		} else if err != nil && !errors.Is(err, os.ErrNotExist) {
			return err
		}
		if err := os.WriteFile(path, configs.GetSandboxConfig(), 0o644); err != nil {
			return fmt.Errorf("写入配置文件失败: %w", err)
		}
		pterm.Success.Printf("配置文件已写入 %s，使用 --config %s 加载\n", path, path)
		return nil
	},
}

func init() {
	configInitCmd.Flags().BoolVar(&configInitForce, "force", false, "覆盖已有文件")
	configCmd.AddCommand(configInitCmd)
}
