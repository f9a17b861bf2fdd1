// Command sandbox 本地智能合约沙箱
//
// serve 启动 JSON-RPC 服务；其余子命令直接在本地账本文件上执行。
package main

func main() {
	Execute()
}
