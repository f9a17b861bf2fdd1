// Package methods 沙箱 JSON-RPC 方法
package methods

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math/big"
	"strings"

	"github.com/weisyn/sandbox/internal/core/conversion"
	"github.com/weisyn/sandbox/internal/core/infrastructure/crypto/address"
	"github.com/weisyn/sandbox/internal/core/sandbox"
	"github.com/weisyn/sandbox/pkg/interfaces/infrastructure/log"
	"github.com/weisyn/sandbox/pkg/types"
)

// SandboxMethods 沙箱方法集合
type SandboxMethods struct {
	svc    *sandbox.Service
	logger log.Logger
}

// NewSandboxMethods 创建沙箱方法处理器
func NewSandboxMethods(svc *sandbox.Service, logger log.Logger) *SandboxMethods {
	return &SandboxMethods{svc: svc, logger: logger}
}

// Handlers 方法名到处理器的映射
func (m *SandboxMethods) Handlers() map[string]func(ctx context.Context, params json.RawMessage) (interface{}, error) {
	return map[string]func(ctx context.Context, params json.RawMessage) (interface{}, error){
		"invoke":          m.Invoke,
		"call":            m.Call,
		"readEntry":       m.ReadEntry,
		"deploy":          m.Deploy,
		"setAccount":      m.SetAccount,
		"getContractSpec": m.GetContractSpec,
		"getLedgerInfo":   m.GetLedgerInfo,
		"getRequests":     m.GetRequests,
	}
}

// InvokeParams invoke 方法参数
type InvokeParams struct {
	Contract string          `json:"contract"`
	Function string          `json:"function"`
	Args     json.RawMessage `json:"args,omitempty"`
	// ArgsEncoded 参数 Vec 规范编码的 base64
	ArgsEncoded string            `json:"args_encoded,omitempty"`
	Invoker     string            `json:"invoker,omitempty"`
	ReadOnly    []json.RawMessage `json:"read_only,omitempty"`
	ReadWrite   []json.RawMessage `json:"read_write,omitempty"`
	Budget      *types.Budget     `json:"budget,omitempty"`
	Simulate    bool              `json:"simulate,omitempty"`
}

// InvokeResult invoke 方法结果；分类的执行结果通过 status 表达
type InvokeResult struct {
	RequestID        string              `json:"request_id"`
	Status           string              `json:"status"`
	Result           interface{}         `json:"result,omitempty"`
	ResultEncoded    string              `json:"result_encoded,omitempty"`
	TrapReason       string              `json:"trap_reason,omitempty"`
	Engine           string              `json:"engine,omitempty"`
	Simulated        bool                `json:"simulated"`
	Retried          bool                `json:"retried"`
	BaseVersion      uint64              `json:"base_version"`
	CommittedVersion uint64              `json:"committed_version,omitempty"`
	Resources        types.ResourceUsage `json:"resources"`
	Footprint        FootprintView       `json:"footprint"`
	Violations       []ViolationView     `json:"violations,omitempty"`
	Changes          []map[string]any    `json:"changes,omitempty"`
	Diagnostics      []DiagnosticView    `json:"diagnostics,omitempty"`
}

// FootprintView 足迹
type FootprintView struct {
	ReadOnly  []any `json:"read_only"`
	ReadWrite []any `json:"read_write"`
}

// ViolationView 越界访问
type ViolationView struct {
	Key   any  `json:"key"`
	Write bool `json:"write"`
}

// DiagnosticView 诊断事件
type DiagnosticView struct {
	Seq      int    `json:"seq"`
	Type     string `json:"type"`
	Contract string `json:"contract,omitempty"`
	Message  string `json:"message,omitempty"`
	Key      any    `json:"key,omitempty"`
	Data     any    `json:"data,omitempty"`
}

// Invoke 调用合约函数
// Method: invoke
func (m *SandboxMethods) Invoke(ctx context.Context, params json.RawMessage) (interface{}, error) {
	var p InvokeParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	req, err := p.toRequest()
	if err != nil {
		return nil, err
	}
	resp, err := m.svc.Invoke(ctx, req)
	if err != nil {
		return nil, ToRPCError(err)
	}
	return NewInvokeResult(resp), nil
}

func (p *InvokeParams) toRequest() (*sandbox.InvokeRequest, error) {
	contract, err := parseAddress("contract", p.Contract)
	if err != nil {
		return nil, err
	}
	if p.Function == "" {
		return nil, NewInvalidParamsError("missing function", nil)
	}
	req := &sandbox.InvokeRequest{Contract: contract, Function: p.Function, Args: p.Args, Simulate: p.Simulate}
	if p.ArgsEncoded != "" {
		if req.EncodedArgs, err = base64.StdEncoding.DecodeString(p.ArgsEncoded); err != nil {
			return nil, NewInvalidParamsError(fmt.Sprintf("args_encoded is not base64: %v", err), nil)
		}
	}
	if p.Invoker != "" {
		if req.Invoker, err = parseAddress("invoker", p.Invoker); err != nil {
			return nil, err
		}
	}
	if p.Budget != nil {
		req.Budget = *p.Budget
	}
	if req.ReadOnly, err = parseKeys(p.ReadOnly); err != nil {
		return nil, err
	}
	if req.ReadWrite, err = parseKeys(p.ReadWrite); err != nil {
		return nil, err
	}
	return req, nil
}

// NewInvokeResult 调用结果的线上表示
func NewInvokeResult(resp *sandbox.InvokeResponse) *InvokeResult {
	r := resp.Result
	out := &InvokeResult{
		RequestID:        resp.RequestID,
		Status:           string(r.Status),
		Result:           resp.Value,
		TrapReason:       r.TrapReason,
		Engine:           resp.Engine,
		Simulated:        resp.Simulated,
		Retried:          r.Retried,
		BaseVersion:      r.BaseVersion,
		CommittedVersion: r.CommittedVersion,
		Resources:        r.Resources,
		Footprint:        footprintView(r.Footprint),
	}
	if r.Succeeded() {
		out.ResultEncoded = base64.StdEncoding.EncodeToString(types.EncodeValue(r.Value))
	}
	for _, v := range r.Violations {
		out.Violations = append(out.Violations, ViolationView{Key: conversion.KeyJSON(v.Key), Write: v.Write})
	}
	for _, d := range r.Deltas {
		if d.IsTombstone() {
			out.Changes = append(out.Changes, map[string]any{"key": conversion.KeyJSON(d.Key), "deleted": true})
			continue
		}
		out.Changes = append(out.Changes, conversion.EntryJSON(d.Entry))
	}
	for _, d := range r.Diagnostics {
		out.Diagnostics = append(out.Diagnostics, diagnosticView(d))
	}
	return out
}

func footprintView(fp types.Footprint) FootprintView {
	v := FootprintView{ReadOnly: []any{}, ReadWrite: []any{}}
	for _, k := range fp.ReadOnly() {
		v.ReadOnly = append(v.ReadOnly, conversion.KeyJSON(k))
	}
	for _, k := range fp.ReadWrite() {
		v.ReadWrite = append(v.ReadWrite, conversion.KeyJSON(k))
	}
	return v
}

func diagnosticView(d types.DiagnosticEvent) DiagnosticView {
	v := DiagnosticView{Seq: d.Seq, Type: string(d.Type), Message: d.Message}
	if !d.Contract.IsZero() {
		v.Contract = address.Encode(d.Contract)
	}
	if d.Key != nil {
		v.Key = conversion.KeyJSON(*d.Key)
	}
	if d.Data != nil {
		v.Data = conversion.DecodeTagged(*d.Data)
	}
	return v
}

// CallParams call 方法参数
type CallParams struct {
	ID      string          `json:"id"`
	Func    string          `json:"func"`
	Args    json.RawMessage `json:"args,omitempty"`
	ArgsXDR string          `json:"args_xdr,omitempty"`
	Invoker string          `json:"invoker,omitempty"`
}

// CallResult call 方法结果
type CallResult struct {
	JSON   interface{} `json:"json"`
	XDR    string      `json:"xdr"`
	Status string      `json:"status"`
	Error  string      `json:"error,omitempty"`
}

// Call 以精简形式调用合约，结果同时给出 JSON 与规范编码
// Method: call
// Params: {id: 合约地址, func, args | args_xdr, invoker?}
func (m *SandboxMethods) Call(ctx context.Context, params json.RawMessage) (interface{}, error) {
	var p CallParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	inv := InvokeParams{Contract: p.ID, Function: p.Func, Args: p.Args, ArgsEncoded: p.ArgsXDR, Invoker: p.Invoker}
	req, err := inv.toRequest()
	if err != nil {
		return nil, err
	}
	resp, err := m.svc.Invoke(ctx, req)
	if err != nil {
		return nil, ToRPCError(err)
	}
	res := NewInvokeResult(resp)
	return &CallResult{JSON: res.Result, XDR: res.ResultEncoded, Status: res.Status, Error: res.TrapReason}, nil
}

// ReadEntryParams readEntry 方法参数
type ReadEntryParams struct {
	Key json.RawMessage `json:"key"`
}

// ReadEntry 读取账本条目
// Method: readEntry
func (m *SandboxMethods) ReadEntry(ctx context.Context, params json.RawMessage) (interface{}, error) {
	var p ReadEntryParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	if len(p.Key) == 0 {
		return nil, NewInvalidParamsError("missing key", nil)
	}
	key, err := conversion.ParseKeyJSON(p.Key)
	if err != nil {
		return nil, NewInvalidKeyError(err)
	}
	e, version, ok := m.svc.ReadEntry(ctx, key)
	out := map[string]any{"version": version, "found": ok, "key": conversion.KeyJSON(key)}
	if ok {
		out["entry"] = conversion.EntryJSON(e)
	}
	return out, nil
}

// DeployParams deploy 方法参数
type DeployParams struct {
	// Code 合约代码的 base64
	Code string `json:"code"`
	Salt string `json:"salt,omitempty"`
}

// Deploy 部署合约
// Method: deploy
func (m *SandboxMethods) Deploy(ctx context.Context, params json.RawMessage) (interface{}, error) {
	var p DeployParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	code, err := base64.StdEncoding.DecodeString(p.Code)
	if err != nil || len(code) == 0 {
		return nil, NewInvalidParamsError("code must be non-empty base64", nil)
	}
	res, err := m.svc.Deploy(ctx, code, []byte(p.Salt))
	if err != nil {
		return nil, ToRPCError(err)
	}
	m.logger.Infof("合约已部署: %s", address.Encode(res.Address))
	return map[string]any{
		"address":   address.Encode(res.Address),
		"code_hash": res.CodeHash.Hex(),
		"version":   res.Version,
		"spec":      res.Spec,
	}, nil
}

// SetAccountParams setAccount 方法参数
type SetAccountParams struct {
	Address string `json:"address"`
	// Balance 十进制整数字符串或 JSON 数字
	Balance json.Number `json:"balance"`
}

// SetAccount 设置账户余额
// Method: setAccount
func (m *SandboxMethods) SetAccount(ctx context.Context, params json.RawMessage) (interface{}, error) {
	var p SetAccountParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	a, err := parseAddress("address", p.Address)
	if err != nil {
		return nil, err
	}
	balance, ok := new(big.Int).SetString(strings.TrimSpace(p.Balance.String()), 10)
	if !ok || balance.Sign() < 0 {
		return nil, NewInvalidParamsError("balance must be a non-negative integer", map[string]interface{}{"balance": p.Balance})
	}
	version, err := m.svc.SetAccount(ctx, a, balance)
	if err != nil {
		return nil, ToRPCError(err)
	}
	return map[string]any{"address": address.Encode(a), "balance": balance.String(), "version": version}, nil
}

// ContractParams getContractSpec 方法参数
type ContractParams struct {
	Contract string `json:"contract"`
}

// GetContractSpec 合约描述
// Method: getContractSpec
func (m *SandboxMethods) GetContractSpec(ctx context.Context, params json.RawMessage) (interface{}, error) {
	var p ContractParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	a, err := parseAddress("contract", p.Contract)
	if err != nil {
		return nil, err
	}
	spec, err := m.svc.ContractSpec(ctx, a)
	if err != nil {
		return nil, ToRPCError(err)
	}
	return spec, nil
}

// GetLedgerInfo 账本概况
// Method: getLedgerInfo
func (m *SandboxMethods) GetLedgerInfo(_ context.Context, _ json.RawMessage) (interface{}, error) {
	return m.svc.LedgerInfo(), nil
}

// GetRequests 进行中与最近完成的请求
// Method: getRequests
func (m *SandboxMethods) GetRequests(_ context.Context, _ json.RawMessage) (interface{}, error) {
	active, recent := m.svc.Requests()
	if active == nil {
		active = []sandbox.RequestInfo{}
	}
	if recent == nil {
		recent = []sandbox.RequestInfo{}
	}
	return map[string]any{"active": active, "recent": recent}, nil
}

// decodeParams 参数可以是对象，也可以是只含一个对象的数组
func decodeParams(params json.RawMessage, dst any) error {
	raw := []byte(strings.TrimSpace(string(params)))
	if len(raw) == 0 {
		return NewInvalidParamsError("missing params", nil)
	}
	if raw[0] == '[' {
		var arr []json.RawMessage
		if err := json.Unmarshal(raw, &arr); err != nil || len(arr) != 1 {
			return NewInvalidParamsError("params must be an object or a single-element array", nil)
		}
		raw = arr[0]
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return NewInvalidParamsError(fmt.Sprintf("invalid params: %v", err), nil)
	}
	return nil
}

func parseAddress(field, s string) (types.Address, error) {
	if s == "" {
		return types.Address{}, NewInvalidParamsError("missing "+field, nil)
	}
	a, err := address.Parse(s)
	if err != nil {
		return types.Address{}, NewInvalidParamsError(fmt.Sprintf("invalid %s address: %v", field, err), map[string]interface{}{field: s})
	}
	return a, nil
}

func parseKeys(raws []json.RawMessage) ([]types.LedgerKey, error) {
	keys := make([]types.LedgerKey, 0, len(raws))
	for _, raw := range raws {
		k, err := conversion.ParseKeyJSON(raw)
		if err != nil {
			return nil, NewInvalidKeyError(err)
		}
		keys = append(keys, k)
	}
	return keys, nil
}
