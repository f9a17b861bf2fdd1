package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/pterm/pterm"

	"github.com/weisyn/sandbox/internal/core/conversion"
)

// statusError 调用已执行但未成功，退出码 2
type statusError struct{ status string }

func (e *statusError) Error() string { return "invocation " + e.status }

func exitCode(err error) int {
	var se *statusError
	if errors.As(err, &se) {
		return 2
	}
	return 1
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func jsonString(v any) string {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(raw)
}

// printKV 两列表格
func printKV(rows [][]string) error {
	data := pterm.TableData{}
	for _, r := range rows {
		data = append(data, []string{pterm.Bold.Sprint(r[0]), r[1]})
	}
	return pterm.DefaultTable.WithData(data).Render()
}

// describeConversionError 参数错误附带参数序号
func describeConversionError(err error) error {
	ce, ok := conversion.AsConversionError(err)
	if !ok || ce.Position == conversion.NoPosition {
		return err
	}
	return fmt.Errorf("argument %d: %w", ce.Position, err)
}
