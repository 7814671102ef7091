// Package calculator 提供四则运算工具以及对应的 Agent 定义。
package calculator

import (
	"context"
	"errors"
	"strconv"

	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/schema"
	"github.com/wwwzy/GraphPilot/internal/agent"
)

var ErrDivisionByZero = errors.New("division by zero")

func Add(a, b float64) float64 { return a + b }

func Multiply(a, b float64) float64 { return a * b }

// Divide 在除数为 0 时返回 ErrDivisionByZero
func Divide(a, b float64) (float64, error) {
	if b == 0 {
		return 0, ErrDivisionByZero
	}
	return a / b, nil
}

var operandParams = []agent.Param{
	{Name: "a", Desc: "第一个操作数", Type: schema.Number, Required: true},
	{Name: "b", Desc: "第二个操作数", Type: schema.Number, Required: true},
}

type operands struct {
	A float64 `json:"a"`
	B float64 `json:"b"`
}

// binaryTool 是三个运算工具共用的实现
type binaryTool struct {
	name string
	desc string
	op   func(a, b float64) (float64, error)
}

func (t *binaryTool) Info(_ context.Context) (*schema.ToolInfo, error) {
	return agent.NewToolInfo(t.name, t.desc, operandParams...), nil
}

func (t *binaryTool) InvokableRun(_ context.Context, argumentsInJSON string, _ ...tool.Option) (string, error) {
	var in operands
	if err := agent.DecodeArgs(argumentsInJSON, operandParams, &in); err != nil {
		return "", err
	}
	v, err := t.op(in.A, in.B)
	if err != nil {
		return "", err
	}
	return FormatNumber(v), nil
}

// FormatNumber 输出最短的十进制表示，整数不带小数点
func FormatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func NewAddTool() tool.InvokableTool {
	return &binaryTool{
		name: "add",
		desc: "Add a and b.",
		op:   func(a, b float64) (float64, error) { return Add(a, b), nil },
	}
}

func NewMultiplyTool() tool.InvokableTool {
	return &binaryTool{
		name: "multiply",
		desc: "Multiply a and b.",
		op:   func(a, b float64) (float64, error) { return Multiply(a, b), nil },
	}
}

func NewDivideTool() tool.InvokableTool {
	return &binaryTool{
		name: "divide",
		desc: "Divide a by b. b must not be zero.",
		op:   Divide,
	}
}

// GetTools 返回计算器 Agent 的全部工具
func GetTools() []tool.BaseTool {
	return []tool.BaseTool{
		NewAddTool(),
		NewMultiplyTool(),
		NewDivideTool(),
	}
}
