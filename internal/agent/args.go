package agent

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/cloudwego/eino/schema"
)

// ErrInvalidArguments 表示模型给出的工具参数不符合声明的参数描述
var ErrInvalidArguments = errors.New("invalid arguments")

// Param 描述工具的一个参数，同时用于生成 ToolInfo 和校验入参
type Param struct {
	Name     string
	Desc     string
	Type     schema.DataType
	Required bool
}

// NewToolInfo 根据参数描述生成 ToolInfo
func NewToolInfo(name, desc string, params ...Param) *schema.ToolInfo {
	infos := make(map[string]*schema.ParameterInfo, len(params))
	for _, p := range params {
		infos[p.Name] = &schema.ParameterInfo{
			Desc:     p.Desc,
			Type:     p.Type,
			Required: p.Required,
		}
	}
	return &schema.ToolInfo{
		Name:        name,
		Desc:        desc,
		ParamsOneOf: schema.NewParamsOneOfByParams(infos),
	}
}

// DecodeArgs 先按参数描述校验 JSON，再解码到 out
func DecodeArgs(argumentsInJSON string, params []Param, out any) error {
	raw := strings.TrimSpace(argumentsInJSON)
	if raw == "" || raw == "null" {
		raw = "{}"
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(raw), &fields); err != nil {
		return fmt.Errorf("%w: arguments must be a JSON object: %v", ErrInvalidArguments, err)
	}

	for _, p := range params {
		v, ok := fields[p.Name]
		if !ok || string(v) == "null" {
			if p.Required {
				return fmt.Errorf("%w: missing required argument %q", ErrInvalidArguments, p.Name)
			}
			continue
		}
		if err := checkType(p, v); err != nil {
			return err
		}
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal([]byte(raw), out); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidArguments, err)
	}
	return nil
}

func checkType(p Param, v json.RawMessage) error {
	var decoded any
	if err := json.Unmarshal(v, &decoded); err != nil {
		return fmt.Errorf("%w: argument %q: %v", ErrInvalidArguments, p.Name, err)
	}

	switch p.Type {
	case schema.Number:
		if _, ok := decoded.(float64); !ok {
			return typeError(p, decoded)
		}
	case schema.Integer:
		f, ok := decoded.(float64)
		if !ok || f != math.Trunc(f) {
			return typeError(p, decoded)
		}
	case schema.String:
		if _, ok := decoded.(string); !ok {
			return typeError(p, decoded)
		}
	case schema.Boolean:
		if _, ok := decoded.(bool); !ok {
			return typeError(p, decoded)
		}
	}
	return nil
}

func typeError(p Param, got any) error {
	return fmt.Errorf("%w: argument %q must be of type %s, got %T", ErrInvalidArguments, p.Name, p.Type, got)
}
