package tools

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/invopop/jsonschema"
	validator "github.com/santhosh-tekuri/jsonschema/v5"
)

type argSchema struct {
	raw      json.RawMessage
	compiled *validator.Schema
}

var reflector = &jsonschema.Reflector{
	DoNotReference: true,
	ExpandedStruct: true,
}

// mustSchema 由参数结构体生成并编译 JSON Schema，工具表在包初始化时构建
func mustSchema(name string, args any) *argSchema {
	s := reflector.Reflect(args)
	s.Version = ""
	s.ID = ""

	raw, err := json.Marshal(s)
	if err != nil {
		panic(fmt.Sprintf("failed to marshal schema for tool %s: %v", name, err))
	}

	url := "mem://tools/" + name + ".json"
	c := validator.NewCompiler()
	c.Draft = validator.Draft2020
	if err := c.AddResource(url, bytes.NewReader(raw)); err != nil {
		panic(fmt.Sprintf("failed to add schema for tool %s: %v", name, err))
	}
	compiled, err := c.Compile(url)
	if err != nil {
		panic(fmt.Sprintf("failed to compile schema for tool %s: %v", name, err))
	}

	return &argSchema{raw: raw, compiled: compiled}
}

// decode 校验后按结构体解码参数
func (s *argSchema) decode(args map[string]any, out any) error {
	if err := s.compiled.Validate(normalize(args)); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidArguments, err)
	}

	data, err := json.Marshal(args)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidArguments, err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidArguments, err)
	}
	return nil
}

// normalize 将参数转换为校验器接受的 JSON 值类型
func normalize(args map[string]any) any {
	data, err := json.Marshal(args)
	if err != nil {
		return args
	}
	var v any
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&v); err != nil {
		return args
	}
	return v
}
