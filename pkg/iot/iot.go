// Package iot tracks the controllable things a device announces and turns
// them into chat tools.
//
// Devices describe their things (properties + methods) over the text
// channel; the registry keeps the descriptors and latest property values,
// and registers one query tool per property and one invoke tool per method
// on the session's tool table.
package iot

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/google/jsonschema-go/jsonschema"

	"github.com/haivivi/giztalk/go/pkg/tools"
	"github.com/haivivi/giztalk/go/pkg/wire"
)

// CommandSender delivers method invocations to the device.
type CommandSender func(cmds ...wire.IotCommand) error

// Registry is the per-session view of one device's things.
type Registry struct {
	holder *tools.Holder
	send   CommandSender
	log    *slog.Logger

	mu     sync.Mutex
	things map[string]*thing
}

type thing struct {
	desc   wire.IotDescriptor
	values map[string]any
}

// NewRegistry creates a registry that registers derived tools on holder
// and sends commands through send.
func NewRegistry(holder *tools.Holder, send CommandSender, log *slog.Logger) *Registry {
	if log == nil {
		log = slog.Default()
	}
	return &Registry{
		holder: holder,
		send:   send,
		log:    log,
		things: make(map[string]*thing),
	}
}

// HandleDescriptors records announced things and (re)registers their tools.
func (r *Registry) HandleDescriptors(descs []wire.IotDescriptor) {
	for _, d := range descs {
		if d.Name == "" {
			continue
		}
		r.mu.Lock()
		th, ok := r.things[d.Name]
		if !ok {
			th = &thing{values: make(map[string]any)}
			r.things[d.Name] = th
		}
		th.desc = d
		r.mu.Unlock()
		r.registerTools(d)
	}
}

// HandleStates applies reported property values to known things.
func (r *Registry) HandleStates(states []wire.IotState) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range states {
		th, ok := r.things[s.Name]
		if !ok {
			r.log.Error("iot state for unknown thing", "thing", s.Name)
			continue
		}
		for prop, value := range s.State {
			if _, ok := th.desc.Properties[prop]; !ok {
				r.log.Error("iot state for unknown property", "thing", s.Name, "property", prop)
				continue
			}
			th.values[prop] = value
			r.log.Info("iot state updated", "thing", s.Name, "property", prop, "value", value)
		}
	}
}

// Status returns the last reported value of a property.
func (r *Registry) Status(name, prop string) (any, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	th, ok := r.things[name]
	if !ok {
		return nil, false
	}
	if _, ok := th.desc.Properties[prop]; !ok {
		return nil, false
	}
	v, ok := th.values[prop]
	return v, ok
}

// SetStatus updates a property locally and pushes it to the device. The
// value must match the property's declared type.
func (r *Registry) SetStatus(name, prop string, value any) bool {
	r.mu.Lock()
	th, ok := r.things[name]
	if !ok {
		r.mu.Unlock()
		return false
	}
	p, ok := th.desc.Properties[prop]
	if !ok {
		r.mu.Unlock()
		return false
	}
	if !typeMatch(p.Type, value) {
		r.mu.Unlock()
		r.log.Error("iot value type mismatch",
			"thing", name, "property", prop, "declared", p.Type, "got", fmt.Sprintf("%T", value))
		return false
	}
	th.values[prop] = value
	r.mu.Unlock()
	return r.Invoke(name, prop, map[string]any{prop: value}) == nil
}

// Invoke sends one method call to the device.
func (r *Registry) Invoke(name, method string, params map[string]any) error {
	r.mu.Lock()
	th, ok := r.things[name]
	if ok {
		_, ok = th.desc.Methods[method]
		if !ok {
			// Property pushes reuse the property name as method.
			_, ok = th.desc.Properties[method]
		}
	}
	r.mu.Unlock()
	if !ok {
		return fmt.Errorf("iot: %s has no method %s", name, method)
	}
	r.log.Info("iot command", "thing", name, "method", method, "params", params)
	return r.send(wire.IotCommand{Name: name, Method: method, Parameters: params})
}

// Things returns the known thing names.
func (r *Registry) Things() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.things))
	for n := range r.things {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

func (r *Registry) registerTools(d wire.IotDescriptor) {
	for _, prop := range sortedKeys(d.Properties) {
		r.holder.Register(r.propertyTool(d, prop))
	}
	for _, method := range sortedKeys(d.Methods) {
		r.holder.Register(r.methodTool(d, method))
	}
}

// propertyTool answers "what is X set to" queries. The model supplies a
// reply template with a {value} placeholder.
func (r *Registry) propertyTool(d wire.IotDescriptor, prop string) *tools.Tool {
	info := d.Properties[prop]
	desc := info.Description
	if desc == "" {
		desc = prop
	}
	thing := d.Name
	return &tools.Tool{
		Name:        fmt.Sprintf("iot_get_%s_%s", strings.ToLower(thing), strings.ToLower(prop)),
		Description: fmt.Sprintf("查询%s的%s", thing, desc),
		InputSchema: &jsonschema.Schema{
			Type: "object",
			Properties: map[string]*jsonschema.Schema{
				"response_success": {
					Type:        "string",
					Description: "查询成功时的友好回复，必须使用{value}作为占位符表示查询到的值",
				},
			},
			Required: []string{"response_success"},
		},
		ReturnDirect: true,
		Handler: func(_ context.Context, args map[string]any) (string, error) {
			value, ok := r.Status(thing, prop)
			if !ok {
				return "无法获取设置", nil
			}
			if resp, _ := args["response_success"].(string); resp != "" {
				return strings.ReplaceAll(resp, "{value}", fmt.Sprintf("%v", value)), nil
			}
			return fmt.Sprintf("当前的设置为%v", value), nil
		},
	}
}

// methodTool invokes one device method. The schema carries the method's
// first declared parameter plus a success-reply template.
func (r *Registry) methodTool(d wire.IotDescriptor, method string) *tools.Tool {
	info := d.Methods[method]
	methodDesc := info.Description
	if methodDesc == "" {
		methodDesc = method
	}
	thingDesc := d.Description
	if thingDesc == "" {
		thingDesc = d.Name
	}

	paramName := "value"
	paramSchema := &jsonschema.Schema{Type: "string", Description: "参数"}
	if keys := sortedKeys(info.Parameters); len(keys) > 0 {
		paramName = keys[0]
		p := info.Parameters[paramName]
		typ := p.Type
		if typ == "" {
			typ = "string"
		}
		paramSchema = &jsonschema.Schema{Type: typ, Description: p.Description}
	}

	thing := d.Name
	return &tools.Tool{
		Name:        fmt.Sprintf("iot_%s_%s", thing, method),
		Description: fmt.Sprintf("%s - %s", thingDesc, methodDesc),
		InputSchema: &jsonschema.Schema{
			Type: "object",
			Properties: map[string]*jsonschema.Schema{
				paramName: paramSchema,
				"response_success": {
					Type:        "string",
					Description: "操作成功时的友好回复,关于该设备的操作结果，设备名称使用description中的名称，不要出现占位符",
				},
			},
			Required: []string{paramName, "response_success"},
		},
		ReturnDirect: true,
		Handler: func(_ context.Context, args map[string]any) (string, error) {
			resp, _ := args["response_success"].(string)
			params := make(map[string]any, len(args))
			for k, v := range args {
				if k != "response_success" {
					params[k] = v
				}
			}
			if err := r.Invoke(thing, method, params); err != nil {
				r.log.Error("iot invoke failed", "thing", thing, "method", method, "err", err)
				return "操作失败", nil
			}
			if resp == "" {
				resp = "操作成功"
			}
			return resp, nil
		},
	}
}

func typeMatch(declared string, value any) bool {
	switch strings.ToLower(declared) {
	case "object":
		return true
	case "number", "integer":
		switch value.(type) {
		case int, int32, int64, float32, float64:
			return true
		}
		return false
	case "string":
		_, ok := value.(string)
		return ok
	case "boolean":
		_, ok := value.(bool)
		return ok
	default:
		return false
	}
}

func sortedKeys[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
