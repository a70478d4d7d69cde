package tools

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/jsonschema-go/jsonschema"
)

// Built-in tool names. The func_ prefix is part of the device-facing
// contract; prompts reference these names.
const (
	ExitSessionName = "func_exitSession"
	NewChatName     = "func_new_chat"
	ChangeRoleName  = "func_changeRole"
)

// ErrNoSuchRole is returned by a role-switch callback when the requested
// role name does not exist for the user.
var ErrNoSuchRole = errors.New("tools: no such role")

// NewExitSessionTool builds the session-exit control. markExit flags the
// session to close after the current reply finishes playing. The tool is
// rollback: asking to leave is not a conversation turn worth remembering.
func NewExitSessionTool(markExit func()) *Tool {
	return &Tool{
		Name: ExitSessionName,
		Description: "当用户明确表示要离开/结束对话时调用此函数。触发词汇：" +
			"'拜拜'、'再见'、'退下'、'走了'、'结束对话'、'退出'、" +
			"'goodbye'、'bye' 等。检测到这些词汇时必须调用此函数。",
		InputSchema: &jsonschema.Schema{
			Type: "object",
			Properties: map[string]*jsonschema.Schema{
				"sayGoodbye": {Type: "string", Description: "告别语"},
			},
			Required: []string{"sayGoodbye"},
		},
		ReturnDirect: true,
		Rollback:     true,
		Handler: func(_ context.Context, args map[string]any) (string, error) {
			markExit()
			if s, _ := args["sayGoodbye"].(string); s != "" {
				return s, nil
			}
			return "好的，再见！期待下次聊天哦！", nil
		},
	}
}

// NewNewChatTool builds the fresh-topic control. clear drops the session's
// conversation window.
func NewNewChatTool(clear func()) *Tool {
	return &Tool{
		Name:        NewChatName,
		Description: "当用户要求开启新对话时调用，清空历史并返回提示。",
		InputSchema: &jsonschema.Schema{
			Type: "object",
			Properties: map[string]*jsonschema.Schema{
				"sayNewChat": {Type: "string", Description: "开启新对话的引导语"},
			},
			Required: []string{"sayNewChat"},
		},
		ReturnDirect: true,
		Handler: func(_ context.Context, args map[string]any) (string, error) {
			clear()
			if s, _ := args["sayNewChat"].(string); s != "" {
				return s, nil
			}
			return "让我们聊聊新的话题吧～", nil
		},
	}
}

// NewChangeRoleTool builds the role-switch control over the user's role
// names. change rebinds the device and session to the named role; it
// returns ErrNoSuchRole when the name matches nothing. Returns nil when
// the user has fewer than two roles, since switching would be meaningless.
func NewChangeRoleTool(roleNames []string, change func(ctx context.Context, roleName string) error) *Tool {
	if len(roleNames) <= 1 {
		return nil
	}
	list := strings.Join(roleNames, ", ")
	return &Tool{
		Name:        ChangeRoleName,
		Description: fmt.Sprintf("当用户希望切换角色时调用。可选角色：%s", list),
		InputSchema: &jsonschema.Schema{
			Type: "object",
			Properties: map[string]*jsonschema.Schema{
				"roleName": {Type: "string", Description: fmt.Sprintf("要切换的角色名称，可选：%s", list)},
			},
			Required: []string{"roleName"},
		},
		ReturnDirect: true,
		Rollback:     true,
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			name, _ := args["roleName"].(string)
			switch err := change(ctx, name); {
			case err == nil:
				return fmt.Sprintf("角色已切换至%s", name), nil
			case errors.Is(err, ErrNoSuchRole):
				return "角色切换失败，没有对应角色。", nil
			default:
				return "角色切换异常", nil
			}
		},
	}
}
