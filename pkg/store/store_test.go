package store_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/haivivi/giztalk/go/pkg/kv"
	"github.com/haivivi/giztalk/go/pkg/store"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	s := store.New(kv.NewMemory(nil))
	t.Cleanup(func() { s.Close() })
	return s
}

func TestDevicesCRUD(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	dev := &store.Device{
		ID:     "AA:BB:CC:DD:EE:FF",
		UserID: "u1",
		RoleID: "r1",
		Alias:  "客厅的小智",
		State:  store.DeviceOffline,
	}
	if err := s.Devices.Put(ctx, dev); err != nil {
		t.Fatalf("Put: %v", err)
	}

	got, err := s.Devices.Get(ctx, dev.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Alias != dev.Alias || got.RoleID != "r1" {
		t.Errorf("Get = %+v, want %+v", got, dev)
	}

	if err := s.Devices.SetState(ctx, dev.ID, store.DeviceStandby); err != nil {
		t.Fatalf("SetState: %v", err)
	}
	got, _ = s.Devices.Get(ctx, dev.ID)
	if got.State != store.DeviceStandby {
		t.Errorf("State = %v, want standby", got.State)
	}

	now := time.Now()
	if err := s.Devices.Touch(ctx, dev.ID, now); err != nil {
		t.Fatalf("Touch: %v", err)
	}
	got, _ = s.Devices.Get(ctx, dev.ID)
	if got.State != store.DeviceOnline {
		t.Errorf("State after Touch = %v, want online", got.State)
	}
	if got.LastLogin != now.UnixMilli() {
		t.Errorf("LastLogin = %d, want %d", got.LastLogin, now.UnixMilli())
	}

	if err := s.Devices.Delete(ctx, dev.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := s.Devices.Get(ctx, dev.ID); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Get after Delete = %v, want ErrNotFound", err)
	}
}

func TestDeviceIsVirtual(t *testing.T) {
	tests := []struct {
		id   string
		want bool
	}{
		{"user_chat_42", true},
		{"AA:BB:CC:DD:EE:FF", false},
		{"user_chat_", false},
		{"", false},
	}
	for _, tc := range tests {
		d := &store.Device{ID: tc.id}
		if got := d.IsVirtual(); got != tc.want {
			t.Errorf("IsVirtual(%q) = %v, want %v", tc.id, got, tc.want)
		}
	}
}

func TestDeviceStateJSON(t *testing.T) {
	tests := []struct {
		state store.DeviceState
		want  string
	}{
		{store.DeviceOffline, "offline"},
		{store.DeviceOnline, "online"},
		{store.DeviceStandby, "standby"},
	}
	for _, tc := range tests {
		data, err := tc.state.MarshalJSON()
		if err != nil {
			t.Fatalf("MarshalJSON(%v): %v", tc.state, err)
		}
		if string(data) != `"`+tc.want+`"` {
			t.Errorf("MarshalJSON(%v) = %s, want %q", tc.state, data, tc.want)
		}
		var back store.DeviceState
		if err := back.UnmarshalJSON(data); err != nil {
			t.Fatalf("UnmarshalJSON(%s): %v", data, err)
		}
		if back != tc.state {
			t.Errorf("round trip %v -> %v", tc.state, back)
		}
	}
}

func TestRolesByUser(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	roles := []*store.Role{
		{ID: "r1", UserID: "u1", Name: "小智", Desc: "你是一个友好的助手。"},
		{ID: "r2", UserID: "u1", Name: "故事大王", Desc: "你擅长给孩子讲故事。"},
		{ID: "r3", UserID: "u2", Name: "别人的角色"},
	}
	for _, r := range roles {
		if err := s.Roles.Put(ctx, r); err != nil {
			t.Fatalf("Put %s: %v", r.ID, err)
		}
	}

	mine, err := s.Roles.ListByUser(ctx, "u1")
	if err != nil {
		t.Fatalf("ListByUser: %v", err)
	}
	if len(mine) != 2 {
		t.Fatalf("ListByUser = %d roles, want 2", len(mine))
	}

	found, err := s.Roles.FindByName(ctx, "u1", "故事大王")
	if err != nil {
		t.Fatalf("FindByName: %v", err)
	}
	if found.ID != "r2" {
		t.Errorf("FindByName = %s, want r2", found.ID)
	}

	if _, err := s.Roles.FindByName(ctx, "u1", "不存在"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("FindByName missing = %v, want ErrNotFound", err)
	}
}

func TestModelConfigsCRUD(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	cfg := &store.ModelConfig{
		ID:        "c1",
		Provider:  "openai",
		ModelType: store.ModelTypeChat,
		Model:     "gpt-4o-mini",
		APIURL:    "https://api.openai.com/v1",
		APIKey:    "sk-test",
	}
	if err := s.ModelConfigs.Put(ctx, cfg); err != nil {
		t.Fatalf("Put: %v", err)
	}

	got, err := s.ModelConfigs.Get(ctx, "c1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Provider != "openai" || got.Model != "gpt-4o-mini" {
		t.Errorf("Get = %+v", got)
	}

	all, err := s.ModelConfigs.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(all) != 1 {
		t.Errorf("List = %d configs, want 1", len(all))
	}
}

func TestMessagesRecentWindow(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	const dev, role = "AA:BB:CC:DD:EE:FF", "r1"
	base := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC).UnixMilli()

	// Interleave normal turns with one function-call row.
	turns := []*store.Message{
		{DeviceID: dev, RoleID: role, Sender: store.SenderUser, Content: "你好", Kind: store.KindNormal, CreateTime: base + 1},
		{DeviceID: dev, RoleID: role, Sender: store.SenderAssistant, Content: "你好呀！", Kind: store.KindNormal, CreateTime: base + 2},
		{DeviceID: dev, RoleID: role, Sender: store.SenderUser, Content: "帮我开灯", Kind: store.KindFunctionCall, CreateTime: base + 3},
		{DeviceID: dev, RoleID: role, Sender: store.SenderUser, Content: "讲个故事", Kind: store.KindNormal, CreateTime: base + 4},
		{DeviceID: dev, RoleID: role, Sender: store.SenderAssistant, Content: "从前……", Kind: store.KindNormal, CreateTime: base + 5},
	}
	for _, m := range turns {
		if err := s.Messages.Append(ctx, m); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	// normalOnly drops the function-call row.
	got, err := s.Messages.Recent(ctx, dev, role, 10, true)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(got) != 4 {
		t.Fatalf("Recent normalOnly = %d messages, want 4", len(got))
	}
	for i := 1; i < len(got); i++ {
		if got[i].CreateTime < got[i-1].CreateTime {
			t.Fatal("Recent not in chronological order")
		}
	}

	// Window takes the most recent n.
	got, err = s.Messages.Recent(ctx, dev, role, 2, true)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("Recent(2) = %d messages, want 2", len(got))
	}
	if got[0].Content != "讲个故事" || got[1].Content != "从前……" {
		t.Errorf("Recent(2) = [%q %q]", got[0].Content, got[1].Content)
	}

	// Other (device, role) histories stay isolated.
	other, err := s.Messages.Recent(ctx, dev, "r2", 10, false)
	if err != nil {
		t.Fatalf("Recent other role: %v", err)
	}
	if len(other) != 0 {
		t.Errorf("Recent other role = %d messages, want 0", len(other))
	}
}

func TestMessagesAppendRequiresTime(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	err := s.Messages.Append(ctx, &store.Message{DeviceID: "d", RoleID: "r", Sender: store.SenderUser})
	if err == nil {
		t.Fatal("Append without CreateTime should fail")
	}
}

func TestMessagesSetAudioPathAndKind(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	const dev, role = "dev1", "r1"
	ts := int64(1773130500000)
	msg := &store.Message{
		DeviceID: dev, RoleID: role,
		Sender: store.SenderAssistant, Content: "好的",
		Kind: store.KindNormal, CreateTime: ts,
	}
	if err := s.Messages.Append(ctx, msg); err != nil {
		t.Fatalf("Append: %v", err)
	}

	path := "dev1/r1/2026-05-01T090000.000-assistant.opus"
	if err := s.Messages.SetAudioPath(ctx, dev, role, ts, store.SenderAssistant, path); err != nil {
		t.Fatalf("SetAudioPath: %v", err)
	}
	if err := s.Messages.SetKind(ctx, dev, role, ts, store.SenderAssistant, store.KindFunctionCall); err != nil {
		t.Fatalf("SetKind: %v", err)
	}

	got, err := s.Messages.All(ctx, dev, role)
	if err != nil {
		t.Fatalf("All: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("All = %d messages, want 1", len(got))
	}
	if got[0].AudioPath != path {
		t.Errorf("AudioPath = %q, want %q", got[0].AudioPath, path)
	}
	if got[0].Kind != store.KindFunctionCall {
		t.Errorf("Kind = %q, want FUNCTION_CALL", got[0].Kind)
	}

	// Updating a missing row reports ErrNotFound.
	err = s.Messages.SetAudioPath(ctx, dev, role, ts+1, store.SenderAssistant, path)
	if !errors.Is(err, store.ErrNotFound) {
		t.Errorf("SetAudioPath missing = %v, want ErrNotFound", err)
	}
}

func TestMessagesClear(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	const dev, role = "dev1", "r1"
	for i := int64(1); i <= 3; i++ {
		s.Messages.Append(ctx, &store.Message{
			DeviceID: dev, RoleID: role, Sender: store.SenderUser,
			Content: "x", Kind: store.KindNormal, CreateTime: i,
		})
	}
	if err := s.Messages.Clear(ctx, dev, role); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	got, _ := s.Messages.All(ctx, dev, role)
	if len(got) != 0 {
		t.Errorf("All after Clear = %d messages, want 0", len(got))
	}

	// Clearing an empty history is a no-op.
	if err := s.Messages.Clear(ctx, dev, role); err != nil {
		t.Fatalf("Clear empty: %v", err)
	}
}
