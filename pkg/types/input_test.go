package types

import "testing"

func TestInputConstructors(t *testing.T) {
	in := NewUserInput("s1", "hello").WithChannel("mcp")
	if !in.IsUserInput() || in.IsCancel() {
		t.Errorf("NewUserInput type = %q", in.Type)
	}
	if in.SessionID != "s1" || in.Content != "hello" || in.Channel != "mcp" {
		t.Errorf("NewUserInput = %+v", in)
	}

	cancel := NewCancelInput("s1")
	if !cancel.IsCancel() || cancel.IsUserInput() {
		t.Errorf("NewCancelInput type = %q", cancel.Type)
	}
	if cancel.SessionID != "s1" || cancel.Content != "" {
		t.Errorf("NewCancelInput = %+v", cancel)
	}
}
