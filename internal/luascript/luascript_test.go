package luascript

import "testing"

func TestHandleMsgReceivesPayloadBytes(t *testing.T) {
	h, err := New(`
sum = 0
function handle_msg(node_id, instance, payload)
  sum = node_id + instance
  for i = 1, #payload do
    sum = sum + payload[i]
  end
end
`)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer h.Close()

	if err := h.HandleMsg(5, 1, []byte{1, 2, 3}); err != nil {
		t.Fatalf("HandleMsg: %v", err)
	}
	sum := h.L.GetGlobal("sum")
	if sum.String() != "12" {
		t.Fatalf("sum = %s, want 12", sum.String())
	}
}

func TestNewRejectsScriptWithoutHandleMsg(t *testing.T) {
	_, err := New(`x = 1`)
	if err == nil {
		t.Fatal("expected error for a script missing handle_msg")
	}
}

func TestNewRejectsInvalidLua(t *testing.T) {
	_, err := New(`this is not lua (`)
	if err == nil {
		t.Fatal("expected error for invalid Lua source")
	}
}
