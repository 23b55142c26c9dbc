package tmux

import "testing"

func TestIsAgentPane(t *testing.T) {
	cases := []struct {
		command string
		want    bool
	}{
		{"claude", true},
		{"node", true},
		{"2.0.76", true},
		{"1.2.3-beta", true},
		{"bash", false},
		{"zsh", false},
		{"vim", false},
		{"", false},
		{"v2.0.76", false},
	}
	for _, c := range cases {
		if got := IsAgentPane(Pane{Command: c.command}); got != c.want {
			t.Errorf("IsAgentPane(%q) = %v, want %v", c.command, got, c.want)
		}
	}
}

func TestWrapError(t *testing.T) {
	tm := New()
	err := tm.wrapError(nil, "no server running on /tmp/tmux-1000/default", []string{"list-panes"})
	if err != ErrNoServer {
		t.Errorf("err = %v, want ErrNoServer", err)
	}
	err = tm.wrapError(nil, "can't find pane: %99", []string{"send-keys"})
	if err != ErrPaneNotFound {
		t.Errorf("err = %v, want ErrPaneNotFound", err)
	}
}
