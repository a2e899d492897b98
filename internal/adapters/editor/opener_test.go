package editor

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testOpener(env map[string]string, installed ...string) *Opener {
	return &Opener{
		getenv: func(k string) string { return env[k] },
		lookPath: func(name string) (string, error) {
			for _, i := range installed {
				if i == name {
					return "/usr/bin/" + name, nil
				}
			}
			return "", errors.New("not found")
		},
		goos: "linux",
	}
}

func TestCommand(t *testing.T) {
	tests := []struct {
		name     string
		opener   *Opener
		link     string
		wantArgs []string
		wantErr  bool
	}{
		{
			name:     "file url goes to EDITOR",
			opener:   testOpener(map[string]string{"EDITOR": "hx"}),
			link:     "file:///home/me/notes/acme.md",
			wantArgs: []string{"hx", "/home/me/notes/acme.md"},
		},
		{
			name:     "bare path goes to VISUAL when EDITOR is unset",
			opener:   testOpener(map[string]string{"VISUAL": "code"}),
			link:     "/tmp/a b.md",
			wantArgs: []string{"code", "/tmp/a b.md"},
		},
		{
			name:     "falls back to an installed editor",
			opener:   testOpener(nil, "nano"),
			link:     "file:///x.md",
			wantArgs: []string{"/usr/bin/nano", "/x.md"},
		},
		{
			name:    "no editor",
			opener:  testOpener(nil),
			link:    "file:///x.md",
			wantErr: true,
		},
		{
			name:     "web link goes to the system handler",
			opener:   testOpener(map[string]string{"EDITOR": "hx"}),
			link:     "https://www.notion.so/Acme-1a2b",
			wantArgs: []string{"xdg-open", "https://www.notion.so/Acme-1a2b"},
		},
		{
			name:    "empty link",
			opener:  testOpener(map[string]string{"EDITOR": "hx"}),
			link:    "",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd, err := tt.opener.Command(tt.link)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantArgs, cmd.Args)
		})
	}
}

func TestCommand_PerOS(t *testing.T) {
	o := testOpener(nil)
	o.goos = "darwin"
	cmd, err := o.Command("https://example.com")
	require.NoError(t, err)
	assert.Equal(t, []string{"open", "https://example.com"}, cmd.Args)

	o.goos = "plan9"
	_, err = o.Command("https://example.com")
	assert.Error(t, err)
}
