package editor

import (
	"fmt"
	"net/url"
	"os"
	"os/exec"
	"runtime"
)

// Opener opens a result's link: local files in the user's editor, web
// links in the system handler
type Opener struct {
	getenv   func(string) string
	lookPath func(string) (string, error)
	goos     string
}

// NewOpener creates a new opener
func NewOpener() *Opener {
	return &Opener{getenv: os.Getenv, lookPath: exec.LookPath, goos: runtime.GOOS}
}

// Open opens the link and waits for the handler to exit
func (o *Opener) Open(link string) error {
	cmd, err := o.Command(link)
	if err != nil {
		return err
	}
	return cmd.Run()
}

// Command returns the process that opens link. file:// links and bare
// paths go to the editor; anything else goes to the system URL handler.
// The result suits bubbletea's ExecProcess.
func (o *Opener) Command(link string) (*exec.Cmd, error) {
	if link == "" {
		return nil, fmt.Errorf("nothing to open")
	}
	u, err := url.Parse(link)
	if err != nil {
		return nil, fmt.Errorf("parse link %q: %w", link, err)
	}
	switch u.Scheme {
	case "", "file":
		path := u.Path
		if u.Scheme == "" {
			path = link
		}
		return o.editorCommand(path)
	default:
		return o.urlCommand(link)
	}
}

func (o *Opener) editorCommand(path string) (*exec.Cmd, error) {
	editor := o.findEditor()
	if editor == "" {
		return nil, fmt.Errorf("no editor found: set $EDITOR environment variable")
	}

	cmd := exec.Command(editor, path)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd, nil
}

func (o *Opener) urlCommand(link string) (*exec.Cmd, error) {
	switch o.goos {
	case "darwin":
		return exec.Command("open", link), nil
	case "linux", "freebsd", "openbsd":
		return exec.Command("xdg-open", link), nil
	case "windows":
		return exec.Command("cmd", "/c", "start", "", link), nil
	default:
		return nil, fmt.Errorf("unsupported operating system: %s", o.goos)
	}
}

// findEditor returns the editor to use
func (o *Opener) findEditor() string {
	if editor := o.getenv("EDITOR"); editor != "" {
		return editor
	}
	if visual := o.getenv("VISUAL"); visual != "" {
		return visual
	}

	for _, editor := range []string{"nvim", "vim", "vi", "nano"} {
		if path, err := o.lookPath(editor); err == nil {
			return path
		}
	}
	return ""
}
