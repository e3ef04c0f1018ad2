package session

import (
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/creack/pty"
)

var shellCandidates = []string{
	"/bin/zsh",
	"/usr/bin/zsh",
	"/bin/bash",
	"/usr/bin/bash",
	"/bin/sh",
	"/usr/bin/sh",
}

const fallbackPath = "/usr/local/bin:/usr/bin:/bin:/usr/sbin:/sbin"

// ResolveShell picks the shell to spawn: explicit if set, then $SHELL if it
// exists, then the first well-known shell present on the system.
func ResolveShell(explicit string) string {
	if explicit != "" {
		return explicit
	}
	if shell := os.Getenv("SHELL"); shell != "" && isExecutable(shell) {
		return shell
	}
	for _, candidate := range shellCandidates {
		if isExecutable(candidate) {
			return candidate
		}
	}
	return "/bin/sh"
}

// ShellArgs returns the arguments that start shell as an interactive login shell.
func ShellArgs(shell string) []string {
	switch filepath.Base(shell) {
	case "zsh", "bash", "fish":
		return []string{"-l", "-i"}
	case "sh", "dash":
		return []string{"-i"}
	}
	return nil
}

func isExecutable(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir() && info.Mode()&0o111 != 0
}

// shellEnv builds the child environment: the server's own environment,
// terminal capabilities, then caller overrides.
func shellEnv(extra []string) []string {
	env := os.Environ()
	env = setEnv(env, "TERM", "xterm-256color")
	env = setEnv(env, "COLORTERM", "truecolor")
	if os.Getenv("LANG") == "" {
		env = setEnv(env, "LANG", "en_US.UTF-8")
	}
	if os.Getenv("PATH") == "" {
		env = setEnv(env, "PATH", fallbackPath)
	}
	for _, kv := range extra {
		if k, v, ok := strings.Cut(kv, "="); ok {
			env = setEnv(env, k, v)
		}
	}
	return env
}

func setEnv(env []string, key, value string) []string {
	prefix := key + "="
	for i, kv := range env {
		if strings.HasPrefix(kv, prefix) {
			env[i] = prefix + value
			return env
		}
	}
	return append(env, prefix+value)
}

// spawn starts the shell on a new pseudo-terminal of the configured size.
func spawn(cfg Config) (*exec.Cmd, *os.File, error) {
	path, err := exec.LookPath(cfg.Shell)
	if err != nil {
		return nil, nil, &SpawnError{Shell: cfg.Shell, Err: err}
	}
	if cfg.WorkDir != "" {
		if info, err := os.Stat(cfg.WorkDir); err != nil {
			return nil, nil, &SpawnError{Shell: cfg.Shell, Err: err}
		} else if !info.IsDir() {
			return nil, nil, &SpawnError{Shell: cfg.Shell, Err: errors.New("working directory is not a directory")}
		}
	}

	args := cfg.Args
	if args == nil {
		args = ShellArgs(path)
	}
	cmd := exec.Command(path, args...)
	cmd.Dir = cfg.WorkDir
	cmd.Env = shellEnv(cfg.Env)

	ptmx, err := pty.StartWithSize(cmd, &pty.Winsize{Cols: uint16(cfg.Cols), Rows: uint16(cfg.Rows)})
	if err != nil {
		return nil, nil, &SpawnError{Shell: cfg.Shell, Err: err}
	}
	return cmd, ptmx, nil
}
