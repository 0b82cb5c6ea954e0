// Package guard gates provider launch configurations before any process is
// spawned. All checks are pure, synchronous, and total: they inspect the
// command/argument/environment tuple and return a structured rejection, never
// touching the OS.
//
// The supervisor runs these checks twice per provider: once when a
// configuration is accepted and again immediately before every spawn, so a
// configuration mutated after acceptance cannot reach exec.
package guard

import (
	"fmt"
	"path/filepath"
	"strings"
)

// maxArgLength bounds a single argument.
const maxArgLength = 4096

// shellMetacharacters are rejected anywhere in commands, arguments, and
// environment values. The process is spawned without a shell, but providers
// frequently re-exec through package runners that do use one.
const shellMetacharacters = ";&|`$(){}!<>"

// allowedInterpreters are bare executable names accepted without a path.
// No shell appears here.
var allowedInterpreters = map[string]struct{}{
	"node":    {},
	"npx":     {},
	"bun":     {},
	"bunx":    {},
	"deno":    {},
	"python":  {},
	"python3": {},
	"uv":      {},
	"uvx":     {},
	"ruby":    {},
	"java":    {},
	"docker":  {},
}

// packageRunners accept a trailing package identifier (`npx <pkg>` form)
// validated separately.
var packageRunners = map[string]struct{}{
	"npx":  {},
	"bunx": {},
	"uvx":  {},
}

// blockedEnvKeys are dynamic-loader and interpreter-hijacking variables that
// must never be forwarded to a provider process.
var blockedEnvKeys = map[string]struct{}{
	"LD_PRELOAD":            {},
	"LD_LIBRARY_PATH":       {},
	"LD_AUDIT":              {},
	"DYLD_INSERT_LIBRARIES": {},
	"DYLD_LIBRARY_PATH":     {},
	"DYLD_FRAMEWORK_PATH":   {},
	"PYTHONSTARTUP":         {},
	"PYTHONPATH":            {},
	"NODE_OPTIONS":          {},
	"RUBYOPT":               {},
	"PERL5OPT":              {},
	"BASH_ENV":              {},
	"ENV":                   {},
	"PROMPT_COMMAND":        {},
	"PS4":                   {},
	"IFS":                   {},
	"GLIBC_TUNABLES":        {},
	"JAVA_TOOL_OPTIONS":     {},
}

// ValidationError is a structured rejection naming the offending token.
type ValidationError struct {
	Field  string
	Token  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e == nil {
		return ""
	}
	if e.Token == "" {
		return fmt.Sprintf("guard: invalid %s: %s", e.Field, e.Reason)
	}
	return fmt.Sprintf("guard: invalid %s %q: %s", e.Field, e.Token, e.Reason)
}

// ValidateCommand checks a launch command against the interpreter allow-list
// and shell metacharacter rules.
func ValidateCommand(command string) error {
	trimmed := strings.TrimSpace(command)
	if trimmed == "" {
		return &ValidationError{Field: "command", Reason: "command is empty"}
	}
	if token, ok := firstMetacharacter(trimmed); ok {
		return &ValidationError{
			Field:  "command",
			Token:  trimmed,
			Reason: fmt.Sprintf("contains dangerous character %q", token),
		}
	}

	fields := strings.Fields(trimmed)
	executable := fields[0]
	base := filepath.Base(executable)

	if _, ok := packageRunners[base]; ok && len(fields) > 1 {
		pkg := fields[len(fields)-1]
		if _, bad := firstMetacharacter(pkg); bad {
			return &ValidationError{
				Field:  "command",
				Token:  pkg,
				Reason: "package identifier contains dangerous characters",
			}
		}
		return nil
	}

	if len(fields) > 1 {
		return &ValidationError{
			Field:  "command",
			Token:  trimmed,
			Reason: "command must be a single executable (pass arguments separately)",
		}
	}

	if _, ok := allowedInterpreters[base]; ok {
		return nil
	}
	if filepath.IsAbs(executable) || strings.HasPrefix(executable, "~/") {
		return nil
	}

	return &ValidationError{
		Field:  "command",
		Token:  executable,
		Reason: "executable is not an allowed interpreter or an absolute path",
	}
}

// ValidateArgs checks every argument for shell metacharacters and excessive
// length.
func ValidateArgs(args []string) error {
	for _, arg := range args {
		if token, ok := firstMetacharacter(arg); ok {
			return &ValidationError{
				Field:  "args",
				Token:  arg,
				Reason: fmt.Sprintf("contains dangerous character %q", token),
			}
		}
		if len(arg) > maxArgLength {
			return &ValidationError{
				Field:  "args",
				Token:  arg[:32] + "...",
				Reason: fmt.Sprintf("argument exceeds %d characters", maxArgLength),
			}
		}
	}
	return nil
}

// ValidateEnv checks environment overrides against the loader-hijack
// block-list and metacharacter rules on values.
func ValidateEnv(env map[string]string) error {
	for key, value := range env {
		if _, blocked := blockedEnvKeys[strings.ToUpper(strings.TrimSpace(key))]; blocked {
			return &ValidationError{
				Field:  "env",
				Token:  key,
				Reason: "variable can hijack dynamic loading or interpreter startup",
			}
		}
		if token, ok := firstMetacharacter(value); ok {
			return &ValidationError{
				Field:  "env",
				Token:  key,
				Reason: fmt.Sprintf("value contains dangerous character %q", token),
			}
		}
	}
	return nil
}

// ValidateConfig short-circuits through command, argument, and environment
// checks, returning the first failure.
func ValidateConfig(command string, args []string, env map[string]string) error {
	if err := ValidateCommand(command); err != nil {
		return err
	}
	if err := ValidateArgs(args); err != nil {
		return err
	}
	return ValidateEnv(env)
}

func firstMetacharacter(s string) (string, bool) {
	if idx := strings.IndexAny(s, shellMetacharacters); idx >= 0 {
		return string(s[idx]), true
	}
	return "", false
}
