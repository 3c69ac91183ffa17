// Package syscheck probes the desktop environment for the facilities the
// application depends on: a graphical session for hotkeys and paste,
// readable audio device nodes, and a way to open the settings page.
package syscheck

import (
	"fmt"
	"os"
	"os/exec"
)

// Status classifies the result of one environment check
type Status int

const (
	// StatusOK means the checked facility is available
	StatusOK Status = iota
	// StatusDegraded means the application runs but a feature may not work
	StatusDegraded
	// StatusMissing means a required facility is absent
	StatusMissing
)

// String returns the string representation of the status
func (s Status) String() string {
	switch s {
	case StatusOK:
		return "OK"
	case StatusDegraded:
		return "Degraded"
	case StatusMissing:
		return "Missing"
	default:
		return "Unknown"
	}
}

// Check is the outcome of a single environment probe
type Check struct {
	Name   string
	Status Status
	Detail string
}

// Checker probes the host environment
type Checker struct {
	alsaDir string
	opener  string
}

// NewChecker creates a checker with the standard Linux paths
func NewChecker() *Checker {
	return &Checker{
		alsaDir: "/dev/snd",
		opener:  "xdg-open",
	}
}

// CheckDisplay verifies that a graphical session is available.
// Global hotkeys and auto paste need an X display, a Wayland session
// without XWayland cannot deliver them.
func (c *Checker) CheckDisplay() Check {
	check := Check{Name: "display"}

	if os.Getenv("DISPLAY") != "" {
		check.Status = StatusOK
		check.Detail = "X display available"
		return check
	}
	if os.Getenv("WAYLAND_DISPLAY") != "" {
		check.Status = StatusDegraded
		check.Detail = "Wayland session without an X display, hotkeys and auto paste may not work"
		return check
	}

	check.Status = StatusMissing
	check.Detail = "no graphical session detected"
	return check
}

// CheckAudioDevices verifies that ALSA device nodes are visible and readable
func (c *Checker) CheckAudioDevices() Check {
	check := Check{Name: "audio"}

	if _, err := os.Stat(c.alsaDir); err != nil {
		check.Status = StatusMissing
		check.Detail = fmt.Sprintf("%s is not available", c.alsaDir)
		return check
	}

	entries, err := os.ReadDir(c.alsaDir)
	if err != nil {
		check.Status = StatusDegraded
		check.Detail = fmt.Sprintf("cannot read %s, the user may need to join the audio group", c.alsaDir)
		return check
	}

	check.Status = StatusOK
	check.Detail = fmt.Sprintf("%d sound device nodes", len(entries))
	return check
}

// CheckOpener verifies that the settings page can be opened in a browser
func (c *Checker) CheckOpener() Check {
	check := Check{Name: "browser"}

	if _, err := exec.LookPath(c.opener); err != nil {
		check.Status = StatusDegraded
		check.Detail = fmt.Sprintf("%s not found, the settings page must be opened manually", c.opener)
		return check
	}

	check.Status = StatusOK
	check.Detail = c.opener + " available"
	return check
}

// RunAll executes every probe
func (c *Checker) RunAll() []Check {
	return []Check{
		c.CheckDisplay(),
		c.CheckAudioDevices(),
		c.CheckOpener(),
	}
}

// AllOK reports whether every check passed cleanly
func AllOK(checks []Check) bool {
	for _, check := range checks {
		if check.Status != StatusOK {
			return false
		}
	}
	return true
}

// ProblemMessage builds a user-facing summary of the failed checks.
// Returns the empty string when everything passed.
func ProblemMessage(checks []Check) string {
	var problems []string
	for _, check := range checks {
		if check.Status == StatusOK {
			continue
		}
		problems = append(problems, check.Detail)
	}
	if len(problems) == 0 {
		return ""
	}

	message := "環境に問題があります (environment problems):\n"
	for _, p := range problems {
		message += "  • " + p + "\n"
	}
	return message
}
