// Package color styles terminal output with lipgloss.
// It respects the NO_COLOR environment variable (https://no-color.org/).
package color

import (
	"fmt"
	"os"
	"sync"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
)

var state struct {
	mu       sync.RWMutex
	once     sync.Once
	enabled  bool
	renderer *lipgloss.Renderer
}

// Init initializes the color system based on environment and flags.
func Init(noColorFlag bool) {
	state.once.Do(func() {
		state.mu.Lock()
		defer state.mu.Unlock()

		state.renderer = lipgloss.NewRenderer(os.Stdout)
		state.enabled = true
		if _, exists := os.LookupEnv("NO_COLOR"); exists {
			state.enabled = false
		}
		if os.Getenv("TERM") == "dumb" {
			state.enabled = false
		}
		if noColorFlag {
			state.enabled = false
		}
		if !state.enabled {
			state.renderer.SetColorProfile(termenv.Ascii)
		}
	})
}

// Enabled returns true if color output is enabled.
func Enabled() bool {
	Init(false)
	state.mu.RLock()
	defer state.mu.RUnlock()
	return state.enabled
}

// Disable turns off color output.
func Disable() {
	Init(false)
	state.mu.Lock()
	defer state.mu.Unlock()
	state.enabled = false
	state.renderer.SetColorProfile(termenv.Ascii)
}

// Enable turns on color output regardless of terminal detection.
func Enable() {
	Init(false)
	state.mu.Lock()
	defer state.mu.Unlock()
	state.enabled = true
	state.renderer.SetColorProfile(termenv.ANSI)
}

func render(s string, style func(lipgloss.Style) lipgloss.Style) string {
	Init(false)
	state.mu.RLock()
	defer state.mu.RUnlock()
	if !state.enabled {
		return s
	}
	return style(state.renderer.NewStyle()).Render(s)
}

func fg(c string) func(lipgloss.Style) lipgloss.Style {
	return func(s lipgloss.Style) lipgloss.Style { return s.Foreground(lipgloss.Color(c)) }
}

// Success formats a success message in green.
func Success(s string) string {
	return render(s, fg("2"))
}

// Successf formats a success message with printf-style arguments.
func Successf(format string, args ...any) string {
	return Success(fmt.Sprintf(format, args...))
}

// Error formats an error message in red.
func Error(s string) string {
	return render(s, fg("1"))
}

// Errorf formats an error message with printf-style arguments.
func Errorf(format string, args ...any) string {
	return Error(fmt.Sprintf(format, args...))
}

// Warning formats a warning message in yellow.
func Warning(s string) string {
	return render(s, fg("3"))
}

// Info formats an informational message in cyan.
func Info(s string) string {
	return render(s, fg("6"))
}

// Link formats a URL so it stands out in a report.
func Link(s string) string {
	return render(s, func(st lipgloss.Style) lipgloss.Style { return st.Foreground(lipgloss.Color("4")).Underline(true) })
}

// Header formats a header in bold.
func Header(s string) string {
	return render(s, func(st lipgloss.Style) lipgloss.Style { return st.Bold(true) })
}

// Dim formats dimmed text (for secondary information).
func Dim(s string) string {
	return render(s, func(st lipgloss.Style) lipgloss.Style { return st.Faint(true) })
}
