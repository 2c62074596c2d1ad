package policy

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMatchPattern(t *testing.T) {
	tests := []struct {
		name     string
		pattern  string
		value    string
		expected bool
	}{
		// Exact
		{name: "exact case-insensitive", pattern: "notepad.exe", value: "NOTEPAD.EXE", expected: true},
		{name: "exact mismatch", pattern: "notepad.exe", value: "notepad.exe.bak", expected: false},
		{name: "separator agnostic", pattern: `C:\Tools\a.exe`, value: "c:/tools/A.EXE", expected: true},

		// Leading and trailing star
		{name: "suffix", pattern: "*.exe", value: `C:\apps\word.exe`, expected: true},
		{name: "suffix mismatch", pattern: "*.exe", value: `C:\apps\word.dll`, expected: false},
		{name: "prefix", pattern: `C:\Windows\*`, value: `C:\Windows\System32\calc.exe`, expected: true},
		{name: "prefix mismatch", pattern: `C:\Windows\*`, value: `C:\WindowsApps\calc.exe`, expected: false},
		{name: "contains", pattern: "*system32*", value: `C:\Windows\System32\calc.exe`, expected: true},

		// Double star
		{name: "tree prefix", pattern: `C:\dev\**`, value: `C:\dev\proj\bin\app.exe`, expected: true},
		{name: "tree prefix sibling", pattern: `C:\dev\**`, value: `C:\devtools\app.exe`, expected: false},
		{name: "nested dir and extension", pattern: `C:\dev\**\bin\*.exe`, value: `C:\dev\a\b\bin\tool.exe`, expected: true},
		{name: "double star matches zero segments", pattern: `C:\dev\**\bin\*.exe`, value: `C:\dev\bin\tool.exe`, expected: true},
		{name: "wrong directory", pattern: `C:\dev\**\bin\*.exe`, value: `C:\dev\a\tool.exe`, expected: false},
		{name: "wrong extension", pattern: `C:\dev\**\bin\*.exe`, value: `C:\dev\bin\tool.dll`, expected: false},
		{name: "star stays in segment", pattern: `C:\dev\**\bin\*.exe`, value: `C:\dev\bin\sub\tool.exe`, expected: false},
		{name: "contained segment", pattern: `**\node_modules\**`, value: `C:\proj\node_modules\x\y.js`, expected: true},
		{name: "contained segment boundary", pattern: `**\node_modules\**`, value: `C:\proj\my_node_modules\y.js`, expected: false},
		{name: "ordered pieces", pattern: `C:\a\**\x\**\y\**`, value: `C:\a\1\x\2\y\3`, expected: true},
		{name: "out of order pieces", pattern: `C:\a\**\x\**\y\**`, value: `C:\a\y\x\3`, expected: false},
		{name: "double star suffix", pattern: `**\app.exe`, value: `D:\builds\app.exe`, expected: true},

		// Edge cases
		{name: "empty pattern", pattern: "", value: "anything", expected: false},
		{name: "empty value", pattern: "*", value: "", expected: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, MatchPattern(tt.pattern, tt.value))
		})
	}
}

func TestValidatePath(t *testing.T) {
	tests := []struct {
		path     string
		expected bool
	}{
		{`C:\Windows\System32\calc.exe`, true},
		{`d:/tools/app.exe`, true},
		{`C:\`, true},
		{`C:\a\..\b`, false},
		{`C:\a\..`, false},
		{`C:/a/../b`, false},
		{`C:\a\...\b`, false},
		{`C:\a\.. \b`, false},
		{`C:\app..v2\x.exe`, true},
		{`C:\tools\setup..exe`, true},
		{`C:\a\.\b.exe`, true},
		{`\\server\share`, false},
		{`//server/share`, false},
		{`relative\path.exe`, false},
		{`\Windows\calc.exe`, false},
		{`C:relative.exe`, false},
		{`1:\x`, false},
		{"", false},
		{"C:\\a\x00b", false},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.expected, ValidatePath(tt.path))
		})
	}
}
