package policy

import (
	"testing"

	"github.com/cuemby/uiwarden/pkg/events"
	"github.com/cuemby/uiwarden/pkg/log"
	"github.com/cuemby/uiwarden/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	events []*events.Event
}

func (r *recorder) Publish(e *events.Event) {
	r.events = append(r.events, e)
}

func testPolicy(mode Mode) *Policy {
	return &Policy{
		DefaultMode: mode,
		AllowList: []types.ProcessRule{
			{Name: "notepad.exe"},
			{Name: "excel.exe"},
			{Pattern: `C:\Program Files\Contoso\**`, RequiredSigner: "Contoso Ltd"},
		},
		DenyList: []types.ProcessRule{
			{Name: "excel.exe"},
			{Path: `C:\Windows\System32\cmd.exe`},
			{Pattern: "*powershell*"},
		},
		Development: Development{
			ExcludePatterns: []string{`*\secrets\*`},
			AllowPaths:      []string{`C:\dev\**`},
		},
	}
}

func TestCheckProcess(t *testing.T) {
	tests := []struct {
		name    string
		mode    Mode
		devMode bool
		process string
		path    string
		allowed bool
		code    Code
	}{
		{name: "allow listed", mode: ModeDenyUnlisted, process: "notepad.exe", allowed: true, code: CodeAllowListed},
		{name: "allow listed case-insensitive", mode: ModeDenyUnlisted, process: "NotePad.EXE", allowed: true, code: CodeAllowListed},
		{name: "deny wins over allow", mode: ModeAllowAll, process: "excel.exe", allowed: false, code: CodeDenyListed},
		{name: "deny by path", mode: ModeAllowAll, process: "cmd.exe", path: `c:/windows/system32/CMD.exe`, allowed: false, code: CodeDenyListed},
		{name: "deny by pattern on name", mode: ModeAllowAll, process: "powershell_ise.exe", allowed: false, code: CodeDenyListed},
		{name: "unlisted under allow all", mode: ModeAllowAll, process: "calc.exe", allowed: true, code: CodeDefaultAllow},
		{name: "unlisted under deny unlisted", mode: ModeDenyUnlisted, process: "calc.exe", allowed: false, code: CodeNotAllowListed},
		{name: "invalid path beats allow list", mode: ModeAllowAll, process: "notepad.exe", path: `C:\a\..\notepad.exe`, allowed: false, code: CodePathInvalid},
		{name: "unc path", mode: ModeAllowAll, process: "x.exe", path: `\\server\share\x.exe`, allowed: false, code: CodePathInvalid},
		{name: "no target", mode: ModeAllowAll, allowed: false, code: CodeNoTarget},

		// Development stages
		{name: "dev allow path", mode: ModeDenyUnlisted, devMode: true, process: "app.exe", path: `C:\dev\proj\app.exe`, allowed: true, code: CodeDevAllowPath},
		{name: "dev allow path off outside dev mode", mode: ModeDenyUnlisted, process: "app.exe", path: `C:\dev\proj\app.exe`, allowed: false, code: CodeNotAllowListed},
		{name: "deny list beats dev allow path", mode: ModeDenyUnlisted, devMode: true, process: "excel.exe", path: `C:\dev\excel.exe`, allowed: false, code: CodeDenyListed},
		{name: "dev exclusion beats everything", mode: ModeAllowAll, devMode: true, process: "notepad.exe", path: `C:\dev\secrets\notepad.exe`, allowed: false, code: CodeDevExcluded},
		{name: "dev exclusion off outside dev mode", mode: ModeAllowAll, process: "notepad.exe", path: `C:\dev\secrets\notepad.exe`, allowed: true, code: CodeAllowListed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine := NewEngine(testPolicy(tt.mode), Options{DevMode: tt.devMode, Logger: log.Nop()})
			d := engine.CheckProcess(tt.process, tt.path)
			assert.Equal(t, tt.allowed, d.Allowed, d.Reason)
			assert.Equal(t, tt.code, d.Code)
			assert.NotEmpty(t, d.Reason)
		})
	}
}

func TestCheckProcessReportsRule(t *testing.T) {
	engine := NewEngine(testPolicy(ModeAllowAll), Options{Logger: log.Nop()})

	d := engine.CheckProcess("excel.exe", "")
	require.NotNil(t, d.Rule)
	assert.Equal(t, "excel.exe", d.Rule.Name)

	d = engine.CheckProcess("calc.exe", "")
	assert.Nil(t, d.Rule)
}

func TestCheckProcessWithSignature(t *testing.T) {
	engine := NewEngine(testPolicy(ModeDenyUnlisted), Options{Logger: log.Nop()})
	path := `C:\Program Files\Contoso\tool.exe`

	d := engine.CheckProcess("tool.exe", path)
	assert.False(t, d.Allowed)
	assert.Equal(t, CodeSignerMismatch, d.Code)

	d = engine.CheckProcessWithSignature("tool.exe", path, "contoso ltd")
	assert.True(t, d.Allowed)
	assert.Equal(t, CodeAllowListed, d.Code)

	d = engine.CheckProcessWithSignature("tool.exe", path, "Evil Corp")
	assert.False(t, d.Allowed)
	assert.Equal(t, CodeSignerMismatch, d.Code)

	// Rules without a signer requirement ignore the signer
	d = engine.CheckProcessWithSignature("notepad.exe", "", "Anyone")
	assert.True(t, d.Allowed)
}

func TestDenialPublishesEvent(t *testing.T) {
	rec := &recorder{}
	engine := NewEngine(testPolicy(ModeDenyUnlisted), Options{Logger: log.Nop(), Events: rec})

	engine.CheckProcess("notepad.exe", "")
	assert.Empty(t, rec.events)

	engine.CheckProcess("calc.exe", "")
	require.Len(t, rec.events, 1)
	assert.Equal(t, events.EventPolicyDenied, rec.events[0].Type)
	assert.Equal(t, string(CodeNotAllowListed), rec.events[0].Metadata["code"])
}

func TestNilPolicyDeniesUnlisted(t *testing.T) {
	engine := NewEngine(nil, Options{Logger: log.Nop()})

	d := engine.CheckProcess("notepad.exe", "")
	assert.False(t, d.Allowed)
	assert.Equal(t, CodeNotAllowListed, d.Code)
}
