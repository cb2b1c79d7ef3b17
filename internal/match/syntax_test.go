package match

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/willibrandon/faultscope/internal/faultid"
)

func TestFaultMatcher_Match(t *testing.T) {
	id := faultid.MustNormalize("0x0165")
	m := NewFaultMatcher()

	tests := []struct {
		name       string
		line       string
		wantSyntax string
		wantOK     bool
	}{
		{
			name:       "tuple positional",
			line:       "[20240101_120000] SetFunc(e_id, fa_id, fa_st)=( 3, 0x165, 1)",
			wantSyntax: "tuple",
			wantOK:     true,
		},
		{
			name:       "tuple canonical spelling",
			line:       "(e_id, fa_id, fa_st)=(3, 0x0165, 1)",
			wantSyntax: "tuple",
			wantOK:     true,
		},
		{
			name:   "tuple value at another position",
			line:   "(e_id, fa_id, fa_st)=(0x165, 0x2A0, 1)",
			wantOK: false,
		},
		{
			name:       "tuple with truncated header",
			line:       "...fa_id, fa_st)=( 3, 0x165, 1)",
			wantSyntax: "tuple",
			wantOK:     true,
		},
		{
			name:       "key colon",
			line:       "SetFunc fa_id:0x165, fa_st:0x1,fu_st:0x3, fu_st_n:0x1",
			wantSyntax: "key_value",
			wantOK:     true,
		},
		{
			name:       "key equals",
			line:       "fa_id=0x0165",
			wantSyntax: "key_value",
			wantOK:     true,
		},
		{
			name:       "key double colon",
			line:       "fa_id::0X165",
			wantSyntax: "key_value",
			wantOK:     true,
		},
		{
			name:       "labeled",
			line:       "Fault ID: 0x165 raised",
			wantSyntax: "labeled",
			wantOK:     true,
		},
		{
			name:       "labeled snake case",
			line:       "fault_id: 0x0165",
			wantSyntax: "labeled",
			wantOK:     true,
		},
		{
			name:       "labeled compact",
			line:       "FaultID=0x165",
			wantSyntax: "labeled",
			wantOK:     true,
		},
		{
			name:       "fault list",
			line:       "active faults:(0x2A0 0x165)",
			wantSyntax: "fault_list",
			wantOK:     true,
		},
		{
			name:   "longer id is not a match",
			line:   "fa_id:0x1650",
			wantOK: false,
		},
		{
			name:   "bare mention without a syntax",
			line:   "something about 0x165 here",
			wantOK: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			syntax, ok := m.Match(tt.line, id)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.wantSyntax, syntax)
		})
	}
}

func TestFaultMatcher_PriorityOrder(t *testing.T) {
	id := faultid.MustNormalize("0x165")
	m := NewFaultMatcher()

	syntax, ok := m.Match("(e_id, fa_id)=(1, 0x165) fa_id:0x165", id)
	require.True(t, ok)
	assert.Equal(t, "tuple", syntax)
	assert.Equal(t, []string{"tuple", "key_value", "labeled", "fault_list"}, m.Syntaxes())
}

func TestFaultMatcher_Filter(t *testing.T) {
	id := faultid.MustNormalize("165")
	lines := []string{
		"fa_id:0x165 fu_st_n:0x1",
		"fa_id:0x166 fu_st_n:0x1",
		"Fault ID: 0x0165",
	}

	got := NewFaultMatcher().Filter(lines, id)
	assert.Equal(t, []string{lines[0], lines[2]}, got)
}

func TestFaultMatcher_IDs(t *testing.T) {
	m := NewFaultMatcher()

	ids := m.IDs("SetFunc fa_id:0x165 faults:(0x2a0 0x0165 7)")
	require.Len(t, ids, 2)
	assert.Equal(t, "0x0165", ids[0].Canonical)
	assert.Equal(t, "0x02A0", ids[1].Canonical)

	assert.Empty(t, m.IDs("no ids on this line"))
}

func TestLoadSyntaxes(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "patterns.yaml")
	content := `syntaxes:
  - name: alarm
    regex: 'alarm\[(0x[0-9a-f]+)\]'
    description: alarm code in brackets
  - name: code_list
    regex: 'codes=\{([^}]*)\}'
    list: true
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	extra, err := LoadSyntaxes(path)
	require.NoError(t, err)
	require.Len(t, extra, 2)

	m := NewFaultMatcher(extra...)
	assert.Equal(t, []string{"tuple", "key_value", "labeled", "fault_list", "alarm", "code_list"}, m.Syntaxes())

	id := faultid.MustNormalize("0x165")

	syntax, ok := m.Match("ALARM[0X0165] raised", id)
	require.True(t, ok)
	assert.Equal(t, "alarm", syntax)

	syntax, ok = m.Match("codes={0x1, 0x165}", id)
	require.True(t, ok)
	assert.Equal(t, "code_list", syntax)

	// Built-ins still win when both apply.
	syntax, ok = m.Match("fa_id:0x165 alarm[0x165]", id)
	require.True(t, ok)
	assert.Equal(t, "key_value", syntax)
}

func TestLoadSyntaxes_Errors(t *testing.T) {
	dir := t.TempDir()

	_, err := LoadSyntaxes(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)

	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("syntaxes:\n  - name: broken\n    regex: '(unclosed'\n"), 0o644))
	_, err = LoadSyntaxes(bad)
	assert.True(t, errors.Is(err, ErrInvalidPattern), "got %v", err)

	unnamed := filepath.Join(dir, "unnamed.yaml")
	require.NoError(t, os.WriteFile(unnamed, []byte("syntaxes:\n  - regex: 'x'\n"), 0o644))
	_, err = LoadSyntaxes(unnamed)
	assert.Error(t, err)
}
