package query

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/willibrandon/faultscope/internal/match"
)

func TestContextRanges(t *testing.T) {
	tests := []struct {
		name  string
		lines []int
		c     int
		want  []lineRange
	}{
		{"clipped at start", []int{1}, 3, []lineRange{{1, 4}}},
		{"disjoint", []int{10, 40}, 2, []lineRange{{8, 12}, {38, 42}}},
		{"overlapping", []int{10, 13}, 2, []lineRange{{8, 15}}},
		{"adjacent", []int{10, 15}, 2, []lineRange{{8, 17}}},
		{"unsorted input", []int{40, 10}, 1, []lineRange{{9, 11}, {39, 41}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, contextRanges(tt.lines, tt.c))
		})
	}
}

func TestAwkProgram(t *testing.T) {
	got := awkProgram([]lineRange{{3, 3}, {8, 12}})
	assert.Equal(t, `NR==3||NR>=8&&NR<=12{print NR":"$0} NR>=12{exit}`, got)
}

func TestContextCommands_Chunked(t *testing.T) {
	var ranges []lineRange
	for i := 0; i < rangesPerRead*2+1; i++ {
		ranges = append(ranges, lineRange{from: i*10 + 1, to: i*10 + 2})
	}

	cmds := contextCommands("/logs/app.log.gz", ranges)
	require.Len(t, cmds, 3)
	for _, c := range cmds {
		assert.True(t, strings.HasPrefix(c, "zcat -f -- '/logs/app.log.gz' | awk '"), c)
	}
}

func TestFindCommand(t *testing.T) {
	cmd := findCommand("/var/log/it's", []string{".log", "gz", ""})
	assert.Contains(t, cmd, `[ -f '/var/log/it'\''s' ]`)
	assert.Contains(t, cmd, `-name log -o -name '*.log' -o -name '*.gz'`)
	assert.True(t, strings.HasSuffix(cmd, "2>/dev/null"))
}

func TestParseFindOutput(t *testing.T) {
	out := "120\t/logs/b.log\r\n" +
		"bogus line\n" +
		"5\t/logs/a dir/a.log\n" +
		"x\t/logs/c.log\n"

	files := parseFindOutput(out)
	assert.Equal(t, []remoteFile{
		{Path: "/logs/a dir/a.log", Size: 5},
		{Path: "/logs/b.log", Size: 120},
	}, files)
}

func TestSearchRemote_FilterFailureSkipsFile(t *testing.T) {
	remote := newScriptedRemote(map[string]string{"/logs/app.log": appLog})
	e := newTestEngine(t, remote)

	files := []remoteFile{{Path: "/logs/missing.log", Size: 1}, {Path: "/logs/app.log", Size: 1}}
	p, err := e.prepare(NewRequest("/logs", "heartbeat"))
	require.NoError(t, err)

	records, err := e.searchRemote(context.Background(), p, files)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "/logs/app.log", records[0].FilePath)
}

func TestShellRemote_ContextRead(t *testing.T) {
	requireShellTools(t)

	var b strings.Builder
	for i := 1; i <= 500; i++ {
		b.WriteString("line ")
		b.WriteString(strings.Repeat("x", i%7))
		if i%100 == 0 {
			b.WriteString(" MARK")
		}
		b.WriteString("\n")
	}
	root := writeTree(t, map[string]string{"big.log.gz": b.String()})

	e := newTestEngine(t, shellRemote{})
	req := NewRequest(root, "MARK")
	req.Method = MethodRemote
	req.ContextLines = 2

	res, err := e.Query(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, res.Matches, 5)

	last := res.Matches[4]
	assert.Equal(t, 500, last.LineNumber)
	assert.Len(t, last.Context.Before, 2)
	assert.Empty(t, last.Context.After)
	assert.Equal(t, "line "+strings.Repeat("x", 498%7), last.Context.Before[0])
}

func TestShellRemote_ColonKeywordAgreesWithLocal(t *testing.T) {
	requireShellTools(t)

	var b strings.Builder
	for i := 1; i <= 30; i++ {
		switch {
		case i == 30:
			b.WriteString("SetFunc tag 1:Set\n")
		case i%10 == 1:
			b.WriteString("SetFunc plain\n")
		default:
			b.WriteString("filler\n")
		}
	}
	root := writeTree(t, map[string]string{"app.log": b.String()})
	e := newTestEngine(t, shellRemote{})

	for _, method := range []Method{MethodLocal, MethodRemote} {
		t.Run(string(method), func(t *testing.T) {
			req := NewRequest(root, "SetFunc", "1:Set")
			req.Logic = match.LogicAND
			req.FuzzyMatch = false
			req.MaxResults = 1
			req.Method = method

			res, err := e.Query(context.Background(), req)
			require.NoError(t, err)
			require.Len(t, res.Matches, 1)
			assert.Equal(t, 30, res.Matches[0].LineNumber)
			assert.False(t, res.Statistics.Truncated)
		})
	}
}
