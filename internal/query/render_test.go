package query

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/willibrandon/faultscope/internal/guide"
	"github.com/willibrandon/faultscope/internal/match"
	"github.com/willibrandon/faultscope/internal/stats"
)

func TestRenderText(t *testing.T) {
	req := NewRequest("/logs", "SetFunc", "fu_st")
	req.ContextLines = 1
	req.ExtractPattern = `fa_id:(0x\w+)`

	res := &Result{
		Params: req,
		Matches: []match.Record{{
			FilePath:   "/logs/app.log",
			LineNumber: 3,
			Content:    "SetFunc fa_id:0x165, fu_st:0x3",
			Context:    &match.Context{Before: []string{"boot"}, After: []string{}},
			Extracted:  []match.Extraction{{FullMatch: "fa_id:0x165", Groups: []string{"0x165"}}},
		}},
		Statistics: Statistics{
			TotalMatches:    1,
			MethodUsed:      MethodRemote,
			FilesSearched:   1200,
			BytesConsidered: 3 << 30,
			Truncated:       true,
			Duration:        1500 * time.Millisecond,
		},
	}

	text := RenderText(res)
	for _, want := range []string{
		"Keywords:     SetFunc, fu_st",
		"Logic:        OR",
		"Method: remote, 1,200 files, 3.0 GiB, 1.5s",
		"Matches (1), truncated to 100:",
		"[1] /logs/app.log:3",
		"Content: SetFunc fa_id:0x165, fu_st:0x3",
		"Context (1 before):\n  boot",
		`Extracted: fa_id:0x165 ["0x165"]`,
	} {
		assert.Contains(t, text, want)
	}
	assert.NotContains(t, text, "after):")
	assert.True(t, strings.HasSuffix(text, strings.Repeat("=", ruleWidth)))
}

func TestRenderScanText(t *testing.T) {
	first := "[20240401_100000]"
	status := int64(0)
	report := &ScanReport{
		BasePath:     "/data",
		SnapshotDir:  "/data/snapshot-txtlog-a",
		FilePath:     "/data/snapshot-txtlog-a/log.gz",
		TotalMatches: 1,
		Matches: []ScanMatch{{
			Record:  match.Record{LineNumber: 7, Content: "SetFunc fa_id:0x165, fu_st:0x3"},
			FaultID: "0x0165",
			Status:  3,
		}},
		Faults: []FaultSummary{{
			FaultID:    "0x0165",
			Statistics: stats.Record{FaultID: "0x0165", FirstOccurrence: &first, OccurrenceCount: 2, FinalStatus: &status},
			Guide:      &guide.Entry{Name: "Drive overcurrent", Severity: "OutOfService", Guidance: "Check wiring.\nReplace drive."},
		}},
	}

	text := RenderScanText(report)
	assert.Contains(t, text, "[1] line 7 fault 0x0165 fu_st=0x3")
	assert.Contains(t, text, "0x0165: 2 occurrence(s), first [20240401_100000], last N/A, final status 0x0")
	assert.Contains(t, text, "  Drive overcurrent (OutOfService)\n  Check wiring.\n  Replace drive.\n")
}
