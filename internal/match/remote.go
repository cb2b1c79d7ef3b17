package match

import (
	"path"
	"strconv"
	"strings"
	"unicode"
)

// RemoteFilter is a shell pipeline that prints "<line>:<content>" for the
// lines of one remote file that may satisfy a predicate.
type RemoteFilter struct {
	Command string
	// Exact is true when the pipeline accepts exactly the lines the
	// predicate accepts, so its output may be cut short with head.
	Exact bool
}

// ShellQuote quotes s for a POSIX shell using single quotes.
func ShellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

// ReaderCommand returns the command that writes the decompressed contents of
// file to stdout, chosen by extension.
func ReaderCommand(file string) string {
	q := ShellQuote(file)
	switch strings.ToLower(path.Ext(file)) {
	case ".gz":
		return "zcat -f -- " + q
	case ".zst":
		return "zstd -dc -- " + q
	case ".lz4":
		return "lz4 -dc -- " + q
	default:
		return "cat -- " + q
	}
}

// IsCompressed reports whether file is read through a decompressor.
func IsCompressed(file string) bool {
	switch strings.ToLower(path.Ext(file)) {
	case ".gz", ".zst", ".lz4":
		return true
	}
	return false
}

// BuildRemoteFilter builds the grep pipeline for p over file. OR becomes one
// alternation; AND becomes a chain of filters. When limit is positive and the
// pipeline is exact, the output stops after limit lines.
func BuildRemoteFilter(file string, p *Predicate, limit int) RemoteFilter {
	flags := "-F"
	if p.Fuzzy() {
		flags += " -i"
	}

	kws := p.Keywords()
	var b strings.Builder

	if IsCompressed(file) {
		b.WriteString(ReaderCommand(file))
		b.WriteString(" | ")
	}

	b.WriteString("grep -a -n ")
	b.WriteString(flags)
	if p.Logic() == LogicOR {
		for _, kw := range kws {
			b.WriteString(" -e ")
			b.WriteString(ShellQuote(kw))
		}
	} else if len(kws) > 0 {
		b.WriteString(" -e ")
		b.WriteString(ShellQuote(kws[0]))
	}
	if !IsCompressed(file) {
		b.WriteString(" -- ")
		b.WriteString(ShellQuote(file))
	}

	if p.Logic() == LogicAND {
		for _, kw := range kws[min(1, len(kws)):] {
			b.WriteString(" | grep ")
			b.WriteString(flags)
			b.WriteString(" -e ")
			b.WriteString(ShellQuote(kw))
		}
	}

	exact := exactSafe(p)
	if exact && limit > 0 {
		b.WriteString(" | head -n ")
		b.WriteString(strconv.Itoa(limit))
	}

	return RemoteFilter{Command: b.String(), Exact: exact}
}

// exactSafe reports whether grep and the predicate agree on every line.
// Non-ASCII keywords may fold differently under the remote locale. In an AND
// chain every grep after the first sees the "N:" prefix added by grep -n, so
// a keyword containing a colon, or made only of digits, can match across or
// inside that prefix.
func exactSafe(p *Predicate) bool {
	chained := p.Logic() == LogicAND && len(p.Keywords()) > 1
	for _, kw := range p.Keywords() {
		digitsOnly := true
		for _, r := range kw {
			if r > unicode.MaxASCII || r == '\n' {
				return false
			}
			if r < '0' || r > '9' {
				digitsOnly = false
			}
		}
		if chained && (digitsOnly || strings.Contains(kw, ":")) {
			return false
		}
	}
	return true
}

// ParseGrepLine splits a "<line>:<content>" line produced by grep -n or by
// awk printing NR":"$0.
func ParseGrepLine(s string) (int, string, bool) {
	i := strings.IndexByte(s, ':')
	if i <= 0 {
		return 0, "", false
	}
	n, err := strconv.Atoi(s[:i])
	if err != nil || n <= 0 {
		return 0, "", false
	}
	return n, strings.TrimSuffix(s[i+1:], "\r"), true
}
