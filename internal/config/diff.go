package config

import (
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// DiffFromDefaults compares a config file against DefaultConfigTemplate line
// by line. Removed template lines are prefixed "- ", added lines "+ ".
// Unchanged lines are omitted; identical files yield nil.
func DiffFromDefaults(current string) []string {
	return diffLines(DefaultConfigTemplate(), current)
}

func diffLines(before, after string) []string {
	dmp := diffmatchpatch.New()
	a, b, lines := dmp.DiffLinesToChars(before, after)
	diffs := dmp.DiffCharsToLines(dmp.DiffMain(a, b, false), lines)

	var out []string
	for _, d := range diffs {
		prefix := ""
		switch d.Type {
		case diffmatchpatch.DiffDelete:
			prefix = "- "
		case diffmatchpatch.DiffInsert:
			prefix = "+ "
		default:
			continue
		}
		for line := range strings.Lines(d.Text) {
			out = append(out, prefix+strings.TrimRight(line, "\n"))
		}
	}
	return out
}
