package filesystem

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMatchesPatterns(t *testing.T) {
	cases := []struct {
		path     string
		patterns []string
		want     bool
	}{
		// Globs match the whole path; * crosses separators.
		{"/home/user/file.sys", []string{"*.sys"}, true},
		{"/home/user/file.sys", []string{"/home/*.sys"}, true},
		{"/home/user/file.sys", []string{"/home/user/*.sys"}, true},
		{"/home/user/file.sys", []string{"*.txt"}, false},
		{"/var/log/syslog.log", []string{"*.log"}, true},
		{"/var/log/syslog.log", []string{"syslog.log"}, false},
		{"/var/log/syslog.log", []string{"*syslog.log"}, true},
		{"/var/log/syslog.log", []string{"/var/log/syslog.log"}, true},
		{"/var/log/syslog.log", []string{"*.txt"}, false},
		{"/data/report.pdf", []string{"*.PDF"}, true},
		{"/data/report.pdf", []string{"report.*"}, false},
		{"/data/report.pdsss", []string{"*report.*"}, true},
		{"/data/report/pdsss", []string{"*report*"}, true},
		{"/data/archive.tar.gz", []string{"*.tar.gz"}, true},
		{"/data/archive.tar.gz", []string{"*"}, true},
		// Regular expressions are anchored at the start of the path.
		{"/var/log/syslog.log", []string{`^/var/log/.*\.log$`}, true},
		{"/var/log/syslog.log", []string{`^/var/log/[^/]+\.txt$`}, false},
		{"/data/reports/20230801.pdf", []string{`^/data/reports/\d{8}\.pdf$`}, true},
		{"/data/reports/summary.pdf", []string{`^/data/reports/\d{8}\.pdf$`}, false},
		{"/backup/daily/logs.tar.gz", []string{`^/backup/(?:daily|weekly)/.*`}, true},
		{"/backup/monthly/logs.tar.gz", []string{`^/backup/(?:daily|weekly)/.*`}, false},
		{"/home/user/docs/resume_en.docx", []string{`^/home/user/docs/\w+_(en|it)\.docx$`}, true},
		{"/home/user/docs/resume_fr.docx", []string{`^/home/user/docs/\w+_(en|it)\.docx$`}, false},
		// First matching pattern wins.
		{"/data/report.pdf", []string{"*.txt", "*.pdf"}, true},
	}

	for _, tc := range cases {
		got := MatchesPatterns(tc.path, tc.patterns)
		assert.Equal(t, tc.want, got, "path %q patterns %v", tc.path, tc.patterns)
	}
}

func TestMatchesPatternsEmptyList(t *testing.T) {
	assert.True(t, MatchesPatterns("/any/path", nil))
	assert.True(t, MatchesPatterns("/any/path", []string{}))
}

func TestMatchesPatternsInvalidRegexSkipped(t *testing.T) {
	// Not a glob hit and broken as a regex, so no match.
	assert.False(t, MatchesPatterns("/data/file.txt", []string{"([unclosed"}))
	// A later valid pattern still matches.
	assert.True(t, MatchesPatterns("/data/file.txt", []string{"([unclosed", "*.txt"}))
}
