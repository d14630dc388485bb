package textnorm

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/araddon/dateparse"
	"golang.org/x/text/unicode/norm"
)

var monthNumbers = map[string]int{
	"january": 1, "february": 2, "march": 3, "april": 4, "may": 5, "june": 6,
	"july": 7, "august": 8, "september": 9, "october": 10, "november": 11, "december": 12,
	"jan": 1, "feb": 2, "mar": 3, "apr": 4, "jun": 6, "jul": 7, "aug": 8,
	"sep": 9, "sept": 9, "oct": 10, "nov": 11, "dec": 12,
}

var (
	bracketed    = regexp.MustCompile(`\[[^\]]*\]`)
	isoDate      = regexp.MustCompile(`(\d{4})-(\d{2})-(\d{2})`)
	ymdSlash     = regexp.MustCompile(`(\d{4})/(\d{1,2})/(\d{1,2})`)
	monthDayYear = regexp.MustCompile(`([A-Za-z]+)\s+(\d{1,2}),?\s+(\d{4})`)
	dayMonthYear = regexp.MustCompile(`(\d{1,2})\s+([A-Za-z]+)\s+(\d{4})`)
	dayFirst     = regexp.MustCompile(`(\d{1,2})[-/](\d{1,2})[-/](\d{4})`)
)

// MonthNumber maps an English month name or abbreviation to 1-12.
func MonthNumber(name string) (int, bool) {
	n, ok := monthNumbers[strings.ToLower(name)]
	return n, ok
}

// NormalizeToYMD converts a free-text date into YYYY-MM-DD. Formats are tried
// in a fixed order; numeric dates without a leading year are read day-first.
func NormalizeToYMD(text string) (string, bool) {
	s := strings.TrimSpace(bracketed.ReplaceAllString(norm.NFKC.String(text), ""))
	if s == "" {
		return "", false
	}

	if m := isoDate.FindStringSubmatch(s); m != nil {
		return m[1] + "-" + m[2] + "-" + m[3], true
	}

	if m := ymdSlash.FindStringSubmatch(s); m != nil {
		return m[1] + "-" + pad2(m[2]) + "-" + pad2(m[3]), true
	}

	if m := monthDayYear.FindStringSubmatch(s); m != nil {
		if month, ok := MonthNumber(m[1]); ok {
			return fmt.Sprintf("%s-%02d-%s", m[3], month, pad2(m[2])), true
		}
	}

	if m := dayMonthYear.FindStringSubmatch(s); m != nil {
		if month, ok := MonthNumber(m[2]); ok {
			return fmt.Sprintf("%s-%02d-%s", m[3], month, pad2(m[1])), true
		}
	}

	if m := dayFirst.FindStringSubmatch(s); m != nil {
		return m[3] + "-" + pad2(m[2]) + "-" + pad2(m[1]), true
	}

	t, err := dateparse.ParseIn(s, time.UTC)
	if err != nil {
		return "", false
	}
	return t.UTC().Format("2006-01-02"), true
}

func pad2(s string) string {
	if n, err := strconv.Atoi(s); err == nil {
		return fmt.Sprintf("%02d", n)
	}
	return s
}
