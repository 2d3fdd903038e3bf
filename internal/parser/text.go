package parser

import (
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/shopspring/decimal"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/imrishuroy/go-mailorder-bridge/internal/orders"
)

// StripDiacritics decomposes s and drops every combining mark, so
// "mâncare prăjită" becomes "mancare prajita".
func StripDiacritics(s string) string {
	if s == "" {
		return s
	}
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}

// collapseSpace trims s and folds every whitespace run into one space.
func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

var (
	moneyRe   = regexp.MustCompile(`\d+\.\d{2}`)
	integerRe = regexp.MustCompile(`\d+`)
)

// normalizeMoney re-renders a matched amount with exactly two decimals.
func normalizeMoney(tok string) string {
	d, err := decimal.NewFromString(tok)
	if err != nil {
		return tok
	}
	return d.StringFixed(2)
}

func firstMoney(s string) (string, bool) {
	tok := moneyRe.FindString(s)
	if tok == "" {
		return "", false
	}
	return normalizeMoney(tok), true
}

func lastMoney(s string) (string, bool) {
	all := moneyRe.FindAllString(s, -1)
	if len(all) == 0 {
		return "", false
	}
	return normalizeMoney(all[len(all)-1]), true
}

func firstInt(s string) int {
	tok := integerRe.FindString(s)
	if tok == "" {
		return 0
	}
	n, err := strconv.Atoi(tok)
	if err != nil {
		return 0
	}
	return n
}

var (
	weekdayRe = regexp.MustCompile(`(?i)^[a-zăâîșțşţ]+\.,?\s*`)
	dateRe    = regexp.MustCompile(`(?i)(\d{1,2})\s+([a-zăâîșțşţ]+\.?)\s+(\d{4})(?:\s+la)?\s+(\d{1,2}):(\d{2})`)
)

var monthAbbrev = map[string]time.Month{
	"ian":  time.January,
	"feb":  time.February,
	"mar":  time.March,
	"apr":  time.April,
	"mai":  time.May,
	"iun":  time.June,
	"iul":  time.July,
	"aug":  time.August,
	"sep":  time.September,
	"sept": time.September,
	"oct":  time.October,
	"nov":  time.November,
	"dec":  time.December,
}

// ParseLocalizedDate turns a Romanian mail client date such as
// "sâm., 1 nov. 2025 la 18:05" into "2025-11-01 18:05:00".
func ParseLocalizedDate(s string) (string, bool) {
	clean := weekdayRe.ReplaceAllString(strings.TrimSpace(s), "")
	m := dateRe.FindStringSubmatch(clean)
	if m == nil {
		return "", false
	}
	day, _ := strconv.Atoi(m[1])
	year, _ := strconv.Atoi(m[3])
	hour, _ := strconv.Atoi(m[4])
	minute, _ := strconv.Atoi(m[5])

	month, ok := monthAbbrev[strings.TrimSuffix(strings.ToLower(m[2]), ".")]
	if !ok {
		return "", false
	}
	if hour > 23 || minute > 59 {
		return "", false
	}
	t := time.Date(year, month, day, hour, minute, 0, 0, time.UTC)
	if t.Day() != day || t.Month() != month {
		return "", false
	}
	return t.Format(orders.TimestampLayout), true
}
