package datanorm

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/huffhealth/crm/internal/domain"
	"github.com/xuri/excelize/v2"
)

// Vocabulary holds the accepted values of the enumerated lead fields.
type Vocabulary struct {
	InsuranceTypes map[string]domain.InsuranceType
	PolicyStatuses map[string]domain.PolicyStatus
}

// DefaultVocabulary builds the vocabulary from the domain enums.
func DefaultVocabulary() Vocabulary {
	v := Vocabulary{
		InsuranceTypes: make(map[string]domain.InsuranceType, len(domain.InsuranceTypes)),
		PolicyStatuses: make(map[string]domain.PolicyStatus, len(domain.PolicyStatuses)),
	}
	for _, t := range domain.InsuranceTypes {
		v.InsuranceTypes[string(t)] = t
	}
	for _, s := range domain.PolicyStatuses {
		v.PolicyStatuses[string(s)] = s
	}
	return v
}

var enumSeparators = regexp.MustCompile(`[\s/]+`)

// EnumKey uppercases a raw enum value and collapses runs of whitespace and
// slashes into a single underscore: "Medicare / advantage" -> "MEDICARE_ADVANTAGE".
func EnumKey(raw string) string {
	return enumSeparators.ReplaceAllString(strings.ToUpper(strings.TrimSpace(raw)), "_")
}

// InsuranceType resolves a raw value; ok is false when it is not in the
// vocabulary.
func (v Vocabulary) InsuranceType(raw string) (domain.InsuranceType, bool) {
	t, ok := v.InsuranceTypes[EnumKey(raw)]
	return t, ok
}

// PolicyStatus resolves a raw value; ok is false when it is not in the
// vocabulary.
func (v Vocabulary) PolicyStatus(raw string) (domain.PolicyStatus, bool) {
	s, ok := v.PolicyStatuses[EnumKey(raw)]
	return s, ok
}

var dateLayouts = []string{
	time.RFC3339,
	time.RFC3339Nano,
	"2006-01-02",
	"2006-1-2",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
	"2006/1/2",
	"1/2/2006",
	"1-2-2006",
	"1.2.2006",
	"1/2/06",
	"1-2-06",
	"1/2/2006 15:04",
	"1/2/2006 15:04:05",
	"1/2/2006 3:04 PM",
	"Jan 2, 2006",
	"Jan 2 2006",
	"January 2, 2006",
	"January 2 2006",
	"2 Jan 2006",
	"2 January 2006",
	"02-Jan-2006",
	"2-Jan-06",
	"Mon, Jan 2, 2006",
}

// Spreadsheet serial numbers in this range cover 1954 through 2119.
const (
	minSerialDate = 20000
	maxSerialDate = 80000
)

// ParseDate parses loosely formatted calendar dates. Impossible dates such
// as 2/30/2024 fail. Bare integers in the spreadsheet serial range are
// treated as spreadsheet dates.
func ParseDate(raw string) (time.Time, bool) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	if n, err := strconv.ParseFloat(s, 64); err == nil && n >= minSerialDate && n <= maxSerialDate {
		if t, err := excelize.ExcelDateToTime(n, false); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

// SplitFullName splits on whitespace: the first token is the first name and
// the remaining tokens, joined by one space, are the last name.
func SplitFullName(full string) (first, last string) {
	parts := strings.Fields(full)
	if len(parts) == 0 {
		return "", ""
	}
	return parts[0], strings.Join(parts[1:], " ")
}
