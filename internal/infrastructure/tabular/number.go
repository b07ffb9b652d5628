package tabular

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/turtacn/lsoma/pkg/errors"
)

// groupedRe matches integers with '.' thousands grouping: "1.234", "12.345.678".
var groupedRe = regexp.MustCompile(`^[+-]?\d{1,3}(\.\d{3})+$`)

// ParseSpanish parses census-style numbers.  A comma is the decimal mark and
// dots are grouping ("1.234,5" is 1234.5).  Without a comma, a dot is taken
// as grouping only when it splits the digits in groups of three ("1.234" is
// 1234, "40.5" is 40.5).  The INE placeholder "." reads as 0.
func ParseSpanish(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "." || s == ".." {
		return 0, nil
	}
	switch {
	case strings.Contains(s, ","):
		s = strings.ReplaceAll(s, ".", "")
		s = strings.Replace(s, ",", ".", 1)
	case groupedRe.MatchString(s):
		s = strings.ReplaceAll(s, ".", "")
	}
	return parseFloat(s)
}

// ParseDecimal parses an ungrouped number with either '.' or ',' as the
// decimal mark.
func ParseDecimal(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if strings.Count(s, ",") == 1 && !strings.Contains(s, ".") {
		s = strings.Replace(s, ",", ".", 1)
	}
	return parseFloat(s)
}

func parseFloat(s string) (float64, error) {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, errors.New(errors.ErrCodeIORead, "invalid number").WithDetailf("value=%q", s)
	}
	return v, nil
}

// FormatFloat renders v with '.' as the decimal mark and no exponent for
// ordinary magnitudes.
func FormatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// FormatFixed renders v with prec decimals.
func FormatFixed(v float64, prec int) string {
	return strconv.FormatFloat(v, 'f', prec, 64)
}
