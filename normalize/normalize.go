// Package normalize turns the free text scraped from listing pages into typed
// values. Every function is total: unparseable input yields nil, never an error.
package normalize

import (
	"math"
	"regexp"
	"strconv"
	"strings"

	"estate_scrooper/models"
)

var (
	nonDigitRegex  = regexp.MustCompile(`[^0-9]`)
	numberRegex    = regexp.MustCompile(`\d+`)
	roomsRegex     = regexp.MustCompile(`(?i)(\d+)\s*(?:\w+\s)?rooms?\b`)
	areaCityRegex  = regexp.MustCompile(`(?i)^(.+)\s+in\s+(.+)$`)
	conditionTable = map[string]models.Condition{
		"Good condition": models.ConditionGood,
		"New":            models.ConditionNew,
	}
)

// CleanInteger keeps only the decimal digits of s, so "1,234 DH" becomes 1234.
func CleanInteger(s string) *int {
	digits := nonDigitRegex.ReplaceAllString(s, "")
	if digits == "" {
		return nil
	}
	n, err := strconv.Atoi(digits)
	if err != nil {
		return nil
	}
	return &n
}

func CleanText(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

// CleanAge returns "min-max" when s mentions years and holds exactly two
// numbers. The numbers keep the order they appear in.
func CleanAge(s string) *string {
	if !strings.Contains(strings.ToLower(s), "years") {
		return nil
	}
	numbers := numberRegex.FindAllString(s, -1)
	if len(numbers) != 2 {
		return nil
	}
	lo, err := strconv.Atoi(numbers[0])
	if err != nil {
		return nil
	}
	hi, err := strconv.Atoi(numbers[1])
	if err != nil {
		return nil
	}
	age := strconv.Itoa(lo) + "-" + strconv.Itoa(hi)
	return &age
}

// CleanRooms finds a room count such as "3 rooms" or "2 bedroom" in free text.
func CleanRooms(s string) *int {
	m := roomsRegex.FindStringSubmatch(s)
	if m == nil {
		return nil
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return nil
	}
	return &n
}

// CleanCondition maps the site's condition phrases onto the Condition enum.
// "Due for reform" has no mapping and yields nil.
// TODO: map "Due for reform" to ConditionOld once the product owner confirms it.
func CleanCondition(s string) *models.Condition {
	c, ok := conditionTable[s]
	if !ok {
		return nil
	}
	return &c
}

// ParseAreaAndCity splits "Maarif in Casablanca" into area and city. Text
// without an "in" separator is taken to be the city alone.
func ParseAreaAndCity(s string) (area, city *string) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	if m := areaCityRegex.FindStringSubmatch(s); m != nil {
		return CleanText(m[1]), CleanText(m[2])
	}
	return nil, &s
}

// SafeInt coerces a numeric value to a non-negative int. Nil, NaN, infinities,
// negatives and non-numeric strings all come back as nil.
func SafeInt(v any) *int {
	switch n := v.(type) {
	case nil:
		return nil
	case int:
		return nonNegative(n)
	case *int:
		if n == nil {
			return nil
		}
		return nonNegative(*n)
	case int64:
		return nonNegative(int(n))
	case float64:
		return fromFloat(n)
	case *float64:
		if n == nil {
			return nil
		}
		return fromFloat(*n)
	case float32:
		return fromFloat(float64(n))
	case string:
		i, err := strconv.Atoi(strings.TrimSpace(n))
		if err != nil {
			return nil
		}
		return nonNegative(i)
	}
	return nil
}

func fromFloat(f float64) *int {
	if math.IsNaN(f) || math.IsInf(f, 0) || f >= math.MaxInt64 {
		return nil
	}
	return nonNegative(int(f))
}

func nonNegative(n int) *int {
	if n < 0 {
		return nil
	}
	return &n
}
