package identity

import (
	"strconv"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

var absoluteLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

// ResolveExpression resolves a time expression relative to now.
//
// Supported forms:
//
//	now, today, tomorrow, yesterday
//	24h, -720h, 1h30m            (Go durations)
//	+1 day, -30 days, 2 weeks ago, +1 week 2 hours
//	@1700000000                  (Unix seconds)
//	2024-01-02, 2024-01-02 15:04:05, RFC3339
func ResolveExpression(now time.Time, expr string) (time.Time, error) {
	s := strings.ToLower(strings.TrimSpace(expr))
	if s == "" {
		return time.Time{}, invalidExpression(expr, "empty expression")
	}

	switch s {
	case "now":
		return now, nil
	case "today", "midnight":
		return startOfDay(now), nil
	case "tomorrow":
		return startOfDay(now).AddDate(0, 0, 1), nil
	case "yesterday":
		return startOfDay(now).AddDate(0, 0, -1), nil
	}

	if strings.HasPrefix(s, "@") {
		sec, err := strconv.ParseInt(s[1:], 10, 64)
		if err != nil {
			return time.Time{}, invalidExpression(expr, "invalid unix timestamp")
		}
		return time.Unix(sec, 0).In(now.Location()), nil
	}

	if d, err := time.ParseDuration(s); err == nil {
		return now.Add(d), nil
	}

	for _, layout := range absoluteLayouts {
		if t, err := time.ParseInLocation(layout, strings.TrimSpace(expr), now.Location()); err == nil {
			return t, nil
		}
	}

	return resolveRelative(now, expr, s)
}

func resolveRelative(now time.Time, raw, s string) (time.Time, error) {
	fields := strings.Fields(s)
	negate := false
	if len(fields) > 0 && fields[len(fields)-1] == "ago" {
		negate = true
		fields = fields[:len(fields)-1]
	}

	if len(fields) == 0 {
		return time.Time{}, invalidExpression(raw, "missing amount")
	}

	result := now
	for i := 0; i < len(fields); i++ {
		amount, unit, consumed, err := readTerm(fields[i:])
		if err != nil {
			return time.Time{}, invalidExpression(raw, err.Error())
		}
		i += consumed - 1

		if negate {
			amount = -amount
		}

		result, err = applyUnit(result, amount, unit)
		if err != nil {
			return time.Time{}, invalidExpression(raw, err.Error())
		}
	}

	return result, nil
}

// readTerm reads "+1 day" or "+1day" from the head of fields
func readTerm(fields []string) (int, string, int, error) {
	head := fields[0]
	digits := strings.IndexFunc(strings.TrimLeft(head, "+-"), func(r rune) bool {
		return r < '0' || r > '9'
	})

	if digits > 0 {
		sign := len(head) - len(strings.TrimLeft(head, "+-"))
		amount, err := strconv.Atoi(head[:sign+digits])
		if err != nil {
			return 0, "", 0, err
		}
		return amount, head[sign+digits:], 1, nil
	}

	amount, err := strconv.Atoi(head)
	if err != nil {
		return 0, "", 0, goerrors.New("expected a number, got "+head, goerrors.CategoryBadInput)
	}

	if len(fields) < 2 {
		return 0, "", 0, goerrors.New("missing unit after "+head, goerrors.CategoryBadInput)
	}

	return amount, fields[1], 2, nil
}

func applyUnit(t time.Time, amount int, unit string) (time.Time, error) {
	switch strings.TrimSuffix(unit, "s") {
	case "sec", "second":
		return t.Add(time.Duration(amount) * time.Second), nil
	case "min", "minute":
		return t.Add(time.Duration(amount) * time.Minute), nil
	case "hour":
		return t.Add(time.Duration(amount) * time.Hour), nil
	case "day":
		return t.AddDate(0, 0, amount), nil
	case "week":
		return t.AddDate(0, 0, amount*7), nil
	case "fortnight":
		return t.AddDate(0, 0, amount*14), nil
	case "month":
		return t.AddDate(0, amount, 0), nil
	case "year":
		return t.AddDate(amount, 0, 0), nil
	}
	return time.Time{}, goerrors.New("unknown unit "+unit, goerrors.CategoryBadInput)
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

func invalidExpression(expr, reason string) error {
	return goerrors.New("invalid time expression: "+reason, goerrors.CategoryBadInput).
		WithTextCode(TextCodeInvalidExpression).
		WithCode(goerrors.CodeBadRequest).
		WithMetadata(map[string]any{"expression": expr})
}
