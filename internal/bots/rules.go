package bots

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/nextlevelbuilder/messenger/internal/messenger"
)

// Rules maps payload fields to pipe separated constraints, for example
// "required|string|max:255". A field named "items.*" constrains every
// element of the "items" array.
//
// Supported constraints: required, nullable, string, boolean, integer,
// numeric, array, min:N, max:N and in:a,b,c.
type Rules map[string]string

// Validate checks payload against rules. Custom messages are keyed by
// "field.constraint" (e.g. "replies.*.max"). It returns nil when payload
// satisfies every rule.
func (r Rules) Validate(payload map[string]any, messages map[string]string) *messenger.ValidationError {
	verr := &messenger.ValidationError{}
	fields := make([]string, 0, len(r))
	for f := range r {
		fields = append(fields, f)
	}
	sort.Strings(fields)

	for _, field := range fields {
		constraints := strings.Split(r[field], "|")
		if parent, ok := strings.CutSuffix(field, ".*"); ok {
			items, _ := payload[parent].([]any)
			for i, item := range items {
				name := parent + "." + strconv.Itoa(i)
				if msg, failed := check(name, field, item, true, constraints, messages); failed {
					verr.Add(name, msg)
				}
			}
			continue
		}
		value, present := payload[field]
		if msg, failed := check(field, field, value, present, constraints, messages); failed {
			verr.Add(field, msg)
		}
	}
	if verr.Empty() {
		return nil
	}
	return verr
}

// check returns the first failing constraint's message.
func check(name, ruleKey string, value any, present bool, constraints []string, messages map[string]string) (string, bool) {
	nullable := false
	for _, c := range constraints {
		if c == "nullable" {
			nullable = true
		}
	}
	if !present || value == nil || value == "" {
		for _, c := range constraints {
			if c == "required" {
				return message(messages, ruleKey, "required", fmt.Sprintf("The %s field is required.", name)), true
			}
		}
		if !present || value == nil || nullable {
			return "", false
		}
	}

	for _, c := range constraints {
		rule, arg, _ := strings.Cut(c, ":")
		var ok bool
		var def string
		switch rule {
		case "required", "nullable", "":
			continue
		case "string":
			_, ok = value.(string)
			def = fmt.Sprintf("The %s must be a string.", name)
		case "boolean":
			_, ok = value.(bool)
			def = fmt.Sprintf("The %s field must be true or false.", name)
		case "integer":
			n, isNum := number(value)
			ok = isNum && n == math.Trunc(n)
			def = fmt.Sprintf("The %s must be an integer.", name)
		case "numeric":
			_, ok = number(value)
			def = fmt.Sprintf("The %s must be a number.", name)
		case "array":
			_, ok = value.([]any)
			def = fmt.Sprintf("The %s must be an array.", name)
		case "min", "max":
			limit, err := strconv.ParseFloat(arg, 64)
			if err != nil {
				continue
			}
			size, unit := measure(value)
			if rule == "min" {
				ok = size >= limit
				def = fmt.Sprintf("The %s must be at least %s%s.", name, arg, unit)
			} else {
				ok = size <= limit
				def = fmt.Sprintf("The %s must not be greater than %s%s.", name, arg, unit)
			}
		case "in":
			allowed := strings.Split(arg, ",")
			s := fmt.Sprint(value)
			for _, a := range allowed {
				if a == s {
					ok = true
				}
			}
			def = fmt.Sprintf("The selected %s is invalid.", name)
		default:
			continue
		}
		if !ok {
			return message(messages, ruleKey, rule, def), true
		}
	}
	return "", false
}

func message(messages map[string]string, field, rule, def string) string {
	if m, ok := messages[field+"."+rule]; ok {
		return m
	}
	return def
}

func number(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

// measure returns the size used by min/max: characters for strings,
// length for arrays, the value for numbers.
func measure(v any) (float64, string) {
	switch x := v.(type) {
	case string:
		return float64(utf8.RuneCountInString(x)), " characters"
	case []any:
		return float64(len(x)), " items"
	}
	n, _ := number(v)
	return n, ""
}
