// Package sequence allocates human-readable document numbers.
package sequence

import (
	"context"
	"fmt"
	"strconv"
	"strings"
)

type Kind string

const (
	Invoice Kind = "invoice"
	Payment Kind = "payment"
)

const width = 6

var prefixes = map[Kind]string{
	Invoice: "INV",
	Payment: "PAY",
}

func (k Kind) Prefix() string {
	if p, ok := prefixes[k]; ok {
		return p
	}
	return strings.ToUpper(string(k))
}

// Counter hands out the next value of a per-kind counter. Implementations
// must make the increment atomic with respect to concurrent callers.
type Counter interface {
	NextSequence(ctx context.Context, kind string) (int64, error)
}

// Next allocates and formats the next number of kind.
func Next(ctx context.Context, c Counter, kind Kind) (string, error) {
	n, err := c.NextSequence(ctx, string(kind))
	if err != nil {
		return "", fmt.Errorf("next %s number: %w", kind, err)
	}
	return Format(kind, n), nil
}

// Format renders PREFIX-000042. Values wider than the pad are kept whole.
func Format(kind Kind, n int64) string {
	return fmt.Sprintf("%s-%0*d", kind.Prefix(), width, n)
}

// Parse is the inverse of Format.
func Parse(number string) (Kind, int64, error) {
	prefix, digits, ok := strings.Cut(number, "-")
	if !ok || prefix == "" || digits == "" {
		return "", 0, fmt.Errorf("malformed document number %q", number)
	}
	n, err := strconv.ParseInt(digits, 10, 64)
	if err != nil || n < 0 {
		return "", 0, fmt.Errorf("malformed document number %q", number)
	}
	for k, p := range prefixes {
		if p == prefix {
			return k, n, nil
		}
	}
	return Kind(strings.ToLower(prefix)), n, nil
}
