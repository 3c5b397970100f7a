package domain

import "context"

type Service interface {
	// GetValue resolves key under scope. The second return is false when no
	// row matches.
	GetValue(ctx context.Context, key Key, scope Scope) (float64, bool, error)

	// MinValue resolves key under each scope and returns the minimum
	// resolved value, or def when no scope yields a configured value. A
	// lease mixing flavors gets the most restrictive limit.
	MinValue(ctx context.Context, key Key, scopes []Scope, def float64) (float64, error)
}
