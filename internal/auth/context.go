/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package auth

import "context"

type claimsKey struct{}

// WithClaims attaches JWT claims to the context.
func WithClaims(ctx context.Context, claims *Claims) context.Context {
	return context.WithValue(ctx, claimsKey{}, claims)
}

// ClaimsFromContext retrieves JWT claims from context if present.
func ClaimsFromContext(ctx context.Context) (*Claims, bool) {
	claims, ok := ctx.Value(claimsKey{}).(*Claims)
	return claims, ok && claims != nil
}

// Device names the remote behind a request for logs: the token's device ID,
// or "local" when the guard is disabled.
func Device(ctx context.Context) string {
	if claims, ok := ClaimsFromContext(ctx); ok && claims.DeviceID != "" {
		if claims.Room != "" {
			return claims.Room + "/" + claims.DeviceID
		}
		return claims.DeviceID
	}
	return "local"
}
