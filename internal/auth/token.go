// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package auth

import (
	"encoding/base64"
	"encoding/json"
	"strings"
	"time"
)

// OfflineToken is the sentinel access token issued by operators for
// terminals provisioned without a reachable authentication endpoint.
// It never expires and is exempt from deadline checks.
const OfflineToken = "offline-token"

// tokenClaims is the subset of the access token payload we read.
// Field shape follows the endpoint's JWT claims.
type tokenClaims struct {
	Exp int64 `json:"exp"` // seconds since epoch
}

// TokenDeadline derives the expiry instant of an access token by
// decoding its payload segment, without verifying the signature.
// Validation is the remote endpoint's job, this is only bookkeeping for
// the session monitor.
//
// Absent, malformed, or sentinel tokens yield ok=false, meaning "no
// deadline": an unparsable token never forces a logout by itself.
func TokenDeadline(token string) (time.Time, bool) {
	if token == "" || token == OfflineToken {
		return time.Time{}, false
	}

	parts := strings.Split(token, ".")
	if len(parts) < 2 {
		return time.Time{}, false
	}

	payload, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(parts[1], "="))
	if err != nil {
		return time.Time{}, false
	}

	var claims tokenClaims
	if err := json.Unmarshal(payload, &claims); err != nil {
		return time.Time{}, false
	}
	if claims.Exp <= 0 {
		return time.Time{}, false
	}

	return time.UnixMilli(claims.Exp * 1000), true
}
