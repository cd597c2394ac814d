package portal

import (
	"fmt"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"portalkeys-go/internal/models"
)

// timeNow is swapped in tests.
var timeNow = time.Now

// epochZero is the created fallback for records that carry no creation date.
var epochZero = time.Unix(0, 0).UTC()

// Each logical attribute is resolved through an ordered list of candidate
// field names; the first present value wins. The lists cover every backend
// shape observed across product tiers and API generations.
var (
	wrapperKeys    = []string{"credential", "apiKey", "item", "developerCredential"}
	idFields       = []string{"id", "credentialId", "itemId", "clientId", "name", "title"}
	createdFields  = []string{"created", "createdAt", "creationDate", "lastModified"}
	expiresFields  = []string{"expiration", "expires", "expiresAt", "expiry"}
	tagFields      = []string{"tags", "itemTags"}
	privFields     = []string{"privileges", "appPrivileges", "scopes"}
	referrerFields = []string{"referrers", "httpReferrers", "allowedReferrers", "referers"}
)

// Normalize converts any of the backend's heterogeneous JSON shapes into the
// canonical Credential record. The second return value is false when no
// identity could be resolved; the caller must skip such records. Normalize
// never fails on malformed field values, it degrades them instead.
func Normalize(raw gjson.Result) (models.Credential, bool) {
	if raw.Type == gjson.String || raw.Type == gjson.Number {
		// Some endpoints return identifier lists instead of objects.
		id := strings.TrimSpace(raw.String())
		if id == "" {
			return models.Credential{}, false
		}
		return minimalCredential(id), true
	}
	if !raw.IsObject() {
		return models.Credential{}, false
	}

	// Backends sometimes nest the real record one level down.
	for _, key := range wrapperKeys {
		if inner := raw.Get(key); inner.IsObject() {
			raw = inner
			break
		}
	}

	id := firstString(raw, idFields...)
	if id == "" {
		return models.Credential{}, false
	}

	legacy := isLegacy(raw)

	created, ok := firstTime(raw, createdFields...)
	if !ok {
		created = epochZero
	}

	var expiration time.Time
	switch {
	case legacy:
		// Legacy records have no reliable per-key expiration.
		expiration = models.NeverExpires
	default:
		if t, ok := firstTime(raw, expiresFields...); ok {
			expiration = t
		} else if t, ok := minSlotExpiration(raw); ok {
			// The overall exposure window is bounded by the
			// soonest-expiring key.
			expiration = t
		} else {
			expiration = timeNow().UTC()
		}
	}

	return models.Credential{
		ID:         id,
		Name:       firstString(raw, "name", "title"),
		Tags:       firstStringSlice(raw, tagFields...),
		Privileges: firstStringSlice(raw, privFields...),
		Created:    created,
		Expiration: expiration,
		Referrers:  firstStringSlice(raw, referrerFields...),
		Key1:       normalizeSlot(raw, 1),
		Key2:       normalizeSlot(raw, 2),
		IsLegacy:   legacy,
	}, true
}

func minimalCredential(id string) models.Credential {
	return models.Credential{
		ID:         id,
		Tags:       []string{},
		Privileges: []string{},
		Referrers:  []string{},
		Created:    epochZero,
		Expiration: epochZero,
		Key1:       models.KeySlot{Slot: 1},
		Key2:       models.KeySlot{Slot: 2},
	}
}

// isLegacy classifies older-generation single-key credentials. A record is
// legacy when its type equals "API Key" or its keyword list mentions
// "api key" without the modern "apitoken" marker.
func isLegacy(raw gjson.Result) bool {
	if strings.EqualFold(strings.TrimSpace(raw.Get("type").String()), "API Key") {
		return true
	}
	keywords := firstStringSlice(raw, "typeKeywords", "keywords")
	hasAPIKey, hasAPIToken := false, false
	for _, kw := range keywords {
		switch strings.ToLower(kw) {
		case "api key":
			hasAPIKey = true
		case "apitoken":
			hasAPIToken = true
		}
	}
	return hasAPIKey && !hasAPIToken
}

// normalizeSlot resolves slot existence through an ordered chain of signals:
// an explicit keyNExists boolean, a nested keyN.exists boolean, a nested
// apiTokenNActive boolean, then the presence of a positive expiration date.
// The last signal conflates "has an expiration on record" with "key exists"
// and may misreport a revoked-but-not-cleared key; kept for compatibility
// with the backend's observed behavior.
func normalizeSlot(raw gjson.Result, n int) models.KeySlot {
	slot := models.KeySlot{Slot: n}

	if v := raw.Get(fmt.Sprintf("key%dExists", n)); isBool(v) {
		slot.Exists = v.Bool()
	} else if v := raw.Get(fmt.Sprintf("key%d.exists", n)); isBool(v) {
		slot.Exists = v.Bool()
	} else if v := raw.Get(fmt.Sprintf("apiToken%dActive", n)); isBool(v) {
		slot.Exists = v.Bool()
	} else if v := raw.Get(fmt.Sprintf("apiToken%dExpirationDate", n)); v.Type == gjson.Number && v.Float() > 0 {
		slot.Exists = true
	}

	slot.PartialID = firstString(raw, fmt.Sprintf("key%d.partialId", n), fmt.Sprintf("partialApiKey%d", n))
	if t, ok := coerceTime(raw.Get(fmt.Sprintf("key%d.created", n))); ok {
		slot.Created = &t
	} else if t, ok := coerceTime(raw.Get(fmt.Sprintf("apiToken%dCreated", n))); ok {
		slot.Created = &t
	}
	return slot
}

func minSlotExpiration(raw gjson.Result) (time.Time, bool) {
	var min time.Time
	found := false
	for _, n := range []int{1, 2} {
		v := raw.Get(fmt.Sprintf("apiToken%dExpirationDate", n))
		if v.Type == gjson.Number && v.Float() <= 0 {
			continue
		}
		if t, ok := coerceTime(v); ok {
			if !found || t.Before(min) {
				min = t
			}
			found = true
		}
	}
	return min, found
}

func isBool(v gjson.Result) bool {
	return v.Type == gjson.True || v.Type == gjson.False
}

// firstString returns the first non-empty string (or numeric) value among
// the candidate fields.
func firstString(raw gjson.Result, fields ...string) string {
	for _, f := range fields {
		v := raw.Get(f)
		if v.Type == gjson.String || v.Type == gjson.Number {
			if s := strings.TrimSpace(v.String()); s != "" {
				return s
			}
		}
	}
	return ""
}

// firstStringSlice returns the first array-of-strings value among the
// candidate fields, with empty entries trimmed away. Unresolved fields
// yield an empty (non-nil) slice.
func firstStringSlice(raw gjson.Result, fields ...string) []string {
	for _, f := range fields {
		v := raw.Get(f)
		if !v.IsArray() {
			continue
		}
		out := make([]string, 0, len(v.Array()))
		for _, e := range v.Array() {
			if s := strings.TrimSpace(e.String()); s != "" {
				out = append(out, s)
			}
		}
		return out
	}
	return []string{}
}

// firstTime resolves the first date-like candidate field.
func firstTime(raw gjson.Result, fields ...string) (time.Time, bool) {
	for _, f := range fields {
		if t, ok := coerceTime(raw.Get(f)); ok {
			return t, true
		}
	}
	return time.Time{}, false
}

// coerceTime accepts epoch milliseconds or ISO-8601 strings. Present but
// unparseable values resolve to "now" rather than failing the record.
func coerceTime(v gjson.Result) (time.Time, bool) {
	switch v.Type {
	case gjson.Number:
		ms := v.Int()
		if ms <= 0 {
			return time.Time{}, false
		}
		return time.UnixMilli(ms).UTC(), true
	case gjson.String:
		s := strings.TrimSpace(v.String())
		if s == "" {
			return time.Time{}, false
		}
		for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05", "2006-01-02"} {
			if t, err := time.Parse(layout, s); err == nil {
				return t.UTC(), true
			}
		}
		return timeNow().UTC(), true
	}
	return time.Time{}, false
}
