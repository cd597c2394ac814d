package portal

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"portalkeys-go/internal/models"
)

func withFrozenNow(t *testing.T, frozen time.Time) {
	t.Helper()
	orig := timeNow
	timeNow = func() time.Time { return frozen }
	t.Cleanup(func() { timeNow = orig })
}

func TestNormalizeBareIdentifier(t *testing.T) {
	for _, raw := range []string{`"abc-123"`, `42`} {
		cred, ok := Normalize(gjson.Parse(raw))
		require.True(t, ok, "raw %s", raw)
		assert.NotEmpty(t, cred.ID)
		assert.Equal(t, 1, cred.Key1.Slot)
		assert.Equal(t, 2, cred.Key2.Slot)
		assert.False(t, cred.Key1.Exists)
		assert.False(t, cred.Key2.Exists)
		assert.True(t, cred.Created.Equal(time.Unix(0, 0)))
	}
}

func TestNormalizeWrapperUnwrap(t *testing.T) {
	for _, wrapper := range []string{"credential", "apiKey", "item", "developerCredential"} {
		raw := gjson.Parse(`{"` + wrapper + `":{"id":"inner-1","name":"wrapped"}}`)
		cred, ok := Normalize(raw)
		require.True(t, ok, "wrapper %s", wrapper)
		assert.Equal(t, "inner-1", cred.ID)
		assert.Equal(t, "wrapped", cred.Name)
	}
}

func TestNormalizeIdentityFallbackChain(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"id wins", `{"id":"a","credentialId":"b","name":"c"}`, "a"},
		{"credentialId next", `{"credentialId":"b","itemId":"c"}`, "b"},
		{"itemId next", `{"itemId":"c","clientId":"d"}`, "c"},
		{"clientId next", `{"clientId":"d","name":"e"}`, "d"},
		{"name next", `{"name":"e","title":"f"}`, "e"},
		{"title last", `{"title":"f"}`, "f"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cred, ok := Normalize(gjson.Parse(tt.raw))
			require.True(t, ok)
			assert.Equal(t, tt.want, cred.ID)
		})
	}
}

func TestNormalizeNoIdentityFails(t *testing.T) {
	_, ok := Normalize(gjson.Parse(`{"tags":["x"],"created":123}`))
	assert.False(t, ok)

	_, ok = Normalize(gjson.Parse(`{"id":""}`))
	assert.False(t, ok)

	_, ok = Normalize(gjson.Parse(`null`))
	assert.False(t, ok)
}

func TestNormalizeLegacyClassification(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want bool
	}{
		{"type exact", `{"id":"1","type":"API Key"}`, true},
		{"type case-insensitive", `{"id":"1","type":"api key"}`, true},
		{"keyword api key", `{"id":"1","typeKeywords":["Registered App","API Key"]}`, true},
		{"keyword with apitoken is modern", `{"id":"1","typeKeywords":["API Key","APIToken"]}`, false},
		{"plain modern", `{"id":"1","type":"Application"}`, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cred, ok := Normalize(gjson.Parse(tt.raw))
			require.True(t, ok)
			assert.Equal(t, tt.want, cred.IsLegacy)
		})
	}
}

func TestNormalizeLegacyForcesSentinelExpiration(t *testing.T) {
	// Any expiration-like field present must be ignored for legacy records.
	raw := gjson.Parse(`{"id":"1","type":"API Key","expiration":1735689600000,"expires":"2025-01-01T00:00:00Z"}`)
	cred, ok := Normalize(raw)
	require.True(t, ok)
	assert.True(t, cred.Expiration.Equal(models.NeverExpires), "got %s", cred.Expiration)
}

func TestNormalizeExpirationFallbacks(t *testing.T) {
	frozen := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	withFrozenNow(t, frozen)

	t.Run("explicit field", func(t *testing.T) {
		cred, ok := Normalize(gjson.Parse(`{"id":"1","expiration":1760000000000}`))
		require.True(t, ok)
		assert.Equal(t, time.UnixMilli(1760000000000).UTC(), cred.Expiration)
	})

	t.Run("minimum of slot expirations", func(t *testing.T) {
		cred, ok := Normalize(gjson.Parse(`{"id":"1","apiToken1ExpirationDate":1760000000000,"apiToken2ExpirationDate":1750000000000}`))
		require.True(t, ok)
		assert.Equal(t, time.UnixMilli(1750000000000).UTC(), cred.Expiration)
	})

	t.Run("defaults to now", func(t *testing.T) {
		cred, ok := Normalize(gjson.Parse(`{"id":"1"}`))
		require.True(t, ok)
		assert.True(t, cred.Expiration.Equal(frozen))
	})
}

func TestNormalizeCreatedFallbacks(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want time.Time
	}{
		{"created ms", `{"id":"1","created":1700000000000}`, time.UnixMilli(1700000000000).UTC()},
		{"createdAt iso", `{"id":"1","createdAt":"2024-05-01T10:00:00Z"}`, time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)},
		{"lastModified", `{"id":"1","lastModified":1700000000000}`, time.UnixMilli(1700000000000).UTC()},
		{"missing is epoch zero", `{"id":"1"}`, time.Unix(0, 0).UTC()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cred, ok := Normalize(gjson.Parse(tt.raw))
			require.True(t, ok)
			assert.True(t, cred.Created.Equal(tt.want), "got %s want %s", cred.Created, tt.want)
		})
	}
}

func TestNormalizeUnparseableDateBecomesNow(t *testing.T) {
	frozen := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	withFrozenNow(t, frozen)

	cred, ok := Normalize(gjson.Parse(`{"id":"1","created":"not a date"}`))
	require.True(t, ok)
	assert.True(t, cred.Created.Equal(frozen))
}

func TestNormalizeArrayAliases(t *testing.T) {
	cred, ok := Normalize(gjson.Parse(`{"id":"1","httpReferrers":["https://a.example","","https://b.example"]}`))
	require.True(t, ok)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cred.Referrers)

	cred, ok = Normalize(gjson.Parse(`{"id":"1","tags":["x"],"privileges":["premium:user"]}`))
	require.True(t, ok)
	assert.Equal(t, []string{"x"}, cred.Tags)
	assert.Equal(t, []string{"premium:user"}, cred.Privileges)

	cred, ok = Normalize(gjson.Parse(`{"id":"1"}`))
	require.True(t, ok)
	assert.NotNil(t, cred.Tags)
	assert.Empty(t, cred.Tags)
}

func TestNormalizeSlotSignals(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want bool
	}{
		{"explicit exists", `{"id":"1","key1Exists":true}`, true},
		{"explicit false short-circuits", `{"id":"1","key1Exists":false,"apiToken1Active":true}`, false},
		{"nested exists", `{"id":"1","key1":{"exists":true}}`, true},
		{"active flag", `{"id":"1","apiToken1Active":true}`, true},
		{"positive expiration implies existence", `{"id":"1","apiToken1ExpirationDate":1760000000000}`, true},
		{"negative expiration does not", `{"id":"1","apiToken1ExpirationDate":-1}`, false},
		{"no signal", `{"id":"1"}`, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cred, ok := Normalize(gjson.Parse(tt.raw))
			require.True(t, ok)
			assert.Equal(t, tt.want, cred.Key1.Exists)
			assert.Equal(t, 1, cred.Key1.Slot)
			assert.Equal(t, 2, cred.Key2.Slot)
		})
	}
}

func TestNormalizeSlotMetadata(t *testing.T) {
	raw := gjson.Parse(`{"id":"1","key2":{"exists":true,"partialId":"ab12","created":1700000000000}}`)
	cred, ok := Normalize(raw)
	require.True(t, ok)
	assert.True(t, cred.Key2.Exists)
	assert.Equal(t, "ab12", cred.Key2.PartialID)
	require.NotNil(t, cred.Key2.Created)
	assert.Equal(t, time.UnixMilli(1700000000000).UTC(), *cred.Key2.Created)
}
