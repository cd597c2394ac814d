package models

import "time"

// NeverExpires is the sentinel expiration assigned to legacy credentials.
// Legacy records carry no reliable per-key expiration, so they are treated
// as non-expiring.
var NeverExpires = time.Date(9999, 12, 31, 0, 0, 0, 0, time.UTC)

// KeySlot describes one of the two independent key positions a modern
// credential may hold. When Exists is false, PartialID and Created are
// informational only and may be absent.
type KeySlot struct {
	Slot      int        `json:"slot"`
	Exists    bool       `json:"exists"`
	PartialID string     `json:"partialId,omitempty"`
	Created   *time.Time `json:"created,omitempty"`
}

// Credential is the canonical representation of one API-key-bearing asset,
// independent of which backend shape it was parsed from. Instances are
// constructed fresh on every normalization and never mutated afterwards.
type Credential struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Tags       []string  `json:"tags"`
	Privileges []string  `json:"privileges"`
	Created    time.Time `json:"created"`
	Expiration time.Time `json:"expiration"`
	Referrers  []string  `json:"referrers"`
	Key1       KeySlot   `json:"key1"`
	Key2       KeySlot   `json:"key2"`
	IsLegacy   bool      `json:"isLegacy"`
}

// MutationResult reports the outcome of a key mutation.
type MutationResult struct {
	ID     string `json:"id"`
	Slot   int    `json:"slot"`
	Action string `json:"action"`
	Key    string `json:"key"`
}

// Capabilities reports which operations a deployment supports. Reason is a
// human-readable explanation for any capability reported false.
type Capabilities struct {
	List          bool   `json:"list"`
	Detail        bool   `json:"detail"`
	CreateKey     bool   `json:"createKey"`
	RegenerateKey bool   `json:"regenerateKey"`
	Reason        string `json:"reason,omitempty"`
}

// AllCapabilities returns a Capabilities value with everything enabled.
func AllCapabilities() Capabilities {
	return Capabilities{List: true, Detail: true, CreateKey: true, RegenerateKey: true}
}
