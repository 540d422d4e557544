// Package collection implements the collection namer (C5): a pure,
// deterministic mapping (tenant, repository, branch) -> collection name,
// matching the bit-exact format of spec §6.2 so collections created by one
// process version remain addressable by another.
package collection

import (
	"crypto/sha256"
	"encoding/hex"
)

// Discipline selects how tenants are segregated. Both are legal per spec
// §4.1 ("implementations must choose one discipline per deployment and
// keep it consistent for the life of a collection"); deployments must not
// switch disciplines without a migration.
type Discipline int

const (
	// DisciplinePayload stores tenant_id in the point payload and relies on
	// query-side filtering; collection names carry no tenant component.
	DisciplinePayload Discipline = iota
	// DisciplinePrefix segregates tenants by collection name prefix.
	DisciplinePrefix
)

// Namer computes collection names for a fixed prefix and tenancy
// discipline. The zero value is ready to use with the default prefix
// "repo_" and DisciplinePayload.
type Namer struct {
	Prefix     string
	Discipline Discipline
}

// DefaultPrefix is used when Namer.Prefix is empty.
const DefaultPrefix = "repo_"

// New returns a Namer for the given prefix (DefaultPrefix if empty) and
// discipline.
func New(prefix string, d Discipline) Namer {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return Namer{Prefix: prefix, Discipline: d}
}

// Name computes the collection name for (tenant, repo, branch). branch=""
// selects the legacy, non-branch-aware naming scheme.
func (n Namer) Name(tenant, repo, branch string) string {
	prefix := n.Prefix
	if prefix == "" {
		prefix = DefaultPrefix
	}
	if n.Discipline == DisciplinePrefix && tenant != "" {
		prefix = prefix + tenant + "_"
	}
	if branch == "" {
		return prefix + repo
	}
	return prefix + repo + "_br_" + BranchHash(branch)
}

// BranchHash returns the first 16 hex characters (64 bits) of the
// SHA-256 digest of the UTF-8 branch name, per spec §6.2. 64 bits of
// digest keeps cross-branch collisions astronomically unlikely (spec
// §4.1's "≥ 64-bit digest" requirement).
func BranchHash(branch string) string {
	sum := sha256.Sum256([]byte(branch))
	return hex.EncodeToString(sum[:])[:16]
}
