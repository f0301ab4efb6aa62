// Package match reconciles provider-side identity records against internally
// held records with phonetic-aware string similarity. Pure domain logic.
package match

import (
	"strings"
)

// Thresholds below which a name comparison is not considered a match.
// Business names get a stricter bar: legal entities share more boilerplate
// vocabulary ("Inc", "Ltd") which inflates similarity.
const (
	individualThreshold = 0.70
	businessThreshold   = 0.80

	// minLengthRatio guards against trivially short provider names scoring
	// high against long stored names.
	minLengthRatio = 0.5
)

// Result carries both the numeric similarity and the verdict so callers can
// log near-misses.
type Result struct {
	Similarity float64
	Match      bool
}

// ProviderIdentity is the name/email surface the provider reports.
type ProviderIdentity struct {
	NameFirst     string
	NameLast      string
	BusinessName  string
	PersonalEmail string
}

// StoredIdentity is the internally held counterpart.
type StoredIdentity struct {
	FirstName    string
	LastName     string
	BusinessName string
	Email        string
}

// IsKYCMatch compares an individual. Email equality (case-insensitive) is a
// hard gate: without it no name similarity counts.
func IsKYCMatch(stored StoredIdentity, provider ProviderIdentity) Result {
	if !strings.EqualFold(strings.TrimSpace(stored.Email), strings.TrimSpace(provider.PersonalEmail)) {
		return Result{Similarity: 0, Match: false}
	}

	storedName := joinName(stored.FirstName, stored.LastName)
	providerName := joinName(provider.NameFirst, provider.NameLast)
	return compareNames(storedName, providerName, individualThreshold)
}

// IsKYBMatch compares a legal entity by business name. No email gate: the
// provider reports the point-of-contact email, not the entity's.
func IsKYBMatch(stored StoredIdentity, provider ProviderIdentity) Result {
	return compareNames(stored.BusinessName, provider.BusinessName, businessThreshold)
}

func compareNames(stored, provider string, threshold float64) Result {
	stored = strings.ToLower(strings.TrimSpace(stored))
	provider = strings.ToLower(strings.TrimSpace(provider))

	if stored == "" || provider == "" {
		return Result{Similarity: 0, Match: false}
	}

	similarity := JaroWinkler(stored, provider)
	if float64(len(provider)) < minLengthRatio*float64(len(stored)) {
		return Result{Similarity: similarity, Match: false}
	}
	return Result{Similarity: similarity, Match: similarity >= threshold}
}

func joinName(first, last string) string {
	return strings.TrimSpace(strings.TrimSpace(first) + " " + strings.TrimSpace(last))
}

// JaroWinkler computes the Jaro-Winkler similarity of two strings in [0,1].
// The Winkler prefix bonus rewards shared leading characters (up to 4) which
// suits person and business names where the head of the string carries the
// signal.
func JaroWinkler(a, b string) float64 {
	j := jaro(a, b)
	if j == 0 {
		return 0
	}

	prefix := 0
	for i := 0; i < len(a) && i < len(b) && i < 4; i++ {
		if a[i] != b[i] {
			break
		}
		prefix++
	}
	const scaling = 0.1
	return j + float64(prefix)*scaling*(1-j)
}

func jaro(a, b string) float64 {
	if a == b {
		return 1
	}
	la, lb := len(a), len(b)
	if la == 0 || lb == 0 {
		return 0
	}

	window := max(la, lb)/2 - 1
	if window < 0 {
		window = 0
	}

	aMatched := make([]bool, la)
	bMatched := make([]bool, lb)

	matches := 0
	for i := 0; i < la; i++ {
		lo := max(0, i-window)
		hi := min(lb-1, i+window)
		for k := lo; k <= hi; k++ {
			if bMatched[k] || a[i] != b[k] {
				continue
			}
			aMatched[i] = true
			bMatched[k] = true
			matches++
			break
		}
	}
	if matches == 0 {
		return 0
	}

	transpositions := 0
	k := 0
	for i := 0; i < la; i++ {
		if !aMatched[i] {
			continue
		}
		for !bMatched[k] {
			k++
		}
		if a[i] != b[k] {
			transpositions++
		}
		k++
	}
	t := float64(transpositions) / 2

	m := float64(matches)
	return (m/float64(la) + m/float64(lb) + (m-t)/m) / 3
}
