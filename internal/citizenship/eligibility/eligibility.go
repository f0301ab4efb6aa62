// Package eligibility evaluates whether a subject qualifies for citizenship.
// Rules are pure functions over pre-assembled signals: evaluation never
// performs I/O and never errors, it only explains itself.
package eligibility

import (
	"op-atlas/internal/citizenship/models"
	id "op-atlas/pkg/domain"
)

const (
	// passportThreshold is the minimum proof-of-personhood score accepted in
	// place of a WorldID verification.
	passportThreshold = 20.0
	// contributionThreshold is the minimum externally computed contribution
	// share for organization and project subjects.
	contributionThreshold = 0.005
)

// Evaluate applies the rule set for the subject's kind. Individuals must
// prove personhood; organizations and projects substitute a contribution
// share requirement.
func Evaluate(subject id.Subject, signals models.EligibilitySignals) models.Qualification {
	if subject.IsIndividual() {
		return evaluateIndividual(signals)
	}
	return evaluateEntity(signals)
}

func evaluateIndividual(signals models.EligibilitySignals) models.Qualification {
	if !signals.VerifiedEmail {
		return ineligible("a verified email is required")
	}
	if !signals.GitHubLinked && !signals.NotADeveloper {
		return ineligible("link a GitHub account or mark yourself as not a developer")
	}
	if signals.GovernanceAddress.IsZero() {
		return ineligible("a primary governance address is required")
	}
	if signals.PassportScore < passportThreshold && !signals.WorldIDVerified {
		return ineligible("proof of personhood required: passport score at or above 20, or a WorldID verification")
	}
	return models.Qualification{Eligible: true}
}

func evaluateEntity(signals models.EligibilitySignals) models.Qualification {
	if !signals.VerifiedEmail {
		return ineligible("a verified email is required")
	}
	if signals.GovernanceAddress.IsZero() {
		return ineligible("a governance address is required")
	}
	if signals.ContributionShare < contributionThreshold {
		return ineligible("contribution share below the qualifying threshold")
	}
	return models.Qualification{Eligible: true}
}

func ineligible(reason string) models.Qualification {
	return models.Qualification{Eligible: false, Reason: reason}
}
