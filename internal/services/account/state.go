// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package account

import "codeberg.org/oliverandrich/go-accounts/internal/models"

// State is the lifecycle position of an account, derived from its stored fields.
type State int

const (
	Unregistered State = iota
	PendingConfirmation
	ConfirmationExpired
	Active
	ResetRequested
	ResetExpired
)

func (s State) String() string {
	switch s {
	case Unregistered:
		return "unregistered"
	case PendingConfirmation:
		return "pending_confirmation"
	case ConfirmationExpired:
		return "confirmation_expired"
	case Active:
		return "active"
	case ResetRequested:
		return "reset_requested"
	case ResetExpired:
		return "reset_expired"
	default:
		return "unknown"
	}
}

// State derives the lifecycle state of acct at the service clock's current time.
// A nil account is Unregistered.
func (s *Service) State(acct *models.Account) State {
	if acct == nil {
		return Unregistered
	}
	if !acct.IsActive {
		if s.tokens.ChallengeValid(acct.Challenge, models.PurposeRegistration) {
			return PendingConfirmation
		}
		return ConfirmationExpired
	}
	if acct.HasChallenge(models.PurposePasswordReset) {
		if s.tokens.ChallengeValid(acct.Challenge, models.PurposePasswordReset) {
			return ResetRequested
		}
		return ResetExpired
	}
	return Active
}

// Outcome describes what happened to the challenge during Register or RequestPasswordReset.
type Outcome int

const (
	// ChallengeSent means a new account or challenge was created and delivered.
	ChallengeSent Outcome = iota + 1
	// ChallengeResent means a stale challenge was replaced and delivered again.
	ChallengeResent
	// ChallengePending means a valid challenge is already outstanding. Nothing changed.
	ChallengePending
)

func (o Outcome) String() string {
	switch o {
	case ChallengeSent:
		return "sent"
	case ChallengeResent:
		return "resent"
	case ChallengePending:
		return "pending"
	default:
		return "none"
	}
}
