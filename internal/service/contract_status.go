package service

import (
	"math"
	"time"

	"github.com/noah-isme/lesson-engine/internal/models"
)

// EvaluateContract derives the lifecycle view of status at now. A nil status
// is a contract that was never signed.
func EvaluateContract(status *models.ContractStatus, now time.Time, nearExpiryWindow time.Duration) models.ContractView {
	view := models.ContractView{State: models.ContractPending}
	if status == nil {
		return view
	}
	view.ContractStatus = *status

	if status.ExpiresAt != nil && status.CancelledAt == nil {
		days := int(math.Ceil(status.ExpiresAt.Sub(now).Hours() / 24))
		if days < 0 {
			days = 0
		}
		view.DaysUntilExpiration = &days
	}

	switch {
	case !status.Signed:
		view.State = models.ContractPending
	case status.CancelledAt != nil:
		view.State = models.ContractCancelled
	case !status.SignedByAdmin:
		view.State = models.ContractStudentSigned
	case status.ExpiresAt == nil || !now.Before(*status.ExpiresAt):
		view.State = models.ContractExpired
		view.IsExpired = true
	case status.ExpiresAt.Sub(now) <= nearExpiryWindow:
		view.State = models.ContractExpiringSoon
		view.IsValid = true
		view.IsNearExpiration = true
	default:
		view.State = models.ContractValid
		view.IsValid = true
	}
	return view
}

// termStart is when the minimum term clock started: admin signing, or the
// latest renewal.
func termStart(status *models.ContractStatus) *time.Time {
	start := status.AdminSignedAt
	if status.LastRenewalAt != nil && (start == nil || status.LastRenewalAt.After(*start)) {
		start = status.LastRenewalAt
	}
	return start
}

// cancelEligibility decides whether the student may cancel the contract at now.
func cancelEligibility(status *models.ContractStatus, now time.Time, nearExpiryWindow, minTerm time.Duration) models.CancelEligibility {
	view := EvaluateContract(status, now, nearExpiryWindow)
	result := models.CancelEligibility{ContractState: string(view.State)}
	if !view.IsValid {
		result.Reason = "contract is not valid"
		return result
	}
	start := termStart(status)
	if start == nil {
		result.Reason = "contract has not been countersigned"
		return result
	}
	eligibleFrom := start.Add(minTerm)
	if now.Before(eligibleFrom) {
		result.Reason = "minimum contract term has not elapsed"
		result.EligibleFrom = &eligibleFrom
		return result
	}
	result.CanCancel = true
	result.EligibleFrom = &eligibleFrom
	return result
}
