package models

import "time"

// CreditType classifies why a credit was granted.
type CreditType string

const (
	CreditBonus               CreditType = "BONUS"
	CreditLateStudents        CreditType = "LATE_STUDENTS"
	CreditTeacherCancellation CreditType = "TEACHER_CANCELLATION"
)

// Valid reports whether t is a known credit type.
func (t CreditType) Valid() bool {
	switch t {
	case CreditBonus, CreditLateStudents, CreditTeacherCancellation:
		return true
	}
	return false
}

// CreditAction records what happened to a ledger row.
type CreditAction string

const (
	CreditGranted CreditAction = "GRANTED"
	CreditUsed    CreditAction = "USED"
)

// CreditTransaction is one row of the credit ledger.
type CreditTransaction struct {
	ID          string       `db:"id" json:"id"`
	StudentID   string       `db:"student_id" json:"studentId"`
	Type        CreditType   `db:"type" json:"type"`
	Amount      int          `db:"amount" json:"amount"`
	ExpiresAt   time.Time    `db:"expires_at" json:"expiresAt"`
	UsedAt      *time.Time   `db:"used_at" json:"usedAt,omitempty"`
	Reason      string       `db:"reason" json:"reason"`
	Action      CreditAction `db:"action" json:"action"`
	ClassID     *string      `db:"class_id" json:"classId,omitempty"`
	PerformedBy *string      `db:"performed_by" json:"performedBy,omitempty"`
	PerformedAt time.Time    `db:"performed_at" json:"performedAt"`
}

// Usable reports whether the credit can still be consumed at now.
func (t CreditTransaction) Usable(now time.Time) bool {
	return t.UsedAt == nil && now.Before(t.ExpiresAt)
}

// CreditBalance is derived from the ledger and never stored.
type CreditBalance struct {
	StudentID                  string `json:"studentId"`
	TotalCredits               int    `json:"totalCredits"`
	BonusCredits               int    `json:"bonusCredits"`
	LateStudentCredits         int    `json:"lateStudentCredits"`
	TeacherCancellationCredits int    `json:"teacherCancellationCredits"`
	ExpiredCredits             int    `json:"expiredCredits"`
	UsedCredits                int    `json:"usedCredits"`
}

// CreditHistoryFilter narrows ledger listings.
type CreditHistoryFilter struct {
	Type   *CreditType
	Action *CreditAction
	From   *time.Time
	To     *time.Time
	Limit  int
}

// GrantCreditRequest is the payload for manually granting a credit.
type GrantCreditRequest struct {
	StudentID string     `json:"studentId" validate:"required"`
	Type      CreditType `json:"type" validate:"required,oneof=BONUS LATE_STUDENTS TEACHER_CANCELLATION"`
	Amount    int        `json:"amount" validate:"gt=0"`
	ExpiresAt time.Time  `json:"expiresAt" validate:"required"`
	Reason    string     `json:"reason" validate:"required"`
	ClassID   *string    `json:"classId,omitempty"`
}

// ConsumeCreditRequest marks a ledger row as used.
type ConsumeCreditRequest struct {
	StudentID     string `json:"studentId" validate:"required"`
	TransactionID string `json:"transactionId" validate:"required"`
}
