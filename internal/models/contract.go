package models

import "time"

// ContractStatus is the persisted contract record of one user.
type ContractStatus struct {
	UserID             string     `db:"user_id" json:"userId"`
	Signed             bool       `db:"signed" json:"signed"`
	SignedAt           *time.Time `db:"signed_at" json:"signedAt,omitempty"`
	SignedByAdmin      bool       `db:"signed_by_admin" json:"signedByAdmin"`
	AdminSignedAt      *time.Time `db:"admin_signed_at" json:"adminSignedAt,omitempty"`
	ExpiresAt          *time.Time `db:"expires_at" json:"expiresAt,omitempty"`
	AutoRenewal        bool       `db:"auto_renewal" json:"autoRenewal"`
	CancelledAt        *time.Time `db:"cancelled_at" json:"cancelledAt,omitempty"`
	CancellationReason *string    `db:"cancellation_reason" json:"cancellationReason,omitempty"`
	CancelledBy        *string    `db:"cancelled_by" json:"cancelledBy,omitempty"`
	RenewalCount       int        `db:"renewal_count" json:"renewalCount"`
	LastRenewalAt      *time.Time `db:"last_renewal_at" json:"lastRenewalAt,omitempty"`
	LogID              *string    `db:"log_id" json:"logId,omitempty"`
	UpdatedAt          time.Time  `db:"updated_at" json:"updatedAt"`
}

// ContractLog is the immutable identity snapshot captured at signing.
type ContractLog struct {
	ID             string    `db:"id" json:"id"`
	UserID         string    `db:"user_id" json:"userId"`
	FullName       string    `db:"full_name" json:"fullName"`
	TaxID          string    `db:"tax_id" json:"taxId"`
	BirthDate      time.Time `db:"birth_date" json:"birthDate"`
	Address        string    `db:"address" json:"address"`
	SigningIP      string    `db:"signing_ip" json:"signingIp"`
	SigningBrowser string    `db:"signing_browser" json:"signingBrowser"`
	SignedAt       time.Time `db:"signed_at" json:"signedAt"`
	Checksum       string    `db:"checksum" json:"checksum"`
}

// ContractState is the derived lifecycle position of a contract.
type ContractState string

const (
	ContractPending       ContractState = "PENDING"
	ContractStudentSigned ContractState = "STUDENT_SIGNED"
	ContractValid         ContractState = "VALID"
	ContractExpiringSoon  ContractState = "EXPIRING_SOON"
	ContractExpired       ContractState = "EXPIRED"
	ContractCancelled     ContractState = "CANCELLED"
)

// ContractView is the status enriched with derived flags.
type ContractView struct {
	ContractStatus
	State               ContractState `json:"state"`
	IsValid             bool          `json:"isValid"`
	IsNearExpiration    bool          `json:"isNearExpiration"`
	IsExpired           bool          `json:"isExpired"`
	DaysUntilExpiration *int          `json:"daysUntilExpiration,omitempty"`
	CanCancel           bool          `json:"canCancel"`
}

// ContractIdentity is the personal data a student supplies when signing.
type ContractIdentity struct {
	FullName       string `json:"fullName" validate:"required"`
	TaxID          string `json:"taxId" validate:"required"`
	BirthDate      string `json:"birthDate" validate:"required"`
	Address        string `json:"address" validate:"required"`
	SigningIP      string `json:"-"`
	SigningBrowser string `json:"-"`
}

// CancelEligibility answers whether a contract may be cancelled now.
type CancelEligibility struct {
	CanCancel     bool       `json:"canCancel"`
	Reason        string     `json:"reason,omitempty"`
	EligibleFrom  *time.Time `json:"eligibleFrom,omitempty"`
	ContractState string     `json:"state"`
}
