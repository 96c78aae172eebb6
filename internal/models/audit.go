package models

import "time"

// AuditAction constants represent administrative actions to be logged.
const (
	AuditActionClassTeacherAssign  = "CLASS_TEACHER_ASSIGN"
	AuditActionClassStatus         = "CLASS_STATUS_CHANGE"
	AuditActionClassCancel         = "CLASS_CANCEL"
	AuditActionClassReschedule     = "CLASS_RESCHEDULE"
	AuditActionClassesGenerate     = "CLASSES_GENERATE"
	AuditActionClassesDelete       = "CLASSES_DELETE"
	AuditActionTemplateReplace     = "TEMPLATE_REPLACE"
	AuditActionTemplateDelete      = "TEMPLATE_DELETE"
	AuditActionScheduleAssign      = "SCHEDULE_ASSIGN"
	AuditActionAvailabilityReplace = "AVAILABILITY_REPLACE"
	AuditActionCreditGrant         = "CREDIT_GRANT"
	AuditActionCreditConsume       = "CREDIT_CONSUME"
	AuditActionContractSign        = "CONTRACT_SIGN"
	AuditActionContractAdminSign   = "CONTRACT_ADMIN_SIGN"
	AuditActionContractCancel      = "CONTRACT_CANCEL"
	AuditActionContractRenew       = "CONTRACT_RENEW"
	AuditActionVacationCreate      = "VACATION_CREATE"
	AuditActionVacationDelete      = "VACATION_DELETE"
)

// AuditLog represents an audit trail record.
type AuditLog struct {
	ID         string    `db:"id" json:"id"`
	UserID     *string   `db:"user_id" json:"userId,omitempty"`
	Action     string    `db:"action" json:"action"`
	Resource   string    `db:"resource" json:"resource"`
	ResourceID *string   `db:"resource_id" json:"resourceId,omitempty"`
	NewValues  []byte    `db:"new_values" json:"newValues,omitempty"`
	IPAddress  string    `db:"ip_address" json:"ipAddress"`
	UserAgent  string    `db:"user_agent" json:"userAgent"`
	CreatedAt  time.Time `db:"created_at" json:"createdAt"`
}
