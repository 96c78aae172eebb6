package service

import (
	"context"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
	"golang.org/x/crypto/blake2b"

	"github.com/noah-isme/lesson-engine/internal/authz"
	"github.com/noah-isme/lesson-engine/internal/models"
	"github.com/noah-isme/lesson-engine/internal/repository"
	appErrors "github.com/noah-isme/lesson-engine/pkg/errors"
)

type contractRepository interface {
	BeginTxx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error)
	FindByUser(ctx context.Context, userID string) (*models.ContractStatus, error)
	Save(ctx context.Context, exec sqlx.ExtContext, status *models.ContractStatus, expected *time.Time) error
	InsertLog(ctx context.Context, exec sqlx.ExtContext, log *models.ContractLog) error
}

// ContractConfig holds contract validity rules.
type ContractConfig struct {
	Validity            time.Duration
	NearExpiryWindow    time.Duration
	MinTermBeforeCancel time.Duration
}

// Contract lifecycle events reported to metrics.
const (
	contractEventSigned      = "signed"
	contractEventAdminSigned = "admin_signed"
	contractEventCancelled   = "cancelled"
	contractEventRenewed     = "renewed"
)

// ContractService manages student contracts.
type ContractService struct {
	repo      contractRepository
	notifier  notifier
	metrics   *MetricsService
	cfg       ContractConfig
	validator *validator.Validate
	logger    *zap.Logger
	now       clock
}

// NewContractService builds the service.
func NewContractService(repo contractRepository, notifier notifier, metrics *MetricsService, cfg ContractConfig, validate *validator.Validate, logger *zap.Logger) *ContractService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Validity <= 0 {
		cfg.Validity = 365 * 24 * time.Hour
	}
	if cfg.NearExpiryWindow <= 0 {
		cfg.NearExpiryWindow = 30 * 24 * time.Hour
	}
	return &ContractService{
		repo:      repo,
		notifier:  orNoop(notifier),
		metrics:   metrics,
		cfg:       cfg,
		validator: validate,
		logger:    logger,
		now:       systemClock,
	}
}

func (s *ContractService) find(ctx context.Context, userID string) (*models.ContractStatus, error) {
	status, err := s.repo.FindByUser(ctx, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, appErrors.Internal(err, "failed to load contract")
	}
	return status, nil
}

func (s *ContractService) view(status *models.ContractStatus, userID string, now time.Time) *models.ContractView {
	view := EvaluateContract(status, now, s.cfg.NearExpiryWindow)
	view.UserID = userID
	if status != nil {
		view.CanCancel = cancelEligibility(status, now, s.cfg.NearExpiryWindow, s.cfg.MinTermBeforeCancel).CanCancel
	}
	return &view
}

// Get returns the derived contract view of a user.
func (s *ContractService) Get(ctx context.Context, userID string, actor *models.JWTClaims) (*models.ContractView, error) {
	if err := authz.Require(actor, authz.ContractView, authz.Resource{StudentID: userID}); err != nil {
		return nil, err
	}
	status, err := s.find(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.view(status, userID, s.now()), nil
}

// Sign records the student signature together with an identity snapshot.
func (s *ContractService) Sign(ctx context.Context, userID string, identity models.ContractIdentity, actor *models.JWTClaims) (*models.ContractView, error) {
	if err := authz.Require(actor, authz.ContractSign, authz.Resource{StudentID: userID}); err != nil {
		return nil, err
	}
	identity.FullName = strings.TrimSpace(identity.FullName)
	identity.TaxID = strings.TrimSpace(identity.TaxID)
	identity.Address = strings.TrimSpace(identity.Address)
	if err := s.validator.Struct(identity); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid signing payload")
	}
	birthDate, err := time.Parse("2006-01-02", identity.BirthDate)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "birthDate must be YYYY-MM-DD")
	}

	existing, err := s.find(ctx, userID)
	if err != nil {
		return nil, err
	}
	if existing != nil && existing.Signed {
		return nil, appErrors.Clone(appErrors.ErrConflict, "contract already signed")
	}

	now := s.now()
	log := &models.ContractLog{
		UserID:         userID,
		FullName:       identity.FullName,
		TaxID:          identity.TaxID,
		BirthDate:      birthDate,
		Address:        identity.Address,
		SigningIP:      identity.SigningIP,
		SigningBrowser: identity.SigningBrowser,
		SignedAt:       now,
	}
	log.Checksum = contractChecksum(log)

	status := &models.ContractStatus{UserID: userID}
	var expected *time.Time
	if existing != nil {
		status = existing
		prev := existing.UpdatedAt
		expected = &prev
	}
	status.Signed = true
	status.SignedAt = &now

	err = s.withTx(ctx, func(tx *sqlx.Tx) error {
		if err := s.repo.InsertLog(ctx, tx, log); err != nil {
			return appErrors.Internal(err, "failed to store contract log")
		}
		status.LogID = stringPtr(log.ID)
		return s.save(ctx, tx, status, expected)
	})
	if err != nil {
		return nil, err
	}

	s.metrics.RecordContractEvent(contractEventSigned)
	s.notify(ctx, userID, "Contract signed", "Your contract was signed and is waiting for countersignature.")
	return s.view(status, userID, now), nil
}

// AdminSign countersigns a student-signed contract and starts its validity.
func (s *ContractService) AdminSign(ctx context.Context, userID string, autoRenewal bool, actor *models.JWTClaims) (*models.ContractView, error) {
	if err := authz.Require(actor, authz.ContractAdminSign, authz.Resource{StudentID: userID}); err != nil {
		return nil, err
	}
	status, err := s.find(ctx, userID)
	if err != nil {
		return nil, err
	}
	if status == nil || !status.Signed {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "student has not signed the contract")
	}
	if status.CancelledAt != nil {
		return nil, appErrors.Clone(appErrors.ErrConflict, "contract is cancelled")
	}
	if status.SignedByAdmin {
		return nil, appErrors.Clone(appErrors.ErrConflict, "contract already countersigned")
	}

	now := s.now()
	expected := status.UpdatedAt
	expires := now.Add(s.cfg.Validity)
	status.SignedByAdmin = true
	status.AdminSignedAt = &now
	status.ExpiresAt = &expires
	status.AutoRenewal = autoRenewal
	if err := s.save(ctx, nil, status, &expected); err != nil {
		return nil, err
	}

	s.metrics.RecordContractEvent(contractEventAdminSigned)
	s.notify(ctx, userID, "Contract active", fmt.Sprintf("Your contract is active until %s.", expires.Format("2006-01-02")))
	return s.view(status, userID, now), nil
}

// CanCancel reports whether the student may cancel now.
func (s *ContractService) CanCancel(ctx context.Context, userID string, actor *models.JWTClaims) (*models.CancelEligibility, error) {
	if err := authz.Require(actor, authz.ContractView, authz.Resource{StudentID: userID}); err != nil {
		return nil, err
	}
	status, err := s.find(ctx, userID)
	if err != nil {
		return nil, err
	}
	if status == nil {
		return &models.CancelEligibility{Reason: "contract not signed", ContractState: string(models.ContractPending)}, nil
	}
	result := cancelEligibility(status, s.now(), s.cfg.NearExpiryWindow, s.cfg.MinTermBeforeCancel)
	return &result, nil
}

// Cancel ends a valid contract. Administrative cancellation skips the
// minimum term check.
func (s *ContractService) Cancel(ctx context.Context, userID, reason string, isAdminCancellation bool, actor *models.JWTClaims) (*models.ContractView, error) {
	action := authz.ContractCancel
	if isAdminCancellation {
		action = authz.ContractOverride
	}
	if err := authz.Require(actor, action, authz.Resource{StudentID: userID}); err != nil {
		return nil, err
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "cancellation reason is required")
	}

	status, err := s.find(ctx, userID)
	if err != nil {
		return nil, err
	}
	if status == nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "contract not found")
	}

	now := s.now()
	if isAdminCancellation {
		if !EvaluateContract(status, now, s.cfg.NearExpiryWindow).IsValid {
			return nil, appErrors.Clone(appErrors.ErrConflict, "only a valid contract can be cancelled")
		}
	} else if eligibility := cancelEligibility(status, now, s.cfg.NearExpiryWindow, s.cfg.MinTermBeforeCancel); !eligibility.CanCancel {
		return nil, appErrors.Clone(appErrors.ErrConflict, eligibility.Reason)
	}

	expected := status.UpdatedAt
	status.CancelledAt = &now
	status.CancellationReason = &reason
	status.CancelledBy = actorID(actor)
	if err := s.save(ctx, nil, status, &expected); err != nil {
		return nil, err
	}

	s.metrics.RecordContractEvent(contractEventCancelled)
	s.notify(ctx, userID, "Contract cancelled", "Your contract was cancelled: "+reason)
	return s.view(status, userID, now), nil
}

// Renew restarts a cancelled or expired contract in place.
func (s *ContractService) Renew(ctx context.Context, userID string, actor *models.JWTClaims) (*models.ContractView, error) {
	if err := authz.Require(actor, authz.ContractRenew, authz.Resource{StudentID: userID}); err != nil {
		return nil, err
	}
	status, err := s.find(ctx, userID)
	if err != nil {
		return nil, err
	}
	if status == nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "contract not found")
	}

	now := s.now()
	state := EvaluateContract(status, now, s.cfg.NearExpiryWindow).State
	if state != models.ContractCancelled && state != models.ContractExpired {
		return nil, appErrors.Clone(appErrors.ErrConflict, fmt.Sprintf("contract in state %s cannot be renewed", state))
	}
	if !status.SignedByAdmin {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "contract was never countersigned")
	}

	expected := status.UpdatedAt
	expires := now.Add(s.cfg.Validity)
	status.ExpiresAt = &expires
	status.CancelledAt = nil
	status.CancellationReason = nil
	status.CancelledBy = nil
	status.RenewalCount++
	status.LastRenewalAt = &now
	if err := s.save(ctx, nil, status, &expected); err != nil {
		return nil, err
	}

	s.metrics.RecordContractEvent(contractEventRenewed)
	s.notify(ctx, userID, "Contract renewed", fmt.Sprintf("Your contract was renewed until %s.", expires.Format("2006-01-02")))
	return s.view(status, userID, now), nil
}

// RequireValid fails with a precondition error unless the user holds a valid contract.
func (s *ContractService) RequireValid(ctx context.Context, userID string) error {
	status, err := s.find(ctx, userID)
	if err != nil {
		return err
	}
	if !EvaluateContract(status, s.now(), s.cfg.NearExpiryWindow).IsValid {
		return appErrors.Clone(appErrors.ErrPreconditionFailed, "student has no valid contract")
	}
	return nil
}

func (s *ContractService) save(ctx context.Context, exec sqlx.ExtContext, status *models.ContractStatus, expected *time.Time) error {
	if err := s.repo.Save(ctx, exec, status, expected); err != nil {
		if errors.Is(err, repository.ErrNotApplied) {
			return appErrors.Conflict(appErrors.ReasonConcurrentUpdate, "contract changed concurrently")
		}
		return appErrors.Internal(err, "failed to save contract")
	}
	return nil
}

func (s *ContractService) withTx(ctx context.Context, fn func(tx *sqlx.Tx) error) (err error) {
	tx, err := s.repo.BeginTxx(ctx, nil)
	if err != nil {
		return appErrors.Internal(err, "failed to start transaction")
	}
	defer func() {
		if err != nil {
			rollback(tx, s.logger)
		}
	}()
	if err = fn(tx); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return appErrors.Internal(err, "failed to commit contract")
	}
	return nil
}

func (s *ContractService) notify(ctx context.Context, userID, subject, body string) {
	s.notifier.Notify(ctx, Notification{Kind: NotifyContract, UserIDs: []string{userID}, Subject: subject, Body: body})
}

// contractChecksum is the BLAKE2b-256 digest of the identity snapshot.
func contractChecksum(log *models.ContractLog) string {
	payload := strings.Join([]string{
		log.UserID,
		log.FullName,
		log.TaxID,
		log.BirthDate.Format("2006-01-02"),
		log.Address,
		log.SigningIP,
		log.SigningBrowser,
		log.SignedAt.UTC().Format(time.RFC3339Nano),
	}, "\x1f")
	sum := blake2b.Sum256([]byte(payload))
	return hex.EncodeToString(sum[:])
}
