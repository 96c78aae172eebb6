package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/lesson-engine/internal/authz"
	"github.com/noah-isme/lesson-engine/internal/models"
	"github.com/noah-isme/lesson-engine/internal/repository"
	appErrors "github.com/noah-isme/lesson-engine/pkg/errors"
	"github.com/noah-isme/lesson-engine/pkg/export"
)

type creditRepository interface {
	Insert(ctx context.Context, exec sqlx.ExtContext, tx *models.CreditTransaction) error
	FindByID(ctx context.Context, studentID, id string) (*models.CreditTransaction, error)
	ListByStudent(ctx context.Context, studentID string, filter models.CreditHistoryFilter) ([]models.CreditTransaction, error)
	Consume(ctx context.Context, exec sqlx.ExtContext, studentID, id string, classID *string, now time.Time) error
	EarliestUsable(ctx context.Context, exec sqlx.ExtContext, studentID string, creditType models.CreditType, now time.Time) (*models.CreditTransaction, error)
}

type statementRenderer interface {
	Render(statement export.Statement) ([]byte, error)
}

// ExportFile is a rendered download.
type ExportFile struct {
	ContentType string
	Filename    string
	Body        []byte
}

// CreditService owns the credit ledger.
type CreditService struct {
	repo      creditRepository
	notifier  notifier
	metrics   *MetricsService
	csv       statementRenderer
	pdf       statementRenderer
	makeupTTL time.Duration
	validator *validator.Validate
	logger    *zap.Logger
	now       clock
}

// NewCreditService builds the service.
func NewCreditService(repo creditRepository, notifier notifier, metrics *MetricsService, makeupTTL time.Duration, validate *validator.Validate, logger *zap.Logger) *CreditService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if makeupTTL <= 0 {
		makeupTTL = 60 * 24 * time.Hour
	}
	return &CreditService{
		repo:      repo,
		notifier:  orNoop(notifier),
		metrics:   metrics,
		csv:       export.NewCSVExporter(),
		pdf:       export.NewPDFExporter(),
		makeupTTL: makeupTTL,
		validator: validate,
		logger:    logger,
		now:       systemClock,
	}
}

// Grant records a manually granted credit.
func (s *CreditService) Grant(ctx context.Context, req models.GrantCreditRequest, actor *models.JWTClaims) (*models.CreditTransaction, error) {
	if err := authz.Require(actor, authz.CreditGrant, authz.Resource{StudentID: req.StudentID}); err != nil {
		return nil, err
	}
	req.Reason = strings.TrimSpace(req.Reason)
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid credit grant payload")
	}
	if !req.Type.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unknown credit type")
	}
	now := s.now()
	if !req.ExpiresAt.After(now) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "expiresAt must be in the future")
	}

	tx := &models.CreditTransaction{
		StudentID:   req.StudentID,
		Type:        req.Type,
		Amount:      req.Amount,
		ExpiresAt:   req.ExpiresAt.UTC(),
		Reason:      req.Reason,
		Action:      models.CreditGranted,
		ClassID:     req.ClassID,
		PerformedBy: actorID(actor),
		PerformedAt: now,
	}
	if err := s.repo.Insert(ctx, nil, tx); err != nil {
		return nil, appErrors.Internal(err, "failed to grant credit")
	}

	s.metrics.RecordCreditEvent(models.CreditGranted, tx.Type)
	s.notifier.Notify(ctx, Notification{
		Kind:    NotifyCreditGranted,
		UserIDs: []string{tx.StudentID},
		Subject: "You received a class credit",
		Body:    fmt.Sprintf("%d %s credit(s) were added to your account: %s. They expire on %s.", tx.Amount, tx.Type, tx.Reason, tx.ExpiresAt.Format("2006-01-02")),
	})
	return tx, nil
}

// Consume marks a credit as used. It succeeds at most once per credit.
func (s *CreditService) Consume(ctx context.Context, req models.ConsumeCreditRequest, actor *models.JWTClaims) (*models.CreditTransaction, error) {
	if err := authz.Require(actor, authz.CreditConsume, authz.Resource{StudentID: req.StudentID}); err != nil {
		return nil, err
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid consume payload")
	}

	now := s.now()
	err := s.repo.Consume(ctx, nil, req.StudentID, req.TransactionID, nil, now)
	if err != nil && !errors.Is(err, repository.ErrNotApplied) {
		return nil, appErrors.Internal(err, "failed to consume credit")
	}

	tx, findErr := s.repo.FindByID(ctx, req.StudentID, req.TransactionID)
	if findErr != nil {
		if errors.Is(findErr, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "credit not found")
		}
		return nil, appErrors.Internal(findErr, "failed to load credit")
	}
	if err != nil {
		if tx.UsedAt != nil {
			return nil, appErrors.Conflict(appErrors.ReasonCreditUnusable, "credit already used")
		}
		return nil, appErrors.Conflict(appErrors.ReasonCreditUnusable, "credit expired")
	}

	s.metrics.RecordCreditEvent(models.CreditUsed, tx.Type)
	return tx, nil
}

// GetBalance aggregates the student's ledger.
func (s *CreditService) GetBalance(ctx context.Context, studentID string, actor *models.JWTClaims) (*models.CreditBalance, error) {
	if err := authz.Require(actor, authz.CreditView, authz.Resource{StudentID: studentID}); err != nil {
		return nil, err
	}
	txs, err := s.repo.ListByStudent(ctx, studentID, models.CreditHistoryFilter{})
	if err != nil {
		return nil, appErrors.Internal(err, "failed to load credits")
	}
	balance := computeBalance(studentID, txs, s.now())
	return &balance, nil
}

// History returns the ledger newest first.
func (s *CreditService) History(ctx context.Context, studentID string, filter models.CreditHistoryFilter, actor *models.JWTClaims) ([]models.CreditTransaction, error) {
	if err := authz.Require(actor, authz.CreditView, authz.Resource{StudentID: studentID}); err != nil {
		return nil, err
	}
	if filter.Type != nil && !filter.Type.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unknown credit type")
	}
	if filter.From != nil && filter.To != nil && !filter.To.After(*filter.From) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "to must be after from")
	}
	txs, err := s.repo.ListByStudent(ctx, studentID, filter)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to load credit history")
	}
	if txs == nil {
		txs = []models.CreditTransaction{}
	}
	return txs, nil
}

// ExportHistory renders the ledger as a CSV or PDF statement.
func (s *CreditService) ExportHistory(ctx context.Context, studentID, format string, filter models.CreditHistoryFilter, actor *models.JWTClaims) (*ExportFile, error) {
	txs, err := s.History(ctx, studentID, filter, actor)
	if err != nil {
		return nil, err
	}

	now := s.now()
	statement := creditStatement(studentID, txs, filter, now)

	base := fmt.Sprintf("credits-%s-%s", studentID, now.Format("20060102"))
	switch strings.ToLower(format) {
	case "", "csv":
		body, err := s.csv.Render(statement)
		if err != nil {
			return nil, appErrors.Internal(err, "failed to render credit statement")
		}
		return &ExportFile{ContentType: "text/csv", Filename: base + ".csv", Body: body}, nil
	case "pdf":
		body, err := s.pdf.Render(statement)
		if err != nil {
			return nil, appErrors.Internal(err, "failed to render credit statement")
		}
		return &ExportFile{ContentType: "application/pdf", Filename: base + ".pdf", Body: body}, nil
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, "format must be csv or pdf")
	}
}

// grantMakeupCredit writes the TEACHER_CANCELLATION credit earned by a makeup cancellation.
func (s *CreditService) grantMakeupCredit(ctx context.Context, exec sqlx.ExtContext, class *models.Class, actor *models.JWTClaims) (*models.CreditTransaction, error) {
	now := s.now()
	tx := &models.CreditTransaction{
		StudentID:   class.StudentID,
		Type:        models.CreditTeacherCancellation,
		Amount:      1,
		ExpiresAt:   now.Add(s.makeupTTL),
		Reason:      "teacher cancelled class " + class.ID,
		Action:      models.CreditGranted,
		ClassID:     stringPtr(class.ID),
		PerformedBy: actorID(actor),
		PerformedAt: now,
	}
	if err := s.repo.Insert(ctx, exec, tx); err != nil {
		return nil, err
	}
	return tx, nil
}

// consumeMakeupCredit uses the student's earliest-expiring makeup credit if
// one exists. It returns nil when there was nothing to consume.
func (s *CreditService) consumeMakeupCredit(ctx context.Context, exec sqlx.ExtContext, studentID, classID string) (*models.CreditTransaction, error) {
	now := s.now()
	credit, err := s.repo.EarliestUsable(ctx, exec, studentID, models.CreditTeacherCancellation, now)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	if err := s.repo.Consume(ctx, exec, studentID, credit.ID, &classID, now); err != nil {
		return nil, err
	}
	credit.UsedAt = &now
	credit.Action = models.CreditUsed
	return credit, nil
}

// creditStatement lays the ledger out as a statement whose totals row carries
// the usable balance at now.
func creditStatement(studentID string, txs []models.CreditTransaction, filter models.CreditHistoryFilter, now time.Time) export.Statement {
	statement := export.Statement{
		Title:   "Credit statement",
		Subject: "Student " + studentID,
		Period:  statementPeriod(filter, now),
		Columns: []export.Column{
			{Name: "Date", Weight: 2, Align: "L"},
			{Name: "Type", Weight: 3, Align: "L"},
			{Name: "Amount", Weight: 1.5, Align: "R"},
			{Name: "Status", Weight: 2, Align: "C"},
			{Name: "Expires", Weight: 2, Align: "L"},
			{Name: "Reason", Weight: 6, Align: "L"},
		},
	}
	var balance, used, expired int
	for _, tx := range txs {
		status := creditStatus(tx, now)
		switch status {
		case "AVAILABLE":
			balance += tx.Amount
		case "USED":
			used++
		case "EXPIRED":
			expired++
		}
		statement.Rows = append(statement.Rows, []string{
			tx.PerformedAt.Format("2006-01-02"),
			string(tx.Type),
			strconv.Itoa(tx.Amount),
			status,
			tx.ExpiresAt.Format("2006-01-02"),
			tx.Reason,
		})
	}
	statement.Totals = []string{
		"Balance",
		fmt.Sprintf("%d entries", len(txs)),
		strconv.Itoa(balance),
		"AVAILABLE",
		"",
		fmt.Sprintf("%d used, %d expired", used, expired),
	}
	return statement
}

func statementPeriod(filter models.CreditHistoryFilter, now time.Time) string {
	from, to := "start", now.Format("2006-01-02")
	if filter.From != nil {
		from = filter.From.Format("2006-01-02")
	}
	if filter.To != nil {
		to = filter.To.Format("2006-01-02")
	}
	return from + " to " + to
}

func creditStatus(tx models.CreditTransaction, now time.Time) string {
	switch {
	case tx.UsedAt != nil:
		return "USED"
	case !now.Before(tx.ExpiresAt):
		return "EXPIRED"
	default:
		return "AVAILABLE"
	}
}
