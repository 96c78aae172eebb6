package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/lesson-engine/internal/models"
	appErrors "github.com/noah-isme/lesson-engine/pkg/errors"
)

func newCreditServiceFixture(repo *creditRepoStub, notifier *notifierStub) *CreditService {
	svc := NewCreditService(repo, notifier, nil, 30*24*time.Hour, nil, nil)
	svc.now = fixedClock
	return svc
}

func TestComputeBalanceSumsOnlyActiveCredits(t *testing.T) {
	used := fixedNow.Add(-time.Hour)
	txs := []models.CreditTransaction{
		{Type: models.CreditBonus, Amount: 2, ExpiresAt: fixedNow.Add(time.Hour)},
		{Type: models.CreditLateStudents, Amount: 1, ExpiresAt: fixedNow.Add(time.Hour)},
		{Type: models.CreditTeacherCancellation, Amount: 1, ExpiresAt: fixedNow.Add(48 * time.Hour)},
		{Type: models.CreditBonus, Amount: 4, ExpiresAt: fixedNow},
		{Type: models.CreditBonus, Amount: 3, ExpiresAt: fixedNow.Add(time.Hour), UsedAt: &used},
		{Type: models.CreditBonus, Amount: 0, ExpiresAt: fixedNow.Add(time.Hour)},
	}

	balance := computeBalance("student-1", txs, fixedNow)
	assert.Equal(t, 4, balance.TotalCredits)
	assert.Equal(t, 2, balance.BonusCredits)
	assert.Equal(t, 1, balance.LateStudentCredits)
	assert.Equal(t, 1, balance.TeacherCancellationCredits)
	assert.Equal(t, 4, balance.ExpiredCredits)
	assert.Equal(t, 3, balance.UsedCredits)
	assert.Equal(t, balance.TotalCredits, balance.BonusCredits+balance.LateStudentCredits+balance.TeacherCancellationCredits)
}

func TestComputeBalanceEmptyLedger(t *testing.T) {
	balance := computeBalance("student-1", nil, fixedNow)
	assert.Equal(t, models.CreditBalance{StudentID: "student-1"}, balance)
}

func TestCreditEffectTable(t *testing.T) {
	assert.Equal(t, EffectGrantMakeupCredit, creditEffect(EventTeacherMakeupCancel, models.RoleTeacher))
	assert.Equal(t, EffectGrantMakeupCredit, creditEffect(EventTeacherMakeupCancel, models.RoleAdmin))
	assert.Equal(t, EffectNone, creditEffect(EventTeacherMakeupCancel, models.RoleStudent))
	assert.Equal(t, EffectConsumeMakeupCredit, creditEffect(EventMakeupReschedule, models.RoleStudent))
	assert.Equal(t, EffectConsumeMonthlyQuota, creditEffect(EventNormalReschedule, models.RoleManager))
	assert.Equal(t, EffectNone, creditEffect(CreditEvent("unknown"), models.RoleAdmin))
}

func TestCreditServiceGrantRejectsPastExpiry(t *testing.T) {
	repo := &creditRepoStub{}
	svc := newCreditServiceFixture(repo, &notifierStub{})

	_, err := svc.Grant(context.Background(), models.GrantCreditRequest{
		StudentID: "student-1",
		Type:      models.CreditBonus,
		Amount:    3,
		ExpiresAt: fixedNow.AddDate(0, 0, -1),
		Reason:    "goodwill",
	}, adminActor())
	require.Error(t, err)
	assert.ErrorIs(t, err, appErrors.ErrValidation)
	assert.Empty(t, repo.txs)
}

func TestCreditServiceGrantValidation(t *testing.T) {
	svc := newCreditServiceFixture(&creditRepoStub{}, &notifierStub{})
	base := models.GrantCreditRequest{StudentID: "student-1", Type: models.CreditBonus, Amount: 1, ExpiresAt: fixedNow.AddDate(0, 1, 0), Reason: "promo"}

	zero := base
	zero.Amount = 0
	_, err := svc.Grant(context.Background(), zero, adminActor())
	assert.ErrorIs(t, err, appErrors.ErrValidation)

	blank := base
	blank.Reason = "   "
	_, err = svc.Grant(context.Background(), blank, adminActor())
	assert.ErrorIs(t, err, appErrors.ErrValidation)

	unknown := base
	unknown.Type = models.CreditType("GIFT")
	_, err = svc.Grant(context.Background(), unknown, adminActor())
	assert.ErrorIs(t, err, appErrors.ErrValidation)

	_, err = svc.Grant(context.Background(), base, studentActor("student-1"))
	assert.ErrorIs(t, err, appErrors.ErrForbidden)
}

func TestCreditServiceGrantRecordsAndNotifies(t *testing.T) {
	repo := &creditRepoStub{}
	notifier := &notifierStub{}
	svc := newCreditServiceFixture(repo, notifier)

	tx, err := svc.Grant(context.Background(), models.GrantCreditRequest{
		StudentID: "student-1",
		Type:      models.CreditBonus,
		Amount:    2,
		ExpiresAt: fixedNow.AddDate(0, 1, 0),
		Reason:    "referral",
	}, managerActor())
	require.NoError(t, err)
	assert.Equal(t, models.CreditGranted, tx.Action)
	require.NotNil(t, tx.PerformedBy)
	assert.Equal(t, "manager-1", *tx.PerformedBy)
	assert.Len(t, repo.txs, 1)
	assert.Equal(t, []string{NotifyCreditGranted}, notifier.kinds())

	balance, err := svc.GetBalance(context.Background(), "student-1", studentActor("student-1"))
	require.NoError(t, err)
	assert.Equal(t, 2, balance.TotalCredits)
}

func TestCreditServiceConsumeAtMostOnce(t *testing.T) {
	repo := &creditRepoStub{txs: []models.CreditTransaction{
		{ID: "credit-a", StudentID: "student-1", Type: models.CreditBonus, Amount: 1, ExpiresAt: fixedNow.Add(time.Hour), Action: models.CreditGranted},
	}}
	svc := newCreditServiceFixture(repo, &notifierStub{})
	req := models.ConsumeCreditRequest{StudentID: "student-1", TransactionID: "credit-a"}

	tx, err := svc.Consume(context.Background(), req, adminActor())
	require.NoError(t, err)
	require.NotNil(t, tx.UsedAt)

	_, err = svc.Consume(context.Background(), req, adminActor())
	require.Error(t, err)
	assert.ErrorIs(t, err, appErrors.ErrConflict)
	assert.Contains(t, err.Error(), "already used")
}

func TestCreditServiceConsumeExpiredAndMissing(t *testing.T) {
	repo := &creditRepoStub{txs: []models.CreditTransaction{
		{ID: "credit-old", StudentID: "student-1", Type: models.CreditBonus, Amount: 1, ExpiresAt: fixedNow.Add(-time.Hour)},
	}}
	svc := newCreditServiceFixture(repo, &notifierStub{})

	_, err := svc.Consume(context.Background(), models.ConsumeCreditRequest{StudentID: "student-1", TransactionID: "credit-old"}, adminActor())
	assert.ErrorIs(t, err, appErrors.ErrConflict)
	assert.Contains(t, err.Error(), "expired")

	_, err = svc.Consume(context.Background(), models.ConsumeCreditRequest{StudentID: "student-1", TransactionID: "nope"}, adminActor())
	assert.ErrorIs(t, err, appErrors.ErrNotFound)
}

func TestCreditServiceHistoryExport(t *testing.T) {
	repo := &creditRepoStub{txs: []models.CreditTransaction{
		{ID: "credit-a", StudentID: "student-1", Type: models.CreditBonus, Amount: 1, ExpiresAt: fixedNow.Add(time.Hour), Reason: "promo", PerformedAt: fixedNow},
	}}
	svc := newCreditServiceFixture(repo, &notifierStub{})

	file, err := svc.ExportHistory(context.Background(), "student-1", "csv", models.CreditHistoryFilter{}, studentActor("student-1"))
	require.NoError(t, err)
	assert.Equal(t, "text/csv", file.ContentType)
	assert.Equal(t, "credits-student-1-20240304.csv", file.Filename)
	assert.Contains(t, string(file.Body), "BONUS")
	assert.Contains(t, string(file.Body), "AVAILABLE")

	_, err = svc.ExportHistory(context.Background(), "student-1", "xlsx", models.CreditHistoryFilter{}, studentActor("student-1"))
	assert.ErrorIs(t, err, appErrors.ErrValidation)

	_, err = svc.History(context.Background(), "student-1", models.CreditHistoryFilter{}, studentActor("student-2"))
	assert.ErrorIs(t, err, appErrors.ErrForbidden)
}

func TestCreditServiceExportStatementTotals(t *testing.T) {
	usedAt := fixedNow.Add(-time.Hour)
	repo := &creditRepoStub{txs: []models.CreditTransaction{
		{ID: "credit-a", StudentID: "student-1", Type: models.CreditBonus, Amount: 1, ExpiresAt: fixedNow.Add(time.Hour), Reason: "promo", PerformedAt: fixedNow},
		{ID: "credit-b", StudentID: "student-1", Type: models.CreditTeacherCancellation, Amount: 1, ExpiresAt: fixedNow.AddDate(0, 1, 0), Reason: "makeup", PerformedAt: fixedNow},
		{ID: "credit-c", StudentID: "student-1", Type: models.CreditBonus, Amount: 1, ExpiresAt: fixedNow.Add(time.Hour), UsedAt: &usedAt, Reason: "used", PerformedAt: fixedNow},
		{ID: "credit-d", StudentID: "student-1", Type: models.CreditBonus, Amount: 1, ExpiresAt: fixedNow.Add(-time.Hour), Reason: "old", PerformedAt: fixedNow.AddDate(0, -2, 0)},
	}}
	svc := newCreditServiceFixture(repo, &notifierStub{})

	file, err := svc.ExportHistory(context.Background(), "student-1", "csv", models.CreditHistoryFilter{}, studentActor("student-1"))
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(file.Body)), "\n")
	assert.Equal(t, "Balance,4 entries,2,AVAILABLE,,\"1 used, 1 expired\"", lines[len(lines)-1])

	from := fixedNow.AddDate(0, -1, 0)
	statement := creditStatement("student-1", repo.txs, models.CreditHistoryFilter{From: &from}, fixedNow)
	assert.Equal(t, "Student student-1", statement.Subject)
	assert.Equal(t, "2024-02-04 to 2024-03-04", statement.Period)
	assert.Equal(t, "start to 2024-03-04", statementPeriod(models.CreditHistoryFilter{}, fixedNow))

	pdf, err := svc.ExportHistory(context.Background(), "student-1", "pdf", models.CreditHistoryFilter{}, studentActor("student-1"))
	require.NoError(t, err)
	assert.Equal(t, "credits-student-1-20240304.pdf", pdf.Filename)
	assert.Contains(t, string(pdf.Body), "/MediaBox [0 0 841.89 595.28]")
}
