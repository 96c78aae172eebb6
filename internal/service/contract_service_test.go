package service

import (
	"context"
	"database/sql"
	"sync"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/lesson-engine/internal/models"
	"github.com/noah-isme/lesson-engine/internal/repository"
	appErrors "github.com/noah-isme/lesson-engine/pkg/errors"
)

type contractRepoStub struct {
	txProvider
	mu       sync.Mutex
	statuses map[string]models.ContractStatus
	logs     []models.ContractLog
	tick     time.Time
}

func newContractRepoStub(t *testing.T, txs int) *contractRepoStub {
	tx, mock := newTxProviderMock(t)
	for i := 0; i < txs; i++ {
		mock.ExpectBegin()
		mock.ExpectCommit()
	}
	return &contractRepoStub{txProvider: tx, statuses: make(map[string]models.ContractStatus), tick: fixedNow}
}

func (r *contractRepoStub) FindByUser(ctx context.Context, userID string) (*models.ContractStatus, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	status, ok := r.statuses[userID]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &status, nil
}

func (r *contractRepoStub) Save(ctx context.Context, exec sqlx.ExtContext, status *models.ContractStatus, expected *time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	current, exists := r.statuses[status.UserID]
	switch {
	case expected == nil && exists:
		return repository.ErrNotApplied
	case expected != nil && (!exists || !current.UpdatedAt.Equal(*expected)):
		return repository.ErrNotApplied
	}
	r.tick = r.tick.Add(time.Millisecond)
	status.UpdatedAt = r.tick
	r.statuses[status.UserID] = *status
	return nil
}

func (r *contractRepoStub) InsertLog(ctx context.Context, exec sqlx.ExtContext, log *models.ContractLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	log.ID = "log-1"
	r.logs = append(r.logs, *log)
	return nil
}

func newContractServiceFixture(repo *contractRepoStub) (*ContractService, *time.Time) {
	now := fixedNow
	svc := NewContractService(repo, &notifierStub{}, nil, ContractConfig{
		Validity:            365 * 24 * time.Hour,
		NearExpiryWindow:    30 * 24 * time.Hour,
		MinTermBeforeCancel: 90 * 24 * time.Hour,
	}, nil, nil)
	svc.now = func() time.Time { return now }
	return svc, &now
}

func signingIdentity() models.ContractIdentity {
	return models.ContractIdentity{
		FullName:       "Ana Souza",
		TaxID:          "123.456.789-00",
		BirthDate:      "1995-06-01",
		Address:        "Rua A, 10",
		SigningIP:      "10.0.0.1",
		SigningBrowser: "test-agent",
	}
}

func TestContractLifecycleSignCountersignCancelRenew(t *testing.T) {
	repo := newContractRepoStub(t, 1)
	svc, now := newContractServiceFixture(repo)
	ctx := context.Background()

	view, err := svc.Get(ctx, "student-1", studentActor("student-1"))
	require.NoError(t, err)
	assert.Equal(t, models.ContractPending, view.State)
	assert.False(t, view.IsValid)

	view, err = svc.Sign(ctx, "student-1", signingIdentity(), studentActor("student-1"))
	require.NoError(t, err)
	assert.Equal(t, models.ContractStudentSigned, view.State)
	require.Len(t, repo.logs, 1)
	assert.Len(t, repo.logs[0].Checksum, 64)
	require.NotNil(t, view.LogID)
	assert.Equal(t, "log-1", *view.LogID)

	_, err = svc.Sign(ctx, "student-1", signingIdentity(), studentActor("student-1"))
	assert.ErrorIs(t, err, appErrors.ErrConflict)

	assert.ErrorIs(t, svc.RequireValid(ctx, "student-1"), appErrors.ErrPreconditionFailed)

	view, err = svc.AdminSign(ctx, "student-1", true, adminActor())
	require.NoError(t, err)
	assert.Equal(t, models.ContractValid, view.State)
	assert.True(t, view.IsValid)
	assert.True(t, view.AutoRenewal)
	require.NotNil(t, view.ExpiresAt)
	assert.Equal(t, fixedNow.Add(365*24*time.Hour), *view.ExpiresAt)
	assert.NoError(t, svc.RequireValid(ctx, "student-1"))

	eligibility, err := svc.CanCancel(ctx, "student-1", studentActor("student-1"))
	require.NoError(t, err)
	assert.False(t, eligibility.CanCancel)
	require.NotNil(t, eligibility.EligibleFrom)
	assert.Equal(t, fixedNow.Add(90*24*time.Hour), *eligibility.EligibleFrom)

	_, err = svc.Cancel(ctx, "student-1", "moving abroad", false, studentActor("student-1"))
	assert.ErrorIs(t, err, appErrors.ErrConflict)

	*now = fixedNow.Add(100 * 24 * time.Hour)
	_, err = svc.Cancel(ctx, "student-1", "", false, studentActor("student-1"))
	assert.ErrorIs(t, err, appErrors.ErrValidation)

	view, err = svc.Cancel(ctx, "student-1", "moving abroad", false, studentActor("student-1"))
	require.NoError(t, err)
	assert.Equal(t, models.ContractCancelled, view.State)
	assert.False(t, view.IsValid)
	assert.ErrorIs(t, svc.RequireValid(ctx, "student-1"), appErrors.ErrPreconditionFailed)

	view, err = svc.Renew(ctx, "student-1", studentActor("student-1"))
	require.NoError(t, err)
	assert.Equal(t, models.ContractValid, view.State)
	assert.Equal(t, 1, view.RenewalCount)
	assert.Nil(t, view.CancelledAt)
	assert.Equal(t, "log-1", *view.LogID)
	assert.Equal(t, now.Add(365*24*time.Hour), *view.ExpiresAt)

	// the minimum term restarts at renewal
	assert.False(t, view.CanCancel)

	_, err = svc.Renew(ctx, "student-1", adminActor())
	assert.ErrorIs(t, err, appErrors.ErrConflict)
}

func TestContractAdminCancellationSkipsMinimumTerm(t *testing.T) {
	repo := newContractRepoStub(t, 0)
	signed, admin, expires := fixedNow.Add(-time.Hour), fixedNow.Add(-time.Hour), fixedNow.Add(300*24*time.Hour)
	repo.statuses["student-1"] = models.ContractStatus{
		UserID: "student-1", Signed: true, SignedAt: &signed, SignedByAdmin: true, AdminSignedAt: &admin, ExpiresAt: &expires, UpdatedAt: fixedNow,
	}
	svc, _ := newContractServiceFixture(repo)

	_, err := svc.Cancel(context.Background(), "student-1", "fraud", true, studentActor("student-1"))
	assert.ErrorIs(t, err, appErrors.ErrForbidden)

	view, err := svc.Cancel(context.Background(), "student-1", "fraud", true, managerActor())
	require.NoError(t, err)
	assert.Equal(t, models.ContractCancelled, view.State)
	require.NotNil(t, view.CancelledBy)
	assert.Equal(t, "manager-1", *view.CancelledBy)
}

func TestContractAdminSignRequiresStudentSignature(t *testing.T) {
	svc, _ := newContractServiceFixture(newContractRepoStub(t, 0))

	_, err := svc.AdminSign(context.Background(), "student-1", false, adminActor())
	assert.ErrorIs(t, err, appErrors.ErrPreconditionFailed)

	_, err = svc.AdminSign(context.Background(), "student-1", false, managerActor())
	assert.ErrorIs(t, err, appErrors.ErrForbidden)
}

func TestContractSignValidation(t *testing.T) {
	svc, _ := newContractServiceFixture(newContractRepoStub(t, 0))

	identity := signingIdentity()
	identity.BirthDate = "01/06/1995"
	_, err := svc.Sign(context.Background(), "student-1", identity, studentActor("student-1"))
	assert.ErrorIs(t, err, appErrors.ErrValidation)

	identity = signingIdentity()
	identity.FullName = " "
	_, err = svc.Sign(context.Background(), "student-1", identity, studentActor("student-1"))
	assert.ErrorIs(t, err, appErrors.ErrValidation)

	_, err = svc.Sign(context.Background(), "student-1", signingIdentity(), adminActor())
	assert.ErrorIs(t, err, appErrors.ErrForbidden)
}

func TestContractChecksumIsStable(t *testing.T) {
	log := &models.ContractLog{UserID: "u", FullName: "n", BirthDate: time.Date(1990, 1, 1, 0, 0, 0, 0, time.UTC), SignedAt: fixedNow}
	first := contractChecksum(log)
	assert.Equal(t, first, contractChecksum(log))

	log.Address = "changed"
	assert.NotEqual(t, first, contractChecksum(log))
}
