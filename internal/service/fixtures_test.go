package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/lesson-engine/internal/models"
	"github.com/noah-isme/lesson-engine/internal/repository"
)

var fixedNow = time.Date(2024, time.March, 4, 9, 0, 0, 0, time.UTC) // Monday

func fixedClock() time.Time { return fixedNow }

func adminActor() *models.JWTClaims {
	return &models.JWTClaims{UserID: "admin-1", Role: models.RoleAdmin}
}

func managerActor() *models.JWTClaims {
	return &models.JWTClaims{UserID: "manager-1", Role: models.RoleManager}
}

func teacherActor(id string) *models.JWTClaims {
	return &models.JWTClaims{UserID: id, Role: models.RoleTeacher}
}

func studentActor(id string) *models.JWTClaims {
	return &models.JWTClaims{UserID: id, Role: models.RoleStudent}
}

type txProviderMock struct {
	db   *sqlx.DB
	mock sqlmock.Sqlmock
}

func newTxProviderMock(t *testing.T) (txProvider, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	sqlxdb := sqlx.NewDb(db, "sqlmock")
	t.Cleanup(func() { db.Close() })
	return &txProviderMock{db: sqlxdb, mock: mock}, mock
}

func (t *txProviderMock) BeginTxx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error) {
	return t.db.BeginTxx(ctx, opts)
}

type notifierStub struct {
	mu   sync.Mutex
	sent []Notification
}

func (n *notifierStub) Notify(ctx context.Context, notification Notification) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, notification)
}

func (n *notifierStub) kinds() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	kinds := make([]string, 0, len(n.sent))
	for _, s := range n.sent {
		kinds = append(kinds, s.Kind)
	}
	return kinds
}

type classRepoStub struct {
	mu      sync.Mutex
	seq     int
	locks   int
	classes map[string]*models.Class
}

func newClassRepoStub(classes ...models.Class) *classRepoStub {
	stub := &classRepoStub{classes: make(map[string]*models.Class)}
	for i := range classes {
		c := classes[i]
		stub.classes[c.ID] = &c
	}
	return stub
}

func (r *classRepoStub) get(id string) *models.Class {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := *r.classes[id]
	return &copied
}

func (r *classRepoStub) FindByID(ctx context.Context, id string) (*models.Class, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.classes[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copied := *c
	return &copied, nil
}

func (r *classRepoStub) List(ctx context.Context, filter models.ClassFilter) ([]models.Class, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var result []models.Class
	for _, c := range r.classes {
		if filter.StudentID != "" && c.StudentID != filter.StudentID {
			continue
		}
		if filter.TeacherID != "" && c.AssignedTeacher() != filter.TeacherID {
			continue
		}
		if len(filter.Statuses) > 0 {
			match := false
			for _, s := range filter.Statuses {
				match = match || c.Status == s
			}
			if !match {
				continue
			}
		}
		if filter.From != nil && c.ScheduledAt.Before(*filter.From) {
			continue
		}
		if filter.To != nil && !c.ScheduledAt.Before(*filter.To) {
			continue
		}
		result = append(result, *c)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ScheduledAt.Before(result[j].ScheduledAt) })
	return result, nil
}

func (r *classRepoStub) Insert(ctx context.Context, exec sqlx.ExtContext, class *models.Class) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if class.Status == models.ClassScheduled && class.TeacherID != nil {
		for _, c := range r.classes {
			if c.Status == models.ClassScheduled && c.AssignedTeacher() == *class.TeacherID && c.ScheduledAt.Equal(class.ScheduledAt) {
				return repository.ErrSlotTaken
			}
		}
	}
	if class.ID == "" {
		r.seq++
		class.ID = fmt.Sprintf("class-new-%d", r.seq)
	}
	copied := *class
	r.classes[class.ID] = &copied
	return nil
}

func (r *classRepoStub) InsertGenerated(ctx context.Context, exec sqlx.ExtContext, class *models.Class) (bool, error) {
	r.mu.Lock()
	for _, c := range r.classes {
		if c.TemplateEntryID != nil && c.StudentID == class.StudentID && c.ScheduledAt.Equal(class.ScheduledAt) {
			r.mu.Unlock()
			return false, nil
		}
	}
	r.mu.Unlock()
	if err := r.Insert(ctx, exec, class); err != nil {
		if errors.Is(err, repository.ErrSlotTaken) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (r *classRepoStub) LockTeacherSchedule(ctx context.Context, exec sqlx.ExtContext, teacherID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.locks++
	return nil
}

func (r *classRepoStub) CountTeacherOverlaps(ctx context.Context, exec sqlx.ExtContext, teacherID, excludeID string, start time.Time, duration time.Duration) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	count := 0
	for _, c := range r.classes {
		if c.ID == excludeID || c.Status != models.ClassScheduled || c.AssignedTeacher() != teacherID {
			continue
		}
		if c.ScheduledAt.After(start.Add(-duration)) && c.ScheduledAt.Before(start.Add(duration)) {
			count++
		}
	}
	return count, nil
}

func (r *classRepoStub) UpdateStatus(ctx context.Context, exec sqlx.ExtContext, id string, expected, next models.ClassStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.classes[id]
	if !ok || c.Status != expected {
		return repository.ErrNotApplied
	}
	c.Status = next
	return nil
}

func (r *classRepoStub) UpdateTeacher(ctx context.Context, id string, teacherID *string, now time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.classes[id]
	if !ok || !c.ScheduledAt.After(now) || c.Status.IsTerminal() {
		return repository.ErrNotApplied
	}
	if teacherID == nil && c.Status != models.ClassScheduled {
		return repository.ErrNotApplied
	}
	c.TeacherID = teacherID
	return nil
}

func (r *classRepoStub) DeleteGenerated(ctx context.Context, exec sqlx.ExtContext, studentID string, req models.DeleteClassesRequest, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entries := make(map[string]bool, len(req.TemplateEntries))
	for _, id := range req.TemplateEntries {
		entries[id] = true
	}
	var removed int64
	for id, c := range r.classes {
		if c.StudentID != studentID || c.Status != models.ClassScheduled || c.TemplateEntryID == nil || !c.ScheduledAt.After(now) {
			continue
		}
		if len(entries) > 0 && !entries[*c.TemplateEntryID] {
			continue
		}
		if req.FromDate != nil && c.ScheduledAt.Before(*req.FromDate) {
			continue
		}
		if req.Option == models.DeleteDateRange && req.ToDate != nil && !c.ScheduledAt.Before(*req.ToDate) {
			continue
		}
		delete(r.classes, id)
		removed++
	}
	return removed, nil
}

type creditRepoStub struct {
	mu  sync.Mutex
	seq int
	txs []models.CreditTransaction
}

func (r *creditRepoStub) Insert(ctx context.Context, exec sqlx.ExtContext, tx *models.CreditTransaction) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if tx.ID == "" {
		r.seq++
		tx.ID = fmt.Sprintf("credit-%d", r.seq)
	}
	r.txs = append(r.txs, *tx)
	return nil
}

func (r *creditRepoStub) FindByID(ctx context.Context, studentID, id string) (*models.CreditTransaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, tx := range r.txs {
		if tx.ID == id && tx.StudentID == studentID {
			copied := tx
			return &copied, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (r *creditRepoStub) ListByStudent(ctx context.Context, studentID string, filter models.CreditHistoryFilter) ([]models.CreditTransaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var result []models.CreditTransaction
	for i := len(r.txs) - 1; i >= 0; i-- {
		tx := r.txs[i]
		if tx.StudentID != studentID {
			continue
		}
		if filter.Type != nil && tx.Type != *filter.Type {
			continue
		}
		result = append(result, tx)
	}
	return result, nil
}

func (r *creditRepoStub) Consume(ctx context.Context, exec sqlx.ExtContext, studentID, id string, classID *string, now time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.txs {
		tx := &r.txs[i]
		if tx.ID == id && tx.StudentID == studentID && tx.UsedAt == nil && now.Before(tx.ExpiresAt) {
			used := now
			tx.UsedAt = &used
			tx.Action = models.CreditUsed
			if classID != nil {
				tx.ClassID = classID
			}
			return nil
		}
	}
	return repository.ErrNotApplied
}

func (r *creditRepoStub) EarliestUsable(ctx context.Context, exec sqlx.ExtContext, studentID string, creditType models.CreditType, now time.Time) (*models.CreditTransaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var best *models.CreditTransaction
	for i := range r.txs {
		tx := r.txs[i]
		if tx.StudentID != studentID || tx.Type != creditType || !tx.Usable(now) {
			continue
		}
		if best == nil || tx.ExpiresAt.Before(best.ExpiresAt) {
			copied := tx
			best = &copied
		}
	}
	if best == nil {
		return nil, sql.ErrNoRows
	}
	return best, nil
}

type counterStub struct {
	mu     sync.Mutex
	counts map[string]int
}

func newCounterStub() *counterStub {
	return &counterStub{counts: make(map[string]int)}
}

func (c *counterStub) Count(ctx context.Context, studentID, period string) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.counts[studentID+"/"+period], nil
}

func (c *counterStub) Increment(ctx context.Context, exec sqlx.ExtContext, studentID, period string, quota int) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	key := studentID + "/" + period
	if c.counts[key] >= quota {
		return 0, repository.ErrNotApplied
	}
	c.counts[key]++
	return c.counts[key], nil
}

type userStub struct {
	users map[string]models.User
}

func (u userStub) FindByID(ctx context.Context, id string) (*models.User, error) {
	user, ok := u.users[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &user, nil
}

func (u userStub) FindByIDs(ctx context.Context, ids []string) ([]models.User, error) {
	var result []models.User
	for _, id := range ids {
		if user, ok := u.users[id]; ok {
			result = append(result, user)
		}
	}
	return result, nil
}

type availabilityStub struct {
	mu       sync.Mutex
	slots    map[string][]models.AvailabilitySlot
	lists    int
	replaced int
}

func (a *availabilityStub) ListByTeacher(ctx context.Context, teacherID string) ([]models.AvailabilitySlot, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.lists++
	return append([]models.AvailabilitySlot(nil), a.slots[teacherID]...), nil
}

func (a *availabilityStub) FindByID(ctx context.Context, id string) (*models.AvailabilitySlot, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, slots := range a.slots {
		for _, slot := range slots {
			if slot.ID == id {
				copied := slot
				return &copied, nil
			}
		}
	}
	return nil, sql.ErrNoRows
}

func (a *availabilityStub) Replace(ctx context.Context, teacherID string, slots []models.AvailabilitySlot) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.slots == nil {
		a.slots = make(map[string][]models.AvailabilitySlot)
	}
	a.replaced++
	a.slots[teacherID] = append([]models.AvailabilitySlot(nil), slots...)
	return nil
}

type vacationStub struct {
	mu        sync.Mutex
	seq       int
	vacations []models.Vacation
}

func (v *vacationStub) Create(ctx context.Context, vacation *models.Vacation) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.seq++
	vacation.ID = fmt.Sprintf("vacation-%d", v.seq)
	v.vacations = append(v.vacations, *vacation)
	return nil
}

func (v *vacationStub) FindByID(ctx context.Context, id string) (*models.Vacation, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	for _, vacation := range v.vacations {
		if vacation.ID == id {
			copied := vacation
			return &copied, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (v *vacationStub) ListByTeacher(ctx context.Context, teacherID string) ([]models.Vacation, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	var result []models.Vacation
	for _, vacation := range v.vacations {
		if vacation.TeacherID == teacherID {
			result = append(result, vacation)
		}
	}
	return result, nil
}

func (v *vacationStub) ListOverlapping(ctx context.Context, teacherID string, from, to time.Time) ([]models.Vacation, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	var result []models.Vacation
	for _, vacation := range v.vacations {
		if vacation.TeacherID == teacherID && !vacation.StartDate.After(to) && !vacation.EndDate.AddDate(0, 0, 1).Before(from) {
			result = append(result, vacation)
		}
	}
	return result, nil
}

func (v *vacationStub) DeleteBeforeStart(ctx context.Context, id string, now time.Time) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	for i, vacation := range v.vacations {
		if vacation.ID == id && vacation.StartDate.After(now) {
			v.vacations = append(v.vacations[:i], v.vacations[i+1:]...)
			return nil
		}
	}
	return repository.ErrNotApplied
}
