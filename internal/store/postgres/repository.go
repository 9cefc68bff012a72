package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	leaveDatamodel "github.com/frahmantamala/leave-portal/internal/core/datamodel/leave"
	settingDatamodel "github.com/frahmantamala/leave-portal/internal/core/datamodel/setting"
	userDatamodel "github.com/frahmantamala/leave-portal/internal/core/datamodel/user"
	"github.com/frahmantamala/leave-portal/internal/core/leave"
	"github.com/frahmantamala/leave-portal/internal/core/user"
	"github.com/frahmantamala/leave-portal/internal/quota"
	"github.com/frahmantamala/leave-portal/internal/store"
)

// Repository implements store.Repository using GORM. It works with the
// postgres and sqlite dialectors.
type Repository struct {
	db *gorm.DB
	// inTx is set on the repository handed to WithinTx callbacks.
	inTx bool
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// Models lists the tables managed by this repository, for AutoMigrate.
func Models() []interface{} {
	return []interface{}{&userDatamodel.User{}, &leaveDatamodel.LeaveRequest{}, &settingDatamodel.Setting{}}
}

func (r *Repository) ListUsers(ctx context.Context) ([]*user.User, error) {
	var rows []*userDatamodel.User
	if err := r.db.WithContext(ctx).Order("created_at ASC, id ASC").Find(&rows).Error; err != nil {
		return nil, translate("list users", err)
	}
	out := make([]*user.User, len(rows))
	for i, row := range rows {
		out[i] = userFromModel(row)
	}
	return out, nil
}

func (r *Repository) GetUser(ctx context.Context, id string) (*user.User, error) {
	var row userDatamodel.User
	if err := r.forUpdate(ctx).Where("id = ?", id).First(&row).Error; err != nil {
		return nil, translate("get user", err)
	}
	return userFromModel(&row), nil
}

func (r *Repository) GetUserByEmail(ctx context.Context, email string) (*user.User, error) {
	var row userDatamodel.User
	err := r.db.WithContext(ctx).
		Where("LOWER(email) = ?", user.NormalizeEmail(email)).
		First(&row).Error
	if err != nil {
		return nil, translate("get user by email", err)
	}
	return userFromModel(&row), nil
}

func (r *Repository) UpsertUser(ctx context.Context, u *user.User) (*user.User, error) {
	row := userToModel(u)
	if row.ID == "" {
		row.ID = uuid.NewString()
	}

	db := r.db.WithContext(ctx)

	var clash int64
	err := db.Model(&userDatamodel.User{}).
		Where("LOWER(email) = ? AND id <> ?", user.NormalizeEmail(row.Email), row.ID).
		Count(&clash).Error
	if err != nil {
		return nil, translate("check user email", err)
	}
	if clash > 0 {
		return nil, store.ErrConflict
	}

	now := time.Now()
	var existing userDatamodel.User
	err = db.Where("id = ?", row.ID).First(&existing).Error
	switch {
	case err == nil:
		row.CreatedAt = existing.CreatedAt
	case errors.Is(err, gorm.ErrRecordNotFound):
		if row.CreatedAt.IsZero() {
			row.CreatedAt = now
		}
	default:
		return nil, translate("load user", err)
	}
	row.UpdatedAt = now

	if err := db.Save(row).Error; err != nil {
		return nil, translate("save user", err)
	}
	return userFromModel(row), nil
}

// DeleteUser removes the user's leave requests and then the user in one
// transaction.
func (r *Repository) DeleteUser(ctx context.Context, id string) error {
	return r.WithinTx(ctx, func(tx store.Repository) error {
		db := tx.(*Repository).db
		if err := db.Where("user_id = ?", id).Delete(&leaveDatamodel.LeaveRequest{}).Error; err != nil {
			return translate("delete user requests", err)
		}
		res := db.Where("id = ?", id).Delete(&userDatamodel.User{})
		if res.Error != nil {
			return translate("delete user", res.Error)
		}
		if res.RowsAffected == 0 {
			return store.ErrNotFound
		}
		return nil
	})
}

func (r *Repository) SetUserQuotas(ctx context.Context, id string, quotas quota.Set) error {
	res := r.db.WithContext(ctx).Model(&userDatamodel.User{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"quotas":     datatypes.NewJSONType(quotas.Clone()),
			"updated_at": time.Now(),
		})
	if res.Error != nil {
		return translate("set user quotas", res.Error)
	}
	if res.RowsAffected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (r *Repository) ListLeaveRequests(ctx context.Context, filter store.LeaveFilter) ([]*leave.Request, error) {
	q := r.db.WithContext(ctx).Model(&leaveDatamodel.LeaveRequest{})
	if filter.UserID != "" {
		q = q.Where("user_id = ?", filter.UserID)
	}
	if filter.ApproverID != "" {
		q = q.Where("approver_id = ?", filter.ApproverID)
	}
	if filter.Status != "" {
		q = q.Where("status = ?", string(filter.Status))
	}
	if filter.NeedsSettlement {
		q = q.Where("status = ? AND quota_deducted = ?", string(leave.StatusApproved), false)
	}

	var rows []*leaveDatamodel.LeaveRequest
	if err := q.Order("applied_at DESC, id DESC").Find(&rows).Error; err != nil {
		return nil, translate("list leave requests", err)
	}
	out := make([]*leave.Request, len(rows))
	for i, row := range rows {
		out[i] = requestFromModel(row)
	}
	return out, nil
}

func (r *Repository) GetLeaveRequest(ctx context.Context, id string) (*leave.Request, error) {
	var row leaveDatamodel.LeaveRequest
	if err := r.forUpdate(ctx).Where("id = ?", id).First(&row).Error; err != nil {
		return nil, translate("get leave request", err)
	}
	return requestFromModel(&row), nil
}

func (r *Repository) CreateLeaveRequest(ctx context.Context, req *leave.Request) (*leave.Request, error) {
	row := requestToModel(req)
	if row.ID == "" {
		row.ID = uuid.NewString()
	}
	if row.AppliedAt.IsZero() {
		row.AppliedAt = time.Now()
	}
	if err := r.db.WithContext(ctx).Create(row).Error; err != nil {
		return nil, translate("create leave request", err)
	}
	return requestFromModel(row), nil
}

func (r *Repository) SetLeaveRequestStatus(ctx context.Context, id string, status leave.Status, d leave.Decision) error {
	updates := map[string]interface{}{
		"status":          string(status),
		"decided_by_id":   d.DeciderID,
		"decided_by_name": d.DeciderName,
		"quota_deducted":  d.QuotaDeducted,
		"deducted_days":   d.DeductedDays,
		"updated_at":      time.Now(),
	}
	if !d.DecidedAt.IsZero() {
		updates["decided_at"] = d.DecidedAt
	}

	res := r.db.WithContext(ctx).Model(&leaveDatamodel.LeaveRequest{}).Where("id = ?", id).Updates(updates)
	if res.Error != nil {
		return translate("set leave request status", res.Error)
	}
	if res.RowsAffected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (r *Repository) GetAccessCode(ctx context.Context) (string, error) {
	var row settingDatamodel.Setting
	err := r.db.WithContext(ctx).Where("key = ?", settingDatamodel.KeyAccessCode).First(&row).Error
	if err != nil {
		return "", translate("get access code", err)
	}
	return row.Value, nil
}

func (r *Repository) SetAccessCode(ctx context.Context, code string) error {
	row := settingDatamodel.Setting{Key: settingDatamodel.KeyAccessCode, Value: code, UpdatedAt: time.Now()}
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&row).Error
	if err != nil {
		return translate("set access code", err)
	}
	return nil
}

func (r *Repository) WithinTx(ctx context.Context, fn func(tx store.Repository) error) error {
	var fnErr error
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		fnErr = fn(&Repository{db: tx, inTx: true})
		return fnErr
	})
	if err == nil {
		return nil
	}
	if fnErr != nil {
		return fnErr
	}
	return translate("transaction", err)
}

// forUpdate scopes a point read. Inside a transaction the row stays locked
// until commit, so concurrent decisions on one request or one balance
// serialize. SQLite locks the whole database and takes no row locks.
func (r *Repository) forUpdate(ctx context.Context) *gorm.DB {
	db := r.db.WithContext(ctx)
	if r.inTx && r.db.Dialector.Name() != "sqlite" {
		db = db.Clauses(clause.Locking{Strength: clause.LockingStrengthUpdate})
	}
	return db
}

func translate(op string, err error) error {
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return store.ErrNotFound
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return store.ErrConflict
	}
	return store.Unavailable(op, err)
}

func userToModel(u *user.User) *userDatamodel.User {
	return &userDatamodel.User{
		ID:            u.ID,
		Email:         user.NormalizeEmail(u.Email),
		Name:          u.Name,
		PasswordHash:  u.PasswordHash,
		Role:          string(u.Role),
		Department:    string(u.Department),
		DateOfJoining: u.DateOfJoining,
		ApproverRole:  string(u.ApproverRole),
		ApproverID:    u.ApproverID,
		Quotas:        datatypes.NewJSONType(u.Quotas.Clone()),
		CreatedAt:     u.CreatedAt,
		UpdatedAt:     u.UpdatedAt,
	}
}

func userFromModel(m *userDatamodel.User) *user.User {
	return &user.User{
		ID:            m.ID,
		Email:         m.Email,
		Name:          m.Name,
		PasswordHash:  m.PasswordHash,
		Role:          user.Role(m.Role),
		Department:    user.Department(m.Department),
		DateOfJoining: m.DateOfJoining,
		ApproverRole:  user.ApproverRole(m.ApproverRole),
		ApproverID:    m.ApproverID,
		Quotas:        m.Quotas.Data().Clone(),
		CreatedAt:     m.CreatedAt,
		UpdatedAt:     m.UpdatedAt,
	}
}

func requestToModel(r *leave.Request) *leaveDatamodel.LeaveRequest {
	return &leaveDatamodel.LeaveRequest{
		ID:            r.ID,
		UserID:        r.UserID,
		UserName:      r.UserName,
		Department:    r.Department,
		LeaveType:     r.LeaveType,
		StartDate:     r.StartDate,
		EndDate:       r.EndDate,
		ManualDays:    r.ManualDays,
		Days:          r.Days,
		Reason:        r.Reason,
		Status:        string(r.Status),
		AppliedAt:     r.AppliedAt,
		ApproverID:    r.ApproverID,
		DecidedByID:   r.DecidedByID,
		DecidedByName: r.DecidedByName,
		DecidedAt:     r.DecidedAt,
		QuotaDeducted: r.QuotaDeducted,
		DeductedDays:  r.DeductedDays,
	}
}

func requestFromModel(m *leaveDatamodel.LeaveRequest) *leave.Request {
	return &leave.Request{
		ID:            m.ID,
		UserID:        m.UserID,
		UserName:      m.UserName,
		Department:    m.Department,
		LeaveType:     m.LeaveType,
		StartDate:     m.StartDate,
		EndDate:       m.EndDate,
		ManualDays:    m.ManualDays,
		Days:          m.Days,
		Reason:        m.Reason,
		Status:        leave.Status(m.Status),
		AppliedAt:     m.AppliedAt,
		ApproverID:    m.ApproverID,
		DecidedByID:   m.DecidedByID,
		DecidedByName: m.DecidedByName,
		DecidedAt:     m.DecidedAt,
		QuotaDeducted: m.QuotaDeducted,
		DeductedDays:  m.DeductedDays,
	}
}
