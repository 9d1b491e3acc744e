package services

import (
	"context"

	"widgethub/models"

	"gorm.io/gorm"
)

type Action string

const (
	ActionRead  Action = "read"
	ActionWrite Action = "write"
)

// Resource is a class of tenant data guarded by the access policy.
type Resource string

const (
	ResourceProject  Resource = "project"
	ResourceMembers  Resource = "members"
	ResourceChannels Resource = "channels"
	ResourceSchedule Resource = "schedules"
	ResourceLeads    Resource = "leads"
	ResourceChat     Resource = "chat"
	ResourceABTests  Resource = "abtests"
	ResourceUsers    Resource = "users"
)

// marketingWrites lists what a marketing member may change in its projects.
var marketingWrites = map[Resource]bool{
	ResourceChannels: true,
	ResourceSchedule: true,
	ResourceLeads:    true,
	ResourceChat:     true,
	ResourceABTests:  true,
}

// Decide is the pure policy. member reports whether the user belongs to the
// project the request targets.
//
//   - inactive users get nothing
//   - admins and superusers get everything
//   - user management is admin only
//   - everyone else needs membership; marketing may write the resources in
//     marketingWrites, viewers only read
func Decide(user *models.User, member bool, res Resource, action Action) bool {
	if user == nil || !user.IsActive {
		return false
	}
	if user.IsSuperuser || user.Role == models.RoleAdmin {
		return true
	}
	if res == ResourceUsers || !member {
		return false
	}
	if action == ActionRead {
		return true
	}
	return user.Role == models.RoleMarketing && marketingWrites[res]
}

// AccessControl answers dashboard permission checks.
type AccessControl struct {
	db *gorm.DB
}

func NewAccessControl(db *gorm.DB) *AccessControl {
	return &AccessControl{db: db}
}

// IsMember reports whether the user belongs to the project.
func (a *AccessControl) IsMember(ctx context.Context, userID, projectID uint) (bool, error) {
	var n int64
	err := a.db.WithContext(ctx).Model(&models.ProjectMember{}).
		Where("user_id = ? AND project_id = ?", userID, projectID).
		Count(&n).Error
	if err != nil {
		return false, internal("failed to check membership", err)
	}
	return n > 0, nil
}

// CanManage checks whether user may perform action on res within projectID.
// A zero projectID means the resource is not tenant-scoped.
func (a *AccessControl) CanManage(ctx context.Context, user *models.User, projectID uint, res Resource, action Action) (bool, error) {
	if user == nil {
		return false, nil
	}
	member := false
	if projectID != 0 && !user.IsSuperuser && user.Role != models.RoleAdmin {
		var err error
		if member, err = a.IsMember(ctx, user.ID, projectID); err != nil {
			return false, err
		}
	}
	return Decide(user, member, res, action), nil
}

// Require is CanManage returning Forbidden on denial.
func (a *AccessControl) Require(ctx context.Context, user *models.User, projectID uint, res Resource, action Action) error {
	ok, err := a.CanManage(ctx, user, projectID, res, action)
	if err != nil {
		return err
	}
	if !ok {
		return forbidden("%s access to %s denied", action, res)
	}
	return nil
}

// VisibleProjectIDs returns the projects a user can see. A nil slice with
// all=true means every project.
func (a *AccessControl) VisibleProjectIDs(ctx context.Context, user *models.User) (ids []uint, all bool, err error) {
	if user.IsSuperuser || user.Role == models.RoleAdmin {
		return nil, true, nil
	}
	err = a.db.WithContext(ctx).Model(&models.ProjectMember{}).
		Where("user_id = ?", user.ID).
		Pluck("project_id", &ids).Error
	if err != nil {
		return nil, false, internal("failed to list memberships", err)
	}
	return ids, false, nil
}
