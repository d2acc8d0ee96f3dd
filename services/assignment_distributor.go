package services

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/camden-git/labelsysbackend/apperr"
	"github.com/camden-git/labelsysbackend/logger"
	"github.com/camden-git/labelsysbackend/metrics"
	"github.com/camden-git/labelsysbackend/models"
	"github.com/camden-git/labelsysbackend/permissions"
	"github.com/camden-git/labelsysbackend/realtime"
	"github.com/camden-git/labelsysbackend/repository"
)

// AssignmentStats is the progress of one project member.
type AssignmentStats struct {
	UserID    uuid.UUID `json:"user_id"`
	Username  string    `json:"username"`
	Role      string    `json:"role"`
	Assigned  int64     `json:"assigned"`
	Annotated int64     `json:"annotated"`
}

// AssignmentDistributor hands images of a project to its members. Every
// image has at most one assignment; assigning it again replaces the holder.
type AssignmentDistributor struct {
	db          *gorm.DB
	projects    *repository.ProjectRepository
	users       repository.UserRepository
	images      *repository.ImageRepository
	assignments *repository.AssignmentRepository
	events      Notifier
	metrics     *metrics.Metrics
}

func NewAssignmentDistributor(db *gorm.DB, events Notifier, m *metrics.Metrics) *AssignmentDistributor {
	return &AssignmentDistributor{
		db:          db,
		projects:    repository.NewProjectRepository(db),
		users:       repository.NewGormUserRepository(db),
		images:      repository.NewImageRepository(db),
		assignments: repository.NewAssignmentRepository(db),
		events:      notifierOrNop(events),
		metrics:     m,
	}
}

func notAMember(ids ...uuid.UUID) error {
	strs := make([]string, len(ids))
	for i, id := range ids {
		strs[i] = id.String()
	}
	return apperr.New(apperr.CodeNotAMember, "user is not a member of this project").WithMeta("user_ids", strs)
}

func (d *AssignmentDistributor) requireProject(ctx context.Context, projectID uuid.UUID) error {
	if _, err := d.projects.GetByID(ctx, projectID); err != nil {
		return internal(err, "failed to load project")
	}
	return nil
}

func (d *AssignmentDistributor) notify(eventType string, projectID uuid.UUID, userID uuid.UUID, extra map[string]interface{}) {
	ev := realtime.Event{Type: eventType, ProjectID: projectID.String(), Extra: extra}
	if userID != uuid.Nil {
		ev.UserID = userID.String()
	}
	d.events.Broadcast(ev)
}

// ManualAssign assigns the given images to userID, replacing any previous
// assignment. Ids that are unknown or belong to another project are skipped
// and a repeated image id is assigned once. It returns the number of images
// assigned.
func (d *AssignmentDistributor) ManualAssign(ctx context.Context, projectID, userID uuid.UUID, imageIDs []uuid.UUID) (int, error) {
	if err := d.requireProject(ctx, projectID); err != nil {
		return 0, err
	}
	member, err := d.projects.IsMember(ctx, projectID, userID)
	if err != nil {
		return 0, internal(err, "failed to check membership")
	}
	if !member {
		return 0, notAMember(userID)
	}
	if len(imageIDs) == 0 {
		return 0, nil
	}

	var assigned int
	err = d.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		images := d.images.WithTx(tx)
		assignments := d.assignments.WithTx(tx)

		ids, err := images.ExistingIDs(ctx, projectID, imageIDs)
		if err != nil {
			return err
		}
		if len(ids) == 0 {
			return nil
		}
		if err := assignments.DeleteForImages(ctx, ids); err != nil {
			return err
		}
		now := time.Now()
		rows := make([]models.ImageAssignment, len(ids))
		for i, id := range ids {
			rows[i] = models.ImageAssignment{ImageID: id, UserID: userID, AssignedAt: now}
		}
		if err := assignments.CreateBatch(ctx, rows); err != nil {
			return err
		}
		assigned = len(ids)
		return nil
	})
	if err != nil {
		return 0, internal(err, "failed to assign images")
	}

	if skipped := len(imageIDs) - assigned; skipped > 0 {
		logger.L().Debug("manual assign skipped ids", zap.Int("skipped", skipped))
	}
	logger.L().Info("images assigned",
		zap.String("project_id", projectID.String()),
		zap.String("user_id", userID.String()),
		zap.String("mode", "manual"),
		zap.Int("count", assigned),
	)
	d.metrics.ImagesAssigned("manual", assigned)
	if assigned > 0 {
		d.notify(realtime.EventAssignmentsChanged, projectID, userID, map[string]interface{}{"assigned": assigned})
	}
	return assigned, nil
}

// AutoAssign distributes unassigned images of the project round-robin over
// userIDs, oldest upload first. countPerUser caps the images per user; nil
// assigns every unassigned image. Duplicate user ids are collapsed to their
// first occurrence before the rotation, so a user listed twice does not get
// twice the share that strict userIDs[i mod len(userIDs)] pairing would give.
func (d *AssignmentDistributor) AutoAssign(ctx context.Context, projectID uuid.UUID, userIDs []uuid.UUID, countPerUser *int) (int, error) {
	users := dedupeIDs(userIDs)
	if len(users) == 0 {
		return 0, apperr.Invalid("at least one user is required")
	}
	if countPerUser != nil && *countPerUser <= 0 {
		return 0, apperr.Invalid("count_per_user must be positive")
	}
	if err := d.requireProject(ctx, projectID); err != nil {
		return 0, err
	}

	missing, err := d.projects.NonMembers(ctx, projectID, users)
	if err != nil {
		return 0, internal(err, "failed to check membership")
	}
	if len(missing) > 0 {
		return 0, notAMember(missing...)
	}

	var plan []models.ImageAssignment
	err = d.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		limit := -1
		if countPerUser != nil {
			limit = *countPerUser * len(users)
		}
		candidates, err := d.images.WithTx(tx).UnassignedIDs(ctx, projectID, limit)
		if err != nil {
			return err
		}
		plan = RoundRobin(candidates, users, time.Now())
		return d.assignments.WithTx(tx).CreateBatch(ctx, plan)
	})
	if err != nil {
		return 0, internal(err, "failed to auto-assign images")
	}

	logger.L().Info("images assigned",
		zap.String("project_id", projectID.String()),
		zap.String("mode", "auto"),
		zap.Int("users", len(users)),
		zap.Int("count", len(plan)),
	)
	d.metrics.ImagesAssigned("auto", len(plan))
	if len(plan) > 0 {
		d.notify(realtime.EventAssignmentsChanged, projectID, uuid.Nil, map[string]interface{}{"assigned": len(plan)})
	}
	return len(plan), nil
}

// RoundRobin pairs the i-th image with users[i mod len(users)].
func RoundRobin(imageIDs, users []uuid.UUID, at time.Time) []models.ImageAssignment {
	if len(users) == 0 {
		return nil
	}
	out := make([]models.ImageAssignment, len(imageIDs))
	for i, id := range imageIDs {
		out[i] = models.ImageAssignment{ImageID: id, UserID: users[i%len(users)], AssignedAt: at}
	}
	return out
}

func dedupeIDs(ids []uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]bool, len(ids))
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}

// Unassign removes the assignment of an image
func (d *AssignmentDistributor) Unassign(ctx context.Context, projectID, imageID uuid.UUID) error {
	deleted, err := d.assignments.Delete(ctx, projectID, imageID)
	if err != nil {
		return internal(err, "failed to unassign image")
	}
	if !deleted {
		return apperr.NotFound("assignment")
	}
	d.notify(realtime.EventAssignmentsChanged, projectID, uuid.Nil, map[string]interface{}{"image_id": imageID.String()})
	return nil
}

// AddMember makes userID a member of the project with the given role. An
// empty role means annotator.
func (d *AssignmentDistributor) AddMember(ctx context.Context, projectID, userID uuid.UUID, role string) (*models.ProjectMember, error) {
	if role == "" {
		role = permissions.RoleAnnotator
	}
	if !permissions.IsValidRole(role) {
		return nil, apperr.Newf(apperr.CodeInvalid, "unknown role %q", role)
	}
	if err := d.requireProject(ctx, projectID); err != nil {
		return nil, err
	}
	user, err := d.users.GetByID(ctx, userID)
	if err != nil {
		return nil, internal(err, "failed to load user")
	}

	member := &models.ProjectMember{ProjectID: projectID, UserID: userID, Role: role}
	if err := d.projects.AddMember(ctx, member); err != nil {
		if apperr.IsCode(err, apperr.CodeConflict) {
			return nil, apperr.Wrap(err, apperr.CodeConflict, "user is already a member of this project")
		}
		return nil, internal(err, "failed to add member")
	}
	member.User = user

	logger.L().Info("member added",
		zap.String("project_id", projectID.String()),
		zap.String("user_id", userID.String()),
		zap.String("role", role),
	)
	return member, nil
}

// ListMembers returns the project's members in join order
func (d *AssignmentDistributor) ListMembers(ctx context.Context, projectID uuid.UUID) ([]models.ProjectMember, error) {
	if err := d.requireProject(ctx, projectID); err != nil {
		return nil, err
	}
	members, err := d.projects.ListMembers(ctx, projectID)
	if err != nil {
		return nil, internal(err, "failed to list members")
	}
	return members, nil
}

// RemoveMember deletes the membership and every assignment the user holds on
// this project's images. Assignments in other projects are left alone.
func (d *AssignmentDistributor) RemoveMember(ctx context.Context, projectID, userID uuid.UUID) error {
	var released int64
	err := d.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		deleted, err := d.projects.WithTx(tx).DeleteMember(ctx, projectID, userID)
		if err != nil {
			return err
		}
		if !deleted {
			return apperr.NotFound("member")
		}
		released, err = d.assignments.WithTx(tx).DeleteForUserInProject(ctx, projectID, userID)
		return err
	})
	if err != nil {
		return internal(err, "failed to remove member")
	}

	logger.L().Info("member removed",
		zap.String("project_id", projectID.String()),
		zap.String("user_id", userID.String()),
		zap.Int64("released_assignments", released),
	)
	d.notify(realtime.EventMemberRemoved, projectID, userID, map[string]interface{}{"released": released})
	return nil
}

// Stats reports per-member progress in join order
func (d *AssignmentDistributor) Stats(ctx context.Context, projectID uuid.UUID) ([]AssignmentStats, error) {
	members, err := d.ListMembers(ctx, projectID)
	if err != nil {
		return nil, err
	}
	assigned, err := d.assignments.AssignedCounts(ctx, projectID)
	if err != nil {
		return nil, internal(err, "failed to count assignments")
	}
	annotated, err := d.assignments.AnnotatedCounts(ctx, projectID)
	if err != nil {
		return nil, internal(err, "failed to count annotated images")
	}

	stats := make([]AssignmentStats, len(members))
	for i, m := range members {
		stats[i] = AssignmentStats{
			UserID:    m.UserID,
			Role:      m.Role,
			Assigned:  assigned[m.UserID],
			Annotated: annotated[m.UserID],
		}
		if m.User != nil {
			stats[i].Username = m.User.Username
		}
	}
	return stats, nil
}

// ListUnassigned returns the project's unassigned images, newest first
func (d *AssignmentDistributor) ListUnassigned(ctx context.Context, projectID uuid.UUID) ([]models.Image, error) {
	if err := d.requireProject(ctx, projectID); err != nil {
		return nil, err
	}
	images, err := d.images.ListUnassigned(ctx, projectID)
	if err != nil {
		return nil, internal(err, "failed to list unassigned images")
	}
	return images, nil
}

// WorkQueue returns the images assigned to userID in the project, oldest
// first
func (d *AssignmentDistributor) WorkQueue(ctx context.Context, projectID, userID uuid.UUID) ([]models.Image, error) {
	images, err := d.images.ListAssignedTo(ctx, projectID, userID)
	if err != nil {
		return nil, internal(err, "failed to list work queue")
	}
	return images, nil
}

// IsAssignedTo reports whether the image is assigned to userID
func (d *AssignmentDistributor) IsAssignedTo(ctx context.Context, imageID, userID uuid.UUID) (bool, error) {
	ok, err := d.assignments.IsAssignedTo(ctx, imageID, userID)
	if err != nil {
		return false, internal(err, "failed to check assignment")
	}
	return ok, nil
}
