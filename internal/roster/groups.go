package roster

import (
	"context"
	"fmt"
	"strings"

	"github.com/shrimpsizemoose/trekker/logger"

	"github.com/shrimpsizemoose/homeroom/internal/access"
	"github.com/shrimpsizemoose/homeroom/internal/models"
	"github.com/shrimpsizemoose/homeroom/internal/store"
)

type NewGroup struct {
	Name         string `json:"name"`
	Description  string `json:"description"`
	IsIndividual bool   `json:"is_individual"`
}

// GroupListing splits groups by the cosmetic is_individual flag.
type GroupListing struct {
	Individual []models.GroupWithCount `json:"individual"`
	Standard   []models.GroupWithCount `json:"standard"`
}

func (s *Service) CreateGroup(ctx context.Context, actor access.Actor, in NewGroup) (*models.Group, error) {
	if err := access.RequireTeacher(actor); err != nil {
		return nil, err
	}
	group := &models.Group{
		Name:         strings.TrimSpace(in.Name),
		Description:  strings.TrimSpace(in.Description),
		IsIndividual: in.IsIndividual,
		CreatedBy:    actor.UserID,
		CreatedAt:    s.now(),
	}
	if err := group.Validate(); err != nil {
		return nil, err
	}
	if err := s.store.CreateGroup(ctx, s.store.Handle(), group); err != nil {
		return nil, fmt.Errorf("failed to create group: %w", err)
	}
	logger.Info.Printf("User %d created group %d %q", actor.UserID, group.ID, group.Name)
	return group, nil
}

func (s *Service) getGroup(ctx context.Context, q store.DBTX, id int64) (*models.Group, error) {
	group, err := s.store.GetGroup(ctx, q, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get group %d: %w", id, err)
	}
	if group == nil {
		return nil, fmt.Errorf("group %d: %w", id, models.ErrNotFound)
	}
	return group, nil
}

func (s *Service) GetGroup(ctx context.Context, actor access.Actor, id int64) (*models.Group, error) {
	if err := access.RequireTeacher(actor); err != nil {
		return nil, err
	}
	return s.getGroup(ctx, s.store.Handle(), id)
}

// DeleteGroup drops the group and its memberships. Homeworks that targeted
// it stay, untargeted, with their status rows.
func (s *Service) DeleteGroup(ctx context.Context, actor access.Actor, id int64) error {
	if err := access.RequireTeacher(actor); err != nil {
		return err
	}
	if err := s.store.DeleteGroup(ctx, s.store.Handle(), id); err != nil {
		return fmt.Errorf("failed to delete group %d: %w", id, err)
	}
	logger.Info.Printf("User %d deleted group %d", actor.UserID, id)
	return nil
}

func (s *Service) ListGroups(ctx context.Context, actor access.Actor) (*GroupListing, error) {
	if err := access.RequireTeacher(actor); err != nil {
		return nil, err
	}
	groups, err := s.store.ListGroups(ctx, s.store.Handle())
	if err != nil {
		return nil, fmt.Errorf("failed to list groups: %w", err)
	}

	listing := &GroupListing{
		Individual: []models.GroupWithCount{},
		Standard:   []models.GroupWithCount{},
	}
	for _, g := range groups {
		if g.IsIndividual {
			listing.Individual = append(listing.Individual, g)
		} else {
			listing.Standard = append(listing.Standard, g)
		}
	}
	return listing, nil
}

func (s *Service) Members(ctx context.Context, actor access.Actor, groupID int64) ([]models.MemberView, error) {
	if err := access.RequireTeacher(actor); err != nil {
		return nil, err
	}
	if _, err := s.getGroup(ctx, s.store.Handle(), groupID); err != nil {
		return nil, err
	}
	members, err := s.store.ListGroupMembers(ctx, s.store.Handle(), groupID)
	if err != nil {
		return nil, fmt.Errorf("failed to list members of group %d: %w", groupID, err)
	}
	return members, nil
}

// GroupRoster is a group together with everyone in it.
type GroupRoster struct {
	Group   *models.Group       `json:"group"`
	Members []models.MemberView `json:"members"`
}

// OwnGroups shows a student the groups they are in and their classmates,
// oldest membership first.
func (s *Service) OwnGroups(ctx context.Context, actor access.Actor) ([]GroupRoster, error) {
	if actor.IsTeacher() {
		return nil, fmt.Errorf("%w: teachers are not group members", models.ErrPermissionDenied)
	}
	memberships, err := s.memberships(ctx, s.store.Handle(), actor.UserID)
	if err != nil {
		return nil, err
	}

	rosters := make([]GroupRoster, 0, len(memberships))
	for _, m := range memberships {
		group, err := s.getGroup(ctx, s.store.Handle(), m.GroupID)
		if err != nil {
			return nil, err
		}
		members, err := s.store.ListGroupMembers(ctx, s.store.Handle(), m.GroupID)
		if err != nil {
			return nil, fmt.Errorf("failed to list members of group %d: %w", m.GroupID, err)
		}
		rosters = append(rosters, GroupRoster{Group: group, Members: members})
	}
	return rosters, nil
}

// AddMembers adds students to a group and returns how many memberships were
// created. Existing members and ids that are not students are skipped, the
// rest are still added. Homeworks already assigned to the group are not
// distributed to the newcomers.
func (s *Service) AddMembers(ctx context.Context, actor access.Actor, groupID int64, studentIDs []int64) (int, error) {
	if err := access.RequireTeacher(actor); err != nil {
		return 0, err
	}

	added := 0
	var skipped []int64
	err := s.store.WithTx(ctx, func(tx store.DBTX) error {
		if _, err := s.getGroup(ctx, tx, groupID); err != nil {
			return err
		}

		now := s.now()
		for _, id := range studentIDs {
			user, err := s.store.GetUser(ctx, tx, id)
			if err != nil {
				return fmt.Errorf("failed to get user %d: %w", id, err)
			}
			if user == nil || user.Role != models.RoleStudent {
				skipped = append(skipped, id)
				continue
			}

			created, err := s.store.AddGroupMember(ctx, tx, &models.GroupMember{GroupID: groupID, UserID: id, JoinedAt: now})
			if err != nil {
				return fmt.Errorf("failed to add user %d to group %d: %w", id, groupID, err)
			}
			if created {
				added++
			} else {
				logger.Debug.Printf("User %d is already in group %d", id, groupID)
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	if len(skipped) > 0 {
		logger.Info.Printf("Skipped %d ids that are not students while adding to group %d: %v", len(skipped), groupID, skipped)
	}
	logger.Info.Printf("User %d added %d members to group %d", actor.UserID, added, groupID)
	return added, nil
}

// RemoveMember deletes a membership record, which must belong to groupID.
func (s *Service) RemoveMember(ctx context.Context, actor access.Actor, groupID, memberID int64) error {
	if err := access.RequireTeacher(actor); err != nil {
		return err
	}
	return s.store.WithTx(ctx, func(tx store.DBTX) error {
		member, err := s.store.GetGroupMember(ctx, tx, memberID)
		if err != nil {
			return fmt.Errorf("failed to get member %d: %w", memberID, err)
		}
		if member == nil || member.GroupID != groupID {
			return fmt.Errorf("member %d of group %d: %w", memberID, groupID, models.ErrNotFound)
		}
		if err := s.store.DeleteGroupMember(ctx, tx, memberID); err != nil {
			return fmt.Errorf("failed to remove member %d: %w", memberID, err)
		}
		logger.Info.Printf("User %d removed user %d from group %d", actor.UserID, member.UserID, groupID)
		return nil
	})
}

// MembershipOf returns every group the user is currently in, oldest first.
// Students may only ask about themselves.
func (s *Service) MembershipOf(ctx context.Context, actor access.Actor, userID int64) ([]models.GroupMember, error) {
	if !actor.IsTeacher() && actor.UserID != userID {
		return nil, fmt.Errorf("%w: user %d cannot view memberships of %d", models.ErrPermissionDenied, actor.UserID, userID)
	}
	return s.memberships(ctx, s.store.Handle(), userID)
}

func (s *Service) memberships(ctx context.Context, q store.DBTX, userID int64) ([]models.GroupMember, error) {
	members, err := s.store.ListMemberships(ctx, q, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list memberships of user %d: %w", userID, err)
	}
	return members, nil
}

// GroupIDsOf satisfies access.MembershipSource.
func (s *Service) GroupIDsOf(ctx context.Context, userID int64) ([]int64, error) {
	members, err := s.memberships(ctx, s.store.Handle(), userID)
	if err != nil {
		return nil, err
	}
	ids := make([]int64, 0, len(members))
	for _, m := range members {
		ids = append(ids, m.GroupID)
	}
	return ids, nil
}
