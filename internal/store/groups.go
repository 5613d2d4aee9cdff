package store

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"github.com/shrimpsizemoose/homeroom/internal/models"
)

func (s *BaseStore) CreateGroup(ctx context.Context, q DBTX, group *models.Group) error {
	id, err := s.insertReturningID(ctx, q, "create group", `
		INSERT INTO student_groups (name, description, is_individual, created_by, created_at)
		VALUES (?, ?, ?, ?, ?)
		RETURNING id
	`, group.Name, group.Description, group.IsIndividual, group.CreatedBy, group.CreatedAt)
	if err != nil {
		return err
	}
	group.ID = id
	return nil
}

func (s *BaseStore) GetGroup(ctx context.Context, q DBTX, id int64) (*models.Group, error) {
	var group models.Group
	found, err := s.getOne(ctx, q, &group, "get group", `
		SELECT id, name, description, is_individual, created_by, created_at
		FROM student_groups
		WHERE id = ?
	`, id)
	if err != nil || !found {
		return nil, err
	}
	return &group, nil
}

func (s *BaseStore) ListGroups(ctx context.Context, q DBTX) ([]models.GroupWithCount, error) {
	var groups []models.GroupWithCount
	err := sqlx.SelectContext(ctx, q, &groups, `
		SELECT g.id, g.name, g.description, g.is_individual, g.created_by, g.created_at,
		       COUNT(gm.user_id) AS member_count
		FROM student_groups g
		LEFT JOIN group_members gm ON g.id = gm.group_id
		GROUP BY g.id, g.name, g.description, g.is_individual, g.created_by, g.created_at
		ORDER BY g.name, g.id
	`)
	if err != nil {
		return nil, s.fail("list groups", err)
	}
	return groups, nil
}

// DeleteGroup removes the group; memberships go with it through ON DELETE
// CASCADE, homeworks targeted at it become untargeted and their status rows
// stay.
func (s *BaseStore) DeleteGroup(ctx context.Context, q DBTX, id int64) error {
	return s.execAffecting(ctx, q, "delete group", `DELETE FROM student_groups WHERE id = ?`, id)
}

// AddGroupMember inserts a membership and reports whether a row was created.
// An existing (group_id, user_id) pair is left alone.
func (s *BaseStore) AddGroupMember(ctx context.Context, q DBTX, member *models.GroupMember) (bool, error) {
	var id int64
	err := q.QueryRowxContext(ctx, s.Converter(`
		INSERT INTO group_members (group_id, user_id, joined_at)
		VALUES (?, ?, ?)
		ON CONFLICT (group_id, user_id) DO NOTHING
		RETURNING id
	`), member.GroupID, member.UserID, member.JoinedAt).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, s.fail("add group member", err)
	}
	member.ID = id
	return true, nil
}

func (s *BaseStore) GetGroupMember(ctx context.Context, q DBTX, id int64) (*models.GroupMember, error) {
	var member models.GroupMember
	found, err := s.getOne(ctx, q, &member, "get group member", `
		SELECT id, group_id, user_id, joined_at FROM group_members WHERE id = ?
	`, id)
	if err != nil || !found {
		return nil, err
	}
	return &member, nil
}

func (s *BaseStore) DeleteGroupMember(ctx context.Context, q DBTX, id int64) error {
	return s.execAffecting(ctx, q, "delete group member", `DELETE FROM group_members WHERE id = ?`, id)
}

func (s *BaseStore) ListGroupMembers(ctx context.Context, q DBTX, groupID int64) ([]models.MemberView, error) {
	var members []models.MemberView
	err := sqlx.SelectContext(ctx, q, &members, s.Converter(`
		SELECT gm.id, gm.group_id, gm.user_id, gm.joined_at, u.first_name, u.last_name, u.email
		FROM group_members gm
		JOIN users u ON u.id = gm.user_id
		WHERE gm.group_id = ?
		ORDER BY gm.joined_at, gm.id
	`), groupID)
	if err != nil {
		return nil, s.fail("list group members", err)
	}
	return members, nil
}

func (s *BaseStore) ListMemberships(ctx context.Context, q DBTX, userID int64) ([]models.GroupMember, error) {
	var members []models.GroupMember
	err := sqlx.SelectContext(ctx, q, &members, s.Converter(`
		SELECT id, group_id, user_id, joined_at
		FROM group_members
		WHERE user_id = ?
		ORDER BY joined_at, id
	`), userID)
	if err != nil {
		return nil, s.fail("list memberships", err)
	}
	return members, nil
}
