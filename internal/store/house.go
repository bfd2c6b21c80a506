package store

import (
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/arrosemoi-app/server/internal/model"
)

type HouseStore struct {
	db *sql.DB
}

func NewHouseStore(db *sql.DB) *HouseStore {
	return &HouseStore{db: db}
}

const houseCols = `id, name, invite_code, created_by, created_at`
const houseMemberCols = `id, house_id, user_id, role, joined_at`

func scanHouse(scanner interface{ Scan(...any) error }) (*model.House, error) {
	var h model.House
	err := scanner.Scan(&h.ID, &h.Name, &h.InviteCode, &h.CreatedBy, &h.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &h, nil
}

func scanHouseMember(scanner interface{ Scan(...any) error }) (*model.HouseMember, error) {
	var m model.HouseMember
	err := scanner.Scan(&m.ID, &m.HouseID, &m.UserID, &m.Role, &m.JoinedAt)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// generateInviteCode returns an 8-character uppercase hex code.
func generateInviteCode() (string, error) {
	buf := make([]byte, 4)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate invite code: %w", err)
	}
	return strings.ToUpper(hex.EncodeToString(buf)), nil
}

// Create inserts a house and makes the creator its owner, atomically.
func (s *HouseStore) Create(name string, createdBy int64) (*model.House, error) {
	code, err := generateInviteCode()
	if err != nil {
		return nil, err
	}

	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.Exec(
		`INSERT INTO houses (name, invite_code, created_by) VALUES (?, ?, ?)`,
		name, code, createdBy,
	)
	if err != nil {
		return nil, fmt.Errorf("insert house: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	if _, err := tx.Exec(
		`INSERT INTO house_members (house_id, user_id, role) VALUES (?, ?, ?)`,
		id, createdBy, model.RoleOwner,
	); err != nil {
		return nil, fmt.Errorf("insert owner member: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}

	return s.GetByID(id)
}

func (s *HouseStore) GetByID(id int64) (*model.House, error) {
	row := s.db.QueryRow(`SELECT `+houseCols+` FROM houses WHERE id = ?`, id)
	h, err := scanHouse(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get house: %w", err)
	}
	return h, nil
}

func (s *HouseStore) GetByInviteCode(code string) (*model.House, error) {
	row := s.db.QueryRow(`SELECT `+houseCols+` FROM houses WHERE invite_code = ?`, code)
	h, err := scanHouse(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get house by invite code: %w", err)
	}
	return h, nil
}

// ListForUser returns the houses the user belongs to, annotated with their
// role and member/plant counts.
func (s *HouseStore) ListForUser(userID int64) ([]model.House, error) {
	rows, err := s.db.Query(`
		SELECT h.id, h.name, h.invite_code, h.created_by, h.created_at, hm.role,
			(SELECT COUNT(*) FROM house_members WHERE house_id = h.id) AS member_count,
			(SELECT COUNT(*) FROM plants WHERE house_id = h.id) AS plant_count
		FROM houses h
		JOIN house_members hm ON hm.house_id = h.id
		WHERE hm.user_id = ?
		ORDER BY h.created_at ASC`, userID)
	if err != nil {
		return nil, fmt.Errorf("list houses for user: %w", err)
	}
	defer rows.Close()

	var houses []model.House
	for rows.Next() {
		var h model.House
		if err := rows.Scan(&h.ID, &h.Name, &h.InviteCode, &h.CreatedBy, &h.CreatedAt,
			&h.Role, &h.MemberCount, &h.PlantCount); err != nil {
			return nil, fmt.Errorf("scan house: %w", err)
		}
		houses = append(houses, h)
	}
	return houses, rows.Err()
}

// HouseIDsForUser returns just the IDs of the user's houses.
func (s *HouseStore) HouseIDsForUser(userID int64) ([]int64, error) {
	rows, err := s.db.Query(`SELECT house_id FROM house_members WHERE user_id = ?`, userID)
	if err != nil {
		return nil, fmt.Errorf("list house ids: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan house id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *HouseStore) GetMember(houseID, userID int64) (*model.HouseMember, error) {
	row := s.db.QueryRow(
		`SELECT `+houseMemberCols+` FROM house_members WHERE house_id = ? AND user_id = ?`,
		houseID, userID,
	)
	m, err := scanHouseMember(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get house member: %w", err)
	}
	return m, nil
}

func (s *HouseStore) AddMember(houseID, userID int64, role string) (*model.HouseMember, error) {
	result, err := s.db.Exec(
		`INSERT INTO house_members (house_id, user_id, role) VALUES (?, ?, ?)`,
		houseID, userID, role,
	)
	if err != nil {
		return nil, fmt.Errorf("add house member: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	row := s.db.QueryRow(`SELECT `+houseMemberCols+` FROM house_members WHERE id = ?`, id)
	return scanHouseMember(row)
}

func (s *HouseStore) RemoveMember(houseID, userID int64) error {
	_, err := s.db.Exec(
		`DELETE FROM house_members WHERE house_id = ? AND user_id = ?`,
		houseID, userID,
	)
	if err != nil {
		return fmt.Errorf("remove house member: %w", err)
	}
	return nil
}

// ListMembers returns the house's members with their emails.
func (s *HouseStore) ListMembers(houseID int64) ([]model.HouseMember, error) {
	rows, err := s.db.Query(`
		SELECT hm.id, hm.house_id, hm.user_id, hm.role, u.email, hm.joined_at
		FROM house_members hm
		JOIN users u ON u.id = hm.user_id
		WHERE hm.house_id = ?
		ORDER BY hm.joined_at ASC`, houseID)
	if err != nil {
		return nil, fmt.Errorf("list house members: %w", err)
	}
	defer rows.Close()

	var members []model.HouseMember
	for rows.Next() {
		var m model.HouseMember
		if err := rows.Scan(&m.ID, &m.HouseID, &m.UserID, &m.Role, &m.Email, &m.JoinedAt); err != nil {
			return nil, fmt.Errorf("scan house member: %w", err)
		}
		members = append(members, m)
	}
	return members, rows.Err()
}

func (s *HouseStore) Delete(id int64) error {
	_, err := s.db.Exec(`DELETE FROM houses WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete house: %w", err)
	}
	return nil
}
