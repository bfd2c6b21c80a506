package store

import (
	"database/sql"
	"fmt"

	"github.com/arrosemoi-app/server/internal/model"
)

type UserStore struct {
	db *sql.DB
}

func NewUserStore(db *sql.DB) *UserStore {
	return &UserStore{db: db}
}

const userCols = `id, email, password, created_at`

func scanUser(scanner interface{ Scan(...any) error }) (*model.User, error) {
	var u model.User
	err := scanner.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (s *UserStore) Create(email, passwordHash string) (*model.User, error) {
	result, err := s.db.Exec(
		`INSERT INTO users (email, password) VALUES (?, ?)`,
		email, passwordHash,
	)
	if err != nil {
		return nil, fmt.Errorf("insert user: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(id)
}

func (s *UserStore) GetByID(id int64) (*model.User, error) {
	row := s.db.QueryRow(`SELECT `+userCols+` FROM users WHERE id = ?`, id)
	u, err := scanUser(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

func (s *UserStore) GetByEmail(email string) (*model.User, error) {
	row := s.db.QueryRow(`SELECT `+userCols+` FROM users WHERE email = ?`, email)
	u, err := scanUser(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get user by email: %w", err)
	}
	return u, nil
}

// GetAPIKeys returns the user's external-service API keys.
func (s *UserStore) GetAPIKeys(userID int64) (*model.APIKeys, error) {
	var keys model.APIKeys
	err := s.db.QueryRow(
		`SELECT openai_api_key, plantnet_api_key FROM users WHERE id = ?`, userID,
	).Scan(&keys.OpenAI, &keys.PlantNet)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get api keys: %w", err)
	}
	return &keys, nil
}

// SetAPIKeys replaces the user's external-service API keys.
func (s *UserStore) SetAPIKeys(userID int64, keys model.APIKeys) error {
	_, err := s.db.Exec(
		`UPDATE users SET openai_api_key = ?, plantnet_api_key = ? WHERE id = ?`,
		keys.OpenAI, keys.PlantNet, userID,
	)
	if err != nil {
		return fmt.Errorf("set api keys: %w", err)
	}
	return nil
}
