package store

import (
	"database/sql"
	"fmt"

	"github.com/arrosemoi-app/server/internal/model"
)

type PushStore struct {
	db *sql.DB
}

func NewPushStore(db *sql.DB) *PushStore {
	return &PushStore{db: db}
}

const pushCols = `id, user_id, endpoint, p256dh, auth, last_notified, created_at`

func scanPushSubscription(scanner interface{ Scan(...any) error }) (*model.PushSubscription, error) {
	var (
		sub          model.PushSubscription
		lastNotified sql.NullString
	)
	err := scanner.Scan(&sub.ID, &sub.UserID, &sub.Endpoint, &sub.P256dhKey,
		&sub.AuthKey, &lastNotified, &sub.CreatedAt)
	if err != nil {
		return nil, err
	}
	sub.LastNotified = lastNotified.String
	return &sub, nil
}

func scanPushSubscriptions(rows *sql.Rows) ([]model.PushSubscription, error) {
	var subs []model.PushSubscription
	for rows.Next() {
		sub, err := scanPushSubscription(rows)
		if err != nil {
			return nil, fmt.Errorf("scan push subscription: %w", err)
		}
		subs = append(subs, *sub)
	}
	return subs, rows.Err()
}

// Subscribe registers a push endpoint for a user. The endpoint is unique
// across the system: any existing row for the same endpoint is removed
// first, so a re-subscription from the same device cannot leave stale
// credentials behind.
func (s *PushStore) Subscribe(userID int64, endpoint, p256dh, auth string) (*model.PushSubscription, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM push_subscriptions WHERE endpoint = ?`, endpoint); err != nil {
		return nil, fmt.Errorf("replace push subscription: %w", err)
	}
	result, err := tx.Exec(
		`INSERT INTO push_subscriptions (user_id, endpoint, p256dh, auth) VALUES (?, ?, ?, ?)`,
		userID, endpoint, p256dh, auth,
	)
	if err != nil {
		return nil, fmt.Errorf("insert push subscription: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}

	row := s.db.QueryRow(`SELECT `+pushCols+` FROM push_subscriptions WHERE id = ?`, id)
	sub, err := scanPushSubscription(row)
	if err != nil {
		return nil, fmt.Errorf("get push subscription: %w", err)
	}
	return sub, nil
}

// Unsubscribe removes the user's registration for an endpoint.
func (s *PushStore) Unsubscribe(userID int64, endpoint string) error {
	_, err := s.db.Exec(
		`DELETE FROM push_subscriptions WHERE user_id = ? AND endpoint = ?`,
		userID, endpoint,
	)
	if err != nil {
		return fmt.Errorf("unsubscribe: %w", err)
	}
	return nil
}

func (s *PushStore) ListByUser(userID int64) ([]model.PushSubscription, error) {
	rows, err := s.db.Query(
		`SELECT `+pushCols+` FROM push_subscriptions WHERE user_id = ? ORDER BY created_at DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("list push subscriptions by user: %w", err)
	}
	defer rows.Close()
	return scanPushSubscriptions(rows)
}

// ListDigestCandidates returns every subscription that has not yet received
// the daily digest for today (a YYYY-MM-DD date string). This filter is the
// idempotence key of the daily scan: once a subscription is marked notified
// for today it drops out of the candidate set until the next calendar day.
func (s *PushStore) ListDigestCandidates(today string) ([]model.PushSubscription, error) {
	rows, err := s.db.Query(
		`SELECT `+pushCols+` FROM push_subscriptions
		 WHERE last_notified IS NULL OR last_notified < ?
		 ORDER BY user_id, id`,
		today,
	)
	if err != nil {
		return nil, fmt.Errorf("list digest candidates: %w", err)
	}
	defer rows.Close()
	return scanPushSubscriptions(rows)
}

// MarkNotified records a successful digest delivery for the given day.
// Called only after the push service acknowledged the send.
func (s *PushStore) MarkNotified(id int64, today string) error {
	_, err := s.db.Exec(
		`UPDATE push_subscriptions SET last_notified = ? WHERE id = ?`,
		today, id,
	)
	if err != nil {
		return fmt.Errorf("mark notified: %w", err)
	}
	return nil
}

// DeleteByEndpoint removes a subscription the push service reported as
// permanently gone. Deleting an already-deleted row is harmless.
func (s *PushStore) DeleteByEndpoint(endpoint string) error {
	_, err := s.db.Exec(`DELETE FROM push_subscriptions WHERE endpoint = ?`, endpoint)
	if err != nil {
		return fmt.Errorf("delete push subscription by endpoint: %w", err)
	}
	return nil
}
