package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/arrosemoi-app/server/internal/model"
	"github.com/arrosemoi-app/server/internal/schedule"
)

type PlantStore struct {
	db *sql.DB
}

func NewPlantStore(db *sql.DB) *PlantStore {
	return &PlantStore{db: db}
}

const plantCols = `id, user_id, house_id, name, type, sun, room, frequency, last_watered,
	repotting_frequency, last_repotted, fertilizer_frequency, last_fertilized,
	notes, photo, indoor, favorite, acquired_date, care_tips, difficulty,
	ideal_temp, humidity, toxic, created_at, updated_at`

func scanPlant(scanner interface{ Scan(...any) error }) (*model.Plant, error) {
	var (
		p              model.Plant
		houseID        sql.NullInt64
		lastWatered    sql.NullString
		repotFreq      sql.NullInt64
		lastRepotted   sql.NullString
		fertFreq       sql.NullInt64
		lastFertilized sql.NullString
		indoor, fav    int
		toxic          int
	)
	err := scanner.Scan(
		&p.ID, &p.UserID, &houseID, &p.Name, &p.Type, &p.Sun, &p.Room,
		&p.Frequency, &lastWatered,
		&repotFreq, &lastRepotted, &fertFreq, &lastFertilized,
		&p.Notes, &p.Photo, &indoor, &fav, &p.AcquiredDate, &p.CareTips,
		&p.Difficulty, &p.IdealTemp, &p.Humidity, &toxic,
		&p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if houseID.Valid {
		p.HouseID = &houseID.Int64
	}
	// Anchors are stored as text; anything unparseable counts as absent.
	p.LastWatered = schedule.ParseAnchor(lastWatered.String)
	p.LastRepotted = schedule.ParseAnchor(lastRepotted.String)
	p.LastFertilized = schedule.ParseAnchor(lastFertilized.String)
	if repotFreq.Valid {
		n := int(repotFreq.Int64)
		p.RepottingFrequency = &n
	}
	if fertFreq.Valid {
		n := int(fertFreq.Int64)
		p.FertilizerFrequency = &n
	}
	p.Indoor = indoor != 0
	p.Favorite = fav != 0
	p.Toxic = toxic != 0
	return &p, nil
}

func scanPlants(rows *sql.Rows) ([]model.Plant, error) {
	var plants []model.Plant
	for rows.Next() {
		p, err := scanPlant(rows)
		if err != nil {
			return nil, fmt.Errorf("scan plant: %w", err)
		}
		plants = append(plants, *p)
	}
	return plants, rows.Err()
}

func anchorValue(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339)
}

func boolValue(b bool) int {
	if b {
		return 1
	}
	return 0
}

func (s *PlantStore) Create(p *model.Plant) (*model.Plant, error) {
	result, err := s.db.Exec(
		`INSERT INTO plants (user_id, house_id, name, type, sun, room, frequency, last_watered,
			repotting_frequency, last_repotted, fertilizer_frequency, last_fertilized,
			notes, photo, indoor, acquired_date, care_tips, difficulty, ideal_temp, humidity, toxic)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.UserID, p.HouseID, p.Name, p.Type, p.Sun, p.Room, p.Frequency,
		anchorValue(p.LastWatered),
		p.RepottingFrequency, anchorValue(p.LastRepotted),
		p.FertilizerFrequency, anchorValue(p.LastFertilized),
		p.Notes, p.Photo, boolValue(p.Indoor), p.AcquiredDate, p.CareTips,
		p.Difficulty, p.IdealTemp, p.Humidity, boolValue(p.Toxic),
	)
	if err != nil {
		return nil, fmt.Errorf("insert plant: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(id)
}

func (s *PlantStore) GetByID(id int64) (*model.Plant, error) {
	row := s.db.QueryRow(`SELECT `+plantCols+` FROM plants WHERE id = ?`, id)
	p, err := scanPlant(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get plant: %w", err)
	}
	return p, nil
}

// GetVisible returns the plant only if it is visible to the user: either a
// houseless plant they created, or a plant in one of their houses.
func (s *PlantStore) GetVisible(id, userID int64) (*model.Plant, error) {
	row := s.db.QueryRow(`SELECT `+plantCols+` FROM plants
		WHERE id = ?
		  AND (
			(house_id IS NULL AND user_id = ?)
			OR house_id IN (SELECT house_id FROM house_members WHERE user_id = ?)
		  )`, id, userID, userID)
	p, err := scanPlant(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get visible plant: %w", err)
	}
	return p, nil
}

// ListVisibleToUser returns every plant the user can see: their own
// houseless plants plus all plants in every house they belong to. This is
// the set the daily reminder digest is computed over.
func (s *PlantStore) ListVisibleToUser(userID int64) ([]model.Plant, error) {
	rows, err := s.db.Query(`SELECT `+plantCols+` FROM plants
		WHERE (house_id IS NULL AND user_id = ?)
		   OR house_id IN (SELECT house_id FROM house_members WHERE user_id = ?)
		ORDER BY created_at DESC`, userID, userID)
	if err != nil {
		return nil, fmt.Errorf("list visible plants: %w", err)
	}
	defer rows.Close()
	return scanPlants(rows)
}

// ListByHouse returns the plants belonging to a house.
func (s *PlantStore) ListByHouse(houseID int64) ([]model.Plant, error) {
	rows, err := s.db.Query(`SELECT `+plantCols+` FROM plants WHERE house_id = ? ORDER BY created_at DESC`, houseID)
	if err != nil {
		return nil, fmt.Errorf("list plants by house: %w", err)
	}
	defer rows.Close()
	return scanPlants(rows)
}

func (s *PlantStore) Update(p *model.Plant) (*model.Plant, error) {
	_, err := s.db.Exec(
		`UPDATE plants SET house_id = ?, name = ?, type = ?, sun = ?, room = ?, frequency = ?,
			last_watered = ?, repotting_frequency = ?, last_repotted = ?,
			fertilizer_frequency = ?, last_fertilized = ?,
			notes = ?, photo = ?, indoor = ?, acquired_date = ?, care_tips = ?,
			difficulty = ?, ideal_temp = ?, humidity = ?, toxic = ?,
			updated_at = CURRENT_TIMESTAMP
		 WHERE id = ?`,
		p.HouseID, p.Name, p.Type, p.Sun, p.Room, p.Frequency,
		anchorValue(p.LastWatered), p.RepottingFrequency, anchorValue(p.LastRepotted),
		p.FertilizerFrequency, anchorValue(p.LastFertilized),
		p.Notes, p.Photo, boolValue(p.Indoor), p.AcquiredDate, p.CareTips,
		p.Difficulty, p.IdealTemp, p.Humidity, boolValue(p.Toxic),
		p.ID,
	)
	if err != nil {
		return nil, fmt.Errorf("update plant: %w", err)
	}
	return s.GetByID(p.ID)
}

func (s *PlantStore) Delete(id int64) error {
	_, err := s.db.Exec(`DELETE FROM plants WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete plant: %w", err)
	}
	return nil
}

// RecordWatering sets the watering anchor to now.
func (s *PlantStore) RecordWatering(id int64, now time.Time) (*model.Plant, error) {
	return s.recordCare(id, "last_watered", now)
}

// RecordRepotting sets the repotting anchor to now.
func (s *PlantStore) RecordRepotting(id int64, now time.Time) (*model.Plant, error) {
	return s.recordCare(id, "last_repotted", now)
}

// RecordFertilizing sets the fertilizing anchor to now.
func (s *PlantStore) RecordFertilizing(id int64, now time.Time) (*model.Plant, error) {
	return s.recordCare(id, "last_fertilized", now)
}

func (s *PlantStore) recordCare(id int64, column string, now time.Time) (*model.Plant, error) {
	// column is one of the fixed anchor names above, never user input.
	_, err := s.db.Exec(
		`UPDATE plants SET `+column+` = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		now.UTC().Format(time.RFC3339), id,
	)
	if err != nil {
		return nil, fmt.Errorf("record %s: %w", column, err)
	}
	return s.GetByID(id)
}

// ToggleFavorite flips the favorite flag and returns the updated plant.
func (s *PlantStore) ToggleFavorite(id int64) (*model.Plant, error) {
	_, err := s.db.Exec(
		`UPDATE plants SET favorite = 1 - favorite, updated_at = CURRENT_TIMESTAMP WHERE id = ?`, id,
	)
	if err != nil {
		return nil, fmt.Errorf("toggle favorite: %w", err)
	}
	return s.GetByID(id)
}
