package handler

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/arrosemoi-app/server/internal/auth"
	"github.com/arrosemoi-app/server/internal/identify"
	"github.com/arrosemoi-app/server/internal/model"
	"github.com/arrosemoi-app/server/internal/schedule"
	"github.com/arrosemoi-app/server/internal/store"
	ws "github.com/arrosemoi-app/server/internal/websocket"
)

const (
	maxIdentifyImages    = 5
	maxIdentifyImageSize = 10 << 20 // 10 MiB per image
)

type PlantHandler struct {
	plants   *store.PlantStore
	houses   *store.HouseStore
	users    *store.UserStore
	identify *identify.Service
	hub      *ws.Hub
	logger   *slog.Logger
}

func NewPlantHandler(plants *store.PlantStore, houses *store.HouseStore, users *store.UserStore, idSvc *identify.Service, hub *ws.Hub, logger *slog.Logger) *PlantHandler {
	return &PlantHandler{plants: plants, houses: houses, users: users, identify: idSvc, hub: hub, logger: logger}
}

type plantRequest struct {
	HouseID             *int64  `json:"house_id"`
	Name                string  `json:"name"`
	Type                string  `json:"type"`
	Sun                 string  `json:"sun"`
	Room                string  `json:"room"`
	Frequency           int     `json:"frequency"`
	LastWatered         *string `json:"last_watered"`
	RepottingFrequency  *int    `json:"repotting_frequency"`
	LastRepotted        *string `json:"last_repotted"`
	FertilizerFrequency *int    `json:"fertilizer_frequency"`
	LastFertilized      *string `json:"last_fertilized"`
	Notes               string  `json:"notes"`
	Photo               string  `json:"photo"`
	Indoor              bool    `json:"indoor"`
	AcquiredDate        string  `json:"acquired_date"`
	CareTips            string  `json:"care_tips"`
	Difficulty          string  `json:"difficulty"`
	IdealTemp           string  `json:"ideal_temp"`
	Humidity            string  `json:"humidity"`
	Toxic               bool    `json:"toxic"`
}

// plantResponse decorates a plant with its computed care status so clients
// render the same due classification the reminder scan uses.
type plantResponse struct {
	model.Plant
	WateringDue    bool       `json:"watering_due"`
	RepottingDue   bool       `json:"repotting_due"`
	FertilizingDue bool       `json:"fertilizing_due"`
	NextWatering   time.Time  `json:"next_watering"`
	NextRepotting  *time.Time `json:"next_repotting,omitempty"`
	NextFertilizer *time.Time `json:"next_fertilizer,omitempty"`
}

func toPlantResponse(p model.Plant, now time.Time) plantResponse {
	return plantResponse{
		Plant:          p,
		WateringDue:    schedule.WateringDue(p, now),
		RepottingDue:   schedule.RepottingDue(p, now),
		FertilizingDue: schedule.FertilizingDue(p, now),
		NextWatering:   schedule.NextWateringDate(p.LastWatered, p.Frequency),
		NextRepotting:  schedule.NextRepottingDate(p.LastRepotted, p.RepottingFrequency),
		NextFertilizer: schedule.NextFertilizingDate(p.LastFertilized, p.FertilizerFrequency),
	}
}

func (h *PlantHandler) applyRequest(p *model.Plant, req plantRequest) {
	p.HouseID = req.HouseID
	p.Name = strings.TrimSpace(req.Name)
	p.Type = req.Type
	p.Sun = req.Sun
	p.Room = req.Room
	p.Frequency = req.Frequency
	if req.LastWatered != nil {
		p.LastWatered = schedule.ParseAnchor(*req.LastWatered)
	}
	p.RepottingFrequency = req.RepottingFrequency
	if req.LastRepotted != nil {
		p.LastRepotted = schedule.ParseAnchor(*req.LastRepotted)
	}
	p.FertilizerFrequency = req.FertilizerFrequency
	if req.LastFertilized != nil {
		p.LastFertilized = schedule.ParseAnchor(*req.LastFertilized)
	}
	p.Notes = req.Notes
	p.Photo = req.Photo
	p.Indoor = req.Indoor
	p.AcquiredDate = req.AcquiredDate
	p.CareTips = req.CareTips
	p.Difficulty = req.Difficulty
	p.IdealTemp = req.IdealTemp
	p.Humidity = req.Humidity
	p.Toxic = req.Toxic
}

// checkHouse verifies the target house, when set, is one the user belongs to.
func (h *PlantHandler) checkHouse(userID int64, houseID *int64) (bool, error) {
	if houseID == nil {
		return true, nil
	}
	member, err := h.houses.GetMember(*houseID, userID)
	if err != nil {
		return false, err
	}
	return member != nil, nil
}

// List handles GET /api/plants
func (h *PlantHandler) List(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())

	plants, err := h.plants.ListVisibleToUser(userID)
	if err != nil {
		h.logger.Error("list plants", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list plants")
		return
	}

	now := time.Now()
	resp := make([]plantResponse, 0, len(plants))
	for _, p := range plants {
		resp = append(resp, toPlantResponse(p, now))
	}
	writeJSON(w, http.StatusOK, map[string]any{"plants": resp})
}

// Get handles GET /api/plants/{id}
func (h *PlantHandler) Get(w http.ResponseWriter, r *http.Request) {
	p := h.visiblePlant(w, r)
	if p == nil {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"plant": toPlantResponse(*p, time.Now())})
}

// Create handles POST /api/plants
func (h *PlantHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())

	var req plantRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}
	if req.Frequency <= 0 {
		req.Frequency = schedule.DefaultWaterFrequencyDays
	}
	if ok, err := h.checkHouse(userID, req.HouseID); err != nil {
		h.logger.Error("check house", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	} else if !ok {
		writeError(w, http.StatusForbidden, "not a member of that house")
		return
	}

	p := model.Plant{UserID: userID}
	h.applyRequest(&p, req)
	if p.LastWatered == nil {
		// A new plant starts its watering cycle now rather than being
		// immediately overdue.
		now := time.Now()
		p.LastWatered = &now
	}

	created, err := h.plants.Create(&p)
	if err != nil {
		h.logger.Error("create plant", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to create plant")
		return
	}

	h.broadcast(created, userID, "created")
	writeJSON(w, http.StatusCreated, map[string]any{"plant": toPlantResponse(*created, time.Now())})
}

// Update handles PUT /api/plants/{id}
func (h *PlantHandler) Update(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())
	p := h.visiblePlant(w, r)
	if p == nil {
		return
	}

	var req plantRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}
	if ok, err := h.checkHouse(userID, req.HouseID); err != nil {
		h.logger.Error("check house", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	} else if !ok {
		writeError(w, http.StatusForbidden, "not a member of that house")
		return
	}

	h.applyRequest(p, req)
	updated, err := h.plants.Update(p)
	if err != nil {
		h.logger.Error("update plant", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to update plant")
		return
	}

	h.broadcast(updated, userID, "updated")
	writeJSON(w, http.StatusOK, map[string]any{"plant": toPlantResponse(*updated, time.Now())})
}

// Delete handles DELETE /api/plants/{id}
func (h *PlantHandler) Delete(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())
	p := h.visiblePlant(w, r)
	if p == nil {
		return
	}

	if err := h.plants.Delete(p.ID); err != nil {
		h.logger.Error("delete plant", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to delete plant")
		return
	}

	h.broadcast(p, userID, "deleted")
	writeJSON(w, http.StatusOK, map[string]string{"message": "plant deleted"})
}

// Water handles PATCH /api/plants/{id}/water
func (h *PlantHandler) Water(w http.ResponseWriter, r *http.Request) {
	h.recordCare(w, r, "watered", h.plants.RecordWatering)
}

// Repot handles PATCH /api/plants/{id}/repot
func (h *PlantHandler) Repot(w http.ResponseWriter, r *http.Request) {
	h.recordCare(w, r, "repotted", h.plants.RecordRepotting)
}

// Fertilize handles PATCH /api/plants/{id}/fertilize
func (h *PlantHandler) Fertilize(w http.ResponseWriter, r *http.Request) {
	h.recordCare(w, r, "fertilized", h.plants.RecordFertilizing)
}

func (h *PlantHandler) recordCare(w http.ResponseWriter, r *http.Request, action string, record func(int64, time.Time) (*model.Plant, error)) {
	userID := auth.UserID(r.Context())
	p := h.visiblePlant(w, r)
	if p == nil {
		return
	}

	updated, err := record(p.ID, time.Now())
	if err != nil {
		h.logger.Error("record care", "action", action, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to record care")
		return
	}

	h.broadcast(updated, userID, action)
	writeJSON(w, http.StatusOK, map[string]any{"plant": toPlantResponse(*updated, time.Now())})
}

// Favorite handles PATCH /api/plants/{id}/favorite
func (h *PlantHandler) Favorite(w http.ResponseWriter, r *http.Request) {
	p := h.visiblePlant(w, r)
	if p == nil {
		return
	}

	updated, err := h.plants.ToggleFavorite(p.ID)
	if err != nil {
		h.logger.Error("toggle favorite", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to update plant")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"plant": toPlantResponse(*updated, time.Now())})
}

// Identify handles POST /api/plants/identify
func (h *PlantHandler) Identify(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())

	keys, err := h.users.GetAPIKeys(userID)
	if err != nil || keys == nil {
		h.logger.Error("get api keys", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	if err := r.ParseMultipartForm(maxIdentifyImages * maxIdentifyImageSize); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	files := r.MultipartForm.File["images[]"]
	if len(files) == 0 {
		files = r.MultipartForm.File["images"]
	}
	if len(files) == 0 {
		writeError(w, http.StatusBadRequest, "no images provided")
		return
	}
	if len(files) > maxIdentifyImages {
		files = files[:maxIdentifyImages]
	}

	var images []identify.Image
	for _, fh := range files {
		f, err := fh.Open()
		if err != nil {
			writeError(w, http.StatusBadRequest, "unreadable image")
			return
		}
		data, err := io.ReadAll(io.LimitReader(f, maxIdentifyImageSize))
		f.Close()
		if err != nil {
			writeError(w, http.StatusBadRequest, "unreadable image")
			return
		}
		images = append(images, identify.Image{
			Filename:    fh.Filename,
			ContentType: fh.Header.Get("Content-Type"),
			Data:        data,
		})
	}

	result, err := h.identify.Identify(r.Context(), keys.PlantNet, keys.OpenAI, images)
	if err != nil {
		h.logger.Error("identify", "error", err)
		writeError(w, http.StatusInternalServerError, "identification failed")
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// visiblePlant loads the plant from the id path param, enforcing
// visibility. Writes the error response and returns nil when unavailable.
func (h *PlantHandler) visiblePlant(w http.ResponseWriter, r *http.Request) *model.Plant {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return nil
	}

	p, err := h.plants.GetVisible(id, auth.UserID(r.Context()))
	if err != nil {
		h.logger.Error("get plant", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return nil
	}
	if p == nil {
		writeError(w, http.StatusNotFound, "plant not found")
		return nil
	}
	return p
}

func (h *PlantHandler) broadcast(p *model.Plant, actorID int64, action string) {
	if h.hub == nil || p.HouseID == nil {
		return
	}
	h.hub.BroadcastHouse(*p.HouseID, actorID, ws.Message{
		Type:   "plant_" + action,
		Entity: "plant",
		Action: action,
		ID:     p.ID,
	})
}
