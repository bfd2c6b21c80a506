package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/arrosemoi-app/server/internal/auth"
	"github.com/arrosemoi-app/server/internal/model"
	"github.com/arrosemoi-app/server/internal/store"
)

type HouseHandler struct {
	houses *store.HouseStore
	plants *store.PlantStore
	logger *slog.Logger
}

func NewHouseHandler(houses *store.HouseStore, plants *store.PlantStore, logger *slog.Logger) *HouseHandler {
	return &HouseHandler{houses: houses, plants: plants, logger: logger}
}

// List handles GET /api/houses
func (h *HouseHandler) List(w http.ResponseWriter, r *http.Request) {
	houses, err := h.houses.ListForUser(auth.UserID(r.Context()))
	if err != nil {
		h.logger.Error("list houses", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list houses")
		return
	}
	if houses == nil {
		houses = []model.House{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"houses": houses})
}

type createHouseRequest struct {
	Name string `json:"name"`
}

// Create handles POST /api/houses
func (h *HouseHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createHouseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}

	house, err := h.houses.Create(req.Name, auth.UserID(r.Context()))
	if err != nil {
		h.logger.Error("create house", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to create house")
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"house": house})
}

// Get handles GET /api/houses/{id}
func (h *HouseHandler) Get(w http.ResponseWriter, r *http.Request) {
	house, member := h.memberHouse(w, r)
	if house == nil {
		return
	}

	members, err := h.houses.ListMembers(house.ID)
	if err != nil {
		h.logger.Error("list house members", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	plants, err := h.plants.ListByHouse(house.ID)
	if err != nil {
		h.logger.Error("list house plants", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	house.Role = member.Role
	writeJSON(w, http.StatusOK, map[string]any{
		"house":   house,
		"members": members,
		"plants":  plants,
	})
}

type joinHouseRequest struct {
	InviteCode string `json:"invite_code"`
}

// Join handles POST /api/houses/join
func (h *HouseHandler) Join(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())

	var req joinHouseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	code := strings.ToUpper(strings.TrimSpace(req.InviteCode))
	if code == "" {
		writeError(w, http.StatusBadRequest, "invite code is required")
		return
	}

	house, err := h.houses.GetByInviteCode(code)
	if err != nil {
		h.logger.Error("lookup invite code", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if house == nil {
		writeError(w, http.StatusNotFound, "invalid invite code")
		return
	}

	existing, err := h.houses.GetMember(house.ID, userID)
	if err != nil {
		h.logger.Error("check membership", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if existing != nil {
		writeError(w, http.StatusConflict, "already a member of this house")
		return
	}

	if _, err := h.houses.AddMember(house.ID, userID, model.RoleMember); err != nil {
		h.logger.Error("add member", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to join house")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"house": house})
}

// Leave handles POST /api/houses/{id}/leave
func (h *HouseHandler) Leave(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())
	house, member := h.memberHouse(w, r)
	if house == nil {
		return
	}
	if member.Role == model.RoleOwner {
		writeError(w, http.StatusBadRequest, "the owner cannot leave; delete the house instead")
		return
	}

	if err := h.houses.RemoveMember(house.ID, userID); err != nil {
		h.logger.Error("remove member", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to leave house")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "left house"})
}

// Delete handles DELETE /api/houses/{id}, owner only. House plants are
// detached (house_id set null by the schema), not deleted.
func (h *HouseHandler) Delete(w http.ResponseWriter, r *http.Request) {
	house, member := h.memberHouse(w, r)
	if house == nil {
		return
	}
	if member.Role != model.RoleOwner {
		writeError(w, http.StatusForbidden, "only the owner can delete a house")
		return
	}

	if err := h.houses.Delete(house.ID); err != nil {
		h.logger.Error("delete house", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to delete house")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "house deleted"})
}

// RemoveMember handles DELETE /api/houses/{id}/members/{user_id}, owner only.
func (h *HouseHandler) RemoveMember(w http.ResponseWriter, r *http.Request) {
	house, member := h.memberHouse(w, r)
	if house == nil {
		return
	}
	if member.Role != model.RoleOwner {
		writeError(w, http.StatusForbidden, "only the owner can remove members")
		return
	}

	targetID, err := strconv.ParseInt(r.PathValue("user_id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid user id")
		return
	}
	if targetID == member.UserID {
		writeError(w, http.StatusBadRequest, "use delete to remove your own house")
		return
	}

	if err := h.houses.RemoveMember(house.ID, targetID); err != nil {
		h.logger.Error("remove member", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to remove member")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "member removed"})
}

// memberHouse loads the house from the id path param and the caller's
// membership. Writes the error response and returns nils when unavailable.
func (h *HouseHandler) memberHouse(w http.ResponseWriter, r *http.Request) (*model.House, *model.HouseMember) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return nil, nil
	}

	userID := auth.UserID(r.Context())
	member, err := h.houses.GetMember(id, userID)
	if err != nil {
		h.logger.Error("get membership", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return nil, nil
	}
	if member == nil {
		writeError(w, http.StatusNotFound, "house not found")
		return nil, nil
	}

	house, err := h.houses.GetByID(id)
	if err != nil || house == nil {
		h.logger.Error("get house", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return nil, nil
	}
	return house, member
}
