package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"lingobattle/services"

	"github.com/gin-gonic/gin"
)

type BattleHandler struct {
	battleService *services.BattleService
	queueService  *services.QueueService
	roomService   *services.RoomService
	ratingStore   services.RatingStore
	outcomeStore  *services.GormOutcomeStore
	season        string
}

func NewBattleHandler(battleService *services.BattleService, queueService *services.QueueService, roomService *services.RoomService, ratingStore services.RatingStore, outcomeStore *services.GormOutcomeStore, season string) *BattleHandler {
	return &BattleHandler{
		battleService: battleService,
		queueService:  queueService,
		roomService:   roomService,
		ratingStore:   ratingStore,
		outcomeStore:  outcomeStore,
		season:        season,
	}
}

type JoinQueueRequest struct {
	Language string `json:"language" binding:"required"`
}

type SubmitAnswerRequest struct {
	Answer string `json:"answer" binding:"required"`
}

// JoinQueue puts the authenticated user into the ranked queue for a
// language, at their current season rating.
func (h *BattleHandler) JoinQueue(c *gin.Context) {
	userID := currentUserID(c)

	var req JoinQueueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if _, live := h.battleService.MatchForPlayer(userID); live {
		c.JSON(http.StatusConflict, gin.H{"error": "already in a match"})
		return
	}

	rating, err := h.ratingStore.Get(userID, h.season)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read rating"})
		return
	}

	if !h.queueService.Join(userID, rating, req.Language) {
		c.JSON(http.StatusConflict, gin.H{"error": "already queued"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"queued": true, "language": req.Language, "rating": rating})
}

func (h *BattleHandler) LeaveQueue(c *gin.Context) {
	userID := currentUserID(c)

	if !h.queueService.Leave(userID) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not queued"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"queued": false})
}

// QueueStatus tells a polling client whether they are still waiting or have
// been paired into a match.
func (h *BattleHandler) QueueStatus(c *gin.Context) {
	userID := currentUserID(c)

	if match, live := h.battleService.MatchForPlayer(userID); live {
		snap := match.Snapshot()
		c.JSON(http.StatusOK, gin.H{"queued": false, "match": snap})
		return
	}

	c.JSON(http.StatusOK, gin.H{"queued": h.queueService.IsQueued(userID)})
}

func (h *BattleHandler) SubmitAnswer(c *gin.Context) {
	userID := currentUserID(c)
	matchID := c.Param("matchId")

	var req SubmitAnswerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.battleService.SubmitAnswer(matchID, userID, req.Answer); err != nil {
		status := http.StatusBadRequest
		switch {
		case errors.Is(err, services.ErrMatchNotFound):
			status = http.StatusNotFound
		case errors.Is(err, services.ErrInvalidState):
			status = http.StatusConflict
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "answer submitted"})
}

func (h *BattleHandler) Surrender(c *gin.Context) {
	userID := currentUserID(c)
	matchID := c.Param("matchId")

	result, err := h.battleService.Surrender(matchID, userID)
	if err != nil {
		status := http.StatusBadRequest
		switch {
		case errors.Is(err, services.ErrMatchNotFound):
			status = http.StatusNotFound
		case errors.Is(err, services.ErrInvalidState):
			status = http.StatusConflict
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, result)
}

// GetMatch returns the current snapshot for resync, falling back to the
// persisted result for finished matches.
func (h *BattleHandler) GetMatch(c *gin.Context) {
	matchID := c.Param("matchId")

	snap, err := h.battleService.SnapshotFor(matchID)
	if err == nil {
		c.JSON(http.StatusOK, snap)
		return
	}

	if result, ferr := h.battleService.Finalize(matchID, services.ReasonNormal); ferr == nil {
		// Finalize only replays here; an unfinished match cannot reach this
		// branch because its snapshot would have been found above.
		c.JSON(http.StatusOK, result)
		return
	}

	c.JSON(http.StatusNotFound, gin.H{"error": "match not found"})
}

func (h *BattleHandler) GetHistory(c *gin.Context) {
	userID := currentUserID(c)

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	rows, err := h.outcomeStore.HistoryForUser(userID, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load history"})
		return
	}
	c.JSON(http.StatusOK, rows)
}

func (h *BattleHandler) CreateRoom(c *gin.Context) {
	userID := currentUserID(c)

	var req services.CreateRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	room, err := h.roomService.CreateRoom(userID, &req)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, room)
}

func (h *BattleHandler) JoinRoom(c *gin.Context) {
	userID := currentUserID(c)
	code := c.Param("code")

	room, match, err := h.roomService.JoinRoom(code, userID)
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, services.ErrNoQuestions) {
			status = http.StatusConflict
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"room": room, "match": match.Snapshot()})
}

func currentUserID(c *gin.Context) uint {
	v, _ := c.Get("user_id")
	id, _ := v.(uint)
	return id
}
