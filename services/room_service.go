package services

import (
	"crypto/rand"
	"encoding/hex"
	"errors"

	"lingobattle/models"

	"gorm.io/gorm"
)

// RoomService manages friend-room invites. A room holds until the guest
// joins, at which point the battle service spawns the unranked room match.
type RoomService struct {
	db      *gorm.DB
	battles *BattleService
}

func NewRoomService(db *gorm.DB, battles *BattleService) *RoomService {
	return &RoomService{db: db, battles: battles}
}

type CreateRoomRequest struct {
	Language string `json:"language" binding:"required"`
}

func (s *RoomService) CreateRoom(hostID uint, req *CreateRoomRequest) (*models.BattleRoom, error) {
	room := models.BattleRoom{
		Code:     generateRoomCode(),
		HostID:   hostID,
		Language: req.Language,
		Status:   "open",
	}
	if err := s.db.Create(&room).Error; err != nil {
		return nil, err
	}
	return &room, nil
}

// JoinRoom attaches a guest to an open room and starts its match.
func (s *RoomService) JoinRoom(code string, guestID uint) (*models.BattleRoom, *MatchState, error) {
	var room models.BattleRoom
	if err := s.db.Where("code = ?", code).First(&room).Error; err != nil {
		return nil, nil, errors.New("room not found")
	}
	if room.Status != "open" {
		return nil, nil, errors.New("room is not open")
	}
	if room.HostID == guestID {
		return nil, nil, errors.New("cannot join your own room")
	}

	match, err := s.battles.StartRoomMatch(&room, guestID)
	if err != nil {
		return nil, nil, err
	}

	room.GuestID = &guestID
	room.Status = "started"
	room.MatchID = match.ID
	if err := s.db.Save(&room).Error; err != nil {
		return nil, nil, err
	}
	return &room, match, nil
}

func (s *RoomService) GetRoomByCode(code string) (*models.BattleRoom, error) {
	var room models.BattleRoom
	err := s.db.Where("code = ?", code).First(&room).Error
	return &room, err
}

func generateRoomCode() string {
	bytes := make([]byte, 3)
	rand.Read(bytes)
	return hex.EncodeToString(bytes)[:6]
}
