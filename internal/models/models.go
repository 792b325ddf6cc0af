package models

import (
	"encoding/json"
	"errors"
	"time"
)

type ActivityStatus string

const (
	ActivityDraft  ActivityStatus = "draft"
	ActivityActive ActivityStatus = "active"
	ActivityEnded  ActivityStatus = "ended"
)

type Strategy string

const (
	StrategyProbability Strategy = "probability"
	StrategyGuaranteed  Strategy = "guaranteed"
)

// ActivitySettings is the typed form of the activity settings column.
// It is validated once at create/update time, never re-parsed at draw time.
type ActivitySettings struct {
	MaxLotteryCodes int      `json:"max_lottery_codes"`
	CodeFormat      string   `json:"lottery_code_format"`
	AllowDupPhone   bool     `json:"allow_duplicate_phone"`
	Strategy        Strategy `json:"lottery_strategy"`
}

func DefaultSettings() ActivitySettings {
	return ActivitySettings{
		MaxLotteryCodes: 1000,
		CodeFormat:      "8_digit_number",
		Strategy:        StrategyProbability,
	}
}

var ErrBadSettings = errors.New("invalid activity settings")

// Normalize fills defaults and rejects unknown strategies.
func (s *ActivitySettings) Normalize() error {
	if s.MaxLotteryCodes <= 0 {
		s.MaxLotteryCodes = 1000
	}
	if s.CodeFormat == "" {
		s.CodeFormat = "8_digit_number"
	}
	switch s.Strategy {
	case "":
		s.Strategy = StrategyProbability
	case StrategyProbability, StrategyGuaranteed:
	default:
		return ErrBadSettings
	}
	return nil
}

func ParseSettings(raw []byte) (ActivitySettings, error) {
	s := DefaultSettings()
	if len(raw) == 0 {
		return s, nil
	}
	if err := json.Unmarshal(raw, &s); err != nil {
		return s, err
	}
	if err := s.Normalize(); err != nil {
		return s, err
	}
	return s, nil
}

type Activity struct {
	ID           int64            `json:"id"`
	Name         string           `json:"name"`
	Description  string           `json:"description"`
	Status       ActivityStatus   `json:"status"`
	StartTime    *time.Time       `json:"start_time"`
	EndTime      *time.Time       `json:"end_time"`
	Settings     ActivitySettings `json:"settings"`
	WebhookID    string           `json:"webhook_id,omitempty"`
	WebhookToken string           `json:"-"`
	CreatedBy    *int64           `json:"created_by,omitempty"`
	CreatedAt    time.Time        `json:"created_at"`
	UpdatedAt    time.Time        `json:"updated_at"`
}

type Prize struct {
	ID                int64     `json:"id"`
	ActivityID        int64     `json:"activity_id"`
	Name              string    `json:"name"`
	Description       string    `json:"description"`
	TotalQuantity     int       `json:"total_quantity"`
	RemainingQuantity int       `json:"remaining_quantity"`
	Probability       float64   `json:"probability"`
	SortOrder         int       `json:"sort_order"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

func (p *Prize) HasStock() bool {
	return p.RemainingQuantity > 0
}

type CodeStatus string

const (
	CodeUnused  CodeStatus = "unused"
	CodeUsed    CodeStatus = "used"
	CodeInvalid CodeStatus = "invalid"
)

type LotteryCode struct {
	ID              int64           `json:"id"`
	ActivityID      int64           `json:"activity_id"`
	Code            string          `json:"code"`
	Status          CodeStatus      `json:"status"`
	ParticipantInfo json.RawMessage `json:"participant_info,omitempty"`
	UsedAt          *time.Time      `json:"used_at"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

type LotteryRecord struct {
	ID            int64     `json:"id"`
	ActivityID    int64     `json:"activity_id"`
	LotteryCodeID int64     `json:"lottery_code_id"`
	PrizeID       *int64    `json:"prize_id"`
	IsWinner      bool      `json:"is_winner"`
	OperatorID    *int64    `json:"operator_id,omitempty"`
	IPAddress     string    `json:"ip_address,omitempty"`
	UserAgent     string    `json:"user_agent,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UsedCode      string    `json:"code,omitempty"`
	PrizeName     string    `json:"prize_name,omitempty"`
}

type User struct {
	ID           int64     `json:"id"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"`
	Role         string    `json:"role"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func (u *User) IsSuperAdmin() bool {
	return u.Role == "super_admin"
}

// CodeStats summarizes the redemption-code pool of one activity.
type CodeStats struct {
	TotalCodes   int     `json:"total_codes"`
	UsedCodes    int     `json:"used_codes"`
	UnusedCodes  int     `json:"unused_codes"`
	InvalidCodes int     `json:"invalid_codes"`
	UsageRate    float64 `json:"usage_rate"`
}

type PrizeCount struct {
	PrizeID   int64  `json:"prize_id"`
	PrizeName string `json:"prize_name"`
	Count     int    `json:"count"`
}

type DayCount struct {
	Day   string `json:"day"`
	Count int    `json:"count"`
}

type WinningStats struct {
	TotalWinners   int          `json:"total_winners"`
	PerPrizeCounts []PrizeCount `json:"per_prize_counts"`
	PerDayCounts   []DayCount   `json:"per_day_counts"`
}
