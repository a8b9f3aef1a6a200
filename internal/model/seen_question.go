package model

import "time"

type SeenStatus string

const (
	SeenReserved SeenStatus = "reserved"
	SeenSolved   SeenStatus = "solved"
)

// UserSeenQuestion 用户已作答/已预留题目的台账，(user, question) 唯一。
// 过期预留直接物理删除，因此不使用软删除。
type UserSeenQuestion struct {
	ID            uint       `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID        uint       `gorm:"not null;type:bigint unsigned;uniqueIndex:idx_user_question,priority:1" json:"userId"`
	QuestionID    uint       `gorm:"not null;type:bigint unsigned;uniqueIndex:idx_user_question,priority:2" json:"questionId"`
	Status        SeenStatus `gorm:"size:20;not null;index" json:"status"`
	SessionID     *uint      `gorm:"index;type:bigint unsigned" json:"sessionId,omitempty"`
	ReservedUntil *time.Time `json:"reservedUntil,omitempty"`
	FirstSeenAt   time.Time  `gorm:"autoCreateTime" json:"firstSeenAt"`
	SolvedAt      *time.Time `json:"solvedAt,omitempty"`
	UpdatedAt     time.Time  `json:"updatedAt"`
}

func (UserSeenQuestion) TableName() string {
	return "user_seen_questions"
}

// Blocking reports whether the row excludes its question from sampling at now.
func (s UserSeenQuestion) Blocking(now time.Time) bool {
	switch s.Status {
	case SeenSolved:
		return true
	case SeenReserved:
		return s.ReservedUntil != nil && s.ReservedUntil.After(now)
	}
	return false
}
