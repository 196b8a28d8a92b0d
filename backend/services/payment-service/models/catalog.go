package models

import "time"

// PricingPlan is a monthly subscription plan. MonthlyPrice is in rupees.
type PricingPlan struct {
	PlanID       int64     `gorm:"primaryKey" json:"plan_id"`
	Name         string    `gorm:"type:varchar(100);not null" json:"name"`
	MonthlyPrice int64     `gorm:"not null" json:"monthly_price"`
	Features     []string  `gorm:"serializer:json;type:jsonb" json:"features"`
	IsPopular    bool      `gorm:"not null;default:false" json:"is_popular"`
	CreatedAt    time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

type Student struct {
	StudentID      int64     `gorm:"primaryKey" json:"student_id"`
	Name           string    `gorm:"type:varchar(120);not null" json:"name"`
	ClassLevel     int       `json:"class_level"`
	Syllabus       string    `gorm:"type:varchar(40)" json:"syllabus"`
	Medium         string    `gorm:"type:varchar(40)" json:"medium"`
	ParentID       string    `gorm:"type:varchar(64);index" json:"parent_id"`
	UserID         string    `gorm:"type:varchar(64);index" json:"user_id,omitempty"`
	EnrolledPlanID *int64    `json:"enrolled_plan_id,omitempty"`
	ReferredBy     *string   `gorm:"type:varchar(64)" json:"referred_by,omitempty"`
	IsActive       bool      `gorm:"not null;default:false" json:"is_active"`
	CreatedAt      time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

type PlanRequest struct {
	Name         string   `json:"name" binding:"required"`
	MonthlyPrice int64    `json:"monthly_price" binding:"required,min=1"`
	Features     []string `json:"features"`
	IsPopular    bool     `json:"is_popular"`
}

type CreateStudentRequest struct {
	Name       string  `json:"name" binding:"required"`
	ClassLevel int     `json:"class_level" binding:"min=1,max=12"`
	Syllabus   string  `json:"syllabus"`
	Medium     string  `json:"medium"`
	ParentID   string  `json:"parent_id"`
	UserID     string  `json:"user_id"`
	ReferredBy *string `json:"referred_by"`
}
