package models

import (
	"time"

	"gorm.io/datatypes"
)

// Candidate 候选人主表。
// 联系字段由上层应用拥有，流水线只在字段为空时补齐，绝不覆盖已有值。
type Candidate struct {
	CandidateID string `gorm:"type:char(36);primaryKey"`
	Email       string `gorm:"type:varchar(255);uniqueIndex:idx_candidates_email_unique"`
	FirstName   string `gorm:"type:varchar(100)"`
	LastName    string `gorm:"type:varchar(100)"`
	Phone       string `gorm:"type:varchar(50)"`
	Location    string `gorm:"type:varchar(255)"`
	// Links 候选人外部链接（LinkedIn、GitHub等），JSON数组
	Links     datatypes.JSON `gorm:"type:json"`
	ResumeURL string         `gorm:"type:varchar(1024)"`
	// 同意标记在创建时写入，流水线不再修改
	ConsentGiven bool       `gorm:"default:false"`
	ConsentAt    *time.Time `gorm:"type:datetime(6)"`
	CreatedAt    time.Time  `gorm:"type:datetime(6);default:CURRENT_TIMESTAMP(6)"`
	UpdatedAt    time.Time  `gorm:"type:datetime(6);default:CURRENT_TIMESTAMP(6);autoUpdateTime"`
}

func (Candidate) TableName() string {
	return "candidates"
}

// ParsedResumeData 结构化简历数据，与候选人一对一。
// 首次解析成功时创建，之后原地更新，不产生重复行。
type ParsedResumeData struct {
	ID              uint64         `gorm:"primaryKey;autoIncrement"`
	CandidateID     string         `gorm:"type:char(36);not null;uniqueIndex:idx_prd_candidate_unique"`
	Skills          datatypes.JSON `gorm:"type:json"`
	Experience      datatypes.JSON `gorm:"type:json"`
	Education       datatypes.JSON `gorm:"type:json"`
	Certifications  datatypes.JSON `gorm:"type:json"`
	Summary         string         `gorm:"type:text"`
	TotalExperience float64        `gorm:"type:double;default:0"`
	CreatedAt       time.Time      `gorm:"type:datetime(6);default:CURRENT_TIMESTAMP(6)"`
	UpdatedAt       time.Time      `gorm:"type:datetime(6);default:CURRENT_TIMESTAMP(6);autoUpdateTime"`

	Candidate *Candidate `gorm:"foreignKey:CandidateID;references:CandidateID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

func (ParsedResumeData) TableName() string {
	return "parsed_resume_data"
}
