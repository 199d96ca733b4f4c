package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"resume-pipeline-go/internal/config"
	"resume-pipeline-go/internal/storage/models"
	"resume-pipeline-go/internal/tracing"
	"resume-pipeline-go/internal/types"
)

// ErrCandidateNotFound 按ID或邮箱查找候选人无结果
var ErrCandidateNotFound = errors.New("candidate not found")

var mysqlTracer = otel.Tracer("resume-pipeline-go/storage/mysql")

// MySQL 关系型持久化层
type MySQL struct {
	db *gorm.DB
}

// NewMySQL 创建MySQL连接并配置连接池
func NewMySQL(cfg *config.MySQLConfig) (*MySQL, error) {
	if cfg == nil {
		return nil, fmt.Errorf("MySQL配置不能为空")
	}

	gormCfg := &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.LogLevel(cfg.LogLevel)),
	}

	db, err := gorm.Open(mysql.Open(cfg.DSN()), gormCfg)
	if err != nil {
		return nil, fmt.Errorf("连接MySQL失败: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("获取底层sql.DB失败: %w", err)
	}
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetConnMaxLifetime(time.Duration(cfg.ConnMaxLifetimeMinutes) * time.Minute)

	return &MySQL{db: db}, nil
}

// DB 返回gorm句柄
func (m *MySQL) DB() *gorm.DB {
	return m.db
}

// Close 关闭数据库连接
func (m *MySQL) Close() error {
	sqlDB, err := m.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// AutoMigrate 迁移流水线拥有的表
func (m *MySQL) AutoMigrate() error {
	return m.db.AutoMigrate(&models.Candidate{}, &models.ParsedResumeData{})
}

// GetCandidateByID 按主键查找候选人，未找到返回ErrCandidateNotFound
func (m *MySQL) GetCandidateByID(ctx context.Context, candidateID string) (*models.Candidate, error) {
	ctx, span := mysqlTracer.Start(ctx, "MySQL.GetCandidateByID",
		trace.WithAttributes(attribute.String("candidate.id", candidateID)))
	defer span.End()

	var candidate models.Candidate
	err := m.db.WithContext(ctx).Where("candidate_id = ?", candidateID).First(&candidate).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrCandidateNotFound
	}
	if err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeDB)
		return nil, fmt.Errorf("查询候选人失败: %w", err)
	}
	return &candidate, nil
}

// FindCandidateByEmail 按邮箱查找候选人，未找到返回(nil, nil)
func (m *MySQL) FindCandidateByEmail(ctx context.Context, email string) (*models.Candidate, error) {
	ctx, span := mysqlTracer.Start(ctx, "MySQL.FindCandidateByEmail")
	defer span.End()

	var candidate models.Candidate
	err := m.db.WithContext(ctx).Where("email = ?", email).First(&candidate).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeDB)
		return nil, fmt.Errorf("按邮箱查询候选人失败: %w", err)
	}
	return &candidate, nil
}

// CreateCandidate 创建候选人记录
func (m *MySQL) CreateCandidate(ctx context.Context, candidate *models.Candidate) error {
	ctx, span := mysqlTracer.Start(ctx, "MySQL.CreateCandidate",
		trace.WithAttributes(attribute.String("candidate.id", candidate.CandidateID)))
	defer span.End()

	if err := m.db.WithContext(ctx).Create(candidate).Error; err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeDB)
		return fmt.Errorf("创建候选人失败: %w", err)
	}
	return nil
}

// UpdateCandidateResumeURL 记录候选人最新一次上传的简历地址
func (m *MySQL) UpdateCandidateResumeURL(ctx context.Context, candidateID, resumeURL string) error {
	ctx, span := mysqlTracer.Start(ctx, "MySQL.UpdateCandidateResumeURL",
		trace.WithAttributes(attribute.String("candidate.id", candidateID)))
	defer span.End()

	err := m.db.WithContext(ctx).Model(&models.Candidate{}).
		Where("candidate_id = ?", candidateID).
		Update("resume_url", resumeURL).Error
	if err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeDB)
		return fmt.Errorf("更新候选人简历地址失败: %w", err)
	}
	return nil
}

// MergeCandidateContact 非破坏性合并：解析出的联系字段
// 只写入当前为空的列，已有值一律保留。
func (m *MySQL) MergeCandidateContact(ctx context.Context, candidateID string, info *types.PersonalInfo) error {
	if info == nil {
		return nil
	}

	ctx, span := mysqlTracer.Start(ctx, "MySQL.MergeCandidateContact",
		trace.WithAttributes(attribute.String("candidate.id", candidateID)))
	defer span.End()

	err := m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var candidate models.Candidate
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("candidate_id = ?", candidateID).
			First(&candidate).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrCandidateNotFound
			}
			return err
		}

		updates := map[string]interface{}{}
		if candidate.Email == "" && info.Email != "" {
			updates["email"] = info.Email
		}
		if candidate.Phone == "" && info.Phone != "" {
			updates["phone"] = info.Phone
		}
		if candidate.Location == "" && info.Location != "" {
			updates["location"] = info.Location
		}
		if len(candidate.Links) == 0 && len(info.Links) > 0 {
			linksJSON, jsonErr := json.Marshal(info.Links)
			if jsonErr == nil {
				updates["links"] = linksJSON
			}
		}
		if len(updates) == 0 {
			return nil
		}
		return tx.Model(&models.Candidate{}).
			Where("candidate_id = ?", candidateID).
			Updates(updates).Error
	})
	if err != nil {
		if !errors.Is(err, ErrCandidateNotFound) {
			tracing.RecordError(span, err, tracing.ErrorTypeDB)
		}
		return err
	}
	return nil
}

// UpsertParsedResumeData 首次创建、后续原地更新候选人的结构化简历数据
func (m *MySQL) UpsertParsedResumeData(ctx context.Context, candidateID string, resume *types.ParsedResume) error {
	ctx, span := mysqlTracer.Start(ctx, "MySQL.UpsertParsedResumeData",
		trace.WithAttributes(attribute.String("candidate.id", candidateID)))
	defer span.End()

	skillsJSON, err := json.Marshal(resume.Skills)
	if err != nil {
		return fmt.Errorf("序列化skills失败: %w", err)
	}
	experienceJSON, err := json.Marshal(resume.Experience)
	if err != nil {
		return fmt.Errorf("序列化experience失败: %w", err)
	}
	educationJSON, err := json.Marshal(resume.Education)
	if err != nil {
		return fmt.Errorf("序列化education失败: %w", err)
	}
	certificationsJSON, err := json.Marshal(resume.Certifications)
	if err != nil {
		return fmt.Errorf("序列化certifications失败: %w", err)
	}

	err = m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing models.ParsedResumeData
		findErr := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("candidate_id = ?", candidateID).
			First(&existing).Error

		if errors.Is(findErr, gorm.ErrRecordNotFound) {
			row := models.ParsedResumeData{
				CandidateID:     candidateID,
				Skills:          skillsJSON,
				Experience:      experienceJSON,
				Education:       educationJSON,
				Certifications:  certificationsJSON,
				Summary:         resume.Summary,
				TotalExperience: resume.TotalExperience,
			}
			return tx.Create(&row).Error
		}
		if findErr != nil {
			return findErr
		}

		return tx.Model(&existing).Updates(map[string]interface{}{
			"skills":           skillsJSON,
			"experience":       experienceJSON,
			"education":        educationJSON,
			"certifications":   certificationsJSON,
			"summary":          resume.Summary,
			"total_experience": resume.TotalExperience,
		}).Error
	})
	if err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeDB)
		return fmt.Errorf("保存结构化简历数据失败: %w", err)
	}
	return nil
}
