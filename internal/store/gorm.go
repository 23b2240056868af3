package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"interview-processor-go/internal/apperr"
	"interview-processor-go/internal/types"
)

type DBConfig struct {
	Type     string
	Hostname string
	Port     string
	Name     string
	User     string
	Password string
}

// InitDB opens a postgres ("pgsql") or sqlite database with a logrus-backed gorm logger.
func InitDB(cfg DBConfig, log *logrus.Logger) (*gorm.DB, error) {
	var dia gorm.Dialector

	if cfg.Type == "pgsql" {
		dsn := fmt.Sprintf("host=%s user=%s password=%s port=%s",
			cfg.Hostname,
			cfg.User,
			cfg.Password,
			cfg.Port,
		)
		if cfg.Name != "" {
			dsn = fmt.Sprintf("%s dbname=%s", dsn, cfg.Name)
		}
		dia = postgres.Open(dsn)
	} else {
		dia = sqlite.Open(cfg.Name)
	}

	gormLogger := logger.New(
		log,
		logger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
			ParameterizedQueries:      true,
			Colorful:                  false,
		},
	)

	db, err := gorm.Open(dia, &gorm.Config{Logger: gormLogger, TranslateError: true})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("configure connections: %w", err)
	}
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)
	return db, nil
}

// InterviewRecord is the SQL row of an interview.
type InterviewRecord struct {
	ID                  string `gorm:"primaryKey;size:36"`
	UserID              string `gorm:"index;size:36"`
	VideoPath           string
	Type                string
	ProgrammingLanguage string
	State               string `gorm:"index;size:16"`
	CreatedAt           string
	UpdatedAt           string
}

func (InterviewRecord) TableName() string { return "interviews" }

type SQL struct {
	db  *gorm.DB
	log *logrus.Entry
	now func() time.Time
}

func NewSQL(db *gorm.DB, log *logrus.Entry) *SQL {
	return &SQL{db: db, log: log.WithField("component", "sql-store"), now: time.Now}
}

func (s *SQL) Migrate() error {
	return s.db.AutoMigrate(&InterviewRecord{}, &QuestionRecord{})
}

func (s *SQL) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// CreateInterview inserts a pending interview; used by tooling and tests.
func (s *SQL) CreateInterview(ctx context.Context, in types.Interview) error {
	state := in.State
	if state == "" {
		state = types.StatePending
	}
	ts := Timestamp(s.now())
	rec := InterviewRecord{
		ID:                  in.ID,
		UserID:              in.UserID,
		VideoPath:           in.VideoPath,
		Type:                in.Type,
		ProgrammingLanguage: in.ProgrammingLanguage,
		State:               string(state),
		CreatedAt:           ts,
		UpdatedAt:           ts,
	}
	if err := s.db.WithContext(ctx).Create(&rec).Error; err != nil {
		return apperr.Service("sql", "CreateInterview", err)
	}
	return nil
}

func (s *SQL) GetInterview(ctx context.Context, id string) (*types.Interview, error) {
	var rec InterviewRecord
	if err := s.db.WithContext(ctx).First(&rec, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRecordNotFound
		}
		return nil, apperr.Service("sql", "GetInterview", err)
	}
	return &types.Interview{
		ID:                  rec.ID,
		UserID:              rec.UserID,
		VideoPath:           rec.VideoPath,
		Type:                rec.Type,
		ProgrammingLanguage: rec.ProgrammingLanguage,
		State:               types.InterviewState(rec.State),
	}, nil
}

func (s *SQL) UpdateInterviewState(ctx context.Context, id string, state types.InterviewState) error {
	tx := s.db.WithContext(ctx).
		Model(&InterviewRecord{}).
		Where("id = ?", id).
		Updates(map[string]any{"state": string(state), "updated_at": Timestamp(s.now())})
	if tx.Error != nil {
		s.log.WithFields(logrus.Fields{"interview_id": id, "state": state, "error": tx.Error.Error()}).Error("update interview state failed")
		return apperr.Service("sql", "UpdateInterviewState", tx.Error)
	}
	if tx.RowsAffected == 0 {
		return ErrRecordNotFound
	}
	return nil
}

func (s *SQL) SaveQuestionsBatch(ctx context.Context, batch QuestionBatch) (int, error) {
	records := batch.Records(s.now())
	log := s.log.WithField("interview_id", batch.InterviewID)

	saved := 0
	for i, part := range chunk(records, MaxBatchSize) {
		if err := s.db.WithContext(ctx).Create(&part).Error; err != nil {
			log.WithFields(logrus.Fields{"chunk": i, "error": err.Error()}).Error("batch insert failed")
			return saved, apperr.Service("sql", "SaveQuestionsBatch", err)
		}
		saved += len(part)
	}
	log.WithField("saved", saved).Info("questions saved")
	return saved, nil
}
