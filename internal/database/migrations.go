package database

import (
	"errors"
	"time"

	"github.com/MarcoPoloResearchLab/taskboard/backend/internal/invitations"
	"github.com/MarcoPoloResearchLab/taskboard/backend/internal/tasks"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	migrationNormalizeEmails      = "2026-05-01_normalize_emails"
	migrationPendingInvitationKey = "2026-05-01_board_invitations_pending_index"
	migrationBackfillPriority     = "2026-05-02_backfill_task_priority"
)

type migrationRecord struct {
	Name             string `gorm:"column:name;primaryKey;size:190;not null"`
	AppliedAtSeconds int64  `gorm:"column:applied_at_s;not null"`
}

func (migrationRecord) TableName() string {
	return "db_migrations"
}

type migrationDefinition struct {
	name  string
	apply func(*gorm.DB) error
}

func applyMigrations(db *gorm.DB, logger *zap.Logger) error {
	migrations := []migrationDefinition{
		{name: migrationNormalizeEmails, apply: normalizeEmails},
		{name: migrationPendingInvitationKey, apply: createPendingInvitationIndex},
		{name: migrationBackfillPriority, apply: backfillTaskPriority},
	}

	for _, migration := range migrations {
		var record migrationRecord
		err := db.Where("name = ?", migration.name).Take(&record).Error
		if err == nil {
			continue
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		if err := migration.apply(db); err != nil {
			return err
		}
		appliedAt := time.Now().UTC().Unix()
		if err := db.Create(&migrationRecord{Name: migration.name, AppliedAtSeconds: appliedAt}).Error; err != nil {
			return err
		}
		if logger != nil {
			logger.Info("database migration applied", zap.String("migration", migration.name))
		}
	}
	return nil
}

func normalizeEmails(db *gorm.DB) error {
	if err := db.Exec("UPDATE users SET email = LOWER(TRIM(email)) WHERE email <> LOWER(TRIM(email))").Error; err != nil {
		return err
	}
	return db.Exec("UPDATE board_invitations SET email = LOWER(TRIM(email)) WHERE email <> LOWER(TRIM(email))").Error
}

// createPendingInvitationIndex adds the partial unique index where the dialect supports one.
// MySQL has no partial indexes and relies on the board lock taken by Invite.
func createPendingInvitationIndex(db *gorm.DB) error {
	if db.Dialector.Name() == DriverMySQL {
		return nil
	}
	return db.Exec(invitations.PendingIndexSQL).Error
}

func backfillTaskPriority(db *gorm.DB) error {
	return db.Model(&tasks.Task{}).
		Where("priority IS NULL OR priority = ''").
		Update("priority", tasks.PriorityMedium).Error
}
