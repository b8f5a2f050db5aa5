package migration

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/orris-inc/quickpay/internal/shared/logger"
)

// Manager runs the migration strategy that fits the database driver.
type Manager struct {
	strategy Strategy
	logger   logger.Interface
}

// NewManager picks versioned goose scripts for MySQL and AutoMigrate for SQLite.
func NewManager(db *gorm.DB, log logger.Interface) *Manager {
	var strategy Strategy
	if db.Dialector != nil && db.Dialector.Name() == "sqlite" {
		strategy = NewGormAutoMigrateStrategy(log)
	} else {
		strategy = NewGooseStrategy(log)
	}
	return NewManagerWithStrategy(strategy, log)
}

func NewManagerWithStrategy(strategy Strategy, log logger.Interface) *Manager {
	return &Manager{
		strategy: strategy,
		logger:   log.With("component", "migration.manager"),
	}
}

func (m *Manager) Migrate(ctx context.Context, db *gorm.DB) error {
	m.logger.Infow("starting database migration", "strategy", m.strategy.GetName())

	if err := m.strategy.Migrate(ctx, db); err != nil {
		m.logger.Errorw("migration failed", "strategy", m.strategy.GetName(), "error", err)
		return fmt.Errorf("migration failed with strategy %s: %w", m.strategy.GetName(), err)
	}

	m.logger.Infow("database migration completed successfully", "strategy", m.strategy.GetName())
	return nil
}

// Down rolls back steps versions. Only versioned strategies support it.
func (m *Manager) Down(ctx context.Context, db *gorm.DB, steps int) error {
	g, ok := m.strategy.(*GooseStrategy)
	if !ok {
		return fmt.Errorf("strategy %s does not support down migrations", m.strategy.GetName())
	}
	return g.MigrateDown(ctx, db, steps)
}

func (m *Manager) Status(ctx context.Context, db *gorm.DB) error {
	g, ok := m.strategy.(*GooseStrategy)
	if !ok {
		return fmt.Errorf("strategy %s does not track versions", m.strategy.GetName())
	}
	return g.Status(ctx, db)
}

func (m *Manager) GetStrategy() Strategy {
	return m.strategy
}
