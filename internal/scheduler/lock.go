package scheduler

import (
	"fmt"
	"time"

	"github.com/chatwheel/followup/internal/models"
	"gorm.io/gorm"
)

// LockName is the well-known tick lock shared by all service instances.
const LockName = "scheduler-tick"

// DefaultHeartbeatTimeout is the duration after which a lock holder's
// heartbeat is considered stale and the lock can be reclaimed.
const DefaultHeartbeatTimeout = 90 * time.Second

// Gate decides whether this instance may run the tick. Exactly one
// instance cluster-wide must get true per period; how that is coordinated
// is up to the implementation.
type Gate interface {
	ShouldRun() (bool, error)
}

// AlwaysRun is a Gate for single-instance deployments and tests.
type AlwaysRun struct{}

// ShouldRun always permits the tick.
func (AlwaysRun) ShouldRun() (bool, error) { return true, nil }

// DBGate serializes the tick through a heartbeat row in the database.
// The first instance to claim the lock runs every tick and refreshes its
// heartbeat; others stand by and take over once the heartbeat goes stale.
type DBGate struct {
	DB       *gorm.DB
	HolderID string
	Timeout  time.Duration
}

// ShouldRun reports whether this instance currently holds the tick lock,
// claiming or reclaiming it when possible.
func (g *DBGate) ShouldRun() (bool, error) {
	if g.HolderID == "" {
		return false, fmt.Errorf("scheduler: gate holder ID is required")
	}
	timeout := g.Timeout
	if timeout <= 0 {
		timeout = DefaultHeartbeatTimeout
	}

	var holding bool
	err := g.DB.Transaction(func(tx *gorm.DB) error {
		now := time.Now()
		cutoff := now.Add(-timeout)

		// Expire stale holders so the lock can move.
		if err := tx.Model(&models.TickLock{}).
			Where("name = ? AND status = ? AND last_heartbeat < ?", LockName, "active", cutoff).
			Updates(map[string]interface{}{
				"status":      "expired",
				"released_at": now,
			}).Error; err != nil {
			return fmt.Errorf("expire stale locks: %w", err)
		}

		var existing models.TickLock
		result := tx.Where("name = ? AND status = ?", LockName, "active").First(&existing)
		if result.Error == nil {
			if existing.HolderID != g.HolderID {
				return nil // someone else holds it
			}
			holding = true
			return tx.Model(&models.TickLock{}).
				Where("id = ?", existing.ID).
				Update("last_heartbeat", now).Error
		}
		if result.Error != gorm.ErrRecordNotFound {
			return fmt.Errorf("check lock: %w", result.Error)
		}

		// Unheld — claim it.
		lock := models.TickLock{
			Name:          LockName,
			HolderID:      g.HolderID,
			Status:        "active",
			LastHeartbeat: now,
		}
		if err := tx.Create(&lock).Error; err != nil {
			return fmt.Errorf("claim lock: %w", err)
		}
		holding = true
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("scheduler: tick gate: %w", err)
	}
	return holding, nil
}

// Release marks this holder's active lock as released so another instance
// can claim it immediately.
func (g *DBGate) Release() error {
	now := time.Now()
	result := g.DB.Model(&models.TickLock{}).
		Where("name = ? AND holder_id = ? AND status = ?", LockName, g.HolderID, "active").
		Updates(map[string]interface{}{
			"status":      "released",
			"released_at": now,
		})
	if result.Error != nil {
		return fmt.Errorf("scheduler: release lock: %w", result.Error)
	}
	return nil
}
