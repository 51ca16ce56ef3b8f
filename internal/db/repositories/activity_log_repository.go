// activity_log_repository.go implements ActivityLogRepository. The repository
// only inserts and reads; activity records are never updated or deleted.
package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/sports-federation/federation-portal/internal/db/models"
)

// ActivityLogRepository handles activity log database operations
type ActivityLogRepository struct {
	db *sqlx.DB
}

// NewActivityLogRepository creates a new ActivityLogRepository
func NewActivityLogRepository(db *sqlx.DB) *ActivityLogRepository {
	return &ActivityLogRepository{db: db}
}

// ActivityFilters contains filters for querying activity logs
type ActivityFilters struct {
	ActorUserID *string
	Action      *string
	EntityType  *string
	From        *time.Time
	To          *time.Time
}

// Create appends an activity record. ID and CreatedAt are assigned here.
func (r *ActivityLogRepository) Create(ctx context.Context, log *models.ActivityLog) error {
	log.ID = uuid.New().String()
	log.CreatedAt = time.Now().UTC()

	query := `
		INSERT INTO activity_logs (id, actor_user_id, action, entity_type, entity_id, metadata, ip_address, user_agent, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err := r.db.ExecContext(ctx, query,
		log.ID,
		log.ActorUserID,
		log.Action,
		log.EntityType,
		log.EntityID,
		log.Metadata,
		log.IPAddress,
		log.UserAgent,
		log.CreatedAt,
	)
	return err
}

const activityLogColumns = `id, actor_user_id, action, entity_type, entity_id, metadata, ip_address, user_agent, created_at`

// List retrieves activity logs with optional filters and pagination, newest
// first, along with the total number of matching rows.
func (r *ActivityLogRepository) List(ctx context.Context, filters ActivityFilters, limit, offset int) ([]*models.ActivityLog, int, error) {
	where := ` WHERE 1=1`
	args := make([]interface{}, 0)
	paramIndex := 1

	add := func(clause string, value interface{}) {
		where += fmt.Sprintf(" AND "+clause, paramIndex)
		args = append(args, value)
		paramIndex++
	}
	if filters.ActorUserID != nil {
		add(`actor_user_id = $%d`, *filters.ActorUserID)
	}
	if filters.Action != nil {
		add(`action = $%d`, *filters.Action)
	}
	if filters.EntityType != nil {
		add(`entity_type = $%d`, *filters.EntityType)
	}
	if filters.From != nil {
		add(`created_at >= $%d`, *filters.From)
	}
	if filters.To != nil {
		add(`created_at <= $%d`, *filters.To)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM activity_logs`+where, args...); err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + activityLogColumns + ` FROM activity_logs` + where +
		fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d OFFSET $%d`, paramIndex, paramIndex+1)
	args = append(args, limit, offset)

	logs := make([]*models.ActivityLog, 0)
	if err := r.db.SelectContext(ctx, &logs, query, args...); err != nil {
		return nil, 0, err
	}
	return logs, total, nil
}

// Get retrieves a single activity log. It returns (nil, nil) when not found.
func (r *ActivityLogRepository) Get(ctx context.Context, id string) (*models.ActivityLog, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, nil
	}
	var log models.ActivityLog
	err := r.db.GetContext(ctx, &log, `SELECT `+activityLogColumns+` FROM activity_logs WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &log, nil
}
