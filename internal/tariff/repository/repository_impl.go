package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	tariffdomain "github.com/smallbiznis/utilitybill/internal/tariff/domain"
	"github.com/smallbiznis/utilitybill/pkg/db"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() tariffdomain.Repository {
	return &repo{}
}

const tariffColumns = `id, org_id, provider_id, code, name, description, configuration,
		active_from, active_until, created_by, created_at, updated_at`

func (r *repo) Insert(ctx context.Context, tx *gorm.DB, tariff *tariffdomain.Tariff) error {
	return tx.WithContext(ctx).Exec(
		`INSERT INTO tariffs (`+tariffColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		tariff.ID,
		tariff.OrgID,
		tariff.ProviderID,
		tariff.Code,
		tariff.Name,
		tariff.Description,
		tariff.Configuration,
		tariff.ActiveFrom,
		tariff.ActiveUntil,
		tariff.CreatedBy,
		tariff.CreatedAt,
		tariff.UpdatedAt,
	).Error
}

func (r *repo) FindByID(ctx context.Context, tx *gorm.DB, orgID, id snowflake.ID) (*tariffdomain.Tariff, error) {
	var tariff tariffdomain.Tariff
	err := tx.WithContext(ctx).Raw(
		`SELECT `+tariffColumns+`
		 FROM tariffs
		 WHERE org_id = ? AND id = ?`,
		orgID, id,
	).Scan(&tariff).Error
	if err != nil {
		return nil, err
	}
	if tariff.ID == 0 {
		return nil, nil
	}
	return &tariff, nil
}

func (r *repo) FindActive(ctx context.Context, tx *gorm.DB, orgID, providerID snowflake.ID, code string, asOf time.Time) ([]tariffdomain.Tariff, error) {
	query := `SELECT ` + tariffColumns + `
		 FROM tariffs
		 WHERE org_id = ? AND provider_id = ?
		   AND active_from <= ?
		   AND (active_until IS NULL OR active_until >= ?)`
	args := []interface{}{orgID, providerID, asOf, asOf}
	if code != "" {
		query += ` AND code = ?`
		args = append(args, code)
	}
	query += ` ORDER BY created_at DESC, id DESC`

	var items []tariffdomain.Tariff
	if err := tx.WithContext(ctx).Raw(query, args...).Scan(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) FindLatestVersion(ctx context.Context, tx *gorm.DB, orgID, providerID snowflake.ID, code string) (*tariffdomain.Tariff, error) {
	var tariff tariffdomain.Tariff
	err := tx.WithContext(ctx).Raw(
		`SELECT `+tariffColumns+`
		 FROM tariffs
		 WHERE org_id = ? AND provider_id = ? AND code = ?
		 ORDER BY active_from DESC, id DESC
		 LIMIT 1`+db.LockSuffix(tx),
		orgID, providerID, code,
	).Scan(&tariff).Error
	if err != nil {
		return nil, err
	}
	if tariff.ID == 0 {
		return nil, nil
	}
	return &tariff, nil
}

func (r *repo) CloseVersion(ctx context.Context, tx *gorm.DB, orgID, id snowflake.ID, activeUntil, updatedAt time.Time) error {
	return tx.WithContext(ctx).Exec(
		`UPDATE tariffs SET active_until = ?, updated_at = ? WHERE org_id = ? AND id = ?`,
		activeUntil, updatedAt, orgID, id,
	).Error
}

func (r *repo) ListVersions(ctx context.Context, tx *gorm.DB, orgID, providerID snowflake.ID, code string) ([]tariffdomain.Tariff, error) {
	var items []tariffdomain.Tariff
	err := tx.WithContext(ctx).Raw(
		`SELECT `+tariffColumns+`
		 FROM tariffs
		 WHERE org_id = ? AND provider_id = ? AND code = ?
		 ORDER BY active_from ASC, id ASC`,
		orgID, providerID, code,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}
