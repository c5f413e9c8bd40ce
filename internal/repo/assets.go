package repo

import (
	"context"
	"database/sql"
	"time"

	"ticketflow/internal/domain"
)

// InsertAsset records an uploaded asset row. Name is unique; re-uploading the
// same name replaces the row so the path stays current.
func (r Repo) InsertAsset(ctx context.Context, a domain.AssetRef) error {
	if a.CreatedAt == "" {
		a.CreatedAt = time.Now().UTC().Format(time.RFC3339)
	}
	_, err := r.DB.ExecContext(ctx, `INSERT INTO assets(id,name,type,path,created_at) VALUES (?,?,?,?,?)
ON CONFLICT(name) DO UPDATE SET type=excluded.type,path=excluded.path`,
		a.ID, a.Name, a.Type, a.Path, a.CreatedAt)
	return err
}

func (r Repo) GetAssetByName(ctx context.Context, name string) (domain.AssetRef, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT id,name,type,path,created_at FROM assets WHERE name=?`, name)
	var a domain.AssetRef
	err := row.Scan(&a.ID, &a.Name, &a.Type, &a.Path, &a.CreatedAt)
	if err == sql.ErrNoRows {
		return domain.AssetRef{}, ErrNotFound
	}
	if err != nil {
		return domain.AssetRef{}, err
	}
	return a, nil
}

func (r Repo) ListAssets(ctx context.Context) ([]domain.AssetRef, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,name,type,path,created_at FROM assets ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.AssetRef
	for rows.Next() {
		var a domain.AssetRef
		if err := rows.Scan(&a.ID, &a.Name, &a.Type, &a.Path, &a.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, a)
	}
	return res, rows.Err()
}
