package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/MusabMahmoodh/review-pulse-sub001/internal/model"
)

// PostgresCredentialRepo はPostgreSQLを使用した連携認証情報リポジトリ。
type PostgresCredentialRepo struct {
	db *sql.DB
}

// NewPostgresCredentialRepo はPostgresCredentialRepoを生成する。
func NewPostgresCredentialRepo(db *sql.DB) *PostgresCredentialRepo {
	return &PostgresCredentialRepo{db: db}
}

const credentialColumns = `id, account_id, platform, resource_id, secondary_resource_id,
       access_token_cipher, refresh_token_cipher, token_expiry, last_synced_at,
       status, created_at, updated_at`

// FindByAccountAndPlatform は(account_id, platform)で認証情報を取得する。
// 見つからない場合はnilを返す。
func (r *PostgresCredentialRepo) FindByAccountAndPlatform(ctx context.Context, accountID string, platform model.Platform) (*model.IntegrationCredential, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+credentialColumns+`
		 FROM integration_credentials
		 WHERE account_id = $1 AND platform = $2`,
		accountID, string(platform),
	)

	cred, err := scanCredential(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("認証情報の取得に失敗しました: %w", err)
	}
	return cred, nil
}

// Upsert は認証情報を作成または全フィールド上書きする。
// (account_id, platform)の一意制約に対するON CONFLICTで、
// 再ハンドシェイク時は既存レコードの上書きとなる（追記ではない）。
func (r *PostgresCredentialRepo) Upsert(ctx context.Context, cred *model.IntegrationCredential) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO integration_credentials
		   (id, account_id, platform, resource_id, secondary_resource_id,
		    access_token_cipher, refresh_token_cipher, token_expiry, last_synced_at,
		    status, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		 ON CONFLICT (account_id, platform) DO UPDATE SET
		   resource_id = EXCLUDED.resource_id,
		   secondary_resource_id = EXCLUDED.secondary_resource_id,
		   access_token_cipher = EXCLUDED.access_token_cipher,
		   refresh_token_cipher = EXCLUDED.refresh_token_cipher,
		   token_expiry = EXCLUDED.token_expiry,
		   last_synced_at = EXCLUDED.last_synced_at,
		   status = EXCLUDED.status,
		   updated_at = EXCLUDED.updated_at`,
		cred.ID, cred.AccountID, string(cred.Platform), cred.ResourceID,
		nullString(cred.SecondaryResourceID), cred.AccessTokenCipher,
		nullString(cred.RefreshTokenCipher), cred.TokenExpiry, cred.LastSyncedAt,
		string(cred.Status), cred.CreatedAt, cred.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("認証情報のUPSERTに失敗しました: %w", err)
	}
	return nil
}

// MarkExpired はstatusをexpiredに設定する。
// すでにexpiredの場合は行を変更しない（冪等）。
func (r *PostgresCredentialRepo) MarkExpired(ctx context.Context, accountID string, platform model.Platform) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE integration_credentials
		 SET status = $3, updated_at = now()
		 WHERE account_id = $1 AND platform = $2 AND status <> $3`,
		accountID, string(platform), string(model.CredentialStatusExpired),
	)
	if err != nil {
		return fmt.Errorf("認証情報の失効マークに失敗しました: %w", err)
	}
	return nil
}

// TouchSyncedAt は同期ウォーターマークを前進させる。
// GREATESTによる条件付きmax更新のため、並行同期で古いタイムスタンプが
// 後着してもウォーターマークは過去に戻らない。
func (r *PostgresCredentialRepo) TouchSyncedAt(ctx context.Context, accountID string, platform model.Platform, ts time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE integration_credentials
		 SET last_synced_at = GREATEST(COALESCE(last_synced_at, 'epoch'::timestamptz), $3),
		     updated_at = now()
		 WHERE account_id = $1 AND platform = $2`,
		accountID, string(platform), ts,
	)
	if err != nil {
		return fmt.Errorf("同期ウォーターマークの更新に失敗しました: %w", err)
	}
	return nil
}

// ListDueForSync は同期が必要なactiveな認証情報を取得する。
func (r *PostgresCredentialRepo) ListDueForSync(ctx context.Context, staleBefore time.Time) ([]*model.IntegrationCredential, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+credentialColumns+`
		 FROM integration_credentials
		 WHERE status = $1
		   AND (last_synced_at IS NULL OR last_synced_at < $2)
		 ORDER BY last_synced_at ASC NULLS FIRST`,
		string(model.CredentialStatusActive), staleBefore,
	)
	if err != nil {
		return nil, fmt.Errorf("同期対象の認証情報一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var creds []*model.IntegrationCredential
	for rows.Next() {
		cred, err := scanCredential(rows)
		if err != nil {
			return nil, fmt.Errorf("認証情報行の読み取りに失敗しました: %w", err)
		}
		creds = append(creds, cred)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("認証情報一覧の走査に失敗しました: %w", err)
	}

	return creds, nil
}

// rowScanner はsql.Rowとsql.Rowsの共通Scanインターフェース。
type rowScanner interface {
	Scan(dest ...interface{}) error
}

// scanCredential は1行分の認証情報を読み取る。
func scanCredential(row rowScanner) (*model.IntegrationCredential, error) {
	cred := &model.IntegrationCredential{}
	var platform, status string
	var secondaryResourceID, refreshTokenCipher sql.NullString
	var lastSyncedAt sql.NullTime

	err := row.Scan(
		&cred.ID, &cred.AccountID, &platform, &cred.ResourceID, &secondaryResourceID,
		&cred.AccessTokenCipher, &refreshTokenCipher, &cred.TokenExpiry, &lastSyncedAt,
		&status, &cred.CreatedAt, &cred.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	cred.Platform = model.Platform(platform)
	cred.Status = model.CredentialStatus(status)
	cred.SecondaryResourceID = nullStringValue(secondaryResourceID)
	cred.RefreshTokenCipher = nullStringValue(refreshTokenCipher)
	if lastSyncedAt.Valid {
		t := lastSyncedAt.Time
		cred.LastSyncedAt = &t
	}

	return cred, nil
}

// compile-time interface check
var _ CredentialRepository = (*PostgresCredentialRepo)(nil)
