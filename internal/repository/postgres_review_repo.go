package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/MusabMahmoodh/review-pulse-sub001/internal/model"
)

// PostgresReviewRepo はPostgreSQLを使用した外部レビューリポジトリ。
// (platform, account_id, external_id)の一意制約をストレージ層で強制し、
// 再同期の冪等性をアプリケーションロジックに依存させない。
type PostgresReviewRepo struct {
	db *sql.DB
}

// NewPostgresReviewRepo はPostgresReviewRepoを生成する。
func NewPostgresReviewRepo(db *sql.DB) *PostgresReviewRepo {
	return &PostgresReviewRepo{db: db}
}

// Upsert はレビューを挿入または上書き更新する。
// ON CONFLICTで既存行の可変フィールド（author/rating/comment/review_date）を
// 更新し、RETURNING (xmax = 0) で挿入か更新かを判別する。
// レビュー行がこのサブシステムから削除されることはない。
func (r *PostgresReviewRepo) Upsert(ctx context.Context, review *model.ExternalReview) (bool, error) {
	var created bool
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO external_reviews
		   (id, account_id, platform, external_id, author, rating, comment,
		    review_date, is_date_estimated, synced_at, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		 ON CONFLICT (platform, account_id, external_id) DO UPDATE SET
		   author = EXCLUDED.author,
		   rating = EXCLUDED.rating,
		   comment = EXCLUDED.comment,
		   review_date = EXCLUDED.review_date,
		   is_date_estimated = EXCLUDED.is_date_estimated,
		   synced_at = EXCLUDED.synced_at,
		   updated_at = EXCLUDED.updated_at
		 RETURNING (xmax = 0)`,
		review.ID, review.AccountID, string(review.Platform), review.ExternalID,
		review.Author, review.Rating, review.Comment,
		review.ReviewDate, review.IsDateEstimated, review.SyncedAt,
		review.CreatedAt, review.UpdatedAt,
	).Scan(&created)
	if err != nil {
		return false, fmt.Errorf("レビューのUPSERTに失敗しました: %w", err)
	}
	return created, nil
}

// ListByAccount はアカウントのレビュー一覧をreview_date降順で返す。
// カーソルベースページネーションを使用する。
func (r *PostgresReviewRepo) ListByAccount(ctx context.Context, accountID string, platform model.Platform, cursor time.Time, limit int) ([]*model.ExternalReview, error) {
	baseQuery := `
		SELECT id, account_id, platform, external_id, author, rating, comment,
		       review_date, is_date_estimated, synced_at, created_at, updated_at
		FROM external_reviews
		WHERE account_id = $1`

	args := []interface{}{accountID}
	argIndex := 2

	if platform != "" {
		baseQuery += fmt.Sprintf(" AND platform = $%d", argIndex)
		args = append(args, string(platform))
		argIndex++
	}

	if !cursor.IsZero() {
		baseQuery += fmt.Sprintf(" AND review_date < $%d", argIndex)
		args = append(args, cursor)
		argIndex++
	}

	baseQuery += fmt.Sprintf(" ORDER BY review_date DESC LIMIT $%d", argIndex)
	args = append(args, limit)

	rows, err := r.db.QueryContext(ctx, baseQuery, args...)
	if err != nil {
		return nil, fmt.Errorf("レビュー一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var reviews []*model.ExternalReview
	for rows.Next() {
		review := &model.ExternalReview{}
		var platformVal string

		if err := rows.Scan(
			&review.ID, &review.AccountID, &platformVal, &review.ExternalID,
			&review.Author, &review.Rating, &review.Comment,
			&review.ReviewDate, &review.IsDateEstimated, &review.SyncedAt,
			&review.CreatedAt, &review.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("レビュー行の読み取りに失敗しました: %w", err)
		}

		review.Platform = model.Platform(platformVal)
		reviews = append(reviews, review)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("レビュー一覧の走査に失敗しました: %w", err)
	}

	return reviews, nil
}

// CountByAccountAndPlatform は(account_id, platform)のレビュー件数を返す。
func (r *PostgresReviewRepo) CountByAccountAndPlatform(ctx context.Context, accountID string, platform model.Platform) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM external_reviews WHERE account_id = $1 AND platform = $2`,
		accountID, string(platform),
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("レビュー件数の取得に失敗しました: %w", err)
	}
	return count, nil
}

// compile-time interface check
var _ ReviewRepository = (*PostgresReviewRepo)(nil)
