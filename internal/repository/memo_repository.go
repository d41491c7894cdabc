package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/memo-service/internal/domain"
)

// ErrVersionConflict is returned by Update when the stored memo has moved on
// since it was loaded.
var ErrVersionConflict = errors.New("memo version conflict")

// MemoFilter selects the memos of one view for a viewer.
type MemoFilter struct {
	Viewer string
	View   domain.View
	Limit  int
	Offset int
}

// MemoRepository encapsulates memo persistence. Update is a compare-and-swap
// on Version: it succeeds only if the stored version equals memo.Version and
// bumps it on success.
type MemoRepository interface {
	Create(ctx context.Context, memo *domain.Memo) error
	GetByID(ctx context.Context, id string) (*domain.Memo, error)
	Update(ctx context.Context, memo *domain.Memo) error
	Delete(ctx context.Context, id string) error
	ListForViewer(ctx context.Context, filter MemoFilter) ([]domain.Memo, error)
}

const memoColumns = `id, from_addr, from_name, from_dept, from_designation,
               to_addrs, cc_addrs, bcc_addrs, reply_to, recommender_addrs, approver_addrs,
               subject, message, is_financial, attachments, status, minutes, is_archived,
               approved_by_name, approved_by_dept, forwarded_from_id, version, created_at, updated_at`

const defaultListLimit = 20

type memoRepository struct {
	pool *pgxpool.Pool
}

// NewMemoRepository instantiates the Postgres-backed repository.
func NewMemoRepository(pool *pgxpool.Pool) MemoRepository {
	return &memoRepository{pool: pool}
}

func (r *memoRepository) Create(ctx context.Context, memo *domain.Memo) error {
	attachments, minutes, err := encodeDocuments(memo)
	if err != nil {
		return err
	}
	const query = `
        INSERT INTO memos (id, from_addr, from_name, from_dept, from_designation,
            to_addrs, cc_addrs, bcc_addrs, reply_to, recommender_addrs, approver_addrs,
            subject, message, is_financial, attachments, status, minutes, is_archived,
            approved_by_name, approved_by_dept, forwarded_from_id, version, created_at, updated_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,1,$22,$23)`
	_, err = r.pool.Exec(ctx, query,
		memo.ID,
		memo.From,
		memo.FromName,
		memo.FromDept,
		memo.FromDesignation,
		nonNil(memo.Recipients.To),
		nonNil(memo.Recipients.Cc),
		nonNil(memo.Recipients.Bcc),
		memo.Recipients.ReplyTo,
		nonNil(memo.Recommender),
		nonNil(memo.Approver),
		memo.Subject,
		memo.Message,
		memo.IsFinancial,
		attachments,
		memo.Status,
		minutes,
		memo.IsArchived,
		memo.ApprovedByName,
		memo.ApprovedByDept,
		memo.ForwardedFromID,
		memo.CreatedAt,
		memo.UpdatedAt,
	)
	if err != nil {
		return err
	}
	memo.Version = 1
	return nil
}

func (r *memoRepository) Update(ctx context.Context, memo *domain.Memo) error {
	attachments, minutes, err := encodeDocuments(memo)
	if err != nil {
		return err
	}
	const query = `
        UPDATE memos SET to_addrs=$1, cc_addrs=$2, bcc_addrs=$3, reply_to=$4,
            recommender_addrs=$5, approver_addrs=$6, subject=$7, message=$8, is_financial=$9,
            attachments=$10, status=$11, minutes=$12, is_archived=$13,
            approved_by_name=$14, approved_by_dept=$15, updated_at=$16, version=version+1
        WHERE id=$17 AND version=$18`
	cmd, err := r.pool.Exec(ctx, query,
		nonNil(memo.Recipients.To),
		nonNil(memo.Recipients.Cc),
		nonNil(memo.Recipients.Bcc),
		memo.Recipients.ReplyTo,
		nonNil(memo.Recommender),
		nonNil(memo.Approver),
		memo.Subject,
		memo.Message,
		memo.IsFinancial,
		attachments,
		memo.Status,
		minutes,
		memo.IsArchived,
		memo.ApprovedByName,
		memo.ApprovedByDept,
		memo.UpdatedAt,
		memo.ID,
		memo.Version,
	)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		var exists bool
		if err := r.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM memos WHERE id=$1)`, memo.ID).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return pgx.ErrNoRows
		}
		return ErrVersionConflict
	}
	memo.Version++
	return nil
}

func (r *memoRepository) GetByID(ctx context.Context, id string) (*domain.Memo, error) {
	query := `SELECT ` + memoColumns + ` FROM memos WHERE id=$1`
	rows, err := r.pool.Query(ctx, query, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	memos, err := scanMemos(rows)
	if err != nil {
		return nil, err
	}
	if len(memos) == 0 {
		return nil, pgx.ErrNoRows
	}
	return &memos[0], nil
}

func (r *memoRepository) Delete(ctx context.Context, id string) error {
	cmd, err := r.pool.Exec(ctx, `DELETE FROM memos WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *memoRepository) ListForViewer(ctx context.Context, filter MemoFilter) ([]domain.Memo, error) {
	predicate, err := viewPredicate(filter.View)
	if err != nil {
		return nil, err
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	query := fmt.Sprintf(`SELECT %s FROM memos WHERE %s ORDER BY updated_at DESC, id ASC LIMIT %d OFFSET %d`,
		memoColumns, predicate, limit, offset)

	rows, err := r.pool.Query(ctx, query, domain.NormalizeAddress(filter.Viewer))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanMemos(rows)
}

// viewPredicate mirrors domain.View.Matches in SQL; $1 is the viewer address.
func viewPredicate(view domain.View) (string, error) {
	const receives = `(status <> 'initiated' AND ($1 = ANY(to_addrs) OR $1 = ANY(cc_addrs) OR $1 = ANY(bcc_addrs)
            OR $1 = ANY(recommender_addrs) OR $1 = ANY(approver_addrs)))`
	const involved = `(from_addr = $1 OR ` + receives + `)`
	switch view {
	case domain.ViewInbox:
		return `NOT is_archived AND ` + receives, nil
	case domain.ViewSent:
		return `NOT is_archived AND from_addr = $1 AND status <> 'initiated'`, nil
	case domain.ViewDrafts:
		return `from_addr = $1 AND status = 'initiated'`, nil
	case domain.ViewArchived:
		return `is_archived AND ` + involved, nil
	case domain.ViewPending:
		return `NOT is_archived AND status = 'pending' AND ` + involved, nil
	case domain.ViewApproved:
		return `NOT is_archived AND status = 'approved' AND ` + involved, nil
	case domain.ViewTracking:
		return `NOT is_archived AND from_addr = $1 AND status NOT IN ('initiated', 'approved')`, nil
	}
	return "", fmt.Errorf("unknown view %q", view)
}

func scanMemos(rows pgx.Rows) ([]domain.Memo, error) {
	var result []domain.Memo
	for rows.Next() {
		var (
			memo        domain.Memo
			attachments []byte
			minutes     []byte
		)
		if err := rows.Scan(
			&memo.ID,
			&memo.From,
			&memo.FromName,
			&memo.FromDept,
			&memo.FromDesignation,
			&memo.Recipients.To,
			&memo.Recipients.Cc,
			&memo.Recipients.Bcc,
			&memo.Recipients.ReplyTo,
			&memo.Recommender,
			&memo.Approver,
			&memo.Subject,
			&memo.Message,
			&memo.IsFinancial,
			&attachments,
			&memo.Status,
			&minutes,
			&memo.IsArchived,
			&memo.ApprovedByName,
			&memo.ApprovedByDept,
			&memo.ForwardedFromID,
			&memo.Version,
			&memo.CreatedAt,
			&memo.UpdatedAt,
		); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(attachments, &memo.Attachments); err != nil {
			return nil, fmt.Errorf("decode attachments of memo %s: %w", memo.ID, err)
		}
		if err := json.Unmarshal(minutes, &memo.Minutes); err != nil {
			return nil, fmt.Errorf("decode minutes of memo %s: %w", memo.ID, err)
		}
		result = append(result, memo)
	}
	return result, rows.Err()
}

func encodeDocuments(memo *domain.Memo) ([]byte, []byte, error) {
	attachments, err := json.Marshal(nonNilAttachments(memo.Attachments))
	if err != nil {
		return nil, nil, fmt.Errorf("encode attachments: %w", err)
	}
	ledger := memo.Minutes
	if ledger == nil {
		ledger = domain.Ledger{}
	}
	minutes, err := json.Marshal(ledger)
	if err != nil {
		return nil, nil, fmt.Errorf("encode minutes: %w", err)
	}
	return attachments, minutes, nil
}

func nonNil(list []string) []string {
	if list == nil {
		return []string{}
	}
	return list
}

func nonNilAttachments(list []domain.Attachment) []domain.Attachment {
	if list == nil {
		return []domain.Attachment{}
	}
	return list
}
