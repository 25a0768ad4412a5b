package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	dbcontracts "bizgrow/contracts/db"
)

type PostRepository struct {
	db *pgxpool.Pool
}

func NewPostRepository(db *pgxpool.Pool) *PostRepository {
	return &PostRepository{db: db}
}

// GetPost returns title and author of a community post. pgx.ErrNoRows when it is gone.
func (r *PostRepository) GetPost(ctx context.Context, postID string) (*dbcontracts.CommunityPost, error) {
	query := `
        SELECT id::text, user_id::text, title, COALESCE(category, '')
        FROM community_posts
        WHERE id = $1::text::uuid
    `
	var p dbcontracts.CommunityPost
	err := r.db.QueryRow(ctx, query, postID).Scan(
		&p.ID,
		&p.UserID,
		&p.Title,
		&p.Category,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}
