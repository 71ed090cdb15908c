// Package imgpostgres implements image and message persistence on Postgres
package imgpostgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"

	"github.com/UnendingLoop/ImagePipeline/internal/model"
	"github.com/lib/pq"
	"github.com/wb-go/wbf/dbpg"
)

const uniqueViolation pq.ErrorCode = "23505"

type PostgresRepo struct {
	DB *dbpg.DB
}

func (p PostgresRepo) Create(ctx context.Context, n *model.Image) error {
	query := `INSERT INTO images (filename, project_id, state, original_url, created_at, updated_at)
	VALUES ($1, $2, $3, $4, COALESCE($5, now()), COALESCE($5, now()))
	RETURNING id`

	err := p.DB.Master.QueryRowContext(ctx, query, n.Filename, n.ProjectID, n.State, n.OriginalURL, n.CreatedAt).Scan(&n.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return model.ErrConflict // 409
		}
		return err // 500
	}
	return nil
}

func (p PostgresRepo) Get(ctx context.Context, id int64) (*model.Image, error) {
	query := `SELECT id, filename, project_id, state, original_url, thumb_url, big_thumb_url, big_1920_url, d2500_url, created_at, updated_at
	FROM images
	WHERE id = $1`

	image, err := scanImage(p.DB.QueryRowContext(ctx, query, id))
	if err != nil {
		switch {
		case errors.Is(err, sql.ErrNoRows):
			return nil, model.ErrImageNotFound
		default:
			return nil, err // 500
		}
	}
	return image, nil
}

func (p PostgresRepo) ExistsByName(ctx context.Context, projectID int64, filename string) (bool, error) {
	query := `SELECT EXISTS(SELECT 1 FROM images WHERE project_id = $1 AND filename = $2)`

	var exists bool
	if err := p.DB.QueryRowContext(ctx, query, projectID, filename).Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}

func (p PostgresRepo) ListByProject(ctx context.Context, projectID int64) ([]model.Image, error) {
	query := `SELECT id, filename, project_id, state, original_url, thumb_url, big_thumb_url, big_1920_url, d2500_url, created_at, updated_at
	FROM images
	WHERE project_id = $1
	ORDER BY id`

	rows, err := p.DB.QueryContext(ctx, query, projectID)
	if err != nil {
		return nil, err
	}

	defer func() {
		if err := rows.Close(); err != nil {
			log.Printf("Error while closing *sql.Rows after scanning: %v", err)
		}
	}()

	images := make([]model.Image, 0)
	for rows.Next() {
		image, err := scanImage(rows)
		if err != nil {
			return nil, err
		}
		images = append(images, *image)
	}

	if rows.Err() != nil {
		return nil, rows.Err()
	}

	return images, nil
}

// UpdateState moves the image from -> to only if the row is still in state from
func (p PostgresRepo) UpdateState(ctx context.Context, id int64, from, to model.State) error {
	if _, err := from.To(to); err != nil {
		return err
	}

	query := `UPDATE images SET state = $1, updated_at = now() WHERE id = $2 AND state = $3`
	res, err := p.DB.Master.ExecContext(ctx, query, to, id, from)
	if err != nil {
		return err // 500
	}

	return expectOneRow(res, id, from)
}

// Complete stores all rendition URLs and sets state done in a single statement
func (p PostgresRepo) Complete(ctx context.Context, id int64, urls model.RenditionURLs) error {
	if !urls.Complete() {
		return fmt.Errorf("refusing to store incomplete rendition set for image %d", id)
	}

	query := `UPDATE images
	SET state = $1, thumb_url = $2, big_thumb_url = $3, big_1920_url = $4, d2500_url = $5, updated_at = now()
	WHERE id = $6 AND state = $7`
	res, err := p.DB.Master.ExecContext(ctx, query,
		model.StateDone,
		urls[model.Thumb.Name],
		urls[model.BigThumb.Name],
		urls[model.Big1920.Name],
		urls[model.D2500.Name],
		id,
		model.StateProcessing)
	if err != nil {
		return err // 500
	}

	return expectOneRow(res, id, model.StateProcessing)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanImage(row rowScanner) (*model.Image, error) {
	var image model.Image
	if err := row.Scan(&image.ID,
		&image.Filename,
		&image.ProjectID,
		&image.State,
		&image.OriginalURL,
		&image.ThumbURL,
		&image.BigThumbURL,
		&image.Big1920URL,
		&image.D2500URL,
		&image.CreatedAt,
		&image.UpdatedAt); err != nil {
		return nil, err
	}
	return &image, nil
}

func expectOneRow(res sql.Result, id int64, from model.State) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: image %d expected in state %q", model.ErrStaleState, id, from)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}
