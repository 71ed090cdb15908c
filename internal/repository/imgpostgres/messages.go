package imgpostgres

import (
	"context"
	"log"

	"github.com/UnendingLoop/ImagePipeline/internal/model"
	"github.com/wb-go/wbf/dbpg"
)

// MessageRepo keeps the append-only processing log of every project
type MessageRepo struct {
	DB *dbpg.DB
}

func (p MessageRepo) Create(ctx context.Context, m *model.Message) error {
	query := `INSERT INTO messages (project_id, image_id, text, created_at)
	VALUES ($1, $2, $3, $4)
	RETURNING id`

	return p.DB.Master.QueryRowContext(ctx, query, m.ProjectID, m.ImageID, m.Text, m.Timestamp).Scan(&m.ID)
}

// ListByProject returns the log in replay order
func (p MessageRepo) ListByProject(ctx context.Context, projectID int64) ([]model.Message, error) {
	query := `SELECT id, project_id, image_id, text, created_at
	FROM messages
	WHERE project_id = $1
	ORDER BY created_at, id`

	rows, err := p.DB.QueryContext(ctx, query, projectID)
	if err != nil {
		return nil, err
	}

	defer func() {
		if err := rows.Close(); err != nil {
			log.Printf("Error while closing *sql.Rows after scanning: %v", err)
		}
	}()

	messages := make([]model.Message, 0)
	for rows.Next() {
		var m model.Message
		if err := rows.Scan(&m.ID, &m.ProjectID, &m.ImageID, &m.Text, &m.Timestamp); err != nil {
			return nil, err
		}
		messages = append(messages, m)
	}

	if rows.Err() != nil {
		return nil, rows.Err()
	}

	return messages, nil
}
