package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/exstem-authoring/internal/model"
)

const partColumns = `id, exam_id, part_number, title, description, instructions, time_limit_minutes`

// PartRepository handles exam part data access. Part numbers stay
// contiguous from 1 within an exam.
type PartRepository struct {
	pool *pgxpool.Pool
}

// NewPartRepository creates a new PartRepository.
func NewPartRepository(pool *pgxpool.Pool) *PartRepository {
	return &PartRepository{pool: pool}
}

func scanPart(row pgx.Row, p *model.Part) error {
	return row.Scan(&p.ID, &p.ExamID, &p.PartNumber, &p.Title, &p.Description, &p.Instructions, &p.TimeLimitMinutes)
}

// GetByID retrieves a part without its questions.
func (r *PartRepository) GetByID(ctx context.Context, id int64) (*model.Part, error) {
	p := &model.Part{}
	if err := scanPart(r.pool.QueryRow(ctx, `SELECT `+partColumns+` FROM exam_parts WHERE id = $1`, id), p); err != nil {
		return nil, notFound(err)
	}
	return p, nil
}

// Owner returns the exam a part belongs to and that exam's author.
func (r *PartRepository) Owner(ctx context.Context, id int64) (examID int64, authorID int, err error) {
	err = r.pool.QueryRow(ctx,
		`SELECT e.id, e.author_id FROM exam_parts p JOIN exams e ON e.id = p.exam_id WHERE p.id = $1`, id,
	).Scan(&examID, &authorID)
	return examID, authorID, notFound(err)
}

// Create inserts p into its exam at p.PartNumber, shifting later parts.
// A zero or out-of-range number appends. p.PartNumber holds the stored
// number afterwards.
func (r *PartRepository) Create(ctx context.Context, p *model.Part) error {
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		if err := lockExam(ctx, tx, p.ExamID); err != nil {
			return err
		}
		n, err := partSiblings.count(ctx, tx, p.ExamID)
		if err != nil {
			return err
		}
		p.PartNumber = clampPosition(p.PartNumber, n+1)
		if err := partSiblings.openGap(ctx, tx, p.ExamID, p.PartNumber); err != nil {
			return err
		}
		err = tx.QueryRow(ctx,
			`INSERT INTO exam_parts (exam_id, part_number, title, description, instructions, time_limit_minutes)
			 VALUES ($1, $2, $3, $4, $5, $6)
			 RETURNING id`,
			p.ExamID, p.PartNumber, p.Title, p.Description, p.Instructions, p.TimeLimitMinutes,
		).Scan(&p.ID)
		if err != nil {
			return err
		}
		return touch(ctx, tx, p.ExamID)
	})
}

// Update overwrites a part's fields and moves it to p.PartNumber when that
// differs from its stored number. A zero number keeps the position.
func (r *PartRepository) Update(ctx context.Context, p *model.Part) error {
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		var err error
		if p.ExamID, err = lockPart(ctx, tx, p.ID); err != nil {
			return err
		}
		var current int
		if err := tx.QueryRow(ctx, `SELECT part_number FROM exam_parts WHERE id = $1`, p.ID).Scan(&current); err != nil {
			return err
		}

		target := current
		if p.PartNumber > 0 {
			n, err := partSiblings.count(ctx, tx, p.ExamID)
			if err != nil {
				return err
			}
			target = clampPosition(p.PartNumber, n)
		}
		if err := partSiblings.move(ctx, tx, p.ExamID, current, target); err != nil {
			return err
		}
		p.PartNumber = target

		_, err = tx.Exec(ctx,
			`UPDATE exam_parts
			 SET part_number = $1, title = $2, description = $3, instructions = $4,
			     time_limit_minutes = $5, updated_at = NOW()
			 WHERE id = $6`,
			p.PartNumber, p.Title, p.Description, p.Instructions, p.TimeLimitMinutes, p.ID)
		if err != nil {
			return err
		}
		return touch(ctx, tx, p.ExamID)
	})
}

// Delete removes a part and its questions and renumbers the parts after it.
// It returns the owning exam and the media URLs of the removed questions.
func (r *PartRepository) Delete(ctx context.Context, id int64) (examID int64, media []string, err error) {
	err = pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		var err error
		if examID, err = lockPart(ctx, tx, id); err != nil {
			return err
		}
		var number int
		if err := tx.QueryRow(ctx, `SELECT part_number FROM exam_parts WHERE id = $1`, id).Scan(&number); err != nil {
			return err
		}

		media, err = collectMedia(ctx, tx, `SELECT image_url, audio_url FROM questions WHERE part_id = $1`, id)
		if err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `DELETE FROM exam_parts WHERE id = $1`, id); err != nil {
			return err
		}
		if err := partSiblings.closeGap(ctx, tx, examID, number); err != nil {
			return err
		}
		return touch(ctx, tx, examID)
	})
	return examID, media, err
}
