package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/exstem-authoring/internal/model"
)

const (
	questionColumns = `id, part_id, question_text, question_type, options_text, correct_answer,
	explanation, points, question_order, image_url, audio_url`
	questionColumnsQualified = `q.id, q.part_id, q.question_text, q.question_type, q.options_text, q.correct_answer,
	q.explanation, q.points, q.question_order, q.image_url, q.audio_url`
)

// QuestionRepository handles question data access. Question order stays
// contiguous from 1 within a part.
type QuestionRepository struct {
	pool *pgxpool.Pool
}

// NewQuestionRepository creates a new QuestionRepository.
func NewQuestionRepository(pool *pgxpool.Pool) *QuestionRepository {
	return &QuestionRepository{pool: pool}
}

func scanQuestion(row pgx.Row, q *model.Question) error {
	return row.Scan(&q.ID, &q.PartID, &q.QuestionText, &q.QuestionType, &q.OptionsText, &q.CorrectAnswer,
		&q.Explanation, &q.Points, &q.QuestionOrder, &q.ImageURL, &q.AudioURL)
}

// GetByID retrieves a question.
func (r *QuestionRepository) GetByID(ctx context.Context, id int64) (*model.Question, error) {
	q := &model.Question{}
	if err := scanQuestion(r.pool.QueryRow(ctx, `SELECT `+questionColumns+` FROM questions WHERE id = $1`, id), q); err != nil {
		return nil, notFound(err)
	}
	return q, nil
}

// Owner returns the exam a question belongs to and that exam's author.
func (r *QuestionRepository) Owner(ctx context.Context, id int64) (examID int64, authorID int, err error) {
	err = r.pool.QueryRow(ctx,
		`SELECT e.id, e.author_id
		 FROM questions q
		 JOIN exam_parts p ON p.id = q.part_id
		 JOIN exams e ON e.id = p.exam_id
		 WHERE q.id = $1`, id,
	).Scan(&examID, &authorID)
	return examID, authorID, notFound(err)
}

// Create inserts q into its part at q.QuestionOrder, shifting later
// questions. A zero or out-of-range order appends.
func (r *QuestionRepository) Create(ctx context.Context, q *model.Question) error {
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		examID, err := lockPart(ctx, tx, q.PartID)
		if err != nil {
			return err
		}
		n, err := questionSiblings.count(ctx, tx, q.PartID)
		if err != nil {
			return err
		}
		q.QuestionOrder = clampPosition(q.QuestionOrder, n+1)
		if err := questionSiblings.openGap(ctx, tx, q.PartID, q.QuestionOrder); err != nil {
			return err
		}
		err = tx.QueryRow(ctx,
			`INSERT INTO questions (part_id, question_text, question_type, options_text, correct_answer,
			                        explanation, points, question_order, image_url, audio_url)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
			 RETURNING id`,
			q.PartID, q.QuestionText, q.QuestionType, q.OptionsText, q.CorrectAnswer,
			q.Explanation, q.Points, q.QuestionOrder, q.ImageURL, q.AudioURL,
		).Scan(&q.ID)
		if err != nil {
			return err
		}
		return touch(ctx, tx, examID)
	})
}

// Update overwrites a question, moving it to q.QuestionOrder when that
// differs from the stored order. It returns the row as it was before.
func (r *QuestionRepository) Update(ctx context.Context, q *model.Question) (*model.Question, error) {
	prev := &model.Question{}
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		partID, examID, err := lockQuestionParents(ctx, tx, q.ID)
		if err != nil {
			return err
		}
		if err := scanQuestion(tx.QueryRow(ctx,
			`SELECT `+questionColumns+` FROM questions WHERE id = $1 FOR UPDATE`, q.ID), prev); err != nil {
			return notFound(err)
		}
		q.PartID = partID

		target := prev.QuestionOrder
		if q.QuestionOrder > 0 {
			n, err := questionSiblings.count(ctx, tx, q.PartID)
			if err != nil {
				return err
			}
			target = clampPosition(q.QuestionOrder, n)
		}
		if err := questionSiblings.move(ctx, tx, q.PartID, prev.QuestionOrder, target); err != nil {
			return err
		}
		q.QuestionOrder = target

		_, err = tx.Exec(ctx,
			`UPDATE questions
			 SET question_text = $1, question_type = $2, options_text = $3, correct_answer = $4,
			     explanation = $5, points = $6, question_order = $7, image_url = $8, audio_url = $9,
			     updated_at = NOW()
			 WHERE id = $10`,
			q.QuestionText, q.QuestionType, q.OptionsText, q.CorrectAnswer,
			q.Explanation, q.Points, q.QuestionOrder, q.ImageURL, q.AudioURL, q.ID)
		if err != nil {
			return err
		}
		return touch(ctx, tx, examID)
	})
	if err != nil {
		return nil, err
	}
	return prev, nil
}

// SetMedia stores url in the image or audio slot of a question and returns
// the updated question together with the URL it replaced.
func (r *QuestionRepository) SetMedia(ctx context.Context, id int64, kind model.MediaKind, url string) (*model.Question, *string, error) {
	column := "image_url"
	if kind == model.MediaAudio {
		column = "audio_url"
	}

	q := &model.Question{}
	var replaced *string
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		_, examID, err := lockQuestionParents(ctx, tx, id)
		if err != nil {
			return err
		}
		if err := tx.QueryRow(ctx,
			`SELECT `+column+` FROM questions WHERE id = $1 FOR UPDATE`, id,
		).Scan(&replaced); err != nil {
			return notFound(err)
		}
		if err := scanQuestion(tx.QueryRow(ctx,
			`UPDATE questions SET `+column+` = $1, updated_at = NOW() WHERE id = $2 RETURNING `+questionColumns,
			url, id), q); err != nil {
			return err
		}
		return touch(ctx, tx, examID)
	})
	if err != nil {
		return nil, nil, err
	}
	return q, replaced, nil
}

// Delete removes a question and renumbers the questions after it. It
// returns the owning exam and the media URLs the question held.
func (r *QuestionRepository) Delete(ctx context.Context, id int64) (examID int64, media []string, err error) {
	err = pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		var (
			partID       int64
			order        int
			image, audio *string
			err          error
		)
		if partID, examID, err = lockQuestionParents(ctx, tx, id); err != nil {
			return err
		}
		if err := tx.QueryRow(ctx,
			`SELECT question_order, image_url, audio_url FROM questions WHERE id = $1 FOR UPDATE`, id,
		).Scan(&order, &image, &audio); err != nil {
			return notFound(err)
		}
		if _, err := tx.Exec(ctx, `DELETE FROM questions WHERE id = $1`, id); err != nil {
			return err
		}
		if err := questionSiblings.closeGap(ctx, tx, partID, order); err != nil {
			return err
		}
		for _, u := range []*string{image, audio} {
			if u != nil && *u != "" {
				media = append(media, *u)
			}
		}
		return touch(ctx, tx, examID)
	})
	return examID, media, err
}

// MediaInUse reports whether any question still references url.
func (r *QuestionRepository) MediaInUse(ctx context.Context, url string) (bool, error) {
	var inUse bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM questions WHERE image_url = $1 OR audio_url = $1)`, url,
	).Scan(&inUse)
	return inUse, err
}
