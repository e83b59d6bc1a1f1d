package repository

import (
	"context"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/exstem-authoring/internal/model"
)

const examColumns = `id, title, description, level, duration_minutes, instructions, requirements,
	author_id, created_at, updated_at`

// ExamRepository handles exam data access.
type ExamRepository struct {
	pool *pgxpool.Pool
}

// NewExamRepository creates a new ExamRepository.
func NewExamRepository(pool *pgxpool.Pool) *ExamRepository {
	return &ExamRepository{pool: pool}
}

func scanExam(row pgx.Row, e *model.Exam) error {
	return row.Scan(&e.ID, &e.Title, &e.Description, &e.Level, &e.DurationMinutes,
		&e.Instructions, &e.Requirements, &e.AuthorID, &e.CreatedAt, &e.UpdatedAt)
}

// GetByID retrieves an exam without its parts.
func (r *ExamRepository) GetByID(ctx context.Context, id int64) (*model.Exam, error) {
	e := &model.Exam{}
	if err := scanExam(r.pool.QueryRow(ctx, `SELECT `+examColumns+` FROM exams WHERE id = $1`, id), e); err != nil {
		return nil, notFound(err)
	}
	return e, nil
}

// GetTree retrieves an exam with its parts ordered by part_number and each
// part's questions ordered by question_order.
func (r *ExamRepository) GetTree(ctx context.Context, id int64) (*model.Exam, error) {
	e, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	rows, err := r.pool.Query(ctx,
		`SELECT `+partColumns+` FROM exam_parts WHERE exam_id = $1 ORDER BY part_number`, id)
	if err != nil {
		return nil, err
	}
	parts, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.Part, error) {
		var p model.Part
		err := scanPart(row, &p)
		return p, err
	})
	if err != nil {
		return nil, err
	}

	rows, err = r.pool.Query(ctx,
		`SELECT `+questionColumnsQualified+`
		 FROM questions q JOIN exam_parts p ON p.id = q.part_id
		 WHERE p.exam_id = $1
		 ORDER BY p.part_number, q.question_order`, id)
	if err != nil {
		return nil, err
	}
	questions, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.Question, error) {
		var q model.Question
		err := scanQuestion(row, &q)
		return q, err
	})
	if err != nil {
		return nil, err
	}

	index := make(map[int64]int, len(parts))
	for i := range parts {
		parts[i].Questions = []model.Question{}
		index[parts[i].ID] = i
	}
	for _, q := range questions {
		if i, ok := index[q.PartID]; ok {
			parts[i].Questions = append(parts[i].Questions, q)
		}
	}
	e.Parts = parts
	if e.Parts == nil {
		e.Parts = []model.Part{}
	}
	return e, nil
}

// ListByAuthorPaginated retrieves exams filtered by author with pagination.
// Pass authorID=0 to list all exams.
func (r *ExamRepository) ListByAuthorPaginated(ctx context.Context, authorID, limit, offset int) ([]model.Exam, int, error) {
	where := ""
	var args []any
	if authorID > 0 {
		where = ` WHERE author_id = $1`
		args = append(args, authorID)
	}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM exams`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	n := len(args)
	query := `SELECT ` + examColumns + ` FROM exams` + where +
		` ORDER BY created_at DESC LIMIT $` + strconv.Itoa(n+1) + ` OFFSET $` + strconv.Itoa(n+2)
	args = append(args, limit, offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var exams []model.Exam
	for rows.Next() {
		var e model.Exam
		if err := scanExam(rows, &e); err != nil {
			return nil, 0, err
		}
		exams = append(exams, e)
	}
	return exams, total, rows.Err()
}

// Create inserts a new exam.
func (r *ExamRepository) Create(ctx context.Context, e *model.Exam) error {
	return r.pool.QueryRow(ctx,
		`INSERT INTO exams (title, description, level, duration_minutes, instructions, requirements, author_id)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING id, created_at, updated_at`,
		e.Title, e.Description, e.Level, e.DurationMinutes, e.Instructions, e.Requirements, e.AuthorID,
	).Scan(&e.ID, &e.CreatedAt, &e.UpdatedAt)
}

// Update overwrites the editable fields of an exam.
func (r *ExamRepository) Update(ctx context.Context, e *model.Exam) error {
	err := r.pool.QueryRow(ctx,
		`UPDATE exams
		 SET title = $1, description = $2, level = $3, duration_minutes = $4,
		     instructions = $5, requirements = $6, updated_at = NOW()
		 WHERE id = $7
		 RETURNING author_id, created_at, updated_at`,
		e.Title, e.Description, e.Level, e.DurationMinutes, e.Instructions, e.Requirements, e.ID,
	).Scan(&e.AuthorID, &e.CreatedAt, &e.UpdatedAt)
	return notFound(err)
}

// Delete removes an exam; parts and questions cascade. It returns the media
// URLs that were attached to the deleted questions.
func (r *ExamRepository) Delete(ctx context.Context, id int64) ([]string, error) {
	var media []string
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		if err := lockExam(ctx, tx, id); err != nil {
			return err
		}
		var err error
		media, err = collectMedia(ctx, tx,
			`SELECT q.image_url, q.audio_url FROM questions q
			 JOIN exam_parts p ON p.id = q.part_id WHERE p.exam_id = $1`, id)
		if err != nil {
			return err
		}
		tag, err := tx.Exec(ctx, `DELETE FROM exams WHERE id = $1`, id)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return ErrNotFound
		}
		return nil
	})
	return media, err
}

// touch bumps updated_at of an exam after a change below it.
func touch(ctx context.Context, db DBTX, examID int64) error {
	_, err := db.Exec(ctx, `UPDATE exams SET updated_at = NOW() WHERE id = $1`, examID)
	return err
}

// collectMedia gathers the non-null (image_url, audio_url) pairs a query returns.
func collectMedia(ctx context.Context, db DBTX, query string, args ...any) ([]string, error) {
	rows, err := db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var urls []string
	for rows.Next() {
		var image, audio *string
		if err := rows.Scan(&image, &audio); err != nil {
			return nil, err
		}
		for _, u := range []*string{image, audio} {
			if u != nil && *u != "" {
				urls = append(urls, *u)
			}
		}
	}
	return urls, rows.Err()
}
