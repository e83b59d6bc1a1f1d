package repository

import "context"

// Writes lock rows top down: the exam, then the part, then the question.
// Lookups that only find the parent ids run unlocked; a row deleted in
// between shows up as ErrNotFound when it is locked.

// lockExam serializes numbering changes within one exam.
func lockExam(ctx context.Context, db DBTX, examID int64) error {
	var id int64
	err := db.QueryRow(ctx, `SELECT id FROM exams WHERE id = $1 FOR UPDATE`, examID).Scan(&id)
	return notFound(err)
}

// lockPart locks a part and its exam and returns the exam. It serializes
// ordering changes within the part.
func lockPart(ctx context.Context, db DBTX, partID int64) (int64, error) {
	var examID int64
	if err := db.QueryRow(ctx, `SELECT exam_id FROM exam_parts WHERE id = $1`, partID).Scan(&examID); err != nil {
		return 0, notFound(err)
	}
	if err := lockExam(ctx, db, examID); err != nil {
		return 0, err
	}
	var id int64
	err := db.QueryRow(ctx, `SELECT id FROM exam_parts WHERE id = $1 FOR UPDATE`, partID).Scan(&id)
	return examID, notFound(err)
}

// lockQuestionParents locks the part and exam above a question. The caller
// locks the question row itself afterwards.
func lockQuestionParents(ctx context.Context, db DBTX, questionID int64) (partID, examID int64, err error) {
	if err := db.QueryRow(ctx, `SELECT part_id FROM questions WHERE id = $1`, questionID).Scan(&partID); err != nil {
		return 0, 0, notFound(err)
	}
	examID, err = lockPart(ctx, db, partID)
	return partID, examID, err
}
