package repository

import (
	"context"
	"fmt"
)

// sibling describes a table whose rows are numbered 1..n under a parent.
type sibling struct {
	table  string
	parent string
	column string
}

var (
	partSiblings     = sibling{table: "exam_parts", parent: "exam_id", column: "part_number"}
	questionSiblings = sibling{table: "questions", parent: "part_id", column: "question_order"}
)

// clampPosition maps a requested 1-based position onto 1..last. Zero or
// anything past the end means last.
func clampPosition(requested, last int) int {
	if requested <= 0 || requested > last {
		return last
	}
	return requested
}

func (s sibling) count(ctx context.Context, db DBTX, parentID int64) (int, error) {
	var n int
	err := db.QueryRow(ctx,
		fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE %s = $1`, s.table, s.parent),
		parentID,
	).Scan(&n)
	return n, err
}

// openGap shifts rows at or after pos down by one.
func (s sibling) openGap(ctx context.Context, db DBTX, parentID int64, pos int) error {
	_, err := db.Exec(ctx,
		fmt.Sprintf(`UPDATE %[1]s SET %[2]s = %[2]s + 1 WHERE %[3]s = $1 AND %[2]s >= $2`, s.table, s.column, s.parent),
		parentID, pos)
	return err
}

// closeGap shifts rows after pos up by one.
func (s sibling) closeGap(ctx context.Context, db DBTX, parentID int64, pos int) error {
	_, err := db.Exec(ctx,
		fmt.Sprintf(`UPDATE %[1]s SET %[2]s = %[2]s - 1 WHERE %[3]s = $1 AND %[2]s > $2`, s.table, s.column, s.parent),
		parentID, pos)
	return err
}

// move relocates the row at from to to, shifting the rows in between.
func (s sibling) move(ctx context.Context, db DBTX, parentID int64, from, to int) error {
	var err error
	switch {
	case to < from:
		_, err = db.Exec(ctx,
			fmt.Sprintf(`UPDATE %[1]s SET %[2]s = %[2]s + 1 WHERE %[3]s = $1 AND %[2]s >= $2 AND %[2]s < $3`, s.table, s.column, s.parent),
			parentID, to, from)
	case to > from:
		_, err = db.Exec(ctx,
			fmt.Sprintf(`UPDATE %[1]s SET %[2]s = %[2]s - 1 WHERE %[3]s = $1 AND %[2]s > $2 AND %[2]s <= $3`, s.table, s.column, s.parent),
			parentID, from, to)
	}
	return err
}
