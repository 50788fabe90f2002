package models

import (
	"context"
	"fmt"
	"strings"

	"go.hackfix.me/mailstore/db/types"
)

// Answer is a reusable reply template.
type Answer struct {
	ID   uint64
	Name string
	Text string
}

func (a *Answer) validate() error {
	if strings.TrimSpace(a.Name) == "" {
		return types.InvalidInputError{Msg: "answer name is required"}
	}
	return nil
}

// Save stores the answer data in the database. If update is true, the answer
// with the same ID is updated, otherwise a new answer is created.
func (a *Answer) Save(ctx context.Context, d types.Querier, update bool) error {
	if err := a.validate(); err != nil {
		return err
	}

	if update {
		if a.ID == 0 {
			return types.InvalidInputError{Msg: "must provide an answer ID to update"}
		}

		filterStr := fmt.Sprintf("ID %d", a.ID)
		res, err := d.ExecContext(ctx,
			`UPDATE answer SET name = ?, text = ? WHERE id = ?`, a.Name, a.Text, a.ID)
		if err != nil {
			return types.Err("answer", filterStr, err)
		}

		return checkAffected(res, "answer", filterStr)
	}

	res, err := d.ExecContext(ctx,
		`INSERT INTO answer (id, name, text) VALUES (NULL, ?, ?)`, a.Name, a.Text)
	if err != nil {
		return types.Err("answer", fmt.Sprintf("name '%s'", a.Name), err)
	}

	a.ID, err = lastInsertID(res)

	return err
}

// Load the answer data from the database. The answer ID must be set for the
// lookup.
func (a *Answer) Load(ctx context.Context, d types.Querier) error {
	if a.ID == 0 {
		return types.InvalidInputError{Msg: "answer ID must be set"}
	}

	answers, err := Answers(ctx, d, types.NewFilter("a.id = ?", []any{a.ID}))
	if err != nil {
		return err
	}

	if len(answers) == 0 {
		return types.NoResultError{ModelName: "answer", ID: fmt.Sprintf("ID %d", a.ID)}
	}
	*a = *answers[0]

	return nil
}

// Delete removes the answer from the database. It returns an error if the
// answer doesn't exist.
func (a *Answer) Delete(ctx context.Context, d types.Querier) error {
	if a.ID == 0 {
		return types.InvalidInputError{Msg: "answer ID must be set"}
	}

	filterStr := fmt.Sprintf("ID %d", a.ID)
	res, err := d.ExecContext(ctx, `DELETE FROM answer WHERE id = ?`, a.ID)
	if err != nil {
		return types.Err("answer", filterStr, err)
	}

	return checkAffected(res, "answer", filterStr)
}

// Answers returns answers from the database, ordered by name. An optional
// filter can be passed to limit the results.
func Answers(ctx context.Context, d types.Querier, filter *types.Filter) (answers []*Answer, rerr error) {
	query := `SELECT a.id, a.name, a.text FROM answer a %s ORDER BY a.name COLLATE NOCASE ASC, a.id ASC`

	where := "1=1"
	args := []any{}
	if filter != nil {
		where = filter.Where
		args = filter.Args
	}
	query = fmt.Sprintf(query, fmt.Sprintf("WHERE %s", where))
	if filter != nil && filter.Limit > 0 {
		query = fmt.Sprintf("%s LIMIT %d", query, filter.Limit)
	}

	rows, err := d.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, types.LoadError{ModelName: "answers", Err: err}
	}
	defer func() {
		if err = rows.Close(); err != nil {
			rerr = fmt.Errorf("failed closing answer rows: %w", err)
		}
	}()

	answers = make([]*Answer, 0)
	for rows.Next() {
		var a Answer
		if err = rows.Scan(&a.ID, &a.Name, &a.Text); err != nil {
			return nil, types.ScanError{ModelName: "answer", Err: err}
		}
		answers = append(answers, &a)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("failed iterating over answer rows: %w", err)
	}

	return answers, nil
}
