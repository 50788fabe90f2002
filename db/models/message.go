package models

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.hackfix.me/mailstore/db/types"
)

// Message is a stored email message. Only the fields needed to thread and
// address messages are mapped.
type Message struct {
	ID          uint64
	Folder      uint64
	Replying    sql.Null[uint64]
	Forwarding  sql.Null[uint64]
	UID         sql.Null[int64]
	MsgID       string
	References  types.StringList
	Subject     string
	From        types.AddressList
	To          types.AddressList
	Received    time.Time
	LastAttempt sql.Null[time.Time]
}

// Save inserts the message into the database.
func (m *Message) Save(ctx context.Context, d types.Querier) error {
	var lastAttempt sql.Null[int64]
	if m.LastAttempt.Valid {
		lastAttempt = sql.Null[int64]{V: m.LastAttempt.V.UnixMilli(), Valid: true}
	}

	res, err := d.ExecContext(ctx, `INSERT INTO message
		(id, folder, replying, forwarding, uid, msgid, refs, subject, from_addrs, to_addrs,
		 received, last_attempt)
		VALUES (NULL, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.Folder, nullID(m.Replying), nullID(m.Forwarding), m.UID, m.MsgID, m.References, m.Subject,
		m.From, m.To, m.Received.UnixMilli(), lastAttempt)
	if err != nil {
		return types.Err("message", fmt.Sprintf("msgid '%s'", m.MsgID), err)
	}

	m.ID, err = lastInsertID(res)

	return err
}

// nullID converts a reference for use as a query argument, since uint64 isn't
// a valid driver value when wrapped in sql.Null.
func nullID(id sql.Null[uint64]) sql.Null[int64] {
	return sql.Null[int64]{V: int64(id.V), Valid: id.Valid} //nolint:gosec // IDs are SQLite rowids.
}

// Messages returns messages from the database, ordered by received time. An
// optional filter can be passed to limit the results.
func Messages(ctx context.Context, d types.Querier, filter *types.Filter) (msgs []*Message, rerr error) {
	query := `SELECT m.id, m.folder, m.replying, m.forwarding, m.uid, m.msgid, m.refs,
			m.subject, m.from_addrs, m.to_addrs, m.received, m.last_attempt
		FROM message m %s
		ORDER BY m.received ASC, m.id ASC`

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
		return nil, types.LoadError{ModelName: "messages", Err: err}
	}
	defer func() {
		if err = rows.Close(); err != nil {
			rerr = fmt.Errorf("failed closing message rows: %w", err)
		}
	}()

	msgs = make([]*Message, 0)
	for rows.Next() {
		var (
			m           Message
			msgID       sql.Null[string]
			subject     sql.Null[string]
			received    int64
			lastAttempt sql.Null[int64]
		)
		err = rows.Scan(&m.ID, &m.Folder, &m.Replying, &m.Forwarding, &m.UID, &msgID,
			&m.References, &subject, &m.From, &m.To, &received, &lastAttempt)
		if err != nil {
			return nil, types.ScanError{ModelName: "message", Err: err}
		}
		m.MsgID = msgID.V
		m.Subject = subject.V
		m.Received = time.UnixMilli(received).UTC()
		if lastAttempt.Valid {
			m.LastAttempt = sql.Null[time.Time]{V: time.UnixMilli(lastAttempt.V).UTC(), Valid: true}
		}
		msgs = append(msgs, &m)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("failed iterating over message rows: %w", err)
	}

	return msgs, nil
}

// FolderMessages returns the messages of a folder received at or after since.
// A zero since returns all messages of the folder.
func FolderMessages(ctx context.Context, d types.Querier, folder uint64, since time.Time) ([]*Message, error) {
	filter := types.NewFilter("m.folder = ?", []any{folder})
	if !since.IsZero() {
		filter = filter.And(types.NewFilter("m.received >= ?", []any{since.UnixMilli()}))
	}

	return Messages(ctx, d, filter)
}

// PendingMessages returns the messages of a folder that were never attempted,
// or whose last attempt was before retryBefore. It's used to pick messages from
// the outbox that are due for another send attempt.
func PendingMessages(ctx context.Context, d types.Querier, folder uint64, retryBefore time.Time) ([]*Message, error) {
	due := types.NewFilter("m.last_attempt IS NULL", nil).
		Or(types.NewFilter("m.last_attempt < ?", []any{retryBefore.UnixMilli()}))

	return Messages(ctx, d, types.NewFilter("m.folder = ?", []any{folder}).And(due))
}

// DeleteMessage removes a message. Messages replying to or forwarding it are
// kept, with their reference cleared.
func DeleteMessage(ctx context.Context, d types.Querier, id uint64) error {
	filterStr := fmt.Sprintf("ID %d", id)
	res, err := d.ExecContext(ctx, `DELETE FROM message WHERE id = ?`, id)
	if err != nil {
		return types.Err("message", filterStr, err)
	}

	return checkAffected(res, "message", filterStr)
}
