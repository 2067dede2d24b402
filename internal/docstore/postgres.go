package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/PaulBabatuyi/inboxChat-gRPC/internal/chaterr"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresTimeLayout is how time values are written into JSONB. It is fixed
// width in UTC so that ordering by the JSON value is chronological.
const PostgresTimeLayout = "2006-01-02T15:04:05.000000000Z"

const notifyChannel = "documents"

var errFeedClosed = errors.New("document feed closed")

// Postgres keeps every document as a JSONB row in the documents table (see
// db.PostgresSchema). A trigger notifies on each write; one dedicated
// connection per store LISTENs and fans the changes out to subscriptions.
type Postgres struct {
	pool *pgxpool.Pool

	mu     sync.Mutex
	feed   *pgFeed
	closed bool
}

// NewPostgres returns a Postgres store over pool.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

const upsertDocumentSQL = `
	INSERT INTO documents (collection, id, version, data, updated_at)
	VALUES ($1, $2, nextval('document_versions'), $3::jsonb, now())
	ON CONFLICT (collection, id)
	DO UPDATE SET version = EXCLUDED.version, data = EXCLUDED.data, updated_at = now()
`

// Set creates or replaces collection/id.
func (p *Postgres) Set(ctx context.Context, collection, id string, f Fields) error {
	raw, err := encodeJSONFields(f)
	if err != nil {
		return chaterr.NewWrite(collection+"/"+id+" set", err)
	}
	_, err = p.pool.Exec(ctx, upsertDocumentSQL, collection, id, raw)
	return chaterr.NewWrite(collection+"/"+id+" set", err)
}

// Add inserts f under a new UUID.
func (p *Postgres) Add(ctx context.Context, collection string, f Fields) (string, error) {
	id := uuid.NewString()
	if err := p.Set(ctx, collection, id, f); err != nil {
		return "", err
	}
	return id, nil
}

// Get fetches collection/id.
func (p *Postgres) Get(ctx context.Context, collection, id string) (Document, error) {
	op := collection + "/" + id + " get"
	var (
		version int64
		raw     []byte
	)
	err := p.pool.QueryRow(ctx,
		`SELECT version, data FROM documents WHERE collection = $1 AND id = $2`,
		collection, id,
	).Scan(&version, &raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return Document{}, chaterr.NewRead(op, chaterr.ErrNotFound)
	}
	if err != nil {
		return Document{}, chaterr.NewRead(op, err)
	}
	f, err := decodeJSONFields(raw)
	if err != nil {
		return Document{}, chaterr.NewDataShape(op, err)
	}
	return Document{Collection: collection, ID: id, Version: version, Fields: f}, nil
}

// Delete removes collection/id.
func (p *Postgres) Delete(ctx context.Context, collection, id string) error {
	_, err := p.pool.Exec(ctx, `DELETE FROM documents WHERE collection = $1 AND id = $2`, collection, id)
	return chaterr.NewWrite(collection+"/"+id+" delete", err)
}

// Query filters on the text form of top-level JSON fields.
func (p *Postgres) Query(ctx context.Context, collection string, filters ...Filter) ([]Document, error) {
	var (
		sb   strings.Builder
		args = []any{collection}
	)
	sb.WriteString(`SELECT id, version, data FROM documents WHERE collection = $1`)
	for _, f := range filters {
		args = append(args, f.Field, jsonText(f.Value))
		fieldArg, valueArg := len(args)-1, len(args)
		switch f.Op {
		case NotEqual:
			fmt.Fprintf(&sb, ` AND (data->>($%d::text)) IS DISTINCT FROM $%d::text`, fieldArg, valueArg)
		default:
			fmt.Fprintf(&sb, ` AND (data->>($%d::text)) = $%d::text`, fieldArg, valueArg)
		}
	}

	rows, err := p.pool.Query(ctx, sb.String(), args...)
	if err != nil {
		return nil, chaterr.NewRead(collection+" query", err)
	}
	docs, err := scanDocuments(rows, collection)
	if err != nil {
		return nil, chaterr.NewRead(collection+" query", err)
	}
	return docs, nil
}

// Listen registers with the store's shared LISTEN feed before taking the
// snapshot; the version filter drops rows seen in both.
func (p *Postgres) Listen(ctx context.Context, collection, orderBy string) (*Subscription, error) {
	op := collection + " listen"
	f, err := p.startFeed(ctx)
	if err != nil {
		return nil, chaterr.NewRead(op, err)
	}

	l := newListener()
	id := f.hub.Register(collection, l)
	select {
	case <-f.done:
		f.hub.Unregister(collection, id)
		return nil, chaterr.NewRead(op, f.err)
	default:
	}

	rows, err := p.pool.Query(ctx,
		`SELECT id, version, data FROM documents WHERE collection = $1 ORDER BY data->($2::text), version`,
		collection, orderBy,
	)
	if err != nil {
		f.hub.Unregister(collection, id)
		return nil, chaterr.NewRead(op, err)
	}
	snapshot, err := scanDocuments(rows, collection)
	if err != nil {
		f.hub.Unregister(collection, id)
		return nil, chaterr.NewRead(op, err)
	}

	sub, ctx := newSubscription(ctx)
	go func() {
		err := p.pump(ctx, sub, f, l, snapshot)
		f.hub.Unregister(collection, id)
		if ctx.Err() != nil {
			err = nil
		}
		sub.finish(chaterr.NewRead(op, err))
	}()
	return sub, nil
}

func (p *Postgres) pump(ctx context.Context, sub *Subscription, f *pgFeed, l *listener, snapshot []Document) error {
	filter := newVersionFilter()
	deliver := func(d Document) bool {
		kind, ok := filter.accept(d)
		if !ok {
			return true
		}
		return sub.send(ctx, Change{Kind: kind, Doc: d})
	}
	drain := func() bool {
		for _, c := range l.drain() {
			if !deliver(c.Doc.clone()) {
				return false
			}
		}
		return true
	}

	for _, d := range snapshot {
		if !deliver(d) {
			return nil
		}
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-l.notify:
			if !drain() {
				return nil
			}
		case <-f.done:
			drain()
			return f.err
		}
	}
}

// pgFeed is the one LISTEN connection a Postgres store shares between all of
// its subscriptions. It lives outside the pool so open listeners never starve
// writers of connections.
type pgFeed struct {
	hub    *listenerHub
	ready  chan struct{}
	done   chan struct{}
	cancel context.CancelFunc
	// err is set before done is closed.
	err error
}

// startFeed returns the running feed, dialing a new one if there is none.
func (p *Postgres) startFeed(ctx context.Context) (*pgFeed, error) {
	p.mu.Lock()
	f := p.feed
	if f == nil {
		if p.closed {
			p.mu.Unlock()
			return nil, errFeedClosed
		}
		feedCtx, cancel := context.WithCancel(context.Background())
		f = &pgFeed{
			hub:    newListenerHub(),
			ready:  make(chan struct{}),
			done:   make(chan struct{}),
			cancel: cancel,
		}
		p.feed = f
		go p.runFeed(feedCtx, f)
	}
	p.mu.Unlock()

	select {
	case <-f.ready:
		return f, nil
	case <-f.done:
		return nil, f.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (p *Postgres) runFeed(ctx context.Context, f *pgFeed) {
	err := p.watch(ctx, f)
	if ctx.Err() != nil {
		err = errFeedClosed
	}

	p.mu.Lock()
	if p.feed == f {
		p.feed = nil
	}
	p.mu.Unlock()

	f.err = err
	f.cancel()
	close(f.done)
}

// watch LISTENs on its own connection and publishes the current row for
// every notified document some subscription is watching.
func (p *Postgres) watch(ctx context.Context, f *pgFeed) error {
	conn, err := pgx.ConnectConfig(ctx, p.pool.Config().ConnConfig.Copy())
	if err != nil {
		return err
	}
	defer conn.Close(context.Background())

	if _, err := conn.Exec(ctx, "LISTEN "+notifyChannel); err != nil {
		return err
	}
	close(f.ready)

	for {
		n, err := conn.WaitForNotification(ctx)
		if err != nil {
			return err
		}
		coll, id, ok := strings.Cut(n.Payload, "\x1f")
		if !ok || f.hub.Count(coll) == 0 {
			continue
		}
		d, err := p.Get(ctx, coll, id)
		if chaterr.IsNotFound(err) {
			continue
		}
		if err != nil {
			return err
		}
		f.hub.Publish(coll, Change{Doc: d})
	}
}

// Close stops the LISTEN connection. Open subscriptions end with an error
// and later Listen calls fail. The pool is left to its owner.
func (p *Postgres) Close() {
	p.mu.Lock()
	p.closed = true
	f := p.feed
	p.mu.Unlock()
	if f != nil {
		f.cancel()
		<-f.done
	}
}

func scanDocuments(rows pgx.Rows, collection string) ([]Document, error) {
	defer rows.Close()

	var docs []Document
	for rows.Next() {
		var (
			d   = Document{Collection: collection}
			raw []byte
		)
		if err := rows.Scan(&d.ID, &d.Version, &raw); err != nil {
			return nil, err
		}
		f, err := decodeJSONFields(raw)
		if err != nil {
			return nil, chaterr.NewDataShape(d.Path(), err)
		}
		d.Fields = f
		docs = append(docs, d)
	}
	return docs, rows.Err()
}

func encodeJSONFields(f Fields) (string, error) {
	out := make(map[string]any, len(f))
	for k, v := range f {
		if t, ok := v.(time.Time); ok {
			v = t.UTC().Format(PostgresTimeLayout)
		}
		out[k] = v
	}
	b, err := json.Marshal(out)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func decodeJSONFields(raw []byte) (Fields, error) {
	var f Fields
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil, err
	}
	return f, nil
}

// jsonText renders v the way ->> renders the stored JSON value.
func jsonText(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case time.Time:
		return t.UTC().Format(PostgresTimeLayout)
	}
	return fmt.Sprint(v)
}
