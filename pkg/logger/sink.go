package logger

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	sinkQueueSize = 4096
	sinkBatchSize = 50
	sinkFlushTick = 2 * time.Second
)

// Entry is one stored log line.
type Entry struct {
	Time      time.Time `bson:"time"`
	Level     string    `bson:"level"`
	Msg       string    `bson:"msg"`
	RequestID string    `bson:"request_id,omitempty"`
	Attrs     bson.M    `bson:"attrs,omitempty"`
}

// BatchWriter persists a batch of entries.
type BatchWriter interface {
	WriteBatch(ctx context.Context, entries []Entry) error
}

// Sink is an slog.Handler that queues records and writes them in batches
// from a single goroutine. A full queue drops records instead of blocking.
type Sink struct {
	w      BatchWriter
	level  slog.Level
	queue  chan Entry
	done   chan struct{}
	closed sync.Once
	wg     *sync.WaitGroup
	attrs  []slog.Attr
	prefix string
}

// NewSink starts the drain loop for w.
func NewSink(w BatchWriter, level slog.Level) *Sink {
	s := &Sink{
		w:     w,
		level: level,
		queue: make(chan Entry, sinkQueueSize),
		done:  make(chan struct{}),
		wg:    &sync.WaitGroup{},
	}
	s.wg.Add(1)
	go s.drain()
	return s
}

func (s *Sink) Enabled(_ context.Context, l slog.Level) bool { return l >= s.level }

func (s *Sink) Handle(_ context.Context, r slog.Record) error {
	e := Entry{Time: r.Time, Level: r.Level.String(), Msg: r.Message, Attrs: bson.M{}}
	put := func(a slog.Attr) {
		if a.Key == "request_id" {
			e.RequestID = a.Value.String()
			return
		}
		e.Attrs[s.prefix+a.Key] = a.Value.Resolve().Any()
	}
	for _, a := range s.attrs {
		put(a)
	}
	r.Attrs(func(a slog.Attr) bool {
		put(a)
		return true
	})

	select {
	case s.queue <- e:
	default:
	}
	return nil
}

func (s *Sink) WithAttrs(attrs []slog.Attr) slog.Handler {
	c := *s
	c.attrs = append(append([]slog.Attr{}, s.attrs...), attrs...)
	return &c
}

func (s *Sink) WithGroup(name string) slog.Handler {
	c := *s
	c.prefix = s.prefix + name + "."
	return &c
}

func (s *Sink) drain() {
	defer s.wg.Done()
	ticker := time.NewTicker(sinkFlushTick)
	defer ticker.Stop()

	batch := make([]Entry, 0, sinkBatchSize)
	flush := func() {
		if len(batch) == 0 {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = s.w.WriteBatch(ctx, batch)
		cancel()
		batch = make([]Entry, 0, sinkBatchSize)
	}

	for {
		select {
		case e := <-s.queue:
			batch = append(batch, e)
			if len(batch) >= sinkBatchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		case <-s.done:
			for len(s.queue) > 0 {
				batch = append(batch, <-s.queue)
			}
			flush()
			return
		}
	}
}

// Close flushes queued entries and stops the drain loop. Safe to call twice.
func (s *Sink) Close() {
	s.closed.Do(func() { close(s.done) })
	s.wg.Wait()
}

// ─── MongoDB writer ─────────────────────────────────────────────────────────

// MongoWriter stores entries in a MongoDB collection.
type MongoWriter struct {
	client *mongo.Client
	col    *mongo.Collection
}

// DialMongo connects to uri and returns a writer for db/collection.
func DialMongo(uri, db, collection string) (*MongoWriter, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri).
		SetConnectTimeout(5*time.Second).
		SetServerSelectionTimeout(5*time.Second).
		SetMaxPoolSize(10))
	if err != nil {
		return nil, fmt.Errorf("logger: mongo connect: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("logger: mongo ping: %w", err)
	}

	col := client.Database(db).Collection(collection)
	_, _ = col.Indexes().CreateOne(ctx, mongo.IndexModel{Keys: bson.D{{Key: "time", Value: -1}}})

	return &MongoWriter{client: client, col: col}, nil
}

func (m *MongoWriter) WriteBatch(ctx context.Context, entries []Entry) error {
	docs := make([]interface{}, len(entries))
	for i := range entries {
		docs[i] = entries[i]
	}
	_, err := m.col.InsertMany(ctx, docs)
	return err
}

// Disconnect closes the client.
func (m *MongoWriter) Disconnect() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = m.client.Disconnect(ctx)
}

// ─── fan-out ────────────────────────────────────────────────────────────────

// MultiHandler sends each record to every handler that accepts its level.
type MultiHandler struct {
	handlers []slog.Handler
}

func NewMultiHandler(hs ...slog.Handler) *MultiHandler {
	return &MultiHandler{handlers: hs}
}

func (m *MultiHandler) Enabled(ctx context.Context, l slog.Level) bool {
	for _, h := range m.handlers {
		if h.Enabled(ctx, l) {
			return true
		}
	}
	return false
}

func (m *MultiHandler) Handle(ctx context.Context, r slog.Record) error {
	for _, h := range m.handlers {
		if h.Enabled(ctx, r.Level) {
			_ = h.Handle(ctx, r.Clone())
		}
	}
	return nil
}

func (m *MultiHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	hs := make([]slog.Handler, len(m.handlers))
	for i, h := range m.handlers {
		hs[i] = h.WithAttrs(attrs)
	}
	return &MultiHandler{handlers: hs}
}

func (m *MultiHandler) WithGroup(name string) slog.Handler {
	hs := make([]slog.Handler, len(m.handlers))
	for i, h := range m.handlers {
		hs[i] = h.WithGroup(name)
	}
	return &MultiHandler{handlers: hs}
}
