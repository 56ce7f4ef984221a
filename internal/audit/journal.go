package audit

/*
Journal - асинхронный журнал аудита.

- Hot Path не ждет БД: записи уходят в буферизированный канал.
- Воркер копит пачки и пишет их одним INSERT по таймеру или по размеру пачки.
- Переполнение буфера: запись пишется синхронно с таймаутом, при сбое - в zap.
  Запись аудита никогда не возвращает ошибку вызывающему.
- Stop() закрывает вход и дожидается финального flush (Drain Pattern).
*/

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Storage определяет, куда физически сохраняются записи
type Storage interface {
	WriteAuditBatch(ctx context.Context, entries []Entry) error
	WriteActionBatch(ctx context.Context, records []ActionRecord) error
}

// Logger - контракт AuditLogger для остальных компонентов
type Logger interface {
	Log(entry Entry)
	LogAction(record ActionRecord)
}

type Options struct {
	BufferSize    int
	BatchSize     int
	FlushInterval time.Duration
	WriteTimeout  time.Duration
}

func (o *Options) withDefaults() {
	if o.BufferSize <= 0 {
		o.BufferSize = 10000
	}
	if o.BatchSize <= 0 {
		o.BatchSize = 100
	}
	if o.FlushInterval <= 0 {
		o.FlushInterval = 500 * time.Millisecond
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = 5 * time.Second
	}
}

// item - либо Entry, либо ActionRecord
type item struct {
	entry  *Entry
	action *ActionRecord
}

type Journal struct {
	ch     chan item
	repo   Storage
	opts   Options
	logger *zap.Logger
	wg     sync.WaitGroup

	// mu защищает закрытие канала от гонки с Log
	mu     sync.RWMutex
	closed bool
}

func NewJournal(repo Storage, opts Options, logger *zap.Logger) *Journal {
	opts.withDefaults()
	return &Journal{
		ch:     make(chan item, opts.BufferSize),
		repo:   repo,
		opts:   opts,
		logger: logger.With(zap.String("mod", "audit")),
	}
}

func (j *Journal) Start() {
	j.wg.Add(1)
	go j.worker()
}

// Stop запирает вход и ждет, пока воркер всё допишет.
func (j *Journal) Stop() {
	j.mu.Lock()
	if j.closed {
		j.mu.Unlock()
		return
	}
	j.closed = true
	close(j.ch)
	j.mu.Unlock()

	j.logger.Info("stopping audit journal: flushing buffer...")
	j.wg.Wait()
	j.logger.Info("audit journal stopped gracefully")
}

// Pending - текущая заполненность буфера (для метрик backpressure)
func (j *Journal) Pending() int {
	return len(j.ch)
}

func (j *Journal) Log(entry Entry) {
	stamp(&entry)
	j.enqueue(item{entry: &entry})
}

func (j *Journal) LogAction(record ActionRecord) {
	stamp(&record.Entry)
	j.enqueue(item{action: &record})
}

func stamp(e *Entry) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	if e.Severity == "" {
		e.Severity = SeverityInfo
	}
}

func (j *Journal) enqueue(it item) {
	j.mu.RLock()
	defer j.mu.RUnlock()

	if !j.closed {
		select {
		case j.ch <- it:
			return
		default:
			j.logger.Warn("audit_buffer_overflow: writing synchronously")
		}
	}

	// Буфер полон или журнал остановлен: пишем напрямую, чтобы не потерять запись
	j.writeDirect(it)
}

func (j *Journal) writeDirect(it item) {
	ctx, cancel := context.WithTimeout(context.Background(), j.opts.WriteTimeout)
	defer cancel()

	var err error
	if it.entry != nil {
		err = j.repo.WriteAuditBatch(ctx, []Entry{*it.entry})
	} else {
		err = j.repo.WriteActionBatch(ctx, []ActionRecord{*it.action})
	}
	if err != nil {
		j.dump(err, it)
	}
}

// dump - последний рубеж: запись уходит в структурный лог
func (j *Journal) dump(err error, it item) {
	if it.entry != nil {
		e := it.entry
		j.logger.Error("audit write failed",
			zap.Error(err),
			zap.String("id", e.ID),
			zap.String("tenant_id", e.TenantID),
			zap.String("actor_id", e.ActorID),
			zap.String("action", e.Action),
			zap.String("severity", string(e.Severity)),
			zap.Any("after", e.After),
		)
		return
	}
	a := it.action
	j.logger.Error("action record write failed",
		zap.Error(err),
		zap.String("id", a.ID),
		zap.String("tenant_id", a.TenantID),
		zap.String("actor_id", a.ActorID),
		zap.String("tool", a.ToolName),
		zap.Bool("success", a.Success),
		zap.Int64("duration_ms", a.DurationMs),
		zap.String("error_message", a.ErrorMessage),
	)
}

func (j *Journal) worker() {
	defer j.wg.Done()

	entries := make([]Entry, 0, j.opts.BatchSize)
	actions := make([]ActionRecord, 0, j.opts.BatchSize)
	ticker := time.NewTicker(j.opts.FlushInterval)
	defer ticker.Stop()

	flush := func() {
		// Background: основной контекст запроса уже может быть закрыт
		if len(entries) > 0 {
			ctx, cancel := context.WithTimeout(context.Background(), j.opts.WriteTimeout)
			if err := j.repo.WriteAuditBatch(ctx, entries); err != nil {
				for i := range entries {
					j.dump(err, item{entry: &entries[i]})
				}
			}
			cancel()
			entries = entries[:0]
		}
		if len(actions) > 0 {
			ctx, cancel := context.WithTimeout(context.Background(), j.opts.WriteTimeout)
			if err := j.repo.WriteActionBatch(ctx, actions); err != nil {
				for i := range actions {
					j.dump(err, item{action: &actions[i]})
				}
			}
			cancel()
			actions = actions[:0]
		}
	}

	for {
		select {
		case it, ok := <-j.ch:
			if !ok {
				// Канал закрыт в Stop(): всё, что было в очереди, уже вычитано
				flush()
				j.logger.Info("audit worker finished")
				return
			}
			if it.entry != nil {
				entries = append(entries, *it.entry)
			} else {
				actions = append(actions, *it.action)
			}
			if len(entries)+len(actions) >= j.opts.BatchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		}
	}
}
