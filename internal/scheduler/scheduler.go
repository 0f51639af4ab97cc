// Package scheduler запускает фоновые задачи сверки по расписанию cron.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/mmeshcher/greenledger/internal/metrics"
)

// DefaultBatch — сколько записей обрабатывает одна сверка.
const DefaultBatch = 100

// Job выполняется планировщиком по расписанию.
type Job func(ctx context.Context) error

// Scheduler выполняет задачи по расписанию. Пропускает запуск, если предыдущий ещё не завершён.
type Scheduler struct {
	cron   *cron.Cron
	logger *zap.Logger
	ctx    context.Context
	cancel context.CancelFunc
}

// New создаёт планировщик.
func New(logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}

	cl := cronLogger{logger.Sugar()}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron: cron.New(
			cron.WithLocation(time.UTC),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Add регистрирует задачу name с расписанием spec ("@every 5m", "0 * * * *").
func (s *Scheduler) Add(name, spec string, job Job) error {
	_, err := s.cron.AddFunc(spec, func() { s.runJob(name, job) })
	if err != nil {
		return fmt.Errorf("schedule %s: %w", name, err)
	}
	s.logger.Info("job scheduled", zap.String("job", name), zap.String("spec", spec))
	return nil
}

func (s *Scheduler) runJob(name string, job Job) {
	start := time.Now()
	err := job(s.ctx)
	metrics.RecordJob(name, time.Since(start), err == nil)

	if err != nil {
		s.logger.Error("job failed", zap.String("job", name), zap.Error(err))
		return
	}
	s.logger.Debug("job done", zap.String("job", name), zap.Duration("duration", time.Since(start)))
}

// Run запускает планировщик и блокируется до отмены ctx, затем дожидается выполняющихся задач.
func (s *Scheduler) Run(ctx context.Context) error {
	s.cron.Start()
	<-ctx.Done()

	s.cancel()
	<-s.cron.Stop().Done()
	s.logger.Info("scheduler stopped")
	return nil
}

// Reconciler — сверка, возвращающая число обработанных записей.
type Reconciler func(ctx context.Context, limit int) (int, error)

// Batch превращает сверку в задачу с фиксированным размером пачки и логированием результата.
func Batch(name string, limit int, r Reconciler, logger *zap.Logger) Job {
	return func(ctx context.Context) error {
		n, err := r(ctx, limit)
		if n > 0 {
			logger.Info("reconciled", zap.String("job", name), zap.Int("count", n))
		}
		return err
	}
}

type cronLogger struct {
	s *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.s.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.s.Errorw(msg, append(keysAndValues, "error", err)...)
}
