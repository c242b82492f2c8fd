// Package scheduler предоставляет периодический запуск именованных фоновых задач.
// Замена cron внутри процесса: задачи регистрируются с собственной периодичностью,
// запускаются/останавливаются независимо и никогда не выполняются параллельно
// сами с собой — tick, пришедший во время выполнения, пропускается.
//
// Источник тиков инжектируется (TickerFactory), поэтому тесты продвигают
// время детерминированно, без ожидания настоящих интервалов.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"example.com/shop-backend/pkg/logger"
)

// Ошибки планировщика.
var (
	// ErrJobNotFound возвращается при обращении к незарегистрированной задаче.
	ErrJobNotFound = errors.New("задача не зарегистрирована")

	// ErrJobRunning возвращается при попытке запустить задачу, которая уже выполняется.
	ErrJobRunning = errors.New("задача уже выполняется")
)

// Job — периодическая фоновая задача.
type Job struct {
	// Name — уникальное имя задачи (pending_sync, expiry_sweep, ...).
	Name string

	// Interval — период между запусками.
	Interval time.Duration

	// Run выполняет одну итерацию задачи.
	Run func(ctx context.Context) error
}

// TickerFactory создаёт источник тиков для задачи.
// Возвращает канал тиков и функцию остановки.
// Продакшн использует time.Ticker, тесты — управляемый канал.
type TickerFactory func(interval time.Duration) (<-chan time.Time, func())

// defaultTickerFactory — source тиков на базе time.Ticker.
func defaultTickerFactory(interval time.Duration) (<-chan time.Time, func()) {
	t := time.NewTicker(interval)
	return t.C, t.Stop
}

// JobStatus — снимок состояния задачи для административного API.
type JobStatus struct {
	Name      string        `json:"name"`
	Interval  time.Duration `json:"interval"`
	Scheduled bool          `json:"scheduled"`  // Цикл запущен
	Running   bool          `json:"running"`    // Итерация выполняется прямо сейчас
	Runs      int64         `json:"runs"`       // Завершённых итераций
	Skipped   int64         `json:"skipped"`    // Пропущено тиков из-за незавершённой итерации
	LastRunAt time.Time     `json:"last_run_at"`
	LastError string        `json:"last_error,omitempty"`
}

// jobState — внутреннее состояние зарегистрированной задачи.
type jobState struct {
	job       Job
	scheduled bool
	running   bool
	cancel    context.CancelFunc
	runs      int64
	skipped   int64
	lastRunAt time.Time
	lastError string
}

// Scheduler управляет набором периодических задач.
type Scheduler struct {
	mu        sync.Mutex
	jobs      map[string]*jobState
	order     []string // Порядок регистрации для стабильного Status()
	newTicker TickerFactory
	wg        sync.WaitGroup
}

// New создаёт планировщик с продакшн-источником тиков.
func New() *Scheduler {
	return NewWithTicker(defaultTickerFactory)
}

// NewWithTicker создаёт планировщик с пользовательским источником тиков.
// Используется в тестах для детерминированного продвижения времени.
func NewWithTicker(factory TickerFactory) *Scheduler {
	return &Scheduler{
		jobs:      make(map[string]*jobState),
		newTicker: factory,
	}
}

// Register регистрирует задачу. Повторная регистрация имени — ошибка.
func (s *Scheduler) Register(job Job) error {
	if job.Name == "" || job.Run == nil || job.Interval <= 0 {
		return fmt.Errorf("некорректная задача %q", job.Name)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.jobs[job.Name]; exists {
		return fmt.Errorf("задача %q уже зарегистрирована", job.Name)
	}

	s.jobs[job.Name] = &jobState{job: job}
	s.order = append(s.order, job.Name)
	return nil
}

// StartAll запускает циклы всех зарегистрированных задач.
func (s *Scheduler) StartAll(ctx context.Context) {
	s.mu.Lock()
	names := make([]string, len(s.order))
	copy(names, s.order)
	s.mu.Unlock()

	for _, name := range names {
		_ = s.Start(ctx, name)
	}
}

// Start запускает цикл задачи. Повторный запуск уже запущенной задачи — no-op.
func (s *Scheduler) Start(ctx context.Context, name string) error {
	s.mu.Lock()
	st, ok := s.jobs[name]
	if !ok {
		s.mu.Unlock()
		return ErrJobNotFound
	}
	if st.scheduled {
		s.mu.Unlock()
		return nil
	}

	jobCtx, cancel := context.WithCancel(ctx)
	st.scheduled = true
	st.cancel = cancel
	job := st.job
	s.mu.Unlock()

	ticks, stop := s.newTicker(job.Interval)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer stop()

		log := logger.FromContext(jobCtx)
		log.Info().
			Str("job", job.Name).
			Dur("interval", job.Interval).
			Msg("Запуск периодической задачи")

		for {
			select {
			case <-jobCtx.Done():
				log.Info().Str("job", job.Name).Msg("Остановка периодической задачи")
				return
			case <-ticks:
				// Итерация запускается отдельно от цикла чтения тиков:
				// tick, пришедший во время выполнения, сразу упирается
				// в защиту от наложения, а не ставится в очередь.
				s.wg.Add(1)
				go func() {
					defer s.wg.Done()
					_ = s.execute(jobCtx, job.Name)
				}()
			}
		}
	}()

	return nil
}

// Stop останавливает цикл задачи. Итерация в полёте не прерывается —
// частичный прогон безопасен благодаря идемпотентности сверки.
func (s *Scheduler) Stop(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.jobs[name]
	if !ok {
		return ErrJobNotFound
	}
	if !st.scheduled {
		return nil
	}

	st.cancel()
	st.scheduled = false
	st.cancel = nil
	return nil
}

// TriggerNow выполняет одну итерацию задачи немедленно (административный запуск).
// Возвращает ErrJobRunning, если итерация уже выполняется.
func (s *Scheduler) TriggerNow(ctx context.Context, name string) error {
	s.mu.Lock()
	st, ok := s.jobs[name]
	if !ok {
		s.mu.Unlock()
		return ErrJobNotFound
	}
	if st.running {
		s.mu.Unlock()
		return ErrJobRunning
	}
	s.mu.Unlock()

	return s.execute(ctx, name)
}

// execute выполняет одну итерацию задачи с защитой от наложения.
func (s *Scheduler) execute(ctx context.Context, name string) error {
	s.mu.Lock()
	st, ok := s.jobs[name]
	if !ok {
		s.mu.Unlock()
		return ErrJobNotFound
	}
	if st.running {
		// Предыдущая итерация ещё не завершилась — пропускаем tick.
		st.skipped++
		s.mu.Unlock()
		logger.Ctx(ctx).Warn().
			Str("job", name).
			Msg("Пропуск tick'а: предыдущая итерация ещё выполняется")
		return ErrJobRunning
	}
	st.running = true
	job := st.job
	s.mu.Unlock()

	err := job.Run(ctx)

	s.mu.Lock()
	st.running = false
	st.runs++
	st.lastRunAt = time.Now()
	if err != nil {
		st.lastError = err.Error()
	} else {
		st.lastError = ""
	}
	s.mu.Unlock()

	if err != nil {
		logger.Ctx(ctx).Error().
			Err(err).
			Str("job", name).
			Msg("Ошибка выполнения периодической задачи")
	}

	return err
}

// Status возвращает снимок состояния всех задач в порядке регистрации.
func (s *Scheduler) Status() []JobStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	statuses := make([]JobStatus, 0, len(s.order))
	for _, name := range s.order {
		st := s.jobs[name]
		statuses = append(statuses, JobStatus{
			Name:      st.job.Name,
			Interval:  st.job.Interval,
			Scheduled: st.scheduled,
			Running:   st.running,
			Runs:      st.runs,
			Skipped:   st.skipped,
			LastRunAt: st.lastRunAt,
			LastError: st.lastError,
		})
	}
	return statuses
}

// Shutdown останавливает все задачи и дожидается завершения циклов.
func (s *Scheduler) Shutdown() {
	s.mu.Lock()
	for _, name := range s.order {
		st := s.jobs[name]
		if st.scheduled {
			st.cancel()
			st.scheduled = false
			st.cancel = nil
		}
	}
	s.mu.Unlock()

	s.wg.Wait()
}
