package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

var (
	ErrEngineStarted = errors.New("engine already started")
	ErrNoComponents  = errors.New("engine has no registered components")
)

// TaskKind identifies which role a supervised task plays.
type TaskKind uint8

const (
	TaskCollector TaskKind = iota
	TaskStrategy
	TaskExecutor
)

func (k TaskKind) String() string {
	switch k {
	case TaskCollector:
		return "collector"
	case TaskStrategy:
		return "strategy"
	case TaskExecutor:
		return "executor"
	default:
		return "unknown"
	}
}

// TaskResult is the terminal outcome of one supervised task. Err is nil when
// the task ended because its input closed normally.
type TaskResult struct {
	Kind TaskKind
	Name string
	Err  error
}

// TaskSet is the joinable set of tasks spawned by Run. Results are streamed
// as tasks finish; Wait blocks until every task has finished and returns all
// outcomes in completion order.
type TaskSet struct {
	results chan TaskResult

	mu   sync.Mutex
	done []TaskResult
}

// Results yields each task outcome as it completes. The channel is closed
// once all tasks have finished.
func (s *TaskSet) Results() <-chan TaskResult {
	return s.results
}

// Wait drains the result stream until every task has terminated.
func (s *TaskSet) Wait() []TaskResult {
	for res := range s.results {
		s.mu.Lock()
		s.done = append(s.done, res)
		s.mu.Unlock()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.done
}

// Config tunes the engine. The zero value is usable.
type Config struct {
	// EventBufferSize and ActionBufferSize size the two buses and each
	// consumer's subscription channel.
	EventBufferSize  int
	ActionBufferSize int
	// AbortOnTaskExit cancels the whole run as soon as any task fails.
	// The default is to degrade: a dead collector or executor is reported
	// through the task set while its siblings keep running.
	AbortOnTaskExit bool
}

const defaultBufferSize = 512

// Engine owns the registered components and the two buses between them.
// Registration happens before Run; Run transitions the engine into a
// no-further-mutation state.
type Engine[E, A any] struct {
	log    *zap.Logger
	config Config

	collectors []Collector[E]
	strategies []Strategy[E, A]
	executors  []Executor[A]

	started atomic.Bool
}

func New[E, A any](log *zap.Logger, config Config) *Engine[E, A] {
	if config.EventBufferSize <= 0 {
		config.EventBufferSize = defaultBufferSize
	}
	if config.ActionBufferSize <= 0 {
		config.ActionBufferSize = defaultBufferSize
	}
	return &Engine[E, A]{
		log:    log.Named("engine"),
		config: config,
	}
}

func (e *Engine[E, A]) AddCollector(c Collector[E]) error {
	if e.started.Load() {
		return ErrEngineStarted
	}
	e.collectors = append(e.collectors, c)
	return nil
}

func (e *Engine[E, A]) AddStrategy(s Strategy[E, A]) error {
	if e.started.Load() {
		return ErrEngineStarted
	}
	e.strategies = append(e.strategies, s)
	return nil
}

func (e *Engine[E, A]) AddExecutor(x Executor[A]) error {
	if e.started.Load() {
		return ErrEngineStarted
	}
	e.executors = append(e.executors, x)
	return nil
}

// Run starts every registered component as its own goroutine and returns a
// TaskSet reporting their outcomes. Startup is fail-fast: strategy state
// sync and collector stream opening happen before anything is spawned, and
// the first failure aborts the run with no tasks started. After startup no
// failure is propagated between tasks unless AbortOnTaskExit is set.
//
// Delivery guarantees: every event is broadcast to every strategy, every
// action to every executor, in the order each producer published them.
func (e *Engine[E, A]) Run(ctx context.Context) (*TaskSet, error) {
	if !e.started.CompareAndSwap(false, true) {
		return nil, ErrEngineStarted
	}
	if len(e.collectors) == 0 && len(e.strategies) == 0 && len(e.executors) == 0 {
		return nil, ErrNoComponents
	}

	for _, s := range e.strategies {
		if err := s.SyncState(ctx); err != nil {
			return nil, fmt.Errorf("strategy %s: state sync failed: %w", s.Name(), err)
		}
	}

	streams := make([]<-chan E, len(e.collectors))
	for i, c := range e.collectors {
		stream, err := c.EventStream(ctx)
		if err != nil {
			return nil, fmt.Errorf("collector %s: %w", c.Name(), err)
		}
		streams[i] = stream
	}

	runCtx, cancel := context.WithCancel(ctx)

	taskCount := len(e.collectors) + len(e.strategies) + len(e.executors)
	set := &TaskSet{results: make(chan TaskResult, taskCount)}

	var tasks sync.WaitGroup
	report := func(res TaskResult) {
		if res.Err != nil {
			e.log.Error("Task finished with error",
				zap.String("kind", res.Kind.String()), zap.String("task", res.Name), zap.Error(res.Err))
			if e.config.AbortOnTaskExit {
				cancel()
			}
		} else {
			e.log.Info("Task finished",
				zap.String("kind", res.Kind.String()), zap.String("task", res.Name))
		}
		set.results <- res
	}

	eventBus := make(chan E, e.config.EventBufferSize)
	actionBus := make(chan A, e.config.ActionBufferSize)

	// Collector tasks publish onto the event bus; the bus closes when the
	// last collector is done.
	var producers sync.WaitGroup
	for i, c := range e.collectors {
		producers.Add(1)
		tasks.Add(1)
		go func(c Collector[E], stream <-chan E) {
			defer tasks.Done()
			defer producers.Done()
			report(TaskResult{Kind: TaskCollector, Name: c.Name(), Err: supervised(func() error {
				return e.pumpCollector(runCtx, stream, eventBus)
			})})
		}(c, streams[i])
	}
	go func() {
		producers.Wait()
		close(eventBus)
	}()

	// Broadcast the event bus to one subscription channel per strategy.
	strategySubs := broadcast(runCtx, eventBus, len(e.strategies), e.config.EventBufferSize)

	var strategyProducers sync.WaitGroup
	for i, s := range e.strategies {
		strategyProducers.Add(1)
		tasks.Add(1)
		go func(s Strategy[E, A], sub <-chan E) {
			defer tasks.Done()
			defer strategyProducers.Done()
			report(TaskResult{Kind: TaskStrategy, Name: s.Name(), Err: supervised(func() error {
				return e.runStrategy(runCtx, s, sub, actionBus)
			})})
			// keep draining so a dead task never stalls the broadcast
			for range sub {
			}
		}(s, strategySubs[i])
	}
	go func() {
		strategyProducers.Wait()
		close(actionBus)
	}()

	executorSubs := broadcast(runCtx, actionBus, len(e.executors), e.config.ActionBufferSize)

	for i, x := range e.executors {
		tasks.Add(1)
		go func(x Executor[A], sub <-chan A) {
			defer tasks.Done()
			report(TaskResult{Kind: TaskExecutor, Name: x.Name(), Err: supervised(func() error {
				return e.runExecutor(runCtx, x, sub)
			})})
			for range sub {
			}
		}(x, executorSubs[i])
	}

	go func() {
		tasks.Wait()
		cancel()
		close(set.results)
	}()

	e.log.Info("Engine started",
		zap.Int("collectors", len(e.collectors)),
		zap.Int("strategies", len(e.strategies)),
		zap.Int("executors", len(e.executors)))
	return set, nil
}

// supervised converts a panic inside a task into an ordinary task error, so
// one faulting component is reported through the task set instead of taking
// the process down.
func supervised(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task panicked: %v", r)
		}
	}()
	return fn()
}

func (e *Engine[E, A]) pumpCollector(ctx context.Context, stream <-chan E, bus chan<- E) error {
	for {
		select {
		case event, ok := <-stream:
			if !ok {
				return nil
			}
			select {
			case bus <- event:
			case <-ctx.Done():
				return ctx.Err()
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (e *Engine[E, A]) runStrategy(ctx context.Context, s Strategy[E, A], sub <-chan E, bus chan<- A) error {
	for event := range sub {
		action, ok := s.ProcessEvent(ctx, event)
		if !ok {
			continue
		}
		select {
		case bus <- action:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func (e *Engine[E, A]) runExecutor(ctx context.Context, x Executor[A], sub <-chan A) error {
	for action := range sub {
		if err := x.Execute(ctx, action); err != nil {
			e.log.Warn("Executor failed to process action",
				zap.String("executor", x.Name()), zap.Error(err))
		}
	}
	return nil
}

// broadcast fans a bus out to n subscription channels. Sends block, so no
// consumer misses an item while it is alive; per-producer order on the bus
// is preserved for every consumer. The subscription channels close when the
// bus closes.
func broadcast[T any](ctx context.Context, bus <-chan T, n, buffer int) []<-chan T {
	subs := make([]chan T, n)
	out := make([]<-chan T, n)
	for i := range subs {
		subs[i] = make(chan T, buffer)
		out[i] = subs[i]
	}
	go func() {
		defer func() {
			for _, sub := range subs {
				close(sub)
			}
		}()
		for item := range bus {
			for _, sub := range subs {
				select {
				case sub <- item:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out
}
