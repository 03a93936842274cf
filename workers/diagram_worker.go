package workers

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/lochel/genealogy/diagram"
	"github.com/lochel/genealogy/logging"
	"github.com/lochel/genealogy/metrics"
	"github.com/lochel/genealogy/realtime"
)

// Render states reported by Status and in realtime events.
const (
	StateQueued  = "queued"
	StateRunning = "running"
	StateDone    = "done"
	StateFailed  = "failed"
)

// Generator writes the TeX source of a diagram.
type Generator interface {
	Generate(id string) (string, *diagram.Result, error)
}

// Renderer turns a generated TeX source into the stored diagram image.
type Renderer interface {
	Render(ctx context.Context, id string) (string, error)
}

type RenderJob struct {
	RelativeID string
	Reason     string
}

// RenderStatus is the outcome of the most recent job for one relative.
type RenderStatus struct {
	Relative  string    `json:"relative"`
	State     string    `json:"state"`
	Reason    string    `json:"reason,omitempty"`
	Image     string    `json:"image,omitempty"`
	Error     string    `json:"error,omitempty"`
	Warnings  []string  `json:"warnings,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// DiagramRenderer runs diagram jobs on a fixed pool of workers. A relative is
// queued at most once at a time and never rendered by two workers at once.
type DiagramRenderer struct {
	JobQueue chan RenderJob
	Wg       sync.WaitGroup
	StopChan chan struct{}
	Pending  map[string]bool
	Mutex    sync.Mutex

	// ids being rendered, and the reason of a follow-up job requested while
	// they were running
	inFlight map[string]bool
	rerun    map[string]string

	generator Generator
	renderer  Renderer
	events    realtime.Broadcaster
	statuses  map[string]RenderStatus
	ctx       context.Context
	cancel    context.CancelFunc
	stopOnce  sync.Once
}

// NewDiagramRenderer starts numWorkers workers. renderer may be nil, in which
// case jobs only write the TeX source. events may be nil.
func NewDiagramRenderer(generator Generator, renderer Renderer, events realtime.Broadcaster, queueSize, numWorkers int) *DiagramRenderer {
	if numWorkers <= 0 {
		numWorkers = 1
	}
	if queueSize <= 0 {
		queueSize = 100
	}
	ctx, cancel := context.WithCancel(context.Background())
	dr := &DiagramRenderer{
		JobQueue:  make(chan RenderJob, queueSize),
		StopChan:  make(chan struct{}),
		Pending:   make(map[string]bool),
		inFlight:  make(map[string]bool),
		rerun:     make(map[string]string),
		generator: generator,
		renderer:  renderer,
		events:    events,
		statuses:  make(map[string]RenderStatus),
		ctx:       ctx,
		cancel:    cancel,
	}
	dr.Wg.Add(numWorkers)
	for i := 0; i < numWorkers; i++ {
		go dr.worker(i)
	}
	logging.L().Infof("workers: started %d diagram worker(s) with queue size %d", numWorkers, queueSize)
	return dr
}

func (dr *DiagramRenderer) worker(id int) {
	defer dr.Wg.Done()
	for {
		select {
		case job, ok := <-dr.JobQueue:
			if !ok {
				logging.L().Debugf("workers: diagram worker %d stopping: job queue closed", id)
				return
			}
			metrics.RenderQueueDepth.Set(float64(len(dr.JobQueue)))

			dr.Mutex.Lock()
			delete(dr.Pending, job.RelativeID)
			dr.inFlight[job.RelativeID] = true
			dr.Mutex.Unlock()

			logging.L().Debugf("workers: diagram worker %d processing %s (%s)", id, job.RelativeID, job.Reason)
			dr.Process(dr.ctx, job)
			dr.finish(job.RelativeID)

		case <-dr.StopChan:
			logging.L().Debugf("workers: diagram worker %d stopping: stop signal received", id)
			return
		}
	}
}

// Process runs one job synchronously and records its status.
func (dr *DiagramRenderer) Process(ctx context.Context, job RenderJob) RenderStatus {
	start := time.Now()
	dr.setStatus(RenderStatus{Relative: job.RelativeID, State: StateRunning, Reason: job.Reason})

	status := RenderStatus{Relative: job.RelativeID, State: StateDone, Reason: job.Reason}
	err := func() error {
		_, result, err := dr.generator.Generate(job.RelativeID)
		if err != nil {
			return fmt.Errorf("failed to generate diagram: %w", err)
		}
		status.Warnings = result.Warnings
		if dr.renderer == nil {
			return nil
		}
		image, err := dr.renderer.Render(ctx, job.RelativeID)
		if err != nil {
			return fmt.Errorf("failed to render diagram: %w", err)
		}
		status.Image = image
		return nil
	}()

	metrics.DiagramRenderDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		status.State = StateFailed
		status.Error = err.Error()
		metrics.DiagramRenders.WithLabelValues(StateFailed).Inc()
		logging.L().Errorf("workers: diagram for %s: %v", job.RelativeID, err)
	} else {
		metrics.DiagramRenders.WithLabelValues(StateDone).Inc()
		logging.L().Infof("workers: diagram for %s done in %s", job.RelativeID, time.Since(start).Round(time.Millisecond))
	}
	dr.setStatus(status)
	return status
}

func (dr *DiagramRenderer) setStatus(status RenderStatus) {
	status.UpdatedAt = time.Now()
	dr.Mutex.Lock()
	dr.statuses[status.Relative] = status
	dr.Mutex.Unlock()

	if dr.events != nil {
		dr.events.Broadcast(realtime.Event{
			Type:      realtime.EventRender,
			Relative:  status.Relative,
			Status:    status.State,
			Error:     status.Error,
			Timestamp: status.UpdatedAt.Unix(),
		})
	}
}

// Status returns the last known state of the diagram of id.
func (dr *DiagramRenderer) Status(id string) (RenderStatus, bool) {
	dr.Mutex.Lock()
	defer dr.Mutex.Unlock()
	s, ok := dr.statuses[id]
	return s, ok
}

// Queue schedules a diagram job unless one is already waiting for id. While id
// is rendering, the new job is held back and queued once the running one
// finishes. It reports whether a job was scheduled.
func (dr *DiagramRenderer) Queue(id, reason string) bool {
	select {
	case <-dr.StopChan:
		return false
	default:
	}

	dr.Mutex.Lock()
	if dr.Pending[id] {
		dr.Mutex.Unlock()
		return false
	}
	if dr.inFlight[id] {
		_, waiting := dr.rerun[id]
		dr.rerun[id] = reason
		dr.Mutex.Unlock()
		if waiting {
			return false
		}
		logging.L().Debugf("workers: diagram for %s is rendering, queued a follow-up (%s)", id, reason)
		return true
	}
	dr.Pending[id] = true
	dr.Mutex.Unlock()

	dr.setStatus(RenderStatus{Relative: id, State: StateQueued, Reason: reason})
	select {
	case dr.JobQueue <- RenderJob{RelativeID: id, Reason: reason}:
		metrics.RenderQueueDepth.Set(float64(len(dr.JobQueue)))
		logging.L().Debugf("workers: queued diagram for %s (%s)", id, reason)
		return true
	default:
		logging.L().Warnf("workers: diagram job queue full, failed to queue %s", id)
		dr.Mutex.Lock()
		delete(dr.Pending, id)
		dr.Mutex.Unlock()
		dr.setStatus(RenderStatus{Relative: id, State: StateFailed, Reason: reason, Error: "render queue full"})
		return false
	}
}

// finish releases id after a worker is done with it and queues the follow-up
// job requested meanwhile, if any.
func (dr *DiagramRenderer) finish(id string) {
	dr.Mutex.Lock()
	delete(dr.inFlight, id)
	reason, again := dr.rerun[id]
	delete(dr.rerun, id)
	dr.Mutex.Unlock()

	if again {
		dr.Queue(id, reason)
	}
}

// QueueAll queues every id and returns how many were queued.
func (dr *DiagramRenderer) QueueAll(ids []string, reason string) int {
	n := 0
	for _, id := range ids {
		if dr.Queue(id, reason) {
			n++
		}
	}
	return n
}

// Stop cancels running renders and waits for all workers to exit. Jobs still
// in the queue are dropped.
func (dr *DiagramRenderer) Stop() {
	dr.stopOnce.Do(func() {
		logging.L().Info("workers: stopping diagram workers...")
		close(dr.StopChan)
		dr.cancel()
		dr.Wg.Wait()
		logging.L().Info("workers: all diagram workers stopped")
	})
}
