package imaging

import (
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	apperrors "github.com/Skufu/medassist/pkg/errors"
)

// DefaultDelay is how long a simulated analysis takes.
const DefaultDelay = 3 * time.Second

const subscriberBuffer = 8

var (
	// ErrInvalidImage is returned by Start for an empty upload.
	ErrInvalidImage = apperrors.NewValidationError("invalid_image", "image is empty")
	// ErrCancelled is reported by Handle.Wait for a cancelled run.
	ErrCancelled = errors.New("imaging: analysis cancelled")
	// ErrClosed is returned by Start after Close.
	ErrClosed = errors.New("imaging: pipeline closed")
)

// Event is a state transition published to subscribers.
type Event struct {
	HandleID string    `json:"handleId,omitempty"`
	State    State     `json:"state"`
	At       time.Time `json:"at"`
}

// Status is a point-in-time view of the pipeline.
type Status struct {
	State  State           `json:"state"`
	Handle *HandleInfo     `json:"handle,omitempty"`
	Result *AnalysisResult `json:"result,omitempty"`
}

type Option func(*Pipeline)

func WithDelay(d time.Duration) Option {
	return func(p *Pipeline) {
		if d > 0 {
			p.delay = d
		}
	}
}

func WithLogger(logger zerolog.Logger) Option {
	return func(p *Pipeline) {
		p.logger = logger
	}
}

// Pipeline runs at most one simulated image analysis at a time. A run moves
// Idle -> Analyzing on Start and Analyzing -> Completed when its timer fires.
type Pipeline struct {
	mu         sync.Mutex
	delay      time.Duration
	logger     zerolog.Logger
	now        func() time.Time
	state      State
	current    *Handle
	result     *AnalysisResult
	timer      *time.Timer
	generation uint64

	subscribers map[int]chan Event
	nextSubID   int
	closed      bool
}

func NewPipeline(opts ...Option) *Pipeline {
	p := &Pipeline{
		delay:       DefaultDelay,
		logger:      log.Logger,
		now:         time.Now,
		state:       StateIdle,
		subscribers: map[int]chan Event{},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Start begins analysing image. While a run is in flight Start is a no-op
// that returns the in-flight handle; the timer is not re-armed. An empty
// image is rejected with ErrInvalidImage in every state, including while a
// run is in flight.
func (p *Pipeline) Start(image []byte) (*Handle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil, ErrClosed
	}
	if len(image) == 0 {
		return nil, ErrInvalidImage
	}
	if p.state == StateAnalyzing {
		p.logger.Debug().Str("handle_id", p.current.ID.String()).Msg("analysis already in flight")
		return p.current, nil
	}

	p.generation++
	gen := p.generation
	handle := newHandle(image, p.now())

	p.current = handle
	p.result = nil
	p.state = StateAnalyzing
	p.timer = time.AfterFunc(p.delay, func() { p.complete(gen) })

	p.logger.Info().
		Str("handle_id", handle.ID.String()).
		Str("mime_type", handle.MIMEType).
		Int("size", handle.Size).
		Dur("delay", p.delay).
		Msg("image analysis started")
	p.publishLocked()
	return handle, nil
}

func (p *Pipeline) complete(gen uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	// A cancelled or superseded run must not publish.
	if gen != p.generation || p.state != StateAnalyzing {
		return
	}

	result := StaticResult()
	p.result = &result
	p.state = StateCompleted
	p.timer = nil
	p.current.finish(result, nil)

	p.logger.Info().Str("handle_id", p.current.ID.String()).Msg("image analysis completed")
	p.publishLocked()
}

// Cancel discards a pending run and returns the pipeline to Idle. It reports
// whether a run was cancelled.
func (p *Pipeline) Cancel() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cancelLocked()
}

func (p *Pipeline) cancelLocked() bool {
	if p.state != StateAnalyzing {
		return false
	}
	if p.timer != nil {
		p.timer.Stop()
		p.timer = nil
	}
	p.generation++
	p.current.finish(AnalysisResult{}, ErrCancelled)
	p.logger.Info().Str("handle_id", p.current.ID.String()).Msg("image analysis cancelled")

	p.state = StateIdle
	p.current = nil
	p.result = nil
	p.publishLocked()
	return true
}

func (p *Pipeline) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Result returns the payload of the last completed run.
func (p *Pipeline) Result() (AnalysisResult, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.result == nil {
		return AnalysisResult{}, false
	}
	return p.result.clone(), true
}

func (p *Pipeline) Status() Status {
	p.mu.Lock()
	defer p.mu.Unlock()

	status := Status{State: p.state}
	if p.current != nil {
		info := p.current.Info()
		status.Handle = &info
	}
	if p.result != nil {
		result := p.result.clone()
		status.Result = &result
	}
	return status
}

// Subscribe registers for state transitions. Events are dropped for a
// subscriber whose buffer is full. The returned func unsubscribes and closes
// the channel.
func (p *Pipeline) Subscribe() (<-chan Event, func()) {
	p.mu.Lock()
	defer p.mu.Unlock()

	ch := make(chan Event, subscriberBuffer)
	if p.closed {
		close(ch)
		return ch, func() {}
	}

	id := p.nextSubID
	p.nextSubID++
	p.subscribers[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			p.mu.Lock()
			defer p.mu.Unlock()
			if sub, ok := p.subscribers[id]; ok {
				delete(p.subscribers, id)
				close(sub)
			}
		})
	}
}

func (p *Pipeline) publishLocked() {
	ev := Event{State: p.state, At: p.now()}
	if p.current != nil {
		ev.HandleID = p.current.ID.String()
	}
	for id, ch := range p.subscribers {
		select {
		case ch <- ev:
		default:
			p.logger.Warn().Int("subscriber", id).Str("state", string(ev.State)).Msg("dropping analysis event for slow subscriber")
		}
	}
}

// Close cancels any pending run and releases all subscribers. The pipeline
// rejects further starts.
func (p *Pipeline) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.cancelLocked()
	p.closed = true
	for id, ch := range p.subscribers {
		delete(p.subscribers, id)
		close(ch)
	}
}
