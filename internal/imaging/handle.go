package imaging

import (
	"context"
	"sync"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
)

// Handle identifies one analysis run.
type Handle struct {
	ID        uuid.UUID
	MIMEType  string
	Size      int
	StartedAt time.Time

	once   sync.Once
	done   chan struct{}
	result AnalysisResult
	err    error
}

func newHandle(image []byte, now time.Time) *Handle {
	return &Handle{
		ID:        uuid.New(),
		MIMEType:  mimetype.Detect(image).String(),
		Size:      len(image),
		StartedAt: now,
		done:      make(chan struct{}),
	}
}

func (h *Handle) finish(result AnalysisResult, err error) {
	h.once.Do(func() {
		h.result = result
		h.err = err
		close(h.done)
	})
}

// Done is closed once the run completes or is cancelled.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Wait blocks until the run finishes. A cancelled run returns ErrCancelled.
func (h *Handle) Wait(ctx context.Context) (AnalysisResult, error) {
	select {
	case <-h.done:
		if h.err != nil {
			return AnalysisResult{}, h.err
		}
		return h.result.clone(), nil
	case <-ctx.Done():
		return AnalysisResult{}, ctx.Err()
	}
}

// HandleInfo is the serializable view of a Handle.
type HandleInfo struct {
	ID        string    `json:"id"`
	MIMEType  string    `json:"mimeType"`
	Size      int       `json:"size"`
	StartedAt time.Time `json:"startedAt"`
}

func (h *Handle) Info() HandleInfo {
	return HandleInfo{
		ID:        h.ID.String(),
		MIMEType:  h.MIMEType,
		Size:      h.Size,
		StartedAt: h.StartedAt,
	}
}
