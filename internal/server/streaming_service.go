package server

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/haryshwa05/pharmasynapse/internal/intent"
	"github.com/haryshwa05/pharmasynapse/internal/streaming"
)

// ErrStreamingDisabled is returned by Stream when no event stream is wired.
var ErrStreamingDisabled = errors.New("progress streaming is not configured")

const streamBuffer = 64

// Stream runs q and forwards its progress events to send as they occur.
// Events arrive in publish order; a consumer slower than the subscriber
// buffer misses events. A send error stops forwarding but not the analysis.
func (s *Service) Stream(ctx context.Context, q intent.RawQuery, send func(streaming.Event) error) (*AnalysisResponse, error) {
	if s.deps.Events == nil {
		return nil, ErrStreamingDisabled
	}
	requestID := uuid.NewString()
	ch := s.deps.Events.Subscribe(requestID, streamBuffer)
	defer s.deps.Events.Unsubscribe(requestID, ch)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		var sendErr error
		for evt := range ch {
			if sendErr != nil {
				continue
			}
			if sendErr = send(evt); sendErr != nil {
				s.logger.Debug("Stream consumer went away",
					zap.String("request_id", requestID),
					zap.Error(sendErr))
			}
		}
	}()

	resp, err := s.analyze(ctx, requestID, q)
	if errors.Is(err, ErrInvalidRequest) {
		// analyze returned before closing the stream.
		s.deps.Events.Close(requestID)
	}
	wg.Wait()
	return resp, err
}
