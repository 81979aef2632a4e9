package domain

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"github.com/davidbz/hearth/internal/observability"
)

const (
	cacheProviderName   = "cache"
	finishReasonStop    = "stop"
	modeComplete        = "complete"
	modeStream          = "stream"
	pathHit             = "hit"
	pathMiss            = "miss"
	outcomeOK           = "ok"
	outcomeError        = "error"
	outcomeCancelled    = "cancelled"
	lookupResultHit     = "hit"
	lookupResultMiss    = "miss"
	lookupResultError   = "error"
	lookupResultSkip    = "skipped"
	compressionStageIn  = "original"
	compressionStageOut = "compressed"
)

// PipelineOptions tunes the pipeline.
type PipelineOptions struct {
	// ProviderTimeout bounds each provider call, streaming included. Zero disables it.
	ProviderTimeout time.Duration

	// ReplayChunkRunes is the size of each replayed cache-hit chunk.
	// Zero or less replays the whole answer as one chunk.
	ReplayChunkRunes int

	// NativeCompression sends compressed text to the provider instead of
	// restoring it first.
	NativeCompression bool
}

// Pipeline sequences compression, cache lookup, provider dispatch, cache
// population and response hand-off for each request.
type Pipeline struct {
	registry       ProviderRegistry
	costCalculator CostCalculator
	compressor     Compressor
	cache          SemanticCache
	audit          AuditRecorder
	events         EventPublisher
	opts           PipelineOptions

	hits   atomic.Uint64
	misses atomic.Uint64
}

// NewPipeline creates a new pipeline (DI constructor). A nil cache disables
// caching; a nil compressor, audit recorder or event publisher disables
// that step.
func NewPipeline(
	registry ProviderRegistry,
	costCalculator CostCalculator,
	compressor Compressor,
	cache SemanticCache,
	audit AuditRecorder,
	events EventPublisher,
	opts PipelineOptions,
) *Pipeline {
	return &Pipeline{
		registry:       registry,
		costCalculator: costCalculator,
		compressor:     compressor,
		cache:          cache,
		audit:          audit,
		events:         events,
		opts:           opts,
	}
}

// Stream is an answer being delivered chunk by chunk, either replayed from
// the cache or relayed from a provider. Consumers must call Close.
type Stream struct {
	// Chunks delivers deltas in generation order. It is closed after the
	// Done chunk, after an error chunk, or once the stream is closed.
	Chunks <-chan StreamChunk
	// Cache is nil when the cache did not take part.
	Cache *CacheInfo

	cancel    context.CancelFunc
	closed    chan struct{}
	closeOnce sync.Once
}

// CacheHit reports whether the stream replays a cached answer.
func (s *Stream) CacheHit() bool {
	return s.Cache != nil && s.Cache.Hit
}

// Close stops the producer, whether or not Chunks was drained. For a live
// stream this cancels the provider call. Close is safe to call more than once.
func (s *Stream) Close() {
	s.closeOnce.Do(func() {
		if s.cancel != nil {
			s.cancel()
		}
		if s.closed != nil {
			close(s.closed)
		}
	})
}

// Complete handles a non-streaming request.
func (p *Pipeline) Complete(ctx context.Context, req *PipelineRequest) (*PipelineResult, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}

	completion := req.Completion
	ctx = observability.WithModel(ctx, completion.Model)
	logger := observability.FromContext(ctx)

	compressed := p.compressMessages(ctx, completion.Messages)

	key, match := p.lookup(ctx, req, compressed)
	if match != nil {
		logger.Info("cache HIT - returning cached response",
			observability.Float64("similarity_score", match.Similarity),
			observability.Uint64("sequence_id", match.SequenceID))

		usage := p.price(ctx, completion.Model, Usage{}, true)
		response := cachedResponse(completion.Model, match)
		response.Usage = usage

		result := &PipelineResult{
			Response:           response,
			Cache:              hitInfo(match),
			CompressedMessages: compressed,
		}
		p.record(ctx, req, cacheProviderName, compressed, match.Answer, true, usage)
		observability.PipelineRequests.WithLabelValues(pathHit, modeComplete, outcomeOK).Inc()
		return result, nil
	}

	provider, err := p.route(ctx, completion.Model)
	if err != nil {
		observability.PipelineRequests.WithLabelValues(pathMiss, modeComplete, outcomeError).Inc()
		return nil, err
	}
	ctx = observability.WithProvider(ctx, provider.Name())

	callCtx, cancel := p.withProviderTimeout(ctx)
	defer cancel()

	start := time.Now()
	response, err := provider.Complete(callCtx, p.providerRequest(ctx, completion, compressed))
	if err != nil {
		observability.ProviderDuration.
			WithLabelValues(provider.Name(), modeComplete, outcomeError).
			Observe(time.Since(start).Seconds())
		observability.PipelineRequests.WithLabelValues(pathMiss, modeComplete, outcomeError).Inc()

		providerErr := callError(callCtx, provider.Name(), err)
		p.publish(ctx, "provider.failed", map[string]interface{}{
			"provider":    provider.Name(),
			"status_code": providerErr.StatusCode,
			"error":       providerErr.Err.Error(),
		})
		return nil, providerErr
	}
	observability.ProviderDuration.
		WithLabelValues(provider.Name(), modeComplete, outcomeOK).
		Observe(time.Since(start).Seconds())

	// Priced by the requested model; upstreams often answer with a dated variant.
	response.Usage = p.price(ctx, completion.Model, response.Usage, false)

	p.store(ctx, req, key, compressed, response.Content)
	p.record(ctx, req, provider.Name(), compressed, response.Content, false, response.Usage)
	observability.PipelineRequests.WithLabelValues(pathMiss, modeComplete, outcomeOK).Inc()

	return &PipelineResult{
		Response:           response,
		Cache:              p.missInfo(),
		CompressedMessages: compressed,
	}, nil
}

// Stream handles a streaming request. Errors returned here happen before
// any chunk is produced; later failures arrive as error chunks.
func (p *Pipeline) Stream(ctx context.Context, req *PipelineRequest) (*Stream, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}

	completion := req.Completion
	ctx = observability.WithModel(ctx, completion.Model)
	logger := observability.FromContext(ctx)

	compressed := p.compressMessages(ctx, completion.Messages)

	key, match := p.lookup(ctx, req, compressed)
	if match != nil {
		logger.Info("cache HIT - replaying cached response",
			observability.Float64("similarity_score", match.Similarity),
			observability.Uint64("sequence_id", match.SequenceID))

		replayCtx, cancel := context.WithCancel(ctx)
		chunks := replay(replayCtx, match.Answer, p.opts.ReplayChunkRunes)

		usage := p.price(ctx, completion.Model, Usage{}, true)
		p.record(ctx, req, cacheProviderName, compressed, match.Answer, true, usage)
		observability.PipelineRequests.WithLabelValues(pathHit, modeStream, outcomeOK).Inc()

		return &Stream{Chunks: chunks, Cache: hitInfo(match), cancel: cancel}, nil
	}

	provider, err := p.route(ctx, completion.Model)
	if err != nil {
		observability.PipelineRequests.WithLabelValues(pathMiss, modeStream, outcomeError).Inc()
		return nil, err
	}
	ctx = observability.WithProvider(ctx, provider.Name())

	streamCtx, cancel := p.withProviderTimeout(ctx)

	start := time.Now()
	upstream, err := provider.Stream(streamCtx, p.providerRequest(ctx, completion, compressed))
	if err != nil {
		observability.ProviderDuration.
			WithLabelValues(provider.Name(), modeStream, outcomeError).
			Observe(time.Since(start).Seconds())
		observability.PipelineRequests.WithLabelValues(pathMiss, modeStream, outcomeError).Inc()

		providerErr := callError(streamCtx, provider.Name(), err)
		cancel()
		p.publish(ctx, "provider.failed", map[string]interface{}{
			"provider":    provider.Name(),
			"status_code": providerErr.StatusCode,
			"error":       providerErr.Err.Error(),
		})
		return nil, providerErr
	}

	out := make(chan StreamChunk)
	closed := make(chan struct{})
	r := &relay{
		pipeline:   p,
		parent:     ctx,
		ctx:        streamCtx,
		cancel:     cancel,
		req:        req,
		provider:   provider.Name(),
		key:        key,
		compressed: compressed,
		in:         upstream,
		out:        out,
		closed:     closed,
		start:      start,
	}
	go r.run()

	return &Stream{Chunks: out, Cache: p.missInfo(), cancel: cancel, closed: closed}, nil
}

// CacheStats combines index statistics with the pipeline's hit and miss counters.
func (p *Pipeline) CacheStats(ctx context.Context) CacheStats {
	hits := p.hits.Load()
	misses := p.misses.Load()

	stats := CacheStats{
		Hits:   hits,
		Misses: misses,
	}
	if total := hits + misses; total > 0 {
		stats.HitRate = float64(hits) / float64(total)
	}

	if p.cache != nil {
		index := p.cache.Stats(ctx)
		stats.Entries = index.Entries
		stats.Capacity = index.Capacity
		stats.Evictions = index.Evictions
	}

	return stats
}

// ClearCache drops every cached entry. Hit and miss counters are kept.
func (p *Pipeline) ClearCache(ctx context.Context) {
	if p.cache == nil {
		return
	}
	p.cache.Clear(ctx)
}

// relay forwards a live provider stream and caches the answer once complete.
type relay struct {
	pipeline   *Pipeline
	parent     context.Context
	ctx        context.Context
	cancel     context.CancelFunc
	req        *PipelineRequest
	provider   string
	key        requestKey
	compressed []Message
	in         <-chan StreamChunk
	out        chan<- StreamChunk
	closed     <-chan struct{}
	start      time.Time
}

func (r *relay) run() {
	defer close(r.out)
	defer r.cancel()

	outcome := outcomeCancelled
	defer func() {
		observability.ProviderDuration.
			WithLabelValues(r.provider, modeStream, outcome).
			Observe(time.Since(r.start).Seconds())
		observability.PipelineRequests.WithLabelValues(pathMiss, modeStream, outcome).Inc()
	}()

	var answer strings.Builder
	var usage Usage

	for {
		select {
		case <-r.ctx.Done():
			outcome = r.interrupted(answer.Len())
			return

		case chunk, ok := <-r.in:
			if r.ctx.Err() != nil {
				outcome = r.interrupted(answer.Len())
				return
			}

			if !ok {
				outcome = outcomeError
				r.fail(NewProviderError(r.provider, 0, ErrStreamIncomplete))
				return
			}

			if chunk.Error != nil {
				outcome = outcomeError
				r.fail(asProviderError(r.provider, chunk.Error))
				return
			}

			answer.WriteString(chunk.Delta)
			if chunk.Usage != nil {
				usage = *chunk.Usage
			}

			if chunk.Done {
				// The entry exists before the consumer sees the final chunk.
				outcome = outcomeOK
				r.complete(answer.String(), usage)
				r.send(r.ctx, chunk)
				return
			}
			r.send(r.ctx, chunk)
		}
	}
}

// interrupted handles a done stream context. A deadline is a provider
// timeout reported to the consumer; anything else is the consumer leaving.
func (r *relay) interrupted(received int) string {
	if errors.Is(r.ctx.Err(), context.DeadlineExceeded) {
		r.fail(NewProviderError(r.provider, 0, r.ctx.Err()))
		return outcomeError
	}

	observability.FromContext(r.parent).Info("stream cancelled by consumer")
	r.pipeline.publish(r.parent, "stream.cancelled", map[string]interface{}{
		"provider":       r.provider,
		"received_bytes": received,
	})
	return outcomeCancelled
}

// complete runs the post-stream steps. The answer is whole, so it is cached
// even if the consumer went away after the final chunk.
func (r *relay) complete(answer string, usage Usage) {
	ctx := context.WithoutCancel(r.parent)

	usage = r.pipeline.price(ctx, r.req.Completion.Model, usage, false)
	r.pipeline.store(ctx, r.req, r.key, r.compressed, answer)
	r.pipeline.record(ctx, r.req, r.provider, r.compressed, answer, false, usage)
}

// fail surfaces a provider error to the consumer until it closes the stream.
func (r *relay) fail(err *ProviderError) {
	observability.FromContext(r.parent).Error("provider stream failed", observability.Error(err))
	r.pipeline.publish(r.parent, "provider.failed", map[string]interface{}{
		"provider":    r.provider,
		"status_code": err.StatusCode,
		"error":       err.Err.Error(),
	})
	r.send(r.parent, StreamChunk{Error: err})
}

func (r *relay) send(ctx context.Context, chunk StreamChunk) bool {
	select {
	case r.out <- chunk:
		return true
	case <-ctx.Done():
		return false
	case <-r.closed:
		return false
	}
}

// requestKey carries the cache key decision from lookup to store.
type requestKey struct {
	key *CacheKey
	// deferred means the lookup did not need a key and store may build one.
	deferred bool
}

// lookup returns the keying outcome for this request and the cached match on
// a hit. Every failure degrades to a miss; a key that could not be built is
// not retried by store.
func (p *Pipeline) lookup(ctx context.Context, req *PipelineRequest, compressed []Message) (requestKey, *CacheMatch) {
	if p.cache == nil {
		return requestKey{}, nil
	}

	logger := observability.FromContext(ctx)

	if req.CacheControl.NoCache {
		logger.Info("cache lookup bypassed by request")
		observability.CacheLookups.WithLabelValues(lookupResultSkip).Inc()
		return requestKey{deferred: true}, nil
	}

	if p.cache.IsEmpty() {
		p.miss(ctx, lookupResultMiss, "empty")
		return requestKey{deferred: true}, nil
	}

	key, err := p.cache.MakeKey(ctx, compressed, req.Completion.Model)
	if err != nil {
		logger.Warn("cache key unavailable, continuing without cache", observability.Error(err))
		p.miss(ctx, lookupResultError, err.Error())
		return requestKey{}, nil
	}

	match, err := p.cache.Lookup(ctx, key)
	if err != nil {
		if errors.Is(err, ErrCacheMiss) {
			logger.Info("cache MISS - calling provider")
			p.miss(ctx, lookupResultMiss, "no match")
		} else {
			logger.Warn("cache lookup failed, continuing without cache", observability.Error(err))
			p.miss(ctx, lookupResultError, err.Error())
		}
		return requestKey{key: key}, nil
	}

	p.hits.Add(1)
	observability.CacheLookups.WithLabelValues(lookupResultHit).Inc()
	p.publish(ctx, "cache.hit", map[string]interface{}{
		"similarity":  match.Similarity,
		"sequence_id": match.SequenceID,
	})
	return requestKey{key: key}, match
}

func (p *Pipeline) miss(ctx context.Context, result, reason string) {
	p.misses.Add(1)
	observability.CacheLookups.WithLabelValues(result).Inc()
	p.publish(ctx, "cache.miss", map[string]interface{}{"reason": reason})
}

// store inserts a finished answer. The key is computed here when the lookup
// deferred it. Failures are logged only.
func (p *Pipeline) store(ctx context.Context, req *PipelineRequest, rk requestKey, compressed []Message, answer string) {
	if p.cache == nil || req.CacheControl.NoStore || answer == "" {
		return
	}

	logger := observability.FromContext(ctx)

	key := rk.key
	if key == nil {
		if !rk.deferred {
			logger.Debug("no cache key for this request, skipping insert")
			return
		}

		var err error
		key, err = p.cache.MakeKey(ctx, compressed, req.Completion.Model)
		if err != nil {
			logger.Warn("failed to build cache key for insert", observability.Error(err))
			observability.CacheInserts.WithLabelValues(outcomeError).Inc()
			return
		}
	}

	if err := p.cache.Insert(ctx, key, answer); err != nil {
		logger.Warn("failed to store in cache", observability.Error(err))
		observability.CacheInserts.WithLabelValues(outcomeError).Inc()
		p.publish(ctx, "cache.insert_failed", map[string]interface{}{"error": err.Error()})
		return
	}
	observability.CacheInserts.WithLabelValues(outcomeOK).Inc()
}

// compressMessages compresses user and system turns. Assistant turns are
// prior model output and stay untouched.
func (p *Pipeline) compressMessages(ctx context.Context, messages []Message) []Message {
	out := make([]Message, len(messages))
	copy(out, messages)

	if p.compressor == nil {
		return out
	}

	for i, msg := range out {
		if !compressible(msg.Role) {
			continue
		}
		result := p.compressor.Compress(ctx, msg.Content)
		out[i].Content = result.Compressed

		observability.CompressionBytes.WithLabelValues(compressionStageIn).Add(float64(len(result.Original)))
		observability.CompressionBytes.WithLabelValues(compressionStageOut).Add(float64(len(result.Compressed)))
	}

	return out
}

// providerRequest builds the upstream request from the compressed turns.
func (p *Pipeline) providerRequest(ctx context.Context, completion *CompletionRequest, compressed []Message) *CompletionRequest {
	upstream := *completion
	upstream.Messages = make([]Message, len(compressed))

	for i, msg := range compressed {
		upstream.Messages[i] = msg
		if !compressible(msg.Role) || p.compressor == nil || p.opts.NativeCompression {
			continue
		}
		upstream.Messages[i].Content = p.compressor.Decompress(ctx, msg.Content)
	}

	return &upstream
}

func (p *Pipeline) route(ctx context.Context, model string) (Provider, error) {
	provider, err := p.registry.GetByModel(ctx, model)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrModelNotSupported, err)
	}
	return provider, nil
}

func (p *Pipeline) withProviderTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if p.opts.ProviderTimeout > 0 {
		return context.WithTimeout(ctx, p.opts.ProviderTimeout)
	}
	return context.WithCancel(ctx)
}

func (p *Pipeline) record(
	ctx context.Context,
	req *PipelineRequest,
	provider string,
	compressed []Message,
	answer string,
	cacheHit bool,
	usage Usage,
) {
	if p.audit == nil {
		return
	}

	p.audit.Record(ctx, AuditRecord{
		RequestID:          observability.GetRequestID(ctx),
		UserID:             req.UserID,
		Model:              req.Completion.Model,
		Provider:           provider,
		CompressedMessages: compressed,
		Answer:             answer,
		CacheHit:           cacheHit,
		Usage:              usage,
	})
}

// price fills in the cost of usage. Missing pricing is logged and costs zero.
func (p *Pipeline) price(ctx context.Context, model string, usage Usage, cacheHit bool) Usage {
	usage.Cost = 0
	if p.costCalculator == nil {
		return usage
	}

	priced, err := p.costCalculator.Price(ctx, model, usage, cacheHit)
	if err != nil {
		observability.FromContext(ctx).Warn("usage not priced, reporting zero cost", observability.Error(err))
		if errors.Is(err, ErrPricingNotFound) {
			observability.PricingMisses.WithLabelValues(model).Inc()
		}
		priced.Cost = 0
	}

	if priced.Cost > 0 {
		observability.ProviderCost.WithLabelValues(model).Add(priced.Cost)
	}
	return priced
}

func (p *Pipeline) publish(ctx context.Context, eventType string, data map[string]interface{}) {
	if p.events == nil {
		return
	}
	p.events.Publish(ctx, eventType, data)
}

func (p *Pipeline) missInfo() *CacheInfo {
	if p.cache == nil {
		return nil
	}
	return &CacheInfo{Hit: false}
}

func hitInfo(match *CacheMatch) *CacheInfo {
	return &CacheInfo{
		Hit:             true,
		SimilarityScore: match.Similarity,
		CachedAt:        match.CreatedAt,
	}
}

func cachedResponse(model string, match *CacheMatch) *CompletionResponse {
	return &CompletionResponse{
		ID:           fmt.Sprintf("cache-%d", match.SequenceID),
		Model:        model,
		Provider:     cacheProviderName,
		Content:      match.Answer,
		FinishReason: finishReasonStop,
		Usage:        Usage{},
		FinishTime:   time.Now(),
	}
}

// replay emits answer in rune-aligned chunks followed by a Done chunk.
func replay(ctx context.Context, answer string, chunkRunes int) <-chan StreamChunk {
	chunks := make(chan StreamChunk)

	go func() {
		defer close(chunks)

		for _, part := range splitRunes(answer, chunkRunes) {
			select {
			case chunks <- StreamChunk{Delta: part}:
			case <-ctx.Done():
				return
			}
		}

		select {
		case chunks <- StreamChunk{Done: true, FinishReason: finishReasonStop}:
		case <-ctx.Done():
		}
	}()

	return chunks
}

// splitRunes cuts s into pieces of at most n runes without splitting a rune.
func splitRunes(s string, n int) []string {
	if s == "" {
		return nil
	}
	if n <= 0 || utf8.RuneCountInString(s) <= n {
		return []string{s}
	}

	parts := make([]string, 0, utf8.RuneCountInString(s)/n+1)
	start, count := 0, 0
	for i := range s {
		if count == n {
			parts = append(parts, s[start:i])
			start, count = i, 0
		}
		count++
	}
	return append(parts, s[start:])
}

func compressible(role string) bool {
	return role == RoleUser || role == RoleSystem
}

// callError classifies a failed provider call. A plain error returned after
// the call deadline passed is still a timeout.
func callError(callCtx context.Context, provider string, err error) *ProviderError {
	providerErr := asProviderError(provider, err)
	if providerErr.Timeout() || !errors.Is(callCtx.Err(), context.DeadlineExceeded) {
		return providerErr
	}
	return NewProviderError(provider, providerErr.StatusCode, fmt.Errorf("%w: %w", context.DeadlineExceeded, err))
}

func asProviderError(provider string, err error) *ProviderError {
	var providerErr *ProviderError
	if errors.As(err, &providerErr) {
		return providerErr
	}
	return NewProviderError(provider, 0, err)
}

func validateRequest(req *PipelineRequest) error {
	if req == nil || req.Completion == nil {
		return fmt.Errorf("%w: request cannot be nil", ErrInvalidRequest)
	}

	if req.Completion.Model == "" {
		return fmt.Errorf("%w: model cannot be empty", ErrInvalidRequest)
	}

	if len(req.Completion.Messages) == 0 {
		return fmt.Errorf("%w: messages cannot be empty", ErrInvalidRequest)
	}

	return nil
}
