package data

import (
	"context"
	"errors"
	"sync"

	"github.com/bits-and-blooms/bloom/v3"

	"github.com/code-payments/code-custody/pkg/metrics"
)

const (
	estimatedProviderMetricsName = "data.estimated_provider"
)

var (
	ErrInvalidSignature = errors.New("invalid signature")
)

// EstimatedSignatures is a probabilistic set of processed signatures. A
// negative test is exact, a positive one must be confirmed against the
// signature store.
type EstimatedSignatures interface {
	TestForKnownSignature(ctx context.Context, sig []byte) (bool, error)
	AddKnownSignature(ctx context.Context, sig []byte) error
}

type estimatedProvider struct {
	mu              sync.Mutex
	knownSignatures *bloom.BloomFilter
}

// NewEstimatedSignatures returns a bloom filter sized for capacity entries at
// the provided false positive rate.
func NewEstimatedSignatures(capacity uint, falsePositiveRate float64) EstimatedSignatures {
	return &estimatedProvider{
		knownSignatures: bloom.NewWithEstimates(capacity, falsePositiveRate),
	}
}

func (p *estimatedProvider) TestForKnownSignature(ctx context.Context, sig []byte) (bool, error) {
	tracer := metrics.TraceMethodCall(ctx, estimatedProviderMetricsName, "TestForKnownSignature")
	defer tracer.End()

	if len(sig) == 0 {
		return false, ErrInvalidSignature
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	return p.knownSignatures.Test(sig), nil
}

func (p *estimatedProvider) AddKnownSignature(ctx context.Context, sig []byte) error {
	tracer := metrics.TraceMethodCall(ctx, estimatedProviderMetricsName, "AddKnownSignature")
	defer tracer.End()

	if len(sig) == 0 {
		return ErrInvalidSignature
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.knownSignatures.Add(sig)
	return nil
}
