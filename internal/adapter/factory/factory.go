package factory

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/alfanzaky/txnhook/internal/domain"
)

// processorFactory is a thread-safe registry for processors ensuring each
// configured name resolves to a concrete implementation.
type processorFactory struct {
	mu         sync.RWMutex
	processors map[string]domain.Processor
}

var _ domain.ProcessorFactory = (*processorFactory)(nil)

// NewProcessorFactory creates a new processor registry instance.
func NewProcessorFactory() *processorFactory {
	return &processorFactory{
		processors: make(map[string]domain.Processor),
	}
}

// RegisterProcessor registers a processor under the given name.
func (f *processorFactory) RegisterProcessor(name string, processor domain.Processor) {
	if processor == nil {
		return
	}

	normalized := normalize(name)
	if normalized == "" {
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.processors[normalized] = processor
}

// GetProcessor returns the processor registered under name.
func (f *processorFactory) GetProcessor(name string) (domain.Processor, error) {
	normalized := normalize(name)
	if normalized == "" {
		return nil, fmt.Errorf("processor name is required")
	}

	f.mu.RLock()
	processor, ok := f.processors[normalized]
	f.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %s (available: %s)", domain.ErrProcessorNotFound, normalized, strings.Join(f.Names(), ", "))
	}

	return processor, nil
}

// Names lists registered processor names in sorted order.
func (f *processorFactory) Names() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()

	names := make([]string, 0, len(f.processors))
	for name := range f.processors {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func normalize(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
