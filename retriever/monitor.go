package retriever

import "github.com/poiesic/maestro/vectorstore"

// Monitor provides hooks to observe the retrieval process.
// Implement this interface to track intermediate steps and results.
type Monitor interface {
	Start(query string)
	AfterEmbedding(vector []float32)
	Finish(results []vectorstore.Result)
}

// noopMonitor is a no-op implementation of Monitor
type noopMonitor struct{}

var _ Monitor = (*noopMonitor)(nil)

func (n *noopMonitor) Start(_ string)                {}
func (n *noopMonitor) AfterEmbedding(_ []float32)    {}
func (n *noopMonitor) Finish(_ []vectorstore.Result) {}
