package mapping

// ResultContext is passed to a ResultHandler for every materialized row
type ResultContext interface {
	ResultObject() any
	ResultCount() int
	IsStopped() bool
	// Stop ends materialization after the current row
	Stop()
}

// ResultHandler receives top-level result objects as they are produced
// instead of having them collected into a list
type ResultHandler interface {
	HandleResult(ctx ResultContext)
}

// ResultHandlerFunc adapts a function to ResultHandler
type ResultHandlerFunc func(ctx ResultContext)

func (f ResultHandlerFunc) HandleResult(ctx ResultContext) { f(ctx) }
