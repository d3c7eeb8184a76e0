package worker

// job is an item tagged with its position in the batch.
type job[T any] struct {
	index int
	item  T
}

// result is the outcome of one job.
type result[R any] struct {
	index    int
	value    R
	err      error
	duration int64
}

// IndexedError reports which item of a batch failed.
type IndexedError struct {
	Index int
	Err   error
}

func (e *IndexedError) Error() string {
	return e.Err.Error()
}

func (e *IndexedError) Unwrap() error {
	return e.Err
}
