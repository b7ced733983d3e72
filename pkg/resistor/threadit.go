package resistor

// DefaultThreadItThreads is the thread cap ThreadIt uses when threads is not positive.
const DefaultThreadItThreads = 8

// ThreadIt runs fn for every pushed record on up to threads concurrent
// executions, without batching. It is New with a Record worker and a
// buffer size of one.
func ThreadIt[T any](fn RecordFunc[T], threads int, opts ...Option) (*Resistor[T], error) {
	if threads <= 0 {
		threads = DefaultThreadItThreads
	}
	all := make([]Option, 0, len(opts)+3)
	all = append(all, opts...)
	all = append(all, WithThreads(threads), WithBufferSize(1), WithoutAutoFlush())
	return New(Record(fn), all...)
}
