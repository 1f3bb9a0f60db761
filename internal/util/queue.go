package util

// Queue - FIFO-очередь на кольцевом буфере.
// Ёмкость всегда степень двойки; при заполнении буфер удваивается,
// а после опустошения индексы сбрасываются, так что память переиспользуется
// между проходами. Не потокобезопасна.
type Queue[T any] struct {
	entries []T
	mask    int
	head    int
	size    int
}

// NewQueue создаёт очередь с начальной ёмкостью (округляется до степени двойки)
func NewQueue[T any](capacity int) *Queue[T] {
	actualCap := nextPowerOfTwo(capacity)
	return &Queue[T]{
		entries: make([]T, actualCap),
		mask:    actualCap - 1,
	}
}

// Push добавляет элемент в конец очереди
func (q *Queue[T]) Push(item T) {
	if q.size == len(q.entries) {
		q.grow()
	}
	q.entries[(q.head+q.size)&q.mask] = item
	q.size++
}

// Pop извлекает первый элемент. Возвращает false, если очередь пуста.
func (q *Queue[T]) Pop() (T, bool) {
	var zero T
	if q.size == 0 {
		return zero, false
	}
	item := q.entries[q.head]
	q.entries[q.head] = zero
	q.head = (q.head + 1) & q.mask
	q.size--
	if q.size == 0 {
		q.head = 0
	}
	return item, true
}

// Len возвращает количество элементов в очереди
func (q *Queue[T]) Len() int {
	return q.size
}

// Cap возвращает текущую ёмкость буфера
func (q *Queue[T]) Cap() int {
	return len(q.entries)
}

// Clear очищает очередь, сохраняя выделенный буфер
func (q *Queue[T]) Clear() {
	var zero T
	for i := range q.entries {
		q.entries[i] = zero
	}
	q.head = 0
	q.size = 0
}

func (q *Queue[T]) grow() {
	next := make([]T, len(q.entries)*2)
	for i := 0; i < q.size; i++ {
		next[i] = q.entries[(q.head+i)&q.mask]
	}
	q.entries = next
	q.mask = len(next) - 1
	q.head = 0
}

func nextPowerOfTwo(x int) int {
	res := 2
	for res < x {
		res <<= 1
	}
	return res
}
