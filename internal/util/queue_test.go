package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueueFIFO(t *testing.T) {
	q := NewQueue[int](2)

	for i := 0; i < 100; i++ {
		q.Push(i)
	}
	assert.Equal(t, 100, q.Len())
	assert.Equal(t, 128, q.Cap(), "буфер должен вырасти до степени двойки")

	for i := 0; i < 100; i++ {
		v, ok := q.Pop()
		require.True(t, ok)
		assert.Equal(t, i, v)
	}

	_, ok := q.Pop()
	assert.False(t, ok, "пустая очередь не должна возвращать элементы")
}

func TestQueueWrapAround(t *testing.T) {
	q := NewQueue[int](4)

	// Сдвигаем голову, чтобы запись перешла через границу буфера
	q.Push(1)
	q.Push(2)
	q.Push(3)
	v, _ := q.Pop()
	assert.Equal(t, 1, v)
	v, _ = q.Pop()
	assert.Equal(t, 2, v)

	q.Push(4)
	q.Push(5)
	q.Push(6)
	q.Push(7) // вызывает рост с переносом элементов

	var got []int
	for q.Len() > 0 {
		v, _ := q.Pop()
		got = append(got, v)
	}
	assert.Equal(t, []int{3, 4, 5, 6, 7}, got)
}

func TestQueueClear(t *testing.T) {
	q := NewQueue[string](8)
	q.Push("a")
	q.Push("b")
	q.Clear()

	assert.Equal(t, 0, q.Len())
	_, ok := q.Pop()
	assert.False(t, ok)
}
