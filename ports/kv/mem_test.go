package kv

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func Test_Memory(t *testing.T) {
	type Foo struct {
		Name string
		Age  int
	}
	s := NewMemStore()

	_, err := Get[Foo](context.Background(), s, "foobar")
	require.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, Put[Foo](context.Background(), s, "p1", Foo{Name: "P1", Age: 10}))
	require.NoError(t, Put[Foo](context.Background(), s, "p2", Foo{Name: "P2", Age: 20}))

	loaded, err := Get[Foo](context.Background(), s, "p1")
	require.NoError(t, err)
	require.Equal(t, Foo{Name: "P1", Age: 10}, loaded)

	keys, err := s.Keys(context.Background())
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"p1", "p2"}, keys)

	require.NoError(t, s.Delete(context.Background(), "p1"))
	_, err = Get[Foo](context.Background(), s, "p1")
	require.ErrorIs(t, err, ErrNotFound)
}
