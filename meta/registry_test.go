package meta

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type client struct {
	Id   int    `db:"id,key,identity"`
	Name string `db:"name,size=50"`
}

type order struct {
	Id       int       `db:",key,identity,seq=order_seq"`
	ClientId int       `db:"client_id"`
	Placed   time.Time `db:"placed_at"`
	Note     *string   `db:",default=none"`
	Scratch  string    `db:"-"`
	internal int

	Client *client `nav:"ClientId=Id"`
	Lines  []line  `nav:"Id=OrderId"`
}

type line struct {
	ID       int
	OrderId  int
	Quantity int
}

func TestRegistryReflectsTags(t *testing.T) {
	r := NewRegistry()
	e, err := r.EntityOf(&order{})
	require.NoError(t, err)

	assert.Equal(t, "order", e.Name)
	assert.Equal(t, "order", e.Table)

	var names []string
	for _, c := range e.Columns {
		names = append(names, c.Name)
	}
	assert.Equal(t, []string{"Id", "client_id", "placed_at", "Note"}, names)

	id := e.Column("Id")
	require.NotNil(t, id)
	assert.True(t, id.Key)
	assert.True(t, id.Identity)
	assert.Equal(t, "order_seq", id.Sequence)
	assert.Same(t, id, e.Identity())

	note := e.Column("Note")
	assert.True(t, note.Nullable)
	assert.Equal(t, "none", note.Default)

	assert.Nil(t, e.Column("Scratch"))
	assert.Nil(t, e.Column("internal"))

	cl := e.Navigation("Client")
	require.NotNil(t, cl)
	assert.Equal(t, "client", cl.Target)
	assert.False(t, cl.Many)
	assert.Equal(t, []KeyPair{{Local: "ClientId", Foreign: "Id"}}, cl.Keys)

	lines := e.Navigation("Lines")
	require.NotNil(t, lines)
	assert.True(t, lines.Many)
	assert.Equal(t, "line", lines.Target)
}

func TestRegistryResolvesNavigationTargetsLazily(t *testing.T) {
	r := NewRegistry()
	_, err := r.EntityOf(order{})
	require.NoError(t, err)

	l, err := r.Entity("line")
	require.NoError(t, err)
	require.Len(t, l.Keys(), 1)
	assert.Equal(t, "ID", l.Keys()[0].Field)
}

func TestRegistrySnakeNaming(t *testing.T) {
	r := NewRegistry(WithNaming(SnakeNaming{}))
	e, err := r.EntityOf([]line{})
	require.NoError(t, err)
	assert.Equal(t, "lines", e.Table)
	assert.Equal(t, "order_id", e.Column("OrderId").Name)
	assert.Equal(t, "id", e.Column("ID").Name)
}

func TestRegistryUnknownEntity(t *testing.T) {
	r := NewRegistry()
	_, err := r.Entity("Nope")
	assert.True(t, errors.Is(err, ErrUnknownEntity))

	_, err = r.EntityOf(42)
	assert.True(t, errors.Is(err, ErrUnknownEntity))
}

func TestRegistryExplicitEntity(t *testing.T) {
	r := NewRegistry()
	err := r.Register(&Entity{
		Name: "Demo",
		Columns: []*Column{
			{Field: "Id", Key: true, Identity: true},
			{Field: "Code", DBType: "varchar"},
		},
	})
	require.NoError(t, err)

	e, err := r.Entity("Demo")
	require.NoError(t, err)
	assert.Equal(t, "Demo", e.Table)
	assert.Equal(t, "Code", e.Column("Code").Name)

	err = r.Register(&Entity{Name: "Demo"})
	assert.Error(t, err)
}

func TestRegisterRejectsDuplicateColumns(t *testing.T) {
	r := NewRegistry()
	err := r.Register(&Entity{
		Name:    "Bad",
		Columns: []*Column{{Field: "A", Name: "x"}, {Field: "B", Name: "x"}},
	})
	assert.Error(t, err)
}

func TestRegistryConcurrentFirstUse(t *testing.T) {
	r := NewRegistry()
	var wg sync.WaitGroup
	results := make([]*Entity, 16)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			e, err := r.EntityOf(client{})
			if err == nil {
				results[i] = e
			}
		}(i)
	}
	wg.Wait()
	for _, e := range results {
		assert.Same(t, results[0], e)
	}
}

func TestEntityValue(t *testing.T) {
	r := NewRegistry()
	e, err := r.EntityOf(client{})
	require.NoError(t, err)

	v, err := e.Value(&client{Id: 3, Name: "x"}, "Name")
	require.NoError(t, err)
	assert.Equal(t, "x", v)

	v, err = e.Value(map[string]any{"Id": 9}, "Id")
	require.NoError(t, err)
	assert.Equal(t, 9, v)

	_, err = e.Value(client{}, "Missing")
	assert.Error(t, err)
}

func TestRowsResolveByName(t *testing.T) {
	r := NewRegistry()
	_, err := r.RegisterType(client{})
	require.NoError(t, err)

	row := Row{Entity: "client", Values: map[string]any{"Name": "acme"}}
	e, err := r.EntityOf(row)
	require.NoError(t, err)
	assert.Equal(t, "client", e.Name)

	v, err := e.Value(row, "Name")
	require.NoError(t, err)
	assert.Equal(t, "acme", v)
	v, err = e.Value(&row, "Id")
	require.NoError(t, err)
	assert.Nil(t, v)

	e, err = r.EntityOf([]Row{row, row})
	require.NoError(t, err)
	assert.Equal(t, "client", e.Name)

	_, err = r.EntityOf([]Row{row, {Entity: "order"}})
	assert.Error(t, err)
	_, err = r.EntityOf([]Row{})
	assert.True(t, errors.Is(err, ErrUnknownEntity))
	_, err = r.EntityOf(Row{Entity: "nope"})
	assert.True(t, errors.Is(err, ErrUnknownEntity))
}
