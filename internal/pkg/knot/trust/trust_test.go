package trust

import (
	"testing"

	"github.com/matryer/is"
)

func TestInsertLookupRemove(t *testing.T) {
	is := is.New(t)
	s := NewStore()

	tr := &Trust{DeviceID: 42}
	is.NoErr(s.Insert(1, tr))

	err := s.Insert(1, &Trust{})
	is.True(err == ErrAlreadyExists)

	got, ok := s.Lookup(1)
	is.True(ok)
	is.Equal(got.DeviceID, uint64(42))
	s.Release(got)

	removed, ok := s.Remove(1)
	is.True(ok)
	is.Equal(removed.DeviceID, uint64(42))

	_, ok = s.Lookup(1)
	is.True(!ok)
}

func TestStageSchemaFirstWriteWins(t *testing.T) {
	is := is.New(t)

	tr := &Trust{}
	tr.StageSchema(SchemaEntry{SensorID: 1, Name: "first"})
	tr.StageSchema(SchemaEntry{SensorID: 1, Name: "second"})
	tr.StageSchema(SchemaEntry{SensorID: 2, Name: "other"})

	is.Equal(len(tr.SchemaStaging), 2)
	is.Equal(tr.SchemaStaging[0].Name, "first")
}

func TestFindSchemaUnordered(t *testing.T) {
	is := is.New(t)

	tr := &Trust{Schema: []SchemaEntry{{SensorID: 5, Name: "x"}, {SensorID: 1, Name: "y"}}}

	e, ok := tr.FindSchema(1)
	is.True(ok)
	is.Equal(e.Name, "y")

	_, ok = tr.FindSchema(9)
	is.True(!ok)
}

func TestRemoveConfig(t *testing.T) {
	is := is.New(t)

	tr := &Trust{Config: []ConfigEntry{{SensorID: 1}, {SensorID: 2}, {SensorID: 3}}}
	tr.RemoveConfig(2)

	is.Equal(len(tr.Config), 2)
	for _, c := range tr.Config {
		is.True(c.SensorID != 2)
	}
}

func TestLimitLess(t *testing.T) {
	is := is.New(t)

	low := Limit{IntegerPart: 10, DecimalPart: 5}
	high := Limit{IntegerPart: 10, DecimalPart: 9}
	is.True(low.Less(high))
	is.True(!high.Less(low))

	is.True(Limit{IntegerPart: 9}.Less(Limit{IntegerPart: 10}))
}

func TestDestroyAll(t *testing.T) {
	is := is.New(t)
	s := NewStore()

	s.Insert(1, &Trust{DeviceID: 1})
	s.Insert(2, &Trust{DeviceID: 2})

	released := map[uint64]bool{}
	s.DestroyAll(func(handle uint64, tr *Trust) {
		released[handle] = true
	})

	is.Equal(len(released), 2)
	is.Equal(len(s.Handles()), 0)
}
