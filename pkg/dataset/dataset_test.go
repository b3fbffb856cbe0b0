package dataset

import (
	"encoding/json"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sample(rows ...Record) *Dataset {
	return &Dataset{
		Columns: []string{"Month", "Revenue", "Costs"},
		Records: rows,
		Source:  "q1.xlsx",
	}
}

func TestStorePutGet(t *testing.T) {
	s := NewStore()

	_, ok := s.Get("u1")
	assert.False(t, ok, "unknown identity should be absent")

	a := sample(Record{"Month": "Jan", "Revenue": json.Number("100")})
	s.Put("u1", a)

	got, ok := s.Get("u1")
	require.True(t, ok)
	assert.Equal(t, 1, got.Len())
	assert.Equal(t, "Jan", got.Records[0]["Month"])
}

func TestStoreOverwrite(t *testing.T) {
	s := NewStore()

	a := sample(Record{"Month": "Jan"})
	b := sample(Record{"Month": "Feb"}, Record{"Month": "Mar"})

	s.Put("u1", a)
	s.Put("u1", b)

	got, ok := s.Get("u1")
	require.True(t, ok)
	assert.Equal(t, 2, got.Len())
	assert.Equal(t, "Feb", got.Records[0]["Month"])
	assert.Equal(t, 1, s.Len())
}

func TestStorePutCopies(t *testing.T) {
	s := NewStore()

	a := sample(Record{"Month": "Jan"})
	s.Put("u1", a)
	a.Records[0]["Month"] = "changed"
	a.Columns[0] = "changed"

	got, _ := s.Get("u1")
	assert.Equal(t, "Jan", got.Records[0]["Month"])
	assert.Equal(t, "Month", got.Columns[0])
}

func TestStoreIdentitiesIndependent(t *testing.T) {
	s := NewStore()
	s.Put("u1", sample(Record{"Month": "Jan"}))
	s.Put("u2", sample(Record{"Month": "Feb"}))

	s.Delete("u1")

	_, ok := s.Get("u1")
	assert.False(t, ok)
	got, ok := s.Get("u2")
	require.True(t, ok)
	assert.Equal(t, "Feb", got.Records[0]["Month"])
}

func TestStoreConcurrent(t *testing.T) {
	s := NewStore()
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			s.Put("shared", sample(Record{"Month": "Jan"}))
		}()
		go func() {
			defer wg.Done()
			_, _ = s.Get("shared")
		}()
	}
	wg.Wait()

	_, ok := s.Get("shared")
	assert.True(t, ok)
}

func TestOrderedJSON(t *testing.T) {
	ds := sample(
		Record{"Costs": json.Number("40.5"), "Revenue": json.Number("100"), "Month": "Jan"},
		Record{"Month": "Feb", "Revenue": json.Number("120")},
	)

	out, err := ds.OrderedJSON()
	require.NoError(t, err)
	assert.Equal(t,
		`[{"Month":"Jan","Revenue":100,"Costs":40.5},{"Month":"Feb","Revenue":120}]`,
		string(out))

	again, err := ds.OrderedJSON()
	require.NoError(t, err)
	assert.Equal(t, out, again, "serialisation must be deterministic")
}

func TestOrderedJSONExtraKeys(t *testing.T) {
	ds := &Dataset{
		Columns: []string{"b"},
		Records: []Record{{"z": 1, "b": true, "a": nil}},
	}

	out, err := ds.OrderedJSON()
	require.NoError(t, err)
	assert.Equal(t, `[{"b":true,"a":null,"z":1}]`, string(out))
}

func TestOrderedJSONEmpty(t *testing.T) {
	out, err := (&Dataset{}).OrderedJSON()
	require.NoError(t, err)
	assert.Equal(t, "[]", string(out))
}

func TestCloneNil(t *testing.T) {
	var ds *Dataset
	assert.Nil(t, ds.Clone())
	assert.Equal(t, 0, ds.Len())
}
