package stormsql_test

import (
	"testing"

	"github.com/mdouchement/unionboard/pkg/stormsql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type row struct {
	ID         string
	Collection string
	Size       int
}

func TestParseSelect(t *testing.T) {
	sc, err := stormsql.ParseSelect("SELECT count(*) FROM records WHERE Collection = 'events'")
	require.NoError(t, err)
	assert.True(t, sc.Count)
	assert.Equal(t, "records", sc.Tablename)

	sc, err = stormsql.ParseSelect("SELECT ID, Collection FROM records ORDER BY CreatedAt DESC LIMIT 2, 5")
	require.NoError(t, err)
	assert.False(t, sc.Count)
	assert.Equal(t, []string{"ID", "Collection"}, sc.SelectedFields)
	assert.Equal(t, []string{"CreatedAt"}, sc.OrderBy)
	assert.True(t, sc.OrderByReversed)
	assert.Equal(t, 2, sc.Skip)
	assert.Equal(t, 5, sc.Limit)
}

func TestParseSelect_Matcher(t *testing.T) {
	cases := []struct {
		where    string
		expected []string
	}{
		{where: "Collection = 'events'", expected: []string{"1", "2"}},
		{where: "Collection != 'events'", expected: []string{"3"}},
		{where: "Size > 10", expected: []string{"2", "3"}},
		{where: "Size <= 10 OR Collection = 'notices'", expected: []string{"1", "3"}},
		{where: "Collection = 'events' AND (Size >= 20 OR ID = '1')", expected: []string{"1", "2"}},
		{where: "ID IN ('1', '3')", expected: []string{"1", "3"}},
		{where: "Collection LIKE 'ev%'", expected: []string{"1", "2"}},
		{where: "Collection LIKE 'ev'", expected: []string{}},
	}

	rows := []*row{
		{ID: "1", Collection: "events", Size: 10},
		{ID: "2", Collection: "events", Size: 20},
		{ID: "3", Collection: "notices", Size: 30},
	}

	for _, c := range cases {
		t.Run(c.where, func(t *testing.T) {
			sc, err := stormsql.ParseSelect("SELECT * FROM records WHERE " + c.where)
			require.NoError(t, err)

			matched := []string{}
			for _, r := range rows {
				ok, err := sc.Matcher.Match(r)
				require.NoError(t, err)
				if ok {
					matched = append(matched, r.ID)
				}
			}
			assert.Equal(t, c.expected, matched)
		})
	}
}

func TestParseSelect_Errors(t *testing.T) {
	for _, sql := range []string{
		"SELEC * FROM records",
		"DELETE FROM records",
		"SELECT max(Size) FROM records",
		"SELECT * FROM records WHERE 'events' = Collection",
		"SELECT * FROM records WHERE Collection <=> 'events'",
		"SELECT * FROM records LIMIT 'a'",
	} {
		_, err := stormsql.ParseSelect(sql)
		assert.Error(t, err, sql)
	}
}
