package query_test

import (
	"net/url"
	"testing"

	"github.com/forgeapi/forgeapi/pkg/query"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseValues(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		raw string

		want    query.Series
		wantErr bool
	}{
		"Empty query": {raw: ""},
		"Every parameter": {
			raw: "fields=total,customer.name&include=customer&sort=-total,status&page=2&pageSize=10" +
				"&filter[status]=open&filter[total][gt]=5&unknown=1",
			want: query.Series{
				Fields: []string{"total", "customer.name"},
				Joins:  []query.Join{{Relationship: "customer", Type: query.JoinLeft}},
				Sort:   []query.Sort{{Field: "total", Desc: true}, {Field: "status"}},
				Filters: []query.Filter{
					{Field: "status", Op: query.OpEq, Value: "open"},
					{Field: "total", Op: query.OpGt, Value: "5"},
				},
				Page:     2,
				PageSize: 10,
			},
		},
		"Repeated filters are all kept": {
			raw: "filter[status][ne]=open&filter[status][ne]=paid",
			want: query.Series{Filters: []query.Filter{
				{Field: "status", Op: query.OpNe, Value: "open"},
				{Field: "status", Op: query.OpNe, Value: "paid"},
			}},
		},
		"Blank list items are skipped": {raw: "fields=id,,total, ", want: query.Series{Fields: []string{"id", "total"}}},

		"Error on invalid page":         {raw: "page=first", wantErr: true},
		"Error on negative page size":   {raw: "pageSize=-3", wantErr: true},
		"Error on empty sort field":     {raw: "sort=-", wantErr: true},
		"Error on unclosed filter":      {raw: "filter[status=open", wantErr: true},
		"Error on empty filter field":   {raw: "filter[]=open", wantErr: true},
		"Error on too many filter keys": {raw: "filter[a][eq][x]=1", wantErr: true},
		"Error on stray filter suffix":  {raw: "filter[a]x=1", wantErr: true},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			values, err := url.ParseQuery(tc.raw)
			require.NoError(t, err, "Setup: failed to parse query string")

			got, err := query.ParseValues(values)
			if tc.wantErr {
				require.ErrorIs(t, err, query.ErrInvalidSeries, "ParseValues should fail with an invalid series error")
				return
			}
			require.NoError(t, err, "ParseValues should succeed")
			assert.Equal(t, tc.want, got, "unexpected parsed series")
		})
	}
}
