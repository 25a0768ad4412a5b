package aigateway

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNumber_AcceptsLooseModelOutput(t *testing.T) {
	cases := []struct {
		in   string
		want Number
	}{
		{`30`, 30},
		{`0.92`, 0.92},
		{`"30%"`, 30},
		{`"Week 1"`, 1},
		{`"4-6 weeks"`, 4},
		{`"1,500 visits"`, 1500},
		{`"-12.5%"`, -12.5},
		{`"soon"`, 0},
		{`null`, 0},
		{`true`, 0},
		{`{"min":1}`, 0},
	}
	for _, tc := range cases {
		t.Run(tc.in, func(t *testing.T) {
			var n Number
			require.NoError(t, n.UnmarshalJSON([]byte(tc.in)))
			assert.Equal(t, tc.want, n)
		})
	}
}

func TestText_AcceptsScalars(t *testing.T) {
	type step struct {
		Metric Text `json:"metric"`
		Note   Text `json:"note"`
		Owner  Text `json:"owner"`
	}
	r := ExtractJSON[step](`{"metric":50,"note":"50 signups","owner":null}`)
	require.False(t, r.Fallback)
	assert.Equal(t, step{Metric: "50", Note: "50 signups"}, r.Value)
}
