package webhook_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/awd2211/lnk.day-sub003/internal/webhook"
)

func TestFilters_NilMatchesEverything(t *testing.T) {
	var f *webhook.Filters
	assert.True(t, f.Matches(nil))
	assert.True(t, f.Matches(map[string]any{"anything": 1}))
}

func TestFilters_EmptyMatchesEverything(t *testing.T) {
	f := &webhook.Filters{}
	assert.True(t, f.Matches(map[string]any{"clicks": 5}))
}

func TestFilters_Tags(t *testing.T) {
	f := &webhook.Filters{Tags: []string{"marketing", "launch"}}

	assert.True(t, f.Matches(map[string]any{"tags": []any{"launch", "other"}}))
	assert.True(t, f.Matches(map[string]any{"tags": []string{"marketing"}}))
	assert.False(t, f.Matches(map[string]any{"tags": []any{"sales"}}))
	assert.False(t, f.Matches(map[string]any{}))
}

func TestFilters_LinkIDAliases(t *testing.T) {
	f := &webhook.Filters{LinkIDs: []string{"lnk_1", "lnk_2"}}

	// Producers are inconsistent about field casing; both forms must work.
	assert.True(t, f.Matches(map[string]any{"link_id": "lnk_1"}))
	assert.True(t, f.Matches(map[string]any{"linkId": "lnk_2"}))
	assert.False(t, f.Matches(map[string]any{"link_id": "lnk_9"}))
	assert.False(t, f.Matches(map[string]any{}))
}

func TestFilters_CampaignAndDomain(t *testing.T) {
	f := &webhook.Filters{
		CampaignIDs: []string{"cmp_1"},
		Domains:     []string{"go.lnk.day"},
	}

	match := map[string]any{"campaignId": "cmp_1", "domain": "go.lnk.day"}
	assert.True(t, f.Matches(match))

	// Sub-filters are ANDed: one mismatch fails the whole set.
	assert.False(t, f.Matches(map[string]any{"campaign_id": "cmp_1", "domain": "other.io"}))
	assert.False(t, f.Matches(map[string]any{"campaign_id": "cmp_9", "domain": "go.lnk.day"}))
}

func TestFilters_Threshold(t *testing.T) {
	f := &webhook.Filters{Threshold: &webhook.Threshold{Metric: "clicks", Operator: "gte", Value: 1000}}

	assert.True(t, f.Matches(map[string]any{"clicks": float64(1000)}))
	assert.False(t, f.Matches(map[string]any{"clicks": float64(999)}))

	// The total_ prefixed alias is accepted.
	assert.True(t, f.Matches(map[string]any{"total_clicks": float64(1500)}))

	// Missing or non-numeric metric fails the sub-filter without panicking.
	assert.False(t, f.Matches(map[string]any{}))
	assert.False(t, f.Matches(map[string]any{"clicks": "a lot"}))
}

func TestFilters_ThresholdOperators(t *testing.T) {
	data := map[string]any{"clicks": float64(10)}
	cases := []struct {
		op    string
		value float64
		want  bool
	}{
		{"gt", 9, true}, {"gt", 10, false},
		{"gte", 10, true}, {"gte", 11, false},
		{"lt", 11, true}, {"lt", 10, false},
		{"lte", 10, true}, {"lte", 9, false},
		{"eq", 10, true}, {"eq", 9, false},
		{"between", 10, false}, // unknown operator never matches
	}
	for _, tc := range cases {
		f := &webhook.Filters{Threshold: &webhook.Threshold{Metric: "clicks", Operator: tc.op, Value: tc.value}}
		assert.Equal(t, tc.want, f.Matches(data), "%s %v", tc.op, tc.value)
	}
}

func TestFilters_Deterministic(t *testing.T) {
	f := &webhook.Filters{
		Tags:      []string{"a"},
		Threshold: &webhook.Threshold{Metric: "clicks", Operator: "gt", Value: 5},
	}
	data := map[string]any{"tags": []any{"a"}, "clicks": float64(6)}
	first := f.Matches(data)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, f.Matches(data))
	}
}
