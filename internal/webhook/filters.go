package webhook

import "encoding/json"

// Threshold compares a numeric metric in the event data against a value.
type Threshold struct {
	Metric   string  `json:"metric"`
	Operator string  `json:"operator"` // gt, gte, lt, lte, eq
	Value    float64 `json:"value"`
}

// Filters is an endpoint's optional predicate set. All configured sub-filters
// must match for a delivery to proceed; an absent filter set matches
// everything.
type Filters struct {
	Tags        []string   `json:"tags,omitempty"`
	LinkIDs     []string   `json:"link_ids,omitempty"`
	CampaignIDs []string   `json:"campaign_ids,omitempty"`
	Domains     []string   `json:"domains,omitempty"`
	Threshold   *Threshold `json:"threshold,omitempty"`
}

// Matches evaluates the filter set against event data. Evaluation never
// panics; data of an unexpected shape simply fails the sub-filter.
func (f *Filters) Matches(data map[string]any) bool {
	if f == nil {
		return true
	}

	if len(f.Tags) > 0 && !anyTagMatches(f.Tags, data) {
		return false
	}
	if len(f.LinkIDs) > 0 && !fieldInList(data, f.LinkIDs, "link_id", "linkId") {
		return false
	}
	if len(f.CampaignIDs) > 0 && !fieldInList(data, f.CampaignIDs, "campaign_id", "campaignId") {
		return false
	}
	if len(f.Domains) > 0 && !fieldInList(data, f.Domains, "domain") {
		return false
	}
	if f.Threshold != nil && !f.Threshold.matches(data) {
		return false
	}
	return true
}

// anyTagMatches reports whether at least one configured tag appears in the
// event's tag list.
func anyTagMatches(want []string, data map[string]any) bool {
	eventTags := stringList(data, "tags")
	if len(eventTags) == 0 {
		return false
	}
	for _, w := range want {
		for _, t := range eventTags {
			if w == t {
				return true
			}
		}
	}
	return false
}

// fieldInList reports whether the event's field (checked under both a
// snake_case and camelCase alias, since producers are inconsistent) is a
// member of the configured list.
func fieldInList(data map[string]any, list []string, keys ...string) bool {
	var value string
	for _, k := range keys {
		if v, ok := data[k]; ok {
			if s, ok := v.(string); ok && s != "" {
				value = s
				break
			}
		}
	}
	if value == "" {
		return false
	}
	for _, item := range list {
		if item == value {
			return true
		}
	}
	return false
}

func (t *Threshold) matches(data map[string]any) bool {
	metric, ok := numericField(data, t.Metric)
	if !ok {
		metric, ok = numericField(data, "total_"+t.Metric)
	}
	if !ok {
		return false
	}

	switch t.Operator {
	case "gt":
		return metric > t.Value
	case "gte":
		return metric >= t.Value
	case "lt":
		return metric < t.Value
	case "lte":
		return metric <= t.Value
	case "eq":
		return metric == t.Value
	default:
		return false
	}
}

// numericField extracts a number from event data, tolerating the types JSON
// decoding produces.
func numericField(data map[string]any, key string) (float64, bool) {
	v, ok := data[key]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

// stringList extracts a []string from event data, accepting both []string and
// the []any that json.Unmarshal produces.
func stringList(data map[string]any, key string) []string {
	switch v := data[key].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}
