package notifier

import "fmt"

// Card builders turn a small set of pre-built notification shapes into the
// channel-specific rich payloads Slack and Teams expect.

func str(data map[string]any, key string) string {
	if v, ok := data[key]; ok {
		return fmt.Sprintf("%v", v)
	}
	return ""
}

// cardTitle returns the headline for a notification shape.
func cardTitle(card string, data map[string]any) string {
	switch card {
	case CardLinkCreated:
		return fmt.Sprintf("New link: %s", str(data, "title"))
	case CardMilestone:
		return fmt.Sprintf("%s passed %s clicks", str(data, "title"), str(data, "milestone"))
	case CardAlert:
		return fmt.Sprintf("Alert: %s", str(data, "message"))
	case CardWeeklyReport:
		return "Your weekly link report"
	default:
		return str(data, "title")
	}
}

// cardFields returns label/value pairs for a notification shape.
func cardFields(card string, data map[string]any) [][2]string {
	switch card {
	case CardLinkCreated:
		return [][2]string{
			{"Short URL", str(data, "short_url")},
			{"Destination", str(data, "destination")},
		}
	case CardMilestone:
		return [][2]string{
			{"Link", str(data, "short_url")},
			{"Clicks", str(data, "clicks")},
		}
	case CardAlert:
		return [][2]string{
			{"Severity", str(data, "severity")},
		}
	case CardWeeklyReport:
		return [][2]string{
			{"Total clicks", str(data, "total_clicks")},
			{"Top link", str(data, "top_link")},
			{"New links", str(data, "new_links")},
		}
	default:
		return nil
	}
}

// slackMessage builds a Block Kit message for the given shape.
func slackMessage(card string, data map[string]any) map[string]any {
	title := cardTitle(card, data)

	blocks := []map[string]any{
		{
			"type": "header",
			"text": map[string]any{"type": "plain_text", "text": title, "emoji": true},
		},
	}

	var fieldBlocks []map[string]any
	for _, f := range cardFields(card, data) {
		if f[1] == "" {
			continue
		}
		fieldBlocks = append(fieldBlocks, map[string]any{
			"type": "mrkdwn",
			"text": fmt.Sprintf("*%s:*\n%s", f[0], f[1]),
		})
	}
	if len(fieldBlocks) > 0 {
		blocks = append(blocks, map[string]any{"type": "section", "fields": fieldBlocks})
	}

	return map[string]any{
		"text":   title, // fallback for notifications
		"blocks": blocks,
	}
}

// teamsCard builds a MessageCard for the given shape.
func teamsCard(card string, data map[string]any) map[string]any {
	title := cardTitle(card, data)

	var facts []map[string]string
	for _, f := range cardFields(card, data) {
		if f[1] == "" {
			continue
		}
		facts = append(facts, map[string]string{"name": f[0], "value": f[1]})
	}

	return map[string]any{
		"@type":      "MessageCard",
		"@context":   "https://schema.org/extensions",
		"themeColor": "6366F1",
		"summary":    title,
		"sections": []map[string]any{
			{
				"activityTitle": title,
				"facts":         facts,
				"markdown":      true,
			},
		},
	}
}
