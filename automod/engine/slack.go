package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"

	"github.com/mentionmod/mentionmod/util"
)

type SlackNotifier struct {
	SlackWebhookURL string
	// Base URL of the instance, for links to notes and users
	InstanceURL string
	Client      *http.Client
}

var _ Notifier = (*SlackNotifier)(nil)

func (n *SlackNotifier) SendAction(ctx context.Context, rep *ActionReport) error {
	if n.SlackWebhookURL == "" {
		return nil
	}
	return n.sendSlackMsg(ctx, n.slackBody(rep))
}

type SlackWebhookBody struct {
	Text string `json:"text"`
}

// Sends a simple slack message to a channel via "incoming webhook".
//
// The slack incoming webhook must be already configured in the slack workplace.
func (n *SlackNotifier) sendSlackMsg(ctx context.Context, msg string) error {
	// loosely based on: https://golangcode.com/send-slack-messages-without-a-library/

	body, err := json.Marshal(SlackWebhookBody{Text: msg})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.SlackWebhookURL, bytes.NewBuffer(body))
	if err != nil {
		return err
	}
	req.Header.Add("Content-Type", "application/json")
	client := n.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	buf := new(bytes.Buffer)
	buf.ReadFrom(resp.Body)
	if resp.StatusCode != 200 || buf.String() != "ok" {
		return fmt.Errorf("failed slack webhook POST request. status=%d", resp.StatusCode)
	}
	return nil
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

func (n *SlackNotifier) slackBody(rep *ActionReport) string {
	m := rep.Mention
	base := strings.TrimSuffix(n.InstanceURL, "/")
	msg := "⚠️ Mention Spam Action ⚠️\n"
	msg += fmt.Sprintf("`%s` / `%s` / <%s/notes/%s|note> / <%s/admin/user/%s|admin>\n",
		m.AuthorHandle(),
		m.AuthorID,
		base, m.NoteID,
		base, m.AuthorID,
	)
	msg += fmt.Sprintf("Deleted: %s / Suspended: %s\n", yesNo(rep.Deleted), yesNo(rep.Suspended))
	if len(rep.Suppressed) > 0 {
		var parts []string
		for action, reason := range rep.Suppressed {
			parts = append(parts, action+"="+reason)
		}
		sort.Strings(parts)
		msg += fmt.Sprintf("Suppressed: `%s`\n", strings.Join(parts, ", "))
	}
	for _, err := range rep.Errors {
		msg += fmt.Sprintf("Error: %s\n", err)
	}
	if text := strings.TrimSpace(m.Text); text != "" {
		if short := util.TruncateGraphemes(text, 280); short != text {
			text = short + "…"
		}
		msg += fmt.Sprintf("```%s```\n", text)
	}
	return msg
}
