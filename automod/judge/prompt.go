package judge

import (
	"fmt"
	"strings"

	"github.com/mentionmod/mentionmod/automod/event"
)

const spamIndicators = `Common indicators of mention spam on Misskey and other fediverse servers:
- invitation links to chat servers (eg "discord.gg/..."), crypto, gambling, adult content, or "earn money" schemes
- messages which mention the bot (and often many other accounts) without any relationship to a conversation
- new or empty accounts: very few followers, no profile description, random-looking usernames
- the same text posted at many accounts, or text embedded in attached images to evade text filters
- urgent calls to action ("join now", "click here", "limited time")

Indicators that a message is NOT spam:
- a genuine question, reply, or conversation addressed to the bot, even if short or rude
- links which are relevant to the conversation
- accounts with a normal follower history and a meaningful profile`

func systemPrompt(categories CategorySet) string {
	return fmt.Sprintf(`You are a careful spam moderator for a Misskey server. You receive a report about a single note which mentioned the moderation bot, and decide whether the note is spam.

%s

Deleting a note and suspending its author is a severe action. Only classify as "spam" when you are confident. The possible results are: %s.`, spamIndicators, categories)
}

func reasoningPrompt(report event.EvidenceReport) string {
	return `Here is the report about the note:

` + string(report) + `

Think step by step about whether this note is spam. Consider the author's account metadata, the message body, and any text extracted from attached images. Write out your reasoning. Do not give a final answer yet.`
}

func decisionPrompt(categories CategorySet) string {
	quoted := make([]string, len(categories))
	for i, c := range categories {
		quoted[i] = fmt.Sprintf("%q", string(c))
	}
	return fmt.Sprintf(`Based on your reasoning above, give your final decision.

Respond with exactly one JSON object and nothing else (no markdown, no code fences, no other text), with these two keys:
- "reasoning": a short summary of your reasoning (string)
- "result": one of %s

Example: {"reasoning": "...", "result": %s}`, strings.Join(quoted, ", "), quoted[len(quoted)-1])
}
