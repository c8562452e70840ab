package evidence

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/mentionmod/mentionmod/automod/event"
	"github.com/mentionmod/mentionmod/util"
)

// Author descriptions are cut to this many characters (grapheme clusters) to bound prompt size.
const DescriptionMaxChars = 300

type ocrEntry struct {
	Attachment int    `json:"attachment"`
	Extractor  string `json:"extractor"`
	Text       string `json:"text"`
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

// Renders everything judges get to see about a mention as one self-contained text.
//
// Pure and deterministic: identical inputs always give byte-identical output. OCR results are sorted by attachment then extractor, regardless of input order.
func FormatReport(m event.Mention, p event.AuthorProfile, ocr []event.OcrResult, bot event.BotIdentity) event.EvidenceReport {
	var b strings.Builder

	fmt.Fprintf(&b, "Bot account: %s", bot.Handle())
	if bot.Name != "" {
		fmt.Fprintf(&b, " (%q)", bot.Name)
	}
	b.WriteString("\n\n")

	b.WriteString("## Author\n")
	fmt.Fprintf(&b, "Handle: %s\n", m.AuthorHandle())
	if m.AuthorName != "" {
		fmt.Fprintf(&b, "Display name: %q\n", util.NormalizeText(m.AuthorName))
	} else {
		b.WriteString("Display name: (none)\n")
	}
	if m.AuthorHost == "" {
		fmt.Fprintf(&b, "Instance: local (same server as the bot)\n")
	} else {
		fmt.Fprintf(&b, "Instance: %s (remote)\n", m.AuthorHost)
	}
	fmt.Fprintf(&b, "Followers: %d\n", p.FollowersCount)
	fmt.Fprintf(&b, "Following: %d\n", p.FollowingCount)
	fmt.Fprintf(&b, "Author follows bot: %s\n", yesNo(p.IsFollowingBot))
	fmt.Fprintf(&b, "Bot follows author: %s\n", yesNo(p.IsFollowedByBot))
	fmt.Fprintf(&b, "Suspended: %s\n", yesNo(p.IsSuspended))
	if p.Description == nil || strings.TrimSpace(*p.Description) == "" {
		b.WriteString("Profile description: (none)\n")
	} else {
		fmt.Fprintf(&b, "Profile description: %q\n", util.TruncateGraphemes(util.NormalizeText(*p.Description), DescriptionMaxChars))
	}
	b.WriteString("\n")

	b.WriteString("## Message\n")
	if strings.TrimSpace(m.Text) == "" {
		b.WriteString("(no text)\n")
	} else {
		b.WriteString(util.NormalizeText(m.Text))
		b.WriteString("\n")
	}
	b.WriteString("\n")

	b.WriteString("## Attachments\n")
	if len(m.Attachments) == 0 {
		b.WriteString("(none)\n")
	}
	for i, a := range m.Attachments {
		fmt.Fprintf(&b, "%d: %s\n", i, a.Type)
	}
	b.WriteString("\n")

	b.WriteString("## Text extracted from images (JSON)\n")
	entries := make([]ocrEntry, len(ocr))
	for i, r := range ocr {
		entries[i] = ocrEntry{Attachment: r.Attachment, Extractor: r.Extractor, Text: r.Text}
	}
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].Attachment != entries[j].Attachment {
			return entries[i].Attachment < entries[j].Attachment
		}
		return entries[i].Extractor < entries[j].Extractor
	})
	// a slice of plain structs always marshals
	buf, _ := json.MarshalIndent(entries, "", "  ")
	b.Write(buf)
	b.WriteString("\n")

	return event.EvidenceReport(b.String())
}
