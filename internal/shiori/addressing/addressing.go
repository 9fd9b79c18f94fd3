// Package addressing decides whether an incoming message is meant for the bot.
package addressing

import (
	"regexp"
	"strings"

	"github.com/bdobrica/shiori/internal/shiori/distribution"
	"github.com/bdobrica/shiori/internal/shiori/identity"
)

// NeedsResponse reports whether the bot must answer text sent by senderID to
// dist. Direct conversations (nobody but the bot and the sender) always get
// an answer; otherwise the text must mention the bot's first name, last name
// or tag slug, case-insensitively.
func NeedsResponse(bot identity.Identity, senderID string, dist *distribution.Distribution, text string) bool {
	if len(dist.Others(bot.ID, senderID)) == 0 {
		return true
	}
	re := mentionPattern(bot)
	if re == nil {
		return false
	}
	return re.MatchString(text)
}

func mentionPattern(bot identity.Identity) *regexp.Regexp {
	var alts []string
	for _, name := range []string{bot.FirstName, bot.LastName, bot.Tag.Slug} {
		if name = strings.TrimSpace(name); name != "" {
			alts = append(alts, regexp.QuoteMeta(name))
		}
	}
	if len(alts) == 0 {
		return nil
	}
	return regexp.MustCompile(`(?i)(?:` + strings.Join(alts, "|") + `)`)
}
