package dialogue

import (
	"math/rand"
	"regexp"
	"strings"
	"unicode/utf8"
)

// Exit-intent detection is regex-first: negations and questions about
// leaving are excluded before the goodbye phrases match, and the plain
// keyword scan only applies to short utterances so 退出 buried in a long
// request does not end the session.

const keywordScanMaxRunes = 15

var exitExcludePatterns = []*regexp.Regexp{
	regexp.MustCompile(`不.*(退出|离开|走|退下|结束)`),
	regexp.MustCompile(`别.*(退出|离开|走|退下|结束)`),
	regexp.MustCompile(`不要.*(退出|离开|走|退下|结束)`),
	regexp.MustCompile(`为什么.*(退出|离开|走|退下|结束)`),
	regexp.MustCompile(`怎么.*(退出|离开|走|退下|结束)`),
	regexp.MustCompile(`如何.*(退出|离开|走|退下|结束)`),
	regexp.MustCompile(`能否.*(退出|离开|走|退下|结束)`),
	regexp.MustCompile(`可以.*(退出|离开|走|退下|结束)`),
	regexp.MustCompile(`会.*(退出|离开|走|退下|结束)`),
	regexp.MustCompile(`什么.*(退出|离开|走|退下|结束)`),
	regexp.MustCompile(`don't.*(leave|exit|quit|bye)`),
	regexp.MustCompile(`not.*(leave|exit|quit|bye)`),
}

var exitExactPatterns = []*regexp.Regexp{
	regexp.MustCompile(`拜拜`),
	regexp.MustCompile(`再见`),
	regexp.MustCompile(`退下`),
	regexp.MustCompile(`走了`),
	regexp.MustCompile(`我?要?走了`),
	regexp.MustCompile(`结束对话`),
	regexp.MustCompile(`退出`),
	regexp.MustCompile(`告辞`),
	regexp.MustCompile(`告退`),
	regexp.MustCompile(`(我|你)?(先)?(要)?离开`),
	regexp.MustCompile(`(我|你)?(先)?下线`),
	regexp.MustCompile(`bye\s*bye`),
	regexp.MustCompile(`goodbye`),
	regexp.MustCompile(`see\s+you`),
	regexp.MustCompile(`see\s+ya`),
}

var exitKeywords = []string{
	"拜拜", "再见", "退下", "走了", "我走了", "我要走了",
	"结束对话", "退出", "下线", "结束", "告辞", "告退", "离开",
	"goodbye", "bye", "bye bye", "byebye", "see you", "see ya",
}

// goodbyeReplies are the canned farewells spoken before close_after_chat
// takes the session down.
var goodbyeReplies = []string{
	"好的，再见！期待下次聊天哦！",
	"那我们下次再聊，拜拜！",
	"再见啦，有需要随时叫我！",
}

// IsExitIntent reports whether text is the user saying goodbye.
func IsExitIntent(text string) bool {
	normalized := strings.ToLower(strings.TrimSpace(text))
	if normalized == "" {
		return false
	}
	for _, p := range exitExcludePatterns {
		if p.MatchString(normalized) {
			return false
		}
	}
	for _, p := range exitExactPatterns {
		if p.MatchString(normalized) {
			return true
		}
	}
	if utf8.RuneCountInString(normalized) <= keywordScanMaxRunes {
		for _, kw := range exitKeywords {
			if strings.Contains(normalized, kw) {
				return true
			}
		}
	}
	return false
}

// GoodbyeReply picks one of the canned farewell lines.
func GoodbyeReply() string {
	return goodbyeReplies[rand.Intn(len(goodbyeReplies))]
}
