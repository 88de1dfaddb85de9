package model

import (
	"regexp"
	"strconv"
)

var tweetIDPattern = regexp.MustCompile(`/status(?:es)?/(\d+)`)

// ExtractTweetID parses the numeric tweet id out of a canonical tweet URL
// such as https://x.com/user/status/1234567890. Returns 0 when the link
// carries no id.
func ExtractTweetID(tweetLink string) int64 {
	m := tweetIDPattern.FindStringSubmatch(tweetLink)
	if m == nil {
		return 0
	}
	id, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return 0
	}
	return id
}
