package publication

import (
	"fmt"

	"github.com/tweetbridge/tweetbridge/model"
	Logger "github.com/tweetbridge/tweetbridge/utils/log"
)

// formatPostText builds the text actually published. The publish endpoint
// does not attach pre-hosted media, so posts with attachments get a link back
// to the source tweet appended instead.
func formatPostText(post *model.Post) string {
	text := ""
	if post.TranslatedText != nil {
		text = *post.TranslatedText
	}

	media, err := post.Media()
	if err != nil {
		Logger.Log.Warnf("fail to decode media for post %s: %s", post.Id, err)
		return text
	}
	if len(media) == 0 {
		return text
	}

	mediaNoun := "media"
	if len(media) > 1 {
		mediaNoun = "media items"
	}
	return text + fmt.Sprintf("\n\n📸 View %d %s: https://twitter.com/i/status/%s",
		len(media), mediaNoun, post.SourcePostId)
}
