// Package notify delivers generation outcomes back to the chat channel that
// requested them. The only concrete channel is LINE push messaging; the
// message catalog is kept separate so other channels can reuse it.
package notify

import (
	"fmt"

	"golang.org/x/text/language"

	"motionbooth/internal/domain"
)

var supported = []language.Tag{
	language.Chinese, // catalog default
	language.English,
}

var matcher = language.NewMatcher(supported)

// matchLocale maps a free-form locale string onto a catalog language.
// Traditional and simplified variants, region subtags and casing all collapse
// to the base language; anything unparseable falls back to Chinese.
func matchLocale(locale string) language.Tag {
	if locale == "" {
		return supported[0]
	}
	tag, err := language.Parse(locale)
	if err != nil {
		return supported[0]
	}
	_, idx, _ := matcher.Match(tag)
	return supported[idx]
}

type catalogEntry struct {
	completed      string
	completedBonus string
	progress       string
	summary        string
	summaryAllDone string
	failurePrefix  string
	gaveUp         string
	reasons        map[string]string
}

var catalog = map[language.Tag]catalogEntry{
	language.Chinese: {
		completed:      "🎉 您的AI视频生成完成！\n\n✨ 这是将您的照片转换成生动视频的结果：",
		completedBonus: "🎁 好消息！您之前超时的视频已经完成，点数不会扣除：",
		progress:       "🎬 视频生成中（%d/%d）…",
		summary:        "🔄 检查完成：%d 个视频已送达，%d 个仍在生成中",
		summaryAllDone: "🔄 检查完成：%d 个视频已送达",
		failurePrefix:  "❌ 视频生成失败\n\n原因: %s\n\n💎 您的点数已返还，请稍后重试或联系客服",
		gaveUp:         "⏳ 视频生成时间较长，可能仍在处理中\n\n生成可能已完成，请稍后点击状态检查获取结果\n\n💎 您的点数已先行返还",
		reasons: map[string]string{
			"content_rejected":    "内容未通过审核，请换一张照片试试",
			"provider_failed":     "生成服务处理失败",
			"service_unavailable": "生成服务暂时不可用",
			"quota_exceeded":      "本月生成额度已用完",
		},
	},
	language.English: {
		completed:      "🎉 Your AI video is ready!\n\n✨ Here is your photo brought to life:",
		completedBonus: "🎁 Good news! Your earlier video finished after all. No credits were charged:",
		progress:       "🎬 Generating your video (%d/%d)…",
		summary:        "🔄 Check finished: %d video(s) delivered, %d still generating",
		summaryAllDone: "🔄 Check finished: %d video(s) delivered",
		failurePrefix:  "❌ Video generation failed\n\nReason: %s\n\n💎 Your credit has been refunded, please try again later",
		gaveUp:         "⏳ Your video is taking longer than usual and may still be processing\n\nIt may already be finished, so please run a status check later to fetch the result\n\n💎 Your credit has been refunded in the meantime",
		reasons: map[string]string{
			"content_rejected":    "the content did not pass moderation, please try another photo",
			"provider_failed":     "the generation service reported a failure",
			"service_unavailable": "the generation service is temporarily unavailable",
			"quota_exceeded":      "your monthly generation quota is used up",
		},
	},
}

func entryFor(locale string) catalogEntry {
	return catalog[matchLocale(locale)]
}

// CompletedText renders the text that accompanies a delivered video.
func CompletedText(locale string, bonus bool) string {
	e := entryFor(locale)
	if bonus {
		return e.completedBonus
	}
	return e.completed
}

// FailedText renders the failure message for a reason kind. An unknown kind
// falls back to the persisted raw message so the user never sees a blank.
func FailedText(locale, reasonKind, rawMessage string) string {
	e := entryFor(locale)
	// A spent poll budget is not a definitive failure: the provider may still
	// finish and the recheck path delivers late results, so the user is
	// pointed at the status check instead of being told to resubmit.
	if reasonKind == "give_up" {
		return e.gaveUp
	}
	reason, ok := e.reasons[reasonKind]
	if !ok {
		reason = rawMessage
	}
	// Quota exhaustion never consumed a credit, so the refund line would lie.
	if reasonKind == "quota_exceeded" {
		return "❌ " + reason
	}
	return fmt.Sprintf(e.failurePrefix, reason)
}

// ProgressText renders a best-effort in-flight update.
func ProgressText(locale string, state domain.ProviderState, attempt, budget int) string {
	return fmt.Sprintf(entryFor(locale).progress, attempt, budget)
}

// SummaryText renders the result of a recheck pass.
func SummaryText(locale string, completed, stillRunning int) string {
	e := entryFor(locale)
	if stillRunning == 0 {
		return fmt.Sprintf(e.summaryAllDone, completed)
	}
	return fmt.Sprintf(e.summary, completed, stillRunning)
}
