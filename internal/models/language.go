package models

import "fmt"

// LangEnglish is the only shipped language; keys missing for another language fall back to it
const LangEnglish = "en"

// Translation is a map of message keys to text
type Translation map[string]string

// Translations stores every user-facing text of the bot
var Translations = map[string]Translation{
	LangEnglish: {
		// replies to the invoker
		"server_only":            "Server only.",
		"no_permission":          "⛔ No permission.",
		"missing_bot_permission": "❌ I need **%s** permission.",
		"user_not_in_server":     "User is no longer in the server.",
		"action_failed":          "❌ Failed: %s",
		"not_your_button":        "This button is not for you.",
		"record_not_found":       "Appeal record not found.",
		"no_appeal_pending":      "There is no submitted appeal to decide.",
		"appeal_already_decided": "This appeal was already decided.",
		"appeal_window_expired":  "⛔ Your Discord appeal window has expired. If your first appeal was declined, your last chance is via the website.",
		"appeal_already_used":    "⛔ You already used your Discord appeal. If it gets declined, your last chance is via the website after 30 days.",
		"appeal_form_expired":    "⛔ This appeal form expired. Press **Appeal Ban** again to open a new one.",
		"appeal_empty":           "⛔ Your appeal is empty.",
		"appeals_channel_missing": "Appeals channel not found on the server.",
		"appeal_submitted":       "✅ Appeal submitted. Staff will review it.",
		"invalid_duration":       "❌ Invalid duration. Use e.g. `10m`, `2h`, `1d` (minimum %d seconds).",
		"not_muted":              "That member is not muted.",
		"unknown_command":        "Unknown command.",

		"ban_done":      "✅ Quarantine-banned %s. They can now only see **#%s**.",
		"mute_done":     "✅ Muted %s for **%s**.",
		"unmute_done":   "✅ Unmuted %s.",
		"warn_done":     "✅ Warned %s.",
		"kick_done":     "✅ Kicked %s.",
		"timeout_done":  "✅ Timed out %s for **%d** minutes.",
		"approve_done":  "✅ Approved. Roles restored; Banned role removed.",
		"decline_done":  "✅ Declined. Permanent ban scheduled (~%d s).",

		// direct messages
		"dm_banned":            "🔒 **You were banned in %s.**\n\n**Reason:** %s\n**By:** %s\n\nYou have **%d days** to appeal.\nPress **Appeal Ban** below to submit your Discord appeal.",
		"dm_appeal_approved":   "✅ **Appeal approved**\n\nYour appeal was **accepted**. You can now be active in the server again.\n\nPlease re-read the rules carefully.",
		"dm_appeal_declined":   "❌ **Appeal declined**\n\nYour appeal was **rejected**.\n\nYou will be permanently banned in ~%d seconds.%s",
		"dm_last_chance":       "\nLast-chance appeal: wait **30 days** and use **%s**.",
		"dm_rejoin_permaban":   "🚫 **Permanent ban**\n\nYou repeatedly left and rejoined the server while quarantined.\n\nYou have been permanently banned and can no longer appeal.",
		"dm_rejoin_warning":    "⚠️ **You are still quarantined**\n\nYou left and rejoined the server while quarantined.\n\nThis was counted as **%d/%d**.\nIf you do this **%d times**, you will be permanently banned without appeal.\n\nPlease read **#%s** for next steps.",
		"dm_muted":             "🔇 **You were muted**\n\n**Server:** %s\n**By:** %s\n**Duration:** %s\n**Reason:** %s",
		"dm_unmuted":           "🔊 **You were unmuted**\n\nYour mute in **%s** has expired.",
		"dm_unmuted_manual":    "🔊 **You were unmuted**\n\nA moderator lifted your mute in **%s**.",
		"dm_warned":            "⚠️ **You were warned**\n\n**Server:** %s\n**By:** %s\n**Reason:** %s",
		"dm_kicked":            "👢 **You were kicked**\n\n**Server:** %s\n**By:** %s\n**Reason:** %s",
		"dm_timed_out":         "⏳ **You were timed out**\n\n**Server:** %s\n**By:** %s\n**Minutes:** %d\n**Reason:** %s",

		// staff-facing appeal post
		"appeal_post": "📨 **Ban appeal**\n\n**User:** <@%d> (`%d`)\n**Quarantine-banned by:** <@%d> (`%d`)\n**Reason:** %s\n\n**Appeal:**\n%s\n\n**Note:** This is their **Discord appeal** (%d/%d total).",

		// controls
		"control_appeal":  "Appeal Ban",
		"control_approve": "Approve",
		"control_decline": "Decline",
		"form_title":      "Ban Appeal",
		"form_field":      "Your appeal",

		// moderation log titles
		"log_quarantine_ban":  "🔒 Member quarantine-banned",
		"log_appeal_approved": "📌 Ban Appeal APPROVED",
		"log_appeal_declined": "📌 Ban Appeal DECLINED",
		"log_rejoin_permaban": "🔨 Permanent ban (quarantine evasion)",
		"log_permaban":        "🔨 Permanent ban executed",
		"log_permaban_failed": "⚠️ Permanent ban failed",
		"log_unmute_failed":   "⚠️ Mute could not be lifted",
		"log_muted":           "🔇 Member muted",
		"log_unmuted":         "🔊 Member unmuted",
		"log_warned":          "⚠️ Member warned",
		"log_kicked":          "👢 Member kicked",
		"log_timed_out":       "⏳ Member timed out",

		"no_reason": "No reason provided",
	},
}

// GetTranslation returns the text for key in lang, falling back to English and then to the key itself
func GetTranslation(lang, key string) string {
	if translation, ok := Translations[lang][key]; ok {
		return translation
	}
	if translation, ok := Translations[LangEnglish][key]; ok {
		return translation
	}
	return key
}

// Text formats the English text for key with args
func Text(key string, args ...interface{}) string {
	t := GetTranslation(LangEnglish, key)
	if len(args) == 0 {
		return t
	}
	return fmt.Sprintf(t, args...)
}
