package postgres

// Tables is the allow-list of tables and columns the adapter will touch.
// Identifiers outside it are rejected before any SQL is built.
var Tables = map[string][]string{
	"profiles":        {"id", "username", "display_name", "avatar_url", "bag_pin_hash", "bag_pin_salt", "created_at"},
	"follows":         {"id", "follower_id", "following_id", "created_at"},
	"blocks":          {"id", "blocker_id", "blocked_id", "created_at"},
	"posts":           {"id", "client_token", "owner_id", "space_id", "kind", "body", "media_ref", "poll_options", "like_count", "vote_count", "created_at", "updated_at"},
	"comments":        {"id", "post_id", "parent_id", "author_id", "body", "created_at"},
	"post_likes":      {"id", "post_id", "user_id", "created_at"},
	"poll_votes":      {"id", "post_id", "user_id", "option_index", "created_at"},
	"stories":         {"id", "owner_id", "kind", "body", "media_ref", "poll_options", "privacy_level", "view_count", "reaction_count", "created_at", "expires_at"},
	"story_views":     {"id", "story_id", "viewer_id", "viewed_at"},
	"story_reactions": {"id", "story_id", "user_id", "created_at"},
	"vault_items":     {"id", "owner_id", "type", "title", "category", "content", "metadata", "created_at", "updated_at"},
	"chats":           {"id", "title", "member_ids", "last_message_at"},
	"messages":        {"id", "client_token", "chat_id", "sender_id", "content", "kind", "created_at", "edited_at"},
}
