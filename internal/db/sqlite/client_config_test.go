package sqlite

import (
	"context"
	"testing"

	"github.com/iamwavecut/ngmod/internal/db"
)

func TestGetModerationDecodesRulesAndWebhook(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	client := newTestClient(t)

	webhookRef := mustInsertID(t, client,
		"INSERT INTO maybe_webhook (guild_id, channel_id, webhook_id, webhook_token) VALUES (1, 100, 200, 'tok') RETURNING id")
	mustExec(t, client, `INSERT INTO moderation
		(guild_id, active, notify_user, logging_channel, invite_active, invite_actions, invite_allowed, link_list, mod_roles)
		VALUES (1, 1, 1, ?, 1, ?, '[555]', '["example.com"]', '[7, 8]')`,
		webhookRef, `[{"kind":"delete"},{"kind":"tempban","duration":3600,"check":{"kind":"account_age","days":3}}]`)

	cfg, err := client.GetModeration(ctx, 1)
	if err != nil {
		t.Fatalf("get moderation: %v", err)
	}
	if cfg == nil || !cfg.Active || !cfg.NotifyUser {
		t.Fatalf("unexpected config: %+v", cfg)
	}
	rule := cfg.Rule(db.RuleInvite)
	if !rule.Active || len(rule.Actions) != 2 {
		t.Fatalf("unexpected invite rule: %+v", rule)
	}
	if rule.Actions[1].Kind != db.ActionTempban || rule.Actions[1].DurationSeconds != 3600 {
		t.Fatalf("unexpected tempban action: %+v", rule.Actions[1])
	}
	if rule.Actions[1].Check == nil || rule.Actions[1].Check.Days != 3 {
		t.Fatalf("check not decoded: %+v", rule.Actions[1].Check)
	}
	if !cfg.InviteAllowed.Contains(555) || !cfg.LinkList.Contains("example.com") || !cfg.ModRoles.Contains(8) {
		t.Fatalf("collections not decoded: %+v", cfg)
	}
	if !cfg.LinkIsWhitelist {
		t.Fatalf("link_is_whitelist should default to true")
	}
	if cfg.Webhook == nil || cfg.Webhook.WebhookID == nil || *cfg.Webhook.WebhookID != 200 {
		t.Fatalf("webhook not joined: %+v", cfg.Webhook)
	}

	if err := client.InvalidateWebhook(ctx, webhookRef); err != nil {
		t.Fatalf("invalidate webhook: %v", err)
	}
	cfg, err = client.GetModeration(ctx, 1)
	if err != nil {
		t.Fatalf("get moderation after invalidate: %v", err)
	}
	if cfg.Webhook == nil {
		t.Fatalf("webhook reference should survive invalidation")
	}
	if cfg.Webhook.WebhookID != nil || cfg.Webhook.WebhookToken != nil {
		t.Fatalf("credentials should be cleared: %+v", cfg.Webhook)
	}
	if cfg.Webhook.ChannelID == nil || *cfg.Webhook.ChannelID != 100 {
		t.Fatalf("channel should be kept: %+v", cfg.Webhook)
	}
}

func TestMissingConfigsAreNil(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	client := newTestClient(t)

	if cfg, err := client.GetModeration(ctx, 404); err != nil || cfg != nil {
		t.Fatalf("moderation: got %+v, %v", cfg, err)
	}
	if cfg, err := client.GetLogging(ctx, 404); err != nil || cfg != nil {
		t.Fatalf("logging: got %+v, %v", cfg, err)
	}
	if cfg, err := client.GetWelcome(ctx, 404); err != nil || cfg != nil {
		t.Fatalf("welcome: got %+v, %v", cfg, err)
	}
	if cfg, err := client.GetLeveling(ctx, 404); err != nil || cfg != nil {
		t.Fatalf("leveling: got %+v, %v", cfg, err)
	}
	if rule, err := client.GetModerationRule(ctx, 404); err != nil || rule != nil {
		t.Fatalf("rule: got %+v, %v", rule, err)
	}
	if lang, err := client.GetLanguage(ctx, 404); err != nil || lang != "" {
		t.Fatalf("language: got %q, %v", lang, err)
	}
}

func TestGetLoggingSharesWebhookRows(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	client := newTestClient(t)

	ref := mustInsertID(t, client,
		"INSERT INTO maybe_webhook (guild_id, channel_id, webhook_id, webhook_token) VALUES (2, 300, 400, 'secret') RETURNING id")
	mustExec(t, client, "INSERT INTO logging (guild_id, kind, active, channel, exempt_roles) VALUES (2, 'member_ban', 1, ?, '[9]')", ref)
	mustExec(t, client, "INSERT INTO logging (guild_id, kind, active) VALUES (2, 'message_delete', 0)")

	cfg, err := client.GetLogging(ctx, 2)
	if err != nil {
		t.Fatalf("get logging: %v", err)
	}
	if len(cfg.Settings) != 2 {
		t.Fatalf("expected 2 settings, got %d", len(cfg.Settings))
	}
	ban := cfg.Settings["member_ban"]
	if ban == nil || !ban.Active || ban.Channel == nil || *ban.Channel.WebhookToken != "secret" {
		t.Fatalf("unexpected member_ban setting: %+v", ban)
	}
	if !ban.ExemptRoles.Contains(9) {
		t.Fatalf("exempt roles not decoded: %+v", ban.ExemptRoles)
	}
	if del := cfg.Settings["message_delete"]; del == nil || del.Channel != nil {
		t.Fatalf("unexpected message_delete setting: %+v", del)
	}
}

func TestPunishmentsAndRules(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	client := newTestClient(t)

	mustExec(t, client, `INSERT INTO punishments (guild_id, name, reason, actions) VALUES (3, 'spam', 'spamming', '[{"kind":"points","points":4}]')`)
	mustExec(t, client, `INSERT INTO punishments (guild_id, name, actions) VALUES (3, 'raid', '[{"kind":"ban"}]')`)
	mustExec(t, client, "INSERT INTO moderation_rules (rule_id, guild_id, reason) VALUES (77, 3, 'slurs')")
	mustExec(t, client, "INSERT INTO guild_config (id, language) VALUES (3, 'de')")

	punishments, err := client.GetPunishments(ctx, 3)
	if err != nil {
		t.Fatalf("get punishments: %v", err)
	}
	if len(punishments) != 2 || punishments[0].Name != "spam" || punishments[0].Actions[0].Points != 4 {
		t.Fatalf("unexpected punishments: %+v", punishments)
	}
	if punishments[1].Reason != nil {
		t.Fatalf("expected nil reason, got %q", *punishments[1].Reason)
	}

	rule, err := client.GetModerationRule(ctx, 77)
	if err != nil || rule == nil || rule.Reason != "slurs" {
		t.Fatalf("unexpected rule: %+v, %v", rule, err)
	}
	if err := client.DeleteModerationRule(ctx, 77); err != nil {
		t.Fatalf("delete rule: %v", err)
	}
	if rule, _ := client.GetModerationRule(ctx, 77); rule != nil {
		t.Fatalf("rule should be gone")
	}

	if lang, err := client.GetLanguage(ctx, 3); err != nil || lang != "de" {
		t.Fatalf("language: got %q, %v", lang, err)
	}
}
