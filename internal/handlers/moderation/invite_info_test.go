package moderation

import (
	"context"
	"strings"
	"testing"
)

func TestInviteInfo(t *testing.T) {
	t.Parallel()

	h := newHarness(t, testConfig())
	h.platform.invites["plyoox"] = &Invite{Code: "plyoox", GuildID: 5, GuildName: "Partner", Uses: 3, ApproxMembers: 120}
	inv := h.invocation(moderator())
	ctx := context.Background()

	tests := []struct {
		input string
		want  string
	}{
		{input: "not an invite", want: "The input is not a valid invite."},
		{input: "https://discord.gg/missing", want: "The invite does not exist."},
	}
	for _, tt := range tests {
		resp, err := h.commands.InviteInfo(ctx, inv, tt.input)
		if err != nil {
			t.Fatalf("InviteInfo(%q) error = %v", tt.input, err)
		}
		if resp.Content != tt.want {
			t.Fatalf("InviteInfo(%q) = %q, want %q", tt.input, resp.Content, tt.want)
		}
	}

	resp, err := h.commands.InviteInfo(ctx, inv, "discord.gg/plyoox")
	if err != nil {
		t.Fatalf("InviteInfo() error = %v", err)
	}
	if len(resp.Embeds) != 1 || !strings.Contains(resp.Embeds[0].Fields[0].Value, "3/∞") {
		t.Fatalf("unexpected embed %+v", resp.Embeds)
	}

	resp, err = h.commands.InviteInfoFromMessage(ctx, inv, &Message{Content: "hello there"})
	if err != nil || resp.Content != "This message does not contain an invite." {
		t.Fatalf("InviteInfoFromMessage() = %v, %v", resp, err)
	}
}
