package main

import (
	"context"
	"testing"

	"github.com/NicolasHaas/gocollab/pkg/model"
	"github.com/NicolasHaas/gocollab/pkg/store"
)

func TestCommandUnbanAndDeleteMessage(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	if err := st.CreateBan(ctx, &model.Ban{IP: "198.51.100.4"}); err != nil {
		t.Fatalf("CreateBan: %v", err)
	}
	msg := &model.Message{Node: "vm0", Username: "alice", Body: "oops"}
	if err := st.CreateMessage(ctx, msg); err != nil {
		t.Fatalf("CreateMessage: %v", err)
	}

	cmd := command{unban: "198.51.100.4", deleteMessage: msg.ID}
	if !cmd.any() {
		t.Fatal("command with actions reports none")
	}
	if err := cmd.run(st); err != nil {
		t.Fatalf("run: %v", err)
	}

	if bans, _ := st.ListBans(ctx); len(bans) != 0 {
		t.Errorf("bans left after unban: %v", bans)
	}
	if msgs, _ := st.ListMessages(ctx, model.MessageFilters{}); len(msgs) != 0 {
		t.Errorf("messages left after delete: %v", msgs)
	}
	if (command{}).any() {
		t.Error("empty command reports actions")
	}
}
