package email

import (
	"context"
	"testing"
)

func TestResendSender_Message(t *testing.T) {
	s := NewResendSender("re_test", "CareCal <noreply@carecal.sg>", "desk@carecal.sg")

	tests := []struct {
		name        string
		req         SendRequest
		wantFrom    string
		wantReplyTo string
		wantTags    int
	}{
		{"defaults", SendRequest{To: []string{"a@carecal.sg"}, Subject: "s"}, "CareCal <noreply@carecal.sg>", "desk@carecal.sg", 0},
		{"overrides", SendRequest{To: []string{"a@carecal.sg"}, From: "ops@carecal.sg", ReplyTo: "ops@carecal.sg"}, "ops@carecal.sg", "ops@carecal.sg", 0},
		{"tagged", SendRequest{To: []string{"a@carecal.sg"}, Tag: "daily_reminder"}, "CareCal <noreply@carecal.sg>", "desk@carecal.sg", 1},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			msg := s.message(tc.req)
			if msg.From != tc.wantFrom || msg.ReplyTo != tc.wantReplyTo {
				t.Errorf("from %q reply-to %q", msg.From, msg.ReplyTo)
			}
			if len(msg.Tags) != tc.wantTags {
				t.Fatalf("tags = %v", msg.Tags)
			}
			if tc.wantTags == 1 && (msg.Tags[0].Name != "kind" || msg.Tags[0].Value != tc.req.Tag) {
				t.Errorf("tag = %+v", msg.Tags[0])
			}
		})
	}
}

func TestResendSender_EmptyBatchMakesNoCall(t *testing.T) {
	s := NewResendSender("re_test", "noreply@carecal.sg", "")
	results, err := s.SendBatch(context.Background(), nil)
	if err != nil || len(results) != 0 {
		t.Errorf("SendBatch(nil) = %v, %v", results, err)
	}
}
