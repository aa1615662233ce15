package objid

import "testing"

func TestChatInstanceIDDeterministic(t *testing.T) {
	a := ChatInstanceID("telegram", "", "")
	b := ChatInstanceID("telegram", "", "")
	if a != b {
		t.Fatalf("same tuple must derive the same id: %s vs %s", a, b)
	}
	if a == ChatInstanceID("discord", "", "") {
		t.Fatalf("different protocols must derive different ids")
	}
	if a == ChatInstanceID("telegram", "libera", "") {
		t.Fatalf("network must discriminate instances")
	}
	if ChatInstanceID("irc", "libera", "") == ChatInstanceID("irc", "", "libera") {
		t.Fatalf("network and address slots must not collide")
	}
}

func TestMessageIDContext(t *testing.T) {
	base := MessageID("inst", "c1", "m1", 1700000000, "", "")
	if base != "inst/c:c1/m:m1/1700000000" {
		t.Fatalf("unexpected base id: %s", base)
	}
	withThread := MessageID("inst", "c1", "m1", 1700000000, "", "t1")
	if withThread == base {
		t.Fatalf("thread presence must change the id")
	}
	withChannel := MessageID("inst", "c1", "m1", 1700000000, "s1", "")
	if withChannel == base || withChannel == withThread {
		t.Fatalf("channel presence must change the id")
	}
	// The same raw value in different slots must stay distinct.
	if MessageID("inst", "c1", "m1", 1700000000, "x", "") == MessageID("inst", "c1", "m1", 1700000000, "", "x") {
		t.Fatalf("channel and thread slots must not collide")
	}
}

func TestSubChannelID(t *testing.T) {
	if SubChannelID("c1", "s1") != "c1/s1" {
		t.Fatalf("unexpected subchannel id")
	}
}

func TestDateString(t *testing.T) {
	if got := DateString(1700000000); got != "20231114" {
		t.Fatalf("DateString(1700000000) = %s, want 20231114", got)
	}
	if got := DateString(0); got != "19700101" {
		t.Fatalf("DateString(0) = %s, want 19700101", got)
	}
}
