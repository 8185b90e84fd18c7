package chat

import "testing"

func TestChannelNameForRoomID(t *testing.T) {
	tests := []struct {
		roomID  string
		feature RoomFeature
		want    string
	}{
		{"my-room", FeatureMessages, "my-room::$chat::$chatMessages"},
		{"room1", FeatureMessages, "room1::$chat::$chatMessages"},
		{"room1", FeaturePresence, "room1::$chat::$chatMessages"},
		{"room1", FeatureOccupancy, "room1::$chat::$chatMessages"},
		{"room1", FeatureReactions, "room1::$chat::$reactions"},
		{"room1", FeatureTyping, "room1::$chat::$typingIndicators"},
	}

	for _, tt := range tests {
		t.Run(tt.roomID+"/"+tt.feature.String(), func(t *testing.T) {
			if got := tt.feature.ChannelNameForRoomID(tt.roomID); got != tt.want {
				t.Fatalf("ChannelNameForRoomID = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestEveryFeatureHasAChannel(t *testing.T) {
	for _, f := range AllFeatures() {
		if name := f.ChannelNameForRoomID(""); name == "" {
			t.Fatalf("%s has no channel name", f)
		}
	}
}

func TestUnknownFeaturePanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic for unknown feature")
		}
	}()
	RoomFeature(99).ChannelNameForRoomID("room1")
}
