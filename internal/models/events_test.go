package models

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestClientEvent_Decode(t *testing.T) {
	tests := []struct {
		name    string
		frame   string
		want    ClientCommand
		wantErr error
	}{
		{"Authenticate", `{"event":"authenticate","data":{"token":"t","room":"lounge"}}`, Authenticate{Token: "t", Room: "lounge"}, nil},
		{"Authenticate without room", `{"event":"authenticate","data":{"token":"t"}}`, Authenticate{Token: "t"}, nil},
		{"JoinRoom", `{"event":"join_room","data":"lounge"}`, JoinRoom{Room: "lounge"}, nil},
		{"SendMessage public", `{"event":"send_message","data":{"text":"hi"}}`, SendMessage{Text: "hi"}, nil},
		{"SendMessage private", `{"event":"send_message","data":{"text":"hey","toUserId":"u1","toNickname":"A"}}`, SendMessage{Text: "hey", ToUserID: "u1", ToNickname: "A"}, nil},
		{"Typing", `{"event":"typing"}`, Typing{}, nil},
		{"Unknown", `{"event":"dance"}`, nil, ErrUnknownEvent},
		{"JoinRoom object", `{"event":"join_room","data":{"room":"x"}}`, nil, ErrMalformedEvent},
		{"Missing data", `{"event":"send_message"}`, nil, ErrMalformedEvent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var ev ClientEvent
			if err := json.Unmarshal([]byte(tt.frame), &ev); err != nil {
				t.Fatalf("unmarshal frame: %v", err)
			}
			got, err := ev.Decode()
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Decode() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Decode() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("Decode() = %#v, want %#v", got, tt.want)
			}
		})
	}
}

func TestSendMessage_IsPrivate(t *testing.T) {
	if (SendMessage{Text: "x", ToUserID: "u"}).IsPrivate() {
		t.Error("mention with only user id must stay public")
	}
	if (SendMessage{Text: "x", ToNickname: "A"}).IsPrivate() {
		t.Error("mention with only nickname must stay public")
	}
	if !(SendMessage{Text: "x", ToUserID: "u", ToNickname: "A"}).IsPrivate() {
		t.Error("both recipient fields must make it private")
	}
}

func TestServerEvent_EmptyHistoryEncodesAsArray(t *testing.T) {
	data, err := json.Marshal(NewHistoryEvent(nil))
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != `{"event":"message_history","data":[]}` {
		t.Errorf("unexpected encoding: %s", data)
	}
}
