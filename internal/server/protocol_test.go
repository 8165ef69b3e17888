package server

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProtocol_Decode(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    InboundEvent
		wantErr error
	}{
		{
			name: "newUser",
			raw:  `{"event":"newUser","data":"maria"}`,
			want: NewUserEvent{UserID: "maria"},
		},
		{
			name: "joinRoom",
			raw:  `{"event":"joinRoom","data":{"userId":"alice","room":"lobby"}}`,
			want: JoinRoomEvent{JoinRoomRequest: JoinRoomRequest{UserID: "alice", Room: "lobby"}},
		},
		{
			name:    "joinRoom missing room",
			raw:     `{"event":"joinRoom","data":{"userId":"alice"}}`,
			wantErr: ErrInvalidJoinRequest,
		},
		{
			name:    "joinRoom missing user id",
			raw:     `{"event":"joinRoom","data":{"room":"lobby"}}`,
			wantErr: ErrInvalidJoinRequest,
		},
		{
			name: "chat message",
			raw:  `{"event":"chat:message","data":{"userId":"alice","message":"hi","room":"lobby"}}`,
			want: ChatMessageEvent{ChatMessagePayload: ChatMessagePayload{UserID: "alice", Message: "hi", Room: "lobby"}},
		},
		{
			name: "chat message without room or timestamp",
			raw:  `{"event":"chat:message","data":{"message":"hi"}}`,
			want: ChatMessageEvent{ChatMessagePayload: ChatMessagePayload{Message: "hi"}},
		},
		{
			name:    "not json",
			raw:     `this is not json`,
			wantErr: ErrMalformedEvent,
		},
		{
			name:    "unknown event",
			raw:     `{"event":"teleport","data":{}}`,
			wantErr: ErrMalformedEvent,
		},
		{
			name:    "newUser with object payload",
			raw:     `{"event":"newUser","data":{"userId":"maria"}}`,
			wantErr: ErrMalformedEvent,
		},
		{
			name:    "joinRoom with wrong payload type",
			raw:     `{"event":"joinRoom","data":"lobby"}`,
			wantErr: ErrMalformedEvent,
		},
	}

	p := NewProtocol()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := p.Decode([]byte(tt.raw))
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSessionStateOf(t *testing.T) {
	assert.Equal(t, StateClosed, sessionStateOf(Participant{}, false))
	assert.Equal(t, StateUnidentified, sessionStateOf(Participant{ConnectionID: "c1"}, true))
	assert.Equal(t, StateUnidentified, sessionStateOf(Participant{ConnectionID: "c1", UserID: "maria"}, true))
	assert.Equal(t, StateJoined, sessionStateOf(Participant{ConnectionID: "c1", UserID: "alice", Room: "lobby"}, true))
}

func TestResolveChatRoom(t *testing.T) {
	joined := Participant{ConnectionID: "c1", UserID: "alice", Room: "lobby"}
	unjoined := Participant{ConnectionID: "c2"}

	tests := []struct {
		name     string
		sender   Participant
		claimed  string
		wantRoom string
		wantErr  error
	}{
		{name: "joined, matching claim", sender: joined, claimed: "lobby", wantRoom: "lobby"},
		{name: "joined, no claim", sender: joined, claimed: "", wantRoom: "lobby"},
		{name: "joined, mismatched claim", sender: joined, claimed: "den", wantErr: ErrRoomMismatch},
		{name: "unjoined, claims a room", sender: unjoined, claimed: "lobby", wantErr: ErrRoomMismatch},
		{name: "unjoined, no claim", sender: unjoined, claimed: "", wantRoom: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			room, err := resolveChatRoom(tt.sender, tt.claimed)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantRoom, room)
		})
	}
}
