package domain

// Realtime event names exchanged over the signaling connection.
const (
	EventPresenceUpdate        = "presence-update"
	EventJoinRoom              = "join-room"
	EventLeaveRoom             = "leave-room"
	EventGroupMessage          = "group-message"
	EventNewMessage            = "new-message"
	EventInitiateCall          = "initiate-call"
	EventIncomingCall          = "incoming-call"
	EventCallAccepted          = "call-accepted"
	EventICECandidate          = "ice-candidate"
	EventCallRejected          = "call-rejected"
	EventCallEnded             = "call-ended"
	EventFriendRequest         = "friend-request"
	EventFriendRequestAccepted = "friend-request-accepted"
	EventPing                  = "ping"
	EventPong                  = "pong"
	EventError                 = "error"
)

// Reasons carried by call-rejected.
const (
	RejectDeclined = "declined"
	RejectBusy     = "busy"
	RejectBlocked  = "blocked"
)

const EventGroupInvitation = "group-invitation"
