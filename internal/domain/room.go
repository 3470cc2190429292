package domain

// RoomID names a broadcast group. Every chat group has exactly one room
// whose identifier is the group's identifier.
type RoomID string

func (id GroupID) Room() RoomID { return RoomID(id) }
