package port

// Registry maps room names to live room actors.
type Registry interface {
	Lookup(name string) (Room, bool)
	// RegisterOrGet returns the room registered under name, creating it with
	// factory when absent. The check and the insert happen atomically.
	RegisterOrGet(name string, factory RoomFactory) (room Room, created bool)
	// Unregister removes name only while it still points at room.
	Unregister(name string, room Room)
	Names() []string
}
