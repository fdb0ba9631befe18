package ws

import "sort"

// Directory maps board ids to the set of joined connections. A room exists
// exactly while its member set is non-empty. Owned by the Core loop.
type Directory struct {
	rooms map[string]map[string]struct{}
}

func NewDirectory() *Directory {
	return &Directory{
		rooms: make(map[string]map[string]struct{}),
	}
}

// Join adds the connection and reports whether the room was created by it.
func (d *Directory) Join(boardID, connectionID string) bool {
	members, ok := d.rooms[boardID]
	if !ok {
		members = make(map[string]struct{})
		d.rooms[boardID] = members
	}
	members[connectionID] = struct{}{}
	return !ok
}

// Leave removes the connection. removed is false when it was not a member;
// deleted is true when the room became empty and was dropped.
func (d *Directory) Leave(boardID, connectionID string) (removed, deleted bool) {
	members, ok := d.rooms[boardID]
	if !ok {
		return false, false
	}
	if _, ok := members[connectionID]; !ok {
		return false, false
	}

	delete(members, connectionID)
	if len(members) == 0 {
		delete(d.rooms, boardID)
		return true, true
	}
	return true, false
}

// MembersOf returns the room's connection ids in a stable order.
func (d *Directory) MembersOf(boardID string) []string {
	members := d.rooms[boardID]
	ids := make([]string, 0, len(members))
	for id := range members {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (d *Directory) IsMember(boardID, connectionID string) bool {
	_, ok := d.rooms[boardID][connectionID]
	return ok
}

// RoomsOf scans every room for the connection.
func (d *Directory) RoomsOf(connectionID string) []string {
	var boards []string
	for boardID, members := range d.rooms {
		if _, ok := members[connectionID]; ok {
			boards = append(boards, boardID)
		}
	}
	sort.Strings(boards)
	return boards
}

func (d *Directory) Exists(boardID string) bool {
	_, ok := d.rooms[boardID]
	return ok
}

func (d *Directory) Len() int {
	return len(d.rooms)
}
