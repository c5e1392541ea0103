package rpc

import (
	"encoding/json"
	"strconv"
)

// ExtractRoomID returns the room id carried in the Room header.
//
// An empty header string, undecodable headers, a missing Room key and a
// non-integer value all yield ok == false. None of these are errors here;
// the dispatcher rejects the call for lack of a room.
func ExtractRoomID(headers string) (roomID int64, ok bool) {
	value, ok := headerValue(headers, HeaderRoom)
	if !ok {
		return 0, false
	}
	roomID, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0, false
	}
	return roomID, true
}

// ExtractAuthToken returns the Authorization header verbatim.
func ExtractAuthToken(headers string) (token string, ok bool) {
	return headerValue(headers, HeaderAuthorization)
}

// headerValue decodes the serialized header map and looks up key.
func headerValue(headers, key string) (string, bool) {
	if headers == "" {
		return "", false
	}
	var m map[string]string
	if err := json.Unmarshal([]byte(headers), &m); err != nil {
		return "", false
	}
	value, ok := m[key]
	return value, ok
}
