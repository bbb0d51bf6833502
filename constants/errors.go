package constants

const (
	ErrorBadRequest       = "Bad Request"
	ErrorInternal         = "Internal Service Error"
	ErrorPassword         = "Invalid room password"
	ErrorNotAuthenticated = "Not Authenticated"
	ErrorNicknameInUse    = "Nickname in use"
	ErrorNotFound         = "Not found"
	ErrorRoomFull         = "Room is full"
	ErrorForbidden        = "Forbidden"
)
