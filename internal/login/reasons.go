package login

// DisconnectReason records why a login session ended.
type DisconnectReason int

const (
	// ReasonNormalLogout is a clean client-initiated logout.
	ReasonNormalLogout DisconnectReason = iota
	// ReasonDisconnected is a dropped or errored socket.
	ReasonDisconnected
	// ReasonChallengeAlreadySent means the handshake was attempted twice.
	ReasonChallengeAlreadySent
	// ReasonInvalidLoginQuery means a login or newuser frame was missing keys.
	ReasonInvalidLoginQuery
	// ReasonInvalidUsername means the nick is not registered.
	ReasonInvalidUsername
	// ReasonPlayerIsBanned means the account carries a permanent ban.
	ReasonPlayerIsBanned
	// ReasonInvalidPassword means the proof comparison failed.
	ReasonInvalidPassword
	// ReasonGeneralError covers store faults and other internal errors.
	ReasonGeneralError
	// ReasonCreateFailedUsernameExists means newuser hit a taken nick.
	ReasonCreateFailedUsernameExists
	// ReasonCreateFailedDatabaseError means newuser could not write the account.
	ReasonCreateFailedDatabaseError
	// ReasonLoginTimedOut means the handshake exceeded the login timeout.
	ReasonLoginTimedOut
	// ReasonNewLoginDetected means a newer session for the same account evicted this one.
	ReasonNewLoginDetected
	// ReasonForcedLogout is an operator-initiated kick.
	ReasonForcedLogout
	// ReasonForcedServerShutdown means the service is stopping.
	ReasonForcedServerShutdown
	// ReasonKeepAliveFailed means the periodic keep-alive could not be delivered.
	ReasonKeepAliveFailed
)

var reasonNames = map[DisconnectReason]string{
	ReasonNormalLogout:               "NormalLogout",
	ReasonDisconnected:               "Disconnected",
	ReasonChallengeAlreadySent:       "ClientChallengeAlreadySent",
	ReasonInvalidLoginQuery:          "InvalidLoginQuery",
	ReasonInvalidUsername:            "InvalidUsername",
	ReasonPlayerIsBanned:             "PlayerIsBanned",
	ReasonInvalidPassword:            "InvalidPassword",
	ReasonGeneralError:               "GeneralError",
	ReasonCreateFailedUsernameExists: "CreateFailedUsernameExists",
	ReasonCreateFailedDatabaseError:  "CreateFailedDatabaseError",
	ReasonLoginTimedOut:              "LoginTimedOut",
	ReasonNewLoginDetected:           "NewLoginDetected",
	ReasonForcedLogout:               "ForcedLogout",
	ReasonForcedServerShutdown:       "ForcedServerShutdown",
	ReasonKeepAliveFailed:            "KeepAliveFailed",
}

func (r DisconnectReason) String() string {
	if name, ok := reasonNames[r]; ok {
		return name
	}
	return "Unknown"
}
