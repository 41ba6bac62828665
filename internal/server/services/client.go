package services

// ClientInfo identifies the network origin of a scan or submission attempt.
type ClientInfo struct {
	IPAddress string
	UserAgent string
}
