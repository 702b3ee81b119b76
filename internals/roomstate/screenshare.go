package roomstate

// StartScreenShare makes the connection's user the room's only screen sharer.
// Starting again while already holding the share succeeds.
func (s *Store) StartScreenShare(connectionID string) (ScreenShareResult, error) {
	m, r, err := s.resolve(connectionID)
	if err != nil {
		return ScreenShareResult{}, err
	}
	if r.screenSharer != "" && r.screenSharer != m.UserID {
		return ScreenShareResult{}, ErrScreenShareActive
	}
	r.screenSharer = m.UserID
	return ScreenShareResult{Membership: m}, nil
}

// StopScreenShare releases the screen share held by the connection's user.
func (s *Store) StopScreenShare(connectionID string) (ScreenShareResult, error) {
	m, r, err := s.resolve(connectionID)
	if err != nil {
		return ScreenShareResult{}, err
	}
	if r.screenSharer != m.UserID {
		return ScreenShareResult{}, ErrNotActiveScreenSharer
	}
	r.screenSharer = ""
	return ScreenShareResult{Membership: m}, nil
}
