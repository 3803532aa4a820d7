package ble

import "sync"

// signals holds the in-memory flags the notification handler sets and
// the streaming loop consumes: pause on 5a0714, ready on 5a0b01,
// completed on 5a060 (see classifyNotification). Also records the most recent raw notification
// and battery status for command/response correlation and logging.
type signals struct {
	mu sync.Mutex

	pauseRequired  bool
	readyToPrint   bool
	printCompleted bool

	latest []byte
	status Status
}

func newSignals() *signals {
	return &signals{}
}

// handle updates signals from one decoded notification.
func (s *signals) handle(data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := make([]byte, len(data))
	copy(cp, data)
	s.latest = cp

	switch classifyNotification(data) {
	case notificationPause:
		s.pauseRequired = true
	case notificationReady:
		s.readyToPrint = true
	case notificationCompleted:
		s.printCompleted = true
	case notificationStatus:
		if st, err := parseStatus(data); err == nil {
			s.status = st
		}
	}
}

func (s *signals) takePauseRequired() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	v := s.pauseRequired
	s.pauseRequired = false
	return v
}

func (s *signals) takePrintCompleted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	v := s.printCompleted
	s.printCompleted = false
	return v
}

func (s *signals) latestBytes() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.latest
}

func (s *signals) lastStatus() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}
