package smssvc

import (
	"log"
	"sync"

	"github.com/WebgateSystems/akademy/core"
)

type consoleService struct {
	disableOutput bool

	mu   sync.Mutex
	sent []SentSMS
}

// SentSMS is a recorded outbound message.
type SentSMS struct {
	To   string
	Body string
}

var _ core.SMSService = (*consoleService)(nil)

func NewConsoleService() *consoleService {
	return &consoleService{}
}

// NewConsoleServiceMock records messages without printing them.
func NewConsoleServiceMock() *consoleService {
	return &consoleService{disableOutput: true}
}

func (svc *consoleService) Send(to, body string) {
	svc.mu.Lock()
	svc.sent = append(svc.sent, SentSMS{To: to, Body: body})
	svc.mu.Unlock()

	if !svc.disableOutput {
		log.Printf("SMS to %s: %s", to, body)
	}
}

// Sent returns the recorded messages, most recent last.
func (svc *consoleService) Sent() []SentSMS {
	svc.mu.Lock()
	defer svc.mu.Unlock()
	sent := make([]SentSMS, len(svc.sent))
	copy(sent, svc.sent)
	return sent
}
