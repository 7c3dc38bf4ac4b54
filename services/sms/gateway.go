package smssvc

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/WebgateSystems/akademy/core"
)

type gatewayService struct {
	url    string
	token  string
	client *http.Client
	logger core.Logger
}

var _ core.SMSService = (*gatewayService)(nil)

func NewGatewayService(conf *core.Config, logger core.Logger) *gatewayService {
	return &gatewayService{
		url:    conf.SMSGatewayURL,
		token:  conf.SMSGatewayToken,
		client: &http.Client{Timeout: 10 * time.Second},
		logger: logger,
	}
}

// Send posts the message to the gateway in the background. Failures are
// logged, never surfaced: OTP delivery already has a resend path.
func (svc gatewayService) Send(to, body string) {
	go svc.send(to, body)
}

func (svc gatewayService) send(to, body string) {
	payload, err := json.Marshal(struct {
		To   string `json:"to"`
		Body string `json:"body"`
	}{to, body})
	if err != nil {
		svc.logger.Error(fmt.Sprintf("encoding SMS: %v", err), err)
		return
	}

	req, err := http.NewRequest(http.MethodPost, svc.url, bytes.NewReader(payload))
	if err != nil {
		svc.logger.Error(fmt.Sprintf("preparing SMS request: %v", err), err)
		return
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+svc.token)

	res, err := svc.client.Do(req)
	if err != nil {
		svc.logger.Error(fmt.Sprintf("sending SMS: %v", err), err)
		return
	}
	defer func() { _ = res.Body.Close() }()
	if res.StatusCode >= http.StatusBadRequest {
		svc.logger.Error(fmt.Sprintf("sending SMS - status: %d", res.StatusCode))
	}
}
