package alert

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"go.uber.org/zap"

	"mtsim/sim"
)

const twilioBaseURL = "https://api.twilio.com/2010-04-01"

// TwilioConfig comes from the environment; credentials never live in the
// config file.
type TwilioConfig struct {
	AccountSID string `envconfig:"TWILIO_ACCOUNT_SID"`
	AuthToken  string `envconfig:"TWILIO_AUTH_TOKEN"`
	FromNumber string `envconfig:"TWILIO_FROM_NUMBER"`
	ToNumber   string `envconfig:"ALERT_TO_NUMBER"`
	WhatsApp   bool   `envconfig:"ALERT_WHATSAPP" default:"false"`
}

func (c TwilioConfig) complete() bool {
	return c.AccountSID != "" && c.AuthToken != "" && c.FromNumber != "" && c.ToNumber != ""
}

// Twilio sends SMS or WhatsApp messages through the Twilio REST API.
type Twilio struct {
	cfg        TwilioConfig
	httpClient *http.Client
	log        *zap.SugaredLogger
}

func NewTwilio(cfg TwilioConfig, log *zap.SugaredLogger) *Twilio {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Twilio{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		log:        log.With("component", "twilio"),
	}
}

// FromEnv builds the configured alerter: Twilio when credentials are fully
// present, otherwise Noop with a warning.
func FromEnv(log *zap.SugaredLogger) Alerter {
	var cfg TwilioConfig
	if err := envconfig.Process("", &cfg); err != nil {
		log.Warnw("alert config unreadable, alerts disabled", "error", err)
		return Noop{}
	}
	if !cfg.complete() {
		log.Infow("twilio credentials not configured, alerts disabled")
		return Noop{}
	}
	return NewTwilio(cfg, log)
}

// PositionClosed implements Alerter.
func (t *Twilio) PositionClosed(ctx context.Context, ev Event) error {
	p := ev.Position

	var verb string
	switch ev.Reason {
	case sim.ReasonTakeProfit:
		verb = "TAKE PROFIT HIT"
	case sim.ReasonStopLoss:
		verb = "STOP LOSS HIT"
	default:
		verb = "POSITION CLOSED"
	}

	body := fmt.Sprintf(
		"%s\n%s %s %.2f lots\nTicket: #%d\nClosed @ %.5f\nP/L: %.2f",
		verb, p.Symbol, p.Side, p.Volume, p.Ticket, p.ClosePrice, p.Profit,
	)

	from, to := t.cfg.FromNumber, t.cfg.ToNumber
	if t.cfg.WhatsApp {
		from = "whatsapp:" + strings.TrimPrefix(from, "whatsapp:")
		to = "whatsapp:" + strings.TrimPrefix(to, "whatsapp:")
	}

	form := url.Values{}
	form.Set("From", from)
	form.Set("To", to)
	form.Set("Body", body)

	endpoint := fmt.Sprintf("%s/Accounts/%s/Messages.json", twilioBaseURL, t.cfg.AccountSID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("twilio: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(t.cfg.AccountSID, t.cfg.AuthToken)

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("twilio: send: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("twilio: send: status %s", resp.Status)
	}

	t.log.Infow("alert sent", "ticket", p.Ticket, "reason", ev.Reason)
	return nil
}
