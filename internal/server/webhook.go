package server

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/smukkama/gr20-alert/internal/database"
	"github.com/smukkama/gr20-alert/internal/generator"
	"github.com/smukkama/gr20-alert/internal/protocol"
)

// RunFunc starts a report run for mode.
type RunFunc func(ctx context.Context, mode generator.Mode) error

// SetValueFunc rewrites one key of the config file.
type SetValueFunc func(path, key, value string) error

// CommandStore logs inbound commands.
type CommandStore interface {
	InsertCommand(ctx context.Context, c *database.CommandLog) error
}

// AckSender sends the reply SMS.
type AckSender interface {
	Send(ctx context.Context, to []string, text string) error
}

// WebhookConfig wires the webhook server. Token, ConfigPath and SetValue are
// required; Run, Commands and Ack are optional.
type WebhookConfig struct {
	Port           int
	Token          string
	AllowedSenders []string
	ConfigPath     string
	CommandTimeout time.Duration
	SetValue       SetValueFunc
	Run            RunFunc
	Commands       CommandStore
	Ack            AckSender
	Logger         zerolog.Logger
}

// WebhookServer accepts inbound SMS from the SMS gateway and executes the
// commands they carry.
type WebhookServer struct {
	config  WebhookConfig
	router  *chi.Mux
	httpSrv *http.Server
	allowed map[string]bool
	log     zerolog.Logger

	// guards config rewrites
	mu sync.Mutex

	runs   sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
}

// NewWebhookServer creates a new webhook server
func NewWebhookServer(cfg WebhookConfig) *WebhookServer {
	if cfg.CommandTimeout <= 0 {
		cfg.CommandTimeout = 2 * time.Minute
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &WebhookServer{
		config:  cfg,
		router:  chi.NewRouter(),
		allowed: make(map[string]bool, len(cfg.AllowedSenders)),
		log:     cfg.Logger.With().Str("component", "webhook").Logger(),
		ctx:     ctx,
		cancel:  cancel,
	}
	for _, sender := range cfg.AllowedSenders {
		s.allowed[NormalizeNumber(sender)] = true
	}

	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.Recoverer)
	s.router.Get("/healthz", s.handleHealth)
	s.router.Post("/sms", s.handleSMS)
	return s
}

// Handler returns the HTTP handler.
func (s *WebhookServer) Handler() http.Handler {
	return s.router
}

// Start starts listening in the background
func (s *WebhookServer) Start() error {
	if s.config.Token == "" {
		return fmt.Errorf("webhook token is not configured")
	}
	s.httpSrv = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.config.Port),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error().Err(err).Msg("webhook server stopped")
		}
	}()
	fmt.Printf("Webhook server listening on %s\n", s.httpSrv.Addr)
	return nil
}

// Stop shuts the listener down and waits for running reports.
func (s *WebhookServer) Stop(ctx context.Context) error {
	var err error
	if s.httpSrv != nil {
		err = s.httpSrv.Shutdown(ctx)
	}
	s.cancel()
	s.runs.Wait()
	fmt.Println("Webhook server stopped")
	return err
}

// InboundSMS is a gateway-independent inbound message.
type InboundSMS struct {
	Sender string
	Text   string
}

type smsResponse struct {
	Status string `json:"status"`
	Reply  string `json:"reply,omitempty"`
}

func (s *WebhookServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, smsResponse{Status: "ok"})
}

func (s *WebhookServer) handleSMS(w http.ResponseWriter, r *http.Request) {
	if !s.authorized(r) {
		writeJSON(w, http.StatusUnauthorized, smsResponse{Status: "unauthorized"})
		return
	}

	in, err := DecodeInbound(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, smsResponse{Status: "invalid", Reply: err.Error()})
		return
	}

	cmd, err := protocol.ParseCommand(in.Text)
	if errors.Is(err, protocol.ErrNotCommand) {
		s.log.Debug().Str("sender", in.Sender).Msg("ignoring SMS without command prefix")
		writeJSON(w, http.StatusOK, smsResponse{Status: "ignored"})
		return
	}

	if !s.allowed[NormalizeNumber(in.Sender)] {
		s.log.Warn().Str("sender", in.Sender).Msg("command from unknown sender rejected")
		s.logCommand(r.Context(), in, cmd, database.CommandStatusRejected, "sender not allowed")
		writeJSON(w, http.StatusForbidden, smsResponse{Status: "rejected"})
		return
	}

	if err == nil {
		err = s.execute(cmd, in)
	}
	reply := protocol.AckText(cmd, err)

	status := database.CommandStatusApplied
	if err != nil {
		status = database.CommandStatusRejected
		s.log.Warn().Err(err).Str("sender", in.Sender).Msg("command failed")
	} else {
		s.log.Info().Str("sender", in.Sender).Str("command", cmd.Raw).Msg("command applied")
	}
	s.logCommand(r.Context(), in, cmd, status, reply)
	s.ack(r.Context(), in.Sender, reply)

	writeJSON(w, http.StatusOK, smsResponse{Status: strings.ToLower(status), Reply: reply})
}

// execute applies a config change synchronously and starts report runs in
// the background under the command timeout.
func (s *WebhookServer) execute(cmd *protocol.Command, in InboundSMS) error {
	switch cmd.Type {
	case protocol.CmdConfig:
		s.mu.Lock()
		defer s.mu.Unlock()
		return s.config.SetValue(s.config.ConfigPath, cmd.Key, cmd.Value)

	case protocol.CmdReport:
		if s.config.Run == nil {
			return fmt.Errorf("report runs are disabled")
		}
		mode, err := generator.ParseMode(cmd.Mode)
		if err != nil {
			return err
		}
		s.runs.Add(1)
		go func() {
			defer s.runs.Done()
			ctx, cancel := context.WithTimeout(s.ctx, s.config.CommandTimeout)
			defer cancel()
			if err := s.config.Run(ctx, mode); err != nil {
				s.log.Error().Err(err).Str("mode", string(mode)).Msg("report run failed")
				s.ack(s.ctx, in.Sender, protocol.AckText(cmd, err))
			}
		}()
		return nil

	default:
		return fmt.Errorf("unsupported command %s", cmd.Type)
	}
}

func (s *WebhookServer) logCommand(ctx context.Context, in InboundSMS, cmd *protocol.Command, status, result string) {
	if s.config.Commands == nil {
		return
	}
	entry := &database.CommandLog{
		ID:         uuid.NewString(),
		Sender:     in.Sender,
		Body:       in.Text,
		Status:     status,
		Result:     result,
		ReceivedAt: time.Now(),
	}
	if cmd != nil {
		entry.Command = string(cmd.Type)
	}
	if err := s.config.Commands.InsertCommand(ctx, entry); err != nil {
		s.log.Warn().Err(err).Msg("failed to log command")
	}
}

func (s *WebhookServer) ack(ctx context.Context, to, text string) {
	if s.config.Ack == nil {
		return
	}
	if err := s.config.Ack.Send(ctx, []string{to}, text); err != nil {
		s.log.Warn().Err(err).Str("to", to).Msg("failed to send acknowledgement")
	}
}

func (s *WebhookServer) authorized(r *http.Request) bool {
	token := r.Header.Get("X-Webhook-Token")
	if token == "" {
		token = r.URL.Query().Get("token")
	}
	return token != "" && subtle.ConstantTimeCompare([]byte(token), []byte(s.config.Token)) == 1
}

type sevenInbound struct {
	Data struct {
		Sender string `json:"sender"`
		Text   string `json:"text"`
	} `json:"data"`
}

// DecodeInbound reads a Seven.io JSON webhook or a Twilio form post.
func DecodeInbound(r *http.Request) (InboundSMS, error) {
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		var body sevenInbound
		if err := json.NewDecoder(io.LimitReader(r.Body, 64<<10)).Decode(&body); err != nil {
			return InboundSMS{}, fmt.Errorf("failed to decode body: %w", err)
		}
		if body.Data.Sender == "" {
			return InboundSMS{}, fmt.Errorf("missing sender")
		}
		return InboundSMS{Sender: body.Data.Sender, Text: body.Data.Text}, nil
	}

	if err := r.ParseForm(); err != nil {
		return InboundSMS{}, fmt.Errorf("failed to parse form: %w", err)
	}
	in := InboundSMS{Sender: r.PostForm.Get("From"), Text: r.PostForm.Get("Body")}
	if in.Sender == "" {
		return InboundSMS{}, fmt.Errorf("missing sender")
	}
	return in, nil
}

// NormalizeNumber strips formatting so "+49 170 123", "0049170123" and
// "49170123" compare equal.
func NormalizeNumber(n string) string {
	var b strings.Builder
	for _, r := range n {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return strings.TrimPrefix(b.String(), "00")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
