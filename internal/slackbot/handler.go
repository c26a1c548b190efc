// Package slackbot serves the Slack Events API endpoint that turns
// "@bot <root> <template> <destination>" mentions into clone requests.
package slackbot

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/slack-go/slack"
	"github.com/slack-go/slack/slackevents"

	"github.com/foldersmith/foldersmith/internal/orchestrator"
	"github.com/foldersmith/foldersmith/pkg/errclass"
	"github.com/foldersmith/foldersmith/pkg/logging"
	"github.com/foldersmith/foldersmith/pkg/model"
)

// maxBodyBytes caps an events payload; Slack's are a few kilobytes.
const maxBodyBytes = 1 << 20

// FailureMessage is the reply when a request fails outside any backend.
const FailureMessage = "Sorry, I couldn't clone the folder structure."

// Runner executes a clone request across backends.
type Runner interface {
	CloneAll(ctx context.Context, req model.CloneRequest) (*orchestrator.Report, error)
}

// Poster sends a chat message. *slack.Client implements it.
type Poster interface {
	PostMessageContext(ctx context.Context, channelID string, options ...slack.MsgOption) (string, string, error)
}

// Handler is the http.Handler for Slack event callbacks. Clones run after
// the request has been acknowledged, because Slack retries any event that
// is not answered within three seconds.
type Handler struct {
	signingSecret string
	runner        Runner
	poster        Poster
	cloneTimeout  time.Duration
	dispatch      func(func())
	wg            sync.WaitGroup
}

// Option configures a Handler.
type Option func(*Handler)

// WithCloneTimeout bounds each mention's clone. Zero means no limit.
func WithCloneTimeout(d time.Duration) Option {
	return func(h *Handler) { h.cloneTimeout = d }
}

// WithDispatch replaces the goroutine launcher used for clones.
func WithDispatch(fn func(func())) Option {
	return func(h *Handler) { h.dispatch = fn }
}

// NewHandler creates a Handler that verifies requests with signingSecret.
func NewHandler(signingSecret string, runner Runner, poster Poster, opts ...Option) *Handler {
	h := &Handler{
		signingSecret: signingSecret,
		runner:        runner,
		poster:        poster,
	}
	h.dispatch = func(fn func()) {
		h.wg.Add(1)
		go func() {
			defer h.wg.Done()
			fn()
		}()
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Wait blocks until every dispatched clone has replied.
func (h *Handler) Wait() {
	h.wg.Wait()
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		http.Error(w, "read body", http.StatusBadRequest)
		return
	}
	if err := h.verify(r.Header, body); err != nil {
		logging.Warn("rejected slack request", map[string]any{"error": err.Error()})
		http.Error(w, "invalid signature", http.StatusUnauthorized)
		return
	}

	event, err := slackevents.ParseEvent(json.RawMessage(body), slackevents.OptionNoVerifyToken())
	if err != nil {
		http.Error(w, "invalid event", http.StatusBadRequest)
		return
	}

	switch event.Type {
	case slackevents.URLVerification:
		var challenge slackevents.ChallengeResponse
		if err := json.Unmarshal(body, &challenge); err != nil {
			http.Error(w, "invalid challenge", http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "text/plain")
		_, _ = w.Write([]byte(challenge.Challenge))
		return

	case slackevents.CallbackEvent:
		// A retry means the first delivery already started a clone.
		if r.Header.Get("X-Slack-Retry-Num") != "" {
			w.WriteHeader(http.StatusOK)
			return
		}
		if mention, ok := event.InnerEvent.Data.(*slackevents.AppMentionEvent); ok && mention.BotID == "" {
			h.dispatch(func() { h.HandleMention(context.Background(), mention) })
		}
	}
	w.WriteHeader(http.StatusOK)
}

func (h *Handler) verify(header http.Header, body []byte) error {
	sv, err := slack.NewSecretsVerifier(header, h.signingSecret)
	if err != nil {
		return errclass.ErrSignatureInvalid.WithMessage(err.Error())
	}
	if _, err := sv.Write(body); err != nil {
		return errclass.ErrSignatureInvalid.WithMessage(err.Error())
	}
	if err := sv.Ensure(); err != nil {
		return errclass.ErrSignatureInvalid.WithMessage("signature mismatch")
	}
	return nil
}

// HandleMention runs the clone a mention asks for and replies in its
// thread.
func (h *Handler) HandleMention(ctx context.Context, ev *slackevents.AppMentionEvent) {
	log := logging.FromContext(ctx).WithFields(map[string]any{
		"channel": ev.Channel,
		"user":    ev.User,
		"ts":      ev.TimeStamp,
	})
	ctx = logging.NewContext(ctx, log)

	if h.cloneTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.cloneTimeout)
		defer cancel()
	}

	reply := Reply(h.runner.CloneAll(ctx, ParseMention(ev.Text)))

	threadTS := ev.ThreadTimeStamp
	if threadTS == "" {
		threadTS = ev.TimeStamp
	}
	// The clone context may have expired; the reply still goes out.
	postCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer cancel()
	if _, _, err := h.poster.PostMessageContext(postCtx, ev.Channel,
		slack.MsgOptionText(reply, false),
		slack.MsgOptionTS(threadTS),
	); err != nil {
		log.ErrorErr("post reply failed", err)
	}
}

// Reply renders the chat answer for the outcome of CloneAll.
func Reply(report *orchestrator.Report, err error) string {
	switch {
	case errors.Is(err, errclass.ErrRequestInvalid):
		return orchestrator.UsageMessage
	case errors.Is(err, errclass.ErrNameInvalid):
		var ce *errclass.ClassError
		if errors.As(err, &ce) && ce.Message != "" {
			return "Invalid folder name: " + ce.Message
		}
		return orchestrator.UsageMessage
	case err != nil:
		return FailureMessage
	}
	return report.String()
}

// ParseMention extracts the folder names from a mention's text. User and
// channel references such as <@U123> are skipped; the first three
// remaining words are the root, template and destination names.
func ParseMention(text string) model.CloneRequest {
	var words []string
	for _, f := range strings.Fields(text) {
		if strings.HasPrefix(f, "<") && strings.HasSuffix(f, ">") {
			continue
		}
		words = append(words, f)
	}
	words = append(words, "", "", "")
	return model.CloneRequest{RootName: words[0], TemplateName: words[1], DestinationName: words[2]}
}
